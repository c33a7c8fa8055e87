// Package record derives the identity, defaults and result views of a record
// type from a static field description, for use by get-or-create endpoints.
package record

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"gorm.io/gorm"

	"production-tracker-backend/internal/apperr"
)

// Spec describes a record type for get-or-create. Field names are JSON names.
type Spec struct {
	// Identity fields name one logical record. They are all required.
	Identity []string
	// Exclude lists fields that are never taken as defaults.
	Exclude []string
	// ReadOnly fields are computed by the server and dropped from every view.
	ReadOnly []string
}

// Payload is a decoded JSON object, field by field.
type Payload map[string]json.RawMessage

// Decode parses a request body into a Payload.
func Decode(body []byte) (Payload, error) {
	p := Payload{}
	if len(bytes.TrimSpace(body)) == 0 {
		return p, nil
	}
	if err := json.Unmarshal(body, &p); err != nil {
		return nil, apperr.NewValidation(apperr.NonFieldErrors, "Invalid JSON: %v", err)
	}
	return p, nil
}

func isNull(raw json.RawMessage) bool {
	return len(raw) == 0 || string(bytes.TrimSpace(raw)) == "null"
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

// IdentityView returns only the identity fields of p. A missing identity field
// is a ValidationError.
func (s Spec) IdentityView(p Payload) (Payload, error) {
	out := Payload{}
	verr := &apperr.ValidationError{}
	for _, f := range s.Identity {
		raw, ok := p[f]
		if !ok || isNull(raw) {
			verr.Add(f, "This field is required.")
			continue
		}
		out[f] = raw
	}
	if !verr.Empty() {
		return nil, verr
	}
	return out, nil
}

// DefaultsView returns every field of p except identity, excluded and read-only ones.
func (s Spec) DefaultsView(p Payload) Payload {
	out := Payload{}
	for k, v := range p {
		if contains(s.Identity, k) || contains(s.Exclude, k) || contains(s.ReadOnly, k) {
			continue
		}
		out[k] = v
	}
	return out
}

// Build decodes the identity and defaults views of p into dst, a pointer to
// the record struct, and validates it. It returns the identity fields as Go
// field names for the lookup.
func (s Spec) Build(db *gorm.DB, p Payload, dst any) ([]string, error) {
	identity, err := s.IdentityView(p)
	if err != nil {
		return nil, err
	}
	merged := s.DefaultsView(p)
	for k, v := range identity {
		merged[k] = v
	}
	if err := Into(merged, dst); err != nil {
		return nil, err
	}
	if err := Validate(dst); err != nil {
		return nil, err
	}
	return s.IdentityFields(db, dst)
}

// IdentityFields maps the identity JSON names to the Go field names of model.
func (s Spec) IdentityFields(db *gorm.DB, model any) ([]string, error) {
	stmt := &gorm.Statement{DB: db}
	if err := stmt.Parse(model); err != nil {
		return nil, fmt.Errorf("failed to parse %T: %w", model, err)
	}
	out := make([]string, 0, len(s.Identity))
	for _, name := range s.Identity {
		found := ""
		for _, f := range stmt.Schema.Fields {
			if jsonName(f.Tag.Get("json")) == name {
				found = f.Name
				break
			}
		}
		if found == "" {
			return nil, fmt.Errorf("%s has no field with JSON name %q", stmt.Schema.Name, name)
		}
		out = append(out, found)
	}
	return out, nil
}

func jsonName(tag string) string {
	name, _, _ := strings.Cut(tag, ",")
	return name
}

// Into decodes p into dst. Type mismatches become ValidationErrors on the offending field.
func Into(p Payload, dst any) error {
	raw, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("failed to encode payload: %w", err)
	}
	return Unmarshal(raw, dst)
}

// Unmarshal decodes raw JSON into dst, reporting type mismatches as ValidationErrors.
func Unmarshal(raw []byte, dst any) error {
	err := json.Unmarshal(raw, dst)
	if err == nil {
		return nil
	}
	var typeErr *json.UnmarshalTypeError
	if errors.As(err, &typeErr) {
		field := typeErr.Field
		if field == "" {
			field = apperr.NonFieldErrors
		}
		return apperr.NewValidation(field, "Expected %s but received %s.", typeErr.Type, typeErr.Value)
	}
	var syntaxErr *json.SyntaxError
	if errors.As(err, &syntaxErr) {
		return apperr.NewValidation(apperr.NonFieldErrors, "Invalid JSON: %v", err)
	}
	return err
}
