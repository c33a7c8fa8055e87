// Package unique enforces unique-together constraints at the application layer.
//
// Each model passes its own constraint list to Check, usually from a BeforeSave
// hook so the check runs on every persist and not only on validated input.
package unique

import (
	"fmt"
	"reflect"
	"sort"
	"strings"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"production-tracker-backend/internal/apperr"
)

// Constraint is a set of fields whose values must not be shared by two rows.
type Constraint struct {
	// Fields are Go field names or column names of the model.
	Fields []string
	// Scope narrows the comparison to rows with these column values,
	// e.g. a discriminator for one variant of a polymorphic table.
	Scope map[string]any
}

// Together is shorthand for a Constraint over fields with no scope.
func Together(fields ...string) Constraint {
	return Constraint{Fields: fields}
}

// Check returns a ValidationError naming the first constraint for which another
// persisted row (other than value itself, matched by primary key) holds identical values.
func Check(tx *gorm.DB, value any, constraints ...Constraint) error {
	if len(constraints) == 0 {
		return nil
	}

	stmt := &gorm.Statement{DB: tx}
	if err := stmt.Parse(value); err != nil {
		return fmt.Errorf("unique: failed to parse model: %w", err)
	}
	sch := stmt.Schema
	rv := reflect.Indirect(reflect.ValueOf(value))
	ctx := tx.Statement.Context

	for _, c := range constraints {
		q := tx.Session(&gorm.Session{NewDB: true}).Model(reflect.New(sch.ModelType).Interface())

		shown := make([]string, 0, len(c.Fields))
		for _, name := range c.Fields {
			f := sch.LookUpField(name)
			if f == nil {
				return fmt.Errorf("unique: %s has no field %q", sch.Name, name)
			}
			v, _ := f.ValueOf(ctx, rv)
			q = q.Where(clause.Eq{Column: clause.Column{Name: f.DBName}, Value: v})
			shown = append(shown, fmt.Sprintf("%s=%v", f.DBName, display(v)))
		}

		scopeKeys := make([]string, 0, len(c.Scope))
		for k := range c.Scope {
			scopeKeys = append(scopeKeys, k)
		}
		sort.Strings(scopeKeys)
		for _, k := range scopeKeys {
			q = q.Where(clause.Eq{Column: clause.Column{Name: k}, Value: c.Scope[k]})
		}

		if pk := sch.PrioritizedPrimaryField; pk != nil {
			if v, zero := pk.ValueOf(ctx, rv); !zero {
				q = q.Where(clause.Neq{Column: clause.Column{Name: pk.DBName}, Value: v})
			}
		}

		var count int64
		if err := q.Count(&count).Error; err != nil {
			return fmt.Errorf("unique: failed to query %s: %w", sch.Table, err)
		}
		if count > 0 {
			return apperr.NewValidation(apperr.NonFieldErrors,
				"Found another %s with the same unique fields: {%s}", sch.Name, strings.Join(shown, ", "))
		}
	}
	return nil
}

func display(v any) any {
	rv := reflect.ValueOf(v)
	if rv.Kind() == reflect.Pointer {
		if rv.IsNil() {
			return "<nil>"
		}
		return rv.Elem().Interface()
	}
	return v
}
