package record

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"sync"

	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"

	"production-tracker-backend/internal/apperr"
	"production-tracker-backend/internal/model"
)

var setupOnce sync.Once

// SetupValidator configures gin's validator engine: errors report JSON field
// names and the work_order_code tag is available. Safe to call repeatedly.
func SetupValidator() {
	setupOnce.Do(func() {
		v, ok := binding.Validator.Engine().(*validator.Validate)
		if !ok {
			return
		}
		v.RegisterTagNameFunc(func(f reflect.StructField) string {
			name := jsonName(f.Tag.Get("json"))
			if name == "-" {
				return ""
			}
			if name == "" {
				return f.Name
			}
			return name
		})
		_ = v.RegisterValidation("work_order_code", func(fl validator.FieldLevel) bool {
			return model.ValidateWorkOrderCode(fl.Field().String()) == nil
		})
	})
}

// Validate runs the binding tags of obj and translates failures into a ValidationError.
func Validate(obj any) error {
	SetupValidator()
	return Translate(binding.Validator.ValidateStruct(obj))
}

// Translate converts validator and binding errors into a ValidationError keyed
// by JSON field name. Other errors pass through unchanged.
func Translate(err error) error {
	if err == nil {
		return nil
	}
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return err
	}
	verr := &apperr.ValidationError{}
	for _, fe := range fieldErrs {
		verr.Add(fe.Field(), message(fe))
	}
	return verr
}

func message(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "This field is required."
	case "work_order_code":
		return fmt.Sprintf("Work Order '%v' does not start with %s", fe.Value(), quoteList(model.WorkOrderPrefixes))
	case "oneof":
		return fmt.Sprintf("\"%v\" is not a valid choice.", fe.Value())
	case "min", "gte":
		return fmt.Sprintf("Ensure this value is greater than or equal to %s.", fe.Param())
	case "max", "lte":
		return fmt.Sprintf("Ensure this value is less than or equal to %s.", fe.Param())
	}
	return fmt.Sprintf("Failed on the '%s' rule.", fe.Tag())
}

func quoteList(items []string) string {
	quoted := make([]string, len(items))
	for i, s := range items {
		quoted[i] = "'" + s + "'"
	}
	if len(quoted) < 2 {
		return strings.Join(quoted, "")
	}
	return strings.Join(quoted[:len(quoted)-1], ", ") + ", or " + quoted[len(quoted)-1]
}
