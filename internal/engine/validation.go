package engine

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/armelgeek/better-query/internal/adapter"
	"github.com/armelgeek/better-query/internal/errs"
	"github.com/armelgeek/better-query/internal/schema"
)

// validateRecord checks a record against the resource's field descriptors.
// On create every required field must be present; on update only the fields
// actually supplied are checked. Unknown fields are rejected either way.
func validateRecord(def *schema.ResourceDefinition, record adapter.Record, partial bool) error {
	var fieldErrs []errs.FieldError

	for key := range record {
		if !def.HasField(key) {
			fieldErrs = append(fieldErrs, errs.FieldError{
				Field:   key,
				Message: fmt.Sprintf("unknown field for resource %s", def.Name),
			})
		}
	}

	for _, field := range def.Fields {
		value, present := record[field.Name]

		if !present || value == nil {
			if field.Required && !partial && !autoPopulated(field.Name) && field.Default == nil {
				fieldErrs = append(fieldErrs, errs.FieldError{
					Field:   field.Name,
					Message: "required field is missing",
				})
			}
			if present && value == nil && field.Required {
				fieldErrs = append(fieldErrs, errs.FieldError{
					Field:   field.Name,
					Message: "required field may not be null",
				})
			}
			continue
		}

		if msg := checkKind(field, value); msg != "" {
			fieldErrs = append(fieldErrs, errs.FieldError{Field: field.Name, Message: msg})
		}
	}

	if len(fieldErrs) > 0 {
		return &errs.ValidationError{Resource: def.Name, Errors: fieldErrs}
	}
	return nil
}

// autoPopulated reports whether the adapter fills this field itself, so its
// absence on create is not an error.
func autoPopulated(name string) bool {
	return name == "id" || name == "createdAt" || name == "updatedAt"
}

func checkKind(field schema.FieldDescriptor, value interface{}) string {
	switch field.Kind {
	case schema.KindString:
		if _, ok := value.(string); !ok {
			return fmt.Sprintf("expected string, got %T", value)
		}
	case schema.KindNumber:
		switch value.(type) {
		case float64, float32, int, int32, int64:
		default:
			return fmt.Sprintf("expected number, got %T", value)
		}
	case schema.KindBoolean:
		if _, ok := value.(bool); !ok {
			return fmt.Sprintf("expected boolean, got %T", value)
		}
	case schema.KindDate:
		switch v := value.(type) {
		case time.Time:
		case string:
			if _, err := time.Parse(time.RFC3339Nano, v); err != nil {
				if _, err := time.Parse(time.RFC3339, v); err != nil {
					return "expected RFC 3339 date string"
				}
			}
		default:
			return fmt.Sprintf("expected date, got %T", value)
		}
	case schema.KindJSON:
		if s, ok := value.(string); ok {
			if !json.Valid([]byte(s)) {
				return "expected valid JSON"
			}
		}
		// Maps, slices and other composite values marshal at write time.
	case schema.KindReference:
		if _, ok := value.(string); !ok {
			return fmt.Sprintf("expected reference id string, got %T", value)
		}
	}
	return ""
}
