package schema

import "fmt"

// validateDefinition performs structural validation of a single resource
// definition at registration time. Cross-resource checks (reference targets,
// relationship keys) run later in Registry.ValidateAll.
func validateDefinition(def *ResourceDefinition) error {
	if def.Name == "" {
		return fmt.Errorf("resource name is required")
	}
	if def.TableName == "" {
		return fmt.Errorf("table name is required")
	}
	if len(def.Fields) == 0 {
		return fmt.Errorf("resource must declare at least one field")
	}

	seen := make(map[string]bool, len(def.Fields))
	for _, f := range def.Fields {
		if f.Name == "" {
			return fmt.Errorf("field name is required")
		}
		if seen[f.Name] {
			return fmt.Errorf("duplicate field %s", f.Name)
		}
		seen[f.Name] = true

		if err := validateField(&f); err != nil {
			return fmt.Errorf("field %s: %w", f.Name, err)
		}
	}

	if !seen["id"] {
		return fmt.Errorf("resource must declare an id field")
	}

	return nil
}

func validateField(f *FieldDescriptor) error {
	switch f.Kind {
	case KindString, KindNumber, KindBoolean, KindDate, KindJSON:
		if f.Reference != nil && f.Kind != KindString && f.Kind != KindNumber {
			return fmt.Errorf("reference fields must be string or number, got %s", f.Kind)
		}
	case KindReference:
		if f.Reference == nil {
			return fmt.Errorf("reference kind requires a reference target")
		}
	default:
		return fmt.Errorf("unknown field kind %d", f.Kind)
	}

	if f.Reference != nil {
		if f.Reference.TargetResource == "" {
			return fmt.Errorf("reference target resource is required")
		}
		if f.Reference.TargetField == "" {
			return fmt.Errorf("reference target field is required")
		}
	}

	if f.Default != nil {
		if err := validateDefault(f); err != nil {
			return err
		}
	}

	return nil
}

// validateDefault rejects defaults whose Go type cannot satisfy the field
// kind. Date and json defaults are not type-checked here; they pass through
// the value transform at write time.
func validateDefault(f *FieldDescriptor) error {
	switch f.Kind {
	case KindString, KindReference:
		if _, ok := f.Default.(string); !ok {
			return fmt.Errorf("default for %s field must be a string", f.Kind)
		}
	case KindNumber:
		switch f.Default.(type) {
		case int, int32, int64, float32, float64:
		default:
			return fmt.Errorf("default for number field must be numeric")
		}
	case KindBoolean:
		if _, ok := f.Default.(bool); !ok {
			return fmt.Errorf("default for boolean field must be a bool")
		}
	}
	return nil
}
