package adapter

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/armelgeek/better-query/internal/query"
	"github.com/armelgeek/better-query/internal/schema"
)

// Value transforms bridge the gap between field kinds and what the backend
// stores natively: dates travel as RFC3339 strings and json values as
// encoded strings, so transformIn(transformOut(x)) == x for every supported
// kind.

// StoredDateLayout is fixed-width so TEXT comparison of stored dates matches
// chronological order. RFC3339Nano trims trailing zeros and omits an empty
// fraction, which sorts "10:05:00Z" after "10:05:00.123Z".
const StoredDateLayout = "2006-01-02T15:04:05.000000000Z07:00"

// TransformValueOut converts a field value to its storable representation.
func TransformValueOut(kind schema.FieldKind, value interface{}) (interface{}, error) {
	if value == nil {
		return nil, nil
	}

	switch kind {
	case schema.KindDate:
		switch v := value.(type) {
		case time.Time:
			return v.UTC().Format(StoredDateLayout), nil
		case string:
			t, err := time.Parse(time.RFC3339Nano, v)
			if err != nil {
				return nil, fmt.Errorf("cannot parse date value %q: %w", v, err)
			}
			return t.UTC().Format(StoredDateLayout), nil
		default:
			return nil, fmt.Errorf("date field requires time.Time or string, got %T", value)
		}

	case schema.KindJSON:
		switch v := value.(type) {
		case string:
			// Already encoded.
			if !json.Valid([]byte(v)) {
				return nil, fmt.Errorf("json field string is not valid JSON: %q", v)
			}
			return v, nil
		default:
			encoded, err := json.Marshal(value)
			if err != nil {
				return nil, fmt.Errorf("cannot encode json field: %w", err)
			}
			return string(encoded), nil
		}

	default:
		return value, nil
	}
}

// TransformValueIn converts a stored value back to the field's kind.
func TransformValueIn(kind schema.FieldKind, value interface{}) (interface{}, error) {
	if value == nil {
		return nil, nil
	}

	if b, ok := value.([]byte); ok {
		value = string(b)
	}

	switch kind {
	case schema.KindDate:
		switch v := value.(type) {
		case time.Time:
			return v.UTC(), nil
		case string:
			t, err := time.Parse(time.RFC3339Nano, v)
			if err != nil {
				return nil, fmt.Errorf("cannot parse date value %q: %w", v, err)
			}
			return t, nil
		default:
			return nil, fmt.Errorf("unexpected stored type %T for date field", value)
		}

	case schema.KindJSON:
		s, ok := value.(string)
		if !ok {
			return nil, fmt.Errorf("unexpected stored type %T for json field", value)
		}
		var decoded interface{}
		if err := json.Unmarshal([]byte(s), &decoded); err != nil {
			return nil, fmt.Errorf("cannot decode json field: %w", err)
		}
		return decoded, nil

	case schema.KindNumber:
		switch v := value.(type) {
		case int64:
			return float64(v), nil
		case float64:
			return v, nil
		case string:
			n, err := strconv.ParseFloat(v, 64)
			if err != nil {
				return nil, fmt.Errorf("cannot parse number value %q: %w", v, err)
			}
			return n, nil
		default:
			return value, nil
		}

	case schema.KindBoolean:
		switch v := value.(type) {
		case bool:
			return v, nil
		case int64:
			return v != 0, nil
		default:
			return value, nil
		}

	default:
		return value, nil
	}
}

// TransformRecordOut applies outbound transforms to every known field of a
// record, in place on a copy.
func TransformRecordOut(def *schema.ResourceDefinition, record Record) (Record, error) {
	out := make(Record, len(record))
	for name, value := range record {
		field, ok := def.Field(name)
		if !ok {
			continue
		}
		transformed, err := TransformValueOut(field.Kind, value)
		if err != nil {
			return nil, fmt.Errorf("field %s: %w", name, err)
		}
		out[name] = transformed
	}
	return out, nil
}

// transformWhere applies outbound transforms to condition values, so
// predicates compare against the stored representation. IN/NOT IN values are
// transformed element-wise.
func transformWhere(def *schema.ResourceDefinition, where []query.Condition) ([]query.Condition, error) {
	if len(where) == 0 {
		return where, nil
	}

	out := make([]query.Condition, len(where))
	for i, cond := range where {
		out[i] = cond
		field, ok := def.Field(cond.Field)
		if !ok {
			continue
		}

		if cond.Operator == query.OpIn || cond.Operator == query.OpNotIn {
			if values, ok := cond.Value.([]interface{}); ok {
				transformed := make([]interface{}, len(values))
				for j, v := range values {
					tv, err := TransformValueOut(field.Kind, v)
					if err != nil {
						return nil, fmt.Errorf("field %s: %w", cond.Field, err)
					}
					transformed[j] = tv
				}
				out[i].Value = transformed
			}
			continue
		}

		transformed, err := TransformValueOut(field.Kind, cond.Value)
		if err != nil {
			return nil, fmt.Errorf("field %s: %w", cond.Field, err)
		}
		out[i].Value = transformed
	}
	return out, nil
}

// TransformRecordIn applies inbound transforms to a row read from storage.
func TransformRecordIn(def *schema.ResourceDefinition, record Record) (Record, error) {
	for name, value := range record {
		field, ok := def.Field(name)
		if !ok {
			continue
		}
		transformed, err := TransformValueIn(field.Kind, value)
		if err != nil {
			return nil, fmt.Errorf("field %s: %w", name, err)
		}
		record[name] = transformed
	}
	return record, nil
}
