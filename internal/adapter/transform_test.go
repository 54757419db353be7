package adapter

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/armelgeek/better-query/internal/query"
	"github.com/armelgeek/better-query/internal/schema"
)

func TestTransformValue_DateRoundTrip(t *testing.T) {
	instant := time.Date(2024, 1, 15, 10, 0, 0, 0, time.UTC)

	stored, err := TransformValueOut(schema.KindDate, instant)
	require.NoError(t, err)
	assert.Equal(t, "2024-01-15T10:00:00.000000000Z", stored)

	back, err := TransformValueIn(schema.KindDate, stored)
	require.NoError(t, err)
	assert.True(t, instant.Equal(back.(time.Time)))
}

func TestTransformValue_DateWithNanos(t *testing.T) {
	instant := time.Date(2024, 6, 1, 12, 30, 45, 123456789, time.UTC)

	stored, err := TransformValueOut(schema.KindDate, instant)
	require.NoError(t, err)

	back, err := TransformValueIn(schema.KindDate, stored)
	require.NoError(t, err)
	assert.True(t, instant.Equal(back.(time.Time)))
}

func TestTransformValue_DateStringIsNormalized(t *testing.T) {
	stored, err := TransformValueOut(schema.KindDate, "2024-01-15T10:00:00.5Z")
	require.NoError(t, err)
	assert.Equal(t, "2024-01-15T10:00:00.500000000Z", stored)

	stored, err = TransformValueOut(schema.KindDate, "2024-01-15T11:00:00+01:00")
	require.NoError(t, err)
	assert.Equal(t, "2024-01-15T10:00:00.000000000Z", stored)

	_, err = TransformValueOut(schema.KindDate, "not-a-date")
	assert.Error(t, err)
}

func TestTransformValue_DateStoredOrderIsChronological(t *testing.T) {
	// Stored dates are TEXT columns; the stored strings must sort the same
	// way the instants do or range predicates and ORDER BY give wrong
	// results on sub-second ties.
	instants := []time.Time{
		time.Date(2024, 1, 15, 10, 5, 0, 0, time.UTC),
		time.Date(2024, 1, 15, 10, 5, 0, 123000000, time.UTC),
		time.Date(2024, 1, 15, 10, 5, 0, 500000000, time.UTC),
		time.Date(2024, 1, 15, 10, 5, 0, 510000000, time.UTC),
		time.Date(2024, 1, 15, 10, 5, 1, 0, time.UTC),
	}

	var prev string
	for i, instant := range instants {
		stored, err := TransformValueOut(schema.KindDate, instant)
		require.NoError(t, err)
		s := stored.(string)
		if i > 0 {
			assert.Less(t, prev, s, "stored order diverges from chronological at %v", instant)
		}
		prev = s
	}
}

func TestTransformValueIn_AcceptsBothDateWidths(t *testing.T) {
	for _, stored := range []string{"2024-01-15T10:05:00Z", "2024-01-15T10:05:00.000000000Z"} {
		back, err := TransformValueIn(schema.KindDate, stored)
		require.NoError(t, err)
		assert.True(t, time.Date(2024, 1, 15, 10, 5, 0, 0, time.UTC).Equal(back.(time.Time)))
	}
}

func TestTransformValue_JSONStringMustBeValid(t *testing.T) {
	stored, err := TransformValueOut(schema.KindJSON, `{"a":1}`)
	require.NoError(t, err)
	assert.Equal(t, `{"a":1}`, stored)

	stored, err = TransformValueOut(schema.KindJSON, `"hello"`)
	require.NoError(t, err)
	assert.Equal(t, `"hello"`, stored)

	_, err = TransformValueOut(schema.KindJSON, "hello")
	assert.Error(t, err)
}

func TestTransformValue_JSONArrayRoundTrip(t *testing.T) {
	value := []interface{}{"a", "b"}

	stored, err := TransformValueOut(schema.KindJSON, value)
	require.NoError(t, err)
	assert.Equal(t, `["a","b"]`, stored)

	back, err := TransformValueIn(schema.KindJSON, stored)
	require.NoError(t, err)
	assert.Equal(t, value, back)
}

func TestTransformValue_JSONObjectRoundTrip(t *testing.T) {
	value := map[string]interface{}{"nested": map[string]interface{}{"n": float64(1)}}

	stored, err := TransformValueOut(schema.KindJSON, value)
	require.NoError(t, err)

	back, err := TransformValueIn(schema.KindJSON, stored)
	require.NoError(t, err)
	assert.Equal(t, value, back)
}

func TestTransformValue_NilPassthrough(t *testing.T) {
	for _, kind := range []schema.FieldKind{schema.KindString, schema.KindDate, schema.KindJSON} {
		out, err := TransformValueOut(kind, nil)
		require.NoError(t, err)
		assert.Nil(t, out)

		in, err := TransformValueIn(kind, nil)
		require.NoError(t, err)
		assert.Nil(t, in)
	}
}

func TestTransformValueIn_NumberCoercion(t *testing.T) {
	out, err := TransformValueIn(schema.KindNumber, int64(42))
	require.NoError(t, err)
	assert.Equal(t, float64(42), out)

	out, err = TransformValueIn(schema.KindNumber, "3.5")
	require.NoError(t, err)
	assert.Equal(t, 3.5, out)
}

func TestTransformValueIn_BadDate(t *testing.T) {
	_, err := TransformValueIn(schema.KindDate, "not-a-date")
	assert.Error(t, err)
}

func TestTransformRecord_RoundTrip(t *testing.T) {
	def := schema.NewResourceDefinition("task",
		schema.FieldDescriptor{Name: "title", Kind: schema.KindString},
		schema.FieldDescriptor{Name: "dueDate", Kind: schema.KindDate},
		schema.FieldDescriptor{Name: "tags", Kind: schema.KindJSON},
	)

	due := time.Date(2024, 1, 15, 10, 0, 0, 0, time.UTC)
	record := Record{
		"title":   "write tests",
		"dueDate": due,
		"tags":    []interface{}{"a", "b"},
	}

	stored, err := TransformRecordOut(def, record)
	require.NoError(t, err)
	assert.Equal(t, "2024-01-15T10:00:00.000000000Z", stored["dueDate"])
	assert.Equal(t, `["a","b"]`, stored["tags"])

	back, err := TransformRecordIn(def, stored)
	require.NoError(t, err)
	assert.True(t, due.Equal(back["dueDate"].(time.Time)))
	assert.Equal(t, []interface{}{"a", "b"}, back["tags"])
	assert.Equal(t, "write tests", back["title"])
}

func TestTransformWhere_DateCondition(t *testing.T) {
	def := schema.NewResourceDefinition("job",
		schema.FieldDescriptor{Name: "nextRunAt", Kind: schema.KindDate},
	)

	now := time.Date(2024, 3, 1, 8, 0, 0, 0, time.UTC)
	out, err := transformWhere(def, []query.Condition{
		{Field: "nextRunAt", Operator: query.OpLessThanOrEqual, Value: now},
	})
	require.NoError(t, err)
	assert.Equal(t, "2024-03-01T08:00:00.000000000Z", out[0].Value)
}
