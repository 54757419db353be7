// Package schema provides the field and relationship descriptors that drive
// generated CRUD operations. Resource definitions are built explicitly at
// startup and validated once; they are never mutated afterwards.
package schema

import (
	"fmt"
	"strings"
)

// FieldKind represents the storage-independent kind of a field.
type FieldKind int

const (
	KindString FieldKind = iota
	KindNumber
	KindBoolean
	KindDate
	KindJSON
	KindReference
)

// String returns the string representation of the field kind.
func (k FieldKind) String() string {
	switch k {
	case KindString:
		return "string"
	case KindNumber:
		return "number"
	case KindBoolean:
		return "boolean"
	case KindDate:
		return "date"
	case KindJSON:
		return "json"
	case KindReference:
		return "reference"
	default:
		return "unknown"
	}
}

// ParseFieldKind converts a string to a FieldKind.
func ParseFieldKind(s string) (FieldKind, error) {
	switch s {
	case "string":
		return KindString, nil
	case "number":
		return KindNumber, nil
	case "boolean":
		return KindBoolean, nil
	case "date":
		return KindDate, nil
	case "json":
		return KindJSON, nil
	case "reference":
		return KindReference, nil
	default:
		return 0, fmt.Errorf("unknown field kind: %s", s)
	}
}

// CascadeAction represents the referential action taken when a referenced
// record is deleted.
type CascadeAction int

const (
	CascadeRestrict CascadeAction = iota
	CascadeCascade
	CascadeSetNull
)

// String returns the string representation of the cascade action.
func (c CascadeAction) String() string {
	switch c {
	case CascadeRestrict:
		return "restrict"
	case CascadeCascade:
		return "cascade"
	case CascadeSetNull:
		return "set_null"
	default:
		return "unknown"
	}
}

// Reference points a field at another resource's field.
type Reference struct {
	TargetResource string
	TargetField    string
	OnDelete       CascadeAction
}

// FieldDescriptor describes a single field of a resource. Descriptors are
// immutable after registration.
type FieldDescriptor struct {
	Name      string
	Kind      FieldKind
	Required  bool
	Unique    bool
	Default   interface{}
	Reference *Reference
}

// ResourceDefinition describes a named resource: its table and its ordered
// field list. The id, createdAt and updatedAt fields are always present.
type ResourceDefinition struct {
	Name      string
	TableName string
	Fields    []FieldDescriptor

	index map[string]int
}

// NewResourceDefinition builds a resource definition from the given fields,
// prepending the auto-managed id/createdAt/updatedAt fields when the caller
// did not declare them. The table name defaults to the pluralized snake_case
// resource name.
func NewResourceDefinition(name string, fields ...FieldDescriptor) *ResourceDefinition {
	def := &ResourceDefinition{
		Name:      name,
		TableName: Pluralize(ToSnakeCase(name)),
	}

	declared := make(map[string]bool, len(fields))
	for _, f := range fields {
		declared[f.Name] = true
	}

	if !declared["id"] {
		def.Fields = append(def.Fields, FieldDescriptor{Name: "id", Kind: KindString, Required: true, Unique: true})
	}
	def.Fields = append(def.Fields, fields...)
	if !declared["createdAt"] {
		def.Fields = append(def.Fields, FieldDescriptor{Name: "createdAt", Kind: KindDate, Required: true})
	}
	if !declared["updatedAt"] {
		def.Fields = append(def.Fields, FieldDescriptor{Name: "updatedAt", Kind: KindDate, Required: true})
	}

	def.buildIndex()
	return def
}

// WithTable overrides the default table name.
func (d *ResourceDefinition) WithTable(table string) *ResourceDefinition {
	d.TableName = table
	return d
}

func (d *ResourceDefinition) buildIndex() {
	d.index = make(map[string]int, len(d.Fields))
	for i, f := range d.Fields {
		d.index[f.Name] = i
	}
}

// Field returns the descriptor for the named field.
func (d *ResourceDefinition) Field(name string) (*FieldDescriptor, bool) {
	if d.index == nil {
		d.buildIndex()
	}
	i, ok := d.index[name]
	if !ok {
		return nil, false
	}
	return &d.Fields[i], true
}

// HasField returns true if the resource declares the named field.
func (d *ResourceDefinition) HasField(name string) bool {
	_, ok := d.Field(name)
	return ok
}

// FieldNames returns the field names in declaration order.
func (d *ResourceDefinition) FieldNames() []string {
	names := make([]string, len(d.Fields))
	for i, f := range d.Fields {
		names[i] = f.Name
	}
	return names
}

// RelationKind represents the kind of a declared relationship.
type RelationKind int

const (
	HasOne RelationKind = iota
	HasMany
	BelongsTo
	BelongsToMany
)

// String returns the string representation of the relation kind.
func (r RelationKind) String() string {
	switch r {
	case HasOne:
		return "hasOne"
	case HasMany:
		return "hasMany"
	case BelongsTo:
		return "belongsTo"
	case BelongsToMany:
		return "belongsToMany"
	default:
		return "unknown"
	}
}

// IsToMany returns true for relation kinds that produce a collection.
func (r RelationKind) IsToMany() bool {
	return r == HasMany || r == BelongsToMany
}

// DefaultMaxDepth bounds nested include expansion when a relationship does
// not declare its own limit.
const DefaultMaxDepth = 3

// RelationshipDescriptor describes a declared association between two
// resources.
//
// For hasOne/hasMany, ForeignKey names the field on the target resource
// pointing back at TargetKey on the source. For belongsTo, ForeignKey names
// the field on the source resource pointing at TargetKey on the target.
// belongsToMany pairs ids through JunctionTable: SourceKey holds the source
// id, TargetForeignKey the target id.
type RelationshipDescriptor struct {
	Kind           RelationKind
	TargetResource string
	ForeignKey     string
	TargetKey      string

	JunctionTable    string
	SourceKey        string
	TargetForeignKey string

	MaxDepth int
}

// EffectiveMaxDepth returns the relationship's depth bound, falling back to
// DefaultMaxDepth.
func (r *RelationshipDescriptor) EffectiveMaxDepth() int {
	if r.MaxDepth > 0 {
		return r.MaxDepth
	}
	return DefaultMaxDepth
}

// ToSnakeCase converts a string to snake_case.
func ToSnakeCase(s string) string {
	var result []rune
	runes := []rune(s)

	for i, r := range runes {
		if i > 0 && r >= 'A' && r <= 'Z' {
			prev := runes[i-1]
			if prev >= 'a' && prev <= 'z' {
				result = append(result, '_')
			} else if i+1 < len(runes) && runes[i+1] >= 'a' && runes[i+1] <= 'z' {
				result = append(result, '_')
			}
		}
		if r >= 'A' && r <= 'Z' {
			result = append(result, r+('a'-'A'))
		} else {
			result = append(result, r)
		}
	}
	return string(result)
}

// Pluralize adds simple English pluralization.
func Pluralize(s string) string {
	if strings.HasSuffix(s, "s") ||
		strings.HasSuffix(s, "x") ||
		strings.HasSuffix(s, "z") {
		return s + "es"
	}
	if strings.HasSuffix(s, "y") {
		return s[:len(s)-1] + "ies"
	}
	return s + "s"
}
