package db

import (
	"errors"
	"fmt"
	"strconv"
)

// FieldType is the FT schema type of an indexed hash field.
type FieldType int

const (
	// FieldTag is an exact-match TAG field.
	FieldTag FieldType = iota
	// FieldNumeric is a NUMERIC field.
	FieldNumeric
	// FieldVector is a FLOAT32 HNSW VECTOR field.
	FieldVector
)

// Distance is the vector distance metric.
type Distance string

const (
	// DistanceCosine is cosine distance; KNN scores convert it to similarity.
	DistanceCosine Distance = "COSINE"
	// DistanceL2 is Euclidean distance.
	DistanceL2 Distance = "L2"
)

// HNSW holds graph parameters for a vector field. Zero values leave the
// server defaults in place.
type HNSW struct {
	M           int
	EFConstruct int
}

// Field is one entry of the index SCHEMA.
type Field struct {
	Name  string
	Alias string
	Type  FieldType

	Dim      int
	Distance Distance
	HNSW     HNSW
}

// IndexDefinition describes an FT index over hashes with the given prefixes.
type IndexDefinition struct {
	Name     string
	Prefixes []string
	Fields   []Field
}

// Validate checks names, duplicates and vector dimensions.
func (d *IndexDefinition) Validate() error {
	if !IsValidIdentifier(d.Name) {
		return fmt.Errorf("invalid index name %q", d.Name)
	}
	if len(d.Fields) == 0 {
		return errors.New("index has no fields")
	}

	seen := make(map[string]bool, len(d.Fields))
	for i := range d.Fields {
		f := &d.Fields[i]
		if f.Name == "" {
			return fmt.Errorf("field %d has no name", i)
		}
		key := f.Name
		if f.Alias != "" {
			key = f.Alias
		}
		if seen[key] {
			return fmt.Errorf("duplicate field %q", key)
		}
		seen[key] = true

		if f.Type == FieldVector && f.Dim <= 0 {
			return fmt.Errorf("vector field %q needs a positive dimension", f.Name)
		}
	}
	return nil
}

// CreateArgs renders the FT.CREATE arguments that follow the command name.
func (d *IndexDefinition) CreateArgs() []string {
	args := []string{d.Name, "ON", "HASH"}
	if len(d.Prefixes) > 0 {
		args = append(args, "PREFIX", strconv.Itoa(len(d.Prefixes)))
		args = append(args, d.Prefixes...)
	}
	args = append(args, "SCHEMA")

	for i := range d.Fields {
		f := &d.Fields[i]
		args = append(args, f.Name)
		if f.Alias != "" {
			args = append(args, "AS", f.Alias)
		}
		switch f.Type {
		case FieldTag:
			args = append(args, "TAG")
		case FieldNumeric:
			args = append(args, "NUMERIC")
		case FieldVector:
			args = append(args, vectorArgs(f)...)
		}
	}
	return args
}

func vectorArgs(f *Field) []string {
	distance := f.Distance
	if distance == "" {
		distance = DistanceCosine
	}
	attrs := []string{
		"TYPE", "FLOAT32",
		"DIM", strconv.Itoa(f.Dim),
		"DISTANCE_METRIC", string(distance),
	}
	if f.HNSW.M > 0 {
		attrs = append(attrs, "M", strconv.Itoa(f.HNSW.M))
	}
	if f.HNSW.EFConstruct > 0 {
		attrs = append(attrs, "EF_CONSTRUCTION", strconv.Itoa(f.HNSW.EFConstruct))
	}
	return append([]string{"VECTOR", "HNSW", strconv.Itoa(len(attrs))}, attrs...)
}

// IsValidIdentifier reports whether s is non-empty and made of [a-zA-Z0-9_:-].
func IsValidIdentifier(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
		case r == '_' || r == ':' || r == '-':
		default:
			return false
		}
	}
	return true
}

// SchemaBuilder assembles an IndexDefinition field by field.
type SchemaBuilder struct {
	def IndexDefinition
}

// NewIndex starts a definition for the named index.
func NewIndex(name string) *SchemaBuilder {
	return &SchemaBuilder{def: IndexDefinition{Name: name}}
}

// Prefix restricts the index to keys with the given prefixes.
func (b *SchemaBuilder) Prefix(prefixes ...string) *SchemaBuilder {
	b.def.Prefixes = append(b.def.Prefixes, prefixes...)
	return b
}

// Tag adds a TAG field.
func (b *SchemaBuilder) Tag(name string) *SchemaBuilder {
	b.def.Fields = append(b.def.Fields, Field{Name: name, Type: FieldTag})
	return b
}

// Numeric adds a NUMERIC field.
func (b *SchemaBuilder) Numeric(name string) *SchemaBuilder {
	b.def.Fields = append(b.def.Fields, Field{Name: name, Type: FieldNumeric})
	return b
}

// Vector adds an HNSW vector field stored under name and queried as alias.
func (b *SchemaBuilder) Vector(name, alias string, dim int, distance Distance, hnsw HNSW) *SchemaBuilder {
	b.def.Fields = append(b.def.Fields, Field{
		Name:     name,
		Alias:    alias,
		Type:     FieldVector,
		Dim:      dim,
		Distance: distance,
		HNSW:     hnsw,
	})
	return b
}

// Build validates and returns the definition.
func (b *SchemaBuilder) Build() (*IndexDefinition, error) {
	if err := b.def.Validate(); err != nil {
		return nil, err
	}
	def := b.def
	return &def, nil
}
