package outbox

import (
	"fmt"
	"math"
	"sort"
	"strings"
	"sync"
)

// SchemaVersionKey optionally pins the payload schema version a producer wrote against.
const SchemaVersionKey = "_schema_version"

type FieldType string

const (
	FieldAny     FieldType = "any"
	FieldString  FieldType = "string"
	FieldNumber  FieldType = "number"
	FieldInteger FieldType = "integer"
	FieldBool    FieldType = "bool"
	FieldObject  FieldType = "object"
	FieldArray   FieldType = "array"
)

// Schema describes the payload of one target entity.
type Schema struct {
	Entity   string
	Version  int
	Fields   map[string]FieldType
	Required []string
	// AllowExtra accepts payload keys not listed in Fields.
	AllowExtra bool
}

// SchemaRegistry validates payloads at the dispatch boundary.
type SchemaRegistry struct {
	mu      sync.RWMutex
	schemas map[string]Schema
	// AllowUnregistered passes payloads of entities without a schema through untouched.
	AllowUnregistered bool
}

func NewSchemaRegistry(schemas ...Schema) *SchemaRegistry {
	r := &SchemaRegistry{schemas: make(map[string]Schema)}
	for _, s := range schemas {
		r.Register(s)
	}
	return r
}

// DefaultSchemaRegistry knows the entities the Odoo sync writes.
func DefaultSchemaRegistry() *SchemaRegistry {
	return NewSchemaRegistry(PartnerSchema)
}

var PartnerSchema = Schema{
	Entity:  "res.partner",
	Version: 1,
	Fields: map[string]FieldType{
		"name":       FieldString,
		"email":      FieldString,
		"phone":      FieldString,
		"is_company": FieldBool,
		"odoo_id":    FieldInteger,
		"id":         FieldAny,
	},
	Required: []string{"name"},
}

func (r *SchemaRegistry) Register(s Schema) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.schemas[s.Entity] = s
}

func (r *SchemaRegistry) Lookup(entity string) (Schema, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.schemas[entity]
	return s, ok
}

// Validate checks payload against the schema of entity. Deletes only need an
// identifier, which the dispatcher checks itself.
func (r *SchemaRegistry) Validate(entity string, op Operation, payload Payload) error {
	schema, ok := r.Lookup(entity)
	if !ok {
		if r.AllowUnregistered {
			return nil
		}
		return fmt.Errorf("%w %q", ErrUnknownEntity, entity)
	}

	if err := schema.checkVersion(payload); err != nil {
		return err
	}
	if op == OperationDelete {
		return nil
	}

	return schema.Validate(payload)
}

func (s Schema) checkVersion(payload Payload) error {
	raw, ok := payload[SchemaVersionKey]
	if !ok {
		return nil
	}
	v, ok := asInteger(raw)
	if !ok || v != int64(s.Version) {
		return fmt.Errorf("%w: %s payload is version %v, worker knows version %d", ErrInvalidPayload, s.Entity, raw, s.Version)
	}
	return nil
}

func (s Schema) Validate(payload Payload) error {
	var problems []string
	for _, key := range s.Required {
		if v, ok := payload[key]; !ok || v == nil {
			problems = append(problems, fmt.Sprintf("missing %q", key))
		}
	}

	keys := make([]string, 0, len(payload))
	for key := range payload {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	for _, key := range keys {
		if key == SchemaVersionKey {
			continue
		}
		ft, known := s.Fields[key]
		if !known {
			if !s.AllowExtra {
				problems = append(problems, fmt.Sprintf("unexpected field %q", key))
			}
			continue
		}
		// null clears a field downstream.
		if payload[key] == nil {
			continue
		}
		if !ft.accepts(payload[key]) {
			problems = append(problems, fmt.Sprintf("field %q is %T, want %s", key, payload[key], ft))
		}
	}

	if len(problems) > 0 {
		return fmt.Errorf("%w: %s v%d: %s", ErrInvalidPayload, s.Entity, s.Version, strings.Join(problems, ", "))
	}
	return nil
}

func (ft FieldType) accepts(v any) bool {
	switch ft {
	case FieldAny:
		return true
	case FieldString:
		_, ok := v.(string)
		return ok
	case FieldNumber:
		_, ok := asFloat(v)
		return ok
	case FieldInteger:
		_, ok := asInteger(v)
		return ok
	case FieldBool:
		_, ok := v.(bool)
		return ok
	case FieldObject:
		switch v.(type) {
		case map[string]any, Payload:
			return true
		}
		return false
	case FieldArray:
		_, ok := v.([]any)
		return ok
	default:
		return false
	}
}

func asFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	}
	return 0, false
}

// asInteger accepts whole floats since jsonb numbers decode as float64.
func asInteger(v any) (int64, bool) {
	switch n := v.(type) {
	case int:
		return int64(n), true
	case int32:
		return int64(n), true
	case int64:
		return n, true
	case float64:
		if n == math.Trunc(n) && !math.IsInf(n, 0) {
			return int64(n), true
		}
	case float32:
		if f := float64(n); f == math.Trunc(f) && !math.IsInf(f, 0) {
			return int64(f), true
		}
	}
	return 0, false
}
