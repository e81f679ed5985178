// Package schema holds the per-type metadata schemas and validates attribute
// trees against them. Schemas are loaded from YAML files and can be reloaded
// at runtime; validation returns the full list of violations rather than
// stopping at the first.
package schema

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/openfed/manage/pkg/model"
)

// FieldType is the declared type of a schema field.
type FieldType string

const (
	TypeString  FieldType = "string"
	TypeBoolean FieldType = "boolean"
	TypeNumber  FieldType = "number"
	TypeList    FieldType = "list"
	TypeMap     FieldType = "map"
)

// Field describes one attribute: its type, whether it is required and any
// value constraints.
type Field struct {
	Type     FieldType     `yaml:"type"`
	Required bool          `yaml:"required"`
	Pattern  string        `yaml:"pattern"`
	Enum     []string      `yaml:"enum"`
	Default  interface{}   `yaml:"default"`
	pattern  *regexp.Regexp
}

// Schema is the full description of one entity type.
type Schema struct {
	Type              string           `yaml:"type"`
	Fields            map[string]Field `yaml:"fields"`
	MetaDataFields    map[string]Field `yaml:"metaDataFields"`
	PatternFields     map[string]Field `yaml:"patternFields"`
	compiledPatterns  map[string]*regexp.Regexp
}

// Registry holds the loaded schemas, keyed by entity type.
type Registry struct {
	mu      sync.RWMutex
	schemas map[string]*Schema
	dir     string
}

// NewRegistry returns a registry pre-populated with the builtin schemas.
func NewRegistry() *Registry {
	registry := &Registry{schemas: map[string]*Schema{}}
	for _, s := range builtinSchemas() {
		registry.register(s)
	}
	return registry
}

// LoadDir replaces builtin schemas with any YAML files found in dir. Files
// that fail to parse abort the load; a partially applied schema set would
// validate records inconsistently.
func (r *Registry) LoadDir(dir string) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return fmt.Errorf("failed to read schema directory: %w", err)
	}
	var loaded []*Schema
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || (!strings.HasSuffix(name, ".yaml") && !strings.HasSuffix(name, ".yml")) {
			continue
		}
		raw, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			return fmt.Errorf("failed to read schema %s: %w", name, err)
		}
		var s Schema
		if err := yaml.Unmarshal(raw, &s); err != nil {
			return fmt.Errorf("failed to parse schema %s: %w", name, err)
		}
		if s.Type == "" {
			return fmt.Errorf("schema %s is missing a type", name)
		}
		loaded = append(loaded, &s)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, s := range loaded {
		r.registerLocked(s)
	}
	r.dir = dir
	return nil
}

func (r *Registry) register(s *Schema) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.registerLocked(s)
}

func (r *Registry) registerLocked(s *Schema) {
	s.compiledPatterns = map[string]*regexp.Regexp{}
	for pattern := range s.PatternFields {
		if compiled, err := regexp.Compile(pattern); err == nil {
			s.compiledPatterns[pattern] = compiled
		}
	}
	for name, field := range s.Fields {
		if field.Pattern != "" {
			field.pattern = regexp.MustCompile(field.Pattern)
			s.Fields[name] = field
		}
	}
	r.schemas[s.Type] = s
}

// Schema returns the schema for an entity type, nil when unknown. Revision
// kinds validate against their parent type's schema.
func (r *Registry) Schema(entityType string) *Schema {
	r.mu.RLock()
	defer r.mu.RUnlock()
	entityType = strings.TrimSuffix(entityType, model.RevisionSuffix)
	return r.schemas[entityType]
}

// Types returns the registered entity types, sorted.
func (r *Registry) Types() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	types := make([]string, 0, len(r.schemas))
	for t := range r.schemas {
		types = append(types, t)
	}
	sort.Strings(types)
	return types
}

// MetaDataFieldType resolves the declared type of a metaDataFields key,
// consulting exact names first and key patterns second.
func (r *Registry) MetaDataFieldType(entityType, key string) (FieldType, bool) {
	s := r.Schema(entityType)
	if s == nil {
		return "", false
	}
	if field, ok := s.MetaDataFields[key]; ok {
		return field.Type, true
	}
	for pattern, field := range s.PatternFields {
		if compiled, ok := s.compiledPatterns[pattern]; ok && compiled.MatchString(key) {
			return field.Type, true
		}
	}
	return "", false
}

// Template returns a skeleton attribute tree with schema defaults applied.
func (r *Registry) Template(entityType string) (map[string]interface{}, error) {
	s := r.Schema(entityType)
	if s == nil {
		return nil, fmt.Errorf("no schema for type %q", entityType)
	}
	data := map[string]interface{}{"metaDataFields": map[string]interface{}{}}
	for name, field := range s.Fields {
		if field.Default != nil {
			data[name] = field.Default
		}
	}
	return data, nil
}

// Validate checks an attribute tree against the schema for entityType and
// returns a *model.ValidationError listing every violation.
func (r *Registry) Validate(data map[string]interface{}, entityType string) error {
	s := r.Schema(entityType)
	if s == nil {
		return &model.ValidationError{Type: entityType, Messages: []string{fmt.Sprintf("no schema registered for type %q", entityType)}}
	}

	var messages []string
	for name, field := range s.Fields {
		value, present := data[name]
		if !present || value == nil {
			if field.Required {
				messages = append(messages, fmt.Sprintf("%s: required field is missing", name))
			}
			continue
		}
		messages = append(messages, checkValue(name, value, field)...)
	}

	if fields, ok := data["metaDataFields"].(map[string]interface{}); ok {
		messages = append(messages, s.validateMetaDataFields(fields)...)
	}

	sort.Strings(messages)
	if len(messages) > 0 {
		return &model.ValidationError{Type: entityType, Messages: messages}
	}
	return nil
}

func (s *Schema) validateMetaDataFields(fields map[string]interface{}) []string {
	var messages []string
	for key, value := range fields {
		field, known := s.MetaDataFields[key]
		if !known {
			for pattern, patternField := range s.PatternFields {
				if compiled, ok := s.compiledPatterns[pattern]; ok && compiled.MatchString(key) {
					field, known = patternField, true
					break
				}
			}
		}
		if !known {
			messages = append(messages, fmt.Sprintf("metaDataFields.%s: unknown field", key))
			continue
		}
		messages = append(messages, checkValue("metaDataFields."+key, value, field)...)
	}
	for key, field := range s.MetaDataFields {
		if _, present := fields[key]; field.Required && !present {
			messages = append(messages, fmt.Sprintf("metaDataFields.%s: required field is missing", key))
		}
	}
	return messages
}

func checkValue(name string, value interface{}, field Field) []string {
	var messages []string
	switch field.Type {
	case TypeString:
		s, ok := value.(string)
		if !ok {
			return []string{fmt.Sprintf("%s: expected string, got %T", name, value)}
		}
		if field.pattern != nil && !field.pattern.MatchString(s) {
			messages = append(messages, fmt.Sprintf("%s: value %q does not match %s", name, s, field.Pattern))
		}
		if len(field.Enum) > 0 && !contains(field.Enum, s) {
			messages = append(messages, fmt.Sprintf("%s: value %q not in %v", name, s, field.Enum))
		}
	case TypeBoolean:
		if _, ok := value.(bool); !ok {
			messages = append(messages, fmt.Sprintf("%s: expected boolean, got %T", name, value))
		}
	case TypeNumber:
		switch value.(type) {
		case int, int64, float64:
		default:
			messages = append(messages, fmt.Sprintf("%s: expected number, got %T", name, value))
		}
	case TypeList:
		if _, ok := value.([]interface{}); !ok {
			messages = append(messages, fmt.Sprintf("%s: expected list, got %T", name, value))
		}
	case TypeMap:
		if _, ok := value.(map[string]interface{}); !ok {
			messages = append(messages, fmt.Sprintf("%s: expected map, got %T", name, value))
		}
	}
	return messages
}

func contains(values []string, v string) bool {
	for _, candidate := range values {
		if candidate == v {
			return true
		}
	}
	return false
}
