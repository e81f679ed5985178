package hooks

import (
	"context"
	"strconv"

	"github.com/openfed/manage/pkg/model"
	"github.com/openfed/manage/pkg/schema"
)

// TypeSafetyHook coerces metaDataFields values to the types the schema
// declares before validation runs, so stringified booleans and numbers
// arriving from imports or older clients validate and export correctly.
type TypeSafetyHook struct {
	NoopHook
	registry *schema.Registry
}

// NewTypeSafetyHook creates the coercion hook backed by the schema registry.
func NewTypeSafetyHook(registry *schema.Registry) *TypeSafetyHook {
	return &TypeSafetyHook{registry: registry}
}

func (h *TypeSafetyHook) AppliesTo(record *model.MetaData) bool {
	return h.registry.Schema(record.Type) != nil
}

func (h *TypeSafetyHook) PreValidate(_ context.Context, record *model.MetaData) (*model.MetaData, error) {
	fields := record.MetaDataFields()
	for key, value := range fields {
		fieldType, ok := h.registry.MetaDataFieldType(record.Type, key)
		if !ok {
			continue
		}
		if coerced, changed := coerce(value, fieldType); changed {
			fields[key] = coerced
		}
	}
	return record, nil
}

func coerce(value interface{}, fieldType schema.FieldType) (interface{}, bool) {
	switch fieldType {
	case schema.TypeBoolean:
		switch t := value.(type) {
		case string:
			switch t {
			case "true", "1":
				return true, true
			case "false", "0":
				return false, true
			}
		case float64:
			return t != 0, true
		case int:
			return t != 0, true
		}
	case schema.TypeNumber:
		if s, ok := value.(string); ok {
			if n, err := strconv.Atoi(s); err == nil {
				return n, true
			}
			if f, err := strconv.ParseFloat(s, 64); err == nil {
				return f, true
			}
		}
	case schema.TypeString:
		switch t := value.(type) {
		case bool:
			if t {
				return "1", true
			}
			return "0", true
		case int:
			return strconv.Itoa(t), true
		case float64:
			if t == float64(int64(t)) {
				return strconv.FormatInt(int64(t), 10), true
			}
			return strconv.FormatFloat(t, 'f', -1, 64), true
		}
	}
	return value, false
}
