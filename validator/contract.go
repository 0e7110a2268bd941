package validator

import (
	"fmt"
)

// FieldType is the declared JSON type of a contract field.
type FieldType string

const (
	TypeAny     FieldType = "any"
	TypeString  FieldType = "string"
	TypeNumber  FieldType = "number"
	TypeBoolean FieldType = "boolean"
	TypeObject  FieldType = "object"
	TypeArray   FieldType = "array"
)

// FieldSpec declares one field a component expects in its data or parameters.
type FieldSpec struct {
	Name     string    `json:"name"`
	Type     FieldType `json:"type"`
	Required bool      `json:"required"`
}

// Contract is the declared data requirement of a component type.
type Contract struct {
	ComponentType string      `json:"componentType"`
	Fields        []FieldSpec `json:"fields"`
}

// CheckContract compares values against the contract. Missing required fields and
// type mismatches on required fields are errors, mismatches on optional fields
// are warnings.
func CheckContract(contract Contract, values map[string]any) Report {
	b := newBuilder()
	for _, f := range contract.Fields {
		val, ok := values[f.Name]
		if !ok || val == nil {
			if f.Required {
				b.errorf(f.Name, "required field is missing")
				b.suggest("bind a data source or parameter to %s", f.Name)
			}
			continue
		}
		if got := typeOf(val); !matches(f.Type, got) {
			if f.Required {
				b.errorf(f.Name, "expected %s, got %s", f.Type, got)
			} else {
				b.warnf(f.Name, "expected %s, got %s", f.Type, got)
			}
		}
	}
	return b.report()
}

func matches(want, got FieldType) bool {
	return want == "" || want == TypeAny || want == got
}

func typeOf(v any) FieldType {
	switch v.(type) {
	case string:
		return TypeString
	case bool:
		return TypeBoolean
	case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64, float32, float64:
		return TypeNumber
	case map[string]any:
		return TypeObject
	case []any:
		return TypeArray
	}
	return FieldType(fmt.Sprintf("%T", v))
}
