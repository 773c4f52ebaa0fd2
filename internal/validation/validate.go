package validation

import (
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/aidis-project/aidis-core/internal/apierr"
)

// Validate decodes raw against schema, returning the validated, coerced
// argument map or an InvalidInput error naming the first offending field
//. It never mutates global state and is safe for concurrent use.
func Validate(schema Schema, raw json.RawMessage) (map[string]any, *apierr.Error) {
	if len(raw) == 0 {
		raw = []byte("{}")
	}

	var input map[string]any
	if err := json.Unmarshal(raw, &input); err != nil {
		return nil, apierr.New(apierr.CodeInvalidInput, "arguments must be a JSON object")
	}

	var unknown []string
	for key := range input {
		if _, known := schema.field(key); !known {
			unknown = append(unknown, key)
		}
	}
	if len(unknown) > 0 {
		sort.Strings(unknown)
		return nil, apierr.New(apierr.CodeInvalidInput,
			fmt.Sprintf("unknown field %q", unknown[0])).WithField(unknown[0])
	}

	out := make(map[string]any, len(schema.Fields))
	for _, f := range schema.Fields {
		value, present := input[f.Name]
		if !present || value == nil {
			if f.Required {
				return nil, apierr.New(apierr.CodeInvalidInput,
					fmt.Sprintf("%q is required", f.Name)).WithField(f.Name)
			}
			continue
		}

		coerced, verr := coerceAndCheck(f, value)
		if verr != nil {
			return nil, verr
		}
		out[f.Name] = coerced
	}

	return out, nil
}

func coerceAndCheck(f Field, value any) (any, *apierr.Error) {
	switch f.Type {
	case TypeString:
		return checkString(f, value)
	case TypeNumber:
		return checkNumber(f, value)
	case TypeBool:
		b, ok := value.(bool)
		if !ok {
			return nil, invalidType(f, "bool")
		}
		return b, nil
	case TypeObject:
		m, ok := value.(map[string]any)
		if !ok {
			return nil, invalidType(f, "object")
		}
		return m, nil
	case TypeArray:
		arr, ok := value.([]any)
		if !ok {
			return nil, invalidType(f, "array")
		}
		return arr, nil
	case TypeStringArray:
		return checkStringArray(f, value)
	default:
		return value, nil
	}
}

func checkString(f Field, value any) (any, *apierr.Error) {
	s, ok := value.(string)
	if !ok {
		return nil, invalidType(f, "string")
	}
	if f.TrimString {
		s = strings.TrimSpace(s)
	}
	if f.MinLength > 0 && len(s) < f.MinLength {
		return nil, apierr.New(apierr.CodeInvalidInput,
			fmt.Sprintf("%q must be at least %d characters", f.Name, f.MinLength)).WithField(f.Name)
	}
	if f.MaxLength > 0 && len(s) > f.MaxLength {
		return nil, apierr.New(apierr.CodeInvalidInput,
			fmt.Sprintf("%q must be at most %d characters", f.Name, f.MaxLength)).WithField(f.Name)
	}
	if len(f.Enum) > 0 && !contains(f.Enum, s) {
		return nil, apierr.New(apierr.CodeInvalidInput,
			fmt.Sprintf("%q must be one of %s", f.Name, strings.Join(f.Enum, ", "))).WithField(f.Name)
	}
	return s, nil
}

func checkNumber(f Field, value any) (any, *apierr.Error) {
	var n float64
	switch v := value.(type) {
	case float64:
		n = v
	case string:
		if !f.CoerceNumericString {
			return nil, invalidType(f, "number")
		}
		parsed, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			return nil, apierr.New(apierr.CodeInvalidInput,
				fmt.Sprintf("%q must be numeric", f.Name)).WithField(f.Name)
		}
		n = parsed
	default:
		return nil, invalidType(f, "number")
	}

	if f.Min != nil && n < *f.Min {
		return nil, apierr.New(apierr.CodeInvalidInput,
			fmt.Sprintf("%q must be >= %g", f.Name, *f.Min)).WithField(f.Name)
	}
	if f.Max != nil && n > *f.Max {
		return nil, apierr.New(apierr.CodeInvalidInput,
			fmt.Sprintf("%q must be <= %g", f.Name, *f.Max)).WithField(f.Name)
	}
	return n, nil
}

func checkStringArray(f Field, value any) (any, *apierr.Error) {
	arr, ok := value.([]any)
	if !ok {
		return nil, invalidType(f, "array of strings")
	}
	out := make([]string, 0, len(arr))
	for _, item := range arr {
		s, ok := item.(string)
		if !ok {
			return nil, invalidType(f, "array of strings")
		}
		if f.TrimString {
			s = strings.TrimSpace(s)
		}
		out = append(out, s)
	}
	return out, nil
}

func invalidType(f Field, want string) *apierr.Error {
	return apierr.New(apierr.CodeInvalidInput,
		fmt.Sprintf("%q must be a %s", f.Name, want)).WithField(f.Name)
}

func contains(list []string, v string) bool {
	for _, item := range list {
		if item == v {
			return true
		}
	}
	return false
}
