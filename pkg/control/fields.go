package control

import (
	"fmt"
	"sort"

	"mercator-hq/sluice/pkg/transaction"
)

// optionalString reads a string config field; absent or null yields "".
func optionalString(config Document, key string) (string, error) {
	raw, ok := config[key]
	if !ok || raw == nil {
		return "", nil
	}
	s, ok := raw.(string)
	if !ok {
		return "", &LoadError{Path: key, Message: "must be a string, got " + typeName(raw)}
	}
	return s, nil
}

// requiredString reads a non-empty string config field.
func requiredString(config Document, key string) (string, error) {
	s, err := optionalString(config, key)
	if err != nil {
		return "", err
	}
	if s == "" {
		return "", &LoadError{Path: key, Message: "is required"}
	}
	return s, nil
}

// stringMap reads an object of string values; absent or null yields nil.
func stringMap(config Document, key string) (map[string]string, error) {
	raw, ok := config[key]
	if !ok || raw == nil {
		return nil, nil
	}
	m, ok := raw.(map[string]any)
	if !ok {
		return nil, &LoadError{Path: key, Message: "must be an object, got " + typeName(raw)}
	}
	out := make(map[string]string, len(m))
	for k, v := range m {
		s, ok := v.(string)
		if !ok {
			return nil, &LoadError{Path: key + "." + k, Message: "must be a string, got " + typeName(v)}
		}
		out[k] = s
	}
	return out, nil
}

// stringMapDocument renders a string map in document form.
func stringMapDocument(m map[string]string) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func fmtIndex(field string, i int) string {
	return fmt.Sprintf("%s[%d]", field, i)
}

// typeName names the document type of a raw value.
func typeName(v any) string {
	switch transaction.Plain(v).(type) {
	case nil:
		return "null"
	case string:
		return "string"
	case float64:
		return "number"
	case bool:
		return "bool"
	case []any:
		return "list"
	case map[string]any:
		return "object"
	default:
		return fmt.Sprintf("%T", v)
	}
}
