package llm

import (
	"strconv"
	"strings"
)

// StringField returns the first present key as text. Numbers are rendered without a fraction when whole.
func StringField(obj map[string]interface{}, keys ...string) (string, bool) {
	for _, key := range keys {
		value, ok := obj[key]
		if !ok || value == nil {
			continue
		}
		if s, ok := scalarString(value); ok {
			return s, true
		}
	}
	return "", false
}

// BoolField accepts JSON booleans and the usual textual spellings.
func BoolField(obj map[string]interface{}, keys ...string) (bool, bool) {
	for _, key := range keys {
		switch v := obj[key].(type) {
		case bool:
			return v, true
		case string:
			switch strings.ToLower(strings.TrimSpace(v)) {
			case "true", "sim", "yes", "verdadeiro":
				return true, true
			case "false", "não", "nao", "no", "falso":
				return false, true
			}
		}
	}
	return false, false
}

// ListField returns the first present key holding a list of scalars.
func ListField(obj map[string]interface{}, keys ...string) ([]string, bool) {
	for _, key := range keys {
		raw, ok := obj[key].([]interface{})
		if !ok {
			continue
		}
		out := make([]string, 0, len(raw))
		for _, item := range raw {
			if s, ok := scalarString(item); ok {
				out = append(out, s)
			}
		}
		return out, true
	}
	return nil, false
}

func scalarString(value interface{}) (string, bool) {
	switch v := value.(type) {
	case string:
		return strings.TrimSpace(v), true
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64), true
	case bool:
		return strconv.FormatBool(v), true
	default:
		return "", false
	}
}
