package assessment

// Helpers for reading loosely typed request payloads. Anything that is not
// the expected shape falls back to the default rather than failing.

func getString(m map[string]interface{}, key string) string {
	if v, ok := m[key].(string); ok {
		return v
	}
	return ""
}

func getStringOr(m map[string]interface{}, key, fallback string) string {
	if v, ok := m[key].(string); ok && v != "" {
		return v
	}
	return fallback
}

func orString(v, fallback string) string {
	if v != "" {
		return v
	}
	return fallback
}

func getBool(m map[string]interface{}, key string, fallback bool) bool {
	if v, ok := m[key].(bool); ok {
		return v
	}
	return fallback
}

func getInt(m map[string]interface{}, key string, fallback int) int {
	switch v := m[key].(type) {
	case int:
		return v
	case float64:
		return int(v)
	}
	return fallback
}

func getFloat(m map[string]interface{}, key string, fallback float64) float64 {
	switch v := m[key].(type) {
	case float64:
		return v
	case int:
		return float64(v)
	}
	return fallback
}

func getStringSlice(m map[string]interface{}, key string) []string {
	out := []string{}
	switch v := m[key].(type) {
	case []string:
		return append(out, v...)
	case []interface{}:
		for _, item := range v {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
	}
	return out
}

func asMap(v interface{}) map[string]interface{} {
	if m, ok := v.(map[string]interface{}); ok {
		return m
	}
	return nil
}

// mapList filters a raw list down to its object entries
func mapList(v interface{}) []map[string]interface{} {
	out := []map[string]interface{}{}
	switch list := v.(type) {
	case []map[string]interface{}:
		return append(out, list...)
	case []interface{}:
		for _, item := range list {
			if m := asMap(item); m != nil {
				out = append(out, m)
			}
		}
	}
	return out
}

// refID accepts either a bare string ID or an {id, name} object
func refID(v interface{}) string {
	switch ref := v.(type) {
	case string:
		return ref
	case map[string]interface{}:
		return getString(ref, "id")
	}
	return ""
}

func refName(v interface{}) string {
	if m := asMap(v); m != nil {
		return getString(m, "name")
	}
	return ""
}
