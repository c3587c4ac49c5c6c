package convert

import "strconv"

// BoolParam reads a boolean engine hint, accepting JSON booleans and
// their common string spellings. Params arrive from form fields as well
// as JSON bodies, so both shapes occur.
func BoolParam(params map[string]any, key string) bool {
	switch v := params[key].(type) {
	case bool:
		return v
	case string:
		b, err := strconv.ParseBool(v)
		return err == nil && b
	}
	return false
}

// StringParam reads a string engine hint; missing or non-string values
// come back empty.
func StringParam(params map[string]any, key string) string {
	if v, ok := params[key].(string); ok {
		return v
	}
	return ""
}
