package tools

// Typed accessors for validated argument maps. Validation has already checked
// declared types; these are for convenient extraction with defaults.

// StringArg returns args[name] as a string, or def when absent.
func StringArg(args map[string]any, name, def string) string {
	if v, ok := args[name].(string); ok {
		return v
	}
	return def
}

// BoolArg returns args[name] as a bool, or def when absent.
func BoolArg(args map[string]any, name string, def bool) bool {
	if v, ok := args[name].(bool); ok {
		return v
	}
	return def
}

// StringSliceArg returns args[name] as a []string, dropping non-string items.
func StringSliceArg(args map[string]any, name string) []string {
	arr, ok := args[name].([]any)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(arr))
	for _, v := range arr {
		if s, ok := v.(string); ok {
			out = append(out, s)
		}
	}
	return out
}

// MapArg returns args[name] as a map, or nil.
func MapArg(args map[string]any, name string) map[string]any {
	m, _ := args[name].(map[string]any)
	return m
}
