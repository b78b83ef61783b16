package codec

// genericError is reported when a payload signals failure without a
// usable message.
const genericError = "Unknown error"

// signalsFailure reports whether a decoded response entry carries
// error information, independent of any state flag.
func signalsFailure(entry map[string]any) bool {
	if entry == nil {
		return false
	}
	if list, ok := entry["error"].([]any); ok && len(list) > 0 {
		return true
	}
	if list, ok := entry["errors"].([]any); ok && len(list) > 0 {
		return true
	}
	if _, ok := entry["error"].(map[string]any); ok {
		return true
	}
	if s, ok := entry["error"].(string); ok && s != "" {
		return true
	}
	return false
}

// extractError pulls a human-readable message and structured detail
// fields out of a failed response entry. Sources are probed in order:
// an error array, an errors array, an error object, then an error
// string. The details always contain at least a message key so failed
// calls render something even when the payload is opaque.
func extractError(entry map[string]any) (string, map[string]any) {
	if entry != nil {
		if list, ok := entry["error"].([]any); ok && len(list) > 0 {
			return errorFromValue(list[0])
		}
		if list, ok := entry["errors"].([]any); ok && len(list) > 0 {
			return errorFromValue(list[0])
		}
		if obj, ok := entry["error"].(map[string]any); ok {
			return errorFromValue(obj)
		}
		if s, ok := entry["error"].(string); ok && s != "" {
			return errorFromValue(s)
		}
	}
	return genericError, map[string]any{"message": genericError}
}

// errorFromValue normalizes one error element. Structured elements
// keep every field they carried; scalar elements become the message.
func errorFromValue(v any) (string, map[string]any) {
	switch e := v.(type) {
	case map[string]any:
		details := make(map[string]any, len(e)+1)
		for k, val := range e {
			details[k] = val
		}
		msg, _ := details["message"].(string)
		if msg == "" {
			msg = genericError
			details["message"] = msg
		}
		return msg, details
	case string:
		if e == "" {
			break
		}
		return e, map[string]any{"message": e}
	}
	return genericError, map[string]any{"message": genericError}
}
