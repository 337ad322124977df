package model

import (
	"math"
)

// cleanJSONData recursively cleans data to ensure it's JSON serializable
func cleanJSONData(data map[string]any) map[string]any {
	cleaned := make(map[string]any, len(data))
	for k, v := range data {
		cleaned[k] = cleanJSONValue(v)
	}
	return cleaned
}

func cleanJSONValue(v any) any {
	switch val := v.(type) {
	case float64:
		// NaN and Inf have no JSON form
		if math.IsInf(val, 0) || math.IsNaN(val) {
			return nil
		}
		return val
	case map[string]any:
		return cleanJSONData(val)
	case []any:
		cleaned := make([]any, len(val))
		for i, item := range val {
			cleaned[i] = cleanJSONValue(item)
		}
		return cleaned
	default:
		return v
	}
}

// ValidateJSON ensures the data can be marshaled to JSON
func ValidateJSON(data map[string]any) ([]byte, error) {
	if data == nil {
		return []byte("{}"), nil
	}
	return jsonFast.Marshal(cleanJSONData(data))
}
