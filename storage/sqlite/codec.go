package sqlite

import (
	"encoding/json"
	"fmt"
)

// encodeFieldMap/decodeFieldMap serialize a Record's field map to a
// single JSON column; each value is itself already JSON-encoded by the
// caller, so this only ever wraps/unwraps the outer map.
func encodeFieldMap(fields map[string]string) (string, error) {
	if fields == nil {
		fields = map[string]string{}
	}
	b, err := json.Marshal(fields)
	if err != nil {
		return "", fmt.Errorf("sqlite: encode field map: %w", err)
	}
	return string(b), nil
}

func decodeFieldMap(data string) (map[string]string, error) {
	if data == "" {
		return map[string]string{}, nil
	}
	var fields map[string]string
	if err := json.Unmarshal([]byte(data), &fields); err != nil {
		return nil, fmt.Errorf("sqlite: decode field map: %w", err)
	}
	return fields, nil
}
