package recognizer

import (
	"encoding/json"
	"fmt"
)

type textResult struct {
	Text string `json:"text"`
}

// ParseText extracts the "text" field from an engine result document.
func ParseText(raw string) (string, error) {
	var res textResult
	if err := json.Unmarshal([]byte(raw), &res); err != nil {
		return "", fmt.Errorf("decode recognizer result: %w", err)
	}
	return res.Text, nil
}
