package generation

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/kaptinlin/jsonrepair"
)

// DecodeArray extracts the first JSON array from a completion and decodes it
// into out. Code fences and minor syntax damage are tolerated.
func DecodeArray(text string, out any) error {
	return decode(text, '[', ']', out)
}

// DecodeObject extracts the first JSON object from a completion and decodes
// it into out.
func DecodeObject(text string, out any) error {
	return decode(text, '{', '}', out)
}

func decode(text string, open, close byte, out any) error {
	raw := stripFences(text)
	start := strings.IndexByte(raw, open)
	if start < 0 {
		return fmt.Errorf("generation: no JSON %c found in response", open)
	}
	raw = raw[start:]
	if end := strings.LastIndexByte(raw, close); end >= 0 {
		candidate := raw[:end+1]
		if err := json.Unmarshal([]byte(candidate), out); err == nil {
			return nil
		}
	}
	repaired, err := jsonrepair.JSONRepair(raw)
	if err != nil {
		return fmt.Errorf("generation: repair JSON: %w", err)
	}
	if err := json.Unmarshal([]byte(repaired), out); err != nil {
		return fmt.Errorf("generation: decode JSON: %w", err)
	}
	return nil
}

func stripFences(text string) string {
	s := strings.TrimSpace(text)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if nl := strings.IndexByte(s, '\n'); nl >= 0 {
		s = s[nl+1:]
	}
	if end := strings.LastIndex(s, "```"); end >= 0 {
		s = s[:end]
	}
	return strings.TrimSpace(s)
}
