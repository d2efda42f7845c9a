package service

import (
	"encoding/json"
	"regexp"
	"strings"
)

var (
	fencePattern  = regexp.MustCompile("(?s)^```(?:json|JSON)?\\s*(.*?)\\s*```$")
	objectPattern = regexp.MustCompile(`(?s)\{.*\}`)
)

// parseModelJSON decodes a JSON object from model output. It tries the raw
// text, then the body of a ``` fence, then the outermost {...} span.
func parseModelJSON(stage, raw string, out interface{}) error {
	text := strings.TrimSpace(raw)
	if text == "" {
		return stageError(stage, KindParse, ErrNoJSON)
	}

	firstErr := json.Unmarshal([]byte(text), out)
	if firstErr == nil {
		return nil
	}

	if m := fencePattern.FindStringSubmatch(text); m != nil {
		if err := json.Unmarshal([]byte(m[1]), out); err == nil {
			return nil
		}
	}

	if span := objectPattern.FindString(text); span != "" {
		if err := json.Unmarshal([]byte(span), out); err == nil {
			return nil
		}
	}

	return stageError(stage, KindParse, firstErr)
}
