package service

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseModelJSON(t *testing.T) {
	tests := map[string]string{
		"plain":        `{"status":"SUFFICIENT"}`,
		"fenced":       "```json\n{\"status\":\"SUFFICIENT\"}\n```",
		"bare fence":   "```\n{\"status\":\"SUFFICIENT\"}\n```",
		"with prose":   "Here is the verdict:\n{\"status\":\"SUFFICIENT\"}\nThanks.",
		"padded space": "   {\"status\":\"SUFFICIENT\"}   ",
	}
	for name, raw := range tests {
		t.Run(name, func(t *testing.T) {
			var out struct {
				Status string `json:"status"`
			}
			require.NoError(t, parseModelJSON("test", raw, &out))
			assert.Equal(t, "SUFFICIENT", out.Status)
		})
	}
}

func TestParseModelJSON_FailureIsParseKind(t *testing.T) {
	for _, raw := range []string{"", "no json here", "{broken"} {
		var out map[string]interface{}
		err := parseModelJSON("gatekeeper", raw, &out)
		require.Error(t, err, raw)
		kind, ok := KindOf(err)
		assert.True(t, ok)
		assert.Equal(t, KindParse, kind)
	}
}
