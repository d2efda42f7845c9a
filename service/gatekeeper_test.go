package service

import (
	"context"
	"testing"

	"casecounsel-backend/models"

	"github.com/stretchr/testify/assert"
)

// The gate fails open
func TestGatekeeper_FailsOpen(t *testing.T) {
	tests := map[string]*fakeGateway{
		"model error":    newFakeGateway().fail(stageGatekeeper, errUnavailable),
		"not json":       newFakeGateway().on(stageGatekeeper, "I think you need a jurisdiction."),
		"unknown status": newFakeGateway().on(stageGatekeeper, `{"status":"MAYBE","sufficiency_score":40}`),
	}
	for name, gw := range tests {
		t.Run(name, func(t *testing.T) {
			verdict := NewGatekeeper(gw).Check(context.Background(), "Draft a sale deed", "", nil)
			assert.Equal(t, models.SufficiencyVerdict{Status: models.StatusSufficient, SufficiencyScore: 100}, verdict)
		})
	}
}

func TestGatekeeper_NeedsInfo(t *testing.T) {
	gw := newFakeGateway().on(stageGatekeeper, `{"status":"needs_info","missing_fields":["Jurisdiction","Parties"],"sufficiency_score":30}`)

	verdict := NewGatekeeper(gw).Check(context.Background(), "Draft an NDA", "=== CASE METADATA ===", nil)

	assert.Equal(t, models.StatusNeedsInfo, verdict.Status)
	assert.Equal(t, []string{"Jurisdiction", "Parties"}, verdict.MissingFields)
	assert.Equal(t, "Before I proceed, please provide: Jurisdiction, Parties.", verdict.ClarificationPrompt)
	assert.Equal(t, 30.0, verdict.SufficiencyScore)

	call, _ := gw.last(stageGatekeeper)
	assert.Equal(t, ModelResearch, call.Key)
	assert.True(t, call.Opts.JSON)
	assert.Contains(t, call.Messages[1].Content, "KNOWN JURISDICTION: NONE (not provided)")
}

func TestGatekeeper_PassesKnownJurisdiction(t *testing.T) {
	gw := newFakeGateway().on(stageGatekeeper, `{"status":"SUFFICIENT","sufficiency_score":90,"missing_fields":["ignored"]}`)

	verdict := NewGatekeeper(gw).Check(context.Background(), "Draft a bail application", "", &models.Jurisdiction{State: "Kerala", Country: "India"})

	assert.Equal(t, models.StatusSufficient, verdict.Status)
	assert.Empty(t, verdict.MissingFields)
	assert.Equal(t, 90.0, verdict.SufficiencyScore)
	call, _ := gw.last(stageGatekeeper)
	assert.Contains(t, call.Messages[1].Content, "KNOWN JURISDICTION: Kerala, India")
}
