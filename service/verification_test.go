package service

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Every audit output carries all four headers
func TestAudit_AlwaysHasAllSections(t *testing.T) {
	tests := map[string]string{
		"partial":      `{"facts":"Only facts are known."}`,
		"empty object": `{}`,
		"unknown keys": `{"summary":"x","notes":"y"}`,
		"empty values": `{"facts":"","held":[],"ratio":{},"judgment":null}`,
		"non json":     `The appeal is dismissed.`,
		"fenced json":  "```json\n{\"Held\":\"Allowed\"}\n```",
	}
	for name, reply := range tests {
		t.Run(name, func(t *testing.T) {
			gw := newFakeGateway().on(stageVerification, reply)
			out := NewVerificationAgent(gw).Audit(context.Background(), "judgment text", "draft")
			assertFourSections(t, out)
			assert.Contains(t, out, verifiedFooter)
		})
	}
}

func TestAudit_MissingSectionsUsePlaceholder(t *testing.T) {
	gw := newFakeGateway().on(stageVerification, `{"Facts":"Land dispute between brothers."}`)
	out := NewVerificationAgent(gw).Audit(context.Background(), "text", "draft")

	assert.True(t, strings.HasPrefix(out, "### Facts\nLand dispute between brothers.\n\n### Held\n"+sectionPlaceholder))
	assert.Equal(t, 3, strings.Count(out, sectionPlaceholder))
}

func TestAudit_FuzzyKeysAndFlattening(t *testing.T) {
	gw := newFakeGateway().on(stageVerification, `{
		"Brief Facts": "Tenant refused to vacate.",
		"Holdings": ["Eviction valid.", "Arrears payable."],
		"Legal-Reasoning": {"principle": "Bona fide need", "statute": {"act": "Rent Control Act", "section": 14}},
		"Final Order": "Decree affirmed."
	}`)
	out := NewVerificationAgent(gw).Audit(context.Background(), "text", "draft")

	assert.Contains(t, out, "### Facts\nTenant refused to vacate.")
	assert.Contains(t, out, "### Held\nEviction valid.\n\nArrears payable.")
	assert.Contains(t, out, "### Ratio Decidendi\n**principle**: Bona fide need\n**statute**: **act**: Rent Control Act\n**section**: 14")
	assert.Contains(t, out, "### Judgment\nDecree affirmed.")
	assert.NotContains(t, out, sectionPlaceholder)
}

func TestAudit_NestedSectionObject(t *testing.T) {
	gw := newFakeGateway().on(stageVerification, `{"audit":{"facts":"F","decision":"D","rationale":"R","verdict":"V"}}`)
	out := NewVerificationAgent(gw).Audit(context.Background(), "text", "draft")
	assert.Equal(t, "### Facts\nF\n\n### Held\nD\n\n### Ratio Decidendi\nR\n\n### Judgment\nV\n\n"+verifiedFooter, out)
}

func TestAudit_ExactKeysWinOverSubstrings(t *testing.T) {
	obj := map[string]interface{}{
		"reasoning_for_holding": "ratio text",
		"held":                  "held text",
	}
	found, ok := locateSections(obj)
	require.True(t, ok)
	assert.Equal(t, "held text", found["Held"])
	assert.Equal(t, "ratio text", found["Ratio Decidendi"])
}

func TestLocateSections_LongestSynonymOwnsKey(t *testing.T) {
	obj := map[string]interface{}{
		"findings_of_fact": "Cheque was dishonoured for insufficient funds.",
		"statement":        "Complainant lent Rs. 5,00,000.",
	}
	found, ok := locateSections(obj)
	require.True(t, ok)
	assert.Equal(t, "Cheque was dishonoured for insufficient funds.", found["Held"])
	_, hasFacts := found["Facts"]
	assert.False(t, hasFacts)
}

func TestAudit_ParseFailureReturnsRawTextMarkedVerified(t *testing.T) {
	gw := newFakeGateway().on(stageVerification, "### Facts\nA\n\n### Held\nB")
	out := NewVerificationAgent(gw).Audit(context.Background(), "text", "draft")

	assert.True(t, strings.HasPrefix(out, "### Facts\nA\n\n### Held\nB"))
	assertFourSections(t, out)
	assert.True(t, strings.HasSuffix(out, verifiedFooter))
}

func TestAudit_TransportFailureReturnsDraft(t *testing.T) {
	gw := newFakeGateway().fail(stageVerification, errUnavailable)
	out := NewVerificationAgent(gw).Audit(context.Background(), "text", "### Facts\nDraft facts")

	assert.True(t, strings.HasPrefix(out, "### Facts\nDraft facts"))
	assertFourSections(t, out)
	assert.Contains(t, out, unverifiedFooter)
	assert.NotContains(t, out, verifiedFooter)
}

func TestEnsureSectionHeaders_KeepsExisting(t *testing.T) {
	text := "### Facts\nx\n\n### Held\ny\n\n### Ratio Decidendi\nz\n\n### Judgment\nw"
	assert.Equal(t, text, ensureSectionHeaders(text))
}
