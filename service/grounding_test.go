package service

import (
	"context"
	"errors"
	"strings"
	"testing"

	"casecounsel-backend/caselaw"
	"casecounsel-backend/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const groundedJSON = `{"answer":"### Facts\nThe accused was charged with murder.\n\n### Held\nConviction upheld.\n\n### Ratio Decidendi\nIntention proved.\n\n### Judgment\nAppeal dismissed.","citations":[{"title":"Bachan Singh v. State of Punjab","citation_ref":"(1980) 2 SCC 684"},{"title":"Machhi Singh v. State of Punjab"}]}`

func assertFourSections(t *testing.T, text string) {
	t.Helper()
	for _, h := range []string{"### Facts", "### Held", "### Ratio Decidendi", "### Judgment"} {
		assert.Contains(t, text, h)
	}
}

func TestKeywordClassifier(t *testing.T) {
	k := NewKeywordClassifier()
	tests := map[string]bool{
		"What is the punishment under Section 302?": true,
		"Find precedent on anticipatory bail":       true,
		"Is there a Supreme  Court ruling on this?": true,
		"Summarize the IPC provisions on theft":     true,
		"Review this contract for risks":            false,
		"section 3":                                 false,
		"Draft an NDA":                              false,
		"How should we prepare the client?":         false,
	}
	for prompt, want := range tests {
		t.Run(prompt, func(t *testing.T) {
			assert.Equal(t, want, k.NeedsGrounding(prompt))
		})
	}
}

// Primary source failures never block research
func TestResearch_PrimarySourceFailuresDegrade(t *testing.T) {
	gw := newFakeGateway().on(stageGrounding, groundedJSON)
	source := &fakeSource{configured: true, searchErr: errors.New("dial tcp: connection refused")}
	agent := NewGroundingAgent(gw, source, NewVerificationAgent(gw))

	result, err := agent.Research(context.Background(), "punishment for murder section 302", nil)
	require.NoError(t, err)
	assert.NotEmpty(t, result.Answer)
	assertFourSections(t, result.Answer)
	assert.Equal(t, []string{"Bachan Singh v. State of Punjab", "Machhi Singh v. State of Punjab"}, citationTitleList(result.Citations))
	assert.Zero(t, gw.count(stageVerification))

	call, ok := gw.last(stageGrounding)
	require.True(t, ok)
	assert.True(t, call.Opts.JSON)
	assert.Contains(t, call.Messages[1].Content, "No primary-source material was retrieved")
}

func TestResearch_FetchFailureKeepsSearchCitations(t *testing.T) {
	gw := newFakeGateway().on(stageGrounding, groundedJSON)
	source := &fakeSource{
		configured: true,
		docs: []caselaw.Doc{
			{Title: "Machhi Singh v. State of Punjab", Court: "Supreme Court of India", URL: "https://indiankanoon.org/doc/1/", ExternalID: "1"},
		},
		fetchErr: errors.New("status 500"),
	}
	agent := NewGroundingAgent(gw, source, NewVerificationAgent(gw))

	result, err := agent.Research(context.Background(), "rarest of rare doctrine", nil)
	require.NoError(t, err)

	require.Len(t, result.Citations, 2)
	assert.Equal(t, "Machhi Singh v. State of Punjab", result.Citations[0].Title)
	assert.Equal(t, "Supreme Court of India", result.Citations[0].Court)
	assert.Equal(t, "Bachan Singh v. State of Punjab", result.Citations[1].Title)
	assert.Zero(t, gw.count(stageVerification))
}

func TestResearch_PrimaryTextTriggersVerification(t *testing.T) {
	gw := newFakeGateway().
		on(stageGrounding, groundedJSON).
		on(stageVerification, `{"facts":"Accused stabbed the victim.","holding":"Guilty under Section 302.","reasoning":["Motive shown.","Weapon recovered."],"order":"Life imprisonment."}`)
	source := &fakeSource{
		configured: true,
		docs: []caselaw.Doc{
			{Title: "State v. Rao", ExternalID: "42"},
			{Title: "State v. Iyer", ExternalID: "43"},
		},
		fullText: "<html><body><p>JUDGMENT</p><script>x</script><p>" + strings.Repeat("word ", 5000) + "</p></body></html>",
	}
	agent := NewGroundingAgent(gw, source, NewVerificationAgent(gw))

	result, err := agent.Research(context.Background(), "murder conviction precedent", &models.Jurisdiction{State: "Karnataka"})
	require.NoError(t, err)

	assert.Equal(t, []string{"murder conviction precedent Karnataka"}, source.queries)
	assert.Equal(t, []string{"42"}, source.fetched)
	assert.Equal(t, 1, gw.count(stageVerification))

	audit, _ := gw.last(stageVerification)
	assert.Equal(t, ModelReasoning, audit.Key)
	assert.NotContains(t, audit.Messages[1].Content, "<script>")
	assert.NotContains(t, audit.Messages[1].Content, "<p>")

	grounding, _ := gw.last(stageGrounding)
	assert.Contains(t, grounding.Messages[1].Content, "FULL TEXT OF TOP AUTHORITY (State v. Rao)")

	assertFourSections(t, result.Answer)
	assert.Contains(t, result.Answer, "Accused stabbed the victim.")
	assert.Contains(t, result.Answer, "Motive shown.\n\nWeapon recovered.")
	assert.Contains(t, result.Answer, "Life imprisonment.")
	assert.Contains(t, result.Answer, verifiedFooter)
	assert.Equal(t, []string{"State v. Rao", "State v. Iyer", "Bachan Singh v. State of Punjab", "Machhi Singh v. State of Punjab"}, citationTitleList(result.Citations))
}

func TestResearch_PrimaryTextIsCapped(t *testing.T) {
	gw := newFakeGateway().on(stageGrounding, groundedJSON).on(stageVerification, `{}`)
	source := &fakeSource{
		configured: true,
		docs:       []caselaw.Doc{{Title: "Long", ExternalID: "1"}},
		fullText:   strings.Repeat("z", primaryTextChars*2),
	}
	_, err := NewGroundingAgent(gw, source, NewVerificationAgent(gw)).Research(context.Background(), "long judgment precedent", nil)
	require.NoError(t, err)

	audit, _ := gw.last(stageVerification)
	assert.Contains(t, audit.Messages[1].Content, strings.Repeat("z", primaryTextChars))
	assert.NotContains(t, audit.Messages[1].Content, strings.Repeat("z", primaryTextChars+1))
}

func TestResearch_UnparseableOutputFallsBackToRawText(t *testing.T) {
	gw := newFakeGateway().on(stageGrounding, "The accused is liable under Section 302 IPC.")
	source := &fakeSource{configured: true, docs: []caselaw.Doc{{Title: "K.M. Nanavati v. State", ExternalID: "9"}}, fetchErr: errors.New("boom")}
	agent := NewGroundingAgent(gw, source, nil)

	result, err := agent.Research(context.Background(), "section 302 liability", nil)
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(result.Answer, "The accused is liable under Section 302 IPC."))
	assertFourSections(t, result.Answer)
	assert.Equal(t, []string{"K.M. Nanavati v. State"}, citationTitleList(result.Citations))
}

func TestResearch_AnswerGivenAsSectionObject(t *testing.T) {
	gw := newFakeGateway().on(stageGrounding, `{"answer":{"facts":"F","held":"H","ratio_decidendi":"R","judgment":"J"},"citations":[]}`)
	result, err := NewGroundingAgent(gw, nil, nil).Research(context.Background(), "explain the held portion", nil)
	require.NoError(t, err)
	assert.Equal(t, "### Facts\nF\n\n### Held\nH\n\n### Ratio Decidendi\nR\n\n### Judgment\nJ", result.Answer)
	assert.NotNil(t, result.Citations)
}

func TestResearch_SynthesisFailureIsTransportError(t *testing.T) {
	gw := newFakeGateway().fail(stageGrounding, errUnavailable)
	source := &fakeSource{configured: true, docs: []caselaw.Doc{{Title: "A v. B", ExternalID: "1"}}, fetchErr: errors.New("x")}

	result, err := NewGroundingAgent(gw, source, nil).Research(context.Background(), "precedent please", nil)
	kind, ok := KindOf(err)
	require.True(t, ok)
	assert.Equal(t, KindTransport, kind)
	assert.Equal(t, []string{"A v. B"}, citationTitleList(result.Citations))
}

func TestResearch_UnconfiguredSourceIsNotCalled(t *testing.T) {
	gw := newFakeGateway().on(stageGrounding, groundedJSON)
	source := &fakeSource{configured: false}
	_, err := NewGroundingAgent(gw, source, nil).Research(context.Background(), "section 420 cheating", nil)
	require.NoError(t, err)
	assert.Empty(t, source.queries)
}

func citationTitleList(cs []models.Citation) []string {
	out := make([]string, 0, len(cs))
	for _, c := range cs {
		out = append(out, c.Title)
	}
	return out
}
