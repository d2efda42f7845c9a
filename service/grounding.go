package service

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"casecounsel-backend/caselaw"
	"casecounsel-backend/metrics"
	"casecounsel-backend/models"
	"casecounsel-backend/textutil"
)

const (
	primaryHitLimit  = 5
	primaryTextChars = 15000
	minGroundingLen  = 10
)

// PrimarySource is an external case-law index
type PrimarySource interface {
	Configured() bool
	Search(ctx context.Context, query string, limit int) ([]caselaw.Doc, error)
	FetchFullText(ctx context.Context, externalID string) (string, error)
}

// GroundingClassifier decides whether a prompt needs live legal sources
type GroundingClassifier interface {
	NeedsGrounding(prompt string) bool
}

var groundingKeywords = []string{
	"precedent", "precedents", "section", "sections", "judgment", "judgement", "judgments",
	"case law", "ruling", "statute", "act", "ipc", "crpc", "cpc", "bns", "bnss", "bsa",
	"article", "supreme court", "high court", "citation", "held",
}

// KeywordClassifier matches a fixed keyword list on word boundaries
type KeywordClassifier struct {
	pattern *regexp.Regexp
}

// NewKeywordClassifier builds a classifier over keywords, or the default list when empty
func NewKeywordClassifier(keywords ...string) *KeywordClassifier {
	if len(keywords) == 0 {
		keywords = groundingKeywords
	}
	quoted := make([]string, 0, len(keywords))
	for _, k := range keywords {
		quoted = append(quoted, strings.ReplaceAll(regexp.QuoteMeta(strings.ToLower(k)), " ", `\s+`))
	}
	return &KeywordClassifier{
		pattern: regexp.MustCompile(`(?i)\b(?:` + strings.Join(quoted, "|") + `)\b`),
	}
}

// NeedsGrounding implements GroundingClassifier
func (k *KeywordClassifier) NeedsGrounding(prompt string) bool {
	prompt = strings.TrimSpace(prompt)
	if textutil.Len(prompt) <= minGroundingLen {
		return false
	}
	return k.pattern.MatchString(prompt)
}

const groundingSystemPrompt = `You are a senior legal researcher. Answer the question with verifiable law.
Rules:
- When PRIMARY SOURCE MATERIAL is provided, treat it as the authority of first resort and prefer it over memory.
- When it is not provided, answer from general legal knowledge and say plainly that the answer is not verified against a primary source.
- Never invent case names, citations or section numbers.
- Cite cases as: Case Name v. Party, (Year) Volume Reporter Page (Court).
Return a single JSON object:
{"answer": "<markdown>", "citations": [{"title": "", "citation_ref": "", "court": "", "url": "", "snippet": ""}]}
The answer must contain exactly these Markdown sections in this order:
### Facts
### Held
### Ratio Decidendi
### Judgment`

// GroundingAgent researches a query against primary sources and a model
type GroundingAgent struct {
	common
	gateway  Gateway
	source   PrimarySource
	verifier *VerificationAgent
}

// NewGroundingAgent creates a grounding agent. source and verifier may be nil.
func NewGroundingAgent(gateway Gateway, source PrimarySource, verifier *VerificationAgent, opts ...Option) *GroundingAgent {
	return &GroundingAgent{
		common:   newCommon(opts),
		gateway:  gateway,
		source:   source,
		verifier: verifier,
	}
}

type primaryMaterial struct {
	citations []models.Citation
	fullText  string
	topTitle  string
}

// Research grounds query. Primary-source failures only reduce grounding;
// the returned error is set only when model synthesis itself fails, in
// which case the result still carries any primary citations.
func (g *GroundingAgent) Research(ctx context.Context, query string, jurisdiction *models.Jurisdiction) (models.GroundingResult, error) {
	primary := g.lookupPrimary(ctx, query, jurisdiction)

	raw, err := g.gateway.Invoke(ctx, ModelResearch, []Message{
		{Role: models.RoleSystem, Content: groundingSystemPrompt},
		{Role: models.RoleUser, Content: buildGroundingPrompt(query, jurisdiction, primary)},
	}, InvokeOptions{Temperature: 0.1, JSON: true})
	if err != nil {
		g.metrics.Stage("grounding", metrics.OutcomeDegraded)
		return models.GroundingResult{Citations: models.MergeCitations(primary.citations)},
			stageError("grounding", KindTransport, err)
	}

	var parsed struct {
		Answer    json.RawMessage   `json:"answer"`
		Citations []models.Citation `json:"citations"`
	}
	answer := ""
	var modelCitations []models.Citation
	if err := parseModelJSON("grounding", raw, &parsed); err != nil {
		g.logger.Warnf("Warning: Grounding output was not JSON, using raw text: %v", err)
	} else {
		answer = rawAnswerText(parsed.Answer)
		modelCitations = parsed.Citations
	}
	if strings.TrimSpace(answer) == "" {
		answer = strings.TrimSpace(raw)
		modelCitations = nil
	}

	result := models.GroundingResult{
		Answer:    ensureSectionHeaders(answer),
		Citations: models.MergeCitations(primary.citations, modelCitations),
	}

	if primary.fullText != "" && g.verifier != nil {
		result.Answer = g.verifier.Audit(ctx, primary.fullText, result.Answer)
	}

	g.metrics.Stage("grounding", metrics.OutcomeOK)
	return result, nil
}

func (g *GroundingAgent) lookupPrimary(ctx context.Context, query string, jurisdiction *models.Jurisdiction) primaryMaterial {
	var out primaryMaterial
	if g.source == nil || !g.source.Configured() {
		return out
	}

	searchQuery := strings.TrimSpace(query)
	if jurisdiction != nil && jurisdiction.State != "" {
		searchQuery += " " + jurisdiction.State
	}

	docs, err := g.source.Search(ctx, searchQuery, primaryHitLimit)
	if err != nil {
		g.logger.Warnf("Warning: Primary source search failed: %v. Continuing without primary sources.", err)
		return out
	}
	if len(docs) > primaryHitLimit {
		docs = docs[:primaryHitLimit]
	}
	for _, d := range docs {
		out.citations = append(out.citations, models.Citation{
			Title:   d.Title,
			Court:   d.Court,
			URL:     d.URL,
			Snippet: d.Snippet,
		})
	}
	if len(docs) == 0 {
		return out
	}

	full, err := g.source.FetchFullText(ctx, docs[0].ExternalID)
	if err != nil {
		g.logger.Warnf("Warning: Failed to fetch full text of %q: %v", docs[0].Title, err)
		return out
	}
	out.fullText = textutil.Truncate(textutil.StripHTML(full), primaryTextChars)
	out.topTitle = docs[0].Title
	return out
}

func buildGroundingPrompt(query string, jurisdiction *models.Jurisdiction, primary primaryMaterial) string {
	var b strings.Builder
	fmt.Fprintf(&b, "QUESTION:\n%s\n", strings.TrimSpace(query))
	if j := jurisdiction.String(); j != "" {
		fmt.Fprintf(&b, "\nJURISDICTION: %s\n", j)
	}

	if len(primary.citations) == 0 {
		b.WriteString("\nNo primary-source material was retrieved for this question. ")
		b.WriteString("Answer from general legal knowledge, state that the answer is unverified, ")
		b.WriteString("and do not express more confidence than that allows.\n")
		return b.String()
	}

	b.WriteString("\nPRIMARY SOURCE MATERIAL (search results, ranked):\n")
	for i, c := range primary.citations {
		fmt.Fprintf(&b, "%d. %s", i+1, c.Title)
		if c.Court != "" {
			fmt.Fprintf(&b, " [%s]", c.Court)
		}
		if c.Snippet != "" {
			fmt.Fprintf(&b, " - %s", c.Snippet)
		}
		b.WriteString("\n")
	}
	if primary.fullText != "" {
		fmt.Fprintf(&b, "\nFULL TEXT OF TOP AUTHORITY (%s):\n%s\n", primary.topTitle, primary.fullText)
	}
	return b.String()
}

// rawAnswerText accepts an answer given as a string or as a section object
func rawAnswerText(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	var obj map[string]interface{}
	if err := json.Unmarshal(raw, &obj); err == nil {
		if sections, ok := locateSections(obj); ok {
			return renderSections(sections)
		}
	}
	return ""
}
