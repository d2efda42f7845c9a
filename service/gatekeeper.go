package service

import (
	"context"
	"fmt"
	"strings"

	"casecounsel-backend/metrics"
	"casecounsel-backend/models"
	"casecounsel-backend/textutil"
)

const gatekeeperContextChars = 6000

const gatekeeperSystemPrompt = `You are the intake gatekeeper of a legal drafting assistant. Decide whether the request can be answered well with the information available.
Policy:
1. Drafting, analysis or strategy commands about a specific matter require BOTH the jurisdiction (country and state) AND the parties involved.
2. Never assume an unstated jurisdiction. If the jurisdiction is not given in the request, the case context or the KNOWN JURISDICTION line, ask for it. Do not guess a specific state.
3. Generic, template or educational requests ("draft a standard NDA template", "what is bail") are always SUFFICIENT.
4. Questions about the case file itself are SUFFICIENT.
5. Be brief: ask only for what is missing.
Return only JSON:
{"status": "SUFFICIENT" | "NEEDS_INFO", "missing_fields": ["Jurisdiction", "Parties", ...], "clarification_prompt": "<question to the user>", "sufficiency_score": 0-100}`

// Gatekeeper is the pre-flight sufficiency check. It fails open.
type Gatekeeper struct {
	common
	gateway Gateway
}

// NewGatekeeper creates a gatekeeper
func NewGatekeeper(gateway Gateway, opts ...Option) *Gatekeeper {
	return &Gatekeeper{common: newCommon(opts), gateway: gateway}
}

// Check returns the verdict for prompt. Any model or parse failure yields
// the sufficient verdict.
func (g *Gatekeeper) Check(ctx context.Context, prompt, caseContext string, jurisdiction *models.Jurisdiction) models.SufficiencyVerdict {
	verdict, err := g.check(ctx, prompt, caseContext, jurisdiction)
	if err != nil {
		g.logger.Warnf("Warning: Sufficiency check failed, proceeding: %v", err)
		g.metrics.Stage("gatekeeper", metrics.OutcomeDegraded)
		return models.SufficientVerdict()
	}
	if verdict.Status == models.StatusNeedsInfo {
		g.metrics.Stage("gatekeeper", metrics.OutcomeBlocked)
	} else {
		g.metrics.Stage("gatekeeper", metrics.OutcomeOK)
	}
	return verdict
}

func (g *Gatekeeper) check(ctx context.Context, prompt, caseContext string, jurisdiction *models.Jurisdiction) (models.SufficiencyVerdict, error) {
	known := jurisdiction.String()
	if known == "" {
		known = "NONE (not provided)"
	}
	user := fmt.Sprintf("REQUEST:\n%s\n\nKNOWN JURISDICTION: %s\n\nCASE CONTEXT:\n%s",
		strings.TrimSpace(prompt), known, textutil.Truncate(caseContext, gatekeeperContextChars))

	raw, err := g.gateway.Invoke(ctx, ModelResearch, []Message{
		{Role: models.RoleSystem, Content: gatekeeperSystemPrompt},
		{Role: models.RoleUser, Content: user},
	}, InvokeOptions{Temperature: 0, JSON: true})
	if err != nil {
		return models.SufficiencyVerdict{}, stageError("gatekeeper", KindTransport, err)
	}

	var verdict models.SufficiencyVerdict
	if err := parseModelJSON("gatekeeper", raw, &verdict); err != nil {
		return models.SufficiencyVerdict{}, err
	}
	return normalizeVerdict(verdict)
}

func normalizeVerdict(v models.SufficiencyVerdict) (models.SufficiencyVerdict, error) {
	v.Status = models.SufficiencyStatus(strings.ToUpper(strings.TrimSpace(string(v.Status))))
	switch v.Status {
	case models.StatusSufficient:
		v.MissingFields = nil
		v.ClarificationPrompt = ""
		if v.SufficiencyScore <= 0 {
			v.SufficiencyScore = 100
		}
	case models.StatusNeedsInfo:
		if strings.TrimSpace(v.ClarificationPrompt) == "" {
			if len(v.MissingFields) == 0 {
				v.ClarificationPrompt = "Could you share more details about the matter before I proceed?"
			} else {
				v.ClarificationPrompt = fmt.Sprintf("Before I proceed, please provide: %s.", strings.Join(v.MissingFields, ", "))
			}
		}
	default:
		return v, stageError("gatekeeper", KindParse, fmt.Errorf("unknown status %q", v.Status))
	}
	if v.SufficiencyScore < 0 {
		v.SufficiencyScore = 0
	}
	if v.SufficiencyScore > 100 {
		v.SufficiencyScore = 100
	}
	return v, nil
}
