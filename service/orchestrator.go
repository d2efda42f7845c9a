package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"casecounsel-backend/metrics"
	"casecounsel-backend/models"
	"casecounsel-backend/repository"
	"casecounsel-backend/textutil"

	"github.com/google/uuid"
)

const (
	historyTurns     = 15
	minGatePromptLen = 4

	contextUnavailable = "[Case context is temporarily unavailable. Answer from the conversation and general knowledge, and say so if case details are needed.]"
	apologyMessage     = "I'm sorry, I couldn't complete that request right now because the reasoning service is unavailable. Please try again in a moment."
	redraftApology     = "I'm sorry, the revision could not be generated right now. Your original text is unchanged."
)

const personaPrompt = `You are CaseCounsel, a senior litigation and advisory lawyer working inside a case workspace.
Protocol:
1. Ground every statement in the case context, the grounded research or clearly identified general law.
2. Cite statutes by section and cases by full citation. Never invent an authority.
3. Separate facts on record from assumptions, and say what evidence is missing.
4. Be precise and practical. End with concrete next steps when the user asks for advice or strategy.`

// IsEphemeralCaseID reports whether caseID names a temporary, unsaved workspace
func IsEphemeralCaseID(caseID string) bool {
	id := strings.ToLower(strings.TrimSpace(caseID))
	return strings.HasPrefix(id, "temp") || strings.HasPrefix(id, "ephemeral")
}

// Orchestrator runs the reasoning pipeline for one request
type Orchestrator struct {
	store      repository.CaseStore
	aggregator *ContextAggregator
	gatekeeper *Gatekeeper
	grounding  *GroundingAgent
	classifier GroundingClassifier
	gateway    Gateway
	opts       []Option
	common
}

// OrchestratorOption is a functional option for Orchestrator
type OrchestratorOption func(*Orchestrator)

// OrchestratorWithCaseStore sets the case store
func OrchestratorWithCaseStore(store repository.CaseStore) OrchestratorOption {
	return func(o *Orchestrator) {
		o.store = store
	}
}

// OrchestratorWithAggregator sets the context aggregator
func OrchestratorWithAggregator(a *ContextAggregator) OrchestratorOption {
	return func(o *Orchestrator) {
		o.aggregator = a
	}
}

// OrchestratorWithGatekeeper sets the sufficiency gatekeeper
func OrchestratorWithGatekeeper(g *Gatekeeper) OrchestratorOption {
	return func(o *Orchestrator) {
		o.gatekeeper = g
	}
}

// OrchestratorWithGrounding sets the grounding agent
func OrchestratorWithGrounding(g *GroundingAgent) OrchestratorOption {
	return func(o *Orchestrator) {
		o.grounding = g
	}
}

// OrchestratorWithClassifier replaces the keyword grounding classifier
func OrchestratorWithClassifier(c GroundingClassifier) OrchestratorOption {
	return func(o *Orchestrator) {
		o.classifier = c
	}
}

// OrchestratorWithGateway sets the model gateway
func OrchestratorWithGateway(g Gateway) OrchestratorOption {
	return func(o *Orchestrator) {
		o.gateway = g
	}
}

// OrchestratorWith applies shared options (logger, metrics, clock)
func OrchestratorWith(opts ...Option) OrchestratorOption {
	return func(o *Orchestrator) {
		o.opts = append(o.opts, opts...)
	}
}

// NewOrchestrator creates a new orchestrator
func NewOrchestrator(opts ...OrchestratorOption) *Orchestrator {
	o := &Orchestrator{}
	for _, opt := range opts {
		opt(o)
	}
	o.common = newCommon(o.opts)
	if o.classifier == nil {
		o.classifier = NewKeywordClassifier()
	}
	return o
}

// ReasoningRequest represents one chat turn
type ReasoningRequest struct {
	Prompt      string
	CaseID      string
	SessionID   string
	RequesterID string
	LegalSide   models.LegalSide
	History     []Message
}

// caseScope is the case state one request works against
type caseScope struct {
	attached bool
	record   *models.Case // nil when the store could not be read
	context  string
}

func (o *Orchestrator) jurisdiction(scope caseScope) *models.Jurisdiction {
	if scope.record == nil {
		return nil
	}
	return scope.record.Jurisdiction
}

// loadScope resolves the case for a request. NotFound and Authorization
// are returned; store failures degrade to the unavailable placeholder.
func (o *Orchestrator) loadScope(ctx context.Context, stage, caseID, requesterID string) (caseScope, error) {
	if caseID == "" || IsEphemeralCaseID(caseID) {
		return caseScope{}, nil
	}
	scope := caseScope{attached: true}

	c, err := o.store.GetCase(ctx, caseID)
	if err != nil {
		if errors.Is(err, repository.ErrCaseNotFound) {
			return scope, caseAccessError(stage, err)
		}
		o.logger.Warnf("Warning: Failed to load case %s: %v. Continuing without case context.", caseID, err)
		o.metrics.Stage("context", metrics.OutcomeDegraded)
		scope.context = contextUnavailable
		return scope, nil
	}
	if !c.OwnedBy(requesterID) {
		return scope, caseAccessError(stage, ErrForbidden)
	}

	scope.record = c
	if o.aggregator != nil {
		scope.context = o.aggregator.Assemble(c, requesterID)
	}
	o.metrics.Stage("context", metrics.OutcomeOK)
	return scope, nil
}

func (o *Orchestrator) checkReady() error {
	if o.store == nil {
		return errors.New("case store not set")
	}
	if o.gateway == nil {
		return errors.New("model gateway not set")
	}
	return nil
}

// Run executes the pipeline. Model and source failures never surface as
// errors: the caller always receives an assistant turn. Only invalid
// requests, missing cases and foreign cases return an error.
func (o *Orchestrator) Run(ctx context.Context, req ReasoningRequest) (*models.ReasoningResult, error) {
	if err := o.checkReady(); err != nil {
		return nil, err
	}
	prompt := strings.TrimSpace(req.Prompt)
	if prompt == "" {
		return nil, stageError("orchestrator", KindInvalid, ErrEmptyPrompt)
	}

	scope, err := o.loadScope(ctx, "orchestrator", req.CaseID, req.RequesterID)
	if err != nil {
		return nil, err
	}

	side := req.LegalSide
	if side == "" && scope.record != nil {
		side = scope.record.LegalSide
	}
	side = models.ParseLegalSide(string(side))

	if scope.attached && o.gatekeeper != nil && textutil.Len(prompt) > minGatePromptLen {
		verdict := o.gatekeeper.Check(ctx, prompt, scope.context, o.jurisdiction(scope))
		if verdict.Status == models.StatusNeedsInfo {
			result := &models.ReasoningResult{
				Content: verdict.ClarificationPrompt,
				Role:    models.RoleAssistant,
				Metadata: &models.MessageMetadata{
					Status:        verdict.Status,
					MissingFields: verdict.MissingFields,
				},
			}
			o.persistTurn(ctx, req, prompt, result)
			return result, nil
		}
	}

	var grounded *models.GroundingResult
	if o.grounding != nil && o.classifier.NeedsGrounding(prompt) {
		gr, err := o.grounding.Research(ctx, prompt, o.jurisdiction(scope))
		if err != nil {
			o.logger.Warnf("Warning: Grounding failed: %v. Continuing without grounding.", err)
		} else {
			grounded = &gr
		}
	} else {
		o.metrics.Stage("grounding", metrics.OutcomeSkipped)
	}

	messages := []Message{{Role: models.RoleSystem, Content: buildReasoningPrompt(side, scope.context, grounded)}}
	messages = append(messages, o.history(req, scope)...)
	messages = append(messages, Message{Role: models.RoleUser, Content: prompt})

	content, err := o.gateway.Invoke(ctx, ModelReasoning, messages, InvokeOptions{Temperature: 0.1})
	if err != nil {
		o.logger.Warnf("Warning: Reasoning model failed: %v. Returning apology.", err)
		o.metrics.Stage("reasoning", metrics.OutcomeDegraded)
		content = apologyMessage
	} else {
		o.metrics.Stage("reasoning", metrics.OutcomeOK)
	}

	result := &models.ReasoningResult{
		Content: strings.TrimSpace(content),
		Role:    models.RoleAssistant,
	}
	if grounded != nil {
		result.Citations = models.MergeCitations(grounded.Citations)
	}

	o.persistTurn(ctx, req, prompt, result)
	return result, nil
}

// history returns the last turns from the request, or from the stored
// session when the request carries none
func (o *Orchestrator) history(req ReasoningRequest, scope caseScope) []Message {
	turns := make([]Message, 0, historyTurns)
	if len(req.History) > 0 {
		for _, m := range lastN(req.History, historyTurns) {
			if m.Role == models.RoleSystem || strings.TrimSpace(m.Content) == "" {
				continue
			}
			turns = append(turns, m)
		}
		return turns
	}
	if scope.record == nil {
		return turns
	}

	stored := make([]models.ChatMessage, 0, len(scope.record.Messages))
	for _, m := range scope.record.Messages {
		if req.SessionID == "" || m.SessionID == req.SessionID {
			stored = append(stored, m)
		}
	}
	for _, m := range lastN(stored, historyTurns) {
		turns = append(turns, Message{Role: m.Role, Content: m.Content})
	}
	return turns
}

// persistTurn appends the user and assistant records in one transaction.
// Failures are logged; the answer has already been produced.
func (o *Orchestrator) persistTurn(ctx context.Context, req ReasoningRequest, prompt string, result *models.ReasoningResult) {
	if req.CaseID == "" || IsEphemeralCaseID(req.CaseID) {
		return
	}
	now := o.now()
	userMsg := models.ChatMessage{
		ID:        uuid.NewString(),
		SessionID: req.SessionID,
		Role:      models.RoleUser,
		Content:   prompt,
		CreatedAt: now,
	}
	assistantMsg := models.ChatMessage{
		ID:        uuid.NewString(),
		SessionID: req.SessionID,
		Role:      models.RoleAssistant,
		Content:   result.Content,
		Citations: result.Citations,
		Metadata:  result.Metadata,
		CreatedAt: now,
	}

	err := o.store.Transactionally(ctx, func(tx repository.CaseTx) error {
		current, err := tx.Get(ctx, req.CaseID)
		if err != nil {
			return err
		}
		if !current.OwnedBy(req.RequesterID) {
			return ErrForbidden
		}
		current.Messages = append(current.Messages, userMsg, assistantMsg)
		return tx.Update(ctx, current)
	})
	if err != nil {
		o.logger.Errorf("Failed to persist chat turn for case %s: %v", req.CaseID, err)
	}
}

func buildReasoningPrompt(side models.LegalSide, caseContext string, grounded *models.GroundingResult) string {
	var b strings.Builder
	b.WriteString(personaPrompt)
	b.WriteString("\n\n")
	b.WriteString(DirectiveFor(side))

	if strings.TrimSpace(caseContext) != "" {
		b.WriteString("\n\n=== CASE CONTEXT ===\n")
		b.WriteString(caseContext)
	}
	if grounded != nil {
		b.WriteString("\n\n=== GROUNDED RESEARCH ===\n")
		b.WriteString(grounded.Answer)
		if len(grounded.Citations) > 0 {
			b.WriteString("\n\nAuthorities:\n")
			for _, c := range grounded.Citations {
				fmt.Fprintf(&b, "- %s", c.Title)
				if c.CitationRef != "" {
					fmt.Fprintf(&b, ", %s", c.CitationRef)
				}
				if c.Court != "" {
					fmt.Fprintf(&b, " (%s)", c.Court)
				}
				b.WriteString("\n")
			}
		}
	}
	return b.String()
}

// ResearchRequest represents a direct research query
type ResearchRequest struct {
	Query        string
	CaseID       string
	RequesterID  string
	Jurisdiction *models.Jurisdiction
}

// Research runs the grounding agent directly. Case-attached results are
// appended to the case's research history.
func (o *Orchestrator) Research(ctx context.Context, req ResearchRequest) (*models.GroundingResult, error) {
	if err := o.checkReady(); err != nil {
		return nil, err
	}
	if o.grounding == nil {
		return nil, errors.New("grounding agent not set")
	}
	query := strings.TrimSpace(req.Query)
	if query == "" {
		return nil, stageError("research", KindInvalid, ErrEmptyPrompt)
	}

	scope, err := o.loadScope(ctx, "research", req.CaseID, req.RequesterID)
	if err != nil {
		return nil, err
	}
	jurisdiction := req.Jurisdiction
	if jurisdiction.IsZero() {
		jurisdiction = o.jurisdiction(scope)
	}

	result, err := o.grounding.Research(ctx, query, jurisdiction)
	if err != nil {
		o.logger.Warnf("Warning: Research failed: %v. Returning apology.", err)
		result.Answer = apologyMessage
		return &result, nil
	}

	if scope.attached {
		entry := models.ResearchEntry{
			ID:        uuid.NewString(),
			Query:     query,
			Answer:    result.Answer,
			Citations: result.Citations,
			CreatedAt: o.now(),
		}
		err := o.store.Transactionally(ctx, func(tx repository.CaseTx) error {
			current, err := tx.Get(ctx, req.CaseID)
			if err != nil {
				return err
			}
			if !current.OwnedBy(req.RequesterID) {
				return ErrForbidden
			}
			current.ResearchHistory = append(current.ResearchHistory, entry)
			return tx.Update(ctx, current)
		})
		if err != nil {
			o.logger.Errorf("Failed to persist research for case %s: %v", req.CaseID, err)
		}
	}
	return &result, nil
}

// RedraftRequest asks for an edit of a drafted text
type RedraftRequest struct {
	CaseID      string
	RequesterID string
	Text        string
	Instruction string
	LegalSide   models.LegalSide
}

// RedraftResult is the revised text, or a clarification when the gate declined
type RedraftResult struct {
	Content  string                  `json:"content"`
	Revised  bool                    `json:"revised"`
	Metadata *models.MessageMetadata `json:"metadata,omitempty"`
}

const redraftSystemPrompt = `You are a legal drafting editor. Apply the instruction to the text.
Keep defined terms, numbering and citations consistent. Do not change provisions the instruction does not touch.
Return only the full revised text.`

// Redraft edits text under the case's legal-side directive
func (o *Orchestrator) Redraft(ctx context.Context, req RedraftRequest) (*RedraftResult, error) {
	if err := o.checkReady(); err != nil {
		return nil, err
	}
	if req.CaseID == "" {
		return nil, stageError("redraft", KindInvalid, ErrCaseRequired)
	}
	instruction := strings.TrimSpace(req.Instruction)
	if instruction == "" || strings.TrimSpace(req.Text) == "" {
		return nil, stageError("redraft", KindInvalid, errors.New("text and instruction are required"))
	}

	scope, err := o.loadScope(ctx, "redraft", req.CaseID, req.RequesterID)
	if err != nil {
		return nil, err
	}
	side := req.LegalSide
	if side == "" && scope.record != nil {
		side = scope.record.LegalSide
	}
	side = models.ParseLegalSide(string(side))

	if o.gatekeeper != nil {
		verdict := o.gatekeeper.Check(ctx, instruction, scope.context, o.jurisdiction(scope))
		if verdict.Status == models.StatusNeedsInfo {
			return &RedraftResult{
				Content: verdict.ClarificationPrompt,
				Metadata: &models.MessageMetadata{
					Status:        verdict.Status,
					MissingFields: verdict.MissingFields,
				},
			}, nil
		}
	}

	system := redraftSystemPrompt + "\n\n" + DirectiveFor(side)
	if scope.context != "" {
		system += "\n\n=== CASE CONTEXT ===\n" + scope.context
	}
	revised, err := o.gateway.Invoke(ctx, ModelResearch, []Message{
		{Role: models.RoleSystem, Content: system},
		{Role: models.RoleUser, Content: fmt.Sprintf("INSTRUCTION:\n%s\n\nTEXT:\n%s", instruction, req.Text)},
	}, InvokeOptions{Temperature: 0.1})
	if err != nil {
		o.logger.Warnf("Warning: Redraft failed: %v. Returning original text.", err)
		o.metrics.Stage("redraft", metrics.OutcomeDegraded)
		return &RedraftResult{Content: req.Text + "\n\n> " + redraftApology}, nil
	}
	o.metrics.Stage("redraft", metrics.OutcomeOK)
	return &RedraftResult{Content: strings.TrimSpace(revised), Revised: true}, nil
}

// AnalyzeRequest asks for a tactical analysis of a case
type AnalyzeRequest struct {
	CaseID      string
	RequesterID string
	LegalSide   models.LegalSide
	Focus       string
}

const analyzeInstruction = `Produce a tactical analysis of this case with these headings:
### Key Issues
### Strengths
### Weaknesses and Risks
### Evidence Gaps
### Recommended Strategy
### Next Steps`

// Analyze runs a tactical analysis over the whole case context
func (o *Orchestrator) Analyze(ctx context.Context, req AnalyzeRequest) (*models.ReasoningResult, error) {
	if err := o.checkReady(); err != nil {
		return nil, err
	}
	if req.CaseID == "" || IsEphemeralCaseID(req.CaseID) {
		return nil, stageError("analyze", KindInvalid, ErrCaseRequired)
	}

	scope, err := o.loadScope(ctx, "analyze", req.CaseID, req.RequesterID)
	if err != nil {
		return nil, err
	}
	side := req.LegalSide
	if side == "" && scope.record != nil {
		side = scope.record.LegalSide
	}
	side = models.ParseLegalSide(string(side))

	instruction := analyzeInstruction
	if focus := strings.TrimSpace(req.Focus); focus != "" {
		instruction += "\n\nFocus especially on: " + focus
	}

	content, err := o.gateway.Invoke(ctx, ModelReasoning, []Message{
		{Role: models.RoleSystem, Content: buildReasoningPrompt(side, scope.context, nil)},
		{Role: models.RoleUser, Content: instruction},
	}, InvokeOptions{Temperature: 0.1})
	if err != nil {
		o.logger.Warnf("Warning: Analysis failed: %v. Returning apology.", err)
		o.metrics.Stage("analyze", metrics.OutcomeDegraded)
		content = apologyMessage
	} else {
		o.metrics.Stage("analyze", metrics.OutcomeOK)
	}
	return &models.ReasoningResult{Content: strings.TrimSpace(content), Role: models.RoleAssistant}, nil
}
