package service

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"casecounsel-backend/caselaw"
	"casecounsel-backend/models"
	"casecounsel-backend/repository"
)

// stage names used by fakeGateway to route calls by system prompt
const (
	stageGatekeeper   = "gatekeeper"
	stageGrounding    = "grounding"
	stageVerification = "verification"
	stageSummarize    = "summarize"
	stageRedraft      = "redraft"
	stageReasoning    = "reasoning"
)

func stageOf(messages []Message) string {
	if len(messages) == 0 || messages[0].Role != models.RoleSystem {
		return ""
	}
	system := messages[0].Content
	switch {
	case system == gatekeeperSystemPrompt:
		return stageGatekeeper
	case system == groundingSystemPrompt:
		return stageGrounding
	case system == verificationSystemPrompt:
		return stageVerification
	case system == summarizerPrompt:
		return stageSummarize
	case strings.HasPrefix(system, redraftSystemPrompt):
		return stageRedraft
	case strings.HasPrefix(system, personaPrompt):
		return stageReasoning
	}
	return ""
}

type gatewayCall struct {
	Key      ModelKey
	Stage    string
	Messages []Message
	Opts     InvokeOptions
}

type reply struct {
	text string
	err  error
}

// fakeGateway answers per pipeline stage and records every call
type fakeGateway struct {
	mu      sync.Mutex
	calls   []gatewayCall
	replies map[string]reply
	hook    func(stage string)
}

func newFakeGateway() *fakeGateway {
	return &fakeGateway{replies: make(map[string]reply)}
}

func (f *fakeGateway) on(stage, text string) *fakeGateway {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.replies[stage] = reply{text: text}
	return f
}

func (f *fakeGateway) fail(stage string, err error) *fakeGateway {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.replies[stage] = reply{err: err}
	return f
}

func (f *fakeGateway) Invoke(ctx context.Context, key ModelKey, messages []Message, opts InvokeOptions) (string, error) {
	stage := stageOf(messages)
	f.mu.Lock()
	f.calls = append(f.calls, gatewayCall{Key: key, Stage: stage, Messages: append([]Message(nil), messages...), Opts: opts})
	r, ok := f.replies[stage]
	hook := f.hook
	f.mu.Unlock()

	if hook != nil {
		hook(stage)
	}
	if !ok {
		return "", &ModelError{Key: key, Message: "no reply configured for " + stage}
	}
	if r.err != nil {
		return "", &ModelError{Key: key, Message: "call failed", Err: r.err}
	}
	return r.text, nil
}

func (f *fakeGateway) count(stage string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.calls {
		if c.Stage == stage {
			n++
		}
	}
	return n
}

func (f *fakeGateway) last(stage string) (gatewayCall, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := len(f.calls) - 1; i >= 0; i-- {
		if f.calls[i].Stage == stage {
			return f.calls[i], true
		}
	}
	return gatewayCall{}, false
}

// fakeSource is a scripted primary source
type fakeSource struct {
	configured bool
	docs       []caselaw.Doc
	searchErr  error
	fullText   string
	fetchErr   error

	mu      sync.Mutex
	queries []string
	fetched []string
}

func (f *fakeSource) Configured() bool { return f.configured }

func (f *fakeSource) Search(ctx context.Context, query string, limit int) ([]caselaw.Doc, error) {
	f.mu.Lock()
	f.queries = append(f.queries, query)
	f.mu.Unlock()
	if f.searchErr != nil {
		return nil, f.searchErr
	}
	return f.docs, nil
}

func (f *fakeSource) FetchFullText(ctx context.Context, externalID string) (string, error) {
	f.mu.Lock()
	f.fetched = append(f.fetched, externalID)
	f.mu.Unlock()
	if f.fetchErr != nil {
		return "", f.fetchErr
	}
	return f.fullText, nil
}

// recordingScheduler counts Schedule calls
type recordingScheduler struct {
	mu    sync.Mutex
	calls []string
}

func (r *recordingScheduler) Schedule(caseID, requesterID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, caseID+"/"+requesterID)
	return true
}

func (r *recordingScheduler) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.calls)
}

// countingStore wraps a CaseStore and counts committed summary writes
type countingStore struct {
	repository.CaseStore
	mu            sync.Mutex
	summaryWrites int
	getErr        error
}

func (s *countingStore) GetCase(ctx context.Context, caseID string) (*models.Case, error) {
	if s.getErr != nil {
		return nil, s.getErr
	}
	return s.CaseStore.GetCase(ctx, caseID)
}

func (s *countingStore) Transactionally(ctx context.Context, fn func(tx repository.CaseTx) error) error {
	wrote := false
	err := s.CaseStore.Transactionally(ctx, func(tx repository.CaseTx) error {
		return fn(&countingTx{CaseTx: tx, onSummary: func() { wrote = true }})
	})
	if err == nil && wrote {
		s.mu.Lock()
		s.summaryWrites++
		s.mu.Unlock()
	}
	return err
}

func (s *countingStore) writes() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.summaryWrites
}

type countingTx struct {
	repository.CaseTx
	onSummary func()
}

func (t *countingTx) Update(ctx context.Context, c *models.Case) error {
	before, err := t.CaseTx.Get(ctx, c.ID)
	if err == nil && (!sameSummary(before.GlobalContextSummary, c.GlobalContextSummary) ||
		!sameTime(before.LastSummarizedAt, c.LastSummarizedAt)) {
		t.onSummary()
	}
	return t.CaseTx.Update(ctx, c)
}

func sameSummary(a, b *string) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

func sameTime(a, b *time.Time) bool {
	if a == nil || b == nil {
		return a == b
	}
	return a.Equal(*b)
}

var errUnavailable = errors.New("service unavailable")

// fixedClock is a settable clock for cooldown tests
type fixedClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fixedClock) now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fixedClock) advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

func newCase(store repository.CaseStore, owner string, mutate func(c *models.Case)) *models.Case {
	c := &models.Case{
		CreatorUID: owner,
		Title:      "State v. Mehta",
		Client:     "R. Mehta",
		Status:     models.CaseStatusActive,
		LegalSide:  models.LegalSideDefense,
	}
	if mutate != nil {
		mutate(c)
	}
	if err := store.CreateCase(context.Background(), c); err != nil {
		panic(err)
	}
	return c
}
