package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"casecounsel-backend/models"
	"casecounsel-backend/repository"
	"casecounsel-backend/textutil"
)

const (
	SummaryCooldown    = time.Hour
	maxSummaryInput    = 800000
	defaultSummaryWait = 10 * time.Second
	defaultJobTimeout  = 3 * time.Minute
)

const summarizerPrompt = `You are a legal archivist compressing a case file for later use by another lawyer.
Rules:
1. Never drop names of people, companies, courts or judges.
2. Never drop dates, amounts, figures, section numbers or case citations.
3. Keep every factual allegation, admission, order and deadline.
4. Compress narrative prose into short bullet points grouped under headings
   (Parties, Timeline, Documents, Issues, Research, Open Questions).
5. Do not add analysis or opinions that are not in the source.
Return only the compressed summary.`

// SummaryOutcome is the result of one summarization attempt
type SummaryOutcome string

const (
	SummaryWritten         SummaryOutcome = "completed"
	SummarySkippedCooldown SummaryOutcome = "skipped_cooldown"
	SummarySkippedAccess   SummaryOutcome = "skipped_access"
	SummaryFailed          SummaryOutcome = "failed"
)

// SummaryJobRecorder tracks summarization runs
type SummaryJobRecorder interface {
	Create(ctx context.Context, job *models.SummaryJob) error
	Start(ctx context.Context, id string, inputChars int) error
	Finish(ctx context.Context, id string, status models.SummaryJobStatus, summaryChars int) error
	Fail(ctx context.Context, id string, errorMessage string) error
}

// Summarizer regenerates a case's compressed context summary
type Summarizer struct {
	common
	store    repository.CaseStore
	gateway  Gateway
	jobs     SummaryJobRecorder
	cooldown time.Duration
}

// NewSummarizer creates a summarizer. jobs may be nil.
func NewSummarizer(store repository.CaseStore, gateway Gateway, jobs SummaryJobRecorder, opts ...Option) *Summarizer {
	return &Summarizer{
		common:   newCommon(opts),
		store:    store,
		gateway:  gateway,
		jobs:     jobs,
		cooldown: SummaryCooldown,
	}
}

func (s *Summarizer) coolingDown(c *models.Case) bool {
	return c.LastSummarizedAt != nil && s.now().Sub(*c.LastSummarizedAt) < s.cooldown
}

// SummarizeCase compresses the whole case and stores the summary. The
// ownership and cooldown checks are repeated inside the write transaction,
// so of two racing runs only one commits.
func (s *Summarizer) SummarizeCase(ctx context.Context, caseID, requesterID string) (SummaryOutcome, error) {
	job := s.startJob(ctx, caseID, requesterID)

	c, err := s.store.GetCase(ctx, caseID)
	if err != nil {
		if errors.Is(err, repository.ErrCaseNotFound) {
			s.finishJob(ctx, job, models.SummaryJobSkipped, 0)
			return s.record(SummarySkippedAccess), nil
		}
		s.failJob(ctx, job, err)
		return s.record(SummaryFailed), stageError("summarize", KindTransport, err)
	}
	if !c.OwnedBy(requesterID) {
		s.finishJob(ctx, job, models.SummaryJobSkipped, 0)
		return s.record(SummarySkippedAccess), nil
	}
	if s.coolingDown(c) {
		s.finishJob(ctx, job, models.SummaryJobSkipped, 0)
		return s.record(SummarySkippedCooldown), nil
	}

	input := FullCaseText(c, maxSummaryInput)
	if job != nil {
		if err := s.jobs.Start(ctx, job.ID, textutil.Len(input)); err != nil {
			s.logger.Warnf("Warning: Failed to mark summary job %s started: %v", job.ID, err)
		}
	}

	summary, err := s.gateway.Invoke(ctx, ModelResearch, []Message{
		{Role: models.RoleSystem, Content: summarizerPrompt},
		{Role: models.RoleUser, Content: input},
	}, InvokeOptions{Temperature: 0})
	if err != nil {
		s.failJob(ctx, job, err)
		return s.record(SummaryFailed), stageError("summarize", KindTransport, err)
	}
	summary = strings.TrimSpace(summary)

	outcome := SummaryWritten
	err = s.store.Transactionally(ctx, func(tx repository.CaseTx) error {
		current, err := tx.Get(ctx, caseID)
		if err != nil {
			return err
		}
		if !current.OwnedBy(requesterID) {
			outcome = SummarySkippedAccess
			return nil
		}
		if s.coolingDown(current) {
			outcome = SummarySkippedCooldown
			return nil
		}
		now := s.now()
		current.GlobalContextSummary = &summary
		current.LastSummarizedAt = &now
		return tx.Update(ctx, current)
	})
	if err != nil {
		s.failJob(ctx, job, err)
		return s.record(SummaryFailed), stageError("summarize", KindTransport, err)
	}

	if outcome == SummaryWritten {
		s.logger.Infof("Case %s summarized: %d chars -> %d chars", caseID, textutil.Len(input), textutil.Len(summary))
		s.finishJob(ctx, job, models.SummaryJobCompleted, textutil.Len(summary))
	} else {
		s.finishJob(ctx, job, models.SummaryJobSkipped, 0)
	}
	return s.record(outcome), nil
}

func (s *Summarizer) record(outcome SummaryOutcome) SummaryOutcome {
	s.metrics.Summary(string(outcome))
	return outcome
}

func (s *Summarizer) startJob(ctx context.Context, caseID, requesterID string) *models.SummaryJob {
	if s.jobs == nil {
		return nil
	}
	job := &models.SummaryJob{CaseID: caseID, RequesterUID: requesterID}
	if err := s.jobs.Create(ctx, job); err != nil {
		s.logger.Warnf("Warning: Failed to record summary job for case %s: %v", caseID, err)
		return nil
	}
	return job
}

func (s *Summarizer) finishJob(ctx context.Context, job *models.SummaryJob, status models.SummaryJobStatus, summaryChars int) {
	if job == nil {
		return
	}
	if err := s.jobs.Finish(ctx, job.ID, status, summaryChars); err != nil {
		s.logger.Warnf("Warning: Failed to finish summary job %s: %v", job.ID, err)
	}
}

func (s *Summarizer) failJob(ctx context.Context, job *models.SummaryJob, cause error) {
	if job == nil {
		return
	}
	// the run context may be gone; the failure should still be recorded
	recordCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if err := s.jobs.Fail(recordCtx, job.ID, cause.Error()); err != nil {
		s.logger.Warnf("Warning: Failed to mark summary job %s failed: %v", job.ID, err)
	}
}

// CaseSummarizer is what the queue runs
type CaseSummarizer interface {
	SummarizeCase(ctx context.Context, caseID, requesterID string) (SummaryOutcome, error)
}

// SummaryQueue runs summarizations in the background after a settle delay.
// Pending jobs are deduplicated per case. Shutdown runs every pending job
// immediately and waits for them.
type SummaryQueue struct {
	common
	summarizer CaseSummarizer
	delay      time.Duration
	jobTimeout time.Duration

	mu      sync.Mutex
	pending map[string]bool
	closed  bool
	flush   chan struct{}
	wg      sync.WaitGroup

	runCtx context.Context
	cancel context.CancelFunc
}

// QueueOption is a functional option for SummaryQueue
type QueueOption func(*SummaryQueue)

// QueueWithDelay sets the settle delay before a job runs
func QueueWithDelay(d time.Duration) QueueOption {
	return func(q *SummaryQueue) {
		if d >= 0 {
			q.delay = d
		}
	}
}

// QueueWithJobTimeout bounds each job
func QueueWithJobTimeout(d time.Duration) QueueOption {
	return func(q *SummaryQueue) {
		if d > 0 {
			q.jobTimeout = d
		}
	}
}

// QueueWith applies shared options
func QueueWith(opts ...Option) QueueOption {
	return func(q *SummaryQueue) {
		q.common = newCommon(opts)
	}
}

// NewSummaryQueue creates a queue in front of summarizer
func NewSummaryQueue(summarizer CaseSummarizer, opts ...QueueOption) *SummaryQueue {
	runCtx, cancel := context.WithCancel(context.Background())
	q := &SummaryQueue{
		common:     newCommon(nil),
		summarizer: summarizer,
		delay:      defaultSummaryWait,
		jobTimeout: defaultJobTimeout,
		pending:    make(map[string]bool),
		flush:      make(chan struct{}),
		runCtx:     runCtx,
		cancel:     cancel,
	}
	for _, opt := range opts {
		opt(q)
	}
	return q
}

// Schedule implements SummaryScheduler
func (q *SummaryQueue) Schedule(caseID, requesterID string) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed || q.pending[caseID] {
		return false
	}
	q.pending[caseID] = true
	q.wg.Add(1)
	go q.run(caseID, requesterID)
	return true
}

// Pending reports whether a job for caseID is waiting to run
func (q *SummaryQueue) Pending(caseID string) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.pending[caseID]
}

func (q *SummaryQueue) run(caseID, requesterID string) {
	defer q.wg.Done()

	timer := time.NewTimer(q.delay)
	select {
	case <-timer.C:
	case <-q.flush:
		timer.Stop()
	}

	q.mu.Lock()
	delete(q.pending, caseID)
	q.mu.Unlock()

	ctx, cancel := context.WithTimeout(q.runCtx, q.jobTimeout)
	defer cancel()

	defer func() {
		if r := recover(); r != nil {
			q.logger.Errorf("Summary job for case %s panicked: %v", caseID, r)
		}
	}()

	outcome, err := q.summarizer.SummarizeCase(ctx, caseID, requesterID)
	if err != nil {
		q.logger.Errorf("Summary job for case %s failed: %v", caseID, err)
		return
	}
	q.logger.Infof("Summary job for case %s finished: %s", caseID, outcome)
}

// Shutdown stops accepting jobs, runs pending ones now and waits for them.
// If ctx ends first, running jobs are cancelled and ctx's error is returned
// once they have returned.
func (q *SummaryQueue) Shutdown(ctx context.Context) error {
	q.mu.Lock()
	if !q.closed {
		q.closed = true
		close(q.flush)
	}
	q.mu.Unlock()

	done := make(chan struct{})
	go func() {
		q.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		q.cancel()
		return nil
	case <-ctx.Done():
		q.cancel()
		<-done
		return fmt.Errorf("summary queue shutdown: %w", ctx.Err())
	}
}
