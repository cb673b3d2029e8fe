// Package pipeline is the session state machine. Each operation checks the
// session phase, runs the phase handler, validates its output and commits
// the new session snapshot through the store. Events go to the journal and
// the notifier only after the commit succeeds.
package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"frameforge/internal/domain"
	"frameforge/internal/events"
	"frameforge/internal/schema"
	"frameforge/internal/store"
)

const (
	// DefaultMaxRevisions is the revision cap of the default configuration.
	DefaultMaxRevisions = 5
	// DefaultAnswerThreshold is the share of required questions that must be answered.
	DefaultAnswerThreshold = 0.8
)

// Refiner produces a prompt refinement and revises it from user feedback.
type Refiner interface {
	Refine(ctx context.Context, prompt string) (json.RawMessage, error)
	Revise(ctx context.Context, original, previous, feedback string) (json.RawMessage, error)
}

// Questioner builds the clarifying question set.
type Questioner interface {
	Questions(ctx context.Context, prompt string, answers map[string]any) (json.RawMessage, error)
}

// Narrator analyzes the story arc, tone and pacing.
type Narrator interface {
	Analyze(ctx context.Context, prompt string, answers map[string]any) (json.RawMessage, error)
}

// Planner turns the narrative analysis into a scene plan.
type Planner interface {
	Plan(ctx context.Context, prompt string, answers map[string]any, narrative domain.NarrativeAnalysis) (json.RawMessage, error)
}

// Notifier accepts events for best-effort delivery. Dispatch must not block.
type Notifier interface {
	Dispatch(evt events.Event, cfg domain.WebhookConfig) bool
}

// Handlers groups the phase handlers. Their output is validated before commit.
type Handlers struct {
	Refiner    Refiner
	Questioner Questioner
	Narrator   Narrator
	Planner    Planner
}

// Options tunes a Pipeline. A nil Journal, Notifier, Logger or Now gets an
// in-process default.
type Options struct {
	// MaxRevisions caps rejected refinements per session. Zero means no cap.
	MaxRevisions int
	// AnswerThreshold is the share of required questions that must be
	// answered before the narrative phase. Values outside (0, 1] fall back
	// to DefaultAnswerThreshold.
	AnswerThreshold float64
	// WebhookURLPrefixes restricts webhook URLs. Empty means the Discord
	// webhook prefix.
	WebhookURLPrefixes []string
	Journal            events.Journal
	Notifier           Notifier
	Logger             *zap.Logger
	Now                func() time.Time
}

// Pipeline runs sessions through the phases. It is safe for concurrent use.
type Pipeline struct {
	store    *store.Store
	handlers Handlers
	opts     Options
	journal  events.Journal
	notifier Notifier
	log      *zap.Logger
	now      func() time.Time
}

type noopNotifier struct{}

func (noopNotifier) Dispatch(events.Event, domain.WebhookConfig) bool { return false }

// New builds a Pipeline over st. Handlers must all be set.
func New(st *store.Store, h Handlers, opts Options) *Pipeline {
	if opts.AnswerThreshold <= 0 || opts.AnswerThreshold > 1 {
		opts.AnswerThreshold = DefaultAnswerThreshold
	}
	if opts.MaxRevisions < 0 {
		opts.MaxRevisions = 0
	}
	if len(opts.WebhookURLPrefixes) == 0 {
		opts.WebhookURLPrefixes = []string{schema.DefaultWebhookPrefix}
	}
	p := &Pipeline{
		store:    st,
		handlers: h,
		opts:     opts,
		journal:  opts.Journal,
		notifier: opts.Notifier,
		log:      opts.Logger,
		now:      opts.Now,
	}
	if p.journal == nil {
		p.journal = events.NewMemoryJournal()
	}
	if p.notifier == nil {
		p.notifier = noopNotifier{}
	}
	if p.log == nil {
		p.log = zap.NewNop()
	}
	p.log = p.log.Named("pipeline")
	if p.now == nil {
		p.now = time.Now
	}
	return p
}

// Progress reports how far a session is through its required questions.
type Progress struct {
	Required  int     `json:"required"`
	Answered  int     `json:"answered"`
	Needed    int     `json:"needed"`
	Ratio     float64 `json:"ratio"`
	Threshold float64 `json:"threshold"`
	Satisfied bool    `json:"satisfied"`
}

func (p *Pipeline) progress(s domain.Session) Progress {
	out := Progress{Threshold: p.opts.AnswerThreshold, Ratio: 1}
	if s.Questions == nil {
		out.Satisfied = true
		return out
	}
	for _, q := range s.Questions.Questions {
		if !q.Required {
			continue
		}
		out.Required++
		if _, ok := s.Answers[q.ID]; ok {
			out.Answered++
		}
	}
	if out.Required > 0 {
		out.Ratio = float64(out.Answered) / float64(out.Required)
		out.Needed = int(math.Ceil(p.opts.AnswerThreshold*float64(out.Required) - 1e-9))
	}
	out.Satisfied = out.Answered >= out.Needed
	return out
}

func (p *Pipeline) requireAnswers(op string, s domain.Session) error {
	prog := p.progress(s)
	if prog.Satisfied {
		return nil
	}
	return &PreconditionError{
		Op: op,
		Condition: fmt.Sprintf("%d of %d required questions answered, at least %d needed",
			prog.Answered, prog.Required, prog.Needed),
		Details: map[string]any{
			"required":  prog.Required,
			"answered":  prog.Answered,
			"needed":    prog.Needed,
			"threshold": prog.Threshold,
		},
	}
}

// CreateSession registers a session in AWAITING_PROMPT. An empty id gets a
// fresh UUID; an existing id is returned as is.
func (p *Pipeline) CreateSession(ctx context.Context, id string) (domain.SessionView, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		id = uuid.NewString()
	}
	if s, err := p.store.Get(id); err == nil {
		return s.View(), nil
	}
	s, err := p.store.Update(ctx, id, true, func(*domain.Session) error { return nil })
	if err != nil {
		return domain.SessionView{}, err
	}
	p.log.Info("session created", zap.String("session_id", id))
	return s.View(), nil
}

func (p *Pipeline) Status(id string) (domain.SessionView, error) {
	s, err := p.store.Get(id)
	if err != nil {
		return domain.SessionView{}, err
	}
	return s.View(), nil
}

func (p *Pipeline) Sessions() []domain.SessionView {
	all := p.store.List()
	out := make([]domain.SessionView, 0, len(all))
	for _, s := range all {
		out = append(out, s.View())
	}
	return out
}

// Events returns the newest limit journal entries of a session.
func (p *Pipeline) Events(ctx context.Context, id string, limit int) ([]events.Event, error) {
	if _, err := p.store.Get(id); err != nil {
		return nil, err
	}
	return p.journal.List(ctx, id, limit)
}

// Refine runs the refinement handler on the original prompt. Calling it
// again with the same prompt after refinement returns the stored result.
func (p *Pipeline) Refine(ctx context.Context, id, prompt string) (domain.RefinementResult, error) {
	const op = "refine"
	var out domain.RefinementResult
	_, err := p.transition(ctx, op, id, true, func(s *domain.Session, t *txn) error {
		switch {
		case s.Phase == domain.PhaseAwaitingPrompt:
		case s.Refinement != nil && strings.TrimSpace(s.OriginalPrompt) == strings.TrimSpace(prompt):
			out = *s.Refinement
			return store.ErrSkip
		default:
			return invalidState(op, s.Phase, domain.PhaseAwaitingPrompt)
		}
		raw, err := p.handlers.Refiner.Refine(ctx, prompt)
		if err != nil {
			return t.handlerFailed(s, op, fmt.Errorf("refine prompt: %w", err))
		}
		res, err := schema.Refinement(raw)
		if err != nil {
			return t.handlerFailed(s, op, err)
		}
		s.OriginalPrompt = prompt
		s.Refinement = &res
		s.Phase = domain.PhasePromptRefined
		out = res
		t.succeed(events.PromptRefinementImproved, "Prompt analyzed and improved", map[string]any{
			"issues_detected":   len(res.IssuesDetected),
			"improvements_made": len(res.ImprovementsMade),
			"action":            res.UserActionRequired,
		})
		return nil
	})
	return out, err
}

// Approve accepts the current refinement or, when approved is false,
// revises it with feedback and stays in PROMPT_REFINED.
func (p *Pipeline) Approve(ctx context.Context, id string, approved bool, feedback string) (domain.RefinementResult, error) {
	if !approved {
		return p.revise(ctx, id, feedback)
	}
	const op = "approve"
	var out domain.RefinementResult
	_, err := p.transition(ctx, op, id, false, func(s *domain.Session, t *txn) error {
		switch {
		case s.Phase == domain.PhasePromptRefined:
		case s.Phase.Reached(domain.PhasePromptApproved):
			out = *s.Refinement
			return store.ErrSkip
		default:
			return invalidState(op, s.Phase, domain.PhasePromptRefined)
		}
		s.ApprovedPrompt = s.Refinement.ImprovedPrompt
		s.Phase = domain.PhasePromptApproved
		out = *s.Refinement
		t.succeed(events.PromptRefinementApproved, "Refined prompt approved", map[string]any{
			"revision_count": s.RevisionCount,
		})
		return nil
	})
	return out, err
}

func (p *Pipeline) revise(ctx context.Context, id, feedback string) (domain.RefinementResult, error) {
	const op = "approve"
	var out domain.RefinementResult
	_, err := p.transition(ctx, op, id, false, func(s *domain.Session, t *txn) error {
		if s.Phase != domain.PhasePromptRefined {
			return invalidState(op, s.Phase, domain.PhasePromptRefined)
		}
		feedback = strings.TrimSpace(feedback)
		if feedback == "" {
			return &PreconditionError{Op: op, Condition: "feedback is required when rejecting a refinement"}
		}
		if limit := p.opts.MaxRevisions; limit > 0 && s.RevisionCount >= limit {
			t.fail(s, events.Warning, "Revision limit reached", map[string]any{
				"operation":      op,
				"limit":          limit,
				"revision_count": s.RevisionCount,
			})
			return &RevisionLimitError{Limit: limit}
		}
		raw, err := p.handlers.Refiner.Revise(ctx, s.OriginalPrompt, s.Refinement.ImprovedPrompt, feedback)
		if err != nil {
			return t.handlerFailed(s, op, fmt.Errorf("revise prompt: %w", err))
		}
		res, err := schema.Refinement(raw)
		if err != nil {
			return t.handlerFailed(s, op, err)
		}
		s.Refinement = &res
		s.RevisionCount++
		out = res
		t.succeed(events.PromptRefinementRevision, "Prompt revised from feedback", map[string]any{
			"revision": s.RevisionCount,
			"feedback": feedback,
		})
		return nil
	})
	return out, err
}

func (p *Pipeline) IssueQuestions(ctx context.Context, id string) (domain.QuestionSet, error) {
	const op = "issue_questions"
	var out domain.QuestionSet
	_, err := p.transition(ctx, op, id, false, func(s *domain.Session, t *txn) error {
		switch {
		case s.Phase == domain.PhasePromptApproved:
		case s.Phase.Reached(domain.PhaseQuestionsIssued):
			out = *s.Questions
			return store.ErrSkip
		default:
			return invalidState(op, s.Phase, domain.PhasePromptApproved)
		}
		raw, err := p.handlers.Questioner.Questions(ctx, s.ApprovedPrompt, s.Answers)
		if err != nil {
			return t.handlerFailed(s, op, fmt.Errorf("generate questions: %w", err))
		}
		qs, err := schema.Questions(raw)
		if err != nil {
			return t.handlerFailed(s, op, err)
		}
		s.Questions = &qs
		s.Phase = domain.PhaseQuestionsIssued
		out = qs
		required := 0
		for _, q := range qs.Questions {
			if q.Required {
				required++
			}
		}
		t.succeed(events.QuestioningStarted, "Clarifying questions issued", map[string]any{
			"question_count": len(qs.Questions),
			"required_count": required,
		})
		return nil
	})
	return out, err
}

// RecordAnswer validates and stores one answer. Answering a question again
// overwrites the earlier answer. It never changes the phase.
func (p *Pipeline) RecordAnswer(ctx context.Context, id, questionID string, value any) (Progress, error) {
	const op = "record_answer"
	var out Progress
	_, err := p.transition(ctx, op, id, false, func(s *domain.Session, _ *txn) error {
		if s.Phase != domain.PhaseQuestionsIssued {
			return invalidState(op, s.Phase, domain.PhaseQuestionsIssued)
		}
		q, ok := s.Questions.Find(questionID)
		if !ok {
			return &schema.ValidationError{Kind: schema.KindAnswer, Violations: []schema.Violation{
				{Path: "question_id", Message: fmt.Sprintf("unknown question %q", questionID)},
			}}
		}
		normalized, err := schema.Answer(q, value)
		if err != nil {
			return err
		}
		s.Answers[questionID] = normalized
		out = p.progress(*s)
		return nil
	})
	return out, err
}

// SubmitAnswers closes questioning once enough required questions are
// answered.
func (p *Pipeline) SubmitAnswers(ctx context.Context, id string) (Progress, error) {
	const op = "submit_answers"
	var out Progress
	_, err := p.transition(ctx, op, id, false, func(s *domain.Session, t *txn) error {
		switch {
		case s.Phase == domain.PhaseQuestionsIssued:
		case s.Phase.Reached(domain.PhaseQuestionsAnswered):
			out = p.progress(*s)
			return store.ErrSkip
		default:
			return invalidState(op, s.Phase, domain.PhaseQuestionsIssued)
		}
		if err := p.requireAnswers(op, *s); err != nil {
			return err
		}
		s.Phase = domain.PhaseQuestionsAnswered
		out = p.progress(*s)
		t.succeed(events.QuestioningCompleted, "Answers collected", map[string]any{
			"answered":          len(s.Answers),
			"required_answered": out.Answered,
			"required":          out.Required,
		})
		return nil
	})
	return out, err
}

// AnalyzeNarrative stores the full analysis in the session and returns
// only its summary.
func (p *Pipeline) AnalyzeNarrative(ctx context.Context, id string) (domain.NarrativeSummary, error) {
	const op = "analyze_narrative"
	var out domain.NarrativeSummary
	_, err := p.transition(ctx, op, id, false, func(s *domain.Session, t *txn) error {
		switch {
		case s.Phase == domain.PhaseQuestionsIssued:
			if err := p.requireAnswers(op, *s); err != nil {
				return err
			}
		case s.Phase == domain.PhaseQuestionsAnswered:
		case s.Phase.Reached(domain.PhaseNarrativeAnalyzed):
			out = s.Narrative.Summary()
			return store.ErrSkip
		default:
			return invalidState(op, s.Phase, domain.PhaseQuestionsIssued, domain.PhaseQuestionsAnswered)
		}
		raw, err := p.handlers.Narrator.Analyze(ctx, s.ApprovedPrompt, s.Answers)
		if err != nil {
			return t.handlerFailed(s, op, fmt.Errorf("analyze narrative: %w", err))
		}
		n, err := schema.Narrative(raw)
		if err != nil {
			return t.handlerFailed(s, op, err)
		}
		s.Narrative = &n
		s.Phase = domain.PhaseNarrativeAnalyzed
		out = n.Summary()
		t.succeed(events.NarrativeReasoningDone, "Narrative structure analyzed", map[string]any{
			"narrative_arc": out.NarrativeArc,
			"dominant_tone": out.DominantTone,
		})
		return nil
	})
	return out, err
}

func (p *Pipeline) PlanScenes(ctx context.Context, id string) (domain.ScenePlan, error) {
	const op = "plan_scenes"
	var out domain.ScenePlan
	_, err := p.transition(ctx, op, id, false, func(s *domain.Session, t *txn) error {
		switch {
		case s.Phase == domain.PhaseNarrativeAnalyzed:
		case s.Phase.Reached(domain.PhaseScenePlanned):
			out = *s.ScenePlan
			return store.ErrSkip
		default:
			return invalidState(op, s.Phase, domain.PhaseNarrativeAnalyzed)
		}
		raw, err := p.handlers.Planner.Plan(ctx, s.ApprovedPrompt, s.Answers, *s.Narrative)
		if err != nil {
			return t.handlerFailed(s, op, fmt.Errorf("plan scenes: %w", err))
		}
		plan, err := schema.ScenePlan(raw)
		if err != nil {
			return t.handlerFailed(s, op, err)
		}
		s.ScenePlan = &plan
		s.Phase = domain.PhaseScenePlanned
		out = plan
		t.succeed(events.ScenePlanningCompleted, "Scene plan ready", map[string]any{
			"title":       plan.Title,
			"scene_count": len(plan.Scenes),
			"format":      string(plan.Format),
		})
		return nil
	})
	return out, err
}

// ConfigureWebhook replaces the session webhook. A nil Events map opts in to
// every event type. Enabling the webhook queues a WEBHOOK_TEST event.
func (p *Pipeline) ConfigureWebhook(ctx context.Context, id string, cfg domain.WebhookConfig) (domain.WebhookView, error) {
	const op = "configure_webhook"
	cfg.URL = strings.TrimSpace(cfg.URL)
	if cfg.Events == nil {
		cfg.Events = events.OptInAll()
	}
	if err := schema.WebhookConfig(cfg, p.opts.WebhookURLPrefixes); err != nil {
		return domain.WebhookView{}, err
	}
	s, err := p.transition(ctx, op, id, true, func(s *domain.Session, t *txn) error {
		s.Webhook = cfg
		if cfg.Enabled {
			t.succeed(events.WebhookTest, "Webhook connected", map[string]any{
				"message": "Notifications are configured for this session",
			})
		}
		return nil
	})
	if err != nil {
		return domain.WebhookView{}, err
	}
	return s.View().Webhook, nil
}

var stepEvents = map[domain.ExecutionStep]struct {
	typ    events.Type
	status string
}{
	domain.StepCuts:      {events.VideoCutCreation, "Creating video cuts"},
	domain.StepVoiceOver: {events.VoiceOverGeneration, "Generating voice-over"},
	domain.StepSubtitles: {events.SubtitleGeneration, "Generating subtitles"},
	domain.StepRender:    {events.FinalRenderStarted, "Final render started"},
}

// RecordExecutionStep marks one execution step as done. The first step
// moves the session to EXECUTING; recording a step twice is a no-op.
func (p *Pipeline) RecordExecutionStep(ctx context.Context, id string, step domain.ExecutionStep) (domain.SessionView, error) {
	const op = "execute"
	if !step.Valid() {
		return domain.SessionView{}, &schema.ValidationError{Kind: "execution_step", Violations: []schema.Violation{
			{Path: "step", Message: fmt.Sprintf("must be one of cuts, voice_over, subtitles, render (got %q)", step)},
		}}
	}
	s, err := p.transition(ctx, op, id, false, func(s *domain.Session, t *txn) error {
		if s.HasStep(step) {
			return store.ErrSkip
		}
		if s.Phase != domain.PhaseScenePlanned && s.Phase != domain.PhaseExecuting {
			return invalidState(op, s.Phase, domain.PhaseScenePlanned, domain.PhaseExecuting)
		}
		switch {
		case step == domain.StepVoiceOver && !s.ScenePlan.VoiceOver.Enabled:
			return &PreconditionError{Op: op, Condition: "scene plan has voice-over disabled"}
		case step == domain.StepSubtitles && !s.ScenePlan.Subtitles.Enabled:
			return &PreconditionError{Op: op, Condition: "scene plan has subtitles disabled"}
		case step == domain.StepRender && !s.HasStep(domain.StepCuts):
			return &PreconditionError{Op: op, Condition: "render requires the cuts step"}
		}
		s.ExecutionSteps = append(s.ExecutionSteps, step)
		s.Phase = domain.PhaseExecuting
		se := stepEvents[step]
		t.succeed(se.typ, se.status, map[string]any{
			"step":        string(step),
			"scene_count": len(s.ScenePlan.Scenes),
		})
		return nil
	})
	if err != nil {
		return domain.SessionView{}, err
	}
	return s.View(), nil
}

func (p *Pipeline) CompleteExecution(ctx context.Context, id string) (domain.SessionView, error) {
	const op = "complete"
	s, err := p.transition(ctx, op, id, false, func(s *domain.Session, t *txn) error {
		switch s.Phase {
		case domain.PhaseExecuting:
		case domain.PhaseComplete:
			return store.ErrSkip
		default:
			return invalidState(op, s.Phase, domain.PhaseExecuting)
		}
		if !s.HasStep(domain.StepRender) {
			return &PreconditionError{Op: op, Condition: "render step has not been recorded"}
		}
		s.Phase = domain.PhaseComplete
		t.succeed(events.FinalRenderCompleted, "Video ready", map[string]any{
			"title": s.ScenePlan.Title,
			"steps": len(s.ExecutionSteps),
		})
		return nil
	})
	if err != nil {
		return domain.SessionView{}, err
	}
	return s.View(), nil
}

type pending struct {
	typ     events.Type
	status  string
	payload map[string]any
}

// txn collects what a transition wants to announce. The success event is
// sent only after the commit. A failure event is sent with the session as it
// was when the failure happened, since nothing is committed.
type txn struct {
	ok      *pending
	failure *pending
	at      domain.Session
}

func (t *txn) succeed(typ events.Type, status string, payload map[string]any) {
	t.ok = &pending{typ: typ, status: status, payload: payload}
}

func (t *txn) fail(s *domain.Session, typ events.Type, status string, payload map[string]any) {
	t.failure = &pending{typ: typ, status: status, payload: payload}
	t.at = s.Clone()
}

func (t *txn) handlerFailed(s *domain.Session, op string, err error) error {
	payload := map[string]any{"operation": op, "error": err.Error()}
	var verr *schema.ValidationError
	if errors.As(err, &verr) {
		payload["violations"] = len(verr.Violations)
	}
	t.fail(s, events.Error, "Phase handler failed", payload)
	return err
}

func (p *Pipeline) transition(ctx context.Context, op, id string, create bool, fn func(*domain.Session, *txn) error) (domain.Session, error) {
	log := p.log.With(zap.String("session_id", id), zap.String("op", op))
	var t txn
	s, err := p.store.Update(ctx, id, create, func(s *domain.Session) error {
		return fn(s, &t)
	})
	if err != nil {
		if t.failure != nil {
			p.emit(ctx, t.at, *t.failure)
			log.Warn("transition failed", zap.String("phase", string(t.at.Phase)), zap.Error(err))
		} else {
			log.Debug("transition rejected", zap.Error(err))
		}
		return domain.Session{}, err
	}
	if t.ok == nil {
		return s, nil
	}
	p.emit(ctx, s, *t.ok)
	log.Info("transition committed", zap.String("phase", string(s.Phase)), zap.String("event", string(t.ok.typ)))
	return s, nil
}

// emit journals the event and hands it to the notifier. Neither can fail
// the operation that produced it.
func (p *Pipeline) emit(ctx context.Context, s domain.Session, e pending) {
	evt := events.New(e.typ, s.ID, s.Phase, e.status, e.payload, p.now().UTC())
	if err := p.journal.Append(context.WithoutCancel(ctx), evt); err != nil {
		p.log.Warn("journal append failed",
			zap.String("session_id", s.ID), zap.String("event_type", string(e.typ)), zap.Error(err))
	}
	p.notifier.Dispatch(evt, s.Webhook)
}
