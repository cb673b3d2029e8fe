package pipeline_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"frameforge/internal/domain"
	"frameforge/internal/events"
	"frameforge/internal/notify"
	"frameforge/internal/phases"
	"frameforge/internal/pipeline"
	"frameforge/internal/schema"
	"frameforge/internal/store"
)

const vacationPrompt = "Make a nice video about my vacation"

var requiredAnswers = []struct {
	id    string
	value any
}{
	{"video_format", "16:9 (Landscape - YouTube, Film, TV)"},
	{"target_platform", "YouTube (long-form, 16:9)"},
	{"target_duration", "1-3 minutes (YouTube short/Medium)"},
	{"editing_rhythm", "Medium (balanced, standard pacing)"},
	{"emotional_tone", "Joyful / Uplifting"},
	{"source_material", []any{"Mobile phone footage", "Mixed sources"}},
}

type recordingNotifier struct {
	mu     sync.Mutex
	events []events.Event
}

func (r *recordingNotifier) Dispatch(evt events.Event, cfg domain.WebhookConfig) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, evt)
	return cfg.Wants(string(evt.Type))
}

func (r *recordingNotifier) types() []events.Type {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]events.Type, 0, len(r.events))
	for _, e := range r.events {
		out = append(out, e.Type)
	}
	return out
}

func (r *recordingNotifier) last() events.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.events) == 0 {
		return events.Event{}
	}
	return r.events[len(r.events)-1]
}

func realHandlers() pipeline.Handlers {
	return pipeline.Handlers{
		Refiner:    phases.NewRefiner(),
		Questioner: phases.NewQuestioner(),
		Narrator:   phases.NewNarrator(),
		Planner:    phases.NewPlanner(),
	}
}

type fixture struct {
	p        *pipeline.Pipeline
	notifier *recordingNotifier
	journal  *events.MemoryJournal
}

func newFixture(t *testing.T, h pipeline.Handlers, opts pipeline.Options) fixture {
	t.Helper()
	f := fixture{notifier: &recordingNotifier{}, journal: events.NewMemoryJournal()}
	if opts.Notifier == nil {
		opts.Notifier = f.notifier
	}
	opts.Journal = f.journal
	opts.Logger = zap.NewNop()
	f.p = pipeline.New(store.New(), h, opts)
	return f
}

func (f fixture) toQuestions(t *testing.T, id string) domain.QuestionSet {
	t.Helper()
	ctx := context.Background()
	_, err := f.p.Refine(ctx, id, vacationPrompt)
	require.NoError(t, err)
	_, err = f.p.Approve(ctx, id, true, "")
	require.NoError(t, err)
	qs, err := f.p.IssueQuestions(ctx, id)
	require.NoError(t, err)
	return qs
}

func (f fixture) answerRequired(t *testing.T, id string, n int) pipeline.Progress {
	t.Helper()
	var prog pipeline.Progress
	for _, a := range requiredAnswers[:n] {
		var err error
		prog, err = f.p.RecordAnswer(context.Background(), id, a.id, a.value)
		require.NoError(t, err, a.id)
	}
	return prog
}

func (f fixture) toPlan(t *testing.T, id string) domain.ScenePlan {
	t.Helper()
	ctx := context.Background()
	f.toQuestions(t, id)
	f.answerRequired(t, id, len(requiredAnswers))
	_, err := f.p.AnalyzeNarrative(ctx, id)
	require.NoError(t, err)
	plan, err := f.p.PlanScenes(ctx, id)
	require.NoError(t, err)
	return plan
}

func TestVacationWorkflowDeliversWebhooks(t *testing.T) {
	var mu sync.Mutex
	var delivered []string
	sink := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		delivered = append(delivered, r.Header.Get("X-FrameForge-Event"))
		mu.Unlock()
		w.WriteHeader(http.StatusNoContent)
	}))
	defer sink.Close()

	d := notify.New(notify.Options{Workers: 1, BaseDelay: 10 * time.Millisecond, Logger: zap.NewNop()})
	f := newFixture(t, realHandlers(), pipeline.Options{
		MaxRevisions:       pipeline.DefaultMaxRevisions,
		WebhookURLPrefixes: []string{"http://127.0.0.1"},
		Notifier:           d,
	})
	ctx := context.Background()
	id := "vacation"

	view, err := f.p.ConfigureWebhook(ctx, id, domain.WebhookConfig{URL: sink.URL + "/api/webhooks/1/secret", Enabled: true})
	require.NoError(t, err)
	assert.True(t, view.Enabled)
	assert.NotContains(t, view.URL, "secret")

	ref, err := f.p.Refine(ctx, id, vacationPrompt)
	require.NoError(t, err)
	assert.NotEmpty(t, ref.IssuesDetected)
	assert.NotEmpty(t, ref.ImprovedPrompt)

	revised, err := f.p.Approve(ctx, id, false, "shorter")
	require.NoError(t, err)
	assert.Equal(t, "shorter", revised.FeedbackIncorporated)
	st, err := f.p.Status(id)
	require.NoError(t, err)
	assert.Equal(t, domain.PhasePromptRefined, st.Phase)
	assert.Equal(t, 1, st.RevisionCount)

	_, err = f.p.Approve(ctx, id, true, "")
	require.NoError(t, err)
	st, _ = f.p.Status(id)
	assert.Equal(t, domain.PhasePromptApproved, st.Phase)
	assert.Equal(t, revised.ImprovedPrompt, st.ApprovedPrompt)

	qs, err := f.p.IssueQuestions(ctx, id)
	require.NoError(t, err)
	require.NotEmpty(t, qs.Questions)
	assert.True(t, qs.Questions[0].Required)

	f.answerRequired(t, id, len(requiredAnswers))
	_, err = f.p.RecordAnswer(ctx, id, "voice_over_needed", "Yes, single voice")
	require.NoError(t, err)
	_, err = f.p.RecordAnswer(ctx, id, "subtitles_enabled", "Yes, SRT file (separate, optional)")
	require.NoError(t, err)
	prog, err := f.p.SubmitAnswers(ctx, id)
	require.NoError(t, err)
	assert.True(t, prog.Satisfied)

	summary, err := f.p.AnalyzeNarrative(ctx, id)
	require.NoError(t, err)
	assert.NotEmpty(t, summary.NarrativeArc)
	assert.Equal(t, "Joyful / Uplifting", summary.DominantTone)

	plan, err := f.p.PlanScenes(ctx, id)
	require.NoError(t, err)
	require.NotEmpty(t, plan.Scenes)
	for i, sc := range plan.Scenes {
		assert.Equal(t, i+1, sc.SceneID)
	}
	assert.True(t, plan.VoiceOver.Enabled)
	assert.Equal(t, domain.SubtitlesSRT, plan.Subtitles.Type)

	for _, step := range []domain.ExecutionStep{domain.StepCuts, domain.StepVoiceOver, domain.StepSubtitles, domain.StepRender} {
		_, err := f.p.RecordExecutionStep(ctx, id, step)
		require.NoError(t, err, step)
	}
	done, err := f.p.CompleteExecution(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, domain.PhaseComplete, done.Phase)

	// Status exposes only the narrative summary.
	body, err := json.Marshal(done)
	require.NoError(t, err)
	assert.NotContains(t, string(body), "emotional_progression")
	assert.NotContains(t, string(body), "pacing_recommendation")

	want := []string{
		"WEBHOOK_TEST",
		"PROMPT_REFINEMENT_IMPROVED",
		"PROMPT_REFINEMENT_REVISION",
		"PROMPT_REFINEMENT_APPROVED",
		"INTELLIGENT_QUESTIONING_STARTED",
		"INTELLIGENT_QUESTIONING_COMPLETED",
		"NARRATIVE_REASONING_COMPLETED",
		"SCENE_PLANNING_COMPLETED",
		"VIDEO_CUT_CREATION",
		"VOICE_OVER_GENERATION",
		"SUBTITLE_GENERATION",
		"FINAL_RENDER_STARTED",
		"FINAL_RENDER_COMPLETED",
	}
	journal, err := f.p.Events(ctx, id, 0)
	require.NoError(t, err)
	got := make([]string, 0, len(journal))
	for _, e := range journal {
		got = append(got, string(e.Type))
		assert.Equal(t, id, e.SessionID)
	}
	assert.Equal(t, want, got)

	require.NoError(t, d.Close(ctx))
	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, want, delivered)
	assert.Equal(t, notify.Stats{Queued: 13, Attempts: 13, Delivered: 13}, d.Stats())
}

func TestFailingWebhookDoesNotDelayPhaseCall(t *testing.T) {
	var hits atomic.Int32
	sink := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer sink.Close()

	const base = 100 * time.Millisecond
	d := notify.New(notify.Options{Workers: 1, MaxAttempts: 3, BaseDelay: base, Logger: zap.NewNop()})
	defer d.Close(context.Background())
	f := newFixture(t, realHandlers(), pipeline.Options{
		WebhookURLPrefixes: []string{"http://127.0.0.1"},
		Notifier:           d,
	})
	ctx := context.Background()
	id := "unreachable"

	_, err := f.p.ConfigureWebhook(ctx, id, domain.WebhookConfig{
		URL:     sink.URL + "/api/webhooks/1/secret",
		Enabled: true,
		Events:  map[string]bool{string(events.PromptRefinementImproved): true},
	})
	require.NoError(t, err)

	start := time.Now()
	ref, err := f.p.Refine(ctx, id, vacationPrompt)
	require.NoError(t, err)
	assert.NotEmpty(t, ref.ImprovedPrompt)
	assert.Less(t, time.Since(start), base, "phase call waited on webhook delivery")
	assert.Zero(t, d.Stats().Dropped)

	require.Eventually(t, func() bool { return d.Stats().Dropped == 1 }, 5*time.Second, 5*time.Millisecond)
	assert.GreaterOrEqual(t, time.Since(start), base+2*base)

	stats := d.Stats()
	assert.EqualValues(t, 1, stats.Queued)
	assert.EqualValues(t, 3, stats.Attempts)
	assert.EqualValues(t, 3, stats.Failed)
	assert.Zero(t, stats.Delivered)
	assert.EqualValues(t, 3, hits.Load())

	st, err := f.p.Status(id)
	require.NoError(t, err)
	assert.Equal(t, domain.PhasePromptRefined, st.Phase)
}

func TestOutOfOrderCallsAreRejected(t *testing.T) {
	f := newFixture(t, realHandlers(), pipeline.Options{})
	ctx := context.Background()
	created, err := f.p.CreateSession(ctx, "")
	require.NoError(t, err)
	id := created.ID
	require.NotEmpty(t, id)

	calls := map[string]func() error{
		"approve": func() error { _, err := f.p.Approve(ctx, id, true, ""); return err },
		"reject":  func() error { _, err := f.p.Approve(ctx, id, false, "shorter"); return err },
		"issue":   func() error { _, err := f.p.IssueQuestions(ctx, id); return err },
		"answer":  func() error { _, err := f.p.RecordAnswer(ctx, id, "video_format", "x"); return err },
		"submit":  func() error { _, err := f.p.SubmitAnswers(ctx, id); return err },
		"analyze": func() error { _, err := f.p.AnalyzeNarrative(ctx, id); return err },
		"plan":    func() error { _, err := f.p.PlanScenes(ctx, id); return err },
		"execute": func() error { _, err := f.p.RecordExecutionStep(ctx, id, domain.StepCuts); return err },
		"finish":  func() error { _, err := f.p.CompleteExecution(ctx, id); return err },
	}
	for name, call := range calls {
		t.Run(name, func(t *testing.T) {
			err := call()
			require.ErrorIs(t, err, pipeline.ErrInvalidState)
			var ise *pipeline.InvalidStateError
			require.True(t, errors.As(err, &ise))
			assert.Equal(t, domain.PhaseAwaitingPrompt, ise.Current)
		})
	}

	after, err := f.p.Status(id)
	require.NoError(t, err)
	assert.Equal(t, created, after)
	assert.Empty(t, f.notifier.types())

	_, err = f.p.PlanScenes(ctx, "missing")
	assert.ErrorIs(t, err, pipeline.ErrSessionNotFound)
	_, err = f.p.Events(ctx, "missing", 10)
	assert.ErrorIs(t, err, pipeline.ErrSessionNotFound)
}

func TestRepeatedTransitionsAreNoOps(t *testing.T) {
	f := newFixture(t, realHandlers(), pipeline.Options{})
	ctx := context.Background()
	id := "repeat"

	first, err := f.p.Refine(ctx, id, vacationPrompt)
	require.NoError(t, err)
	again, err := f.p.Refine(ctx, id, vacationPrompt)
	require.NoError(t, err)
	assert.Equal(t, first, again)

	_, err = f.p.Refine(ctx, id, "A different prompt")
	assert.ErrorIs(t, err, pipeline.ErrInvalidState)

	_, err = f.p.Approve(ctx, id, true, "")
	require.NoError(t, err)
	before, _ := f.p.Status(id)
	_, err = f.p.Approve(ctx, id, true, "")
	require.NoError(t, err)
	_, err = f.p.Refine(ctx, id, vacationPrompt)
	require.NoError(t, err)
	after, _ := f.p.Status(id)
	assert.Equal(t, before, after)

	// Rejecting is only possible while the refinement is under review.
	_, err = f.p.Approve(ctx, id, false, "shorter")
	assert.ErrorIs(t, err, pipeline.ErrInvalidState)

	q1, err := f.p.IssueQuestions(ctx, id)
	require.NoError(t, err)
	q2, err := f.p.IssueQuestions(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, q1, q2)

	assert.Equal(t, []events.Type{
		events.PromptRefinementImproved,
		events.PromptRefinementApproved,
		events.QuestioningStarted,
	}, f.notifier.types())
	journal, err := f.p.Events(ctx, id, 0)
	require.NoError(t, err)
	assert.Len(t, journal, 3)
}

func TestAnswerThreshold(t *testing.T) {
	f := newFixture(t, realHandlers(), pipeline.Options{})
	ctx := context.Background()
	id := "threshold"
	f.toQuestions(t, id)

	prog := f.answerRequired(t, id, 4)
	assert.Equal(t, pipeline.Progress{Required: 6, Answered: 4, Needed: 5, Ratio: 4.0 / 6.0, Threshold: 0.8}, prog)

	_, err := f.p.AnalyzeNarrative(ctx, id)
	require.ErrorIs(t, err, pipeline.ErrPrecondition)
	var pe *pipeline.PreconditionError
	require.True(t, errors.As(err, &pe))
	assert.Equal(t, 5, pe.Details["needed"])
	assert.Contains(t, pe.Condition, "4 of 6")
	_, err = f.p.SubmitAnswers(ctx, id)
	require.ErrorIs(t, err, pipeline.ErrPrecondition)

	st, _ := f.p.Status(id)
	assert.Equal(t, domain.PhaseQuestionsIssued, st.Phase)

	// Re-answering overwrites and does not count twice.
	prog, err = f.p.RecordAnswer(ctx, id, "video_format", "1:1 (Square - Instagram Feed, Facebook)")
	require.NoError(t, err)
	assert.Equal(t, 4, prog.Answered)
	st, _ = f.p.Status(id)
	assert.Equal(t, "1:1 (Square - Instagram Feed, Facebook)", st.Answers["video_format"])

	prog, err = f.p.RecordAnswer(ctx, id, requiredAnswers[4].id, requiredAnswers[4].value)
	require.NoError(t, err)
	assert.True(t, prog.Satisfied)

	summary, err := f.p.AnalyzeNarrative(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "Joyful / Uplifting", summary.DominantTone)
	st, _ = f.p.Status(id)
	assert.Equal(t, domain.PhaseNarrativeAnalyzed, st.Phase)
}

func TestZeroRequiredQuestionsIsComplete(t *testing.T) {
	h := realHandlers()
	h.Questioner = staticQuestioner(`{"questions":[{"id":"notes","question":"Anything else?","type":"free_text","required":false}]}`)
	f := newFixture(t, h, pipeline.Options{})
	f.toQuestions(t, "none-required")

	_, err := f.p.AnalyzeNarrative(context.Background(), "none-required")
	require.NoError(t, err)
}

func TestRecordAnswerValidation(t *testing.T) {
	f := newFixture(t, realHandlers(), pipeline.Options{})
	ctx := context.Background()
	id := "answers"
	f.toQuestions(t, id)
	before, _ := f.p.Status(id)

	cases := map[string]struct {
		question string
		value    any
	}{
		"unknown question":  {"favourite_colour", "blue"},
		"not an option":     {"video_format", "4:3"},
		"wrong type":        {"source_material", "Mixed sources"},
		"empty choice list": {"source_material", []any{}},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := f.p.RecordAnswer(ctx, id, tc.question, tc.value)
			assert.ErrorIs(t, err, schema.ErrValidation)
		})
	}
	after, _ := f.p.Status(id)
	assert.Equal(t, before, after)
}

func TestRevisionLimit(t *testing.T) {
	f := newFixture(t, realHandlers(), pipeline.Options{MaxRevisions: 2})
	ctx := context.Background()
	id := "revisions"
	_, err := f.p.Refine(ctx, id, vacationPrompt)
	require.NoError(t, err)

	_, err = f.p.Approve(ctx, id, false, "  ")
	require.ErrorIs(t, err, pipeline.ErrPrecondition)

	for i := 0; i < 2; i++ {
		_, err := f.p.Approve(ctx, id, false, "more detail please")
		require.NoError(t, err)
	}
	_, err = f.p.Approve(ctx, id, false, "shorter")
	require.ErrorIs(t, err, pipeline.ErrRevisionLimit)
	var rle *pipeline.RevisionLimitError
	require.True(t, errors.As(err, &rle))
	assert.Equal(t, 2, rle.Limit)

	warn := f.notifier.last()
	assert.Equal(t, events.Warning, warn.Type)
	assert.Equal(t, 2, warn.Payload["limit"])

	st, _ := f.p.Status(id)
	assert.Equal(t, domain.PhasePromptRefined, st.Phase)
	assert.Equal(t, 2, st.RevisionCount)

	// Approval is still possible at the cap.
	_, err = f.p.Approve(ctx, id, true, "")
	require.NoError(t, err)
}

type staticQuestioner string

func (s staticQuestioner) Questions(context.Context, string, map[string]any) (json.RawMessage, error) {
	return json.RawMessage(s), nil
}

type failingNarrator struct{}

func (failingNarrator) Analyze(context.Context, string, map[string]any) (json.RawMessage, error) {
	return nil, errors.New("model unavailable")
}

type malformedPlanner struct{}

func (malformedPlanner) Plan(context.Context, string, map[string]any, domain.NarrativeAnalysis) (json.RawMessage, error) {
	return json.RawMessage(`{"title":"x","theme":"y","style":"z","format":"4:3","scenes":[
		{"scene_id":1,"goal":"a","start":"00:00","end":"00:10","visual":"v","audio":"a","subtitle_usage":false},
		{"scene_id":2,"goal":"b","start":"00:05","end":"00:20","visual":"v","audio":"a","subtitle_usage":false}]}`), nil
}

func TestHandlerFailureEmitsErrorEvent(t *testing.T) {
	ctx := context.Background()

	t.Run("handler error", func(t *testing.T) {
		h := realHandlers()
		h.Narrator = failingNarrator{}
		f := newFixture(t, h, pipeline.Options{})
		f.toQuestions(t, "s1")
		f.answerRequired(t, "s1", len(requiredAnswers))

		_, err := f.p.AnalyzeNarrative(ctx, "s1")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "model unavailable")
		evt := f.notifier.last()
		assert.Equal(t, events.Error, evt.Type)
		assert.Equal(t, domain.PhaseQuestionsIssued, evt.Phase)
		assert.Equal(t, "analyze_narrative", evt.Payload["operation"])
		st, _ := f.p.Status("s1")
		assert.Equal(t, domain.PhaseQuestionsIssued, st.Phase)
	})

	t.Run("malformed output", func(t *testing.T) {
		h := realHandlers()
		h.Planner = malformedPlanner{}
		f := newFixture(t, h, pipeline.Options{})
		f.toQuestions(t, "s2")
		f.answerRequired(t, "s2", len(requiredAnswers))
		_, err := f.p.AnalyzeNarrative(ctx, "s2")
		require.NoError(t, err)

		_, err = f.p.PlanScenes(ctx, "s2")
		require.ErrorIs(t, err, schema.ErrValidation)
		var verr *schema.ValidationError
		require.True(t, errors.As(err, &verr))
		assert.GreaterOrEqual(t, len(verr.Violations), 2)

		evt := f.notifier.last()
		assert.Equal(t, events.Error, evt.Type)
		assert.Equal(t, len(verr.Violations), evt.Payload["violations"])
		st, _ := f.p.Status("s2")
		assert.Equal(t, domain.PhaseNarrativeAnalyzed, st.Phase)
		assert.Nil(t, st.ScenePlan)
	})

	t.Run("empty prompt", func(t *testing.T) {
		f := newFixture(t, realHandlers(), pipeline.Options{})
		_, err := f.p.Refine(ctx, "s3", "   ")
		require.ErrorIs(t, err, schema.ErrValidation)
		assert.Equal(t, events.Error, f.notifier.last().Type)
		_, err = f.p.Status("s3")
		assert.ErrorIs(t, err, pipeline.ErrSessionNotFound)
	})
}

func TestExecutionSteps(t *testing.T) {
	f := newFixture(t, realHandlers(), pipeline.Options{})
	ctx := context.Background()
	id := "exec"
	plan := f.toPlan(t, id)
	require.False(t, plan.VoiceOver.Enabled)
	require.False(t, plan.Subtitles.Enabled)

	_, err := f.p.RecordExecutionStep(ctx, id, domain.StepVoiceOver)
	assert.ErrorIs(t, err, pipeline.ErrPrecondition)
	_, err = f.p.RecordExecutionStep(ctx, id, domain.StepSubtitles)
	assert.ErrorIs(t, err, pipeline.ErrPrecondition)
	_, err = f.p.RecordExecutionStep(ctx, id, domain.StepRender)
	assert.ErrorIs(t, err, pipeline.ErrPrecondition)
	_, err = f.p.RecordExecutionStep(ctx, id, domain.ExecutionStep("colour"))
	assert.ErrorIs(t, err, schema.ErrValidation)

	view, err := f.p.RecordExecutionStep(ctx, id, domain.StepCuts)
	require.NoError(t, err)
	assert.Equal(t, domain.PhaseExecuting, view.Phase)
	_, err = f.p.RecordExecutionStep(ctx, id, domain.StepCuts)
	require.NoError(t, err)

	_, err = f.p.CompleteExecution(ctx, id)
	assert.ErrorIs(t, err, pipeline.ErrPrecondition)

	_, err = f.p.RecordExecutionStep(ctx, id, domain.StepRender)
	require.NoError(t, err)
	view, err = f.p.CompleteExecution(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, domain.PhaseComplete, view.Phase)
	assert.Equal(t, []domain.ExecutionStep{domain.StepCuts, domain.StepRender}, view.ExecutionSteps)
	_, err = f.p.CompleteExecution(ctx, id)
	require.NoError(t, err)

	types := f.notifier.types()
	assert.Equal(t, []events.Type{events.VideoCutCreation, events.FinalRenderStarted, events.FinalRenderCompleted}, types[len(types)-3:])
}

func TestConfigureWebhook(t *testing.T) {
	f := newFixture(t, realHandlers(), pipeline.Options{})
	ctx := context.Background()
	id := "hooks"

	_, err := f.p.ConfigureWebhook(ctx, id, domain.WebhookConfig{URL: "https://example.com/hook", Enabled: true})
	assert.ErrorIs(t, err, schema.ErrValidation)
	_, err = f.p.ConfigureWebhook(ctx, id, domain.WebhookConfig{
		URL:     "https://discord.com/api/webhooks/1/token",
		Enabled: true,
		Events:  map[string]bool{"NOT_AN_EVENT": true},
	})
	assert.ErrorIs(t, err, schema.ErrValidation)
	assert.Empty(t, f.notifier.types())

	view, err := f.p.ConfigureWebhook(ctx, id, domain.WebhookConfig{URL: "https://discord.com/api/webhooks/1/token", Enabled: true})
	require.NoError(t, err)
	assert.Equal(t, "https://discord.com/api/***", view.URL)
	assert.Len(t, view.Events, len(events.AllTypes()))
	assert.Equal(t, []events.Type{events.WebhookTest}, f.notifier.types())

	view, err = f.p.ConfigureWebhook(ctx, id, domain.WebhookConfig{URL: "https://discord.com/api/webhooks/1/token", Enabled: false})
	require.NoError(t, err)
	assert.False(t, view.Enabled)
	assert.Len(t, f.notifier.types(), 1)
}

func TestConcurrentCallsOnOneSessionSerialize(t *testing.T) {
	f := newFixture(t, realHandlers(), pipeline.Options{})
	ctx := context.Background()
	id := "concurrent"
	_, err := f.p.Refine(ctx, id, vacationPrompt)
	require.NoError(t, err)
	_, err = f.p.Approve(ctx, id, true, "")
	require.NoError(t, err)

	var wg sync.WaitGroup
	results := make([]domain.QuestionSet, 16)
	errs := make([]error, 16)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = f.p.IssueQuestions(ctx, id)
		}(i)
	}
	wg.Wait()
	for i := range results {
		require.NoError(t, errs[i])
		assert.Equal(t, results[0], results[i])
	}
	count := 0
	for _, typ := range f.notifier.types() {
		if typ == events.QuestioningStarted {
			count++
		}
	}
	assert.Equal(t, 1, count)
}
