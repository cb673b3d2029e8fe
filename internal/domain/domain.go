package domain

import (
	"sort"
	"strings"
	"time"
)

// ResultKind names a PhaseResult variant.
type ResultKind string

const (
	KindRefinement ResultKind = "refinement"
	KindQuestions  ResultKind = "questions"
	KindNarrative  ResultKind = "narrative"
	KindScenePlan  ResultKind = "scene_plan"
)

// PhaseResult is the closed set of phase outputs. Only the four variants in
// this package implement it.
type PhaseResult interface {
	Kind() ResultKind
	phaseResult()
}

const (
	ActionAccept = "accept"
	ActionRevise = "revise"
)

type RefinementResult struct {
	OriginalPrompt       string   `json:"original_prompt"`
	ImprovedPrompt       string   `json:"improved_prompt"`
	IssuesDetected       []string `json:"issues_detected"`
	ImprovementsMade     []string `json:"improvements_made"`
	UserActionRequired   string   `json:"user_action_required" enum:"accept,revise"`
	FeedbackIncorporated string   `json:"feedback_incorporated,omitempty"`
}

func (*RefinementResult) Kind() ResultKind { return KindRefinement }
func (*RefinementResult) phaseResult()     {}

type QuestionType string

const (
	QuestionSingleChoice   QuestionType = "single_choice"
	QuestionMultipleChoice QuestionType = "multiple_choice"
	QuestionFreeText       QuestionType = "free_text"
	QuestionNumber         QuestionType = "number"
)

func (t QuestionType) Valid() bool {
	switch t {
	case QuestionSingleChoice, QuestionMultipleChoice, QuestionFreeText, QuestionNumber:
		return true
	}
	return false
}

// IsChoice reports whether answers must come from the question options.
func (t QuestionType) IsChoice() bool {
	return t == QuestionSingleChoice || t == QuestionMultipleChoice
}

type Question struct {
	ID       string       `json:"id"`
	Category string       `json:"category,omitempty"`
	Text     string       `json:"question"`
	Type     QuestionType `json:"type" enum:"single_choice,multiple_choice,free_text,number"`
	Options  []string     `json:"options,omitempty"`
	Required bool         `json:"required"`
	HelpText string       `json:"help_text,omitempty"`
}

type QuestionSet struct {
	Questions []Question `json:"questions"`
}

func (*QuestionSet) Kind() ResultKind { return KindQuestions }
func (*QuestionSet) phaseResult()     {}

// Find returns the question with the given id.
func (qs *QuestionSet) Find(id string) (Question, bool) {
	if qs == nil {
		return Question{}, false
	}
	for _, q := range qs.Questions {
		if q.ID == id {
			return q, true
		}
	}
	return Question{}, false
}

type EmotionalBeat struct {
	Beat      string  `json:"beat"`
	Emotion   string  `json:"emotion"`
	Intensity float64 `json:"intensity"`
	Pacing    string  `json:"pacing"`
}

type RhythmBeat struct {
	Beat          string  `json:"beat"`
	CutsPerMinute int     `json:"cuts_per_minute"`
	Pacing        string  `json:"pacing"`
	Intensity     float64 `json:"intensity"`
}

type PacingRecommendation struct {
	TotalDurationSeconds     int          `json:"total_duration_seconds"`
	CutsPerMinute            int          `json:"cuts_per_minute"`
	EstimatedTotalCuts       int          `json:"estimated_total_cuts"`
	AverageShotLengthSeconds int          `json:"average_shot_length_seconds"`
	RhythmPattern            []RhythmBeat `json:"rhythm_pattern"`
}

// NarrativeAnalysis is kept inside the session and never returned to API
// callers; NarrativeSummary is the public view.
type NarrativeAnalysis struct {
	NarrativeArc         string               `json:"narrative_arc"`
	EmotionalProgression []EmotionalBeat      `json:"emotional_progression"`
	DominantTone         string               `json:"dominant_tone"`
	Pacing               PacingRecommendation `json:"pacing_recommendation"`
	SymbolismNotes       string               `json:"symbolism_notes,omitempty"`
}

func (*NarrativeAnalysis) Kind() ResultKind { return KindNarrative }
func (*NarrativeAnalysis) phaseResult()     {}

// Summary reduces the analysis to the fields callers may see.
func (n *NarrativeAnalysis) Summary() NarrativeSummary {
	if n == nil {
		return NarrativeSummary{}
	}
	return NarrativeSummary{NarrativeArc: n.NarrativeArc, DominantTone: n.DominantTone}
}

type NarrativeSummary struct {
	NarrativeArc string `json:"narrative_arc"`
	DominantTone string `json:"dominant_tone"`
}

type VideoFormat string

const (
	FormatLandscape VideoFormat = "16:9"
	FormatPortrait  VideoFormat = "9:16"
	FormatSquare    VideoFormat = "1:1"
)

func (f VideoFormat) Valid() bool {
	return f == FormatLandscape || f == FormatPortrait || f == FormatSquare
}

type Voice struct {
	Gender   string `json:"gender"`
	Language string `json:"language"`
	Age      string `json:"age"`
	Text     string `json:"text"`
}

type VoiceOver struct {
	Enabled bool    `json:"enabled"`
	Voices  []Voice `json:"voices"`
}

const (
	SubtitlesBurned = "burned"
	SubtitlesSRT    = "srt"
)

type Subtitles struct {
	Enabled bool   `json:"enabled"`
	Type    string `json:"type,omitempty" enum:"burned,srt"`
	Style   string `json:"style,omitempty"`
}

type Scene struct {
	SceneID       int    `json:"scene_id"`
	Goal          string `json:"goal"`
	Start         string `json:"start"`
	End           string `json:"end"`
	Visual        string `json:"visual"`
	Audio         string `json:"audio"`
	VoiceOverText string `json:"voice_over_text,omitempty"`
	SubtitleUsage bool   `json:"subtitle_usage"`
	Transition    string `json:"transition,omitempty"`
}

type ScenePlan struct {
	Title     string      `json:"title"`
	Theme     string      `json:"theme"`
	Style     string      `json:"style"`
	Format    VideoFormat `json:"format" enum:"16:9,9:16,1:1"`
	VoiceOver VoiceOver   `json:"voice_over"`
	Subtitles Subtitles   `json:"subtitles"`
	Scenes    []Scene     `json:"scenes"`
}

func (*ScenePlan) Kind() ResultKind { return KindScenePlan }
func (*ScenePlan) phaseResult()     {}

type WebhookConfig struct {
	URL     string          `json:"url"`
	Enabled bool            `json:"enabled"`
	Events  map[string]bool `json:"events"`
}

// Wants reports whether the config asks for events of the given type.
func (c WebhookConfig) Wants(eventType string) bool {
	if !c.Enabled || strings.TrimSpace(c.URL) == "" {
		return false
	}
	return c.Events[eventType]
}

func (c WebhookConfig) clone() WebhookConfig {
	out := c
	if c.Events != nil {
		out.Events = make(map[string]bool, len(c.Events))
		for k, v := range c.Events {
			out.Events[k] = v
		}
	}
	return out
}

type ExecutionStep string

const (
	StepCuts      ExecutionStep = "cuts"
	StepVoiceOver ExecutionStep = "voice_over"
	StepSubtitles ExecutionStep = "subtitles"
	StepRender    ExecutionStep = "render"
)

func (s ExecutionStep) Valid() bool {
	switch s {
	case StepCuts, StepVoiceOver, StepSubtitles, StepRender:
		return true
	}
	return false
}

// Session is the accumulated state of one editing request. Phase results
// are replaced, never mutated in place, so Clone only copies the containers
// that the pipeline edits directly.
type Session struct {
	ID             string             `json:"id"`
	Phase          Phase              `json:"phase"`
	OriginalPrompt string             `json:"original_prompt,omitempty"`
	Refinement     *RefinementResult  `json:"refinement,omitempty"`
	RevisionCount  int                `json:"revision_count"`
	ApprovedPrompt string             `json:"approved_prompt,omitempty"`
	Questions      *QuestionSet       `json:"questions,omitempty"`
	Answers        map[string]any     `json:"answers,omitempty"`
	Narrative      *NarrativeAnalysis `json:"narrative,omitempty"`
	ScenePlan      *ScenePlan         `json:"scene_plan,omitempty"`
	Webhook        WebhookConfig      `json:"webhook"`
	ExecutionSteps []ExecutionStep    `json:"execution_steps,omitempty"`
	CreatedAt      time.Time          `json:"created_at"`
	UpdatedAt      time.Time          `json:"updated_at"`
}

func NewSession(id string, now time.Time) Session {
	return Session{
		ID:        id,
		Phase:     PhaseAwaitingPrompt,
		Answers:   map[string]any{},
		CreatedAt: now,
		UpdatedAt: now,
	}
}

func (s Session) Clone() Session {
	out := s
	if s.Answers != nil {
		out.Answers = make(map[string]any, len(s.Answers))
		for k, v := range s.Answers {
			out.Answers[k] = v
		}
	}
	if s.ExecutionSteps != nil {
		out.ExecutionSteps = append([]ExecutionStep(nil), s.ExecutionSteps...)
	}
	out.Webhook = s.Webhook.clone()
	return out
}

func (s Session) HasStep(step ExecutionStep) bool {
	for _, done := range s.ExecutionSteps {
		if done == step {
			return true
		}
	}
	return false
}

// SessionView is what status queries return. The narrative analysis is
// reduced to its summary and the webhook URL is redacted.
type SessionView struct {
	ID             string            `json:"id"`
	Phase          Phase             `json:"phase"`
	OriginalPrompt string            `json:"original_prompt,omitempty"`
	ApprovedPrompt string            `json:"approved_prompt,omitempty"`
	RevisionCount  int               `json:"revision_count"`
	Refinement     *RefinementResult `json:"refinement,omitempty"`
	Questions      *QuestionSet      `json:"questions,omitempty"`
	Answers        map[string]any    `json:"answers,omitempty"`
	Narrative      *NarrativeSummary `json:"narrative,omitempty"`
	ScenePlan      *ScenePlan        `json:"scene_plan,omitempty"`
	Webhook        WebhookView       `json:"webhook"`
	ExecutionSteps []ExecutionStep   `json:"execution_steps,omitempty"`
	CreatedAt      time.Time         `json:"created_at" format:"date-time"`
	UpdatedAt      time.Time         `json:"updated_at" format:"date-time"`
}

type WebhookView struct {
	Configured bool     `json:"configured"`
	Enabled    bool     `json:"enabled"`
	URL        string   `json:"url,omitempty"`
	Events     []string `json:"events,omitempty"`
}

func (s Session) View() SessionView {
	c := s.Clone()
	v := SessionView{
		ID:             c.ID,
		Phase:          c.Phase,
		OriginalPrompt: c.OriginalPrompt,
		ApprovedPrompt: c.ApprovedPrompt,
		RevisionCount:  c.RevisionCount,
		Refinement:     c.Refinement,
		Questions:      c.Questions,
		Answers:        c.Answers,
		ScenePlan:      c.ScenePlan,
		ExecutionSteps: c.ExecutionSteps,
		CreatedAt:      c.CreatedAt,
		UpdatedAt:      c.UpdatedAt,
	}
	if c.Narrative != nil {
		summary := c.Narrative.Summary()
		v.Narrative = &summary
	}
	v.Webhook = WebhookView{
		Configured: c.Webhook.URL != "",
		Enabled:    c.Webhook.Enabled,
		URL:        RedactURL(c.Webhook.URL),
	}
	for evt, on := range c.Webhook.Events {
		if on {
			v.Webhook.Events = append(v.Webhook.Events, evt)
		}
	}
	sort.Strings(v.Webhook.Events)
	return v
}

// RedactURL keeps the scheme, host and first path segment of a webhook URL.
// Discord webhook URLs carry their token in the path.
func RedactURL(raw string) string {
	if raw == "" {
		return ""
	}
	schemeEnd := strings.Index(raw, "://")
	if schemeEnd < 0 {
		return "***"
	}
	rest := raw[schemeEnd+3:]
	parts := strings.SplitN(rest, "/", 3)
	if len(parts) < 3 {
		return raw
	}
	return raw[:schemeEnd+3] + parts[0] + "/" + parts[1] + "/***"
}
