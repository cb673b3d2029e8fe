package events

import (
	"strings"
	"time"

	"github.com/google/uuid"

	"frameforge/internal/domain"
)

// Type is a notification event kind.
type Type string

const (
	// Source material
	VideoUploadStarted          Type = "VIDEO_UPLOAD_STARTED"
	VideoUploadCompleted        Type = "VIDEO_UPLOAD_COMPLETED"
	AudioTranscriptionStarted   Type = "AUDIO_TRANSCRIPTION_STARTED"
	AudioTranscriptionCompleted Type = "AUDIO_TRANSCRIPTION_COMPLETED"
	VisualAnalysisStarted       Type = "VISUAL_ANALYSIS_STARTED"
	VisualAnalysisCompleted     Type = "VISUAL_ANALYSIS_COMPLETED"

	// Phase 1
	PromptRefinementStarted  Type = "PROMPT_REFINEMENT_STARTED"
	PromptRefinementImproved Type = "PROMPT_REFINEMENT_IMPROVED"
	PromptRefinementApproved Type = "PROMPT_REFINEMENT_APPROVED"
	PromptRefinementRevision Type = "PROMPT_REFINEMENT_REVISION"

	// Phases 2-4
	QuestioningStarted        Type = "INTELLIGENT_QUESTIONING_STARTED"
	QuestioningCompleted      Type = "INTELLIGENT_QUESTIONING_COMPLETED"
	NarrativeReasoningStarted Type = "NARRATIVE_REASONING_STARTED"
	NarrativeReasoningDone    Type = "NARRATIVE_REASONING_COMPLETED"
	ScenePlanningStarted      Type = "SCENE_PLANNING_STARTED"
	ScenePlanningCompleted    Type = "SCENE_PLANNING_COMPLETED"

	// Execution
	VideoCutCreation     Type = "VIDEO_CUT_CREATION"
	VoiceOverGeneration  Type = "VOICE_OVER_GENERATION"
	SubtitleGeneration   Type = "SUBTITLE_GENERATION"
	FinalRenderStarted   Type = "FINAL_RENDER_STARTED"
	FinalRenderCompleted Type = "FINAL_RENDER_COMPLETED"

	// System
	WebhookTest Type = "WEBHOOK_TEST"
	Error       Type = "ERROR"
	Warning     Type = "WARNING"
)

var allTypes = []Type{
	VideoUploadStarted, VideoUploadCompleted,
	AudioTranscriptionStarted, AudioTranscriptionCompleted,
	VisualAnalysisStarted, VisualAnalysisCompleted,
	PromptRefinementStarted, PromptRefinementImproved, PromptRefinementApproved, PromptRefinementRevision,
	QuestioningStarted, QuestioningCompleted,
	NarrativeReasoningStarted, NarrativeReasoningDone,
	ScenePlanningStarted, ScenePlanningCompleted,
	VideoCutCreation, VoiceOverGeneration, SubtitleGeneration,
	FinalRenderStarted, FinalRenderCompleted,
	WebhookTest, Error, Warning,
}

// AllTypes lists every event kind in declaration order.
func AllTypes() []Type {
	out := make([]Type, len(allTypes))
	copy(out, allTypes)
	return out
}

// OptInAll returns an events map with every kind enabled.
func OptInAll() map[string]bool {
	m := make(map[string]bool, len(allTypes))
	for _, t := range allTypes {
		m[string(t)] = true
	}
	return m
}

func (t Type) Valid() bool {
	for _, candidate := range allTypes {
		if candidate == t {
			return true
		}
	}
	return false
}

// Label renders PROMPT_REFINEMENT_IMPROVED as "Prompt Refinement Improved".
func (t Type) Label() string {
	return TitleWords(strings.ToLower(string(t)))
}

// TitleWords upper-cases the first letter of each underscore or space
// separated word and joins them with spaces.
func TitleWords(s string) string {
	words := strings.FieldsFunc(s, func(r rune) bool { return r == '_' || r == ' ' })
	for i, w := range words {
		words[i] = strings.ToUpper(w[:1]) + strings.ToLower(w[1:])
	}
	return strings.Join(words, " ")
}

// Event is one notification produced at a pipeline transition point.
type Event struct {
	ID        string         `json:"id"`
	Type      Type           `json:"type"`
	SessionID string         `json:"session_id"`
	Phase     domain.Phase   `json:"phase"`
	Status    string         `json:"status"`
	Timestamp time.Time      `json:"timestamp" format:"date-time"`
	Payload   map[string]any `json:"payload,omitempty"`
}

func New(typ Type, sessionID string, phase domain.Phase, status string, payload map[string]any, now time.Time) Event {
	return Event{
		ID:        uuid.NewString(),
		Type:      typ,
		SessionID: sessionID,
		Phase:     phase,
		Status:    status,
		Timestamp: now.UTC(),
		Payload:   payload,
	}
}
