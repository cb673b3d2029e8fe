package server

import (
	"frameforge/internal/domain"
	"frameforge/internal/events"
	"frameforge/internal/notify"
	"frameforge/internal/pipeline"
)

// Request payloads

type CreateSessionRequest struct {
	ID string `json:"id,omitempty" maxLength:"128" doc:"Caller-chosen session id; a UUID is minted when empty"`
}

type RefineRequest struct {
	Prompt string `json:"prompt" maxLength:"10000" doc:"The original creative request"`
}

type ApproveRequest struct {
	Approved bool   `json:"approved"`
	Feedback string `json:"feedback,omitempty" maxLength:"2000" doc:"Required when approved is false"`
}

type AnswerRequest struct {
	Answer any `json:"answer" doc:"String for choice and free text questions, list of strings for multiple choice, number for number questions"`
}

type WebhookRequest struct {
	URL     string          `json:"url"`
	Enabled bool            `json:"enabled"`
	Events  map[string]bool `json:"events,omitempty" doc:"Event type opt-ins; omitted means every type"`
}

// Response payloads

type HealthResponse struct {
	Status   string       `json:"status" example:"ok"`
	Sessions int          `json:"sessions"`
	Webhooks notify.Stats `json:"webhooks"`
}

type SessionListResponse struct {
	Items []domain.SessionView `json:"items"`
}

type RefinementResponse struct {
	SessionID     string                  `json:"session_id"`
	Phase         domain.Phase            `json:"phase"`
	RevisionCount int                     `json:"revision_count"`
	Refinement    domain.RefinementResult `json:"refinement"`
}

type QuestionsResponse struct {
	SessionID string            `json:"session_id"`
	Phase     domain.Phase      `json:"phase"`
	Questions []domain.Question `json:"questions"`
}

type ProgressResponse struct {
	SessionID string            `json:"session_id"`
	Phase     domain.Phase      `json:"phase"`
	Progress  pipeline.Progress `json:"progress"`
}

type NarrativeResponse struct {
	SessionID string                  `json:"session_id"`
	Phase     domain.Phase            `json:"phase"`
	Narrative domain.NarrativeSummary `json:"narrative"`
}

type PlanResponse struct {
	SessionID string           `json:"session_id"`
	Phase     domain.Phase     `json:"phase"`
	Plan      domain.ScenePlan `json:"plan"`
}

type WebhookResponse struct {
	SessionID string             `json:"session_id"`
	Webhook   domain.WebhookView `json:"webhook"`
}

type EventListResponse struct {
	Items []events.Event `json:"items"`
}
