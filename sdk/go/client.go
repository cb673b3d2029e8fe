package frameforgesdk

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Client is a minimal FrameForge HTTP API client.
type Client struct {
	BaseURL    string
	BasePath   string
	HTTPClient *http.Client
	Timeout    time.Duration
}

// New creates a client with sane defaults.
func New(baseURL string) *Client {
	return &Client{
		BaseURL:  baseURL,
		BasePath: "/v1",
		Timeout:  10 * time.Second,
	}
}

// Refinement is the refinement artifact.
type Refinement struct {
	OriginalPrompt       string   `json:"original_prompt"`
	ImprovedPrompt       string   `json:"improved_prompt"`
	IssuesDetected       []string `json:"issues_detected"`
	ImprovementsMade     []string `json:"improvements_made"`
	UserActionRequired   string   `json:"user_action_required"`
	FeedbackIncorporated string   `json:"feedback_incorporated,omitempty"`
}

// Question is one clarifying question.
type Question struct {
	ID       string   `json:"id"`
	Category string   `json:"category"`
	Text     string   `json:"question"`
	Type     string   `json:"type"`
	Options  []string `json:"options,omitempty"`
	Required bool     `json:"required"`
	HelpText string   `json:"help_text,omitempty"`
}

// Scene is one planned scene.
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

// ScenePlan is the scene plan artifact (partial).
type ScenePlan struct {
	Title     string         `json:"title"`
	Theme     string         `json:"theme"`
	Style     string         `json:"style"`
	Format    string         `json:"format"`
	VoiceOver map[string]any `json:"voice_over"`
	Subtitles map[string]any `json:"subtitles"`
	Scenes    []Scene        `json:"scenes"`
}

// Narrative is the narrative summary returned by the API.
type Narrative struct {
	NarrativeArc string `json:"narrative_arc"`
	DominantTone string `json:"dominant_tone"`
}

// Webhook is the redacted webhook view.
type Webhook struct {
	Configured bool     `json:"configured"`
	Enabled    bool     `json:"enabled"`
	URL        string   `json:"url,omitempty"`
	Events     []string `json:"events,omitempty"`
}

// Session is the session status view.
type Session struct {
	ID             string         `json:"id"`
	Phase          string         `json:"phase"`
	OriginalPrompt string         `json:"original_prompt,omitempty"`
	ApprovedPrompt string         `json:"approved_prompt,omitempty"`
	RevisionCount  int            `json:"revision_count"`
	Refinement     *Refinement    `json:"refinement,omitempty"`
	Answers        map[string]any `json:"answers,omitempty"`
	Narrative      *Narrative     `json:"narrative,omitempty"`
	ScenePlan      *ScenePlan     `json:"scene_plan,omitempty"`
	Webhook        Webhook        `json:"webhook"`
	ExecutionSteps []string       `json:"execution_steps,omitempty"`
	CreatedAt      string         `json:"created_at"`
	UpdatedAt      string         `json:"updated_at"`
}

// Progress reports answer coverage of required questions.
type Progress struct {
	Required  int     `json:"required"`
	Answered  int     `json:"answered"`
	Needed    int     `json:"needed"`
	Ratio     float64 `json:"ratio"`
	Threshold float64 `json:"threshold"`
	Satisfied bool    `json:"satisfied"`
}

// Event represents a journal entry.
type Event struct {
	ID        string         `json:"id"`
	Type      string         `json:"type"`
	SessionID string         `json:"session_id"`
	Phase     string         `json:"phase"`
	Status    string         `json:"status"`
	Timestamp string         `json:"timestamp"`
	Payload   map[string]any `json:"payload,omitempty"`
}

type RefinementResponse struct {
	SessionID     string     `json:"session_id"`
	Phase         string     `json:"phase"`
	RevisionCount int        `json:"revision_count"`
	Refinement    Refinement `json:"refinement"`
}

type QuestionsResponse struct {
	SessionID string     `json:"session_id"`
	Phase     string     `json:"phase"`
	Questions []Question `json:"questions"`
}

type ProgressResponse struct {
	SessionID string   `json:"session_id"`
	Phase     string   `json:"phase"`
	Progress  Progress `json:"progress"`
}

type NarrativeResponse struct {
	SessionID string    `json:"session_id"`
	Phase     string    `json:"phase"`
	Narrative Narrative `json:"narrative"`
}

type PlanResponse struct {
	SessionID string    `json:"session_id"`
	Phase     string    `json:"phase"`
	Plan      ScenePlan `json:"plan"`
}

// Health is the health check payload.
type Health struct {
	Status   string           `json:"status"`
	Sessions int              `json:"sessions"`
	Webhooks map[string]int64 `json:"webhooks"`
}

// APIError wraps non-2xx responses. Code and Message are filled from the
// error envelope when the body carries one.
type APIError struct {
	StatusCode int
	Code       string
	Message    string
	Details    map[string]any
	Body       string
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("api error: status=%d code=%s: %s", e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("api error: status=%d body=%s", e.StatusCode, e.Body)
}

// Health checks the server.
func (c *Client) Health(ctx context.Context) (Health, error) {
	var resp Health
	err := c.do(ctx, http.MethodGet, "health", nil, &resp)
	return resp, err
}

// CreateSession creates a session; an empty id lets the server pick one.
func (c *Client) CreateSession(ctx context.Context, id string) (Session, error) {
	var body any
	if id != "" {
		body = map[string]any{"id": id}
	}
	var resp Session
	err := c.do(ctx, http.MethodPost, "sessions", body, &resp)
	return resp, err
}

// Sessions lists every session.
func (c *Client) Sessions(ctx context.Context) ([]Session, error) {
	var resp struct {
		Items []Session `json:"items"`
	}
	err := c.do(ctx, http.MethodGet, "sessions", nil, &resp)
	return resp.Items, err
}

// Session returns the status of one session.
func (c *Client) Session(ctx context.Context, id string) (Session, error) {
	var resp Session
	err := c.do(ctx, http.MethodGet, c.sessionPath(id, ""), nil, &resp)
	return resp, err
}

// Refine submits the original prompt.
func (c *Client) Refine(ctx context.Context, id, prompt string) (RefinementResponse, error) {
	var resp RefinementResponse
	err := c.do(ctx, http.MethodPost, c.sessionPath(id, "refine"), map[string]any{"prompt": prompt}, &resp)
	return resp, err
}

// Approve approves the refinement, or rejects it with feedback.
func (c *Client) Approve(ctx context.Context, id string, approved bool, feedback string) (RefinementResponse, error) {
	body := map[string]any{"approved": approved}
	if feedback != "" {
		body["feedback"] = feedback
	}
	var resp RefinementResponse
	err := c.do(ctx, http.MethodPost, c.sessionPath(id, "approve"), body, &resp)
	return resp, err
}

// IssueQuestions asks the server for clarifying questions.
func (c *Client) IssueQuestions(ctx context.Context, id string) (QuestionsResponse, error) {
	var resp QuestionsResponse
	err := c.do(ctx, http.MethodPost, c.sessionPath(id, "questions"), nil, &resp)
	return resp, err
}

// Answer records one answer. value is a string, a []string or a number.
func (c *Client) Answer(ctx context.Context, id, questionID string, value any) (ProgressResponse, error) {
	var resp ProgressResponse
	endpoint := c.sessionPath(id, "answers/"+url.PathEscape(questionID))
	err := c.do(ctx, http.MethodPut, endpoint, map[string]any{"answer": value}, &resp)
	return resp, err
}

// SubmitAnswers closes questioning.
func (c *Client) SubmitAnswers(ctx context.Context, id string) (ProgressResponse, error) {
	var resp ProgressResponse
	err := c.do(ctx, http.MethodPost, c.sessionPath(id, "answers/submit"), nil, &resp)
	return resp, err
}

// AnalyzeNarrative runs narrative analysis.
func (c *Client) AnalyzeNarrative(ctx context.Context, id string) (NarrativeResponse, error) {
	var resp NarrativeResponse
	err := c.do(ctx, http.MethodPost, c.sessionPath(id, "narrative"), nil, &resp)
	return resp, err
}

// PlanScenes runs scene planning.
func (c *Client) PlanScenes(ctx context.Context, id string) (PlanResponse, error) {
	var resp PlanResponse
	err := c.do(ctx, http.MethodPost, c.sessionPath(id, "plan"), nil, &resp)
	return resp, err
}

// ConfigureWebhook sets the session webhook. A nil events map opts in to
// every event type.
func (c *Client) ConfigureWebhook(ctx context.Context, id, webhookURL string, enabled bool, events map[string]bool) (Webhook, error) {
	body := map[string]any{"url": webhookURL, "enabled": enabled}
	if events != nil {
		body["events"] = events
	}
	var resp struct {
		Webhook Webhook `json:"webhook"`
	}
	err := c.do(ctx, http.MethodPut, c.sessionPath(id, "webhook"), body, &resp)
	return resp.Webhook, err
}

// ExecuteStep records one execution step: cuts, voice_over, subtitles or render.
func (c *Client) ExecuteStep(ctx context.Context, id, step string) (Session, error) {
	var resp Session
	err := c.do(ctx, http.MethodPost, c.sessionPath(id, "execution/"+url.PathEscape(step)), nil, &resp)
	return resp, err
}

// Complete marks the final render complete.
func (c *Client) Complete(ctx context.Context, id string) (Session, error) {
	var resp Session
	err := c.do(ctx, http.MethodPost, c.sessionPath(id, "complete"), nil, &resp)
	return resp, err
}

// Events returns the most recent session events, oldest first.
func (c *Client) Events(ctx context.Context, id string, limit int) ([]Event, error) {
	endpoint := c.sessionPath(id, "events")
	if limit > 0 {
		endpoint = fmt.Sprintf("%s?limit=%d", endpoint, limit)
	}
	var resp struct {
		Items []Event `json:"items"`
	}
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp.Items, err
}

func (c *Client) do(ctx context.Context, method, endpoint string, body any, out any) error {
	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{Timeout: c.Timeout}
	}
	url := c.base() + "/" + strings.TrimLeft(endpoint, "/")
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return err
		}
	}
	req, err := http.NewRequestWithContext(ctx, method, url, &buf)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		b, _ := io.ReadAll(resp.Body)
		apiErr := &APIError{StatusCode: resp.StatusCode, Body: string(b)}
		var env struct {
			Error struct {
				Code    string         `json:"code"`
				Message string         `json:"message"`
				Details map[string]any `json:"details"`
			} `json:"error"`
		}
		if json.Unmarshal(b, &env) == nil {
			apiErr.Code = env.Error.Code
			apiErr.Message = env.Error.Message
			apiErr.Details = env.Error.Details
		}
		return apiErr
	}
	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}

func (c *Client) sessionPath(id, p string) string {
	session := url.PathEscape(id)
	if p == "" {
		return "sessions/" + session
	}
	return fmt.Sprintf("sessions/%s/%s", session, strings.TrimLeft(p, "/"))
}

func (c *Client) base() string {
	bp := strings.Trim(c.BasePath, "/")
	if bp == "" {
		return strings.TrimRight(c.BaseURL, "/")
	}
	return strings.TrimRight(c.BaseURL, "/") + "/" + bp
}
