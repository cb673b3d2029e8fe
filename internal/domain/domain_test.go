package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestPhaseOrder(t *testing.T) {
	phases := Phases()
	assert.Len(t, phases, 9)
	assert.Equal(t, PhaseAwaitingPrompt, phases[0])
	assert.Equal(t, PhaseComplete, phases[len(phases)-1])
	for i, p := range phases {
		assert.Equal(t, i, p.Index())
		assert.True(t, p.Valid())
	}
	assert.Equal(t, -1, Phase("EDITING").Index())
	assert.False(t, Phase("EDITING").Valid())

	assert.True(t, PhaseScenePlanned.Reached(PhaseQuestionsIssued))
	assert.True(t, PhaseScenePlanned.Reached(PhaseScenePlanned))
	assert.False(t, PhasePromptRefined.Reached(PhasePromptApproved))
}

func TestCloneIsIndependent(t *testing.T) {
	s := NewSession("s1", time.Unix(0, 0))
	s.Answers["tone"] = "Calm"
	s.ExecutionSteps = []ExecutionStep{StepCuts}
	s.Webhook = WebhookConfig{URL: "https://discord.com/api/webhooks/1/t", Enabled: true, Events: map[string]bool{"ERROR": true}}

	c := s.Clone()
	c.Answers["tone"] = "Tense"
	c.ExecutionSteps[0] = StepRender
	c.Webhook.Events["ERROR"] = false

	assert.Equal(t, "Calm", s.Answers["tone"])
	assert.Equal(t, StepCuts, s.ExecutionSteps[0])
	assert.True(t, s.Webhook.Events["ERROR"])
	assert.True(t, s.HasStep(StepCuts))
	assert.False(t, s.HasStep(StepRender))
}

func TestWebhookWants(t *testing.T) {
	cfg := WebhookConfig{URL: "https://discord.com/api/webhooks/1/t", Enabled: true, Events: map[string]bool{"ERROR": true, "WARNING": false}}
	assert.True(t, cfg.Wants("ERROR"))
	assert.False(t, cfg.Wants("WARNING"))
	assert.False(t, cfg.Wants("FINAL_RENDER_COMPLETED"))

	cfg.Enabled = false
	assert.False(t, cfg.Wants("ERROR"))
	assert.False(t, WebhookConfig{Enabled: true, Events: map[string]bool{"ERROR": true}}.Wants("ERROR"))
}

func TestViewHidesNarrativeAndToken(t *testing.T) {
	s := NewSession("s1", time.Unix(0, 0))
	s.Narrative = &NarrativeAnalysis{NarrativeArc: "hero_journey", DominantTone: "joyful", SymbolismNotes: "internal"}
	s.Webhook = WebhookConfig{URL: "https://discord.com/api/webhooks/123/secret", Events: map[string]bool{"WARNING": true, "ERROR": true, "WEBHOOK_TEST": false}}

	v := s.View()
	assert.Equal(t, &NarrativeSummary{NarrativeArc: "hero_journey", DominantTone: "joyful"}, v.Narrative)
	assert.Equal(t, "https://discord.com/api/***", v.Webhook.URL)
	assert.True(t, v.Webhook.Configured)
	assert.False(t, v.Webhook.Enabled)
	assert.Equal(t, []string{"ERROR", "WARNING"}, v.Webhook.Events)
}

func TestRedactURL(t *testing.T) {
	cases := map[string]string{
		"":                                 "",
		"not a url":                        "***",
		"https://example.com/hook":         "https://example.com/hook",
		"https://discord.com/api/webhooks": "https://discord.com/api/***",
		"http://127.0.0.1:9000/a/b/c":      "http://127.0.0.1:9000/a/***",
	}
	for in, want := range cases {
		assert.Equal(t, want, RedactURL(in), in)
	}
}

func TestStepAndFormatValidity(t *testing.T) {
	for _, s := range []ExecutionStep{StepCuts, StepVoiceOver, StepSubtitles, StepRender} {
		assert.True(t, s.Valid(), s)
	}
	assert.False(t, ExecutionStep("encode").Valid())
	assert.True(t, FormatSquare.Valid())
	assert.False(t, VideoFormat("4:3").Valid())
	assert.True(t, QuestionMultipleChoice.IsChoice())
	assert.False(t, QuestionFreeText.IsChoice())
}
