package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	frameforgesdk "frameforge/sdk/go"
)

func TestAnswerValue(t *testing.T) {
	cases := []struct {
		name   string
		values []string
		multi  bool
		number bool
		want   any
	}{
		{"single", []string{"Joyful / Uplifting"}, false, false, "Joyful / Uplifting"},
		{"several", []string{"Interview footage", "Mixed sources"}, false, false, []string{"Interview footage", "Mixed sources"}},
		{"forced list", []string{"Mixed sources"}, true, false, []string{"Mixed sources"}},
		{"number", []string{"90"}, false, true, 90.0},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := answerValue(tc.values, tc.multi, tc.number)
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}

	_, err := answerValue([]string{"ninety"}, false, true)
	assert.ErrorContains(t, err, "invalid number")
	_, err = answerValue([]string{"1", "2"}, false, true)
	assert.Error(t, err)
}

func TestWebhookSummary(t *testing.T) {
	assert.Equal(t, "-", webhookSummary(frameforgesdk.Webhook{}))
	assert.Equal(t, "https://discord.com/api/*** (disabled)", webhookSummary(frameforgesdk.Webhook{
		Configured: true,
		URL:        "https://discord.com/api/***",
	}))
	assert.Equal(t, "https://discord.com/api/***", webhookSummary(frameforgesdk.Webhook{
		Configured: true,
		Enabled:    true,
		URL:        "https://discord.com/api/***",
	}))
}
