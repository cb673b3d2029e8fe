package schema

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"frameforge/internal/domain"
)

func violationPaths(t *testing.T, err error) []string {
	t.Helper()
	var verr *ValidationError
	require.True(t, errors.As(err, &verr), "expected *ValidationError, got %v", err)
	require.ErrorIs(t, err, ErrValidation)
	out := make([]string, 0, len(verr.Violations))
	for _, v := range verr.Violations {
		out = append(out, v.Path)
	}
	return out
}

func TestRefinement(t *testing.T) {
	res, err := Refinement([]byte(`{
		"original_prompt": "make a video",
		"improved_prompt": "Goal: make a 60 second video",
		"issues_detected": ["Missing duration"],
		"improvements_made": ["Added duration"],
		"user_action_required": "accept"
	}`))
	require.NoError(t, err)
	assert.Equal(t, "Goal: make a 60 second video", res.ImprovedPrompt)

	cases := map[string]struct {
		payload string
		paths   []string
	}{
		"not json":       {`{`, []string{""}},
		"not an object":  {`[1]`, []string{""}},
		"missing fields": {`{}`, []string{"original_prompt", "improved_prompt", "issues_detected", "improvements_made", "user_action_required"}},
		"bad action": {
			`{"original_prompt":"a","improved_prompt":"a","issues_detected":[],"improvements_made":[],"user_action_required":"maybe"}`,
			[]string{"user_action_required"},
		},
		"revise without issues": {
			`{"original_prompt":"a","improved_prompt":"a","issues_detected":[],"improvements_made":[],"user_action_required":"revise"}`,
			[]string{"issues_detected"},
		},
		"changed without improvements": {
			`{"original_prompt":"a","improved_prompt":"b","issues_detected":[],"improvements_made":[],"user_action_required":"accept"}`,
			[]string{"improvements_made"},
		},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Refinement([]byte(tc.payload))
			assert.Equal(t, tc.paths, violationPaths(t, err))
		})
	}
}

func TestQuestions(t *testing.T) {
	qs, err := Questions([]byte(`{"questions":[
		{"id":"video_format","question":"Format?","type":"single_choice","options":["16:9","9:16"],"required":true},
		{"id":"notes","question":"Anything else?","type":"free_text","required":false}
	]}`))
	require.NoError(t, err)
	require.Len(t, qs.Questions, 2)

	_, err = Questions([]byte(`{"questions":[
		{"id":"a","question":"A?","type":"single_choice","required":true},
		{"id":"a","question":"","type":"ranking","required":"yes"}
	]}`))
	assert.Equal(t, []string{
		"questions[0].options",
		"questions[1].id",
		"questions[1].question",
		"questions[1].required",
		"questions[1].type",
	}, violationPaths(t, err))

	_, err = Questions([]byte(`{"questions":[]}`))
	assert.Equal(t, []string{"questions"}, violationPaths(t, err))
}

func TestNarrative(t *testing.T) {
	valid := `{
		"narrative_arc": "hero_journey",
		"dominant_tone": "joyful",
		"emotional_progression": [{"beat":"opening","emotion":"calm","intensity":0.3,"pacing":"slow"}],
		"pacing_recommendation": {
			"total_duration_seconds": 120,
			"cuts_per_minute": 15,
			"estimated_total_cuts": 30,
			"average_shot_length_seconds": 4,
			"rhythm_pattern": [{"beat":"opening","cuts_per_minute":8,"pacing":"slow","intensity":0.3}]
		}
	}`
	n, err := Narrative([]byte(valid))
	require.NoError(t, err)
	assert.Equal(t, domain.NarrativeSummary{NarrativeArc: "hero_journey", DominantTone: "joyful"}, n.Summary())

	_, err = Narrative([]byte(`{
		"narrative_arc": "hero_journey",
		"dominant_tone": "joyful",
		"emotional_progression": [{"beat":"opening","emotion":"calm","intensity":1.5,"pacing":"slow"}],
		"pacing_recommendation": {"total_duration_seconds": 0, "cuts_per_minute": 2.5, "estimated_total_cuts": 1, "average_shot_length_seconds": 1, "rhythm_pattern": []}
	}`))
	assert.Equal(t, []string{
		"emotional_progression[0].intensity",
		"pacing_recommendation.total_duration_seconds",
		"pacing_recommendation.cuts_per_minute",
	}, violationPaths(t, err))
}

const planHeader = `"title":"Trip","theme":"travel","style":"documentary","format":"16:9",
	"voice_over":{"enabled":false},"subtitles":{"enabled":true,"type":"srt"}`

func TestScenePlan(t *testing.T) {
	plan, err := ScenePlan([]byte(`{` + planHeader + `,"scenes":[
		{"scene_id":1,"goal":"hook","start":"00:00","end":"00:10","visual":"beach","audio":"waves","subtitle_usage":true},
		{"scene_id":2,"goal":"close","start":"00:10","end":"01:00:05","visual":"sunset","audio":"music"}
	]}`))
	require.NoError(t, err)
	assert.Equal(t, domain.FormatLandscape, plan.Format)
	assert.Len(t, plan.Scenes, 2)

	_, err = ScenePlan([]byte(`{` + planHeader + `,"scenes":[
		{"scene_id":1,"goal":"hook","start":"00:00","end":"00:20","visual":"v","audio":"a"},
		{"scene_id":3,"goal":"mid","start":"00:15","end":"00:10","visual":"v","audio":"a"},
		{"scene_id":3,"goal":"end","start":"00:30","end":"00:4","visual":"v","audio":"a"}
	]}`))
	assert.Equal(t, []string{
		"scenes[1].scene_id",
		"scenes[1]",
		"scenes[1].start",
		"scenes[2].end",
	}, violationPaths(t, err))

	_, err = ScenePlan([]byte(`{"title":"T","theme":"t","style":"s","format":"4:3",
		"voice_over":{"enabled":true,"voices":[{"gender":"female","language":"en"}]},
		"subtitles":{"enabled":true,"type":"vtt"},
		"scenes":[{"scene_id":1,"goal":"g","start":"00:00","end":"00:05","visual":"v","audio":"a"}]}`))
	assert.Equal(t, []string{"format", "voice_over.voices[0].age", "subtitles.type"}, violationPaths(t, err))
}

func TestValidateDispatch(t *testing.T) {
	res, err := Validate(domain.KindQuestions, []byte(`{"questions":[{"id":"q","question":"Q?","type":"number","required":true}]}`))
	require.NoError(t, err)
	assert.Equal(t, domain.KindQuestions, res.Kind())

	_, err = Validate("storyboard", []byte(`{}`))
	assert.ErrorContains(t, err, "unknown result kind")
}

func TestTimestamps(t *testing.T) {
	for in, want := range map[string]int{"00:00": 0, "01:30": 90, "59:59": 3599, "01:00:00": 3600, "02:03:04": 7384} {
		got, err := ParseTimestamp(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
		assert.Equal(t, in, FormatTimestamp(want))
	}
	for _, bad := range []string{"", "90", "1:5", "00:60", "01:60:00", "aa:bb", "-1:00"} {
		_, err := ParseTimestamp(bad)
		assert.Error(t, err, bad)
	}
	assert.Equal(t, "00:00", FormatTimestamp(-5))
}

func TestAnswer(t *testing.T) {
	single := domain.Question{ID: "tone", Type: domain.QuestionSingleChoice, Options: []string{"Calm", "Tense"}}
	multi := domain.Question{ID: "src", Type: domain.QuestionMultipleChoice, Options: []string{"Phone", "Drone"}}
	free := domain.Question{ID: "notes", Type: domain.QuestionFreeText}
	num := domain.Question{ID: "secs", Type: domain.QuestionNumber}

	v, err := Answer(single, " Calm ")
	require.NoError(t, err)
	assert.Equal(t, "Calm", v)
	v, err = Answer(multi, []any{"Phone", "Drone"})
	require.NoError(t, err)
	assert.Equal(t, []string{"Phone", "Drone"}, v)
	v, err = Answer(free, "anything goes")
	require.NoError(t, err)
	assert.Equal(t, "anything goes", v)
	v, err = Answer(num, 42.0)
	require.NoError(t, err)
	assert.Equal(t, 42.0, v)

	cases := []struct {
		name  string
		q     domain.Question
		value any
	}{
		{"not an option", single, "Happy"},
		{"empty string", free, "  "},
		{"wrong type", single, 3.0},
		{"empty list", multi, []any{}},
		{"duplicate", multi, []any{"Phone", "Phone"}},
		{"unknown option", multi, []any{"Tripod"}},
		{"number as text", num, "ten"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Answer(tc.q, tc.value)
			var verr *ValidationError
			require.True(t, errors.As(err, &verr), "got %v", err)
			assert.Equal(t, KindAnswer, verr.Kind)
		})
	}
}

func TestWebhookConfig(t *testing.T) {
	prefixes := []string{DefaultWebhookPrefix}
	require.NoError(t, WebhookConfig(domain.WebhookConfig{URL: "https://discord.com/api/webhooks/1/abc", Enabled: true}, prefixes))
	require.NoError(t, WebhookConfig(domain.WebhookConfig{}, prefixes))
	require.NoError(t, WebhookConfig(domain.WebhookConfig{URL: "http://127.0.0.1:9000/hook", Enabled: true}, nil))

	err := WebhookConfig(domain.WebhookConfig{Enabled: true}, prefixes)
	assert.Equal(t, []string{"url"}, violationPaths(t, err))

	err = WebhookConfig(domain.WebhookConfig{URL: "https://example.com/hook", Enabled: true}, prefixes)
	assert.Equal(t, []string{"url"}, violationPaths(t, err))

	err = WebhookConfig(domain.WebhookConfig{
		URL:    "ftp://discord.com/api/webhooks/1",
		Events: map[string]bool{"ERROR": true, "NOT_A_TYPE": true},
	}, prefixes)
	assert.Equal(t, []string{"url", "events.NOT_A_TYPE"}, violationPaths(t, err))
}
