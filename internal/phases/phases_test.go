package phases

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"frameforge/internal/domain"
	"frameforge/internal/schema"
)

const vacationPrompt = "Make a nice video about my vacation"

var vacationAnswers = map[string]any{
	"video_format":      "16:9 (Landscape - YouTube, Film, TV)",
	"target_platform":   "YouTube (long-form, 16:9)",
	"target_duration":   "1-3 minutes (YouTube short/Medium)",
	"editing_rhythm":    "Medium (balanced, standard pacing)",
	"emotional_tone":    "Joyful / Uplifting",
	"source_material":   []string{"Mobile phone footage", "Mixed sources"},
	"voice_over_needed": "Yes, single voice",
	"voice_gender":      "Female",
	"voice_age":         "Adult (25-40)",
	"subtitles_enabled": "Yes, burned-in (permanent on video)",
	"subtitle_style":    "Social Media (bold, colorful)",
	"ending_style":      "Open ending (thought-provoking)",
}

func TestRefineVacationPrompt(t *testing.T) {
	raw, err := NewRefiner().Refine(context.Background(), vacationPrompt)
	require.NoError(t, err)
	res, err := schema.Refinement(raw)
	require.NoError(t, err)

	assert.Equal(t, vacationPrompt, res.OriginalPrompt)
	assert.Equal(t, domain.ActionRevise, res.UserActionRequired)
	assert.True(t, strings.HasPrefix(res.ImprovedPrompt, "Goal: Make a nice video"))
	assert.Contains(t, res.IssuesDetected, issueEmotion)
	assert.Contains(t, res.IssuesDetected, issueTechnical)
	assert.Contains(t, res.IssuesDetected, issueDuration)
	assert.Contains(t, res.IssuesDetected, issuePlatform)
	assert.Contains(t, res.IssuesDetected, issueAction)
	assert.NotContains(t, res.IssuesDetected, issueTiming)
	assert.Contains(t, res.ImprovedPrompt, "\n- Platform: [")
}

func TestRefineWellSpecifiedPromptIsAccepted(t *testing.T) {
	prompt := "Goal: cut my interview footage into a 5 minute YouTube piece"
	raw, err := NewRefiner().Refine(context.Background(), prompt)
	require.NoError(t, err)
	res, err := schema.Refinement(raw)
	require.NoError(t, err)
	assert.Equal(t, domain.ActionAccept, res.UserActionRequired)
	assert.Empty(t, res.IssuesDetected)
	assert.Equal(t, prompt, res.ImprovedPrompt)
}

func TestRefineEmptyPromptFailsValidation(t *testing.T) {
	raw, err := NewRefiner().Refine(context.Background(), "   ")
	require.NoError(t, err)
	_, err = schema.Refinement(raw)
	require.ErrorIs(t, err, schema.ErrValidation)
}

func TestReviseFeedbackCues(t *testing.T) {
	r := NewRefiner()
	first, err := r.Refine(context.Background(), vacationPrompt)
	require.NoError(t, err)
	prev, err := schema.Refinement(first)
	require.NoError(t, err)

	tests := []struct {
		name     string
		feedback string
		check    func(t *testing.T, improved string)
	}{
		{"shorter", "This is too long", func(t *testing.T, improved string) {
			assert.NotContains(t, improved, "\n")
		}},
		{"simpler", "keep it simple", func(t *testing.T, improved string) {
			assert.NotContains(t, improved, "Technical:")
			assert.NotContains(t, improved, "Duration:")
			assert.Contains(t, improved, "Platform:")
		}},
		{"more detail", "please elaborate", func(t *testing.T, improved string) {
			assert.Contains(t, improved, "- Style: [")
			assert.Contains(t, improved, "- Audio: [")
		}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			raw, err := r.Revise(context.Background(), vacationPrompt, prev.ImprovedPrompt, tc.feedback)
			require.NoError(t, err)
			res, err := schema.Refinement(raw)
			require.NoError(t, err)
			assert.Equal(t, domain.ActionAccept, res.UserActionRequired)
			assert.Equal(t, tc.feedback, res.FeedbackIncorporated)
			assert.Equal(t, "Adjusted based on user feedback", res.ImprovementsMade[0])
			tc.check(t, res.ImprovedPrompt)
		})
	}
}

func TestQuestionsForVacation(t *testing.T) {
	raw, err := NewQuestioner().Questions(context.Background(), "Goal: Make a nice video about my vacation\n- Platform: [YouTube/TikTok/Instagram/Film/etc.] - affects pacing and format", nil)
	require.NoError(t, err)
	set, err := schema.Questions(raw)
	require.NoError(t, err)

	var ids []string
	seenOptional := false
	for _, q := range set.Questions {
		ids = append(ids, q.ID)
		if !q.Required {
			seenOptional = true
		} else {
			assert.False(t, seenOptional, "required question %s after optional ones", q.ID)
		}
	}
	assert.Equal(t, []string{
		"editing_rhythm", "emotional_tone", "source_material", "target_duration", "target_platform", "video_format",
		"color_grade", "ending_style", "music_style", "subtitles_enabled", "voice_over_needed",
	}, ids)
}

func TestQuestionsSkipCoveredTopics(t *testing.T) {
	prompt := "A fast 30 second TikTok in 9:16 with voice narration and captions"
	raw, err := NewQuestioner().Questions(context.Background(), prompt, map[string]any{"emotional_tone": "Joyful / Uplifting"})
	require.NoError(t, err)
	set, err := schema.Questions(raw)
	require.NoError(t, err)

	for _, id := range []string{"video_format", "target_platform", "target_duration", "editing_rhythm", "emotional_tone", "voice_over_needed", "subtitles_enabled"} {
		_, found := set.Find(id)
		assert.False(t, found, "%s should not be asked", id)
	}
	for _, id := range []string{"source_material", "voice_language", "voice_gender", "voice_age", "subtitle_style"} {
		_, found := set.Find(id)
		assert.True(t, found, "%s should be asked", id)
	}
}

func TestAnalyzeVacation(t *testing.T) {
	raw, err := NewNarrator().Analyze(context.Background(), vacationPrompt, vacationAnswers)
	require.NoError(t, err)
	n, err := schema.Narrative(raw)
	require.NoError(t, err)

	assert.Equal(t, "montage", n.NarrativeArc)
	assert.Equal(t, "Joyful / Uplifting", n.DominantTone)
	assert.Equal(t, 180, n.Pacing.TotalDurationSeconds)
	assert.Equal(t, 15, n.Pacing.CutsPerMinute)
	assert.Equal(t, 45, n.Pacing.EstimatedTotalCuts)
	assert.Equal(t, 4, n.Pacing.AverageShotLengthSeconds)
	require.Len(t, n.EmotionalProgression, 5)
	last := n.EmotionalProgression[4]
	assert.Equal(t, "contemplation", last.Emotion)
	assert.Equal(t, 0.4, last.Intensity)
	assert.Equal(t, 22, n.Pacing.RhythmPattern[3].CutsPerMinute)
}

func TestNarrativeArcScoring(t *testing.T) {
	tests := []struct {
		name    string
		prompt  string
		answers map[string]any
		want    string
	}{
		{"explicit name", "a love story between two dogs", nil, "love_story"},
		{"tone boost", "footage of my grandmother", map[string]any{"emotional_tone": "Melancholic / Sad"}, "tragedy"},
		{"interview footage", "my footage", map[string]any{"source_material": []string{"Interview footage"}}, "interview"},
		{"fallback montage", "our wedding day", nil, "montage"},
		{"fallback documentary", "the factory floor", nil, "documentary"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, narrativeArc(tc.prompt, tc.answers))
		})
	}
}

func TestSocialPlatformRaisesCutRate(t *testing.T) {
	p := pacing(map[string]any{"target_platform": "TikTok (short-form, 9:16, fast-paced)", "editing_rhythm": "Slow (contemplative)"},
		emotionalProgression(nil))
	assert.Equal(t, 25, p.CutsPerMinute)
}

func TestPlanVacation(t *testing.T) {
	nraw, err := NewNarrator().Analyze(context.Background(), vacationPrompt, vacationAnswers)
	require.NoError(t, err)
	n, err := schema.Narrative(nraw)
	require.NoError(t, err)

	raw, err := NewPlanner().Plan(context.Background(), vacationPrompt, vacationAnswers, n)
	require.NoError(t, err)
	plan, err := schema.ScenePlan(raw)
	require.NoError(t, err)

	assert.Equal(t, "Wanderlust: A Journey Captured", plan.Title)
	assert.Equal(t, "Time, memory, and progression", plan.Theme)
	assert.Equal(t, domain.FormatLandscape, plan.Format)
	assert.True(t, plan.VoiceOver.Enabled)
	require.Len(t, plan.VoiceOver.Voices, 1)
	assert.Equal(t, "female", plan.VoiceOver.Voices[0].Gender)
	assert.Equal(t, "adult_25_40", plan.VoiceOver.Voices[0].Age)
	assert.Equal(t, domain.Subtitles{Enabled: true, Type: domain.SubtitlesBurned, Style: "social_media"}, plan.Subtitles)

	// 120s at 15 cuts/min gives 7 scenes.
	require.Len(t, plan.Scenes, 7)
	assert.Equal(t, "00:00", plan.Scenes[0].Start)
	assert.Equal(t, "02:00", plan.Scenes[6].End)
	assert.True(t, strings.HasPrefix(plan.Scenes[0].Goal, "Hook:"))
	assert.True(t, strings.HasPrefix(plan.Scenes[5].Goal, "Climax:"))
	assert.Equal(t, "Thought-provoking final image that lingers", plan.Scenes[6].Visual)
}

func TestSceneDurationsCoverTotal(t *testing.T) {
	for _, tc := range []struct{ total, count int }{{25, 3}, {45, 8}, {1200, 8}, {181, 4}} {
		d := sceneDurations(tc.total, tc.count)
		sum := 0
		for _, v := range d {
			assert.Positive(t, v)
			sum += v
		}
		assert.Equal(t, tc.total, sum)
	}
}

func TestSceneTypes(t *testing.T) {
	assert.Equal(t, []string{"hook", "climax", "resolution"}, sceneTypes(3))
	assert.Equal(t, []string{"hook", "setup", "climax", "resolution"}, sceneTypes(4))
	assert.Equal(t, []string{"hook", "setup", "rising_action", "rising_action", "climax", "resolution"}, sceneTypes(6))
}

func TestFormatForPlatform(t *testing.T) {
	assert.Equal(t, domain.FormatPortrait, formatFor("Instagram Reels (9:16, trendy)"))
	assert.Equal(t, domain.FormatSquare, formatFor("Instagram Feed (1:1 or 4:5)"))
	assert.Equal(t, domain.FormatLandscape, formatFor("Cinema/Film (16:9, high quality)"))
}
