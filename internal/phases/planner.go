package phases

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"strings"

	"frameforge/internal/domain"
	"frameforge/internal/events"
	"frameforge/internal/schema"
)

const (
	minScenes = 3
	maxScenes = 8
)

var arcThemes = map[string]string{
	"hero_journey":   "Personal transformation through challenge and triumph",
	"transformation": "Internal change and self-discovery",
	"love_story":     "Connection and relationship development",
	"tragedy":        "Loss, reflection, and emotional truth",
	"comedy":         "Joy, humor, and lighthearted moments",
	"mystery":        "Discovery and revelation",
	"documentary":    "Authentic human experience and truth",
	"montage":        "Time, memory, and progression",
	"interview":      "Personal narrative and intimate perspective",
	"event_coverage": "Celebration and shared experience",
}

type keywordTitle struct {
	keywords []string
	title    string
}

var subjectTitles = []keywordTitle{
	{[]string{"interview"}, "Voices: A Personal Story"},
	{[]string{"wedding"}, "Forever Begins"},
	{[]string{"travel", "vacation", "trip"}, "Wanderlust: A Journey Captured"},
	{[]string{"documentary"}, "The Untold Story"},
	{[]string{"product", "commercial"}, "Innovation Revealed"},
	{[]string{"event"}, "The Moment"},
}

var toneTitles = []keywordTitle{
	{[]string{"joyful"}, "Radiance"},
	{[]string{"melancholic"}, "Echoes of Yesterday"},
	{[]string{"suspenseful"}, "The Edge"},
	{[]string{"romantic"}, "Two Hearts"},
	{[]string{"inspirational"}, "Rise"},
	{[]string{"nostalgic"}, "Time Remembered"},
	{[]string{"energetic"}, "Momentum"},
	{[]string{"calm"}, "Serenity"},
	{[]string{"dramatic"}, "The Turning Point"},
}

// Planner turns the approved prompt, the answers and the narrative analysis
// into a timed scene plan.
type Planner struct{}

func NewPlanner() *Planner { return &Planner{} }

func (p *Planner) Plan(ctx context.Context, prompt string, answers map[string]any, narrative domain.NarrativeAnalysis) (json.RawMessage, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	body := promptBody(prompt)
	total := planDuration(answers)
	count := sceneCount(total, cutsPerMinute(answers))
	tone := answer(answers, "emotional_tone", "neutral")
	return marshal(domain.ScenePlan{
		Title:     planTitle(body, tone),
		Theme:     planTheme(narrative.NarrativeArc),
		Style:     planStyle(answers),
		Format:    formatFor(answer(answers, "target_platform", "YouTube")),
		VoiceOver: voiceOverConfig(answers),
		Subtitles: subtitleConfig(answers),
		Scenes:    buildScenes(answers, narrative, sceneDurations(total, count)),
	})
}

// planDuration maps a target_duration answer to the seconds the plan
// covers. It sits inside each bracket rather than at its edge.
func planDuration(answers map[string]any) int {
	d := answer(answers, "target_duration", "")
	switch {
	case strings.Contains(d, "15-30"):
		return 25
	case strings.Contains(d, "30-60"):
		return 45
	case strings.Contains(d, "1-3"):
		return 120
	case strings.Contains(d, "3-10"):
		return 360
	case strings.Contains(d, "10-30"):
		return 1200
	}
	return defaultDurationSeconds
}

func sceneCount(total, cpm int) int {
	n := int(float64(total) / 60 * float64(cpm) / 4)
	return int(math.Max(minScenes, math.Min(maxScenes, float64(n))))
}

// sceneDurations splits total evenly; the last scene absorbs the remainder
// so every scene is at least total/count seconds long.
func sceneDurations(total, count int) []int {
	base := total / count
	out := make([]int, count)
	for i := range out {
		out[i] = base
	}
	out[count-1] += total - base*count
	return out
}

// sceneTypes always opens with a hook and closes on climax and resolution.
// A setup follows the hook from four scenes up, and further scenes become
// rising action before the climax.
func sceneTypes(count int) []string {
	types := []string{"hook"}
	if count >= 4 {
		types = append(types, "setup")
	}
	for len(types) < count-2 {
		types = append(types, "rising_action")
	}
	return append(types, "climax", "resolution")
}

func formatFor(platform string) domain.VideoFormat {
	switch {
	case contains(platform, "tiktok", "reels", "stories"):
		return domain.FormatPortrait
	case contains(platform, "instagram") && contains(platform, "feed"):
		return domain.FormatSquare
	}
	return domain.FormatLandscape
}

func voiceOverConfig(answers map[string]any) domain.VoiceOver {
	needed := answer(answers, "voice_over_needed", "No voice-over needed")
	if !strings.HasPrefix(needed, "Yes") {
		return domain.VoiceOver{Enabled: false, Voices: []domain.Voice{}}
	}
	language := strings.ToLower(answer(answers, "voice_language", "English"))
	if strings.Contains(strings.ToLower(needed), "single") {
		return domain.VoiceOver{Enabled: true, Voices: []domain.Voice{{
			Gender:   strings.ReplaceAll(strings.ToLower(answer(answers, "voice_gender", "No preference")), " ", "_"),
			Language: language,
			Age:      voiceAge(answer(answers, "voice_age", "Adult")),
		}}}
	}
	return domain.VoiceOver{Enabled: true, Voices: []domain.Voice{
		{Gender: "male", Language: language, Age: "adult"},
		{Gender: "female", Language: language, Age: "adult"},
	}}
}

// voiceAge turns "Adult (25-40)" into "adult_25_40".
func voiceAge(s string) string {
	r := strings.NewReplacer("(", "", ")", "", "-", "_", "+", "", " ", "_")
	return strings.Trim(r.Replace(strings.ToLower(s)), "_")
}

func subtitleConfig(answers map[string]any) domain.Subtitles {
	subs := answer(answers, "subtitles_enabled", "No subtitles needed")
	if !strings.HasPrefix(subs, "Yes") {
		return domain.Subtitles{Enabled: false}
	}
	typ := domain.SubtitlesSRT
	if contains(subs, "burned") {
		typ = domain.SubtitlesBurned
	}
	style := strings.ToLower(firstWordsBeforeParen(answer(answers, "subtitle_style", "Professional")))
	return domain.Subtitles{Enabled: true, Type: typ, Style: strings.ReplaceAll(style, " ", "_")}
}

// firstWordsBeforeParen keeps "Social Media" out of "Social Media (bold, colorful)".
func firstWordsBeforeParen(s string) string {
	if i := strings.Index(s, "("); i >= 0 {
		s = s[:i]
	}
	return strings.TrimSpace(s)
}

func planTitle(prompt, tone string) string {
	for _, t := range subjectTitles {
		if hasWord(prompt, t.keywords...) {
			return t.title
		}
	}
	for _, t := range toneTitles {
		if contains(tone, t.keywords...) {
			return t.title
		}
	}
	return "The Edit"
}

func planTheme(arc string) string {
	if theme, ok := arcThemes[arc]; ok {
		return theme
	}
	return "Human experience captured through cinematic lens"
}

func planStyle(answers map[string]any) string {
	rhythm := strings.ToLower(answer(answers, "editing_rhythm", "Medium"))
	var pace string
	switch {
	case strings.Contains(rhythm, "slow"):
		pace = "Contemplative pacing with deliberate, measured cuts"
	case strings.Contains(rhythm, "fast"):
		pace = "Dynamic, energetic editing with rapid cuts"
	default:
		pace = "Balanced rhythm with natural flow"
	}
	tone := strings.ToLower(answer(answers, "emotional_tone", "neutral"))
	color := strings.ToLower(answer(answers, "color_grade", "Natural"))
	return fmt.Sprintf("%s; %s emotional tone; %s color palette", pace, tone, color)
}

// beatFor finds the narrative beat matching a scene type, falling back to
// the dominant tone at medium intensity.
func beatFor(narrative domain.NarrativeAnalysis, sceneType, tone string) domain.EmotionalBeat {
	for _, b := range narrative.EmotionalProgression {
		if b.Beat == sceneType {
			return b
		}
	}
	return domain.EmotionalBeat{Beat: sceneType, Emotion: strings.ToLower(tone), Intensity: 0.5}
}

func buildScenes(answers map[string]any, narrative domain.NarrativeAnalysis, durations []int) []domain.Scene {
	rhythm := strings.ToLower(answer(answers, "editing_rhythm", "Medium"))
	tone := answer(answers, "emotional_tone", "neutral")
	ending := strings.ToLower(answer(answers, "ending_style", "Closed ending"))
	voiceOver := strings.HasPrefix(answer(answers, "voice_over_needed", ""), "Yes")
	subtitles := strings.HasPrefix(answer(answers, "subtitles_enabled", ""), "Yes")
	interview := contains(answer(answers, "source_material", ""), "interview")

	types := sceneTypes(len(durations))
	scenes := make([]domain.Scene, 0, len(durations))
	at := 0
	for i, d := range durations {
		kind := types[i]
		beat := beatFor(narrative, kind, tone)
		scene := domain.Scene{
			SceneID:       i + 1,
			Goal:          fmt.Sprintf("%s: %s (%.0f%% intensity)", events.TitleWords(kind), beat.Emotion, beat.Intensity*100),
			Start:         schema.FormatTimestamp(at),
			End:           schema.FormatTimestamp(at + d),
			SubtitleUsage: subtitles,
		}
		switch kind {
		case "hook":
			scene.Visual = "Impactful opening shot that establishes tone and grabs attention"
			scene.Audio = "music"
			if voiceOver {
				scene.Audio = "voice_over"
				scene.VoiceOverText = "[Opening hook - introduce the journey]"
			}
			scene.Transition = "cut"
		case "setup":
			scene.Visual = "Establishing context and introducing key elements"
			scene.Audio = "ambient"
			if interview {
				scene.Audio = "dialogue"
			}
			scene.Transition = "cut"
			if strings.Contains(rhythm, "slow") {
				scene.Transition = "fade"
			}
			if voiceOver {
				scene.VoiceOverText = "[Context setting - establish the story]"
			}
		case "rising_action":
			scene.Visual = fmt.Sprintf("Building tension with %s energy", beat.Emotion)
			scene.Audio = "dialogue"
			if beat.Intensity > 0.6 {
				scene.Audio = "music"
			}
			scene.Transition = "match_cut"
		case "climax":
			scene.Visual = fmt.Sprintf("Peak emotional moment: %s at maximum intensity", beat.Emotion)
			scene.Audio = "music"
			scene.Transition = "fade"
			if voiceOver {
				scene.VoiceOverText = fmt.Sprintf("[Emotional peak - %s]", beat.Emotion)
			}
		default:
			switch {
			case strings.Contains(ending, "open"):
				scene.Visual = "Thought-provoking final image that lingers"
				scene.Audio = "ambient"
			case strings.Contains(ending, "cliffhanger"):
				scene.Visual = "Suspenseful final moment that hints at continuation"
				scene.Audio = "music"
			default:
				scene.Visual = "Satisfying conclusion that resolves the narrative"
				scene.Audio = "music"
			}
			scene.Transition = "fade"
			if voiceOver {
				scene.VoiceOverText = "[Closing reflection - leave the audience with the message]"
			}
		}
		scenes = append(scenes, scene)
		at += d
	}
	return scenes
}
