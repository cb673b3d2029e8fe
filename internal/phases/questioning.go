package phases

import (
	"context"
	"encoding/json"
	"sort"
	"strings"

	"frameforge/internal/domain"
)

// template is a question plus the keywords that show the prompt already
// covers its topic. A template with a condition is only asked when the
// condition answer contains want, or when the prompt itself covers the
// condition topic.
type template struct {
	question domain.Question
	covered  []string
	always   bool
	cond     *condition
}

type condition struct {
	questionID string
	want       string
}

var questionTemplates = []template{
	{
		question: domain.Question{
			ID: "video_format", Category: "format", Text: "What video format do you need?",
			Type:     domain.QuestionSingleChoice,
			Options:  []string{"16:9 (Landscape - YouTube, Film, TV)", "9:16 (Portrait - TikTok, Instagram Reels, Stories)", "1:1 (Square - Instagram Feed, Facebook)"},
			Required: true, HelpText: "This determines the aspect ratio and framing of your video",
		},
		covered: []string{"16:9", "9:16", "1:1", "landscape", "portrait", "square"},
	},
	{
		question: domain.Question{
			ID: "target_platform", Category: "platform", Text: "Which platform is this video for?",
			Type: domain.QuestionSingleChoice,
			Options: []string{"YouTube (long-form, 16:9)", "TikTok (short-form, 9:16, fast-paced)", "Instagram Reels (9:16, trendy)",
				"Instagram Feed (1:1 or 4:5)", "Facebook (various)", "Cinema/Film (16:9, high quality)", "TV Broadcast (16:9, standard)", "Internal/Private (flexible)"},
			Required: true, HelpText: "Platform affects pacing, style, and technical requirements",
		},
		covered: []string{"youtube", "tiktok", "instagram", "facebook", "film", "cinema", "tv"},
	},
	{
		question: domain.Question{
			ID: "target_duration", Category: "duration", Text: "What is your target duration?",
			Type: domain.QuestionSingleChoice,
			Options: []string{"15-30 seconds (Short social media)", "30-60 seconds (Standard social)", "1-3 minutes (YouTube short/Medium)",
				"3-10 minutes (Long YouTube)", "10-30 minutes (Extended content)", "Feature length (30+ minutes)"},
			Required: true, HelpText: "Duration affects pacing and how much content we can include",
		},
		covered: []string{"minute", "second", "hour", "min", "sec", "long", "short"},
	},
	{
		question: domain.Question{
			ID: "editing_rhythm", Category: "rhythm", Text: "What editing rhythm do you prefer?",
			Type: domain.QuestionSingleChoice,
			Options: []string{"Slow (contemplative, long takes, artistic)", "Medium (balanced, standard pacing)",
				"Fast (dynamic, quick cuts, energetic)", "Variable (mix of paces for emotional effect)"},
			Required: true, HelpText: "Rhythm sets the overall energy and feel of the edit",
		},
		covered: []string{"slow", "fast", "quick", "paced", "rhythm", "dynamic", "calm"},
	},
	{
		question: domain.Question{
			ID: "emotional_tone", Category: "tone", Text: "What is the primary emotional tone?",
			Type: domain.QuestionSingleChoice,
			Options: []string{"Joyful / Uplifting", "Melancholic / Sad", "Suspenseful / Tense", "Romantic / Tender", "Inspirational / Motivational",
				"Nostalgic / Reflective", "Energetic / Exciting", "Calm / Peaceful", "Dramatic / Intense", "Humorous / Light"},
			Required: true, HelpText: "The emotional tone guides music selection, pacing, and color grading",
		},
		covered: []string{"emotional", "happy", "sad", "exciting", "dramatic", "funny", "serious"},
	},
	{
		question: domain.Question{
			ID: "music_style", Category: "music", Text: "What music style should accompany the video?",
			Type: domain.QuestionSingleChoice,
			Options: []string{"Cinematic orchestral", "Electronic / Synth", "Acoustic / Folk", "Jazz / Blues", "Rock / Alternative", "Hip-hop / Rap",
				"Classical", "Ambient / Atmospheric", "Pop / Modern", "No music (dialogue only)", "Custom (specify in notes)"},
			HelpText: "Music significantly impacts the emotional impact",
		},
		covered: []string{"music", "song", "soundtrack", "audio"},
	},
	{
		question: domain.Question{
			ID: "voice_over_needed", Category: "voice_over", Text: "Do you need voice-over narration?",
			Type:     domain.QuestionSingleChoice,
			Options:  []string{"Yes, single voice", "Yes, multiple voices", "No voice-over needed"},
			HelpText: "Voice-over can guide the narrative and add professional polish",
		},
		covered: []string{"voice", "narration", "narrator", "speak", "tell"},
	},
	{
		question: domain.Question{
			ID: "voice_language", Category: "voice_over", Text: "What language for the voice-over?",
			Type:     domain.QuestionSingleChoice,
			Options:  []string{"English", "Spanish", "French", "German", "Italian", "Portuguese", "Chinese", "Japanese", "Other (specify)"},
			HelpText: "Language affects voice talent selection",
		},
		cond: &condition{questionID: "voice_over_needed", want: "Yes"},
	},
	{
		question: domain.Question{
			ID: "voice_gender", Category: "voice_over", Text: "Preferred voice gender?",
			Type:     domain.QuestionSingleChoice,
			Options:  []string{"Male", "Female", "Non-binary / Androgynous", "No preference"},
			HelpText: "Voice characteristics affect the feel of the narration",
		},
		cond: &condition{questionID: "voice_over_needed", want: "Yes"},
	},
	{
		question: domain.Question{
			ID: "voice_age", Category: "voice_over", Text: "Preferred voice age range?",
			Type:     domain.QuestionSingleChoice,
			Options:  []string{"Young (18-25)", "Adult (25-40)", "Middle-aged (40-55)", "Senior (55+)", "No preference"},
			HelpText: "Age range affects voice casting",
		},
		cond: &condition{questionID: "voice_over_needed", want: "Yes"},
	},
	{
		question: domain.Question{
			ID: "subtitles_enabled", Category: "subtitles", Text: "Do you need subtitles?",
			Type:     domain.QuestionSingleChoice,
			Options:  []string{"Yes, burned-in (permanent on video)", "Yes, SRT file (separate, optional)", "No subtitles needed"},
			HelpText: "Subtitles improve accessibility and engagement",
		},
		covered: []string{"subtitle", "caption", "text on screen"},
	},
	{
		question: domain.Question{
			ID: "subtitle_style", Category: "subtitles", Text: "What subtitle style?",
			Type: domain.QuestionSingleChoice,
			Options: []string{"Cinematic (elegant, minimal)", "Social Media (bold, colorful)", "Professional (clean, readable)",
				"Minimal (small, unobtrusive)", "Custom (specify)"},
			HelpText: "Style should match your platform and tone",
		},
		cond: &condition{questionID: "subtitles_enabled", want: "Yes"},
	},
	{
		question: domain.Question{
			ID: "ending_style", Category: "ending", Text: "How should the video end?",
			Type: domain.QuestionSingleChoice,
			Options: []string{"Closed ending (clear resolution)", "Open ending (thought-provoking)", "Call-to-action (subscribe, visit, etc.)",
				"Cliffhanger (continued in next video)", "Circular (returns to opening)", "Emotional peak (strong feeling)", "Informational summary"},
			HelpText: "The ending shapes how viewers remember your video",
		},
		covered: []string{"end", "finish", "conclude", "close", "wrap up"},
	},
	{
		question: domain.Question{
			ID: "color_grade", Category: "style", Text: "Preferred color grading style?",
			Type: domain.QuestionSingleChoice,
			Options: []string{"Natural / Realistic", "Warm / Golden", "Cool / Blue tones", "High contrast / Dramatic", "Desaturated / Muted",
				"Vibrant / Saturated", "Black & White", "Vintage / Film look", "Teal & Orange (cinematic)", "Custom (specify)"},
			HelpText: "Color grading sets the visual mood",
		},
		covered: []string{"color", "colour", "grade", "grading", "black and white"},
	},
	{
		question: domain.Question{
			ID: "source_material", Category: "technical", Text: "What is your source footage like?",
			Type: domain.QuestionMultipleChoice,
			Options: []string{"Single continuous take", "Multiple camera angles", "Interview footage", "B-roll / supplementary footage",
				"Screen recordings", "Mobile phone footage", "Professional camera footage", "Mixed sources"},
			Required: true, HelpText: "Helps determine editing approach and technical requirements",
		},
		always: true,
	},
}

// Questioner asks only about topics that neither the prompt nor earlier
// answers settle.
type Questioner struct{}

func NewQuestioner() *Questioner { return &Questioner{} }

func (q *Questioner) Questions(ctx context.Context, prompt string, answers map[string]any) (json.RawMessage, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return marshal(domain.QuestionSet{Questions: selectQuestions(promptBody(prompt), answers)})
}

func selectQuestions(prompt string, answers map[string]any) []domain.Question {
	byID := make(map[string]template, len(questionTemplates))
	for _, t := range questionTemplates {
		byID[t.question.ID] = t
	}
	out := []domain.Question{}
	for _, t := range questionTemplates {
		if _, answered := answers[t.question.ID]; answered {
			continue
		}
		if t.cond != nil {
			parent := byID[t.cond.questionID]
			have := answer(answers, t.cond.questionID, "")
			if !strings.Contains(have, t.cond.want) && !coveredBy(prompt, parent) {
				continue
			}
		} else if !t.always && coveredBy(prompt, t) {
			continue
		}
		question := t.question
		question.Options = append([]string(nil), t.question.Options...)
		out = append(out, question)
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Required != out[j].Required {
			return out[i].Required
		}
		return out[i].ID < out[j].ID
	})
	return out
}

func coveredBy(prompt string, t template) bool {
	for _, kw := range t.covered {
		if strings.ContainsAny(kw, ": ") {
			if contains(prompt, kw) {
				return true
			}
			continue
		}
		if hasStem(prompt, kw) {
			return true
		}
	}
	return false
}
