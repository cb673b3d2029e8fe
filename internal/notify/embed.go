package notify

import (
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"time"

	"frameforge/internal/events"
)

const (
	fieldValueLimit = 1000
	footerText      = "🎬 AI Cinematic Video Editor Pro"
	footerIcon      = "https://cdn.discordapp.com/embed/avatars/0.png"
	defaultColor    = 0x95a5a6
	defaultEmoji    = "📢"
	completedColor  = 0x2ecc71
	executionColor  = 0x27ae60
	alertColor      = 0xe74c3c
	cautionColor    = 0xf39c12
)

var eventColors = map[events.Type]int{
	events.VideoUploadStarted:          0x3498db,
	events.VideoUploadCompleted:        completedColor,
	events.AudioTranscriptionStarted:   0x9b59b6,
	events.AudioTranscriptionCompleted: completedColor,
	events.VisualAnalysisStarted:       0xe67e22,
	events.VisualAnalysisCompleted:     completedColor,
	events.PromptRefinementStarted:     0x1abc9c,
	events.PromptRefinementImproved:    0x3498db,
	events.PromptRefinementApproved:    completedColor,
	events.PromptRefinementRevision:    cautionColor,
	events.QuestioningStarted:          0xf1c40f,
	events.QuestioningCompleted:        completedColor,
	events.NarrativeReasoningStarted:   0xff9ff3,
	events.NarrativeReasoningDone:      completedColor,
	events.ScenePlanningStarted:        alertColor,
	events.ScenePlanningCompleted:      completedColor,
	events.VideoCutCreation:            executionColor,
	events.VoiceOverGeneration:         executionColor,
	events.SubtitleGeneration:          executionColor,
	events.FinalRenderStarted:          alertColor,
	events.FinalRenderCompleted:        completedColor,
	events.WebhookTest:                 defaultColor,
	events.Error:                       alertColor,
	events.Warning:                     cautionColor,
}

var eventEmojis = map[events.Type]string{
	events.VideoUploadStarted:          "📤",
	events.VideoUploadCompleted:        "✅",
	events.AudioTranscriptionStarted:   "🎤",
	events.AudioTranscriptionCompleted: "📝",
	events.VisualAnalysisStarted:       "👁️",
	events.VisualAnalysisCompleted:     "🎨",
	events.PromptRefinementStarted:     "✏️",
	events.PromptRefinementImproved:    "💡",
	events.PromptRefinementApproved:    "👍",
	events.PromptRefinementRevision:    "🔄",
	events.QuestioningStarted:          "❓",
	events.QuestioningCompleted:        "📋",
	events.NarrativeReasoningStarted:   "🧠",
	events.NarrativeReasoningDone:      "📖",
	events.ScenePlanningStarted:        "🎬",
	events.ScenePlanningCompleted:      "🎞️",
	events.VideoCutCreation:            "✂️",
	events.VoiceOverGeneration:         "🗣️",
	events.SubtitleGeneration:          "💬",
	events.FinalRenderStarted:          "🚀",
	events.FinalRenderCompleted:        "🎉",
	events.WebhookTest:                 "🔔",
	events.Error:                       "❌",
	events.Warning:                     "⚠️",
}

type embedField struct {
	Name   string `json:"name"`
	Value  string `json:"value"`
	Inline bool   `json:"inline"`
}

type embedFooter struct {
	Text    string `json:"text"`
	IconURL string `json:"icon_url,omitempty"`
}

type embed struct {
	Title       string       `json:"title"`
	Description string       `json:"description"`
	Color       int          `json:"color"`
	Fields      []embedField `json:"fields"`
	Footer      embedFooter  `json:"footer"`
	Timestamp   string       `json:"timestamp"`
}

type message struct {
	Embeds []embed `json:"embeds"`
}

func colorFor(t events.Type) int {
	if c, ok := eventColors[t]; ok {
		return c
	}
	return defaultColor
}

func emojiFor(t events.Type) string {
	if e, ok := eventEmojis[t]; ok {
		return e
	}
	return defaultEmoji
}

// buildEmbed renders evt as a Discord webhook body. Only scalar payload
// values become fields; nested values are left out.
func buildEmbed(evt events.Event) message {
	fields := []embedField{
		{Name: "Project ID", Value: shortID(evt.SessionID), Inline: true},
		{Name: "Time", Value: evt.Timestamp.Format("15:04:05"), Inline: true},
	}
	keys := make([]string, 0, len(evt.Payload))
	for k := range evt.Payload {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		v, ok := scalar(evt.Payload[k])
		if !ok {
			continue
		}
		fields = append(fields, embedField{Name: events.TitleWords(k), Value: truncate(v, fieldValueLimit), Inline: true})
	}
	return message{Embeds: []embed{{
		Title:       emojiFor(evt.Type) + " " + evt.Type.Label(),
		Description: evt.Status,
		Color:       colorFor(evt.Type),
		Fields:      fields,
		Footer:      embedFooter{Text: footerText, IconURL: footerIcon},
		Timestamp:   evt.Timestamp.UTC().Format(time.RFC3339),
	}}}
}

func encodeEmbed(evt events.Event) ([]byte, error) {
	return json.Marshal(buildEmbed(evt))
}

func shortID(id string) string {
	r := []rune(id)
	if len(r) > 8 {
		r = r[:8]
	}
	return string(r) + "..."
}

func scalar(v any) (string, bool) {
	switch t := v.(type) {
	case string:
		return t, true
	case bool:
		return strconv.FormatBool(t), true
	case int:
		return strconv.Itoa(t), true
	case int64:
		return strconv.FormatInt(t, 10), true
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64), true
	case fmt.Stringer:
		return t.String(), true
	}
	return "", false
}

func truncate(s string, limit int) string {
	r := []rune(s)
	if len(r) <= limit {
		return s
	}
	return string(r[:limit])
}
