package phases

import (
	"context"
	"encoding/json"
	"strings"

	"frameforge/internal/domain"
)

type archetype struct {
	name        string
	description string
}

// Ties resolve to the earlier archetype.
var archetypes = []archetype{
	{"hero_journey", "Protagonist overcomes challenges to achieve goal"},
	{"transformation", "Character undergoes significant internal change"},
	{"love_story", "Relationship develops through obstacles"},
	{"tragedy", "Downward arc ending in loss or failure"},
	{"comedy", "Humorous situations leading to happy resolution"},
	{"mystery", "Unknown revealed through investigation"},
	{"documentary", "Informational with emotional human element"},
	{"montage", "Collection of moments showing progression"},
	{"interview", "Personal story told through dialogue"},
	{"event_coverage", "Chronological documentation with highlights"},
}

type symbol struct {
	keywords []string
	note     string
}

var symbols = []symbol{
	{[]string{"journey", "travel", "road", "path"}, "Journey/Path = Life's progression or personal growth"},
	{[]string{"light", "sun", "bright", "dark", "shadow"}, "Light/Dark = Hope/despair, knowledge/ignorance, good/evil"},
	{[]string{"water", "ocean", "river", "rain"}, "Water = Emotions, purification, life flow"},
	{[]string{"mountain", "climb", "peak", "height"}, "Mountains/Height = Challenges, achievement, perspective"},
	{[]string{"door", "gate", "entrance", "threshold"}, "Doors/Gates = New opportunities, transitions, choices"},
	{[]string{"mirror", "reflection", "glass"}, "Mirrors = Self-reflection, truth, identity"},
}

const (
	defaultDurationSeconds = 180
	defaultCutsPerMinute   = 15
	socialCutsPerMinute    = 25
)

// Narrator derives the hidden narrative analysis that drives scene planning.
type Narrator struct{}

func NewNarrator() *Narrator { return &Narrator{} }

func (n *Narrator) Analyze(ctx context.Context, prompt string, answers map[string]any) (json.RawMessage, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	body := promptBody(prompt)
	progression := emotionalProgression(answers)
	return marshal(domain.NarrativeAnalysis{
		NarrativeArc:         narrativeArc(body, answers),
		EmotionalProgression: progression,
		DominantTone:         answer(answers, "emotional_tone", "neutral"),
		Pacing:               pacing(answers, progression),
		SymbolismNotes:       symbolism(body),
	})
}

func narrativeArc(prompt string, answers map[string]any) string {
	lower := strings.ToLower(prompt)
	scores := make(map[string]int, len(archetypes))
	for _, a := range archetypes {
		score := 0
		if strings.Contains(lower, strings.ReplaceAll(a.name, "_", " ")) {
			score += 3
		}
		if strings.Contains(lower, a.name) {
			score += 3
		}
		for _, kw := range strings.Fields(strings.ToLower(a.description)) {
			if len(kw) > 4 && strings.Contains(lower, kw) {
				score++
			}
		}
		scores[a.name] = score
	}

	tone := strings.ToLower(answer(answers, "emotional_tone", ""))
	if contains(tone, "tragedy", "sad", "melancholic") {
		scores["tragedy"] += 2
	}
	if contains(tone, "inspirational", "motivational") {
		scores["hero_journey"] += 2
	}
	if contains(tone, "romantic", "love") {
		scores["love_story"] += 2
	}
	source := strings.ToLower(answer(answers, "source_material", ""))
	if strings.Contains(source, "interview footage") {
		scores["interview"] += 3
	}
	if strings.Contains(source, "b-roll") && strings.Contains(source, "interview") {
		scores["documentary"] += 2
	}

	best, bestScore := "", 0
	for _, a := range archetypes {
		if scores[a.name] > bestScore {
			best, bestScore = a.name, scores[a.name]
		}
	}
	if best != "" {
		return best
	}
	switch {
	case strings.Contains(lower, "interview"):
		return "interview"
	case hasStem(lower, "wedding", "event", "vacation", "trip"):
		return "montage"
	default:
		return "documentary"
	}
}

func emotionalProgression(answers map[string]any) []domain.EmotionalBeat {
	tone := answer(answers, "emotional_tone", "neutral")
	rhythm := strings.ToLower(answer(answers, "editing_rhythm", "medium"))
	var beats []domain.EmotionalBeat
	switch {
	case strings.Contains(rhythm, "slow"):
		beats = []domain.EmotionalBeat{
			{Beat: "hook", Emotion: "curiosity", Intensity: 0.3, Pacing: "slow"},
			{Beat: "setup", Emotion: tone, Intensity: 0.4, Pacing: "slow"},
			{Beat: "rising_action", Emotion: tone, Intensity: 0.5, Pacing: "medium"},
			{Beat: "climax", Emotion: "intense_" + tone, Intensity: 0.7, Pacing: "slow"},
			{Beat: "resolution", Emotion: "peaceful", Intensity: 0.3, Pacing: "very_slow"},
		}
	case strings.Contains(rhythm, "fast"):
		beats = []domain.EmotionalBeat{
			{Beat: "hook", Emotion: "excitement", Intensity: 0.7, Pacing: "fast"},
			{Beat: "setup", Emotion: tone, Intensity: 0.5, Pacing: "fast"},
			{Beat: "rising_action", Emotion: "building_" + tone, Intensity: 0.8, Pacing: "very_fast"},
			{Beat: "climax", Emotion: "peak_" + tone, Intensity: 1.0, Pacing: "fast"},
			{Beat: "resolution", Emotion: "satisfaction", Intensity: 0.6, Pacing: "medium"},
		}
	default:
		beats = []domain.EmotionalBeat{
			{Beat: "hook", Emotion: "interest", Intensity: 0.5, Pacing: "medium"},
			{Beat: "setup", Emotion: tone, Intensity: 0.4, Pacing: "medium"},
			{Beat: "rising_action", Emotion: "developing_" + tone, Intensity: 0.6, Pacing: "medium"},
			{Beat: "climax", Emotion: "intense_" + tone, Intensity: 0.9, Pacing: "medium_fast"},
			{Beat: "resolution", Emotion: "fulfillment", Intensity: 0.5, Pacing: "slow"},
		}
	}
	ending := strings.ToLower(answer(answers, "ending_style", ""))
	last := &beats[len(beats)-1]
	switch {
	case strings.Contains(ending, "open"):
		last.Emotion, last.Intensity = "contemplation", 0.4
	case strings.Contains(ending, "cliffhanger"):
		last.Emotion, last.Intensity = "suspense", 0.8
	}
	return beats
}

// narrativeDuration maps a target_duration answer to the seconds used for
// pacing.
func narrativeDuration(answers map[string]any) int {
	d := answer(answers, "target_duration", "")
	switch {
	case strings.Contains(d, "15-30"):
		return 30
	case strings.Contains(d, "30-60"):
		return 60
	case strings.Contains(d, "1-3"):
		return 180
	case strings.Contains(d, "3-10"):
		return 600
	case strings.Contains(d, "10-30"):
		return 1800
	}
	return defaultDurationSeconds
}

// cutsPerMinute reads the editing rhythm by its leading word.
func cutsPerMinute(answers map[string]any) int {
	switch firstWord(answer(answers, "editing_rhythm", "medium")) {
	case "slow":
		return 8
	case "fast":
		return 30
	}
	return defaultCutsPerMinute
}

func pacing(answers map[string]any, beats []domain.EmotionalBeat) domain.PacingRecommendation {
	duration := narrativeDuration(answers)
	cpm := cutsPerMinute(answers)
	if contains(answer(answers, "target_platform", ""), "tiktok", "reels") && cpm < socialCutsPerMinute {
		cpm = socialCutsPerMinute
	}
	pattern := make([]domain.RhythmBeat, 0, len(beats))
	for _, b := range beats {
		beatCuts := cpm
		switch {
		case b.Intensity > 0.8:
			beatCuts = int(float64(cpm) * 1.5)
		case b.Intensity < 0.4:
			beatCuts = int(float64(cpm) * 0.6)
		}
		pattern = append(pattern, domain.RhythmBeat{Beat: b.Beat, CutsPerMinute: beatCuts, Pacing: b.Pacing, Intensity: b.Intensity})
	}
	return domain.PacingRecommendation{
		TotalDurationSeconds:     duration,
		CutsPerMinute:            cpm,
		EstimatedTotalCuts:       duration * cpm / 60,
		AverageShotLengthSeconds: 60 / cpm,
		RhythmPattern:            pattern,
	}
}

func symbolism(prompt string) string {
	var notes []string
	for _, s := range symbols {
		if hasStem(prompt, s.keywords...) {
			notes = append(notes, s.note)
		}
	}
	return strings.Join(notes, "; ")
}
