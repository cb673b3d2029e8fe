package phases

import (
	"context"
	"encoding/json"
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"

	"frameforge/internal/domain"
)

const (
	issueTiming    = "Contains vague timing words that need specification"
	issueEmotion   = "Emotional descriptors are too generic - needs specificity"
	issueTechnical = "Missing technical specifications (format, resolution, aspect ratio)"
	issueDuration  = "No duration or length constraints specified"
	issuePlatform  = "Target platform not specified (affects format and style decisions)"
	issueAction    = "Action verbs are vague - needs specific editing actions"

	// reviseAbove is the issue count beyond which the caller is asked to
	// revise instead of accept.
	reviseAbove = 2
	// qualityAbove is the complexity score beyond which a quality line is
	// appended.
	qualityAbove = 3
)

var technicalTerms = []string{"transition", "color grade", "sound design", "b-roll", "montage"}

// Refiner tightens a free-text prompt without changing what it asks for.
type Refiner struct{}

func NewRefiner() *Refiner { return &Refiner{} }

type refinement struct {
	OriginalPrompt       string   `json:"original_prompt"`
	ImprovedPrompt       string   `json:"improved_prompt"`
	IssuesDetected       []string `json:"issues_detected"`
	ImprovementsMade     []string `json:"improvements_made"`
	UserActionRequired   string   `json:"user_action_required"`
	FeedbackIncorporated string   `json:"feedback_incorporated,omitempty"`
}

func (r *Refiner) Refine(ctx context.Context, prompt string) (json.RawMessage, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if strings.TrimSpace(prompt) == "" {
		// An empty improved prompt never passes validation.
		return marshal(refinement{
			IssuesDetected:     []string{"Empty prompt provided"},
			ImprovementsMade:   []string{},
			UserActionRequired: domain.ActionRevise,
		})
	}
	issues := detectIssues(prompt)
	improved, improvements := improvePrompt(prompt, issues)
	action := domain.ActionAccept
	if len(issues) > reviseAbove {
		action = domain.ActionRevise
	}
	return marshal(refinement{
		OriginalPrompt:     prompt,
		ImprovedPrompt:     improved,
		IssuesDetected:     issues,
		ImprovementsMade:   improvements,
		UserActionRequired: action,
	})
}

var (
	technicalLine = regexp.MustCompile(`\n- Technical:[^\n]*`)
	durationLine  = regexp.MustCompile(`\n- Duration:[^\n]*`)
)

// Revise reshapes the previous improved prompt according to reviewer
// feedback and re-analyzes the result.
func (r *Refiner) Revise(ctx context.Context, original, previous, feedback string) (json.RawMessage, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	fb := strings.ToLower(feedback)
	adjusted := previous
	if strings.Contains(fb, "too long") || strings.Contains(fb, "verbose") || strings.Contains(fb, "shorter") {
		adjusted = strings.SplitN(adjusted, "\n", 2)[0]
	}
	if strings.Contains(fb, "too technical") || strings.Contains(fb, "simple") {
		adjusted = technicalLine.ReplaceAllString(adjusted, "")
		adjusted = durationLine.ReplaceAllString(adjusted, "")
	}
	if strings.Contains(fb, "more detail") || strings.Contains(fb, "elaborate") {
		if !strings.Contains(adjusted, "Style:") {
			adjusted += "\n- Style: [Cinematic approach - documentary, narrative, experimental, etc.]"
		}
		if !strings.Contains(adjusted, "Audio:") {
			adjusted += "\n- Audio: [Music style, voice-over needs, sound design requirements]"
		}
	}
	issues := detectIssues(promptBody(adjusted))
	_, extra := improvePrompt(adjusted, issues)
	return marshal(refinement{
		OriginalPrompt:       original,
		ImprovedPrompt:       adjusted,
		IssuesDetected:       issues,
		ImprovementsMade:     append([]string{"Adjusted based on user feedback"}, extra...),
		UserActionRequired:   domain.ActionAccept,
		FeedbackIncorporated: feedback,
	})
}

func detectIssues(prompt string) []string {
	issues := []string{}
	if hasWord(prompt, "soon", "later", "eventually", "sometime") || contains(prompt, "at some point") {
		issues = append(issues, issueTiming)
	}
	if hasWord(prompt, "good", "nice", "bad", "interesting", "emotional") {
		issues = append(issues, issueEmotion)
	}
	if hasStem(prompt, "video") && !hasStem(prompt, "format", "resolution", "aspect ratio") {
		issues = append(issues, issueTechnical)
	}
	if !hasStem(prompt, "minute", "second", "hour", "length", "duration", "short", "long") {
		issues = append(issues, issueDuration)
	}
	if !hasStem(prompt, "youtube", "tiktok", "instagram", "facebook", "twitter", "film", "cinema", "tv") {
		issues = append(issues, issuePlatform)
	}
	if hasWord(prompt, "make", "do", "fix", "improve") || contains(prompt, "create something") {
		issues = append(issues, issueAction)
	}
	return issues
}

// complexity scores a prompt from 0 to 10 by length and technical vocabulary.
func complexity(prompt string) int {
	score := len(strings.Fields(prompt)) / 10
	lower := strings.ToLower(prompt)
	for _, term := range technicalTerms {
		if strings.Contains(lower, term) {
			score++
		}
	}
	if score > 10 {
		score = 10
	}
	return score
}

func improvePrompt(prompt string, issues []string) (string, []string) {
	improved := strings.TrimSpace(prompt)
	improvements := []string{}
	if !strings.Contains(improved, "Goal:") && !strings.Contains(improved, "Objective:") && !strings.Contains(improved, "I want to") {
		r, size := utf8.DecodeRuneInString(improved)
		improved = "Goal: " + string(unicode.ToUpper(r)) + improved[size:]
		improvements = append(improvements, "Stated the editing goal explicitly")
	}
	has := func(issue string) bool {
		for _, i := range issues {
			if i == issue {
				return true
			}
		}
		return false
	}
	if has(issueTiming) {
		improved += "\n- Timing: Specific timestamps or sequence to be defined"
		improvements = append(improvements, "Added timing specification placeholder")
	}
	if has(issueEmotion) {
		improved += "\n- Emotional tone: [Specify exact emotion - e.g., melancholic, triumphant, suspenseful]"
		improvements = append(improvements, "Requested specific emotional tone clarification")
	}
	if has(issueTechnical) {
		improved += "\n- Technical: [Format: 16:9/9:16/1:1], [Resolution: 1080p/4K], [Frame rate if relevant]"
		improvements = append(improvements, "Added technical specification section")
	}
	if has(issueDuration) {
		improved += "\n- Duration: [Target length - e.g., 30 seconds, 2 minutes, feature length]"
		improvements = append(improvements, "Added duration constraint placeholder")
	}
	if has(issuePlatform) {
		improved += "\n- Platform: [YouTube/TikTok/Instagram/Film/etc.] - affects pacing and format"
		improvements = append(improvements, "Added platform specification for format decisions")
	}
	if has(issueAction) {
		improved = replaceFold(improved, "make a video", "edit raw footage into a cinematic sequence")
		improved = replaceFold(improved, "create something", "produce a narrative-driven edit")
		improvements = append(improvements, "Replaced vague action verbs with specific editing terminology")
	}
	if complexity(prompt) > qualityAbove {
		improved += "\n- Quality: Professional cinematic standards with attention to pacing, audio sync, and visual flow"
		improvements = append(improvements, "Added quality standards specification")
	}
	return improved, improvements
}

// replaceFold replaces every case-insensitive occurrence of old.
func replaceFold(s, old, repl string) string {
	re := regexp.MustCompile(`(?i)` + regexp.QuoteMeta(old))
	return re.ReplaceAllLiteralString(s, repl)
}
