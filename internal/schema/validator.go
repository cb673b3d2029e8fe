// Package schema checks raw phase payloads against their structural
// contracts before they are accepted into a session. Every validator is pure:
// it reads the payload, reports all violations at once and never mutates its
// input.
package schema

import (
	"encoding/json"
	"fmt"
	"strings"

	"frameforge/internal/domain"
)

// Validate dispatches on kind and returns the typed variant.
func Validate(kind domain.ResultKind, payload []byte) (domain.PhaseResult, error) {
	switch kind {
	case domain.KindRefinement:
		r, err := Refinement(payload)
		if err != nil {
			return nil, err
		}
		return &r, nil
	case domain.KindQuestions:
		q, err := Questions(payload)
		if err != nil {
			return nil, err
		}
		return &q, nil
	case domain.KindNarrative:
		n, err := Narrative(payload)
		if err != nil {
			return nil, err
		}
		return &n, nil
	case domain.KindScenePlan:
		p, err := ScenePlan(payload)
		if err != nil {
			return nil, err
		}
		return &p, nil
	default:
		return nil, fmt.Errorf("unknown result kind %q", kind)
	}
}

func Refinement(payload []byte) (domain.RefinementResult, error) {
	c := &collector{kind: domain.KindRefinement}
	obj, ok := c.decodeObject(payload)
	if !ok {
		return domain.RefinementResult{}, c.err()
	}
	original, originalOK := c.str(obj, "original_prompt", "", false)
	improved, improvedOK := c.str(obj, "improved_prompt", "", true)
	issues, issuesOK := c.stringList(obj, "issues_detected", "", false)
	improvements, improvementsOK := c.stringList(obj, "improvements_made", "", false)
	action, actionOK := c.str(obj, "user_action_required", "", true)
	c.optStr(obj, "feedback_incorporated", "")

	if actionOK && !oneOf(action, domain.ActionAccept, domain.ActionRevise) {
		c.add("user_action_required", "must be one of accept, revise (got %q)", action)
		actionOK = false
	}
	if actionOK && issuesOK && action == domain.ActionRevise && len(issues) == 0 {
		c.add("issues_detected", "must not be empty when user_action_required is revise")
	}
	if originalOK && improvedOK && improvementsOK &&
		strings.TrimSpace(original) != strings.TrimSpace(improved) && len(improvements) == 0 {
		c.add("improvements_made", "must not be empty when the prompt was changed")
	}
	if err := c.err(); err != nil {
		return domain.RefinementResult{}, err
	}
	var out domain.RefinementResult
	return out, c.typed(payload, &out)
}

func Questions(payload []byte) (domain.QuestionSet, error) {
	c := &collector{kind: domain.KindQuestions}
	obj, ok := c.decodeObject(payload)
	if !ok {
		return domain.QuestionSet{}, c.err()
	}
	items, ok := c.array(obj, "questions", "", true)
	if ok {
		seen := map[string]int{}
		for i, item := range items {
			path := index("questions", i)
			q, isObj := item.(map[string]any)
			if !isObj {
				c.add(path, "must be an object")
				continue
			}
			if id, idOK := c.str(q, "id", path, true); idOK {
				if first, dup := seen[id]; dup {
					c.add(join(path, "id"), "duplicates questions[%d].id %q", first, id)
				} else {
					seen[id] = i
				}
			}
			c.str(q, "question", path, true)
			c.boolean(q, "required", path, true)
			c.optStr(q, "category", path)
			c.optStr(q, "help_text", path)
			typ, typOK := c.str(q, "type", path, true)
			if typOK && !domain.QuestionType(typ).Valid() {
				c.add(join(path, "type"), "must be one of single_choice, multiple_choice, free_text, number (got %q)", typ)
				typOK = false
			}
			if typOK && domain.QuestionType(typ).IsChoice() {
				c.stringList(q, "options", path, true)
			} else if v, present := q["options"]; present && v != nil {
				c.stringList(q, "options", path, false)
			}
		}
	}
	if err := c.err(); err != nil {
		return domain.QuestionSet{}, err
	}
	var out domain.QuestionSet
	return out, c.typed(payload, &out)
}

func Narrative(payload []byte) (domain.NarrativeAnalysis, error) {
	c := &collector{kind: domain.KindNarrative}
	obj, ok := c.decodeObject(payload)
	if !ok {
		return domain.NarrativeAnalysis{}, c.err()
	}
	c.str(obj, "narrative_arc", "", true)
	c.str(obj, "dominant_tone", "", true)
	c.optStr(obj, "symbolism_notes", "")
	if beats, ok := c.array(obj, "emotional_progression", "", true); ok {
		for i, item := range beats {
			path := index("emotional_progression", i)
			beat, isObj := item.(map[string]any)
			if !isObj {
				c.add(path, "must be an object")
				continue
			}
			c.str(beat, "beat", path, true)
			c.str(beat, "emotion", path, true)
			c.str(beat, "pacing", path, true)
			c.intensity(beat, path)
		}
	}
	if pacing, ok := c.object(obj, "pacing_recommendation", ""); ok {
		base := "pacing_recommendation"
		if total, ok := c.integer(pacing, "total_duration_seconds", base); ok && total <= 0 {
			c.add(join(base, "total_duration_seconds"), "must be positive")
		}
		if cpm, ok := c.integer(pacing, "cuts_per_minute", base); ok && cpm <= 0 {
			c.add(join(base, "cuts_per_minute"), "must be positive")
		}
		c.integer(pacing, "estimated_total_cuts", base)
		c.integer(pacing, "average_shot_length_seconds", base)
		if pattern, ok := c.array(pacing, "rhythm_pattern", base, false); ok {
			for i, item := range pattern {
				path := index(join(base, "rhythm_pattern"), i)
				beat, isObj := item.(map[string]any)
				if !isObj {
					c.add(path, "must be an object")
					continue
				}
				c.str(beat, "beat", path, true)
				c.integer(beat, "cuts_per_minute", path)
				c.str(beat, "pacing", path, false)
				c.intensity(beat, path)
			}
		}
	}
	if err := c.err(); err != nil {
		return domain.NarrativeAnalysis{}, err
	}
	var out domain.NarrativeAnalysis
	return out, c.typed(payload, &out)
}

func (c *collector) intensity(obj map[string]any, base string) {
	if v, ok := c.number(obj, "intensity", base); ok && (v < 0 || v > 1) {
		c.add(join(base, "intensity"), "must be between 0 and 1")
	}
}

func ScenePlan(payload []byte) (domain.ScenePlan, error) {
	c := &collector{kind: domain.KindScenePlan}
	obj, ok := c.decodeObject(payload)
	if !ok {
		return domain.ScenePlan{}, c.err()
	}
	c.str(obj, "title", "", true)
	c.str(obj, "theme", "", true)
	c.str(obj, "style", "", true)
	if format, ok := c.str(obj, "format", "", true); ok && !domain.VideoFormat(format).Valid() {
		c.add("format", "must be one of 16:9, 9:16, 1:1 (got %q)", format)
	}
	if vo, ok := c.object(obj, "voice_over", ""); ok {
		enabled, _ := c.boolean(vo, "enabled", "voice_over", true)
		if enabled {
			if voices, ok := c.array(vo, "voices", "voice_over", true); ok {
				for i, item := range voices {
					path := index("voice_over.voices", i)
					voice, isObj := item.(map[string]any)
					if !isObj {
						c.add(path, "must be an object")
						continue
					}
					c.str(voice, "gender", path, true)
					c.str(voice, "language", path, true)
					c.str(voice, "age", path, true)
					c.optStr(voice, "text", path)
				}
			}
		}
	}
	if subs, ok := c.object(obj, "subtitles", ""); ok {
		enabled, _ := c.boolean(subs, "enabled", "subtitles", true)
		if enabled {
			if typ, ok := c.str(subs, "type", "subtitles", true); ok && !oneOf(typ, domain.SubtitlesBurned, domain.SubtitlesSRT) {
				c.add("subtitles.type", "must be one of burned, srt (got %q)", typ)
			}
		}
		c.optStr(subs, "style", "subtitles")
	}
	if scenes, ok := c.array(obj, "scenes", "", true); ok {
		c.scenes(scenes)
	}
	if err := c.err(); err != nil {
		return domain.ScenePlan{}, err
	}
	var out domain.ScenePlan
	return out, c.typed(payload, &out)
}

// scenes checks each scene and the ordering invariants across the sequence:
// ids run 1..n, start < end, and end[i] <= start[i+1].
func (c *collector) scenes(items []any) {
	prevEnd := -1
	prevPath := ""
	for i, item := range items {
		path := index("scenes", i)
		scene, isObj := item.(map[string]any)
		if !isObj {
			c.add(path, "must be an object")
			prevEnd = -1
			continue
		}
		if id, ok := c.integer(scene, "scene_id", path); ok && id != i+1 {
			c.add(join(path, "scene_id"), "must be %d (ids are contiguous from 1), got %d", i+1, id)
		}
		c.str(scene, "goal", path, true)
		c.str(scene, "visual", path, true)
		c.str(scene, "audio", path, true)
		c.optStr(scene, "voice_over_text", path)
		c.optStr(scene, "transition", path)
		c.boolean(scene, "subtitle_usage", path, false)

		start, startOK := c.timestamp(scene, "start", path)
		end, endOK := c.timestamp(scene, "end", path)
		if startOK && endOK && start >= end {
			c.add(path, "start %s must be before end %s", scene["start"], scene["end"])
		}
		if startOK && prevEnd >= 0 && start < prevEnd {
			c.add(join(path, "start"), "overlaps %s which ends after it", prevPath)
		}
		if endOK {
			prevEnd = end
			prevPath = path
		} else {
			prevEnd = -1
		}
	}
}

func (c *collector) timestamp(obj map[string]any, key, base string) (int, bool) {
	s, ok := c.str(obj, key, base, true)
	if !ok {
		return 0, false
	}
	secs, err := ParseTimestamp(s)
	if err != nil {
		c.add(join(base, key), "%v", err)
		return 0, false
	}
	return secs, true
}

// typed decodes a payload that already passed structural checks.
func (c *collector) typed(payload []byte, out any) error {
	if err := json.Unmarshal(payload, out); err != nil {
		c.add("", "payload does not match %s: %v", c.kind, err)
		return c.err()
	}
	return nil
}
