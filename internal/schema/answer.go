package schema

import (
	"encoding/json"
	"strings"

	"frameforge/internal/domain"
)

const (
	KindAnswer        domain.ResultKind = "answer"
	KindWebhookConfig domain.ResultKind = "webhook_config"
)

// Answer checks value against the question it answers and returns the
// normalized form: string for single_choice and free_text, []string for
// multiple_choice, float64 for number.
func Answer(q domain.Question, value any) (any, error) {
	c := &collector{kind: KindAnswer}
	path := "answer"
	switch q.Type {
	case domain.QuestionSingleChoice, domain.QuestionFreeText:
		s, ok := value.(string)
		if !ok {
			c.add(path, "question %s expects a string", q.ID)
			return nil, c.err()
		}
		s = strings.TrimSpace(s)
		if s == "" {
			c.add(path, "must not be empty")
			return nil, c.err()
		}
		if q.Type == domain.QuestionSingleChoice && len(q.Options) > 0 && !oneOf(s, q.Options...) {
			c.add(path, "%q is not an option of question %s", s, q.ID)
			return nil, c.err()
		}
		return s, nil
	case domain.QuestionMultipleChoice:
		items, ok := stringSlice(value)
		if !ok {
			c.add(path, "question %s expects a list of strings", q.ID)
			return nil, c.err()
		}
		if len(items) == 0 {
			c.add(path, "must select at least one option")
			return nil, c.err()
		}
		seen := map[string]bool{}
		out := make([]string, 0, len(items))
		for i, item := range items {
			item = strings.TrimSpace(item)
			switch {
			case len(q.Options) > 0 && !oneOf(item, q.Options...):
				c.add(index(path, i), "%q is not an option of question %s", item, q.ID)
			case seen[item]:
				c.add(index(path, i), "%q is selected twice", item)
			default:
				seen[item] = true
				out = append(out, item)
			}
		}
		if err := c.err(); err != nil {
			return nil, err
		}
		return out, nil
	case domain.QuestionNumber:
		f, ok := toFloat(value)
		if !ok {
			c.add(path, "question %s expects a number", q.ID)
			return nil, c.err()
		}
		return f, nil
	default:
		c.add("type", "question %s has unknown type %q", q.ID, q.Type)
		return nil, c.err()
	}
}

func stringSlice(value any) ([]string, bool) {
	switch v := value.(type) {
	case []string:
		return append([]string(nil), v...), true
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			s, ok := item.(string)
			if !ok {
				return nil, false
			}
			out = append(out, s)
		}
		return out, true
	}
	return nil, false
}

func toFloat(value any) (float64, bool) {
	switch v := value.(type) {
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	case json.Number:
		f, err := v.Float64()
		return f, err == nil
	}
	return 0, false
}
