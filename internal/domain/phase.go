package domain

// Phase is the position of a session in the editing workflow.
type Phase string

const (
	PhaseAwaitingPrompt    Phase = "AWAITING_PROMPT"
	PhasePromptRefined     Phase = "PROMPT_REFINED"
	PhasePromptApproved    Phase = "PROMPT_APPROVED"
	PhaseQuestionsIssued   Phase = "QUESTIONS_ISSUED"
	PhaseQuestionsAnswered Phase = "QUESTIONS_ANSWERED"
	PhaseNarrativeAnalyzed Phase = "NARRATIVE_ANALYZED"
	PhaseScenePlanned      Phase = "SCENE_PLANNED"
	PhaseExecuting         Phase = "EXECUTING"
	PhaseComplete          Phase = "COMPLETE"
)

var phaseOrder = []Phase{
	PhaseAwaitingPrompt,
	PhasePromptRefined,
	PhasePromptApproved,
	PhaseQuestionsIssued,
	PhaseQuestionsAnswered,
	PhaseNarrativeAnalyzed,
	PhaseScenePlanned,
	PhaseExecuting,
	PhaseComplete,
}

// Phases returns the workflow phases in order.
func Phases() []Phase {
	out := make([]Phase, len(phaseOrder))
	copy(out, phaseOrder)
	return out
}

// Index returns the position of p in the workflow, or -1 for unknown phases.
func (p Phase) Index() int {
	for i, candidate := range phaseOrder {
		if candidate == p {
			return i
		}
	}
	return -1
}

func (p Phase) Valid() bool { return p.Index() >= 0 }

// Reached reports whether p is target or any phase after it.
func (p Phase) Reached(target Phase) bool {
	return p.Index() >= target.Index()
}

func (p Phase) String() string { return string(p) }
