package chat

import "ChatKit/models"

// PlanKind labels how a submitted message list relates to stored history.
type PlanKind string

const (
	// PlanNewTurn appends the trailing user message, after truncating any
	// stored history the client no longer has (an edit).
	PlanNewTurn PlanKind = "new-turn"
	// PlanRegenerate keeps the trailing user message already stored and
	// drops the stale answer after it.
	PlanRegenerate PlanKind = "regenerate"
	// PlanNoTrailingUser is a list that does not end with a user message.
	PlanNoTrailingUser PlanKind = "no-trailing-user"
)

// Plan is the storage diff that brings stored history in line with the
// client's message list.
type Plan struct {
	Kind PlanKind
	// ExpectedCount is how many stored messages the client still claims.
	ExpectedCount int
	ToDelete      []models.Message
	ToInsertUser  *UIMessage
}

// Reconcile compares the client's full ordered message list with the stored
// history (ascending) and returns the deletions and insertion needed.
// Regenerate is detected by content equality of the last stored user
// message and the trailing client message, not by identifier.
func Reconcile(ui []UIMessage, stored []models.Message) Plan {
	if len(ui) == 0 {
		return Plan{Kind: PlanNoTrailingUser, ExpectedCount: len(stored)}
	}
	last := ui[len(ui)-1]

	var plan Plan
	switch {
	case last.Role != models.RoleUser:
		plan = Plan{Kind: PlanNoTrailingUser, ExpectedCount: len(ui)}
	case lastUserMatches(stored, last):
		plan = Plan{Kind: PlanRegenerate, ExpectedCount: len(ui)}
	default:
		insert := last
		plan = Plan{Kind: PlanNewTurn, ExpectedCount: len(ui) - 1, ToInsertUser: &insert}
	}

	if plan.ExpectedCount < len(stored) {
		plan.ToDelete = append([]models.Message(nil), stored[plan.ExpectedCount:]...)
	}
	return plan
}

func lastUserMatches(stored []models.Message, last UIMessage) bool {
	for i := len(stored) - 1; i >= 0; i-- {
		if stored[i].Role == models.RoleUser {
			return sameContent(stored[i], last)
		}
	}
	return false
}
