package game

import "github.com/whodunit/platform/internal/domain"

// Outcome derives the win state from current participant flags. It is never
// stored and never drives a phase transition: whether win detection becomes a
// terminal phase is a product decision, so it is surfaced only in the read
// projection.
func Outcome(participants []domain.Participant) domain.Outcome {
	var hidden *domain.Participant
	livingOthers := 0
	for i := range participants {
		p := &participants[i]
		if p.IsHiddenRole {
			hidden = p
			continue
		}
		if p.Alive() {
			livingOthers++
		}
	}

	if hidden == nil {
		// No role assigned yet; game has not started.
		return domain.OutcomeUndecided
	}
	if hidden.IsEliminated || hidden.IsVotedOut {
		return domain.OutcomeOthersWin
	}
	if livingOthers == 0 {
		return domain.OutcomeHiddenRoleWins
	}
	return domain.OutcomeUndecided
}
