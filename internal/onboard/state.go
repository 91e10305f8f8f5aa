// Package onboard tracks per-user onboarding progress and gates which
// features are reachable. Transitions are monotonic under normal flow: once
// complete, no input moves a user backwards.
package onboard

import "veilbot/internal/domain"

// State is the onboarding progress marker.
type State int

const (
	StateNew State = iota
	StateFkeyPending
	StateFkeySet
	StateMiniappPending
	StateComplete
)

var stateNames = map[State]string{
	StateNew:            "new",
	StateFkeyPending:    "fkey_pending",
	StateFkeySet:        "fkey_set",
	StateMiniappPending: "miniapp_pending",
	StateComplete:       "complete",
}

func (s State) String() string {
	if name, ok := stateNames[s]; ok {
		return name
	}
	return "new"
}

// ParseState maps a stored status string back to a State. Unknown values
// fall back to new rather than erroring: a corrupted status re-enters
// onboarding instead of wedging the user.
func ParseState(s string) State {
	for st, name := range stateNames {
		if name == s {
			return st
		}
	}
	return StateNew
}

// Feature names checked by Gate.
const (
	FeaturePaymentLinks    = "payment_links"
	FeatureBalance         = "balance"
	FeatureLinks           = "links"
	FeatureContentCreation = "content_creation"
)

// Outcome describes the result of a transition request. Rejected transitions
// are not errors; Reply carries the explanation.
type Outcome struct {
	State   State
	Changed bool
	Reply   string
}

// ClaimIdentity records a successfully resolved identity claim and advances
// the user to fkey_set. Callers must only invoke this after the external
// lookup succeeded; the address requirement makes the illegal combination
// (identity without address) unrepresentable.
func ClaimIdentity(profile *domain.UserProfile, claim, address string) Outcome {
	current := ParseState(profile.SetupStatus)
	if claim == "" || address == "" {
		return Outcome{State: current, Reply: "That identity could not be verified."}
	}
	if current == StateComplete {
		// Re-claiming after completion updates the address but never
		// regresses the state.
		profile.FkeyID = claim
		profile.StealthAddress = address
		return Outcome{State: StateComplete, Changed: true, Reply: "Updated your fkey identity."}
	}

	profile.FkeyID = claim
	profile.StealthAddress = address
	profile.SetupStatus = StateFkeySet.String()
	return Outcome{State: StateFkeySet, Changed: true}
}

// CompleteSetup handles the explicit "setup complete" command. Accepted only
// when the user already holds a stored identity claim; otherwise it is a
// defined non-transition with an explanatory reply.
func CompleteSetup(profile *domain.UserProfile) Outcome {
	current := ParseState(profile.SetupStatus)
	if current == StateComplete {
		return Outcome{State: StateComplete, Reply: "You're already fully set up! Try /balance or ask me for a payment link."}
	}
	if profile.FkeyID == "" {
		return Outcome{
			State: current,
			Reply: "You need an fkey identity first. Send me your fkey username (like `tantodefi`) and I'll verify it.",
		}
	}
	profile.SetupStatus = StateComplete.String()
	return Outcome{State: StateComplete, Changed: true}
}

// MarkMiniappPending records that the user was sent to the mini-app
// registration step. No-op once complete.
func MarkMiniappPending(profile *domain.UserProfile) Outcome {
	current := ParseState(profile.SetupStatus)
	if current == StateComplete {
		return Outcome{State: StateComplete}
	}
	if current == StateFkeySet || current == StateMiniappPending {
		profile.SetupStatus = StateMiniappPending.String()
		return Outcome{State: StateMiniappPending, Changed: current != StateMiniappPending}
	}
	return Outcome{State: current}
}

// gateMessage is returned for every feature locked behind complete setup.
const gateMessage = "Almost there! Finish setup first: send me your fkey username, " +
	"then register in the mini-app and say `/setup complete`."

// Gate checks whether the user's state unlocks the named feature. Allowed is
// false for privacy-sensitive features until setup is complete; Reply then
// carries the canned nudge. Unknown features are allowed (non-gated).
func Gate(profile *domain.UserProfile, feature string) (allowed bool, reply string) {
	switch feature {
	case FeaturePaymentLinks, FeatureBalance, FeatureLinks, FeatureContentCreation:
		if ParseState(profile.SetupStatus) != StateComplete {
			return false, gateMessage
		}
		return true, ""
	default:
		return true, ""
	}
}
