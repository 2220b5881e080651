package booking

import (
	"strings"

	"github.com/atlascaucasus/service-booking/internal/common/domain"
)

// Action is a lifecycle operation requested by one of the booking's parties.
type Action string

const (
	ActionConfirm  Action = "confirm"
	ActionDecline  Action = "decline"
	ActionCancel   Action = "cancel"
	ActionComplete Action = "complete"
)

// Role is the actor's relationship to a specific booking.
type Role string

const (
	RoleNone     Role = "none"
	RoleCustomer Role = "customer"
	RoleProvider Role = "provider"
)

// Payload carries the action-specific inputs.
type Payload struct {
	ProviderNotes  string
	DeclinedReason string
}

type transitionRule struct {
	actor Role
	from  []BookingStatus
	to    BookingStatus
}

var transitionRules = map[Action]transitionRule{
	ActionConfirm:  {actor: RoleProvider, from: []BookingStatus{StatusPending}, to: StatusConfirmed},
	ActionDecline:  {actor: RoleProvider, from: []BookingStatus{StatusPending}, to: StatusDeclined},
	ActionCancel:   {actor: RoleCustomer, from: []BookingStatus{StatusPending, StatusConfirmed}, to: StatusCancelled},
	ActionComplete: {actor: RoleProvider, from: []BookingStatus{StatusConfirmed}, to: StatusCompleted},
}

// Actions lists every lifecycle action in a stable order.
var Actions = []Action{ActionConfirm, ActionDecline, ActionCancel, ActionComplete}

// ParseAction converts a string to an Action.
func ParseAction(s string) (Action, bool) {
	a := Action(strings.ToLower(strings.TrimSpace(s)))
	_, ok := transitionRules[a]
	return a, ok
}

// Decide evaluates a requested action against the current status and the actor's role.
// It returns the next status, or a domain error with code NOT_AUTHORIZED,
// MISSING_REQUIRED_FIELD or INVALID_TRANSITION. Authorization is checked first, then
// required input, then the state.
func Decide(current BookingStatus, action Action, role Role, payload Payload) (BookingStatus, error) {
	rule, ok := transitionRules[action]
	if !ok {
		return "", &domain.Error{
			Code:    domain.CodeInvalidTransition,
			Message: "unknown action " + string(action),
		}
	}

	switch role {
	case RoleCustomer, RoleProvider:
	default:
		return "", domain.NewNotAuthorizedError("you are not a party to this booking")
	}
	if role != rule.actor {
		return "", domain.NewNotAuthorizedError("only the " + string(rule.actor) + " may " + string(action) + " this booking")
	}

	if action == ActionDecline && strings.TrimSpace(payload.DeclinedReason) == "" {
		return "", domain.NewMissingFieldError("declined_reason")
	}

	for _, from := range rule.from {
		if current == from {
			return rule.to, nil
		}
	}
	return "", domain.NewInvalidStateError(string(current), string(action))
}

// AllowedActions returns the actions role could perform from current. It is a read-only
// hint for clients; Decide remains the enforcement point. Decline is listed even though it
// additionally needs a reason.
func AllowedActions(current BookingStatus, role Role) []Action {
	allowed := make([]Action, 0, len(Actions))
	for _, a := range Actions {
		if _, err := Decide(current, a, role, Payload{DeclinedReason: "-"}); err == nil {
			allowed = append(allowed, a)
		}
	}
	return allowed
}

// ActionFor returns the action that leads to status, if any.
func ActionFor(status BookingStatus) (Action, bool) {
	for a, r := range transitionRules {
		if r.to == status {
			return a, true
		}
	}
	return "", false
}
