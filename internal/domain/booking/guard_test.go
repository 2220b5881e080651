package booking

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/atlascaucasus/service-booking/internal/common/domain"
)

var allStatuses = []BookingStatus{StatusPending, StatusConfirmed, StatusDeclined, StatusCompleted, StatusCancelled}

func TestDecideTransitionTable(t *testing.T) {
	reason := Payload{DeclinedReason: "Fully booked that day"}

	cases := []struct {
		name    string
		current BookingStatus
		action  Action
		role    Role
		payload Payload
		want    BookingStatus
		code    domain.Code
	}{
		{"provider confirms pending", StatusPending, ActionConfirm, RoleProvider, Payload{}, StatusConfirmed, ""},
		{"provider declines pending", StatusPending, ActionDecline, RoleProvider, reason, StatusDeclined, ""},
		{"customer cancels pending", StatusPending, ActionCancel, RoleCustomer, Payload{}, StatusCancelled, ""},
		{"customer cancels confirmed", StatusConfirmed, ActionCancel, RoleCustomer, Payload{}, StatusCancelled, ""},
		{"provider completes confirmed", StatusConfirmed, ActionComplete, RoleProvider, Payload{}, StatusCompleted, ""},

		{"complete while pending", StatusPending, ActionComplete, RoleProvider, Payload{}, "", domain.CodeInvalidTransition},
		{"confirm twice", StatusConfirmed, ActionConfirm, RoleProvider, Payload{}, "", domain.CodeInvalidTransition},
		{"decline confirmed", StatusConfirmed, ActionDecline, RoleProvider, reason, "", domain.CodeInvalidTransition},
		{"cancel completed", StatusCompleted, ActionCancel, RoleCustomer, Payload{}, "", domain.CodeInvalidTransition},
		{"cancel declined", StatusDeclined, ActionCancel, RoleCustomer, Payload{}, "", domain.CodeInvalidTransition},
		{"cancel cancelled", StatusCancelled, ActionCancel, RoleCustomer, Payload{}, "", domain.CodeInvalidTransition},

		{"customer confirms", StatusPending, ActionConfirm, RoleCustomer, Payload{}, "", domain.CodeNotAuthorized},
		{"customer declines", StatusPending, ActionDecline, RoleCustomer, reason, "", domain.CodeNotAuthorized},
		{"customer completes", StatusConfirmed, ActionComplete, RoleCustomer, Payload{}, "", domain.CodeNotAuthorized},
		{"provider cancels", StatusPending, ActionCancel, RoleProvider, Payload{}, "", domain.CodeNotAuthorized},
		{"stranger confirms", StatusPending, ActionConfirm, RoleNone, Payload{}, "", domain.CodeNotAuthorized},
		{"stranger cancels", StatusPending, ActionCancel, RoleNone, Payload{}, "", domain.CodeNotAuthorized},

		{"decline without reason", StatusPending, ActionDecline, RoleProvider, Payload{}, "", domain.CodeMissingRequiredField},
		{"decline with blank reason", StatusPending, ActionDecline, RoleProvider, Payload{DeclinedReason: "  \t"}, "", domain.CodeMissingRequiredField},
		{"decline terminal without reason", StatusDeclined, ActionDecline, RoleProvider, Payload{}, "", domain.CodeMissingRequiredField},

		{"unknown action", StatusPending, Action("approve"), RoleProvider, Payload{}, "", domain.CodeInvalidTransition},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			next, err := Decide(tc.current, tc.action, tc.role, tc.payload)
			if tc.code == "" {
				require.NoError(t, err)
				assert.Equal(t, tc.want, next)
				assert.True(t, tc.current.CanTransitionTo(next))
				return
			}
			require.Error(t, err)
			assert.Equal(t, tc.code, domain.CodeOf(err))
			assert.Empty(t, next)
		})
	}
}

func TestDecideTerminalStatesRejectEverything(t *testing.T) {
	payload := Payload{DeclinedReason: "r"}
	for _, status := range allStatuses {
		if !status.IsTerminal() {
			continue
		}
		for _, action := range Actions {
			for _, role := range []Role{RoleCustomer, RoleProvider, RoleNone} {
				_, err := Decide(status, action, role, payload)
				assert.Error(t, err, "%s/%s/%s", status, action, role)
			}
		}
	}
}

func TestDecideOnlyReachesStateMachineTargets(t *testing.T) {
	payload := Payload{DeclinedReason: "r"}
	for _, status := range allStatuses {
		for _, action := range Actions {
			for _, role := range []Role{RoleCustomer, RoleProvider, RoleNone} {
				next, err := Decide(status, action, role, payload)
				if err == nil {
					assert.True(t, status.CanTransitionTo(next), "%s -%s-> %s", status, action, next)
				}
			}
		}
	}
}

func TestDecideIsDeterministic(t *testing.T) {
	for i := 0; i < 50; i++ {
		next, err := Decide(StatusPending, ActionConfirm, RoleProvider, Payload{})
		require.NoError(t, err)
		assert.Equal(t, StatusConfirmed, next)
	}
}

func TestAllowedActions(t *testing.T) {
	assert.Equal(t, []Action{ActionConfirm, ActionDecline}, AllowedActions(StatusPending, RoleProvider))
	assert.Equal(t, []Action{ActionCancel}, AllowedActions(StatusPending, RoleCustomer))
	assert.Equal(t, []Action{ActionComplete}, AllowedActions(StatusConfirmed, RoleProvider))
	assert.Equal(t, []Action{ActionCancel}, AllowedActions(StatusConfirmed, RoleCustomer))
	assert.Empty(t, AllowedActions(StatusCompleted, RoleProvider))
	assert.Empty(t, AllowedActions(StatusPending, RoleNone))
}

func TestParseAction(t *testing.T) {
	a, ok := ParseAction(" Confirm ")
	assert.True(t, ok)
	assert.Equal(t, ActionConfirm, a)

	_, ok = ParseAction("create")
	assert.False(t, ok)
}
