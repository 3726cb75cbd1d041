// Package lifecycle holds the batch transition table. Every edge in the
// batch state graph is one declared rule: adding a state or role is a data
// change here, not new branching in handlers.
package lifecycle

import (
	"errors"
	"fmt"

	"github.com/daykid555/criterion-mark-sub000/internal/model"
)

// Action is a requested batch transition.
type Action string

// Actions, one per edge in the state graph.
const (
	ActionSubmit           Action = "submit"
	ActionRegulatorApprove Action = "regulator_approve"
	ActionRegulatorReject  Action = "regulator_reject"
	ActionAdminApprove     Action = "admin_approve"
	ActionAdminReject      Action = "admin_reject"
	ActionStartPrinting    Action = "start_printing"
	ActionCompletePrinting Action = "complete_printing"
	ActionPickup           Action = "pickup"
	ActionConfirmReceipt   Action = "confirm_receipt"
	ActionFinalize         Action = "finalize"
)

// Rule describes one allowed transition: the single valid predecessor
// state, the one role allowed to act, the successor state, and the batches
// column stamped when the transition applies.
type Rule struct {
	From        model.Status
	To          model.Status
	Role        model.Role
	StampColumn string
	NeedsReason bool
}

var transitions = map[Action]Rule{
	ActionSubmit:           {From: model.StatusRequested, To: model.StatusPendingRegulator, Role: model.RoleManufacturer, StampColumn: "submitted_at"},
	ActionRegulatorApprove: {From: model.StatusPendingRegulator, To: model.StatusPendingAdmin, Role: model.RoleRegulator, StampColumn: "regulator_approved_at"},
	ActionRegulatorReject:  {From: model.StatusPendingRegulator, To: model.StatusRegulatorRejected, Role: model.RoleRegulator, StampColumn: "rejected_at", NeedsReason: true},
	ActionAdminApprove:     {From: model.StatusPendingAdmin, To: model.StatusPendingPrinting, Role: model.RoleAdmin, StampColumn: "admin_approved_at"},
	ActionAdminReject:      {From: model.StatusPendingAdmin, To: model.StatusAdminRejected, Role: model.RoleAdmin, StampColumn: "rejected_at", NeedsReason: true},
	ActionStartPrinting:    {From: model.StatusPendingPrinting, To: model.StatusPrintingInProgress, Role: model.RolePrinter, StampColumn: "printing_started_at"},
	ActionCompletePrinting: {From: model.StatusPrintingInProgress, To: model.StatusPrintingComplete, Role: model.RolePrinter, StampColumn: "printing_completed_at"},
	ActionPickup:           {From: model.StatusPrintingComplete, To: model.StatusInTransit, Role: model.RoleLogistics, StampColumn: "picked_up_at"},
	ActionConfirmReceipt:   {From: model.StatusInTransit, To: model.StatusPendingConfirm, Role: model.RoleManufacturer, StampColumn: "received_at"},
	ActionFinalize:         {From: model.StatusPendingConfirm, To: model.StatusDelivered, Role: model.RoleLogistics, StampColumn: "delivered_at"},
}

// ErrUnknownAction is returned for actions not in the transition table.
var ErrUnknownAction = errors.New("unknown action")

// ErrRoleNotAllowed is returned when the acting role does not match the
// role the transition table names for the action.
var ErrRoleNotAllowed = errors.New("role not allowed for action")

// InvalidTransitionError reports a transition attempted from the wrong
// current state, naming both the expected and the actual state. Replays of
// an already-applied transition fail the same way, since the batch has
// moved past the declared predecessor.
type InvalidTransitionError struct {
	Action   Action
	Expected model.Status
	Actual   model.Status
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("cannot %s: batch status is %s, expected %s", e.Action, e.Actual, e.Expected)
}

// Step validates one transition attempt and returns the matching rule.
// It enforces both the role gate and the single-predecessor guard; it does
// not apply anything, the store does that inside a transaction.
func Step(current model.Status, action Action, role model.Role) (Rule, error) {
	rule, ok := transitions[action]
	if !ok {
		return Rule{}, fmt.Errorf("%w: %s", ErrUnknownAction, action)
	}
	if role != rule.Role {
		return Rule{}, fmt.Errorf("%w: %s requires role %s, got %s", ErrRoleNotAllowed, action, rule.Role, role)
	}
	if current != rule.From {
		return Rule{}, &InvalidTransitionError{Action: action, Expected: rule.From, Actual: current}
	}
	return rule, nil
}

// Terminal reports whether no transition leads out of s.
func Terminal(s model.Status) bool {
	for _, rule := range transitions {
		if rule.From == s {
			return false
		}
	}
	return true
}

// QueueStatus maps a role to the status of batches waiting on that role's
// action, used for the default work-queue listing.
func QueueStatus(role model.Role) (model.Status, bool) {
	switch role {
	case model.RoleRegulator:
		return model.StatusPendingRegulator, true
	case model.RoleAdmin:
		return model.StatusPendingAdmin, true
	case model.RolePrinter:
		return model.StatusPendingPrinting, true
	case model.RoleLogistics:
		return model.StatusPrintingComplete, true
	default:
		return "", false
	}
}
