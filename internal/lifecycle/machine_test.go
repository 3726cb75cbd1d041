package lifecycle

import (
	"errors"
	"testing"

	"github.com/daykid555/criterion-mark-sub000/internal/model"
)

func TestStepHappyPath(t *testing.T) {
	steps := []struct {
		action Action
		role   model.Role
		from   model.Status
		to     model.Status
	}{
		{ActionSubmit, model.RoleManufacturer, model.StatusRequested, model.StatusPendingRegulator},
		{ActionRegulatorApprove, model.RoleRegulator, model.StatusPendingRegulator, model.StatusPendingAdmin},
		{ActionAdminApprove, model.RoleAdmin, model.StatusPendingAdmin, model.StatusPendingPrinting},
		{ActionStartPrinting, model.RolePrinter, model.StatusPendingPrinting, model.StatusPrintingInProgress},
		{ActionCompletePrinting, model.RolePrinter, model.StatusPrintingInProgress, model.StatusPrintingComplete},
		{ActionPickup, model.RoleLogistics, model.StatusPrintingComplete, model.StatusInTransit},
		{ActionConfirmReceipt, model.RoleManufacturer, model.StatusInTransit, model.StatusPendingConfirm},
		{ActionFinalize, model.RoleLogistics, model.StatusPendingConfirm, model.StatusDelivered},
	}

	for _, s := range steps {
		rule, err := Step(s.from, s.action, s.role)
		if err != nil {
			t.Fatalf("Step(%s, %s, %s): %v", s.from, s.action, s.role, err)
		}
		if rule.To != s.to {
			t.Errorf("%s: expected next state %s, got %s", s.action, s.to, rule.To)
		}
	}
}

func TestStepRejectionBranches(t *testing.T) {
	rule, err := Step(model.StatusPendingRegulator, ActionRegulatorReject, model.RoleRegulator)
	if err != nil {
		t.Fatalf("regulator reject: %v", err)
	}
	if rule.To != model.StatusRegulatorRejected || !rule.NeedsReason {
		t.Errorf("unexpected rule for regulator reject: %+v", rule)
	}

	rule, err = Step(model.StatusPendingAdmin, ActionAdminReject, model.RoleAdmin)
	if err != nil {
		t.Fatalf("admin reject: %v", err)
	}
	if rule.To != model.StatusAdminRejected || !rule.NeedsReason {
		t.Errorf("unexpected rule for admin reject: %+v", rule)
	}

	// Rejections are only reachable from their own pending state.
	if _, err := Step(model.StatusRequested, ActionRegulatorReject, model.RoleRegulator); err == nil {
		t.Error("expected error rejecting a REQUESTED batch")
	}
}

func TestStepWrongPredecessor(t *testing.T) {
	// Every action must fail against every state except its declared
	// predecessor. This catches both skipped and replayed steps.
	for action, rule := range transitions {
		for _, status := range model.Statuses {
			_, err := Step(status, action, rule.Role)
			if status == rule.From {
				if err != nil {
					t.Errorf("Step(%s, %s): unexpected error: %v", status, action, err)
				}
				continue
			}

			var ite *InvalidTransitionError
			if !errors.As(err, &ite) {
				t.Errorf("Step(%s, %s): expected InvalidTransitionError, got %v", status, action, err)
				continue
			}
			if ite.Expected != rule.From || ite.Actual != status {
				t.Errorf("Step(%s, %s): error names %s/%s, want %s/%s",
					status, action, ite.Expected, ite.Actual, rule.From, status)
			}
		}
	}
}

func TestStepRoleGate(t *testing.T) {
	// The admin cannot perform the regulator's approval, and vice versa.
	if _, err := Step(model.StatusPendingRegulator, ActionRegulatorApprove, model.RoleAdmin); !errors.Is(err, ErrRoleNotAllowed) {
		t.Errorf("expected ErrRoleNotAllowed, got %v", err)
	}
	if _, err := Step(model.StatusPendingAdmin, ActionAdminApprove, model.RoleRegulator); !errors.Is(err, ErrRoleNotAllowed) {
		t.Errorf("expected ErrRoleNotAllowed, got %v", err)
	}
	// Role gates apply before state checks.
	if _, err := Step(model.StatusDelivered, ActionFinalize, model.RolePrinter); !errors.Is(err, ErrRoleNotAllowed) {
		t.Errorf("expected ErrRoleNotAllowed, got %v", err)
	}
}

func TestStepUnknownAction(t *testing.T) {
	if _, err := Step(model.StatusRequested, Action("launch"), model.RoleAdmin); !errors.Is(err, ErrUnknownAction) {
		t.Errorf("expected ErrUnknownAction, got %v", err)
	}
}

func TestTerminalStates(t *testing.T) {
	terminals := map[model.Status]bool{
		model.StatusDelivered:         true,
		model.StatusRegulatorRejected: true,
		model.StatusAdminRejected:     true,
	}
	for _, status := range model.Statuses {
		if Terminal(status) != terminals[status] {
			t.Errorf("Terminal(%s) = %v, want %v", status, Terminal(status), terminals[status])
		}
	}
}

func TestQueueStatus(t *testing.T) {
	cases := map[model.Role]model.Status{
		model.RoleRegulator: model.StatusPendingRegulator,
		model.RoleAdmin:     model.StatusPendingAdmin,
		model.RolePrinter:   model.StatusPendingPrinting,
		model.RoleLogistics: model.StatusPrintingComplete,
	}
	for role, want := range cases {
		got, ok := QueueStatus(role)
		if !ok || got != want {
			t.Errorf("QueueStatus(%s) = %s, %v; want %s", role, got, ok, want)
		}
	}
	if _, ok := QueueStatus(model.RoleManufacturer); ok {
		t.Error("manufacturers have no single pending queue")
	}
}
