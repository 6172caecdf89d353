package domain

import (
	"errors"
	"fmt"
	"testing"
)

func TestValidationErrorDetection(t *testing.T) {
	err := NewValidationError("vin", "must be at least 5 characters")

	if !IsValidation(err) {
		t.Fatalf("expected validation error to be detected")
	}
	if IsValidation(ErrNotFound) {
		t.Fatalf("expected sentinel not to be a validation error")
	}

	wrapped := fmt.Errorf("register car: %w", err)
	if !IsValidation(wrapped) {
		t.Fatalf("expected wrapped validation error to be detected")
	}

	var ve *ValidationError
	if !errors.As(wrapped, &ve) || ve.Field != "vin" {
		t.Fatalf("expected field vin, got %+v", ve)
	}
}

func TestValidRole(t *testing.T) {
	for _, role := range []string{RoleAdmin, RoleMechanic, RoleUser} {
		if !ValidRole(role) {
			t.Fatalf("expected %s to be a valid role", role)
		}
	}
	if ValidRole("janitor") || ValidRole("") {
		t.Fatalf("expected unknown roles to be rejected")
	}
}

func TestTicketCompleted(t *testing.T) {
	if (Ticket{Status: StatusApproved}).Completed() {
		t.Fatalf("approved ticket must not report completed")
	}
	if !(Ticket{Status: StatusCompleted}).Completed() {
		t.Fatalf("completed ticket must report completed")
	}
}
