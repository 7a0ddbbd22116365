package validate

import (
	"strings"
	"testing"
)

func TestValidateBookingAccepts(t *testing.T) {
	val := New()
	in := BookingInput{
		Name:  "  Dana   Levi ",
		Phone: "050-123-4567",
		Email: " Dana@Example.com ",
		Note:  "hurts when chewing",
	}
	norm, violations := val.ValidateBooking(in)
	if len(violations) != 0 {
		t.Fatalf("unexpected violations: %v", violations)
	}
	if norm.Name != "Dana Levi" {
		t.Fatalf("expected collapsed name, got %q", norm.Name)
	}
	if norm.Phone != "0501234567" {
		t.Fatalf("expected separators stripped, got %q", norm.Phone)
	}
	if norm.Email != "dana@example.com" {
		t.Fatalf("expected lowercased email, got %q", norm.Email)
	}
}

func TestValidateBookingUnicodeNames(t *testing.T) {
	val := New()
	for _, name := range []string{"דנה לוי", "Jean-Pierre O'Neill", "Ana María"} {
		_, violations := val.ValidateBooking(BookingInput{Name: name, Phone: "0501234567"})
		if len(violations) != 0 {
			t.Fatalf("expected %q to be accepted, got %v", name, violations)
		}
	}
}

func TestValidateBookingRejectsName(t *testing.T) {
	val := New()
	cases := []string{
		"D",
		"<script>alert(1)</script>",
		"Dana; DROP TABLE appointments",
		strings.Repeat("a", 101),
		"",
	}
	for _, name := range cases {
		_, violations := val.ValidateBooking(BookingInput{Name: name, Phone: "0501234567"})
		if violations["name"] == "" {
			t.Fatalf("expected name violation for %q, got %v", name, violations)
		}
	}
}

func TestValidateBookingRejectsPhone(t *testing.T) {
	val := New()
	cases := []string{
		"",
		"1501234567",  // does not start with 0
		"050123",      // too short
		"05012345678", // too long
		"05O1234567",  // letter
	}
	for _, phone := range cases {
		_, violations := val.ValidateBooking(BookingInput{Name: "Dana Levi", Phone: phone})
		if violations["phone"] == "" {
			t.Fatalf("expected phone violation for %q, got %v", phone, violations)
		}
	}
	// Nine digits total is the short legal form (landlines).
	if _, violations := val.ValidateBooking(BookingInput{Name: "Dana Levi", Phone: "031234567"}); len(violations) != 0 {
		t.Fatalf("expected 9-digit phone to be accepted, got %v", violations)
	}
}

func TestValidateBookingOptionalFields(t *testing.T) {
	val := New()
	if _, violations := val.ValidateBooking(BookingInput{Name: "Dana Levi", Phone: "0501234567"}); len(violations) != 0 {
		t.Fatalf("email and note must be optional, got %v", violations)
	}

	_, violations := val.ValidateBooking(BookingInput{
		Name:  "Dana Levi",
		Phone: "0501234567",
		Email: "not-an-email",
		Note:  strings.Repeat("x", 501),
	})
	if violations["email"] == "" {
		t.Fatalf("expected email violation, got %v", violations)
	}
	if violations["note"] == "" {
		t.Fatalf("expected note violation, got %v", violations)
	}
}

func TestViolationsFirstPerField(t *testing.T) {
	val := New()
	// Name breaks both min and the character rule; only one message per field.
	_, violations := val.ValidateBooking(BookingInput{Name: "<", Phone: "0501234567"})
	if len(violations) != 1 {
		t.Fatalf("expected a single violation keyed by field, got %v", violations)
	}
}
