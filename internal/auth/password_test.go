package auth

import (
	"errors"
	"testing"
)

func TestHashAndVerifyPassword(t *testing.T) {
	hash, err := HashPassword("Correcto1")
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	if hash == "Correcto1" {
		t.Fatal("hash must not equal the plaintext")
	}
	if err := VerifyPassword(hash, "Correcto1"); err != nil {
		t.Fatalf("verify: %v", err)
	}
	if err := VerifyPassword(hash, "Incorrecto1"); err == nil {
		t.Fatal("expected mismatch error")
	}
}

func TestValidatePasswordPolicy(t *testing.T) {
	cases := []struct {
		name     string
		password string
		ok       bool
	}{
		{"valid", "Segura123", true},
		{"too short", "Ab1", false},
		{"no upper", "segura123", false},
		{"no lower", "SEGURA123", false},
		{"no digit", "SeguraSegura", false},
		{"empty", "", false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := ValidatePassword(tc.password)
			if tc.ok && err != nil {
				t.Fatalf("expected valid, got %v", err)
			}
			if !tc.ok {
				if !errors.Is(err, ErrInvalidInput) {
					t.Fatalf("expected ErrInvalidInput, got %v", err)
				}
			}
		})
	}
}
