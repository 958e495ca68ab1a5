package auth

import "testing"

func TestVerifierAcceptsCorrectToken(t *testing.T) {
	v, err := NewVerifier("s3cr3t")
	if err != nil {
		t.Fatalf("new verifier: %v", err)
	}
	if err := v.Verify("s3cr3t"); err != nil {
		t.Fatalf("expected correct token to verify, got %v", err)
	}
}

func TestVerifierRejectsWrongToken(t *testing.T) {
	v, err := NewVerifier("s3cr3t")
	if err != nil {
		t.Fatalf("new verifier: %v", err)
	}
	if err := v.Verify("wrong"); err != ErrInvalidToken {
		t.Fatalf("expected ErrInvalidToken, got %v", err)
	}
}

func TestVerifierFromSaltReproducesSameKey(t *testing.T) {
	v1, err := NewVerifier("s3cr3t")
	if err != nil {
		t.Fatalf("new verifier: %v", err)
	}
	v2 := NewVerifierFromSalt("s3cr3t", v1.Salt())
	if err := v2.Verify("s3cr3t"); err != nil {
		t.Fatalf("expected reconstructed verifier to accept correct token, got %v", err)
	}
}
