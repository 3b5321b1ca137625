package auth

import "testing"

func TestHashAndVerifySecret(t *testing.T) {
	hash, err := HashSecret("correct-horse-battery-staple")
	if err != nil {
		t.Fatalf("HashSecret() error = %v", err)
	}
	if !VerifySecret("correct-horse-battery-staple", hash) {
		t.Fatalf("expected verification to succeed for the hashed secret")
	}
	if VerifySecret("wrong-secret", hash) {
		t.Fatalf("expected verification to fail for a different secret")
	}
}

func TestVerifySecretRejectsMalformedHash(t *testing.T) {
	if VerifySecret("anything", "not-a-valid-hash") {
		t.Fatalf("expected malformed hash to fail closed")
	}
}

func TestHashSecretUsesFreshSaltPerCall(t *testing.T) {
	a, err := HashSecret("same-secret")
	if err != nil {
		t.Fatalf("HashSecret() error = %v", err)
	}
	b, err := HashSecret("same-secret")
	if err != nil {
		t.Fatalf("HashSecret() error = %v", err)
	}
	if a == b {
		t.Fatalf("expected distinct hashes for the same secret due to per-call salt")
	}
}
