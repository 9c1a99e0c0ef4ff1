package password

import (
	"errors"
	"strings"
	"testing"
)

func TestHashAndVerify(t *testing.T) {
	hashed, err := Hash("correct horse battery staple")
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	if !strings.HasPrefix(hashed, "$argon2id$") {
		t.Fatalf("unexpected encoding: %q", hashed)
	}
	if err := Verify("correct horse battery staple", hashed); err != nil {
		t.Fatalf("verify: %v", err)
	}
	if err := Verify("wrong password", hashed); !errors.Is(err, ErrMismatch) {
		t.Fatalf("err = %v, want ErrMismatch", err)
	}
}

func TestHashesAreSalted(t *testing.T) {
	first, err := Hash("same input")
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	second, err := Hash("same input")
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	if first == second {
		t.Fatal("two hashes of the same password matched, salt missing")
	}
}

func TestVerifyRejectsMalformedHash(t *testing.T) {
	if err := Verify("anything", "not-an-encoded-hash"); err == nil {
		t.Fatal("malformed hash accepted")
	}
}
