package crypto

import (
	"errors"
	"testing"
)

func TestHashAndVerify(t *testing.T) {
	encoded, err := HashPassword("hunter2")
	if err != nil {
		t.Fatalf("HashPassword: %v", err)
	}

	ok, err := VerifyPassword("hunter2", encoded)
	if err != nil {
		t.Fatalf("VerifyPassword: %v", err)
	}
	if !ok {
		t.Error("correct password did not verify")
	}

	ok, err = VerifyPassword("wrong", encoded)
	if err != nil {
		t.Fatalf("VerifyPassword: %v", err)
	}
	if ok {
		t.Error("wrong password verified")
	}
}

func TestHashIsSalted(t *testing.T) {
	a, err := HashPassword("same")
	if err != nil {
		t.Fatalf("HashPassword: %v", err)
	}
	b, err := HashPassword("same")
	if err != nil {
		t.Fatalf("HashPassword: %v", err)
	}
	if a == b {
		t.Error("two hashes of the same password are identical; salt is not random")
	}
	for _, encoded := range []string{a, b} {
		ok, err := VerifyPassword("same", encoded)
		if err != nil || !ok {
			t.Errorf("VerifyPassword(%q) = %v, %v", encoded, ok, err)
		}
	}
}

func TestVerifyMalformed(t *testing.T) {
	for _, encoded := range []string{"", "nodollar", "!!$!!", "Zm9v$!!!"} {
		if _, err := VerifyPassword("pw", encoded); !errors.Is(err, ErrMalformedHash) {
			t.Errorf("VerifyPassword(_, %q) err = %v, want ErrMalformedHash", encoded, err)
		}
	}
}

func TestEmptyPassword(t *testing.T) {
	encoded, err := HashPassword("")
	if err != nil {
		t.Fatalf("HashPassword: %v", err)
	}
	ok, err := VerifyPassword("", encoded)
	if err != nil || !ok {
		t.Errorf("empty password round trip = %v, %v", ok, err)
	}
}
