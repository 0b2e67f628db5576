package security_test

import (
	"strings"
	"testing"

	"github.com/simvoyage/esim-backend/pkg/config"
	"github.com/simvoyage/esim-backend/pkg/security"
)

func testParams() config.PasswordConfig {
	return config.PasswordConfig{
		ArgonMemoryKB:    32768,
		ArgonTime:        1,
		ArgonParallelism: 1,
		ArgonSaltLen:     16,
		ArgonKeyLen:      32,
	}
}

func TestHashAndVerifyPassword(t *testing.T) {
	hash, err := security.HashPassword("correct horse battery", testParams())
	if err != nil {
		t.Fatalf("HashPassword returned error: %v", err)
	}
	if !strings.HasPrefix(hash, "$argon2id$") {
		t.Fatalf("unexpected hash format: %s", hash)
	}

	ok, err := security.VerifyPassword("correct horse battery", hash)
	if err != nil {
		t.Fatalf("VerifyPassword returned error for valid hash: %v", err)
	}
	if !ok {
		t.Fatal("VerifyPassword rejected the correct password")
	}

	ok, err = security.VerifyPassword("wrong horse", hash)
	if err != nil {
		t.Fatalf("VerifyPassword returned error for wrong password: %v", err)
	}
	if ok {
		t.Fatal("VerifyPassword accepted an incorrect password")
	}
}

func TestHashesAreSalted(t *testing.T) {
	first, err := security.HashPassword("same input", testParams())
	if err != nil {
		t.Fatal(err)
	}
	second, err := security.HashPassword("same input", testParams())
	if err != nil {
		t.Fatal(err)
	}
	if first == second {
		t.Fatal("two hashes of the same password should differ by salt")
	}
}

func TestVerifyPasswordBadHash(t *testing.T) {
	if _, err := security.VerifyPassword("irrelevant", "not-a-hash"); err == nil {
		t.Fatal("expected error for malformed hash")
	}
}
