package database

import (
	"context"
	"strings"
	"testing"
)

func TestOpenUnknownEngine(t *testing.T) {
	// no adapter subpackage imported in this test binary
	_, err := Open(context.Background(), MySQL, "user@tcp(localhost)/db")
	if err == nil || !strings.Contains(err.Error(), "unknown engine") {
		t.Fatalf("expected unknown engine error, got %v", err)
	}
}

func TestRegisterNilPanics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatal("expected panic")
		}
	}()
	Register(PostgreSQL, nil)
}
