package middleware

import (
	"context"
	"testing"
)

func TestRequestHashDeterministic(t *testing.T) {
	hash1 := RequestHash([]byte("payload"))
	hash2 := RequestHash([]byte("payload"))
	hash3 := RequestHash([]byte("other"))

	if hash1 != hash2 {
		t.Fatal("expected deterministic hash")
	}
	if hash1 == hash3 {
		t.Fatal("expected different hash for different payload")
	}
}

func TestIdempotencyStoreWithoutKeyIsNoop(t *testing.T) {
	var store *IdempotencyStore
	stored, found, err := store.Check(context.Background(), "u1", "policies.remind", "", "h")
	if err != nil || found || stored != nil {
		t.Fatalf("expected noop, got %v %v %v", stored, found, err)
	}
	if err := store.Save(context.Background(), "u1", "policies.remind", "", "h", map[string]string{}); err != nil {
		t.Fatalf("expected noop save, got %v", err)
	}
}
