package store

import (
	"errors"
	"strings"
	"testing"
)

func TestGenerateStorageKey(t *testing.T) {
	t.Run("scoped key", func(t *testing.T) {
		key, err := GenerateStorageKey("ws-1", "report.pdf", nil)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !strings.HasPrefix(key, "ws-1/") || !strings.HasSuffix(key, "-report.pdf") {
			t.Fatalf("unexpected key %q", key)
		}
		token := strings.TrimSuffix(strings.TrimPrefix(key, "ws-1/"), "-report.pdf")
		if len(token) != 32 {
			t.Fatalf("expected 32 char token, got %q", token)
		}
	})

	t.Run("user key has no scope", func(t *testing.T) {
		key, err := GenerateStorageKey("", "avatar.png", nil)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if strings.Contains(key, "/") {
			t.Fatalf("expected bare key, got %q", key)
		}
	})

	t.Run("name cannot add segments", func(t *testing.T) {
		key, err := GenerateStorageKey("ws", "../../etc/passwd", nil)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if strings.Count(key, "/") != 1 || !strings.HasSuffix(key, "-.._.._etc_passwd") {
			t.Fatalf("unexpected key %q", key)
		}
	})

	t.Run("empty name", func(t *testing.T) {
		if _, err := GenerateStorageKey("ws", "  ", nil); err == nil {
			t.Fatal("expected error for empty name")
		}
	})

	t.Run("retries on collision", func(t *testing.T) {
		calls := 0
		exists := func(string) (bool, error) {
			calls++
			return calls < 3, nil
		}
		if _, err := GenerateStorageKey("ws", "a.png", exists); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if calls != 3 {
			t.Fatalf("expected 3 calls, got %d", calls)
		}
	})

	t.Run("exists error", func(t *testing.T) {
		_, err := GenerateStorageKey("ws", "a.png", func(string) (bool, error) {
			return false, errors.New("db down")
		})
		if err == nil {
			t.Fatal("expected error")
		}
	})

	t.Run("exhausted", func(t *testing.T) {
		_, err := GenerateStorageKey("ws", "a.png", func(string) (bool, error) { return true, nil })
		if err == nil {
			t.Fatal("expected error after max attempts")
		}
	})
}
