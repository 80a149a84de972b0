package archive

import (
	"context"
	"testing"
)

func TestKeyWithoutPrefix(t *testing.T) {
	a := &Archiver{bucket: "b"}
	if got, want := a.key("msg-1"), "msg-1.json"; got != want {
		t.Fatalf("key() = %q, want %q", got, want)
	}
}

func TestKeyWithPrefix(t *testing.T) {
	a := &Archiver{bucket: "b", prefix: "event-logs"}
	if got, want := a.key("msg-1"), "event-logs/msg-1.json"; got != want {
		t.Fatalf("key() = %q, want %q", got, want)
	}
}

func TestNewRejectsEmptyBucket(t *testing.T) {
	_, err := New(context.Background(), Config{})
	if err == nil {
		t.Fatal("expected error for empty bucket")
	}
}
