package message

import (
	"fmt"
	"testing"
)

func TestStoreAppendAndAll(t *testing.T) {
	s := NewStore(10)

	s.Append("General", NewPublic("hello", "alice", "General"))
	s.Append("General", NewPublic("world", "bob", "General"))

	msgs := s.All("General")
	if len(msgs) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(msgs))
	}
	if msgs[0].Text != "hello" || msgs[1].Text != "world" {
		t.Errorf("expected arrival order [hello world], got [%s %s]", msgs[0].Text, msgs[1].Text)
	}
}

func TestStoreAllEmptyRoom(t *testing.T) {
	s := NewStore(10)

	msgs := s.All("General")
	if msgs == nil {
		t.Fatal("expected non-nil slice for empty room")
	}
	if len(msgs) != 0 {
		t.Fatalf("expected empty history, got %d messages", len(msgs))
	}
}

func TestStoreRoomsIsolated(t *testing.T) {
	s := NewStore(10)

	s.Append("General", NewPublic("a", "alice", "General"))
	s.Append("News", NewPublic("b", "bob", "News"))

	if s.Count("General") != 1 || s.Count("News") != 1 {
		t.Errorf("expected 1 message per room, got %d and %d", s.Count("General"), s.Count("News"))
	}
}

func TestStoreCapEvictsOldest(t *testing.T) {
	s := NewStore(3)

	for i := 0; i < 5; i++ {
		s.Append("General", NewPublic(fmt.Sprintf("msg-%d", i), "alice", "General"))
	}

	msgs := s.All("General")
	if len(msgs) != 3 {
		t.Fatalf("expected 3 messages at cap, got %d", len(msgs))
	}
	if msgs[0].Text != "msg-2" || msgs[2].Text != "msg-4" {
		t.Errorf("expected [msg-2 .. msg-4], got [%s .. %s]", msgs[0].Text, msgs[2].Text)
	}
}

func TestStoreUnbounded(t *testing.T) {
	s := NewStore(0)

	for i := 0; i < 100; i++ {
		s.Append("General", NewPublic(fmt.Sprintf("msg-%d", i), "alice", "General"))
	}
	if s.Count("General") != 100 {
		t.Errorf("expected 100 messages without a cap, got %d", s.Count("General"))
	}
}

func TestStoreAllReturnsCopy(t *testing.T) {
	s := NewStore(10)
	s.Append("General", NewPublic("hello", "alice", "General"))

	msgs := s.All("General")
	msgs[0] = NewPublic("mutated", "eve", "General")

	if s.All("General")[0].Text != "hello" {
		t.Error("All must return a copy of the history")
	}
}

func TestStoreClear(t *testing.T) {
	s := NewStore(10)
	s.Append("General", NewPublic("hello", "alice", "General"))

	s.Clear("General")
	if s.Count("General") != 0 {
		t.Errorf("expected empty history after clear, got %d", s.Count("General"))
	}
}
