package nostr

import (
	"context"
	"testing"
	"time"
)

func TestComputeIDDeterministic(t *testing.T) {
	ev := newEvent("abc123", 1700000000, "hello nostr", nil)
	id1, err := ev.computeID()
	if err != nil {
		t.Fatalf("computeID() error: %v", err)
	}
	id2, err := ev.computeID()
	if err != nil {
		t.Fatalf("computeID() error: %v", err)
	}
	if id1 != id2 {
		t.Fatalf("computeID() not deterministic: %s != %s", id1, id2)
	}
	if len(id1) != 64 {
		t.Fatalf("len(id) = %d, want 64 hex chars", len(id1))
	}
}

func TestMineEventReachesDifficulty(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	const difficulty = 8
	ev, err := mineEvent(ctx, "abc123", 1700000000, "pow test", difficulty, 4)
	if err != nil {
		t.Fatalf("mineEvent() error: %v", err)
	}
	if leadingZeroBits(ev.ID) < difficulty {
		t.Fatalf("mined id %s has fewer than %d leading zero bits", ev.ID, difficulty)
	}
}

func TestAdapterValidateRejectsEmpty(t *testing.T) {
	a := New(Config{RelayURLs: []string{"wss://relay.example"}})
	if err := a.Validate(""); err == nil {
		t.Fatal("expected validation error for empty content")
	}
	if err := a.Validate("hello"); err != nil {
		t.Fatalf("Validate() error: %v", err)
	}
}

func TestAdapterCharacterLimitIsNil(t *testing.T) {
	a := New(Config{RelayURLs: []string{"wss://relay.example"}})
	if a.CharacterLimit() != nil {
		t.Fatal("expected nil character limit for nostr")
	}
}
