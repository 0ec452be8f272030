package lifecycle

import (
	"context"
	"testing"
	"time"
)

func TestMultiFlagLatchReleasesWhenAllFlagsRaised(t *testing.T) {
	l := NewMultiFlagLatch("inbox", "reply", "lifecycle")

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()

	go func() {
		l.Raise("inbox")
		l.Raise("reply")
		l.Raise("lifecycle")
	}()

	if err := l.Wait(ctx); err != nil {
		t.Fatalf("expected latch to release, got %v", err)
	}
}

func TestMultiFlagLatchBlocksUntilAllFlagsRaised(t *testing.T) {
	l := NewMultiFlagLatch("inbox", "reply")
	l.Raise("inbox")

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	if err := l.Wait(ctx); err == nil {
		t.Fatal("expected latch to still be blocked with one flag unraised")
	}
}

func TestMultiFlagLatchEmptyIsImmediatelyDone(t *testing.T) {
	l := NewMultiFlagLatch()
	if err := l.Wait(context.Background()); err != nil {
		t.Fatalf("expected empty latch to be immediately done, got %v", err)
	}
}
