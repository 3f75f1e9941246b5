package utils

import (
	"testing"
	"time"
)

func TestSlidingWindowAdd(t *testing.T) {
	window := NewSlidingWindow(2 * time.Second)
	now := time.Now()
	if count := window.Add(now); count != 1 {
		t.Fatalf("expected 1, got %d", count)
	}
	window.Add(now.Add(500 * time.Millisecond))
	if count := window.Count(now.Add(1 * time.Second)); count != 2 {
		t.Fatalf("expected 2, got %d", count)
	}
	if count := window.Count(now.Add(3 * time.Second)); count != 0 {
		t.Fatalf("expected 0, got %d", count)
	}
}

func TestSlidingWindowBoundaryInclusive(t *testing.T) {
	window := NewSlidingWindow(10 * time.Second)
	now := time.Unix(0, 0)
	window.Add(now)
	if count := window.Add(now.Add(10 * time.Second)); count != 2 {
		t.Fatalf("hit exactly one window old must count, got %d", count)
	}
	if count := window.Count(now.Add(10*time.Second + time.Millisecond)); count != 1 {
		t.Fatalf("expected 1, got %d", count)
	}
}

func TestSlidingWindowReset(t *testing.T) {
	window := NewSlidingWindow(time.Minute)
	now := time.Unix(0, 0)
	window.Add(now)
	window.Add(now)
	window.Reset()
	if count := window.Count(now); count != 0 {
		t.Fatalf("expected 0 after reset, got %d", count)
	}
}
