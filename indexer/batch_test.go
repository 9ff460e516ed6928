package indexer

import (
	"testing"
	"time"

	"github.com/kmwllc/lucille-go/document"
)

func TestBatch_ReturnsWhenSizeReached(t *testing.T) {
	b := NewBatch(2, time.Hour)

	if got, _ := b.Add(document.New("1"), 0); got != nil {
		t.Fatalf("Add(1) = %v, want nil", got)
	}
	got, offsets := b.Add(document.New("2"), 1)
	if len(got) != 2 {
		t.Fatalf("Add(2) = %v, want a full batch of 2", got)
	}
	if len(offsets) != 2 || offsets[0] != 0 || offsets[1] != 1 {
		t.Fatalf("offsets = %v, want [0 1]", offsets)
	}
	if got, _ := b.Add(nil, 0); got != nil {
		t.Fatalf("batch should be empty after being returned")
	}
}

func TestBatch_TimeoutOnEmptyPoll(t *testing.T) {
	b := NewBatch(100, 20*time.Millisecond)
	b.Add(document.New("1"), 0)

	if got, _ := b.Add(nil, 0); got != nil {
		t.Fatalf("Add(nil) before timeout = %v, want nil", got)
	}
	time.Sleep(30 * time.Millisecond)
	got, offsets := b.Add(nil, 0)
	if len(got) != 1 {
		t.Fatalf("Add(nil) after timeout = %v, want the one accumulated document", got)
	}
	if len(offsets) != 1 || offsets[0] != 0 {
		t.Fatalf("offsets = %v, want [0]", offsets)
	}
}

func TestBatch_EmptyPollNeverReturnsWhenNothingAccumulated(t *testing.T) {
	b := NewBatch(10, time.Millisecond)
	time.Sleep(5 * time.Millisecond)
	if got, _ := b.Add(nil, 0); got != nil {
		t.Fatalf("Add(nil) on empty batch = %v, want nil", got)
	}
}

func TestBatch_FlushReturnsAndClears(t *testing.T) {
	b := NewBatch(100, time.Hour)
	b.Add(document.New("1"), 10)
	b.Add(document.New("2"), 11)

	got, offsets := b.Flush()
	if len(got) != 2 {
		t.Fatalf("Flush() = %v, want 2 documents", got)
	}
	if len(offsets) != 2 || offsets[0] != 10 || offsets[1] != 11 {
		t.Fatalf("offsets = %v, want [10 11]", offsets)
	}
	if got, _ := b.Flush(); got != nil {
		t.Fatalf("second Flush() should return nil")
	}
}
