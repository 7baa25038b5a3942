package sandbox

import (
	"bytes"
	"strings"
	"testing"
)

func TestRingBufferKeepsRecentBytes(t *testing.T) {
	r := newRingBuffer(8)

	// Under capacity everything is retained.
	r.Write([]byte("abcdef"))
	if got := string(r.Bytes()); got != "abcdef" {
		t.Errorf("Bytes() = %q, want %q", got, "abcdef")
	}

	// Overflow discards from the front.
	r.Write([]byte("ghij"))
	if got := string(r.Bytes()); got != "cdefghij" {
		t.Errorf("Bytes() after overflow = %q, want %q", got, "cdefghij")
	}
	if r.Len() != 8 {
		t.Errorf("Len() = %d, want 8", r.Len())
	}
}

func TestRingBufferLargeSingleWrite(t *testing.T) {
	r := newRingBuffer(8)
	r.Write([]byte(strings.Repeat("x", 100) + "tail"))

	want := "xxxxtail"
	if got := string(r.Bytes()); got != want {
		t.Errorf("Bytes() = %q, want %q", got, want)
	}
}

func TestRingBufferTail(t *testing.T) {
	r := newRingBuffer(64)
	r.Write([]byte("hello world"))

	if got := string(r.Tail(5)); got != "world" {
		t.Errorf("Tail(5) = %q, want %q", got, "world")
	}
	if got := string(r.Tail(100)); got != "hello world" {
		t.Errorf("Tail(100) = %q, want %q", got, "hello world")
	}
}

func TestRingBufferCopiesOut(t *testing.T) {
	r := newRingBuffer(16)
	r.Write([]byte("data"))

	snapshot := r.Bytes()
	r.Write([]byte("more"))
	if !bytes.Equal(snapshot, []byte("data")) {
		t.Errorf("snapshot mutated by later write: %q", snapshot)
	}
}
