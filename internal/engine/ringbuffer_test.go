package engine

import (
	"errors"
	"testing"
)

func TestRingBufferStoreFetchRoundTrip(t *testing.T) {
	rb := NewRingBuffer(16, 2) // 2 bytes per frame (mono, 16-bit)

	src := []byte{1, 0, 2, 0, 3, 0, 4, 0}
	if err := rb.Store(src, 4, 0, 0); err != nil {
		t.Fatalf("Store: %v", err)
	}

	dst := make([]byte, 8)
	real := rb.Fetch(dst, 4, 0, 4)
	if real != 4 {
		t.Fatalf("real = %d, want 4", real)
	}
	for i, b := range src {
		if dst[i] != b {
			t.Fatalf("byte %d = %d, want %d", i, dst[i], b)
		}
	}
}

func TestRingBufferWraparound(t *testing.T) {
	rb := NewRingBuffer(4, 2) // capacity 4 frames, will wrap fast

	// fill frames 0..3
	if err := rb.Store([]byte{1, 1, 2, 2, 3, 3, 4, 4}, 4, 0, 0); err != nil {
		t.Fatalf("Store: %v", err)
	}
	// consumer has read frames 0..1 (framesRendered=2), producer writes 4..5 which wrap
	if err := rb.Store([]byte{5, 5, 6, 6}, 2, 4, 2); err != nil {
		t.Fatalf("Store wraparound: %v", err)
	}

	dst := make([]byte, 8)
	real := rb.Fetch(dst, 4, 2, 6)
	if real != 4 {
		t.Fatalf("real = %d, want 4", real)
	}
	want := []byte{3, 3, 4, 4, 5, 5, 6, 6}
	for i, b := range want {
		if dst[i] != b {
			t.Fatalf("byte %d = %d, want %d", i, dst[i], b)
		}
	}
}

func TestRingBufferStoreOverrunRejected(t *testing.T) {
	rb := NewRingBuffer(4, 2)

	// nothing has been rendered yet; writing 5 frames overruns a 4-frame buffer
	err := rb.Store(make([]byte, 10), 5, 0, 0)
	if !errors.Is(err, ErrBufferOverrun) {
		t.Fatalf("err = %v, want ErrBufferOverrun", err)
	}
}

func TestRingBufferFetchPadsSilenceBeyondDecoded(t *testing.T) {
	rb := NewRingBuffer(8, 2)

	if err := rb.Store([]byte{9, 9}, 1, 0, 0); err != nil {
		t.Fatalf("Store: %v", err)
	}

	dst := []byte{0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF}
	real := rb.Fetch(dst, 3, 0, 1)
	if real != 1 {
		t.Fatalf("real = %d, want 1", real)
	}
	if dst[0] != 9 || dst[1] != 9 {
		t.Fatalf("first frame corrupted: %v", dst[:2])
	}
	for i := 2; i < 6; i++ {
		if dst[i] != 0 {
			t.Fatalf("byte %d = %d, want silence (0)", i, dst[i])
		}
	}
}

func TestRingBufferCapacityRoundsToPowerOfTwo(t *testing.T) {
	rb := NewRingBuffer(10, 4)
	if rb.Capacity() != 16 {
		t.Fatalf("Capacity() = %d, want 16", rb.Capacity())
	}
}
