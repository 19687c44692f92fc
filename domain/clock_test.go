package domain

import "testing"

func TestNextTimestampIsStrictlyIncreasing(t *testing.T) {
	prev := NextTimestamp()
	for i := 0; i < 1000; i++ {
		next := NextTimestamp()
		if !next.After(prev) {
			t.Fatalf("timestamp %v not after %v", next, prev)
		}
		prev = next
	}
}
