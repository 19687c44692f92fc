package reorder

import (
	"testing"

	"github.com/google/go-cmp/cmp"
)

// spliceMove is the remove-then-insert definition of an array move.
func spliceMove(items []string, from, to int) []string {
	rest := append(append([]string{}, items[:from]...), items[from+1:]...)
	out := append([]string{}, rest[:to]...)
	out = append(out, items[from])
	return append(out, rest[to:]...)
}

func TestMoveItemMatchesSpliceDefinition(t *testing.T) {
	letters := []string{"a", "b", "c", "d", "e", "f"}
	for n := 1; n <= len(letters); n++ {
		items := letters[:n]
		for from := 0; from < n; from++ {
			for to := 0; to < n; to++ {
				got := MoveItem(items, from, to)
				if diff := cmp.Diff(spliceMove(items, from, to), got); diff != "" {
					t.Fatalf("n=%d from=%d to=%d (-want +got):\n%s", n, from, to, diff)
				}
				back := MoveItem(got, to, from)
				if diff := cmp.Diff(items, back); diff != "" {
					t.Fatalf("n=%d from=%d to=%d not reversible (-want +got):\n%s", n, from, to, diff)
				}
			}
		}
	}
}

func TestMoveItemDoesNotMutateInput(t *testing.T) {
	items := []string{"a", "b", "c"}
	_ = MoveItem(items, 2, 0)
	if diff := cmp.Diff([]string{"a", "b", "c"}, items); diff != "" {
		t.Fatalf("input mutated (-want +got):\n%s", diff)
	}
}
