package ids

import "testing"

// Ids must grow strictly within one generator: readers sort stored rows on
// the id to break same-millisecond timestamp ties.
func TestNextStrictlyIncreasing(t *testing.T) {
	g := NewGenerator(5)
	prev := g.Next()
	for i := 0; i < 10000; i++ {
		id := g.Next()
		if id <= prev {
			t.Fatalf("id %d not after %d (iteration %d)", id, prev, i)
		}
		prev = id
	}
}

func TestGeneratorNodeClamp(t *testing.T) {
	for _, node := range []int64{-1, maxNode + 1} {
		g := NewGenerator(node)
		if g.node != 1 {
			t.Errorf("NewGenerator(%d) node = %d, want fallback 1", node, g.node)
		}
	}
}

func TestNextConcurrentUnique(t *testing.T) {
	g := NewGenerator(2)
	const workers, per = 8, 500
	out := make(chan int64, workers*per)
	for w := 0; w < workers; w++ {
		go func() {
			for i := 0; i < per; i++ {
				out <- g.Next()
			}
		}()
	}
	seen := make(map[int64]struct{}, workers*per)
	for i := 0; i < workers*per; i++ {
		id := <-out
		if _, dup := seen[id]; dup {
			t.Fatalf("duplicate id %d", id)
		}
		seen[id] = struct{}{}
	}
}
