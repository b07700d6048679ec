// Package ids issues snowflake identifiers for connections and messages:
// 41 bits of millis since epoch, 10 bits node, 12 bits sequence.
package ids

import (
	"strconv"
	"sync"
	"time"
)

const (
	nodeBits = 10
	seqBits  = 12
	maxNode  = (1 << nodeBits) - 1
	seqMask  = (1 << seqBits) - 1
	tsMask   = (1 << 41) - 1
)

// custom epoch keeps ids small; never change it on a live deployment
var epochMS = time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC).UnixMilli()

type Generator struct {
	mu     sync.Mutex
	node   int64
	lastMS int64
	seq    int64
}

func NewGenerator(node int64) *Generator {
	if node < 0 || node > maxNode {
		node = 1
	}
	return &Generator{node: node}
}

func (g *Generator) Next() int64 {
	g.mu.Lock()
	defer g.mu.Unlock()

	now := time.Now().UnixMilli()
	for now < g.lastMS {
		// clock went backwards, wait it out
		time.Sleep(time.Duration(g.lastMS-now) * time.Millisecond)
		now = time.Now().UnixMilli()
	}
	if now == g.lastMS {
		g.seq = (g.seq + 1) & seqMask
		if g.seq == 0 {
			for now <= g.lastMS {
				now = time.Now().UnixMilli()
			}
		}
	} else {
		g.seq = 0
	}
	g.lastMS = now

	return ((now-epochMS)&tsMask)<<(nodeBits+seqBits) |
		(g.node << seqBits) | g.seq
}

var (
	defaultMu  sync.Mutex
	defaultGen = NewGenerator(1)
)

// Generate returns a new id from the process-wide generator.
func Generate() int64 {
	defaultMu.Lock()
	g := defaultGen
	defaultMu.Unlock()
	return g.Next()
}

func GenerateString() string {
	return strconv.FormatInt(Generate(), 10)
}

// SetNodeID rebinds the process-wide generator to a node id (0~1023).
// Call once from main before serving.
func SetNodeID(node int64) {
	defaultMu.Lock()
	defer defaultMu.Unlock()
	defaultGen = NewGenerator(node)
}
