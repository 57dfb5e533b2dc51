package app

import (
	"math/rand"
	"sync"
	"time"
)

// Session codes are drawn from an alphabet without 0/O, 1/I so codes read
// unambiguously off a projected screen.
const (
	codeAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"
	codeLength   = 6
)

type codeGenerator struct {
	mu  sync.Mutex
	rnd *rand.Rand
}

func newCodeGenerator() *codeGenerator {
	return &codeGenerator{rnd: rand.New(rand.NewSource(time.Now().UnixNano()))}
}

func (g *codeGenerator) next() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	buf := make([]byte, codeLength)
	for i := range buf {
		buf[i] = codeAlphabet[g.rnd.Intn(len(codeAlphabet))]
	}
	return string(buf)
}
