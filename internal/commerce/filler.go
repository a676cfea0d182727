// File: internal/commerce/filler.go
package commerce

import (
	"math/rand"
	"strings"
	"sync"
	"time"
)

// FillerAlphabet omits characters that are easy to misread (i, l, o, 0, 1).
const FillerAlphabet = "abcdefghjkmnpqrstuvwxyz23456789"

// Filler generates placeholder form values. It is not suitable for secrets.
type Filler struct {
	mu  sync.Mutex
	rnd *rand.Rand
}

// NewFiller seeds a generator once. A zero seed uses the clock.
func NewFiller(seed int64) *Filler {
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return &Filler{rnd: rand.New(rand.NewSource(seed))}
}

// String returns exactly n characters drawn from FillerAlphabet.
func (f *Filler) String(n int) string {
	if n <= 0 {
		return ""
	}
	f.mu.Lock()
	defer f.mu.Unlock()

	var b strings.Builder
	b.Grow(n)
	for i := 0; i < n; i++ {
		b.WriteByte(FillerAlphabet[f.rnd.Intn(len(FillerAlphabet))])
	}
	return b.String()
}
