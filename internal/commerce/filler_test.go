// File: internal/commerce/filler_test.go
package commerce

import (
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFillerLengthAndAlphabet(t *testing.T) {
	f := NewFiller(0)
	for _, n := range []int{1, 8, 31, 256} {
		s := f.String(n)
		assert.Len(t, s, n)
		for _, r := range s {
			assert.True(t, strings.ContainsRune(FillerAlphabet, r), "unexpected %q in %q", r, s)
		}
	}
	assert.Equal(t, "", f.String(0))
	assert.Equal(t, "", f.String(-3))
}

func TestFillerAlphabetExcludesAmbiguous(t *testing.T) {
	for _, r := range "ilo01" {
		assert.NotContains(t, FillerAlphabet, string(r))
	}
}

func TestFillerSeedIsReproducible(t *testing.T) {
	a, b := NewFiller(42), NewFiller(42)
	for i := 0; i < 5; i++ {
		assert.Equal(t, a.String(12), b.String(12))
	}
	assert.NotEqual(t, NewFiller(1).String(32), NewFiller(2).String(32))
}

func TestFillerConcurrentUse(t *testing.T) {
	f := NewFiller(7)
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				assert.Len(t, f.String(8), 8)
			}
		}()
	}
	wg.Wait()
}

func FuzzFillerString(f *testing.F) {
	f.Add(int64(1), 8)
	f.Add(int64(-5), 0)
	f.Fuzz(func(t *testing.T, seed int64, n int) {
		if n > 4096 {
			n %= 4096
		}
		s := NewFiller(seed).String(n)
		if n <= 0 {
			if s != "" {
				t.Fatalf("String(%d) = %q, want empty", n, s)
			}
			return
		}
		if len(s) != n {
			t.Fatalf("len(String(%d)) = %d", n, len(s))
		}
		if strings.Trim(s, FillerAlphabet) != "" {
			t.Fatalf("String(%d) = %q contains characters outside the alphabet", n, s)
		}
	})
}
