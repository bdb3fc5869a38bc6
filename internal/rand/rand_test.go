package rand

import (
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStringLengthAndCharset(t *testing.T) {
	for _, n := range []int{0, 1, 7, 8, 16, 33} {
		s := String(n)
		assert.Len(t, s, n)
		for _, r := range s {
			assert.True(t, strings.ContainsRune(charset, r), "unexpected rune %q", r)
		}
	}
}

func TestStringsDiffer(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 1000; i++ {
		s := String(16)
		assert.False(t, seen[s], "duplicate id %q after %d draws", s, i)
		seen[s] = true
	}
}

func TestStringConcurrent(t *testing.T) {
	var wg sync.WaitGroup
	for w := 0; w < 8; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 500; i++ {
				if len(String(16)) != 16 {
					t.Error("short id")
					return
				}
			}
		}()
	}
	wg.Wait()
}

func BenchmarkString(b *testing.B) {
	for i := 0; i < b.N; i++ {
		String(16)
	}
}
