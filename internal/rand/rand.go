// Package rand generates the short request and session identifiers used on
// the wire. Identifiers are not security sensitive: the generator trades
// uniformity for speed and only seeds itself once from crypto/rand.
package rand

import (
	cryptorand "crypto/rand"
	"encoding/binary"
	"math/rand"
	"sync"
)

const (
	bytesInUint64 = 8
	charset       = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789"
)

var charsetLen = len(charset)

var defaultSource = newSource()

type source struct {
	mut sync.Mutex
	rng *rand.Rand
}

func newSource() *source {
	seed := make([]byte, bytesInUint64*2)
	if _, err := cryptorand.Read(seed); err != nil {
		panic("unreachable")
	}
	//nolint:gosec // no security required
	return &source{rng: rand.New(rand.NewSource(int64(
		binary.LittleEndian.Uint64(seed[:8]) ^
			binary.LittleEndian.Uint64(seed[8:]),
	)))}
}

// fill writes random bytes into buf, eight at a time.
func (s *source) fill(buf []byte) {
	s.mut.Lock()
	defer s.mut.Unlock()

	n := len(buf)
	for i := 0; i+bytesInUint64 <= n; i += bytesInUint64 {
		binary.LittleEndian.PutUint64(buf[i:], s.rng.Uint64())
	}
	if rem := n % bytesInUint64; rem > 0 {
		var tail [bytesInUint64]byte
		binary.LittleEndian.PutUint64(tail[:], s.rng.Uint64())
		copy(buf[n-rem:], tail[:rem])
	}
}

// String returns a random identifier of length n drawn from [0-9A-Za-z].
// The modulo mapping onto the charset is slightly biased, which is
// acceptable here.
func String(n int) string {
	buf := make([]byte, n)
	defaultSource.fill(buf)
	for i, b := range buf {
		buf[i] = charset[int(b)%charsetLen]
	}
	return string(buf)
}
