// Package digest implements the digest engine used by Layer-0 derivation:
// one-shot digests and keyed digests computed incrementally over several
// byte segments, so secret inputs never have to be concatenated into a
// scratch buffer. The hash state's own block buffer is overwritten once the
// sum is taken.
package digest

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/sha512"
	"fmt"
	"hash"
	"sync"

	"github.com/ruteri/dice-l0/interfaces"
	"golang.org/x/crypto/blake2b"
	"golang.org/x/crypto/blake2s"
	"golang.org/x/crypto/sha3"
)

type algorithm struct {
	size int
	// newKeyed returns a hash keyed with key; a nil key yields a plain hash.
	newKeyed func(key []byte) (hash.Hash, error)
}

var (
	initOnce   sync.Once
	algorithms map[interfaces.HashAlg]algorithm
	defaultEng *Engine
)

func plain(fn func() hash.Hash) func([]byte) (hash.Hash, error) {
	return func(key []byte) (hash.Hash, error) {
		if key == nil {
			return fn(), nil
		}
		return hmac.New(fn, key), nil
	}
}

func registerAlgorithms() {
	algorithms = map[interfaces.HashAlg]algorithm{
		interfaces.SHA2_224: {sha256.Size224, plain(sha256.New224)},
		interfaces.SHA2_256: {sha256.Size, plain(sha256.New)},
		interfaces.SHA2_384: {sha512.Size384, plain(sha512.New384)},
		interfaces.SHA2_512: {sha512.Size, plain(sha512.New)},
		interfaces.SHA3_224: {28, plain(sha3.New224)},
		interfaces.SHA3_256: {32, plain(sha3.New256)},
		interfaces.SHA3_384: {48, plain(sha3.New384)},
		interfaces.SHA3_512: {64, plain(sha3.New512)},
		interfaces.Blake2S: {blake2s.Size, func(key []byte) (hash.Hash, error) {
			return blake2s.New256(key)
		}},
		interfaces.Blake2B: {blake2b.Size, func(key []byte) (hash.Hash, error) {
			return blake2b.New512(key)
		}},
	}
	defaultEng = &Engine{}
}

// Engine is a stateless DigestEngine. The zero value is ready to use.
type Engine struct{}

var _ interfaces.DigestEngine = (*Engine)(nil)

// Default returns the process-wide engine. The algorithm table is built on
// first use and is read-only afterwards.
func Default() *Engine {
	initOnce.Do(registerAlgorithms)
	return defaultEng
}

func lookup(alg interfaces.HashAlg) (algorithm, bool) {
	initOnce.Do(registerAlgorithms)
	a, ok := algorithms[alg]
	return a, ok
}

// Length is DigestLength on the default engine.
func Length(alg interfaces.HashAlg) uint32 {
	return Default().DigestLength(alg)
}

// DigestLength returns the output size of alg, 0 for unknown identifiers.
func (e *Engine) DigestLength(alg interfaces.HashAlg) uint32 {
	a, ok := lookup(alg)
	if !ok {
		return 0
	}
	return uint32(a.size)
}

// New returns a fresh hash state for alg.
func (e *Engine) New(alg interfaces.HashAlg) (hash.Hash, error) {
	a, ok := lookup(alg)
	if !ok {
		return nil, fmt.Errorf("%w: hash %s", interfaces.ErrUnsupportedAlgorithm, alg)
	}
	return a.newKeyed(nil)
}

// Digest writes each segment into one hash state and returns the sum.
func (e *Engine) Digest(alg interfaces.HashAlg, segments ...[]byte) ([]byte, error) {
	h, err := e.New(alg)
	if err != nil {
		return nil, err
	}
	return sum(h, segments), nil
}

// MAC computes HMAC-alg over the segments, or the native keyed mode for the
// BLAKE2 algorithms (keys up to 32 bytes for BLAKE2s, 64 for BLAKE2b).
func (e *Engine) MAC(alg interfaces.HashAlg, key []byte, segments ...[]byte) ([]byte, error) {
	a, ok := lookup(alg)
	if !ok {
		return nil, fmt.Errorf("%w: hash %s", interfaces.ErrUnsupportedAlgorithm, alg)
	}
	if key == nil {
		key = []byte{}
	}
	h, err := a.newKeyed(key)
	if err != nil {
		return nil, fmt.Errorf("%w: %s key of %d bytes", interfaces.ErrInvalidInputLength, alg, len(key))
	}
	return sum(h, segments), nil
}

func sum(h hash.Hash, segments [][]byte) []byte {
	for _, s := range segments {
		// hash.Hash.Write never returns an error
		h.Write(s)
	}
	out := h.Sum(make([]byte, 0, h.Size()))
	scrub(h)
	return out
}

// scrub overwrites the block buffer of h. Reset alone only rewinds the
// buffer offset, leaving the tail of the last input in place. Writing one
// byte first forces the rest through the buffer instead of the direct
// full-block path.
func scrub(h hash.Hash) {
	zeros := make([]byte, h.BlockSize())
	h.Reset()
	h.Write(zeros[:1])
	h.Write(zeros[1:])
	h.Reset()
}
