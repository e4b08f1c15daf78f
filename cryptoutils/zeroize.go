package cryptoutils

import (
	"math/big"
	"runtime"
)

// Zeroize overwrites every buffer with zeros.
func Zeroize(bufs ...[]byte) {
	for _, b := range bufs {
		clear(b)
	}
	// keep the writes from being treated as dead stores
	runtime.KeepAlive(bufs)
}

// ZeroizeInt overwrites the limbs backing n and sets it to zero.
func ZeroizeInt(n *big.Int) {
	if n == nil {
		return
	}
	clear(n.Bits())
	n.SetInt64(0)
}

// Secret owns a transient secret buffer. Wipe is idempotent and is meant to
// be deferred right after the buffer is created, so it also runs on early
// returns and panics.
type Secret struct {
	buf []byte
}

// NewSecret takes ownership of b.
func NewSecret(b []byte) *Secret {
	return &Secret{buf: b}
}

// Bytes returns the guarded buffer; it is all zeros after Wipe.
func (s *Secret) Bytes() []byte {
	return s.buf
}

// Wipe overwrites the buffer.
func (s *Secret) Wipe() {
	if s == nil {
		return
	}
	Zeroize(s.buf)
}

// IsZero reports whether every byte of b is zero.
func IsZero(b []byte) bool {
	var acc byte
	for _, c := range b {
		acc |= c
	}
	return acc == 0
}
