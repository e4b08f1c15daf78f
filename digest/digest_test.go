package digest

import (
	"bytes"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"reflect"
	"sync"
	"testing"

	"github.com/ruteri/dice-l0/interfaces"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/blake2b"
)

func TestDigestLength(t *testing.T) {
	expected := map[interfaces.HashAlg]uint32{
		interfaces.SHA2_224: 28,
		interfaces.SHA2_256: 32,
		interfaces.SHA2_384: 48,
		interfaces.SHA2_512: 64,
		interfaces.SHA3_224: 28,
		interfaces.SHA3_256: 32,
		interfaces.SHA3_384: 48,
		interfaces.SHA3_512: 64,
		interfaces.Blake2S:  32,
		interfaces.Blake2B:  64,
	}
	for alg, size := range expected {
		assert.Equal(t, size, Length(alg), alg.String())
	}

	assert.Equal(t, uint32(0), Length(interfaces.HashAlg(4)))
	assert.Equal(t, uint32(0), Length(interfaces.HashAlg(200)))
}

func TestDigestKnownVectors(t *testing.T) {
	testCases := []struct {
		alg  interfaces.HashAlg
		in   string
		want string
	}{
		{interfaces.SHA2_256, "abc", "ba7816bf8f01cfea414140de5dae2223b00361a396177a9cb410ff61f20015ad"},
		{interfaces.SHA3_256, "", "a7ffc6f8bf1ed76651c14756a061d662f580ff4de43b49fa82d80a4b80f8434a"},
	}

	for _, tc := range testCases {
		t.Run(tc.alg.String(), func(t *testing.T) {
			out, err := Default().Digest(tc.alg, []byte(tc.in))
			require.NoError(t, err)
			assert.Equal(t, tc.want, hex.EncodeToString(out))
		})
	}

	b2, err := Default().Digest(interfaces.Blake2B, []byte("abc"))
	require.NoError(t, err)
	want := blake2b.Sum512([]byte("abc"))
	assert.Equal(t, want[:], b2)
}

func TestDigestSegmentsEqualConcatenation(t *testing.T) {
	cdi := make([]byte, 32)
	fwid := sha256.Sum256([]byte("firmware-v1"))
	label := []byte("AliasKey")

	concatenated := append(append(append([]byte{}, cdi...), fwid[:]...), label...)

	for _, alg := range interfaces.HashAlgs() {
		t.Run(alg.String(), func(t *testing.T) {
			segmented, err := Default().Digest(alg, cdi, fwid[:], label)
			require.NoError(t, err)

			whole, err := Default().Digest(alg, concatenated)
			require.NoError(t, err)

			assert.Equal(t, whole, segmented)
			assert.Len(t, segmented, int(Length(alg)))
		})
	}
}

// stateBytes collects every byte array or slice reachable from v.
func stateBytes(v reflect.Value) []byte {
	switch v.Kind() {
	case reflect.Pointer, reflect.Interface:
		if v.IsNil() {
			return nil
		}
		return stateBytes(v.Elem())
	case reflect.Struct:
		var out []byte
		for i := 0; i < v.NumField(); i++ {
			out = append(out, stateBytes(v.Field(i))...)
		}
		return out
	case reflect.Array, reflect.Slice:
		if v.Type().Elem().Kind() != reflect.Uint8 {
			return nil
		}
		out := make([]byte, v.Len())
		for i := range out {
			out[i] = byte(v.Index(i).Uint())
		}
		return out
	default:
		return nil
	}
}

func TestSumScrubsHashState(t *testing.T) {
	secret := bytes.Repeat([]byte{0xab}, 64)
	fwid := sha256.Sum256([]byte("firmware-v1"))

	for _, alg := range []interfaces.HashAlg{interfaces.SHA2_256, interfaces.SHA2_384, interfaces.SHA2_512, interfaces.Blake2S, interfaces.Blake2B} {
		for name, segments := range map[string][][]byte{
			"deviceID": {secret[:Length(alg)]},
			"aliasKey": {secret[:Length(alg)], fwid[:], []byte("AliasKey")},
		} {
			t.Run(alg.String()+"/"+name, func(t *testing.T) {
				h, err := Default().New(alg)
				require.NoError(t, err)
				if len(stateBytes(reflect.ValueOf(h))) == 0 {
					t.Skip("hash state has no inspectable buffer")
				}

				want, err := Default().Digest(alg, segments...)
				require.NoError(t, err)
				assert.Equal(t, want, sum(h, segments))
				assert.False(t, bytes.Contains(stateBytes(reflect.ValueOf(h)), secret[:8]), "secret left in hash state")

				// the scrubbed state hashes like a fresh one
				assert.Equal(t, want, sum(h, segments))
			})
		}
	}
}

func TestDigestUnsupported(t *testing.T) {
	_, err := Default().Digest(interfaces.HashAlg(5), []byte("x"))
	assert.ErrorIs(t, err, interfaces.ErrUnsupportedAlgorithm)

	_, err = Default().MAC(interfaces.HashAlg(4), []byte("k"), []byte("x"))
	assert.ErrorIs(t, err, interfaces.ErrUnsupportedAlgorithm)
}

func TestMAC(t *testing.T) {
	key := []byte("Jefe")
	msg := []byte("what do ya want for nothing?")

	out, err := Default().MAC(interfaces.SHA2_256, key, msg[:10], msg[10:])
	require.NoError(t, err)

	mac := hmac.New(sha256.New, key)
	mac.Write(msg)
	assert.Equal(t, mac.Sum(nil), out)

	keyed, err := Default().MAC(interfaces.Blake2B, key, msg)
	require.NoError(t, err)
	h, err := blake2b.New512(key)
	require.NoError(t, err)
	h.Write(msg)
	assert.Equal(t, h.Sum(nil), keyed)

	_, err = Default().MAC(interfaces.Blake2S, make([]byte, 33), msg)
	assert.ErrorIs(t, err, interfaces.ErrInvalidInputLength)
}

func TestDigestConcurrent(t *testing.T) {
	want, err := Default().Digest(interfaces.SHA2_512, []byte("shared"))
	require.NoError(t, err)

	var wg sync.WaitGroup
	results := make([][]byte, 16)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], _ = (&Engine{}).Digest(interfaces.SHA2_512, []byte("sha"), []byte("red"))
		}(i)
	}
	wg.Wait()

	for _, r := range results {
		assert.Equal(t, want, r)
	}
}
