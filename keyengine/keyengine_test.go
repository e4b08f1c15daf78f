package keyengine

import (
	"bytes"
	"crypto"
	"crypto/ecdsa"
	"crypto/ed25519"
	"crypto/rand"
	"crypto/sha256"
	"crypto/sha512"
	"testing"

	"github.com/ruteri/dice-l0/cryptoutils"
	"github.com/ruteri/dice-l0/interfaces"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func allEngines() []interfaces.KeyEngine {
	return []interfaces.KeyEngine{Ed25519{}, P256(), P384()}
}

func seedFor(e interfaces.KeyEngine, fill byte) []byte {
	return bytes.Repeat([]byte{fill}, e.SeedLength())
}

func TestDeriveKeyPairDeterministic(t *testing.T) {
	for _, e := range allEngines() {
		t.Run(e.Name(), func(t *testing.T) {
			kp1, err := e.DeriveKeyPair(seedFor(e, 0x42))
			require.NoError(t, err)
			kp2, err := e.DeriveKeyPair(seedFor(e, 0x42))
			require.NoError(t, err)

			assert.Equal(t, kp1.PublicKey, kp2.PublicKey)
			assert.Equal(t, kp1.PrivateKey, kp2.PrivateKey)

			other, err := e.DeriveKeyPair(seedFor(e, 0x43))
			require.NoError(t, err)
			assert.NotEqual(t, kp1.PublicKey, other.PublicKey)
		})
	}
}

func TestDeriveKeyPairSeedLength(t *testing.T) {
	for _, e := range allEngines() {
		t.Run(e.Name(), func(t *testing.T) {
			_, err := e.DeriveKeyPair(make([]byte, e.SeedLength()-1))
			assert.ErrorIs(t, err, interfaces.ErrInvalidSeedLength)
			assert.ErrorIs(t, err, interfaces.ErrInvalidInputLength)

			_, err = e.DeriveKeyPair(make([]byte, e.SeedLength()+1))
			assert.ErrorIs(t, err, interfaces.ErrInvalidSeedLength)
		})
	}
}

func TestEd25519MatchesStdlib(t *testing.T) {
	seed := seedFor(Ed25519{}, 7)
	kp, err := Ed25519{}.DeriveKeyPair(seed)
	require.NoError(t, err)

	want := ed25519.NewKeyFromSeed(seed)
	assert.Equal(t, []byte(want), kp.PrivateKey)
	assert.Equal(t, []byte(want.Public().(ed25519.PublicKey)), kp.PublicKey)
}

func TestECDSAKeyEncoding(t *testing.T) {
	for _, e := range []*ECDSA{P256(), P384()} {
		t.Run(e.Name(), func(t *testing.T) {
			kp, err := e.DeriveKeyPair(seedFor(e, 1))
			require.NoError(t, err)
			assert.Len(t, kp.PrivateKey, e.size)
			assert.Len(t, kp.PublicKey, 1+2*e.size)
			assert.Equal(t, byte(0x04), kp.PublicKey[0])

			pub, err := e.PublicKey(kp.PublicKey)
			require.NoError(t, err)
			ecPub, ok := pub.(*ecdsa.PublicKey)
			require.True(t, ok)
			assert.True(t, ecPub.Curve.IsOnCurve(ecPub.X, ecPub.Y))
		})
	}
}

func TestSignVerify(t *testing.T) {
	message := []byte("to-be-signed certificate bytes")

	for _, e := range allEngines() {
		t.Run(e.Name(), func(t *testing.T) {
			kp, err := e.DeriveKeyPair(seedFor(e, 9))
			require.NoError(t, err)

			sig, err := e.Sign(kp.PrivateKey, message)
			require.NoError(t, err)

			pub, err := e.PublicKey(kp.PublicKey)
			require.NoError(t, err)

			switch key := pub.(type) {
			case ed25519.PublicKey:
				assert.True(t, ed25519.Verify(key, message, sig))
			case *ecdsa.PublicKey:
				var digest []byte
				if e.Name() == NameP256 {
					d := sha256.Sum256(message)
					digest = d[:]
				} else {
					d := sha512.Sum384(message)
					digest = d[:]
				}
				assert.True(t, ecdsa.VerifyASN1(key, digest, sig))
			default:
				t.Fatalf("unexpected public key type %T", pub)
			}

			_, err = e.Sign(kp.PrivateKey[:3], message)
			assert.ErrorIs(t, err, interfaces.ErrSigningFailure)
		})
	}
}

func TestSignerWipe(t *testing.T) {
	digest := sha256.Sum256([]byte("tbs"))

	for _, e := range allEngines() {
		t.Run(e.Name(), func(t *testing.T) {
			kp, err := e.DeriveKeyPair(seedFor(e, 3))
			require.NoError(t, err)

			signer, err := e.Signer(kp.PrivateKey)
			require.NoError(t, err)

			var opts crypto.SignerOpts = crypto.Hash(0)
			msg := []byte("tbs")
			if e.Name() != NameEd25519 {
				opts = crypto.SHA256
				msg = digest[:]
			}

			_, err = signer.Sign(rand.Reader, msg, opts)
			require.NoError(t, err)

			signer.Wipe()
			_, err = signer.Sign(rand.Reader, msg, opts)
			assert.ErrorIs(t, err, interfaces.ErrSigningFailure)

			if e.Name() == NameEd25519 {
				// the ed25519 signer aliases the key pair buffer
				assert.True(t, cryptoutils.IsZero(kp.PrivateKey))
			}
		})
	}
}

func TestPublicKeyRejectsGarbage(t *testing.T) {
	for _, e := range allEngines() {
		_, err := e.PublicKey([]byte{1, 2, 3})
		assert.ErrorIs(t, err, interfaces.ErrInvalidInputLength, e.Name())
	}
}

func TestByName(t *testing.T) {
	for _, name := range Names() {
		e, err := ByName(name)
		require.NoError(t, err)
		assert.Equal(t, name, e.Name())
	}

	e, err := ByName("P-384")
	require.NoError(t, err)
	assert.Equal(t, NameP384, e.Name())

	_, err = ByName("rsa")
	assert.ErrorIs(t, err, interfaces.ErrUnsupportedAlgorithm)
}

func TestExportPrivateKey(t *testing.T) {
	for _, e := range allEngines() {
		t.Run(e.Name(), func(t *testing.T) {
			kp, err := e.DeriveKeyPair(seedFor(e, 9))
			require.NoError(t, err)

			priv, err := ExportPrivateKey(e, kp.PrivateKey)
			require.NoError(t, err)
			if e.Name() == NameEd25519 {
				assert.IsType(t, ed25519.PrivateKey{}, priv)
			}
			signer, ok := priv.(crypto.Signer)
			require.True(t, ok)

			pub, err := e.PublicKey(kp.PublicKey)
			require.NoError(t, err)
			assert.True(t, signer.Public().(interface{ Equal(crypto.PublicKey) bool }).Equal(pub))

			// the export is a copy
			kp.Wipe()
			pem, err := cryptoutils.PrivateKeyPEM(priv)
			require.NoError(t, err)
			assert.NotEmpty(t, pem)
		})
	}
}
