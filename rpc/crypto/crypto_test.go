package crypto

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/ValentinKolb/pstore/rpc/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	testKeyOnce sync.Once
	testKey     *KeyPair
	testKeyErr  error
)

// sharedKeyPair generates one key pair for all tests of the package
func sharedKeyPair(t *testing.T) *KeyPair {
	t.Helper()
	testKeyOnce.Do(func() {
		testKey, testKeyErr = GenerateKeyPair()
	})
	require.NoError(t, testKeyErr)
	return testKey
}

func TestSealOpen(t *testing.T) {
	key, err := NewSessionKey()
	require.NoError(t, err)

	for _, size := range []int{0, 1, 15, 16, 17, 1000, common.LenContent} {
		plain := bytes.Repeat([]byte{0x5A}, size)

		sealed, err := Seal(key, plain)
		require.NoError(t, err)
		assert.Equal(t, SealedLen(size), len(sealed))

		opened, err := Open(key, sealed)
		require.NoError(t, err)
		assert.True(t, bytes.Equal(plain, opened), "size %d", size)
	}
}

func TestSealUsesFreshIV(t *testing.T) {
	key, err := NewSessionKey()
	require.NoError(t, err)

	a, err := Seal(key, []byte("OK"))
	require.NoError(t, err)
	b, err := Seal(key, []byte("OK"))
	require.NoError(t, err)

	assert.NotEqual(t, a, b)
}

func TestOpenRejectsMalformed(t *testing.T) {
	key, err := NewSessionKey()
	require.NoError(t, err)
	other, err := NewSessionKey()
	require.NoError(t, err)

	sealed, err := Seal(key, []byte("hello world"))
	require.NoError(t, err)

	cases := map[string][]byte{
		"empty":      {},
		"only IV":    sealed[:common.LenAESIV],
		"misaligned": sealed[:len(sealed)-1],
	}
	for name, data := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Open(key, data)
			assert.ErrorIs(t, err, common.ErrCrypto)
		})
	}

	t.Run("bad key length", func(t *testing.T) {
		_, err := Open([]byte("short"), sealed)
		assert.ErrorIs(t, err, common.ErrCrypto)
	})

	t.Run("wrong key", func(t *testing.T) {
		// a wrong key yields garbage, which is rejected unless the padding happens to be valid
		opened, err := Open(other, sealed)
		if err == nil {
			assert.NotEqual(t, []byte("hello world"), opened)
		} else {
			assert.ErrorIs(t, err, common.ErrCrypto)
		}
	})
}

func TestHeaderRoundTrip(t *testing.T) {
	kp := sharedKeyPair(t)
	key, err := NewSessionKey()
	require.NoError(t, err)

	rblock, err := SealHeader(&kp.Private.PublicKey, Header{Tag: common.TagSET, Key: key, AblockLen: 1234})
	require.NoError(t, err)
	assert.Len(t, rblock, common.LenRKBlock)

	h, err := OpenHeader(kp.Private, rblock)
	require.NoError(t, err)
	assert.Equal(t, common.TagSET, h.Tag)
	assert.Equal(t, key, h.Key)
	assert.Equal(t, uint32(1234), h.AblockLen)
}

func TestHeaderKeepsUnknownTag(t *testing.T) {
	kp := sharedKeyPair(t)
	key, err := NewSessionKey()
	require.NoError(t, err)

	rblock, err := SealHeader(&kp.Private.PublicKey, Header{Tag: "XYZ", Key: key})
	require.NoError(t, err)

	h, err := OpenHeader(kp.Private, rblock)
	require.NoError(t, err)
	assert.Equal(t, common.Tag("XYZ"), h.Tag)
	assert.False(t, h.Tag.Valid())
}

func TestRequestRoundTrip(t *testing.T) {
	kp := sharedKeyPair(t)
	payload := []byte("payload bytes")

	env, key, err := BuildRequest(&kp.Private.PublicKey, common.TagREG, payload)
	require.NoError(t, err)
	assert.Len(t, key, common.LenAESKey)
	assert.Equal(t, common.LenRKBlock+SealedLen(len(payload)), len(env))

	h, plain, err := OpenRequest(kp.Private, env)
	require.NoError(t, err)
	assert.Equal(t, common.TagREG, h.Tag)
	assert.Equal(t, key, h.Key)
	assert.Equal(t, payload, plain)

	// every request gets its own session key
	_, key2, err := BuildRequest(&kp.Private.PublicKey, common.TagREG, payload)
	require.NoError(t, err)
	assert.NotEqual(t, key, key2)
}

func TestOpenRequestFailures(t *testing.T) {
	kp := sharedKeyPair(t)

	env, _, err := BuildRequest(&kp.Private.PublicKey, common.TagALL, []byte("data"))
	require.NoError(t, err)

	t.Run("tampered rblock", func(t *testing.T) {
		tampered := bytes.Clone(env)
		tampered[100] ^= 0xFF
		_, _, err := OpenRequest(kp.Private, tampered)
		assert.ErrorIs(t, err, common.ErrCrypto)
	})

	t.Run("truncated ablock", func(t *testing.T) {
		_, _, err := OpenRequest(kp.Private, env[:len(env)-16])
		assert.ErrorIs(t, err, common.ErrCrypto)
	})

	t.Run("extra bytes", func(t *testing.T) {
		_, _, err := OpenRequest(kp.Private, append(bytes.Clone(env), 0x00))
		assert.ErrorIs(t, err, common.ErrCrypto)
	})

	t.Run("short envelope", func(t *testing.T) {
		_, _, err := OpenRequest(kp.Private, env[:100])
		assert.ErrorIs(t, err, common.ErrCrypto)
	})

	t.Run("other key pair", func(t *testing.T) {
		other, err := GenerateKeyPair()
		require.NoError(t, err)
		_, _, err = OpenRequest(other.Private, env)
		assert.ErrorIs(t, err, common.ErrCrypto)
	})
}

func TestResponseRoundTrip(t *testing.T) {
	key, err := NewSessionKey()
	require.NoError(t, err)

	sealed, err := BuildResponse(key, []byte("OK"))
	require.NoError(t, err)

	plain, err := OpenResponse(key, sealed)
	require.NoError(t, err)
	assert.Equal(t, []byte("OK"), plain)
}

func TestPublicKeyPEM(t *testing.T) {
	kp := sharedKeyPair(t)

	assert.Len(t, kp.PublicPEM, common.LenRSAPubKey)

	pub, err := ParsePublicKeyPEM(kp.PublicPEM)
	require.NoError(t, err)
	assert.True(t, pub.Equal(&kp.Private.PublicKey))

	_, err = ParsePublicKeyPEM([]byte("not a key"))
	assert.Error(t, err)
}

func TestLoadOrGenerateKeyPair(t *testing.T) {
	base := filepath.Join(t.TempDir(), "server")

	first, err := LoadOrGenerateKeyPair(base)
	require.NoError(t, err)

	for _, suffix := range []string{suffixPrivate, suffixPublic} {
		info, err := os.Stat(base + suffix)
		require.NoError(t, err)
		assert.Equal(t, os.FileMode(0600), info.Mode().Perm())
	}

	pubFile, err := os.ReadFile(base + suffixPublic)
	require.NoError(t, err)
	assert.Equal(t, first.PublicPEM, pubFile)

	// second call loads the same key
	second, err := LoadOrGenerateKeyPair(base)
	require.NoError(t, err)
	assert.True(t, first.Private.Equal(second.Private))
	assert.Equal(t, first.PublicPEM, second.PublicPEM)
}

func TestLoadOrGenerateKeyPairInvalidFile(t *testing.T) {
	base := filepath.Join(t.TempDir(), "server")
	require.NoError(t, os.WriteFile(base+suffixPrivate, []byte("garbage"), 0600))

	_, err := LoadOrGenerateKeyPair(base)
	require.Error(t, err)
	assert.False(t, errors.Is(err, os.ErrNotExist))
}
