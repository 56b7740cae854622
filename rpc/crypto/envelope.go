package crypto

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha1"
	"encoding/binary"
	"fmt"

	"github.com/ValentinKolb/pstore/rpc/common"
)

// offsets inside the rblock content
const (
	offTag = 0
	offKey = offTag + common.LenTag
	offLen = offKey + common.LenAESKey
	offEnd = offLen + common.LenLength
)

// Header is the decrypted content of an rblock
type Header struct {
	Tag       common.Tag
	Key       []byte
	AblockLen uint32
}

// --------------------------------------------------------------------------
// rblock
// --------------------------------------------------------------------------

// SealHeader builds the rblock: tag . key . len(ablock) zero padded to
// LenRBlockContent bytes and encrypted with RSA-OAEP under pub.
func SealHeader(pub *rsa.PublicKey, h Header) ([]byte, error) {
	if pub.Size() != common.LenRKBlock {
		return nil, fmt.Errorf("RSA key must be %d bits, got %d", common.LenRKBlock*8, pub.Size()*8)
	}
	if len(h.Tag) != common.LenTag {
		return nil, fmt.Errorf("invalid tag %q", h.Tag)
	}
	if len(h.Key) != common.LenAESKey {
		return nil, fmt.Errorf("invalid session key length %d", len(h.Key))
	}

	plain := make([]byte, common.LenRBlockContent)
	copy(plain[offTag:], h.Tag)
	copy(plain[offKey:], h.Key)
	binary.LittleEndian.PutUint32(plain[offLen:], h.AblockLen)

	rblock, err := rsa.EncryptOAEP(sha1.New(), rand.Reader, pub, plain, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to encrypt rblock: %w", err)
	}
	return rblock, nil
}

// OpenHeader decrypts an rblock. The tag is returned as found, unknown tags
// are left to the caller. Any decryption failure wraps common.ErrCrypto.
func OpenHeader(priv *rsa.PrivateKey, rblock []byte) (Header, error) {
	if len(rblock) != common.LenRKBlock {
		return Header{}, fmt.Errorf("%w: rblock must be %d bytes, got %d", common.ErrCrypto, common.LenRKBlock, len(rblock))
	}

	plain, err := rsa.DecryptOAEP(sha1.New(), nil, priv, rblock, nil)
	if err != nil {
		return Header{}, fmt.Errorf("%w: %v", common.ErrCrypto, err)
	}
	if len(plain) != common.LenRBlockContent {
		return Header{}, fmt.Errorf("%w: rblock content must be %d bytes, got %d", common.ErrCrypto, common.LenRBlockContent, len(plain))
	}

	key := make([]byte, common.LenAESKey)
	copy(key, plain[offKey:offLen])

	return Header{
		Tag:       common.Tag(plain[offTag:offKey]),
		Key:       key,
		AblockLen: binary.LittleEndian.Uint32(plain[offLen:offEnd]),
	}, nil
}

// --------------------------------------------------------------------------
// Complete envelopes
// --------------------------------------------------------------------------

// BuildRequest seals payload under a fresh session key and returns
// rblock . ablock together with that key, which the caller needs to open the response.
func BuildRequest(pub *rsa.PublicKey, tag common.Tag, payload []byte) (envelope []byte, key []byte, err error) {
	key, err = NewSessionKey()
	if err != nil {
		return nil, nil, err
	}

	ablock, err := Seal(key, payload)
	if err != nil {
		return nil, nil, err
	}

	rblock, err := SealHeader(pub, Header{Tag: tag, Key: key, AblockLen: uint32(len(ablock))})
	if err != nil {
		return nil, nil, err
	}

	envelope = make([]byte, 0, len(rblock)+len(ablock))
	envelope = append(envelope, rblock...)
	envelope = append(envelope, ablock...)
	return envelope, key, nil
}

// OpenRequest opens a complete rblock . ablock envelope held in memory.
// The declared ablock length must match the remaining bytes exactly.
func OpenRequest(priv *rsa.PrivateKey, data []byte) (Header, []byte, error) {
	if len(data) < common.LenRKBlock {
		return Header{}, nil, fmt.Errorf("%w: envelope shorter than rblock", common.ErrCrypto)
	}

	h, err := OpenHeader(priv, data[:common.LenRKBlock])
	if err != nil {
		return Header{}, nil, err
	}

	ablock := data[common.LenRKBlock:]
	if uint64(len(ablock)) != uint64(h.AblockLen) {
		return Header{}, nil, fmt.Errorf("%w: declared ablock length %d, got %d bytes", common.ErrCrypto, h.AblockLen, len(ablock))
	}

	plain, err := Open(h.Key, ablock)
	if err != nil {
		return Header{}, nil, err
	}
	return h, plain, nil
}

// BuildResponse seals a response payload with the request's session key
func BuildResponse(key, payload []byte) ([]byte, error) {
	return Seal(key, payload)
}

// OpenResponse opens a sealed response payload
func OpenResponse(key, data []byte) ([]byte, error) {
	return Open(key, data)
}
