package serializer

import (
	"bytes"
	"encoding/binary"
	"errors"
	"reflect"
	"sync"
	"testing"

	"github.com/ValentinKolb/pstore/rpc/common"
	"github.com/ValentinKolb/pstore/rpc/crypto"
)

var (
	keyOnce sync.Once
	keyPair *crypto.KeyPair
	keyErr  error
)

func testKeyPair(t *testing.T) *crypto.KeyPair {
	t.Helper()
	keyOnce.Do(func() {
		keyPair, keyErr = crypto.GenerateKeyPair()
	})
	if keyErr != nil {
		t.Fatalf("Failed to generate key pair: %v", keyErr)
	}
	return keyPair
}

// testCommands creates one command per encrypted tag
func testCommands() []*common.Command {
	u, p := []byte("alice"), []byte("pw1")
	return []*common.Command{
		common.NewRegRequest(u, p),
		common.NewByeRequest(u, p),
		common.NewSavRequest(u, p),
		common.NewSetRequest(u, p, []byte("hello")),
		common.NewSetRequest(u, p, []byte{}),
		common.NewGetRequest(u, p, []byte("bob")),
		common.NewAllRequest(u, p),
		common.NewRegRequest(bytes.Repeat([]byte("u"), common.LenUname), bytes.Repeat([]byte("p"), common.LenPass)),
	}
}

// normalize turns nil extra fields into empty ones, the decoder always allocates
func normalize(cmd *common.Command) *common.Command {
	c := *cmd
	if c.Tag == common.TagSET && c.Content == nil {
		c.Content = []byte{}
	}
	if c.Tag == common.TagGET && c.Target == nil {
		c.Target = []byte{}
	}
	return &c
}

// field builds a length prefixed field
func field(b []byte) []byte {
	return append(binary.LittleEndian.AppendUint32(nil, uint32(len(b))), b...)
}

// TestFieldsRoundTrip tests that every command survives EncodeFields / DecodeFields
func TestFieldsRoundTrip(t *testing.T) {
	s := NewBinarySerializer()

	for i, cmd := range testCommands() {
		data, err := s.EncodeFields(cmd)
		if err != nil {
			t.Errorf("Failed to encode command %d: %v", i, err)
			continue
		}

		result, err := s.DecodeFields(cmd.Tag, data)
		if err != nil {
			t.Errorf("Failed to decode command %d: %v", i, err)
			continue
		}

		if !reflect.DeepEqual(normalize(cmd), result) {
			t.Errorf("Command %d doesn't match after round trip:\nOriginal: %+v\nResult: %+v", i, cmd, result)
		}
	}
}

// TestFieldLayout checks the exact byte layout of a GET ablock
func TestFieldLayout(t *testing.T) {
	s := NewBinarySerializer()

	data, err := s.EncodeFields(common.NewGetRequest([]byte("ab"), []byte("c"), []byte("de")))
	if err != nil {
		t.Fatalf("Failed to encode: %v", err)
	}

	expected := []byte{2, 0, 0, 0, 'a', 'b', 1, 0, 0, 0, 'c', 2, 0, 0, 0, 'd', 'e'}
	if !bytes.Equal(expected, data) {
		t.Errorf("Expected %v, got %v", expected, data)
	}
}

// TestRequestRoundTrip tests the complete envelope for every command
func TestRequestRoundTrip(t *testing.T) {
	kp := testKeyPair(t)
	s := NewBinarySerializer()

	for i, cmd := range testCommands() {
		env, key, err := s.EncodeRequest(&kp.Private.PublicKey, cmd)
		if err != nil {
			t.Errorf("Failed to encode request %d: %v", i, err)
			continue
		}

		result, serverKey, err := s.DecodeRequest(kp.Private, env)
		if err != nil {
			t.Errorf("Failed to decode request %d: %v", i, err)
			continue
		}

		if !bytes.Equal(key, serverKey) {
			t.Errorf("Request %d: session key mismatch", i)
		}
		if !reflect.DeepEqual(normalize(cmd), result) {
			t.Errorf("Request %d doesn't match after round trip:\nOriginal: %+v\nResult: %+v", i, cmd, result)
		}
	}
}

// TestInvalidFields tests how the decoder handles malformed ablocks
func TestInvalidFields(t *testing.T) {
	s := NewBinarySerializer()

	u := field([]byte("alice"))
	p := field([]byte("pw"))

	testCases := []struct {
		name     string
		tag      common.Tag
		data     []byte
		expected error
	}{
		{
			name:     "Empty data",
			tag:      common.TagREG,
			data:     []byte{},
			expected: common.ErrMsgFmt,
		},
		{
			name:     "Too short length",
			tag:      common.TagREG,
			data:     []byte{5, 0},
			expected: common.ErrMsgFmt,
		},
		{
			name:     "Length overruns buffer",
			tag:      common.TagREG,
			data:     []byte{5, 0, 0, 0, 'a', 'b', 'c'},
			expected: common.ErrMsgFmt,
		},
		{
			name:     "Missing password",
			tag:      common.TagREG,
			data:     u,
			expected: common.ErrMsgFmt,
		},
		{
			name:     "Leftover bytes",
			tag:      common.TagREG,
			data:     append(append(bytes.Clone(u), p...), 0x00),
			expected: common.ErrMsgFmt,
		},
		{
			name:     "Extra field on ALL",
			tag:      common.TagALL,
			data:     append(append(bytes.Clone(u), p...), field([]byte("x"))...),
			expected: common.ErrMsgFmt,
		},
		{
			name:     "Missing content on SET",
			tag:      common.TagSET,
			data:     append(bytes.Clone(u), p...),
			expected: common.ErrMsgFmt,
		},
		{
			name:     "Empty username",
			tag:      common.TagREG,
			data:     append(field(nil), p...),
			expected: common.ErrMsgFmt,
		},
		{
			name:     "Empty password",
			tag:      common.TagREG,
			data:     append(bytes.Clone(u), field(nil)...),
			expected: common.ErrMsgFmt,
		},
		{
			name:     "Username too long",
			tag:      common.TagREG,
			data:     append(field(bytes.Repeat([]byte("u"), common.LenUname+1)), p...),
			expected: common.ErrMsgFmt,
		},
		{
			name:     "Password too long",
			tag:      common.TagREG,
			data:     append(bytes.Clone(u), field(bytes.Repeat([]byte("p"), common.LenPass+1))...),
			expected: common.ErrMsgFmt,
		},
		{
			name:     "Target too long",
			tag:      common.TagGET,
			data:     append(append(bytes.Clone(u), p...), field(bytes.Repeat([]byte("t"), common.LenUname+1))...),
			expected: common.ErrMsgFmt,
		},
		{
			name:     "Unknown tag",
			tag:      common.Tag("XYZ"),
			data:     append(bytes.Clone(u), p...),
			expected: common.ErrInvalidCommand,
		},
		{
			name:     "KEY is not an encrypted command",
			tag:      common.TagKEY,
			data:     append(bytes.Clone(u), p...),
			expected: common.ErrInvalidCommand,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := s.DecodeFields(tc.tag, tc.data)
			if !errors.Is(err, tc.expected) {
				t.Errorf("Expected error %v, got %v", tc.expected, err)
			}
		})
	}
}

// TestUsernameBoundary tests that 64 byte usernames pass and 65 byte usernames fail
func TestUsernameBoundary(t *testing.T) {
	s := NewBinarySerializer()
	p := field([]byte("pw"))

	ok := append(field(bytes.Repeat([]byte("a"), common.LenUname)), p...)
	if _, err := s.DecodeFields(common.TagREG, ok); err != nil {
		t.Errorf("Expected %d byte username to be accepted, got %v", common.LenUname, err)
	}

	tooLong := append(field(bytes.Repeat([]byte("a"), common.LenUname+1)), p...)
	if _, err := s.DecodeFields(common.TagREG, tooLong); !errors.Is(err, common.ErrMsgFmt) {
		t.Errorf("Expected ErrMsgFmt for %d byte username, got %v", common.LenUname+1, err)
	}
}

// TestValidate tests the client side bound check
func TestValidate(t *testing.T) {
	if err := Validate(common.NewSetRequest([]byte("u"), []byte("p"), make([]byte, common.LenContent))); err != nil {
		t.Errorf("Expected maximum content to be valid, got %v", err)
	}
	if err := Validate(common.NewSetRequest([]byte("u"), []byte("p"), make([]byte, common.LenContent+1))); !errors.Is(err, common.ErrMsgFmt) {
		t.Errorf("Expected ErrMsgFmt for oversized content, got %v", err)
	}
	if err := Validate(common.NewAllRequest(nil, []byte("p"))); !errors.Is(err, common.ErrMsgFmt) {
		t.Errorf("Expected ErrMsgFmt for empty username, got %v", err)
	}
	if err := Validate(&common.Command{Tag: common.TagKEY}); !errors.Is(err, common.ErrInvalidCommand) {
		t.Errorf("Expected ErrInvalidCommand for KEY, got %v", err)
	}
}

// TestResponseRoundTrip tests every reply kind
func TestResponseRoundTrip(t *testing.T) {
	s := NewBinarySerializer()
	key, err := crypto.NewSessionKey()
	if err != nil {
		t.Fatalf("Failed to create key: %v", err)
	}

	replies := []*common.Reply{
		common.NewOKResponse(),
		common.NewDataResponse([]byte("hello")),
		common.NewDataResponse([]byte("alice\nbob")),
		common.NewErrorResponse(common.ErrMsgFmt),
		common.NewErrorResponse(common.ErrInvalidCommand),
		common.NewErrorResponse(common.ErrServer),
		{Kind: common.ReplySealed, Code: common.CodeErrNoData},
		common.NewCryptoFailureResponse(),
	}

	for i, reply := range replies {
		data, err := s.EncodeResponse(key, reply)
		if err != nil {
			t.Errorf("Failed to encode reply %d: %v", i, err)
			continue
		}

		result, err := s.DecodeResponse(key, data)
		if err != nil {
			t.Errorf("Failed to decode reply %d: %v", i, err)
			continue
		}

		if result.Kind != reply.Kind || result.Code != reply.Code || !bytes.Equal(result.Payload, reply.Payload) {
			t.Errorf("Reply %d doesn't match after round trip:\nOriginal: %+v\nResult: %+v", i, reply, result)
		}
	}
}

// TestCryptoFailureIsUnencrypted checks the literal ERR_CRYPTO reply
func TestCryptoFailureIsUnencrypted(t *testing.T) {
	s := NewBinarySerializer()

	data, err := s.EncodeResponse(nil, common.NewErrorResponse(common.ErrCrypto))
	if err != nil {
		t.Fatalf("Failed to encode: %v", err)
	}
	if string(data) != "ERR_CRYPTO" {
		t.Errorf("Expected bare ERR_CRYPTO literal, got %q", data)
	}
}

// TestPublicKeyReply checks that KEY replies are sent as is
func TestPublicKeyReply(t *testing.T) {
	s := NewBinarySerializer()
	pub := []byte("-----BEGIN RSA PUBLIC KEY-----")

	data, err := s.EncodeResponse(nil, common.NewPublicKeyResponse(pub))
	if err != nil {
		t.Fatalf("Failed to encode: %v", err)
	}
	if !bytes.Equal(pub, data) {
		t.Errorf("Expected public key bytes, got %q", data)
	}
}

// TestInvalidResponses tests sealed replies with broken framing
func TestInvalidResponses(t *testing.T) {
	s := NewBinarySerializer()
	key, _ := crypto.NewSessionKey()

	seal := func(plain []byte) []byte {
		data, err := crypto.BuildResponse(key, plain)
		if err != nil {
			t.Fatalf("Failed to seal: %v", err)
		}
		return data
	}

	testCases := map[string][]byte{
		"Unknown literal":      seal([]byte("MAYBE")),
		"Short payload length": seal([]byte("OK\x01")),
		"Payload too short":    seal(append([]byte("OK"), 10, 0, 0, 0, 'a')),
		"Payload too long":     seal(append([]byte("OK"), 1, 0, 0, 0, 'a', 'b')),
	}

	for name, data := range testCases {
		t.Run(name, func(t *testing.T) {
			_, err := s.DecodeResponse(key, data)
			if !errors.Is(err, common.ErrMsgFmt) {
				t.Errorf("Expected ErrMsgFmt, got %v", err)
			}
		})
	}

	t.Run("Not decryptable", func(t *testing.T) {
		_, err := s.DecodeResponse(key, []byte("garbage"))
		if !errors.Is(err, common.ErrCrypto) {
			t.Errorf("Expected ErrCrypto, got %v", err)
		}
	})
}
