package serializer

import (
	"crypto/rsa"

	"github.com/ValentinKolb/pstore/rpc/common"
)

// IRPCSerializer maps commands and replies to their exact wire layout.
// It owns the field framing, the encryption itself is delegated to the crypto package.
type IRPCSerializer interface {
	// EncodeFields serializes the plaintext ablock of a command: len(u).u.len(p).p[.len(x).x]
	EncodeFields(cmd *common.Command) ([]byte, error)
	// DecodeFields parses a plaintext ablock for the given tag.
	// It returns an error wrapping common.ErrInvalidCommand for unknown tags and
	// common.ErrMsgFmt for any framing or bounds violation.
	DecodeFields(tag common.Tag, plain []byte) (*common.Command, error)

	// EncodeRequest builds rblock . ablock for cmd and returns the session key
	// needed to open the response.
	EncodeRequest(pub *rsa.PublicKey, cmd *common.Command) (envelope []byte, key []byte, err error)
	// DecodeRequest opens a complete envelope held in memory and parses its fields.
	DecodeRequest(priv *rsa.PrivateKey, data []byte) (cmd *common.Command, key []byte, err error)

	// EncodeResponse returns the bytes sent for reply. Sealed replies are
	// encrypted with key, the other kinds are sent as is.
	EncodeResponse(key []byte, reply *common.Reply) ([]byte, error)
	// DecodeResponse is the inverse of EncodeResponse for replies to encrypted
	// commands. The unencrypted ERR_CRYPTO literal is recognized before decryption.
	DecodeResponse(key []byte, data []byte) (*common.Reply, error)
}
