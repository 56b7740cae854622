package common

import (
	"bytes"
)

// --------------------------------------------------------------------------
// Wire Constants
// --------------------------------------------------------------------------

const (
	// LenUname is the maximum length of a user name
	LenUname = 64
	// LenPass is the maximum length of a password
	LenPass = 128
	// LenContent is the maximum length of a user's content field
	LenContent = 1048576
	// LenRKBlock is the length of an rblock or kblock
	LenRKBlock = 256
	// LenRSAPubKey is the length of the PEM encoded RSA public key
	LenRSAPubKey = 426
	// LenRBlockContent is the length of the rblock content before RSA encryption
	LenRBlockContent = 128
	// LenAESKey is the length of the per request AES session key
	LenAESKey = 32
	// LenAESIV is the length of the IV prepended to every AES block
	LenAESIV = 16
	// LenTag is the length of a command tag
	LenTag = 3
	// LenLength is the length of a binary length prefix
	LenLength = 4
)

// MaxAblockLen is the largest encrypted ablock a valid request can produce
// (a SET with maximum sized fields). Requests declaring more are rejected
// before any body bytes are read.
const MaxAblockLen = LenAESIV + (3*LenLength+LenUname+LenPass+LenContent)/16*16 + 16

// --------------------------------------------------------------------------
// Command Tags
// --------------------------------------------------------------------------

// Tag is the 3 byte identifier at the start of every rblock (or the kblock)
type Tag string

const (
	TagKEY Tag = "KEY"
	TagREG Tag = "REG"
	TagBYE Tag = "BYE"
	TagSAV Tag = "SAV"
	TagSET Tag = "SET"
	TagGET Tag = "GET"
	TagALL Tag = "ALL"
)

// Valid reports whether the tag names one of the encrypted commands
func (t Tag) Valid() bool {
	switch t {
	case TagREG, TagBYE, TagSAV, TagSET, TagGET, TagALL:
		return true
	default:
		return false
	}
}

// HasExtraField reports whether the command carries a third length prefixed
// field after the username and password.
func (t Tag) HasExtraField() bool {
	return t == TagSET || t == TagGET
}

// String returns the string representation of a Tag
func (t Tag) String() string {
	return string(t)
}

// KeyBlock returns the unencrypted kblock: "KEY" padded with zeros to LenRKBlock bytes
func KeyBlock() []byte {
	block := make([]byte, LenRKBlock)
	copy(block, TagKEY)
	return block
}

// IsKeyBlock reports whether a header block is the unencrypted kblock
func IsKeyBlock(block []byte) bool {
	return len(block) == LenRKBlock && bytes.Equal(block, KeyBlock())
}

// --------------------------------------------------------------------------
// Command Structure
// --------------------------------------------------------------------------

// Command is a decoded request. Which fields are used depends on the tag.
type Command struct {
	Tag      Tag
	Username []byte // Used for: all encrypted commands
	Password []byte // Used for: all encrypted commands
	Content  []byte // Used for: SET
	Target   []byte // Used for: GET
}

// NewRegRequest creates a new REG request
func NewRegRequest(user, pass []byte) *Command {
	return &Command{Tag: TagREG, Username: user, Password: pass}
}

// NewByeRequest creates a new BYE request
func NewByeRequest(user, pass []byte) *Command {
	return &Command{Tag: TagBYE, Username: user, Password: pass}
}

// NewSavRequest creates a new SAV request
func NewSavRequest(user, pass []byte) *Command {
	return &Command{Tag: TagSAV, Username: user, Password: pass}
}

// NewSetRequest creates a new SET request
func NewSetRequest(user, pass, content []byte) *Command {
	return &Command{Tag: TagSET, Username: user, Password: pass, Content: content}
}

// NewGetRequest creates a new GET request
func NewGetRequest(user, pass, target []byte) *Command {
	return &Command{Tag: TagGET, Username: user, Password: pass, Target: target}
}

// NewAllRequest creates a new ALL request
func NewAllRequest(user, pass []byte) *Command {
	return &Command{Tag: TagALL, Username: user, Password: pass}
}

// --------------------------------------------------------------------------
// Reply Structure
// --------------------------------------------------------------------------

// ReplyKind selects how a reply travels on the wire
type ReplyKind uint8

const (
	// ReplySealed is AES encrypted with the request's session key
	ReplySealed ReplyKind = iota
	// ReplyCryptoFailure is the bare ERR_CRYPTO literal, sent when no trusted session key exists
	ReplyCryptoFailure
	// ReplyPublicKey is the server's PEM public key, sent unencrypted in answer to KEY
	ReplyPublicKey
)

// Reply is a response before encoding or after decoding
type Reply struct {
	Kind    ReplyKind
	Code    ResponseCode
	Payload []byte // Used for: GET and ALL (sealed), KEY (public key)
	// HasPayload marks an OK reply of the form "OK".len(data).data
	HasPayload bool
}

// NewOKResponse creates a success reply without payload
func NewOKResponse() *Reply {
	return &Reply{Kind: ReplySealed, Code: CodeOK}
}

// NewDataResponse creates a success reply carrying data
func NewDataResponse(data []byte) *Reply {
	return &Reply{Kind: ReplySealed, Code: CodeOK, Payload: data, HasPayload: true}
}

// NewErrorResponse creates a reply for err. Crypto failures become the
// unencrypted variant, everything else is sealed.
func NewErrorResponse(err error) *Reply {
	code := CodeFor(err)
	if code == CodeErrCrypto {
		return NewCryptoFailureResponse()
	}
	return &Reply{Kind: ReplySealed, Code: code}
}

// NewCryptoFailureResponse creates the unencrypted ERR_CRYPTO reply
func NewCryptoFailureResponse() *Reply {
	return &Reply{Kind: ReplyCryptoFailure, Code: CodeErrCrypto}
}

// NewPublicKeyResponse creates the reply to a KEY request
func NewPublicKeyResponse(pub []byte) *Reply {
	return &Reply{Kind: ReplyPublicKey, Code: CodeOK, Payload: pub, HasPayload: true}
}

// Err returns the Go error for the reply code, nil for OK
func (r *Reply) Err() error {
	return ErrorFor(r.Code)
}
