package common

import (
	"errors"

	"github.com/ValentinKolb/pstore/lib/store"
)

// ResponseCode is the literal status string at the start of a response plaintext
type ResponseCode string

const (
	CodeOK            ResponseCode = "OK"
	CodeErrUserExists ResponseCode = "ERR_USER_EXISTS"
	CodeErrLogin      ResponseCode = "ERR_LOGIN"
	CodeErrMsgFmt     ResponseCode = "ERR_MSG_FMT"
	CodeErrNoData     ResponseCode = "ERR_NO_DATA"
	CodeErrNoUser     ResponseCode = "ERR_NO_USER"
	CodeErrInvalidCmd ResponseCode = "ERR_INVALID_COMMAND"
	CodeErrXmit       ResponseCode = "ERR_XMIT"
	CodeErrCrypto     ResponseCode = "ERR_CRYPTO"
	CodeErrServer     ResponseCode = "ERR_SERVER"
)

// errorCodes lists every code a server may send besides OK
var errorCodes = []ResponseCode{
	CodeErrUserExists,
	CodeErrLogin,
	CodeErrMsgFmt,
	CodeErrNoData,
	CodeErrNoUser,
	CodeErrInvalidCmd,
	CodeErrXmit,
	CodeErrCrypto,
	CodeErrServer,
}

// Protocol level errors. Storage level errors are *store.Error values.
var (
	ErrCrypto         = errors.New("ERR_CRYPTO: message could not be decrypted")
	ErrMsgFmt         = errors.New("ERR_MSG_FMT: message is improperly formatted")
	ErrInvalidCommand = errors.New("ERR_INVALID_COMMAND: unknown command")
	ErrXmit           = errors.New("ERR_XMIT: fewer bytes than declared were transmitted")
	ErrServer         = errors.New("ERR_SERVER: internal server error")
)

// ParseResponseCode returns the code for a literal, ok is false for unknown literals
func ParseResponseCode(b []byte) (ResponseCode, bool) {
	s := ResponseCode(b)
	if s == CodeOK {
		return s, true
	}
	for _, c := range errorCodes {
		if s == c {
			return s, true
		}
	}
	return "", false
}

// CodeFor maps an error to the wire code sent to the peer
func CodeFor(err error) ResponseCode {
	if err == nil {
		return CodeOK
	}

	var storeErr *store.Error
	if errors.As(err, &storeErr) {
		switch storeErr.Code {
		case store.RetCUserExists:
			return CodeErrUserExists
		case store.RetCLogin:
			return CodeErrLogin
		case store.RetCNoUser:
			return CodeErrNoUser
		case store.RetCNoData:
			return CodeErrNoData
		default:
			return CodeErrServer
		}
	}

	switch {
	case errors.Is(err, ErrCrypto):
		return CodeErrCrypto
	case errors.Is(err, ErrMsgFmt):
		return CodeErrMsgFmt
	case errors.Is(err, ErrInvalidCommand):
		return CodeErrInvalidCmd
	case errors.Is(err, ErrXmit):
		return CodeErrXmit
	default:
		return CodeErrServer
	}
}

// ErrorFor maps a wire code back to an error, nil for OK
func ErrorFor(code ResponseCode) error {
	switch code {
	case CodeOK:
		return nil
	case CodeErrUserExists:
		return store.ErrUserExists
	case CodeErrLogin:
		return store.ErrLogin
	case CodeErrNoUser:
		return store.ErrNoUser
	case CodeErrNoData:
		return store.ErrNoData
	case CodeErrMsgFmt:
		return ErrMsgFmt
	case CodeErrInvalidCmd:
		return ErrInvalidCommand
	case CodeErrXmit:
		return ErrXmit
	case CodeErrCrypto:
		return ErrCrypto
	default:
		return ErrServer
	}
}
