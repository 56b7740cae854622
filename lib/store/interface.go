package store

import (
	"fmt"

	"github.com/ValentinKolb/pstore/lib/db"
)

// --------------------------------------------------------------------------
// Interface Definition
// --------------------------------------------------------------------------

// DBFactory is a function type that creates a new snapshot engine used by the store.
// This is used to abstract the on-disk format from the store implementation.
type DBFactory func() db.ISnapshotDB

// IStore is the interface of the authenticated profile table.
// Every operation that takes a username and password first authenticates the
// caller and fails with ErrLogin if the user is unknown or the password is wrong.
// All methods return *Error values for domain failures (nil on success).
type IStore interface {
	// Register adds a new user without content. Fails with ErrUserExists if the username is taken.
	Register(username, password []byte) (err error)
	// Authenticate checks the credentials of a user.
	Authenticate(username, password []byte) (err error)
	// SetContent replaces the content of the caller. An empty data slice clears the content.
	SetContent(username, password, data []byte) (err error)
	// GetContent returns the content of the target user.
	// Fails with ErrNoUser if the target is unknown and with ErrNoData if the target has no content.
	GetContent(username, password, target []byte) (data []byte, err error)
	// ListUsers returns all usernames joined by '\n' in registration order, without a trailing newline.
	ListUsers(username, password []byte) (list []byte, err error)
	// Persist writes the complete table to path, replacing the previous file atomically.
	Persist(path string) (err error)
	// Load replaces the table with the snapshot stored at path.
	// A missing file returns an error wrapping fs.ErrNotExist and leaves the table untouched.
	Load(path string) (err error)
	// Len returns the number of registered users.
	Len() int
}

// --------------------------------------------------------------------------
// Custom Error Type
// --------------------------------------------------------------------------

// Error is a custom error type that wraps a return code (of type RetCode)
// and an error message.
type Error struct {
	Code RetCode // The return code
	Msg  string  // The error message.
}

// Error implements the error interface.
func (e *Error) Error() string {
	return fmt.Sprintf("StoreError (code %s): %s", e.Code, e.Msg)
}

// Is reports whether target is a *Error with the same code,
// so errors.Is(err, store.ErrLogin) matches any login failure.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Code == t.Code
}

// NewError creates a new StoreError with the given code and message.
func NewError(code RetCode, msg string) *Error {
	return &Error{
		Code: code,
		Msg:  msg,
	}
}

// Sentinel errors for errors.Is comparisons
var (
	ErrUserExists = NewError(RetCUserExists, "user already exists")
	ErrLogin      = NewError(RetCLogin, "invalid username or password")
	ErrNoUser     = NewError(RetCNoUser, "no such user")
	ErrNoData     = NewError(RetCNoData, "user has no data")
)

// --------------------------------------------------------------------------
// Return Codes
// --------------------------------------------------------------------------

type RetCode uint64

const (
	RetCSuccess       RetCode = iota // 0: Command executed successfully.
	RetCInternalError                // 1: Command failed due to an internal error.
	RetCUserExists                   // 2: Username is already registered.
	RetCLogin                        // 3: Unknown user or wrong password.
	RetCNoUser                       // 4: Target user does not exist.
	RetCNoData                       // 5: Target user has no content.
)

// String returns the name of the return code
func (c RetCode) String() string {
	switch c {
	case RetCSuccess:
		return "Success"
	case RetCInternalError:
		return "InternalError"
	case RetCUserExists:
		return "UserExists"
	case RetCLogin:
		return "Login"
	case RetCNoUser:
		return "NoUser"
	case RetCNoData:
		return "NoData"
	default:
		return "Unknown"
	}
}
