package server

import (
	"crypto/rsa"
	"errors"
	"fmt"
	"io"

	"github.com/ValentinKolb/pstore/lib/store"
	"github.com/ValentinKolb/pstore/rpc/common"
	"github.com/ValentinKolb/pstore/rpc/crypto"
	"github.com/ValentinKolb/pstore/rpc/serializer"
)

// ServerContext holds everything a request needs besides the connection.
// It is shared by all connections, only Store is mutable.
type ServerContext struct {
	PrivateKey *rsa.PrivateKey
	PublicKey  []byte // PEM, sent unencrypted to KEY requests
	Store      store.IStore
	DataFile   string // target of SAV
	Serializer serializer.IRPCSerializer
}

// Result describes one finished exchange
type Result struct {
	Tag  common.Tag          // empty if the header could not be read or decrypted
	Code common.ResponseCode // code of the reply that was sent
	Halt bool                // a successful BYE, the server should stop
}

// ServeOneRequest reads one request from conn, executes it against sctx.Store
// and writes the response. Malformed requests are answered with an error code.
// An error is returned only if the connection itself failed: the header could
// not be read completely or the response could not be written.
func ServeOneRequest(conn io.ReadWriter, sctx *ServerContext) (Result, error) {
	x := &exchange{conn: conn, sctx: sctx}
	for state := awaitRequest; state != nil; {
		state = state(x)
	}
	return x.result, x.err
}

// --------------------------------------------------------------------------
// State machine
// --------------------------------------------------------------------------

// exchange is the state of one request/response cycle
type exchange struct {
	conn io.ReadWriter
	sctx *ServerContext

	header crypto.Header // decrypted rblock
	cmd    *common.Command
	reply  *common.Reply

	result Result
	err    error
}

// stateFn is one state of the dispatcher, nil ends the exchange
type stateFn func(x *exchange) stateFn

// awaitRequest reads the fixed size header and branches on the kblock
func awaitRequest(x *exchange) stateFn {
	block := make([]byte, common.LenRKBlock)
	if _, err := io.ReadFull(x.conn, block); err != nil {
		x.err = fmt.Errorf("failed to read request header: %w", err)
		return nil
	}

	if common.IsKeyBlock(block) {
		x.result.Tag = common.TagKEY
		x.reply = common.NewPublicKeyResponse(x.sctx.PublicKey)
		return responding
	}

	header, err := crypto.OpenHeader(x.sctx.PrivateKey, block)
	if err != nil {
		return x.fail(err)
	}
	x.header = header
	x.result.Tag = header.Tag
	return decoding
}

// decoding reads and decrypts the ablock and parses its fields
func decoding(x *exchange) stateFn {
	if x.header.AblockLen > common.MaxAblockLen {
		return x.fail(fmt.Errorf("%w: declared ablock length %d exceeds %d", common.ErrMsgFmt, x.header.AblockLen, common.MaxAblockLen))
	}

	ablock := make([]byte, x.header.AblockLen)
	if _, err := io.ReadFull(x.conn, ablock); err != nil {
		return x.fail(fmt.Errorf("%w: %v", common.ErrXmit, err))
	}

	plain, err := crypto.Open(x.header.Key, ablock)
	if err != nil {
		return x.fail(err)
	}

	cmd, err := x.sctx.Serializer.DecodeFields(x.header.Tag, plain)
	if err != nil {
		return x.fail(err)
	}
	x.cmd = cmd
	return executing
}

// executing runs the command against the store
func executing(x *exchange) stateFn {
	s := x.sctx.Store
	cmd := x.cmd

	var data []byte
	var err error

	switch cmd.Tag {
	case common.TagREG:
		err = s.Register(cmd.Username, cmd.Password)
	case common.TagBYE:
		err = s.Authenticate(cmd.Username, cmd.Password)
		x.result.Halt = err == nil
	case common.TagSAV:
		err = s.Authenticate(cmd.Username, cmd.Password)
		if err == nil {
			err = x.persist()
		}
	case common.TagSET:
		err = s.SetContent(cmd.Username, cmd.Password, cmd.Content)
	case common.TagGET:
		data, err = s.GetContent(cmd.Username, cmd.Password, cmd.Target)
	case common.TagALL:
		data, err = s.ListUsers(cmd.Username, cmd.Password)
	default:
		err = fmt.Errorf("%w: %q", common.ErrInvalidCommand, cmd.Tag)
	}

	switch {
	case err != nil:
		x.logFailure(err)
		x.reply = common.NewErrorResponse(err)
	case cmd.Tag == common.TagGET || cmd.Tag == common.TagALL:
		x.reply = common.NewDataResponse(data)
	default:
		x.reply = common.NewOKResponse()
	}
	return responding
}

// responding encodes and writes the reply
func responding(x *exchange) stateFn {
	x.result.Code = x.reply.Code

	resp, err := x.sctx.Serializer.EncodeResponse(x.header.Key, x.reply)
	if err != nil {
		x.err = fmt.Errorf("failed to encode response: %w", err)
		return nil
	}

	if _, err := x.conn.Write(resp); err != nil {
		x.err = fmt.Errorf("failed to write response: %w", err)
		return nil
	}
	return nil
}

// --------------------------------------------------------------------------
// Helper Methods
// --------------------------------------------------------------------------

// fail answers the request with the code for err
func (x *exchange) fail(err error) stateFn {
	x.logFailure(err)
	x.reply = common.NewErrorResponse(err)
	return responding
}

// persist writes the table to the configured data file
func (x *exchange) persist() error {
	if x.sctx.DataFile == "" {
		return fmt.Errorf("%w: no data file configured", common.ErrServer)
	}
	return x.sctx.Store.Persist(x.sctx.DataFile)
}

// logFailure logs request failures, expected client errors only at debug level
func (x *exchange) logFailure(err error) {
	var storeErr *store.Error
	switch {
	case errors.As(err, &storeErr) && storeErr.Code != store.RetCInternalError:
		Logger.Debugf("%s request rejected: %v", x.header.Tag, err)
	case errors.Is(err, common.ErrServer), errors.As(err, &storeErr):
		Logger.Errorf("%s request failed: %v", x.header.Tag, err)
	default:
		Logger.Warningf("malformed %s request: %v", x.header.Tag, err)
	}
}
