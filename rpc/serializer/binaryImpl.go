package serializer

import (
	"bytes"
	"crypto/rsa"
	"encoding/binary"
	"fmt"

	"github.com/ValentinKolb/pstore/rpc/common"
	"github.com/ValentinKolb/pstore/rpc/crypto"
)

// NewBinarySerializer creates a new serializer for the length prefixed
// little endian wire format
func NewBinarySerializer() IRPCSerializer {
	return &binarySerializerImpl{}
}

// binarySerializerImpl implements IRPCSerializer
type binarySerializerImpl struct {
}

// field bounds, min and max length of each field
type bounds struct {
	name     string
	min, max int
}

var (
	boundsUsername = bounds{"username", 1, common.LenUname}
	boundsPassword = bounds{"password", 1, common.LenPass}
	boundsContent  = bounds{"content", 0, common.LenContent}
	boundsTarget   = bounds{"target", 0, common.LenUname}
)

// --------------------------------------------------------------------------
// Interface Methods (docu see serializer.IRPCSerializer)
// --------------------------------------------------------------------------

func (b binarySerializerImpl) EncodeFields(cmd *common.Command) ([]byte, error) {
	fields, err := b.fields(cmd)
	if err != nil {
		return nil, err
	}

	// Calculate total size needed
	size := 0
	for _, f := range fields {
		size += common.LenLength + len(f)
	}
	result := make([]byte, 0, size)

	for _, f := range fields {
		result = binary.LittleEndian.AppendUint32(result, uint32(len(f)))
		result = append(result, f...)
	}
	return result, nil
}

func (b binarySerializerImpl) DecodeFields(tag common.Tag, data []byte) (*common.Command, error) {
	if !tag.Valid() {
		return nil, fmt.Errorf("%w: %q", common.ErrInvalidCommand, tag)
	}

	cmd := &common.Command{Tag: tag}

	// Initialize read position
	pos := 0

	// readField reads one length prefixed field and checks its bounds
	readField := func(bd bounds) ([]byte, error) {
		if pos+common.LenLength > len(data) {
			return nil, fmt.Errorf("%w: data too short for %s length", common.ErrMsgFmt, bd.name)
		}

		fieldLen := int(binary.LittleEndian.Uint32(data[pos : pos+common.LenLength]))
		pos += common.LenLength

		if fieldLen < bd.min || fieldLen > bd.max {
			return nil, fmt.Errorf("%w: %s length %d out of range [%d, %d]", common.ErrMsgFmt, bd.name, fieldLen, bd.min, bd.max)
		}
		if pos+fieldLen > len(data) {
			return nil, fmt.Errorf("%w: data too short for %s data", common.ErrMsgFmt, bd.name)
		}

		field := make([]byte, fieldLen)
		copy(field, data[pos:pos+fieldLen])
		pos += fieldLen
		return field, nil
	}

	var err error
	if cmd.Username, err = readField(boundsUsername); err != nil {
		return nil, err
	}
	if cmd.Password, err = readField(boundsPassword); err != nil {
		return nil, err
	}

	switch tag {
	case common.TagSET:
		if cmd.Content, err = readField(boundsContent); err != nil {
			return nil, err
		}
	case common.TagGET:
		if cmd.Target, err = readField(boundsTarget); err != nil {
			return nil, err
		}
	}

	if pos != len(data) {
		return nil, fmt.Errorf("%w: %d unexpected trailing bytes", common.ErrMsgFmt, len(data)-pos)
	}
	return cmd, nil
}

func (b binarySerializerImpl) EncodeRequest(pub *rsa.PublicKey, cmd *common.Command) ([]byte, []byte, error) {
	plain, err := b.EncodeFields(cmd)
	if err != nil {
		return nil, nil, err
	}
	return crypto.BuildRequest(pub, cmd.Tag, plain)
}

func (b binarySerializerImpl) DecodeRequest(priv *rsa.PrivateKey, data []byte) (*common.Command, []byte, error) {
	h, plain, err := crypto.OpenRequest(priv, data)
	if err != nil {
		return nil, nil, err
	}

	cmd, err := b.DecodeFields(h.Tag, plain)
	if err != nil {
		return nil, h.Key, err
	}
	return cmd, h.Key, nil
}

func (b binarySerializerImpl) EncodeResponse(key []byte, reply *common.Reply) ([]byte, error) {
	switch reply.Kind {
	case common.ReplyCryptoFailure:
		return []byte(common.CodeErrCrypto), nil
	case common.ReplyPublicKey:
		return reply.Payload, nil
	case common.ReplySealed:
	default:
		return nil, fmt.Errorf("unknown reply kind %d", reply.Kind)
	}

	var plain []byte
	if reply.Code == common.CodeOK && reply.HasPayload {
		plain = make([]byte, 0, len(common.CodeOK)+common.LenLength+len(reply.Payload))
		plain = append(plain, common.CodeOK...)
		plain = binary.LittleEndian.AppendUint32(plain, uint32(len(reply.Payload)))
		plain = append(plain, reply.Payload...)
	} else {
		plain = []byte(reply.Code)
	}

	return crypto.BuildResponse(key, plain)
}

func (b binarySerializerImpl) DecodeResponse(key []byte, data []byte) (*common.Reply, error) {
	// the server had no usable key, the literal arrives unencrypted
	if bytes.Equal(data, []byte(common.CodeErrCrypto)) {
		return common.NewCryptoFailureResponse(), nil
	}

	plain, err := crypto.OpenResponse(key, data)
	if err != nil {
		return nil, err
	}

	okLen := len(common.CodeOK)
	if len(plain) > okLen && bytes.HasPrefix(plain, []byte(common.CodeOK)) {
		if len(plain) < okLen+common.LenLength {
			return nil, fmt.Errorf("%w: data too short for payload length", common.ErrMsgFmt)
		}
		payloadLen := binary.LittleEndian.Uint32(plain[okLen : okLen+common.LenLength])
		payload := plain[okLen+common.LenLength:]
		if uint64(len(payload)) != uint64(payloadLen) {
			return nil, fmt.Errorf("%w: declared payload length %d, got %d bytes", common.ErrMsgFmt, payloadLen, len(payload))
		}
		return common.NewDataResponse(payload), nil
	}

	code, ok := common.ParseResponseCode(plain)
	if !ok {
		return nil, fmt.Errorf("%w: unknown response %q", common.ErrMsgFmt, plain)
	}
	if code == common.CodeOK {
		return common.NewOKResponse(), nil
	}
	return &common.Reply{Kind: common.ReplySealed, Code: code}, nil
}

// --------------------------------------------------------------------------
// Helper Methods
// --------------------------------------------------------------------------

// fields returns the ablock fields of cmd in wire order
func (b binarySerializerImpl) fields(cmd *common.Command) ([][]byte, error) {
	switch {
	case !cmd.Tag.Valid():
		return nil, fmt.Errorf("%w: %q", common.ErrInvalidCommand, cmd.Tag)
	case cmd.Tag == common.TagSET:
		return [][]byte{cmd.Username, cmd.Password, cmd.Content}, nil
	case cmd.Tag == common.TagGET:
		return [][]byte{cmd.Username, cmd.Password, cmd.Target}, nil
	default:
		return [][]byte{cmd.Username, cmd.Password}, nil
	}
}

// Validate checks the field bounds of cmd the same way DecodeFields does,
// so clients can reject requests before sending them.
func Validate(cmd *common.Command) error {
	if !cmd.Tag.Valid() {
		return fmt.Errorf("%w: %q", common.ErrInvalidCommand, cmd.Tag)
	}

	check := func(bd bounds, f []byte) error {
		if len(f) < bd.min || len(f) > bd.max {
			return fmt.Errorf("%w: %s length %d out of range [%d, %d]", common.ErrMsgFmt, bd.name, len(f), bd.min, bd.max)
		}
		return nil
	}

	if err := check(boundsUsername, cmd.Username); err != nil {
		return err
	}
	if err := check(boundsPassword, cmd.Password); err != nil {
		return err
	}
	switch cmd.Tag {
	case common.TagSET:
		return check(boundsContent, cmd.Content)
	case common.TagGET:
		return check(boundsTarget, cmd.Target)
	}
	return nil
}
