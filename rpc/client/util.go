package client

import (
	"crypto/rsa"
	"fmt"

	"github.com/ValentinKolb/pstore/rpc/common"
	"github.com/ValentinKolb/pstore/rpc/serializer"
	"github.com/ValentinKolb/pstore/rpc/transport"
	"github.com/lni/dragonboat/v4/logger"
)

var (
	Logger = logger.GetLogger("client")
)

// rpcClientAdapter stores everything a client needs to reach the server
type rpcClientAdapter struct {
	config     common.ClientConfig
	transport  transport.IRPCClientTransport
	serializer serializer.IRPCSerializer
}

// invokeRPCRequest encrypts req for pub, sends it and decodes the response.
// Error codes sent by the server are returned as errors, see common.ErrorFor.
func invokeRPCRequest(pub *rsa.PublicKey, req *common.Command, transport transport.IRPCClientTransport, serializer serializer.IRPCSerializer) (*common.Reply, error) {
	// Encrypt the request
	reqBytes, key, err := serializer.EncodeRequest(pub, req)
	if err != nil {
		return nil, err
	}

	// Send it
	respBytes, err := transport.Send(reqBytes)
	if err != nil {
		return nil, err
	}

	// Decrypt the response
	resp, err := serializer.DecodeResponse(key, respBytes)
	if err != nil {
		return nil, fmt.Errorf("invalid %s response: %w", req.Tag, err)
	}

	// Check the kind of the response
	if resp.Kind == common.ReplyPublicKey {
		return nil, fmt.Errorf("unexpected public key in %s response", req.Tag)
	}

	if err := resp.Err(); err != nil {
		return nil, err
	}
	return resp, nil
}
