package client

import (
	"crypto/rsa"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"sync"

	"github.com/ValentinKolb/pstore/rpc/common"
	"github.com/ValentinKolb/pstore/rpc/crypto"
	"github.com/ValentinKolb/pstore/rpc/serializer"
	"github.com/ValentinKolb/pstore/rpc/transport"
)

// NewRPCClient creates a new profile store client
// The function takes a config, a transport and a serializer as parameters
// If config.KeyFile names an existing file, the server key is loaded from it,
// otherwise the key is fetched with the first request that needs it.
func NewRPCClient(
	config common.ClientConfig,
	transport transport.IRPCClientTransport,
	serializer serializer.IRPCSerializer,
) (*Client, error) {

	// Connect the transport
	if err := transport.Connect(config); err != nil {
		return nil, err
	}

	c := &Client{
		rpcClientAdapter: rpcClientAdapter{
			config:     config,
			transport:  transport,
			serializer: serializer,
		},
	}

	if config.KeyFile != "" {
		data, err := os.ReadFile(config.KeyFile)
		switch {
		case err == nil:
			if err := c.UsePublicKey(data); err != nil {
				return nil, fmt.Errorf("invalid key file %s: %w", config.KeyFile, err)
			}
			Logger.Debugf("Loaded server key from %s", config.KeyFile)
		case errors.Is(err, fs.ErrNotExist):
		default:
			return nil, fmt.Errorf("failed to read key file: %w", err)
		}
	}

	return c, nil
}

// Client sends requests to a profile server. Every request uses its own
// connection and session key, a Client is safe for concurrent use.
type Client struct {
	rpcClientAdapter

	mu  sync.Mutex
	pub *rsa.PublicKey
}

// --------------------------------------------------------------------------
// Server Key
// --------------------------------------------------------------------------

// FetchKey requests the server's public key, uses it for further requests and
// writes it to the configured key file. The PEM bytes are returned.
func (c *Client) FetchKey() ([]byte, error) {
	resp, err := c.transport.Send(common.KeyBlock())
	if err != nil {
		return nil, err
	}

	// the key is the only unencrypted answer besides the crypto failure literal
	if code, ok := common.ParseResponseCode(resp); ok {
		return nil, fmt.Errorf("unexpected answer to KEY request: %w", common.ErrorFor(code))
	}
	if len(resp) != common.LenRSAPubKey {
		return nil, fmt.Errorf("%w: public key has %d bytes, expected %d", common.ErrMsgFmt, len(resp), common.LenRSAPubKey)
	}

	if err := c.UsePublicKey(resp); err != nil {
		return nil, err
	}

	if c.config.KeyFile != "" {
		if err := os.WriteFile(c.config.KeyFile, resp, 0600); err != nil {
			return nil, fmt.Errorf("failed to write key file: %w", err)
		}
		Logger.Debugf("Stored server key in %s", c.config.KeyFile)
	}
	return resp, nil
}

// UsePublicKey sets the PEM encoded server key used to encrypt requests
func (c *Client) UsePublicKey(pemData []byte) error {
	pub, err := crypto.ParsePublicKeyPEM(pemData)
	if err != nil {
		return err
	}

	c.mu.Lock()
	c.pub = pub
	c.mu.Unlock()
	return nil
}

// publicKey returns the server key, fetching it if none is known yet
func (c *Client) publicKey() (*rsa.PublicKey, error) {
	c.mu.Lock()
	pub := c.pub
	c.mu.Unlock()
	if pub != nil {
		return pub, nil
	}

	Logger.Debugf("No server key known, fetching it")
	if _, err := c.FetchKey(); err != nil {
		return nil, fmt.Errorf("failed to fetch server key: %w", err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	return c.pub, nil
}

// --------------------------------------------------------------------------
// Commands
// --------------------------------------------------------------------------

// Register creates a new account
func (c *Client) Register(user, pass []byte) error {
	_, err := c.invoke(common.NewRegRequest(user, pass))
	return err
}

// Bye asks the server to shut down
func (c *Client) Bye(user, pass []byte) error {
	_, err := c.invoke(common.NewByeRequest(user, pass))
	return err
}

// Save asks the server to write its table to disk
func (c *Client) Save(user, pass []byte) error {
	_, err := c.invoke(common.NewSavRequest(user, pass))
	return err
}

// SetContent replaces the content of the authenticated user
func (c *Client) SetContent(user, pass, content []byte) error {
	_, err := c.invoke(common.NewSetRequest(user, pass, content))
	return err
}

// GetContent returns the content of target
func (c *Client) GetContent(user, pass, target []byte) ([]byte, error) {
	reply, err := c.invoke(common.NewGetRequest(user, pass, target))
	if err != nil {
		return nil, err
	}
	return reply.Payload, nil
}

// ListUsers returns all usernames separated by '\n' in registration order
func (c *Client) ListUsers(user, pass []byte) ([]byte, error) {
	reply, err := c.invoke(common.NewAllRequest(user, pass))
	if err != nil {
		return nil, err
	}
	return reply.Payload, nil
}

// Close releases the transport
func (c *Client) Close() error {
	return c.transport.Close()
}

// invoke validates cmd and sends it encrypted with the server key
func (c *Client) invoke(cmd *common.Command) (*common.Reply, error) {
	if err := serializer.Validate(cmd); err != nil {
		return nil, err
	}

	pub, err := c.publicKey()
	if err != nil {
		return nil, err
	}
	return invokeRPCRequest(pub, cmd, c.transport, c.serializer)
}
