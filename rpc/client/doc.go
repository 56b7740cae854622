// Package client implements the client side of the profile store protocol.
//
// A Client builds the same envelopes the server decodes: every request gets a
// fresh AES session key, the rblock is encrypted with the server's RSA key and
// the response is opened with the session key again.
//
// Key Components:
//
//   - NewRPCClient: Factory function that creates a Client on top of a transport
//     and a serializer. If the configured key file exists, the server key is
//     loaded from it.
//
//   - Client.FetchKey: sends the unencrypted KEY request and stores the returned
//     PEM key in the key file. Commands fetch the key on their own if none is
//     known yet.
//
//   - Register, Bye, Save, SetContent, GetContent, ListUsers: one method per
//     protocol command. Error codes sent by the server are returned as errors
//     that match the store sentinels (store.ErrLogin, ...) or the protocol
//     sentinels (common.ErrCrypto, ...) with errors.Is.
//
// Usage Example:
//
//	config := common.ClientConfig{
//		TimeoutSecond: 5,
//		Transport:     common.ClientTransportConfig{Endpoint: "localhost:8080", RetryCount: 3},
//		KeyFile:       "server.pub",
//	}
//
//	c, _ := client.NewRPCClient(config, tcp.NewTCPClientTransport(), serializer.NewBinarySerializer())
//	_ = c.Register([]byte("alice"), []byte("secret"))
//	_ = c.SetContent([]byte("alice"), []byte("secret"), []byte("hello"))
//	data, err := c.GetContent([]byte("alice"), []byte("secret"), []byte("alice"))
//
// Thread Safety:
//
//	A Client is safe for concurrent use, every request opens its own connection.
package client
