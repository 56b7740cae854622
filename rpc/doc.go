// Package rpc provides the communication layer of pstore: the encrypted wire
// protocol, the server that answers it and the client that speaks it.
//
// The package is organized into several subpackages:
//
//   - common: Wire constants, command and reply types, response codes and their
//     mapping to Go errors, configuration structures and logging.
//
//   - crypto: The hybrid envelope. RSA-OAEP for the fixed size header block,
//     AES-256-CBC for the body and the response, key pair handling.
//
//   - serializer: Exact byte layouts of the request fields and responses.
//
//   - transport: Stream transports with pluggable implementations (TCP, Unix
//     sockets). One request and one response per connection.
//
//   - client: The client side of the protocol.
//
//   - server: The request dispatcher and the server tying store, keys and
//     transport together.
package rpc
