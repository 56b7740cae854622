// Package server implements the pstore server.
//
// The package focuses on:
//   - Answering exactly one request per connection with a well defined response
//   - Never crashing on malformed, truncated or adversarial input
//   - Tying together key pair, user table, persistence, transport and metrics
//
// Key Components:
//
//   - ServeOneRequest: the dispatcher. A small state machine
//     (awaitRequest -> decoding -> executing -> responding) that reads the
//     256 byte header block, answers KEY requests with the public key, decrypts
//     the rblock and the ablock, runs the command against the store and writes
//     the encrypted response. It works on any io.ReadWriter.
//
//   - NewRPCServer: Factory function creating a configured server with the
//     specified transport and serializer. Serve loads or generates the key pair,
//     restores the user table from the data file and accepts connections until
//     a BYE request succeeds, Close is called or a signal arrives.
//
// Error Handling:
//
//	A header shorter than 256 bytes ends the exchange without a response. When
//	the rblock or the ablock cannot be decrypted the literal ERR_CRYPTO is sent
//	unencrypted. All other failures are answered with an error code encrypted
//	with the request's session key.
//
// Usage Example:
//
//	config := common.ServerConfig{
//		Transport:      common.ServerTransportConfig{Endpoint: "0.0.0.0:8080"},
//		TimeoutSecond:  5,
//		KeyFile:        "server",
//		DataFile:       "pstore.db",
//		SnapshotFormat: common.SnapshotFormatBinFile,
//		LogLevel:       "info",
//	}
//
//	s := server.NewRPCServer(
//		config,
//		tcp.NewTCPServerTransport(),
//		serializer.NewBinarySerializer(),
//	)
//
//	if err := s.Serve(); err != nil {
//		log.Fatalf("Server error: %v", err)
//	}
//
// Thread Safety:
//
//	Connections are served concurrently. The user table is guarded by the
//	store, everything else in ServerContext is read only.
package server
