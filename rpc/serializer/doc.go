// Package serializer maps the protocol's commands and replies to their exact
// byte layout.
//
// The package focuses on:
//   - Field framing of the plaintext ablock: len(u).u.len(p).p[.len(x).x] with
//     4 byte little endian lengths
//   - Strict decoding: fields are read in order, every length is checked against
//     its bound and the remaining buffer, leftover bytes are an error
//   - Response framing: "OK", "OK".len(data).data or the literal error code
//
// Key Components:
//
//   - IRPCSerializer: Core interface shared by client and server.
//
//   - binarySerializerImpl: the only implementation. It delegates encryption to
//     the crypto package and never touches the network.
//
// Errors:
//
//	Decoding errors wrap common.ErrMsgFmt (framing), common.ErrInvalidCommand
//	(unknown tag) or common.ErrCrypto (envelope could not be opened), so callers
//	can map them to wire codes with common.CodeFor.
//
// Thread Safety:
//
//	The serializer is stateless and safe for concurrent use.
//
// Usage:
//
//	s := serializer.NewBinarySerializer()
//	env, key, err := s.EncodeRequest(pub, common.NewAllRequest(user, pass))
//	// ... send env, read response ...
//	reply, err := s.DecodeResponse(key, response)
package serializer
