// Package common holds the definitions shared by the client and the server side
// of the profile store protocol.
//
// The package focuses on:
//   - Wire constants (block sizes and field bounds)
//   - The command tags and the decoded Command / Reply structures
//   - The response codes and their mapping to and from Go errors
//   - Server and client configuration structs
//   - Logger setup on top of dragonboat's logger package
//
// Every request starts with a LenRKBlock sized header. For the KEY request this
// is the literal "KEY" padded with zeros (the kblock), for all other requests it
// is an RSA encrypted block (the rblock) that carries the command tag, the AES
// session key and the length of the AES encrypted body (the ablock):
//
//	rblock = enc(pubkey, tag . aeskey . len(ablock))
//	ablock = enc(aeskey, len(u).u.len(p).p[.len(x).x])
//
// All lengths are 4 byte little endian integers.
package common
