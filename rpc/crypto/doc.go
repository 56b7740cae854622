// Package crypto implements the two layer encryption envelope of the protocol.
//
// A request consists of an rblock and an ablock. The rblock is the 128 byte
// content tag . aeskey . len(ablock) (zero padded) encrypted with RSA-2048 OAEP
// (SHA-1) under the server's public key, so it is always 256 bytes long. The
// ablock is the command payload encrypted with AES-256-CBC under the session key,
// prefixed with a random IV and PKCS#7 padded. Responses reuse the session key of
// their request with a fresh IV and have no RSA layer.
//
// Every decryption failure returns an error wrapping common.ErrCrypto.
//
// The server's key pair is kept as PKCS#1 PEM files (<base>.pri and <base>.pub),
// LoadOrGenerateKeyPair creates them on first start.
package crypto
