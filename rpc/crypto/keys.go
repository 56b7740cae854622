package crypto

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/ValentinKolb/pstore/rpc/common"
	"github.com/lni/dragonboat/v4/logger"
)

var Logger = logger.GetLogger("crypto")

const (
	// KeyBits is the size of the server's RSA key, it fixes the rblock size
	KeyBits = common.LenRKBlock * 8

	pemTypePrivate = "RSA PRIVATE KEY"
	pemTypePublic  = "RSA PUBLIC KEY"

	suffixPrivate = ".pri"
	suffixPublic  = ".pub"
)

// KeyPair is the server's RSA key pair, PublicPEM is what KEY requests receive
type KeyPair struct {
	Private   *rsa.PrivateKey
	PublicPEM []byte
}

// GenerateKeyPair creates a new KeyBits sized key pair in memory
func GenerateKeyPair() (*KeyPair, error) {
	priv, err := rsa.GenerateKey(rand.Reader, KeyBits)
	if err != nil {
		return nil, fmt.Errorf("failed to generate RSA key: %w", err)
	}
	return &KeyPair{Private: priv, PublicPEM: MarshalPublicKeyPEM(&priv.PublicKey)}, nil
}

// LoadOrGenerateKeyPair reads <base>.pri, or creates <base>.pri and <base>.pub
// if no private key exists yet. Both files are written with mode 0600.
func LoadOrGenerateKeyPair(base string) (*KeyPair, error) {
	privPath := base + suffixPrivate
	pubPath := base + suffixPublic

	data, err := os.ReadFile(privPath)
	switch {
	case err == nil:
		priv, err := parsePrivateKeyPEM(data)
		if err != nil {
			return nil, fmt.Errorf("invalid private key %s: %w", privPath, err)
		}
		Logger.Infof("loaded RSA key pair from %s", privPath)
		return &KeyPair{Private: priv, PublicPEM: MarshalPublicKeyPEM(&priv.PublicKey)}, nil

	case errors.Is(err, fs.ErrNotExist):
		kp, err := GenerateKeyPair()
		if err != nil {
			return nil, err
		}
		privPEM := pem.EncodeToMemory(&pem.Block{Type: pemTypePrivate, Bytes: x509.MarshalPKCS1PrivateKey(kp.Private)})
		if err := os.WriteFile(privPath, privPEM, 0600); err != nil {
			return nil, fmt.Errorf("failed to write private key: %w", err)
		}
		if err := os.WriteFile(pubPath, kp.PublicPEM, 0600); err != nil {
			return nil, fmt.Errorf("failed to write public key: %w", err)
		}
		Logger.Infof("generated new RSA key pair %s / %s", privPath, pubPath)
		return kp, nil

	default:
		return nil, fmt.Errorf("failed to read private key: %w", err)
	}
}

// MarshalPublicKeyPEM encodes pub as a PKCS#1 "RSA PUBLIC KEY" PEM block.
// For a KeyBits sized key the result is exactly common.LenRSAPubKey bytes.
func MarshalPublicKeyPEM(pub *rsa.PublicKey) []byte {
	return pem.EncodeToMemory(&pem.Block{Type: pemTypePublic, Bytes: x509.MarshalPKCS1PublicKey(pub)})
}

// ParsePublicKeyPEM decodes a key produced by MarshalPublicKeyPEM
func ParsePublicKeyPEM(data []byte) (*rsa.PublicKey, error) {
	block, _ := pem.Decode(data)
	if block == nil || block.Type != pemTypePublic {
		return nil, fmt.Errorf("no %s PEM block found", pemTypePublic)
	}
	pub, err := x509.ParsePKCS1PublicKey(block.Bytes)
	if err != nil {
		return nil, err
	}
	if pub.Size() != common.LenRKBlock {
		return nil, fmt.Errorf("RSA key must be %d bits, got %d", KeyBits, pub.Size()*8)
	}
	return pub, nil
}

func parsePrivateKeyPEM(data []byte) (*rsa.PrivateKey, error) {
	block, _ := pem.Decode(data)
	if block == nil || block.Type != pemTypePrivate {
		return nil, fmt.Errorf("no %s PEM block found", pemTypePrivate)
	}
	priv, err := x509.ParsePKCS1PrivateKey(block.Bytes)
	if err != nil {
		return nil, err
	}
	if priv.Size() != common.LenRKBlock {
		return nil, fmt.Errorf("RSA key must be %d bits, got %d", KeyBits, priv.Size()*8)
	}
	return priv, nil
}
