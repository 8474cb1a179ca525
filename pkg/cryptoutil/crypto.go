// Package cryptoutil owns the per-session key material. Each session (and
// each rekey) gets a fresh X25519 keypair and client nonce; once the egress
// publishes its public value and nonce the shared secret expands into the
// uplink and downlink tunnel keys.
package cryptoutil

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"io"
	"sync"

	"golang.org/x/crypto/curve25519"
	"golang.org/x/crypto/hkdf"
)

type CryptoSuite int

const (
	SuiteAES128GCM CryptoSuite = iota
	SuiteAES256GCM
	SuiteChaCha20Poly1305
)

func (s CryptoSuite) String() string {
	switch s {
	case SuiteAES128GCM:
		return "AES128_GCM"
	case SuiteAES256GCM:
		return "AES256_GCM"
	case SuiteChaCha20Poly1305:
		return "CHACHA20_POLY1305"
	default:
		return "UNKNOWN"
	}
}

const nonceLength = 16

// KeyMaterial is the public half of a crypto context, base64 encoded for
// the control-plane wire.
type KeyMaterial struct {
	PublicValue string
	Nonce       string
}

type SessionCrypto struct {
	mu sync.Mutex

	privateKey [curve25519.ScalarSize]byte
	publicKey  []byte
	nonce      [nonceLength]byte

	remotePublic []byte
	remoteNonce  []byte

	downlinkSPI uint32
}

func NewSessionCrypto() (*SessionCrypto, error) {
	c := &SessionCrypto{}
	if _, err := io.ReadFull(rand.Reader, c.privateKey[:]); err != nil {
		return nil, fmt.Errorf("generate private key: %w", err)
	}
	public, err := curve25519.X25519(c.privateKey[:], curve25519.Basepoint)
	if err != nil {
		return nil, fmt.Errorf("derive public key: %w", err)
	}
	c.publicKey = public

	if _, err := io.ReadFull(rand.Reader, c.nonce[:]); err != nil {
		return nil, fmt.Errorf("generate nonce: %w", err)
	}

	var spi [4]byte
	if _, err := io.ReadFull(rand.Reader, spi[:]); err != nil {
		return nil, fmt.Errorf("generate downlink spi: %w", err)
	}
	c.downlinkSPI = uint32(spi[0])<<24 | uint32(spi[1])<<16 | uint32(spi[2])<<8 | uint32(spi[3])
	return c, nil
}

func (c *SessionCrypto) MyKeyMaterial() KeyMaterial {
	c.mu.Lock()
	defer c.mu.Unlock()
	return KeyMaterial{
		PublicValue: base64.StdEncoding.EncodeToString(c.publicKey),
		Nonce:       base64.StdEncoding.EncodeToString(c.nonce[:]),
	}
}

func (c *SessionCrypto) PublicValue() string {
	return c.MyKeyMaterial().PublicValue
}

func (c *SessionCrypto) DownlinkSPI() uint32 {
	return c.downlinkSPI
}

// SetRemoteKeyMaterial binds the egress public value and nonce, both base64.
func (c *SessionCrypto) SetRemoteKeyMaterial(publicValue, nonce string) error {
	public, err := base64.StdEncoding.DecodeString(publicValue)
	if err != nil {
		return fmt.Errorf("decode remote public value: %w", err)
	}
	if len(public) != curve25519.PointSize {
		return fmt.Errorf("remote public value has %d bytes, want %d", len(public), curve25519.PointSize)
	}
	remoteNonce, err := base64.StdEncoding.DecodeString(nonce)
	if err != nil {
		return fmt.Errorf("decode remote nonce: %w", err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.remotePublic = public
	c.remoteNonce = remoteNonce
	return nil
}

func (c *SessionCrypto) HasRemoteKeyMaterial() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.remotePublic != nil
}

// SessionKeys expands the shared secret into uplink and downlink keys. The
// salt mixes both nonces so either side rolling its nonce rolls the keys.
func (c *SessionCrypto) SessionKeys() (uplink, downlink []byte, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.remotePublic == nil {
		return nil, nil, fmt.Errorf("remote key material not set")
	}

	shared, err := curve25519.X25519(c.privateKey[:], c.remotePublic)
	if err != nil {
		return nil, nil, fmt.Errorf("compute shared secret: %w", err)
	}

	salt := make([]byte, 0, nonceLength+len(c.remoteNonce))
	salt = append(salt, c.nonce[:]...)
	salt = append(salt, c.remoteNonce...)

	reader := hkdf.New(sha256.New, shared, salt, []byte("krypton bridge v1"))
	uplink = make([]byte, 32)
	downlink = make([]byte, 32)
	if _, err := io.ReadFull(reader, uplink); err != nil {
		return nil, nil, fmt.Errorf("derive uplink key: %w", err)
	}
	if _, err := io.ReadFull(reader, downlink); err != nil {
		return nil, nil, fmt.Errorf("derive downlink key: %w", err)
	}
	return uplink, downlink, nil
}
