package datapath

import (
	"crypto/cipher"
	"encoding/binary"
	"fmt"

	"golang.org/x/crypto/chacha20poly1305"
)

// Bridge frame layout: 1 byte frame type, 8 byte send counter, AEAD
// ciphertext. The counter doubles as the nonce suffix.
const (
	frameData byte = iota
	frameProbe
	frameRekey
)

const frameHeaderLength = 9

func newAEAD(key []byte) (cipher.AEAD, error) {
	if len(key) != chacha20poly1305.KeySize {
		return nil, fmt.Errorf("bridge key has %d bytes, want %d", len(key), chacha20poly1305.KeySize)
	}
	return chacha20poly1305.New(key)
}

func frameNonce(counter uint64) []byte {
	nonce := make([]byte, chacha20poly1305.NonceSize)
	binary.BigEndian.PutUint64(nonce[4:], counter)
	return nonce
}

// sealFrame builds a wire frame. The header is authenticated as
// additional data.
func sealFrame(aead cipher.AEAD, frameType byte, counter uint64, payload []byte) []byte {
	frame := make([]byte, frameHeaderLength, frameHeaderLength+len(payload)+aead.Overhead())
	frame[0] = frameType
	binary.BigEndian.PutUint64(frame[1:], counter)
	return aead.Seal(frame, frameNonce(counter), payload, frame[:frameHeaderLength])
}

// openFrame validates and decrypts a wire frame, returning its type and
// payload.
func openFrame(aead cipher.AEAD, frame []byte) (byte, []byte, error) {
	if len(frame) < frameHeaderLength+aead.Overhead() {
		return 0, nil, fmt.Errorf("short frame: %d bytes", len(frame))
	}
	counter := binary.BigEndian.Uint64(frame[1:frameHeaderLength])
	payload, err := aead.Open(nil, frameNonce(counter), frame[frameHeaderLength:], frame[:frameHeaderLength])
	if err != nil {
		return 0, nil, fmt.Errorf("open frame: %w", err)
	}
	return frame[0], payload, nil
}
