// Package codec encrypts workflow payloads so payment requisites never reach
// Temporal history in clear text.
package codec

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"errors"
	"fmt"
	"io"

	commonpb "go.temporal.io/api/common/v1"
	"go.temporal.io/sdk/converter"
)

const (
	// MetadataEncodingEncrypted is the encoding type for encrypted payloads
	MetadataEncodingEncrypted = "binary/encrypted"
	// MetadataEncryptionKeyID names the key that sealed a payload
	MetadataEncryptionKeyID = "encryption-key-id"
)

var ErrUnknownKey = errors.New("unknown encryption key")

// Keyring holds the active key and the retired keys still needed to read old history
type Keyring struct {
	activeID string
	keys     map[string][]byte
}

// NewKeyring creates a keyring. Every key must be 32 bytes for AES-256.
func NewKeyring(activeID string, keys map[string][]byte) (*Keyring, error) {
	if _, ok := keys[activeID]; !ok {
		return nil, fmt.Errorf("active key %q: %w", activeID, ErrUnknownKey)
	}
	ring := &Keyring{activeID: activeID, keys: make(map[string][]byte, len(keys))}
	for id, key := range keys {
		if len(key) != 32 {
			return nil, fmt.Errorf("key %q must be 32 bytes for AES-256, got %d bytes", id, len(key))
		}
		ring.keys[id] = key
	}
	return ring, nil
}

func (k *Keyring) ActiveID() string {
	return k.activeID
}

func (k *Keyring) aead(id string) (cipher.AEAD, error) {
	key, ok := k.keys[id]
	if !ok {
		return nil, fmt.Errorf("key %q: %w", id, ErrUnknownKey)
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM: %w", err)
	}
	return gcm, nil
}

// EncryptionCodec implements converter.PayloadCodec with AES-GCM
type EncryptionCodec struct {
	keyring *Keyring
}

func NewEncryptionCodec(keyring *Keyring) *EncryptionCodec {
	return &EncryptionCodec{keyring: keyring}
}

// Encode seals payloads with the active key
func (e *EncryptionCodec) Encode(payloads []*commonpb.Payload) ([]*commonpb.Payload, error) {
	result := make([]*commonpb.Payload, len(payloads))
	keyID := e.keyring.ActiveID()

	gcm, err := e.keyring.aead(keyID)
	if err != nil {
		return nil, err
	}

	for i, payload := range payloads {
		if string(payload.GetMetadata()["encoding"]) == MetadataEncodingEncrypted {
			result[i] = payload
			continue
		}

		origBytes, err := payload.Marshal()
		if err != nil {
			return nil, fmt.Errorf("failed to marshal payload: %w", err)
		}

		nonce := make([]byte, gcm.NonceSize())
		if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
			return nil, fmt.Errorf("failed to generate nonce: %w", err)
		}

		result[i] = &commonpb.Payload{
			Metadata: map[string][]byte{
				"encoding":              []byte(MetadataEncodingEncrypted),
				MetadataEncryptionKeyID: []byte(keyID),
			},
			Data: gcm.Seal(nonce, nonce, origBytes, nil),
		}
	}

	return result, nil
}

// Decode opens payloads with the key named in their metadata
func (e *EncryptionCodec) Decode(payloads []*commonpb.Payload) ([]*commonpb.Payload, error) {
	result := make([]*commonpb.Payload, len(payloads))

	for i, payload := range payloads {
		if string(payload.GetMetadata()["encoding"]) != MetadataEncodingEncrypted {
			result[i] = payload
			continue
		}

		keyID := string(payload.Metadata[MetadataEncryptionKeyID])
		if keyID == "" {
			keyID = e.keyring.ActiveID()
		}
		gcm, err := e.keyring.aead(keyID)
		if err != nil {
			return nil, err
		}

		nonceSize := gcm.NonceSize()
		if len(payload.Data) < nonceSize {
			return nil, fmt.Errorf("ciphertext too short")
		}
		nonce, ciphertext := payload.Data[:nonceSize], payload.Data[nonceSize:]
		decrypted, err := gcm.Open(nil, nonce, ciphertext, nil)
		if err != nil {
			return nil, fmt.Errorf("failed to decrypt payload: %w", err)
		}

		result[i] = &commonpb.Payload{}
		if err := result[i].Unmarshal(decrypted); err != nil {
			return nil, fmt.Errorf("failed to unmarshal decrypted payload: %w", err)
		}
	}

	return result, nil
}

// NewEncryptionDataConverter wraps the default converter with the codec
func NewEncryptionDataConverter(keyring *Keyring) converter.DataConverter {
	return converter.NewCodecDataConverter(
		converter.GetDefaultDataConverter(),
		NewEncryptionCodec(keyring),
	)
}
