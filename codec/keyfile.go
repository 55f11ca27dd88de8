package codec

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"os"
	"strings"
)

// LoadKey reads a 32 byte key, raw or hex encoded. With generate set, a
// missing file is created with a fresh key (development only).
func LoadKey(path string, generate bool) ([]byte, bool, error) {
	data, err := os.ReadFile(path)
	if err == nil {
		if len(data) == 32 {
			return data, false, nil
		}
		decoded, decodeErr := hex.DecodeString(strings.TrimSpace(string(data)))
		if decodeErr == nil && len(decoded) == 32 {
			return decoded, false, nil
		}
		return nil, false, fmt.Errorf("key file %s: expected 32 raw bytes or 64 hex characters", path)
	}
	if !os.IsNotExist(err) || !generate {
		return nil, false, fmt.Errorf("failed to read key file: %w", err)
	}

	key := make([]byte, 32)
	if _, err := rand.Read(key); err != nil {
		return nil, false, fmt.Errorf("failed to generate encryption key: %w", err)
	}
	if err := os.WriteFile(path, []byte(hex.EncodeToString(key)), 0600); err != nil {
		return nil, false, fmt.Errorf("failed to save encryption key: %w", err)
	}
	return key, true, nil
}

// LoadKeyring builds a keyring from the active key file and the files of
// retired keys, keyed by key id. It reports whether the active key was generated.
func LoadKeyring(activeID, activeFile string, retired map[string]string, generate bool) (*Keyring, bool, error) {
	active, generated, err := LoadKey(activeFile, generate)
	if err != nil {
		return nil, false, err
	}
	keys := map[string][]byte{activeID: active}
	for id, path := range retired {
		if id == activeID {
			continue
		}
		key, _, err := LoadKey(path, false)
		if err != nil {
			return nil, false, fmt.Errorf("retired key %q: %w", id, err)
		}
		keys[id] = key
	}
	ring, err := NewKeyring(activeID, keys)
	if err != nil {
		return nil, false, err
	}
	return ring, generated, nil
}
