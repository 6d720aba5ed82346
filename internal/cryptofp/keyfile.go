package cryptofp

import (
	"encoding/hex"
	"fmt"
	"os"
)

// LoadOrCreateKey sources the encryption key from envVal if non-empty
// (expected hex-encoded), else loads keyPath, else generates a fresh key
// and persists it to keyPath with owner-only permissions.
func LoadOrCreateKey(envVal, keyPath string) ([]byte, error) {
	if envVal != "" {
		key, err := hex.DecodeString(envVal)
		if err != nil || len(key) != KeySize {
			return nil, fmt.Errorf("cryptofp: env key must be %d hex bytes", KeySize)
		}
		return key, nil
	}

	if data, err := os.ReadFile(keyPath); err == nil {
		key, err := hex.DecodeString(string(data))
		if err != nil || len(key) != KeySize {
			return nil, fmt.Errorf("cryptofp: key file %s is corrupt", keyPath)
		}
		return key, nil
	}

	key, err := NewKey()
	if err != nil {
		return nil, err
	}
	if err := os.WriteFile(keyPath, []byte(hex.EncodeToString(key)), 0o600); err != nil {
		return nil, fmt.Errorf("cryptofp: persist key: %w", err)
	}
	return key, nil
}
