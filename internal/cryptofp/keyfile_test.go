package cryptofp

import (
	"encoding/hex"
	"os"
	"path/filepath"
	"testing"
)

func TestLoadOrCreateKeyFromEnv(t *testing.T) {
	key, err := NewKey()
	if err != nil {
		t.Fatalf("NewKey: %v", err)
	}
	envVal := hex.EncodeToString(key)

	got, err := LoadOrCreateKey(envVal, filepath.Join(t.TempDir(), "unused.key"))
	if err != nil {
		t.Fatalf("LoadOrCreateKey: %v", err)
	}
	if hex.EncodeToString(got) != envVal {
		t.Fatal("expected the env-provided key to be returned verbatim")
	}
}

func TestLoadOrCreateKeyRejectsMalformedEnv(t *testing.T) {
	if _, err := LoadOrCreateKey("not-hex", filepath.Join(t.TempDir(), "unused.key")); err == nil {
		t.Fatal("expected an error for a non-hex env key")
	}
	if _, err := LoadOrCreateKey("aabb", filepath.Join(t.TempDir(), "unused.key")); err == nil {
		t.Fatal("expected an error for a too-short hex env key")
	}
}

func TestLoadOrCreateKeyGeneratesAndPersists(t *testing.T) {
	path := filepath.Join(t.TempDir(), "admin.key")

	key1, err := LoadOrCreateKey("", path)
	if err != nil {
		t.Fatalf("LoadOrCreateKey: %v", err)
	}
	if len(key1) != KeySize {
		t.Fatalf("generated key length = %d, want %d", len(key1), KeySize)
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("expected the key to be persisted to %s: %v", path, err)
	}
	if info.Mode().Perm() != 0o600 {
		t.Fatalf("key file mode = %v, want 0600", info.Mode().Perm())
	}

	key2, err := LoadOrCreateKey("", path)
	if err != nil {
		t.Fatalf("second LoadOrCreateKey: %v", err)
	}
	if hex.EncodeToString(key1) != hex.EncodeToString(key2) {
		t.Fatal("expected the second load to reuse the persisted key rather than generate a new one")
	}
}

func TestLoadOrCreateKeyRejectsCorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "admin.key")
	if err := os.WriteFile(path, []byte("not-hex-at-all"), 0o600); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	if _, err := LoadOrCreateKey("", path); err == nil {
		t.Fatal("expected an error for a corrupt key file")
	}
}
