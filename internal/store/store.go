// Package store is the single-file encrypted persistent store: admin
// fingerprint, client display names, and BSL-S² manual matches. Writes
// replace the whole file; reads are cached in memory and kept coherent
// with the file. Writes are serialized with a mutex, the same way the
// teacher's persistent-store concerns (room_manager, registry) guard
// their maps — adapted here to guard file I/O instead.
package store

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/sync-player/server/internal/cryptofp"
)

// RoomAdmin records the admin fingerprint bound to one room code in
// multi-room mode, persisted so the admin can reclaim the seat after a
// server restart.
type RoomAdmin struct {
	Fingerprint string `json:"fingerprint"`
	SavedAt     int64  `json:"savedAt"`
}

// fileContents is the on-disk JSON schema (spec §6.2).
type fileContents struct {
	Encrypted   string                       `json:"encrypted"`
	ClientNames map[string]string            `json:"clientNames"`
	BSLMatches  map[string]map[string]string `json:"bslMatches"`
	RoomAdmins  map[string]RoomAdmin         `json:"roomAdmins,omitempty"`
}

// Store is the in-memory cache of the persisted file, coherent with disk.
type Store struct {
	path string
	key  []byte

	mu   sync.Mutex
	data fileContents

	adminFingerprint string // decrypted cache; empty if none registered
}

// Open reads path (migrating legacy schemas forward), or starts from an
// empty store if the file does not exist yet.
func Open(path string, key []byte) (*Store, error) {
	s := &Store{
		path: path,
		key:  key,
		data: fileContents{
			ClientNames: make(map[string]string),
			BSLMatches:  make(map[string]map[string]string),
			RoomAdmins:  make(map[string]RoomAdmin),
		},
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return s, nil
		}
		return nil, err
	}

	var fc fileContents
	if err := json.Unmarshal(raw, &fc); err != nil {
		log.Error().Err(err).Str("module", "store").Msg("corrupt store file, starting fresh")
		return s, nil
	}
	migrate(&fc)
	s.data = fc

	if fc.Encrypted != "" {
		fp, err := cryptofp.Decrypt(key, fc.Encrypted)
		if err != nil {
			log.Error().Err(err).Str("module", "store").Msg("failed to decrypt admin fingerprint")
		} else {
			s.adminFingerprint = fp
		}
	}
	return s, nil
}

// migrate upgrades older on-disk schemas in place. There is currently one
// schema version, but the hook is kept so future fields have somewhere to
// land without another round of "is this file old or new" checks.
func migrate(fc *fileContents) {
	if fc.ClientNames == nil {
		fc.ClientNames = make(map[string]string)
	}
	if fc.BSLMatches == nil {
		fc.BSLMatches = make(map[string]map[string]string)
	}
	if fc.RoomAdmins == nil {
		fc.RoomAdmins = make(map[string]RoomAdmin)
	}
}

func (s *Store) save() {
	tmp := s.path + ".tmp"
	raw, err := json.MarshalIndent(s.data, "", "  ")
	if err != nil {
		log.Error().Err(err).Str("module", "store").Msg("marshal failed, in-memory state kept authoritative")
		return
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		log.Error().Err(err).Str("module", "store").Msg("mkdir failed")
		return
	}
	if err := os.WriteFile(tmp, raw, 0o600); err != nil {
		log.Error().Err(err).Str("module", "store").Msg("write failed, in-memory state kept authoritative")
		return
	}
	if err := os.Rename(tmp, s.path); err != nil {
		log.Error().Err(err).Str("module", "store").Msg("rename failed, in-memory state kept authoritative")
	}
}

// AdminFingerprint returns the currently registered global admin
// fingerprint (single-room / admin_fingerprint_lock mode), if any.
func (s *Store) AdminFingerprint() (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.adminFingerprint, s.adminFingerprint != ""
}

// SetAdminFingerprint binds the admin fingerprint for the lifetime of the
// process, persisting it encrypted.
func (s *Store) SetAdminFingerprint(fp string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	enc, err := cryptofp.Encrypt(s.key, fp)
	if err != nil {
		return err
	}
	s.adminFingerprint = fp
	s.data.Encrypted = enc
	s.save()
	return nil
}

// RoomAdminFingerprint returns the persisted admin fingerprint for a room
// code in multi-room mode.
func (s *Store) RoomAdminFingerprint(code string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ra, ok := s.data.RoomAdmins[code]
	return ra.Fingerprint, ok
}

// SetRoomAdminFingerprint persists the admin fingerprint for a room code.
func (s *Store) SetRoomAdminFingerprint(code, fp string, savedAt int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data.RoomAdmins[code] = RoomAdmin{Fingerprint: fp, SavedAt: savedAt}
	s.save()
}

// DeleteRoomAdmin removes a room's persisted admin record (delete-room).
func (s *Store) DeleteRoomAdmin(code string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.data.RoomAdmins, code)
	s.save()
}

// ClientName returns the stored display name for a fingerprint.
func (s *Store) ClientName(fingerprint string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	name, ok := s.data.ClientNames[fingerprint]
	return name, ok
}

// SetClientName persists a fingerprint -> display name mapping.
func (s *Store) SetClientName(fingerprint, name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data.ClientNames[fingerprint] = name
	s.save()
}

// BSLMatches returns a copy of the fingerprint's manual match map
// (localFileName(lower) -> playlistFileName(lower)).
func (s *Store) BSLMatches(fingerprint string) map[string]string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]string, len(s.data.BSLMatches[fingerprint]))
	for k, v := range s.data.BSLMatches[fingerprint] {
		out[k] = v
	}
	return out
}

// SetBSLMatch persists one manual match for a fingerprint.
func (s *Store) SetBSLMatch(fingerprint, localFile, playlistFile string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.data.BSLMatches[fingerprint] == nil {
		s.data.BSLMatches[fingerprint] = make(map[string]string)
	}
	s.data.BSLMatches[fingerprint][localFile] = playlistFile
	s.save()
}
