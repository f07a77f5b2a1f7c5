// Package userstore provides host-side implementations of
// internal/userauth.Store: a bcrypt-backed JSON file database and, on
// Linux, a PAM-backed store that defers to OS accounts. Both are
// collaborators injected into the pure userauth state machine; neither is
// itself part of the protocol core.
package userstore

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/kmerz/awa-ssh/internal/userauth"
)

// record is the on-disk shape of one user account. PublicKeys are stored
// base64-encoded since they are opaque wire blobs, not UTF-8 text.
type record struct {
	Username     string     `json:"username"`
	PasswordHash string     `json:"password_hash,omitempty"`
	PublicKeys   []string   `json:"public_keys,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
	LastLogin    *time.Time `json:"last_login,omitempty"`
	Enabled      bool       `json:"enabled"`
}

// JSONStore is a thread-safe, file-persisted user database. It implements
// userauth.Store directly, so a host can hand *JSONStore straight to
// internal/session.New without any adapter.
type JSONStore struct {
	mu       sync.RWMutex
	users    map[string]*record
	filePath string
}

// NewJSONStore opens (or creates) a user database at path, loading any
// existing entries immediately.
func NewJSONStore(path string) (*JSONStore, error) {
	if path == "" {
		path = "users.json"
	}
	db := &JSONStore{users: make(map[string]*record), filePath: path}
	if err := db.load(); err != nil {
		return nil, fmt.Errorf("userstore: loading %s: %w", path, err)
	}
	return db, nil
}

// Lookup implements userauth.Store.
func (db *JSONStore) Lookup(name string) (userauth.User, bool) {
	db.mu.RLock()
	defer db.mu.RUnlock()
	r, ok := db.users[name]
	if !ok || !r.Enabled {
		return userauth.User{}, false
	}
	keys := make([][]byte, 0, len(r.PublicKeys))
	for _, enc := range r.PublicKeys {
		blob, err := base64.StdEncoding.DecodeString(enc)
		if err != nil {
			continue
		}
		keys = append(keys, blob)
	}
	return userauth.User{Name: r.Username, PublicKeys: keys}, true
}

// VerifyPassword implements userauth.Store, comparing against the stored
// bcrypt hash. A disabled account always fails.
func (db *JSONStore) VerifyPassword(name, candidate string) bool {
	db.mu.RLock()
	r, ok := db.users[name]
	db.mu.RUnlock()
	if !ok || !r.Enabled || r.PasswordHash == "" {
		return false
	}
	if err := bcrypt.CompareHashAndPassword([]byte(r.PasswordHash), []byte(candidate)); err != nil {
		return false
	}
	db.touchLastLogin(name)
	return true
}

func (db *JSONStore) touchLastLogin(name string) {
	db.mu.Lock()
	defer db.mu.Unlock()
	if r, ok := db.users[name]; ok {
		now := time.Now()
		r.LastLogin = &now
		_ = db.save()
	}
}

// AddUser creates a new account with an initial password, matching the
// teacher's minimum-length rule.
func (db *JSONStore) AddUser(username, password string) error {
	if username == "" {
		return fmt.Errorf("userstore: username cannot be empty")
	}
	if len(password) < 4 {
		return fmt.Errorf("userstore: password must be at least 4 characters long")
	}
	db.mu.Lock()
	defer db.mu.Unlock()
	if _, exists := db.users[username]; exists {
		return fmt.Errorf("userstore: user %q already exists", username)
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("userstore: hashing password: %w", err)
	}
	db.users[username] = &record{
		Username:     username,
		PasswordHash: string(hash),
		CreatedAt:    time.Now(),
		Enabled:      true,
	}
	if err := db.save(); err != nil {
		delete(db.users, username)
		return fmt.Errorf("userstore: saving database: %w", err)
	}
	return nil
}

// RemoveUser deletes an account.
func (db *JSONStore) RemoveUser(username string) error {
	db.mu.Lock()
	defer db.mu.Unlock()
	if _, exists := db.users[username]; !exists {
		return fmt.Errorf("userstore: user %q does not exist", username)
	}
	delete(db.users, username)
	return db.save()
}

// SetPassword rotates an existing account's password.
func (db *JSONStore) SetPassword(username, newPassword string) error {
	if len(newPassword) < 4 {
		return fmt.Errorf("userstore: password must be at least 4 characters long")
	}
	db.mu.Lock()
	defer db.mu.Unlock()
	r, exists := db.users[username]
	if !exists {
		return fmt.Errorf("userstore: user %q does not exist", username)
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(newPassword), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("userstore: hashing password: %w", err)
	}
	r.PasswordHash = string(hash)
	return db.save()
}

// AddPublicKey registers pubkey (a wire-format blob, as produced by
// hostkey.Key.Marshal) for username.
func (db *JSONStore) AddPublicKey(username string, pubkey []byte) error {
	db.mu.Lock()
	defer db.mu.Unlock()
	r, exists := db.users[username]
	if !exists {
		return fmt.Errorf("userstore: user %q does not exist", username)
	}
	enc := base64.StdEncoding.EncodeToString(pubkey)
	for _, existing := range r.PublicKeys {
		if existing == enc {
			return nil
		}
	}
	r.PublicKeys = append(r.PublicKeys, enc)
	return db.save()
}

// RemovePublicKey unregisters pubkey from username, if present.
func (db *JSONStore) RemovePublicKey(username string, pubkey []byte) error {
	db.mu.Lock()
	defer db.mu.Unlock()
	r, exists := db.users[username]
	if !exists {
		return fmt.Errorf("userstore: user %q does not exist", username)
	}
	enc := base64.StdEncoding.EncodeToString(pubkey)
	kept := r.PublicKeys[:0]
	for _, existing := range r.PublicKeys {
		if existing != enc {
			kept = append(kept, existing)
		}
	}
	r.PublicKeys = kept
	return db.save()
}

// Enable re-activates a disabled account.
func (db *JSONStore) Enable(username string) error { return db.setEnabled(username, true) }

// Disable deactivates an account without deleting it.
func (db *JSONStore) Disable(username string) error { return db.setEnabled(username, false) }

func (db *JSONStore) setEnabled(username string, enabled bool) error {
	db.mu.Lock()
	defer db.mu.Unlock()
	r, exists := db.users[username]
	if !exists {
		return fmt.Errorf("userstore: user %q does not exist", username)
	}
	r.Enabled = enabled
	return db.save()
}

// ListUsernames returns every account name, enabled or not.
func (db *JSONStore) ListUsernames() []string {
	db.mu.RLock()
	defer db.mu.RUnlock()
	names := make([]string, 0, len(db.users))
	for name := range db.users {
		names = append(names, name)
	}
	return names
}

func (db *JSONStore) save() error {
	data, err := json.MarshalIndent(db.users, "", "  ")
	if err != nil {
		return err
	}
	tmp := db.filePath + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return err
	}
	if err := os.Rename(tmp, db.filePath); err != nil {
		os.Remove(tmp)
		return err
	}
	return nil
}

func (db *JSONStore) load() error {
	f, err := os.Open(db.filePath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	defer f.Close()
	data, err := io.ReadAll(f)
	if err != nil {
		return err
	}
	if len(data) == 0 {
		return nil
	}
	return json.Unmarshal(data, &db.users)
}
