package sqlite

import (
	"context"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"database/sql"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/ericfisherdev/dsbpanel/internal/domain/model"
	"github.com/ericfisherdev/dsbpanel/internal/domain/port/driven"
)

// credentialService is the row the remote-service login is stored under.
const credentialService = "dsb_credentials"

// Compile-time interface satisfaction check.
var _ driven.CredentialStore = (*CredentialRepo)(nil)

// CredentialRepo is the SQLite implementation of the CredentialStore port interface.
// The login is serialized as JSON and encrypted with AES-256-GCM before write.
type CredentialRepo struct {
	db  *DB
	key []byte // 32-byte AES-256 key; nil when encryption is disabled.
}

// NewCredentialRepo creates a new CredentialRepo. key must be 32 bytes for AES-256-GCM,
// or nil to disable credential storage (Save and Load return driven.ErrEncryptionKeyNotSet).
func NewCredentialRepo(db *DB, key []byte) *CredentialRepo {
	return &CredentialRepo{db: db, key: key}
}

// Enabled reports whether an encryption key is configured.
func (r *CredentialRepo) Enabled() bool {
	return r.key != nil
}

// Save stores or replaces the login.
func (r *CredentialRepo) Save(ctx context.Context, creds model.Credentials) error {
	plaintext, err := json.Marshal(creds)
	if err != nil {
		return fmt.Errorf("marshal credentials: %w", err)
	}

	encrypted, err := r.encrypt(plaintext)
	if err != nil {
		return err
	}

	const query = `INSERT INTO credentials (service, value, updated_at) VALUES (?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(service) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`
	if _, err := r.db.Writer.ExecContext(ctx, query, credentialService, encrypted); err != nil {
		return fmt.Errorf("save credentials: %w", err)
	}
	return nil
}

// Load returns the stored login, or (nil, nil) if none exists.
func (r *CredentialRepo) Load(ctx context.Context) (*model.Credentials, error) {
	if r.key == nil {
		return nil, driven.ErrEncryptionKeyNotSet
	}

	const query = `SELECT value FROM credentials WHERE service = ?`
	var encrypted string
	err := r.db.Reader.QueryRowContext(ctx, query, credentialService).Scan(&encrypted)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load credentials: %w", err)
	}

	plaintext, err := r.decrypt(encrypted)
	if err != nil {
		return nil, fmt.Errorf("decrypt credentials: %w", err)
	}

	var creds model.Credentials
	if err := json.Unmarshal(plaintext, &creds); err != nil {
		return nil, fmt.Errorf("unmarshal credentials: %w", err)
	}
	return &creds, nil
}

// Delete removes the stored login. It succeeds without a key so a logout
// always clears whatever is on disk.
func (r *CredentialRepo) Delete(ctx context.Context) error {
	const query = `DELETE FROM credentials WHERE service = ?`
	if _, err := r.db.Writer.ExecContext(ctx, query, credentialService); err != nil {
		return fmt.Errorf("delete credentials: %w", err)
	}
	return nil
}

func (r *CredentialRepo) gcm() (cipher.AEAD, error) {
	if r.key == nil {
		return nil, driven.ErrEncryptionKeyNotSet
	}

	block, err := aes.NewCipher(r.key)
	if err != nil {
		return nil, fmt.Errorf("aes.NewCipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("cipher.NewGCM: %w", err)
	}
	return gcm, nil
}

// encrypt returns base64(nonce || ciphertext || tag).
func (r *CredentialRepo) encrypt(plaintext []byte) (string, error) {
	gcm, err := r.gcm()
	if err != nil {
		return "", err
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("rand nonce: %w", err)
	}

	sealed := gcm.Seal(nonce, nonce, plaintext, nil)
	return base64.StdEncoding.EncodeToString(sealed), nil
}

func (r *CredentialRepo) decrypt(encoded string) ([]byte, error) {
	data, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("base64 decode: %w", err)
	}

	gcm, err := r.gcm()
	if err != nil {
		return nil, err
	}

	nonceSize := gcm.NonceSize()
	if len(data) < nonceSize {
		return nil, errors.New("ciphertext too short")
	}

	nonce, ciphertext := data[:nonceSize], data[nonceSize:]
	plaintext, err := gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, fmt.Errorf("gcm.Open: %w", err)
	}
	return plaintext, nil
}
