package driven

import (
	"context"
	"errors"

	"github.com/ericfisherdev/dsbpanel/internal/domain/model"
)

// ErrEncryptionKeyNotSet is returned by CredentialStore operations when
// DSBPANEL_SECRET_KEY has not been configured.
var ErrEncryptionKeyNotSet = errors.New("encryption key not configured: set DSBPANEL_SECRET_KEY")

// CredentialStore defines the driven port for durable credential persistence.
// The adapter layer is responsible for encryption; this interface operates on
// plaintext values at the domain boundary.
type CredentialStore interface {
	Save(ctx context.Context, creds model.Credentials) error

	// Load returns (nil, nil) if no credentials are stored.
	Load(ctx context.Context) (*model.Credentials, error)

	Delete(ctx context.Context) error
}
