// Package credential implements the encrypted credential store, OAuth
// refresh flow and provider-fallback-router credential resolution of
// specification §4.1, grounded on the teacher's persistence atomic-write
// pattern (agent/persistence) and its types.Error taxonomy.
package credential

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"regexp"
	"strings"
	"time"

	"github.com/njfio/tau/internal/atomicfile"
	"github.com/njfio/tau/tauerrors"
)

// CurrentSchemaVersion is the only credential-store schema version this
// implementation accepts on load.
const CurrentSchemaVersion = 1

// AuthMethod enumerates how a stored provider credential authenticates.
type AuthMethod string

const (
	AuthAPIKey       AuthMethod = "api_key"
	AuthOAuthToken   AuthMethod = "oauth_token"
	AuthSessionToken AuthMethod = "session_token"
	AuthADC          AuthMethod = "adc"
)

// StoredProviderCredential is the on-disk (post-decrypt, in-memory)
// representation of one provider's credential.
type StoredProviderCredential struct {
	AuthMethod   AuthMethod `json:"auth_method"`
	AccessToken  string     `json:"access_token,omitempty"`
	RefreshToken string     `json:"refresh_token,omitempty"`
	ExpiresUnix  *int64     `json:"expires_unix,omitempty"`
	Revoked      bool       `json:"revoked"`
}

// StoredIntegrationCredential is the on-disk representation of a
// third-party integration secret (e.g. a webhook signing key).
type StoredIntegrationCredential struct {
	Secret      string `json:"secret,omitempty"`
	Revoked     bool   `json:"revoked"`
	UpdatedUnix *int64 `json:"updated_unix,omitempty"`
}

// CredentialStoreFile is the full on-disk credential store shape.
type CredentialStoreFile struct {
	SchemaVersion int                                    `json:"schema_version"`
	Encryption    EncryptionMode                         `json:"encryption"`
	Providers     map[string]StoredProviderCredential    `json:"providers"`
	Integrations  map[string]StoredIntegrationCredential `json:"integrations"`
}

var integrationIDPattern = regexp.MustCompile(`^[a-z0-9._-]+$`)

// NormalizeIntegrationID case-folds and validates an integration id
// against the grammar [a-z0-9._-]+.
func NormalizeIntegrationID(id string) (string, error) {
	folded := strings.ToLower(id)
	if !integrationIDPattern.MatchString(folded) {
		return "", tauerrors.Newf(tauerrors.CodeInvalidPayload, "invalid integration id %q", id)
	}
	return folded, nil
}

func emptyStore(mode EncryptionMode) *CredentialStoreFile {
	return &CredentialStoreFile{
		SchemaVersion: CurrentSchemaVersion,
		Encryption:    mode,
		Providers:     map[string]StoredProviderCredential{},
		Integrations:  map[string]StoredIntegrationCredential{},
	}
}

// onDiskShape mirrors CredentialStoreFile but allows missing
// "integrations" maps from legacy stores (Open Question iii).
type onDiskShape struct {
	SchemaVersion int                                    `json:"schema_version"`
	Encryption    EncryptionMode                         `json:"encryption"`
	Providers     map[string]onDiskProviderCredential    `json:"providers"`
	Integrations  map[string]onDiskIntegrationCredential `json:"integrations"`
}

type onDiskProviderCredential struct {
	AuthMethod   AuthMethod `json:"auth_method"`
	AccessToken  string     `json:"access_token,omitempty"`
	RefreshToken string     `json:"refresh_token,omitempty"`
	ExpiresUnix  *int64     `json:"expires_unix,omitempty"`
	Revoked      bool       `json:"revoked"`
}

type onDiskIntegrationCredential struct {
	Secret      string `json:"secret,omitempty"`
	Revoked     bool   `json:"revoked"`
	UpdatedUnix *int64 `json:"updated_unix,omitempty"`
}

// LoadCredentialStore loads the store from path, tolerating a missing
// file (returns an empty store at defaultMode) and rejecting unsupported
// schema versions. All stored secrets are decrypted eagerly so callers
// hold plaintext only behind the Secret wrapper returned by accessors.
func LoadCredentialStore(path string, defaultMode EncryptionMode, key string) (*CredentialStoreFile, error) {
	var disk onDiskShape
	err := atomicfile.ReadJSON(path, &disk)
	if os.IsNotExist(err) {
		return emptyStore(defaultMode), nil
	}
	if err != nil {
		return nil, tauerrors.Newf(tauerrors.CodeInvalidPayload, "failed to read credential store: %v", err)
	}
	if disk.SchemaVersion != CurrentSchemaVersion {
		return nil, tauerrors.Newf(tauerrors.CodeUnsupportedSchema, "unsupported credential store schema version %d", disk.SchemaVersion)
	}

	store := &CredentialStoreFile{
		SchemaVersion: disk.SchemaVersion,
		Encryption:    disk.Encryption,
		Providers:     map[string]StoredProviderCredential{},
		Integrations:  map[string]StoredIntegrationCredential{},
	}

	for id, p := range disk.Providers {
		cred := StoredProviderCredential{
			AuthMethod:  p.AuthMethod,
			ExpiresUnix: p.ExpiresUnix,
			Revoked:     p.Revoked,
		}
		if p.AccessToken != "" {
			plain, derr := DecryptSecret(p.AccessToken, disk.Encryption, key)
			if derr != nil {
				return nil, derr
			}
			cred.AccessToken = plain
		}
		if p.RefreshToken != "" {
			plain, derr := DecryptSecret(p.RefreshToken, disk.Encryption, key)
			if derr != nil {
				return nil, derr
			}
			cred.RefreshToken = plain
		}
		store.Providers[id] = cred
	}

	// Legacy stores may omit "integrations" entirely; default to empty.
	for id, v := range disk.Integrations {
		cred := StoredIntegrationCredential{Revoked: v.Revoked, UpdatedUnix: v.UpdatedUnix}
		if v.Secret != "" {
			plain, derr := DecryptSecret(v.Secret, disk.Encryption, key)
			if derr != nil {
				return nil, derr
			}
			cred.Secret = plain
		}
		store.Integrations[id] = cred
	}

	return store, nil
}

// SaveCredentialStore re-encrypts every secret under store.Encryption and
// writes the file atomically.
func SaveCredentialStore(path string, store *CredentialStoreFile, key string) error {
	disk := onDiskShape{
		SchemaVersion: store.SchemaVersion,
		Encryption:    store.Encryption,
		Providers:     map[string]onDiskProviderCredential{},
		Integrations:  map[string]onDiskIntegrationCredential{},
	}
	if disk.SchemaVersion == 0 {
		disk.SchemaVersion = CurrentSchemaVersion
	}

	for id, p := range store.Providers {
		out := onDiskProviderCredential{AuthMethod: p.AuthMethod, ExpiresUnix: p.ExpiresUnix, Revoked: p.Revoked}
		if p.AccessToken != "" {
			enc, err := EncryptSecret(p.AccessToken, store.Encryption, key)
			if err != nil {
				return err
			}
			out.AccessToken = enc
		}
		if p.RefreshToken != "" {
			enc, err := EncryptSecret(p.RefreshToken, store.Encryption, key)
			if err != nil {
				return err
			}
			out.RefreshToken = enc
		}
		disk.Providers[id] = out
	}

	for id, v := range store.Integrations {
		out := onDiskIntegrationCredential{Revoked: v.Revoked, UpdatedUnix: v.UpdatedUnix}
		if v.Secret != "" {
			enc, err := EncryptSecret(v.Secret, store.Encryption, key)
			if err != nil {
				return err
			}
			out.Secret = enc
		}
		disk.Integrations[id] = out
	}

	return atomicfile.WriteJSON(path, disk)
}

// AccessSecret returns the redacting wrapper around a provider's access
// token, or the zero Secret if absent.
func (s *CredentialStoreFile) AccessSecret(provider string) Secret {
	if cred, ok := s.Providers[provider]; ok {
		return NewSecret(cred.AccessToken)
	}
	return Secret{}
}

// hashForLog produces a short, non-reversible fingerprint suitable for
// structured log fields that must identify-but-not-reveal a token.
func hashForLog(plaintext string) string {
	sum := sha256.Sum256([]byte(plaintext))
	return hex.EncodeToString(sum[:])[:12]
}

// String implements fmt.Stringer for debug dumps, guaranteeing secrets
// never reach a log sink via %v on the whole store.
func (s *CredentialStoreFile) String() string {
	return fmt.Sprintf("CredentialStoreFile{schema=%d encryption=%s providers=%d integrations=%d}",
		s.SchemaVersion, s.Encryption, len(s.Providers), len(s.Integrations))
}

// nowUnix is overridable in tests.
var nowUnix = func() int64 { return time.Now().Unix() }
