package credential

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLoadMissingFileReturnsEmptyStore(t *testing.T) {
	store, err := LoadCredentialStore(filepath.Join(t.TempDir(), "missing.json"), ModeNone, "")
	require.NoError(t, err)
	require.Equal(t, CurrentSchemaVersion, store.SchemaVersion)
	require.Empty(t, store.Providers)
	require.Empty(t, store.Integrations)
}

func TestSaveLoadRoundTripKeyed(t *testing.T) {
	path := filepath.Join(t.TempDir(), "creds.json")
	expires := int64(1999999999)
	store := &CredentialStoreFile{
		SchemaVersion: CurrentSchemaVersion,
		Encryption:    ModeKeyed,
		Providers: map[string]StoredProviderCredential{
			"openai": {AuthMethod: AuthOAuthToken, AccessToken: "access-1", RefreshToken: "refresh-1", ExpiresUnix: &expires},
		},
		Integrations: map[string]StoredIntegrationCredential{
			"github": {Secret: "webhook-secret"},
		},
	}

	require.NoError(t, SaveCredentialStore(path, store, "passphrase123"))

	reloaded, err := LoadCredentialStore(path, ModeNone, "passphrase123")
	require.NoError(t, err)
	require.Equal(t, store.Providers["openai"].AccessToken, reloaded.Providers["openai"].AccessToken)
	require.Equal(t, store.Integrations["github"].Secret, reloaded.Integrations["github"].Secret)
}

func TestLoadRejectsUnsupportedSchemaVersion(t *testing.T) {
	path := filepath.Join(t.TempDir(), "creds.json")
	require.NoError(t, writeRaw(path, `{"schema_version":99,"encryption":"none","providers":{}}`))

	_, err := LoadCredentialStore(path, ModeNone, "")
	require.Error(t, err)
}

func TestLegacyStoreWithoutIntegrationsTolerated(t *testing.T) {
	path := filepath.Join(t.TempDir(), "creds.json")
	require.NoError(t, writeRaw(path, `{"schema_version":1,"encryption":"none","providers":{"openai":{"auth_method":"api_key","access_token":"sk-legacy","revoked":false}}}`))

	store, err := LoadCredentialStore(path, ModeNone, "")
	require.NoError(t, err)
	require.Equal(t, "sk-legacy", store.Providers["openai"].AccessToken)
	require.NotNil(t, store.Integrations)
	require.Empty(t, store.Integrations)
}

func TestNormalizeIntegrationID(t *testing.T) {
	id, err := NormalizeIntegrationID("GitHub-Webhook.1")
	require.NoError(t, err)
	require.Equal(t, "github-webhook.1", id)

	_, err = NormalizeIntegrationID("bad id!")
	require.Error(t, err)
}

func writeRaw(path, content string) error {
	return os.WriteFile(path, []byte(content), 0o644)
}
