package credential

import (
	"path/filepath"
	"regexp"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRefreshProviderAccessTokenSuccess(t *testing.T) {
	result, err := RefreshProviderAccessToken("OpenAI", "refresh-token", 1_700_000_000)
	require.NoError(t, err)
	require.Regexp(t, regexp.MustCompile(`^openai_access_[0-9a-f]{12}$`), result.AccessToken)
	require.Equal(t, int64(1_700_000_000+3600), result.ExpiresUnix)
}

func TestRefreshProviderAccessTokenEmptyRejected(t *testing.T) {
	_, err := RefreshProviderAccessToken("OpenAI", "   ", 0)
	require.Error(t, err)
}

func TestRefreshProviderAccessTokenRevokedRejected(t *testing.T) {
	_, err := RefreshProviderAccessToken("OpenAI", "revoked-refresh-token", 0)
	require.Error(t, err)
	require.Contains(t, err.Error(), "revoked")
}

func TestResolveStoreBackedProviderCredentialRefreshesExpired(t *testing.T) {
	path := filepath.Join(t.TempDir(), "creds.json")
	now := int64(1_700_000_000)
	expired := now - 30
	store := &CredentialStoreFile{
		SchemaVersion: CurrentSchemaVersion,
		Encryption:    ModeNone,
		Providers: map[string]StoredProviderCredential{
			"openai": {AuthMethod: AuthOAuthToken, RefreshToken: "refresh-token", ExpiresUnix: &expired},
		},
		Integrations: map[string]StoredIntegrationCredential{},
	}

	secret, err := ResolveStoreBackedProviderCredential(path, store, "", "openai", AuthOAuthToken, now)
	require.NoError(t, err)
	require.Regexp(t, regexp.MustCompile(`^openai_access_[0-9a-f]{12}$`), secret.Expose())

	reloaded, err := LoadCredentialStore(path, ModeNone, "")
	require.NoError(t, err)
	require.Equal(t, secret.Expose(), reloaded.Providers["openai"].AccessToken)
	require.Greater(t, *reloaded.Providers["openai"].ExpiresUnix, now)
}

func TestResolveStoreBackedProviderCredentialRevokedRefreshMarksRevoked(t *testing.T) {
	path := filepath.Join(t.TempDir(), "creds.json")
	now := int64(1_700_000_000)
	expired := now - 30
	store := &CredentialStoreFile{
		SchemaVersion: CurrentSchemaVersion,
		Encryption:    ModeNone,
		Providers: map[string]StoredProviderCredential{
			"openai": {AuthMethod: AuthOAuthToken, RefreshToken: "revoked-refresh-token", ExpiresUnix: &expired},
		},
		Integrations: map[string]StoredIntegrationCredential{},
	}

	_, err := ResolveStoreBackedProviderCredential(path, store, "", "openai", AuthOAuthToken, now)
	require.Error(t, err)
	require.Contains(t, err.Error(), "revoked")

	reloaded, err := LoadCredentialStore(path, ModeNone, "")
	require.NoError(t, err)
	require.True(t, reloaded.Providers["openai"].Revoked)
}

func TestResolveStoreBackedProviderCredentialNotExpiredReturnsCurrent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "creds.json")
	now := int64(1_700_000_000)
	future := now + 1000
	store := &CredentialStoreFile{
		SchemaVersion: CurrentSchemaVersion,
		Encryption:    ModeNone,
		Providers: map[string]StoredProviderCredential{
			"openai": {AuthMethod: AuthOAuthToken, AccessToken: "still-valid", ExpiresUnix: &future},
		},
		Integrations: map[string]StoredIntegrationCredential{},
	}

	secret, err := ResolveStoreBackedProviderCredential(path, store, "", "openai", AuthOAuthToken, now)
	require.NoError(t, err)
	require.Equal(t, "still-valid", secret.Expose())
}
