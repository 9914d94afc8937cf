//go:build cgo
// +build cgo

package credential_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/njfio/tau/credential"
)

func TestAuditMirrorSyncAndQueryRoundTrip(t *testing.T) {
	mirror, err := credential.OpenAuditMirror(":memory:")
	require.NoError(t, err)
	defer mirror.Close()

	expiresUnix := int64(1893456000)
	updatedUnix := int64(1893450000)
	store := &credential.CredentialStoreFile{
		SchemaVersion: 1,
		Providers: map[string]credential.StoredProviderCredential{
			"anthropic": {AuthMethod: "oauth", Revoked: false, ExpiresUnix: &expiresUnix},
			"openai":    {AuthMethod: "api_key", Revoked: true},
		},
		Integrations: map[string]credential.StoredIntegrationCredential{
			"github-webhook": {Revoked: false, UpdatedUnix: &updatedUnix},
		},
	}

	require.NoError(t, mirror.Sync(store, 1893000000))

	revoked, err := mirror.RevokedProviderIDsSince(1892000000)
	require.NoError(t, err)
	require.Equal(t, []string{"openai"}, revoked)

	expiring, err := mirror.ExpiringProviderIDs(1893000000, 1000000)
	require.NoError(t, err)
	require.Equal(t, []string{"anthropic"}, expiring)
}

func TestAuditMirrorSyncIsIdempotent(t *testing.T) {
	mirror, err := credential.OpenAuditMirror(":memory:")
	require.NoError(t, err)
	defer mirror.Close()

	store := &credential.CredentialStoreFile{
		Providers: map[string]credential.StoredProviderCredential{
			"anthropic": {AuthMethod: "oauth", Revoked: false},
		},
	}

	require.NoError(t, mirror.Sync(store, 100))
	require.NoError(t, mirror.Sync(store, 200))

	revoked, err := mirror.RevokedProviderIDsSince(0)
	require.NoError(t, err)
	require.Empty(t, revoked)
}
