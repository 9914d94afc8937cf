// Package ops implements the diagnostics and onboarding commands
// supplemented from original_source/'s diagnostics_commands.rs and
// profile_commands.rs: a secret-free shape dump of the credential
// store, channel-store inventory counts, and RPC run counts.
package ops

import (
	"github.com/njfio/tau/channel"
	"github.com/njfio/tau/credential"
	"github.com/njfio/tau/rpc"
)

// CredentialShape is a secret-free summary of a credential store: ids
// and revocation/expiry state only, never a token or secret value.
type CredentialShape struct {
	SchemaVersion       int                       `json:"schema_version"`
	Encryption          credential.EncryptionMode `json:"encryption"`
	ProviderIDs         []string                  `json:"provider_ids"`
	RevokedProviders    []string                  `json:"revoked_providers"`
	IntegrationIDs      []string                  `json:"integration_ids"`
	RevokedIntegrations []string                  `json:"revoked_integrations"`
}

// DescribeCredentialStore derives a CredentialShape from a loaded
// store without ever reading a secret field.
func DescribeCredentialStore(store *credential.CredentialStoreFile) CredentialShape {
	shape := CredentialShape{
		SchemaVersion: store.SchemaVersion,
		Encryption:    store.Encryption,
	}
	for id, cred := range store.Providers {
		shape.ProviderIDs = append(shape.ProviderIDs, id)
		if cred.Revoked {
			shape.RevokedProviders = append(shape.RevokedProviders, id)
		}
	}
	for id, cred := range store.Integrations {
		shape.IntegrationIDs = append(shape.IntegrationIDs, id)
		if cred.Revoked {
			shape.RevokedIntegrations = append(shape.RevokedIntegrations, id)
		}
	}
	return shape
}

// ChannelInventory is the per-conversation artifact/attachment count
// summary for one channel Store.
type ChannelInventory struct {
	LiveArtifacts int `json:"live_artifacts"`
	InvalidLines  int `json:"invalid_lines"`
}

// DescribeChannelStore inspects a Store's artifact manifest.
func DescribeChannelStore(store *channel.Store, nowUnixMs int64) (ChannelInventory, error) {
	live, invalid, err := store.ArtifactInventory(nowUnixMs)
	if err != nil {
		return ChannelInventory{}, err
	}
	return ChannelInventory{LiveArtifacts: len(live), InvalidLines: invalid}, nil
}

// RunCounts summarizes an RPC Registry's run lifecycle state.
type RunCounts struct {
	Total    int `json:"total"`
	Active   int `json:"active"`
	Terminal int `json:"terminal"`
}

// DescribeRegistry counts runs by active/terminal state. It takes a
// snapshot function rather than reaching into Registry internals,
// since Registry's run map is guarded by its own mutex.
func DescribeRegistry(runIDs []string, statusOf func(string) rpc.StatusView) RunCounts {
	counts := RunCounts{Total: len(runIDs)}
	for _, id := range runIDs {
		view := statusOf(id)
		if view.Active {
			counts.Active++
		} else if view.Known {
			counts.Terminal++
		}
	}
	return counts
}

// Diagnostics is the combined human-readable dump of the credential
// shape, channel inventory and RPC run counts.
type Diagnostics struct {
	Credential CredentialShape  `json:"credential,omitempty"`
	Channel    ChannelInventory `json:"channel,omitempty"`
	Runs       RunCounts        `json:"runs,omitempty"`
}
