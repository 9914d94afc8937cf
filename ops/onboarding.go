package ops

import (
	"github.com/njfio/tau/credential"
	"github.com/njfio/tau/tauerrors"
)

// ProviderSelection is one step of the onboarding wizard's provider
// bootstrap: the provider id and the credential to persist for it.
type ProviderSelection struct {
	ProviderID string
	Credential credential.StoredProviderCredential
}

// Wizard walks through provider selection and persists the first
// credential to a store, standing in for the interactive CLI prompt
// flow (out of scope per spec's CLI-surface Non-goal) so the bootstrap
// step itself stays testable.
type Wizard struct {
	Store *credential.CredentialStoreFile
}

// NewWizard starts an onboarding session against an empty or
// previously loaded store.
func NewWizard(store *credential.CredentialStoreFile) *Wizard {
	return &Wizard{Store: store}
}

// Bootstrap persists the first provider credential the wizard walk
// produced. It refuses to overwrite an existing, non-revoked
// credential for the same provider id.
func (w *Wizard) Bootstrap(selection ProviderSelection) error {
	if existing, ok := w.Store.Providers[selection.ProviderID]; ok && !existing.Revoked {
		return tauerrors.Newf(tauerrors.CodeInvalidPayload, "provider %q already has an active credential", selection.ProviderID)
	}
	if w.Store.Providers == nil {
		w.Store.Providers = make(map[string]credential.StoredProviderCredential)
	}
	w.Store.Providers[selection.ProviderID] = selection.Credential
	return nil
}
