package credential

import (
	"fmt"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/njfio/tau/tauerrors"
)

// ProviderCredentialRow is the relational mirror of one provider
// credential, carrying no secret material — only what an audit query
// needs (method, revocation, expiry, last-sync time).
type ProviderCredentialRow struct {
	ProviderID  string `gorm:"primaryKey"`
	AuthMethod  string
	Revoked     bool
	ExpiresUnix *int64
	SyncedUnix  int64
}

// IntegrationCredentialRow is the relational mirror of one integration
// credential, carrying no secret material.
type IntegrationCredentialRow struct {
	IntegrationID string `gorm:"primaryKey"`
	Revoked       bool
	UpdatedUnix   *int64
	SyncedUnix    int64
}

// AuditMirror is an optional relational mirror of a CredentialStoreFile's
// provider/integration rows, queryable by audit tooling that wants SQL
// filters (e.g. "all revoked providers since T") the flat JSON store
// doesn't offer directly.
type AuditMirror struct {
	db *gorm.DB
}

// OpenAuditMirror opens (creating if absent) a sqlite-backed audit
// mirror at path and ensures its schema, mirroring the teacher's own
// AutoMigrate-on-open pattern for its simplest database case.
func OpenAuditMirror(path string) (*AuditMirror, error) {
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{})
	if err != nil {
		return nil, tauerrors.New(tauerrors.CodeRetryableFailure, "audit_mirror_open_failed").WithCause(err)
	}
	if err := db.AutoMigrate(&ProviderCredentialRow{}, &IntegrationCredentialRow{}); err != nil {
		return nil, tauerrors.New(tauerrors.CodeRetryableFailure, "audit_mirror_migrate_failed").WithCause(err)
	}
	return &AuditMirror{db: db}, nil
}

// NewAuditMirrorFromDB wraps an already-open *gorm.DB without performing
// AutoMigrate; the caller is responsible for the schema.
func NewAuditMirrorFromDB(db *gorm.DB) *AuditMirror {
	return &AuditMirror{db: db}
}

// Sync upserts every provider and integration row of store into the
// mirror, stamping each with nowUnix as its last-synced time. It never
// reads or writes AccessToken/RefreshToken/Secret.
func (m *AuditMirror) Sync(store *CredentialStoreFile, nowUnix int64) error {
	for providerID, cred := range store.Providers {
		row := ProviderCredentialRow{
			ProviderID:  providerID,
			AuthMethod:  string(cred.AuthMethod),
			Revoked:     cred.Revoked,
			ExpiresUnix: cred.ExpiresUnix,
			SyncedUnix:  nowUnix,
		}
		if err := m.db.Save(&row).Error; err != nil {
			return fmt.Errorf("sync provider credential %q: %w", providerID, err)
		}
	}
	for integrationID, cred := range store.Integrations {
		row := IntegrationCredentialRow{
			IntegrationID: integrationID,
			Revoked:       cred.Revoked,
			UpdatedUnix:   cred.UpdatedUnix,
			SyncedUnix:    nowUnix,
		}
		if err := m.db.Save(&row).Error; err != nil {
			return fmt.Errorf("sync integration credential %q: %w", integrationID, err)
		}
	}
	return nil
}

// RevokedProviderIDsSince returns provider ids whose mirrored row is
// revoked and was synced at or after sinceUnix.
func (m *AuditMirror) RevokedProviderIDsSince(sinceUnix int64) ([]string, error) {
	var rows []ProviderCredentialRow
	err := m.db.Where("revoked = ? AND synced_unix >= ?", true, sinceUnix).Order("provider_id").Find(&rows).Error
	if err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(rows))
	for _, row := range rows {
		ids = append(ids, row.ProviderID)
	}
	return ids, nil
}

// ExpiringProviderIDs returns provider ids whose mirrored ExpiresUnix
// falls within [nowUnix, nowUnix+withinSeconds).
func (m *AuditMirror) ExpiringProviderIDs(nowUnix int64, withinSeconds int64) ([]string, error) {
	var rows []ProviderCredentialRow
	err := m.db.Where("expires_unix >= ? AND expires_unix < ?", nowUnix, nowUnix+withinSeconds).
		Order("expires_unix").Find(&rows).Error
	if err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(rows))
	for _, row := range rows {
		ids = append(ids, row.ProviderID)
	}
	return ids, nil
}

// Close releases the underlying sql.DB connection.
func (m *AuditMirror) Close() error {
	sqlDB, err := m.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// NowUnix is the audit mirror's clock, a thin wrapper so callers don't
// reach for time.Now() directly at call sites that also take a nowUnix
// parameter in tests.
func NowUnix() int64 { return time.Now().Unix() }
