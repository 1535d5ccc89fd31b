// Package tenant maps a routing key (channel workspace / phone number) to
// the tenant context every downstream step runs under.
package tenant

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/nextlevelbuilder/answergrid/internal/config"
	"github.com/nextlevelbuilder/answergrid/internal/crypto"
	"github.com/nextlevelbuilder/answergrid/internal/store"
)

// Resolution sources.
const (
	SourceIntegration = "integration"
	SourceFallback    = "fallback"
)

// Context carries everything tenant-scoped the pipeline needs. Credential
// holds the decrypted per-tenant channel credential; empty means "use the
// platform default".
type Context struct {
	TenantID      string
	UserID        string
	Integration   *store.IntegrationRecord // nil on the fallback branch
	Credential    string
	Persona       string
	MentionOnly   bool
	MentionTokens []string
	Features      []string
}

// Resolution is a resolved tenant context plus which branch produced it.
type Resolution struct {
	Context Context
	Source  string
}

// Resolver looks up integrations per routing key and decrypts their
// credentials.
type Resolver struct {
	integrations store.IntegrationStore
	defaults     config.TenantsConfig
	encKey       string
}

func NewResolver(integrations store.IntegrationStore, cfg config.TenantsConfig) *Resolver {
	return &Resolver{
		integrations: integrations,
		defaults:     cfg,
		encKey:       cfg.EncryptionKey,
	}
}

// Resolve maps a routing key to its tenant context. An unknown routing key
// is not an error: it takes the documented fallback branch with the
// configured default tenant. A credential that fails to decrypt degrades
// to the platform default rather than failing the event.
func (r *Resolver) Resolve(ctx context.Context, channelType, routingKey string) (*Resolution, error) {
	rec, err := r.integrations.FindByRoutingKey(ctx, channelType, routingKey)
	if err != nil {
		return nil, fmt.Errorf("resolve tenant for %s/%s: %w", channelType, routingKey, err)
	}
	if rec == nil {
		slog.Debug("no integration for routing key, using fallback tenant",
			"channel_type", channelType, "routing_key", routingKey)
		return &Resolution{
			Context: Context{
				TenantID: r.defaults.DefaultTenantID,
				UserID:   r.defaults.DefaultUserID,
			},
			Source: SourceFallback,
		}, nil
	}

	credential := ""
	if rec.EncryptedCredential != "" {
		credential, err = crypto.Decrypt(rec.EncryptedCredential, r.encKey)
		if err != nil {
			slog.Warn("tenant credential decrypt failed, degrading to platform default",
				"tenant_id", rec.TenantID, "integration_id", rec.ID, "error", err)
			credential = ""
		}
	}

	return &Resolution{
		Context: Context{
			TenantID:      rec.TenantID,
			UserID:        rec.UserID,
			Integration:   rec,
			Credential:    credential,
			Persona:       rec.Persona,
			MentionOnly:   rec.MentionOnly,
			MentionTokens: rec.MentionTokens,
			Features:      rec.Features,
		},
		Source: SourceIntegration,
	}, nil
}
