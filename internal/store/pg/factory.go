package pg

import (
	"fmt"

	"github.com/nextlevelbuilder/answergrid/internal/store"
)

// NewPGStores creates all stores backed by Postgres (managed mode).
func NewPGStores(dsn string) (*store.Stores, error) {
	db, err := OpenDB(dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}

	return &store.Stores{
		Integrations: NewPGIntegrationStore(db),
		Threads:      NewPGThreadStore(db),
		Audit:        NewPGAuditStore(db),
		DeadLetters:  NewPGDeadLetterStore(db),
		Closer:       db.Close,
	}, nil
}
