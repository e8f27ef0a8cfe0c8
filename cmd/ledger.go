// cmd/ledger.go
package cmd

import (
	"context"
	"fmt"

	"github.com/xkilldash9x/regress-cli/api/schemas"
	"github.com/xkilldash9x/regress-cli/internal/config"
	"github.com/xkilldash9x/regress-cli/internal/faults"
	"github.com/xkilldash9x/regress-cli/internal/observability"
	"github.com/xkilldash9x/regress-cli/internal/session"
	"github.com/xkilldash9x/regress-cli/internal/store"
)

// ledgerProvider opens the run ledger. The indirection lets tests inject a
// mock instead of connecting to PostgreSQL.
type ledgerProvider interface {
	// Create returns a nil ledger when none is configured.
	Create(ctx context.Context, cfg config.Interface) (schemas.RunLedger, func(), error)
}

type defaultLedgerProvider struct{}

// NewLedgerProvider returns the production provider.
func NewLedgerProvider() ledgerProvider {
	return defaultLedgerProvider{}
}

func (defaultLedgerProvider) Create(ctx context.Context, cfg config.Interface) (schemas.RunLedger, func(), error) {
	url := cfg.Database().URL
	if url == "" {
		return nil, func() {}, nil
	}
	logger := observability.GetLogger()
	s, closeFn, err := store.Open(ctx, url, logger)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to initialize run ledger: %w", err)
	}
	cleanup := func() {
		closeFn()
		logger.Debug("Database connection pool closed.")
	}
	return s, cleanup, nil
}

// requireSession fails with the auth remediation when no session was captured yet.
func requireSession(cfg config.Interface, op string) (*session.Store, error) {
	s := session.NewStore(cfg.Project().SessionPath())
	if !s.Exists() {
		return nil, faults.Missing(op, "stored session", session.RemedyAuth)
	}
	return s, nil
}
