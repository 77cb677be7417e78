package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/FranksOps/slsharvest/internal/config"
	"github.com/FranksOps/slsharvest/internal/storage"
	"github.com/FranksOps/slsharvest/internal/storage/csvbackend"
	"github.com/FranksOps/slsharvest/internal/storage/jsonbackend"
	"github.com/FranksOps/slsharvest/internal/storage/postgres"
	"github.com/FranksOps/slsharvest/internal/storage/sqlite"
)

var ledgerFiles = map[string]string{
	config.LedgerJSONL:  "ledger.jsonl",
	config.LedgerCSV:    "ledger.csv",
	config.LedgerSQLite: "ledger.db",
}

// openLedger returns the configured backend, or nil for "none".
func openLedger(ctx context.Context, kind, dsn, root string) (storage.Backend, error) {
	switch kind {
	case config.LedgerNone:
		return nil, nil
	case config.LedgerPostgres:
		return postgres.New(ctx, dsn)
	}

	path := dsn
	if path == "" {
		name, ok := ledgerFiles[kind]
		if !ok {
			return nil, fmt.Errorf("unknown ledger %q", kind)
		}
		path = filepath.Join(root, name)
	}

	switch kind {
	case config.LedgerJSONL:
		return jsonbackend.New(path)
	case config.LedgerCSV:
		return csvbackend.New(path)
	default:
		return sqlite.New(path)
	}
}

// readLedger loads the records of an existing run, trying each file-based
// ledger the run root may hold.
func readLedger(ctx context.Context, root, dsn string, filter storage.Filter) ([]*storage.PageRecord, error) {
	if dsn != "" {
		b, err := postgres.New(ctx, dsn)
		if err != nil {
			return nil, err
		}
		defer b.Close()
		return b.Query(ctx, filter)
	}

	for _, kind := range []string{config.LedgerJSONL, config.LedgerCSV, config.LedgerSQLite} {
		path := filepath.Join(root, ledgerFiles[kind])
		if _, err := os.Stat(path); err != nil {
			continue
		}
		if kind == config.LedgerJSONL {
			return jsonbackend.Read(ctx, path, filter)
		}
		b, err := openLedger(ctx, kind, path, root)
		if err != nil {
			return nil, err
		}
		defer b.Close()
		return b.Query(ctx, filter)
	}
	return nil, errors.New("no ledger found in " + root)
}
