package backend

import (
	"context"
	"path/filepath"
	"testing"

	"slotledger/internal/config"
	"slotledger/internal/core"
	"slotledger/internal/log"
)

func TestFromAppConfig(t *testing.T) {
	tests := []struct {
		name    string
		cfg     *config.Config
		want    BackendType
		wantErr bool
	}{
		{"nil config", nil, "", true},
		{"memory", &config.Config{DataBackend: "memory"}, MemoryBackend, false},
		{"sqlite", &config.Config{DataBackend: "sqlite", SQLiteDBPath: "x.db"}, SQLiteBackend, false},
		{"sheets is gone", &config.Config{DataBackend: "sheets"}, "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := FromAppConfig(tt.cfg)
			if (err != nil) != tt.wantErr {
				t.Fatalf("err = %v, wantErr %v", err, tt.wantErr)
			}
			if got.Type != tt.want {
				t.Errorf("type = %q, want %q", got.Type, tt.want)
			}
		})
	}
}

func TestConfigValidate(t *testing.T) {
	if err := (Config{Type: SQLiteBackend}).Validate(); err == nil {
		t.Error("sqlite without a path should fail")
	}
	if err := (Config{Type: "postgres"}).Validate(); err == nil {
		t.Error("unknown backend should fail")
	}
	if err := (Config{Type: MemoryBackend}).Validate(); err != nil {
		t.Errorf("memory: %v", err)
	}
}

func TestCreateBackend(t *testing.T) {
	ctx := context.Background()
	factory := NewFactory(log.Discard())

	for _, cfg := range []Config{
		{Type: MemoryBackend},
		{Type: SQLiteBackend, SQLiteDBPath: filepath.Join(t.TempDir(), "ledger.db")},
	} {
		t.Run(cfg.Type.String(), func(t *testing.T) {
			res, err := factory.CreateBackend(ctx, cfg)
			if err != nil {
				t.Fatalf("CreateBackend: %v", err)
			}
			defer res.Cleanup()

			if err := res.Ping(ctx); err != nil {
				t.Fatalf("Ping: %v", err)
			}
			acc, err := res.Store.CreateAccount(ctx, core.Account{BankID: "088", AccountNo: "1"})
			if err != nil {
				t.Fatalf("CreateAccount: %v", err)
			}
			if _, err := res.Store.GetAccount(ctx, acc.ID); err != nil {
				t.Fatalf("GetAccount: %v", err)
			}
		})
	}
}
