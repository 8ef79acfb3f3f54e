// Package gateway exposes the warehouse over the PostgreSQL wire protocol so
// BI tools and psql can query the rollup tables and reporting views directly.
package gateway

import (
	"errors"
	"fmt"
	"log/slog"
	"net"
	"os"
	"strings"
	"time"

	"github.com/sentimetry/pipeline/internal/store"
)

const defaultShutdownTimeout = 10 * time.Second

type Config struct {
	Logger   *slog.Logger
	Store    *store.Store
	Listener net.Listener

	// Accounts maps username to password for cleartext authentication.
	// Empty disables authentication entirely.
	Accounts map[string]string

	ShutdownTimeout time.Duration
}

// LoadFromEnv fills Accounts from SENTIMETRY_PG_ACCOUNTS, a comma-separated
// list of username:password pairs.
func (cfg *Config) LoadFromEnv() error {
	if cfg.Accounts == nil {
		cfg.Accounts = make(map[string]string)
	}

	accountsEnv := os.Getenv("SENTIMETRY_PG_ACCOUNTS")
	if accountsEnv == "" {
		return nil
	}

	for _, accountStr := range strings.Split(accountsEnv, ",") {
		accountStr = strings.TrimSpace(accountStr)
		if accountStr == "" {
			continue
		}

		parts := strings.SplitN(accountStr, ":", 2)
		if len(parts) != 2 {
			return fmt.Errorf("invalid account format in SENTIMETRY_PG_ACCOUNTS: %q (expected username:password)", accountStr)
		}

		username := strings.TrimSpace(parts[0])
		password := strings.TrimSpace(parts[1])

		if username == "" {
			return fmt.Errorf("username cannot be empty in SENTIMETRY_PG_ACCOUNTS: %q", accountStr)
		}

		cfg.Accounts[username] = password
	}

	return nil
}

func (cfg *Config) Validate() error {
	if cfg.Logger == nil {
		return errors.New("logger is required")
	}
	if cfg.Store == nil {
		return errors.New("store is required")
	}
	if cfg.Listener == nil {
		return errors.New("listener is required")
	}

	// Optional with defaults
	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = defaultShutdownTimeout
	}
	return nil
}
