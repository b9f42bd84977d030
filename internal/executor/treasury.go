package executor

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"covault/internal/engine"
)

// Treasury settles value transfers to named internal accounts. The engine has
// already reserved the pooled funds by the time Attempt runs; the treasury's
// job is to credit the receiving account and keep a disbursement trail.
type Treasury struct {
	mu       sync.Mutex
	accounts map[string]uint64
	logger   *slog.Logger
}

func NewTreasury(logger *slog.Logger) *Treasury {
	return &Treasury{
		accounts: make(map[string]uint64),
		logger:   logger,
	}
}

func (t *Treasury) Attempt(ctx context.Context, d engine.Delivery) error {
	_, account, ok := strings.Cut(d.Destination, ":")
	if !ok || account == "" {
		return fmt.Errorf("treasury destination %q missing account", d.Destination)
	}

	t.mu.Lock()
	t.accounts[account] += d.Value
	balance := t.accounts[account]
	t.mu.Unlock()

	if t.logger != nil {
		t.logger.InfoContext(ctx, "treasury disbursement settled",
			"account", account,
			"value", d.Value,
			"balance", balance,
			"entry_index", d.Index.String(),
		)
	}
	return nil
}

// Balance reports the settled total for an account.
func (t *Treasury) Balance(account string) uint64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.accounts[account]
}
