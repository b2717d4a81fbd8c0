package telegram

import (
	"context"
	"fmt"

	"github.com/R3E-Network/barbershop/internal/app/storage"
	"github.com/R3E-Network/barbershop/pkg/logger"
)

// BootstrapAdmins inserts every configured Telegram id missing from the
// admins table and returns how many were added.
func BootstrapAdmins(ctx context.Context, store storage.AdminStore, ids []int64, log *logger.Logger) (int, error) {
	if log == nil {
		log = logger.NewDefault("telegram-admins")
	}
	added := 0
	for _, id := range ids {
		created, err := store.EnsureAdmin(ctx, id)
		if err != nil {
			return added, fmt.Errorf("ensure admin %d: %w", id, err)
		}
		if created {
			added++
			log.WithField("telegram_id", id).Info("admin bootstrapped")
		}
	}
	return added, nil
}
