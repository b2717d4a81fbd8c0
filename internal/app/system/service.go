// Package system coordinates the lifecycle of long-running components such
// as the Telegram bot and the maintenance scheduler.
package system

import "context"

// Service is a component started and stopped by Manager.
type Service interface {
	Name() string
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
}
