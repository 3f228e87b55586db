package cluster

import (
	"context"

	"arena-service/internal/service/match"
)

// LocalBackend adapts the in-process match coordinator to the
// QueueBackend interface, so the node hosting the router is itself
// just another ring member.
type LocalBackend struct {
	svc *match.Service
}

func NewLocalBackend(svc *match.Service) *LocalBackend {
	return &LocalBackend{svc: svc}
}

func (b *LocalBackend) Enqueue(ctx context.Context, playerID string) (match.QueueResult, error) {
	return b.svc.JoinQueue(ctx, playerID)
}

func (b *LocalBackend) Rehome(ctx context.Context, playerID string) (match.QueueResult, error) {
	return b.svc.Rehome(ctx, playerID)
}

func (b *LocalBackend) Withdraw(ctx context.Context, playerID string) error {
	return b.svc.LeaveQueue(ctx, playerID)
}

func (b *LocalBackend) Players(ctx context.Context) ([]string, error) {
	return b.svc.QueuedPlayerIDs(), nil
}

func (b *LocalBackend) Ping(ctx context.Context) error {
	return nil
}
