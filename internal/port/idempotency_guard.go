package port

import "context"

type IdempotencyGuard interface {
	// SetIdempotency claims a request key, returns false if it was already claimed
	SetIdempotency(ctx context.Context, key string) (bool, error)

	// ClearIdempotency releases a key so a failed request can be retried
	ClearIdempotency(ctx context.Context, key string) error
}
