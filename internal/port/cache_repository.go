package port

import "context"

type IdempotencyRepository interface {
	// ReserveIdempotency claims key for an in-flight submission, returns false if already claimed;
	// a claim that is never bound lapses after a short while
	ReserveIdempotency(ctx context.Context, key string) (bool, error)

	// LookupIdempotency returns the order id bound to key, 0 while only reserved
	LookupIdempotency(ctx context.Context, key string) (int64, bool, error)

	// BindIdempotency records the order id created for key
	BindIdempotency(ctx context.Context, key string, orderID int64) error

	// ReleaseIdempotency drops a reservation so the submission can be retried
	ReleaseIdempotency(ctx context.Context, key string) error
}
