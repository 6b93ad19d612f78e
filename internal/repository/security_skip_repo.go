package repository

import "context"

// SecuritySkipRepository counts how often a listing came back as a checkpoint page.
type SecuritySkipRepository interface {
	// Hits returns the recorded checkpoint count for a fingerprint.
	Hits(ctx context.Context, fingerprint string) (int, error)
	// RecordHit increments the count for a fingerprint and returns the new value.
	RecordHit(ctx context.Context, fingerprint string) (int, error)
	// Clear forgets a fingerprint once its listing rendered normally again.
	Clear(ctx context.Context, fingerprint string) error
}
