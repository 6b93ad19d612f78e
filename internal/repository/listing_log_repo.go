package repository

import (
	"context"

	"github.com/user/listing-harvester/internal/entity"
)

// ListingLogRepository appends qualifying listings to durable storage.
type ListingLogRepository interface {
	// Append writes one record. It never rewrites earlier records.
	Append(ctx context.Context, record entity.ListingRecord) error
	Close() error
}
