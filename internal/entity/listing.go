package entity

import "time"

// NotAvailable is the sentinel stored for fields that could not be extracted.
const NotAvailable = "N/A"

// RecordVersion is written into every appended line as "v".
const RecordVersion = 1

// ListingRecord mirrors one line of the append-only listings log.
type ListingRecord struct {
	Version     int       `json:"v"`
	Region      string    `json:"region"`
	Title       string    `json:"title"`
	Price       string    `json:"price"`
	PostedAt    time.Time `json:"postedAt"`
	URL         string    `json:"url"`
	Fingerprint string    `json:"fingerprint"`
}

// Region is one geographic search surface.
type Region struct {
	ID  string `mapstructure:"id" yaml:"id" json:"id"`
	URL string `mapstructure:"url" yaml:"url" json:"url"`
}

// RejectReason explains why a rendered listing page did not produce a record.
type RejectReason string

const (
	RejectNone            RejectReason = ""
	RejectInterstitial    RejectReason = "interstitial"
	RejectNoTimestamp     RejectReason = "no_timestamp"
	RejectTooOld          RejectReason = "too_old"
	RejectNoPrice         RejectReason = "no_price"
	RejectPriceOutOfRange RejectReason = "price_out_of_range"
)
