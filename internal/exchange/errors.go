// Package exchange moves load data in and out of the system: forecast file
// retrieval and merging from remote providers, historic metering lookups and
// outbound delivery to the schedule management and the trading partner.
package exchange

import "fmt"

// NoMatchingAsset means the upstream system knows nothing about the asset
// identifier. The location is skipped for this cycle.
type NoMatchingAsset struct {
	AssetID string
}

func (e *NoMatchingAsset) Error() string {
	return fmt.Sprintf("no matching asset for identifier %q", e.AssetID)
}

// ConflictingSourceData means the asset identifier resolves to several
// upstream records whose series disagree. Picking one silently would deliver
// wrong numbers, so the location is skipped for this cycle.
type ConflictingSourceData struct {
	AssetID string
}

func (e *ConflictingSourceData) Error() string {
	return fmt.Sprintf("conflicting source data for identifier %q", e.AssetID)
}

// RetrievalFailure wraps a transient I/O error from a remote source. The
// caller logs it and leaves the component's data stale for this cycle.
type RetrievalFailure struct {
	Source string
	Err    error
}

func (e *RetrievalFailure) Error() string {
	return fmt.Sprintf("retrieval from %s failed: %v", e.Source, e.Err)
}

func (e *RetrievalFailure) Unwrap() error { return e.Err }
