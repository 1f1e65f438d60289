package source

import "context"

// ReportItem is one animal report to register, read from a bulk source.
type ReportItem struct {
	SourceID    string // unique within the source
	LocalPath   string // image file on the source filesystem
	Filename    string
	Latitude    *float64
	Longitude   *float64
	Status      string
	Description string
	Line        int // manifest line, for error reports
}

// Source defines the interface for bulk report sources.
type Source interface {
	// GetSourceID returns the unique identifier for this source.
	GetSourceID() string

	// GetDisplayName returns a human-readable name for this source.
	GetDisplayName() string

	// FetchBatch fetches a batch of items starting from the given cursor.
	// Parameters:
	//   - ctx: context for cancellation and deadlines.
	//   - cursor: pagination cursor or empty for first page.
	//   - limit: maximum number of items to fetch.
	// Returns:
	//   - items: batch of report items.
	//   - nextCursor: cursor for the next batch or empty if done.
	//   - err: non-nil if fetching fails.
	FetchBatch(ctx context.Context, cursor string, limit int) (items []ReportItem, nextCursor string, err error)
}
