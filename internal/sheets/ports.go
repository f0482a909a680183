package sheets

import (
	"context"

	"studylog/internal/core"
)

// Ports for outbound adapters.
type (
	// HourAppender mirrors a single hour record to a backup sheet.
	HourAppender interface {
		AppendHour(ctx context.Context, entryID string, date core.Date, rec core.HourRecord) (rowRef string, err error)
	}
)
