package ingest

import (
	"context"
	"time"

	"github.com/rs/xid"
)

// scheduledIngest is a single scheduled Provider ingest job
type scheduledIngest struct {
	at         time.Time
	provider   Provider
	providerID xid.ID
}

// Less is utilized to sort scheduled ingests by their due-time (latest == first)
func (a scheduledIngest) Less(b scheduledIngest) bool {
	return a.at.Before(b.at)
}

// workerInfo is the work context for the provider routine
type workerInfo struct {
	provider   Provider
	resCh      chan<- *workerResponse
	providerID xid.ID
}

// workerResponse is the provider routine response
type workerResponse struct {
	error      error  // encountered error, if any
	providerID xid.ID // the provider ID
}

// handleJob runs a single provider ingest (fetch + save)
func (o *Orchestrator) handleJob(
	ctx context.Context,
	info *workerInfo,
) {
	err := o.ingest(ctx, info.provider)

	response := &workerResponse{
		error:      err,
		providerID: info.providerID,
	}

	select {
	case <-ctx.Done():
	case info.resCh <- response:
	}
}
