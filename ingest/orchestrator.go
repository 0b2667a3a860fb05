package ingest

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/rs/xid"
	"github.com/sig-0/iq"

	"github.com/sig-0/vedollar/metrics"
	"github.com/sig-0/vedollar/storage"
	"github.com/sig-0/vedollar/storage/types"
)

var (
	errInvalidProvider = errors.New("invalid provider")
	errInvalidInterval = errors.New("invalid interval")
)

// Orchestrator is the main job scheduler for registered providers
type Orchestrator struct {
	storage storage.Storage
	logger  *slog.Logger
	metrics *metrics.Ingest

	registeredProviders sync.Map

	order    []xid.ID // registration order
	orderMux sync.Mutex

	q             iq.Queue[scheduledIngest]
	queryInterval time.Duration
	retryDelay    time.Duration
	qMux          sync.Mutex
}

// New creates a new Orchestrator instance
func New(storage storage.Storage, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		logger:        slog.New(slog.NewTextHandler(io.Discard, nil)),
		storage:       storage,
		q:             iq.NewQueue[scheduledIngest](),
		queryInterval: time.Second,      // every second
		retryDelay:    time.Second * 10, // TODO retry exponentially?
	}

	// Apply the options
	for _, opt := range opts {
		opt(o)
	}

	return o
}

// Register registers a new provider with the orchestrator.
// The provider is immediately queued up for execution
func (o *Orchestrator) Register(p Provider) error {
	if p == nil || p.Name() == "" {
		return errInvalidProvider
	}

	if p.Interval() <= 0 {
		return errInvalidInterval
	}

	// Register the provider
	id := xid.New()
	o.registeredProviders.Store(id, p)

	o.orderMux.Lock()
	o.order = append(o.order, id)
	o.orderMux.Unlock()

	o.logger.Info(
		"registered new provider",
		"name", p.Name(),
		"source", p.Source().String(),
	)

	// Schedule the job
	o.scheduleIngest(
		time.Now().UTC(),
		id,
		p,
	)

	return nil
}

// RunOnce runs every registered provider once, in registration order [BLOCKING].
// A failed provider does not stop the rest; the individual errors are joined
func (o *Orchestrator) RunOnce(ctx context.Context) error {
	o.orderMux.Lock()
	ids := make([]xid.ID, len(o.order))
	copy(ids, o.order)
	o.orderMux.Unlock()

	var errs []error

	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)

			break
		}

		rpRaw, ok := o.registeredProviders.Load(id)
		if !ok {
			continue
		}

		rp, _ := rpRaw.(Provider)

		if err := o.ingest(ctx, rp); err != nil {
			o.logger.Error(
				"provider ingest failed",
				"name", rp.Name(),
				"err", err,
			)

			errs = append(errs, fmt.Errorf("%s: %w", rp.Name(), err))
		}
	}

	return errors.Join(errs...)
}

// Start starts the provider orchestration service loop [BLOCKING]
func (o *Orchestrator) Start(ctx context.Context) error {
	collectorCh := make(chan *workerResponse, 100)

	// Start a listener for monitoring jobs
	ticker := time.NewTicker(o.queryInterval)
	defer ticker.Stop()

	// handleIngest initializes all jobs that are executable (due)
	handleIngest := func() {
		for {
			select {
			case <-ctx.Done():
				return
			default:
				nextSI := o.nextIngest()
				if nextSI == nil {
					return // nothing to schedule anymore
				}

				o.logger.Info(
					"scheduling ingest",
					"name", nextSI.provider.Name(),
				)

				// Spawn worker
				info := &workerInfo{
					provider:   nextSI.provider,
					providerID: nextSI.providerID,
					resCh:      collectorCh,
				}

				go o.handleJob(ctx, info)
			}
		}
	}

	// Initialize the first set of due jobs (on boot)
	handleIngest()

	for {
		select {
		case <-ctx.Done():
			o.logger.Info("orchestrator service shut down")

			return nil
		case <-ticker.C:
			handleIngest()
		case response := <-collectorCh:
			now := time.Now().UTC()

			rpRaw, ok := o.registeredProviders.Load(response.providerID)
			if !ok {
				o.logger.Error(
					"unable to load registered provider",
					"id", response.providerID.String(),
				)

				continue
			}

			rp, _ := rpRaw.(Provider)

			if response.error != nil {
				o.logger.Error(
					"error encountered during ingest",
					"id", response.providerID.String(),
					"name", rp.Name(),
					"err", response.error.Error(),
				)

				// Retry ingest job soon
				o.scheduleIngest(
					now.Add(o.retryDelay),
					response.providerID,
					rp,
				)

				continue
			}

			// Schedule a new ingest for this provider
			o.scheduleIngest(
				now.Add(rp.Interval()),
				response.providerID,
				rp,
			)
		}
	}
}

// ingest fetches the provider batch past the stored cursor, and persists it.
// The cursor only moves together with a saved batch
func (o *Orchestrator) ingest(ctx context.Context, p Provider) error {
	source := p.Source()

	cursor, err := o.storage.Cursor(ctx, source)
	if err != nil {
		o.recordFailure(source.String(), metrics.OutcomeFetchFailed)

		return fmt.Errorf("unable to read cursor: %w", err)
	}

	start := time.Now()

	batch, err := p.Fetch(ctx, cursor)
	if err != nil {
		o.recordFailure(source.String(), metrics.OutcomeFetchFailed)

		return fmt.Errorf("unable to fetch batch: %w", err)
	}

	fetchDuration := time.Since(start)

	if batch == nil {
		batch = &types.Batch{}
	}

	// Batches are always attributed to the provider's source
	batch.Source = source

	if err = o.storage.SaveBatch(ctx, batch, time.Now().UTC()); err != nil {
		o.recordFailure(source.String(), metrics.OutcomeSaveFailed)

		return fmt.Errorf("unable to save batch: %w", err)
	}

	if o.metrics != nil {
		o.metrics.RecordSaved(
			source.String(),
			len(batch.Observations),
			batch.Skipped,
			fetchDuration.Seconds(),
		)
	}

	o.logger.Info(
		"saved batch",
		"name", p.Name(),
		"source", source.String(),
		"observations", len(batch.Observations),
		"skipped", batch.Skipped,
		"fetch_duration", fetchDuration.String(),
	)

	return nil
}

func (o *Orchestrator) recordFailure(source, outcome string) {
	if o.metrics == nil {
		return
	}

	o.metrics.RecordFailure(source, outcome)
}

// scheduleIngest schedules a new provider ingest
func (o *Orchestrator) scheduleIngest(
	at time.Time,
	providerID xid.ID,
	provider Provider,
) {
	o.qMux.Lock()
	defer o.qMux.Unlock()

	futureSI := scheduledIngest{
		at:         at,
		providerID: providerID,
		provider:   provider,
	}

	o.q.Push(futureSI)
}

// nextIngest fetches the next due ingest job, as of the moment of calling
func (o *Orchestrator) nextIngest() *scheduledIngest {
	o.qMux.Lock()
	defer o.qMux.Unlock()

	now := time.Now().UTC()

	// Check if anything needs to be scheduled
	if o.q.Len() == 0 {
		return nil // nothing to schedule, all jobs are running
	}

	// Check if the top element is due
	if o.q.Index(0).at.After(now) {
		return nil // nothing to schedule, latest job is in the future
	}

	// Grab the next job
	nextSI := o.q.PopFront()

	return nextSI
}
