package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"sync"
	"sync/atomic"
	"time"

	"github.com/absmach/fltrain/pkg/crypto"
	"github.com/absmach/fltrain/pkg/dataset"
	pkgerrors "github.com/absmach/fltrain/pkg/errors"
	"github.com/absmach/fltrain/pkg/model"
	"github.com/absmach/fltrain/trainconfig"
	"github.com/google/uuid"
	"github.com/patrickmn/go-cache"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const (
	tracerName      = "github.com/absmach/fltrain/worker"
	cleanupInterval = time.Minute
)

type Service interface {
	// ID returns the worker's name.
	ID() string
	// RegisterConfig stores cfg under a fresh handle owned by session.
	RegisterConfig(ctx context.Context, session string, cfg trainconfig.TrainConfig) (string, error)
	// Fit runs one training call of handle's config against datasetKey.
	Fit(ctx context.Context, handle, datasetKey string) (FitResult, error)
	// Model returns the current encoded (and, if configured, sealed) model.
	Model(ctx context.Context, handle string) ([]byte, error)
	Release(ctx context.Context, handle string) error
	// ReleaseSession drops every handle registered by session and returns
	// how many were released.
	ReleaseSession(ctx context.Context, session string) int
	Datasets(ctx context.Context) []dataset.Info
	Stats(ctx context.Context) Stats
}

type FitResult struct {
	Loss    float64
	Batches int
	Samples int
}

type Stats struct {
	WorkerID      string    `json:"worker_id"`
	ActiveHandles int       `json:"active_handles"`
	Datasets      int       `json:"datasets"`
	Registrations uint64    `json:"registrations"`
	Fits          uint64    `json:"fits"`
	StartTime     time.Time `json:"start_time"`
}

// entry is the worker-side state behind a handle. mu serializes fits on the
// same handle; different handles train concurrently.
type entry struct {
	mu        sync.Mutex
	handle    string
	session   string
	model     *model.Model
	loss      model.Loss
	optimizer model.Optimizer
	hp        trainconfig.Hyperparams
	rng       *rand.Rand
	released  bool
}

type service struct {
	id            string
	datasets      *dataset.Store
	handles       *cache.Cache
	sealer        *crypto.Sealer
	events        Events
	logger        *slog.Logger
	tracer        trace.Tracer
	startTime     time.Time
	registrations atomic.Uint64
	fits          atomic.Uint64
}

var _ Service = (*service)(nil)

// NewService builds a worker. A zero handleTTL keeps handles until they are
// released explicitly or their session ends.
func NewService(id string, datasets *dataset.Store, sealer *crypto.Sealer, events Events, handleTTL time.Duration, logger *slog.Logger) Service {
	if events == nil {
		events = NewEvents(nil, id, logger)
	}

	ttl := handleTTL
	if ttl <= 0 {
		ttl = cache.NoExpiration
	}

	svc := &service{
		id:        id,
		datasets:  datasets,
		handles:   cache.New(ttl, cleanupInterval),
		sealer:    sealer,
		events:    events,
		logger:    logger,
		tracer:    otel.Tracer(tracerName),
		startTime: time.Now(),
	}

	svc.handles.OnEvicted(func(handle string, v any) {
		if e, ok := v.(*entry); ok {
			e.mu.Lock()
			e.released = true
			e.mu.Unlock()
		}
		activeHandles.WithLabelValues(id).Dec()
		logger.Debug("train config released", slog.String("handle", handle))
	})

	return svc
}

func (svc *service) ID() string {
	return svc.id
}

func (svc *service) RegisterConfig(ctx context.Context, session string, cfg trainconfig.TrainConfig) (string, error) {
	if err := cfg.Validate(); err != nil {
		return "", err
	}

	raw, err := svc.sealer.Open(cfg.Model)
	if err != nil {
		return "", fmt.Errorf("register: failed to open model: %w: %w", pkgerrors.ErrInvalidConfig, err)
	}

	m, err := model.Decode(raw)
	if err != nil {
		return "", fmt.Errorf("register: %w: %w", pkgerrors.ErrInvalidConfig, err)
	}

	loss, err := model.LossByName(cfg.Loss)
	if err != nil {
		return "", fmt.Errorf("register: %w: %w", pkgerrors.ErrInvalidConfig, err)
	}

	opt, err := model.NewOptimizer(cfg.Optimizer, cfg.Hyperparams.LearningRate, cfg.Hyperparams.Momentum)
	if err != nil {
		return "", fmt.Errorf("register: %w: %w", pkgerrors.ErrInvalidConfig, err)
	}

	e := &entry{
		handle:    uuid.NewString(),
		session:   session,
		model:     m,
		loss:      loss,
		optimizer: opt,
		hp:        cfg.Hyperparams,
		rng:       rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64())),
	}
	svc.handles.Set(e.handle, e, cache.DefaultExpiration)

	svc.registrations.Add(1)
	activeHandles.WithLabelValues(svc.id).Inc()
	registrationsTotal.WithLabelValues(svc.id, cfg.Optimizer, cfg.Loss).Inc()

	svc.logger.InfoContext(ctx, "train config registered",
		slog.String("handle", e.handle),
		slog.String("session", session),
		slog.String("optimizer", cfg.Optimizer),
		slog.String("loss", cfg.Loss))

	return e.handle, nil
}

func (svc *service) Fit(ctx context.Context, handle, datasetKey string) (res FitResult, err error) {
	ctx, span := svc.tracer.Start(ctx, "worker.Fit", trace.WithAttributes(
		attribute.String("worker.id", svc.id),
		attribute.String("fl.handle", handle),
		attribute.String("fl.dataset", datasetKey),
	))
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	e, err := svc.entry(handle)
	if err != nil {
		return FitResult{}, err
	}

	d, err := svc.datasets.Get(datasetKey)
	if err != nil {
		return FitResult{}, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.released {
		return FitResult{}, fmt.Errorf("fit '%s': %w", handle, pkgerrors.ErrHandleNotFound)
	}

	start := time.Now()
	res, err = fit(ctx, e, d)
	if err != nil {
		return FitResult{}, err
	}
	elapsed := time.Since(start)

	// Refresh the idle TTL unless the handle was released meanwhile.
	_ = svc.handles.Replace(handle, e, cache.DefaultExpiration)
	svc.fits.Add(1)
	fitsTotal.WithLabelValues(svc.id, datasetKey, e.optimizer.Name()).Inc()
	fitDuration.WithLabelValues(svc.id, datasetKey).Observe(elapsed.Seconds())
	fitLoss.WithLabelValues(svc.id, datasetKey).Set(res.Loss)
	span.SetAttributes(attribute.Float64("fl.loss", res.Loss), attribute.Int("fl.batches", res.Batches))

	svc.logger.DebugContext(ctx, "fit completed",
		slog.String("handle", handle),
		slog.String("dataset", datasetKey),
		slog.Float64("loss", res.Loss),
		slog.Int("batches", res.Batches),
		slog.Duration("elapsed", elapsed))

	svc.events.FitCompleted(ctx, FitEvent{
		Handle:     handle,
		DatasetKey: datasetKey,
		Loss:       res.Loss,
		Batches:    res.Batches,
		Samples:    res.Samples,
	})

	return res, nil
}

func (svc *service) Model(ctx context.Context, handle string) ([]byte, error) {
	e, err := svc.entry(handle)
	if err != nil {
		return nil, err
	}

	e.mu.Lock()
	if e.released {
		e.mu.Unlock()

		return nil, fmt.Errorf("model '%s': %w", handle, pkgerrors.ErrHandleNotFound)
	}
	data, err := model.Encode(e.model)
	e.mu.Unlock()
	if err != nil {
		return nil, err
	}

	sealed, err := svc.sealer.Seal(data)
	if err != nil {
		return nil, fmt.Errorf("failed to seal model: %w", err)
	}

	return sealed, nil
}

func (svc *service) Release(ctx context.Context, handle string) error {
	if _, err := svc.entry(handle); err != nil {
		return err
	}
	svc.handles.Delete(handle)

	return nil
}

func (svc *service) ReleaseSession(ctx context.Context, session string) int {
	released := 0
	for handle, item := range svc.handles.Items() {
		e, ok := item.Object.(*entry)
		if !ok || e.session != session {
			continue
		}
		svc.handles.Delete(handle)
		released++
	}

	if released > 0 {
		svc.logger.InfoContext(ctx, "session closed, released train configs",
			slog.String("session", session),
			slog.Int("released", released))
	}

	return released
}

func (svc *service) Datasets(_ context.Context) []dataset.Info {
	return svc.datasets.List()
}

func (svc *service) Stats(_ context.Context) Stats {
	return Stats{
		WorkerID:      svc.id,
		ActiveHandles: len(svc.handles.Items()),
		Datasets:      len(svc.datasets.List()),
		Registrations: svc.registrations.Load(),
		Fits:          svc.fits.Load(),
		StartTime:     svc.startTime,
	}
}

func (svc *service) entry(handle string) (*entry, error) {
	v, ok := svc.handles.Get(handle)
	if !ok {
		return nil, fmt.Errorf("handle '%s': %w", handle, pkgerrors.ErrHandleNotFound)
	}

	e, ok := v.(*entry)
	if !ok {
		return nil, errors.Join(pkgerrors.ErrInvalidData, fmt.Errorf("handle '%s' holds %T", handle, v))
	}

	return e, nil
}
