package fl

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/absmach/fltrain/pkg/model"
	"golang.org/x/sync/errgroup"
)

type Coordinator struct {
	aggregator Aggregator
	kOfN       int
	logger     *slog.Logger
}

// NewCoordinator returns a coordinator that completes a round once at least
// kOfN participants reported. kOfN <= 0 requires every participant.
func NewCoordinator(aggregator Aggregator, kOfN int, logger *slog.Logger) *Coordinator {
	if aggregator == nil {
		aggregator = NewFedAvgAggregator()
	}

	return &Coordinator{
		aggregator: aggregator,
		kOfN:       kOfN,
		logger:     logger,
	}
}

// RunRound trains global on every participant concurrently and returns the
// aggregated model. global is never modified.
func (c *Coordinator) RunRound(ctx context.Context, number int, global *model.Model, participants []Participant) (*model.Model, Round, error) {
	round := Round{Number: number, StartTime: time.Now()}

	required := c.kOfN
	if required <= 0 || required > len(participants) {
		required = len(participants)
	}
	if required == 0 {
		round.Status = RoundStatusFailed

		return nil, round, ErrInsufficientParticipants
	}

	var (
		mu   sync.Mutex
		errs []error
	)

	g, gctx := errgroup.WithContext(ctx)
	for _, p := range participants {
		g.Go(func() error {
			u, err := p.Train(gctx, global.Clone())

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				c.logger.WarnContext(ctx, "participant failed",
					slog.Int("round", number),
					slog.String("worker_id", p.WorkerID()),
					slog.Any("error", err))
				round.Failed = append(round.Failed, p.WorkerID())
				errs = append(errs, fmt.Errorf("%s: %w", p.WorkerID(), err))

				return nil
			}
			round.Updates = append(round.Updates, u)

			return nil
		})
	}
	_ = g.Wait()
	round.Duration = time.Since(round.StartTime)

	if len(round.Updates) < required {
		round.Status = RoundStatusFailed

		return nil, round, errors.Join(
			fmt.Errorf("round %d: %w: %d of %d reported, need %d", number, ErrInsufficientParticipants, len(round.Updates), len(participants), required),
			errors.Join(errs...))
	}

	aggregated, err := c.aggregator.Aggregate(round.Updates)
	if err != nil {
		round.Status = RoundStatusFailed

		return nil, round, fmt.Errorf("round %d: %w", number, err)
	}

	var samples int
	var weighted float64
	for _, u := range round.Updates {
		n := max(u.NumSamples, 1)
		samples += n
		weighted += float64(n) * u.Loss
	}
	round.Loss = weighted / float64(samples)
	round.Status = RoundStatusCompleted

	c.logger.InfoContext(ctx, "round completed",
		slog.Int("round", number),
		slog.Int("updates", len(round.Updates)),
		slog.Float64("loss", round.Loss),
		slog.Duration("duration", round.Duration))

	return aggregated, round, nil
}
