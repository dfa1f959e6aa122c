package worker

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	pkgmqtt "github.com/absmach/fltrain/pkg/mqtt"
)

const defaultHeartbeatInterval = 10 * time.Second

var (
	fitTopicTemplate   = "fl/workers/%s/fit"
	aliveTopicTemplate = "fl/workers/%s/alive"
)

// AliveTopic is where a worker announces itself; the broker publishes the
// offline last-will message on the same topic.
func AliveTopic(workerID string) string {
	return fmt.Sprintf(aliveTopicTemplate, workerID)
}

func FitTopic(workerID string) string {
	return fmt.Sprintf(fitTopicTemplate, workerID)
}

type FitEvent struct {
	WorkerID   string    `json:"worker_id"`
	Handle     string    `json:"handle"`
	DatasetKey string    `json:"dataset_key"`
	Loss       float64   `json:"loss"`
	Batches    int       `json:"batches"`
	Samples    int       `json:"samples"`
	Timestamp  time.Time `json:"timestamp"`
}

// Events publishes worker activity. Publishing failures are logged, never
// returned, so training calls do not depend on the broker.
type Events interface {
	FitCompleted(ctx context.Context, ev FitEvent)
	// StartHeartbeat publishes alive messages until ctx is done.
	StartHeartbeat(ctx context.Context, interval time.Duration)
}

type events struct {
	pubsub   pkgmqtt.PubSub
	workerID string
	logger   *slog.Logger
}

// NewEvents returns an MQTT backed publisher, or a no-op one when pubsub is nil.
func NewEvents(pubsub pkgmqtt.PubSub, workerID string, logger *slog.Logger) Events {
	return &events{
		pubsub:   pubsub,
		workerID: workerID,
		logger:   logger,
	}
}

func (ev *events) FitCompleted(ctx context.Context, fe FitEvent) {
	if ev.pubsub == nil {
		return
	}

	fe.WorkerID = ev.workerID
	if fe.Timestamp.IsZero() {
		fe.Timestamp = time.Now().UTC()
	}

	if err := ev.pubsub.Publish(ctx, FitTopic(ev.workerID), fe); err != nil {
		ev.logger.Error("failed to publish fit event", slog.String("handle", fe.Handle), slog.Any("error", err))
	}
}

func (ev *events) StartHeartbeat(ctx context.Context, interval time.Duration) {
	if ev.pubsub == nil {
		<-ctx.Done()

		return
	}

	if interval <= 0 {
		interval = defaultHeartbeatInterval
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			ev.logger.Info("stopping liveliness updates")

			return

		case <-ticker.C:
			payload := map[string]any{
				"status":    "alive",
				"worker_id": ev.workerID,
			}
			if err := ev.pubsub.Publish(ctx, AliveTopic(ev.workerID), payload); err != nil {
				ev.logger.Error("failed to publish liveliness message", slog.Any("error", err))
			}
		}
	}
}
