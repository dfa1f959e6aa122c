// Package fl runs federated averaging rounds over a set of workers. Each
// round trains a copy of the global model on every participant and merges
// the results weighted by how many samples each participant trained on.
package fl

import (
	"context"
	"errors"
	"time"

	"github.com/absmach/fltrain/pkg/model"
)

var (
	ErrNoUpdates                = errors.New("no updates to aggregate")
	ErrIncompatibleUpdate       = errors.New("update does not match the global model architecture")
	ErrInsufficientParticipants = errors.New("insufficient participants")
)

// Update is one participant's contribution to a round.
type Update struct {
	WorkerID   string       `json:"worker_id"`
	NumSamples int          `json:"num_samples"`
	Loss       float64      `json:"loss"`
	Model      *model.Model `json:"-"`
}

type Aggregator interface {
	Aggregate(updates []Update) (*model.Model, error)
}

// Participant trains the global model on data it holds and reports back.
type Participant interface {
	WorkerID() string
	Train(ctx context.Context, global *model.Model) (Update, error)
}

type RoundStatus string

const (
	RoundStatusCompleted RoundStatus = "Completed"
	RoundStatusFailed    RoundStatus = "Failed"
)

type Round struct {
	Number    int           `json:"round"`
	Status    RoundStatus   `json:"status"`
	Updates   []Update      `json:"updates"`
	Failed    []string      `json:"failed,omitempty"`
	Loss      float64       `json:"loss"`
	StartTime time.Time     `json:"start_time"`
	Duration  time.Duration `json:"duration"`
}
