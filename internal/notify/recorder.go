package notify

import (
	"context"
	"time"

	"gibster/internal/database"
	"gibster/internal/events"
	"gibster/internal/orchestrator"

	"github.com/rs/zerolog"
)

type RunStore interface {
	RecordSyncRun(ctx context.Context, run *database.SyncRun) error
}

// RunRecorder persists every finished run to the local database.
type RunRecorder struct {
	store  RunStore
	logger *zerolog.Logger
}

func NewRunRecorder(store RunStore, logger *zerolog.Logger) *RunRecorder {
	return &RunRecorder{store: store, logger: logger}
}

func (r *RunRecorder) Subscribe(bus *events.EventBus) {
	bus.Subscribe(events.EventSyncStateChanged, r.handle)
}

func (r *RunRecorder) handle(event *events.Event) error {
	var snap orchestrator.Snapshot
	if err := event.Decode(&snap); err != nil {
		return err
	}
	if !snap.State.IsTerminal() {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	run := &database.SyncRun{
		JobID:      snap.JobID,
		State:      string(snap.State),
		Message:    snap.Message,
		ErrorKind:  string(snap.ErrorKind),
		Attempts:   snap.Attempts,
		StartedAt:  snap.StartedAt,
		FinishedAt: snap.UpdatedAt,
	}
	if err := r.store.RecordSyncRun(ctx, run); err != nil {
		r.logger.Error().Err(err).Str("state", run.State).Msg("Failed to record sync run")
		return err
	}
	return nil
}
