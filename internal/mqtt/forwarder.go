package mqtt

import (
	"context"
	"time"

	"github.com/sweeney/coop-controller/internal/logging"
	"github.com/sweeney/coop-controller/internal/schedule"
	"github.com/sweeney/coop-controller/internal/solar"
	"github.com/sweeney/coop-controller/internal/status"
)

// StateSource is the read side of the state hub.
type StateSource interface {
	Changed() <-chan struct{}
	Snapshot() status.Snapshot
}

// Forward publishes every new snapshot of src as a retained state message
// until ctx is done. Snapshots published in quick succession may coalesce;
// the latest one is always sent.
func Forward(ctx context.Context, src StateSource, pub Publisher, log *logging.Logger) {
	var lastSeq uint64
	sent := false
	for {
		changed := src.Changed()
		snap := src.Snapshot()
		if !sent || snap.Seq != lastSeq {
			if err := pub.PublishState(status.FormatStatusEvent(snap, "STATE", "")); err != nil {
				log.Warn("failed to publish state", "seq", snap.Seq, "error", err)
			}
			lastSeq = snap.Seq
			sent = true
		}

		select {
		case <-ctx.Done():
			return
		case <-changed:
		}
	}
}

// DoorNotifier returns a scheduler notifier that publishes each door action.
func DoorNotifier(pub Publisher, log *logging.Logger) schedule.NotifierFunc {
	return func(action solar.Action, now, open, close time.Time) {
		event := DoorEvent{Timestamp: now, Action: action, OpenAt: open, CloseAt: close}
		if err := pub.PublishDoorAction(event); err != nil {
			log.Warn("failed to publish door action", "action", action, "error", err)
		}
	}
}
