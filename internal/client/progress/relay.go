// Package progress turns progress notifications on the event bus into
// ProcessingRecord updates. Readers observe the record through the store's
// table notifications, never through the relay.
package progress

import (
	"context"

	"github.com/dmitrijs2005/poleshift/internal/client/models"
	"github.com/dmitrijs2005/poleshift/internal/events"
	"github.com/dmitrijs2005/poleshift/internal/logging"
)

// Applier is satisfied by the processed repository.
type Applier interface {
	ApplyProgress(ctx context.Context, id string, ev models.ProgressEvent) error
}

type Relay struct {
	bus     *events.Bus
	records Applier
	log     logging.Logger
}

func NewRelay(bus *events.Bus, records Applier, log logging.Logger) *Relay {
	return &Relay{bus: bus, records: records, log: log.With("module", "progress")}
}

// Attach subscribes to the progress stream of sampleID/dataType and writes
// every event into record recordID. The caller owns the returned
// subscription and must release it.
func (r *Relay) Attach(ctx context.Context, sampleID string, dataType models.DataType, recordID string) *events.Subscription {
	topic := events.ProgressTopic(sampleID, string(dataType))
	return r.bus.Subscribe(topic, func(payload any) {
		ev, ok := payload.(models.ProgressEvent)
		if !ok {
			r.log.Warn(ctx, "unexpected progress payload", "topic", topic)
			return
		}
		r.log.Debug(ctx, "progress", "record_id", recordID, "pct", ev.ProgressPercentage, "state", string(ev.ProcessingState))
		if err := r.records.ApplyProgress(ctx, recordID, ev); err != nil {
			r.log.Warn(ctx, "failed to apply progress", "record_id", recordID, "error", err)
		}
	})
}

// Publish emits ev on the progress stream of sampleID/dataType and reports
// how many listeners received it.
func (r *Relay) Publish(sampleID string, dataType models.DataType, ev models.ProgressEvent) int {
	return r.bus.Publish(events.ProgressTopic(sampleID, string(dataType)), ev)
}
