package service

import (
	"context"
	"errors"
	"time"

	"github.com/sirupsen/logrus"

	"todaride/internal/domain"
	"todaride/internal/events"
)

// Clock returns the current time.
type Clock func() time.Time

// emitter publishes events after commit. Publish failures never fail the
// operation that produced them.
type emitter struct {
	publisher events.Publisher
	log       logrus.FieldLogger
}

func (e emitter) emit(ctx context.Context, evs ...domain.Event) {
	if e.publisher == nil {
		return
	}
	for _, ev := range evs {
		if err := e.publisher.Publish(ctx, ev); err != nil {
			e.log.WithFields(logrus.Fields{
				"event_type": ev.Type,
				"tenant_id":  ev.TenantID,
				"entity_id":  ev.EntityID,
			}).WithError(err).Warn("event publish failed")
		}
	}
}

// logInternal logs err at Error level with the operation, actor and entity
// when it is not an expected domain outcome, and returns it unchanged.
func (e emitter) logInternal(op string, actor domain.Actor, entityID string, err error) error {
	if err == nil {
		return nil
	}
	var de *domain.Error
	if errors.As(err, &de) && de.Kind != domain.KindInternal {
		return err
	}
	e.log.WithFields(logrus.Fields{
		"op":        op,
		"actor_id":  actor.ID,
		"role":      actor.Role,
		"tenant_id": actor.TenantID,
		"entity_id": entityID,
	}).WithError(err).Error("operation failed")
	return err
}
