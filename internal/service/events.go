package service

import (
	"context"
	"time"

	"github.com/iliyamo/dealer-syndication/internal/logging"
	"github.com/iliyamo/dealer-syndication/internal/queue"
)

const postCommitTimeout = 3 * time.Second

// notifier runs the side effects that follow a committed write.  The
// write already happened, so these run on a context detached from the
// caller's cancellation and their failures are only logged.
type notifier struct {
	events EventPublisher
	views  ViewInvalidator
}

func (n notifier) detached(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(ctx), postCommitTimeout)
}

func (n notifier) publish(ctx context.Context, actorID uint64, typ string, data any) {
	if n.events == nil {
		return
	}
	ctx, cancel := n.detached(ctx)
	defer cancel()
	ev := queue.Event{Type: typ, ActorID: actorID, Data: data, RequestID: logging.RequestIDFromContext(ctx)}
	if err := n.events.Publish(ctx, ev); err != nil {
		logging.Ctx(ctx).Warn().Err(err).Str("event", typ).Msg("event publish failed")
	}
}

func (n notifier) invalidate(ctx context.Context) {
	if n.views == nil {
		return
	}
	ctx, cancel := n.detached(ctx)
	defer cancel()
	if err := n.views.Invalidate(ctx); err != nil {
		logging.Ctx(ctx).Warn().Err(err).Msg("public view invalidation failed")
	}
}
