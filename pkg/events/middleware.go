package events

import (
	"context"
	"fmt"

	"github.com/HKUDS/graffitibot-go/pkg/metrics"
	"go.uber.org/zap"
)

// Notifier sends a plain text message to a user.
type Notifier interface {
	Notify(ctx context.Context, userID int, text string) error
}

// Guard isolates the poll loop from handler failures. Errors and panics are
// logged and reported to the sender as `Server error: "<msg>"`; a failed
// report is only logged. The returned handler never fails.
func Guard(next Handler, notifier Notifier, logger *zap.Logger) Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return HandlerFunc(func(ctx context.Context, msg NewMessage) error {
		err := invoke(ctx, next, msg)
		if err == nil {
			return nil
		}

		metrics.HandlerFailures.Inc()
		logger.Error("message handler failed",
			zap.Int("from_id", msg.FromID),
			zap.Error(err),
		)
		if notifier == nil {
			return nil
		}
		if nerr := notifier.Notify(ctx, msg.FromID, fmt.Sprintf(`Server error: "%s"`, err)); nerr != nil {
			logger.Error("failed to notify user about handler failure",
				zap.Int("from_id", msg.FromID),
				zap.Error(nerr),
			)
		}
		return nil
	})
}

func invoke(ctx context.Context, h Handler, msg NewMessage) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return h.HandleMessage(ctx, msg)
}

// AllowFrom drops messages whose sender is not listed. An empty list allows
// everyone.
func AllowFrom(ids []int, next Handler) Handler {
	if len(ids) == 0 {
		return next
	}
	allowed := make(map[int]struct{}, len(ids))
	for _, id := range ids {
		allowed[id] = struct{}{}
	}
	return HandlerFunc(func(ctx context.Context, msg NewMessage) error {
		if _, ok := allowed[msg.FromID]; !ok {
			return nil
		}
		return next.HandleMessage(ctx, msg)
	})
}
