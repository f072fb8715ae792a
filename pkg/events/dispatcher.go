package events

import (
	"context"
	"encoding/json"
	"fmt"

	"go.uber.org/zap"
)

// Handler reacts to new messages. It runs on the poll loop's goroutine, so
// a slow handler delays the next poll.
type Handler interface {
	HandleMessage(ctx context.Context, msg NewMessage) error
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(ctx context.Context, msg NewMessage) error

func (f HandlerFunc) HandleMessage(ctx context.Context, msg NewMessage) error {
	return f(ctx, msg)
}

// DecodeError means an update did not have the expected shape.
type DecodeError struct {
	Type string
	Err  error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("events: decode %q update: %v", e.Type, e.Err)
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}

// Dispatcher turns raw updates into typed events for a Handler.
type Dispatcher struct {
	handler Handler
	logger  *zap.Logger
}

// NewDispatcher creates a dispatcher delivering to handler.
func NewDispatcher(handler Handler, logger *zap.Logger) *Dispatcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Dispatcher{handler: handler, logger: logger}
}

// Dispatch decodes one update and invokes the handler for message_new.
// Other update types are ignored.
func (d *Dispatcher) Dispatch(ctx context.Context, raw json.RawMessage) error {
	var update Update
	if err := json.Unmarshal(raw, &update); err != nil {
		return &DecodeError{Type: "envelope", Err: err}
	}

	switch update.Type {
	case TypeMessageNew:
		var obj messageNewObject
		if err := json.Unmarshal(update.Object, &obj); err != nil {
			return &DecodeError{Type: update.Type, Err: err}
		}
		if obj.Message == nil {
			return &DecodeError{Type: update.Type, Err: fmt.Errorf("object.message missing")}
		}
		return d.handler.HandleMessage(ctx, *obj.Message)
	default:
		d.logger.Debug("ignoring update", zap.String("type", update.Type))
		return nil
	}
}
