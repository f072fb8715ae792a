package longpoll

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/HKUDS/graffitibot-go/pkg/metrics"
	"github.com/HKUDS/graffitibot-go/pkg/vkapi"
	"go.uber.org/zap"
)

// DefaultWait is the server-side hold time of one poll, in seconds.
const DefaultWait = 25

// API is the subset of the remote client a session needs.
type API interface {
	GetLongPollServer(ctx context.Context, groupID int) (vkapi.PollServer, error)
	CheckLongPoll(ctx context.Context, server vkapi.PollServer, wait int) (*vkapi.LongPollResponse, error)
}

// Dispatcher consumes one raw update.
type Dispatcher interface {
	Dispatch(ctx context.Context, update json.RawMessage) error
}

// Option configures a Session.
type Option func(*Session)

// WithWait sets the long-poll hold time in seconds.
func WithWait(seconds int) Option {
	return func(s *Session) {
		if seconds > 0 {
			s.wait = seconds
		}
	}
}

// WithLogger sets the session logger.
func WithLogger(logger *zap.Logger) Option {
	return func(s *Session) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// Session owns one group's long-poll position and drives the
// poll → dispatch → advance loop. It is not safe for concurrent use; run one
// Session per group.
type Session struct {
	api        API
	groupID    int
	dispatcher Dispatcher
	wait       int
	logger     *zap.Logger

	server      vkapi.PollServer
	initialized bool
}

// NewSession creates a session for groupID. Call Initialize or Run to
// obtain the first server.
func NewSession(api API, groupID int, dispatcher Dispatcher, opts ...Option) *Session {
	s := &Session{
		api:        api,
		groupID:    groupID,
		dispatcher: dispatcher,
		wait:       DefaultWait,
		logger:     zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With(zap.Int("group_id", groupID))
	return s
}

// Server returns the current poll server triple.
func (s *Session) Server() vkapi.PollServer {
	return s.server
}

// Initialize requests the poll server for the group.
func (s *Session) Initialize(ctx context.Context) error {
	server, err := s.api.GetLongPollServer(ctx, s.groupID)
	if err != nil {
		return fmt.Errorf("longpoll: get server for group %d: %w", s.groupID, err)
	}
	s.server = server
	s.initialized = true
	s.logger.Info("long poll session initialized",
		zap.String("server", server.Server),
		zap.String("ts", server.TS.String()),
	)
	return nil
}

// Run polls until ctx is cancelled or a fatal error occurs. Failure replies
// are recovered from in place; transport faults, API errors during recovery
// and dispatch errors are returned. ts only advances after a whole batch has
// been dispatched, so a failed batch is polled again in full on the next Run.
func (s *Session) Run(ctx context.Context) error {
	if !s.initialized {
		if err := s.Initialize(ctx); err != nil {
			return err
		}
	}

	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := s.poll(ctx); err != nil {
			return err
		}
	}
}

func (s *Session) poll(ctx context.Context) error {
	metrics.Polls.Inc()
	resp, err := s.api.CheckLongPoll(ctx, s.server, s.wait)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("longpoll: poll: %w", err)
	}

	if code := Classify(resp); code != FailureNone {
		metrics.PollFailures.WithLabelValues(strconv.Itoa(*resp.Failed)).Inc()
		return s.recover(ctx, code, resp)
	}

	for i, update := range resp.Updates {
		if err := s.dispatcher.Dispatch(ctx, update); err != nil {
			return fmt.Errorf("longpoll: dispatch update %d of %d (ts %s): %w", i+1, len(resp.Updates), s.server.TS, err)
		}
		metrics.UpdatesDispatched.Inc()
	}
	s.server.TS = resp.TS
	return nil
}

func (s *Session) recover(ctx context.Context, code FailureCode, resp *vkapi.LongPollResponse) error {
	s.logger.Info("long poll failure, recovering",
		zap.Stringer("code", code),
		zap.String("ts", s.server.TS.String()),
	)

	switch code {
	case FailureOutdatedCursor:
		s.server.TS = resp.TS
		return nil
	case FailureKeyExpired:
		fresh, err := s.api.GetLongPollServer(ctx, s.groupID)
		if err != nil {
			return fmt.Errorf("longpoll: refresh key: %w", err)
		}
		s.server.Key = fresh.Key
		return nil
	default:
		fresh, err := s.api.GetLongPollServer(ctx, s.groupID)
		if err != nil {
			return fmt.Errorf("longpoll: reset session: %w", err)
		}
		s.server = fresh
		return nil
	}
}
