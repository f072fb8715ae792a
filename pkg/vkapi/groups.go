package vkapi

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/HKUDS/graffitibot-go/pkg/transport"
)

// MaxLongPollWait is the longest hold the long-poll server accepts.
const MaxLongPollWait = 90

// LongPollSlack is added to the server-side wait to bound a whole long-poll
// round trip.
const LongPollSlack = 15 * time.Second

// GetLongPollServer requests a fresh server, key and cursor for groupID.
func (c *Client) GetLongPollServer(ctx context.Context, groupID int) (PollServer, error) {
	var server PollServer
	m := NewMethod("groups.getLongPollServer").AddInt("group_id", groupID)
	if err := c.callInto(ctx, m, &server); err != nil {
		return PollServer{}, err
	}
	if server.Server == "" || server.Key == "" {
		return PollServer{}, &DecodeError{What: "groups.getLongPollServer result", Err: fmt.Errorf("server or key missing")}
	}
	return server, nil
}

// LongPollURL renders the a_check request for server.
func LongPollURL(server PollServer, wait int) string {
	sep := "?"
	if strings.Contains(server.Server, "?") {
		sep = "&"
	}
	return server.Server + sep + encodeParams([]Param{
		{Name: "act", Value: "a_check"},
		{Name: "key", Value: server.Key},
		{Name: "ts", Value: server.TS.String()},
		{Name: "wait", Value: strconv.Itoa(wait)},
	})
}

// CheckLongPoll blocks on the long-poll server for up to wait seconds
// (server side) and returns either a batch of updates or a failure code.
// The request deadline is wait plus LongPollSlack regardless of the
// transport's default timeout.
func (c *Client) CheckLongPoll(ctx context.Context, server PollServer, wait int) (*LongPollResponse, error) {
	ctx = transport.WithTimeout(ctx, time.Duration(wait)*time.Second+LongPollSlack)
	body, err := c.transport.Get(ctx, LongPollURL(server, wait))
	if err != nil {
		return nil, fmt.Errorf("vkapi: long poll: %w", err)
	}

	var resp LongPollResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, &DecodeError{What: "long poll response", Err: err}
	}
	if resp.Failed == nil && resp.TS == "" {
		return nil, &DecodeError{What: "long poll response", Err: fmt.Errorf("neither failed nor ts present")}
	}
	return &resp, nil
}
