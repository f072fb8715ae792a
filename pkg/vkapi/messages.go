package vkapi

import (
	"context"
	"strconv"
)

// Send delivers msg to userID. An empty message is rejected before any
// request is made.
func (c *Client) Send(ctx context.Context, userID int, msg OutboundMessage) error {
	if msg.Text == "" && msg.Attachment == "" {
		return &ValidationError{Message: "messages.send: at least one of text or attachment is required"}
	}

	m := c.sendMethod(userID, msg)
	if _, err := c.Call(ctx, m); err != nil {
		return err
	}
	return nil
}

func (c *Client) sendMethod(userID int, msg OutboundMessage) Method {
	m := NewMethod("messages.send").
		AddInt("user_id", userID).
		Add("random_id", strconv.FormatInt(c.randomID(), 10))
	if msg.Text != "" {
		m = m.Add("message", msg.Text)
	}
	if msg.Attachment != "" {
		m = m.Add("attachment", msg.Attachment)
	}
	return m
}
