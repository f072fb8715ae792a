package vkapi

import (
	"context"
	"fmt"
)

// GetMessagesUploadServer asks where a photo destined for peerID should be uploaded.
func (c *Client) GetMessagesUploadServer(ctx context.Context, peerID int) (UploadTarget, error) {
	var target UploadTarget
	m := NewMethod("photos.getMessagesUploadServer").AddInt("peer_id", peerID)
	if err := c.callInto(ctx, m, &target); err != nil {
		return UploadTarget{}, err
	}
	if target.UploadURL == "" {
		return UploadTarget{}, &DecodeError{What: "photos.getMessagesUploadServer result", Err: fmt.Errorf("upload_url missing")}
	}
	return target, nil
}

// SaveMessagesPhoto registers an uploaded photo using the fields returned by
// the upload server.
func (c *Client) SaveMessagesPhoto(ctx context.Context, photo string, server int, hash string) ([]SavedPhoto, error) {
	var saved []SavedPhoto
	m := NewMethod("photos.saveMessagesPhoto").
		Add("photo", photo).
		AddInt("server", server).
		Add("hash", hash)
	if err := c.callInto(ctx, m, &saved); err != nil {
		return nil, err
	}
	return saved, nil
}
