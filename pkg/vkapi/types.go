package vkapi

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// APIVersion is the protocol version sent as the "v" parameter.
type APIVersion struct {
	Major int
	Minor int
}

// DefaultVersion is the version the bot was written against.
var DefaultVersion = APIVersion{Major: 5, Minor: 131}

func (v APIVersion) String() string {
	return strconv.Itoa(v.Major) + "." + strconv.Itoa(v.Minor)
}

// ParseVersion parses "<major>.<minor>". An empty string yields DefaultVersion.
func ParseVersion(s string) (APIVersion, error) {
	if s == "" {
		return DefaultVersion, nil
	}
	major, minor, ok := strings.Cut(s, ".")
	if !ok {
		return APIVersion{}, fmt.Errorf("vkapi: invalid version %q", s)
	}
	maj, err := strconv.Atoi(major)
	if err != nil || maj < 0 {
		return APIVersion{}, fmt.Errorf("vkapi: invalid version %q", s)
	}
	mn, err := strconv.Atoi(minor)
	if err != nil || mn < 0 {
		return APIVersion{}, fmt.Errorf("vkapi: invalid version %q", s)
	}
	return APIVersion{Major: maj, Minor: mn}, nil
}

// Credentials authenticate every method call.
type Credentials struct {
	Token   string
	Version APIVersion
}

// Cursor is the opaque long-poll position. The server sends it as a string
// from groups.getLongPollServer and as a number in some failure replies, so
// both forms are accepted.
type Cursor string

func (c *Cursor) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*c = ""
		return nil
	}
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*c = Cursor(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("cursor must be a string or number: %w", err)
	}
	*c = Cursor(n.String())
	return nil
}

func (c Cursor) String() string {
	return string(c)
}

// PollServer is the long-poll session identity: where to poll, with which
// key, from which position.
type PollServer struct {
	Server string `json:"server"`
	Key    string `json:"key"`
	TS     Cursor `json:"ts"`
}

// LongPollResponse is one reply from the long-poll server. Failed is nil on
// a normal batch.
type LongPollResponse struct {
	Failed  *int              `json:"failed,omitempty"`
	TS      Cursor            `json:"ts"`
	Updates []json.RawMessage `json:"updates"`
}

// OutboundMessage is a reply. At least one of Text and Attachment must be set.
type OutboundMessage struct {
	Text       string
	Attachment string
}

// UploadTarget is where photos.getMessagesUploadServer says to upload.
type UploadTarget struct {
	UploadURL string `json:"upload_url"`
	AlbumID   int    `json:"album_id"`
	UserID    int    `json:"user_id"`
	GroupID   int    `json:"group_id"`
}

// SavedPhoto is one entry of the photos.saveMessagesPhoto result.
type SavedPhoto struct {
	ID        int    `json:"id"`
	OwnerID   int    `json:"owner_id"`
	AccessKey string `json:"access_key,omitempty"`
}

type envelope struct {
	Response json.RawMessage `json:"response"`
	Error    *APIError       `json:"error"`
}
