package events

import (
	"encoding/json"
)

// TypeMessageNew is the update type of an incoming private message.
const TypeMessageNew = "message_new"

// Update is the raw envelope of one long-poll update.
type Update struct {
	Type    string          `json:"type"`
	Object  json.RawMessage `json:"object"`
	GroupID int             `json:"group_id"`
	EventID string          `json:"event_id,omitempty"`
}

// NewMessage represents a message received by the group.
type NewMessage struct {
	ID          int          `json:"id"`
	FromID      int          `json:"from_id"`
	PeerID      int          `json:"peer_id"`
	Text        string       `json:"text"`
	Date        int64        `json:"date"`
	Attachments []Attachment `json:"attachments"`
}

// Photos returns the photo attachments in order.
func (m *NewMessage) Photos() []Photo {
	var photos []Photo
	for _, a := range m.Attachments {
		if a.Type == "photo" && a.Photo != nil {
			photos = append(photos, *a.Photo)
		}
	}
	return photos
}

// Attachment is one attached item. Only photos are decoded; other kinds
// keep their type name.
type Attachment struct {
	Type  string `json:"type"`
	Photo *Photo `json:"photo,omitempty"`
}

// Photo is a photo attachment with all of its rendered sizes.
type Photo struct {
	ID      int         `json:"id"`
	OwnerID int         `json:"owner_id"`
	Sizes   []PhotoSize `json:"sizes"`
}

// PhotoSize is one rendition of a photo.
type PhotoSize struct {
	Type   string `json:"type"`
	URL    string `json:"url"`
	Width  int    `json:"width"`
	Height int    `json:"height"`
}

// Area is width*height.
func (s PhotoSize) Area() int {
	return s.Width * s.Height
}

// Largest returns the size with the greatest area. The first of equal
// candidates wins.
func (p Photo) Largest() (PhotoSize, bool) {
	if len(p.Sizes) == 0 {
		return PhotoSize{}, false
	}
	best := p.Sizes[0]
	for _, s := range p.Sizes[1:] {
		if s.Area() > best.Area() {
			best = s
		}
	}
	return best, true
}

type messageNewObject struct {
	Message *NewMessage `json:"message"`
}
