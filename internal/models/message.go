package models

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"slices"
	"time"
)

// MediaType is the kind of binary attachment carried by a media message.
type MediaType string

const (
	MediaImage MediaType = "image"
	MediaVideo MediaType = "video"
	MediaAudio MediaType = "audio"
)

// Valid reports whether t is one of the supported media types.
func (t MediaType) Valid() bool {
	switch t {
	case MediaImage, MediaVideo, MediaAudio:
		return true
	}
	return false
}

// Message is a post in a group. It carries either Text or a MediaURL/MediaType pair.
type Message struct {
	ID             string     `db:"id" json:"id"`
	GroupID        string     `db:"group_id" json:"group_id"`
	SenderID       string     `db:"sender_id" json:"sender_id"`
	SenderName     string     `db:"sender_name" json:"sender_name"`
	SenderPhotoURL *string    `db:"sender_photo_url" json:"sender_photo_url,omitempty"`
	Text           *string    `db:"text" json:"text,omitempty"`
	MediaURL       *string    `db:"media_url" json:"media_url,omitempty"`
	MediaType      *MediaType `db:"media_type" json:"media_type,omitempty"`
	CreatedAt      time.Time  `db:"created_at" json:"created_at"`
	RevealDate     time.Time  `db:"reveal_date" json:"reveal_date"`
	IsRevealed     bool       `db:"is_revealed" json:"is_revealed"`
	Reactions      Reactions  `db:"reactions" json:"reactions,omitempty"`
}

// Reactions maps an emoji to the ids of the users who reacted with it.
type Reactions map[string][]string

// Toggle adds userID to the emoji's set, or removes it when already present.
// Emojis left without users are dropped. It reports whether the user was added.
func (r Reactions) Toggle(emoji, userID string) bool {
	users := r[emoji]
	if i := slices.Index(users, userID); i >= 0 {
		users = slices.Delete(users, i, i+1)
		if len(users) == 0 {
			delete(r, emoji)
		} else {
			r[emoji] = users
		}
		return false
	}
	r[emoji] = append(users, userID)
	return true
}

// Clone returns a deep copy.
func (r Reactions) Clone() Reactions {
	if r == nil {
		return nil
	}
	out := make(Reactions, len(r))
	for emoji, users := range r {
		out[emoji] = slices.Clone(users)
	}
	return out
}

// Value implements driver.Valuer for the JSONB column.
func (r Reactions) Value() (driver.Value, error) {
	if r == nil {
		return []byte("{}"), nil
	}
	return json.Marshal(r)
}

// Scan implements sql.Scanner for the JSONB column.
func (r *Reactions) Scan(src any) error {
	var raw []byte
	switch v := src.(type) {
	case nil:
		*r = nil
		return nil
	case []byte:
		raw = v
	case string:
		raw = []byte(v)
	default:
		return errors.New("reactions: unsupported scan type")
	}
	out := Reactions{}
	if err := json.Unmarshal(raw, &out); err != nil {
		return err
	}
	if len(out) == 0 {
		out = nil
	}
	*r = out
	return nil
}

// Caller is the authenticated user behind a request. A zero ID means a guest.
type Caller struct {
	ID          string `json:"id"`
	DisplayName string `json:"display_name,omitempty"`
	PhotoURL    string `json:"photo_url,omitempty"`
}

// Authenticated reports whether the caller carries an identity.
func (c Caller) Authenticated() bool {
	return c.ID != ""
}
