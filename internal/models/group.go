package models

import (
	"slices"
	"time"

	"github.com/lib/pq"
)

// Group is a reveal group. Messages posted into it stay hidden until the reveal date.
type Group struct {
	ID               string         `db:"id" json:"id"`
	Name             string         `db:"name" json:"name"`
	Description      string         `db:"description" json:"description"`
	OwnerID          string         `db:"owner_id" json:"owner_id"`
	CreatedBy        string         `db:"created_by" json:"created_by"`
	IsPublic         bool           `db:"is_public" json:"is_public"`
	Members          pq.StringArray `db:"members" json:"members"`
	RevealDate       time.Time      `db:"reveal_date" json:"reveal_date"`
	RevealPerMessage bool           `db:"reveal_per_message" json:"reveal_per_message"`
	AllowAllToPost   bool           `db:"allow_all_to_post" json:"allow_all_to_post"`
	CoverImage       *string        `db:"cover_image" json:"cover_image,omitempty"`
	CreatedAt        time.Time      `db:"created_at" json:"created_at"`
	UpdatedAt        time.Time      `db:"updated_at" json:"updated_at"`
}

// IsMember reports whether userID is in the member set.
func (g Group) IsMember(userID string) bool {
	return userID != "" && slices.Contains(g.Members, userID)
}

// IsOwner reports whether userID owns the group.
func (g Group) IsOwner(userID string) bool {
	return userID != "" && g.OwnerID == userID
}

// CanPost reports whether userID may send messages into the group.
func (g Group) CanPost(userID string) bool {
	if !g.IsMember(userID) {
		return false
	}
	return g.AllowAllToPost || g.OwnerID == userID || g.CreatedBy == userID
}

// NewGroup carries the caller-supplied fields of a group to create.
type NewGroup struct {
	Name             string    `json:"name"`
	Description      string    `json:"description"`
	IsPublic         bool      `json:"is_public"`
	RevealDate       time.Time `json:"reveal_date"`
	RevealPerMessage bool      `json:"reveal_per_message"`
	AllowAllToPost   bool      `json:"allow_all_to_post"`
	CoverImage       *string   `json:"cover_image,omitempty"`
}

// GroupUpdate is a partial group update. Nil fields are left untouched.
// Ownership, membership and timestamps are not updatable through it.
type GroupUpdate struct {
	Name             *string    `json:"name,omitempty"`
	Description      *string    `json:"description,omitempty"`
	IsPublic         *bool      `json:"is_public,omitempty"`
	RevealDate       *time.Time `json:"reveal_date,omitempty"`
	RevealPerMessage *bool      `json:"reveal_per_message,omitempty"`
	AllowAllToPost   *bool      `json:"allow_all_to_post,omitempty"`
	CoverImage       *string    `json:"cover_image,omitempty"`
}

// Empty reports whether the update changes nothing.
func (u GroupUpdate) Empty() bool {
	return u.Name == nil && u.Description == nil && u.IsPublic == nil && u.RevealDate == nil &&
		u.RevealPerMessage == nil && u.AllowAllToPost == nil && u.CoverImage == nil
}

// Apply returns g with the non-nil fields of u applied.
func (u GroupUpdate) Apply(g Group) Group {
	if u.Name != nil {
		g.Name = *u.Name
	}
	if u.Description != nil {
		g.Description = *u.Description
	}
	if u.IsPublic != nil {
		g.IsPublic = *u.IsPublic
	}
	if u.RevealDate != nil {
		g.RevealDate = *u.RevealDate
	}
	if u.RevealPerMessage != nil {
		g.RevealPerMessage = *u.RevealPerMessage
	}
	if u.AllowAllToPost != nil {
		g.AllowAllToPost = *u.AllowAllToPost
	}
	if u.CoverImage != nil {
		g.CoverImage = u.CoverImage
	}
	return g
}
