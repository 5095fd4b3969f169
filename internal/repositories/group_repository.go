package repositories

import (
	"context"
	"database/sql"
	"errors"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"reveal-service/internal/models"
)

// GroupRepository abstracts group persistence.
type GroupRepository interface {
	CreateGroup(ctx context.Context, group models.Group) (models.Group, error)
	GetGroup(ctx context.Context, groupID string) (models.Group, error)
	ListGroups(ctx context.Context) ([]models.Group, error)
	UpdateGroup(ctx context.Context, groupID string, update models.GroupUpdate) (models.Group, error)
	DeleteGroup(ctx context.Context, groupID string) error
	AddMember(ctx context.Context, groupID string, userID string) error
	RemoveMember(ctx context.Context, groupID string, userID string) error
	Ping(ctx context.Context) error
}

const groupColumns = `id, name, description, owner_id, created_by, is_public, members, reveal_date,
	reveal_per_message, allow_all_to_post, cover_image, created_at, updated_at`

// GroupRepo is a sqlx implementation of GroupRepository.
type GroupRepo struct {
	db *sqlx.DB
}

// NewGroupRepo constructs a GroupRepo.
func NewGroupRepo(db *sqlx.DB) *GroupRepo {
	return &GroupRepo{db: db}
}

// CreateGroup inserts a group under a fresh id. The owner is always stored as a member.
func (r *GroupRepo) CreateGroup(ctx context.Context, group models.Group) (models.Group, error) {
	members := pq.StringArray{group.OwnerID}
	for _, id := range group.Members {
		if id != group.OwnerID {
			members = append(members, id)
		}
	}

	var created models.Group
	err := r.db.GetContext(ctx, &created, `INSERT INTO groups
		(id, name, description, owner_id, created_by, is_public, members, reveal_date, reveal_per_message, allow_all_to_post, cover_image)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		RETURNING `+groupColumns,
		uuid.NewString(), group.Name, group.Description, group.OwnerID, group.CreatedBy, group.IsPublic,
		members, group.RevealDate, group.RevealPerMessage, group.AllowAllToPost, group.CoverImage)
	return created, classify(err)
}

// GetGroup fetches a single group.
func (r *GroupRepo) GetGroup(ctx context.Context, groupID string) (models.Group, error) {
	var group models.Group
	err := r.db.GetContext(ctx, &group, `SELECT `+groupColumns+` FROM groups WHERE id=$1`, groupID)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Group{}, ErrGroupNotFound
	}
	return group, classify(err)
}

// ListGroups returns the whole collection, newest first.
func (r *GroupRepo) ListGroups(ctx context.Context) ([]models.Group, error) {
	var groups []models.Group
	err := r.db.SelectContext(ctx, &groups, `SELECT `+groupColumns+` FROM groups ORDER BY created_at DESC`)
	return groups, classify(err)
}

// UpdateGroup merges the non-nil fields of update into the stored record.
func (r *GroupRepo) UpdateGroup(ctx context.Context, groupID string, update models.GroupUpdate) (models.Group, error) {
	var group models.Group
	err := r.db.GetContext(ctx, &group, `UPDATE groups SET
		name = COALESCE($2, name),
		description = COALESCE($3, description),
		is_public = COALESCE($4, is_public),
		reveal_date = COALESCE($5, reveal_date),
		reveal_per_message = COALESCE($6, reveal_per_message),
		allow_all_to_post = COALESCE($7, allow_all_to_post),
		cover_image = COALESCE($8, cover_image),
		updated_at = NOW()
		WHERE id=$1
		RETURNING `+groupColumns,
		groupID, update.Name, update.Description, update.IsPublic, update.RevealDate,
		update.RevealPerMessage, update.AllowAllToPost, update.CoverImage)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Group{}, ErrGroupNotFound
	}
	return group, classify(err)
}

// DeleteGroup removes the group record only. Its messages are left in place.
func (r *GroupRepo) DeleteGroup(ctx context.Context, groupID string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM groups WHERE id=$1`, groupID)
	if err != nil {
		return classify(err)
	}
	return expectRow(res, ErrGroupNotFound)
}

// AddMember adds userID to the member set. Adding an existing member is a no-op.
func (r *GroupRepo) AddMember(ctx context.Context, groupID string, userID string) error {
	res, err := r.db.ExecContext(ctx, `UPDATE groups SET
		members = CASE WHEN $2 = ANY(members) THEN members ELSE array_append(members, $2) END,
		updated_at = NOW()
		WHERE id=$1`, groupID, userID)
	if err != nil {
		return classify(err)
	}
	return expectRow(res, ErrGroupNotFound)
}

// RemoveMember drops userID from the member set. The owner is never removed.
func (r *GroupRepo) RemoveMember(ctx context.Context, groupID string, userID string) error {
	res, err := r.db.ExecContext(ctx, `UPDATE groups SET
		members = CASE WHEN owner_id = $2 THEN members ELSE array_remove(members, $2) END,
		updated_at = NOW()
		WHERE id=$1`, groupID, userID)
	if err != nil {
		return classify(err)
	}
	return expectRow(res, ErrGroupNotFound)
}

// Ping checks that the store is reachable.
func (r *GroupRepo) Ping(ctx context.Context) error {
	return classify(r.db.PingContext(ctx))
}

func expectRow(res sql.Result, notFound error) error {
	count, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if count == 0 {
		return notFound
	}
	return nil
}
