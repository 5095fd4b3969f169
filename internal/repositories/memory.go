package repositories

import (
	"context"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"reveal-service/internal/models"
)

// MemoryStore keeps groups and messages in process. It implements both
// GroupRepository and MessageRepository with the same semantics as the
// Postgres repositories and is used for local runs and tests.
type MemoryStore struct {
	mu       sync.RWMutex
	now      func() time.Time
	seq      int64
	groups   map[string]storedGroup
	messages map[string]storedMessage
}

type storedGroup struct {
	seq   int64
	group models.Group
}

type storedMessage struct {
	seq int64
	msg models.Message
}

// NewMemoryStore builds an empty store stamping records with now. A nil now uses time.Now.
func NewMemoryStore(now func() time.Time) *MemoryStore {
	if now == nil {
		now = time.Now
	}
	return &MemoryStore{
		now:      now,
		groups:   make(map[string]storedGroup),
		messages: make(map[string]storedMessage),
	}
}

var (
	_ GroupRepository   = (*MemoryStore)(nil)
	_ MessageRepository = (*MemoryStore)(nil)
)

func (s *MemoryStore) CreateGroup(ctx context.Context, group models.Group) (models.Group, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	members := []string{group.OwnerID}
	for _, id := range group.Members {
		if !slices.Contains(members, id) {
			members = append(members, id)
		}
	}
	now := s.now()
	group.ID = uuid.NewString()
	group.Members = members
	group.CreatedAt = now
	group.UpdatedAt = now
	s.seq++
	s.groups[group.ID] = storedGroup{seq: s.seq, group: group}
	return cloneGroup(group), nil
}

func (s *MemoryStore) GetGroup(ctx context.Context, groupID string) (models.Group, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	stored, ok := s.groups[groupID]
	if !ok {
		return models.Group{}, ErrGroupNotFound
	}
	return cloneGroup(stored.group), nil
}

func (s *MemoryStore) ListGroups(ctx context.Context) ([]models.Group, error) {
	s.mu.RLock()
	stored := make([]storedGroup, 0, len(s.groups))
	for _, g := range s.groups {
		stored = append(stored, g)
	}
	s.mu.RUnlock()

	sort.Slice(stored, func(i, j int) bool {
		if !stored[i].group.CreatedAt.Equal(stored[j].group.CreatedAt) {
			return stored[i].group.CreatedAt.After(stored[j].group.CreatedAt)
		}
		return stored[i].seq > stored[j].seq
	})
	groups := make([]models.Group, 0, len(stored))
	for _, g := range stored {
		groups = append(groups, cloneGroup(g.group))
	}
	return groups, nil
}

func (s *MemoryStore) UpdateGroup(ctx context.Context, groupID string, update models.GroupUpdate) (models.Group, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	stored, ok := s.groups[groupID]
	if !ok {
		return models.Group{}, ErrGroupNotFound
	}
	stored.group = update.Apply(stored.group)
	stored.group.UpdatedAt = s.now()
	s.groups[groupID] = stored
	return cloneGroup(stored.group), nil
}

func (s *MemoryStore) DeleteGroup(ctx context.Context, groupID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.groups[groupID]; !ok {
		return ErrGroupNotFound
	}
	delete(s.groups, groupID)
	return nil
}

func (s *MemoryStore) AddMember(ctx context.Context, groupID string, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	stored, ok := s.groups[groupID]
	if !ok {
		return ErrGroupNotFound
	}
	if !slices.Contains(stored.group.Members, userID) {
		stored.group.Members = append(slices.Clone(stored.group.Members), userID)
	}
	stored.group.UpdatedAt = s.now()
	s.groups[groupID] = stored
	return nil
}

func (s *MemoryStore) RemoveMember(ctx context.Context, groupID string, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	stored, ok := s.groups[groupID]
	if !ok {
		return ErrGroupNotFound
	}
	if userID != stored.group.OwnerID {
		stored.group.Members = slices.DeleteFunc(slices.Clone(stored.group.Members), func(id string) bool { return id == userID })
	}
	stored.group.UpdatedAt = s.now()
	s.groups[groupID] = stored
	return nil
}

func (s *MemoryStore) Ping(ctx context.Context) error {
	return ctx.Err()
}

func (s *MemoryStore) CreateMessage(ctx context.Context, msg models.Message) (models.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	msg.ID = uuid.NewString()
	msg.CreatedAt = s.now()
	msg.IsRevealed = false
	msg.Reactions = nil
	s.seq++
	s.messages[msg.ID] = storedMessage{seq: s.seq, msg: msg}
	return msg, nil
}

func (s *MemoryStore) GetMessage(ctx context.Context, messageID string) (models.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	stored, ok := s.messages[messageID]
	if !ok {
		return models.Message{}, ErrMessageNotFound
	}
	return cloneMessage(stored.msg), nil
}

func (s *MemoryStore) ListGroupMessages(ctx context.Context, groupID string) ([]models.Message, error) {
	return s.sortedMessages(func(m models.Message) bool { return m.GroupID == groupID }), nil
}

func (s *MemoryStore) LatestGroupMessages(ctx context.Context, groupID string, limit int) ([]models.Message, error) {
	if limit <= 0 {
		limit = DefaultLatestLimit
	}
	msgs := s.sortedMessages(func(m models.Message) bool { return m.GroupID == groupID })
	if len(msgs) > limit {
		msgs = msgs[len(msgs)-limit:]
	}
	return msgs, nil
}

func (s *MemoryStore) DeleteMessage(ctx context.Context, messageID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.messages[messageID]; !ok {
		return ErrMessageNotFound
	}
	delete(s.messages, messageID)
	return nil
}

func (s *MemoryStore) MarkRevealed(ctx context.Context, messageIDs []string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var count int64
	for _, id := range messageIDs {
		stored, ok := s.messages[id]
		if !ok || stored.msg.IsRevealed {
			continue
		}
		stored.msg.IsRevealed = true
		s.messages[id] = stored
		count++
	}
	return count, nil
}

func (s *MemoryStore) ListRevealCandidates(ctx context.Context, now time.Time, limit int, skipGroups []string) ([]models.Message, error) {
	s.mu.RLock()
	groups := make(map[string]models.Group, len(s.groups))
	for id, g := range s.groups {
		groups[id] = g.group
	}
	s.mu.RUnlock()

	msgs := s.sortedMessages(func(m models.Message) bool {
		group, ok := groups[m.GroupID]
		if !ok || m.IsRevealed || slices.Contains(skipGroups, m.GroupID) {
			return false
		}
		due := group.RevealDate
		if group.RevealPerMessage {
			due = m.RevealDate
		}
		return !now.Before(due)
	})
	if limit > 0 && len(msgs) > limit {
		msgs = msgs[:limit]
	}
	return msgs, nil
}

func (s *MemoryStore) ToggleReaction(ctx context.Context, messageID string, emoji string, userID string) (models.Reactions, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	stored, ok := s.messages[messageID]
	if !ok {
		return nil, ErrMessageNotFound
	}
	reactions := stored.msg.Reactions.Clone()
	if reactions == nil {
		reactions = models.Reactions{}
	}
	reactions.Toggle(emoji, userID)
	stored.msg.Reactions = reactions
	s.messages[messageID] = stored
	return reactions.Clone(), nil
}

func (s *MemoryStore) DeleteOrphaned(ctx context.Context) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var count int64
	for id, stored := range s.messages {
		if _, ok := s.groups[stored.msg.GroupID]; !ok {
			delete(s.messages, id)
			count++
		}
	}
	return count, nil
}

func (s *MemoryStore) sortedMessages(keep func(models.Message) bool) []models.Message {
	s.mu.RLock()
	stored := make([]storedMessage, 0)
	for _, m := range s.messages {
		if keep(m.msg) {
			stored = append(stored, m)
		}
	}
	s.mu.RUnlock()

	sort.Slice(stored, func(i, j int) bool {
		if !stored[i].msg.CreatedAt.Equal(stored[j].msg.CreatedAt) {
			return stored[i].msg.CreatedAt.Before(stored[j].msg.CreatedAt)
		}
		return stored[i].seq < stored[j].seq
	})
	msgs := make([]models.Message, 0, len(stored))
	for _, m := range stored {
		msgs = append(msgs, cloneMessage(m.msg))
	}
	return msgs
}

func cloneGroup(g models.Group) models.Group {
	g.Members = slices.Clone(g.Members)
	return g
}

func cloneMessage(m models.Message) models.Message {
	m.Reactions = m.Reactions.Clone()
	return m
}
