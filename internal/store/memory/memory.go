// Package memory provides in-memory store implementations for tests.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/nextlevelbuilder/answergrid/internal/store"
)

// NewStores returns a fully in-memory store bundle.
func NewStores() *store.Stores {
	return &store.Stores{
		Integrations: NewIntegrationStore(),
		Threads:      NewThreadStore(),
		Audit:        NewAuditStore(),
		DeadLetters:  NewDeadLetterStore(),
	}
}

// IntegrationStore is an in-memory store.IntegrationStore.
type IntegrationStore struct {
	mu   sync.RWMutex
	recs map[uuid.UUID]*store.IntegrationRecord
}

func NewIntegrationStore() *IntegrationStore {
	return &IntegrationStore{recs: make(map[uuid.UUID]*store.IntegrationRecord)}
}

// Put seeds an integration record.
func (s *IntegrationStore) Put(rec *store.IntegrationRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if rec.ID == uuid.Nil {
		rec.ID = store.GenNewID()
	}
	if rec.Status == "" {
		rec.Status = store.IntegrationActive
	}
	cp := *rec
	s.recs[rec.ID] = &cp
}

func (s *IntegrationStore) FindByRoutingKey(_ context.Context, channelType, routingKey string) (*store.IntegrationRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, rec := range s.recs {
		if rec.ChannelType == channelType && rec.RoutingKey == routingKey && rec.Status == store.IntegrationActive {
			cp := *rec
			return &cp, nil
		}
	}
	return nil, nil
}

func (s *IntegrationStore) SetStatus(_ context.Context, id uuid.UUID, status string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if rec, ok := s.recs[id]; ok {
		rec.Status = status
		rec.UpdatedAt = time.Now().UTC()
	}
	return nil
}

// Status returns the current status of a seeded record (test helper).
func (s *IntegrationStore) Status(id uuid.UUID) string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if rec, ok := s.recs[id]; ok {
		return rec.Status
	}
	return ""
}

// ThreadStore is an in-memory store.ThreadStore.
type ThreadStore struct {
	mu       sync.RWMutex
	threads  map[uuid.UUID]*store.Thread
	messages map[uuid.UUID][]store.ThreadMessage
}

func NewThreadStore() *ThreadStore {
	return &ThreadStore{
		threads:  make(map[uuid.UUID]*store.Thread),
		messages: make(map[uuid.UUID][]store.ThreadMessage),
	}
}

func (s *ThreadStore) FindOrCreate(_ context.Context, tenantID, userID, channel string) (*store.Thread, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, t := range s.threads {
		if t.TenantID == tenantID && t.UserID == userID && t.Channel == channel {
			cp := *t
			return &cp, nil
		}
	}
	now := time.Now().UTC()
	t := &store.Thread{
		ID:        store.GenNewID(),
		TenantID:  tenantID,
		UserID:    userID,
		Channel:   channel,
		CreatedAt: now,
		UpdatedAt: now,
	}
	s.threads[t.ID] = t
	cp := *t
	return &cp, nil
}

func (s *ThreadStore) Append(_ context.Context, threadID uuid.UUID, msg *store.ThreadMessage) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if msg.ID == uuid.Nil {
		msg.ID = store.GenNewID()
	}
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now().UTC()
	}
	msg.ThreadID = threadID
	s.messages[threadID] = append(s.messages[threadID], *msg)
	if t, ok := s.threads[threadID]; ok {
		t.UpdatedAt = msg.CreatedAt
	}
	return nil
}

func (s *ThreadStore) HasExternalMessage(_ context.Context, tenantID, externalMessageID string) (bool, error) {
	if externalMessageID == "" {
		return false, nil
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	for tid, msgs := range s.messages {
		t, ok := s.threads[tid]
		if !ok || t.TenantID != tenantID {
			continue
		}
		for _, m := range msgs {
			if m.ExternalMessageID == externalMessageID {
				return true, nil
			}
		}
	}
	return false, nil
}

func (s *ThreadStore) ListMessages(_ context.Context, tenantID, userID string, limit int) ([]store.ThreadMessage, error) {
	if limit <= 0 {
		limit = 50
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []store.ThreadMessage
	for tid, msgs := range s.messages {
		t, ok := s.threads[tid]
		if !ok || t.TenantID != tenantID || t.UserID != userID {
			continue
		}
		out = append(out, msgs...)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// MessageCount reports the total stored messages for a tenant (test helper).
func (s *ThreadStore) MessageCount(tenantID string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := 0
	for tid, msgs := range s.messages {
		if t, ok := s.threads[tid]; ok && t.TenantID == tenantID {
			n += len(msgs)
		}
	}
	return n
}

// AuditStore is an in-memory store.AuditStore.
type AuditStore struct {
	mu   sync.Mutex
	recs []store.AuditRecord

	// FailWith, when set, makes Append return this error (test hook for the
	// audit-never-blocks contract).
	FailWith error
}

func NewAuditStore() *AuditStore {
	return &AuditStore{}
}

func (s *AuditStore) Append(_ context.Context, rec *store.AuditRecord) error {
	if s.FailWith != nil {
		return s.FailWith
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *rec
	cp.Query = store.TruncateForAudit(cp.Query)
	cp.Response = store.TruncateForAudit(cp.Response)
	if cp.CreatedAt.IsZero() {
		cp.CreatedAt = time.Now().UTC()
	}
	s.recs = append(s.recs, cp)
	return nil
}

func (s *AuditStore) Purge(_ context.Context, olderThan time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	kept := s.recs[:0]
	var removed int64
	for _, r := range s.recs {
		if r.CreatedAt.Before(olderThan) {
			removed++
			continue
		}
		kept = append(kept, r)
	}
	s.recs = kept
	return removed, nil
}

// Records returns a copy of all appended records (test helper).
func (s *AuditStore) Records() []store.AuditRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]store.AuditRecord, len(s.recs))
	copy(out, s.recs)
	return out
}

// DeadLetterStore is an in-memory store.DeadLetterStore.
type DeadLetterStore struct {
	mu   sync.Mutex
	recs map[uuid.UUID]*store.DeadLetterRecord
}

func NewDeadLetterStore() *DeadLetterStore {
	return &DeadLetterStore{recs: make(map[uuid.UUID]*store.DeadLetterRecord)}
}

func (s *DeadLetterStore) Append(_ context.Context, rec *store.DeadLetterRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if rec.ID == uuid.Nil {
		rec.ID = store.GenNewID()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}
	if rec.TenantID == "" {
		rec.TenantID = "unknown"
	}
	cp := *rec
	s.recs[rec.ID] = &cp
	return nil
}

func (s *DeadLetterStore) List(_ context.Context, limit int) ([]store.DeadLetterRecord, error) {
	if limit <= 0 {
		limit = 100
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []store.DeadLetterRecord
	for _, rec := range s.recs {
		out = append(out, *rec)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *DeadLetterStore) Get(_ context.Context, id uuid.UUID) (*store.DeadLetterRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.recs[id]
	if !ok {
		return nil, nil
	}
	cp := *rec
	return &cp, nil
}

func (s *DeadLetterStore) MarkReplayed(_ context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if rec, ok := s.recs[id]; ok {
		now := time.Now().UTC()
		rec.ReplayedAt = &now
	}
	return nil
}

func (s *DeadLetterStore) Purge(_ context.Context, olderThan time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var removed int64
	for id, rec := range s.recs {
		if rec.CreatedAt.Before(olderThan) && rec.ReplayedAt != nil {
			delete(s.recs, id)
			removed++
		}
	}
	return removed, nil
}
