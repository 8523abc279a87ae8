// Package cache keeps a fast-path in-process view of live sessions,
// keyed both by session id and by table id. Entries are invalidated on
// every successful transition; the durable store stays the single
// source of truth.
package cache

import (
	"sync"

	"github.com/dinehall/tableside/internal/domain/model"
)

// SessionCache caches live sessions. Safe for concurrent use.
type SessionCache struct {
	mu        sync.RWMutex
	byID      map[string]*model.Session
	byTableID map[string]*model.Session
}

// NewSessionCache constructs an empty cache.
func NewSessionCache() *SessionCache {
	return &SessionCache{
		byID:      make(map[string]*model.Session),
		byTableID: make(map[string]*model.Session),
	}
}

// Get returns a copy of the cached session, if present.
func (c *SessionCache) Get(sessionID string) (*model.Session, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	s, ok := c.byID[sessionID]
	if !ok {
		return nil, false
	}
	copied := *s
	return &copied, true
}

// GetByTable returns a copy of the table's cached live session.
func (c *SessionCache) GetByTable(tableID string) (*model.Session, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	s, ok := c.byTableID[tableID]
	if !ok {
		return nil, false
	}
	copied := *s
	return &copied, true
}

// Put stores a live session; non-live sessions are evicted instead.
func (c *SessionCache) Put(session *model.Session) {
	if session == nil {
		return
	}
	if !session.Live() {
		c.Invalidate(session.ID, session.TableID)
		return
	}
	copied := *session
	c.mu.Lock()
	defer c.mu.Unlock()
	c.byID[copied.ID] = &copied
	c.byTableID[copied.TableID] = &copied
}

// Invalidate drops both keys for the session.
func (c *SessionCache) Invalidate(sessionID, tableID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.byID, sessionID)
	delete(c.byTableID, tableID)
}
