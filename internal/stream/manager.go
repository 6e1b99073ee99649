// Package stream fans out live span summaries to connected dashboard
// clients. Delivery is best effort: slow consumers drop messages rather
// than stall ingestion.
package stream

import (
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/tracely-io/tracely/pkg/models"
)

// subscriptionBuffer is the per-client queue depth. When a client falls
// this far behind, newer spans are dropped for that client only.
const subscriptionBuffer = 256

// Subscription is one connected client's view of a project's span feed.
type Subscription struct {
	projectID uuid.UUID
	ch        chan *models.SpanSummary
}

// C returns the receive channel for the subscription. The channel is
// closed when the subscription is disconnected.
func (s *Subscription) C() <-chan *models.SpanSummary {
	return s.ch
}

// Manager tracks live subscriptions per project.
type Manager struct {
	mu   sync.RWMutex
	subs map[uuid.UUID]map[*Subscription]struct{}
}

func NewManager() *Manager {
	return &Manager{
		subs: make(map[uuid.UUID]map[*Subscription]struct{}),
	}
}

// Subscribe registers a new client for a project's feed.
func (m *Manager) Subscribe(projectID uuid.UUID) *Subscription {
	sub := &Subscription{
		projectID: projectID,
		ch:        make(chan *models.SpanSummary, subscriptionBuffer),
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.subs[projectID] == nil {
		m.subs[projectID] = make(map[*Subscription]struct{})
	}
	m.subs[projectID][sub] = struct{}{}
	return sub
}

// Disconnect removes a subscription and closes its channel. Safe to call
// once per subscription; the project entry is pruned when its last
// subscriber leaves.
func (m *Manager) Disconnect(sub *Subscription) {
	m.mu.Lock()
	defer m.mu.Unlock()

	set, ok := m.subs[sub.projectID]
	if !ok {
		return
	}
	if _, ok := set[sub]; !ok {
		return
	}
	delete(set, sub)
	if len(set) == 0 {
		delete(m.subs, sub.projectID)
	}
	close(sub.ch)
}

// ConnectionCount returns the number of clients subscribed to a project.
func (m *Manager) ConnectionCount(projectID uuid.UUID) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.subs[projectID])
}

// Broadcast delivers summaries to every subscriber of the project without
// blocking. A full client queue drops the new summary for that client;
// others still receive it.
func (m *Manager) Broadcast(projectID uuid.UUID, summaries []*models.SpanSummary) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	set := m.subs[projectID]
	if len(set) == 0 {
		return
	}

	dropped := 0
	for _, summary := range summaries {
		for sub := range set {
			select {
			case sub.ch <- summary:
			default:
				dropped++
			}
		}
	}
	if dropped > 0 {
		slog.Warn("stream backpressure, messages dropped",
			"project_id", projectID, "dropped", dropped)
	}
}
