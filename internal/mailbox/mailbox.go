// Package mailbox keeps the per-worker queues of asynchronous notifications.
// Entries are append-only; the read flag only ever flips from false to true.
package mailbox

import (
	"fmt"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/ShayCichocki/delegate/pkg/models"
)

type entry struct {
	seq uint64
	n   models.Notification
}

// Mailbox holds one queue per open worker.
type Mailbox struct {
	mu    sync.Mutex
	boxes map[string][]*entry
	seq   uint64
	now   func() time.Time
}

// New creates an empty Mailbox.
func New() *Mailbox {
	return &Mailbox{
		boxes: make(map[string][]*entry),
		now:   time.Now,
	}
}

// Open creates the queue for a worker. Opening an existing queue is a no-op.
func (m *Mailbox) Open(subagentID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.boxes[subagentID]; !ok {
		m.boxes[subagentID] = nil
	}
}

// Enqueue appends a notification and returns it with its mail ID.
func (m *Mailbox) Enqueue(subagentID string, kind models.NotificationKind, content string) (models.Notification, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	box, ok := m.boxes[subagentID]
	if !ok {
		return models.Notification{}, fmt.Errorf("mailbox %s: %w", subagentID, models.ErrNotFound)
	}

	m.seq++
	e := &entry{
		seq: m.seq,
		n: models.Notification{
			ID:         "mail-" + strconv.FormatUint(m.seq, 10),
			SubagentID: subagentID,
			Timestamp:  m.now(),
			Kind:       kind,
			Content:    content,
		},
	}
	m.boxes[subagentID] = append(box, e)
	return e.n, nil
}

// List returns a worker's notifications, most recent first.
func (m *Mailbox) List(subagentID string, onlyUnread bool) ([]models.Notification, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	box, ok := m.boxes[subagentID]
	if !ok {
		return nil, fmt.Errorf("mailbox %s: %w", subagentID, models.ErrNotFound)
	}

	out := make([]models.Notification, 0, len(box))
	for i := len(box) - 1; i >= 0; i-- {
		if onlyUnread && box[i].n.Read {
			continue
		}
		out = append(out, box[i].n)
	}
	return out, nil
}

// Read returns one notification and marks it read.
func (m *Mailbox) Read(subagentID, mailID string) (models.Notification, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	box, ok := m.boxes[subagentID]
	if !ok {
		return models.Notification{}, fmt.Errorf("mailbox %s: %w", subagentID, models.ErrNotFound)
	}
	for _, e := range box {
		if e.n.ID == mailID {
			e.n.Read = true
			return e.n, nil
		}
	}
	return models.Notification{}, fmt.Errorf("mail %s for %s: %w", mailID, subagentID, models.ErrNotFound)
}

// Latest returns the most recent notification without marking it read.
func (m *Mailbox) Latest(subagentID string) (models.Notification, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	box := m.boxes[subagentID]
	if len(box) == 0 {
		return models.Notification{}, false
	}
	return box[len(box)-1].n, true
}

// UnreadCount returns the number of unread notifications for a worker.
func (m *Mailbox) UnreadCount(subagentID string) int {
	m.mu.Lock()
	defer m.mu.Unlock()

	n := 0
	for _, e := range m.boxes[subagentID] {
		if !e.n.Read {
			n++
		}
	}
	return n
}

// Inbox returns notifications across every open worker, most recent first.
// With markRead, every returned notification is marked read.
func (m *Mailbox) Inbox(onlyUnread, markRead bool) []models.Notification {
	m.mu.Lock()
	defer m.mu.Unlock()

	var picked []*entry
	for _, box := range m.boxes {
		for _, e := range box {
			if onlyUnread && e.n.Read {
				continue
			}
			picked = append(picked, e)
		}
	}
	sort.Slice(picked, func(i, j int) bool { return picked[i].seq > picked[j].seq })

	out := make([]models.Notification, len(picked))
	for i, e := range picked {
		if markRead {
			e.n.Read = true
		}
		out[i] = e.n
	}
	return out
}

// Drop discards a worker's queue and returns what it held, oldest first.
func (m *Mailbox) Drop(subagentID string) []models.Notification {
	m.mu.Lock()
	defer m.mu.Unlock()

	box := m.boxes[subagentID]
	delete(m.boxes, subagentID)

	out := make([]models.Notification, len(box))
	for i, e := range box {
		out[i] = e.n
	}
	return out
}
