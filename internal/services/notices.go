package services

import (
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/eduardoezequieel/Desafio2-LIC/internal/models"
)

const maxQueuedNotices = 20

// Notices, a per-session toast queue. The oldest notice is dropped when it is full.
type Notices struct {
	mu    sync.Mutex
	queue []models.Notice
	now   func() time.Time
}

// NewNotices returns an empty queue.
func NewNotices() *Notices {
	return &Notices{now: time.Now}
}

// Notify queues a notice.
func (n *Notices) Notify(level models.NoticeLevel, message string) {
	n.mu.Lock()
	defer n.mu.Unlock()

	if len(n.queue) == maxQueuedNotices {
		n.queue = n.queue[1:]
	}
	n.queue = append(n.queue, models.Notice{Level: level, Message: message, CreatedAt: n.now()})
	log.WithField("level", level).Debugf("Notices.Notify - %s", message)
}

// Drain returns the queued notices in arrival order and empties the queue.
func (n *Notices) Drain() []models.Notice {
	n.mu.Lock()
	defer n.mu.Unlock()

	out := n.queue
	n.queue = nil
	if out == nil {
		out = []models.Notice{}
	}
	return out
}

// Len returns the number of queued notices.
func (n *Notices) Len() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.queue)
}
