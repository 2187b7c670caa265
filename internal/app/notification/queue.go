package notification

import (
	"fabtracker/internal/app/guild"
	"fabtracker/internal/app/metrics"
	"sync"
	"time"

	"github.com/google/uuid"
)

// FIFO per guild; guilds are served round robin so one busy guild can't starve the others.
type Queue struct {
	mutex  sync.Mutex
	queues map[string][]Notification
	order  []string
	size   int
	notify chan struct{}
	now    func() time.Time
}

func NewQueue() *Queue {
	return &Queue{
		queues: map[string][]Notification{},
		notify: make(chan struct{}, 1),
		now:    time.Now,
	}
}

func (q *Queue) Enqueue(guildId string, notificationType guild.NotificationType, payload Message) Notification {
	item := Notification{
		Id:         uuid.New(),
		GuildId:    guildId,
		Type:       notificationType,
		Payload:    payload,
		EnqueuedAt: q.now(),
	}

	q.mutex.Lock()

	if len(q.queues[guildId]) == 0 {
		q.order = append(q.order, guildId)
	}

	q.queues[guildId] = append(q.queues[guildId], item)
	q.size++
	metrics.QueueDepth.Set(float64(q.size))

	q.mutex.Unlock()

	select {
	case q.notify <- struct{}{}:
	default:
	}

	return item
}

// Take up to limit entries, one guild at a time.
func (q *Queue) Take(limit int) []Notification {
	q.mutex.Lock()
	defer q.mutex.Unlock()

	batch := make([]Notification, 0, limit)

	for len(batch) < limit && len(q.order) > 0 {
		guildId := q.order[0]
		q.order = q.order[1:]

		items := q.queues[guildId]
		batch = append(batch, items[0])

		if len(items) == 1 {
			delete(q.queues, guildId)
		} else {
			q.queues[guildId] = items[1:]
			q.order = append(q.order, guildId)
		}
	}

	q.size -= len(batch)
	metrics.QueueDepth.Set(float64(q.size))

	return batch
}

func (q *Queue) Len() int {
	q.mutex.Lock()
	defer q.mutex.Unlock()

	return q.size
}

// Signals new entries, coalesced.
func (q *Queue) Notify() <-chan struct{} {
	return q.notify
}
