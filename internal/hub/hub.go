package hub

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/xxxsen/common/logutil"

	"github.com/tablekeep/tablekeep/internal/model"
)

// Topic scopes a broadcast stream to one page of one document.
type Topic struct {
	DocumentID string
	PageID     string
}

// Subscriber receives events for one topic. Its channel is closed when the
// hub drops it (slow consumer) or when Close is called; a consumer seeing
// the channel close must resync from a full page snapshot.
type Subscriber struct {
	topic Topic
	ch    chan model.Event

	closeOnce sync.Once
	hub       *Hub
}

func (s *Subscriber) Topic() Topic {
	return s.topic
}

func (s *Subscriber) Events() <-chan model.Event {
	return s.ch
}

func (s *Subscriber) Close() {
	s.hub.unsubscribe(s)
}

// Hub fans events out to per-topic subscriber sets. Delivery is
// best-effort: publishing never blocks, and a subscriber whose buffer is
// full is dropped rather than stalling the writer's commit path.
type Hub struct {
	mu     sync.Mutex
	subs   map[Topic]map[*Subscriber]struct{}
	buffer int
}

func NewHub(buffer int) *Hub {
	if buffer <= 0 {
		buffer = 64
	}
	return &Hub{
		subs:   make(map[Topic]map[*Subscriber]struct{}),
		buffer: buffer,
	}
}

func (h *Hub) Subscribe(topic Topic) *Subscriber {
	sub := &Subscriber{
		topic: topic,
		ch:    make(chan model.Event, h.buffer),
		hub:   h,
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	set, ok := h.subs[topic]
	if !ok {
		set = make(map[*Subscriber]struct{})
		h.subs[topic] = set
	}
	set[sub] = struct{}{}
	return sub
}

// Publish enqueues the event for every subscriber of the topic. Events
// published under the hub lock arrive in publish order on each surviving
// subscriber's channel, which gives per-row ordering for free.
func (h *Hub) Publish(topic Topic, ev model.Event) {
	h.mu.Lock()
	defer h.mu.Unlock()
	set, ok := h.subs[topic]
	if !ok {
		return
	}
	for sub := range set {
		select {
		case sub.ch <- ev:
		default:
			delete(set, sub)
			sub.closeOnce.Do(func() { close(sub.ch) })
			logutil.GetLogger(context.Background()).Warn("dropping slow subscriber",
				zap.String("document_id", topic.DocumentID),
				zap.String("page_id", topic.PageID))
		}
	}
	if len(set) == 0 {
		delete(h.subs, topic)
	}
}

func (h *Hub) SubscriberCount(topic Topic) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs[topic])
}

func (h *Hub) unsubscribe(sub *Subscriber) {
	h.mu.Lock()
	defer h.mu.Unlock()
	set, ok := h.subs[sub.topic]
	if ok {
		delete(set, sub)
		if len(set) == 0 {
			delete(h.subs, sub.topic)
		}
	}
	sub.closeOnce.Do(func() { close(sub.ch) })
}
