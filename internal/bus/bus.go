// Package bus implements the inter-plugin message bus of spec.md §4.G:
// per-plugin bounded queues, per-topic subscriber sets, and direct sends,
// every operation gated by the capability check engine.
package bus

import (
	"sync"

	"github.com/lion-dev/lion/internal/check"
	"github.com/lion-dev/lion/internal/domain"
	"github.com/lion-dev/lion/internal/lionerr"
)

const defaultQueueSize = 64

// Message is one piece of content delivered through the bus, carrying
// the sender and (for topic deliveries) the topic it arrived on.
type Message struct {
	Sender  domain.PluginID
	Topic   string // empty for a direct send
	Content any
}

// Bus is the message bus. Every plugin gets a bounded mailbox on first
// use; topics are lazily created on first subscribe.
type Bus struct {
	checker *check.Engine
	onWarn  func(format string, args ...any)

	mu          sync.Mutex
	queues      map[domain.PluginID]chan Message
	subscribers map[string]map[domain.PluginID]struct{}
	queueSize   int
}

// New builds a Bus. checker gates every publish/subscribe/send against
// the capability system; onWarn receives non-fatal drop notifications
// (spec.md §4.G "drops to a full subscriber queue emit a warning but do
// not fail the publish"). onWarn may be nil.
func New(checker *check.Engine, queueSize int, onWarn func(format string, args ...any)) *Bus {
	if queueSize <= 0 {
		queueSize = defaultQueueSize
	}
	return &Bus{
		checker:     checker,
		onWarn:      onWarn,
		queues:      make(map[domain.PluginID]chan Message),
		subscribers: make(map[string]map[domain.PluginID]struct{}),
		queueSize:   queueSize,
	}
}

func (b *Bus) warn(format string, args ...any) {
	if b.onWarn != nil {
		b.onWarn(format, args...)
	}
}

func (b *Bus) queueFor(plugin domain.PluginID) chan Message {
	b.mu.Lock()
	defer b.mu.Unlock()
	q, ok := b.queues[plugin]
	if !ok {
		q = make(chan Message, b.queueSize)
		b.queues[plugin] = q
	}
	return q
}

// Publish implements spec.md §4.G publish(): capability-gate the sender
// for Send on topic, then fan out to every current subscriber. A full
// subscriber queue is skipped with a warning rather than failing the
// whole publish.
func (b *Bus) Publish(sender domain.PluginID, topic string, content any) error {
	if err := b.checker.Check(sender, domain.MessageRequest("", topic, true, false)); err != nil {
		return lionerr.NewMessageError(lionerr.MessagePermissionDenied, "sender may not publish", err)
	}

	b.mu.Lock()
	subs := make([]domain.PluginID, 0, len(b.subscribers[topic]))
	for plugin := range b.subscribers[topic] {
		subs = append(subs, plugin)
	}
	b.mu.Unlock()

	message := Message{Sender: sender, Topic: topic, Content: content}
	for _, plugin := range subs {
		q := b.queueFor(plugin)
		select {
		case q <- message:
		default:
			b.warn("bus: dropped message on topic %q for plugin %s: queue full", topic, plugin)
		}
	}
	return nil
}

// Subscribe implements spec.md §4.G subscribe(): capability-gate the
// plugin for Receive on topic, ensure its queue exists, and add it to
// the topic's subscriber set. Repeated subscribes to the same topic are
// idempotent.
func (b *Bus) Subscribe(plugin domain.PluginID, topic string) error {
	if err := b.checker.Check(plugin, domain.MessageRequest("", topic, false, true)); err != nil {
		return lionerr.NewMessageError(lionerr.MessagePermissionDenied, "plugin may not subscribe", err)
	}

	b.queueFor(plugin)

	b.mu.Lock()
	defer b.mu.Unlock()
	subs, ok := b.subscribers[topic]
	if !ok {
		subs = make(map[domain.PluginID]struct{})
		b.subscribers[topic] = subs
	}
	subs[plugin] = struct{}{}
	return nil
}

// Unsubscribe implements spec.md §4.G unsubscribe(): remove plugin from
// topic's subscriber set. A topic with no current subscribers (never
// subscribed to, or emptied by earlier unsubscribes) is reported as
// NoSuchTopic.
func (b *Bus) Unsubscribe(plugin domain.PluginID, topic string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	subs, ok := b.subscribers[topic]
	if !ok {
		return lionerr.NewMessageError(lionerr.MessageNoSuchTopic, "no such topic: "+topic, nil)
	}
	delete(subs, plugin)
	if len(subs) == 0 {
		delete(b.subscribers, topic)
	}
	return nil
}

// SendDirect implements spec.md §4.G send_direct(): capability-gate the
// sender, then enqueue directly into target's mailbox. A target that has
// never been seen is NoSuchPlugin; a full mailbox is BusFull.
func (b *Bus) SendDirect(sender, target domain.PluginID, content any) error {
	if err := b.checker.Check(sender, domain.MessageRequest(string(target), "", true, false)); err != nil {
		return lionerr.NewMessageError(lionerr.MessagePermissionDenied, "sender may not send directly", err)
	}

	b.mu.Lock()
	q, ok := b.queues[target]
	b.mu.Unlock()
	if !ok {
		return lionerr.NewMessageError(lionerr.MessageNoSuchPlugin, "no such plugin: "+string(target), nil)
	}

	message := Message{Sender: sender, Content: content}
	select {
	case q <- message:
		return nil
	default:
		return lionerr.NewMessageError(lionerr.MessageBusFull, "target mailbox is full", nil)
	}
}

// NextMessage implements spec.md §4.G next_message(): a non-blocking
// dequeue from plugin's own mailbox. ok is false when the mailbox is
// empty.
func (b *Bus) NextMessage(plugin domain.PluginID) (message Message, ok bool) {
	q := b.queueFor(plugin)
	select {
	case m := <-q:
		return m, true
	default:
		return Message{}, false
	}
}
