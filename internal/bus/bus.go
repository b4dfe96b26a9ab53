// Package bus declares the wire-level message-bus contract the pipeline
// orchestrator publishes to and consumes from, plus an in-memory reference
// implementation. A production deployment swaps MemoryBus for a real durable
// stream client without changing internal/pipeline.
package bus

import (
	"context"
	"fmt"
	"sync"
)

// Message is one bus delivery: a subject plus its JSON payload.
type Message struct {
	Subject string
	Payload []byte
}

// Publisher publishes payloads to a subject.
type Publisher interface {
	Publish(ctx context.Context, subject string, payload []byte) error
}

// Subscriber subscribes to a subject under a delivery policy.
type Subscriber interface {
	Subscribe(ctx context.Context, subject string, deliverPolicy DeliverPolicy) (<-chan Message, error)
}

// DeliverPolicy mirrors the durable-stream consumer policies a production
// bus client would offer.
type DeliverPolicy int

const (
	DeliverNew DeliverPolicy = iota
	DeliverAll
	DeliverLast
	DeliverLastPerSubject
)

// subscriberQueueSize bounds each subscriber's buffered channel. Overflow
// drops the oldest undelivered message rather than blocking the publisher.
const subscriberQueueSize = 256

type subscription struct {
	ch chan Message
}

// MemoryBus is a fan-out, in-process Publisher+Subscriber over buffered Go
// channels, modeled on a Hub.Broadcast pattern: one slice of subscriber
// channels per subject, guarded by a single mutex.
type MemoryBus struct {
	mu            sync.Mutex
	subscriptions map[string][]*subscription
	history       map[string][]Message // last subscriberQueueSize messages per subject, replayed for DeliverAll/DeliverLast
	onOverflow    func(subject string)
}

// NewMemoryBus constructs an empty bus. onOverflow, if non-nil, is invoked
// whenever a subscriber's queue overflows and a message is dropped (wired to
// a Prometheus counter by the orchestrator).
func NewMemoryBus(onOverflow func(subject string)) *MemoryBus {
	return &MemoryBus{
		subscriptions: make(map[string][]*subscription),
		history:       make(map[string][]Message),
		onOverflow:    onOverflow,
	}
}

// Publish fans payload out to every current subscriber of subject.
func (b *MemoryBus) Publish(ctx context.Context, subject string, payload []byte) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	msg := Message{Subject: subject, Payload: payload}
	b.history[subject] = append(b.history[subject], msg)
	if len(b.history[subject]) > subscriberQueueSize {
		b.history[subject] = b.history[subject][len(b.history[subject])-subscriberQueueSize:]
	}

	for _, sub := range b.subscriptions[subject] {
		select {
		case sub.ch <- msg:
		default:
			// Queue full: drop the oldest, then enqueue the new message.
			select {
			case <-sub.ch:
			default:
			}
			select {
			case sub.ch <- msg:
			default:
			}
			if b.onOverflow != nil {
				b.onOverflow(subject)
			}
		}
	}
	return nil
}

// Subscribe registers a new channel for subject. DeliverAll replays the
// bus's retained history for that subject before live messages arrive;
// DeliverLast and DeliverLastPerSubject replay just the newest retained
// message (the two behave identically here, since each subscription covers
// one subject); DeliverNew replays nothing and delivers live messages only.
func (b *MemoryBus) Subscribe(ctx context.Context, subject string, deliverPolicy DeliverPolicy) (<-chan Message, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	sub := &subscription{ch: make(chan Message, subscriberQueueSize)}
	b.subscriptions[subject] = append(b.subscriptions[subject], sub)

	switch deliverPolicy {
	case DeliverAll:
		for _, msg := range b.history[subject] {
			sub.ch <- msg
		}
	case DeliverLast, DeliverLastPerSubject:
		if hist := b.history[subject]; len(hist) > 0 {
			sub.ch <- hist[len(hist)-1]
		}
	}

	go func() {
		<-ctx.Done()
		b.mu.Lock()
		defer b.mu.Unlock()
		b.removeLocked(subject, sub)
		close(sub.ch)
	}()

	return sub.ch, nil
}

func (b *MemoryBus) removeLocked(subject string, target *subscription) {
	subs := b.subscriptions[subject]
	for i, s := range subs {
		if s == target {
			b.subscriptions[subject] = append(subs[:i], subs[i+1:]...)
			return
		}
	}
}

// Subjects carried on the bus.
const (
	SubjectOptionPrints  = "option.prints"
	SubjectOptionNBBO    = "option.nbbo"
	SubjectEquityPrints  = "equity.prints"
	SubjectEquityQuotes  = "equity.quotes"
	SubjectEquityJoins   = "equity.joins"
	SubjectEquityCandles = "equity.candles"
	SubjectInferredDark  = "inferred.dark"
	SubjectFlowPackets   = "flow.packets"
	SubjectClassifierHit = "classifier.hits"
	SubjectAlerts        = "alerts"
)

// ErrUnknownDeliverPolicy is returned by config parsing when an env var
// names a delivery policy this bus doesn't recognize.
var ErrUnknownDeliverPolicy = fmt.Errorf("bus: unknown deliver policy")

// ParseDeliverPolicy maps the config env-var spellings onto DeliverPolicy.
func ParseDeliverPolicy(s string) (DeliverPolicy, error) {
	switch s {
	case "new", "":
		return DeliverNew, nil
	case "all":
		return DeliverAll, nil
	case "last":
		return DeliverLast, nil
	case "last_per_subject":
		return DeliverLastPerSubject, nil
	default:
		return DeliverNew, ErrUnknownDeliverPolicy
	}
}
