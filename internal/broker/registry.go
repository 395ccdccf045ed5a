package broker

import (
	"context"
	"errors"
	"sync"
)

var errDuplicateCorrelation = errors.New("correlation id already in flight")

// Kind is the kind of a pending operation.
type Kind string

const (
	KindFetch    Kind = "fetch"
	KindDownload Kind = "download"
	KindCookie   Kind = "cookie"
)

// endReason records who removed a pending entry.
type endReason int

const (
	endNone endReason = iota
	endFinished
	endAborted
	endDisconnected
)

type opKey struct {
	channel       string
	correlationID string
}

// pendingOperation is one in-flight streaming operation. reason is written
// once, under the registry lock, by whoever removes the entry.
type pendingOperation struct {
	key      opKey
	kind     Kind
	scriptID string
	cancel   context.CancelFunc
	reason   endReason
}

// registry is the only shared mutable state of the broker.
type registry struct {
	mu  sync.Mutex
	ops map[opKey]*pendingOperation
	// onChange reports the new size; called with mu held.
	onChange func(n int)
}

func newRegistry(onChange func(int)) *registry {
	if onChange == nil {
		onChange = func(int) {}
	}
	return &registry{ops: make(map[opKey]*pendingOperation), onChange: onChange}
}

func (r *registry) add(op *pendingOperation) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.ops[op.key]; exists {
		return errDuplicateCorrelation
	}
	r.ops[op.key] = op
	r.onChange(len(r.ops))
	return nil
}

// remove deletes the entry for key if it is still registered and records
// why. It returns the removed entry, or nil if someone else got there first.
func (r *registry) remove(key opKey, reason endReason) *pendingOperation {
	r.mu.Lock()
	defer r.mu.Unlock()
	op, ok := r.ops[key]
	if !ok {
		return nil
	}
	delete(r.ops, key)
	op.reason = reason
	r.onChange(len(r.ops))
	return op
}

// removeChannel removes every entry of a channel.
func (r *registry) removeChannel(channel string, reason endReason) []*pendingOperation {
	r.mu.Lock()
	defer r.mu.Unlock()
	var removed []*pendingOperation
	for key, op := range r.ops {
		if key.channel == channel {
			delete(r.ops, key)
			op.reason = reason
			removed = append(removed, op)
		}
	}
	if len(removed) > 0 {
		r.onChange(len(r.ops))
	}
	return removed
}

// reasonOf reads the removal reason of op.
func (r *registry) reasonOf(op *pendingOperation) endReason {
	r.mu.Lock()
	defer r.mu.Unlock()
	return op.reason
}

func (r *registry) len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.ops)
}

func (r *registry) has(key opKey) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.ops[key]
	return ok
}
