package chat

import "sync"

// Notifier delivers messages produced outside of a request, such as batch
// completion summaries.
type Notifier interface {
	Notify(callerID, text string)
}

// Outbox keeps notifications in memory until the caller drains them.
type Outbox struct {
	mux     sync.Mutex
	pending map[string][]string
	limit   int
}

// NewOutbox creates an outbox holding at most limit messages per caller,
// dropping the oldest ones first. A limit of 0 keeps everything.
func NewOutbox(limit int) *Outbox {
	return &Outbox{
		pending: make(map[string][]string),
		limit:   limit,
	}
}

func (o *Outbox) Notify(callerID, text string) {
	o.mux.Lock()
	defer o.mux.Unlock()

	msgs := append(o.pending[callerID], text)
	if o.limit > 0 && len(msgs) > o.limit {
		msgs = msgs[len(msgs)-o.limit:]
	}
	o.pending[callerID] = msgs
}

// Drain returns and forgets every pending message of the caller.
func (o *Outbox) Drain(callerID string) []string {
	o.mux.Lock()
	defer o.mux.Unlock()

	msgs := o.pending[callerID]
	delete(o.pending, callerID)
	if msgs == nil {
		return []string{}
	}
	return msgs
}
