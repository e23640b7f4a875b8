package proxies

import (
	"encoding/json"
)

// Picker is the random source used for selection. *rand.Rand satisfies it.
type Picker interface {
	Intn(n int) int
}

// Pool is an ordered set of proxies owned by one caller. It is not safe for
// concurrent use; the caller registry serializes access.
type Pool struct {
	entries []Proxy
	index   map[string]struct{}
}

func NewPool(entries ...string) *Pool {
	p := &Pool{index: make(map[string]struct{})}
	for _, e := range entries {
		p.Add(e)
	}
	return p
}

// Add inserts every valid proxy in raw that is not already present and
// returns how many were inserted.
func (p *Pool) Add(raw string) int {
	if p.index == nil {
		p.index = make(map[string]struct{})
	}

	added := 0
	for _, token := range Extract(raw) {
		if _, exists := p.index[token]; exists {
			continue
		}
		proxy, _ := Parse(token)
		p.entries = append(p.entries, proxy)
		p.index[token] = struct{}{}
		added++
	}
	return added
}

func (p *Pool) Clear() {
	p.entries = nil
	p.index = make(map[string]struct{})
}

func (p *Pool) Len() int {
	return len(p.entries)
}

// List returns a copy of the entries in insertion order.
func (p *Pool) List() []Proxy {
	out := make([]Proxy, len(p.entries))
	copy(out, p.entries)
	return out
}

// SelectOne returns a uniformly random entry, or false when the pool is empty.
func (p *Pool) SelectOne(picker Picker) (Proxy, bool) {
	if len(p.entries) == 0 {
		return Proxy{}, false
	}
	return p.entries[picker.Intn(len(p.entries))], true
}

// Clone returns an independent copy, used to hand a read-only snapshot to a
// running batch.
func (p *Pool) Clone() *Pool {
	c := &Pool{
		entries: p.List(),
		index:   make(map[string]struct{}, len(p.entries)),
	}
	for _, e := range c.entries {
		c.index[e.String()] = struct{}{}
	}
	return c
}

func (p *Pool) MarshalJSON() ([]byte, error) {
	out := make([]string, 0, len(p.entries))
	for _, e := range p.entries {
		out = append(out, e.String())
	}
	return json.Marshal(out)
}

func (p *Pool) UnmarshalJSON(data []byte) error {
	var entries []string
	if err := json.Unmarshal(data, &entries); err != nil {
		return err
	}

	p.Clear()
	for _, e := range entries {
		p.Add(e)
	}
	return nil
}
