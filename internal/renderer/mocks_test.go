package renderer

import (
	"sync"

	"github.com/xkilldash9x/inputpipe/api/schemas"
)

// recordingSink collects acks in arrival order.
type recordingSink struct {
	mu      sync.Mutex
	acks    []schemas.InputEventAck
	carets  int
	selects int
	err     error
}

func (s *recordingSink) OnInputEventAck(ack schemas.InputEventAck) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.acks = append(s.acks, ack)
	return s.err
}

func (s *recordingSink) OnMoveCaretAck() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.carets++
	return nil
}

func (s *recordingSink) OnSelectRangeAck() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.selects++
	return nil
}

func (s *recordingSink) types() []schemas.EventType {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]schemas.EventType, len(s.acks))
	for i, a := range s.acks {
		out[i] = a.Type
	}
	return out
}

func (s *recordingSink) snapshot() []schemas.InputEventAck {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]schemas.InputEventAck(nil), s.acks...)
}

// chanPoster hands posted closures to the test goroutine.
type chanPoster struct {
	fns chan func()
}

func newChanPoster() *chanPoster { return &chanPoster{fns: make(chan func(), 64)} }

func (p *chanPoster) Post(fn func()) bool {
	p.fns <- fn
	return true
}
