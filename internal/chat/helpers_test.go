package chat

import (
	"io"
	"log/slog"
	"sync"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestService(opts ...Option) *Service {
	return NewService(append([]Option{WithLogger(quietLogger())}, opts...)...)
}

// recordingPusher keeps every log it is handed.
type recordingPusher struct {
	mu     sync.Mutex
	pushes [][]Message
	refuse bool
}

func (p *recordingPusher) Push(messages []Message) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.refuse {
		return false
	}
	p.pushes = append(p.pushes, messages)
	return true
}

func (p *recordingPusher) last() []Message {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.pushes) == 0 {
		return nil
	}
	return p.pushes[len(p.pushes)-1]
}

func (p *recordingPusher) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.pushes)
}

type panickingPusher struct{}

func (panickingPusher) Push([]Message) bool {
	panic("transport exploded")
}
