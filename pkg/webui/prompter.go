package webui

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rojolang/webrec-go/pkg/webrec"
)

// ErrNoPage is returned when a permission prompt has nobody to ask.
var ErrNoPage = errors.New("no page connected to answer the permission prompt")

// HubPrompter asks connected pages for microphone access. The first answer
// wins; silence until the timeout counts as a denial.
type HubPrompter struct {
	hub     *Hub
	timeout time.Duration

	mu      sync.Mutex
	pending map[string]chan bool
}

func NewHubPrompter(hub *Hub, timeout time.Duration) *HubPrompter {
	p := &HubPrompter{
		hub:     hub,
		timeout: timeout,
		pending: make(map[string]chan bool),
	}
	hub.AddMessageHandler(p.handle)
	return p
}

func (p *HubPrompter) Ask(ctx context.Context, constraints webrec.Constraints) (bool, error) {
	if p.hub.Clients() == 0 {
		return false, ErrNoPage
	}

	id := uuid.NewString()
	answer := make(chan bool, 1)
	p.mu.Lock()
	p.pending[id] = answer
	p.mu.Unlock()
	defer func() {
		p.mu.Lock()
		delete(p.pending, id)
		p.mu.Unlock()
	}()

	p.hub.Broadcast("permission_request", gin.H{
		"id":    id,
		"audio": constraints.Audio,
		"video": constraints.Video,
	})

	var timeout <-chan time.Time
	if p.timeout > 0 {
		timer := time.NewTimer(p.timeout)
		defer timer.Stop()
		timeout = timer.C
	}

	select {
	case granted := <-answer:
		return granted, nil
	case <-timeout:
		return false, nil
	case <-ctx.Done():
		return false, ctx.Err()
	}
}

func (p *HubPrompter) handle(msg ClientMessage) {
	if msg.Type != "permission_response" {
		return
	}
	p.mu.Lock()
	answer, ok := p.pending[msg.ID]
	delete(p.pending, msg.ID)
	p.mu.Unlock()

	if ok {
		answer <- msg.Granted
	}
}
