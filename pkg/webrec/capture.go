package webrec

import (
	"context"
	"fmt"
	"sync"
)

// Capturer grants access to an input device and hands back a live stream.
type Capturer interface {
	GetUserMedia(ctx context.Context, constraints Constraints) (Stream, error)
}

// Stream is a live capture stream. Frames are interleaved signed 16-bit PCM.
type Stream interface {
	ID() string
	Format() StreamFormat
	AudioTracks() []Track
	// SetFrameHandler installs the sink for captured frames. The slice is
	// only valid for the duration of the call.
	SetFrameHandler(fn AudioFrameHandler)
	// Close stops every track and releases the device.
	Close() error
}

// Track is one audio track of a stream.
type Track interface {
	Kind() string
	Label() string
	Stop() error
	Live() bool
}

// PermissionPolicy decides microphone access before any device is opened.
type PermissionPolicy string

const (
	PermissionGranted PermissionPolicy = "granted"
	PermissionDenied  PermissionPolicy = "denied"
	PermissionPrompt  PermissionPolicy = "prompt"
)

// Prompter asks a human for microphone access.
type Prompter interface {
	Ask(ctx context.Context, constraints Constraints) (bool, error)
}

// PrompterFunc adapts a function to Prompter.
type PrompterFunc func(ctx context.Context, constraints Constraints) (bool, error)

func (f PrompterFunc) Ask(ctx context.Context, constraints Constraints) (bool, error) {
	return f(ctx, constraints)
}

// PermissionGate resolves a PermissionPolicy into a capture decision.
type PermissionGate struct {
	Policy   PermissionPolicy
	Prompter Prompter
}

// Check returns nil when access is granted and a *CaptureError with
// CodePermissionDenied otherwise.
func (g PermissionGate) Check(ctx context.Context, constraints Constraints) error {
	switch g.Policy {
	case PermissionGranted, "":
		return nil
	case PermissionDenied:
		return &CaptureError{Code: CodePermissionDenied, Message: "Permission denied"}
	case PermissionPrompt:
		if g.Prompter == nil {
			return &CaptureError{Code: CodePermissionDenied, Message: "Permission denied: no prompt available"}
		}
		ok, err := g.Prompter.Ask(ctx, constraints)
		if err != nil {
			return err
		}
		if !ok {
			return &CaptureError{Code: CodePermissionDenied, Message: "Permission denied by user"}
		}
		return nil
	}
	return fmt.Errorf("unknown permission policy %q", g.Policy)
}

// SourceNode taps a stream and fans its frames out to any number of sinks.
// The recorder and the level monitor both hang off it.
type SourceNode struct {
	stream Stream
	mu     sync.RWMutex
	sinks  map[int]AudioFrameHandler
	nextID int
}

// NewSourceNode creates a source node bound to stream.
func NewSourceNode(stream Stream) *SourceNode {
	n := &SourceNode{
		stream: stream,
		sinks:  make(map[int]AudioFrameHandler),
	}
	stream.SetFrameHandler(n.dispatch)
	return n
}

func (n *SourceNode) Stream() Stream {
	return n.stream
}

func (n *SourceNode) Format() StreamFormat {
	return n.stream.Format()
}

// Connect attaches a sink and returns a function that detaches it.
func (n *SourceNode) Connect(fn AudioFrameHandler) func() {
	n.mu.Lock()
	id := n.nextID
	n.nextID++
	n.sinks[id] = fn
	n.mu.Unlock()

	return func() {
		n.mu.Lock()
		delete(n.sinks, id)
		n.mu.Unlock()
	}
}

// Disconnect detaches every sink and the stream callback.
func (n *SourceNode) Disconnect() {
	n.mu.Lock()
	n.sinks = make(map[int]AudioFrameHandler)
	n.mu.Unlock()
	n.stream.SetFrameHandler(nil)
}

func (n *SourceNode) dispatch(frame []int16) {
	n.mu.RLock()
	defer n.mu.RUnlock()
	for _, fn := range n.sinks {
		fn(frame)
	}
}
