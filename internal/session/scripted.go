package session

import (
	"context"
	"sync"
)

// TurnFunc produces the reply for one turn. turn counts from 1.
type TurnFunc func(ctx context.Context, cfg Config, turn int, input string) (Reply, error)

// Scripted is an in-process backend driven by a TurnFunc. It records what
// was spawned and closed so callers can assert on it.
type Scripted struct {
	turn TurnFunc
	// SpawnErr, when set, decides whether a spawn fails.
	SpawnErr func(cfg Config) error

	mu      sync.Mutex
	spawned []Config
	closed  int
}

// NewScripted creates a scripted backend.
func NewScripted(turn TurnFunc) *Scripted {
	return &Scripted{turn: turn}
}

// Spawn records cfg and returns a conversation bound to the TurnFunc.
func (s *Scripted) Spawn(ctx context.Context, cfg Config) (Conversation, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s.SpawnErr != nil {
		if err := s.SpawnErr(cfg); err != nil {
			return nil, err
		}
	}
	s.mu.Lock()
	s.spawned = append(s.spawned, cfg)
	s.mu.Unlock()
	return &scriptedConversation{parent: s, cfg: cfg}, nil
}

// Spawned returns the configs of every successful spawn.
func (s *Scripted) Spawned() []Config {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Config(nil), s.spawned...)
}

// Closed returns how many conversations were closed.
func (s *Scripted) Closed() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

type scriptedConversation struct {
	parent *Scripted
	cfg    Config

	mu    sync.Mutex
	turns int
}

func (c *scriptedConversation) Turn(ctx context.Context, input string) (Reply, error) {
	c.mu.Lock()
	c.turns++
	n := c.turns
	c.mu.Unlock()
	return c.parent.turn(ctx, c.cfg, n, input)
}

func (c *scriptedConversation) Close(ctx context.Context) error {
	c.parent.mu.Lock()
	c.parent.closed++
	c.parent.mu.Unlock()
	return nil
}
