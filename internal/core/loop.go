package core

import (
	"context"
	"errors"
)

// ErrLoopClosed is returned by Do after the loop has shut down.
var ErrLoopClosed = errors.New("engine loop closed")

type command struct {
	fn    func(*Engine) error
	reply chan error
}

// Loop serializes all engine access onto one goroutine. Transport
// handlers submit closures; each runs to completion before the next
// starts, preserving the single-writer execution model end to end.
type Loop struct {
	engine *Engine
	cmds   chan command
	done   chan struct{}
}

func NewLoop(engine *Engine, depth int) *Loop {
	if depth <= 0 {
		depth = 256
	}
	return &Loop{
		engine: engine,
		cmds:   make(chan command, depth),
		done:   make(chan struct{}),
	}
}

// Run drains commands until ctx is cancelled. Blocks; start in its own
// goroutine.
func (l *Loop) Run(ctx context.Context) error {
	defer close(l.done)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case cmd := <-l.cmds:
			cmd.reply <- cmd.fn(l.engine)
		}
	}
}

// Do runs fn on the loop goroutine and returns its error. The closure
// must not retain references to engine internals beyond the call.
func (l *Loop) Do(ctx context.Context, fn func(*Engine) error) error {
	cmd := command{fn: fn, reply: make(chan error, 1)}

	select {
	case l.cmds <- cmd:
	case <-l.done:
		return ErrLoopClosed
	case <-ctx.Done():
		return ctx.Err()
	}

	select {
	case err := <-cmd.reply:
		return err
	case <-l.done:
		return ErrLoopClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}
