package connectivity

import (
	"context"
	"errors"
	"io"
	"log"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func quietLogger() *log.Logger {
	return log.New(io.Discard, "", 0)
}

func TestGateNotifiesOnlyOnTransitions(t *testing.T) {
	g := NewGate(false, quietLogger())

	var (
		mu     sync.Mutex
		events []bool
	)
	g.Subscribe(func(online bool) {
		mu.Lock()
		defer mu.Unlock()
		events = append(events, online)
	})

	g.Set(false)
	g.Set(true)
	g.Set(true)
	g.Set(false)
	g.Set(true)

	assert.True(t, g.Online())
	assert.Equal(t, []bool{true, false, true}, events)
}

func TestGateUnsubscribe(t *testing.T) {
	g := NewGate(true, quietLogger())

	calls := 0
	id := g.Subscribe(func(bool) { calls++ })
	assert.True(t, g.Unsubscribe(id))
	assert.False(t, g.Unsubscribe(id))

	g.Set(false)
	assert.Equal(t, 0, calls)
}

func TestGateSurvivesPanickingHandler(t *testing.T) {
	g := NewGate(false, quietLogger())

	called := false
	g.Subscribe(func(bool) { panic("boom") })
	g.Subscribe(func(bool) { called = true })

	assert.NotPanics(t, func() { g.Set(true) })
	assert.True(t, called)
}

type stubPinger struct {
	err error
}

func (s *stubPinger) Ping(ctx context.Context) error {
	return s.err
}

func TestProberUpdatesGate(t *testing.T) {
	g := NewGate(true, quietLogger())
	pinger := &stubPinger{err: errors.New("connection refused")}
	p := NewProber(g, pinger, 0, quietLogger())

	assert.False(t, p.Probe(context.Background()))
	assert.False(t, g.Online())

	pinger.err = nil
	assert.True(t, p.Probe(context.Background()))
	assert.True(t, g.Online())
}
