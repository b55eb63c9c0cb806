package core

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stub struct {
	name     string
	failWith error
	trace    *[]string
	deadline bool
}

func (s *stub) Name() string { return s.name }

func (s *stub) Start(context.Context) error {
	if s.failWith != nil {
		return s.failWith
	}
	*s.trace = append(*s.trace, "start "+s.name)
	return nil
}

func (s *stub) Stop(ctx context.Context) {
	_, s.deadline = ctx.Deadline()
	*s.trace = append(*s.trace, "stop "+s.name)
}

func TestStartAndStopOrder(t *testing.T) {
	var trace []string
	a, b := &stub{name: "a", trace: &trace}, &stub{name: "b", trace: &trace}
	m := NewManager(a, nil)
	require.NoError(t, m.Add(b))
	m.StopTimeout = time.Second

	require.NoError(t, m.Start(context.Background()))
	assert.Equal(t, []string{"a", "b"}, m.Running())
	assert.Error(t, m.Add(&stub{name: "late", trace: &trace}))
	assert.Error(t, m.Start(context.Background()))

	m.Stop(context.Background())
	m.Stop(context.Background())
	assert.Equal(t, []string{"start a", "start b", "stop b", "stop a"}, trace)
	assert.True(t, a.deadline)
	assert.Empty(t, m.Running())
}

func TestFailedStartRollsBack(t *testing.T) {
	var trace []string
	boom := errors.New("boom")
	m := NewManager(
		&stub{name: "a", trace: &trace},
		&stub{name: "b", trace: &trace, failWith: boom},
		&stub{name: "c", trace: &trace},
	)

	err := m.Start(context.Background())
	require.ErrorIs(t, err, boom)
	assert.Contains(t, err.Error(), "module b failed")
	assert.Equal(t, []string{"start a", "stop a"}, trace)

	m.Stop(context.Background())
	assert.Len(t, trace, 2, "nothing left to stop")
}

func TestCloserRunsOnStop(t *testing.T) {
	closed := 0
	m := NewManager(Closer{Label: "redis", Close: func() error { closed++; return errors.New("already closed") }})
	require.NoError(t, m.Start(context.Background()))
	assert.Zero(t, closed)
	m.Stop(context.Background())
	assert.Equal(t, 1, closed)
}
