package events

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stellaria-pact/governance/src/shared/gov"
	"github.com/stretchr/testify/assert"
)

func TestTypedDeliveryInOrder(t *testing.T) {
	bus := NewBus()
	var got []string

	On(bus, "first", func(_ context.Context, e VoteFinished) error {
		got = append(got, "first:"+e.Vote.Title)
		return nil
	})
	On(bus, "second", func(_ context.Context, e VoteFinished) error {
		got = append(got, "second:"+e.Vote.Title)
		return nil
	})
	On(bus, "other", func(_ context.Context, e VoteCreated) error {
		got = append(got, "wrong channel")
		return nil
	})

	id := bus.Publish(context.Background(), VoteFinished{Vote: gov.VoteDetailDTO{Title: "budget"}})
	assert.NotEqual(t, uuid.Nil, id)
	assert.Equal(t, []string{"first:budget", "second:budget"}, got)
	assert.Equal(t, 2, bus.Subscribers(NameVoteFinished))
}

func TestFailingSubscriberDoesNotStopOthers(t *testing.T) {
	bus := NewBus()
	reached := 0
	On(bus, "fails", func(context.Context, AnnouncementFinished) error { return errors.New("boom") })
	On(bus, "panics", func(context.Context, AnnouncementFinished) error { panic("bad") })
	On(bus, "ok", func(context.Context, AnnouncementFinished) error {
		reached++
		return nil
	})

	bus.PublishAll(context.Background(), AnnouncementFinished{}, nil, AnnouncementFinished{})
	assert.Equal(t, 2, reached)
}

func TestPublishWithoutSubscribers(t *testing.T) {
	bus := NewBus()
	assert.NotPanics(t, func() {
		bus.Publish(context.Background(), ObjectionGoalReached{})
	})
}
