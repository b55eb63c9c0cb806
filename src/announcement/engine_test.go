package announcement_test

import (
	"context"
	"testing"
	"time"
	_ "time/tzdata"

	"github.com/stellaria-pact/governance/src/announcement"
	"github.com/stellaria-pact/governance/src/events"
	"github.com/stellaria-pact/governance/src/events/eventstest"
	"github.com/stellaria-pact/governance/src/proposal"
	"github.com/stellaria-pact/governance/src/shared/errs"
	"github.com/stellaria-pact/governance/src/shared/gov"
	"github.com/stellaria-pact/governance/src/store"
	"github.com/stellaria-pact/governance/src/store/storetest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var ctx = context.Background()

type fixture struct {
	st       *store.Store
	clock    *storetest.Clock
	bus      *events.Bus
	rec      *eventstest.Recorder
	engine   *announcement.Engine
	proposal *proposal.Engine
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	st, clock := storetest.New(t)
	bus := events.NewBus()
	rec := eventstest.Record(bus,
		events.NameAnnouncementCreated, events.NameAnnouncementExpired,
		events.NameAnnouncementFinished, events.NameAnnouncementRepostDue,
		events.NameProposalStatusChanged)
	e := announcement.New(st, bus, announcement.Config{
		Location:              time.UTC,
		BroadcastChannels:     []string{"b-1", "b-2"},
		RepostThreshold:       2,
		RepostIntervalMinutes: 30,
	})
	pe := proposal.New(st, bus, proposal.Config{DiscussionForumID: "forum"})
	events.On(bus, "proposal.announcement_finished", func(ctx context.Context, ev events.AnnouncementFinished) error {
		_, err := pe.OnAnnouncementFinished(ctx, ev.Announcement.ThreadID)
		return err
	})
	return &fixture{st: st, clock: clock, bus: bus, rec: rec, engine: e, proposal: pe}
}

func (f *fixture) thread(t *testing.T, id string) {
	t.Helper()
	_, err := f.proposal.CreateFromThread(ctx, proposal.ThreadQO{ThreadID: id, ParentID: "forum", OwnerID: "author", Title: "P " + id})
	require.NoError(t, err)
}

func TestParseEnd(t *testing.T) {
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	berlin, err := time.LoadLocation("Europe/Berlin")
	require.NoError(t, err)

	end, err := announcement.ParseEnd("24", now, berlin)
	require.NoError(t, err)
	assert.Equal(t, now.Add(24*time.Hour), end)

	end, err = announcement.ParseEnd("2024-05-02 14:00", now, berlin)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 5, 2, 12, 0, 0, 0, time.UTC), end)

	for _, in := range []string{"", "3", "169", "tomorrow", "2024-05-01 15:00", "2024-06-01 12:00"} {
		_, err := announcement.ParseEnd(in, now, berlin)
		assert.Equal(t, errs.KindValidation, errs.KindOf(err), in)
	}
}

func TestCreateValidatesAndBroadcasts(t *testing.T) {
	f := newFixture(t)
	f.thread(t, "t-1")

	_, err := f.engine.Create(ctx, announcement.CreateQO{ThreadID: "t-1", Title: "", Content: "x", End: "24"})
	assert.Equal(t, errs.KindValidation, errs.KindOf(err))
	_, err = f.engine.Create(ctx, announcement.CreateQO{ThreadID: "t-none", Title: "T", Content: "x", End: "24"})
	assert.Equal(t, errs.KindNotFound, errs.KindOf(err))

	a, err := f.engine.Create(ctx, announcement.CreateQO{ThreadID: "t-1", AnnouncerID: "u", Title: "Vote soon", Content: "Body", End: "24"})
	require.NoError(t, err)
	assert.True(t, a.Active)
	assert.Equal(t, f.clock.Now().Add(24*time.Hour), a.EndTime)

	created, ok := eventstest.Last[events.AnnouncementCreated](f.rec)
	require.True(t, ok)
	assert.Equal(t, []string{"b-1", "b-2"}, created.Channels)

	_, err = f.engine.Create(ctx, announcement.CreateQO{ThreadID: "t-1", Title: "Again", Content: "Body", End: "24"})
	assert.Equal(t, errs.KindState, errs.KindOf(err))

	monitored, err := f.engine.CountMessage(ctx, "b-1")
	require.NoError(t, err)
	assert.False(t, monitored, "no monitors without repost")
}

func TestRebroadcastNeedsCountAndInterval(t *testing.T) {
	f := newFixture(t)
	f.thread(t, "t-1")

	monitored, err := f.engine.CountMessage(ctx, "b-1")
	require.NoError(t, err)
	assert.False(t, monitored)

	_, err = f.engine.Create(ctx, announcement.CreateQO{ThreadID: "t-1", Title: "T", Content: "C", End: "48", Repost: true})
	require.NoError(t, err)

	for i := 0; i < 2; i++ {
		monitored, err = f.engine.CountMessage(ctx, "b-1")
		require.NoError(t, err)
		assert.True(t, monitored)
	}
	monitored, err = f.engine.CountMessage(ctx, "general")
	require.NoError(t, err)
	assert.False(t, monitored)

	n, err := f.engine.PublishDueReposts(ctx)
	require.NoError(t, err)
	assert.Zero(t, n, "interval not elapsed")

	f.clock.Advance(31 * time.Minute)
	n, err = f.engine.PublishDueReposts(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, n)
	due, ok := eventstest.Last[events.AnnouncementRepostDue](f.rec)
	require.True(t, ok)
	assert.Equal(t, "b-1", due.Monitor.ChannelID)
	assert.Equal(t, "T", due.Monitor.Announcement.Title)

	require.NoError(t, f.engine.MarkReposted(ctx, due.Monitor.ID))
	f.clock.Advance(31 * time.Minute)
	n, err = f.engine.PublishDueReposts(ctx)
	require.NoError(t, err)
	assert.Zero(t, n, "counter was reset")

	for i := 0; i < 2; i++ {
		_, err = f.engine.CountMessage(ctx, "b-1")
		require.NoError(t, err)
	}
	n, err = f.engine.PublishDueReposts(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestExpiryWithAutoExecuteAdvancesProposal(t *testing.T) {
	f := newFixture(t)
	f.thread(t, "t-2")

	a, err := f.engine.Create(ctx, announcement.CreateQO{ThreadID: "t-2", Title: "Final call", Content: "C", End: "24", AutoExecute: true, Repost: true})
	require.NoError(t, err)
	_, err = f.engine.CountMessage(ctx, "b-2")
	require.NoError(t, err)

	n, err := f.engine.CloseExpired(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)

	f.clock.Advance(25 * time.Hour)
	n, err = f.engine.CloseExpired(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	expired, ok := eventstest.Last[events.AnnouncementExpired](f.rec)
	require.True(t, ok)
	assert.Equal(t, a.ID, expired.Announcement.ID)
	assert.False(t, expired.Announcement.Active)
	assert.Equal(t, 1, f.rec.Count(events.NameAnnouncementFinished))

	p, err := f.proposal.Get(ctx, "t-2")
	require.NoError(t, err)
	assert.Equal(t, gov.ProposalExecuting, p.Status)

	require.NoError(t, f.st.Do(ctx, func(uow *store.UnitOfWork) error {
		monitors, err := uow.Monitors().ListByAnnouncement(a.ID)
		require.NoError(t, err)
		assert.Empty(t, monitors)
		return nil
	}))
	monitored, err := f.engine.CountMessage(ctx, "b-2")
	require.NoError(t, err)
	assert.False(t, monitored)

	n, err = f.engine.CloseExpired(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Equal(t, 1, f.rec.Count(events.NameAnnouncementExpired))
}

func TestExpiryWithoutAutoExecuteLeavesProposal(t *testing.T) {
	f := newFixture(t)
	f.thread(t, "t-3")
	_, err := f.engine.Create(ctx, announcement.CreateQO{ThreadID: "t-3", Title: "Heads up", Content: "C", End: "4"})
	require.NoError(t, err)

	f.clock.Advance(5 * time.Hour)
	_, err = f.engine.CloseExpired(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, f.rec.Count(events.NameAnnouncementExpired))
	assert.Zero(t, f.rec.Count(events.NameAnnouncementFinished))

	p, err := f.proposal.Get(ctx, "t-3")
	require.NoError(t, err)
	assert.Equal(t, gov.ProposalDiscussion, p.Status)
}
