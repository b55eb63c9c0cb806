package voting_test

import (
	"context"
	"testing"
	"time"

	"github.com/stellaria-pact/governance/src/events"
	"github.com/stellaria-pact/governance/src/events/eventstest"
	"github.com/stellaria-pact/governance/src/shared/errs"
	"github.com/stellaria-pact/governance/src/shared/gov"
	"github.com/stellaria-pact/governance/src/store"
	"github.com/stellaria-pact/governance/src/store/storetest"
	"github.com/stellaria-pact/governance/src/voting"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var ctx = context.Background()

type fixture struct {
	st     *store.Store
	clock  *storetest.Clock
	bus    *events.Bus
	rec    *eventstest.Recorder
	engine *voting.Engine
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	st, clock := storetest.New(t)
	bus := events.NewBus()
	rec := eventstest.Record(bus,
		events.NameVoteCreated, events.NameVoteUpdated, events.NameVoteFinished,
		events.NameVoteSettingsChanged, events.NameObjectionFormalVoteInitiation)
	e := voting.New(st, bus, voting.Config{GuildID: "g-1", RequiredMessages: 3, ObjectionVoteHours: 48})
	return &fixture{st: st, clock: clock, bus: bus, rec: rec, engine: e}
}

func (f *fixture) proposal(t *testing.T, threadID string, status gov.ProposalStatus) uint64 {
	t.Helper()
	var id uint64
	require.NoError(t, f.st.Do(ctx, func(uow *store.UnitOfWork) error {
		p, err := uow.Proposals().Create(threadID, "author", "Proposal "+threadID)
		if err != nil {
			return err
		}
		id = p.ID
		if status != gov.ProposalDiscussion {
			return uow.Proposals().UpdateStatus(p.ID, status)
		}
		return nil
	}))
	return id
}

func (f *fixture) messages(t *testing.T, userID, threadID string, n int) {
	t.Helper()
	require.NoError(t, f.st.Do(ctx, func(uow *store.UnitOfWork) error {
		for i := 0; i < n; i++ {
			if err := uow.UserActivity().IncrementOrInsert(userID, threadID, 1); err != nil {
				return err
			}
		}
		return nil
	}))
}

func (f *fixture) posted(t *testing.T, qo voting.CreateQO, messageID string) gov.VoteDetailDTO {
	t.Helper()
	d, err := f.engine.CreateVote(ctx, qo)
	require.NoError(t, err)
	require.NoError(t, f.engine.BindPanel(ctx, d.SessionID, qo.ThreadID, messageID))
	return d
}

func TestCreateVoteValidation(t *testing.T) {
	f := newFixture(t)
	f.proposal(t, "t-1", gov.ProposalDiscussion)
	f.proposal(t, "t-frozen", gov.ProposalFrozen)

	cases := []struct {
		name string
		qo   voting.CreateQO
		kind errs.Kind
	}{
		{"empty title", voting.CreateQO{ThreadID: "t-1", Title: "  ", Hours: 24}, errs.KindValidation},
		{"too short", voting.CreateQO{ThreadID: "t-1", Title: "x", Hours: 3}, errs.KindValidation},
		{"too long", voting.CreateQO{ThreadID: "t-1", Title: "x", Hours: 169}, errs.KindValidation},
		{"single option", voting.CreateQO{ThreadID: "t-1", Title: "x", Hours: 24, Options: []string{"a"}}, errs.KindValidation},
		{"too many options", voting.CreateQO{ThreadID: "t-1", Title: "x", Hours: 24, Options: []string{"a", "b", "c", "d", "e"}}, errs.KindValidation},
		{"duplicate options", voting.CreateQO{ThreadID: "t-1", Title: "x", Hours: 24, Options: []string{"Yes", "yes"}}, errs.KindValidation},
		{"no proposal", voting.CreateQO{ThreadID: "t-none", Title: "x", Hours: 24}, errs.KindNotFound},
		{"frozen proposal", voting.CreateQO{ThreadID: "t-frozen", Title: "x", Hours: 24}, errs.KindState},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := f.engine.CreateVote(ctx, tc.qo)
			require.Error(t, err)
			assert.Equal(t, tc.kind, errs.KindOf(err))
		})
	}
	assert.Zero(t, f.rec.Count(events.NameVoteCreated))
}

func TestCreateVoteShellThenPanel(t *testing.T) {
	f := newFixture(t)
	f.proposal(t, "t-1", gov.ProposalDiscussion)

	d, err := f.engine.CreateVote(ctx, voting.CreateQO{
		ThreadID: "t-1", CreatorID: "author", Title: "Budget", Hours: 24,
		Options: []string{"Option A", "", "Option B"}, Realtime: true,
	})
	require.NoError(t, err)
	assert.Equal(t, 2, d.TotalChoices)
	assert.Empty(t, d.ContextMessageID)
	require.NotNil(t, d.EndTime)
	assert.Equal(t, f.clock.Now().Add(24*time.Hour), d.EndTime.UTC())
	assert.Equal(t, 1, f.rec.Count(events.NameVoteCreated))

	_, err = f.engine.Details(ctx, "m-1")
	assert.Equal(t, errs.KindNotFound, errs.KindOf(err))

	require.NoError(t, f.engine.BindPanel(ctx, d.SessionID, "t-1", "m-1"))
	require.NoError(t, f.engine.BindMirror(ctx, d.SessionID, "mirror-1"))
	got, err := f.engine.Details(ctx, "m-1")
	require.NoError(t, err)
	assert.Equal(t, "m-1", got.ContextMessageID)
	assert.Equal(t, "mirror-1", got.VotingChannelMessageID)
	assert.Equal(t, "Option B", got.Options[1].Text)
}

func TestRecordVoteRequiresEligibility(t *testing.T) {
	f := newFixture(t)
	f.proposal(t, "t-1", gov.ProposalDiscussion)
	f.posted(t, voting.CreateQO{ThreadID: "t-1", CreatorID: "author", Title: "Budget", Hours: 24, Realtime: true}, "m-1")

	f.messages(t, "u-1", "t-1", 2)
	qo := voting.VoteQO{MessageID: "m-1", UserID: "u-1", ChoiceIndex: 1, Choice: gov.ChoiceApprove}
	_, err := f.engine.RecordVoteAndGetDetails(ctx, qo)
	require.Error(t, err)
	assert.Equal(t, errs.KindPermission, errs.KindOf(err))

	f.messages(t, "u-1", "t-1", 1)
	d, err := f.engine.RecordVoteAndGetDetails(ctx, qo)
	require.NoError(t, err)
	assert.Equal(t, 1, d.TotalApprove)

	again, err := f.engine.RecordVoteAndGetDetails(ctx, qo)
	require.NoError(t, err)
	assert.Equal(t, d.TotalVotes, again.TotalVotes)
	assert.Equal(t, 1, again.TotalVotes)
	assert.Equal(t, 2, f.rec.Count(events.NameVoteUpdated))

	qo.Choice = gov.ChoiceReject
	d, err = f.engine.RecordVoteAndGetDetails(ctx, qo)
	require.NoError(t, err)
	assert.Equal(t, 0, d.TotalApprove)
	assert.Equal(t, 1, d.TotalReject)
}

func TestMultiOptionVoteAndAbstain(t *testing.T) {
	f := newFixture(t)
	f.proposal(t, "t-1", gov.ProposalDiscussion)
	f.posted(t, voting.CreateQO{ThreadID: "t-1", CreatorID: "author", Title: "Pick", Hours: 24, Options: []string{"A", "B", "C"}}, "m-1")
	f.messages(t, "u-1", "t-1", 3)
	f.messages(t, "u-2", "t-1", 5)

	vote := func(user string, idx int, choice int8) gov.VoteDetailDTO {
		d, err := f.engine.RecordVoteAndGetDetails(ctx, voting.VoteQO{MessageID: "m-1", UserID: user, ChoiceIndex: idx, Choice: choice})
		require.NoError(t, err)
		return d
	}
	vote("u-1", 2, gov.ChoiceApprove)
	vote("u-1", 3, gov.ChoiceReject)
	d := vote("u-2", 2, gov.ChoiceApprove)
	assert.Equal(t, 2, d.Options[1].Approve)
	assert.Equal(t, 1, d.Options[2].Reject)
	assert.Equal(t, 3, d.TotalVotes)
	assert.Zero(t, f.rec.Count(events.NameVoteUpdated), "realtime is off")

	_, err := f.engine.RecordVoteAndGetDetails(ctx, voting.VoteQO{MessageID: "m-1", UserID: "u-1", ChoiceIndex: 4, Choice: gov.ChoiceApprove})
	assert.Equal(t, errs.KindValidation, errs.KindOf(err))

	d, err = f.engine.DeleteVoteAndGetDetails(ctx, voting.VoteQO{MessageID: "m-1", UserID: "u-1", ChoiceIndex: 2})
	require.NoError(t, err)
	assert.Equal(t, 1, d.Options[1].Approve)

	d, err = f.engine.DeleteVoteAndGetDetails(ctx, voting.VoteQO{MessageID: "m-1", UserID: "u-1", ChoiceIndex: 1})
	require.NoError(t, err, "abstaining without a vote is fine")
	assert.Equal(t, 2, d.TotalVotes)

	sum := 0
	for _, o := range d.Options {
		sum += o.Approve + o.Reject
	}
	assert.Equal(t, d.TotalVotes, sum)
	assert.Len(t, d.Voters, d.TotalVotes)
}

func TestObjectionBallotInheritsProposalActivity(t *testing.T) {
	f := newFixture(t)
	pid := f.proposal(t, "t-prop", gov.ProposalFrozen)

	var objectionID uint64
	require.NoError(t, f.st.Do(ctx, func(uow *store.UnitOfWork) error {
		oid, _, err := uow.Objections().CreateObjectionAndVoteSessionShell(store.CreateObjectionQO{
			ProposalID: pid, ObjectorID: "obj", Reason: "No", RequiredVotes: 5,
			Status: gov.ObjectionVoting, GuildID: "g-1", ContextThreadID: "t-prop",
		})
		if err != nil {
			return err
		}
		objectionID = oid
		return uow.Objections().UpdateThreadID(oid, "t-obj")
	}))

	d, err := f.engine.CreateFormalObjectionVote(ctx, objectionID)
	require.NoError(t, err)
	assert.Equal(t, gov.VoteKindObjectionFormal, d.Kind)
	assert.Equal(t, "t-obj", d.ContextThreadID)
	assert.True(t, d.Realtime)
	assert.Equal(t, 1, f.rec.Count(events.NameObjectionFormalVoteInitiation))

	again, err := f.engine.CreateFormalObjectionVote(ctx, objectionID)
	require.NoError(t, err)
	assert.Equal(t, d.SessionID, again.SessionID)
	assert.Equal(t, 1, f.rec.Count(events.NameObjectionFormalVoteInitiation))
	require.NoError(t, f.engine.BindPanel(ctx, d.SessionID, "t-obj", "m-obj"))

	f.messages(t, "u", "t-prop", 2)
	tracked, err := f.engine.TrackActivity(ctx, "t-obj", "u", 1)
	require.NoError(t, err)
	assert.True(t, tracked)

	ok, err := f.engine.IsEligible(ctx, "m-obj", "u")
	require.NoError(t, err)
	assert.True(t, ok)
	_, err = f.engine.RecordVoteAndGetDetails(ctx, voting.VoteQO{MessageID: "m-obj", UserID: "u", ChoiceIndex: 1, Choice: gov.ChoiceApprove})
	require.NoError(t, err)

	_, err = f.engine.TrackActivity(ctx, "t-obj", "fresh", 1)
	require.NoError(t, err)
	_, err = f.engine.RecordVoteAndGetDetails(ctx, voting.VoteQO{MessageID: "m-obj", UserID: "fresh", ChoiceIndex: 1, Choice: gov.ChoiceApprove})
	assert.Equal(t, errs.KindPermission, errs.KindOf(err))
}

func TestTrackActivityIgnoresUngovernedThreads(t *testing.T) {
	f := newFixture(t)
	tracked, err := f.engine.TrackActivity(ctx, "random", "u", 1)
	require.NoError(t, err)
	assert.False(t, tracked)

	_, err = f.engine.TrackActivity(ctx, "random", "u", 2)
	assert.Equal(t, errs.KindValidation, errs.KindOf(err))
}

func TestSettingsRequireOwnership(t *testing.T) {
	f := newFixture(t)
	f.proposal(t, "t-1", gov.ProposalDiscussion)
	d := f.posted(t, voting.CreateQO{ThreadID: "t-1", CreatorID: "author", Title: "Budget", Hours: 24}, "m-1")

	_, _, err := f.engine.Toggle(ctx, "m-1", store.FlagAnonymous, voting.Actor{UserID: "stranger"})
	assert.Equal(t, errs.KindPermission, errs.KindOf(err))

	v, detail, err := f.engine.Toggle(ctx, "m-1", store.FlagAnonymous, voting.Actor{UserID: "author"})
	require.NoError(t, err)
	assert.True(t, v)
	assert.True(t, detail.Anonymous)
	assert.Nil(t, detail.Voters)

	v, _, err = f.engine.Toggle(ctx, "m-1", store.FlagNotify, voting.Actor{UserID: "steward", Privileged: true})
	require.NoError(t, err)
	assert.True(t, v)

	_, _, err = f.engine.Toggle(ctx, "m-1", "colour", voting.Actor{UserID: "author"})
	assert.Equal(t, errs.KindValidation, errs.KindOf(err))

	_, _, err = f.engine.AdjustEndTime(ctx, "m-1", 0, voting.Actor{UserID: "author"})
	assert.Equal(t, errs.KindValidation, errs.KindOf(err))

	change, _, err := f.engine.AdjustEndTime(ctx, "m-1", 6, voting.Actor{UserID: "author"})
	require.NoError(t, err)
	require.NotNil(t, change.Old)
	assert.Equal(t, d.EndTime.UTC(), change.Old.UTC())
	assert.Equal(t, d.EndTime.Add(6*time.Hour).UTC(), change.New.UTC())

	assert.Equal(t, 3, f.rec.Count(events.NameVoteSettingsChanged))
	last, ok := eventstest.Last[events.VoteSettingsChanged](f.rec)
	require.True(t, ok)
	assert.Equal(t, "end_time", last.Setting)
}

func TestCloseExpiredAndReopenKeepsVotes(t *testing.T) {
	f := newFixture(t)
	f.proposal(t, "t-1", gov.ProposalDiscussion)
	f.posted(t, voting.CreateQO{ThreadID: "t-1", CreatorID: "author", Title: "Budget", Hours: 24}, "m-1")
	f.messages(t, "u-1", "t-1", 3)
	_, err := f.engine.RecordVoteAndGetDetails(ctx, voting.VoteQO{MessageID: "m-1", UserID: "u-1", ChoiceIndex: 1, Choice: gov.ChoiceApprove})
	require.NoError(t, err)

	n, err := f.engine.CloseExpired(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)

	f.clock.Advance(25 * time.Hour)
	n, err = f.engine.CloseExpired(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	finished, ok := eventstest.Last[events.VoteFinished](f.rec)
	require.True(t, ok)
	assert.False(t, finished.Vote.IsOpen)
	assert.True(t, finished.Vote.IsPassed())

	_, err = f.engine.RecordVoteAndGetDetails(ctx, voting.VoteQO{MessageID: "m-1", UserID: "u-1", ChoiceIndex: 1, Choice: gov.ChoiceReject})
	assert.Equal(t, errs.KindState, errs.KindOf(err))
	_, _, err = f.engine.AdjustEndTime(ctx, "m-1", 2, voting.Actor{UserID: "author"})
	assert.Equal(t, errs.KindState, errs.KindOf(err))

	_, err = f.engine.Reopen(ctx, "m-1", 2, voting.Actor{UserID: "author"})
	assert.Equal(t, errs.KindValidation, errs.KindOf(err))

	d, err := f.engine.Reopen(ctx, "m-1", 12, voting.Actor{UserID: "author"})
	require.NoError(t, err)
	assert.True(t, d.IsOpen)
	assert.Equal(t, 1, d.TotalApprove)
	assert.Equal(t, f.clock.Now().Add(12*time.Hour), d.EndTime.UTC())

	_, err = f.engine.Reopen(ctx, "m-1", 12, voting.Actor{UserID: "author"})
	assert.Equal(t, errs.KindState, errs.KindOf(err))
}

type resolverStub struct {
	collection []uint64
	formal     []uint64
}

func (r *resolverStub) CollectionExpired(_ *store.UnitOfWork, id uint64, v gov.VoteDetailDTO) (events.Event, error) {
	r.collection = append(r.collection, id)
	return events.ObjectionCollectionExpired{Vote: v}, nil
}

func (r *resolverStub) FormalVoteClosed(_ *store.UnitOfWork, id uint64, v gov.VoteDetailDTO) (events.Event, error) {
	r.formal = append(r.formal, id)
	return nil, nil
}

func TestCloseExpiredRoutesSupportShells(t *testing.T) {
	f := newFixture(t)
	stub := &resolverStub{}
	f.engine.SetObjectionResolver(stub)
	pid := f.proposal(t, "t-1", gov.ProposalDiscussion)

	end := f.clock.Now().Add(48 * time.Hour)
	var oid uint64
	require.NoError(t, f.st.Do(ctx, func(uow *store.UnitOfWork) error {
		var err error
		oid, _, err = uow.Objections().CreateObjectionAndVoteSessionShell(store.CreateObjectionQO{
			ProposalID: pid, ObjectorID: "obj", Reason: "No", RequiredVotes: 5,
			Status: gov.ObjectionCollectingVotes, GuildID: "g-1", ContextThreadID: "t-1", EndTime: &end,
		})
		return err
	}))
	expired := eventstest.Record(f.bus, events.NameObjectionCollectionExpired)

	f.clock.Advance(49 * time.Hour)
	n, err := f.engine.CloseExpired(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, []uint64{oid}, stub.collection)
	assert.Empty(t, stub.formal)
	assert.Equal(t, 1, expired.Count(events.NameObjectionCollectionExpired))
	assert.Zero(t, f.rec.Count(events.NameVoteFinished))
}

func TestKickVoterRemovesVotes(t *testing.T) {
	f := newFixture(t)
	f.proposal(t, "t-1", gov.ProposalDiscussion)
	f.posted(t, voting.CreateQO{ThreadID: "t-1", CreatorID: "author", Title: "Budget", Hours: 24, Realtime: true}, "m-1")
	f.messages(t, "u-1", "t-1", 4)
	_, err := f.engine.RecordVoteAndGetDetails(ctx, voting.VoteQO{MessageID: "m-1", UserID: "u-1", ChoiceIndex: 1, Choice: gov.ChoiceApprove})
	require.NoError(t, err)

	res, err := f.engine.KickVoter(ctx, "t-1", "u-1", nil)
	require.NoError(t, err)
	assert.EqualValues(t, 1, res.RemovedVotes)
	require.Len(t, res.Sessions, 1)
	assert.Zero(t, res.Sessions[0].TotalVotes)

	_, err = f.engine.RecordVoteAndGetDetails(ctx, voting.VoteQO{MessageID: "m-1", UserID: "u-1", ChoiceIndex: 1, Choice: gov.ChoiceApprove})
	assert.Equal(t, errs.KindPermission, errs.KindOf(err))

	require.NoError(t, f.engine.RestoreVoter(ctx, "t-1", "u-1"))
	_, err = f.engine.RecordVoteAndGetDetails(ctx, voting.VoteQO{MessageID: "m-1", UserID: "u-1", ChoiceIndex: 1, Choice: gov.ChoiceApprove})
	require.NoError(t, err)

	err = f.engine.RestoreVoter(ctx, "t-1", "u-1")
	assert.Equal(t, errs.KindState, errs.KindOf(err))
}

func TestDeleteOrphanShells(t *testing.T) {
	f := newFixture(t)
	f.proposal(t, "t-1", gov.ProposalDiscussion)
	_, err := f.engine.CreateVote(ctx, voting.CreateQO{ThreadID: "t-1", Title: "Lost", Hours: 24})
	require.NoError(t, err)
	f.posted(t, voting.CreateQO{ThreadID: "t-1", Title: "Kept", Hours: 24}, "m-1")

	f.clock.Advance(2 * time.Hour)
	n, err := f.engine.DeleteOrphanShells(ctx, time.Hour)
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)

	_, err = f.engine.Details(ctx, "m-1")
	require.NoError(t, err)
}

func TestFormalBallotSettingsAreStewardOnly(t *testing.T) {
	f := newFixture(t)
	pid := f.proposal(t, "t-prop", gov.ProposalFrozen)
	var objectionID uint64
	require.NoError(t, f.st.Do(ctx, func(uow *store.UnitOfWork) error {
		oid, _, err := uow.Objections().CreateObjectionAndVoteSessionShell(store.CreateObjectionQO{
			ProposalID: pid, ObjectorID: "objector", Reason: "No", RequiredVotes: 5,
			Status: gov.ObjectionVoting, GuildID: "g-1", ContextThreadID: "t-prop",
		})
		if err != nil {
			return err
		}
		objectionID = oid
		return uow.Objections().UpdateThreadID(oid, "t-obj")
	}))
	d, err := f.engine.CreateFormalObjectionVote(ctx, objectionID)
	require.NoError(t, err)
	require.NoError(t, f.engine.BindPanel(ctx, d.SessionID, "t-obj", "m-obj"))

	objector := voting.Actor{UserID: "objector"}
	_, _, err = f.engine.AdjustEndTime(ctx, "m-obj", 168, objector)
	assert.Equal(t, errs.KindPermission, errs.KindOf(err))
	_, _, err = f.engine.Toggle(ctx, "m-obj", store.FlagAnonymous, objector)
	assert.Equal(t, errs.KindPermission, errs.KindOf(err))

	after, err := f.engine.Details(ctx, "m-obj")
	require.NoError(t, err)
	require.NotNil(t, d.EndTime)
	require.NotNil(t, after.EndTime)
	assert.True(t, d.EndTime.Equal(*after.EndTime))
	assert.False(t, after.Anonymous)

	change, _, err := f.engine.AdjustEndTime(ctx, "m-obj", 6, voting.Actor{UserID: "steward", Privileged: true})
	require.NoError(t, err)
	require.NotNil(t, change.Old)
	assert.Equal(t, 6*time.Hour, change.New.Sub(*change.Old))
}

func TestKickVoterKeepsClosedTallies(t *testing.T) {
	f := newFixture(t)
	f.proposal(t, "t-1", gov.ProposalDiscussion)
	f.posted(t, voting.CreateQO{ThreadID: "t-1", CreatorID: "author", Title: "Settled", Hours: 24}, "m-old")
	f.posted(t, voting.CreateQO{ThreadID: "t-1", CreatorID: "author", Title: "Running", Hours: 72}, "m-new")
	f.messages(t, "u-1", "t-1", 4)
	for _, m := range []string{"m-old", "m-new"} {
		_, err := f.engine.RecordVoteAndGetDetails(ctx, voting.VoteQO{MessageID: m, UserID: "u-1", ChoiceIndex: 1, Choice: gov.ChoiceApprove})
		require.NoError(t, err)
	}
	f.clock.Advance(25 * time.Hour)
	n, err := f.engine.CloseExpired(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, n)

	res, err := f.engine.KickVoter(ctx, "t-1", "u-1", nil)
	require.NoError(t, err)
	assert.EqualValues(t, 1, res.RemovedVotes)
	require.Len(t, res.Sessions, 1)
	assert.Equal(t, "Running", res.Sessions[0].Title)

	closed, err := f.engine.Details(ctx, "m-old")
	require.NoError(t, err)
	assert.False(t, closed.IsOpen)
	assert.Equal(t, 1, closed.TotalApprove)
	running, err := f.engine.Details(ctx, "m-new")
	require.NoError(t, err)
	assert.Zero(t, running.TotalVotes)
}
