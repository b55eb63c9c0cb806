package objection_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stellaria-pact/governance/src/events"
	"github.com/stellaria-pact/governance/src/events/eventstest"
	"github.com/stellaria-pact/governance/src/objection"
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
	engine *objection.Engine
	voting *voting.Engine
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	st, clock := storetest.New(t)
	bus := events.NewBus()
	rec := eventstest.Record(bus,
		events.NameObjectionVoteInitiation, events.NameObjectionAdminReviewInitiation,
		events.NameObjectionReviewed, events.NameObjectionSupportChanged,
		events.NameObjectionGoalReached, events.NameObjectionThreadCreated,
		events.NameObjectionVoteFinished, events.NameObjectionCollectionExpired,
		events.NameProposalStatusChanged)
	oe := objection.New(st, bus, objection.Config{GuildID: "g-1", RequiredMessages: 3, CollectionHours: 48})
	ve := voting.New(st, bus, voting.Config{GuildID: "g-1", RequiredMessages: 3, ObjectionVoteHours: 48})
	ve.SetObjectionResolver(oe)
	return &fixture{st: st, clock: clock, bus: bus, rec: rec, engine: oe, voting: ve}
}

func (f *fixture) proposal(t *testing.T, threadID string) {
	t.Helper()
	require.NoError(t, f.st.Do(ctx, func(uow *store.UnitOfWork) error {
		_, err := uow.Proposals().Create(threadID, "author", "Proposal "+threadID)
		return err
	}))
}

func (f *fixture) active(t *testing.T, threadID string, users ...string) {
	t.Helper()
	require.NoError(t, f.st.Do(ctx, func(uow *store.UnitOfWork) error {
		for _, u := range users {
			for i := 0; i < 3; i++ {
				if err := uow.UserActivity().IncrementOrInsert(u, threadID, 1); err != nil {
					return err
				}
			}
		}
		return nil
	}))
}

func (f *fixture) proposalStatus(t *testing.T, threadID string) gov.ProposalStatus {
	t.Helper()
	var status gov.ProposalStatus
	require.NoError(t, f.st.Do(ctx, func(uow *store.UnitOfWork) error {
		p, err := uow.Proposals().GetByThreadID(threadID)
		if err != nil {
			return err
		}
		status = p.Status
		return nil
	}))
	return status
}

func (f *fixture) sessionOpen(t *testing.T, objectionID uint64, kind gov.VoteKind) bool {
	t.Helper()
	var open bool
	require.NoError(t, f.st.Do(ctx, func(uow *store.UnitOfWork) error {
		s, err := uow.VoteSessions().GetByObjection(objectionID, kind)
		if err != nil {
			return err
		}
		open = s.Status == gov.VoteSessionOpen
		return nil
	}))
	return open
}

func users(prefix string, n int) []string {
	out := make([]string, n)
	for i := range out {
		out[i] = fmt.Sprintf("%s%d", prefix, i+1)
	}
	return out
}

// raiseFirst raises the first objection on t-1 and binds its panel to "panel-1".
func (f *fixture) raiseFirst(t *testing.T) gov.ObjectionDTO {
	t.Helper()
	f.proposal(t, "t-1")
	f.active(t, "t-1", "objector")
	o, err := f.engine.Raise(ctx, objection.RaiseQO{UserID: "objector", ThreadID: "t-1", Reason: "Too expensive"})
	require.NoError(t, err)
	init, ok := eventstest.Last[events.ObjectionVoteInitiation](f.rec)
	require.True(t, ok)
	require.NoError(t, f.engine.BindSupportPanel(ctx, init.SessionID, "publicity", "panel-1"))
	return o
}

func (f *fixture) support(t *testing.T, user string, action gov.SupportAction) gov.SupportResultDTO {
	t.Helper()
	res, err := f.engine.Support(ctx, objection.SupportQO{MessageID: "panel-1", UserID: user, Action: action})
	require.NoError(t, err)
	return res
}

func TestRaiseValidation(t *testing.T) {
	f := newFixture(t)
	f.proposal(t, "t-1")
	f.active(t, "t-1", "eligible")

	_, err := f.engine.Raise(ctx, objection.RaiseQO{UserID: "eligible", ThreadID: "t-1", Reason: "   "})
	assert.Equal(t, errs.KindValidation, errs.KindOf(err))

	_, err = f.engine.Raise(ctx, objection.RaiseQO{UserID: "eligible", ThreadID: "t-none", Reason: "No"})
	assert.Equal(t, errs.KindNotFound, errs.KindOf(err))

	_, err = f.engine.Raise(ctx, objection.RaiseQO{UserID: "lurker", ThreadID: "t-1", Reason: "No"})
	assert.Equal(t, errs.KindPermission, errs.KindOf(err))

	require.NoError(t, f.st.Do(ctx, func(uow *store.UnitOfWork) error {
		return uow.Proposals().UpdateStatusByThreadID("t-1", gov.ProposalAbandoned)
	}))
	_, err = f.engine.Raise(ctx, objection.RaiseQO{UserID: "eligible", ThreadID: "t-1", Reason: "No"})
	assert.Equal(t, errs.KindState, errs.KindOf(err))
	assert.Empty(t, f.rec.Names())
}

func TestFirstObjectionCollectsThenSecondNeedsReview(t *testing.T) {
	f := newFixture(t)
	first := f.raiseFirst(t)
	assert.Equal(t, gov.ObjectionCollectingVotes, first.Status)
	assert.Equal(t, objection.FirstObjectionVotes, first.RequiredVotes)
	assert.Equal(t, "t-1", first.ProposalThreadID)

	init, _ := eventstest.Last[events.ObjectionVoteInitiation](f.rec)
	assert.Equal(t, first.ID, init.Objection.ID)
	assert.Equal(t, 5, init.Support.RequiredSupporters)

	second, err := f.engine.Raise(ctx, objection.RaiseQO{UserID: "objector", ThreadID: "t-1", Reason: "Still no"})
	require.NoError(t, err)
	assert.Equal(t, gov.ObjectionPendingReview, second.Status)
	assert.Equal(t, objection.LaterObjectionVotes, second.RequiredVotes)
	assert.Equal(t, 1, f.rec.Count(events.NameObjectionAdminReviewInitiation))
	assert.Equal(t, 1, f.rec.Count(events.NameObjectionVoteInitiation))

	list, err := f.engine.ListForProposal(ctx, "t-1")
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, first.ID, list[0].ID)
	assert.Equal(t, "Proposal t-1", list[1].ProposalTitle)
}

func TestReviewApproveOpensCollection(t *testing.T) {
	f := newFixture(t)
	f.raiseFirst(t)
	second, err := f.engine.Raise(ctx, objection.RaiseQO{UserID: "objector", ThreadID: "t-1", Reason: "Again"})
	require.NoError(t, err)
	require.NoError(t, f.engine.BindReviewThread(ctx, second.ID, "review-1"))

	got, err := f.engine.GetByReviewThread(ctx, "review-1")
	require.NoError(t, err)
	assert.Equal(t, second.ID, got.ID)

	o, err := f.engine.Review(ctx, objection.ReviewQO{ObjectionID: second.ID, ModeratorID: "mod", Approve: true})
	require.NoError(t, err)
	assert.Equal(t, gov.ObjectionCollectingVotes, o.Status)

	reviewed, ok := eventstest.Last[events.ObjectionReviewed](f.rec)
	require.True(t, ok)
	assert.True(t, reviewed.Approved)
	init, _ := eventstest.Last[events.ObjectionVoteInitiation](f.rec)
	assert.Equal(t, second.ID, init.Objection.ID)
	assert.Equal(t, 10, init.Support.RequiredSupporters)

	require.NoError(t, f.st.Do(ctx, func(uow *store.UnitOfWork) error {
		s, err := uow.VoteSessions().GetByObjection(second.ID, gov.VoteKindObjectionSupport)
		require.NoError(t, err)
		require.NotNil(t, s.EndTime)
		assert.Equal(t, f.clock.Now().Add(48*time.Hour), s.EndTime.UTC())
		return nil
	}))

	_, err = f.engine.Review(ctx, objection.ReviewQO{ObjectionID: second.ID, ModeratorID: "mod", Approve: false})
	assert.Equal(t, errs.KindState, errs.KindOf(err))
}

func TestReviewRejectClosesShell(t *testing.T) {
	f := newFixture(t)
	f.raiseFirst(t)
	second, err := f.engine.Raise(ctx, objection.RaiseQO{UserID: "objector", ThreadID: "t-1", Reason: "Again"})
	require.NoError(t, err)

	o, err := f.engine.Review(ctx, objection.ReviewQO{ObjectionID: second.ID, ModeratorID: "mod", Comment: "Duplicate"})
	require.NoError(t, err)
	assert.Equal(t, gov.ObjectionRejected, o.Status)
	assert.False(t, f.sessionOpen(t, second.ID, gov.VoteKindObjectionSupport))

	reviewed, _ := eventstest.Last[events.ObjectionReviewed](f.rec)
	assert.False(t, reviewed.Approved)
	assert.Equal(t, "Duplicate", reviewed.Comment)
	assert.Equal(t, 1, f.rec.Count(events.NameObjectionVoteInitiation))

	_, err = f.engine.Review(ctx, objection.ReviewQO{ObjectionID: 999, ModeratorID: "mod"})
	assert.Equal(t, errs.KindNotFound, errs.KindOf(err))
}

func TestFirstObjectionReachesGoal(t *testing.T) {
	f := newFixture(t)
	o := f.raiseFirst(t)
	supporters := users("u", 6)
	f.active(t, "t-1", supporters...)

	for i, u := range supporters[:4] {
		res := f.support(t, u, gov.SupportActionSupport)
		assert.Equal(t, gov.OutcomeSupported, res.Outcome)
		assert.Equal(t, i+1, res.CurrentSupporters)
		assert.False(t, res.GoalReachedNow)
	}
	assert.Zero(t, f.rec.Count(events.NameObjectionGoalReached))

	res := f.support(t, supporters[4], gov.SupportActionSupport)
	assert.True(t, res.IsGoalReached)
	assert.True(t, res.GoalReachedNow)
	assert.Equal(t, gov.ObjectionVoting, res.ObjectionStatus)

	res = f.support(t, supporters[5], gov.SupportActionSupport)
	assert.False(t, res.GoalReachedNow)
	res = f.support(t, supporters[5], gov.SupportActionSupport)
	assert.Equal(t, gov.OutcomeAlreadySupported, res.Outcome)
	assert.Equal(t, 1, f.rec.Count(events.NameObjectionGoalReached))
	assert.Equal(t, 6, f.rec.Count(events.NameObjectionSupportChanged))

	pending, err := f.engine.BeginFormalPhase(ctx, o.ID)
	require.NoError(t, err)
	require.NotNil(t, pending)

	bound, err := f.engine.BindObjectionThread(ctx, o.ID, "t-obj")
	require.NoError(t, err)
	assert.Equal(t, "t-obj", bound.ObjectionThreadID)
	assert.Equal(t, gov.ProposalFrozen, bound.ProposalStatus)
	assert.Equal(t, gov.ProposalFrozen, f.proposalStatus(t, "t-1"))
	assert.False(t, f.sessionOpen(t, o.ID, gov.VoteKindObjectionSupport))
	assert.Equal(t, 1, f.rec.Count(events.NameObjectionThreadCreated))
	changed, ok := eventstest.Last[events.ProposalStatusChanged](f.rec)
	require.True(t, ok)
	assert.Equal(t, gov.ProposalDiscussion, changed.From)

	pending, err = f.engine.BeginFormalPhase(ctx, o.ID)
	require.NoError(t, err)
	assert.Nil(t, pending)
	_, err = f.engine.BindObjectionThread(ctx, o.ID, "t-other")
	assert.Equal(t, errs.KindState, errs.KindOf(err))

	_, err = f.engine.Support(ctx, objection.SupportQO{MessageID: "panel-1", UserID: supporters[0], Action: gov.SupportActionWithdraw})
	assert.Equal(t, errs.KindState, errs.KindOf(err))
}

func TestWithdrawBelowGoalReverts(t *testing.T) {
	f := newFixture(t)
	o := f.raiseFirst(t)
	supporters := users("u", 5)
	f.active(t, "t-1", supporters...)
	for _, u := range supporters {
		f.support(t, u, gov.SupportActionSupport)
	}

	res := f.support(t, supporters[4], gov.SupportActionWithdraw)
	assert.Equal(t, gov.OutcomeWithdrew, res.Outcome)
	assert.True(t, res.Reverted)
	assert.Equal(t, gov.ObjectionCollectingVotes, res.ObjectionStatus)

	pending, err := f.engine.BeginFormalPhase(ctx, o.ID)
	require.NoError(t, err)
	assert.Nil(t, pending, "no thread once the goal is lost")
	assert.Equal(t, gov.ProposalDiscussion, f.proposalStatus(t, "t-1"))

	res = f.support(t, supporters[4], gov.SupportActionWithdraw)
	assert.Equal(t, gov.OutcomeNotSupported, res.Outcome)
	assert.False(t, res.Reverted)

	res = f.support(t, supporters[4], gov.SupportActionSupport)
	assert.True(t, res.GoalReachedNow)
	assert.Equal(t, 2, f.rec.Count(events.NameObjectionGoalReached))
}

func TestSupportRequiresEligibility(t *testing.T) {
	f := newFixture(t)
	f.raiseFirst(t)

	_, err := f.engine.Support(ctx, objection.SupportQO{MessageID: "panel-1", UserID: "lurker", Action: gov.SupportActionSupport})
	assert.Equal(t, errs.KindPermission, errs.KindOf(err))

	res, err := f.engine.Support(ctx, objection.SupportQO{MessageID: "panel-1", UserID: "lurker", Action: gov.SupportActionWithdraw})
	require.NoError(t, err)
	assert.Equal(t, gov.OutcomeNotSupported, res.Outcome)

	_, err = f.engine.Support(ctx, objection.SupportQO{MessageID: "nope", UserID: "lurker", Action: gov.SupportActionSupport})
	assert.Equal(t, errs.KindNotFound, errs.KindOf(err))
}

// formal drives an objection to an open formal ballot bound to "ballot-1".
func (f *fixture) formal(t *testing.T) gov.ObjectionDTO {
	t.Helper()
	o := f.raiseFirst(t)
	supporters := users("s", 5)
	f.active(t, "t-1", supporters...)
	for _, u := range supporters {
		f.support(t, u, gov.SupportActionSupport)
	}
	_, err := f.engine.BindObjectionThread(ctx, o.ID, "t-obj")
	require.NoError(t, err)
	d, err := f.voting.CreateFormalObjectionVote(ctx, o.ID)
	require.NoError(t, err)
	require.NoError(t, f.voting.BindPanel(ctx, d.SessionID, "t-obj", "ballot-1"))
	return o
}

func (f *fixture) ballot(t *testing.T, approve, reject int) {
	t.Helper()
	voters := users("v", approve+reject)
	f.active(t, "t-obj", voters...)
	for i, u := range voters {
		choice := gov.ChoiceApprove
		if i >= approve {
			choice = gov.ChoiceReject
		}
		_, err := f.voting.RecordVoteAndGetDetails(ctx, voting.VoteQO{MessageID: "ballot-1", UserID: u, ChoiceIndex: 1, Choice: choice})
		require.NoError(t, err)
	}
}

func TestFormalVoteFailsReturnsProposalToDiscussion(t *testing.T) {
	f := newFixture(t)
	o := f.formal(t)
	f.ballot(t, 4, 7)

	f.clock.Advance(49 * time.Hour)
	n, err := f.voting.CloseExpired(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	finished, ok := eventstest.Last[events.ObjectionVoteFinished](f.rec)
	require.True(t, ok)
	assert.False(t, finished.Passed)
	assert.Equal(t, 4, finished.Vote.TotalApprove)
	assert.Equal(t, 7, finished.Vote.TotalReject)
	assert.Equal(t, gov.ObjectionRejected, finished.Objection.Status)
	assert.Equal(t, gov.ProposalDiscussion, finished.Objection.ProposalStatus)
	assert.Equal(t, gov.ProposalDiscussion, f.proposalStatus(t, "t-1"))

	got, err := f.engine.Get(ctx, o.ID)
	require.NoError(t, err)
	assert.Equal(t, gov.ObjectionRejected, got.Status)
	assert.False(t, f.sessionOpen(t, o.ID, gov.VoteKindObjectionSupport))
	assert.False(t, f.sessionOpen(t, o.ID, gov.VoteKindObjectionFormal))
}

func TestFormalVotePassKeepsProposalFrozen(t *testing.T) {
	f := newFixture(t)
	o := f.formal(t)
	f.ballot(t, 6, 6)

	f.clock.Advance(49 * time.Hour)
	_, err := f.voting.CloseExpired(ctx)
	require.NoError(t, err)
	finished, _ := eventstest.Last[events.ObjectionVoteFinished](f.rec)
	assert.False(t, finished.Passed, "a tie does not pass")

	f2 := newFixture(t)
	o = f2.formal(t)
	f2.ballot(t, 3, 2)
	f2.clock.Advance(49 * time.Hour)
	_, err = f2.voting.CloseExpired(ctx)
	require.NoError(t, err)

	finished, _ = eventstest.Last[events.ObjectionVoteFinished](f2.rec)
	assert.True(t, finished.Passed)
	got, err := f2.engine.Get(ctx, o.ID)
	require.NoError(t, err)
	assert.Equal(t, gov.ObjectionPassed, got.Status)
	assert.Equal(t, gov.ProposalFrozen, f2.proposalStatus(t, "t-1"))
}

func TestCollectionExpiryRejects(t *testing.T) {
	f := newFixture(t)
	o := f.raiseFirst(t)
	f.active(t, "t-1", "u1")
	f.support(t, "u1", gov.SupportActionSupport)

	f.clock.Advance(49 * time.Hour)
	n, err := f.voting.CloseExpired(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	expired, ok := eventstest.Last[events.ObjectionCollectionExpired](f.rec)
	require.True(t, ok)
	assert.Equal(t, o.ID, expired.Objection.ID)
	assert.Equal(t, gov.ObjectionRejected, expired.Objection.Status)
	assert.Equal(t, 1, expired.Vote.TotalApprove)
	assert.Equal(t, gov.ProposalDiscussion, f.proposalStatus(t, "t-1"))
}

func TestExpiredVotingShellRetriesThread(t *testing.T) {
	f := newFixture(t)
	o := f.raiseFirst(t)
	supporters := users("u", 5)
	f.active(t, "t-1", supporters...)
	for _, u := range supporters {
		f.support(t, u, gov.SupportActionSupport)
	}
	f.rec.Reset()

	f.clock.Advance(49 * time.Hour)
	_, err := f.voting.CloseExpired(ctx)
	require.NoError(t, err)

	retry, ok := eventstest.Last[events.ObjectionGoalReached](f.rec)
	require.True(t, ok)
	assert.Equal(t, o.ID, retry.Support.ObjectionID)
	assert.Zero(t, f.rec.Count(events.NameObjectionCollectionExpired))

	_, err = f.engine.BindObjectionThread(ctx, o.ID, "t-obj")
	require.NoError(t, err)
}

func TestRequiredVotes(t *testing.T) {
	assert.Equal(t, 5, objection.RequiredVotes(0))
	assert.Equal(t, 10, objection.RequiredVotes(1))
	assert.Equal(t, 10, objection.RequiredVotes(7))
}

func (f *fixture) setProposalStatus(t *testing.T, threadID string, status gov.ProposalStatus) {
	t.Helper()
	require.NoError(t, f.st.Do(ctx, func(uow *store.UnitOfWork) error {
		p, err := uow.Proposals().GetByThreadID(threadID)
		if err != nil {
			return err
		}
		return uow.Proposals().UpdateStatus(p.ID, status)
	}))
}

func TestGoalAfterProposalClosedRejectsObjection(t *testing.T) {
	f := newFixture(t)
	o := f.raiseFirst(t)
	f.setProposalStatus(t, "t-1", gov.ProposalAbandoned)
	supporters := users("u", 5)
	f.active(t, "t-1", supporters...)
	for _, u := range supporters[:4] {
		f.support(t, u, gov.SupportActionSupport)
	}

	_, err := f.engine.Support(ctx, objection.SupportQO{MessageID: "panel-1", UserID: supporters[4], Action: gov.SupportActionSupport})
	assert.Equal(t, errs.KindState, errs.KindOf(err))
	assert.Zero(t, f.rec.Count(events.NameObjectionGoalReached))

	got, err := f.engine.Get(ctx, o.ID)
	require.NoError(t, err)
	assert.Equal(t, gov.ObjectionRejected, got.Status)
	assert.False(t, f.sessionOpen(t, o.ID, gov.VoteKindObjectionSupport))
	assert.Equal(t, gov.ProposalAbandoned, f.proposalStatus(t, "t-1"))

	pending, err := f.engine.BeginFormalPhase(ctx, o.ID)
	require.NoError(t, err)
	assert.Nil(t, pending)
}

func TestBindAfterProposalClosedDoesNotFreeze(t *testing.T) {
	f := newFixture(t)
	o := f.raiseFirst(t)
	supporters := users("u", 5)
	f.active(t, "t-1", supporters...)
	for _, u := range supporters {
		f.support(t, u, gov.SupportActionSupport)
	}
	f.setProposalStatus(t, "t-1", gov.ProposalFinished)

	_, err := f.engine.BindObjectionThread(ctx, o.ID, "t-obj")
	assert.Equal(t, errs.KindState, errs.KindOf(err))
	assert.Equal(t, gov.ProposalFinished, f.proposalStatus(t, "t-1"))
	assert.Zero(t, f.rec.Count(events.NameObjectionThreadCreated))
	assert.Zero(t, f.rec.Count(events.NameProposalStatusChanged))

	got, err := f.engine.Get(ctx, o.ID)
	require.NoError(t, err)
	assert.Equal(t, gov.ObjectionRejected, got.Status)
	assert.Empty(t, got.ObjectionThreadID)
	assert.False(t, f.sessionOpen(t, o.ID, gov.VoteKindObjectionSupport))

	_, err = f.voting.CreateFormalObjectionVote(ctx, o.ID)
	assert.Error(t, err)
}

func TestReviewApproveAfterProposalClosedRejects(t *testing.T) {
	f := newFixture(t)
	f.raiseFirst(t)
	second, err := f.engine.Raise(ctx, objection.RaiseQO{UserID: "objector", ThreadID: "t-1", Reason: "Again"})
	require.NoError(t, err)
	f.setProposalStatus(t, "t-1", gov.ProposalAbandoned)

	_, err = f.engine.Review(ctx, objection.ReviewQO{ObjectionID: second.ID, ModeratorID: "mod", Approve: true})
	assert.Equal(t, errs.KindState, errs.KindOf(err))

	got, err := f.engine.Get(ctx, second.ID)
	require.NoError(t, err)
	assert.Equal(t, gov.ObjectionRejected, got.Status)
	assert.False(t, f.sessionOpen(t, second.ID, gov.VoteKindObjectionSupport))
	assert.Equal(t, 1, f.rec.Count(events.NameObjectionVoteInitiation))
	reviewed, ok := eventstest.Last[events.ObjectionReviewed](f.rec)
	require.True(t, ok)
	assert.False(t, reviewed.Approved)
	assert.Equal(t, "The proposal is abandoned.", reviewed.Comment)
}
