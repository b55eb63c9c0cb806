package proposal_test

import (
	"context"
	"testing"

	"github.com/stellaria-pact/governance/src/config"
	"github.com/stellaria-pact/governance/src/events"
	"github.com/stellaria-pact/governance/src/events/eventstest"
	"github.com/stellaria-pact/governance/src/proposal"
	"github.com/stellaria-pact/governance/src/shared/errs"
	"github.com/stellaria-pact/governance/src/shared/gov"
	"github.com/stellaria-pact/governance/src/store"
	"github.com/stellaria-pact/governance/src/store/storetest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"
)

var ctx = context.Background()

const forum = "forum-1"

func newEngine(t *testing.T) (*proposal.Engine, *store.Store, *eventstest.Recorder) {
	t.Helper()
	st, _ := storetest.New(t)
	bus := events.NewBus()
	rec := eventstest.Record(bus, events.NameProposalThreadCreated, events.NameProposalStatusChanged, events.NameConfirmationUpdated)
	return proposal.New(st, bus, proposal.Config{DiscussionForumID: forum}), st, rec
}

func create(t *testing.T, e *proposal.Engine, threadID string) gov.ProposalDTO {
	t.Helper()
	p, err := e.CreateFromThread(ctx, proposal.ThreadQO{ThreadID: threadID, ParentID: forum, OwnerID: "author", Title: "<b>Fund</b> the bridge"})
	require.NoError(t, err)
	require.NotNil(t, p)
	return *p
}

func TestCreateFromThreadFiltersForum(t *testing.T) {
	e, _, rec := newEngine(t)

	p, err := e.CreateFromThread(ctx, proposal.ThreadQO{ThreadID: "t-x", ParentID: "elsewhere", OwnerID: "a", Title: "Nope"})
	require.NoError(t, err)
	assert.Nil(t, p)

	got := create(t, e, "t-1")
	assert.Equal(t, "Fund the bridge", got.Title)
	assert.Equal(t, gov.ProposalDiscussion, got.Status)

	again, err := e.CreateFromThread(ctx, proposal.ThreadQO{ThreadID: "t-1", ParentID: forum, OwnerID: "author", Title: "Again"})
	require.NoError(t, err)
	assert.Nil(t, again)
	assert.Equal(t, 1, rec.Count(events.NameProposalThreadCreated))
}

func TestServiceThreadsAreNotProposals(t *testing.T) {
	e, _, _ := newEngine(t)
	e.SetServiceUser("bot")

	p, err := e.CreateFromThread(ctx, proposal.ThreadQO{ThreadID: "t-obj", ParentID: forum, OwnerID: "bot", Title: "Objection: x"})
	require.NoError(t, err)
	assert.Nil(t, p)

	n, err := e.Reconcile(ctx, []proposal.ThreadQO{{ThreadID: "t-obj", ParentID: forum, OwnerID: "bot", Title: "Objection: x"}}, nil)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestReconcileRegistersMissedThreads(t *testing.T) {
	e, _, rec := newEngine(t)
	create(t, e, "t-1")

	n, err := e.Reconcile(ctx, []proposal.ThreadQO{
		{ThreadID: "t-1", ParentID: forum, Title: "Known"},
		{ThreadID: "t-2", ParentID: forum, Title: "Missed"},
		{ThreadID: "t-3", ParentID: "other", Title: "Ignored"},
	}, rate.NewLimiter(rate.Inf, 1))
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, 2, rec.Count(events.NameProposalThreadCreated))

	_, err = e.Get(ctx, "t-2")
	require.NoError(t, err)
	_, err = e.Get(ctx, "t-3")
	assert.Equal(t, errs.KindNotFound, errs.KindOf(err))
}

func TestExecutionNeedsTwoDistinctRoles(t *testing.T) {
	e, _, rec := newEngine(t)
	p := create(t, e, "t-1")

	_, err := e.RequestExecution(ctx, proposal.ExecutionQO{ThreadID: "t-1", UserID: "nobody"})
	assert.Equal(t, errs.KindPermission, errs.KindOf(err))

	conf, err := e.RequestExecution(ctx, proposal.ExecutionQO{
		ThreadID: "t-1", ChannelID: "t-1", UserID: "mod",
		RoleKeys: []string{config.RoleCouncilModerator, config.RoleExecutionAuditor},
	})
	require.NoError(t, err)
	assert.Equal(t, gov.ConfirmationPending, conf.Status)
	assert.Equal(t, "mod", conf.ConfirmedParties[config.RoleCouncilModerator])
	require.NoError(t, e.BindConfirmationPanel(ctx, conf.ID, "panel-1"))

	_, err = e.Confirm(ctx, proposal.PanelQO{MessageID: "panel-1", UserID: "mod", RoleKeys: []string{config.RoleExecutionAuditor}})
	assert.Equal(t, errs.KindState, errs.KindOf(err))

	_, err = e.Confirm(ctx, proposal.PanelQO{MessageID: "panel-1", UserID: "mod2", RoleKeys: []string{config.RoleCouncilModerator}})
	assert.Equal(t, errs.KindPermission, errs.KindOf(err))

	done, err := e.Confirm(ctx, proposal.PanelQO{MessageID: "panel-1", UserID: "auditor", RoleKeys: []string{config.RoleExecutionAuditor}})
	require.NoError(t, err)
	assert.Equal(t, gov.ConfirmationCompleted, done.Status)
	assert.ElementsMatch(t, done.RequiredRoles, keys(done.ConfirmedParties))

	got, err := e.Get(ctx, "t-1")
	require.NoError(t, err)
	assert.Equal(t, gov.ProposalExecuting, got.Status)
	changed, ok := eventstest.Last[events.ProposalStatusChanged](rec)
	require.True(t, ok)
	assert.Equal(t, p.ID, changed.Proposal.ID)
	assert.Equal(t, gov.ProposalDiscussion, changed.From)
	assert.Equal(t, 3, rec.Count(events.NameConfirmationUpdated)+rec.Count(events.NameProposalStatusChanged))

	_, err = e.RequestExecution(ctx, proposal.ExecutionQO{ThreadID: "t-1", UserID: "mod", RoleKeys: []string{config.RoleCouncilModerator}})
	assert.Equal(t, errs.KindState, errs.KindOf(err))
}

func keys(m map[string]string) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	return out
}

func TestExecutionRaceYieldsOneTicket(t *testing.T) {
	e, st, _ := newEngine(t)
	p := create(t, e, "t-1")

	qo := proposal.ExecutionQO{ThreadID: "t-1", UserID: "mod-a", RoleKeys: []string{config.RoleCouncilModerator}}
	_, err := e.RequestExecution(ctx, qo)
	require.NoError(t, err)

	qo.UserID = "mod-b"
	_, err = e.RequestExecution(ctx, qo)
	require.Error(t, err)
	assert.Equal(t, errs.KindConcurrency, errs.KindOf(err))
	assert.Contains(t, errs.UserMessage(err), "already in progress")

	var n int64
	require.NoError(t, st.DB().Model(&gov.ConfirmationSession{}).
		Where("context = ? AND target_id = ?", proposal.ContextExecution, p.ID).Count(&n).Error)
	assert.EqualValues(t, 1, n)
}

func TestCancelThenRequestAgain(t *testing.T) {
	e, _, _ := newEngine(t)
	create(t, e, "t-1")

	conf, err := e.RequestExecution(ctx, proposal.ExecutionQO{ThreadID: "t-1", UserID: "mod", RoleKeys: []string{config.RoleCouncilModerator}})
	require.NoError(t, err)
	require.NoError(t, e.BindConfirmationPanel(ctx, conf.ID, "panel-1"))

	_, err = e.CancelConfirmation(ctx, proposal.PanelQO{MessageID: "panel-1", UserID: "random"})
	assert.Equal(t, errs.KindPermission, errs.KindOf(err))

	canceled, err := e.CancelConfirmation(ctx, proposal.PanelQO{MessageID: "panel-1", UserID: "auditor", RoleKeys: []string{config.RoleExecutionAuditor}})
	require.NoError(t, err)
	assert.Equal(t, gov.ConfirmationCanceled, canceled.Status)
	assert.Equal(t, "auditor", canceled.CancelerID)

	_, err = e.Confirm(ctx, proposal.PanelQO{MessageID: "panel-1", UserID: "auditor", RoleKeys: []string{config.RoleExecutionAuditor}})
	assert.Equal(t, errs.KindState, errs.KindOf(err))

	_, err = e.RequestExecution(ctx, proposal.ExecutionQO{ThreadID: "t-1", UserID: "mod", RoleKeys: []string{config.RoleCouncilModerator}})
	require.NoError(t, err)
}

func TestAbandonAndFinishRequireExecuting(t *testing.T) {
	e, _, rec := newEngine(t)
	create(t, e, "t-1")
	create(t, e, "t-2")

	_, err := e.Abandon(ctx, "t-1", proposal.Actor{UserID: "author"})
	assert.Equal(t, errs.KindState, errs.KindOf(err))

	moved, err := e.OnAnnouncementFinished(ctx, "t-1")
	require.NoError(t, err)
	assert.True(t, moved)
	moved, err = e.OnAnnouncementFinished(ctx, "t-1")
	require.NoError(t, err)
	assert.False(t, moved)
	moved, err = e.OnAnnouncementFinished(ctx, "t-unknown")
	require.NoError(t, err)
	assert.False(t, moved)

	_, err = e.Abandon(ctx, "t-1", proposal.Actor{UserID: "someone"})
	assert.Equal(t, errs.KindPermission, errs.KindOf(err))

	p, err := e.Abandon(ctx, "t-1", proposal.Actor{UserID: "author"})
	require.NoError(t, err)
	assert.Equal(t, gov.ProposalAbandoned, p.Status)

	_, err = e.OnAnnouncementFinished(ctx, "t-2")
	require.NoError(t, err)
	p, err = e.Finish(ctx, "t-2", proposal.Actor{UserID: "steward", Steward: true})
	require.NoError(t, err)
	assert.Equal(t, gov.ProposalFinished, p.Status)

	last, _ := eventstest.Last[events.ProposalStatusChanged](rec)
	assert.Equal(t, gov.ProposalExecuting, last.From)
	assert.Equal(t, "steward", last.ActorID)
}

func TestAbandonWaitsForOpenObjections(t *testing.T) {
	e, st, _ := newEngine(t)
	p := create(t, e, "t-1")
	_, err := e.OnAnnouncementFinished(ctx, "t-1")
	require.NoError(t, err)

	var objectionID uint64
	require.NoError(t, st.Do(ctx, func(uow *store.UnitOfWork) error {
		objectionID, _, err = uow.Objections().CreateObjectionAndVoteSessionShell(store.CreateObjectionQO{
			ProposalID: p.ID, ObjectorID: "objector", Reason: "Too expensive", RequiredVotes: 5,
			Status: gov.ObjectionCollectingVotes, GuildID: "g-1", ContextThreadID: "t-1",
		})
		return err
	}))

	_, err = e.Abandon(ctx, "t-1", proposal.Actor{UserID: "author"})
	assert.Equal(t, errs.KindState, errs.KindOf(err))
	_, err = e.Finish(ctx, "t-1", proposal.Actor{UserID: "steward", Steward: true})
	assert.Equal(t, errs.KindState, errs.KindOf(err))
	got, err := e.Get(ctx, "t-1")
	require.NoError(t, err)
	assert.Equal(t, gov.ProposalExecuting, got.Status)

	require.NoError(t, st.Do(ctx, func(uow *store.UnitOfWork) error {
		return uow.Objections().UpdateStatus(objectionID, gov.ObjectionRejected)
	}))
	abandoned, err := e.Abandon(ctx, "t-1", proposal.Actor{UserID: "author"})
	require.NoError(t, err)
	assert.Equal(t, gov.ProposalAbandoned, abandoned.Status)
}

func TestConfirmCancelsTicketWhenProposalMovedOn(t *testing.T) {
	e, st, rec := newEngine(t)
	p := create(t, e, "t-1")

	conf, err := e.RequestExecution(ctx, proposal.ExecutionQO{ThreadID: "t-1", ChannelID: "t-1", UserID: "mod", RoleKeys: []string{config.RoleCouncilModerator}})
	require.NoError(t, err)
	require.NoError(t, e.BindConfirmationPanel(ctx, conf.ID, "panel-1"))

	setStatus := func(status gov.ProposalStatus) {
		require.NoError(t, st.Do(ctx, func(uow *store.UnitOfWork) error {
			return uow.Proposals().UpdateStatus(p.ID, status)
		}))
	}
	setStatus(gov.ProposalFrozen)

	_, err = e.Confirm(ctx, proposal.PanelQO{MessageID: "panel-1", UserID: "auditor", RoleKeys: []string{config.RoleExecutionAuditor}})
	assert.Equal(t, errs.KindState, errs.KindOf(err))

	var stored gov.ConfirmationSession
	require.NoError(t, st.DB().First(&stored, conf.ID).Error)
	assert.Equal(t, gov.ConfirmationCanceled, stored.Status)
	assert.Nil(t, stored.PendingKey)
	updated, ok := eventstest.Last[events.ConfirmationUpdated](rec)
	require.True(t, ok)
	assert.Equal(t, gov.ConfirmationCanceled, updated.Confirmation.Status)

	setStatus(gov.ProposalDiscussion)
	again, err := e.RequestExecution(ctx, proposal.ExecutionQO{ThreadID: "t-1", ChannelID: "t-1", UserID: "mod", RoleKeys: []string{config.RoleCouncilModerator}})
	require.NoError(t, err)
	assert.NotEqual(t, conf.ID, again.ID)
	assert.Equal(t, gov.ConfirmationPending, again.Status)
}
