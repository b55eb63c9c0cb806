package views

import (
	"strings"
	"testing"
	"time"

	"github.com/stellaria-pact/governance/src/gateway"
	"github.com/stellaria-pact/governance/src/shared/gov"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCustomIDRoundTrip(t *testing.T) {
	id, err := ParseCustomID(ReviewButtonID(ActionApprove, 42))
	require.NoError(t, err)
	assert.Equal(t, KindReview, id.Kind)
	assert.Equal(t, ActionApprove, id.Action)
	assert.EqualValues(t, 42, id.Target)

	id, err = ParseCustomID(AnnounceModalID(true, false, 25, 90))
	require.NoError(t, err)
	assert.True(t, id.Flag(0))
	assert.False(t, id.Flag(1))
	assert.Equal(t, 25, id.IntArg(2))
	assert.Equal(t, 90, id.IntArg(3))
	assert.Zero(t, id.IntArg(7))

	id, err = ParseCustomID(VoteButtonID(ActionAbstain, 3))
	require.NoError(t, err)
	assert.Equal(t, 3, id.Index)
}

func TestParseCustomIDRejects(t *testing.T) {
	_, err := ParseCustomID("feedback_button")
	assert.ErrorIs(t, err, ErrForeignID)

	for _, raw := range []string{
		"pact:vote:approve:x:0",
		"pact:vote:approve:1:-3",
		"pact:poll:approve:1:0",
		"pact:vote:approve:1:0:" + strings.Repeat("a", 100),
	} {
		_, err := ParseCustomID(raw)
		assert.Error(t, err, raw)
	}
}

func TestRetitle(t *testing.T) {
	assert.Equal(t, "[Frozen] Fund the bridge", Retitle(PrefixFrozen, "Fund the bridge"))
	assert.Equal(t, "[Rejected] Fund the bridge", Retitle(PrefixRejected, "[Frozen] Fund the bridge"))
	assert.Equal(t, "[Frozen] x", Retitle(PrefixFrozen, "[Rejected][Frozen]  x"))
	assert.LessOrEqual(t, len([]rune(Retitle(PrefixFrozen, strings.Repeat("a", 200)))), maxThreadName)
}

func detail() gov.VoteDetailDTO {
	end := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	return gov.VoteDetailDTO{
		SessionID:       7,
		Title:           "Budget",
		ContextThreadID: "t-1",
		IsOpen:          true,
		Realtime:        true,
		EndTime:         &end,
		TotalChoices:    2,
		Options: []gov.OptionTally{
			{ChoiceIndex: 1, Text: "A", Approve: 2, Reject: 1, Total: 3},
			{ChoiceIndex: 2, Text: "B", Approve: 0, Reject: 1, Total: 1},
		},
		TotalApprove: 2,
		TotalReject:  2,
		TotalVotes:   4,
		Voters: []gov.VoterEntry{
			{UserID: "u1", ChoiceIndex: 1, Choice: gov.ChoiceApprove},
		},
	}
}

func TestVotePanelOpen(t *testing.T) {
	p := VotePanel(detail())
	require.Len(t, p.Rows, 2)
	assert.Len(t, p.Rows[0].Buttons, 3)
	assert.Equal(t, VoteButtonID(ActionReject, 2), p.Rows[1].Buttons[1].CustomID)

	names := fieldNames(p.Embeds[0])
	assert.Contains(t, names, "1. A")
	assert.Contains(t, names, "Voters")
}

func TestVotePanelHidesWhatItShould(t *testing.T) {
	d := detail()
	d.Voters = nil
	d.Anonymous = true
	assert.NotContains(t, fieldNames(VotePanel(d).Embeds[0]), "Voters")

	d.Realtime = false
	assert.Equal(t, []string{"Results"}, fieldNames(VotePanel(d).Embeds[0]))

	d.IsOpen = false
	closed := VotePanel(d)
	assert.Empty(t, closed.Rows)
	assert.Contains(t, fieldNames(closed.Embeds[0]), "2. B")
	assert.Equal(t, ColorDanger, closed.Embeds[0].Color, "a tie does not pass")
}

func TestVoteMirrorHasNoButtons(t *testing.T) {
	m := VoteMirror(detail())
	assert.Empty(t, m.Rows)
	assert.Contains(t, fieldNames(m.Embeds[0]), "Cast your vote")
}

func TestSupportPanelStates(t *testing.T) {
	s := gov.SupportResultDTO{ObjectionID: 3, ProposalTitle: "Fund", CurrentSupporters: 2, RequiredSupporters: 5, ObjectionStatus: gov.ObjectionCollectingVotes}
	p := SupportPanel(s)
	require.Len(t, p.Rows, 1)
	assert.Equal(t, SupportButtonID(ActionSupport), p.Rows[0].Buttons[0].CustomID)

	s.ObjectionStatus = gov.ObjectionRejected
	assert.Empty(t, SupportPanel(s).Rows)

	o := gov.ObjectionDTO{ID: 3, ProposalTitle: "Fund", RequiredVotes: 5, ObjectionThreadID: "t-obj"}
	assert.Empty(t, SupportPanelPromoted(o, 5).Rows)
	assert.Empty(t, ReviewRequest(o, true).Rows)
	assert.Len(t, ReviewRequest(o, false).Rows[0].Buttons, 2)
}

func TestConfirmationPanel(t *testing.T) {
	c := gov.ConfirmationDTO{
		RequiredRoles:    []string{"councilModerator", "executionAuditor"},
		ConfirmedParties: map[string]string{"councilModerator": "mod"},
		Status:           gov.ConfirmationPending,
	}
	p := ConfirmationPanel(c, gov.ProposalDTO{Title: "Fund"})
	require.Len(t, p.Rows, 1)
	assert.Contains(t, p.Embeds[0].Description, "<@mod>")
	assert.Contains(t, p.Embeds[0].Description, "⏳ Execution auditor")

	c.Status = gov.ConfirmationCompleted
	assert.Empty(t, ConfirmationPanel(c, gov.ProposalDTO{Title: "Fund"}).Rows)
}

func TestModalsFitLimits(t *testing.T) {
	for _, m := range []gateway.Modal{ObjectionModal(), AnnounceModal(true, true, 100000, 100000)} {
		assert.LessOrEqual(t, len(m.CustomID), maxCustomIDLength)
		_, err := ParseCustomID(m.CustomID)
		assert.NoError(t, err)
	}
}

func fieldNames(e gateway.Embed) []string {
	out := make([]string, 0, len(e.Fields))
	for _, f := range e.Fields {
		out = append(out, f.Name)
	}
	return out
}
