package webserver

import (
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stellaria-pact/governance/src/shared/errs"
	"github.com/stellaria-pact/governance/src/shared/gov"
)

type Status struct {
	d Deps
}

func NewStatus(d Deps) Status { return Status{d: d} }

func fail(c *gin.Context, err error) {
	switch {
	case errs.Is(err, errs.KindNotFound):
		c.JSON(http.StatusNotFound, gin.H{"err": errs.UserMessage(err)})
	case errs.Visible(err):
		c.JSON(http.StatusBadRequest, gin.H{"err": errs.UserMessage(err)})
	default:
		log.Printf("webserver: %s %s [%s]: %v", c.Request.Method, c.FullPath(), c.GetString("request_id"), err)
		c.JSON(http.StatusInternalServerError, gin.H{"err": errs.GenericMessage})
	}
}

type proposalView struct {
	ID         uint64          `json:"id"`
	ThreadID   string          `json:"thread_id"`
	ProposerID string          `json:"proposer_id"`
	Title      string          `json:"title"`
	Status     string          `json:"status"`
	CreatedAt  time.Time       `json:"created_at"`
	UpdatedAt  time.Time       `json:"updated_at"`
	Objections []objectionView `json:"objections"`
}

type objectionView struct {
	ID               uint64    `json:"id"`
	ProposalThreadID string    `json:"proposal_thread_id"`
	ObjectorID       string    `json:"objector_id"`
	Reason           string    `json:"reason"`
	Status           string    `json:"status"`
	RequiredVotes    int       `json:"required_votes"`
	ThreadID         string    `json:"objection_thread_id,omitempty"`
	CreatedAt        time.Time `json:"created_at"`
}

func objectionOf(o gov.ObjectionDTO) objectionView {
	return objectionView{
		ID:               o.ID,
		ProposalThreadID: o.ProposalThreadID,
		ObjectorID:       o.ObjectorID,
		Reason:           o.Reason,
		Status:           string(o.Status),
		RequiredVotes:    o.RequiredVotes,
		ThreadID:         o.ObjectionThreadID,
		CreatedAt:        o.CreatedAt,
	}
}

func (s Status) Proposal(c *gin.Context) {
	threadID := c.Param("threadId")
	p, err := s.d.Proposals.Get(c.Request.Context(), threadID)
	if err != nil {
		fail(c, err)
		return
	}
	list, err := s.d.Objections.ListForProposal(c.Request.Context(), threadID)
	if err != nil {
		fail(c, err)
		return
	}
	out := proposalView{
		ID:         p.ID,
		ThreadID:   p.ThreadID,
		ProposerID: p.ProposerID,
		Title:      p.Title,
		Status:     string(p.Status),
		CreatedAt:  p.CreatedAt,
		UpdatedAt:  p.UpdatedAt,
		Objections: make([]objectionView, 0, len(list)),
	}
	for _, o := range list {
		out.Objections = append(out.Objections, objectionOf(o))
	}
	c.JSON(http.StatusOK, out)
}

type optionView struct {
	Index   int    `json:"index"`
	Text    string `json:"text"`
	Approve int    `json:"approve"`
	Reject  int    `json:"reject"`
}

type voterView struct {
	UserID      string `json:"user_id"`
	ChoiceIndex int    `json:"choice_index"`
	Choice      string `json:"choice"`
}

type voteView struct {
	SessionID uint64       `json:"session_id"`
	Kind      string       `json:"kind"`
	Title     string       `json:"title"`
	ThreadID  string       `json:"thread_id"`
	Open      bool         `json:"open"`
	EndTime   *time.Time   `json:"end_time,omitempty"`
	Anonymous bool         `json:"anonymous"`
	Realtime  bool         `json:"realtime"`
	Hidden    bool         `json:"results_hidden"`
	Approve   int          `json:"approve"`
	Reject    int          `json:"reject"`
	Total     int          `json:"total_votes"`
	Passed    *bool        `json:"passed,omitempty"`
	Options   []optionView `json:"options,omitempty"`
	Voters    []voterView  `json:"voters,omitempty"`
}

// Vote reports a ballot the way its panel shows it: totals stay hidden on
// open ballots without live results, and voters never appear on anonymous ones.
func (s Status) Vote(c *gin.Context) {
	d, err := s.d.Votes.Details(c.Request.Context(), c.Param("messageId"))
	if err != nil {
		fail(c, err)
		return
	}
	out := voteView{
		SessionID: d.SessionID,
		Kind:      string(d.Kind),
		Title:     d.Title,
		ThreadID:  d.ContextThreadID,
		Open:      d.IsOpen,
		EndTime:   d.EndTime,
		Anonymous: d.Anonymous,
		Realtime:  d.Realtime,
		Hidden:    d.IsOpen && !d.Realtime,
	}
	if !out.Hidden {
		out.Approve, out.Reject, out.Total = d.TotalApprove, d.TotalReject, d.TotalVotes
		for _, o := range d.Options {
			out.Options = append(out.Options, optionView{Index: o.ChoiceIndex, Text: o.Text, Approve: o.Approve, Reject: o.Reject})
		}
		if !d.Anonymous {
			for _, v := range d.Voters {
				out.Voters = append(out.Voters, voterView{UserID: v.UserID, ChoiceIndex: v.ChoiceIndex, Choice: choiceName(v.Choice)})
			}
		}
	}
	if !d.IsOpen {
		passed := d.IsPassed()
		out.Passed = &passed
	}
	c.JSON(http.StatusOK, out)
}

func choiceName(c int8) string {
	if c == gov.ChoiceApprove {
		return "approve"
	}
	return "reject"
}

func (s Status) Objection(c *gin.Context) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"err": "invalid objection id"})
		return
	}
	o, err := s.d.Objections.Get(c.Request.Context(), id)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, objectionOf(o))
}

func (s Status) Scheduler(c *gin.Context) {
	log.Printf("webserver: scheduler stats requested by %s", c.GetString("sub"))
	c.JSON(http.StatusOK, s.d.Scheduler.Stats())
}
