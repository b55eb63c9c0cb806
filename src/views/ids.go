package views

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// Kind is the component family encoded in a custom id.
type Kind string

const (
	KindVote    Kind = "vote"
	KindSupport Kind = "support"
	KindReview  Kind = "review"
	KindConfirm Kind = "confirm"
	KindModal   Kind = "modal"
)

// Button and modal actions.
const (
	ActionApprove  = "approve"
	ActionReject   = "reject"
	ActionAbstain  = "abstain"
	ActionSupport  = "support"
	ActionWithdraw = "withdraw"
	ActionConfirm  = "confirm"
	ActionCancel   = "cancel"
	ModalObjection = "objection"
	ModalAnnounce  = "announce"
)

const idPrefix = "pact"

// maxCustomIDLength is the platform limit on component ids.
const maxCustomIDLength = 100

var ErrForeignID = errors.New("views: custom id not issued by this service")

// CustomID is the decoded form of a component id:
// pact:<kind>:<action>:<index>:<target>[:<arg>...]
type CustomID struct {
	Kind   Kind
	Action string
	Index  int
	Target uint64
	Args   []string
}

func (c CustomID) String() string {
	parts := []string{idPrefix, string(c.Kind), c.Action, strconv.Itoa(c.Index), strconv.FormatUint(c.Target, 10)}
	parts = append(parts, c.Args...)
	return strings.Join(parts, ":")
}

// ParseCustomID decodes an id produced by CustomID.String.
func ParseCustomID(raw string) (CustomID, error) {
	if len(raw) > maxCustomIDLength {
		return CustomID{}, fmt.Errorf("views: custom id too long")
	}
	parts := strings.Split(raw, ":")
	if len(parts) < 5 || parts[0] != idPrefix {
		return CustomID{}, ErrForeignID
	}
	idx, err := strconv.Atoi(parts[3])
	if err != nil {
		return CustomID{}, fmt.Errorf("views: bad index in %q: %w", raw, err)
	}
	target, err := strconv.ParseUint(parts[4], 10, 64)
	if err != nil {
		return CustomID{}, fmt.Errorf("views: bad target in %q: %w", raw, err)
	}
	c := CustomID{Kind: Kind(parts[1]), Action: parts[2], Index: idx, Target: target}
	if len(parts) > 5 {
		c.Args = parts[5:]
	}
	switch c.Kind {
	case KindVote, KindSupport, KindReview, KindConfirm, KindModal:
	default:
		return CustomID{}, fmt.Errorf("views: unknown kind %q", c.Kind)
	}
	return c, nil
}

// Flag reads boolean arg i, encoded as "1" or "0".
func (c CustomID) Flag(i int) bool {
	return i < len(c.Args) && c.Args[i] == "1"
}

func flagArg(v bool) string {
	if v {
		return "1"
	}
	return "0"
}

// VoteButtonID encodes a ballot click on option idx.
func VoteButtonID(action string, idx int) string {
	return CustomID{Kind: KindVote, Action: action, Index: idx}.String()
}

// SupportButtonID encodes a support-collection click.
func SupportButtonID(action string) string {
	return CustomID{Kind: KindSupport, Action: action}.String()
}

// ReviewButtonID encodes a moderator decision on objectionID.
func ReviewButtonID(action string, objectionID uint64) string {
	return CustomID{Kind: KindReview, Action: action, Target: objectionID}.String()
}

// ConfirmButtonID encodes a confirmation panel click.
func ConfirmButtonID(action string) string {
	return CustomID{Kind: KindConfirm, Action: action}.String()
}

// ObjectionModalID identifies the raise-objection form.
func ObjectionModalID() string {
	return CustomID{Kind: KindModal, Action: ModalObjection}.String()
}

// AnnounceModalID identifies the announcement form and carries the command flags.
func AnnounceModalID(autoExecute, repost bool, threshold, interval int) string {
	return CustomID{
		Kind:   KindModal,
		Action: ModalAnnounce,
		Args:   []string{flagArg(autoExecute), flagArg(repost), strconv.Itoa(threshold), strconv.Itoa(interval)},
	}.String()
}

// IntArg reads integer arg i, or 0.
func (c CustomID) IntArg(i int) int {
	if i >= len(c.Args) {
		return 0
	}
	n, _ := strconv.Atoi(c.Args[i])
	return n
}
