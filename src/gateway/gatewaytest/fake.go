// Package gatewaytest provides an in-memory gateway that records every call.
package gatewaytest

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/stellaria-pact/governance/src/gateway"
)

var _ gateway.Gateway = (*Fake)(nil)

// Call is one recorded gateway invocation. For PostMessage, MessageID is the
// id handed back to the caller.
type Call struct {
	Method    string
	ChannelID string
	MessageID string
	Payload   gateway.MessagePayload
	Edit      gateway.ThreadEdit
	Modal     gateway.Modal
	Ephemeral bool
}

// Fake keeps messages and threads in memory.
type Fake struct {
	mu       sync.Mutex
	nextID   int
	calls    []Call
	messages map[string]*gateway.Message
	payloads map[string]gateway.MessagePayload
	threads  map[string]*gateway.Thread
	users    map[string]*gateway.User
	roles    map[string][]string

	// Fail, when set, is consulted before every call; a non-nil error is returned as-is.
	Fail func(method, target string) error
}

// New returns an empty fake.
func New() *Fake {
	return &Fake{
		messages: make(map[string]*gateway.Message),
		payloads: make(map[string]gateway.MessagePayload),
		threads:  make(map[string]*gateway.Thread),
		users:    make(map[string]*gateway.User),
		roles:    make(map[string][]string),
	}
}

func (f *Fake) id(prefix string) string {
	f.nextID++
	return fmt.Sprintf("%s-%d", prefix, f.nextID)
}

func (f *Fake) record(c Call) error {
	f.calls = append(f.calls, c)
	if f.Fail != nil {
		target := c.ChannelID
		if c.MessageID != "" {
			target = c.MessageID
		}
		return f.Fail(c.Method, target)
	}
	return nil
}

// AddThread registers an existing thread.
func (f *Fake) AddThread(t gateway.Thread) {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := t
	f.threads[t.ID] = &cp
}

// AddUser registers a user.
func (f *Fake) AddUser(u gateway.User) {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := u
	f.users[u.ID] = &cp
}

// SetMemberRoles sets the guild roles reported for userID.
func (f *Fake) SetMemberRoles(userID string, roleIDs ...string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.roles[userID] = roleIDs
}

func (f *Fake) PostMessage(_ context.Context, channelID string, p gateway.MessagePayload) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record(Call{Method: "PostMessage", ChannelID: channelID, Payload: p}); err != nil {
		return "", err
	}
	id := f.id("msg")
	f.calls[len(f.calls)-1].MessageID = id
	f.messages[id] = &gateway.Message{ID: id, ChannelID: channelID, Content: p.Content, Embeds: p.Embeds}
	f.payloads[id] = p
	return id, nil
}

func (f *Fake) EditMessage(_ context.Context, channelID, messageID string, p gateway.MessagePayload) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record(Call{Method: "EditMessage", ChannelID: channelID, MessageID: messageID, Payload: p}); err != nil {
		return err
	}
	m, ok := f.messages[messageID]
	if !ok {
		return gateway.ErrNotFound
	}
	m.Content = p.Content
	m.Embeds = p.Embeds
	f.payloads[messageID] = p
	return nil
}

func (f *Fake) FetchMessage(_ context.Context, channelID, messageID string) (*gateway.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record(Call{Method: "FetchMessage", ChannelID: channelID, MessageID: messageID}); err != nil {
		return nil, err
	}
	m, ok := f.messages[messageID]
	if !ok {
		return nil, gateway.ErrNotFound
	}
	cp := *m
	return &cp, nil
}

func (f *Fake) CreateThread(_ context.Context, forumID, name string, p gateway.MessagePayload, tags []string) (*gateway.Thread, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record(Call{Method: "CreateThread", ChannelID: forumID, Payload: p, Edit: gateway.ThreadEdit{Name: &name, AppliedTags: &tags}}); err != nil {
		return nil, err
	}
	id := f.id("thread")
	t := &gateway.Thread{ID: id, ParentID: forumID, Name: name, AppliedTags: append([]string(nil), tags...), CreatedAt: time.Now().UTC()}
	f.threads[id] = t
	// forum starter messages share the thread id
	f.messages[id] = &gateway.Message{ID: id, ChannelID: id, Content: p.Content, Embeds: p.Embeds}
	f.payloads[id] = p
	cp := *t
	return &cp, nil
}

func (f *Fake) EditThread(_ context.Context, threadID string, e gateway.ThreadEdit) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record(Call{Method: "EditThread", ChannelID: threadID, Edit: e}); err != nil {
		return err
	}
	t, ok := f.threads[threadID]
	if !ok {
		return gateway.ErrNotFound
	}
	if e.Name != nil {
		t.Name = *e.Name
	}
	if e.Archived != nil {
		t.Archived = *e.Archived
	}
	if e.Locked != nil {
		t.Locked = *e.Locked
	}
	if e.AppliedTags != nil {
		t.AppliedTags = append([]string(nil), (*e.AppliedTags)...)
	}
	return nil
}

func (f *Fake) FetchThread(_ context.Context, threadID string) (*gateway.Thread, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record(Call{Method: "FetchThread", ChannelID: threadID}); err != nil {
		return nil, err
	}
	t, ok := f.threads[threadID]
	if !ok {
		return nil, gateway.ErrNotFound
	}
	cp := *t
	cp.AppliedTags = append([]string(nil), t.AppliedTags...)
	return &cp, nil
}

func (f *Fake) ListForumThreads(_ context.Context, forumID string, since time.Time) ([]gateway.Thread, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record(Call{Method: "ListForumThreads", ChannelID: forumID}); err != nil {
		return nil, err
	}
	var out []gateway.Thread
	for _, t := range f.threads {
		if t.ParentID == forumID && !t.CreatedAt.Before(since) {
			out = append(out, *t)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (f *Fake) FetchUser(_ context.Context, userID string) (*gateway.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record(Call{Method: "FetchUser", ChannelID: userID}); err != nil {
		return nil, err
	}
	u, ok := f.users[userID]
	if !ok {
		return &gateway.User{ID: userID, Username: userID}, nil
	}
	cp := *u
	return &cp, nil
}

func (f *Fake) MemberRoles(_ context.Context, userID string) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record(Call{Method: "MemberRoles", ChannelID: userID}); err != nil {
		return nil, err
	}
	return append([]string(nil), f.roles[userID]...), nil
}

func (f *Fake) ReplyEphemeral(_ context.Context, it gateway.Interaction, p gateway.MessagePayload) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.record(Call{Method: "ReplyEphemeral", ChannelID: it.ChannelID, MessageID: it.ID, Payload: p, Ephemeral: true})
}

func (f *Fake) DeferInteraction(_ context.Context, it gateway.Interaction, ephemeral bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.record(Call{Method: "DeferInteraction", ChannelID: it.ChannelID, MessageID: it.ID, Ephemeral: ephemeral})
}

func (f *Fake) FollowUp(_ context.Context, it gateway.Interaction, p gateway.MessagePayload, ephemeral bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.record(Call{Method: "FollowUp", ChannelID: it.ChannelID, MessageID: it.ID, Payload: p, Ephemeral: ephemeral})
}

func (f *Fake) SendModal(_ context.Context, it gateway.Interaction, m gateway.Modal) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.record(Call{Method: "SendModal", ChannelID: it.ChannelID, MessageID: it.ID, Modal: m})
}

// Calls returns a copy of the recorded calls, optionally filtered by method.
func (f *Fake) Calls(method string) []Call {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []Call
	for _, c := range f.calls {
		if method == "" || c.Method == method {
			out = append(out, c)
		}
	}
	return out
}

// Thread returns the current state of a thread.
func (f *Fake) Thread(id string) (gateway.Thread, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	t, ok := f.threads[id]
	if !ok {
		return gateway.Thread{}, false
	}
	return *t, true
}

// Payload returns the latest payload of a message.
func (f *Fake) Payload(messageID string) (gateway.MessagePayload, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.payloads[messageID]
	return p, ok
}

// Reset clears recorded calls but keeps state.
func (f *Fake) Reset() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = nil
}
