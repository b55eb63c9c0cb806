// Package store holds the Unit of Work and the per-entity repositories. Every
// write goes through exactly one UnitOfWork; repositories never commit.
package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"
)

var (
	ErrNotFound      = errors.New("store: record not found")
	ErrDuplicate     = errors.New("store: duplicate record")
	ErrSessionClosed = errors.New("store: vote session is closed")
	ErrSessionOpen   = errors.New("store: vote session is open")
	ErrWrongKind     = errors.New("store: vote session has a different kind")
	ErrDone          = errors.New("store: unit of work already finished")
)

// Store opens units of work over one database.
type Store struct {
	db  *gorm.DB
	now func() time.Time
}

// New wraps db.
func New(db *gorm.DB) *Store {
	return &Store{db: db, now: func() time.Time { return time.Now().UTC() }}
}

// SetClock overrides the time source used by repositories.
func (s *Store) SetClock(now func() time.Time) {
	s.now = now
}

// Now returns the store clock.
func (s *Store) Now() time.Time { return s.now() }

// DB exposes the underlying handle for health checks and migrations.
func (s *Store) DB() *gorm.DB { return s.db }

// Begin opens a transaction. Callers must Close the unit; it rolls back unless
// Commit was called.
func (s *Store) Begin(ctx context.Context) (*UnitOfWork, error) {
	tx := s.db.WithContext(ctx).Begin()
	if tx.Error != nil {
		return nil, fmt.Errorf("store: begin: %w", tx.Error)
	}
	return &UnitOfWork{tx: tx, now: s.now}, nil
}

// Do runs fn inside a unit of work and commits when fn returns nil.
func (s *Store) Do(ctx context.Context, fn func(uow *UnitOfWork) error) error {
	uow, err := s.Begin(ctx)
	if err != nil {
		return err
	}
	defer uow.Close()

	if err := fn(uow); err != nil {
		return err
	}
	return uow.Commit()
}

// UnitOfWork is a transactional scope exposing lazily built repositories.
type UnitOfWork struct {
	tx        *gorm.DB
	now       func() time.Time
	committed bool
	closed    bool

	proposals     *ProposalRepo
	objections    *ObjectionRepo
	sessions      *VoteSessionRepo
	votes         *UserVoteRepo
	activity      *UserActivityRepo
	confirmations *ConfirmationRepo
	announcements *AnnouncementRepo
	monitors      *MonitorRepo
}

// Commit commits the transaction. Close afterwards only releases the scope.
func (u *UnitOfWork) Commit() error {
	if u.committed || u.closed {
		return ErrDone
	}
	if err := u.tx.Commit().Error; err != nil {
		u.closed = true
		return fmt.Errorf("store: commit: %w", err)
	}
	u.committed = true
	return nil
}

// Close rolls back when Commit was not called.
func (u *UnitOfWork) Close() {
	if u.closed {
		return
	}
	u.closed = true
	if !u.committed {
		u.tx.Rollback()
	}
}

// Committed reports whether Commit succeeded.
func (u *UnitOfWork) Committed() bool { return u.committed }

func (u *UnitOfWork) Proposals() *ProposalRepo {
	if u.proposals == nil {
		u.proposals = &ProposalRepo{tx: u.tx, now: u.now}
	}
	return u.proposals
}

func (u *UnitOfWork) Objections() *ObjectionRepo {
	if u.objections == nil {
		u.objections = &ObjectionRepo{tx: u.tx, now: u.now}
	}
	return u.objections
}

func (u *UnitOfWork) VoteSessions() *VoteSessionRepo {
	if u.sessions == nil {
		u.sessions = &VoteSessionRepo{tx: u.tx, now: u.now}
	}
	return u.sessions
}

func (u *UnitOfWork) UserVotes() *UserVoteRepo {
	if u.votes == nil {
		u.votes = &UserVoteRepo{tx: u.tx, now: u.now}
	}
	return u.votes
}

func (u *UnitOfWork) UserActivity() *UserActivityRepo {
	if u.activity == nil {
		u.activity = &UserActivityRepo{tx: u.tx, now: u.now}
	}
	return u.activity
}

func (u *UnitOfWork) Confirmations() *ConfirmationRepo {
	if u.confirmations == nil {
		u.confirmations = &ConfirmationRepo{tx: u.tx, now: u.now}
	}
	return u.confirmations
}

func (u *UnitOfWork) Announcements() *AnnouncementRepo {
	if u.announcements == nil {
		u.announcements = &AnnouncementRepo{tx: u.tx, now: u.now}
	}
	return u.announcements
}

func (u *UnitOfWork) Monitors() *MonitorRepo {
	if u.monitors == nil {
		u.monitors = &MonitorRepo{tx: u.tx, now: u.now}
	}
	return u.monitors
}

// translate maps driver errors onto the store sentinels.
func translate(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, gorm.ErrRecordNotFound):
		return fmt.Errorf("%w: %v", ErrNotFound, err)
	case errors.Is(err, gorm.ErrDuplicatedKey), isUniqueViolation(err):
		return fmt.Errorf("%w: %v", ErrDuplicate, err)
	}
	return err
}

func isUniqueViolation(err error) bool {
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "unique constraint") ||
		strings.Contains(msg, "duplicate entry") ||
		strings.Contains(msg, "duplicate key")
}

func strPtr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
