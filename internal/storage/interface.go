package storage

import (
	"context"
	"time"

	"github.com/ayush-jaipuriar/accountability-agent-sub002/internal"
)

// UserStateRepository holds the per-user streak/shield document.
//
// PutUserState is a compare-and-swap: the write succeeds only when the given
// state's Version matches the stored one (or the state is new and Version is
// zero); on success the stored version is incremented. A stale write returns
// internal.ErrConcurrentModification.
type UserStateRepository interface {
	GetUserState(ctx context.Context, userID string) (*internal.UserState, error)
	PutUserState(ctx context.Context, state *internal.UserState) error
	ListUserIDs(ctx context.Context) ([]string, error)
}

// CheckInRepository stores one record per (user, day key). GetRecord returns
// (nil, nil) when no record exists for the day; RecentRecords returns newest
// first.
//
// CommitCheckIn is the transactional write at the heart of the engine: it
// inserts the record and CAS-updates the user state in one transaction, so a
// saved record with a stale streak cannot exist. A record already present for
// the day returns internal.ErrDuplicateCheckIn; a version conflict returns
// internal.ErrConcurrentModification. Either failure leaves both documents
// untouched.
type CheckInRepository interface {
	GetRecord(ctx context.Context, userID string, day internal.DayKey) (*internal.CheckInRecord, error)
	RecentRecords(ctx context.Context, userID string, n int) ([]internal.CheckInRecord, error)
	CommitCheckIn(ctx context.Context, record *internal.CheckInRecord, state *internal.UserState) error
	UpdateRecord(ctx context.Context, record *internal.CheckInRecord) error
}

// PatternEventRepository is append-only; resolving an event sets ResolvedAt.
type PatternEventRepository interface {
	OpenEvent(ctx context.Context, userID string, typ internal.PatternType) (*internal.PatternEvent, error)
	AppendEvent(ctx context.Context, event *internal.PatternEvent) error
	ResolveEvent(ctx context.Context, eventID string, at time.Time) error
	ListOpenEvents(ctx context.Context, userID string) ([]internal.PatternEvent, error)
}

// Store is the full persistence surface the services depend on.
type Store interface {
	UserStateRepository
	CheckInRepository
	PatternEventRepository
	Close() error
}
