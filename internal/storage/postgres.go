package storage

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ayush-jaipuriar/accountability-agent-sub002/internal"
)

type PostgresStorage struct {
	pool   *pgxpool.Pool
	logger internal.Logger
}

func NewPostgresStorage(dsn string, logger internal.Logger) (*PostgresStorage, error) {
	ctx := context.Background()
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		logger.Errorf("failed to connect to postgres: %v", err)
		return nil, err
	}
	return &PostgresStorage{pool: pool, logger: logger}, nil
}

const uniqueViolation = "23505"

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}

// --- UserStateRepository ---

func (p *PostgresStorage) GetUserState(ctx context.Context, userID string) (*internal.UserState, error) {
	row := p.pool.QueryRow(ctx, `SELECT doc, version FROM user_states WHERE user_id = $1`, userID)
	var doc []byte
	var version int64
	if err := row.Scan(&doc, &version); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		p.logger.Errorf("failed to query user state: %v", err)
		return nil, err
	}
	var st internal.UserState
	if err := json.Unmarshal(doc, &st); err != nil {
		return nil, err
	}
	st.UserID = userID
	st.Version = version
	return &st, nil
}

func (p *PostgresStorage) PutUserState(ctx context.Context, state *internal.UserState) error {
	return p.putUserStateTx(ctx, p.pool, state)
}

type execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// putUserStateTx performs the versioned upsert against either the pool or an
// open transaction. The version column guards against concurrent writers.
func (p *PostgresStorage) putUserStateTx(ctx context.Context, ex execer, state *internal.UserState) error {
	doc, err := json.Marshal(state)
	if err != nil {
		return err
	}
	if state.Version == 0 {
		_, err := ex.Exec(ctx,
			`INSERT INTO user_states (user_id, doc, version) VALUES ($1, $2, 1)`,
			state.UserID, doc)
		if err != nil {
			if isUniqueViolation(err) {
				return internal.ErrConcurrentModification
			}
			p.logger.Errorf("failed to insert user state: %v", err)
			return err
		}
		state.Version = 1
		return nil
	}
	tag, err := ex.Exec(ctx,
		`UPDATE user_states SET doc = $1, version = version + 1 WHERE user_id = $2 AND version = $3`,
		doc, state.UserID, state.Version)
	if err != nil {
		p.logger.Errorf("failed to update user state: %v", err)
		return err
	}
	if tag.RowsAffected() == 0 {
		return internal.ErrConcurrentModification
	}
	state.Version++
	return nil
}

func (p *PostgresStorage) ListUserIDs(ctx context.Context) ([]string, error) {
	rows, err := p.pool.Query(ctx, `SELECT user_id FROM user_states ORDER BY user_id`)
	if err != nil {
		p.logger.Errorf("failed to list user ids: %v", err)
		return nil, err
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// --- CheckInRepository ---

func (p *PostgresStorage) GetRecord(ctx context.Context, userID string, day internal.DayKey) (*internal.CheckInRecord, error) {
	row := p.pool.QueryRow(ctx,
		`SELECT doc FROM checkin_records WHERE user_id = $1 AND day_key = $2`, userID, string(day))
	var doc []byte
	if err := row.Scan(&doc); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		p.logger.Errorf("failed to query check-in record: %v", err)
		return nil, err
	}
	var rec internal.CheckInRecord
	if err := json.Unmarshal(doc, &rec); err != nil {
		return nil, err
	}
	return &rec, nil
}

func (p *PostgresStorage) RecentRecords(ctx context.Context, userID string, n int) ([]internal.CheckInRecord, error) {
	rows, err := p.pool.Query(ctx,
		`SELECT doc FROM checkin_records WHERE user_id = $1 ORDER BY day_key DESC LIMIT $2`, userID, n)
	if err != nil {
		p.logger.Errorf("failed to query recent records: %v", err)
		return nil, err
	}
	defer rows.Close()

	var records []internal.CheckInRecord
	for rows.Next() {
		var doc []byte
		if err := rows.Scan(&doc); err != nil {
			return nil, err
		}
		var rec internal.CheckInRecord
		if err := json.Unmarshal(doc, &rec); err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

// CommitCheckIn inserts the record and applies the versioned state update in
// one transaction. Rollback on either failure means a saved record can never
// coexist with a stale streak.
func (p *PostgresStorage) CommitCheckIn(ctx context.Context, record *internal.CheckInRecord, state *internal.UserState) error {
	tx, err := p.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	doc, err := json.Marshal(record)
	if err != nil {
		return err
	}
	_, err = tx.Exec(ctx,
		`INSERT INTO checkin_records (user_id, day_key, doc) VALUES ($1, $2, $3)`,
		record.UserID, string(record.DayKey), doc)
	if err != nil {
		if isUniqueViolation(err) {
			return internal.ErrDuplicateCheckIn
		}
		p.logger.Errorf("failed to insert check-in record: %v", err)
		return err
	}

	if err := p.putUserStateTx(ctx, tx, state); err != nil {
		return err
	}

	return tx.Commit(ctx)
}

func (p *PostgresStorage) UpdateRecord(ctx context.Context, record *internal.CheckInRecord) error {
	doc, err := json.Marshal(record)
	if err != nil {
		return err
	}
	tag, err := p.pool.Exec(ctx,
		`UPDATE checkin_records SET doc = $1 WHERE user_id = $2 AND day_key = $3`,
		doc, record.UserID, string(record.DayKey))
	if err != nil {
		p.logger.Errorf("failed to update check-in record: %v", err)
		return err
	}
	if tag.RowsAffected() == 0 {
		return internal.NewDomainError(internal.KindNotFound, "record_not_found",
			"no check-in record for this day")
	}
	return nil
}

// --- PatternEventRepository ---

func (p *PostgresStorage) OpenEvent(ctx context.Context, userID string, typ internal.PatternType) (*internal.PatternEvent, error) {
	row := p.pool.QueryRow(ctx,
		`SELECT doc FROM pattern_events WHERE user_id = $1 AND type = $2 AND resolved_at IS NULL LIMIT 1`,
		userID, string(typ))
	var doc []byte
	if err := row.Scan(&doc); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		p.logger.Errorf("failed to query open event: %v", err)
		return nil, err
	}
	var ev internal.PatternEvent
	if err := json.Unmarshal(doc, &ev); err != nil {
		return nil, err
	}
	return &ev, nil
}

func (p *PostgresStorage) AppendEvent(ctx context.Context, event *internal.PatternEvent) error {
	doc, err := json.Marshal(event)
	if err != nil {
		return err
	}
	_, err = p.pool.Exec(ctx,
		`INSERT INTO pattern_events (id, user_id, type, detected_at, resolved_at, doc) VALUES ($1, $2, $3, $4, NULL, $5)`,
		event.ID, event.UserID, string(event.Type), event.DetectedAt, doc)
	if err != nil {
		p.logger.Errorf("failed to insert pattern event: %v", err)
	}
	return err
}

func (p *PostgresStorage) ResolveEvent(ctx context.Context, eventID string, at time.Time) error {
	tag, err := p.pool.Exec(ctx,
		`UPDATE pattern_events SET resolved_at = $1, doc = jsonb_set(doc, '{resolved_at}', to_jsonb($1::timestamptz)) WHERE id = $2 AND resolved_at IS NULL`,
		at, eventID)
	if err != nil {
		p.logger.Errorf("failed to resolve pattern event: %v", err)
		return err
	}
	if tag.RowsAffected() == 0 {
		return internal.NewDomainError(internal.KindNotFound, "event_not_found",
			"no open pattern event with this id")
	}
	return nil
}

func (p *PostgresStorage) ListOpenEvents(ctx context.Context, userID string) ([]internal.PatternEvent, error) {
	rows, err := p.pool.Query(ctx,
		`SELECT doc FROM pattern_events WHERE user_id = $1 AND resolved_at IS NULL ORDER BY detected_at`, userID)
	if err != nil {
		p.logger.Errorf("failed to list open events: %v", err)
		return nil, err
	}
	defer rows.Close()

	var events []internal.PatternEvent
	for rows.Next() {
		var doc []byte
		if err := rows.Scan(&doc); err != nil {
			return nil, err
		}
		var ev internal.PatternEvent
		if err := json.Unmarshal(doc, &ev); err != nil {
			return nil, err
		}
		events = append(events, ev)
	}
	return events, rows.Err()
}

func (p *PostgresStorage) Close() error {
	p.pool.Close()
	return nil
}

var _ Store = (*PostgresStorage)(nil)
