package wager

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/coinduel/backend/internal/modules/wager/domain"

	"github.com/eskrenkovic/tql"
	"github.com/google/uuid"
	"github.com/pkg/errors"
)

// PostgresStore keeps each session as a single row with its participants
// embedded as jsonb. The version column carries the compare-and-swap guard:
// every accepted mutation is an UPDATE conditioned on the version the writer
// read, so a lost race shows up as zero affected rows rather than a lost
// update.
type PostgresStore struct {
	db *sql.DB
}

var _ SessionStore = (*PostgresStore)(nil)

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db}
}

type sessionRow struct {
	ID             string         `db:"id"`
	State          string         `db:"state"`
	Version        int64          `db:"version"`
	Result         sql.NullString `db:"result"`
	Reason         sql.NullString `db:"reason"`
	ForfeitedBy    sql.NullString `db:"forfeited_by"`
	CreatedAt      time.Time      `db:"created_at"`
	DeadlineAt     time.Time      `db:"deadline_at"`
	SettleAttempts int            `db:"settle_attempts"`
	Participants   []byte         `db:"participants"`
}

func toRow(session domain.Session) (sessionRow, error) {
	participants, err := json.Marshal(session.Participants)
	if err != nil {
		return sessionRow{}, errors.Wrap(err, "marshal participants")
	}

	row := sessionRow{
		ID:             session.ID,
		State:          string(session.State),
		Version:        session.Version,
		CreatedAt:      session.CreatedAt,
		DeadlineAt:     session.DeadlineAt,
		SettleAttempts: session.SettleAttempts,
		Participants:   participants,
	}

	if session.Result != nil {
		row.Result = sql.NullString{String: string(*session.Result), Valid: true}
	}

	if session.Reason != nil {
		row.Reason = sql.NullString{String: string(*session.Reason), Valid: true}
	}

	if session.ForfeitedBy != nil {
		row.ForfeitedBy = sql.NullString{String: session.ForfeitedBy.String(), Valid: true}
	}

	return row, nil
}

func (r sessionRow) toSession() (domain.Session, error) {
	session := domain.Session{
		ID:             r.ID,
		State:          domain.State(r.State),
		Version:        r.Version,
		CreatedAt:      r.CreatedAt,
		DeadlineAt:     r.DeadlineAt,
		SettleAttempts: r.SettleAttempts,
	}

	if len(r.Participants) > 0 {
		if err := json.Unmarshal(r.Participants, &session.Participants); err != nil {
			return domain.Session{}, errors.Wrap(err, "unmarshal participants")
		}
	}

	if r.Result.Valid {
		result := domain.Side(r.Result.String)
		session.Result = &result
	}

	if r.Reason.Valid {
		reason := domain.TerminationReason(r.Reason.String)
		session.Reason = &reason
	}

	if r.ForfeitedBy.Valid {
		forfeitedBy, err := uuid.Parse(r.ForfeitedBy.String)
		if err != nil {
			return domain.Session{}, errors.Wrap(err, "parse forfeited_by")
		}
		session.ForfeitedBy = &forfeitedBy
	}

	return session, nil
}

func (s *PostgresStore) Get(ctx context.Context, id string) (domain.Session, error) {
	const query = `
		SELECT
			id, state, version, result, reason, forfeited_by,
			created_at, deadline_at, settle_attempts, participants
		FROM
			wager_session
		WHERE
			id = $1;`

	row, err := tql.QueryFirst[sessionRow](ctx, s.db, query, id)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return domain.Session{}, domain.ErrNotFound
	case err != nil:
		return domain.Session{}, fmt.Errorf("%w: %s", domain.ErrStoreUnavailable, err.Error())
	}

	return row.toSession()
}

func (s *PostgresStore) Create(ctx context.Context, session domain.Session) error {
	row, err := toRow(session)
	if err != nil {
		return err
	}

	const stmt = `
		INSERT INTO
			wager_session (
				id, state, version, result, reason, forfeited_by,
				created_at, deadline_at, settle_attempts, participants
			)
		VALUES
			(
				:id, :state, :version, :result, :reason, :forfeited_by,
				:created_at, :deadline_at, :settle_attempts, :participants
			);`
	if _, err := tql.Exec(ctx, s.db, stmt, row); err != nil {
		return fmt.Errorf("%w: %s", domain.ErrStoreUnavailable, err.Error())
	}

	return nil
}

func (s *PostgresStore) CASUpdate(ctx context.Context, session domain.Session) (bool, error) {
	row, err := toRow(session)
	if err != nil {
		return false, err
	}

	const stmt = `
		UPDATE
			wager_session
		SET
			state = $2,
			version = version + 1,
			result = $3,
			reason = $4,
			forfeited_by = $5,
			deadline_at = $6,
			settle_attempts = $7,
			participants = $8
		WHERE
			id = $1 AND version = $9;`
	result, err := tql.Exec(
		ctx,
		s.db,
		stmt,
		row.ID,
		row.State,
		row.Result,
		row.Reason,
		row.ForfeitedBy,
		row.DeadlineAt,
		row.SettleAttempts,
		row.Participants,
		row.Version,
	)
	if err != nil {
		return false, fmt.Errorf("%w: %s", domain.ErrStoreUnavailable, err.Error())
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("%w: %s", domain.ErrStoreUnavailable, err.Error())
	}

	return affected == 1, nil
}

func (s *PostgresStore) Delete(ctx context.Context, id string, expectedVersion int64) (bool, error) {
	const stmt = `
		DELETE FROM
			wager_session
		WHERE
			id = $1 AND version = $2;`
	result, err := tql.Exec(ctx, s.db, stmt, id, expectedVersion)
	if err != nil {
		return false, fmt.Errorf("%w: %s", domain.ErrStoreUnavailable, err.Error())
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("%w: %s", domain.ErrStoreUnavailable, err.Error())
	}

	return affected == 1, nil
}

func (s *PostgresStore) FindOldestWaiting(ctx context.Context) (domain.Session, error) {
	const query = `
		SELECT
			id, state, version, result, reason, forfeited_by,
			created_at, deadline_at, settle_attempts, participants
		FROM
			wager_session
		WHERE
			state = 'waiting' AND jsonb_array_length(participants) < 2
		ORDER BY
			created_at ASC
		LIMIT 1;`

	row, err := tql.QueryFirst[sessionRow](ctx, s.db, query)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return domain.Session{}, domain.ErrNotFound
	case err != nil:
		return domain.Session{}, fmt.Errorf("%w: %s", domain.ErrStoreUnavailable, err.Error())
	}

	return row.toSession()
}

func (s *PostgresStore) FindActiveByAccount(ctx context.Context, accountID uuid.UUID) (domain.Session, error) {
	const query = `
		SELECT
			id, state, version, result, reason, forfeited_by,
			created_at, deadline_at, settle_attempts, participants
		FROM
			wager_session
		WHERE
			state <> 'complete' AND participants @> $1::jsonb
		ORDER BY
			created_at ASC, id ASC
		LIMIT 1;`

	membership, err := json.Marshal([]map[string]string{{"account_id": accountID.String()}})
	if err != nil {
		return domain.Session{}, err
	}

	row, err := tql.QueryFirst[sessionRow](ctx, s.db, query, membership)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return domain.Session{}, domain.ErrNotFound
	case err != nil:
		return domain.Session{}, fmt.Errorf("%w: %s", domain.ErrStoreUnavailable, err.Error())
	}

	return row.toSession()
}

func (s *PostgresStore) FindExpired(ctx context.Context, now time.Time, limit int) ([]domain.Session, error) {
	const query = `
		SELECT
			id, state, version, result, reason, forfeited_by,
			created_at, deadline_at, settle_attempts, participants
		FROM
			wager_session
		WHERE
			state <> 'complete' AND deadline_at <= $1
		ORDER BY
			deadline_at ASC
		LIMIT $2;`

	rows, err := tql.Query[sessionRow](ctx, s.db, query, now, limit)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", domain.ErrStoreUnavailable, err.Error())
	}

	sessions := make([]domain.Session, 0, len(rows))
	for _, row := range rows {
		session, err := row.toSession()
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, session)
	}

	return sessions, nil
}
