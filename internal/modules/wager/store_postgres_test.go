package wager

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/coinduel/backend/internal/modules/wager/domain"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	_ "github.com/lib/pq"
	"github.com/stretchr/testify/require"
)

var sessionColumns = []string{
	"id", "state", "version", "result", "reason", "forfeited_by",
	"created_at", "deadline_at", "settle_attempts", "participants",
}

func Test_PostgresStore_Get_Maps_The_Row_Onto_A_Session(t *testing.T) {
	// Arrange
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	store := NewPostgresStore(db)

	accountID := uuid.New()
	participants, err := json.Marshal([]domain.Participant{
		{AccountID: accountID, DisplayName: "alice"},
	})
	require.NoError(t, err)

	now := time.Now()
	sessionID := uuid.NewString()

	mock.ExpectQuery(`SELECT(.|\s)+FROM\s+wager_session`).
		WithArgs(sessionID).
		WillReturnRows(sqlmock.NewRows(sessionColumns).
			AddRow(sessionID, "waiting", int64(3), nil, nil, nil, now, now.Add(time.Minute), 0, participants))

	// Act
	session, err := store.Get(context.Background(), sessionID)

	// Assert
	require.NoError(t, err)
	require.Equal(t, sessionID, session.ID)
	require.Equal(t, domain.StateWaiting, session.State)
	require.Equal(t, int64(3), session.Version)
	require.Nil(t, session.Result)
	require.Nil(t, session.ForfeitedBy)
	require.Len(t, session.Participants, 1)
	require.Equal(t, accountID, session.Participants[0].AccountID)
	require.NoError(t, mock.ExpectationsWereMet())
}

func Test_PostgresStore_Get_Unknown_Session_Is_NotFound(t *testing.T) {
	// Arrange
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	store := NewPostgresStore(db)

	mock.ExpectQuery(`SELECT(.|\s)+FROM\s+wager_session`).
		WillReturnRows(sqlmock.NewRows(sessionColumns))

	// Act
	_, err = store.Get(context.Background(), uuid.NewString())

	// Assert
	require.ErrorIs(t, err, domain.ErrNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func Test_PostgresStore_CASUpdate_Reports_A_Lost_Race_As_Rejected(t *testing.T) {
	// Arrange
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	store := NewPostgresStore(db)
	session := domain.NewSession(time.Now(), time.Minute)

	mock.ExpectExec(`UPDATE\s+wager_session`).
		WillReturnResult(sqlmock.NewResult(0, 0))

	// Act
	ok, err := store.CASUpdate(context.Background(), session)

	// Assert
	require.NoError(t, err)
	require.False(t, ok)
	require.NoError(t, mock.ExpectationsWereMet())
}

func Test_PostgresStore_CASUpdate_Accepts_A_Matching_Version(t *testing.T) {
	// Arrange
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	store := NewPostgresStore(db)
	session := domain.NewSession(time.Now(), time.Minute)

	mock.ExpectExec(`UPDATE\s+wager_session`).
		WillReturnResult(sqlmock.NewResult(0, 1))

	// Act
	ok, err := store.CASUpdate(context.Background(), session)

	// Assert
	require.NoError(t, err)
	require.True(t, ok)
	require.NoError(t, mock.ExpectationsWereMet())
}
