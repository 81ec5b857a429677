package core

import (
	"context"
	"database/sql"
	"errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/require"
)

func Test_Tx_Commits_When_The_Function_Succeeds(t *testing.T) {
	// Arrange
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectBegin()
	mock.ExpectExec("UPDATE thing").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	// Act
	err = Tx(context.Background(), db, func(ctx context.Context, tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, "UPDATE thing")
		return err
	})

	// Assert
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func Test_Tx_Rolls_Back_When_The_Function_Fails(t *testing.T) {
	// Arrange
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	boom := errors.New("boom")

	mock.ExpectBegin()
	mock.ExpectRollback()

	// Act
	err = Tx(context.Background(), db, func(context.Context, *sql.Tx) error {
		return boom
	})

	// Assert
	require.ErrorIs(t, err, boom)
	require.NoError(t, mock.ExpectationsWereMet())
}

func Test_Tx_Rolls_Back_And_Reports_A_Panic_As_An_Error(t *testing.T) {
	// Arrange
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectBegin()
	mock.ExpectRollback()

	// Act
	err = Tx(context.Background(), db, func(context.Context, *sql.Tx) error {
		panic("unexpected")
	})

	// Assert
	require.Error(t, err)
	require.Contains(t, err.Error(), "unexpected")
	require.NoError(t, mock.ExpectationsWereMet())
}
