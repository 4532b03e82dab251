package postgres

import (
	"context"
	"errors"
	"net/url"
	"testing"

	"payrails/config"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDSN_EscapesCredentials(t *testing.T) {
	cfg := config.DatabaseConfig{
		Host: "db.internal", Port: 6543, User: "payrails", Password: "p@ss:w/rd?",
		DBName: "ledger", SSLMode: "require",
	}

	u, err := url.Parse(cfg.DSN())
	require.NoError(t, err)
	assert.Equal(t, "postgres", u.Scheme)
	assert.Equal(t, "db.internal:6543", u.Host)
	assert.Equal(t, "/ledger", u.Path)
	assert.Equal(t, "require", u.Query().Get("sslmode"))
	pw, _ := u.User.Password()
	assert.Equal(t, "p@ss:w/rd?", pw)
}

func TestHealthCheck(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()
	hc := NewHealthCheck(mock)
	assert.Equal(t, "postgres", hc.Name())

	mock.ExpectQuery("SELECT COUNT").WillReturnRows(pgxmock.NewRows([]string{"count"}).AddRow(int64(1)))
	assert.NoError(t, hc.Ping(context.Background()))

	mock.ExpectQuery("SELECT COUNT").WillReturnRows(pgxmock.NewRows([]string{"count"}).AddRow(int64(0)))
	assert.EqualError(t, hc.Ping(context.Background()), "schema not migrated")

	mock.ExpectQuery("SELECT COUNT").WillReturnError(errors.New("connection reset"))
	assert.Error(t, hc.Ping(context.Background()))

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTransactor_BeginsReadCommitted(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectBeginTx(pgx.TxOptions{IsoLevel: pgx.ReadCommitted, AccessMode: pgx.ReadWrite})
	mock.ExpectRollback()

	tx, err := NewTransactor(mock).Begin(context.Background())
	require.NoError(t, err)
	require.NoError(t, tx.Rollback(context.Background()))
	assert.NoError(t, mock.ExpectationsWereMet())
}

// NewPool needs a live server and is exercised through `payrails migrate`.
