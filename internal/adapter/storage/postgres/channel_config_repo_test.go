package postgres

import (
	"context"
	"testing"

	"payrails/internal/core/domain"

	"github.com/pashagolub/pgxmock/v4"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChannelConfigRepo_Upsert_Active(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewChannelConfigRepo(mock)
	cfg := &domain.ChannelConfig{
		Name:     "weekday",
		Channels: []domain.Channel{domain.ChannelACH, domain.ChannelCard},
		Limits:   map[domain.Channel]decimal.Decimal{domain.ChannelCard: decimal.NewFromInt(2500)},
		Active:   true,
	}

	mock.ExpectBegin()
	mock.ExpectExec("UPDATE channel_configs SET active = false").
		WithArgs("weekday").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectExec("INSERT INTO channel_configs .+ ON CONFLICT \\(name\\) DO UPDATE").
		WithArgs("weekday", []string{"ach", "card"}, []byte(`{"card":"2500"}`), true, pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectCommit()

	assert.NoError(t, repo.Upsert(context.Background(), cfg))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestChannelConfigRepo_Upsert_InactiveSkipsDeactivation(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewChannelConfigRepo(mock)

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO channel_configs").
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectCommit()

	err = repo.Upsert(context.Background(), &domain.ChannelConfig{Name: "spare", Channels: []domain.Channel{domain.ChannelRTP}})
	assert.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestChannelConfigRepo_GetActive(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewChannelConfigRepo(mock)

	mock.ExpectQuery("SELECT name, channels, limits, active FROM channel_configs WHERE active").
		WillReturnRows(pgxmock.NewRows([]string{"name", "channels", "limits", "active"}).
			AddRow("weekday", []string{"fednow", "ach"}, []byte(`{"ach":"7500.00"}`), true))

	cfg, err := repo.GetActive(context.Background())
	require.NoError(t, err)
	require.NotNil(t, cfg)
	assert.Equal(t, []domain.Channel{domain.ChannelFedNow, domain.ChannelACH}, cfg.Channels)
	assert.True(t, cfg.Limits[domain.ChannelACH].Equal(decimal.NewFromInt(7500)))
	assert.True(t, cfg.Active)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestChannelConfigRepo_GetActive_None(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewChannelConfigRepo(mock)

	mock.ExpectQuery("SELECT name, channels, limits, active FROM channel_configs").
		WillReturnRows(pgxmock.NewRows([]string{"name", "channels", "limits", "active"}))

	cfg, err := repo.GetActive(context.Background())
	assert.NoError(t, err)
	assert.Nil(t, cfg)
}
