package database

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"pricealerts/internal/models"
)

var fixedNow = time.Date(2024, 6, 11, 12, 0, 0, 0, time.UTC)

func newMockStore(t *testing.T) (*Store, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherEqual))
	require.NoError(t, err)
	t.Cleanup(func() {
		assert.NoError(t, mock.ExpectationsWereMet())
		db.Close()
	})
	store := NewStore(sqlx.NewDb(db, "postgres"), zap.NewNop(), WithClock(func() time.Time { return fixedNow }))
	return store, mock
}

func TestWithTxCommits(t *testing.T) {
	store, mock := newMockStore(t)
	coin := &models.Coin{Symbol: "ETH"}

	mock.ExpectBegin()
	mock.ExpectExec(queryInsertCoin).
		WithArgs(sqlmock.AnyArg(), "ETH").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	err := store.WithTx(context.Background(), func(tx models.Tx) error {
		return tx.CreateCoin(context.Background(), coin)
	})
	require.NoError(t, err)
	assert.NotEqual(t, uuid.Nil, coin.ID)
}

func TestWithTxRollsBackOnConflict(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectExec(queryInsertAlert).
		WillReturnError(&pq.Error{Code: codeUniqueViolation, Constraint: "coin_alert_type"})
	mock.ExpectRollback()

	err := store.WithTx(context.Background(), func(tx models.Tx) error {
		return tx.CreateAlert(context.Background(), &models.Alert{
			CoinID:         uuid.New(),
			ThresholdPrice: decimal.NewFromInt(90),
			Email:          "user@example.com",
			Direction:      models.DirectionDecrease,
		})
	})
	require.Error(t, err)
	assert.True(t, errors.Is(err, models.ErrConflict))
}

func TestWithTxRollsBackOnPanic(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectRollback()

	assert.Panics(t, func() {
		_ = store.WithTx(context.Background(), func(models.Tx) error {
			panic("boom")
		})
	})
}

func TestInsertSampleUsesStoreClock(t *testing.T) {
	store, mock := newMockStore(t)
	coinID := uuid.New()
	price := decimal.RequireFromString("85.5")

	mock.ExpectBegin()
	mock.ExpectExec(queryInsertSample).
		WithArgs(sqlmock.AnyArg(), coinID, price, fixedNow).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	var sample *models.PriceSample
	err := store.WithTx(context.Background(), func(tx models.Tx) error {
		var err error
		sample, err = tx.InsertSample(context.Background(), coinID, price)
		return err
	})
	require.NoError(t, err)
	assert.Equal(t, fixedNow, sample.ObservedAt)
	assert.True(t, price.Equal(sample.Price))
}

func TestInsertSampleForVanishedCoin(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectExec(queryInsertSample).
		WillReturnError(&pq.Error{Code: codeForeignKeyViolation})
	mock.ExpectRollback()

	err := store.WithTx(context.Background(), func(tx models.Tx) error {
		_, err := tx.InsertSample(context.Background(), uuid.New(), decimal.NewFromInt(1))
		return err
	})
	assert.True(t, errors.Is(err, models.ErrNotFound))
}

func TestGetAlertNotFound(t *testing.T) {
	store, mock := newMockStore(t)
	id := uuid.New()

	mock.ExpectBegin()
	mock.ExpectQuery(queryGetAlert).
		WithArgs(id).
		WillReturnRows(sqlmock.NewRows([]string{"id", "coin_id", "threshold_price", "email", "alert_type"}))
	mock.ExpectRollback()

	err := store.WithReadTx(context.Background(), func(tx models.Tx) error {
		_, err := tx.GetAlert(context.Background(), id)
		return err
	})
	assert.ErrorIs(t, err, models.ErrNotFound)
}

func TestListAlertsByCoin(t *testing.T) {
	store, mock := newMockStore(t)
	coinID := uuid.New()
	alertID := uuid.New()

	mock.ExpectBegin()
	mock.ExpectQuery(queryListAlertsByCoin).
		WithArgs(coinID).
		WillReturnRows(sqlmock.NewRows([]string{"id", "coin_id", "threshold_price", "email", "alert_type"}).
			AddRow(alertID.String(), coinID.String(), "90", "user@example.com", "dec"))
	mock.ExpectCommit()

	var alerts []models.Alert
	err := store.WithReadTx(context.Background(), func(tx models.Tx) error {
		var err error
		alerts, err = tx.ListAlertsByCoin(context.Background(), coinID)
		return err
	})
	require.NoError(t, err)
	require.Len(t, alerts, 1)
	assert.Equal(t, alertID, alerts[0].ID)
	assert.Equal(t, models.DirectionDecrease, alerts[0].Direction)
	assert.True(t, decimal.NewFromInt(90).Equal(alerts[0].ThresholdPrice))
}

func TestListSamples(t *testing.T) {
	store, mock := newMockStore(t)
	coinID := uuid.New()
	from := fixedNow.Add(-5 * time.Minute)

	mock.ExpectBegin()
	mock.ExpectQuery(queryListSamples).
		WithArgs(coinID, from, fixedNow).
		WillReturnRows(sqlmock.NewRows([]string{"id", "coin_id", "price", "timedate"}).
			AddRow(uuid.NewString(), coinID.String(), "100", fixedNow.Add(-time.Minute)).
			AddRow(uuid.NewString(), coinID.String(), "101", fixedNow))
	mock.ExpectCommit()

	var samples []models.PriceSample
	err := store.WithReadTx(context.Background(), func(tx models.Tx) error {
		var err error
		samples, err = tx.ListSamples(context.Background(), coinID, from, fixedNow)
		return err
	})
	require.NoError(t, err)
	require.Len(t, samples, 2)
	assert.True(t, decimal.NewFromInt(101).Equal(samples[1].Price))
}

func TestLatestPriceWithoutSamples(t *testing.T) {
	store, mock := newMockStore(t)
	coinID := uuid.New()

	mock.ExpectBegin()
	mock.ExpectQuery(queryLatestPrice).
		WithArgs(coinID).
		WillReturnRows(sqlmock.NewRows([]string{"price"}))
	mock.ExpectRollback()

	err := store.WithReadTx(context.Background(), func(tx models.Tx) error {
		_, err := tx.LatestPrice(context.Background(), coinID)
		return err
	})
	assert.ErrorIs(t, err, models.ErrNotFound)
}

func TestDeleteAlertMissing(t *testing.T) {
	store, mock := newMockStore(t)
	id := uuid.New()

	mock.ExpectBegin()
	mock.ExpectExec(queryDeleteAlert).
		WithArgs(id).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectRollback()

	err := store.WithTx(context.Background(), func(tx models.Tx) error {
		return tx.DeleteAlert(context.Background(), id)
	})
	assert.ErrorIs(t, err, models.ErrNotFound)
}

func TestRecordFailedNotification(t *testing.T) {
	store, mock := newMockStore(t)
	alertID := uuid.New()

	mock.ExpectBegin()
	mock.ExpectExec(queryInsertFailedEmail).
		WithArgs(sqlmock.AnyArg(), alertID, "user@example.com", "subject", "body", "dial failed", fixedNow).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	err := store.WithTx(context.Background(), func(tx models.Tx) error {
		return tx.RecordFailedNotification(context.Background(), &models.FailedNotification{
			AlertID:   alertID,
			Recipient: "user@example.com",
			Subject:   "subject",
			Body:      "body",
			Reason:    "dial failed",
		})
	})
	require.NoError(t, err)
}

func TestMigrate(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherEqual))
	require.NoError(t, err)
	defer db.Close()

	for _, stmt := range schema {
		mock.ExpectExec(stmt).WillReturnResult(sqlmock.NewResult(0, 0))
	}

	require.NoError(t, Migrate(context.Background(), sqlx.NewDb(db, "postgres")))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestClassify(t *testing.T) {
	assert.ErrorIs(t, classify(&pq.Error{Code: codeUniqueViolation}), models.ErrConflict)
	assert.ErrorIs(t, classify(&pq.Error{Code: codeForeignKeyViolation}), models.ErrNotFound)
	assert.NoError(t, classify(nil))

	other := errors.New("connection reset")
	assert.Equal(t, other, classify(other))
}
