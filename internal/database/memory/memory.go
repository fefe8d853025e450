// Package memory is an in-process models.Store. Write transactions work on a
// copy of the state that replaces the live state on commit, so transactions
// are serializable and a failed callback leaves nothing behind.
package memory

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"pricealerts/internal/models"
)

var errReadOnly = errors.New("write in read-only transaction")

type state struct {
	coins   map[uuid.UUID]models.Coin
	samples map[uuid.UUID][]models.PriceSample
	alerts  map[uuid.UUID]models.Alert
	failed  []models.FailedNotification
}

func (s *state) clone() *state {
	c := &state{
		coins:   make(map[uuid.UUID]models.Coin, len(s.coins)),
		samples: make(map[uuid.UUID][]models.PriceSample, len(s.samples)),
		alerts:  make(map[uuid.UUID]models.Alert, len(s.alerts)),
		failed:  s.failed[:len(s.failed):len(s.failed)],
	}
	for k, v := range s.coins {
		c.coins[k] = v
	}
	// Capped capacity makes appends on the copy reallocate.
	for k, v := range s.samples {
		c.samples[k] = v[:len(v):len(v)]
	}
	for k, v := range s.alerts {
		c.alerts[k] = v
	}
	return c
}

type Option func(*Store)

func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// Store keeps everything in memory. Write transactions are serialized and
// work on a copy that replaces the state on commit.
type Store struct {
	mu    sync.RWMutex
	state *state
	now   func() time.Time
}

var _ models.Store = (*Store)(nil)

func New(opts ...Option) *Store {
	s := &Store{
		state: &state{
			coins:   map[uuid.UUID]models.Coin{},
			samples: map[uuid.UUID][]models.PriceSample{},
			alerts:  map[uuid.UUID]models.Alert{},
		},
		now: time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Store) WithTx(ctx context.Context, fn func(models.Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	working := s.state.clone()
	if err := fn(&txn{state: working, now: s.now}); err != nil {
		return err
	}
	s.state = working
	return nil
}

func (s *Store) WithReadTx(ctx context.Context, fn func(models.Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return fn(&txn{state: s.state, now: s.now, readOnly: true})
}

func (s *Store) Close() error { return nil }

// FailedNotifications returns the recorded dead letters.
func (s *Store) FailedNotifications() []models.FailedNotification {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]models.FailedNotification(nil), s.state.failed...)
}

type txn struct {
	state    *state
	now      func() time.Time
	readOnly bool
}

func (t *txn) writable() error {
	if t.readOnly {
		return errReadOnly
	}
	return nil
}

func (t *txn) ListCoins(context.Context) ([]models.Coin, error) {
	coins := make([]models.Coin, 0, len(t.state.coins))
	for _, c := range t.state.coins {
		coins = append(coins, c)
	}
	sort.Slice(coins, func(i, j int) bool { return coins[i].Symbol < coins[j].Symbol })
	return coins, nil
}

func (t *txn) GetCoin(_ context.Context, id uuid.UUID) (*models.Coin, error) {
	c, ok := t.state.coins[id]
	if !ok {
		return nil, models.ErrNotFound
	}
	return &c, nil
}

func (t *txn) GetCoinBySymbol(_ context.Context, symbol string) (*models.Coin, error) {
	for _, c := range t.state.coins {
		if c.Symbol == symbol {
			return &c, nil
		}
	}
	return nil, models.ErrNotFound
}

func (t *txn) CreateCoin(ctx context.Context, coin *models.Coin) error {
	if err := t.writable(); err != nil {
		return err
	}
	if _, err := t.GetCoinBySymbol(ctx, coin.Symbol); err == nil {
		return models.ErrConflict
	}
	if coin.ID == uuid.Nil {
		coin.ID = uuid.New()
	}
	if _, ok := t.state.coins[coin.ID]; ok {
		return models.ErrConflict
	}
	t.state.coins[coin.ID] = *coin
	return nil
}

func (t *txn) InsertSample(_ context.Context, coinID uuid.UUID, price decimal.Decimal) (*models.PriceSample, error) {
	if err := t.writable(); err != nil {
		return nil, err
	}
	if _, ok := t.state.coins[coinID]; !ok {
		return nil, models.ErrNotFound
	}
	sample := models.PriceSample{
		ID:         uuid.New(),
		CoinID:     coinID,
		Price:      price,
		ObservedAt: t.now().UTC(),
	}
	t.state.samples[coinID] = append(t.state.samples[coinID], sample)
	return &sample, nil
}

func (t *txn) LatestPrice(_ context.Context, coinID uuid.UUID) (decimal.Decimal, error) {
	samples := t.state.samples[coinID]
	if len(samples) == 0 {
		return decimal.Zero, models.ErrNotFound
	}
	latest := samples[0]
	for _, s := range samples[1:] {
		if !s.ObservedAt.Before(latest.ObservedAt) {
			latest = s
		}
	}
	return latest.Price, nil
}

func (t *txn) ListSamples(_ context.Context, coinID uuid.UUID, from, to time.Time) ([]models.PriceSample, error) {
	out := []models.PriceSample{}
	for _, s := range t.state.samples[coinID] {
		if s.ObservedAt.Before(from) || s.ObservedAt.After(to) {
			continue
		}
		out = append(out, s)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].ObservedAt.Before(out[j].ObservedAt) })
	return out, nil
}

func (t *txn) ListAlerts(context.Context) ([]models.Alert, error) {
	return t.alertsWhere(func(models.Alert) bool { return true }), nil
}

func (t *txn) ListAlertsByCoin(_ context.Context, coinID uuid.UUID) ([]models.Alert, error) {
	return t.alertsWhere(func(a models.Alert) bool { return a.CoinID == coinID }), nil
}

func (t *txn) alertsWhere(keep func(models.Alert) bool) []models.Alert {
	alerts := []models.Alert{}
	for _, a := range t.state.alerts {
		if keep(a) {
			alerts = append(alerts, a)
		}
	}
	sort.Slice(alerts, func(i, j int) bool { return alerts[i].ID.String() < alerts[j].ID.String() })
	return alerts
}

func (t *txn) GetAlert(_ context.Context, id uuid.UUID) (*models.Alert, error) {
	a, ok := t.state.alerts[id]
	if !ok {
		return nil, models.ErrNotFound
	}
	return &a, nil
}

func (t *txn) CreateAlert(_ context.Context, alert *models.Alert) error {
	if err := t.writable(); err != nil {
		return err
	}
	if alert.ID == uuid.Nil {
		alert.ID = uuid.New()
	}
	if _, ok := t.state.alerts[alert.ID]; ok {
		return models.ErrConflict
	}
	if err := t.checkAlert(*alert); err != nil {
		return err
	}
	t.state.alerts[alert.ID] = *alert
	return nil
}

func (t *txn) UpdateAlert(_ context.Context, alert *models.Alert) error {
	if err := t.writable(); err != nil {
		return err
	}
	if _, ok := t.state.alerts[alert.ID]; !ok {
		return models.ErrNotFound
	}
	if err := t.checkAlert(*alert); err != nil {
		return err
	}
	t.state.alerts[alert.ID] = *alert
	return nil
}

// checkAlert enforces the foreign key on coin_id and the
// (email, coin_id, alert_type, threshold_price) uniqueness.
func (t *txn) checkAlert(alert models.Alert) error {
	if _, ok := t.state.coins[alert.CoinID]; !ok {
		return models.ErrNotFound
	}
	for id, other := range t.state.alerts {
		if id == alert.ID {
			continue
		}
		if other.Email == alert.Email &&
			other.CoinID == alert.CoinID &&
			other.Direction == alert.Direction &&
			other.ThresholdPrice.Equal(alert.ThresholdPrice) {
			return models.ErrConflict
		}
	}
	return nil
}

func (t *txn) DeleteAlert(_ context.Context, id uuid.UUID) error {
	if err := t.writable(); err != nil {
		return err
	}
	if _, ok := t.state.alerts[id]; !ok {
		return models.ErrNotFound
	}
	delete(t.state.alerts, id)
	return nil
}

func (t *txn) RecordFailedNotification(_ context.Context, n *models.FailedNotification) error {
	if err := t.writable(); err != nil {
		return err
	}
	if n.ID == uuid.Nil {
		n.ID = uuid.New()
	}
	if n.CreatedAt.IsZero() {
		n.CreatedAt = t.now().UTC()
	}
	t.state.failed = append(t.state.failed, *n)
	return nil
}
