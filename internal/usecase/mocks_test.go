//go:build !integration

package usecase_test

import (
	"context"
	"sync"
	"time"

	"github.com/jackc/pgx/v4"
	"github.com/rs/zerolog"

	"expbox-billing/internal/domain"
	"expbox-billing/internal/domain/model"
	"expbox-billing/internal/domain/ports/repository"
)

func newTestLogger() *zerolog.Logger {
	l := zerolog.Nop()
	return &l
}

// ---- In-memory PromoCodeRepository ----

type memPromoRepo struct {
	mu     sync.Mutex
	byID   map[string]*model.PromoCode
	byCode map[string]*model.PromoCode

	saveErr            error // simulate persistent save failures
	collideSavesRemain int   // simulate code collisions for the mint retry path
}

func newMemPromoRepo() *memPromoRepo {
	return &memPromoRepo{byID: make(map[string]*model.PromoCode), byCode: make(map[string]*model.PromoCode)}
}

func (m *memPromoRepo) Save(ctx context.Context, tx repository.Tx, pc *model.PromoCode) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.saveErr != nil {
		return m.saveErr
	}
	if m.collideSavesRemain > 0 {
		m.collideSavesRemain--
		return domain.ErrAlreadyExists
	}
	if _, ok := m.byCode[pc.Code]; ok {
		return domain.ErrAlreadyExists
	}
	cp := *pc
	m.byID[pc.ID] = &cp
	m.byCode[pc.Code] = &cp
	return nil
}

func (m *memPromoRepo) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.PromoCode, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	pc, ok := m.byID[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *pc
	return &cp, nil
}

func (m *memPromoRepo) FindByCode(ctx context.Context, tx repository.Tx, code string) (*model.PromoCode, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	pc, ok := m.byCode[code]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *pc
	return &cp, nil
}

// RedeemOnce mirrors the SQL conditional update: the check and the
// increment happen under one lock.
func (m *memPromoRepo) RedeemOnce(ctx context.Context, tx repository.Tx, code, durationID string, now time.Time) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	pc, ok := m.byCode[code]
	if !ok {
		return 0, domain.ErrNotFound
	}
	if ok, _ := pc.Redeemable(durationID, now); !ok {
		return 0, domain.ErrPromoRedemptionFailed
	}
	pc.UsedCount++
	pc.Version++
	return pc.DiscountPercent, nil
}

func (m *memPromoRepo) SetActive(ctx context.Context, tx repository.Tx, id string, active bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	pc, ok := m.byID[id]
	if !ok {
		return domain.ErrNotFound
	}
	pc.IsActive = active
	pc.Version++
	return nil
}

func (m *memPromoRepo) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.byID)
}

// ---- In-memory SubscriptionRepository ----

type memSubRepo struct {
	mu   sync.Mutex
	subs map[string]*model.Subscription

	conflictUpdatesRemain int // simulate optimistic conflicts
}

func newMemSubRepo() *memSubRepo {
	return &memSubRepo{subs: make(map[string]*model.Subscription)}
}

func (m *memSubRepo) Save(ctx context.Context, tx repository.Tx, sub *model.Subscription) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if sub.Status == model.SubscriptionStatusActive || sub.Status == model.SubscriptionStatusGrace {
		for _, s := range m.subs {
			if s.ClientID == sub.ClientID &&
				(s.Status == model.SubscriptionStatusActive || s.Status == model.SubscriptionStatusGrace) {
				return domain.ErrAlreadyExists
			}
		}
	}
	cp := *sub
	m.subs[sub.ID] = &cp
	return nil
}

func (m *memSubRepo) Update(ctx context.Context, tx repository.Tx, sub *model.Subscription) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.conflictUpdatesRemain > 0 {
		m.conflictUpdatesRemain--
		return domain.ErrVersionConflict
	}
	cur, ok := m.subs[sub.ID]
	if !ok {
		return domain.ErrNotFound
	}
	if cur.Version != sub.Version {
		return domain.ErrVersionConflict
	}
	cp := *sub
	cp.Version++
	m.subs[sub.ID] = &cp
	sub.Version++
	return nil
}

func (m *memSubRepo) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.Subscription, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.subs[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *s
	return &cp, nil
}

func (m *memSubRepo) FindCurrentByClient(ctx context.Context, tx repository.Tx, clientID string) (*model.Subscription, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, s := range m.subs {
		if s.ClientID == clientID &&
			(s.Status == model.SubscriptionStatusActive || s.Status == model.SubscriptionStatusGrace) {
			cp := *s
			return &cp, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (m *memSubRepo) ListByClient(ctx context.Context, tx repository.Tx, clientID string) ([]*model.Subscription, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*model.Subscription
	for _, s := range m.subs {
		if s.ClientID == clientID {
			cp := *s
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (m *memSubRepo) ListDue(ctx context.Context, tx repository.Tx, now time.Time, limit int) ([]*model.Subscription, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*model.Subscription
	for _, s := range m.subs {
		if s.Status == model.SubscriptionStatusActive && s.NextPaymentDate.Before(now) {
			cp := *s
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (m *memSubRepo) ListGraceElapsed(ctx context.Context, tx repository.Tx, graceBefore time.Time, limit int) ([]*model.Subscription, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*model.Subscription
	for _, s := range m.subs {
		if s.Status == model.SubscriptionStatusGrace && s.GraceSince != nil && s.GraceSince.Before(graceBefore) {
			cp := *s
			out = append(out, &cp)
		}
	}
	return out, nil
}

// ---- In-memory PaymentRepository ----

type memPaymentRepo struct {
	mu       sync.Mutex
	byOrder  map[string]*model.Payment
	saveFunc func(p *model.Payment) error

	markOutcomeErr error // simulate a failing final write inside the transaction
}

func newMemPaymentRepo() *memPaymentRepo {
	return &memPaymentRepo{byOrder: make(map[string]*model.Payment)}
}

func (m *memPaymentRepo) Save(ctx context.Context, tx repository.Tx, p *model.Payment) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.saveFunc != nil {
		if err := m.saveFunc(p); err != nil {
			return err
		}
	}
	if _, ok := m.byOrder[p.OrderID]; ok {
		return domain.ErrAlreadyExists
	}
	cp := *p
	m.byOrder[p.OrderID] = &cp
	return nil
}

func (m *memPaymentRepo) FindByOrderID(ctx context.Context, tx repository.Tx, orderID string) (*model.Payment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.byOrder[orderID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *p
	return &cp, nil
}

func (m *memPaymentRepo) UpdateStatus(ctx context.Context, tx repository.Tx, orderID string, from, to model.PaymentStatus, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.byOrder[orderID]
	if !ok {
		return domain.ErrNotFound
	}
	if p.Status != from {
		return domain.ErrVersionConflict
	}
	p.Status = to
	p.UpdatedAt = at
	if to == model.PaymentStatusConfirmed {
		t := at
		p.ConfirmedAt = &t
	}
	return nil
}

func (m *memPaymentRepo) MarkOutcome(ctx context.Context, tx repository.Tx, orderID string, outcome model.PaymentOutcome) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.markOutcomeErr != nil {
		return m.markOutcomeErr
	}
	p, ok := m.byOrder[orderID]
	if !ok {
		return domain.ErrNotFound
	}
	if p.Outcome.Applied() {
		return domain.ErrOutcomeAlreadySet
	}
	p.Outcome = outcome
	return nil
}

func (m *memPaymentRepo) ListConfirmedUnapplied(ctx context.Context, tx repository.Tx, olderThan time.Time, limit int) ([]*model.Payment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*model.Payment
	for _, p := range m.byOrder {
		if p.Status == model.PaymentStatusConfirmed && !p.Outcome.Applied() &&
			p.ConfirmedAt != nil && p.ConfirmedAt.Before(olderThan) {
			cp := *p
			out = append(out, &cp)
		}
	}
	return out, nil
}

// ---- In-memory DurationCatalogRepository ----

type memDurationRepo struct {
	mu    sync.Mutex
	items map[string]*model.BoxDuration
}

func newMemDurationRepo() *memDurationRepo {
	return &memDurationRepo{items: make(map[string]*model.BoxDuration)}
}

func (m *memDurationRepo) Save(ctx context.Context, tx repository.Tx, d *model.BoxDuration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *d
	m.items[d.ID] = &cp
	return nil
}

func (m *memDurationRepo) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.BoxDuration, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.items[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *d
	return &cp, nil
}

func (m *memDurationRepo) ListAll(ctx context.Context, tx repository.Tx) ([]*model.BoxDuration, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*model.BoxDuration
	for _, d := range m.items {
		cp := *d
		out = append(out, &cp)
	}
	return out, nil
}

// ---- Mock TransactionManager ----

// txRestorer captures a repository's state before a transaction so a failed
// one can be undone, the way a database rollback would.
type txRestorer interface {
	snapshot() func()
}

func (m *memPromoRepo) snapshot() func() {
	m.mu.Lock()
	byID := make(map[string]*model.PromoCode, len(m.byID))
	for id, pc := range m.byID {
		cp := *pc
		byID[id] = &cp
	}
	// byCode shares struct pointers with byID; preserve that in the copy
	byCode := make(map[string]*model.PromoCode, len(m.byCode))
	for code, pc := range m.byCode {
		byCode[code] = byID[pc.ID]
	}
	m.mu.Unlock()
	return func() {
		m.mu.Lock()
		m.byID = byID
		m.byCode = byCode
		m.mu.Unlock()
	}
}

func (m *memSubRepo) snapshot() func() {
	m.mu.Lock()
	subs := make(map[string]*model.Subscription, len(m.subs))
	for id, s := range m.subs {
		cp := *s
		subs[id] = &cp
	}
	m.mu.Unlock()
	return func() {
		m.mu.Lock()
		m.subs = subs
		m.mu.Unlock()
	}
}

func (m *memPaymentRepo) snapshot() func() {
	m.mu.Lock()
	byOrder := make(map[string]*model.Payment, len(m.byOrder))
	for id, p := range m.byOrder {
		cp := *p
		byOrder[id] = &cp
	}
	m.mu.Unlock()
	return func() {
		m.mu.Lock()
		m.byOrder = byOrder
		m.mu.Unlock()
	}
}

// memTxManager serializes transactions with a mutex, the in-memory stand-in
// for the row locks the real TxManager relies on. Repositories handed to the
// constructor are snapshotted before the callback and restored when it
// errors, mirroring the rollback in TxManager.WithTx.
type memTxManager struct {
	mu         sync.Mutex
	restorers  []txRestorer
	WithTxFunc func(ctx context.Context, txOpt pgx.TxOptions, fn func(ctx context.Context, tx repository.Tx) error) error
}

func newMemTxManager(restorers ...txRestorer) *memTxManager {
	return &memTxManager{restorers: restorers}
}

var _ repository.TransactionManager = (*memTxManager)(nil)

func (m *memTxManager) WithTx(ctx context.Context, txOpt pgx.TxOptions, fn func(ctx context.Context, tx repository.Tx) error) error {
	if m.WithTxFunc != nil {
		return m.WithTxFunc(ctx, txOpt, fn)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	undos := make([]func(), 0, len(m.restorers))
	for _, r := range m.restorers {
		undos = append(undos, r.snapshot())
	}
	if err := fn(ctx, repository.NoTX); err != nil {
		for i := len(undos) - 1; i >= 0; i-- {
			undos[i]()
		}
		return err
	}
	return nil
}
