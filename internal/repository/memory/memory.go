// Package memory реализует хранилище в памяти процесса с теми же транзакционными
// гарантиями, что и PostgreSQL: транзакции выполняются последовательно, а при ошибке
// все изменения откатываются. Используется в режиме разработки без базы данных и в тестах.
package memory

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/mmeshcher/archivemart/internal/model"
	"github.com/mmeshcher/archivemart/internal/repository"
)

type grantKey struct {
	userID    int64
	productID int64
}

type state struct {
	users       map[int64]model.User
	userSeq     int64
	txns        map[int64][]model.LedgerTransaction
	txnSeq      int64
	streaks     map[int64]model.StreakState
	vips        map[int64]model.VipState
	referrals   map[int64]model.Referral
	referralSeq int64
	promos      map[string]model.PromoCode
	products    map[int64]model.Product
	orders      map[string]model.Order
	grants      map[grantKey]model.AccessGrant
	events      []model.PaymentEvent
}

func newState() *state {
	return &state{
		users:     make(map[int64]model.User),
		txns:      make(map[int64][]model.LedgerTransaction),
		streaks:   make(map[int64]model.StreakState),
		vips:      make(map[int64]model.VipState),
		referrals: make(map[int64]model.Referral),
		promos:    make(map[string]model.PromoCode),
		products:  make(map[int64]model.Product),
		orders:    make(map[string]model.Order),
		grants:    make(map[grantKey]model.AccessGrant),
	}
}

// clone копирует индексы состояния. Записи хранятся по значению и заменяются целиком,
// поэтому копии карт достаточно для отката.
func (st *state) clone() *state {
	c := *st
	c.users = maps.Clone(st.users)
	c.txns = maps.Clone(st.txns)
	c.streaks = maps.Clone(st.streaks)
	c.vips = maps.Clone(st.vips)
	c.referrals = maps.Clone(st.referrals)
	c.promos = maps.Clone(st.promos)
	c.products = maps.Clone(st.products)
	c.orders = maps.Clone(st.orders)
	c.grants = maps.Clone(st.grants)
	c.events = slices.Clip(st.events)
	return &c
}

// Store — хранилище в памяти.
type Store struct {
	*queries
	mu sync.Mutex
	st *state
}

var _ repository.Store = (*Store)(nil)

// Колонка payment_events.payload объявлена NOT NULL.
var errPaymentPayloadRequired = errors.New("payment event payload is required")

// New создаёт пустое хранилище.
func New() *Store {
	s := &Store{st: newState()}
	s.queries = &queries{s: s}
	return s
}

// WithTx выполняет fn под эксклюзивной блокировкой хранилища и откатывает изменения при ошибке.
func (s *Store) WithTx(ctx context.Context, fn func(q repository.Queries) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	snapshot := s.st.clone()
	if err := fn(&queries{s: s, inTx: true}); err != nil {
		s.st = snapshot
		return err
	}
	return nil
}

// Close ничего не делает.
func (s *Store) Close() error { return nil }

type queries struct {
	s    *Store
	inTx bool
}

// lock захватывает блокировку хранилища для вызова вне транзакции.
func (q *queries) lock() func() {
	if q.inTx {
		return func() {}
	}
	q.s.mu.Lock()
	return q.s.mu.Unlock
}

func stamp(t time.Time) time.Time {
	if t.IsZero() {
		return time.Now()
	}
	return t
}

func (q *queries) CreateUser(_ context.Context, u *model.User) (int64, error) {
	defer q.lock()()
	st := q.s.st

	for _, existing := range st.users {
		if existing.Login == u.Login {
			return 0, fmt.Errorf("%w: %s", repository.ErrUserExists, u.Login)
		}
		if existing.ReferralCode == u.ReferralCode {
			return 0, repository.ErrReferralCodeTaken
		}
	}

	st.userSeq++
	created := *u
	created.ID = st.userSeq
	created.VipTier = model.TierNone
	created.CreatedAt = stamp(u.CreatedAt)
	st.users[created.ID] = created
	return created.ID, nil
}

func (q *queries) getUser(id int64) (*model.User, error) {
	u, ok := q.s.st.users[id]
	if !ok {
		return nil, repository.ErrUserNotFound
	}
	return &u, nil
}

func (q *queries) GetUser(_ context.Context, id int64) (*model.User, error) {
	defer q.lock()()
	return q.getUser(id)
}

func (q *queries) GetUserByLogin(_ context.Context, login string) (*model.User, error) {
	defer q.lock()()
	for _, u := range q.s.st.users {
		if u.Login == login {
			return &u, nil
		}
	}
	return nil, repository.ErrUserNotFound
}

func (q *queries) GetUserByReferralCode(_ context.Context, code string) (*model.User, error) {
	defer q.lock()()
	for _, u := range q.s.st.users {
		if u.ReferralCode == code {
			return &u, nil
		}
	}
	return nil, repository.ErrUserNotFound
}

// LockUser внутри транзакции эквивалентен GetUser: транзакции и так выполняются по одной.
func (q *queries) LockUser(_ context.Context, id int64) (*model.User, error) {
	defer q.lock()()
	return q.getUser(id)
}

func (q *queries) UpdateUserPoints(_ context.Context, id, balance, earned, spent int64) error {
	defer q.lock()()
	u, ok := q.s.st.users[id]
	if !ok {
		return repository.ErrUserNotFound
	}
	if balance < 0 {
		return fmt.Errorf("point_balance check violated: %w", model.ErrConsistencyViolation)
	}
	u.PointBalance = balance
	u.LifetimePointsEarned = earned
	u.LifetimePointsSpent = spent
	q.s.st.users[id] = u
	return nil
}

func (q *queries) SetUserVip(_ context.Context, id, spendCents int64, tier model.Tier) error {
	defer q.lock()()
	u, ok := q.s.st.users[id]
	if !ok {
		return repository.ErrUserNotFound
	}
	u.LifetimeSpendCents = spendCents
	u.VipTier = tier
	q.s.st.users[id] = u
	return nil
}

func (q *queries) SetReferredBy(_ context.Context, id, referrerID int64) error {
	defer q.lock()()
	u, ok := q.s.st.users[id]
	if !ok {
		return repository.ErrUserNotFound
	}
	if u.ReferredBy != nil {
		return model.ErrAlreadyReferred
	}
	ref := referrerID
	u.ReferredBy = &ref
	q.s.st.users[id] = u
	return nil
}

func (q *queries) InsertTransaction(_ context.Context, t *model.LedgerTransaction) (int64, error) {
	defer q.lock()()
	st := q.s.st

	st.txnSeq++
	rec := *t
	rec.ID = st.txnSeq
	rec.CreatedAt = stamp(t.CreatedAt)
	st.txns[rec.UserID] = append(st.txns[rec.UserID], rec)
	return rec.ID, nil
}

func (q *queries) LastTransaction(_ context.Context, userID int64) (*model.LedgerTransaction, error) {
	defer q.lock()()
	list := q.s.st.txns[userID]
	if len(list) == 0 {
		return nil, nil
	}
	t := list[len(list)-1]
	return &t, nil
}

func (q *queries) SumTransactions(_ context.Context, userID int64) (int64, error) {
	defer q.lock()()
	var sum int64
	for _, t := range q.s.st.txns[userID] {
		sum += t.Amount
	}
	return sum, nil
}

func (q *queries) ListTransactions(_ context.Context, userID int64, limit, offset int) ([]model.LedgerTransaction, error) {
	defer q.lock()()
	list := q.s.st.txns[userID]

	var res []model.LedgerTransaction
	for i := len(list) - 1 - offset; i >= 0 && len(res) < limit; i-- {
		res = append(res, list[i])
	}
	return res, nil
}

func (q *queries) GetStreak(_ context.Context, userID int64) (*model.StreakState, error) {
	defer q.lock()()
	st, ok := q.s.st.streaks[userID]
	if !ok {
		return nil, nil
	}
	return &st, nil
}

func (q *queries) SaveStreak(_ context.Context, st *model.StreakState) error {
	defer q.lock()()
	q.s.st.streaks[st.UserID] = *st
	return nil
}

func (q *queries) GetVip(_ context.Context, userID int64) (*model.VipState, error) {
	defer q.lock()()
	st, ok := q.s.st.vips[userID]
	if !ok {
		return nil, nil
	}
	return &st, nil
}

func (q *queries) SaveVip(_ context.Context, st *model.VipState) error {
	defer q.lock()()
	q.s.st.vips[st.UserID] = *st
	return nil
}

func (q *queries) GetReferralByReferred(_ context.Context, referredID int64) (*model.Referral, error) {
	defer q.lock()()
	r, ok := q.s.st.referrals[referredID]
	if !ok {
		return nil, nil
	}
	return &r, nil
}

func (q *queries) InsertReferral(_ context.Context, r *model.Referral) (int64, error) {
	defer q.lock()()
	st := q.s.st
	if _, ok := st.referrals[r.ReferredID]; ok {
		return 0, model.ErrAlreadyReferred
	}

	st.referralSeq++
	rec := *r
	rec.ID = st.referralSeq
	rec.CreatedAt = stamp(r.CreatedAt)
	st.referrals[rec.ReferredID] = rec
	return rec.ID, nil
}

func (q *queries) SaveReferral(_ context.Context, r *model.Referral) error {
	defer q.lock()()
	if _, ok := q.s.st.referrals[r.ReferredID]; !ok {
		return fmt.Errorf("referral: %w", model.ErrNotFound)
	}
	q.s.st.referrals[r.ReferredID] = *r
	return nil
}

func (q *queries) aggregate() map[int64]*model.ReferrerStats {
	st := q.s.st
	res := make(map[int64]*model.ReferrerStats)
	for _, r := range st.referrals {
		s, ok := res[r.ReferrerID]
		if !ok {
			s = &model.ReferrerStats{UserID: r.ReferrerID, Login: st.users[r.ReferrerID].Login}
			res[r.ReferrerID] = s
		}
		s.Invited++
		if r.FirstPurchaseMade {
			s.Active++
		}
		s.BonusesEarned += r.BonusesPaid
	}
	return res
}

func (q *queries) ReferrerStats(_ context.Context, referrerID int64) (model.ReferrerStats, error) {
	defer q.lock()()
	u, ok := q.s.st.users[referrerID]
	if !ok {
		return model.ReferrerStats{}, repository.ErrUserNotFound
	}
	if s, ok := q.aggregate()[referrerID]; ok {
		return *s, nil
	}
	return model.ReferrerStats{UserID: u.ID, Login: u.Login}, nil
}

func (q *queries) Leaderboard(_ context.Context, limit int) ([]model.ReferrerStats, error) {
	defer q.lock()()

	res := make([]model.ReferrerStats, 0)
	for _, s := range q.aggregate() {
		res = append(res, *s)
	}
	sort.Slice(res, func(i, j int) bool {
		if res[i].Invited != res[j].Invited {
			return res[i].Invited > res[j].Invited
		}
		if res[i].BonusesEarned != res[j].BonusesEarned {
			return res[i].BonusesEarned > res[j].BonusesEarned
		}
		return res[i].UserID < res[j].UserID
	})
	if len(res) > limit {
		res = res[:limit]
	}
	return res, nil
}

func (q *queries) GetPromo(_ context.Context, code string) (*model.PromoCode, error) {
	defer q.lock()()
	p, ok := q.s.st.promos[code]
	if !ok {
		return nil, repository.ErrPromoNotFound
	}
	return &p, nil
}

func (q *queries) CreatePromo(_ context.Context, p *model.PromoCode) error {
	defer q.lock()()
	if _, ok := q.s.st.promos[p.Code]; ok {
		return fmt.Errorf("%w: %s", repository.ErrPromoExists, p.Code)
	}
	rec := *p
	rec.CurrentUses = 0
	rec.CreatedAt = stamp(p.CreatedAt)
	q.s.st.promos[p.Code] = rec
	return nil
}

func (q *queries) ListPromos(_ context.Context) ([]model.PromoCode, error) {
	defer q.lock()()
	res := slices.Collect(maps.Values(q.s.st.promos))
	sort.Slice(res, func(i, j int) bool {
		if !res[i].CreatedAt.Equal(res[j].CreatedAt) {
			return res[i].CreatedAt.After(res[j].CreatedAt)
		}
		return res[i].Code < res[j].Code
	})
	return res, nil
}

func (q *queries) SetPromoActive(_ context.Context, code string, active bool) error {
	defer q.lock()()
	p, ok := q.s.st.promos[code]
	if !ok {
		return repository.ErrPromoNotFound
	}
	p.IsActive = active
	q.s.st.promos[code] = p
	return nil
}

func (q *queries) IncrementPromoUses(_ context.Context, code string) error {
	defer q.lock()()
	p, ok := q.s.st.promos[code]
	if !ok {
		return repository.ErrPromoNotFound
	}
	if p.MaxUses != nil && p.CurrentUses >= *p.MaxUses {
		return repository.ErrPromoLimitReached
	}
	p.CurrentUses++
	q.s.st.promos[code] = p
	return nil
}

func (q *queries) GetProducts(_ context.Context, ids []int64) (map[int64]model.Product, error) {
	defer q.lock()()
	res := make(map[int64]model.Product, len(ids))
	for _, id := range ids {
		if p, ok := q.s.st.products[id]; ok {
			res[id] = p
		}
	}
	return res, nil
}

func (q *queries) UpsertProduct(_ context.Context, p *model.Product) error {
	defer q.lock()()
	q.s.st.products[p.ID] = *p
	return nil
}

func copyOrder(o model.Order) *model.Order {
	o.Items = slices.Clone(o.Items)
	return &o
}

func (q *queries) InsertOrder(_ context.Context, o *model.Order) error {
	defer q.lock()()
	st := q.s.st
	if _, ok := st.orders[o.ID]; ok {
		return fmt.Errorf("insert order %s: duplicate id", o.ID)
	}
	if o.ExternalPaymentID != nil {
		for _, existing := range st.orders {
			if existing.ExternalPaymentID != nil && *existing.ExternalPaymentID == *o.ExternalPaymentID {
				return fmt.Errorf("insert order %s: duplicate external payment id", o.ID)
			}
		}
	}
	rec := *copyOrder(*o)
	rec.CreatedAt = stamp(o.CreatedAt)
	st.orders[o.ID] = rec
	return nil
}

func (q *queries) getOrder(id string) (*model.Order, error) {
	o, ok := q.s.st.orders[id]
	if !ok {
		return nil, repository.ErrOrderNotFound
	}
	return copyOrder(o), nil
}

func (q *queries) GetOrder(_ context.Context, id string) (*model.Order, error) {
	defer q.lock()()
	return q.getOrder(id)
}

func (q *queries) LockOrder(_ context.Context, id string) (*model.Order, error) {
	defer q.lock()()
	return q.getOrder(id)
}

func (q *queries) GetOrderByExternalID(_ context.Context, externalID string) (*model.Order, error) {
	defer q.lock()()
	for _, o := range q.s.st.orders {
		if o.ExternalPaymentID != nil && *o.ExternalPaymentID == externalID {
			return copyOrder(o), nil
		}
	}
	return nil, repository.ErrOrderNotFound
}

func (q *queries) transition(id string, to model.OrderStatus, at time.Time) error {
	o, ok := q.s.st.orders[id]
	if !ok {
		return repository.ErrOrderNotFound
	}
	if o.Status != model.OrderStatusPending {
		return repository.ErrOrderNotActive
	}
	o.Status = to
	ts := at
	if to == model.OrderStatusCompleted {
		o.CompletedAt = &ts
	} else {
		o.CancelledAt = &ts
	}
	q.s.st.orders[id] = o
	return nil
}

func (q *queries) MarkOrderCompleted(_ context.Context, id string, at time.Time) error {
	defer q.lock()()
	return q.transition(id, model.OrderStatusCompleted, at)
}

func (q *queries) MarkOrderCancelled(_ context.Context, id string, at time.Time) error {
	defer q.lock()()
	return q.transition(id, model.OrderStatusCancelled, at)
}

func (q *queries) ListOrders(_ context.Context, userID int64) ([]model.Order, error) {
	defer q.lock()()
	var res []model.Order
	for _, o := range q.s.st.orders {
		if o.UserID == userID {
			res = append(res, *copyOrder(o))
		}
	}
	sort.Slice(res, func(i, j int) bool {
		if !res[i].CreatedAt.Equal(res[j].CreatedAt) {
			return res[i].CreatedAt.After(res[j].CreatedAt)
		}
		return res[i].ID < res[j].ID
	})
	return res, nil
}

func (q *queries) ListStalePendingOrders(_ context.Context, before time.Time, limit int) ([]model.Order, error) {
	defer q.lock()()
	var res []model.Order
	for _, o := range q.s.st.orders {
		if o.Status == model.OrderStatusPending && o.CreatedAt.Before(before) {
			res = append(res, *copyOrder(o))
		}
	}
	sort.Slice(res, func(i, j int) bool { return res[i].CreatedAt.Before(res[j].CreatedAt) })
	if len(res) > limit {
		res = res[:limit]
	}
	return res, nil
}

func (q *queries) InsertAccessGrant(_ context.Context, g model.AccessGrant) (bool, error) {
	defer q.lock()()
	key := grantKey{userID: g.UserID, productID: g.ProductID}
	if _, ok := q.s.st.grants[key]; ok {
		return false, nil
	}
	g.GrantedAt = stamp(g.GrantedAt)
	q.s.st.grants[key] = g
	return true, nil
}

func (q *queries) ListAccessGrants(_ context.Context, userID int64) ([]model.AccessGrant, error) {
	defer q.lock()()
	var res []model.AccessGrant
	for key, g := range q.s.st.grants {
		if key.userID == userID {
			res = append(res, g)
		}
	}
	sort.Slice(res, func(i, j int) bool {
		if !res[i].GrantedAt.Equal(res[j].GrantedAt) {
			return res[i].GrantedAt.After(res[j].GrantedAt)
		}
		return res[i].ProductID < res[j].ProductID
	})
	return res, nil
}

func (q *queries) HasAccess(_ context.Context, userID, productID int64) (bool, error) {
	defer q.lock()()
	_, ok := q.s.st.grants[grantKey{userID: userID, productID: productID}]
	return ok, nil
}

func (q *queries) InsertPaymentEvent(_ context.Context, e *model.PaymentEvent) (int64, error) {
	if e.Payload == nil {
		return 0, errPaymentPayloadRequired
	}
	defer q.lock()()
	st := q.s.st
	rec := *e
	rec.ID = int64(len(st.events) + 1)
	rec.ReceivedAt = stamp(e.ReceivedAt)
	st.events = append(st.events, rec)
	return rec.ID, nil
}

// PaymentEvents возвращает копию сохранённых уведомлений шлюза.
func (s *Store) PaymentEvents() []model.PaymentEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.st.events)
}
