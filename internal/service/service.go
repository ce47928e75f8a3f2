// Package service реализует бизнес-логику сервиса archivemart: оформление заказов с оплатой
// бонусами, завершение оплаты, ежедневные бонусы, реферальную и VIP-программы.
//
// Все изменения баланса выполняются через ledger внутри одной транзакции хранилища.
// События для внешних получателей публикуются только после фиксации транзакции.
package service

import (
	"context"
	"math/rand/v2"
	"time"

	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/mmeshcher/archivemart/internal/gateway"
	"github.com/mmeshcher/archivemart/internal/ledger"
	"github.com/mmeshcher/archivemart/internal/loyalty"
	"github.com/mmeshcher/archivemart/internal/notify"
	"github.com/mmeshcher/archivemart/internal/repository"
)

const (
	defaultPaymentTimeout = time.Hour
	defaultSweepInterval  = 30 * time.Second
	sweepBatchSize        = 100
)

// Repository описывает контракт хранилища, используемый сервисом.
type Repository interface {
	repository.Queries
	WithTx(ctx context.Context, fn func(q repository.Queries) error) error
	Close() error
}

// Gateway описывает платёжный шлюз.
type Gateway interface {
	CreatePayment(ctx context.Context, amountCents int64, currency, reference string) (*gateway.Payment, error)
	GetPaymentStatus(ctx context.Context, externalID string) (*gateway.PaymentStatus, int, time.Duration, error)
}

// Service содержит бизнес-логику сервиса archivemart.
type Service struct {
	repo     Repository
	ledger   *ledger.Ledger
	settings loyalty.Settings
	gateway  Gateway
	events   notify.Publisher
	logger   *zap.Logger

	now  func() time.Time
	roll func() float64

	currency       string
	paymentTimeout time.Duration
	sweepInterval  time.Duration
	devMode        bool
	bcryptCost     int
}

// Option настраивает необязательные зависимости сервиса.
type Option func(*Service)

// WithGateway подключает платёжный шлюз. Без шлюза заказы с ненулевой суммой
// создаются только в режиме разработки.
func WithGateway(g Gateway) Option {
	return func(s *Service) { s.gateway = g }
}

// WithPublisher подключает публикацию событий.
func WithPublisher(p notify.Publisher) Option {
	return func(s *Service) { s.events = p }
}

// WithLogger задаёт логгер.
func WithLogger(l *zap.Logger) Option {
	return func(s *Service) { s.logger = l }
}

// WithClock подменяет источник времени.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// WithRoll подменяет генератор случайного числа из [0,1) для розыгрыша джекпота.
func WithRoll(roll func() float64) Option {
	return func(s *Service) { s.roll = roll }
}

// WithCurrency задаёт валюту платежей.
func WithCurrency(currency string) Option {
	return func(s *Service) { s.currency = currency }
}

// WithPaymentTimeout задаёт срок ожидания оплаты и период проверки зависших заказов.
func WithPaymentTimeout(timeout, interval time.Duration) Option {
	return func(s *Service) {
		if timeout > 0 {
			s.paymentTimeout = timeout
		}
		if interval > 0 {
			s.sweepInterval = interval
		}
	}
}

// WithDevMode включает режим разработки: ручное подтверждение оплаты и заказы без шлюза.
func WithDevMode(on bool) Option {
	return func(s *Service) { s.devMode = on }
}

// NewService создаёт новый сервис с указанным репозиторием и параметрами программы лояльности.
func NewService(repo Repository, settings loyalty.Settings, opts ...Option) *Service {
	s := &Service{
		repo:           repo,
		settings:       settings,
		logger:         zap.NewNop(),
		now:            time.Now,
		roll:           rand.Float64,
		currency:       "USD",
		paymentTimeout: defaultPaymentTimeout,
		sweepInterval:  defaultSweepInterval,
		bcryptCost:     bcrypt.DefaultCost,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.ledger = ledger.New(repo).WithClock(s.now)
	return s
}

// Settings возвращает параметры программы лояльности.
func (s *Service) Settings() loyalty.Settings {
	return s.settings
}

// DevMode сообщает, включён ли режим разработки.
func (s *Service) DevMode() bool {
	return s.devMode
}

// Close закрывает ресурсы сервиса.
func (s *Service) Close() error {
	if s.repo != nil {
		return s.repo.Close()
	}
	return nil
}

func (s *Service) publish(ctx context.Context, events []notify.Event) {
	if len(events) == 0 {
		return
	}
	notify.Dispatch(context.WithoutCancel(ctx), s.events, s.logger, events...)
}
