package services

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"tueje/internal/cache"
	"tueje/internal/core"
	"tueje/internal/events"
	"tueje/internal/identity"
	"tueje/internal/stats"
	"tueje/internal/store"
)

// TransactionInput is the user-supplied part of a transaction.
type TransactionInput struct {
	Type        core.TransactionKind `json:"type"`
	Category    core.Category        `json:"category"`
	Amount      decimal.Decimal      `json:"amount"`
	Description string               `json:"description"`
	Date        core.Date            `json:"date"`
}

// FinanceService orchestrates transactions and their aggregates.
type FinanceService struct {
	store     *store.Store
	users     identity.Resolver
	overviews cache.Cache[core.FinanceOverview]
	loc       *time.Location
	now       func() time.Time

	// gens counts invalidations per user. An overview computed before an
	// invalidation is returned but not cached.
	mu   sync.Mutex
	gens map[string]uint64
}

func NewFinanceService(s *store.Store, users identity.Resolver, overviews cache.Cache[core.FinanceOverview], loc *time.Location) *FinanceService {
	if loc == nil {
		loc = time.UTC
	}
	return &FinanceService{
		store:     s,
		users:     users,
		overviews: overviews,
		loc:       loc,
		now:       time.Now,
		gens:      make(map[string]uint64),
	}
}

func (s *FinanceService) build(in TransactionInput) core.Transaction {
	date := in.Date
	if date.IsZero() {
		date = core.DateOf(s.now().In(s.loc))
	}
	return core.Transaction{
		Type:        in.Type,
		Category:    in.Category,
		Amount:      in.Amount.Round(2),
		Description: strings.TrimSpace(in.Description),
		Date:        date,
	}
}

func (s *FinanceService) Create(ctx context.Context, in TransactionInput) (core.Transaction, error) {
	t := s.build(in)
	t.ID = uuid.NewString()
	t.CreatedAt = s.now().UTC()
	if err := t.Validate(); err != nil {
		return core.Transaction{}, err
	}
	saved, err := s.store.Transactions.Save(ctx, t)
	if err != nil {
		return core.Transaction{}, fmt.Errorf("save transaction: %w", err)
	}
	return saved, nil
}

// Update replaces an existing transaction of the current user.
func (s *FinanceService) Update(ctx context.Context, id string, in TransactionInput) (core.Transaction, error) {
	existing, err := s.store.Transactions.Get(ctx, id)
	if err != nil {
		return core.Transaction{}, err
	}
	t := s.build(in)
	t.ID = existing.ID
	t.CreatedAt = existing.CreatedAt
	if err := t.Validate(); err != nil {
		return core.Transaction{}, err
	}
	return s.store.Transactions.Update(ctx, t)
}

func (s *FinanceService) Delete(ctx context.Context, id string) error {
	found, err := s.store.Transactions.Delete(ctx, id)
	if err != nil {
		return fmt.Errorf("delete transaction: %w", err)
	}
	if !found {
		return store.ErrNotFound
	}
	return nil
}

func (s *FinanceService) List(ctx context.Context) ([]core.Transaction, error) {
	return s.store.Transactions.List(ctx)
}

// Overview returns every aggregate for the window, cached per user.
func (s *FinanceService) Overview(ctx context.Context, w stats.Window) (core.FinanceOverview, error) {
	user, ok := s.users.CurrentUser(ctx)
	if !ok {
		return stats.Overview(nil, s.now(), w), nil
	}
	key := overviewKey(user.ID, w)
	if s.overviews != nil {
		if o, ok := s.overviews.Get(key); ok {
			return o, nil
		}
	}
	gen := s.generation(user.ID)

	txs, err := s.store.Transactions.List(ctx)
	if err != nil {
		return core.FinanceOverview{}, err
	}
	o := stats.Overview(txs, s.now(), w)
	if s.overviews != nil {
		s.mu.Lock()
		if s.gens[user.ID] == gen {
			s.overviews.Set(key, o)
		}
		s.mu.Unlock()
	}
	return o, nil
}

// Invalidate drops the cached overviews of the user an event is about.
func (s *FinanceService) Invalidate(_ context.Context, evt events.Event) {
	if s.overviews == nil || evt.UserID == "" {
		return
	}
	if evt.Reason != "" && evt.Reason != events.ReasonTransactions {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.gens[evt.UserID]++
	s.overviews.DeletePrefix("finance:" + evt.UserID + ":")
}

func (s *FinanceService) generation(userID string) uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.gens[userID]
}

func overviewKey(userID string, w stats.Window) string {
	return "finance:" + userID + ":" + string(w)
}
