package store

import (
	"context"

	"tueje/internal/core"
	"tueje/internal/events"
	"tueje/internal/identity"
	"tueje/internal/kv"
	applog "tueje/internal/log"
)

// Store bundles the three record collections of the application.
type Store struct {
	Habits       *Collection[core.Habit]
	Logs         *Collection[core.HabitLog]
	Transactions *Collection[core.Transaction]

	kv    kv.Store
	users identity.Resolver
	pub   events.Publisher
}

func New(backend kv.Store, users identity.Resolver, pub events.Publisher) *Store {
	if pub == nil {
		pub = events.Discard{}
	}
	return &Store{
		Habits:       NewCollection[core.Habit](HabitsKey, events.ReasonHabits, backend, users, pub),
		Logs:         NewCollection[core.HabitLog](HabitLogsKey, events.ReasonHabitLogs, backend, users, pub),
		Transactions: NewCollection[core.Transaction](TransactionsKey, events.ReasonTransactions, backend, users, pub),
		kv:           backend,
		users:        users,
		pub:          pub,
	}
}

// SaveLog keeps at most one log per habit, day and owner.
func (s *Store) SaveLog(ctx context.Context, l core.HabitLog) (core.HabitLog, error) {
	return s.Logs.UpsertByKey(ctx, l, core.LogKey)
}

// DeleteHabit removes the habit and every log of it owned by the current
// user in a single transaction. It reports whether the habit existed.
func (s *Store) DeleteHabit(ctx context.Context, id string) (bool, error) {
	user, ok := s.users.CurrentUser(ctx)
	if !ok {
		return false, nil
	}

	found := false
	err := s.kv.Update(ctx, func(tx kv.Tx) error {
		habits, err := load[core.Habit](tx, HabitsKey)
		if err != nil {
			return err
		}
		keptHabits := removeWhere(habits, func(h core.Habit) bool {
			return h.UserID == user.ID && h.ID == id
		})
		if len(keptHabits) == len(habits) {
			return nil
		}
		found = true

		logs, err := load[core.HabitLog](tx, HabitLogsKey)
		if err != nil {
			return err
		}
		keptLogs := removeWhere(logs, func(l core.HabitLog) bool {
			return l.UserID == user.ID && l.HabitID == id
		})

		if err := kv.PutJSON(tx, HabitsKey, keptHabits); err != nil {
			return err
		}
		return kv.PutJSON(tx, HabitLogsKey, keptLogs)
	})
	if err != nil {
		return false, err
	}
	if found {
		applog.NewStructuredLogger(applog.FromContext(ctx)).
			LogRecordChanged(ctx, applog.OpDelete, user.ID, HabitsKey, id)
		s.pub.Publish(ctx, events.NewEvent(user.ID, events.ReasonHabits))
	}
	return found, nil
}

// LedgerOf returns every transaction owned by userID regardless of the
// session. The export worker uses it, so an unreadable snapshot is an error
// rather than an empty ledger.
func (s *Store) LedgerOf(ctx context.Context, userID string) ([]core.Transaction, error) {
	var all []core.Transaction
	err := s.kv.View(ctx, func(r kv.Reader) error {
		var err error
		all, err = load[core.Transaction](r, TransactionsKey)
		return err
	})
	if err != nil {
		return nil, err
	}
	return owned(all, userID), nil
}
