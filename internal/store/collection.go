// Package store partitions whole-collection snapshots by the current user.
//
// Every collection lives under one key holding the records of all users.
// Reads filter by the resolved user; writes stamp the owner and leave other
// users' records untouched. With no resolved user, reads are empty and
// writes do nothing. A snapshot that fails to decode reads as empty but
// refuses writes, so other users' records are never overwritten.
package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"tueje/internal/events"
	"tueje/internal/identity"
	"tueje/internal/kv"
	applog "tueje/internal/log"
)

// Collection keys.
const (
	HabitsKey       = "tueje_habits"
	HabitLogsKey    = "tueje_habit_logs"
	TransactionsKey = "tueje_transactions"
)

var (
	ErrNotFound = errors.New("record not found")
	// ErrUnreadable marks a stored snapshot that no longer decodes.
	ErrUnreadable = errors.New("collection unreadable")
)

// Record is implemented by every stored entity.
type Record[T any] interface {
	RecordID() string
	RecordOwner() string
	WithOwner(userID string) T
}

// Collection is a per-user view of the records stored under one key.
type Collection[T Record[T]] struct {
	key    string
	reason string
	kv     kv.Store
	users  identity.Resolver
	pub    events.Publisher
}

func NewCollection[T Record[T]](key, reason string, store kv.Store, users identity.Resolver, pub events.Publisher) *Collection[T] {
	if pub == nil {
		pub = events.Discard{}
	}
	return &Collection[T]{key: key, reason: reason, kv: store, users: users, pub: pub}
}

func (c *Collection[T]) Key() string { return c.key }

// List returns the current user's records in stored order.
func (c *Collection[T]) List(ctx context.Context) ([]T, error) {
	user, ok := c.users.CurrentUser(ctx)
	if !ok {
		return []T{}, nil
	}
	all, err := view[T](ctx, c.kv, c.key)
	if err != nil {
		return nil, err
	}
	return owned(all, user.ID), nil
}

// Get returns one of the current user's records.
func (c *Collection[T]) Get(ctx context.Context, id string) (T, error) {
	var zero T
	items, err := c.List(ctx)
	if err != nil {
		return zero, err
	}
	for _, it := range items {
		if it.RecordID() == id {
			return it, nil
		}
	}
	return zero, ErrNotFound
}

// Save stamps the owner and upserts by id within that owner. The saved
// record moves to the front.
func (c *Collection[T]) Save(ctx context.Context, item T) (T, error) {
	user, ok := c.users.CurrentUser(ctx)
	if !ok {
		return item, nil
	}
	item = item.WithOwner(user.ID)
	err := c.mutate(ctx, applog.OpCreate, user.ID, item.RecordID(), func(all []T) ([]T, bool) {
		rest := removeWhere(all, func(x T) bool {
			return x.RecordOwner() == user.ID && x.RecordID() == item.RecordID()
		})
		return prepend(item, rest), true
	})
	return item, err
}

// Update replaces a record of the current user in place.
func (c *Collection[T]) Update(ctx context.Context, item T) (T, error) {
	user, ok := c.users.CurrentUser(ctx)
	if !ok {
		return item, nil
	}
	item = item.WithOwner(user.ID)
	found := false
	err := c.mutate(ctx, applog.OpUpdate, user.ID, item.RecordID(), func(all []T) ([]T, bool) {
		for i, x := range all {
			if x.RecordOwner() == user.ID && x.RecordID() == item.RecordID() {
				all[i] = item
				found = true
				return all, true
			}
		}
		return all, false
	})
	if err != nil {
		return item, err
	}
	if !found {
		return item, ErrNotFound
	}
	return item, nil
}

// Delete removes the record with id owned by the current user. Ids owned
// by someone else are left alone.
func (c *Collection[T]) Delete(ctx context.Context, id string) (bool, error) {
	n, err := c.DeleteWhere(ctx, func(x T) bool { return x.RecordID() == id })
	return n > 0, err
}

// UpsertByKey replaces the current user's record sharing key(item), or adds it.
func (c *Collection[T]) UpsertByKey(ctx context.Context, item T, key func(T) string) (T, error) {
	user, ok := c.users.CurrentUser(ctx)
	if !ok {
		return item, nil
	}
	item = item.WithOwner(user.ID)
	want := key(item)
	err := c.mutate(ctx, applog.OpUpsert, user.ID, item.RecordID(), func(all []T) ([]T, bool) {
		rest := removeWhere(all, func(x T) bool {
			return x.RecordOwner() == user.ID && key(x) == want
		})
		return prepend(item, rest), true
	})
	return item, err
}

// DeleteWhere removes the current user's records matching pred.
func (c *Collection[T]) DeleteWhere(ctx context.Context, pred func(T) bool) (int, error) {
	user, ok := c.users.CurrentUser(ctx)
	if !ok {
		return 0, nil
	}
	removed := 0
	err := c.mutate(ctx, applog.OpDelete, user.ID, "", func(all []T) ([]T, bool) {
		kept := removeWhere(all, func(x T) bool {
			return x.RecordOwner() == user.ID && pred(x)
		})
		removed = len(all) - len(kept)
		return kept, removed > 0
	})
	return removed, err
}

// mutate runs a read-modify-write of the whole collection inside one store
// transaction and publishes after commit when fn reports a change.
func (c *Collection[T]) mutate(ctx context.Context, op, userID, recordID string, fn func([]T) ([]T, bool)) error {
	changed := false
	err := c.kv.Update(ctx, func(tx kv.Tx) error {
		all, err := load[T](tx, c.key)
		if err != nil {
			return err
		}
		next, ok := fn(all)
		if !ok {
			return nil
		}
		changed = true
		return kv.PutJSON(tx, c.key, next)
	})
	logger := applog.NewStructuredLogger(applog.FromContext(ctx))
	if err != nil {
		logger.LogError(ctx, "Collection write failed", err, applog.ComponentStore, op,
			applog.NewFields().WithRecord(userID, c.key, recordID))
		return err
	}
	if changed {
		logger.LogRecordChanged(ctx, op, userID, c.key, recordID)
		c.pub.Publish(ctx, events.NewEvent(userID, c.reason))
	}
	return nil
}

// load reads a collection. A missing key is an empty collection; a value
// that does not decode is ErrUnreadable.
func load[T any](r kv.Reader, key string) ([]T, error) {
	var all []T
	found, err := kv.GetJSON(r, key, &all)
	if err != nil && found {
		return nil, fmt.Errorf("%w: %v", ErrUnreadable, err)
	}
	return all, err
}

// view loads a collection for reading. An unreadable snapshot reads as
// empty; backend errors are returned.
func view[T any](ctx context.Context, backend kv.Store, key string) ([]T, error) {
	var all []T
	err := backend.View(ctx, func(r kv.Reader) error {
		var err error
		all, err = load[T](r, key)
		return err
	})
	if errors.Is(err, ErrUnreadable) {
		slog.WarnContext(ctx, "Collection unreadable, treating as empty",
			applog.FieldComponent, applog.ComponentStore, applog.FieldCollection, key, applog.FieldError, err)
		return nil, nil
	}
	return all, err
}

func owned[T Record[T]](all []T, userID string) []T {
	out := make([]T, 0, len(all))
	for _, x := range all {
		if x.RecordOwner() == userID {
			out = append(out, x)
		}
	}
	return out
}

func removeWhere[T any](all []T, drop func(T) bool) []T {
	out := make([]T, 0, len(all))
	for _, x := range all {
		if !drop(x) {
			out = append(out, x)
		}
	}
	return out
}

func prepend[T any](item T, rest []T) []T {
	return append([]T{item}, rest...)
}
