package identity

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"tueje/internal/events"
	"tueje/internal/kv"
	applog "tueje/internal/log"
)

// Service owns the credential table and the per-session current-user snapshot.
type Service struct {
	store  kv.Store
	hasher *Hasher
	pub    events.Publisher
	now    func() time.Time
}

func NewService(store kv.Store, hasher *Hasher, pub events.Publisher) *Service {
	if hasher == nil {
		hasher = NewHasher(DefaultHashParams())
	}
	if pub == nil {
		pub = events.Discard{}
	}
	return &Service{store: store, hasher: hasher, pub: pub, now: time.Now}
}

var _ Resolver = (*Service)(nil)

// Register creates a local account. It does not sign the user in.
func (s *Service) Register(ctx context.Context, email, password, name string) (User, error) {
	email = normalizeEmail(email)
	name = strings.TrimSpace(name)
	if email == "" || password == "" || name == "" {
		return User{}, ErrMissingFields
	}
	if len(password) < minPasswordLen {
		return User{}, ErrPasswordTooShort
	}

	hash, err := s.hasher.Hash(password)
	if err != nil {
		return User{}, fmt.Errorf("hash password: %w", err)
	}
	user := User{
		ID:           "user_" + uuid.NewString(),
		Email:        email,
		PasswordHash: hash,
		Name:         name,
		CreatedAt:    s.now().UTC(),
	}

	err = s.store.Update(ctx, func(tx kv.Tx) error {
		users, err := loadUsers(ctx, tx)
		if err != nil {
			return err
		}
		if _, ok := findByEmail(users, email); ok {
			return ErrEmailTaken
		}
		return kv.PutJSON(tx, UsersKey, append(users, user))
	})
	if err != nil {
		return User{}, err
	}

	slog.InfoContext(ctx, "User registered", applog.FieldComponent, applog.ComponentIdentity, applog.FieldUserID, user.ID)
	return user, nil
}

// Login checks the credentials and makes the user current for sid.
func (s *Service) Login(ctx context.Context, sid, email, password string) (Snapshot, error) {
	if sid == "" {
		return Snapshot{}, ErrInvalidSession
	}
	email = normalizeEmail(email)
	if email == "" || password == "" {
		return Snapshot{}, ErrMissingFields
	}

	var users []User
	err := s.store.View(ctx, func(r kv.Reader) error {
		var err error
		users, err = loadUsers(ctx, r)
		return err
	})
	if err != nil {
		return Snapshot{}, err
	}

	user, ok := findByEmail(users, email)
	if !ok {
		return Snapshot{}, ErrInvalidCredentials
	}
	match, err := s.hasher.Verify(password, user.PasswordHash)
	if err != nil {
		slog.WarnContext(ctx, "Stored password hash unreadable", applog.FieldComponent, applog.ComponentIdentity, applog.FieldUserID, user.ID, applog.FieldError, err)
		return Snapshot{}, ErrInvalidCredentials
	}
	if !match {
		return Snapshot{}, ErrInvalidCredentials
	}

	snap := user.Snapshot()
	if err := s.store.Update(ctx, func(tx kv.Tx) error {
		return kv.PutJSON(tx, currentUserKey(sid), snap)
	}); err != nil {
		return Snapshot{}, err
	}

	slog.InfoContext(ctx, "User signed in",
		applog.FieldComponent, applog.ComponentIdentity,
		applog.FieldOperation, applog.OpLogin,
		applog.FieldUserID, snap.ID)
	s.pub.Publish(ctx, events.NewEvent(snap.ID, events.ReasonLogin))
	return snap, nil
}

// Logout forgets the current user of sid.
func (s *Service) Logout(ctx context.Context, sid string) error {
	if sid == "" {
		return nil
	}
	prev, signedIn := s.Current(ctx, sid)
	if err := s.store.Update(ctx, func(tx kv.Tx) error {
		return tx.Delete(currentUserKey(sid))
	}); err != nil {
		return err
	}
	if signedIn {
		slog.InfoContext(ctx, "User signed out",
			applog.FieldComponent, applog.ComponentIdentity,
			applog.FieldOperation, applog.OpLogout,
			applog.FieldUserID, prev.ID)
		s.pub.Publish(ctx, events.NewEvent(prev.ID, events.ReasonLogout))
	}
	return nil
}

// Current returns the user bound to sid. Missing or unreadable snapshots
// mean nobody is signed in.
func (s *Service) Current(ctx context.Context, sid string) (Snapshot, bool) {
	if sid == "" {
		return Snapshot{}, false
	}
	var snap Snapshot
	var found bool
	err := s.store.View(ctx, func(r kv.Reader) error {
		var err error
		found, err = kv.GetJSON(r, currentUserKey(sid), &snap)
		return err
	})
	if err != nil {
		slog.DebugContext(ctx, "Current user snapshot unreadable", applog.FieldComponent, applog.ComponentIdentity, applog.FieldError, err)
		return Snapshot{}, false
	}
	if !found || snap.ID == "" {
		return Snapshot{}, false
	}
	return snap, true
}

// CurrentUser resolves the session bound to ctx.
func (s *Service) CurrentUser(ctx context.Context) (Snapshot, bool) {
	sid, ok := SessionFrom(ctx)
	if !ok {
		return Snapshot{}, false
	}
	return s.Current(ctx, sid)
}

// SyncFederated materializes the federated user as a local account, refreshes
// its name and image when they changed upstream, and makes it current for sid.
func (s *Service) SyncFederated(ctx context.Context, sid string, p Profile) (Snapshot, error) {
	if sid == "" {
		return Snapshot{}, ErrInvalidSession
	}
	email := normalizeEmail(p.Email)
	if email == "" {
		return Snapshot{}, ErrMissingFields
	}
	name := strings.TrimSpace(p.Name)
	if name == "" {
		name = email
	}

	var snap Snapshot
	err := s.store.Update(ctx, func(tx kv.Tx) error {
		users, err := loadUsers(ctx, tx)
		if err != nil {
			return err
		}

		i, ok := indexByEmail(users, email)
		if !ok {
			users = append(users, User{
				ID:           "sso_" + uuid.NewString(),
				Email:        email,
				PasswordHash: unusablePassword,
				Name:         name,
				Image:        p.Image,
				CreatedAt:    s.now().UTC(),
			})
			i = len(users) - 1
		} else {
			if users[i].Name != name {
				users[i].Name = name
			}
			if p.Image != "" {
				users[i].Image = p.Image
			}
		}

		if err := kv.PutJSON(tx, UsersKey, users); err != nil {
			return err
		}
		snap = users[i].Snapshot()
		return kv.PutJSON(tx, currentUserKey(sid), snap)
	})
	if err != nil {
		return Snapshot{}, err
	}

	s.pub.Publish(ctx, events.NewEvent(snap.ID, events.ReasonFederated))
	return snap, nil
}

// loadUsers reads the credential table. An unreadable table is an error
// here, unlike record collections, so a bad write never wipes accounts.
func loadUsers(ctx context.Context, r kv.Reader) ([]User, error) {
	var users []User
	if _, err := kv.GetJSON(r, UsersKey, &users); err != nil {
		slog.ErrorContext(ctx, "Credential table unreadable", applog.FieldComponent, applog.ComponentIdentity, applog.FieldError, err)
		return nil, errors.Join(errors.New("credential table unreadable"), err)
	}
	return users, nil
}

func indexByEmail(users []User, email string) (int, bool) {
	for i, u := range users {
		if strings.EqualFold(u.Email, email) {
			return i, true
		}
	}
	return -1, false
}

func findByEmail(users []User, email string) (User, bool) {
	if i, ok := indexByEmail(users, email); ok {
		return users[i], true
	}
	return User{}, false
}
