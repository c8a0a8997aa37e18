package migration

import (
	"context"
	"fmt"
	"iter"
	"strings"
	"sync"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/tphakala/certmigrate/internal/conf"
	"github.com/tphakala/certmigrate/internal/datastore/entities"
	"github.com/tphakala/certmigrate/internal/datastore/legacy"
	"github.com/tphakala/certmigrate/internal/datastore/repository"
	"github.com/tphakala/certmigrate/internal/errors"
	"github.com/tphakala/certmigrate/internal/logger"
	"github.com/tphakala/certmigrate/internal/mapping"
	"github.com/tphakala/certmigrate/internal/resolver"
)

// userMigrator migrates dealers. A dealer becomes the legacy users of its
// company, the first one being the parent account, or a single account built
// from the dealer row when no unmigrated company user exists.
type userMigrator struct {
	base
	// One dealer is written at a time: a legacy user can match several dealer
	// companies and usernames are allocated by query.
	writeMu sync.Mutex
}

func (m *userMigrator) Candidates(ctx context.Context) iter.Seq2[Record, error] {
	return func(yield func(Record, error) bool) {
		for d, err := range m.env.Reader.Dealers(ctx) {
			if err != nil {
				yield(Record{}, err)
				return
			}
			if ctx.Err() != nil {
				return
			}
			if _, done := m.store.LookupByAuxiliary("dealer_id", d.ID); done {
				continue
			}
			if !yield(Record{SourceID: mapping.ID(d.ID), Label: d.Company, Data: d}, nil) {
				return
			}
		}
	}
}

func (m *userMigrator) Migrate(ctx context.Context, rec Record) Outcome {
	t := m.begin(rec)
	dealer, ok := rec.Data.(legacy.Dealer)
	if !ok {
		return t.fail(WriteError(ReasonSourceRead, fmt.Errorf("unexpected record data %T", rec.Data)))
	}

	m.writeMu.Lock()
	defer m.writeMu.Unlock()

	if _, done := m.store.LookupByAuxiliary("dealer_id", dealer.ID); done {
		return t.alreadyMigrated()
	}

	users, err := m.env.Reader.UsersByCompany(ctx, strings.TrimSpace(dealer.Company))
	if err != nil {
		return t.fail(WriteError(ReasonSourceRead, err))
	}
	pending := make([]legacy.User, 0, len(users))
	for _, u := range users {
		if m.store.Contains(mapping.ID(u.ID)) {
			continue
		}
		if resolver.NormalizeEmail(u.Email) == "" {
			m.log.Warn("legacy user has no email, not migrated",
				logger.Int64("legacy_user_id", u.ID),
				logger.Int64("dealer_id", dealer.ID))
			continue
		}
		pending = append(pending, u)
	}

	t.creating()
	var parent *entities.User
	var entries []mapping.Entry
	err = m.writeThrough(ctx, func(tx *repository.Repository) ([]mapping.Entry, error) {
		role, err := tx.GetOrCreateRole(ctx, m.dealerRole(), entities.GuardWeb)
		if err != nil {
			return nil, err
		}

		claimed := make(map[int64]bool)
		for _, u := range pending {
			// An account already taken by another legacy user is left untouched
			existing, err := m.takenAccount(ctx, tx, u.Email, claimed)
			if err != nil {
				return nil, err
			}
			if existing != 0 {
				m.log.Warn("legacy user shares an email with a migrated user, reusing it",
					logger.Int64("legacy_user_id", u.ID),
					logger.Int64("user_id", existing))
				continue
			}
			user, err := m.upsertLegacyUser(ctx, tx, u, parent)
			if err != nil {
				return nil, err
			}
			claimed[user.ID] = true
			entries = append(entries, mapping.Entry{
				DestinationID: mapping.ID(user.ID),
				SourceID:      mapping.ID(u.ID),
				Aux:           map[string]any{"old_user_id": u.ID, "dealer_id": dealer.ID},
			})
			if parent == nil {
				parent = user
			}
		}

		if parent == nil {
			user, err := m.createFromDealer(ctx, tx, dealer)
			if err != nil {
				return nil, err
			}
			parent = user
			entries = append(entries, mapping.Entry{
				DestinationID: mapping.ID(user.ID),
				SourceID:      mapping.DerivedDealerPrefix + mapping.ID(dealer.ID),
				Aux:           map[string]any{"old_user_id": 0, "dealer_id": dealer.ID},
			})
		}

		if err := tx.AssignRole(ctx, role.ID, parent.ID); err != nil {
			return nil, err
		}
		return entries, nil
	})
	if err != nil {
		return t.fail(asRecordError(err))
	}

	return t.done(parent.ID, map[string]any{
		"company":  dealer.Company,
		"email":    parent.Email,
		"username": stringValue(parent.Username),
		"users":    len(entries),
	})
}

// takenAccount returns the id of the destination user with email when it is
// already mapped to a legacy user or claimed earlier in this dealer, else 0.
func (m *userMigrator) takenAccount(ctx context.Context, tx *repository.Repository, email string, claimed map[int64]bool) (int64, error) {
	user, err := tx.FindUserByEmail(ctx, resolver.NormalizeEmail(email))
	switch {
	case errors.Is(err, repository.ErrUserNotFound):
		return 0, nil
	case err != nil:
		return 0, err
	case claimed[user.ID] || m.destinationMapped(user.ID):
		return user.ID, nil
	}
	return 0, nil
}

// upsertLegacyUser writes one company user. Users after the first point at
// the parent account.
func (m *userMigrator) upsertLegacyUser(ctx context.Context, tx *repository.Repository, u legacy.User, parent *entities.User) (*entities.User, error) {
	email := resolver.NormalizeEmail(u.Email)
	status := entities.UserStatusBlocked
	if u.Activstate == 1 {
		status = entities.UserStatusActive
	}
	country := strings.TrimSpace(u.Country)
	if country == "" {
		country = m.env.country()
	}
	name := strings.TrimSpace(u.FullName)
	if name == "" {
		name = u.Username
	}

	user := &entities.User{
		Name:     name,
		Email:    email,
		Company:  u.Company,
		Status:   status,
		Phone:    u.Mobile,
		Mobile:   u.Mobile,
		Timezone: "UTC",
		Country:  country,
	}
	if parent != nil {
		user.ParentID = &parent.ID
	}
	if !u.AddDate.IsZero() {
		user.CreatedAt = u.AddDate
	}
	if err := m.prepareNewUser(ctx, tx, user, fmt.Sprintf("temp_%d_%d", u.ID, m.env.now().Unix())); err != nil {
		return nil, err
	}
	if _, err := tx.UpsertUser(ctx, user); err != nil {
		return nil, err
	}
	return user, nil
}

// createFromDealer builds the dealer account from the dealer row itself
func (m *userMigrator) createFromDealer(ctx context.Context, tx *repository.Repository, d legacy.Dealer) (*entities.User, error) {
	email := resolver.NormalizeEmail(d.Email)
	if email == "" {
		return nil, WriteError(ReasonMissingEmail, fmt.Errorf("dealer %d has no email and no company users", d.ID))
	}
	user := &entities.User{
		Name:     d.Company,
		Email:    email,
		Company:  d.Company,
		Status:   entities.UserStatusActive,
		Phone:    d.Phone,
		Mobile:   d.Phone,
		Timezone: "UTC",
		Country:  m.env.country(),
	}
	if err := m.prepareNewUser(ctx, tx, user, fmt.Sprintf("temp_%d_%d", d.ID, m.env.now().Unix())); err != nil {
		return nil, err
	}
	if _, err := tx.UpsertUser(ctx, user); err != nil {
		return nil, err
	}
	return user, nil
}

// prepareNewUser sets the credentials a new account needs. They are ignored by
// the upsert when the email already exists.
func (m *userMigrator) prepareNewUser(ctx context.Context, tx *repository.Repository, user *entities.User, tempPassword string) error {
	hash, err := bcrypt.GenerateFromPassword([]byte(tempPassword), bcrypt.DefaultCost)
	if err != nil {
		return errors.New(err).
			Component("migration").
			Category(errors.CategorySystem).
			Context("operation", "hash_temporary_password").
			Build()
	}
	username, err := uniqueUsername(ctx, tx, user.Email)
	if err != nil {
		return err
	}
	verified := m.env.now().UTC().Truncate(time.Second)
	user.Password = string(hash)
	user.Username = &username
	user.EmailVerifiedAt = &verified
	return nil
}

func (m *userMigrator) dealerRole() string {
	if m.env.Settings.DealerRole != "" {
		return m.env.Settings.DealerRole
	}
	return conf.DefaultDealerRole
}

func (m *userMigrator) destinationMapped(id int64) bool {
	_, ok := m.store.LookupByDestination(mapping.ID(id))
	return ok
}

func stringValue(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

// asRecordError keeps a record error raised inside a write and classifies
// anything else as a write error
func asRecordError(err error) *RecordError {
	var re *RecordError
	if errors.As(err, &re) {
		return re
	}
	return WriteError("", err)
}
