package migration

import (
	"context"
	"fmt"
	"iter"

	"github.com/tphakala/certmigrate/internal/datastore/entities"
	"github.com/tphakala/certmigrate/internal/datastore/legacy"
	"github.com/tphakala/certmigrate/internal/datastore/repository"
	"github.com/tphakala/certmigrate/internal/errors"
	"github.com/tphakala/certmigrate/internal/mapping"
	"github.com/tphakala/certmigrate/internal/resolver"
)

// salesPersonMigrator turns each distinct sales user into a sales person of
// the dealer that made the user's latest sale
type salesPersonMigrator struct{ base }

func (m *salesPersonMigrator) Candidates(ctx context.Context) iter.Seq2[Record, error] {
	return func(yield func(Record, error) bool) {
		ids, err := m.env.Reader.SalesUserIDs(ctx)
		if err != nil {
			yield(Record{}, err)
			return
		}
		mapped := m.store.SourceIDs()
		for _, id := range ids {
			if ctx.Err() != nil {
				return
			}
			src := mapping.ID(id)
			if _, done := mapped[src]; done {
				continue
			}
			if !yield(Record{SourceID: src, Label: "sales user " + src, Data: id}, nil) {
				return
			}
		}
	}
}

func (m *salesPersonMigrator) Migrate(ctx context.Context, rec Record) Outcome {
	t := m.begin(rec)
	userID, ok := rec.Data.(int64)
	if !ok {
		return t.fail(WriteError(ReasonSourceRead, fmt.Errorf("unexpected record data %T", rec.Data)))
	}

	sales, err := m.env.Reader.SalesByUser(ctx, userID)
	if err != nil {
		return t.fail(WriteError(ReasonSourceRead, err))
	}
	if len(sales) == 0 {
		return t.fail(WriteError(ReasonSourceRead, fmt.Errorf("sales user %d has no sales", userID)))
	}
	first, latest := sales[0], sales[len(sales)-1]

	user := m.env.Resolver.User(userID)
	if !user.OK() {
		return t.block(fromResult(user))
	}
	dealer, res := m.env.Resolver.Dealer(ctx, latest.DealerID)
	if !res.OK() {
		return t.block(fromResult(res))
	}
	profile, err := m.env.Resolver.UserProfile(ctx, user.ID)
	if errors.Is(err, repository.ErrUserNotFound) {
		return t.block(DependencyMissing(string(resolver.RoleUser), resolver.ReasonUserNotFound))
	}
	if err != nil {
		return t.block(DependencyAmbiguous(string(resolver.RoleUser), resolver.ReasonUserNotFound, err))
	}
	email := resolver.NormalizeEmail(profile.Email)
	if email == "" {
		return t.fail(WriteError(ReasonMissingEmail, fmt.Errorf("sales user %d has no email", userID)))
	}

	unlock := m.store.LockKey(mapping.DerivedEmailPrefix + email)
	defer unlock()

	if m.store.Contains(rec.SourceID) {
		return t.alreadyMigrated()
	}

	t.creating()
	person := &entities.SalesPerson{
		Name:   profile.Name,
		Email:  email,
		Phone:  profile.Mobile,
		UserID: dealer.BillingID,
		Status: entities.SalesPersonStatusActive,
	}
	if started := legacy.UnixTime(first.DealDate); started != nil {
		person.CreatedAt = *started
	}
	err = m.writeThrough(ctx, func(tx *repository.Repository) ([]mapping.Entry, error) {
		if _, err := tx.UpsertSalesPerson(ctx, person); err != nil {
			return nil, err
		}
		return []mapping.Entry{{
			DestinationID: mapping.ID(person.ID),
			SourceID:      rec.SourceID,
			Aux:           map[string]any{"user_id": user.ID, "dealer_id": latest.DealerID},
		}}, nil
	})
	if err != nil {
		return t.fail(asRecordError(err))
	}
	return t.done(person.ID, map[string]any{
		"name":      person.Name,
		"email":     email,
		"dealer_id": dealer.BillingID,
		"sales":     len(sales),
	})
}
