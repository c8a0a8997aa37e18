package migration

import (
	"context"
	"fmt"
	"iter"
	"strings"

	"github.com/tphakala/certmigrate/internal/datastore/entities"
	"github.com/tphakala/certmigrate/internal/datastore/legacy"
	"github.com/tphakala/certmigrate/internal/datastore/repository"
	"github.com/tphakala/certmigrate/internal/logger"
	"github.com/tphakala/certmigrate/internal/mapping"
	"github.com/tphakala/certmigrate/internal/resolver"
)

type technicianMigrator struct{ base }

func (m *technicianMigrator) Candidates(ctx context.Context) iter.Seq2[Record, error] {
	all := candidates(ctx, &m.base, m.env.Reader.Technicians(ctx), func(t legacy.Technician) Record {
		return Record{SourceID: mapping.ID(t.ID), Label: labelOf(t.Name, t.Email), Data: t}
	})
	return func(yield func(Record, error) bool) {
		for rec, err := range all {
			if err == nil && m.adopted(rec) {
				continue
			}
			if !yield(rec, err) {
				return
			}
		}
	}
}

// adopted reports whether a derived technician already carries the legacy id
func (m *technicianMigrator) adopted(rec Record) bool {
	src, ok := rec.Data.(legacy.Technician)
	if !ok || src.ID == 0 {
		return false
	}
	_, found := m.store.LookupByAuxiliary("old_technician_id", src.ID)
	return found
}

// Migrate upserts a technician by email. It shares the email key lock with the
// resolver's technician fallback so both never create the same technician.
func (m *technicianMigrator) Migrate(ctx context.Context, rec Record) Outcome {
	t := m.begin(rec)
	src, ok := rec.Data.(legacy.Technician)
	if !ok {
		return t.fail(WriteError(ReasonSourceRead, fmt.Errorf("unexpected record data %T", rec.Data)))
	}
	email := resolver.NormalizeEmail(src.Email)
	if email == "" {
		return t.fail(WriteError(ReasonMissingEmail, fmt.Errorf("technician %d has no email", src.ID)))
	}

	unlock := m.store.LockKey(mapping.DerivedEmailPrefix + email)
	defer unlock()

	if m.store.Contains(rec.SourceID) || m.adopted(rec) {
		return t.alreadyMigrated()
	}

	// A technician created earlier from a calibrating user with this email is
	// reused; its pairing stays and the legacy id is recorded beside it.
	if entry, ok := m.store.LookupByAuxiliary("email", email); ok && strings.HasPrefix(entry.SourceID, mapping.DerivedEmailPrefix) && !hasLegacyTechnician(entry) {
		return m.adopt(t, entry, src)
	}

	// Owner falls back to the default actor
	ownerID := m.env.Actor.ID
	if owner := m.env.Resolver.User(src.UserID); owner.OK() {
		ownerID = owner.ID
	}
	phone := strings.TrimSpace(src.Phone)
	if phone == "" {
		phone = m.defaultPhone()
	}

	t.creating()
	tech := &entities.Technician{
		Name:      strings.TrimSpace(src.Name),
		Email:     email,
		Phone:     phone,
		UserID:    ownerID,
		CreatedBy: m.env.Actor.ID,
	}
	if added := legacy.UnixTime(src.AddDate); added != nil {
		tech.CreatedAt = *added
	}
	err := m.writeThrough(ctx, func(tx *repository.Repository) ([]mapping.Entry, error) {
		if _, err := tx.UpsertTechnician(ctx, tech); err != nil {
			return nil, err
		}
		return []mapping.Entry{{
			DestinationID: mapping.ID(tech.ID),
			SourceID:      rec.SourceID,
			Aux:           map[string]any{"email": email, "user_id": ownerID, "old_technician_id": src.ID},
		}}, nil
	})
	if err != nil {
		return t.fail(asRecordError(err))
	}
	return t.done(tech.ID, map[string]any{"name": tech.Name, "email": email, "user_id": ownerID})
}

func (m *technicianMigrator) adopt(t *tracker, entry mapping.Entry, src legacy.Technician) Outcome {
	t.creating()
	id, err := mapping.ParseID(entry.DestinationID)
	if err != nil {
		return t.fail(WriteError("", err))
	}
	if _, err := m.store.Commit(mapping.Entry{
		DestinationID: entry.DestinationID,
		SourceID:      entry.SourceID,
		Aux:           map[string]any{"old_technician_id": src.ID},
	}); err != nil {
		return t.fail(asRecordError(err))
	}
	m.log.Info("legacy technician reuses technician derived from its email",
		logger.Int64("old_technician_id", src.ID),
		logger.Int64("technician_id", id))
	return t.done(id, map[string]any{"name": strings.TrimSpace(src.Name), "email": entry.AuxString("email"), "reused": true})
}

func hasLegacyTechnician(e mapping.Entry) bool {
	id, ok := e.AuxInt64("old_technician_id")
	return ok && id != 0
}

func (m *technicianMigrator) defaultPhone() string {
	if m.env.Settings.DefaultPhone != "" {
		return m.env.Settings.DefaultPhone
	}
	return resolver.DefaultTechnicianPhone
}

type customerMigrator struct{ base }

func (m *customerMigrator) Candidates(ctx context.Context) iter.Seq2[Record, error] {
	return candidates(ctx, &m.base, m.env.Reader.Customers(ctx), func(c legacy.Customer) Record {
		return Record{SourceID: mapping.ID(c.ID), Label: labelOf(c.Company, c.Email), Data: c}
	})
}

// Migrate upserts a customer by email. The owning user must already be migrated.
func (m *customerMigrator) Migrate(ctx context.Context, rec Record) Outcome {
	t := m.begin(rec)
	src, ok := rec.Data.(legacy.Customer)
	if !ok {
		return t.fail(WriteError(ReasonSourceRead, fmt.Errorf("unexpected record data %T", rec.Data)))
	}

	owner := m.env.Resolver.User(src.UserID)
	if !owner.OK() {
		return t.block(fromResult(owner))
	}
	email := resolver.NormalizeEmail(src.Email)
	if email == "" {
		return t.fail(WriteError(ReasonMissingEmail, fmt.Errorf("customer %d has no email", src.ID)))
	}

	unlock := m.store.LockKey(mapping.DerivedEmailPrefix + email)
	defer unlock()

	if m.store.Contains(rec.SourceID) {
		return t.alreadyMigrated()
	}

	t.creating()
	customer := &entities.Customer{
		Email:         email,
		Name:          strings.TrimSpace(src.Company),
		Address:       src.Address,
		ContactNumber: src.ContactPhone,
		UserID:        owner.ID,
	}
	if added := legacy.UnixTime(src.AddDate); added != nil {
		customer.CreatedAt = *added
	}
	err := m.writeThrough(ctx, func(tx *repository.Repository) ([]mapping.Entry, error) {
		if _, err := tx.UpsertCustomer(ctx, customer); err != nil {
			return nil, err
		}
		return []mapping.Entry{{
			DestinationID: mapping.ID(customer.ID),
			SourceID:      rec.SourceID,
			Aux:           map[string]any{"email": email, "user_id": owner.ID},
		}}, nil
	})
	if err != nil {
		return t.fail(asRecordError(err))
	}
	return t.done(customer.ID, map[string]any{"name": customer.Name, "email": email, "user_id": owner.ID})
}

// labelOf joins the non-empty parts of a record label
func labelOf(parts ...string) string {
	var kept []string
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			kept = append(kept, p)
		}
	}
	return strings.Join(kept, " ")
}
