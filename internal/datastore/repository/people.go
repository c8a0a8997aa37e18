package repository

import (
	"context"
	"time"

	"github.com/tphakala/certmigrate/internal/datastore/entities"
)

// FindTechnicianByEmail loads the oldest technician with email
func (r *Repository) FindTechnicianByEmail(ctx context.Context, email string) (*entities.Technician, error) {
	start := time.Now()
	t, err := findBy[entities.Technician](ctx, r.db, "email", email, ErrTechnicianNotFound)
	r.observe("find", "technicians", start, err)
	return t, repoError(err, "find_technician_by_email", "technicians")
}

// UpsertTechnician creates t or updates the technician with the same email
func (r *Repository) UpsertTechnician(ctx context.Context, t *entities.Technician) (created bool, err error) {
	start := time.Now()
	incoming := *t
	created, err = upsertBy(ctx, r.db, t, "email", t.Email, func(e *entities.Technician) {
		e.Name = incoming.Name
		e.Phone = incoming.Phone
		e.UserID = incoming.UserID
	})
	r.observe("upsert", "technicians", start, err)
	return created, repoError(err, "upsert_technician", "technicians")
}

// UpsertCustomer creates c or updates the customer with the same email
func (r *Repository) UpsertCustomer(ctx context.Context, c *entities.Customer) (created bool, err error) {
	start := time.Now()
	incoming := *c
	created, err = upsertBy(ctx, r.db, c, "email", c.Email, func(e *entities.Customer) {
		e.Name = incoming.Name
		e.Address = incoming.Address
		e.ContactNumber = incoming.ContactNumber
		e.UserID = incoming.UserID
	})
	r.observe("upsert", "customers", start, err)
	return created, repoError(err, "upsert_customer", "customers")
}

// UpsertSalesPerson creates p or updates the sales person with the same email.
// The original creation date is kept.
func (r *Repository) UpsertSalesPerson(ctx context.Context, p *entities.SalesPerson) (created bool, err error) {
	start := time.Now()
	incoming := *p
	created, err = upsertBy(ctx, r.db, p, "email", p.Email, func(e *entities.SalesPerson) {
		e.Name = incoming.Name
		e.Phone = incoming.Phone
		e.UserID = incoming.UserID
		e.Status = incoming.Status
	})
	r.observe("upsert", "sales_people", start, err)
	return created, repoError(err, "upsert_sales_person", "sales_people")
}
