package repository

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/tphakala/certmigrate/internal/datastore/entities"
	"github.com/tphakala/certmigrate/internal/errors"
)

// FindUserByID loads a destination user
func (r *Repository) FindUserByID(ctx context.Context, id int64) (*entities.User, error) {
	start := time.Now()
	user, err := findBy[entities.User](ctx, r.db, "id", id, ErrUserNotFound)
	r.observe("find", "users", start, err)
	return user, repoError(err, "find_user", "users")
}

// FindUserByEmail loads the oldest destination user with email
func (r *Repository) FindUserByEmail(ctx context.Context, email string) (*entities.User, error) {
	start := time.Now()
	user, err := findBy[entities.User](ctx, r.db, "email", email, ErrUserNotFound)
	r.observe("find", "users", start, err)
	return user, repoError(err, "find_user_by_email", "users")
}

// UsernameExists reports whether a username is taken
func (r *Repository) UsernameExists(ctx context.Context, username string) (bool, error) {
	start := time.Now()
	var n int64
	err := r.db.WithContext(ctx).Model(&entities.User{}).Where("username = ?", username).Count(&n).Error
	r.observe("count", "users", start, err)
	return n > 0, repoError(err, "username_exists", "users")
}

// UpsertUser creates user, or when a user with the same email exists updates its
// profile fields. Username, password and parent of an existing user are kept.
func (r *Repository) UpsertUser(ctx context.Context, user *entities.User) (created bool, err error) {
	if user.Email == "" {
		return false, errors.Newf("%w: user email is empty", ErrInvalidInput).
			Component("repository").
			Category(errors.CategoryValidation).
			Build()
	}
	start := time.Now()
	incoming := *user
	created, err = upsertBy(ctx, r.db, user, "email", user.Email, func(e *entities.User) {
		e.Name = incoming.Name
		e.Company = incoming.Company
		e.Status = incoming.Status
		e.Phone = incoming.Phone
		e.Mobile = incoming.Mobile
		e.Country = incoming.Country
		if e.ParentID == nil {
			e.ParentID = incoming.ParentID
		}
	})
	r.observe("upsert", "users", start, err)
	return created, repoError(err, "upsert_user", "users")
}

// GetOrCreateRole retrieves a role by name and guard or creates it.
func (r *Repository) GetOrCreateRole(ctx context.Context, name, guard string) (*entities.Role, error) {
	start := time.Now()
	role := entities.Role{Name: name, GuardName: guard}
	err := r.db.WithContext(ctx).
		Where("name = ? AND guard_name = ?", name, guard).
		FirstOrCreate(&role).Error
	if err != nil && errors.Is(err, gorm.ErrDuplicatedKey) {
		// Another worker created it between our read and insert
		err = r.db.WithContext(ctx).Where("name = ? AND guard_name = ?", name, guard).First(&role).Error
	}
	r.observe("get_or_create", "roles", start, err)
	if err != nil {
		return nil, repoError(err, "get_or_create_role", "roles")
	}
	return &role, nil
}

// AssignRole gives a user a role; assigning twice is a no-op
func (r *Repository) AssignRole(ctx context.Context, roleID, userID int64) error {
	start := time.Now()
	assignment := entities.ModelHasRole{RoleID: roleID, ModelType: entities.UserModelType, ModelID: userID}
	err := r.db.WithContext(ctx).
		Where("role_id = ? AND model_type = ? AND model_id = ?", roleID, entities.UserModelType, userID).
		FirstOrCreate(&assignment).Error
	r.observe("insert", "model_has_roles", start, err)
	return repoError(err, "assign_role", "model_has_roles")
}
