package entities

import "time"

// User status values
const (
	UserStatusActive  = "active"
	UserStatusBlocked = "blocked"
)

// User is a destination account. Dealers are users holding the dealer role;
// sub-users of a dealer point at it through ParentID.
type User struct {
	ID              int64  `gorm:"primaryKey"`
	Name            string `gorm:"size:255;not null"`
	Email           string `gorm:"size:255;not null;index"`
	ParentID        *int64 `gorm:"index"`
	EmailVerifiedAt *time.Time
	Password        string  `gorm:"size:255;not null"`
	Username        *string `gorm:"size:255;uniqueIndex"`
	Company         string  `gorm:"size:255"`
	Status          string  `gorm:"size:10;not null;default:active"`
	Phone           string  `gorm:"size:255"`
	Mobile          string  `gorm:"size:255"`
	Timezone        string  `gorm:"size:255"`
	Country         string  `gorm:"size:255"`
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// TableName returns the table name for GORM.
func (User) TableName() string { return "users" }

// Role is a permission role
type Role struct {
	ID        int64  `gorm:"primaryKey"`
	Name      string `gorm:"size:255;not null;uniqueIndex:idx_role_identity"`
	GuardName string `gorm:"size:255;not null;uniqueIndex:idx_role_identity"`
	CreatedAt time.Time
	UpdatedAt time.Time
}

// TableName returns the table name for GORM.
func (Role) TableName() string { return "roles" }

// ModelHasRole assigns a role to a model row
type ModelHasRole struct {
	RoleID    int64  `gorm:"primaryKey;autoIncrement:false"`
	ModelType string `gorm:"primaryKey;size:255"`
	ModelID   int64  `gorm:"primaryKey;autoIncrement:false"`
}

// TableName returns the table name for GORM.
func (ModelHasRole) TableName() string { return "model_has_roles" }

// UserModelType is the model_type of role assignments for users
const UserModelType = `App\Models\User`

// GuardWeb is the guard name of the roles this tool creates
const GuardWeb = "web"
