package models

import (
	"time"

	"github.com/go-playground/validator/v10"
	"gorm.io/gorm"
)

const (
	ROLE_USER  = "user"
	ROLE_ADMIN = "admin"
)

// User is the minimal account row the reconciler needs: webhook handlers
// resolve users by email, and a row may not exist yet when the event
// arrives (replication lag), which is what the user_lookup retry covers.
type User struct {
	ID        uint           `gorm:"primaryKey" json:"id"`
	Name      string         `gorm:"type:varchar(150)" json:"name" validate:"required,min=3,max=150"`
	Email     string         `gorm:"uniqueIndex;type:varchar(200) CHARACTER SET utf8 COLLATE utf8_bin" json:"email" validate:"required,email,min=5,max=200"`
	Role      string         `gorm:"type:varchar(50);default:'user'" json:"role" validate:"oneof=user admin"`
	TenantID  *uint          `gorm:"index" json:"tenant_id,omitempty"`
	CreatedAt time.Time      `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time      `gorm:"autoUpdateTime" json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`
}

// Validate checks field constraints before persisting.
func (u *User) Validate() error {
	v := validator.New()
	return v.Struct(u)
}
