package model

import (
	"fmt"
	"time"
	"unicode"
)

// User represents an authenticated actor in the approval and custody chain.
type User struct {
	ID           int64      `json:"id"`
	Username     string     `json:"username"`
	PasswordHash string     `json:"-"`
	Role         Role       `json:"role"`
	CreatedAt    time.Time  `json:"created_at"`
	DeletedAt    *time.Time `json:"deleted_at,omitempty"`
}

// Role identifies which actor in the workflow a user acts as.
type Role string

// Roles. These are peers, not a hierarchy: each transition names the one
// role allowed to perform it. Admin additionally manages accounts and the
// archive operation.
const (
	RoleAdmin        Role = "admin"
	RoleManufacturer Role = "manufacturer"
	RoleRegulator    Role = "regulator"
	RolePrinter      Role = "printer"
	RoleLogistics    Role = "logistics"
)

// Roles lists every valid user role.
var Roles = []Role{RoleAdmin, RoleManufacturer, RoleRegulator, RolePrinter, RoleLogistics}

// KnownRole reports whether r is a valid user role.
func KnownRole(r Role) bool {
	for _, v := range Roles {
		if v == r {
			return true
		}
	}
	return false
}

// ValidatePassword checks minimum password requirements for new accounts.
func ValidatePassword(password string) error {
	if len(password) < 8 {
		return fmt.Errorf("password must be at least 8 characters")
	}
	var hasLetter, hasDigit bool
	for _, r := range password {
		switch {
		case unicode.IsLetter(r):
			hasLetter = true
		case unicode.IsDigit(r):
			hasDigit = true
		}
	}
	if !hasLetter || !hasDigit {
		return fmt.Errorf("password must contain both letters and digits")
	}
	return nil
}
