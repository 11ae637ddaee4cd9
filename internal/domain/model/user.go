package model

import (
	"time"
)

const (
	RoleUser  = "user"
	RoleAdmin = "admin"
)

// User is an operator of the sync service who owns platform accounts.
type User struct {
	ID             string    `json:"id"`
	Username       string    `json:"username"`
	Email          string    `json:"email"`
	HashedPassword string    `json:"-"`
	Role           string    `json:"role"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}
