package models

// User is the operator allowed to use the planner
type User struct {
	Username     string `json:"username"`
	PasswordHash string `json:"-"` // Not serialized
}

// Credentials is the login request body
type Credentials struct {
	Username string `json:"username" validate:"required"`
	Password string `json:"password" validate:"required"`
}
