package auth

import "time"

// User is the signed-in account.
type User struct {
	ID              int64      `json:"id"`
	Name            string     `json:"name"`
	Email           string     `json:"email"`
	EmailVerifiedAt *time.Time `json:"email_verified_at"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
}

// LoginCredentials is the body of POST /login.
type LoginCredentials struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// RegisterCredentials is the body of POST /register.
type RegisterCredentials struct {
	Name                 string `json:"name"`
	Email                string `json:"email"`
	Password             string `json:"password"`
	PasswordConfirmation string `json:"password_confirmation"`
}

// UpdateProfileData is the body of PUT /user.
type UpdateProfileData struct {
	Name string `json:"name"`
}

// UpdatePasswordData is the body of PUT /user/password.
type UpdatePasswordData struct {
	CurrentPassword         string `json:"current_password"`
	NewPassword             string `json:"new_password"`
	NewPasswordConfirmation string `json:"new_password_confirmation"`
}

// ResetPasswordData is the body of POST /reset-password.
type ResetPasswordData struct {
	Token                string `json:"token"`
	Email                string `json:"email"`
	Password             string `json:"password"`
	PasswordConfirmation string `json:"password_confirmation"`
}

// tokenResponse is what /login and /register return.
type tokenResponse struct {
	Token string `json:"token"`
	User  *User  `json:"user,omitempty"`
}

type messageResponse struct {
	Message string `json:"message"`
}
