package models

// User is the profile returned by the remote service.
type User struct {
	ID           string    `json:"id"`
	Email        string    `json:"email"`
	CalendarUUID string    `json:"calendar_uuid"`
	CreatedAt    Timestamp `json:"created_at"`
	UpdatedAt    Timestamp `json:"updated_at"`
}

// TokenResponse is the body of a successful login.
type TokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
}

// RegisterRequest is the body of the registration call.
type RegisterRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}
