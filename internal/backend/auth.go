package backend

// RegisterRequest represents the request body for POST /register
type RegisterRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// LoginResponse represents a successful reply from POST /login.
// The login request itself is form-encoded (username, password).
type LoginResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type,omitempty"`
}

// UserResponse is returned by POST /register and GET /me
type UserResponse struct {
	ID    int64  `json:"id"`
	Email string `json:"email"`
}
