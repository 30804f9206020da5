package backend

// ChatRequest represents the request body for POST /chat
type ChatRequest struct {
	Provider string   `json:"provider"`
	Message  string   `json:"message"`
	Images   []string `json:"images"`
}

// ChatResponse represents a successful reply from POST /chat
type ChatResponse struct {
	Response string `json:"response"`
	Provider string `json:"provider"`
	Error    string `json:"error,omitempty"` // application-level failure reported with a 2xx status
}

// ErrorResponse is the body the backend sends with non-2xx statuses.
// Detail is usually a string but validation errors carry a list, so it is
// decoded loosely.
type ErrorResponse struct {
	Detail interface{} `json:"detail"`
}

// DetailString returns Detail when it is a non-empty string.
func (e ErrorResponse) DetailString() (string, bool) {
	s, ok := e.Detail.(string)
	return s, ok && s != ""
}

// ProvidersResponse is the body of GET /providers
type ProvidersResponse struct {
	Providers []string `json:"providers"`
}
