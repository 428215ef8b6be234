package http

// APIResponse is the envelope every status endpoint returns.
type APIResponse struct {
	Status  int    `json:"status" example:"200"`
	Message string `json:"message" example:"OK"`
	Data    any    `json:"data,omitempty"`
}

// ValidationError represents validation error detail.
type ValidationError struct {
	Code    string         `json:"code,omitempty" example:"ERR_RANGE"`
	Field   string         `json:"field,omitempty" example:"limit"`
	Message string         `json:"message,omitempty" example:"limit must be between 1 and 500"`
	Params  map[string]any `json:"params,omitempty"`
}

// ListDataResponse wraps a list with its length.
type ListDataResponse struct {
	Rows  any   `json:"rows"`
	Total int64 `json:"total"`
}
