package dto

// ErrorResponse is the envelope for every API error body. Error carries a
// stable machine-readable kind; Message is for humans.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
	Code    int    `json:"code,omitempty"`
}

func NewErrorResponse(errType, message string, code int) *ErrorResponse {
	return &ErrorResponse{Error: errType, Message: message, Code: code}
}
