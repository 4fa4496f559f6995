package models

// Response is the envelope returned by every /api route.
type Response struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
	Message string      `json:"message,omitempty"`
}

// OK wraps data in a successful envelope.
func OK(data interface{}) Response {
	return Response{Success: true, Data: data}
}

// Fail wraps an error message.
func Fail(msg string) Response {
	return Response{Success: false, Error: msg}
}
