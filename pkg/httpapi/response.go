// Package httpapi carries the platform JSON envelope shared by the auth API
// client and the development stub server.
package httpapi

import "github.com/labstack/echo/v4"

// Error is the machine-readable failure payload. Code is the stable contract
// clients branch on; Details carries optional field-level context such as
// validation hints.
type Error struct {
	Code    string            `json:"code"`
	Message string            `json:"message"`
	Details map[string]string `json:"details,omitempty"`
}

// ErrorResponse is the envelope every non-2xx auth response uses.
type ErrorResponse struct {
	Error   Error  `json:"error"`
	TraceID string `json:"trace_id"`
}

// Response wraps successful payloads.
type Response struct {
	Data interface{} `json:"data,omitempty"`
}

func JSON(c echo.Context, status int, data interface{}) error {
	return c.JSON(status, Response{Data: data})
}

func ErrorJSON(c echo.Context, status int, code, message, traceID string, details map[string]string) error {
	return c.JSON(status, ErrorResponse{Error: Error{Code: code, Message: message, Details: details}, TraceID: traceID})
}
