package callback

import (
	"encoding/json"
	"errors"
	"strings"

	domainerrors "github.com/reglet-dev/hostbridge/domain/errors"
)

// ErrorResponse is the structured error returned as JSON to guests.
// Guests receive consistent, parseable errors instead of WASM traps for
// every recoverable failure.
type ErrorResponse struct {
	// Error is a machine-readable error type identifier (e.g. "DECODE").
	Error string `json:"error"`

	// Message is a human-readable error description.
	Message string `json:"message"`

	// Code is a numeric error code, also used as the i32 status of
	// entry points that report errors by return value.
	Code int `json:"code"`
}

// Numeric codes per error code string.
var responseCodes = map[string]int{
	"invalid_request":       400,
	"argument_mismatch":     400,
	"protocol_violation":    409,
	"invalid_reference":     410,
	"decode":                422,
	"internal":              500,
	"member_resolution":     501,
	"invocation":            502,
	"scheduler_unavailable": 503,
	"out_of_memory":         507,
}

// ToJSON serializes the ErrorResponse to JSON bytes.
// Returns nil if serialization fails (which cannot happen for this type).
func (e ErrorResponse) ToJSON() []byte {
	data, err := json.Marshal(e)
	if err != nil {
		return nil
	}
	return data
}

// FromError maps err onto an ErrorResponse using its structured detail.
// The message keeps the full error chain.
func FromError(err error) ErrorResponse {
	if err == nil {
		return ErrorResponse{}
	}
	code := detailCode(err)
	return ErrorResponse{
		Error:   strings.ToUpper(code),
		Message: err.Error(),
		Code:    statusFor(code),
	}
}

// StatusCode returns the numeric code of err, 0 for nil.
func StatusCode(err error) int {
	if err == nil {
		return 0
	}
	return statusFor(detailCode(err))
}

func detailCode(err error) string {
	if d := domainerrors.ToErrorDetail(err); d != nil && d.Code != "" {
		return d.Code
	}
	return "internal"
}

func statusFor(code string) int {
	if n, ok := responseCodes[code]; ok {
		return n
	}
	return responseCodes["internal"]
}

// ParseErrorResponse decodes data as an ErrorResponse. It fails if data is
// not a JSON object carrying a non-empty error field.
func ParseErrorResponse(data []byte) (ErrorResponse, error) {
	var resp ErrorResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		return ErrorResponse{}, err
	}
	if resp.Error == "" {
		return ErrorResponse{}, errors.New("not an error response")
	}
	return resp, nil
}
