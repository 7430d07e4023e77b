// Package response writes the JSON bodies of the vehicle signal HTTP API.
package response

import (
	"encoding/json"
	"net/http"
)

// JSON writes data as JSON with the given status code. A nil data writes
// only the status. Data that cannot be encoded yields a 500 error body.
func JSON(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if data == nil {
		w.WriteHeader(statusCode)
		return
	}

	body, err := json.Marshal(data)
	if err != nil {
		statusCode = http.StatusInternalServerError
		body, _ = json.Marshal(ErrorResponse{
			Error: ErrorDetail{
				Code:    ErrCodeInternalServer,
				Message: "failed to encode response",
			},
		})
	}

	w.WriteHeader(statusCode)
	_, _ = w.Write(append(body, '\n'))
}

// Error writes an ErrorResponse.
func Error(w http.ResponseWriter, statusCode int, code, message string, requestID string) {
	JSON(w, statusCode, ErrorResponse{
		Error: ErrorDetail{
			Code:      code,
			Message:   message,
			RequestID: requestID,
		},
	})
}
