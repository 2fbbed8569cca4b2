package remote

import (
	"encoding/json"
	"time"
)

// Header names of the sync protocol.
const (
	HeaderIdempotencyKey = "Idempotency-Key"
	HeaderAuthorization  = "Authorization"
)

// Error codes carried in [ErrorBody].
const (
	CodeDuplicateToken = "duplicate_token"
	CodeNotFound       = "not_found"
	CodeInvalid        = "invalid"
	CodeUnauthorized   = "unauthorized"
)

// Item is one entity on the wire. Attributes holds the entity's remote
// shape.
type Item struct {
	ID           string          `json:"id"`
	ClientToken  string          `json:"client_token,omitempty"`
	LastModified time.Time       `json:"last_modified"`
	Deleted      bool            `json:"deleted,omitempty"`
	Attributes   json.RawMessage `json:"attributes"`
}

// Meta carries pagination for list responses.
type Meta struct {
	CurrentPage int `json:"current_page"`
	LastPage    int `json:"last_page"`
	PerPage     int `json:"per_page,omitempty"`
	Total       int `json:"total,omitempty"`
}

// Envelope wraps every successful response body: a single item for create
// and update, a list of items plus Meta for listings.
type Envelope struct {
	Data json.RawMessage `json:"data"`
	Meta *Meta           `json:"meta,omitempty"`
}

// WriteRequest is the body of a create or update request.
type WriteRequest struct {
	ClientToken string `json:"client_token,omitempty"`
	Data        any    `json:"data"`
}

// ErrorBody is the body of every error response.
type ErrorBody struct {
	Error ErrorDetail `json:"error"`
}

// ErrorDetail describes a failed request. ID names the existing record for
// a duplicate client token.
type ErrorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	ID      string `json:"id,omitempty"`
}
