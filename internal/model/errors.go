package model

import "errors"

// ErrNotFound marks lookups for batches or codes that do not exist.
// Handlers map it to a 404 response.
var ErrNotFound = errors.New("not found")

// ErrValidation marks malformed or missing caller input, such as an empty
// rejection reason. Handlers map it to a 400 response.
var ErrValidation = errors.New("invalid input")
