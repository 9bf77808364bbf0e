package serial

import "errors"

// ErrMalformed indicates input that is not a document: invalid JSON,
// a missing root object, or a root of the wrong kind. Unlike dropped
// nodes, malformed input fails the whole conversion.
var ErrMalformed = errors.New("malformed document JSON")
