// Package validator provides a small validation abstraction for request and
// domain structs.
//
// Business code depends on the Validator interface. The implementation is
// backed by go-playground/validator v10 with English messages and the custom
// rules registered in this package:
//
//	pdf  on a string field: the name ends with ".pdf" (case-insensitive)
//	pdf  on a []byte field: the payload starts with the "%PDF" signature
package validator

// Validator validates a struct and returns a field-to-message error on failure.
type Validator interface {
	Validate(data any) error
}
