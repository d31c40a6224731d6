package dynamostore

import "errors"

var (
	// ErrUnprocessed is returned when DynamoDB keeps returning unprocessed
	// items after all retries.
	ErrUnprocessed = errors.New("dynamostore: items left unprocessed after retries")

	// ErrUnsupportedAttribute is returned when a stored item holds an
	// attribute type that has no node equivalent.
	ErrUnsupportedAttribute = errors.New("dynamostore: unsupported attribute type")
)
