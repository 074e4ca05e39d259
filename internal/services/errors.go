package services

import "fmt"

// ValidationError reports a missing or malformed request field.
// Surfaced as 400 with a field-specific message.
type ValidationError struct {
	Field string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s is required", e.Field)
}

// SignatureError reports a payload whose HMAC did not match. The expected
// signature is never included in the message.
type SignatureError struct{}

func (e *SignatureError) Error() string {
	return "invalid signature"
}

// ProviderError wraps a failure talking to the payment provider.
// Surfaced as 500 with a generic message; the caller may retry with a
// fresh order, no retry happens at this layer.
type ProviderError struct {
	Op  string
	Err error
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("razorpay %s: %v", e.Op, e.Err)
}

func (e *ProviderError) Unwrap() error {
	return e.Err
}

// MissingAssociationError reports a verified payment event that cannot be
// tied to a user. The event is rejected outright; attaching it to a
// default user would corrupt the ledger.
type MissingAssociationError struct {
	OrderID string
}

func (e *MissingAssociationError) Error() string {
	return "userId missing in order notes"
}
