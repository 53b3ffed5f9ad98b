package models

import (
	"errors"
)

var (
	ErrValidation         = errors.New("validation error")
	ErrEncoding           = errors.New("encoding error")
	ErrInvalidInput       = errors.New("invalid input")
	ErrProtection         = errors.New("data protection failed")
	ErrAccessDenied       = errors.New("access denied")
	ErrExecution          = errors.New("confidential execution failed")
	ErrResultParse        = errors.New("result parse error")
	ErrAttestationInvalid = errors.New("attestation reports verification failure")
	ErrNetworkMismatch    = errors.New("network mismatch")
	ErrLedgerSubmission   = errors.New("ledger submission failed")
	ErrSubjectBinding     = errors.New("no subject bound to session")
	ErrLocalProofInvalid  = errors.New("local proof verification failed")
	ErrStaleSession       = errors.New("session was reset")
	ErrSessionBusy        = errors.New("session already running")
	ErrTransport          = errors.New("transport failure")
)

// taxonomy is ordered: the first match wins when an error wraps several kinds.
var taxonomy = []struct {
	err  error
	name string
}{
	{ErrValidation, "ValidationError"},
	{ErrEncoding, "EncodingError"},
	{ErrInvalidInput, "InvalidInputError"},
	{ErrSubjectBinding, "SubjectBindingError"},
	{ErrNetworkMismatch, "NetworkMismatchError"},
	{ErrLocalProofInvalid, "LocalProofInvalidError"},
	{ErrProtection, "ProtectionError"},
	{ErrAccessDenied, "AccessDeniedError"},
	{ErrResultParse, "ResultParseError"},
	{ErrExecution, "ExecutionError"},
	{ErrAttestationInvalid, "AttestationInvalidError"},
	{ErrLedgerSubmission, "LedgerSubmissionError"},
	{ErrStaleSession, "StaleSessionError"},
	{ErrSessionBusy, "SessionBusyError"},
	{ErrTransport, "TransportError"},
}

// KindOf returns the taxonomy name of err, or "InternalError".
func KindOf(err error) string {
	if err == nil {
		return ""
	}
	for _, t := range taxonomy {
		if errors.Is(err, t.err) {
			return t.name
		}
	}
	return "InternalError"
}

// SessionError is the structured error retained by a failed session.
type SessionError struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
	Detail  string `json:"detail,omitempty"`
	Step    Status `json:"step"`
}

func (e *SessionError) Error() string {
	return e.Message
}

// NewSessionError builds the retained error for a step failure. Message is
// meant for display, Detail keeps the full wrapped chain for logs.
func NewSessionError(step Status, err error) *SessionError {
	kind := KindOf(err)
	msg := humanMessage(kind)
	return &SessionError{
		Kind:    kind,
		Message: msg,
		Detail:  err.Error(),
		Step:    step,
	}
}

func humanMessage(kind string) string {
	switch kind {
	case "ValidationError", "InvalidInputError":
		return "Some identity details are missing or malformed."
	case "EncodingError":
		return "Identity details could not be encoded."
	case "SubjectBindingError":
		return "Connect a wallet before starting verification."
	case "NetworkMismatchError":
		return "Switch to the required network and try again."
	case "LocalProofInvalidError":
		return "The identity proof could not be verified locally."
	case "ProtectionError":
		return "Encrypting identity data failed."
	case "AccessDeniedError":
		return "The confidential app was not granted access to the data."
	case "ExecutionError", "TransportError":
		return "The confidential computation failed."
	case "ResultParseError":
		return "The confidential computation returned an unreadable result."
	case "AttestationInvalidError":
		return "Identity verification did not pass."
	case "LedgerSubmissionError":
		return "Submitting the attestation on-chain failed."
	default:
		return "Verification failed."
	}
}
