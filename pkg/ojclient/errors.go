package ojclient

import "fmt"

// Error taxonomy: Transport/Protocol are retried up to the submission
// retry budget; CredentialError, AccountExistsError and CaptchaError are
// soft and absorbed by the caller; everything else, RegistrationError
// included, unwinds.

// TransportError wraps network timeouts and connection resets. The HTTP
// status code is not inspected: a non-2xx response is handled like any
// other, by its body and cookies, and does not produce a TransportError.
type TransportError struct{ Err error }

func (e *TransportError) Error() string   { return fmt.Sprintf("oj transport error: %v", e.Err) }
func (e *TransportError) Unwrap() error   { return e.Err }
func (e *TransportError) Retryable() bool { return true }

// ServerError is a structured error the judge returned that we do not
// otherwise classify.
type ServerError struct{ Message string }

func (e *ServerError) Error() string { return fmt.Sprintf("oj server error: %s", e.Message) }

// CredentialError means login was rejected for the given credentials. Soft:
// the account should be skipped for this task, not disabled.
type CredentialError struct{ Message string }

func (e *CredentialError) Error() string { return fmt.Sprintf("oj credential error: %s", e.Message) }

// AccountExistsError means registration failed because the username is
// taken. Benign: try another username.
type AccountExistsError struct{ Username string }

func (e *AccountExistsError) Error() string {
	return fmt.Sprintf("account %q already exists", e.Username)
}

// CaptchaError means the submitted captcha solution was rejected. Benign:
// retry with a fresh challenge.
type CaptchaError struct{ Message string }

func (e *CaptchaError) Error() string { return fmt.Sprintf("captcha rejected: %s", e.Message) }

// ProtocolError means a response was missing a required field after a
// judged verdict, a response body did not decode, or the CSRF seed failed.
// Fatal to the probe; treated as transport for retry-budget purposes.
type ProtocolError struct{ Message string }

func (e *ProtocolError) Error() string   { return fmt.Sprintf("oj protocol error: %s", e.Message) }
func (e *ProtocolError) Retryable() bool { return true }

// RegistrationError covers registration failures other than
// AccountExistsError/CaptchaError. It is not counted against the
// create-accounts failure budget: it fails the task at once.
type RegistrationError struct{ Message string }

func (e *RegistrationError) Error() string { return fmt.Sprintf("registration failed: %s", e.Message) }
