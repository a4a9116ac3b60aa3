package launch

// AuthenticationError indicates a trusted-launch request could not be
// authenticated: missing or invalid signature, or unknown consumer key.
//
// The message is intentionally generic and never echoes the secret.
type AuthenticationError struct {
	Message string
}

func (e *AuthenticationError) Error() string {
	return e.Message
}

// AuthorizationError indicates an authenticated user lacks a permitted
// role. Distinct from AuthenticationError so callers can tell "who are
// you" failures from "you're not allowed" failures.
type AuthorizationError struct {
	Message string
}

func (e *AuthorizationError) Error() string {
	return e.Message
}
