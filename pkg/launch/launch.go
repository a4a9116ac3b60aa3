// Package launch validates signed trusted-launch requests.
//
// A launch is a signed, time-bound POST asserting a consumer (tenant)
// identity and a user role. Many consumers with independent secrets share
// a single endpoint, so every launch is verified against the secret of the
// consumer key it carries, and nothing from a previous consumer's session
// may survive a new launch.
package launch

import (
	"net/http"

	"go.uber.org/zap"
)

// Parameter names carried on a launch request.
const (
	paramConsumerKey     = "oauth_consumer_key"
	paramSignature       = "oauth_signature"
	paramSignatureMethod = "oauth_signature_method"
)

// PropertyList is the set of launch parameters captured into the session
// on successful authentication. Everything outside this list is dropped.
var PropertyList = []string{
	"oauth_consumer_key",
	"launch_presentation_return_url",
	"user_id",
	"oauth_nonce",
	"context_label",
	"context_id",
	"resource_link_title",
	"resource_link_id",
	"lis_person_contact_email_primary",
	"lis_person_name_full",
	"lis_person_name_family",
	"lis_person_name_given",
	"lis_result_sourcedid",
	"launch_type",
	"lti_message",
	"lti_version",
	"roles",
}

// DefaultStaffRoles are the roles permitted to invoke sifters unless
// overridden in configuration.
var DefaultStaffRoles = []string{"Instructor", "Administrator"}

// Consumer is one configured tenant: a key, its shared secret, and an
// optional sifter allow-list. Immutable at runtime.
type Consumer struct {
	Key    string
	Secret string

	// AllowedSifters restricts which sifters the consumer may see or run.
	// Empty means all registered sifters are visible.
	AllowedSifters []string
}

// Launch is the authenticated identity extracted from a valid request.
type Launch struct {
	// ConsumerKey is the authenticated tenant key.
	ConsumerKey string

	// Properties holds the captured launch parameters (PropertyList only).
	Properties map[string]string
}

// ContextID returns the course scope the launch was made from.
func (l *Launch) ContextID() string {
	return l.Properties["context_id"]
}

// Roles returns the role the launch asserts for the user.
func (l *Launch) Roles() string {
	return l.Properties["roles"]
}

// Verifier authenticates launch requests against configured consumers.
type Verifier struct {
	consumers map[string]Consumer
	logger    *zap.Logger
}

// NewVerifier creates a verifier over the given consumers.
func NewVerifier(consumers []Consumer, logger *zap.Logger) *Verifier {
	if logger == nil {
		logger = zap.NewNop()
	}
	byKey := make(map[string]Consumer, len(consumers))
	for _, c := range consumers {
		if c.Key == "" || c.Secret == "" {
			logger.Warn("ignoring consumer with missing key or secret",
				zap.String("key", c.Key))
			continue
		}
		byKey[c.Key] = c
	}
	return &Verifier{consumers: byKey, logger: logger}
}

// Consumer returns the configured consumer for a key.
func (v *Verifier) Consumer(key string) (Consumer, bool) {
	c, ok := v.consumers[key]
	return c, ok
}

// HasLaunchParams reports whether the params carry a consumer key, meaning
// the request is attempting a (re-)launch and must be validated fresh.
func HasLaunchParams(params map[string]string) bool {
	return params[paramConsumerKey] != ""
}

// Validate authenticates one launch request.
//
// The params must contain every form/query parameter of the request; the
// signature covers all of them. The base URL is derived from the request,
// honouring X-Forwarded-Proto so launches behind a TLS-terminating proxy
// verify against the https URL the signer used.
func (v *Verifier) Validate(r *http.Request, params map[string]string) (*Launch, error) {
	key := params[paramConsumerKey]
	if key == "" {
		return nil, &AuthenticationError{
			Message: "this page requires a valid session or request",
		}
	}

	consumer, ok := v.consumers[key]
	if !ok {
		v.logger.Info("launch with unknown consumer key", zap.String("key", key))
		return nil, &AuthenticationError{
			Message: "launch error: please check your key and secret",
		}
	}

	if !verifySignature(r.Method, requestBaseURL(r), params, consumer.Secret) {
		v.logger.Info("launch signature verification failed", zap.String("key", key))
		return nil, &AuthenticationError{
			Message: "launch error: please check your key and secret",
		}
	}

	props := make(map[string]string, len(PropertyList))
	for _, prop := range PropertyList {
		if value := params[prop]; value != "" {
			props[prop] = value
		}
	}
	return &Launch{ConsumerKey: key, Properties: props}, nil
}

// CheckRole enforces the staff-only role requirement for an authenticated
// launch. Failures are AuthorizationError, never AuthenticationError.
func CheckRole(role string, staffRoles []string) error {
	if role == "" {
		return &AuthorizationError{
			Message: "user does not have a role, one is required",
		}
	}
	for _, staff := range staffRoles {
		if role == staff {
			return nil
		}
	}
	return &AuthorizationError{
		Message: "you are not in a staff level role, access is restricted to course staff",
	}
}

// VisibleSifters filters a registry listing down to what the consumer may
// see: the intersection with its allow-list, or everything when no
// allow-list is configured.
func VisibleSifters[T any](c Consumer, all map[string]T) map[string]T {
	if len(c.AllowedSifters) == 0 {
		return all
	}
	visible := make(map[string]T)
	for _, name := range c.AllowedSifters {
		if s, ok := all[name]; ok {
			visible[name] = s
		}
	}
	return visible
}

// requestBaseURL rebuilds the URL the signer signed: scheme, host and path
// with the query string excluded (query parameters are already in params).
func requestBaseURL(r *http.Request) string {
	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	if proto := r.Header.Get("X-Forwarded-Proto"); proto == "https" {
		scheme = "https"
	}
	return scheme + "://" + r.Host + r.URL.Path
}
