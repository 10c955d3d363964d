// Package navguard decides whether a navigation target is reachable for the
// current session, or where the caller should be redirected instead.
package navguard

import (
	"io"
	"strings"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// Policy lists the public route prefixes and the two redirect destinations.
type Policy struct {
	PublicPrefixes []string `yaml:"publicPrefixes"`
	HomePath       string   `yaml:"homePath"`
	LoginPath      string   `yaml:"loginPath"`
}

// DefaultPolicy treats the login page and the SSO/OAuth callbacks as public.
func DefaultPolicy() Policy {
	return Policy{
		PublicPrefixes: []string{"/login", "/auth/callback", "/auth/sso-callback"},
		HomePath:       "/",
		LoginPath:      "/login",
	}
}

// LoadPolicy reads a YAML policy. Fields missing from the document keep
// their DefaultPolicy values.
func LoadPolicy(r io.Reader) (Policy, error) {
	policy := DefaultPolicy()
	if err := yaml.NewDecoder(r).Decode(&policy); err != nil && !errors.Is(err, io.EOF) {
		return Policy{}, errors.Wrap(err, "[LoadPolicy] decode")
	}
	if policy.HomePath == "" || policy.LoginPath == "" {
		return Policy{}, errors.New("[LoadPolicy] homePath and loginPath are required")
	}
	return policy, nil
}

// IsPublic reports whether target falls under a public prefix. The query
// string and fragment are ignored.
func (p Policy) IsPublic(target string) bool {
	path := stripQuery(target)
	for _, prefix := range p.PublicPrefixes {
		if prefix != "" && strings.HasPrefix(path, prefix) {
			return true
		}
	}
	return false
}

// Decision is the outcome of a navigation check. RedirectTo is set only when
// Allow is false.
type Decision struct {
	Allow      bool
	RedirectTo string
}

func allow() Decision               { return Decision{Allow: true} }
func redirect(path string) Decision { return Decision{RedirectTo: path} }

func (d Decision) String() string {
	if d.Allow {
		return "allow"
	}
	return "redirect " + d.RedirectTo
}

// Evaluate decides navigation to target. Authenticated sessions are bounced
// off public routes to home; unauthenticated sessions are bounced off
// protected routes to login.
func Evaluate(policy Policy, target string, authenticated bool) Decision {
	if policy.IsPublic(target) {
		if authenticated {
			return redirect(policy.HomePath)
		}
		return allow()
	}
	if !authenticated {
		return redirect(policy.LoginPath)
	}
	return allow()
}

func stripQuery(target string) string {
	if i := strings.IndexAny(target, "?#"); i >= 0 {
		return target[:i]
	}
	return target
}

// Authenticator reports the live session state.
type Authenticator interface {
	IsAuthenticated() bool
}

// Guard evaluates targets against a session.
type Guard struct {
	policy Policy
	auth   Authenticator
}

func New(policy Policy, auth Authenticator) *Guard {
	return &Guard{policy: policy, auth: auth}
}

func (g *Guard) Policy() Policy {
	return g.policy
}

func (g *Guard) Check(target string) Decision {
	return Evaluate(g.policy, target, g.auth.IsAuthenticated())
}
