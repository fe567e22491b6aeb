package chat

import (
	"context"
	"fmt"
	"strings"
)

// Mode selects whether turns are persisted.
type Mode int

const (
	// ModePersistent stores conversations, optionally scoped to an identity.
	ModePersistent Mode = iota
	// ModeStateless never touches storage.
	ModeStateless
)

func (m Mode) String() string {
	if m == ModeStateless {
		return "stateless"
	}
	return "persistent"
}

// ParseMode accepts "persistent" or "stateless".
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "persistent":
		return ModePersistent, nil
	case "stateless":
		return ModeStateless, nil
	default:
		return 0, fmt.Errorf("unknown chat mode %q", s)
	}
}

// IdentityFunc resolves the acting user from a request context. An empty
// identity means the caller is anonymous.
type IdentityFunc func(ctx context.Context) (string, error)

// resolveIdentity returns the acting identity in persistent mode. With no
// IdentityFunc configured conversations are unscoped and the identity is
// empty. With one configured, an empty or failed resolution is a denial.
func (p *Pipeline) resolveIdentity(ctx context.Context) (string, error) {
	if p.identity == nil {
		return "", nil
	}
	id, err := p.identity(ctx)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrAuthorizationDenied, err)
	}
	id = strings.TrimSpace(id)
	if id == "" {
		return "", fmt.Errorf("%w: no identity", ErrAuthorizationDenied)
	}
	return id, nil
}

// checkOwnership denies access when both the caller and the conversation
// carry an identity and they differ.
func checkOwnership(identity, owner string) error {
	if identity != "" && owner != "" && identity != owner {
		return fmt.Errorf("%w: conversation belongs to another user", ErrAuthorizationDenied)
	}
	return nil
}
