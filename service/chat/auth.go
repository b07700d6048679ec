package chat

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/Hyung-98/ChatbotSocket-sub000/service/storage"
	"github.com/Hyung-98/ChatbotSocket-sub000/tools/errs"
	"github.com/Hyung-98/ChatbotSocket-sub000/tools/security"
)

// TokenVerifier checks signature/expiry and yields the token subject.
// No retries happen inside the gate; a bad token terminates the session.
type TokenVerifier interface {
	Verify(token string) (subject string, err error)
}

// JWTVerifier is the production TokenVerifier.
type JWTVerifier struct {
	Opts security.Options
}

func (v JWTVerifier) Verify(token string) (string, error) {
	claims, err := security.Verify(v.Opts, token)
	if err != nil {
		return "", err
	}
	return claims.Subject()
}

// ResolveToken extracts the bearer token with strict priority:
// explicit auth-payload field > Authorization header > query parameter.
// First non-empty source wins; absence of all three is a fatal auth error.
func ResolveToken(payloadToken string, r *http.Request) (string, error) {
	if t := strings.TrimSpace(payloadToken); t != "" {
		return t, nil
	}
	if h := strings.TrimSpace(r.Header.Get("Authorization")); h != "" {
		if strings.HasPrefix(strings.ToLower(h), "bearer ") {
			h = strings.TrimSpace(h[len("bearer "):])
		}
		if h != "" {
			return h, nil
		}
	}
	if q := strings.TrimSpace(r.URL.Query().Get("token")); q != "" {
		return q, nil
	}
	return "", errs.ErrAuth.WithDetail("no token in payload, header or query")
}

// AuthGate validates a session at handshake and resolves its identity.
type AuthGate struct {
	Verifier TokenVerifier
	Users    storage.UserStore
}

// Authenticate verifies the token and resolves the subject to a user record.
// A verified-but-unknown subject is as fatal as a bad signature.
func (g *AuthGate) Authenticate(ctx context.Context, token string) (*storage.User, error) {
	sub, err := g.Verifier.Verify(token)
	if err != nil {
		return nil, errs.ErrAuth.WrapMsg("verify token: %v", err)
	}
	u, err := g.Users.FindByID(ctx, sub)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, errs.ErrAuth.WrapMsg("unknown subject %s", sub)
		}
		return nil, errs.ErrPersistence.WrapMsg("lookup subject %s: %v", sub, err)
	}
	return u, nil
}
