package chat

import (
	"context"
	"errors"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/Hyung-98/ChatbotSocket-sub000/service/storage"
	"github.com/Hyung-98/ChatbotSocket-sub000/tools/errs"
	"github.com/Hyung-98/ChatbotSocket-sub000/tools/security"
)

type fakeVerifier struct {
	subject string
	err     error
}

func (v fakeVerifier) Verify(string) (string, error) { return v.subject, v.err }

func TestResolveTokenPriority(t *testing.T) {
	req := httptest.NewRequest("GET", "/ws?token=from-query", nil)
	req.Header.Set("Authorization", "Bearer from-header")

	// payload beats header beats query
	if tok, _ := ResolveToken("from-payload", req); tok != "from-payload" {
		t.Errorf("token = %q, want from-payload", tok)
	}
	if tok, _ := ResolveToken("", req); tok != "from-header" {
		t.Errorf("token = %q, want from-header", tok)
	}

	req.Header.Del("Authorization")
	if tok, _ := ResolveToken("", req); tok != "from-query" {
		t.Errorf("token = %q, want from-query", tok)
	}

	bare := httptest.NewRequest("GET", "/ws", nil)
	if _, err := ResolveToken("", bare); !errors.Is(err, errs.ErrAuth) {
		t.Errorf("no token err = %v, want auth error", err)
	}

	// a raw (non-Bearer) Authorization value is taken as-is
	bare.Header.Set("Authorization", "raw-token")
	if tok, _ := ResolveToken("", bare); tok != "raw-token" {
		t.Errorf("token = %q, want raw-token", tok)
	}
}

func TestAuthenticate(t *testing.T) {
	store := newFakeStore()
	store.users["u1"] = storage.User{ID: "u1", Name: "Ada"}

	gate := &AuthGate{Verifier: fakeVerifier{subject: "u1"}, Users: store}
	u, err := gate.Authenticate(context.Background(), "tok")
	if err != nil {
		t.Fatalf("authenticate: %v", err)
	}
	if u.ID != "u1" || u.Name != "Ada" {
		t.Errorf("user = %+v", u)
	}

	// bad signature
	gate = &AuthGate{Verifier: fakeVerifier{err: errors.New("expired")}, Users: store}
	if _, err := gate.Authenticate(context.Background(), "tok"); !errors.Is(err, errs.ErrAuth) {
		t.Errorf("bad token err = %v, want auth", err)
	}

	// verified token for a subject with no user record
	gate = &AuthGate{Verifier: fakeVerifier{subject: "ghost"}, Users: store}
	if _, err := gate.Authenticate(context.Background(), "tok"); !errors.Is(err, errs.ErrAuth) {
		t.Errorf("unknown subject err = %v, want auth", err)
	}

	// store outage is surfaced as persistence, not auth
	broken := newFakeStore()
	broken.failWith = errors.New("mongo down")
	gate = &AuthGate{Verifier: fakeVerifier{subject: "u1"}, Users: broken}
	if _, err := gate.Authenticate(context.Background(), "tok"); !errors.Is(err, errs.ErrPersistence) {
		t.Errorf("store outage err = %v, want persistence", err)
	}
}

func TestJWTVerifierRoundTrip(t *testing.T) {
	opts := security.Options{Secret: []byte("test-secret"), Alg: "HS256", TTL: time.Minute}
	tok, _, err := security.Generate(opts, "u42")
	if err != nil {
		t.Fatalf("generate: %v", err)
	}

	v := JWTVerifier{Opts: opts}
	sub, err := v.Verify(tok)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if sub != "u42" {
		t.Errorf("subject = %q, want u42", sub)
	}

	// wrong key must fail closed
	v = JWTVerifier{Opts: security.Options{Secret: []byte("other"), Alg: "HS256"}}
	if _, err := v.Verify(tok); err == nil {
		t.Error("verify with wrong key succeeded")
	}

	if _, err := v.Verify("not-a-jwt"); err == nil {
		t.Error("verify of garbage succeeded")
	}
}
