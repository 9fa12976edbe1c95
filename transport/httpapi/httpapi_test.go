package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"golang.org/x/crypto/bcrypt"

	"github.com/MrEthical07/authcore"
	"github.com/MrEthical07/authcore/account"
	"github.com/MrEthical07/authcore/internal/observability"
	"github.com/MrEthical07/authcore/keystore"
	"github.com/MrEthical07/authcore/notify"
	"github.com/MrEthical07/authcore/store/memory"
)

const testPassword = "correct-horse-battery"

var (
	keysOnce sync.Once
	keys     *keystore.Store
	keysErr  error
)

func testKeys(t *testing.T) *keystore.Store {
	t.Helper()
	keysOnce.Do(func() {
		keys, keysErr = keystore.Generate(keystore.DefaultKeyBits, "")
	})
	if keysErr != nil {
		t.Fatalf("generate keys: %v", keysErr)
	}
	return keys
}

type captureNotifier struct {
	mu   sync.Mutex
	msgs []notify.Message
}

func (n *captureNotifier) Notify(_ context.Context, m notify.Message) error {
	n.mu.Lock()
	n.msgs = append(n.msgs, m)
	n.mu.Unlock()
	return nil
}

func (n *captureNotifier) count() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.msgs)
}

func (n *captureNotifier) last(t *testing.T, kind notify.Kind) notify.Message {
	t.Helper()
	n.mu.Lock()
	defer n.mu.Unlock()
	for i := len(n.msgs) - 1; i >= 0; i-- {
		if n.msgs[i].Kind == kind {
			return n.msgs[i]
		}
	}
	t.Fatalf("no %v notification sent", kind)
	return notify.Message{}
}

type testServer struct {
	handler http.Handler
	engine  *authcore.Engine
	store   *memory.Store
	notes   *captureNotifier
	logs    *bytes.Buffer
}

func newTestServer(t *testing.T, mutate func(*authcore.Config), opts Options) *testServer {
	t.Helper()

	cfg := authcore.DefaultConfig()
	cfg.Password.Memory = 8 * 1024
	cfg.Password.Time = 1
	cfg.Password.Parallelism = 1
	cfg.Audit.Enabled = false
	if mutate != nil {
		mutate(&cfg)
	}

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis.Run failed: %v", err)
	}
	t.Cleanup(mr.Close)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
	t.Cleanup(func() { _ = rdb.Close() })

	ts := &testServer{
		store: memory.New(),
		notes: &captureNotifier{},
		logs:  &bytes.Buffer{},
	}
	engine, err := authcore.New().
		WithConfig(cfg).
		WithStore(ts.store).
		WithRedis(rdb).
		WithKeyStore(testKeys(t)).
		WithNotifier(ts.notes).
		Build()
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	t.Cleanup(engine.Close)

	if opts.Logger == nil {
		opts.Logger = observability.NewLoggerTo(ts.logs)
	}
	ts.engine = engine
	ts.handler = NewRouter(engine, opts)
	return ts
}

func (ts *testServer) do(t *testing.T, method, path string, body any, header http.Header) *httptest.ResponseRecorder {
	t.Helper()
	var r io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		r = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, r)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range header {
		req.Header[k] = v
	}
	rec := httptest.NewRecorder()
	ts.handler.ServeHTTP(rec, req)
	return rec
}

func bearer(token string) http.Header {
	return http.Header{"Authorization": []string{"Bearer " + token}}
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode %q: %v", rec.Body.String(), err)
	}
	return out
}

// registerVerified runs register and verify-email over HTTP.
func (ts *testServer) registerVerified(t *testing.T, email string) {
	t.Helper()
	rec := ts.do(t, http.MethodPost, "/register", map[string]string{"email": email, "password": testPassword}, nil)
	if rec.Code != http.StatusCreated {
		t.Fatalf("register: expected 201, got %d %s", rec.Code, rec.Body)
	}
	code := ts.notes.last(t, notify.KindEmailVerification).Secret
	rec = ts.do(t, http.MethodPost, "/verify-email", map[string]string{"email": email, "code": code}, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("verify-email: expected 200, got %d %s", rec.Code, rec.Body)
	}
}

func (ts *testServer) login(t *testing.T, email, pass string) tokenResponse {
	t.Helper()
	rec := ts.do(t, http.MethodPost, "/login", map[string]string{"email": email, "password": pass}, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("login: expected 200, got %d %s", rec.Code, rec.Body)
	}
	return decode[tokenResponse](t, rec)
}

func TestRegisterVerifyLoginMe(t *testing.T) {
	ts := newTestServer(t, nil, Options{})

	rec := ts.do(t, http.MethodPost, "/register", map[string]string{"email": "a@x.com", "password": testPassword}, nil)
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d %s", rec.Code, rec.Body)
	}
	reg := decode[registerResponse](t, rec)
	if reg.Status != "pending_verification" || reg.VerificationExpiresAt == nil {
		t.Fatalf("unexpected register response %+v", reg)
	}

	rec = ts.do(t, http.MethodPost, "/login", map[string]string{"email": "a@x.com", "password": testPassword}, nil)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("unverified login: expected 401, got %d", rec.Code)
	}

	code := ts.notes.last(t, notify.KindEmailVerification).Secret
	rec = ts.do(t, http.MethodPost, "/verify-email", map[string]string{"email": "a@x.com", "code": code}, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("verify: expected 200, got %d %s", rec.Code, rec.Body)
	}

	pair := ts.login(t, "a@x.com", testPassword)
	if pair.AccessToken == "" || pair.RefreshToken == "" || pair.TokenType != "Bearer" {
		t.Fatalf("unexpected token response %+v", pair)
	}

	rec = ts.do(t, http.MethodGet, "/me", nil, bearer(pair.AccessToken))
	if rec.Code != http.StatusOK {
		t.Fatalf("me: expected 200, got %d %s", rec.Code, rec.Body)
	}
	me := decode[accountResponse](t, rec)
	if me.Email != "a@x.com" || me.Role != "user" || me.Status != "active" {
		t.Fatalf("unexpected account %+v", me)
	}
}

func TestRegisterErrors(t *testing.T) {
	ts := newTestServer(t, func(c *authcore.Config) { c.RateLimit.Enabled = false }, Options{})
	ts.registerVerified(t, "a@x.com")

	tests := []struct {
		name string
		body any
		want int
	}{
		{name: "duplicate", body: map[string]string{"email": "A@x.com", "password": testPassword}, want: http.StatusConflict},
		{name: "bad email", body: map[string]string{"email": "nope", "password": testPassword}, want: http.StatusBadRequest},
		{name: "short password", body: map[string]string{"email": "b@x.com", "password": "short"}, want: http.StatusBadRequest},
		{name: "unknown field", body: map[string]string{"email": "c@x.com", "password": testPassword, "role": "admin"}, want: http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := ts.do(t, http.MethodPost, "/register", tt.body, nil)
			if rec.Code != tt.want {
				t.Fatalf("expected %d, got %d %s", tt.want, rec.Code, rec.Body)
			}
		})
	}
}

func TestLoginLockoutReturnsLocked(t *testing.T) {
	ts := newTestServer(t, func(c *authcore.Config) { c.RateLimit.Enabled = false }, Options{})
	ts.registerVerified(t, "a@x.com")

	var first string
	for i := 1; i <= 5; i++ {
		rec := ts.do(t, http.MethodPost, "/login", map[string]string{"email": "a@x.com", "password": "wrong-password-1"}, nil)
		if rec.Code != http.StatusUnauthorized {
			t.Fatalf("attempt %d: expected 401, got %d", i, rec.Code)
		}
		if i == 1 {
			first = rec.Body.String()
		}
	}

	unknown := ts.do(t, http.MethodPost, "/login", map[string]string{"email": "ghost@x.com", "password": "wrong-password-1"}, nil)
	if unknown.Code != http.StatusUnauthorized || unknown.Body.String() != first {
		t.Fatalf("unknown email response differs: %d %s vs %s", unknown.Code, unknown.Body, first)
	}

	rec := ts.do(t, http.MethodPost, "/login", map[string]string{"email": "a@x.com", "password": testPassword}, nil)
	if rec.Code != http.StatusLocked {
		t.Fatalf("expected 423, got %d %s", rec.Code, rec.Body)
	}
}

func TestLoginRateLimited(t *testing.T) {
	ts := newTestServer(t, nil, Options{})

	for i := 1; i <= 5; i++ {
		rec := ts.do(t, http.MethodPost, "/login", map[string]string{"email": "ghost@x.com", "password": "whatever-pass"}, nil)
		if rec.Code != http.StatusUnauthorized {
			t.Fatalf("attempt %d: expected 401, got %d", i, rec.Code)
		}
	}
	rec := ts.do(t, http.MethodPost, "/login", map[string]string{"email": "GHOST@x.com", "password": "whatever-pass"}, nil)
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", rec.Code)
	}
	secs, err := strconv.Atoi(rec.Header().Get("Retry-After"))
	if err != nil || secs < 1 || secs > 300 {
		t.Fatalf("unexpected Retry-After %q", rec.Header().Get("Retry-After"))
	}

	// A different email has its own window.
	rec = ts.do(t, http.MethodPost, "/login", map[string]string{"email": "other@x.com", "password": "whatever-pass"}, nil)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 for other email, got %d", rec.Code)
	}
}

func TestRefreshRotationAndReplay(t *testing.T) {
	ts := newTestServer(t, nil, Options{})
	ts.registerVerified(t, "a@x.com")
	pair := ts.login(t, "a@x.com", testPassword)

	rec := ts.do(t, http.MethodPost, "/refresh", map[string]string{"refreshToken": pair.RefreshToken}, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("refresh: expected 200, got %d %s", rec.Code, rec.Body)
	}
	next := decode[tokenResponse](t, rec)
	if next.RefreshToken == pair.RefreshToken {
		t.Fatal("expected rotated refresh token")
	}

	rec = ts.do(t, http.MethodPost, "/refresh", map[string]string{"refreshToken": pair.RefreshToken}, nil)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("replay: expected 401, got %d", rec.Code)
	}
	if body := decode[map[string]string](t, rec); body["error"] != "invalid token" {
		t.Fatalf("unexpected body %v", body)
	}
}

func TestLogoutRevokesAllRefreshTokens(t *testing.T) {
	ts := newTestServer(t, nil, Options{})
	ts.registerVerified(t, "a@x.com")
	one := ts.login(t, "a@x.com", testPassword)
	two := ts.login(t, "a@x.com", testPassword)

	if rec := ts.do(t, http.MethodPost, "/logout", nil, nil); rec.Code != http.StatusUnauthorized {
		t.Fatalf("unauthenticated logout: expected 401, got %d", rec.Code)
	}
	if rec := ts.do(t, http.MethodPost, "/logout", nil, bearer(one.AccessToken)); rec.Code != http.StatusNoContent {
		t.Fatalf("logout: expected 204, got %d %s", rec.Code, rec.Body)
	}

	for _, p := range []tokenResponse{one, two} {
		rec := ts.do(t, http.MethodPost, "/refresh", map[string]string{"refreshToken": p.RefreshToken}, nil)
		if rec.Code != http.StatusUnauthorized {
			t.Fatalf("expected 401 after logout, got %d", rec.Code)
		}
	}
}

func TestForgotPasswordDoesNotEnumerate(t *testing.T) {
	ts := newTestServer(t, nil, Options{})
	ts.registerVerified(t, "a@x.com")
	before := ts.notes.count()

	known := ts.do(t, http.MethodPost, "/forgot-password", map[string]string{"email": "a@x.com"}, nil)
	unknown := ts.do(t, http.MethodPost, "/forgot-password", map[string]string{"email": "ghost@x.com"}, nil)
	if known.Code != http.StatusOK || unknown.Code != http.StatusOK {
		t.Fatalf("expected 200 twice, got %d and %d", known.Code, unknown.Code)
	}
	if known.Body.String() != unknown.Body.String() {
		t.Fatalf("bodies differ: %s vs %s", known.Body, unknown.Body)
	}
	if got := ts.notes.count() - before; got != 1 {
		t.Fatalf("expected one reset notification, got %d", got)
	}
}

func TestResetPasswordFlow(t *testing.T) {
	ts := newTestServer(t, nil, Options{})
	ts.registerVerified(t, "a@x.com")
	old := ts.login(t, "a@x.com", testPassword)

	ts.do(t, http.MethodPost, "/forgot-password", map[string]string{"email": "a@x.com"}, nil)
	token := ts.notes.last(t, notify.KindPasswordReset).Secret

	rec := ts.do(t, http.MethodPost, "/reset-password", map[string]string{"token": token, "newPassword": "x"}, nil)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("weak password: expected 400, got %d", rec.Code)
	}
	rec = ts.do(t, http.MethodPost, "/reset-password", map[string]string{"token": token, "newPassword": "a-brand-new-secret"}, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("reset: expected 200, got %d %s", rec.Code, rec.Body)
	}
	rec = ts.do(t, http.MethodPost, "/reset-password", map[string]string{"token": token, "newPassword": "another-new-secret"}, nil)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("reused token: expected 400, got %d", rec.Code)
	}

	rec = ts.do(t, http.MethodPost, "/refresh", map[string]string{"refreshToken": old.RefreshToken}, nil)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("refresh after reset: expected 401, got %d", rec.Code)
	}
	ts.login(t, "a@x.com", "a-brand-new-secret")
}

func TestVerifyEmailWrongCode(t *testing.T) {
	ts := newTestServer(t, nil, Options{})
	rec := ts.do(t, http.MethodPost, "/register", map[string]string{"email": "a@x.com", "password": testPassword}, nil)
	if rec.Code != http.StatusCreated {
		t.Fatalf("register: %d", rec.Code)
	}
	code := ts.notes.last(t, notify.KindEmailVerification).Secret
	wrong := "000000"
	if code == wrong {
		wrong = "111111"
	}

	rec = ts.do(t, http.MethodPost, "/verify-email", map[string]string{"email": "a@x.com", "code": wrong}, nil)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
	if body := decode[map[string]string](t, rec); body["error"] != "invalid or expired code" {
		t.Fatalf("unexpected body %v", body)
	}

	rec = ts.do(t, http.MethodPost, "/resend-verification", map[string]string{"email": "ghost@x.com"}, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("resend unknown: expected 200, got %d", rec.Code)
	}
}

func TestAdminUnlock(t *testing.T) {
	ts := newTestServer(t, func(c *authcore.Config) { c.RateLimit.Enabled = false }, Options{})
	ctx := context.Background()

	hash, err := bcrypt.GenerateFromPassword([]byte(testPassword), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("bcrypt: %v", err)
	}
	if _, err := ts.store.CreateAccount(ctx, account.Account{
		Email:        "root@x.com",
		PasswordHash: string(hash),
		Role:         AdminRole,
		Status:       account.StatusActive,
		CreatedAt:    time.Now(),
	}); err != nil {
		t.Fatalf("CreateAccount: %v", err)
	}
	admin := ts.login(t, "root@x.com", testPassword)

	ts.registerVerified(t, "a@x.com")
	user := ts.login(t, "a@x.com", testPassword)
	for i := 0; i < 5; i++ {
		ts.do(t, http.MethodPost, "/login", map[string]string{"email": "a@x.com", "password": "wrong-password-1"}, nil)
	}
	acct, err := ts.store.GetAccountByEmail(ctx, "a@x.com")
	if err != nil {
		t.Fatalf("GetAccountByEmail: %v", err)
	}
	path := "/admin/accounts/" + strconv.FormatInt(acct.ID, 10) + "/unlock"

	if rec := ts.do(t, http.MethodPost, path, nil, bearer(user.AccessToken)); rec.Code != http.StatusForbidden {
		t.Fatalf("user unlock: expected 403, got %d", rec.Code)
	}
	if rec := ts.do(t, http.MethodPost, "/admin/accounts/999/unlock", nil, bearer(admin.AccessToken)); rec.Code != http.StatusNotFound {
		t.Fatalf("unknown account: expected 404, got %d", rec.Code)
	}
	if rec := ts.do(t, http.MethodPost, "/admin/accounts/abc/unlock", nil, bearer(admin.AccessToken)); rec.Code != http.StatusBadRequest {
		t.Fatalf("bad id: expected 400, got %d", rec.Code)
	}
	if rec := ts.do(t, http.MethodPost, path, nil, bearer(admin.AccessToken)); rec.Code != http.StatusNoContent {
		t.Fatalf("unlock: expected 204, got %d %s", rec.Code, rec.Body)
	}
	ts.login(t, "a@x.com", testPassword)
}

func TestKeySetAndHealth(t *testing.T) {
	ready := errors.New("db down")
	var fail bool
	ts := newTestServer(t, nil, Options{
		Metrics: http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			_, _ = io.WriteString(w, "authcore_login_success_total 0\n")
		}),
		Ready: func(context.Context) error {
			if fail {
				return ready
			}
			return nil
		},
	})

	rec := ts.do(t, http.MethodGet, "/.well-known/jwks.json", nil, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("jwks: expected 200, got %d", rec.Code)
	}
	want, err := ts.engine.KeySetJSON()
	if err != nil {
		t.Fatalf("KeySetJSON: %v", err)
	}
	if !bytes.Equal(rec.Body.Bytes(), want) {
		t.Fatalf("jwks body mismatch:\n%s\n%s", rec.Body, want)
	}

	if rec := ts.do(t, http.MethodGet, "/metrics", nil, nil); rec.Code != http.StatusOK {
		t.Fatalf("metrics: expected 200, got %d", rec.Code)
	}
	if rec := ts.do(t, http.MethodGet, "/health", nil, nil); rec.Code != http.StatusOK {
		t.Fatalf("health: expected 200, got %d", rec.Code)
	}
	fail = true
	if rec := ts.do(t, http.MethodGet, "/health", nil, nil); rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("health: expected 503, got %d", rec.Code)
	}
}

func TestClientIPHonoursTrustSetting(t *testing.T) {
	h := &Handler{}
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "10.0.0.1:5555"
	req.Header.Set("X-Forwarded-For", "203.0.113.9, 10.0.0.2")

	if got := h.clientIP(req); got != "10.0.0.1" {
		t.Fatalf("untrusted: got %q", got)
	}
	h.trustFF = true
	if got := h.clientIP(req); got != "203.0.113.9" {
		t.Fatalf("trusted: got %q", got)
	}
}
