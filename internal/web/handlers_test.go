// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package web_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/holomush/accountd/internal/account"
	"github.com/holomush/accountd/internal/account/memory"
	"github.com/holomush/accountd/internal/observability"
	"github.com/holomush/accountd/internal/session"
	"github.com/holomush/accountd/internal/web"
)

// tokenNotifier records the last token mailed to each address.
type tokenNotifier struct {
	mu     sync.Mutex
	verify map[string]string
	reset  map[string]string
}

func newTokenNotifier() *tokenNotifier {
	return &tokenNotifier{verify: map[string]string{}, reset: map[string]string{}}
}

func (n *tokenNotifier) SendVerification(_ context.Context, acct *account.Account, token string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.verify[acct.Email] = token
	return nil
}

func (n *tokenNotifier) SendPasswordReset(_ context.Context, acct *account.Account, token string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.reset[acct.Email] = token
	return nil
}

func (n *tokenNotifier) verifyToken(email string) string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.verify[email]
}

func (n *tokenNotifier) resetToken(email string) string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.reset[email]
}

type harness struct {
	t        *testing.T
	srv      *httptest.Server
	client   *http.Client
	notifier *tokenNotifier
	accounts *memory.AccountStore
	metrics  *observability.Metrics
}

func newHarness(t *testing.T) *harness {
	t.Helper()

	accounts := memory.NewAccountStore()
	notifier := newTokenNotifier()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	svc, err := account.NewService(account.ServiceDeps{
		Accounts: accounts,
		Resets:   memory.NewResetStore(),
		Hasher:   account.NewBcryptHasher(bcrypt.MinCost),
		Notifier: notifier,
		Logger:   logger,
	})
	require.NoError(t, err)

	codec, err := session.NewJWTCodec(accounts, []byte(strings.Repeat("s", session.MinSecretLength)), time.Hour)
	require.NoError(t, err)

	metrics := observability.NewMetrics(prometheus.NewRegistry())
	server, err := web.NewServer(web.Deps{
		Accounts: svc,
		Sessions: codec,
		Metrics:  metrics,
		Logger:   logger,
	}, web.Options{})
	require.NoError(t, err)

	srv := httptest.NewServer(server.Handler())
	t.Cleanup(srv.Close)

	return &harness{
		t:        t,
		srv:      srv,
		client:   newClient(t),
		notifier: notifier,
		accounts: accounts,
		metrics:  metrics,
	}
}

func newClient(t *testing.T) *http.Client {
	t.Helper()
	jar, err := cookiejar.New(nil)
	require.NoError(t, err)
	return &http.Client{
		Jar:       jar,
		Timeout:   10 * time.Second,
		Transport: &http.Transport{DisableKeepAlives: true},
	}
}

type page struct {
	path   string
	status int
	body   string
}

func (h *harness) do(req *http.Request) page {
	h.t.Helper()
	resp, err := h.client.Do(req)
	require.NoError(h.t, err)
	defer func() { _ = resp.Body.Close() }()
	body, err := io.ReadAll(resp.Body)
	require.NoError(h.t, err)
	return page{path: resp.Request.URL.Path, status: resp.StatusCode, body: string(body)}
}

func (h *harness) get(path string) page {
	h.t.Helper()
	req, err := http.NewRequest(http.MethodGet, h.srv.URL+path, nil)
	require.NoError(h.t, err)
	return h.do(req)
}

func (h *harness) post(path string, form url.Values) page {
	h.t.Helper()
	req, err := http.NewRequest(http.MethodPost, h.srv.URL+path, strings.NewReader(form.Encode()))
	require.NoError(h.t, err)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return h.do(req)
}

func (h *harness) register(email, username, password string) page {
	h.t.Helper()
	return h.post("/users/register", url.Values{
		"email":                {email},
		"username":             {username},
		"password":             {password},
		"confirmationPassword": {password},
	})
}

func (h *harness) login(email, password string) page {
	h.t.Helper()
	return h.post("/users/login", url.Values{"email": {email}, "password": {password}})
}

func TestScenario_RegisterVerifyLoginLogout(t *testing.T) {
	h := newHarness(t)

	p := h.register("alice@example.com", "alice", "abc123")
	assert.Equal(t, "/users/login", p.path)
	assert.Contains(t, p.body, web.MsgCheckEmail)

	acct, err := h.accounts.FindByEmail(context.Background(), "alice@example.com")
	require.NoError(t, err)
	assert.False(t, acct.Active)
	assert.NotEqual(t, "abc123", acct.PasswordHash)

	p = h.login("alice@example.com", "abc123")
	assert.Equal(t, "/users/login", p.path)
	assert.Contains(t, p.body, account.ReasonUnverified)

	token := h.notifier.verifyToken("alice@example.com")
	require.NotEmpty(t, token)

	p = h.get("/users/verify?token=" + token)
	assert.Contains(t, p.body, `value="`+token+`"`)

	p = h.post("/users/verify", url.Values{"secretToken": {token}})
	assert.Equal(t, "/users/login", p.path)
	assert.Contains(t, p.body, web.MsgVerified)

	p = h.login("alice@example.com", "abc123")
	assert.Equal(t, "/users/dashboard", p.path)
	assert.Equal(t, http.StatusOK, p.status)
	assert.Contains(t, p.body, "Hello alice")

	p = h.get("/users/login")
	assert.Equal(t, "/", p.path)
	assert.Contains(t, p.body, web.MsgAlreadyLoggedIn)

	p = h.get("/users/register")
	assert.Equal(t, "/", p.path)
	assert.Contains(t, p.body, web.MsgAlreadyLoggedIn)

	p = h.get("/users/logout")
	assert.Equal(t, "/", p.path)
	assert.Contains(t, p.body, web.MsgLoggedOut)

	p = h.get("/users/dashboard")
	assert.Equal(t, "/", p.path)
	assert.Contains(t, p.body, web.MsgMustRegister)

	assert.InDelta(t, 1, testutil.ToFloat64(h.metrics.AuthOutcomes.WithLabelValues("unverified")), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(h.metrics.AuthOutcomes.WithLabelValues("authenticated")), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(h.metrics.AccountEvents.WithLabelValues("registered")), 0)
}

func TestFlash_ShownOnce(t *testing.T) {
	h := newHarness(t)

	p := h.register("alice@example.com", "alice", "abc123")
	assert.Contains(t, p.body, web.MsgCheckEmail)

	p = h.get("/users/login")
	assert.NotContains(t, p.body, web.MsgCheckEmail)
}

func TestRegister_Rejections(t *testing.T) {
	h := newHarness(t)

	tests := []struct {
		name string
		form url.Values
	}{
		{"bad email", url.Values{"email": {"nope"}, "username": {"a"}, "password": {"abc123"}, "confirmationPassword": {"abc123"}}},
		{"missing username", url.Values{"email": {"a@example.com"}, "password": {"abc123"}, "confirmationPassword": {"abc123"}}},
		{"short password", url.Values{"email": {"a@example.com"}, "username": {"a"}, "password": {"ab"}, "confirmationPassword": {"ab"}}},
		{"symbol in password", url.Values{"email": {"a@example.com"}, "username": {"a"}, "password": {"abc-123"}, "confirmationPassword": {"abc-123"}}},
		{"confirmation mismatch", url.Values{"email": {"a@example.com"}, "username": {"a"}, "password": {"abc123"}, "confirmationPassword": {"abc124"}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := h.post("/users/register", tt.form)
			assert.Equal(t, "/users/register", p.path)
			assert.Contains(t, p.body, web.MsgInvalidData)
		})
	}

	list, err := h.accounts.List(context.Background(), 0, 0)
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestRegister_DuplicateEmail(t *testing.T) {
	h := newHarness(t)

	h.register("alice@example.com", "alice", "abc123")
	p := h.register("ALICE@example.com", "other", "xyz789")
	assert.Equal(t, "/users/register", p.path)
	assert.Contains(t, p.body, web.MsgEmailInUse)
}

func TestVerify_UnknownToken(t *testing.T) {
	h := newHarness(t)

	p := h.post("/users/verify", url.Values{"secretToken": {"does-not-exist"}})
	assert.Equal(t, "/users/verify", p.path)
	assert.Contains(t, p.body, web.MsgNoUser)

	p = h.post("/users/verify", url.Values{})
	assert.Contains(t, p.body, web.MsgNoUser)
}

func TestVerify_SecondUseReportsNoUser(t *testing.T) {
	h := newHarness(t)
	h.register("alice@example.com", "alice", "abc123")
	token := h.notifier.verifyToken("alice@example.com")

	h.post("/users/verify", url.Values{"secretToken": {token}})
	p := h.post("/users/verify", url.Values{"secretToken": {token}})
	assert.Contains(t, p.body, web.MsgNoUser)
}

func TestLogin_Failures(t *testing.T) {
	h := newHarness(t)
	h.register("alice@example.com", "alice", "abc123")
	h.post("/users/verify", url.Values{"secretToken": {h.notifier.verifyToken("alice@example.com")}})

	p := h.login("bob@example.com", "abc123")
	assert.Equal(t, "/users/login", p.path)
	assert.Contains(t, p.body, account.ReasonUnknownUser)

	p = h.login("alice@example.com", "wrong1")
	assert.Equal(t, "/users/login", p.path)
	assert.Contains(t, p.body, account.ReasonBadPassword)
}

func TestPasswordReset_Flow(t *testing.T) {
	h := newHarness(t)
	h.register("alice@example.com", "alice", "abc123")
	h.post("/users/verify", url.Values{"secretToken": {h.notifier.verifyToken("alice@example.com")}})

	p := h.post("/users/forget", url.Values{"email": {"nobody@example.com"}})
	assert.Equal(t, "/users/forget", p.path)
	assert.Contains(t, p.body, web.MsgEmailNotFound)

	p = h.post("/users/forget", url.Values{"email": {"alice@example.com"}})
	assert.Equal(t, "/users/login", p.path)
	assert.Contains(t, p.body, web.MsgResetSent)

	token := h.notifier.resetToken("alice@example.com")
	require.NotEmpty(t, token)
	resetPath := "/users/reset/" + token

	p = h.get(resetPath)
	assert.Equal(t, http.StatusOK, p.status)
	assert.Contains(t, p.body, `action="`+resetPath+`"`)

	p = h.post(resetPath, url.Values{"password": {"new123"}, "confirmationPassword": {"new124"}})
	assert.Equal(t, resetPath, p.path)
	assert.Contains(t, p.body, web.MsgInvalidData)

	p = h.post(resetPath, url.Values{"password": {"new123"}, "confirmationPassword": {"new123"}})
	assert.Equal(t, "/users/login", p.path)
	assert.Contains(t, p.body, web.MsgPasswordUpdated)

	p = h.login("alice@example.com", "abc123")
	assert.Contains(t, p.body, account.ReasonBadPassword)

	p = h.login("alice@example.com", "new123")
	assert.Equal(t, "/users/dashboard", p.path)

	h.get("/users/logout")
	p = h.post(resetPath, url.Values{"password": {"again1"}, "confirmationPassword": {"again1"}})
	assert.Equal(t, "/users/forget", p.path)
	assert.Contains(t, p.body, web.MsgResetInvalid)
}

func TestPasswordReset_UnknownToken(t *testing.T) {
	h := newHarness(t)

	p := h.get("/users/reset/bogus")
	assert.Equal(t, "/users/forget", p.path)
	assert.Contains(t, p.body, web.MsgResetInvalid)
}

func TestSession_TamperedCookieIsAnonymous(t *testing.T) {
	h := newHarness(t)

	u, err := url.Parse(h.srv.URL)
	require.NoError(t, err)
	h.client.Jar.SetCookies(u, []*http.Cookie{{Name: web.DefaultCookieName, Value: "forged", Path: "/"}})

	p := h.get("/users/dashboard")
	assert.Equal(t, "/", p.path)
	assert.Contains(t, p.body, web.MsgMustRegister)

	for _, c := range h.client.Jar.Cookies(u) {
		assert.NotEqual(t, web.DefaultCookieName, c.Name, "stale session cookie should be cleared")
	}
}

func TestUnknownRoute(t *testing.T) {
	h := newHarness(t)
	assert.Equal(t, http.StatusNotFound, h.get("/nope").status)
}

// brokenService fails every call with an unexpected error.
type brokenService struct{}

var errStoreDown = errors.New("store down")

func (brokenService) Register(context.Context, account.RegisterInput) (*account.Account, error) {
	return nil, errStoreDown
}

func (brokenService) Verify(context.Context, string) (*account.Account, error) {
	return nil, errStoreDown
}

func (brokenService) Login(context.Context, string, string) (account.Outcome, error) {
	return account.Outcome{}, errStoreDown
}

func (brokenService) RequestPasswordReset(context.Context, string) error { return errStoreDown }

func (brokenService) ValidateResetToken(context.Context, string) (*account.Account, error) {
	return nil, errStoreDown
}

func (brokenService) ResetPassword(context.Context, string, account.ResetInput) error {
	return errStoreDown
}

func TestUnexpectedErrorsRenderErrorPage(t *testing.T) {
	codec, err := session.NewJWTCodec(memory.NewAccountStore(), []byte(strings.Repeat("s", session.MinSecretLength)), 0)
	require.NoError(t, err)
	server, err := web.NewServer(web.Deps{
		Accounts: brokenService{},
		Sessions: codec,
		Logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
	}, web.Options{})
	require.NoError(t, err)

	handler := server.Handler()
	form := url.Values{
		"email": {"a@example.com"}, "username": {"a"}, "password": {"abc123"},
		"confirmationPassword": {"abc123"}, "secretToken": {"t"},
	}.Encode()

	for _, path := range []string{"/users/register", "/users/login", "/users/verify", "/users/forget", "/users/reset/tok"} {
		t.Run(path, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(form))
			req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)

			assert.Equal(t, http.StatusInternalServerError, rec.Code)
			assert.Contains(t, rec.Body.String(), "Something went wrong")
			assert.NotContains(t, rec.Body.String(), "store down")
		})
	}
}

func TestNewServer_RequiresDeps(t *testing.T) {
	_, err := web.NewServer(web.Deps{}, web.Options{})
	require.Error(t, err)

	_, err = web.NewServer(web.Deps{Accounts: brokenService{}}, web.Options{})
	require.Error(t, err)
}
