package app

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"path"
	"strconv"
	"testing"

	"github.com/bizstudio/portal/internal/audit"
	"github.com/bizstudio/portal/internal/config"
	"github.com/bizstudio/portal/internal/ratelimit"
	"github.com/bizstudio/portal/internal/session"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const companionOrigin = "https://tender-reverence-production.up.railway.app"

type portalClient struct {
	t      *testing.T
	engine *gin.Engine
}

type call struct {
	method string
	path   string
	body   any
	cookie *http.Cookie
	bearer string
	origin string
	// forwardedFor sets X-Forwarded-For on the request.
	forwardedFor string
}

func (p portalClient) do(c call) *httptest.ResponseRecorder {
	p.t.Helper()
	var payload []byte
	switch body := c.body.(type) {
	case nil:
	case string:
		payload = []byte(body)
	default:
		var err error
		payload, err = json.Marshal(body)
		require.NoError(p.t, err)
	}
	req := httptest.NewRequest(c.method, c.path, bytes.NewReader(payload))
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.cookie != nil {
		req.AddCookie(c.cookie)
	}
	if c.bearer != "" {
		req.Header.Set("Authorization", "Bearer "+c.bearer)
	}
	if c.origin != "" {
		req.Header.Set("Origin", c.origin)
	}
	if c.forwardedFor != "" {
		req.Header.Set("X-Forwarded-For", c.forwardedFor)
	}
	rec := httptest.NewRecorder()
	p.engine.ServeHTTP(rec, req)
	return rec
}

func (p portalClient) login(email, password string) *http.Cookie {
	p.t.Helper()
	rec := p.do(call{method: http.MethodPost, path: "/auth/login", body: gin.H{"email": email, "password": password}})
	require.Equal(p.t, http.StatusOK, rec.Code, rec.Body.String())
	for _, cookie := range rec.Result().Cookies() {
		if cookie.Name == session.CookieName {
			return cookie
		}
	}
	p.t.Fatalf("login did not set %s", session.CookieName)
	return nil
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	out := map[string]any{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

func newPortalClient(t *testing.T) portalClient {
	t.Helper()
	gin.SetMode(gin.TestMode)
	conn := openTestDB(t)
	require.NoError(t, CreateAdminUserWithConn(conn, "admin@example.com", "Admin", "admin-password"))

	engine, err := NewEngine(conn, config.Config{
		Environment:   config.EnvironmentDevelopment,
		SessionSecret: "session-secret",
		VaultSecret:   "vault-secret",
	}, nil)
	require.NoError(t, err)
	return portalClient{t: t, engine: engine}
}

func newThrottledClient(t *testing.T, trustedProxies []string) portalClient {
	t.Helper()
	gin.SetMode(gin.TestMode)
	conn := openTestDB(t)

	cfg := config.Config{
		Environment:    config.EnvironmentDevelopment,
		SessionSecret:  "session-secret",
		VaultSecret:    "vault-secret",
		TrustedProxies: trustedProxies,
		RateLimit:      config.RateLimitConfig{LoginPerMinute: 3, VerifyPerMinute: 3},
	}
	limiter := ratelimit.NewManager(ratelimit.StaticSettings(ratelimit.SettingsFromConfig(cfg.RateLimit)), nil, nil)
	t.Cleanup(func() { _ = limiter.Close() })

	engine, err := NewEngine(conn, cfg, limiter)
	require.NoError(t, err)
	return portalClient{t: t, engine: engine}
}

func loginCodes(p portalClient, attempts int) []int {
	codes := make([]int, 0, attempts)
	for i := 0; i < attempts; i++ {
		rec := p.do(call{
			method:       http.MethodPost,
			path:         "/auth/login",
			body:         gin.H{"email": "admin@example.com", "password": "wrong-password"},
			forwardedFor: "203.0.113." + strconv.Itoa(i+1),
		})
		codes = append(codes, rec.Code)
	}
	return codes
}

func TestPortal_LoginThrottleIgnoresSpoofedForwardedFor(t *testing.T) {
	p := newThrottledClient(t, nil)

	codes := loginCodes(p, 10)
	assert.Equal(t, []int{http.StatusUnauthorized, http.StatusUnauthorized, http.StatusUnauthorized}, codes[:3])
	assert.Contains(t, codes[3:], http.StatusTooManyRequests)
}

func TestPortal_LoginThrottleHonoursTrustedProxy(t *testing.T) {
	// httptest requests arrive from 192.0.2.1.
	p := newThrottledClient(t, []string{"192.0.2.1"})

	for _, code := range loginCodes(p, 10) {
		assert.Equal(t, http.StatusUnauthorized, code)
	}
}

func TestNewEngine_RejectsInvalidTrustedProxy(t *testing.T) {
	conn := openTestDB(t)
	_, err := NewEngine(conn, config.Config{
		SessionSecret:  "session-secret",
		VaultSecret:    "vault-secret",
		TrustedProxies: []string{"not-an-ip"},
	}, nil)
	assert.Error(t, err)
}

func TestPortal_InviteToCompanionHandoff(t *testing.T) {
	p := newPortalClient(t)
	adminCookie := p.login("admin@example.com", "admin-password")

	rec := p.do(call{method: http.MethodPost, path: "/admin/systems", cookie: adminCookie, body: gin.H{
		"name":          "Material Creator",
		"url":           "https://materials.example.com",
		"app_id":        "material_creator",
		"requires_auth": true,
	}})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	rec = p.do(call{method: http.MethodPost, path: "/admin/invites", cookie: adminCookie,
		body: gin.H{"email": "member@example.com", "name": "Member"}})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	inviteURL, err := url.Parse(decode(t, rec)["url"].(string))
	require.NoError(t, err)
	inviteToken := path.Base(inviteURL.Path)

	redeem := gin.H{"token": inviteToken, "email": "member@example.com", "name": "Member", "password": "member-password"}
	rec = p.do(call{method: http.MethodPost, path: "/auth/consume-invite", body: redeem})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	rec = p.do(call{method: http.MethodPost, path: "/auth/consume-invite", body: redeem})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	memberCookie := p.login("member@example.com", "member-password")

	rec = p.do(call{method: http.MethodPatch, path: "/users/me/credential", cookie: memberCookie,
		body: gin.H{"credential": "sk-live-abcd1234"}})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "1234", decode(t, rec)["last4"])

	rec = p.do(call{method: http.MethodGet, path: "/users/me/credential", cookie: memberCookie})
	require.Equal(t, http.StatusOK, rec.Code)
	cookieView := decode(t, rec)
	assert.Equal(t, true, cookieView["has_key"])
	assert.NotContains(t, cookieView, "credential")

	rec = p.do(call{method: http.MethodGet, path: "/systems", cookie: memberCookie})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode(t, rec)["systems"], 1)

	rec = p.do(call{method: http.MethodPost, path: "/auth/issue-app-token", cookie: memberCookie,
		body: gin.H{"target_app": "material_creator"}})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	issued := decode(t, rec)
	assert.Equal(t, "https://materials.example.com", issued["target_url"])
	appToken := issued["token"].(string)

	rec = p.do(call{method: http.MethodPost, path: "/auth/verify-app-token", origin: companionOrigin,
		body: gin.H{"token": appToken, "app_id": "job_analyzer"}})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "app_mismatch", decode(t, rec)["error"])

	rec = p.do(call{method: http.MethodPost, path: "/auth/verify-app-token", origin: companionOrigin,
		body: gin.H{"token": appToken, "app_id": "material_creator"}})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, companionOrigin, rec.Header().Get("Access-Control-Allow-Origin"))
	verified := decode(t, rec)
	assert.Equal(t, true, verified["valid"])
	assert.Equal(t, "member@example.com", verified["user"].(map[string]any)["email"])
	appSession := verified["session_token"].(string)

	rec = p.do(call{method: http.MethodPost, path: "/auth/verify-app-token", origin: companionOrigin,
		body: gin.H{"token": appToken, "app_id": "material_creator"}})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, gin.H{"valid": false, "error": "token_used"}, gin.H(decode(t, rec)))

	rec = p.do(call{method: http.MethodGet, path: "/auth/me", bearer: appSession, origin: companionOrigin})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "member", decode(t, rec)["role"])

	rec = p.do(call{method: http.MethodGet, path: "/users/me/credential", bearer: appSession})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "sk-live-abcd1234", decode(t, rec)["credential"])

	rec = p.do(call{method: http.MethodGet, path: "/admin/audit", cookie: adminCookie})
	require.Equal(t, http.StatusOK, rec.Code)
	actions := map[string]bool{}
	for _, row := range decode(t, rec)["audit_logs"].([]any) {
		actions[row.(map[string]any)["action"].(string)] = true
	}
	for _, want := range []string{
		audit.ActionLoginSuccess,
		audit.ActionSystemCreated,
		audit.ActionInviteCreated,
		audit.ActionInviteConsumedUserCreated,
		audit.ActionInviteConsumeFailed,
		audit.ActionSetCredential,
		audit.ActionIssueAppToken,
		audit.ActionVerifyAppToken,
	} {
		assert.True(t, actions[want], "missing audit action %s", want)
	}
}

func TestPortal_AccessControl(t *testing.T) {
	p := newPortalClient(t)
	adminCookie := p.login("admin@example.com", "admin-password")

	rec := p.do(call{method: http.MethodGet, path: "/admin/users"})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = p.do(call{method: http.MethodGet, path: "/admin/users", cookie: adminCookie})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode(t, rec)["users"], 1)

	rec = p.do(call{method: http.MethodPost, path: "/auth/login",
		body: gin.H{"email": "admin@example.com", "password": "wrong-password"}})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = p.do(call{method: http.MethodPost, path: "/auth/login",
		body: `{"email":"admin@example.com","password":"admin-password","role":"admin"}`})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = p.do(call{method: http.MethodGet, path: "/auth/me"})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "unauthorized", decode(t, rec)["error"])

	rec = p.do(call{method: http.MethodGet, path: "/auth/me", bearer: "ast_unknown"})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "session_invalid", decode(t, rec)["error"])

	rec = p.do(call{method: http.MethodPost, path: "/auth/issue-app-token", body: gin.H{"target_app": "material_creator"}})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = p.do(call{method: http.MethodPost, path: "/auth/issue-app-token", cookie: adminCookie,
		body: gin.H{"target_app": "job_analyzer"}})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = p.do(call{method: http.MethodPost, path: "/auth/verify-app-token", body: gin.H{"token": "oat_nope", "app_id": "material_creator"}})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "token_invalid", decode(t, rec)["error"])

	rec = p.do(call{method: http.MethodOptions, path: "/auth/verify-app-token", origin: "https://evil.example.com"})
	assert.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))

	rec = p.do(call{method: http.MethodPost, path: "/auth/logout", cookie: adminCookie})
	assert.Equal(t, http.StatusFound, rec.Code)
	assert.Equal(t, "/login", rec.Header().Get("Location"))

	rec = p.do(call{method: http.MethodGet, path: "/healthz"})
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestPortal_AdminManagesMembers(t *testing.T) {
	p := newPortalClient(t)
	adminCookie := p.login("admin@example.com", "admin-password")

	rec := p.do(call{method: http.MethodPost, path: "/admin/invites", cookie: adminCookie,
		body: gin.H{"email": "member@example.com", "name": "Member"}})
	require.Equal(t, http.StatusCreated, rec.Code)
	inviteURL, err := url.Parse(decode(t, rec)["url"].(string))
	require.NoError(t, err)
	rec = p.do(call{method: http.MethodPost, path: "/auth/consume-invite", body: gin.H{
		"token": path.Base(inviteURL.Path), "email": "member@example.com", "name": "Member", "password": "member-password",
	}})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = p.do(call{method: http.MethodPost, path: "/admin/invites", cookie: adminCookie,
		body: gin.H{"email": "member@example.com", "name": "Member"}})
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = p.do(call{method: http.MethodGet, path: "/admin/users", cookie: adminCookie})
	require.Equal(t, http.StatusOK, rec.Code)
	var memberID, adminID string
	for _, row := range decode(t, rec)["users"].([]any) {
		u := row.(map[string]any)
		switch u["email"] {
		case "member@example.com":
			memberID = u["id"].(string)
		case "admin@example.com":
			adminID = u["id"].(string)
		}
	}
	require.NotEmpty(t, memberID)
	require.NotEmpty(t, adminID)

	memberCookie := p.login("member@example.com", "member-password")
	rec = p.do(call{method: http.MethodGet, path: "/admin/users", cookie: memberCookie})
	assert.Equal(t, http.StatusForbidden, rec.Code)

	credPath := "/admin/users/" + memberID + "/credential"
	rec = p.do(call{method: http.MethodPatch, path: credPath, cookie: adminCookie, body: gin.H{"credential": "sk-admin-set-9876"}})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	rec = p.do(call{method: http.MethodGet, path: credPath, cookie: adminCookie})
	require.Equal(t, http.StatusOK, rec.Code)
	adminView := decode(t, rec)
	assert.Equal(t, "9876", adminView["last4"])
	assert.NotContains(t, adminView, "credential")
	rec = p.do(call{method: http.MethodDelete, path: credPath, cookie: adminCookie})
	require.Equal(t, http.StatusOK, rec.Code)
	rec = p.do(call{method: http.MethodGet, path: "/users/me/credential", cookie: memberCookie})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, false, decode(t, rec)["has_key"])

	rec = p.do(call{method: http.MethodPost, path: "/admin/users/" + adminID + "/status", cookie: adminCookie,
		body: gin.H{"status": "disabled"}})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	rec = p.do(call{method: http.MethodPost, path: "/admin/users/" + memberID + "/status", cookie: adminCookie,
		body: gin.H{"status": "suspended"}})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	rec = p.do(call{method: http.MethodPost, path: "/admin/users/" + memberID + "/status", cookie: adminCookie,
		body: gin.H{"status": "disabled"}})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = p.do(call{method: http.MethodGet, path: "/systems", cookie: memberCookie})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	rec = p.do(call{method: http.MethodPost, path: "/auth/login",
		body: gin.H{"email": "member@example.com", "password": "member-password"}})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = p.do(call{method: http.MethodPost, path: "/admin/systems", cookie: adminCookie,
		body: gin.H{"name": "Broken", "url": "javascript:alert(1)"}})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	rec = p.do(call{method: http.MethodPut, path: "/admin/systems/missing", cookie: adminCookie, body: gin.H{"name": "X"}})
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
