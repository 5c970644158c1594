package http

import (
	"bytes"
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/formbt/ndi-gateway/adapters/store"
	"github.com/formbt/ndi-gateway/adapters/tokenizer"
	"github.com/formbt/ndi-gateway/channel"
	"github.com/formbt/ndi-gateway/core"
	"github.com/formbt/ndi-gateway/service"
)

type fakeIssuer struct {
	err error
}

func (f *fakeIssuer) Issue(ctx context.Context) (core.Challenge, error) {
	if f.err != nil {
		return core.Challenge{}, f.err
	}
	now := time.Now()
	return core.Challenge{
		Reference: "https://provider.example/proof?c_i=abc",
		ThreadID:  "thread-1",
		IssuedAt:  now,
		ExpiresAt: now.Add(5 * time.Minute),
	}, nil
}

func (f *fakeIssuer) Status(ctx context.Context, threadID string) ([]byte, error) {
	return []byte(fmt.Sprintf(`{"threadId":%q,"status":"pending"}`, threadID)), nil
}

type recordingBus struct {
	mu        sync.Mutex
	published []core.ChannelEvent
}

func (b *recordingBus) Publish(ctx context.Context, ev core.ChannelEvent) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.published = append(b.published, ev)
	return nil
}

func (b *recordingBus) Subscribe(ctx context.Context) (<-chan core.ChannelEvent, error) {
	return make(chan core.ChannelEvent), nil
}

func (b *recordingBus) Close() error { return nil }

func (b *recordingBus) events() []core.ChannelEvent {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]core.ChannelEvent(nil), b.published...)
}

type routerFixture struct {
	router *gin.Engine
	store  *store.MemoryStore
	bus    *recordingBus
	issuer *fakeIssuer
	binder *service.SessionBinder
}

func newRouterFixture(t *testing.T) *routerFixture {
	t.Helper()
	gin.SetMode(gin.TestMode)

	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)

	mem := store.NewMemoryStore()
	tok := tokenizer.NewJWTTokenizer(key)
	guard := service.NewRegistrationGuard()
	registration := service.NewRegistrationService(mem, guard)
	binder := service.NewSessionBinder(tok, mem, registration)
	auth := service.NewAuthService(tok, mem, mem, binder, guard)
	hub := channel.NewHub()
	t.Cleanup(hub.Close)

	bus := &recordingBus{}
	issuer := &fakeIssuer{}

	router := SetupRouter(Dependencies{
		Issuer:       issuer,
		Proofs:       mem,
		Registration: registration,
		Binder:       binder,
		Auth:         auth,
		Users:        mem,
		Bus:          bus,
		Hub:          hub,
	})
	return &routerFixture{router: router, store: mem, bus: bus, issuer: issuer, binder: binder}
}

func (f *routerFixture) do(t *testing.T, method, path string, body []byte, header map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	for k, v := range header {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	return rec
}

func TestProofRequestEndpoint(t *testing.T) {
	f := newRouterFixture(t)

	rec := f.do(t, http.MethodPost, "/api/ndi/proof-request", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Success   bool   `json:"success"`
		URL       string `json:"url"`
		ThreadID  string `json:"threadId"`
		QRCodeURL string `json:"qrCodeUrl"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.True(t, resp.Success)
	assert.Equal(t, "thread-1", resp.ThreadID)
	assert.Contains(t, resp.QRCodeURL, "api.qrserver.com")
	assert.Contains(t, resp.QRCodeURL, "provider.example%2Fproof")
}

func TestProofRequestProviderDown(t *testing.T) {
	f := newRouterFixture(t)
	f.issuer.err = core.ErrProviderUnavailable

	rec := f.do(t, http.MethodPost, "/api/ndi/proof-request", nil, nil)
	assert.Equal(t, http.StatusBadGateway, rec.Code)
}

func TestWebhookBroadcastsOnlyValidatedPayloads(t *testing.T) {
	f := newRouterFixture(t)
	ctx := context.Background()

	validated := []byte(`{"thid":"thread-1","verification_result":"ProofValidated"}`)
	rec := f.do(t, http.MethodPost, "/api/ndi-webhook", validated, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"received":true}`, rec.Body.String())

	stored, err := f.store.Latest(ctx, "thread-1")
	require.NoError(t, err)
	assert.Equal(t, validated, stored)

	published := f.bus.events()
	require.Len(t, published, 1)
	assert.Equal(t, core.EventVerification, published[0].Kind)
	assert.Equal(t, "thread-1", published[0].ThreadID)

	// A rejected proof is stored for polling but never broadcast
	rejected := []byte(`{"thid":"thread-2","verification_result":"ProofInvalid"}`)
	rec = f.do(t, http.MethodPost, "/api/ndi-webhook", rejected, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	_, err = f.store.Latest(ctx, "thread-2")
	require.NoError(t, err)
	assert.Len(t, f.bus.events(), 1)
}

func TestWebhookWithoutThreadID(t *testing.T) {
	f := newRouterFixture(t)

	rec := f.do(t, http.MethodPost, "/api/ndi-webhook", []byte(`{"verification_result":"ProofValidated"}`), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, f.bus.events())
}

func TestLatestProofEndpoint(t *testing.T) {
	f := newRouterFixture(t)

	rec := f.do(t, http.MethodGet, "/api/ndi-webhook", nil, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = f.do(t, http.MethodGet, "/api/ndi-webhook?threadId=thread-9", nil, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestProofStatusPassthrough(t *testing.T) {
	f := newRouterFixture(t)

	rec := f.do(t, http.MethodGet, "/api/ndi/proof-status/thread-1", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"threadId":"thread-1","status":"pending"}`, rec.Body.String())
}

func TestRegisterEndpoint(t *testing.T) {
	f := newRouterFixture(t)

	body := []byte(`{
		"fullName": "Dorji Sonam",
		"verificationData": {"verification_result": "ProofValidated"}
	}`)
	rec := f.do(t, http.MethodPost, "/api/ndi/register", body, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Success bool `json:"success"`
		User    struct {
			Username      string `json:"username"`
			Email         string `json:"email"`
			IsNdiVerified bool   `json:"isNdiVerified"`
		} `json:"user"`
		AccessToken  string `json:"accessToken"`
		RefreshToken string `json:"refreshToken"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.True(t, resp.Success)
	assert.Equal(t, "dorji_sonam", resp.User.Username)
	assert.Equal(t, "dorji_sonam@ndi.bt", resp.User.Email)
	assert.True(t, resp.User.IsNdiVerified)
	assert.NotEmpty(t, resp.AccessToken)
	assert.NotEmpty(t, resp.RefreshToken)

	// Same name again collides on the generated username
	rec = f.do(t, http.MethodPost, "/api/ndi/register", body, nil)
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestRegisterEndpointValidation(t *testing.T) {
	f := newRouterFixture(t)

	rec := f.do(t, http.MethodPost, "/api/ndi/register", []byte(`{"email":"a@b.bt"}`), nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = f.do(t, http.MethodPost, "/api/ndi/register", []byte(`{"fullName":"Dorji Sonam","email":"broken"}`), nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestEventsEndpointRequiresThreadID(t *testing.T) {
	f := newRouterFixture(t)

	rec := f.do(t, http.MethodGet, "/api/ndi-webhook/events", nil, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestMeEndpointAuth(t *testing.T) {
	f := newRouterFixture(t)
	ctx := context.Background()

	rec := f.do(t, http.MethodGet, "/api/me", nil, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	user := core.User{ID: "user-1", Username: "dorji_sonam", Email: "dorji@example.bt", FullName: "Dorji Sonam", NDIVerified: true}
	require.NoError(t, f.store.Create(ctx, user))
	bound, err := f.binder.Login(ctx, user)
	require.NoError(t, err)

	rec = f.do(t, http.MethodGet, "/api/me", nil, map[string]string{
		"Authorization": "Bearer " + bound.AccessToken,
	})
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Username      string `json:"username"`
		IsNdiVerified bool   `json:"isNdiVerified"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "dorji_sonam", resp.Username)
	assert.True(t, resp.IsNdiVerified)
}

func TestRefreshAndLogoutEndpoints(t *testing.T) {
	f := newRouterFixture(t)
	ctx := context.Background()

	user := core.User{ID: "user-1", Username: "dorji_sonam", Email: "dorji@example.bt"}
	require.NoError(t, f.store.Create(ctx, user))
	bound, err := f.binder.Login(ctx, user)
	require.NoError(t, err)

	body, _ := json.Marshal(map[string]string{"refresh_token": bound.RefreshToken})
	rec := f.do(t, http.MethodPost, "/auth/refresh", body, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		AccessToken  string `json:"access_token"`
		RefreshToken string `json:"refresh_token"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.NotEmpty(t, resp.AccessToken)

	// The superseded token is rejected on a second rotation
	rec = f.do(t, http.MethodPost, "/auth/refresh", body, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	body, _ = json.Marshal(map[string]string{"refresh_token": resp.RefreshToken})
	rec = f.do(t, http.MethodPost, "/auth/logout", body, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}
