package user

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"wecomCmder/internal/logger"
	"wecomCmder/internal/middleware"
)

func newTestEngine(t *testing.T, passwordHash string) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)

	auth := middleware.NewJWTAuth("secret", 1)
	svc, err := NewAccountService("admin", "admin123", passwordHash, auth, logger.Discard())
	require.NoError(t, err)
	h := NewHandler(svc)

	r := gin.New()
	r.POST("/auth/login", h.Login)
	r.GET("/auth/me", auth.Middleware(), h.Me)
	return r
}

func login(r *gin.Engine, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/auth/login", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestLoginAndMe(t *testing.T) {
	r := newTestEngine(t, "")

	w := login(r, `{"username":"admin","password":"admin123"}`)
	require.Equal(t, http.StatusOK, w.Code)

	var resp LoginResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "bearer", resp.TokenType)
	require.NotEmpty(t, resp.AccessToken)

	req := httptest.NewRequest(http.MethodGet, "/auth/me", nil)
	req.Header.Set("Authorization", "Bearer "+resp.AccessToken)
	me := httptest.NewRecorder()
	r.ServeHTTP(me, req)
	require.Equal(t, http.StatusOK, me.Code)
	assert.JSONEq(t, `{"username":"admin"}`, me.Body.String())
}

func TestLoginRejected(t *testing.T) {
	r := newTestEngine(t, "")

	assert.Equal(t, http.StatusUnauthorized, login(r, `{"username":"admin","password":"wrong"}`).Code)
	assert.Equal(t, http.StatusUnauthorized, login(r, `{"username":"root","password":"admin123"}`).Code)
	assert.Equal(t, http.StatusBadRequest, login(r, `{"username":"admin"}`).Code)
}

func TestLoginWithConfiguredHash(t *testing.T) {
	hash, err := HashPassword("s3cret")
	require.NoError(t, err)
	require.NoError(t, bcrypt.CompareHashAndPassword([]byte(hash), []byte("s3cret")))

	r := newTestEngine(t, hash)
	assert.Equal(t, http.StatusOK, login(r, `{"username":"admin","password":"s3cret"}`).Code)
	assert.Equal(t, http.StatusUnauthorized, login(r, `{"username":"admin","password":"admin123"}`).Code)
}
