package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateAndValidate(t *testing.T) {
	auth := NewJWTAuth("secret", 1)

	token, expire, err := auth.GenerateToken("admin")
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now().Add(time.Hour), expire, 5*time.Second)

	subject, err := auth.ValidateToken(token)
	require.NoError(t, err)
	assert.Equal(t, "admin", subject)

	_, err = NewJWTAuth("other", 1).ValidateToken(token)
	assert.Error(t, err)
}

func TestExpiredToken(t *testing.T) {
	auth := NewJWTAuth("secret", 1)
	token, _, err := auth.GenerateToken("admin")
	require.NoError(t, err)

	auth.now = func() time.Time { return time.Now().Add(2 * time.Hour) }
	_, err = auth.ValidateToken(token)
	assert.Error(t, err)
}

func TestMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	auth := NewJWTAuth("secret", 1)
	token, _, err := auth.GenerateToken("admin")
	require.NoError(t, err)

	r := gin.New()
	r.GET("/me", auth.Middleware(), func(c *gin.Context) {
		c.String(http.StatusOK, c.GetString(ContextKeySubject))
	})

	cases := []struct {
		name   string
		header string
		query  string
		code   int
	}{
		{"missing", "", "", http.StatusUnauthorized},
		{"bad format", "Token " + token, "", http.StatusUnauthorized},
		{"bad token", "Bearer nope", "", http.StatusUnauthorized},
		{"header", "Bearer " + token, "", http.StatusOK},
		{"query", "", "?token=" + token, http.StatusOK},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/me"+tc.query, nil)
			if tc.header != "" {
				req.Header.Set("Authorization", tc.header)
			}
			w := httptest.NewRecorder()
			r.ServeHTTP(w, req)
			assert.Equal(t, tc.code, w.Code)
			if tc.code == http.StatusOK {
				assert.Equal(t, "admin", w.Body.String())
			}
		})
	}
}
