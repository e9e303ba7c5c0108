package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt"
	"github.com/nexusdash/nexus/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func TestNewAuthenticatorRequiresSecret(t *testing.T) {
	_, err := NewAuthenticator("")
	assert.Error(t, err)
}

func TestTokenRoundTrip(t *testing.T) {
	a, err := NewAuthenticator("secret")
	require.NoError(t, err)

	tok, err := a.GenerateToken("u1", models.RoleAdmin, time.Hour)
	require.NoError(t, err)

	claims, err := a.ParseToken(tok)
	require.NoError(t, err)
	assert.Equal(t, "u1", claims.UserID)
	assert.Equal(t, models.RoleAdmin, claims.Role)
	assert.Equal(t, "u1", claims.Subject)
}

func TestParseTokenRejects(t *testing.T) {
	a, _ := NewAuthenticator("secret")
	other, _ := NewAuthenticator("other-secret")

	expired, err := a.GenerateToken("u1", models.RoleUser, -time.Minute)
	require.NoError(t, err)
	_, err = a.ParseToken(expired)
	assert.Error(t, err, "expired")

	foreign, err := other.GenerateToken("u1", models.RoleUser, time.Hour)
	require.NoError(t, err)
	_, err = a.ParseToken(foreign)
	assert.Error(t, err, "wrong signature")

	anonymous, err := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		StandardClaims: jwt.StandardClaims{ExpiresAt: time.Now().Add(time.Hour).Unix()},
	}).SignedString([]byte("secret"))
	require.NoError(t, err)
	_, err = a.ParseToken(anonymous)
	assert.Error(t, err, "no user id")

	unsigned, err := jwt.NewWithClaims(jwt.SigningMethodNone, Claims{UserID: "u1"}).
		SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)
	_, err = a.ParseToken(unsigned)
	assert.Error(t, err, "alg none")
}

func newRouter(a *Authenticator, guard gin.HandlerFunc) *gin.Engine {
	r := gin.New()
	r.Use(a.Middleware())
	r.GET("/whoami", guard, func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"user": UserID(c), "role": c.GetString(ContextRole)})
	})
	return r
}

func request(r http.Handler, token string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/whoami", nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestMiddleware(t *testing.T) {
	a, _ := NewAuthenticator("secret")
	r := newRouter(a, func(c *gin.Context) { c.Next() })

	w := request(r, "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = request(r, "garbage")
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	tok, _ := a.GenerateToken("u1", "", time.Hour)
	w = request(r, tok)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"user":"u1","role":"user"}`, w.Body.String(), "missing role defaults to user")
}

func TestRequirePermission(t *testing.T) {
	a, _ := NewAuthenticator("secret")
	r := newRouter(a, RequirePermission(models.ActionManageRules))

	tests := []struct {
		role models.Role
		want int
	}{
		{models.RoleAdmin, http.StatusOK},
		{models.RoleUser, http.StatusOK},
		{models.RoleViewer, http.StatusForbidden},
		{"intern", http.StatusForbidden},
	}
	for _, tt := range tests {
		tok, err := a.GenerateToken("u1", tt.role, time.Hour)
		require.NoError(t, err)
		assert.Equal(t, tt.want, request(r, tok).Code, "role %s", tt.role)
	}
}

func TestRequireRole(t *testing.T) {
	a, _ := NewAuthenticator("secret")
	r := newRouter(a, RequireRole(models.RoleAdmin))

	admin, _ := a.GenerateToken("root", models.RoleAdmin, time.Hour)
	user, _ := a.GenerateToken("u1", models.RoleUser, time.Hour)
	assert.Equal(t, http.StatusOK, request(r, admin).Code)
	assert.Equal(t, http.StatusForbidden, request(r, user).Code)
}
