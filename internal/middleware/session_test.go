package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quizdeck/quizdeck-backend/internal/config"
	"github.com/quizdeck/quizdeck-backend/internal/model"
	"github.com/quizdeck/quizdeck-backend/internal/service"
)

const sessionTestSecret = "session-test-secret"

func newSessionTestAuth(t *testing.T) (*service.AuthService, *redis.Client) {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	cfg := &config.Config{JWTSecret: sessionTestSecret, JWTExpiry: time.Hour, BcryptCost: 4}
	return service.NewAuthService(cfg, rdb, nil), rdb
}

func signSessionTestToken(t *testing.T, userID, jti string) string {
	t.Helper()
	claims := service.Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        jti,
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
		UserID: userID,
		Name:   "Grace",
		Role:   model.RoleStudent,
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(sessionTestSecret))
	require.NoError(t, err)
	return signed
}

// newWSTestRouter wires the same middleware chain the attempt stream uses.
func newWSTestRouter(authService *service.AuthService) *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	ws := router.Group("/ws/v1")
	ws.Use(RequireWSAuth(authService), CheckSingleDeviceSession(authService))
	{
		ws.GET("/quizzes/:code/attempt", func(c *gin.Context) {
			c.Status(http.StatusOK)
		})
	}
	return router
}

func TestWSAuthAcceptsActiveSession(t *testing.T) {
	authService, rdb := newSessionTestAuth(t)
	router := newWSTestRouter(authService)

	userID := "c2f1a9be-0000-4000-8000-000000000001"
	jti := "live-device"
	require.NoError(t, rdb.Set(context.Background(), config.CacheKey.StudentSessionKey(userID), jti, time.Hour).Err())

	token := signSessionTestToken(t, userID, jti)
	req := httptest.NewRequest(http.MethodGet, "/ws/v1/quizzes/MATH88/attempt?token="+token, nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestWSAuthRejectsReplacedSession(t *testing.T) {
	authService, rdb := newSessionTestAuth(t)
	router := newWSTestRouter(authService)

	// A login on another device overwrote the stored JTI; a still-valid
	// token from the old device must not open the attempt stream.
	userID := "c2f1a9be-0000-4000-8000-000000000001"
	require.NoError(t, rdb.Set(context.Background(), config.CacheKey.StudentSessionKey(userID), "newer-device", time.Hour).Err())

	token := signSessionTestToken(t, userID, "old-device")
	req := httptest.NewRequest(http.MethodGet, "/ws/v1/quizzes/MATH88/attempt?token="+token, nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestWSAuthRejectsMissingToken(t *testing.T) {
	authService, _ := newSessionTestAuth(t)
	router := newWSTestRouter(authService)

	req := httptest.NewRequest(http.MethodGet, "/ws/v1/quizzes/MATH88/attempt", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}
