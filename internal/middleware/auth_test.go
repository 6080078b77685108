package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/fibertrak/fibertrak-backend/internal/logger"
)

const testSecret = "test-secret"

func mustTestLogger(t *testing.T) *logger.Logger {
	t.Helper()
	log, err := logger.New("development")
	if err != nil {
		t.Fatalf("logger.New: %v", err)
	}
	t.Cleanup(log.Sync)
	return log
}

func signToken(t *testing.T, userID uuid.UUID, secret string) string {
	t.Helper()
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID.String(),
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
		UserID: userID.String(),
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return token
}

func testRouter(t *testing.T) (*gin.Engine, *uuid.UUID) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	am := NewAuthMiddleware(mustTestLogger(t), testSecret)

	var seenUser uuid.UUID
	router := gin.New()
	router.GET("/protected", am.RequireAuth(), func(c *gin.Context) {
		userID, _ := UserID(c)
		seenUser = userID
		c.String(http.StatusOK, "ok")
	})
	return router, &seenUser
}

func TestRequireAuthAcceptsBearerHeader(t *testing.T) {
	router, seenUser := testRouter(t)
	userID := uuid.New()

	req := httptest.NewRequest(http.MethodGet, "/protected", nil)
	req.Header.Set("Authorization", "Bearer "+signToken(t, userID, testSecret))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status: want=200 got=%d body=%s", rec.Code, rec.Body.String())
	}
	if *seenUser != userID {
		t.Fatalf("user id: want=%s got=%s", userID, *seenUser)
	}
}

func TestRequireAuthAcceptsQueryToken(t *testing.T) {
	router, seenUser := testRouter(t)
	userID := uuid.New()

	req := httptest.NewRequest(http.MethodGet, "/protected?token="+signToken(t, userID, testSecret), nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status: want=200 got=%d", rec.Code)
	}
	if *seenUser != userID {
		t.Fatalf("user id: want=%s got=%s", userID, *seenUser)
	}
}

func TestRequireAuthRejectsMissingAndForgedTokens(t *testing.T) {
	router, _ := testRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/protected", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("missing token: want=401 got=%d", rec.Code)
	}

	req = httptest.NewRequest(http.MethodGet, "/protected", nil)
	req.Header.Set("Authorization", "Bearer "+signToken(t, uuid.New(), "wrong-secret"))
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("forged token: want=401 got=%d", rec.Code)
	}
}
