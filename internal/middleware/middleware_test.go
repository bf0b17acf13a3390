package middleware

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/jengzang/fwa-watersheds-go/internal/ratelimit"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func newRouter(mw ...gin.HandlerFunc) *gin.Engine {
	r := gin.New()
	r.Use(mw...)
	r.GET("/ping", func(c *gin.Context) {
		c.String(http.StatusOK, c.GetString(SubjectKey))
	})
	return r
}

func get(r http.Handler, header string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/ping?x=1", nil)
	if header != "" {
		req.Header.Set("Authorization", header)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestAuth(t *testing.T) {
	const secret = "test-secret"
	r := newRouter(Auth(secret))

	good, err := IssueToken(secret, "analyst", time.Hour)
	if err != nil {
		t.Fatal(err)
	}
	expired, err := IssueToken(secret, "analyst", -time.Minute)
	if err != nil {
		t.Fatal(err)
	}
	forged, err := IssueToken("other-secret", "analyst", time.Hour)
	if err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name   string
		header string
		want   int
	}{
		{"valid", "Bearer " + good, http.StatusOK},
		{"missing", "", http.StatusUnauthorized},
		{"not bearer", "Basic abc", http.StatusUnauthorized},
		{"expired", "Bearer " + expired, http.StatusUnauthorized},
		{"wrong key", "Bearer " + forged, http.StatusUnauthorized},
		{"garbage", "Bearer not.a.token", http.StatusUnauthorized},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := get(r, tt.header)
			if w.Code != tt.want {
				t.Errorf("status = %d, want %d: %s", w.Code, tt.want, w.Body.String())
			}
			if tt.want == http.StatusOK && w.Body.String() != "analyst" {
				t.Errorf("subject = %q", w.Body.String())
			}
		})
	}
}

func TestAuthDisabled(t *testing.T) {
	if w := get(newRouter(Auth("")), ""); w.Code != http.StatusOK {
		t.Errorf("status = %d with auth disabled", w.Code)
	}
	if _, err := IssueToken("", "x", time.Hour); err == nil {
		t.Error("token issued with empty secret")
	}
}

func TestRateLimit(t *testing.T) {
	limiter := ratelimit.New(2, time.Minute)
	defer limiter.Close()
	r := newRouter(RateLimit(limiter))

	for i := 0; i < 2; i++ {
		if w := get(r, ""); w.Code != http.StatusOK {
			t.Fatalf("request %d: status %d", i, w.Code)
		}
	}
	if w := get(r, ""); w.Code != http.StatusTooManyRequests {
		t.Errorf("third request status = %d, want 429", w.Code)
	}
}

func TestLogger(t *testing.T) {
	var buf bytes.Buffer
	log := logrus.New()
	log.SetOutput(&buf)
	log.SetFormatter(&logrus.JSONFormatter{})

	get(newRouter(Logger(log)), "")

	out := buf.String()
	for _, want := range []string{`"path":"/ping?x=1"`, `"status":200`, `"method":"GET"`} {
		if !strings.Contains(out, want) {
			t.Errorf("log %s missing %s", out, want)
		}
	}
}
