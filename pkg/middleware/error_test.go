package middleware

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"tenant-gateway/pkg/errutil"
)

func init() {
	gin.SetMode(gin.TestMode)
	zap.ReplaceGlobals(zap.NewNop())
}

type envelope struct {
	Error struct {
		Code    string           `json:"code"`
		Message string           `json:"message"`
		Details []errutil.Detail `json:"details"`
	} `json:"error"`
}

func serve(t *testing.T, expose bool, err error) (*httptest.ResponseRecorder, envelope) {
	t.Helper()
	r := gin.New()
	r.Use(Error(expose))
	r.GET("/x", func(c *gin.Context) {
		if err != nil {
			_ = c.Error(err)
			c.Abort()
			return
		}
		c.String(http.StatusOK, "ok")
	})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/x", nil))

	var body envelope
	if w.Code != http.StatusOK {
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	}
	return w, body
}

func TestErrorPassesThroughSuccess(t *testing.T) {
	w, _ := serve(t, false, nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, "ok", w.Body.String())
}

func TestErrorRendersDenial(t *testing.T) {
	w, body := serve(t, false, errutil.Denied(errutil.ReasonIPBlocked))
	require.Equal(t, http.StatusForbidden, w.Code)
	require.Equal(t, "forbidden", body.Error.Code)
	require.Equal(t, "Access denied: your IP address is not whitelisted.", body.Error.Message)
	require.Equal(t, []errutil.Detail{{Field: "reason", Message: "ip_blocked"}}, body.Error.Details)
}

func TestErrorHidesFaultCause(t *testing.T) {
	fault := &errutil.ConnectivityError{Op: "dial tenant database", Err: errors.New("dial tcp 10.0.0.9:5432: refused")}

	core, logs := observer.New(zapcore.DebugLevel)
	zap.ReplaceGlobals(zap.New(core))
	defer zap.ReplaceGlobals(zap.NewNop())

	w, body := serve(t, false, fault)
	require.Equal(t, http.StatusInternalServerError, w.Code)
	require.Equal(t, "Internal server error", body.Error.Message)
	require.NotContains(t, w.Body.String(), "10.0.0.9")
	require.Equal(t, 1, logs.FilterLevelExact(zapcore.ErrorLevel).Len())

	w, body = serve(t, true, fault)
	require.Equal(t, http.StatusInternalServerError, w.Code)
	require.Contains(t, body.Error.Message, "10.0.0.9")
}

func TestErrorRendersBaseError(t *testing.T) {
	w, body := serve(t, false, errutil.TooManyRequest("Too many requests", nil))
	require.Equal(t, http.StatusTooManyRequests, w.Code)
	require.Equal(t, "too_many_requests", body.Error.Code)
}
