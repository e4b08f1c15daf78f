package httpserver

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/ruteri/dice-l0/api"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestServer(t *testing.T) *Server {
	t.Helper()
	srv, err := New(&api.HTTPServerConfig{
		ListenAddr: "127.0.0.1:0",
		Log:        slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	require.NoError(t, err)
	return srv
}

func get(t *testing.T, h http.Handler, path string) (int, string) {
	t.Helper()
	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))
	return w.Code, w.Body.String()
}

func TestHealthAndDrain(t *testing.T) {
	h := newTestServer(t).Handler()

	code, body := get(t, h, "/livez")
	assert.Equal(t, http.StatusOK, code)
	assert.JSONEq(t, `{"status":"alive"}`, body)

	code, _ = get(t, h, "/readyz")
	assert.Equal(t, http.StatusOK, code)

	code, body = get(t, h, "/drain")
	assert.Equal(t, http.StatusOK, code)
	assert.JSONEq(t, `{"status":"draining"}`, body)

	_, body = get(t, h, "/drain")
	assert.JSONEq(t, `{"status":"already draining"}`, body)

	code, _ = get(t, h, "/readyz")
	assert.Equal(t, http.StatusServiceUnavailable, code)

	code, body = get(t, h, "/undrain")
	assert.Equal(t, http.StatusOK, code)
	assert.JSONEq(t, `{"status":"ready"}`, body)

	code, _ = get(t, h, "/readyz")
	assert.Equal(t, http.StatusOK, code)
}

func TestRouterServesVerifier(t *testing.T) {
	srv := newTestServer(t)
	out := deriveChain(t, 9)

	body, err := json.Marshal(api.VerifyRequest{DeviceIDCSR: out.DeviceIDCSR, AliasKeyCRT: out.AliasKeyCRT})
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/api/l0/verify", strings.NewReader(string(body)))
	req.Header.Set("Content-Type", api.ContentTypeJSON)
	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)

	var resp api.VerifyResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.True(t, resp.Valid, resp.Error)

	code, _ := get(t, srv.Handler(), "/api/l0/algorithms")
	assert.Equal(t, http.StatusOK, code)

	// verification outcomes are counted
	mw := httptest.NewRecorder()
	srv.metricsSrv.Handler().ServeHTTP(mw, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Contains(t, mw.Body.String(), `dice_l0_chain_verifications_total{result="valid"} 1`)

	code, _ = get(t, srv.Handler(), "/debug/pprof/")
	assert.Equal(t, http.StatusNotFound, code)
}
