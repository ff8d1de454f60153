package httpserver

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/keyfate/keyfate/checkin"
	"github.com/keyfate/keyfate/interfaces"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubRedeemer struct {
	result *checkin.Result
	err    error
}

func (s *stubRedeemer) Redeem(context.Context, string) (*checkin.Result, error) {
	return s.result, s.err
}

type stubProcessor struct {
	processed int
	err       error
	calls     int
}

func (s *stubProcessor) RunOnce(context.Context) (int, error) {
	s.calls++
	return s.processed, s.err
}

func newTestServer(t *testing.T, redeemer Redeemer, processor Processor, internalToken string) *httptest.Server {
	t.Helper()
	log := slog.New(slog.NewTextHandler(os.Stderr, nil))
	handler := NewHandler(redeemer, processor, internalToken, log)
	srv, err := New(&HTTPServerConfig{
		Log:          log,
		ReadTimeout:  time.Second,
		WriteTimeout: time.Second,
	}, handler)
	require.NoError(t, err)

	ts := httptest.NewServer(srv.getRouter())
	t.Cleanup(ts.Close)
	return ts
}

func TestHandleCheckInSuccess(t *testing.T) {
	next := time.Now().Add(30 * 24 * time.Hour).UTC()
	redeemer := &stubRedeemer{result: &checkin.Result{
		SecretID:       "s1",
		SecretTitle:    "estate instructions",
		NewNextCheckIn: next,
	}}
	ts := newTestServer(t, redeemer, &stubProcessor{}, "")

	resp, err := http.Get(ts.URL + "/api/checkin?token=abc")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var body checkInResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "estate instructions", body.SecretTitle)
	assert.True(t, body.NextCheckIn.Equal(next))
}

func TestHandleCheckInMissingToken(t *testing.T) {
	ts := newTestServer(t, &stubRedeemer{}, &stubProcessor{}, "")

	resp, err := http.Get(ts.URL + "/api/checkin")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestHandleCheckInErrorMapping(t *testing.T) {
	cases := []struct {
		name       string
		err        error
		wantStatus int
		wantTarget string
	}{
		{"unknown token", interfaces.ErrTokenNotFound, http.StatusNotFound, ""},
		{"expired token", interfaces.ErrTokenExpired, http.StatusGone, "/checkin/expired"},
		{"used token", interfaces.ErrTokenAlreadyUsed, http.StatusConflict, "/checkin/already-used"},
		{"update failure", interfaces.ErrCheckInUpdateFailed, http.StatusInternalServerError, ""},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			ts := newTestServer(t, &stubRedeemer{err: tc.err}, &stubProcessor{}, "")

			resp, err := http.Get(ts.URL + "/api/checkin?token=abc")
			require.NoError(t, err)
			defer resp.Body.Close()
			assert.Equal(t, tc.wantStatus, resp.StatusCode)

			var body errorResponse
			require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
			assert.NotEmpty(t, body.Error)
			assert.Equal(t, tc.wantTarget, body.Redirect)
		})
	}
}

func TestHandleProcessReminders(t *testing.T) {
	processor := &stubProcessor{processed: 7}
	ts := newTestServer(t, &stubRedeemer{}, processor, "cron-secret")

	req, err := http.NewRequest(http.MethodPost, ts.URL+"/api/internal/reminders/process", nil)
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer cron-secret")

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var body processResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, 7, body.Processed)
	assert.Equal(t, 1, processor.calls)
}

func TestHandleProcessRemindersAuth(t *testing.T) {
	processor := &stubProcessor{}
	ts := newTestServer(t, &stubRedeemer{}, processor, "cron-secret")

	// No credentials.
	resp, err := http.Post(ts.URL+"/api/internal/reminders/process", "", nil)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	// Wrong credentials.
	req, err := http.NewRequest(http.MethodPost, ts.URL+"/api/internal/reminders/process", nil)
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer wrong")
	resp, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	assert.Zero(t, processor.calls)
}

func TestHandleProcessRemindersDisabled(t *testing.T) {
	// An empty internal token disables the endpoint outright.
	ts := newTestServer(t, &stubRedeemer{}, &stubProcessor{}, "")

	req, err := http.NewRequest(http.MethodPost, ts.URL+"/api/internal/reminders/process", nil)
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer anything")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestHealthEndpoints(t *testing.T) {
	log := slog.New(slog.NewTextHandler(os.Stderr, nil))
	handler := NewHandler(&stubRedeemer{}, &stubProcessor{}, "", log)
	srv, err := New(&HTTPServerConfig{Log: log, DrainDuration: time.Millisecond}, handler)
	require.NoError(t, err)
	ts := httptest.NewServer(srv.getRouter())
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/livez")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, err = http.Get(ts.URL + "/readyz")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, err = http.Get(ts.URL + "/drain")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, err = http.Get(ts.URL + "/readyz")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)

	resp, err = http.Get(ts.URL + "/undrain")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, err = http.Get(ts.URL + "/readyz")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}
