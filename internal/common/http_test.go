package common

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestClientIP(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "192.0.2.10:5555"
	require.Equal(t, "192.0.2.10", ClientIP(req))

	req.Header.Set("X-Real-IP", "198.51.100.2")
	require.Equal(t, "198.51.100.2", ClientIP(req))

	req.Header.Set("X-Forwarded-For", " 203.0.113.9 , 10.0.0.1")
	require.Equal(t, "203.0.113.9", ClientIP(req))
	require.Empty(t, ClientIP(nil))
}

func TestAppErrorHelpers(t *testing.T) {
	cause := errors.New("dial tcp: refused")
	err := fmtWrap(NewAppError("BACKOFFICE_UNAVAILABLE", "back office unavailable", http.StatusBadGateway, cause))
	appErr, ok := AsAppError(err)
	require.True(t, ok)
	require.ErrorIs(t, err, cause)

	rec := httptest.NewRecorder()
	WriteAppError(rec, appErr)
	require.Equal(t, http.StatusBadGateway, rec.Code)
	require.JSONEq(t, `{"error":{"code":"BACKOFFICE_UNAVAILABLE","message":"back office unavailable"}}`, rec.Body.String())

	_, ok = AsAppError(cause)
	require.False(t, ok)
}

type wrapped struct{ err error }

func (w wrapped) Error() string { return "wrapped: " + w.err.Error() }
func (w wrapped) Unwrap() error { return w.err }

func fmtWrap(err error) error { return wrapped{err: err} }
