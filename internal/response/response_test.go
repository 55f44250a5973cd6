package response

import (
	"math"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRequest(origin string) *http.Request {
	r := httptest.NewRequest(http.MethodPost, "/", nil)
	if origin != "" {
		r.Header.Set("Origin", origin)
	}
	return r
}

func assertCommonHeaders(t *testing.T, w *httptest.ResponseRecorder, origin string) {
	t.Helper()
	assert.Equal(t, "close", w.Header().Get("Connection"))
	assert.Equal(t, origin, w.Header().Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "true", w.Header().Get("Access-Control-Allow-Credentials"))
}

func TestSendAggregate(t *testing.T) {
	w := httptest.NewRecorder()
	called := 0
	f := New(w, newRequest("https://app.example"), func() { called++ })

	require.NoError(t, f.SendAggregate(http.StatusOK, map[string]int{"commandCount": 1}))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))
	assert.JSONEq(t, `{"commandCount":1}`, w.Body.String())
	assertCommonHeaders(t, w, "https://app.example")
	assert.Equal(t, ModeAggregate, f.Mode())
	assert.Equal(t, 1, called)
}

func TestSendStatus_NoBodyAndFallbackOrigin(t *testing.T) {
	w := httptest.NewRecorder()
	f := New(w, newRequest(""), nil)

	require.NoError(t, f.SendStatus(http.StatusBadRequest))

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Empty(t, w.Body.String())
	assertCommonHeaders(t, w, NoOrigin)
}

func TestSendAggregate_Non2xxDropsBody(t *testing.T) {
	w := httptest.NewRecorder()
	f := New(w, newRequest(""), nil)

	require.NoError(t, f.SendAggregate(http.StatusInternalServerError, map[string]int{"x": 1}))
	assert.Empty(t, w.Body.String())
}

func TestSendAggregate_MarshalFailure(t *testing.T) {
	w := httptest.NewRecorder()
	f := New(w, newRequest(""), nil)

	err := f.SendAggregate(http.StatusOK, map[string]float64{"x": math.Inf(1)})
	require.Error(t, err)
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Empty(t, w.Body.String())
	assert.Empty(t, w.Header().Get("Content-Type"), "空响应不能声明 JSON")
	assert.Equal(t, http.StatusInternalServerError, f.Status())
}

func TestWriter_ClaimsStream(t *testing.T) {
	w := httptest.NewRecorder()
	called := 0
	f := New(w, newRequest("o"), func() { called++ })
	rw := f.Writer()

	n, err := rw.Write([]byte("raw"))
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	_, err = f.Writer().Write([]byte("-more"))
	require.NoError(t, err)

	assert.Equal(t, ModeStream, f.Mode())
	assert.Equal(t, http.StatusOK, f.Status())
	assert.Equal(t, 1, called)
	assertCommonHeaders(t, w, "o")
	assert.ErrorIs(t, f.SendAggregate(http.StatusOK, map[string]int{"x": 1}), ErrAlreadyFinalized)
	assert.Equal(t, "raw-more", w.Body.String())
}

func TestWriter_WriteHeaderKeepsStatus(t *testing.T) {
	w := httptest.NewRecorder()
	f := New(w, newRequest(""), nil)
	rw := f.Writer()

	rw.Header().Set("Content-Type", "text/csv")
	rw.WriteHeader(http.StatusAccepted)
	_, err := rw.Write([]byte("a,b"))
	require.NoError(t, err)

	assert.Equal(t, http.StatusAccepted, w.Code)
	assert.Equal(t, http.StatusAccepted, f.Status())
	assert.Equal(t, "text/csv", w.Header().Get("Content-Type"))
	assert.Equal(t, "a,b", w.Body.String())
}

func TestWriter_AfterFinalized(t *testing.T) {
	w := httptest.NewRecorder()
	f := New(w, newRequest(""), nil)

	require.NoError(t, f.SendStatus(http.StatusNoContent))

	_, err := f.Writer().Write([]byte("late"))
	assert.ErrorIs(t, err, ErrAlreadyFinalized)
	assert.Equal(t, ModeAggregate, f.Mode())
	assert.Empty(t, w.Body.String())
}

func TestSendStream(t *testing.T) {
	w := httptest.NewRecorder()
	f := New(w, newRequest("o"), nil)

	require.NoError(t, f.SendStream(strings.NewReader("raw-bytes"), "report.pdf", "application/pdf", 9))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "raw-bytes", w.Body.String())
	assert.Equal(t, `attachment; filename="report.pdf"`, w.Header().Get("Content-Disposition"))
	assert.Equal(t, "application/pdf", w.Header().Get("Content-Type"))
	assert.Equal(t, "9", w.Header().Get("Content-Length"))
	assertCommonHeaders(t, w, "o")
	assert.Equal(t, ModeStream, f.Mode())
}

func TestSendStream_Defaults(t *testing.T) {
	w := httptest.NewRecorder()
	f := New(w, newRequest(""), nil)

	require.NoError(t, f.SendStream(strings.NewReader("x"), "a.bin", "", -1))
	assert.Equal(t, DefaultStream, w.Header().Get("Content-Type"))
	assert.Empty(t, w.Header().Get("Content-Length"))
}

func TestFinalizeTwiceFails(t *testing.T) {
	w := httptest.NewRecorder()
	f := New(w, newRequest(""), nil)

	require.NoError(t, f.SendStream(strings.NewReader("x"), "a", "", 1))
	assert.ErrorIs(t, f.SendAggregate(http.StatusOK, map[string]int{}), ErrAlreadyFinalized)
	assert.ErrorIs(t, f.SendStatus(http.StatusBadRequest), ErrAlreadyFinalized)
	assert.ErrorIs(t, f.SendStream(strings.NewReader("y"), "b", "", 1), ErrAlreadyFinalized)
	assert.Equal(t, "x", w.Body.String())
	assert.Equal(t, ModeStream, f.Mode())
}

func TestPreflight(t *testing.T) {
	w := httptest.NewRecorder()
	f := New(w, newRequest("https://app.example"), nil)

	require.NoError(t, f.Preflight())
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, AllowMethods, w.Header().Get("Allow"))
	assert.Equal(t, "max-age=86400", w.Header().Get("Cache-Control"))
	assertCommonHeaders(t, w, "https://app.example")
}

func TestContentDisposition(t *testing.T) {
	assert.Equal(t, `attachment; filename="a.txt"`, ContentDisposition("a.txt"))
	assert.Equal(t, `attachment; filename="say \"hi\".txt"`, ContentDisposition(`say "hi".txt`))
	assert.Equal(t, `attachment; filename="__.txt"; filename*=UTF-8''%E6%8A%A5%E5%91%8A.txt`, ContentDisposition("报告.txt"))
}
