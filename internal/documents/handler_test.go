package documents

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2beens/gymsheets/internal/auth"
	"github.com/2beens/gymsheets/internal/workouts"
)

// withOwner stands in for the auth middleware.
func withOwner(owner string) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if owner != "" {
				r = r.WithContext(auth.WithOwner(r.Context(), owner))
			}
			next.ServeHTTP(w, r)
		})
	}
}

func newTestRouter(t *testing.T, store Store, owner string, maxSize int64) *mux.Router {
	t.Helper()
	r := mux.NewRouter()
	r.Use(withOwner(owner))
	NewHandler(store, maxSize).SetupRoutes(r)
	return r
}

func uploadRequest(t *testing.T, filename, contentType string, content []byte) *http.Request {
	t.Helper()
	body := &bytes.Buffer{}
	mw := multipart.NewWriter(body)
	header := make(map[string][]string)
	header["Content-Disposition"] = []string{`form-data; name="file"; filename="` + filename + `"`}
	header["Content-Type"] = []string{contentType}
	part, err := mw.CreatePart(header)
	require.NoError(t, err)
	_, err = part.Write(content)
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req := httptest.NewRequest("POST", "/documents", body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func TestHandler_UploadAndGet(t *testing.T) {
	store, err := NewDiskStore(t.TempDir())
	require.NoError(t, err)
	ownerRouter := newTestRouter(t, store, "owner-1", 0)

	rr := httptest.NewRecorder()
	ownerRouter.ServeHTTP(rr, uploadRequest(t, "Treino A.pdf", "application/pdf", []byte("%PDF-1.4 test")))
	require.Equal(t, http.StatusCreated, rr.Code)

	var doc workouts.SourceDocument
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &doc))
	assert.Equal(t, "Treino A.pdf", doc.Name)
	assert.True(t, strings.HasPrefix(doc.URL, "/documents/owner-1/"))

	rr = httptest.NewRecorder()
	ownerRouter.ServeHTTP(rr, httptest.NewRequest("GET", doc.URL, nil))
	require.Equal(t, http.StatusOK, rr.Code)
	content, err := io.ReadAll(rr.Body)
	require.NoError(t, err)
	assert.Equal(t, "%PDF-1.4 test", string(content))
	assert.Equal(t, "application/pdf", rr.Header().Get("Content-Type"))

	// another account cannot read it
	rr = httptest.NewRecorder()
	newTestRouter(t, store, "owner-2", 0).ServeHTTP(rr, httptest.NewRequest("GET", doc.URL, nil))
	assert.Equal(t, http.StatusNotFound, rr.Code)

	rr = httptest.NewRecorder()
	ownerRouter.ServeHTTP(rr, httptest.NewRequest("GET", "/documents/owner-1/missing_plan.pdf", nil))
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

type readSeekNopCloser struct {
	*bytes.Reader
}

func (readSeekNopCloser) Close() error { return nil }

// namedDocStore serves one document under any key, as a bucket filled by another tool could.
type namedDocStore struct {
	Store
	name string
}

func (s namedDocStore) Get(_ context.Context, _, key string) (*Document, error) {
	return &Document{
		Key:         key,
		Name:        s.name,
		ContentType: "application/pdf",
		ModTime:     time.Now(),
		Content:     readSeekNopCloser{bytes.NewReader([]byte("%PDF-1.4"))},
	}, nil
}

func TestHandler_Get_DispositionKeepsFilename(t *testing.T) {
	for _, name := range []string{`plan "A".pdf`, "treino ção.pdf", "plain.pdf"} {
		rr := httptest.NewRecorder()
		newTestRouter(t, namedDocStore{name: name}, "owner-1", 0).
			ServeHTTP(rr, httptest.NewRequest("GET", "/documents/owner-1/some-key.pdf", nil))
		require.Equal(t, http.StatusOK, rr.Code, name)

		mediaType, params, err := mime.ParseMediaType(rr.Header().Get("Content-Disposition"))
		require.NoError(t, err, name)
		assert.Equal(t, "inline", mediaType)
		assert.Equal(t, name, params["filename"])
	}
}

func TestHandler_Upload_Rejects(t *testing.T) {
	store, err := NewDiskStore(t.TempDir())
	require.NoError(t, err)

	rr := httptest.NewRecorder()
	newTestRouter(t, store, "", 0).ServeHTTP(rr, uploadRequest(t, "a.pdf", "application/pdf", []byte("%PDF")))
	assert.Equal(t, http.StatusUnauthorized, rr.Code)

	rr = httptest.NewRecorder()
	newTestRouter(t, store, "owner-1", 0).ServeHTTP(rr, uploadRequest(t, "notes.txt", "text/plain", []byte("bench")))
	assert.Equal(t, http.StatusUnsupportedMediaType, rr.Code)

	rr = httptest.NewRecorder()
	newTestRouter(t, store, "owner-1", 16).ServeHTTP(rr, uploadRequest(t, "big.pdf", "application/pdf", bytes.Repeat([]byte("x"), 64)))
	assert.Equal(t, http.StatusRequestEntityTooLarge, rr.Code)

	rr = httptest.NewRecorder()
	req := httptest.NewRequest("POST", "/documents", strings.NewReader("nope"))
	req.Header.Set("Content-Type", "application/json")
	newTestRouter(t, store, "owner-1", 0).ServeHTTP(rr, req)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}
