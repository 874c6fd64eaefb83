package documents

import (
	"errors"
	"mime"
	"net/http"
	"net/url"
	"path/filepath"
	"strings"

	"github.com/gorilla/mux"
	log "github.com/sirupsen/logrus"

	"github.com/2beens/gymsheets/internal/auth"
	"github.com/2beens/gymsheets/internal/telemetry/tracing"
	"github.com/2beens/gymsheets/internal/workouts"
	"github.com/2beens/gymsheets/pkg"
)

const (
	DefaultMaxDocumentSize = 20 << 20
	formFileField          = "file"
)

type Handler struct {
	store   Store
	maxSize int64
}

func NewHandler(store Store, maxSize int64) *Handler {
	if maxSize <= 0 {
		maxSize = DefaultMaxDocumentSize
	}
	return &Handler{
		store:   store,
		maxSize: maxSize,
	}
}

func (handler *Handler) SetupRoutes(router *mux.Router) {
	router.HandleFunc("/documents", handler.handleUpload).Methods("POST").Name("upload-document")
	router.HandleFunc("/documents/{owner}/{key}", handler.handleGet).Methods("GET").Name("get-document")
}

// URL is the path a stored document is served from.
func URL(owner, key string) string {
	return "/documents/" + url.PathEscape(owner) + "/" + url.PathEscape(key)
}

func (handler *Handler) handleUpload(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracing.GlobalTracer.Start(r.Context(), "documentsHandler.upload")
	defer span.End()

	owner, ok := auth.OwnerFromContext(ctx)
	if !ok {
		http.Error(w, "no can do", http.StatusUnauthorized)
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, handler.maxSize+1024*1024)
	if err := r.ParseMultipartForm(handler.maxSize); err != nil {
		log.Errorf("upload document, parse multipart form: %s", err)
		http.Error(w, "file too big or bad form", http.StatusBadRequest)
		return
	}
	defer func() {
		if err := r.MultipartForm.RemoveAll(); err != nil {
			log.Errorf("upload document, remove multipart files: %s", err)
		}
	}()

	file, fileHeader, err := r.FormFile(formFileField)
	if err != nil {
		http.Error(w, "error, file missing", http.StatusBadRequest)
		return
	}
	defer file.Close()

	if fileHeader.Size > handler.maxSize {
		http.Error(w, "error, file too big", http.StatusRequestEntityTooLarge)
		return
	}

	contentType := fileHeader.Header.Get("Content-Type")
	if !isPDF(fileHeader.Filename, contentType) {
		http.Error(w, "error, only pdf documents are accepted", http.StatusUnsupportedMediaType)
		return
	}

	key, err := handler.store.Put(ctx, PutParams{
		Owner:       owner,
		Filename:    fileHeader.Filename,
		ContentType: pkg.ContentType.PDF,
		Size:        fileHeader.Size,
		File:        file,
	})
	if err != nil {
		log.Errorf("upload document [%s]: %s", fileHeader.Filename, err)
		http.Error(w, "failed to store document", http.StatusInternalServerError)
		return
	}

	log.Tracef("new document stored for %s: %s", owner, key)
	pkg.WriteJSON(w, workouts.SourceDocument{
		URL:  URL(owner, key),
		Name: fileHeader.Filename,
	}, http.StatusCreated)
}

// handleGet serves a document to its owner only, everybody else gets a 404.
func (handler *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracing.GlobalTracer.Start(r.Context(), "documentsHandler.get")
	defer span.End()

	vars := mux.Vars(r)
	docOwner, key := vars["owner"], vars["key"]

	owner, ok := auth.OwnerFromContext(ctx)
	if !ok || owner != docOwner {
		log.Tracef("[documents] %s requested a foreign document %s", owner, r.URL.Path)
		http.NotFound(w, r)
		return
	}

	doc, err := handler.store.Get(ctx, docOwner, key)
	if err != nil {
		if errors.Is(err, ErrDocumentNotFound) || errors.Is(err, ErrInvalidKey) {
			http.NotFound(w, r)
			return
		}
		log.Errorf("get document [%s]: %s", key, err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	defer doc.Content.Close()

	if doc.ContentType != "" {
		w.Header().Set("Content-Type", doc.ContentType)
	}
	if disposition := mime.FormatMediaType("inline", map[string]string{"filename": doc.Name}); disposition != "" {
		w.Header().Set("Content-Disposition", disposition)
	}
	http.ServeContent(w, r, doc.Name, doc.ModTime, doc.Content)
}

func isPDF(filename, contentType string) bool {
	if strings.EqualFold(filepath.Ext(filename), ".pdf") {
		return true
	}
	return strings.HasPrefix(contentType, pkg.ContentType.PDF)
}
