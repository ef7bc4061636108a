package http

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/utafrali/mobileshop/internal/blob"
)

// BlobReader looks up blobs kept in process.
type BlobReader interface {
	Get(key string) (blob.Object, bool)
}

// ServeBlobs serves GET /blobs/* from an in-process blob store.
func ServeBlobs(blobs BlobReader) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		obj, ok := blobs.Get(chi.URLParam(r, "*"))
		if !ok {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", obj.ContentType)
		w.Header().Set("Content-Length", strconv.Itoa(len(obj.Data)))
		w.Header().Set("Cache-Control", "public, max-age=86400")
		_, _ = w.Write(obj.Data)
	}
}
