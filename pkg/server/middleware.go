package server

import (
	"compress/gzip"
	"io"
	"net/http"
	"strings"

	"github.com/klauspost/compress/zstd"

	"github.com/lstore-db/lstore/pkg/auth"
)

// authMiddleware rejects mutating requests lacking a valid
// "Authorization: Bearer <token>" header. Reads pass through
// ungated, matching a read-mostly analytics workload.
func (s *Server) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.verifier == nil || r.Method == http.MethodGet {
			next.ServeHTTP(w, r)
			return
		}

		header := r.Header.Get("Authorization")
		const prefix = "Bearer "
		if !strings.HasPrefix(header, prefix) {
			WriteError(w, http.StatusUnauthorized, "unauthorized", "missing bearer token")
			return
		}
		token := strings.TrimPrefix(header, prefix)
		if err := s.verifier.Verify(token); err != nil {
			if err == auth.ErrInvalidToken {
				WriteError(w, http.StatusUnauthorized, "unauthorized", "invalid bearer token")
				return
			}
			WriteError(w, http.StatusInternalServerError, "internal", err.Error())
			return
		}
		next.ServeHTTP(w, r)
	})
}

// compressionMiddleware wraps the response body in zstd or gzip when
// the client advertises support via Accept-Encoding, using
// klauspost/compress for the wire codec (never for on-disk page
// contents, which remain an uncompressed fixed layout per spec.md §4.1).
func (s *Server) compressionMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !s.config.EnableCompression {
			next.ServeHTTP(w, r)
			return
		}

		accept := r.Header.Get("Accept-Encoding")
		switch {
		case strings.Contains(accept, "zstd"):
			enc, err := zstd.NewWriter(w)
			if err != nil {
				next.ServeHTTP(w, r)
				return
			}
			defer enc.Close()
			w.Header().Set("Content-Encoding", "zstd")
			next.ServeHTTP(&compressedWriter{ResponseWriter: w, w: enc}, r)
		case strings.Contains(accept, "gzip"):
			enc := gzip.NewWriter(w)
			defer enc.Close()
			w.Header().Set("Content-Encoding", "gzip")
			next.ServeHTTP(&compressedWriter{ResponseWriter: w, w: enc}, r)
		default:
			next.ServeHTTP(w, r)
		}
	})
}

type compressedWriter struct {
	http.ResponseWriter
	w io.Writer
}

func (c *compressedWriter) Write(b []byte) (int, error) {
	return c.w.Write(b)
}

// requestSizeLimitMiddleware bounds request bodies to config.MaxRequestSize.
func (s *Server) requestSizeLimitMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, s.config.MaxRequestSize)
		next.ServeHTTP(w, r)
	})
}
