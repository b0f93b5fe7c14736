package httpapi

import (
	"bytes"
	"errors"
	"fmt"
	"net/http"
	"runtime/debug"
	"time"

	"go.uber.org/zap"

	"talent-source/internal/auth"
	"talent-source/internal/i18n"
	"talent-source/services"
	"talent-source/utils"
)

const CacheHeader = "X-Cache"

type statusRecorder struct {
	http.ResponseWriter
	status int
	size   int
}

func (s *statusRecorder) WriteHeader(code int) {
	s.status = code
	s.ResponseWriter.WriteHeader(code)
}

func (s *statusRecorder) Write(b []byte) (int, error) {
	if s.status == 0 {
		s.status = http.StatusOK
	}
	n, err := s.ResponseWriter.Write(b)
	s.size += n
	return n, err
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w}
		next.ServeHTTP(rec, r)
		utils.Logger().Info("http request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", rec.status),
			zap.Int("bytes", rec.size),
			zap.Duration("duration", time.Since(start)))
	})
}

func (s *Server) recoverer(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if v := recover(); v != nil {
				if v == http.ErrAbortHandler {
					panic(v)
				}
				utils.Logger().Error("panic serving request",
					zap.String("path", r.URL.Path), zap.Any("panic", v), zap.ByteString("stack", debug.Stack()))
				s.fail(w, r, fmt.Errorf("panic: %v", v))
			}
		}()
		next.ServeHTTP(w, r)
	})
}

// language resolves the request language and persists an explicit ?lang=.
func (s *Server) language(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tag, persist := i18n.ResolveTag(r)
		if persist {
			i18n.SetLanguageCookie(w, tag)
		}
		lang := i18n.Normalize(tag.String())
		w.Header().Set("Content-Language", lang)
		w.Header().Add("Vary", "Accept-Language")
		next.ServeHTTP(w, r.WithContext(i18n.WithLang(r.Context(), lang)))
	})
}

type bodyRecorder struct {
	http.ResponseWriter
	status int
	body   bytes.Buffer
}

func (b *bodyRecorder) WriteHeader(code int) {
	b.status = code
	b.ResponseWriter.WriteHeader(code)
}

func (b *bodyRecorder) Write(p []byte) (int, error) {
	if b.status == 0 {
		b.status = http.StatusOK
	}
	b.body.Write(p)
	return b.ResponseWriter.Write(p)
}

// cacheKey varies by language and role since both change the payload.
func cacheKey(r *http.Request) string {
	role := "anonymous"
	if p, ok := auth.FromContext(r.Context()); ok {
		role = string(p.Role)
	}
	return fmt.Sprintf("http:%s:%s:%s:%s", r.Method, r.URL.RequestURI(), i18n.FromContext(r.Context()), role)
}

// cached serves successful JSON responses from the response cache. Entries
// are dropped when any of tags is revalidated.
func (s *Server) cached(h http.HandlerFunc, tags ...string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		c := s.deps.Cache
		if c == nil {
			h(w, r)
			return
		}
		key := cacheKey(r)
		body, err := c.Get(r.Context(), key)
		switch {
		case err == nil:
			w.Header().Set(CacheHeader, "HIT")
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write(body)
			return
		case !errors.Is(err, services.ErrCacheMiss):
			utils.Logger().Warn("response cache read", zap.String("key", key), zap.Error(err))
		}

		w.Header().Set(CacheHeader, "MISS")
		rec := &bodyRecorder{ResponseWriter: w}
		h(rec, r)
		if rec.status != http.StatusOK {
			return
		}
		if err := c.Set(r.Context(), key, rec.body.Bytes(), s.deps.CacheTTL, tags...); err != nil {
			utils.Logger().Warn("response cache write", zap.String("key", key), zap.Error(err))
		}
	}
}
