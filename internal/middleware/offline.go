package middleware

import (
	"bytes"
	"log"
	"net/http"
	"sync"
)

// OfflineText GET 请求失败且无缓存时返回的文本
const OfflineText = "You are offline. Please check your internet connection."

type cachedResponse struct {
	contentType string
	body        []byte
}

// Offline 为只读 GET 接口提供网络优先的回退：成功的响应被缓存，
// 处理失败（5xx 或 panic）时返回缓存内容，没有缓存则返回离线提示
type Offline struct {
	mu    sync.RWMutex
	cache map[string]cachedResponse
}

// NewOffline 创建离线回退中间件
func NewOffline() *Offline {
	return &Offline{cache: make(map[string]cachedResponse)}
}

// Handler 包装 next；非 GET 请求直接透传
func (o *Offline) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			next.ServeHTTP(w, r)
			return
		}

		key := r.URL.RequestURI()
		rec := &recorder{header: make(http.Header), status: http.StatusOK}
		if !serve(next, rec, r) || rec.status >= http.StatusInternalServerError {
			o.fallback(w, key)
			return
		}

		if rec.status == http.StatusOK {
			o.mu.Lock()
			o.cache[key] = cachedResponse{contentType: rec.header.Get("Content-Type"), body: rec.body.Bytes()}
			o.mu.Unlock()
		}
		rec.flushTo(w)
	})
}

// serve 执行 next，并返回其是否正常结束（未 panic）
func serve(next http.Handler, rec *recorder, r *http.Request) (ok bool) {
	defer func() {
		if p := recover(); p != nil {
			if p == http.ErrAbortHandler {
				panic(p)
			}
			log.Printf("[offline] handler panic for %s: %v", r.URL.Path, p)
			ok = false
		}
	}()
	next.ServeHTTP(rec, r)
	return true
}

func (o *Offline) fallback(w http.ResponseWriter, key string) {
	o.mu.RLock()
	cached, ok := o.cache[key]
	o.mu.RUnlock()

	if ok {
		if cached.contentType != "" {
			w.Header().Set("Content-Type", cached.contentType)
		}
		w.Header().Set("X-Served-From", "offline-cache")
		w.WriteHeader(http.StatusOK)
		w.Write(cached.body)
		return
	}

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusServiceUnavailable)
	w.Write([]byte(OfflineText))
}

// recorder 缓冲响应，以便替换为回退内容
type recorder struct {
	header      http.Header
	status      int
	wroteHeader bool
	body        bytes.Buffer
}

func (r *recorder) Header() http.Header {
	return r.header
}

func (r *recorder) WriteHeader(status int) {
	if r.wroteHeader {
		return
	}
	r.wroteHeader = true
	r.status = status
}

func (r *recorder) Write(p []byte) (int, error) {
	r.WriteHeader(http.StatusOK)
	return r.body.Write(p)
}

func (r *recorder) flushTo(w http.ResponseWriter) {
	for k, v := range r.header {
		w.Header()[k] = v
	}
	w.WriteHeader(r.status)
	w.Write(r.body.Bytes())
}
