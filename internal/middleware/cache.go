package middleware

import "net/http"

// noStoreHeaders keep signed report downloads and admin exports out of
// browser and proxy caches.
var noStoreHeaders = map[string]string{
	"Cache-Control": "no-store, private, max-age=0",
	"Pragma":        "no-cache",
	"Expires":       "0",
}

func NoStore(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h := w.Header()
		for k, v := range noStoreHeaders {
			h.Set(k, v)
		}
		next.ServeHTTP(w, r)
	})
}
