package shield

import (
	"context"
	"net/http"
	"net/url"
	"strings"
)

const flashCookie = "flash"

// Flash moves a pending "flash" cookie into the request context and clears
// it. The cookie value is "<type>:<message>", type being success or error.
func Flash(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		cookie, err := r.Cookie(flashCookie)
		if err != nil || cookie.Value == "" {
			next.ServeHTTP(w, r)
			return
		}
		http.SetCookie(w, &http.Cookie{Name: flashCookie, MaxAge: -1, Path: "/"})

		raw, _ := url.QueryUnescape(cookie.Value)
		msg := &FlashMessage{Type: "error", Message: raw}
		if typ, text, ok := strings.Cut(raw, ":"); ok && (typ == "success" || typ == "error") {
			msg.Type, msg.Message = typ, text
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), FlashKey, msg)))
	})
}

// SetFlash schedules a one-shot message for the next page render.
func SetFlash(w http.ResponseWriter, flashType, message string) {
	http.SetCookie(w, &http.Cookie{
		Name:     flashCookie,
		Value:    url.QueryEscape(flashType + ":" + message),
		Path:     "/",
		MaxAge:   10,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
}
