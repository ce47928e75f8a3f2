// Package middleware содержит HTTP middleware сервиса archivemart.
package middleware

import (
	"context"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"net/http"
	"strconv"
	"strings"
	"time"
)

type contextKey string

const userIDKey contextKey = "userID"

const (
	// AuthCookieName — имя cookie с подписанным идентификатором пользователя.
	AuthCookieName = "auth_token"
	// AdminTokenHeader — заголовок с токеном администратора.
	AdminTokenHeader = "X-Admin-Token"

	authCookieTTL = 30 * 24 * time.Hour
)

// AuthMiddleware проверяет подписанный токен пользователя из cookie или заголовка Authorization.
// Токен имеет вид "<id>.<unix-срок>.<hex hmac>".
type AuthMiddleware struct {
	secretKey []byte
	now       func() time.Time
}

// NewAuthMiddleware создаёт AuthMiddleware. С пустым секретом ключ генерируется случайно,
// и выданные токены перестают действовать после перезапуска.
func NewAuthMiddleware(secret string) *AuthMiddleware {
	key := []byte(secret)
	if len(key) == 0 {
		key = make([]byte, 32)
		_, _ = rand.Read(key)
	}

	return &AuthMiddleware{secretKey: key, now: time.Now}
}

// Middleware добавляет идентификатор пользователя в контекст запроса или отвечает 401.
func (a *AuthMiddleware) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		userID, ok := a.parseToken(tokenFromRequest(r))
		if !ok {
			writeUnauthorized(w)
			return
		}

		ctx := context.WithValue(r.Context(), userIDKey, userID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// SetAuthCookie выдаёт пользователю cookie и возвращает тот же токен для заголовка Authorization.
func (a *AuthMiddleware) SetAuthCookie(w http.ResponseWriter, userID int64) string {
	expires := a.now().Add(authCookieTTL)
	token := a.sign(strconv.FormatInt(userID, 10) + "." + strconv.FormatInt(expires.Unix(), 10))

	http.SetCookie(w, &http.Cookie{
		Name:     AuthCookieName,
		Value:    token,
		Path:     "/",
		Expires:  expires,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
	return token
}

func tokenFromRequest(r *http.Request) string {
	if c, err := r.Cookie(AuthCookieName); err == nil {
		return c.Value
	}
	if token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer "); ok {
		return strings.TrimSpace(token)
	}
	return ""
}

func (a *AuthMiddleware) sign(payload string) string {
	mac := hmac.New(sha256.New, a.secretKey)
	mac.Write([]byte(payload))
	return payload + "." + hex.EncodeToString(mac.Sum(nil))
}

func (a *AuthMiddleware) parseToken(token string) (int64, bool) {
	i := strings.LastIndexByte(token, '.')
	if i <= 0 {
		return 0, false
	}
	payload := token[:i]

	if !hmac.Equal([]byte(a.sign(payload)), []byte(token)) {
		return 0, false
	}

	idStr, expStr, ok := strings.Cut(payload, ".")
	if !ok {
		return 0, false
	}
	exp, err := strconv.ParseInt(expStr, 10, 64)
	if err != nil || a.now().Unix() >= exp {
		return 0, false
	}
	id, err := strconv.ParseInt(idStr, 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}

	return id, true
}

// GetUserIDFromContext извлекает идентификатор пользователя из контекста запроса.
func GetUserIDFromContext(ctx context.Context) (int64, bool) {
	id, ok := ctx.Value(userIDKey).(int64)
	return id, ok
}

// AdminOnly пропускает запросы только с верным токеном администратора.
// С пустым токеном административные маршруты закрыты полностью.
func AdminOnly(token string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			got := r.Header.Get(AdminTokenHeader)
			if token == "" || subtle.ConstantTimeCompare([]byte(got), []byte(token)) != 1 {
				writeUnauthorized(w)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func writeUnauthorized(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	_, _ = w.Write([]byte(`{"error":"unauthorized","message":"authentication required"}`))
}
