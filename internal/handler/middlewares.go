package handler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"runtime/debug"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/golang-jwt/jwt/v5"
	"github.com/precinct-ops/duty-roster/backend/internal/store"
)

const tokenCookie = "__duty_roster_token"

type ResponseWriter struct {
	http.ResponseWriter
	StatusCode int
}

func (rw *ResponseWriter) WriteHeader(statusCode int) {
	rw.StatusCode = statusCode
	rw.ResponseWriter.WriteHeader(statusCode)
}

func (h *Handler) logger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rw := &ResponseWriter{ResponseWriter: w, StatusCode: http.StatusOK}
		next.ServeHTTP(rw, r)
		duration := time.Since(start)
		slog.Info("已处理请求", "status", rw.StatusCode, "ip", r.RemoteAddr, "method", r.Method, "path", r.URL.Path, "duration", duration)
	})
}

func (h *Handler) recoverer(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if err := recover(); err != nil {
				h.internalServerError(w, r, fmt.Errorf("panic: %v", err))
				stackTrace := string(debug.Stack())
				fmt.Print(stackTrace) // 这里如果用 slog 的话会很乱
			}
		}()
		next.ServeHTTP(w, r)
	})
}

// ActorClaims 令牌中只关心操作者的身份
type ActorClaims struct {
	Name string `json:"name"`
	jwt.RegisteredClaims
}

func (c *ActorClaims) Actor() string {
	if c.Name != "" {
		return c.Name
	}
	return c.Subject
}

// bearerToken 优先从 Authorization 头获取令牌，其次是 cookie
func bearerToken(r *http.Request) (string, error) {
	if header := r.Header.Get("Authorization"); header != "" {
		token, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || token == "" {
			return "", errors.New("无效的 Authorization 头")
		}
		return token, nil
	}

	cookie, err := r.Cookie(tokenCookie)
	if err != nil {
		return "", err
	}
	return cookie.Value, nil
}

func (h *Handler) actor(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tokenString, err := bearerToken(r)
		if err != nil {
			switch {
			case errors.Is(err, http.ErrNoCookie):
				h.errorResponse(w, r, "用户未登录")
			default:
				h.errorResponse(w, r, err.Error())
			}
			return
		}

		// 验证 token
		claims := &ActorClaims{}
		_, err = jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
			return []byte(h.config.JWT.Secret), nil
		}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
		if err != nil || claims.Actor() == "" {
			h.errorResponse(w, r, "无效的令牌")
			return
		}

		ctx := context.WithValue(r.Context(), ActorCtxKey, claims.Actor())
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func actorFrom(ctx context.Context) string {
	actor, _ := ctx.Value(ActorCtxKey).(string)
	return actor
}

func (h *Handler) officerInfo(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		officerIDParam := chi.URLParam(r, "id")
		officerID, err := strconv.ParseInt(officerIDParam, 10, 64)
		if err != nil {
			h.errorResponse(w, r, "警员ID无效")
			return
		}

		officer, err := h.store.GetOfficer(r.Context(), officerID)
		if err != nil {
			switch {
			case errors.Is(err, store.ErrNotFound):
				h.errorResponse(w, r, "警员不存在")
			default:
				h.internalServerError(w, r, err)
			}
			return
		}

		ctx := context.WithValue(r.Context(), OfficerCtx, officer)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
