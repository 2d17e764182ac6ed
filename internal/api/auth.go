package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"

	"github.com/susu3304/chipledger/internal/player"
)

const stateCookie = "discord_oauth_state"

type contextKey string

const claimsKey contextKey = "claims"

type Claims struct {
	UserID string `json:"user_id"`
	Name   string `json:"name"`
	jwt.RegisteredClaims
}

func claimsFrom(ctx context.Context) *Claims {
	c, _ := ctx.Value(claimsKey).(*Claims)
	return c
}

func (a *API) issueToken(p player.Player) (string, error) {
	now := a.now()
	claims := &Claims{
		UserID: p.ID,
		Name:   p.Name,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   p.ID,
			ExpiresAt: jwt.NewNumericDate(now.Add(a.config.TokenTTL)),
			IssuedAt:  jwt.NewNumericDate(now),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	s, err := token.SignedString(a.jwtSecret)
	if err != nil {
		return "", fmt.Errorf("failed to create token: %w", err)
	}
	return s, nil
}

func (a *API) writeSession(w http.ResponseWriter, status int, p player.Player) {
	token, err := a.issueToken(p)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, status, map[string]interface{}{
		"token":      token,
		"expires_at": a.now().Add(a.config.TokenTTL).UTC(),
		"player":     p,
	})
}

type registerRequest struct {
	UserID   string `json:"user_id"`
	Name     string `json:"name"`
	Password string `json:"password"`
	Phone    string `json:"phone"`
}

func (a *API) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	p, err := a.players.Register(r.Context(), req.UserID, req.Name, req.Password, req.Phone)
	if err != nil {
		writeError(w, err)
		return
	}
	a.writeSession(w, http.StatusCreated, p)
}

type loginRequest struct {
	UserID   string `json:"user_id"`
	Password string `json:"password"`
}

func (a *API) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	p, err := a.players.Authenticate(r.Context(), req.UserID, req.Password)
	if errors.Is(err, player.ErrPlayerNotFound) {
		err = player.ErrInvalidCredentials
	}
	if err != nil {
		writeError(w, err)
		return
	}
	a.writeSession(w, http.StatusOK, p)
}

func (a *API) handleDiscordLogin(w http.ResponseWriter, r *http.Request) {
	if !a.config.DiscordLoginEnabled() {
		writeErrorStatus(w, http.StatusNotFound, "discord login is not configured")
		return
	}
	state := generateRandomString(32)
	http.SetCookie(w, &http.Cookie{
		Name:     stateCookie,
		Value:    state,
		Path:     "/api/auth/discord",
		MaxAge:   600,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
	writeJSON(w, http.StatusOK, map[string]string{
		"auth_url": a.oauthConfig.AuthCodeURL(state),
		"state":    state,
	})
}

func (a *API) handleDiscordCallback(w http.ResponseWriter, r *http.Request) {
	if !a.config.DiscordLoginEnabled() {
		writeErrorStatus(w, http.StatusNotFound, "discord login is not configured")
		return
	}
	code := r.URL.Query().Get("code")
	if code == "" {
		writeErrorStatus(w, http.StatusBadRequest, "missing code")
		return
	}
	cookie, err := r.Cookie(stateCookie)
	if err != nil || cookie.Value == "" || cookie.Value != r.URL.Query().Get("state") {
		writeErrorStatus(w, http.StatusBadRequest, "invalid state")
		return
	}

	token, err := a.oauthConfig.Exchange(r.Context(), code)
	if err != nil {
		writeErrorStatus(w, http.StatusBadGateway, "token exchange failed")
		return
	}
	user, err := a.getDiscordUser(r.Context(), token.AccessToken)
	if err != nil {
		writeErrorStatus(w, http.StatusBadGateway, "failed to get user")
		return
	}
	p, _, err := a.players.GetOrCreate(r.Context(), user.ID, getUsername(user))
	if err != nil {
		writeError(w, err)
		return
	}
	a.writeSession(w, http.StatusOK, p)
}

// Middleware
func (a *API) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		authHeader := r.Header.Get("Authorization")
		if authHeader == "" {
			writeErrorStatus(w, http.StatusUnauthorized, "missing authorization header")
			return
		}

		tokenString := strings.TrimPrefix(authHeader, "Bearer ")
		if tokenString == authHeader {
			writeErrorStatus(w, http.StatusUnauthorized, "invalid authorization header")
			return
		}

		claims := &Claims{}
		token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
			if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("unexpected signing method")
			}
			return a.jwtSecret, nil
		}, jwt.WithTimeFunc(a.now))

		if err != nil || !token.Valid || claims.UserID == "" {
			writeErrorStatus(w, http.StatusUnauthorized, "invalid token")
			return
		}

		ctx := context.WithValue(r.Context(), claimsKey, claims)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
