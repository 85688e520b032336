package handlers

import (
	"crypto/subtle"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog/log"
	"golang.org/x/crypto/bcrypt"
)

const tokenTTL = 24 * time.Hour

// AuthHandler signs in the single admin configured through the environment.
type AuthHandler struct {
	email        string
	passwordHash []byte
	secret       []byte
}

func NewAuthHandler(email, passwordHash, secret string) *AuthHandler {
	return &AuthHandler{
		email:        email,
		passwordHash: []byte(passwordHash),
		secret:       []byte(secret),
	}
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	if len(h.passwordHash) == 0 {
		writeError(w, http.StatusNotFound, "authentication is disabled")
		return
	}

	var req loginRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid body")
		return
	}

	emailOK := subtle.ConstantTimeCompare([]byte(strings.ToLower(req.Email)), []byte(strings.ToLower(h.email))) == 1
	if bcrypt.CompareHashAndPassword(h.passwordHash, []byte(req.Password)) != nil || !emailOK {
		log.Warn().Str("email", req.Email).Msg("failed login")
		writeError(w, http.StatusUnauthorized, "invalid credentials")
		return
	}

	token, err := GenerateJWT(h.secret, h.email, tokenTTL)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"token": token})
}

// GenerateJWT signs an HS256 token for subject.
func GenerateJWT(secret []byte, subject string, ttl time.Duration) (string, error) {
	claims := jwt.RegisteredClaims{
		Subject:   subject,
		IssuedAt:  jwt.NewNumericDate(time.Now()),
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(ttl)),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
}
