package http

import (
	"crypto/subtle"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/gorilla/mux"
	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/kjstillabower/weather-widget/internal/observability"
	"github.com/kjstillabower/weather-widget/internal/validation"
	"github.com/kjstillabower/weather-widget/internal/widget"
)

const adminRole = "admin"

// AdminAuth verifies admin credentials and issues/validates HS256 tokens.
type AdminAuth struct {
	user         string
	passwordHash []byte
	secret       []byte
	ttl          time.Duration
	clock        clockwork.Clock
}

// NewAdminAuth returns nil when passwordHash or secret is empty; the admin routes then
// answer 403 ADMIN_DISABLED. A nil clock selects the real clock.
func NewAdminAuth(user, passwordHash, secret string, ttl time.Duration, clock clockwork.Clock) *AdminAuth {
	if passwordHash == "" || secret == "" {
		return nil
	}
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &AdminAuth{
		user:         user,
		passwordHash: []byte(passwordHash),
		secret:       []byte(secret),
		ttl:          ttl,
		clock:        clock,
	}
}

// checkCredentials compares the username in constant time and the password against the bcrypt hash.
func (a *AdminAuth) checkCredentials(user, password string) bool {
	userOK := subtle.ConstantTimeCompare([]byte(user), []byte(a.user)) == 1
	passOK := bcrypt.CompareHashAndPassword(a.passwordHash, []byte(password)) == nil
	return userOK && passOK
}

// IssueToken signs a token for the admin user. Returns the token and its expiry.
func (a *AdminAuth) IssueToken() (string, time.Time, error) {
	now := a.clock.Now()
	exp := now.Add(a.ttl)
	claims := jwt.MapClaims{
		"sub":  a.user,
		"role": adminRole,
		"iat":  now.Unix(),
		"exp":  exp.Unix(),
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(a.secret)
	return signed, exp, err
}

// ParseToken validates signature, expiry and role.
func (a *AdminAuth) ParseToken(tokenStr string) error {
	token, err := jwt.Parse(tokenStr, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrSignatureInvalid
		}
		return a.secret, nil
	}, jwt.WithTimeFunc(a.clock.Now), jwt.WithExpirationRequired(), jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return err
	}
	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok || claims["role"] != adminRole {
		return errors.New("token lacks admin role")
	}
	return nil
}

// RequireAdmin rejects requests without a valid Bearer token.
func RequireAdmin(auth *AdminAuth) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if auth == nil {
				writeError(w, r, http.StatusForbidden, "ADMIN_DISABLED", "admin access is not configured")
				return
			}
			header := r.Header.Get("Authorization")
			if !strings.HasPrefix(header, "Bearer ") {
				writeError(w, r, http.StatusUnauthorized, "UNAUTHORIZED", "missing bearer token")
				return
			}
			if err := auth.ParseToken(strings.TrimPrefix(header, "Bearer ")); err != nil {
				if logger := loggerFrom(r, nil); logger != nil {
					logger.Debug("admin token rejected", zap.Error(err))
				}
				writeError(w, r, http.StatusUnauthorized, "UNAUTHORIZED", "invalid token")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type loginResponse struct {
	Token     string `json:"token"`
	ExpiresAt int64  `json:"expiresAt"`
	User      string `json:"user"`
}

// AdminHandler serves the admin routes.
type AdminHandler struct {
	auth     *AdminAuth
	registry *widget.Registry
	logger   *zap.Logger
}

// NewAdminHandler returns an AdminHandler. auth may be nil (admin disabled).
func NewAdminHandler(auth *AdminAuth, registry *widget.Registry, logger *zap.Logger) *AdminHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AdminHandler{auth: auth, registry: registry, logger: logger}
}

// Login handles POST /admin/login.
func (h *AdminHandler) Login(w http.ResponseWriter, r *http.Request) {
	if h.auth == nil {
		writeError(w, r, http.StatusForbidden, "ADMIN_DISABLED", "admin access is not configured")
		return
	}
	var in loginRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<14)).Decode(&in); err != nil {
		writeError(w, r, http.StatusBadRequest, "INVALID_REQUEST", "request body must be JSON with username and password")
		return
	}
	if !h.auth.checkCredentials(in.Username, in.Password) {
		loggerFrom(r, h.logger).Warn("admin login failed")
		writeError(w, r, http.StatusUnauthorized, "INVALID_CREDENTIALS", "invalid credentials")
		return
	}
	token, exp, err := h.auth.IssueToken()
	if err != nil {
		loggerFrom(r, h.logger).Error("sign admin token", zap.Error(err))
		writeError(w, r, http.StatusInternalServerError, "INTERNAL", "could not issue token")
		return
	}
	writeJSON(w, http.StatusOK, loginResponse{Token: token, ExpiresAt: exp.Unix(), User: h.auth.user})
}

// settingsResponse is a widget's settings with the credential masked.
type settingsResponse struct {
	ID                string `json:"id"`
	Title             string `json:"title"`
	Location          string `json:"location"`
	Credential        string `json:"credential"`
	UsesDefaultAPIKey bool   `json:"usesDefaultApiKey"`
	UnitsSystem       string `json:"unitsSystem"`
	CacheMinutes      int    `json:"cacheMinutes"`
}

func newSettingsResponse(inst *widget.Instance) settingsResponse {
	s := inst.Settings()
	return settingsResponse{
		ID:                inst.ID(),
		Title:             s.Title,
		Location:          s.Location,
		Credential:        widget.MaskCredential(s.Credential),
		UsesDefaultAPIKey: s.Credential == "",
		UnitsSystem:       string(s.Units),
		CacheMinutes:      s.CacheMinutes,
	}
}

// GetWidget handles GET /admin/widgets/{id}.
func (h *AdminHandler) GetWidget(w http.ResponseWriter, r *http.Request) {
	inst, ok := h.registry.Get(mux.Vars(r)["id"])
	if !ok {
		writeError(w, r, http.StatusNotFound, "WIDGET_NOT_FOUND", "unknown widget")
		return
	}
	writeJSON(w, http.StatusOK, newSettingsResponse(inst))
}

// PutWidget handles PUT /admin/widgets/{id}: sanitizes and applies new settings.
// An omitted credential keeps the current one; a non-empty location must pass
// validation.ValidateLocation.
func (h *AdminHandler) PutWidget(w http.ResponseWriter, r *http.Request) {
	inst, ok := h.registry.Get(mux.Vars(r)["id"])
	if !ok {
		writeError(w, r, http.StatusNotFound, "WIDGET_NOT_FOUND", "unknown widget")
		return
	}
	var raw widget.RawSettings
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<16)).Decode(&raw); err != nil {
		writeError(w, r, http.StatusBadRequest, "INVALID_REQUEST", "request body must be a JSON settings object")
		return
	}
	if validation.SanitizeText(raw.Location) != "" {
		loc, err := validation.ValidateLocation(raw.Location, validation.DefaultLocationMinLen, validation.DefaultLocationMaxLen)
		if err != nil {
			writeError(w, r, http.StatusBadRequest, "INVALID_LOCATION", err.Error())
			return
		}
		raw.Location = loc
	}

	applied := inst.Update(r.Context(), raw)
	observability.WidgetLogger(r.Context(), h.logger, inst.ID()).Info("widget settings updated",
		zap.String("location", applied.Location),
		zap.String("units", string(applied.Units)),
		zap.Int("cache_minutes", applied.CacheMinutes))
	writeJSON(w, http.StatusOK, newSettingsResponse(inst))
}
