package httpapi

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/ongsolidaria/backoffice/internal/auth"
	"github.com/ongsolidaria/backoffice/internal/obs"
)

// ReadyProbe checks downstream readiness (database ping).
type ReadyProbe struct {
	DB *sql.DB
}

func (rp ReadyProbe) Check(ctx context.Context) error {
	if rp.DB == nil {
		return nil
	}
	return rp.DB.PingContext(ctx)
}

// API is the HTTP layer over the auth service and recovery flow.
type API struct {
	mux        *http.ServeMux
	svc        *auth.Service
	recovery   *auth.Recovery
	readyProbe ReadyProbe
	version    string
}

func New(svc *auth.Service, recovery *auth.Recovery, rp ReadyProbe, version string) *API {
	a := &API{
		mux:        http.NewServeMux(),
		svc:        svc,
		recovery:   recovery,
		readyProbe: rp,
		version:    version,
	}

	// health/ready/info
	a.mux.HandleFunc("/healthz", a.Healthz)
	a.mux.HandleFunc("/readyz", a.Ready)
	a.mux.HandleFunc("/v1/info", a.Info)

	// Prometheus metrics
	a.mux.Handle("/metrics", obs.Handler())

	// session and credential recovery
	a.mux.Handle("/v1/auth/login", RateLimit(http.HandlerFunc(a.handleLogin), 10, 5))
	a.mux.Handle("/v1/auth/recover", RateLimit(http.HandlerFunc(a.handleRecover), 3, 1))
	a.mux.Handle("/v1/auth/recover/verify", RateLimit(http.HandlerFunc(a.handleRecoverVerify), 3, 1))
	a.mux.Handle("/v1/auth/reset", RateLimit(http.HandlerFunc(a.handleReset), 3, 1))

	// role administration
	a.mux.HandleFunc("/v1/roles", a.handleRoles)
	a.mux.HandleFunc("/v1/roles/", a.handleRoleResource)
	a.mux.HandleFunc("/v1/windows", a.handleWindows)
	a.mux.HandleFunc("/v1/audit", a.handleAudit)

	a.mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		writeError(w, r, http.StatusNotFound, "recurso no encontrado")
	})

	return a
}

// Handler returns the full middleware chain around the mux.
func (a *API) Handler() http.Handler {
	var h http.Handler = a.mux
	h = a.withAuth(h)
	h = MaxBodyBytes(h, 1<<20)
	h = SecurityHeaders(h)
	h = CORS(h)
	h = Logging(h)
	h = RequestID(h)
	return obs.Instrument(h)
}

// --- Handlers ---

func (a *API) Healthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"service": "backoffice-api",
		"version": a.version,
	})
}

func (a *API) Ready(w http.ResponseWriter, r *http.Request) {
	if err := a.readyProbe.Check(r.Context()); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{
			"status": "not_ready",
			"error":  err.Error(),
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status": "ready",
	})
}

func (a *API) Info(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"name":    "backoffice-api",
		"time":    time.Now().UTC().Format(time.RFC3339),
		"version": a.version,
	})
}

// --- helpers ---

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, r *http.Request, code int, msg string) {
	writeJSON(w, code, map[string]any{
		"ok":      false,
		"message": msg,
	})
}

func methodNotAllowed(w http.ResponseWriter, r *http.Request, allowed ...string) {
	w.Header().Set("Allow", strings.Join(allowed, ", "))
	writeError(w, r, http.StatusMethodNotAllowed, "método no permitido")
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	reader := http.MaxBytesReader(w, r.Body, 1<<20)
	defer reader.Close()
	dec := json.NewDecoder(reader)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return errors.New("el cuerpo de la solicitud es obligatorio")
		}
		return err
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		if err == nil {
			return errors.New("datos inesperados después del cuerpo JSON")
		}
		return err
	}
	return nil
}

func parsePositiveInt(raw string, def, min, max int) (int, error) {
	if strings.TrimSpace(raw) == "" {
		return def, nil
	}
	val, err := strconv.Atoi(raw)
	if err != nil {
		return 0, errors.New("limit debe ser un número entero")
	}
	if val < min || val > max {
		return 0, errors.New("limit debe estar entre 1 y 1000")
	}
	return val, nil
}

// handleAuthError maps service sentinels to the HTTP status contract. Token
// lifecycle failures are validation errors, not authentication failures.
func handleAuthError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, auth.ErrTokenExpired):
		writeError(w, r, http.StatusBadRequest, "el token expiró")
	case errors.Is(err, auth.ErrTokenUsed):
		writeError(w, r, http.StatusBadRequest, "el token ya fue utilizado")
	case errors.Is(err, auth.ErrTokenInvalid):
		writeError(w, r, http.StatusBadRequest, "token inválido")
	case errors.Is(err, auth.ErrInvalidInput):
		writeError(w, r, http.StatusBadRequest, userMessage(err, "solicitud inválida"))
	case errors.Is(err, auth.ErrUnauthenticated):
		writeError(w, r, http.StatusUnauthorized, "credenciales inválidas")
	case errors.Is(err, auth.ErrForbidden):
		writeError(w, r, http.StatusForbidden, userMessage(err, "operación no permitida"))
	case errors.Is(err, auth.ErrNotFound):
		writeError(w, r, http.StatusNotFound, "recurso no encontrado")
	case errors.Is(err, auth.ErrConflict):
		writeError(w, r, http.StatusConflict, userMessage(err, "conflicto con el estado actual"))
	default:
		writeError(w, r, http.StatusInternalServerError, "error interno")
	}
}

// userMessage strips the internal sentinel prefix from a wrapped error so
// only the user-facing detail reaches the response.
func userMessage(err error, fallback string) string {
	msg := err.Error()
	for _, sentinel := range []error{auth.ErrInvalidInput, auth.ErrForbidden, auth.ErrConflict} {
		prefix := sentinel.Error() + ": "
		if strings.HasPrefix(msg, prefix) {
			return strings.TrimPrefix(msg, prefix)
		}
	}
	return fallback
}
