// Package web exposes the HTTP API: account management, station
// lookup and alert CRUD. Responses are JSON throughout.
package web

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/example/tgvmax-watcher/internal/alerts"
	"github.com/example/tgvmax-watcher/internal/auth"
	"github.com/example/tgvmax-watcher/internal/availability"
	"github.com/example/tgvmax-watcher/internal/db"
	"github.com/example/tgvmax-watcher/internal/stations"
)

type Server struct {
	Auth     *auth.Store
	Alerts   *alerts.Repo
	Stations *stations.Repo

	Log *slog.Logger
}

func (s *Server) Routes() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok\n"))
	})

	mux.HandleFunc("POST /signup", s.handleSignup)
	mux.HandleFunc("POST /login", s.handleLogin)
	mux.HandleFunc("POST /logout", s.handleLogout)

	mux.Handle("GET /stations", s.Auth.RequireAuth(http.HandlerFunc(s.handleStationList)))
	mux.Handle("POST /alerts", s.Auth.RequireAuth(http.HandlerFunc(s.handleAlertCreate)))
	mux.Handle("GET /alerts", s.Auth.RequireAuth(http.HandlerFunc(s.handleAlertList)))
	mux.Handle("GET /alerts/{id}", s.Auth.RequireAuth(http.HandlerFunc(s.handleAlertGet)))
	mux.Handle("DELETE /alerts/{id}", s.Auth.RequireAuth(http.HandlerFunc(s.handleAlertDelete)))

	return mux
}

type credentials struct {
	Email        string `json:"email"`
	Password     string `json:"password"`
	TgvmaxNumber string `json:"tgvmaxNumber,omitempty"`
}

func (s *Server) handleSignup(w http.ResponseWriter, r *http.Request) {
	var c credentials
	if err := decodeJSON(r, &c); err != nil {
		s.fail(w, http.StatusBadRequest, err)
		return
	}
	c.Email = strings.TrimSpace(strings.ToLower(c.Email))
	if c.Email == "" || c.Password == "" {
		s.fail(w, http.StatusBadRequest, fmt.Errorf("email and password are required"))
		return
	}
	id, err := s.Auth.CreateUser(r.Context(), c.Email, c.Password, strings.TrimSpace(c.TgvmaxNumber))
	if err != nil {
		s.Log.Error("signup failed", "email", c.Email, "err", err)
		s.fail(w, http.StatusConflict, fmt.Errorf("could not create user"))
		return
	}
	if err := s.Auth.SetSession(w, r, id); err != nil {
		s.fail(w, http.StatusInternalServerError, err)
		return
	}
	s.respond(w, http.StatusCreated, map[string]int64{"id": id})
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var c credentials
	if err := decodeJSON(r, &c); err != nil {
		s.fail(w, http.StatusBadRequest, err)
		return
	}
	id, err := s.Auth.Authenticate(r.Context(), strings.TrimSpace(strings.ToLower(c.Email)), c.Password)
	if err != nil {
		s.fail(w, http.StatusUnauthorized, fmt.Errorf("invalid email or password"))
		return
	}
	if err := s.Auth.SetSession(w, r, id); err != nil {
		s.fail(w, http.StatusInternalServerError, err)
		return
	}
	s.respond(w, http.StatusOK, map[string]int64{"id": id})
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	s.Auth.ClearSession(w)
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleStationList(w http.ResponseWriter, r *http.Request) {
	sts, err := s.Stations.List(r.Context())
	if err != nil {
		s.fail(w, http.StatusInternalServerError, err)
		return
	}
	s.respond(w, http.StatusOK, sts)
}

type alertRequest struct {
	Origin       string    `json:"origin"`
	Destination  string    `json:"destination"`
	FromTime     time.Time `json:"fromTime"`
	ToTime       time.Time `json:"toTime"`
	TgvmaxNumber string    `json:"tgvmaxNumber,omitempty"`
}

type alertResponse struct {
	ID          int64      `json:"id"`
	Origin      string     `json:"origin"`
	Destination string     `json:"destination"`
	FromTime    time.Time  `json:"fromTime"`
	ToTime      time.Time  `json:"toTime"`
	Status      string     `json:"status"`
	LastCheck   time.Time  `json:"lastCheck"`
	TriggeredAt *time.Time `json:"triggeredAt,omitempty"`
	CreatedAt   time.Time  `json:"createdAt"`
}

func toAlertResponse(a alerts.Alert) alertResponse {
	return alertResponse{
		ID:          a.ID,
		Origin:      a.Origin.Name,
		Destination: a.Destination.Name,
		FromTime:    a.FromTime,
		ToTime:      a.ToTime,
		Status:      a.Status,
		LastCheck:   a.LastCheck,
		TriggeredAt: a.TriggeredAt,
		CreatedAt:   a.CreatedAt,
	}
}

func (s *Server) handleAlertCreate(w http.ResponseWriter, r *http.Request) {
	uid, _ := auth.UserIDFromContext(r.Context())

	var req alertRequest
	if err := decodeJSON(r, &req); err != nil {
		s.fail(w, http.StatusBadRequest, err)
		return
	}

	user, err := s.Auth.GetUser(r.Context(), uid)
	if err != nil {
		if db.IsNotFound(err) {
			s.fail(w, http.StatusNotFound, fmt.Errorf("user not found"))
			return
		}
		s.fail(w, http.StatusInternalServerError, err)
		return
	}
	card := strings.TrimSpace(req.TgvmaxNumber)
	if card == "" {
		card = user.TgvmaxNumber
	}

	origin, err := s.lookupStation(r.Context(), w, req.Origin)
	if err != nil {
		return
	}
	destination, err := s.lookupStation(r.Context(), w, req.Destination)
	if err != nil {
		return
	}

	a := alerts.Alert{
		UserID:      uid,
		CardNumber:  card,
		Origin:      origin,
		Destination: destination,
		FromTime:    req.FromTime,
		ToTime:      req.ToTime,
	}
	if err := a.Validate(); err != nil {
		s.fail(w, http.StatusBadRequest, err)
		return
	}

	id, err := s.Alerts.Create(r.Context(), a)
	if err != nil {
		s.Log.Error("create alert failed", "user_id", uid, "err", err)
		s.fail(w, http.StatusInternalServerError, fmt.Errorf("could not create alert"))
		return
	}
	a.ID = id
	a.Status = alerts.StatusPending
	s.respond(w, http.StatusCreated, toAlertResponse(a))
}

// lookupStation resolves a station name and writes the error response
// itself, so callers just return on non-nil error.
func (s *Server) lookupStation(ctx context.Context, w http.ResponseWriter, name string) (availability.Endpoint, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		err := fmt.Errorf("origin and destination are required")
		s.fail(w, http.StatusBadRequest, err)
		return availability.Endpoint{}, err
	}
	st, err := s.Stations.FindByName(ctx, name)
	if err != nil {
		if db.IsNotFound(err) {
			err = fmt.Errorf("unknown station %q", name)
			s.fail(w, http.StatusNotFound, err)
			return availability.Endpoint{}, err
		}
		s.fail(w, http.StatusInternalServerError, err)
		return availability.Endpoint{}, err
	}
	return st.Endpoint(), nil
}

func (s *Server) handleAlertList(w http.ResponseWriter, r *http.Request) {
	uid, _ := auth.UserIDFromContext(r.Context())
	as, err := s.Alerts.ListByUser(r.Context(), uid)
	if err != nil {
		s.fail(w, http.StatusInternalServerError, err)
		return
	}
	out := make([]alertResponse, 0, len(as))
	for _, a := range as {
		out = append(out, toAlertResponse(a))
	}
	s.respond(w, http.StatusOK, out)
}

func (s *Server) handleAlertGet(w http.ResponseWriter, r *http.Request) {
	uid, _ := auth.UserIDFromContext(r.Context())
	id, err := pathID(r)
	if err != nil {
		s.fail(w, http.StatusBadRequest, err)
		return
	}
	a, err := s.Alerts.GetByIDForUser(r.Context(), id, uid)
	if err != nil {
		if db.IsNotFound(err) {
			s.fail(w, http.StatusNotFound, fmt.Errorf("alert not found"))
			return
		}
		s.fail(w, http.StatusInternalServerError, err)
		return
	}
	s.respond(w, http.StatusOK, toAlertResponse(a))
}

func (s *Server) handleAlertDelete(w http.ResponseWriter, r *http.Request) {
	uid, _ := auth.UserIDFromContext(r.Context())
	id, err := pathID(r)
	if err != nil {
		s.fail(w, http.StatusBadRequest, err)
		return
	}
	if err := s.Alerts.DeleteByIDForUser(r.Context(), id, uid); err != nil {
		if db.IsNotFound(err) {
			s.fail(w, http.StatusNotFound, fmt.Errorf("alert not found"))
			return
		}
		s.fail(w, http.StatusInternalServerError, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func pathID(r *http.Request) (int64, error) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil || id < 1 {
		return 0, fmt.Errorf("invalid id")
	}
	return id, nil
}

func decodeJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(nil, r.Body, 1<<20))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("invalid request body")
	}
	return nil
}

func (s *Server) respond(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.Log.Error("write response", "err", err)
	}
}

func (s *Server) fail(w http.ResponseWriter, status int, err error) {
	s.respond(w, status, map[string]string{"error": err.Error()})
}

func Start(ctx context.Context, log *slog.Logger, addr string, h http.Handler) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           h,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()
	log.Info("listening", "addr", addr)
	return srv.ListenAndServe()
}
