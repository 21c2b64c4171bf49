package httpserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strings"
	"time"

	"peggymeter/service/database"
	"peggymeter/service/model"
)

const requestTimeout = 10 * time.Second

// Config controls how the HTTP service listener behaves.
type Config struct {
	Addr string
}

// DataController is the part of database.Controller the API needs.
type DataController interface {
	UID() string
	Ready() <-chan struct{}
	Moods() ([]model.MoodRecord, error)
	SaveMood(ctx context.Context, rec model.MoodRecord) (model.MoodRecord, error)
	DeleteMood(ctx context.Context, id string) error
	Settings() (model.Settings, error)
	UpdateSettings(ctx context.Context, s model.Settings) (model.Settings, error)
}

// Reflector produces a short reflection on a mood history.
type Reflector interface {
	Reflect(ctx context.Context, records []model.MoodRecord, now time.Time) (string, error)
}

// Handler serves the local mood API.
type Handler struct {
	data      DataController
	reflector Reflector
}

// NewHandler builds the API handler. reflector may be nil.
func NewHandler(data DataController, reflector Reflector) (*Handler, error) {
	if data == nil {
		return nil, fmt.Errorf("data controller is required")
	}
	return &Handler{data: data, reflector: reflector}, nil
}

// Routes registers the API on a new mux.
func (h *Handler) Routes() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/" {
			respondJSONError(w, http.StatusNotFound, "not found")
			return
		}
		fmt.Fprintln(w, "peggymeter service online")
	})
	mux.HandleFunc("/healthz", h.Health)
	mux.HandleFunc("/moods", h.Moods)
	mux.HandleFunc("/moods/", h.DeleteMood)
	mux.HandleFunc("/settings", h.Settings)
	mux.HandleFunc("/reflection", h.Reflection)
	return mux
}

// Run starts the HTTP service listener until the provided context is canceled.
func Run(ctx context.Context, cfg Config, h *Handler) error {
	if ctx == nil {
		ctx = context.Background()
	}
	if h == nil {
		return fmt.Errorf("handler is required")
	}
	addr := strings.TrimSpace(cfg.Addr)
	if addr == "" {
		addr = ":8080"
	}

	srv := &http.Server{Addr: addr, Handler: h.Routes()}
	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		} else {
			errCh <- nil
		}
	}()
	log.Printf("listening on %s", addr)

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		return nil

	case err := <-errCh:
		return err
	}
}

// Health reports whether sign in has completed.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	status := "ok"
	code := http.StatusOK
	select {
	case <-h.data.Ready():
	default:
		status = "signing_in"
		code = http.StatusServiceUnavailable
	}
	respondJSON(w, code, map[string]string{"status": status, "uid": h.data.UID()})
}

// Moods lists (GET) or records (POST) mood entries.
func (h *Handler) Moods(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		records, err := h.data.Moods()
		if err != nil {
			respondError(w, err)
			return
		}
		if records == nil {
			records = []model.MoodRecord{}
		}
		respondJSON(w, http.StatusOK, map[string]any{"records": records})

	case http.MethodPost:
		var req saveMoodRequest
		decoder := json.NewDecoder(r.Body)
		decoder.DisallowUnknownFields()
		if err := decoder.Decode(&req); err != nil {
			respondJSONError(w, http.StatusBadRequest, fmt.Sprintf("invalid json: %v", err))
			return
		}
		ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
		defer cancel()
		saved, err := h.data.SaveMood(ctx, model.MoodRecord{
			Level:     req.Level,
			Comment:   req.Comment,
			Timestamp: req.Timestamp,
		})
		if err != nil {
			respondError(w, err)
			return
		}
		respondJSON(w, http.StatusCreated, saved)

	default:
		respondJSONError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

// DeleteMood removes /moods/{id}.
func (h *Handler) DeleteMood(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodDelete {
		respondJSONError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	id := strings.Trim(strings.TrimPrefix(r.URL.Path, "/moods/"), "/")
	if id == "" {
		respondJSONError(w, http.StatusBadRequest, "mood id is required")
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()
	if err := h.data.DeleteMood(ctx, id); err != nil {
		respondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Settings reads (GET) or replaces (PUT) the user's settings.
func (h *Handler) Settings(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		s, err := h.data.Settings()
		if err != nil {
			respondError(w, err)
			return
		}
		respondJSON(w, http.StatusOK, s)

	case http.MethodPut:
		var req model.Settings
		decoder := json.NewDecoder(r.Body)
		decoder.DisallowUnknownFields()
		if err := decoder.Decode(&req); err != nil {
			respondJSONError(w, http.StatusBadRequest, fmt.Sprintf("invalid json: %v", err))
			return
		}
		ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
		defer cancel()
		updated, err := h.data.UpdateSettings(ctx, req)
		if err != nil {
			respondError(w, err)
			return
		}
		respondJSON(w, http.StatusOK, updated)

	default:
		respondJSONError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

// Reflection returns a generated reflection on the current history.
func (h *Handler) Reflection(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		respondJSONError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	if h.reflector == nil {
		respondJSONError(w, http.StatusNotImplemented, "reflections are not configured")
		return
	}
	records, err := h.data.Moods()
	if err != nil {
		respondError(w, err)
		return
	}
	if len(records) == 0 {
		respondJSONError(w, http.StatusNotFound, "no mood records yet")
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), 2*requestTimeout)
	defer cancel()
	text, err := h.reflector.Reflect(ctx, records, time.Now())
	if err != nil {
		respondJSONError(w, http.StatusBadGateway, fmt.Sprintf("failed to generate reflection: %v", err))
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"reflection": text})
}

type saveMoodRequest struct {
	Level     model.MoodLevel `json:"level"`
	Comment   string          `json:"comment"`
	Timestamp time.Time       `json:"timestamp"`
}

func respondError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, database.ErrNotReady):
		respondJSONError(w, http.StatusServiceUnavailable, "still signing in, try again shortly")
	case errors.Is(err, database.ErrInvalidMood),
		errors.Is(err, database.ErrInvalidKey),
		errors.Is(err, database.ErrInvalidSettings):
		respondJSONError(w, http.StatusBadRequest, err.Error())
	default:
		log.Printf("request failed: %v", err)
		respondJSONError(w, http.StatusInternalServerError, err.Error())
	}
}

func respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func respondJSONError(w http.ResponseWriter, status int, msg string) {
	respondJSON(w, status, map[string]string{"error": msg})
}
