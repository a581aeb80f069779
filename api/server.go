// Package api exposes the guideline responder and the patient follow-up
// workflows over HTTP.
package api

import (
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/mux"

	"github.com/fabfab/nexo/alerts"
	"github.com/fabfab/nexo/guidelines"
	"github.com/fabfab/nexo/interpret"
	"github.com/fabfab/nexo/metrics"
	"github.com/fabfab/nexo/patients"
)

const Version = "1.0.0"

//go:embed openapi.yaml
var openAPISpecYAML []byte

// Dependencies are the services the handlers call. Interpreter, Patients,
// Parameters and Alerts are required.
type Dependencies struct {
	Interpreter interpret.Interpreter
	Patients    patients.Store
	Parameters  alerts.ParameterStore
	Alerts      *alerts.Service
}

type Server struct {
	deps    Dependencies
	logger  *log.Logger
	handler http.Handler
}

type errorResponse struct {
	Error string `json:"error"`
}

type healthResponse struct {
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
	Version   string    `json:"version"`
}

type interpretRequest struct {
	Source string `json:"source"`
	Query  string `json:"query"`
}

type interpretResponse struct {
	Source         guidelines.Source `json:"source"`
	Query          string            `json:"query"`
	Interpretation string            `json:"interpretation"`
}

type guidelinesResponse struct {
	Source     guidelines.Source `json:"source"`
	Guidelines string            `json:"guidelines"`
	Outline    outlineResponse   `json:"outline"`
}

type outlineResponse struct {
	Title  string          `json:"title"`
	Points []pointResponse `json:"points"`
}

type pointResponse struct {
	Text  string           `json:"text"`
	Topic guidelines.Topic `json:"topic"`
}

type catalogResponse struct {
	Source     guidelines.Source `json:"source"`
	Paragraphs []string          `json:"paragraphs"`
}

type followUpResponse struct {
	Schedule string `json:"followup_schedule"`
}

func New(deps Dependencies, logger *log.Logger) *Server {
	if logger == nil {
		logger = log.Default()
	}

	s := &Server{deps: deps, logger: logger}
	s.handler = s.routes()
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.handler.ServeHTTP(w, r)
}

func (s *Server) Handler() http.Handler {
	return s.handler
}

func (s *Server) routes() http.Handler {
	r := mux.NewRouter()
	r.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		s.writeError(w, http.StatusNotFound, fmt.Errorf("route not found"))
	})
	r.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		s.writeError(w, http.StatusMethodNotAllowed, fmt.Errorf("method not allowed"))
	})

	r.HandleFunc("/healthz", s.handleHealth).Methods(http.MethodGet)
	r.HandleFunc("/openapi.yaml", s.handleOpenAPI).Methods(http.MethodGet)
	r.Handle("/metrics", metrics.Handler()).Methods(http.MethodGet)

	r.HandleFunc("/v1/guidelines", s.handleGuidelines).Methods(http.MethodGet)
	r.HandleFunc("/v1/guidelines/catalog", s.handleCatalog).Methods(http.MethodGet)
	r.HandleFunc("/v1/guidelines/interpret", s.handleInterpret).Methods(http.MethodPost)
	r.HandleFunc("/v1/guidelines/followup/{id}", s.handleFollowUp).Methods(http.MethodGet)

	r.HandleFunc("/v1/parameters", s.handleGetParameters).Methods(http.MethodGet)
	r.HandleFunc("/v1/parameters", s.handleUpdateParameters).Methods(http.MethodPut)
	r.HandleFunc("/v1/parameters/audit", s.handleParameterAudit).Methods(http.MethodGet)

	r.HandleFunc("/v1/patients", s.handleListPatients).Methods(http.MethodGet)
	r.HandleFunc("/v1/patients", s.handleCreatePatient).Methods(http.MethodPost)
	r.HandleFunc("/v1/patients/{id}", s.handleGetPatient).Methods(http.MethodGet)
	r.HandleFunc("/v1/patients/{id}", s.handleUpdatePatient).Methods(http.MethodPut)
	r.HandleFunc("/v1/patients/{id}", s.handleDeletePatient).Methods(http.MethodDelete)
	r.HandleFunc("/v1/patients/{id}/measurements", s.handleListMeasurements).Methods(http.MethodGet)
	r.HandleFunc("/v1/patients/{id}/measurements", s.handleAddMeasurement).Methods(http.MethodPost)
	r.HandleFunc("/v1/patients/{id}/measurements/latest", s.handleLatestMeasurement).Methods(http.MethodGet)
	r.HandleFunc("/v1/patients/{id}/alerts", s.handleAlerts).Methods(http.MethodGet)
	r.HandleFunc("/v1/patients/{id}/alerts/recommendations", s.handleRecommendations).Methods(http.MethodGet)

	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, healthResponse{
		Status:    "healthy",
		Timestamp: time.Now().UTC(),
		Version:   Version,
	})
}

func (s *Server) handleOpenAPI(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/yaml; charset=utf-8")
	w.Header().Set("Content-Disposition", "inline; filename=\"openapi.yaml\"")
	_, _ = w.Write(openAPISpecYAML)
}

func (s *Server) handleGuidelines(w http.ResponseWriter, r *http.Request) {
	source, err := guidelines.ParseSource(r.URL.Query().Get("source"))
	if err != nil {
		s.writeFailure(w, err)
		return
	}

	text := guidelines.Reference(source)
	outline := guidelines.ParseOutline(text)
	points := make([]pointResponse, len(outline.Points))
	for i, p := range outline.Points {
		points[i] = pointResponse{Text: p.Text, Topic: p.Topic}
	}

	s.writeJSON(w, http.StatusOK, guidelinesResponse{
		Source:     source,
		Guidelines: text,
		Outline:    outlineResponse{Title: outline.Title, Points: points},
	})
}

func (s *Server) handleCatalog(w http.ResponseWriter, r *http.Request) {
	source, err := guidelines.ParseSource(r.URL.Query().Get("source"))
	if err != nil {
		s.writeFailure(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, catalogResponse{Source: source, Paragraphs: guidelines.Catalog(source)})
}

func (s *Server) handleInterpret(w http.ResponseWriter, r *http.Request) {
	var req interpretRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, http.StatusBadRequest, fmt.Errorf("decode request: %w", err))
		return
	}

	source, err := guidelines.ParseSource(req.Source)
	if err != nil {
		s.writeFailure(w, err)
		return
	}
	if err := guidelines.ValidateQuery(req.Query); err != nil {
		s.writeFailure(w, err)
		return
	}

	answer, err := s.deps.Interpreter.Interpret(r.Context(), source, req.Query)
	if err != nil {
		s.writeFailure(w, fmt.Errorf("interpret guidelines: %w", err))
		return
	}

	s.writeJSON(w, http.StatusOK, interpretResponse{Source: source, Query: req.Query, Interpretation: answer})
}

func (s *Server) handleFollowUp(w http.ResponseWriter, r *http.Request) {
	plan, err := s.deps.Alerts.FollowUpPlan(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		s.writeFailure(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, followUpResponse{Schedule: plan})
}

func (s *Server) handleGetParameters(w http.ResponseWriter, r *http.Request) {
	params, err := s.deps.Parameters.Get(r.Context())
	if err != nil {
		s.writeFailure(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, params)
}

func (s *Server) handleUpdateParameters(w http.ResponseWriter, r *http.Request) {
	var update alerts.ParameterUpdate
	if err := decodeJSON(r, &update); err != nil {
		s.writeError(w, http.StatusBadRequest, fmt.Errorf("decode request: %w", err))
		return
	}
	if strings.TrimSpace(update.UpdatedBy) == "" {
		s.writeError(w, http.StatusBadRequest, fmt.Errorf("updated_by is required"))
		return
	}

	params, err := s.deps.Parameters.Update(r.Context(), update)
	if err != nil {
		s.writeFailure(w, err)
		return
	}
	s.logger.Printf("clinical parameters updated by %s", update.UpdatedBy)
	s.writeJSON(w, http.StatusOK, params)
}

func (s *Server) handleParameterAudit(w http.ResponseWriter, r *http.Request) {
	entries, err := s.deps.Parameters.Audit(r.Context())
	if err != nil {
		s.writeFailure(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, entries)
}

func (s *Server) handleListPatients(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	field, err := patients.ParseSortField(query.Get("sort"))
	if err != nil {
		s.writeFailure(w, err)
		return
	}
	desc := false
	if raw := query.Get("desc"); raw != "" {
		if desc, err = strconv.ParseBool(raw); err != nil {
			s.writeError(w, http.StatusBadRequest, fmt.Errorf("desc must be a boolean"))
			return
		}
	}

	list, err := s.deps.Patients.List(r.Context())
	if err != nil {
		s.writeFailure(w, err)
		return
	}
	list = patients.Search(list, query.Get("q"))
	patients.SortBy(list, field, desc)
	s.writeJSON(w, http.StatusOK, list)
}

func (s *Server) handleCreatePatient(w http.ResponseWriter, r *http.Request) {
	var patient patients.Patient
	if err := decodeJSON(r, &patient); err != nil {
		s.writeError(w, http.StatusBadRequest, fmt.Errorf("decode request: %w", err))
		return
	}

	created, err := s.deps.Patients.Create(r.Context(), patient)
	if err != nil {
		s.writeFailure(w, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, created)
}

func (s *Server) handleGetPatient(w http.ResponseWriter, r *http.Request) {
	patient, err := s.deps.Patients.Get(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		s.writeFailure(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, patient)
}

func (s *Server) handleUpdatePatient(w http.ResponseWriter, r *http.Request) {
	var patient patients.Patient
	if err := decodeJSON(r, &patient); err != nil {
		s.writeError(w, http.StatusBadRequest, fmt.Errorf("decode request: %w", err))
		return
	}

	updated, err := s.deps.Patients.Update(r.Context(), mux.Vars(r)["id"], patient)
	if err != nil {
		s.writeFailure(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, updated)
}

func (s *Server) handleDeletePatient(w http.ResponseWriter, r *http.Request) {
	if err := s.deps.Patients.Delete(r.Context(), mux.Vars(r)["id"]); err != nil {
		s.writeFailure(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleListMeasurements(w http.ResponseWriter, r *http.Request) {
	patient, err := s.deps.Patients.Get(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		s.writeFailure(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, patient.Measurements)
}

func (s *Server) handleAddMeasurement(w http.ResponseWriter, r *http.Request) {
	var m patients.Measurement
	if err := decodeJSON(r, &m); err != nil {
		s.writeError(w, http.StatusBadRequest, fmt.Errorf("decode request: %w", err))
		return
	}

	stored, err := s.deps.Patients.AddMeasurement(r.Context(), mux.Vars(r)["id"], m)
	if err != nil {
		s.writeFailure(w, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, stored)
}

func (s *Server) handleLatestMeasurement(w http.ResponseWriter, r *http.Request) {
	patient, err := s.deps.Patients.Get(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		s.writeFailure(w, err)
		return
	}
	latest, ok := patient.Latest()
	if !ok {
		s.writeJSON(w, http.StatusOK, nil)
		return
	}
	s.writeJSON(w, http.StatusOK, latest)
}

func (s *Server) handleAlerts(w http.ResponseWriter, r *http.Request) {
	found, err := s.deps.Alerts.Check(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		s.writeFailure(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, found)
}

func (s *Server) handleRecommendations(w http.ResponseWriter, r *http.Request) {
	recs, err := s.deps.Alerts.Recommendations(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		s.writeFailure(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, recs)
}

// writeFailure maps domain errors to status codes.
func (s *Server) writeFailure(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, guidelines.ErrBlankQuery):
		s.writeError(w, http.StatusBadRequest, errors.New(guidelines.BlankQueryMessage))
	case errors.Is(err, guidelines.ErrUnknownSource):
		s.writeError(w, http.StatusBadRequest, errors.New("Unrecognized source. Use 'AHA' or 'GES'."))
	case errors.Is(err, patients.ErrNotFound):
		s.writeError(w, http.StatusNotFound, err)
	case errors.Is(err, patients.ErrAlreadyExists):
		s.writeError(w, http.StatusConflict, err)
	case errors.Is(err, patients.ErrInvalid), errors.Is(err, alerts.ErrInvalidParameters):
		s.writeError(w, http.StatusBadRequest, err)
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		s.writeError(w, http.StatusServiceUnavailable, err)
	default:
		s.writeError(w, http.StatusInternalServerError, err)
	}
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.logger.Printf("encode response: %v", err)
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, err error) {
	s.logger.Printf("api error (%d): %v", status, err)
	s.writeJSON(w, status, errorResponse{Error: err.Error()})
}

func decodeJSON(r *http.Request, dst any) error {
	if r.Body == nil {
		return nil
	}
	defer r.Body.Close()

	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		if err == io.EOF {
			return nil
		}
		return err
	}

	if dec.More() {
		return fmt.Errorf("request body must contain a single JSON object")
	}

	return nil
}
