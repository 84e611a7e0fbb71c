package main

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"freshchain/internal/adapters/archive"
	"freshchain/internal/core"
	"freshchain/internal/infra/blob"
	"freshchain/pkg/domain"
)

type server struct {
	svc      *core.Service
	archiver *archive.Archiver
	blobs    blob.Store
	registry *prometheus.Registry
	logger   *zap.Logger
}

func newServer(svc *core.Service, archiver *archive.Archiver, blobs blob.Store, registry *prometheus.Registry, logger *zap.Logger) *server {
	return &server{svc: svc, archiver: archiver, blobs: blobs, registry: registry, logger: logger}
}

func (s *server) routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.Handle("GET /metrics", promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{}))

	mux.HandleFunc("POST /v1/roles", s.handleRegisterRole)
	mux.HandleFunc("POST /v1/pause", s.handleTogglePause)
	mux.HandleFunc("GET /v1/pause", s.handlePauseState)

	mux.HandleFunc("POST /v1/batches", s.handleCreateBatch)
	mux.HandleFunc("GET /v1/batches", s.handleListBatches)
	mux.HandleFunc("GET /v1/batches/{id}", s.handleGetBatch)
	mux.HandleFunc("POST /v1/batches/{id}/transfer", s.handleTransfer)
	mux.HandleFunc("POST /v1/batches/{id}/sensor", s.handleAppendReading)
	mux.HandleFunc("GET /v1/batches/{id}/sensor", s.handleSensorHistory)
	mux.HandleFunc("GET /v1/batches/{id}/custody", s.handleCustodyTrail)
	mux.HandleFunc("POST /v1/batches/{id}/finalize", s.handleFinalize)
	mux.HandleFunc("GET /v1/batches/{id}/passport", s.handlePassport)

	mux.HandleFunc("GET /v1/escrow", s.handleEscrow)
	return mux
}

type errorResponse struct {
	Error string           `json:"error"`
	Kind  domain.ErrorKind `json:"kind,omitempty"`
}

func (s *server) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.logger.Warn("encode response", zap.Error(err))
	}
}

func (s *server) writeError(w http.ResponseWriter, err error) {
	resp := errorResponse{Error: err.Error()}
	status := http.StatusInternalServerError
	var derr *domain.Error
	var rerr domain.RuleViolationError
	switch {
	case errors.As(err, &derr):
		resp.Kind = derr.Kind
		status = kindStatus(derr.Kind)
	case errors.As(err, &rerr):
		status = http.StatusConflict
	}
	s.writeJSON(w, status, resp)
}

func kindStatus(kind domain.ErrorKind) int {
	switch kind {
	case domain.KindNotFound:
		return http.StatusNotFound
	case domain.KindNotAuthorized, domain.KindNotAuthorizedRole:
		return http.StatusForbidden
	case domain.KindSystemPaused:
		return http.StatusServiceUnavailable
	case domain.KindMissingStake, domain.KindUnexpectedStake:
		return http.StatusBadRequest
	case domain.KindDuplicateID, domain.KindInvalidStageTransition,
		domain.KindAlreadyStaked, domain.KindAlreadyReleased,
		domain.KindInvalidState, domain.KindBatchFinalized:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func (s *server) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		s.writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid request body: " + err.Error()})
		return false
	}
	return true
}

func pathBatchID(w http.ResponseWriter, r *http.Request) (uint64, bool) {
	id, err := strconv.ParseUint(r.PathValue("id"), 10, 64)
	if err != nil {
		http.Error(w, "invalid batch id", http.StatusBadRequest)
		return 0, false
	}
	return id, true
}

func (s *server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *server) handleRegisterRole(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Caller   domain.Identity `json:"caller"`
		Role     domain.Role     `json:"role"`
		Identity domain.Identity `json:"identity"`
	}
	if !s.decode(w, r, &req) {
		return
	}
	if err := s.svc.RegisterRole(r.Context(), req.Caller, req.Role, req.Identity); err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"identity": req.Identity, "role": req.Role})
}

func (s *server) handleTogglePause(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Caller domain.Identity `json:"caller"`
	}
	if !s.decode(w, r, &req) {
		return
	}
	paused, err := s.svc.TogglePause(r.Context(), req.Caller)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]bool{"paused": paused})
}

func (s *server) handlePauseState(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]bool{"paused": s.svc.IsPaused()})
}

func (s *server) handleCreateBatch(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Caller        domain.Identity `json:"caller"`
		ID            uint64          `json:"id"`
		Name          string          `json:"name"`
		Quantity      int             `json:"quantity"`
		ShelfLifeDays int             `json:"shelf_life_days"`
		ProductClass  string          `json:"product_class"`
		RequiredStake uint64          `json:"required_stake"`
	}
	if !s.decode(w, r, &req) {
		return
	}
	batch, err := s.svc.CreateBatch(r.Context(), req.Caller, core.NewBatch{
		ID:            req.ID,
		Name:          req.Name,
		Quantity:      req.Quantity,
		ShelfLifeDays: req.ShelfLifeDays,
		ProductClass:  req.ProductClass,
		RequiredStake: req.RequiredStake,
	})
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, core.Project(batch))
}

func (s *server) handleListBatches(w http.ResponseWriter, r *http.Request) {
	batches, err := s.svc.ListBatches(r.Context())
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, batches)
}

func (s *server) handleGetBatch(w http.ResponseWriter, r *http.Request) {
	id, ok := pathBatchID(w, r)
	if !ok {
		return
	}
	batch, err := s.svc.GetBatch(r.Context(), id)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, batch)
}

func (s *server) handleTransfer(w http.ResponseWriter, r *http.Request) {
	id, ok := pathBatchID(w, r)
	if !ok {
		return
	}
	var req struct {
		Caller   domain.Identity `json:"caller"`
		NewOwner domain.Identity `json:"new_owner"`
		Stake    uint64          `json:"stake"`
	}
	if !s.decode(w, r, &req) {
		return
	}
	batch, err := s.svc.TransferCustody(r.Context(), req.Caller, id, req.NewOwner, req.Stake)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, core.Project(batch))
}

func (s *server) handleAppendReading(w http.ResponseWriter, r *http.Request) {
	id, ok := pathBatchID(w, r)
	if !ok {
		return
	}
	var req struct {
		Caller      domain.Identity `json:"caller"`
		Temperature int             `json:"temperature"`
		Humidity    int             `json:"humidity"`
		Location    string          `json:"location"`
		Timestamp   time.Time       `json:"timestamp"`
	}
	if !s.decode(w, r, &req) {
		return
	}
	batch, err := s.svc.AppendSensorReading(r.Context(), req.Caller, id, domain.SensorReading{
		Timestamp:   req.Timestamp,
		Temperature: req.Temperature,
		Humidity:    req.Humidity,
		Location:    req.Location,
	})
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, core.Project(batch))
}

func (s *server) handleSensorHistory(w http.ResponseWriter, r *http.Request) {
	id, ok := pathBatchID(w, r)
	if !ok {
		return
	}
	log, err := s.svc.SensorHistory(r.Context(), id)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, log)
}

func (s *server) handleCustodyTrail(w http.ResponseWriter, r *http.Request) {
	id, ok := pathBatchID(w, r)
	if !ok {
		return
	}
	trail, err := s.svc.CustodyTrail(r.Context(), id)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, trail)
}

func (s *server) handleFinalize(w http.ResponseWriter, r *http.Request) {
	id, ok := pathBatchID(w, r)
	if !ok {
		return
	}
	var req struct {
		Caller   domain.Identity `json:"caller"`
		Accepted bool            `json:"accepted"`
	}
	if !s.decode(w, r, &req) {
		return
	}
	batch, err := s.svc.Finalize(r.Context(), req.Caller, id, req.Accepted)
	if err != nil {
		s.writeError(w, err)
		return
	}
	if err := s.archiver.Enqueue(batch); err != nil {
		s.logger.Warn("passport archive enqueue", zap.Uint64("batch_id", id), zap.Error(err))
	}
	s.writeJSON(w, http.StatusOK, core.Project(batch))
}

func (s *server) handlePassport(w http.ResponseWriter, r *http.Request) {
	id, ok := pathBatchID(w, r)
	if !ok {
		return
	}
	info, payload, err := s.blobs.Get(r.Context(), archive.Key(id))
	if err != nil {
		s.writeJSON(w, http.StatusNotFound, errorResponse{Error: "passport not archived"})
		return
	}
	contentType := info.ContentType
	if contentType == "" {
		contentType = "application/json"
	}
	w.Header().Set("Content-Type", contentType)
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(payload); err != nil {
		s.logger.Warn("write passport", zap.Error(err))
	}
}

func (s *server) handleEscrow(w http.ResponseWriter, _ *http.Request) {
	ledger := s.svc.EscrowLedgerState()
	s.writeJSON(w, http.StatusOK, map[string]uint64{
		"total_staked":   ledger.TotalStaked,
		"total_released": ledger.TotalReleased,
		"outstanding":    ledger.Outstanding(),
	})
}
