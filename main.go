// NFT Attribute Registry Service
// Copyright (c) 2026 NFT Attribute Registry Service
// Licensed under the MIT License. See LICENSE file for details.

package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/holiman/uint256"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"nft-attribute-registry/internal/adapters/driven/ledger"
	persistence "nft-attribute-registry/internal/adapters/driven/persistence/sqlite"
	"nft-attribute-registry/internal/adapters/driven/platforms"
	"nft-attribute-registry/internal/config"
	"nft-attribute-registry/internal/core/domain"
	"nft-attribute-registry/internal/core/ports/driving"
	"nft-attribute-registry/internal/core/services"
)

// RegistryServer exposes the attribute registry and the reference ledger over
// HTTP. Caller identity is taken from the X-Caller header.
type RegistryServer struct {
	service driving.AttributeService
	gate    driving.TransferGate
	ledger  *ledger.MemoryLedger
	log     *zap.SugaredLogger
}

// NewRegistryServer builds the full service from configuration: sqlite
// persistence, the casbin-backed platform allow-list, the reference ledger
// and the core services.
func NewRegistryServer(cfg *config.Config, db *gorm.DB, log *zap.SugaredLogger) (*RegistryServer, error) {
	records := persistence.NewRecordRepository(db)
	versions := persistence.NewVersionPolicyRepository(db)

	registry, err := platforms.NewCasbinPlatformRegistry(db, cfg.Registry.Governor)
	if err != nil {
		return nil, fmt.Errorf("failed to create platform registry: %v", err)
	}

	ownership := ledger.NewMemoryLedger(log)
	gate := services.NewAuthorizationGate(ownership, registry)
	store := services.NewAttributeStore(records, versions, registry, gate, cfg.ContextMode(), cfg.InitPolicy(), log)
	transferGate := services.NewTransferGate(records, versions, log)
	ownership.SetTransferGate(transferGate)

	return &RegistryServer{
		service: store,
		gate:    transferGate,
		ledger:  ownership,
		log:     log,
	}, nil
}

// Router builds the HTTP route table.
func (s *RegistryServer) Router() *mux.Router {
	router := mux.NewRouter()
	router.Use(requestIDMiddleware, s.loggingMiddleware, corsMiddleware)

	api := router.PathPrefix("/api/v1").Subrouter()

	api.HandleFunc("/health", s.healthHandler).Methods("GET")

	// Version policy administration
	api.HandleFunc("/versions", s.registerVersionHandler).Methods("POST")
	api.HandleFunc("/versions", s.listVersionsHandler).Methods("GET")
	api.HandleFunc("/versions/{version}", s.getVersionHandler).Methods("GET")

	// Platform allow-list administration
	api.HandleFunc("/platforms", s.registerPlatformHandler).Methods("POST")
	api.HandleFunc("/platforms", s.listPlatformsHandler).Methods("GET")
	api.HandleFunc("/platforms/{platform}", s.removePlatformHandler).Methods("DELETE")

	// Attribute records
	api.HandleFunc("/tokens/{id}/attributes", s.initializeHandler).Methods("POST")
	api.HandleFunc("/tokens/{id}/attributes", s.readHandler).Methods("GET")
	api.HandleFunc("/tokens/{id}/attributes", s.updateAttributesHandler).Methods("PATCH")
	api.HandleFunc("/tokens/{id}/attributes/{index}/mutable", s.isMutableHandler).Methods("GET")
	api.HandleFunc("/tokens/{id}/status/{position}", s.updateStatusBitHandler).Methods("PUT")
	api.HandleFunc("/tokens/{id}/emergency-clear", s.emergencyClearHandler).Methods("POST")
	api.HandleFunc("/tokens/{id}/transfer-allowed", s.allowTransferHandler).Methods("GET")

	// Reference ownership ledger (development deployments)
	api.HandleFunc("/ledger/tokens", s.mintHandler).Methods("POST")
	api.HandleFunc("/ledger/tokens/{id}/transfer", s.transferHandler).Methods("POST")
	api.HandleFunc("/ledger/tokens/{id}/burn", s.burnHandler).Methods("POST")
	api.HandleFunc("/ledger/tokens/{id}/approve", s.approveHandler).Methods("POST")
	api.HandleFunc("/ledger/operators", s.setApprovalForAllHandler).Methods("PUT")

	return router
}

// recordResponse is the JSON shape of an attribute record.
type recordResponse struct {
	Version    uint8   `json:"version"`
	Status     uint8   `json:"status"`
	Attributes []uint8 `json:"attributes"`
}

func toRecordResponse(rec domain.AttributeRecord) recordResponse {
	return recordResponse{
		Version:    rec.Version,
		Status:     rec.Status,
		Attributes: append([]uint8{}, rec.Attributes[:]...),
	}
}

func (s *RegistryServer) healthHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":  "healthy",
		"service": "nft-attribute-registry",
		"version": "1.0.0",
	})
}

type versionRequest struct {
	Version           uint8  `json:"version"`
	FirstMutableIndex uint8  `json:"first_mutable_index"`
	LastValidIndex    uint8  `json:"last_valid_index"`
	MaxStatusBit      *uint8 `json:"max_status_bit,omitempty"`
	TransferableBit   *uint8 `json:"transferable_bit,omitempty"`
	BurnableBit       *uint8 `json:"burnable_bit,omitempty"`
	BridgedBit        *uint8 `json:"bridged_bit,omitempty"`
}

func (s *RegistryServer) registerVersionHandler(w http.ResponseWriter, r *http.Request) {
	var req versionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request format", http.StatusBadRequest)
		return
	}

	policy := domain.NewVersionPolicy(req.FirstMutableIndex, req.LastValidIndex)
	if req.MaxStatusBit != nil {
		policy.MaxStatusBit = *req.MaxStatusBit
	}
	if req.TransferableBit != nil {
		policy.TransferableBit = *req.TransferableBit
	}
	if req.BurnableBit != nil {
		policy.BurnableBit = *req.BurnableBit
	}
	if req.BridgedBit != nil {
		policy.BridgedBit = *req.BridgedBit
	}

	if err := s.service.RegisterVersion(caller(r), req.Version, policy); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]interface{}{"version": req.Version})
}

func (s *RegistryServer) getVersionHandler(w http.ResponseWriter, r *http.Request) {
	version, ok := parseUint8(w, mux.Vars(r)["version"])
	if !ok {
		return
	}
	policy, err := s.service.VersionPolicy(version)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"version":             version,
		"first_mutable_index": policy.FirstMutableIndex,
		"last_valid_index":    policy.LastValidIndex,
		"max_status_bit":      policy.MaxStatusBit,
		"transferable_bit":    policy.TransferableBit,
		"burnable_bit":        policy.BurnableBit,
		"bridged_bit":         policy.BridgedBit,
	})
}

func (s *RegistryServer) listVersionsHandler(w http.ResponseWriter, r *http.Request) {
	all, err := s.service.ListVersions()
	if err != nil {
		writeError(w, err)
		return
	}
	versions := make([]map[string]interface{}, 0, len(all))
	for version, policy := range all {
		versions = append(versions, map[string]interface{}{
			"version":             version,
			"first_mutable_index": policy.FirstMutableIndex,
			"last_valid_index":    policy.LastValidIndex,
			"max_status_bit":      policy.MaxStatusBit,
		})
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"versions": versions})
}

func (s *RegistryServer) registerPlatformHandler(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Platform string `json:"platform"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Platform == "" {
		http.Error(w, "platform field is required", http.StatusBadRequest)
		return
	}
	if err := s.service.RegisterPlatform(caller(r), req.Platform); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]interface{}{"platform": req.Platform})
}

func (s *RegistryServer) removePlatformHandler(w http.ResponseWriter, r *http.Request) {
	platform := mux.Vars(r)["platform"]
	if err := s.service.RemovePlatform(caller(r), platform); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"platform": platform, "removed": true})
}

func (s *RegistryServer) listPlatformsHandler(w http.ResponseWriter, r *http.Request) {
	list, err := s.service.ListPlatforms()
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"platforms": list})
}

type initializeRequest struct {
	Version    uint8   `json:"version"`
	Status     uint8   `json:"status"`
	Attributes []uint8 `json:"attributes"`
}

func (s *RegistryServer) initializeHandler(w http.ResponseWriter, r *http.Request) {
	tokenID, ok := parseTokenID(w, r)
	if !ok {
		return
	}
	var req initializeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request format", http.StatusBadRequest)
		return
	}
	if len(req.Attributes) > domain.AttributeSlots {
		http.Error(w, fmt.Sprintf("at most %d attributes allowed", domain.AttributeSlots), http.StatusBadRequest)
		return
	}

	var attributes [domain.AttributeSlots]byte
	copy(attributes[:], req.Attributes)

	if err := s.service.Initialize(caller(r), tokenID, req.Version, req.Status, attributes); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]interface{}{"token": tokenID.Hex(), "version": req.Version})
}

func (s *RegistryServer) readHandler(w http.ResponseWriter, r *http.Request) {
	tokenID, ok := parseTokenID(w, r)
	if !ok {
		return
	}
	rec, err := s.service.Read(tokenID, r.URL.Query().Get("context"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toRecordResponse(rec))
}

type updateAttributesRequest struct {
	Indices []uint8 `json:"indices"`
	Values  []uint8 `json:"values"`
}

func (s *RegistryServer) updateAttributesHandler(w http.ResponseWriter, r *http.Request) {
	tokenID, ok := parseTokenID(w, r)
	if !ok {
		return
	}
	var req updateAttributesRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request format", http.StatusBadRequest)
		return
	}
	if err := s.service.UpdateAttributes(caller(r), tokenID, req.Indices, req.Values); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"token": tokenID.Hex(), "updated": len(req.Indices)})
}

func (s *RegistryServer) updateStatusBitHandler(w http.ResponseWriter, r *http.Request) {
	tokenID, ok := parseTokenID(w, r)
	if !ok {
		return
	}
	position, ok := parseUint8(w, mux.Vars(r)["position"])
	if !ok {
		return
	}
	var req struct {
		Value bool `json:"value"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request format", http.StatusBadRequest)
		return
	}
	if err := s.service.UpdateStatusBit(caller(r), tokenID, position, req.Value); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"token": tokenID.Hex(), "position": position, "value": req.Value})
}

func (s *RegistryServer) emergencyClearHandler(w http.ResponseWriter, r *http.Request) {
	tokenID, ok := parseTokenID(w, r)
	if !ok {
		return
	}
	var req struct {
		Context string `json:"context"`
	}
	// Body is optional in single-context deployments.
	if r.Body != nil {
		_ = json.NewDecoder(r.Body).Decode(&req)
	}
	if err := s.service.EmergencyClear(caller(r), tokenID, req.Context); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"token": tokenID.Hex(), "cleared": true})
}

func (s *RegistryServer) isMutableHandler(w http.ResponseWriter, r *http.Request) {
	tokenID, ok := parseTokenID(w, r)
	if !ok {
		return
	}
	index, ok := parseUint8(w, mux.Vars(r)["index"])
	if !ok {
		return
	}
	mutable, err := s.service.IsMutable(tokenID, r.URL.Query().Get("context"), index)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"token": tokenID.Hex(), "index": index, "mutable": mutable})
}

func (s *RegistryServer) allowTransferHandler(w http.ResponseWriter, r *http.Request) {
	tokenID, ok := parseTokenID(w, r)
	if !ok {
		return
	}
	burn := r.URL.Query().Get("burn") == "true"
	allowed, err := s.gate.AllowTransfer(tokenID, burn)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"token": tokenID.Hex(), "burn": burn, "allowed": allowed})
}

func (s *RegistryServer) mintHandler(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Owner   string `json:"owner"`
		TokenID string `json:"token_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Owner == "" || req.TokenID == "" {
		http.Error(w, "owner and token_id fields are required", http.StatusBadRequest)
		return
	}
	tokenID, err := parseTokenString(req.TokenID)
	if err != nil {
		http.Error(w, "invalid token_id", http.StatusBadRequest)
		return
	}
	if err := s.ledger.Mint(req.Owner, tokenID); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]interface{}{"token": tokenID.Hex(), "owner": req.Owner})
}

func (s *RegistryServer) transferHandler(w http.ResponseWriter, r *http.Request) {
	tokenID, ok := parseTokenID(w, r)
	if !ok {
		return
	}
	var req struct {
		To string `json:"to"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.To == "" {
		http.Error(w, "to field is required", http.StatusBadRequest)
		return
	}
	if err := s.ledger.Transfer(caller(r), req.To, tokenID); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"token": tokenID.Hex(), "to": req.To})
}

func (s *RegistryServer) burnHandler(w http.ResponseWriter, r *http.Request) {
	tokenID, ok := parseTokenID(w, r)
	if !ok {
		return
	}
	if err := s.ledger.Burn(caller(r), tokenID); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"token": tokenID.Hex(), "burned": true})
}

func (s *RegistryServer) approveHandler(w http.ResponseWriter, r *http.Request) {
	tokenID, ok := parseTokenID(w, r)
	if !ok {
		return
	}
	var req struct {
		Operator string `json:"operator"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Operator == "" {
		http.Error(w, "operator field is required", http.StatusBadRequest)
		return
	}
	if err := s.ledger.Approve(caller(r), req.Operator, tokenID); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"token": tokenID.Hex(), "operator": req.Operator})
}

func (s *RegistryServer) setApprovalForAllHandler(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Operator string `json:"operator"`
		Approved bool   `json:"approved"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Operator == "" {
		http.Error(w, "operator field is required", http.StatusBadRequest)
		return
	}
	s.ledger.SetApprovalForAll(caller(r), req.Operator, req.Approved)
	writeJSON(w, http.StatusOK, map[string]interface{}{"operator": req.Operator, "approved": req.Approved})
}

// caller extracts the caller identity from the X-Caller header.
func caller(r *http.Request) string {
	return r.Header.Get("X-Caller")
}

func parseTokenID(w http.ResponseWriter, r *http.Request) (*uint256.Int, bool) {
	id, err := parseTokenString(mux.Vars(r)["id"])
	if err != nil {
		http.Error(w, "invalid token id", http.StatusBadRequest)
		return nil, false
	}
	return id, true
}

// parseTokenString accepts decimal or 0x-prefixed hex token identifiers.
func parseTokenString(raw string) (*uint256.Int, error) {
	if len(raw) > 1 && (raw[0:2] == "0x" || raw[0:2] == "0X") {
		return uint256.FromHex(raw)
	}
	return uint256.FromDecimal(raw)
}

func parseUint8(w http.ResponseWriter, raw string) (uint8, bool) {
	n, err := strconv.ParseUint(raw, 10, 8)
	if err != nil {
		http.Error(w, "invalid numeric path parameter", http.StatusBadRequest)
		return 0, false
	}
	return uint8(n), true
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeError maps the registry error taxonomy onto HTTP status codes.
func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, domain.ErrUnauthorized):
		status = http.StatusForbidden
	case errors.Is(err, domain.ErrAssetNotFound):
		status = http.StatusNotFound
	case errors.Is(err, domain.ErrAlreadyInitialized),
		errors.Is(err, domain.ErrNotInitialized),
		errors.Is(err, domain.ErrVersionExists),
		errors.Is(err, ledger.ErrTransferBlocked):
		status = http.StatusConflict
	case errors.Is(err, domain.ErrImmutableAttribute):
		status = http.StatusUnprocessableEntity
	case errors.Is(err, domain.ErrUnsupportedVersion),
		errors.Is(err, domain.ErrLengthMismatch),
		errors.Is(err, domain.ErrPositionOutOfRange),
		errors.Is(err, domain.ErrInvalidPolicy):
		status = http.StatusBadRequest
	}

	writeJSON(w, status, map[string]interface{}{"error": err.Error()})
}

// requestIDMiddleware tags every request with an X-Request-ID.
func requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get("X-Request-ID")
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set("X-Request-ID", id)
		next.ServeHTTP(w, r)
	})
}

// loggingMiddleware logs incoming HTTP requests.
func (s *RegistryServer) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.log.Debugw("request", "method", r.Method, "uri", r.RequestURI, "caller", caller(r))
		next.ServeHTTP(w, r)
	})
}

// corsMiddleware adds CORS headers to responses.
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, PATCH, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, X-Caller, X-Request-ID")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

func newLogger(development bool) (*zap.SugaredLogger, error) {
	var logger *zap.Logger
	var err error
	if development {
		logger, err = zap.NewDevelopment()
	} else {
		logger, err = zap.NewProduction()
	}
	if err != nil {
		return nil, err
	}
	return logger.Sugar(), nil
}

// main initializes and starts the attribute registry service.
func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(fmt.Sprintf("failed to load config: %v", err))
	}

	log, err := newLogger(cfg.Logging.Development)
	if err != nil {
		panic(fmt.Sprintf("failed to create logger: %v", err))
	}
	defer log.Sync()

	db, err := gorm.Open(sqlite.Open(cfg.Database.Path), &gorm.Config{})
	if err != nil {
		log.Fatalw("failed to connect to SQLite database", "path", cfg.Database.Path, "error", err)
	}

	server, err := NewRegistryServer(cfg, db, log)
	if err != nil {
		log.Fatalw("failed to initialize registry server", "error", err)
	}

	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	log.Infow("attribute registry listening",
		"addr", addr,
		"context_mode", cfg.Registry.ContextMode,
		"init_policy", cfg.Registry.InitPolicy,
		"governor", cfg.Registry.Governor)

	if err := http.ListenAndServe(addr, server.Router()); err != nil {
		log.Fatalw("server stopped", "error", err)
	}
}
