package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"math/big"
	"net/http"
	"strconv"
	"time"

	"github.com/ND68/TipJar/internal/domain/model"
	"github.com/ND68/TipJar/internal/orchestrator"
	"github.com/ND68/TipJar/internal/synchronizer"
	"github.com/ethereum/go-ethereum/common"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const (
	maxRequestBodyBytes = 16 << 10
	defaultLeaderboard  = 10
	maxLeaderboard      = 100
	defaultWaitTimeout  = 2 * time.Minute
)

// Orchestrator is the write side the API drives.
type Orchestrator interface {
	SubmitTip(ctx context.Context, amount *big.Int, message, nickname string) (*orchestrator.Action, error)
	SubmitWithdraw(ctx context.Context) (*orchestrator.Action, error)
	DeployNewJar(ctx context.Context) (*orchestrator.Action, error)
	State() model.TxState
	Target() common.Address
	OwnerOf(ctx context.Context, jar common.Address) (common.Address, error)
	IsOwner(ctx context.Context) (bool, error)
}

// Synchronizer is the read side the API serves from.
type Synchronizer interface {
	Snapshot() model.SyncSnapshot
	Refresh(ctx context.Context, force bool) error
	Subscribe(l synchronizer.SnapshotListener) func()
	Health() *synchronizer.Health
}

// Server exposes the tip jar over HTTP: snapshot reads, write actions,
// sync health and a websocket snapshot feed.
type Server struct {
	orch        Orchestrator
	sync        Synchronizer
	network     model.Network
	logger      *slog.Logger
	upgrader    websocket.Upgrader
	waitTimeout time.Duration
	wsWriteWait time.Duration
	hub         *hub
}

type ServerOption func(*Server)

// WithWaitTimeout caps how long a ?wait=true write request blocks.
func WithWaitTimeout(d time.Duration) ServerOption {
	return func(s *Server) {
		if d > 0 {
			s.waitTimeout = d
		}
	}
}

// WithCheckOrigin overrides the websocket origin check.
func WithCheckOrigin(fn func(r *http.Request) bool) ServerOption {
	return func(s *Server) { s.upgrader.CheckOrigin = fn }
}

func NewServer(orch Orchestrator, sync Synchronizer, network model.Network, logger *slog.Logger, opts ...ServerOption) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		orch:        orch,
		sync:        sync,
		network:     network,
		logger:      logger.With("component", "api"),
		waitTimeout: defaultWaitTimeout,
		wsWriteWait: 10 * time.Second,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
		},
	}
	for _, opt := range opts {
		opt(s)
	}
	s.hub = newHub(s.logger)
	return s
}

// Handler returns the HTTP handler for the API.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /v1/feed", s.handleFeed)
	mux.HandleFunc("GET /v1/leaderboard", s.handleLeaderboard)
	mux.HandleFunc("GET /v1/jar", s.handleJar)
	mux.HandleFunc("GET /v1/tx", s.handleTxState)
	mux.HandleFunc("POST /v1/tip", s.handleTip)
	mux.HandleFunc("POST /v1/withdraw", s.handleWithdraw)
	mux.HandleFunc("POST /v1/deploy", s.handleDeploy)
	mux.HandleFunc("POST /v1/refresh", s.handleRefresh)
	mux.HandleFunc("GET /v1/health", s.handleHealth)
	mux.HandleFunc("GET /v1/ws", s.handleWS)

	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		if _, err := w.Write([]byte("ok")); err != nil {
			s.logger.Warn("failed to write health response", "error", err)
		}
	})
	mux.Handle("/metrics", promhttp.Handler())
	return mux
}

// Run feeds synchronizer snapshots to websocket clients until ctx is done.
func (s *Server) Run(ctx context.Context) {
	unsubscribe := s.sync.Subscribe(s.hub.broadcast)
	defer unsubscribe()
	<-ctx.Done()
	s.hub.closeAll()
}

// writeJSON writes v as JSON with the given HTTP status code.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

type errorResponse struct {
	Error  string `json:"error"`
	Reason string `json:"reason,omitempty"`
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}

// decodeJSONBody reads and decodes a JSON request body into v. An empty body
// leaves v untouched.
func decodeJSONBody(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return false
	}
	return true
}

type feedResponse struct {
	Jar             string          `json:"jar"`
	Tips            []model.TipView `json:"tips"`
	LastRefreshedAt *time.Time      `json:"last_refreshed_at,omitempty"`
	IsRefreshing    bool            `json:"is_refreshing"`
}

func (s *Server) handleFeed(w http.ResponseWriter, r *http.Request) {
	view := model.NewSnapshotView(s.sync.Snapshot())
	writeJSON(w, http.StatusOK, feedResponse{
		Jar:             view.Jar,
		Tips:            view.Tips,
		LastRefreshedAt: view.LastRefreshedAt,
		IsRefreshing:    view.IsRefreshing,
	})
}

type leaderboardResponse struct {
	Jar             string                  `json:"jar"`
	Contributors    []model.ContributorView `json:"contributors"`
	Total           int                     `json:"total"`
	LastRefreshedAt *time.Time              `json:"last_refreshed_at,omitempty"`
}

func (s *Server) handleLeaderboard(w http.ResponseWriter, r *http.Request) {
	limit := defaultLeaderboard
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > maxLeaderboard {
			writeError(w, http.StatusBadRequest, "limit must be between 1 and 100")
			return
		}
		limit = n
	}

	snap := s.sync.Snapshot()
	view := model.NewSnapshotView(snap)
	writeJSON(w, http.StatusOK, leaderboardResponse{
		Jar:             view.Jar,
		Contributors:    model.NewContributorViews(snap.TopContributors(limit)),
		Total:           len(snap.Contributors),
		LastRefreshedAt: view.LastRefreshedAt,
	})
}

type jarResponse struct {
	Jar        string `json:"jar"`
	Network    string `json:"network"`
	Owner      string `json:"owner,omitempty"`
	IsOwner    bool   `json:"is_owner"`
	OwnerError string `json:"owner_error,omitempty"`
}

func (s *Server) handleJar(w http.ResponseWriter, r *http.Request) {
	target := s.orch.Target()
	if target == (common.Address{}) {
		writeError(w, http.StatusNotFound, "no jar selected")
		return
	}
	resp := jarResponse{Jar: target.Hex(), Network: s.network.String()}

	owner, err := s.orch.OwnerOf(r.Context(), target)
	if err != nil {
		s.logger.Warn("owner read failed", "jar", target.Hex(), "error", err)
		resp.OwnerError = err.Error()
		writeJSON(w, http.StatusOK, resp)
		return
	}
	resp.Owner = owner.Hex()

	isOwner, err := s.orch.IsOwner(r.Context())
	if err != nil {
		resp.OwnerError = err.Error()
	}
	resp.IsOwner = isOwner
	writeJSON(w, http.StatusOK, resp)
}

type txStateResponse struct {
	ActionID    string `json:"action_id,omitempty"`
	Action      string `json:"action,omitempty"`
	Phase       string `json:"phase"`
	TxHash      string `json:"tx_hash,omitempty"`
	ExplorerURL string `json:"explorer_url,omitempty"`
	Address     string `json:"address,omitempty"`
	Reason      string `json:"reason,omitempty"`
	Detail      string `json:"detail,omitempty"`
}

func (s *Server) txState(st model.TxState) txStateResponse {
	resp := txStateResponse{
		ActionID: st.ActionID,
		Action:   st.Action.String(),
		Phase:    st.Phase.String(),
		Reason:   st.Reason.String(),
		Detail:   st.Detail,
	}
	if st.HasTxHash() {
		resp.TxHash = st.TxHash.Hex()
		resp.ExplorerURL = s.network.ExplorerTxURL(resp.TxHash)
	}
	if st.Address != (common.Address{}) {
		resp.Address = st.Address.Hex()
	}
	return resp
}

func (s *Server) handleTxState(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.txState(s.orch.State()))
}

type tipRequest struct {
	AmountWei string `json:"amount_wei"`
	AmountEth string `json:"amount_eth"`
	Message   string `json:"message"`
	Nickname  string `json:"nickname"`
}

func (r tipRequest) amount() (*big.Int, error) {
	switch {
	case r.AmountWei != "" && r.AmountEth != "":
		return nil, errors.New("set only one of amount_wei and amount_eth")
	case r.AmountWei != "":
		v, ok := new(big.Int).SetString(r.AmountWei, 10)
		if !ok {
			return nil, errors.New("amount_wei must be a base-10 integer")
		}
		return v, nil
	case r.AmountEth != "":
		return model.ParseEther(r.AmountEth)
	default:
		return nil, errors.New("amount_wei or amount_eth is required")
	}
}

func (s *Server) handleTip(w http.ResponseWriter, r *http.Request) {
	var req tipRequest
	if !decodeJSONBody(w, r, &req) {
		return
	}
	amount, err := req.amount()
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	act, err := s.orch.SubmitTip(r.Context(), amount, req.Message, req.Nickname)
	s.respondAction(w, r, act, err)
}

func (s *Server) handleWithdraw(w http.ResponseWriter, r *http.Request) {
	act, err := s.orch.SubmitWithdraw(r.Context())
	s.respondAction(w, r, act, err)
}

func (s *Server) handleDeploy(w http.ResponseWriter, r *http.Request) {
	act, err := s.orch.DeployNewJar(r.Context())
	s.respondAction(w, r, act, err)
}

type actionResponse struct {
	ActionID string          `json:"action_id"`
	Action   string          `json:"action"`
	State    txStateResponse `json:"state"`
}

// respondAction answers 202 with the current state, or with ?wait=true
// blocks until the action is terminal and answers with the final state.
func (s *Server) respondAction(w http.ResponseWriter, r *http.Request, act *orchestrator.Action, err error) {
	if errors.Is(err, orchestrator.ErrActionInFlight) {
		writeJSON(w, http.StatusConflict, conflictResponse{
			Error: "another action is in flight",
			State: s.txState(s.orch.State()),
		})
		return
	}
	if err != nil {
		s.logger.Error("submit action failed", "error", err)
		writeError(w, http.StatusInternalServerError, "submit failed")
		return
	}

	wait, _ := strconv.ParseBool(r.URL.Query().Get("wait"))
	if !wait {
		writeJSON(w, http.StatusAccepted, actionResponse{
			ActionID: act.ID,
			Action:   act.Kind.String(),
			State:    s.txState(s.orch.State()),
		})
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), s.waitTimeout)
	defer cancel()
	final, err := act.Wait(ctx)
	if err != nil {
		// the action keeps running; the caller can poll /v1/tx
		writeJSON(w, http.StatusAccepted, actionResponse{
			ActionID: act.ID,
			Action:   act.Kind.String(),
			State:    s.txState(s.orch.State()),
		})
		return
	}
	status := http.StatusOK
	if final.Phase == model.TxPhaseFailed {
		status = failureStatus(final.Reason)
	}
	writeJSON(w, status, actionResponse{
		ActionID: act.ID,
		Action:   act.Kind.String(),
		State:    s.txState(final),
	})
}

type conflictResponse struct {
	Error string          `json:"error"`
	State txStateResponse `json:"state"`
}

func failureStatus(reason model.FailureReason) int {
	switch reason {
	case model.FailureInvalidRequest:
		return http.StatusBadRequest
	case model.FailureNotConnected:
		return http.StatusPreconditionFailed
	case model.FailureUnauthorized:
		return http.StatusForbidden
	case model.FailureUserRejected:
		return http.StatusConflict
	case model.FailureTransport:
		return http.StatusBadGateway
	default:
		return http.StatusUnprocessableEntity
	}
}

func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	err := s.sync.Refresh(r.Context(), true)
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, model.NewSnapshotView(s.sync.Snapshot()))
	case errors.Is(err, synchronizer.ErrNoJar):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, synchronizer.ErrStopped):
		writeError(w, http.StatusServiceUnavailable, err.Error())
	case errors.Is(err, synchronizer.ErrReadFailed):
		writeJSON(w, http.StatusBadGateway, errorResponse{Error: err.Error(), Reason: model.FailureReadFailed.String()})
	default:
		writeError(w, http.StatusServiceUnavailable, err.Error())
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	snap := s.sync.Health().Snapshot()
	status := http.StatusOK
	if snap.Status == string(synchronizer.HealthStatusUnhealthy) {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, snap)
}
