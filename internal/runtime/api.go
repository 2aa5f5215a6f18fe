package runtime

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/loqalabs/loqa-accent/internal/eventstore"
	"github.com/loqalabs/loqa-accent/internal/peers"
	"github.com/loqalabs/loqa-accent/internal/pipeline"
)

const maxRequestBytes = 1 << 20

// Runner executes one analysis.
type Runner interface {
	Run(ctx context.Context, req pipeline.Request) (pipeline.Report, error)
}

// AnalysisReader looks up recorded analyses.
type AnalysisReader interface {
	Get(ctx context.Context, requestID string) (eventstore.Record, error)
	List(ctx context.Context, limit int) ([]eventstore.Record, error)
}

// PeerLister reports the analyzers sharing the bus queue group.
type PeerLister interface {
	Peers() []peers.Peer
}

type api struct {
	runner Runner
	store  AnalysisReader
	peers  PeerLister
	logger *slog.Logger
}

type analyzeBody struct {
	RequestID  string `json:"request_id"`
	Source     string `json:"source"`
	Transcript string `json:"transcript"`
}

type errorBody struct {
	Stage string `json:"stage,omitempty"`
	Error string `json:"error"`
}

type analysisView struct {
	RequestID   string          `json:"request_id"`
	Source      string          `json:"source,omitempty"`
	Status      string          `json:"status"`
	Label       string          `json:"label,omitempty"`
	Confidence  float64         `json:"confidence,omitempty"`
	Tier        string          `json:"tier,omitempty"`
	Explanation string          `json:"explanation,omitempty"`
	Scores      json.RawMessage `json:"scores,omitempty"`
	Features    json.RawMessage `json:"features,omitempty"`
	FailedStage string          `json:"failed_stage,omitempty"`
	Error       string          `json:"error,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
}

func (a *api) register(mux *http.ServeMux) {
	mux.HandleFunc("POST /v1/analyze", a.handleAnalyze)
	mux.HandleFunc("GET /v1/analyses", a.handleList)
	mux.HandleFunc("GET /v1/analyses/{id}", a.handleGet)
	mux.HandleFunc("GET /v1/analyzers", a.handleAnalyzers)
}

func (a *api) handleAnalyzers(w http.ResponseWriter, _ *http.Request) {
	if a.peers == nil {
		writeJSON(w, http.StatusOK, []peers.Peer{})
		return
	}
	writeJSON(w, http.StatusOK, a.peers.Peers())
}

func (a *api) handleAnalyze(w http.ResponseWriter, r *http.Request) {
	var body analyzeBody
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&body); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "invalid request body: " + err.Error()})
		return
	}
	body.Source = strings.TrimSpace(body.Source)
	if body.Source == "" {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "source must not be empty"})
		return
	}

	report, err := a.runner.Run(r.Context(), pipeline.Request{
		ID:         body.RequestID,
		Source:     body.Source,
		Transcript: body.Transcript,
	})
	if err != nil {
		stage := pipeline.StageOf(err)
		writeJSON(w, statusFor(stage, err), errorBody{Stage: string(stage), Error: err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, report)
}

// statusFor maps a pipeline failure to an HTTP status. Media and transcription
// failures are upstream problems; analysis failures mean unusable audio.
func statusFor(stage pipeline.Stage, err error) int {
	switch stage {
	case pipeline.StageAnalyze:
		return http.StatusUnprocessableEntity
	case pipeline.StageAcquire, pipeline.StageDecode, pipeline.StageTranscribe:
		return http.StatusBadGateway
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return http.StatusGatewayTimeout
	}
	return http.StatusInternalServerError
}

func (a *api) handleGet(w http.ResponseWriter, r *http.Request) {
	rec, err := a.store.Get(r.Context(), r.PathValue("id"))
	if errors.Is(err, eventstore.ErrNotFound) {
		writeJSON(w, http.StatusNotFound, errorBody{Error: err.Error()})
		return
	}
	if err != nil {
		a.logger.Error("analysis lookup failed", slogError(err))
		writeJSON(w, http.StatusInternalServerError, errorBody{Error: "lookup failed"})
		return
	}
	writeJSON(w, http.StatusOK, toView(rec))
}

func (a *api) handleList(w http.ResponseWriter, r *http.Request) {
	records, err := a.store.List(r.Context(), 50)
	if err != nil {
		a.logger.Error("analysis listing failed", slogError(err))
		writeJSON(w, http.StatusInternalServerError, errorBody{Error: "listing failed"})
		return
	}
	views := make([]analysisView, 0, len(records))
	for _, rec := range records {
		views = append(views, toView(rec))
	}
	writeJSON(w, http.StatusOK, views)
}

func toView(rec eventstore.Record) analysisView {
	v := analysisView{
		RequestID:   rec.RequestID,
		Source:      rec.Source,
		Status:      rec.Status,
		Label:       rec.Label,
		Confidence:  rec.Confidence,
		Tier:        rec.Tier,
		Explanation: rec.Explanation,
		FailedStage: rec.FailedStage,
		Error:       rec.Error,
		CreatedAt:   rec.CreatedAt,
	}
	if json.Valid(rec.Scores) {
		v.Scores = rec.Scores
	}
	if json.Valid(rec.Features) {
		v.Features = rec.Features
	}
	return v
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func slogError(err error) slog.Attr {
	return slog.String("error", err.Error())
}
