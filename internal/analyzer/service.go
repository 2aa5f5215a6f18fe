package analyzer

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/loqalabs/loqa-accent/internal/bus"
	"github.com/loqalabs/loqa-accent/internal/config"
	"github.com/loqalabs/loqa-accent/internal/pipeline"
	"github.com/loqalabs/loqa-accent/internal/protocol"
	"github.com/nats-io/nats.go"
)

// Runner executes one analysis.
type Runner interface {
	Run(ctx context.Context, req pipeline.Request) (pipeline.Report, error)
}

// Service consumes analysis requests from the bus. Requests are load-balanced
// across every analyzer in the queue group.
type Service struct {
	cfg    config.AnalyzerConfig
	bus    *bus.Client
	runner Runner
	logger *slog.Logger
	sub    *nats.Subscription
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	sema   chan struct{}
}

func NewService(parent context.Context, cfg config.AnalyzerConfig, busClient *bus.Client, runner Runner, log *slog.Logger) *Service {
	ctx, cancel := context.WithCancel(parent)
	concurrency := cfg.MaxConcurrency
	if concurrency <= 0 {
		concurrency = 1
	}
	return &Service{
		cfg:    cfg,
		bus:    busClient,
		runner: runner,
		logger: log.With(slog.String("component", "analyzer")),
		ctx:    ctx,
		cancel: cancel,
		sema:   make(chan struct{}, concurrency),
	}
}

func (s *Service) Start() error {
	if !s.cfg.Enabled {
		return nil
	}
	queue := s.cfg.Queue
	if queue == "" {
		queue = protocol.QueueAnalyzers
	}
	sub, err := s.bus.Conn().QueueSubscribe(protocol.SubjectAnalyzeRequest, queue, s.handleRequest)
	if err != nil {
		return err
	}
	s.sub = sub
	s.logger.Info("analyzer subscribed",
		slog.String("subject", protocol.SubjectAnalyzeRequest),
		slog.String("queue", queue),
		slog.Int("max_concurrency", cap(s.sema)))
	return nil
}

func (s *Service) Close() {
	s.cancel()
	if s.sub != nil {
		_ = s.sub.Drain()
	}
	s.wg.Wait()
}

func (s *Service) Healthy() bool { return !s.cfg.Enabled || s.sub != nil }

func (s *Service) handleRequest(msg *nats.Msg) {
	select {
	case <-s.ctx.Done():
		return
	default:
	}

	var req protocol.AnalyzeRequest
	if err := json.Unmarshal(msg.Data, &req); err != nil {
		s.logger.Warn("failed to decode analyze request", slogError(err))
		s.reply(msg, protocol.AnalyzeResult{
			RequestID: req.RequestID,
			Status:    protocol.StatusFailed,
			Error:     &protocol.ResultError{Stage: "request", Message: err.Error()},
			Timestamp: time.Now().UTC(),
		})
		return
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.sema <- struct{}{}
		defer func() { <-s.sema }()

		ctx := s.ctx
		if s.cfg.TimeoutMS > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, time.Duration(s.cfg.TimeoutMS)*time.Millisecond)
			defer cancel()
		}
		report, err := s.runner.Run(ctx, toPipelineRequest(req))
		s.reply(msg, toResult(report, err))
	}()
}

// reply answers the requester when a reply subject exists and always
// broadcasts the outcome.
func (s *Service) reply(msg *nats.Msg, result protocol.AnalyzeResult) {
	data, err := json.Marshal(result)
	if err != nil {
		s.logger.Error("failed to encode analyze result", slogError(err))
		return
	}
	if msg.Reply != "" {
		if err := msg.Respond(data); err != nil {
			s.logger.Warn("failed to reply with analyze result", slogError(err))
		}
	}
	if err := s.bus.Conn().Publish(protocol.SubjectAnalyzeResult, data); err != nil {
		s.logger.Warn("failed to publish analyze result", slogError(err))
	}
}

func toPipelineRequest(req protocol.AnalyzeRequest) pipeline.Request {
	out := pipeline.Request{
		ID:         req.RequestID,
		Source:     strings.TrimSpace(req.Source),
		Transcript: req.Transcript,
	}
	if len(req.PCM) > 0 {
		out.Audio = &pipeline.InlineAudio{PCM: req.PCM, SampleRate: req.SampleRate, Channels: req.Channels}
	}
	return out
}

func toResult(report pipeline.Report, err error) protocol.AnalyzeResult {
	res := protocol.AnalyzeResult{
		RequestID: report.RequestID,
		Timestamp: time.Now().UTC(),
	}
	if err != nil {
		stage := string(pipeline.StageOf(err))
		if stage == "" && errors.Is(err, context.DeadlineExceeded) {
			stage = "timeout"
		}
		res.Status = protocol.StatusFailed
		res.Error = &protocol.ResultError{Stage: stage, Message: err.Error()}
		return res
	}
	a := report.Assessment
	res.Status = protocol.StatusCompleted
	res.Label = a.Label
	res.Confidence = a.Confidence
	res.Tier = a.Tier
	res.Explanation = a.Explanation
	res.Ambiguous = a.Ambiguous
	res.Scores = a.Scores
	res.Transcript = report.Transcript
	return res
}

func slogError(err error) slog.Attr {
	return slog.String("error", err.Error())
}
