package peers

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/loqalabs/loqa-accent/internal/bus"
	"github.com/loqalabs/loqa-accent/internal/config"
	"github.com/nats-io/nats.go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

const (
	SubjectAnnounce        = "accent.analyzer.announce"
	SubjectHeartbeatPrefix = "accent.analyzer.heartbeat"
)

// Profile describes what an analyzer can serve.
type Profile struct {
	Queue          string   `json:"queue"`
	MaxConcurrency int      `json:"max_concurrency"`
	Categories     []string `json:"categories"`
	STTMode        string   `json:"stt_mode"`
	Version        string   `json:"version,omitempty"`
}

// Peer is an analyzer seen on the bus, including this process.
type Peer struct {
	ID       string    `json:"id"`
	Profile  Profile   `json:"profile"`
	LastSeen time.Time `json:"last_seen"`
	Healthy  bool      `json:"healthy"`
	Local    bool      `json:"local"`
}

type announceMessage struct {
	NodeID    string    `json:"node_id"`
	Profile   Profile   `json:"profile"`
	Timestamp time.Time `json:"timestamp"`
}

type heartbeatMessage struct {
	NodeID    string    `json:"node_id"`
	Timestamp time.Time `json:"timestamp"`
}

// Registry tracks the analyzers sharing a queue group. Each member announces
// its profile once, heartbeats periodically and re-announces when it sees a
// peer it has not met, so late joiners learn existing members.
type Registry struct {
	id      string
	profile Profile
	cfg     config.AnalyzerConfig
	log     *slog.Logger
	bus     *bus.Client
	now     func() time.Time

	mu    sync.RWMutex
	peers map[string]*Peer

	cancel context.CancelFunc
	wg     sync.WaitGroup
	subs   []*nats.Subscription
}

func NewRegistry(ctx context.Context, cfg config.AnalyzerConfig, profile Profile, busClient *bus.Client, log *slog.Logger) (*Registry, error) {
	id := cfg.NodeID
	if id == "" {
		id = uuid.NewString()
	}
	ctx, cancel := context.WithCancel(ctx)
	r := &Registry{
		id:      id,
		profile: profile,
		cfg:     cfg,
		log:     log.With(slog.String("component", "peers"), slog.String("node_id", id)),
		bus:     busClient,
		now:     time.Now,
		peers:   make(map[string]*Peer),
		cancel:  cancel,
	}

	if err := r.initMetrics(); err != nil {
		r.log.Warn("failed to initialize peer metrics", slog.String("error", err.Error()))
	}
	if err := r.subscribe(); err != nil {
		cancel()
		return nil, err
	}
	if err := r.announce(); err != nil {
		r.log.Warn("failed to announce analyzer", slog.String("error", err.Error()))
	}

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		r.runHeartbeat(ctx)
	}()
	return r, nil
}

// ID returns this process's node id.
func (r *Registry) ID() string { return r.id }

func (r *Registry) Close() {
	r.cancel()
	r.wg.Wait()
	for _, sub := range r.subs {
		_ = sub.Drain()
	}
}

func (r *Registry) subscribe() error {
	conn := r.bus.Conn()
	announceSub, err := conn.Subscribe(SubjectAnnounce, r.handleAnnounce)
	if err != nil {
		return fmt.Errorf("subscribe announce: %w", err)
	}
	r.subs = append(r.subs, announceSub)

	heartbeatSub, err := conn.Subscribe(SubjectHeartbeatPrefix+".*", r.handleHeartbeat)
	if err != nil {
		_ = announceSub.Unsubscribe()
		return fmt.Errorf("subscribe heartbeat: %w", err)
	}
	r.subs = append(r.subs, heartbeatSub)
	return conn.Flush()
}

func (r *Registry) runHeartbeat(ctx context.Context) {
	ticker := time.NewTicker(time.Duration(r.cfg.HeartbeatIntervalMS) * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := r.publishHeartbeat(); err != nil {
				r.log.Warn("failed to publish heartbeat", slog.String("error", err.Error()))
			}
		}
	}
}

func (r *Registry) announce() error {
	msg := announceMessage{NodeID: r.id, Profile: r.profile, Timestamp: r.now().UTC()}
	payload, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	r.observe(msg.NodeID, &msg.Profile, msg.Timestamp)
	return r.bus.Conn().Publish(SubjectAnnounce, payload)
}

func (r *Registry) publishHeartbeat() error {
	msg := heartbeatMessage{NodeID: r.id, Timestamp: r.now().UTC()}
	payload, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	r.observe(msg.NodeID, nil, msg.Timestamp)
	return r.bus.Conn().Publish(SubjectHeartbeatPrefix+"."+r.id, payload)
}

func (r *Registry) handleAnnounce(msg *nats.Msg) {
	var announcement announceMessage
	if err := json.Unmarshal(msg.Data, &announcement); err != nil || announcement.NodeID == "" {
		r.log.Warn("invalid announce message")
		return
	}
	if announcement.NodeID == r.id {
		return
	}
	if announcement.Timestamp.IsZero() {
		announcement.Timestamp = r.now().UTC()
	}
	if isNew := r.observe(announcement.NodeID, &announcement.Profile, announcement.Timestamp); isNew {
		r.log.Info("analyzer joined", slog.String("peer", announcement.NodeID))
		if err := r.announce(); err != nil {
			r.log.Warn("failed to re-announce analyzer", slog.String("error", err.Error()))
		}
	}
}

func (r *Registry) handleHeartbeat(msg *nats.Msg) {
	var hb heartbeatMessage
	if err := json.Unmarshal(msg.Data, &hb); err != nil || hb.NodeID == "" {
		r.log.Warn("invalid heartbeat message")
		return
	}
	if hb.NodeID == r.id {
		return
	}
	if hb.Timestamp.IsZero() {
		hb.Timestamp = r.now().UTC()
	}
	r.observe(hb.NodeID, nil, hb.Timestamp)
}

// observe records activity from a node and reports whether it was unknown.
func (r *Registry) observe(nodeID string, profile *Profile, seen time.Time) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	peer, ok := r.peers[nodeID]
	if !ok {
		peer = &Peer{ID: nodeID, Local: nodeID == r.id}
		r.peers[nodeID] = peer
	}
	if profile != nil {
		peer.Profile = *profile
	}
	if seen.After(peer.LastSeen) {
		peer.LastSeen = seen
	}
	return !ok
}

// Peers returns every known analyzer sorted by id, with health evaluated
// against the heartbeat timeout.
func (r *Registry) Peers() []Peer {
	timeout := time.Duration(r.cfg.HeartbeatTimeoutMS) * time.Millisecond
	now := r.now()

	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Peer, 0, len(r.peers))
	for _, peer := range r.peers {
		p := *peer
		p.Profile.Categories = append([]string(nil), peer.Profile.Categories...)
		p.Healthy = now.Sub(p.LastSeen) <= timeout
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Capacity sums the concurrency of healthy analyzers.
func (r *Registry) Capacity() (nodes, slots int) {
	for _, p := range r.Peers() {
		if p.Healthy {
			nodes++
			slots += p.Profile.MaxConcurrency
		}
	}
	return nodes, slots
}

func (r *Registry) Healthy() bool {
	for _, p := range r.Peers() {
		if p.Local {
			return p.Healthy
		}
	}
	return false
}

func (r *Registry) initMetrics() error {
	meter := otel.Meter("github.com/loqalabs/loqa-accent/peers")
	nodeGauge, err := meter.Int64ObservableGauge("accent.analyzers", metric.WithDescription("Healthy analyzers in the queue group"))
	if err != nil {
		return err
	}
	slotGauge, err := meter.Int64ObservableGauge("accent.analyzer.slots", metric.WithDescription("Concurrent analyses the healthy analyzers can serve"))
	if err != nil {
		return err
	}
	_, err = meter.RegisterCallback(func(_ context.Context, obs metric.Observer) error {
		nodes, slots := r.Capacity()
		obs.ObserveInt64(nodeGauge, int64(nodes))
		obs.ObserveInt64(slotGauge, int64(slots))
		return nil
	}, nodeGauge, slotGauge)
	return err
}
