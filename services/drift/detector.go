package drift

import (
	"context"
	"math"
	"strings"
	"sync"
	"time"

	"github.com/omniguard/llm-observability/config"
	"github.com/omniguard/llm-observability/models"
	"github.com/omniguard/llm-observability/services/embedding"
	"go.uber.org/zap"
)

// Options configures the drift detector.
type Options struct {
	Mode         config.EmbeddingMode
	Remote       embedding.Embedder
	Local        embedding.Embedder
	RemoteWeight float64
	LocalWeight  float64
	Smoothing    float64 // EMA factor applied to the reference embedding
	HistoryCap   int     // per-session score history kept for anomaly flagging
}

// Detector measures semantic drift of each exchange against a per-session
// reference embedding. The reference follows the conversation via an
// exponential moving average, so a gradual topic shift keeps drift low while
// an abrupt one spikes it.
type Detector struct {
	opts   Options
	logger *zap.Logger

	mu       sync.RWMutex
	sessions map[string]*refState
}

// refState is the per-session detector state. Its mutex serializes
// measurements for one session without blocking other sessions.
type refState struct {
	mu        sync.Mutex
	remoteRef []float64
	localRef  []float64
	scores    []float64
}

// NewDetector creates a drift detector.
func NewDetector(opts Options, logger *zap.Logger) *Detector {
	if opts.Smoothing <= 0 || opts.Smoothing > 1 {
		opts.Smoothing = 0.3
	}
	if opts.HistoryCap <= 0 {
		opts.HistoryCap = 50
	}
	return &Detector{
		opts:     opts,
		logger:   logger,
		sessions: make(map[string]*refState),
	}
}

// Measure computes the drift of text against the session reference and then
// folds the text's embedding into the reference. It returns nil when no
// measurement exists: first turn of a session, empty text, or every
// configured backend failing. Backend failures never become errors; the
// pipeline treats missing drift as a degraded signal, not a request failure.
func (d *Detector) Measure(ctx context.Context, sessionID, text string) *models.DriftMeasurement {
	if strings.TrimSpace(text) == "" {
		return nil
	}

	var remoteCur, localCur []float64
	remoteFailed := false

	if d.useRemote() {
		vec, err := d.opts.Remote.Embed(ctx, text)
		if err != nil {
			d.logger.Warn("remote embedding failed",
				zap.String("session_id", sessionID),
				zap.Error(err))
			remoteFailed = true
		} else {
			remoteCur = vec
		}
	}
	// The local embedder always runs when configured. Outside local/hybrid
	// modes it does not score; it keeps a standby reference warm so a remote
	// outage can fall back to it mid-session.
	if d.opts.Local != nil {
		vec, err := d.opts.Local.Embed(ctx, text)
		if err != nil {
			d.logger.Warn("local embedding failed",
				zap.String("session_id", sessionID),
				zap.Error(err))
		} else {
			localCur = vec
		}
	}

	if remoteCur == nil && localCur == nil {
		d.logger.Warn("all embedding backends unavailable, drift signal dropped",
			zap.String("session_id", sessionID))
		return nil
	}

	state := d.state(sessionID)
	state.mu.Lock()
	defer state.mu.Unlock()

	type backendScore struct {
		name   string
		score  float64
		weight float64
	}
	var scored []backendScore

	if remoteCur != nil {
		if len(state.remoteRef) == len(remoteCur) {
			scored = append(scored, backendScore{"remote", cosineDistance(state.remoteRef, remoteCur), d.opts.RemoteWeight})
		}
		state.remoteRef = emaUpdate(state.remoteRef, remoteCur, d.opts.Smoothing)
	}
	if localCur != nil {
		// Local contributes to the score in local/hybrid modes, or in remote
		// mode when the remote backend produced nothing this turn.
		if len(state.localRef) == len(localCur) && (d.localScores() || remoteCur == nil) {
			scored = append(scored, backendScore{"local", cosineDistance(state.localRef, localCur), d.opts.LocalWeight})
		}
		state.localRef = emaUpdate(state.localRef, localCur, d.opts.Smoothing)
	}

	// No backend had a reference yet: this was the seeding turn.
	if len(scored) == 0 {
		return nil
	}

	var weighted, totalWeight, plain float64
	names := make([]string, 0, len(scored))
	m := &models.DriftMeasurement{
		SessionID: sessionID,
		Fallback:  remoteFailed && localCur != nil,
		Timestamp: time.Now().UTC(),
	}
	for _, s := range scored {
		weighted += s.score * s.weight
		totalWeight += s.weight
		plain += s.score
		names = append(names, s.name)
		switch s.name {
		case "remote":
			m.RemoteScore = s.score
		case "local":
			m.LocalScore = s.score
		}
	}
	if totalWeight > 0 {
		m.Score = weighted / totalWeight
	} else {
		// A zero-weight backend carrying the measurement alone (fallback in
		// remote mode) still yields its raw score.
		m.Score = plain / float64(len(scored))
	}
	m.Backends = strings.Join(names, "+")
	m.Anomaly = scoreIsAnomalous(state.scores, m.Score)

	state.scores = append(state.scores, m.Score)
	if len(state.scores) > d.opts.HistoryCap {
		state.scores = state.scores[len(state.scores)-d.opts.HistoryCap:]
	}
	return m
}

// Forget drops the per-session detector state. Used when sessions expire.
func (d *Detector) Forget(sessionID string) {
	d.mu.Lock()
	delete(d.sessions, sessionID)
	d.mu.Unlock()
}

func (d *Detector) useRemote() bool {
	return d.opts.Remote != nil &&
		(d.opts.Mode == config.EmbeddingModeRemote || d.opts.Mode == config.EmbeddingModeHybrid)
}

// localScores reports whether the local backend contributes to the score on
// a healthy turn. In remote mode it is a standby only.
func (d *Detector) localScores() bool {
	return d.opts.Local != nil &&
		(d.opts.Mode == config.EmbeddingModeLocal || d.opts.Mode == config.EmbeddingModeHybrid)
}

func (d *Detector) state(sessionID string) *refState {
	d.mu.RLock()
	s, ok := d.sessions[sessionID]
	d.mu.RUnlock()
	if ok {
		return s
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if s, ok = d.sessions[sessionID]; ok {
		return s
	}
	s = &refState{}
	d.sessions[sessionID] = s
	return s
}

// cosineDistance is 1 minus cosine similarity, clamped to [0, 2]. A zero
// vector on either side yields 0 rather than NaN.
func cosineDistance(a, b []float64) float64 {
	var dot, na, nb float64
	for i := range a {
		dot += a[i] * b[i]
		na += a[i] * a[i]
		nb += b[i] * b[i]
	}
	if na == 0 || nb == 0 {
		return 0
	}
	dist := 1 - dot/(math.Sqrt(na)*math.Sqrt(nb))
	return math.Min(math.Max(dist, 0), 2)
}

// emaUpdate folds cur into ref with smoothing factor alpha. A nil or
// mismatched reference is reseeded from cur.
func emaUpdate(ref, cur []float64, alpha float64) []float64 {
	if len(ref) != len(cur) {
		seeded := make([]float64, len(cur))
		copy(seeded, cur)
		return seeded
	}
	for i := range ref {
		ref[i] = (1-alpha)*ref[i] + alpha*cur[i]
	}
	return ref
}
