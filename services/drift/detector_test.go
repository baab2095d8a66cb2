package drift

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/omniguard/llm-observability/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// queueEmbedder returns pre-canned vectors in order, ignoring the text.
type queueEmbedder struct {
	mu   sync.Mutex
	name string
	vecs [][]float64
	errs []error
}

func (q *queueEmbedder) Name() string { return q.name }

func (q *queueEmbedder) Embed(_ context.Context, _ string) ([]float64, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.errs) > 0 {
		err := q.errs[0]
		q.errs = q.errs[1:]
		if err != nil {
			return nil, err
		}
	}
	if len(q.vecs) == 0 {
		return nil, errors.New("queue exhausted")
	}
	vec := q.vecs[0]
	q.vecs = q.vecs[1:]
	return vec, nil
}

func localOnlyDetector(vecs ...[]float64) *Detector {
	return NewDetector(Options{
		Mode:        config.EmbeddingModeLocal,
		Local:       &queueEmbedder{name: "local", vecs: vecs},
		LocalWeight: 1,
		Smoothing:   0.3,
	}, zap.NewNop())
}

func TestMeasure_FirstTurnHasNoDrift(t *testing.T) {
	d := localOnlyDetector([]float64{1, 0})

	m := d.Measure(context.Background(), "s1", "hello")
	assert.Nil(t, m)
}

func TestMeasure_IdenticalTextsScoreZero(t *testing.T) {
	d := localOnlyDetector([]float64{1, 0}, []float64{1, 0})

	require.Nil(t, d.Measure(context.Background(), "s1", "hello"))
	m := d.Measure(context.Background(), "s1", "hello")
	require.NotNil(t, m)
	assert.InDelta(t, 0, m.Score, 1e-9)
	assert.Equal(t, "local", m.Backends)
	assert.False(t, m.Fallback)
}

func TestMeasure_OrthogonalVectorsScoreOne(t *testing.T) {
	d := localOnlyDetector([]float64{1, 0}, []float64{0, 1})

	require.Nil(t, d.Measure(context.Background(), "s1", "first"))
	m := d.Measure(context.Background(), "s1", "second")
	require.NotNil(t, m)
	assert.InDelta(t, 1, m.Score, 1e-9)
}

func TestMeasure_OppositeVectorsScoreTwo(t *testing.T) {
	d := localOnlyDetector([]float64{1, 0}, []float64{-1, 0})

	require.Nil(t, d.Measure(context.Background(), "s1", "first"))
	m := d.Measure(context.Background(), "s1", "second")
	require.NotNil(t, m)
	assert.InDelta(t, 2, m.Score, 1e-9)
}

func TestMeasure_EmptyTextSkipped(t *testing.T) {
	d := localOnlyDetector([]float64{1, 0})

	assert.Nil(t, d.Measure(context.Background(), "s1", "   "))
	assert.Nil(t, d.Measure(context.Background(), "s1", ""))
}

func TestMeasure_HybridWeighting(t *testing.T) {
	d := NewDetector(Options{
		Mode:         config.EmbeddingModeHybrid,
		Remote:       &queueEmbedder{name: "remote", vecs: [][]float64{{1, 0}, {0, 1}}},
		Local:        &queueEmbedder{name: "local", vecs: [][]float64{{1, 0}, {1, 0}}},
		RemoteWeight: 0.7,
		LocalWeight:  0.3,
		Smoothing:    0.3,
	}, zap.NewNop())

	require.Nil(t, d.Measure(context.Background(), "s1", "first"))
	m := d.Measure(context.Background(), "s1", "second")
	require.NotNil(t, m)

	// remote distance 1, local distance 0, weighted 0.7/(0.7+0.3).
	assert.InDelta(t, 0.7, m.Score, 1e-9)
	assert.InDelta(t, 1, m.RemoteScore, 1e-9)
	assert.InDelta(t, 0, m.LocalScore, 1e-9)
	assert.Equal(t, "remote+local", m.Backends)
}

func TestMeasure_RemoteFailureFallsBackToLocal(t *testing.T) {
	d := NewDetector(Options{
		Mode:         config.EmbeddingModeHybrid,
		Remote:       &queueEmbedder{name: "remote", errs: []error{errors.New("boom"), errors.New("boom")}},
		Local:        &queueEmbedder{name: "local", vecs: [][]float64{{1, 0}, {0, 1}}},
		RemoteWeight: 0.5,
		LocalWeight:  0.5,
		Smoothing:    0.3,
	}, zap.NewNop())

	require.Nil(t, d.Measure(context.Background(), "s1", "first"))
	m := d.Measure(context.Background(), "s1", "second")
	require.NotNil(t, m)
	assert.True(t, m.Fallback)
	assert.Equal(t, "local", m.Backends)
	assert.InDelta(t, 1, m.Score, 1e-9)
}

func TestMeasure_RemoteModeFallsBackToLocalStandby(t *testing.T) {
	d := NewDetector(Options{
		Mode:         config.EmbeddingModeRemote,
		Remote:       &queueEmbedder{name: "remote", vecs: [][]float64{{1, 0}}, errs: []error{nil, errors.New("boom")}},
		Local:        &queueEmbedder{name: "local", vecs: [][]float64{{1, 0}, {0, 1}}},
		RemoteWeight: 1,
		LocalWeight:  1,
		Smoothing:    0.3,
	}, zap.NewNop())

	// Turn one seeds both the remote reference and the local standby.
	require.Nil(t, d.Measure(context.Background(), "s1", "first"))

	// Remote goes down on turn two: the standby carries the measurement.
	m := d.Measure(context.Background(), "s1", "second")
	require.NotNil(t, m)
	assert.True(t, m.Fallback)
	assert.Equal(t, "local", m.Backends)
	assert.InDelta(t, 1, m.Score, 1e-9)
}

func TestMeasure_RemoteModeStandbyDoesNotScore(t *testing.T) {
	d := NewDetector(Options{
		Mode:         config.EmbeddingModeRemote,
		Remote:       &queueEmbedder{name: "remote", vecs: [][]float64{{1, 0}, {0, 1}}},
		Local:        &queueEmbedder{name: "local", vecs: [][]float64{{1, 0}, {1, 0}}},
		RemoteWeight: 1,
		LocalWeight:  1,
		Smoothing:    0.3,
	}, zap.NewNop())

	require.Nil(t, d.Measure(context.Background(), "s1", "first"))
	m := d.Measure(context.Background(), "s1", "second")
	require.NotNil(t, m)

	// The local standby's zero distance must not dilute the remote score.
	assert.False(t, m.Fallback)
	assert.Equal(t, "remote", m.Backends)
	assert.InDelta(t, 1, m.Score, 1e-9)
}

func TestMeasure_AllBackendsFailYieldsNoMeasurement(t *testing.T) {
	d := NewDetector(Options{
		Mode:         config.EmbeddingModeHybrid,
		Remote:       &queueEmbedder{name: "remote", errs: []error{errors.New("boom")}},
		Local:        &queueEmbedder{name: "local", errs: []error{errors.New("boom")}},
		RemoteWeight: 0.5,
		LocalWeight:  0.5,
	}, zap.NewNop())

	assert.Nil(t, d.Measure(context.Background(), "s1", "hello"))
}

func TestMeasure_ReferenceFollowsConversation(t *testing.T) {
	// Reference starts at [1,0]; after an exchange at [0,1] with alpha 0.5
	// the reference moves between them, so a third exchange back at [0,1]
	// scores lower than the second did.
	d := NewDetector(Options{
		Mode:        config.EmbeddingModeLocal,
		Local:       &queueEmbedder{name: "local", vecs: [][]float64{{1, 0}, {0, 1}, {0, 1}}},
		LocalWeight: 1,
		Smoothing:   0.5,
	}, zap.NewNop())

	require.Nil(t, d.Measure(context.Background(), "s1", "a"))
	second := d.Measure(context.Background(), "s1", "b")
	third := d.Measure(context.Background(), "s1", "c")
	require.NotNil(t, second)
	require.NotNil(t, third)
	assert.Less(t, third.Score, second.Score)
}

func TestMeasure_SessionsAreIndependent(t *testing.T) {
	d := localOnlyDetector([]float64{1, 0}, []float64{0, 1})

	assert.Nil(t, d.Measure(context.Background(), "s1", "a"))
	// s2's first exchange seeds its own reference; it is not measured
	// against s1's.
	assert.Nil(t, d.Measure(context.Background(), "s2", "b"))
}

func TestForget(t *testing.T) {
	d := localOnlyDetector([]float64{1, 0}, []float64{1, 0})

	require.Nil(t, d.Measure(context.Background(), "s1", "a"))
	d.Forget("s1")
	// After forgetting, the next exchange seeds again.
	assert.Nil(t, d.Measure(context.Background(), "s1", "b"))
}

func TestZScoreAnomalies(t *testing.T) {
	assert.Nil(t, zScoreAnomalies([]float64{0.1, 0.1}))
	assert.Nil(t, zScoreAnomalies([]float64{0.1, 0.1, 0.1, 0.1, 0.1, 0.1}))

	// A single outlier among n points caps the z-score near sqrt(n), so the
	// series needs enough inliers for the outlier to clear the threshold.
	values := []float64{
		0.10, 0.10, 0.10, 0.10, 0.10, 0.10,
		0.10, 0.10, 0.10, 0.10, 0.10, 0.10,
		15.0,
	}
	idx := zScoreAnomalies(values)
	assert.Equal(t, []int{12}, idx)
}

func TestMADAnomalies(t *testing.T) {
	values := []float64{0.10, 0.11, 0.09, 0.10, 0.11, 0.10, 0.09, 0.10, 5.0}
	idx := madAnomalies(values)
	assert.Equal(t, []int{8}, idx)

	assert.Nil(t, madAnomalies([]float64{0.1, 0.1, 0.1, 0.1, 0.1, 0.1}))
}

func TestScoreIsAnomalous(t *testing.T) {
	history := []float64{0.10, 0.11, 0.09, 0.10, 0.11, 0.10}
	assert.True(t, scoreIsAnomalous(history, 3.0))
	assert.False(t, scoreIsAnomalous(history, 0.105))
	assert.False(t, scoreIsAnomalous([]float64{0.1, 0.2}, 9.0))
}
