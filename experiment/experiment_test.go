package experiment

import (
	"context"
	"errors"
	"path"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mixedtraffic/loopsim/entity"
	"github.com/mixedtraffic/loopsim/env"
	"github.com/mixedtraffic/loopsim/utils/config"
)

// fakeEnv yields a constant reward per step and fails on demand at a given
// (run, step) coordinate.
type fakeEnv struct {
	horizon    int
	resets     int
	steps      int
	terminates int
	run        int

	failRun  int // -1: never
	failStep int
	stepErr  error
}

func newFakeEnv() *fakeEnv {
	return &fakeEnv{failRun: -1, stepErr: errors.New("connection reset by peer")}
}

func (f *fakeEnv) Reset(context.Context) (entity.StepState, error) {
	f.run = f.resets
	f.resets++
	f.steps = 0
	return entity.StepState{}, nil
}

func (f *fakeEnv) Step() (entity.StepState, float64, bool, env.Info, error) {
	if f.run == f.failRun && f.steps == f.failStep {
		return entity.StepState{}, 0, true, env.Info{}, f.stepErr
	}
	f.steps++
	done := f.horizon > 0 && f.steps >= f.horizon
	info := env.Info{Step: f.steps, Vehicles: 22, MeanSpeed: 5, LaneChanges: 1}
	return entity.StepState{}, -2, done, info, nil
}

func (f *fakeEnv) SetHorizon(h int) { f.horizon = h }

func (f *fakeEnv) Terminate() error {
	f.terminates++
	return nil
}

func TestRunCompletesAllRuns(t *testing.T) {
	fe := newFakeEnv()
	x := New("test", fe, config.Control{Runs: 3, Horizon: 50}, config.Output{})

	s, err := x.Run(context.Background(), 0, 0)
	require.NoError(t, err)
	assert.Equal(t, 3, s.Completed)
	assert.Zero(t, s.Aborted)
	assert.Equal(t, 3, fe.resets)
	require.Len(t, s.Runs, 3)
	for _, r := range s.Runs {
		assert.True(t, r.Completed)
		assert.NoError(t, r.Err)
		assert.Equal(t, 50, r.Steps)
		assert.InDelta(t, -2, r.MeanReward, 1e-9)
		assert.InDelta(t, -100, r.TotalReward, 1e-9)
		assert.Equal(t, 50, r.LaneChanges)
		assert.Len(t, r.Rewards, 50)
	}
	assert.InDelta(t, -2, s.MeanReward, 1e-9)
	assert.InDelta(t, 0, s.StdReward, 1e-9)

	// the simulator came down exactly once, for the whole experiment
	assert.Equal(t, 1, fe.terminates)
	require.NoError(t, x.Terminate())
	assert.Equal(t, 1, fe.terminates)
}

func TestRunArgumentsOverrideConfig(t *testing.T) {
	fe := newFakeEnv()
	x := New("test", fe, config.Control{Runs: 5, Horizon: 100}, config.Output{})

	s, err := x.Run(context.Background(), 2, 7)
	require.NoError(t, err)
	assert.Len(t, s.Runs, 2)
	assert.Equal(t, 7, fe.horizon)
	assert.Equal(t, 7, s.Runs[0].Steps)
}

func TestRunFailureAbortsOnlyThatRun(t *testing.T) {
	fe := newFakeEnv()
	fe.failRun = 1
	fe.failStep = 5
	x := New("test", fe, config.Control{Runs: 3, Horizon: 50}, config.Output{})

	s, err := x.Run(context.Background(), 0, 0)
	require.NoError(t, err)
	assert.Equal(t, 2, s.Completed)
	assert.Equal(t, 1, s.Aborted)

	bad := s.Runs[1]
	assert.False(t, bad.Completed)
	require.Error(t, bad.Err)
	assert.Contains(t, bad.Err.Error(), "run 1 aborted at step 5")
	assert.ErrorIs(t, bad.Err, fe.stepErr)
	assert.Equal(t, 5, bad.Steps)

	// later runs still ran, teardown still happened once
	assert.True(t, s.Runs[2].Completed)
	assert.Equal(t, 1, fe.terminates)
}

func TestRunCanceledContext(t *testing.T) {
	fe := newFakeEnv()
	x := New("test", fe, config.Control{Runs: 3, Horizon: 50}, config.Output{})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	s, err := x.Run(ctx, 0, 0)
	require.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, s.Runs)
	assert.Equal(t, 1, fe.terminates)
}

func TestRunMeanAndStdOverCompletedRuns(t *testing.T) {
	// rewards differ per run through differing step counts is not possible with
	// a constant-reward fake, so vary via an aborted middle run instead
	fe := newFakeEnv()
	fe.failRun = 1
	fe.failStep = 0
	x := New("test", fe, config.Control{Runs: 3, Horizon: 10}, config.Output{})

	s, err := x.Run(context.Background(), 0, 0)
	require.NoError(t, err)
	assert.Equal(t, 2, s.Completed)
	assert.InDelta(t, -2, s.MeanReward, 1e-9)
	assert.InDelta(t, 0, s.StdReward, 1e-9)
}

func TestRunWritesRewardPlot(t *testing.T) {
	fe := newFakeEnv()
	dir := t.TempDir()
	x := New("demo", fe, config.Control{Runs: 2, Horizon: 10}, config.Output{PlotPath: dir})

	_, err := x.Run(context.Background(), 0, 0)
	require.NoError(t, err)
	assert.FileExists(t, path.Join(dir, "demo_rewards.png"))
}
