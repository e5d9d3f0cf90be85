// Package experiment orchestrates complete runs (episodes) of a step
// environment over a fixed horizon, owns the simulator teardown, and
// aggregates per-run metrics into a summary.
package experiment

import (
	"context"
	"fmt"
	"sync"

	"github.com/sirupsen/logrus"
	"gonum.org/v1/gonum/stat"

	"github.com/mixedtraffic/loopsim/entity"
	"github.com/mixedtraffic/loopsim/env"
	"github.com/mixedtraffic/loopsim/utils/config"
)

var log = logrus.WithField("module", "experiment")

// Environment is the step interface the experiment drives. Implemented by
// *env.Env.
type Environment interface {
	Reset(ctx context.Context) (entity.StepState, error)
	Step() (entity.StepState, float64, bool, env.Info, error)
	SetHorizon(h int)
	Terminate() error
}

// RunResult is one episode's outcome. Err carries the run index and the step
// number at which the run was aborted; Completed runs have a nil Err.
type RunResult struct {
	Run         int
	Steps       int
	TotalReward float64
	MeanReward  float64
	MeanSpeed   float64 // mean over steps of the fleet mean speed (m/s)
	LaneChanges int
	Completed   bool
	Err         error

	// Rewards is the per-step reward curve, kept for plotting.
	Rewards []float64
}

// Summary aggregates an experiment: every run's result plus fleet-level
// statistics over the completed runs.
type Summary struct {
	Name      string
	Runs      []RunResult
	Completed int
	Aborted   int

	// Over completed runs' mean rewards.
	MeanReward float64
	StdReward  float64
}

// Experiment owns the environment lifecycle for a whole experiment: however
// many runs complete or abort, the simulator is torn down exactly once.
type Experiment struct {
	name     string
	env      Environment
	control  config.Control
	output   config.Output
	termOnce sync.Once
	termErr  error
}

// New creates an experiment over an environment.
func New(name string, e Environment, control config.Control, output config.Output) *Experiment {
	return &Experiment{name: name, env: e, control: control, output: output}
}

// Run executes runs episodes of up to horizon steps each. Zero values fall
// back to the configured control parameters. A run failure aborts that run
// and is recorded in its result; later runs still execute and the simulator
// is still torn down exactly once. Cancellation is cooperative: the context
// is checked before every step, never mid-step.
func (x *Experiment) Run(ctx context.Context, runs, horizon int) (*Summary, error) {
	if runs <= 0 {
		runs = x.control.Runs
	}
	if horizon <= 0 {
		horizon = x.control.Horizon
	}
	x.env.SetHorizon(horizon)
	defer x.Terminate()

	s := &Summary{Name: x.name}
	for run := 0; run < runs; run++ {
		select {
		case <-ctx.Done():
			return s, ctx.Err()
		default:
		}
		res := x.runOnce(ctx, run, horizon)
		if res.Completed {
			s.Completed++
			log.Infof("run %d/%d: %d steps, mean reward %.4f, mean speed %.2f m/s, %d lane changes",
				run+1, runs, res.Steps, res.MeanReward, res.MeanSpeed, res.LaneChanges)
		} else {
			s.Aborted++
			log.Errorf("run %d/%d: %v", run+1, runs, res.Err)
		}
		s.Runs = append(s.Runs, res)
	}

	meanRewards := make([]float64, 0, len(s.Runs))
	for _, r := range s.Runs {
		if r.Completed {
			meanRewards = append(meanRewards, r.MeanReward)
		}
	}
	if len(meanRewards) > 0 {
		s.MeanReward = stat.Mean(meanRewards, nil)
		if len(meanRewards) > 1 {
			s.StdReward = stat.StdDev(meanRewards, nil)
		}
	}

	if x.output.PlotPath != "" {
		if err := writeRewardPlot(x.output.PlotPath, x.name, s.Runs); err != nil {
			log.Warnf("reward plot: %v", err)
		}
	}
	return s, nil
}

func (x *Experiment) runOnce(ctx context.Context, run, horizon int) RunResult {
	res := RunResult{Run: run}
	if _, err := x.env.Reset(ctx); err != nil {
		res.Err = fmt.Errorf("run %d aborted at reset: %w", run, err)
		return res
	}
	meanSpeeds := make([]float64, 0, horizon)
	for step := 0; step < horizon; step++ {
		select {
		case <-ctx.Done():
			res.Err = fmt.Errorf("run %d canceled at step %d: %w", run, step, ctx.Err())
			return res
		default:
		}
		_, reward, done, info, err := x.env.Step()
		if err != nil {
			res.Err = fmt.Errorf("run %d aborted at step %d: %w", run, step, err)
			return res
		}
		res.Steps++
		res.TotalReward += reward
		res.Rewards = append(res.Rewards, reward)
		res.LaneChanges += info.LaneChanges
		meanSpeeds = append(meanSpeeds, info.MeanSpeed)
		if done {
			break
		}
	}
	if res.Steps > 0 {
		res.MeanReward = res.TotalReward / float64(res.Steps)
		res.MeanSpeed = stat.Mean(meanSpeeds, nil)
	}
	res.Completed = true
	return res
}

// Terminate tears the environment (and with it the simulator) down. Safe to
// call any number of times, from any exit path; only the first call acts.
func (x *Experiment) Terminate() error {
	x.termOnce.Do(func() {
		x.termErr = x.env.Terminate()
	})
	return x.termErr
}
