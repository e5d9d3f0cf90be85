package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	easy "git.fiblab.net/utils/logrus-easy-formatter"
	"github.com/sirupsen/logrus"

	"github.com/mixedtraffic/loopsim/bridge"
	"github.com/mixedtraffic/loopsim/env"
	"github.com/mixedtraffic/loopsim/experiment"
	"github.com/mixedtraffic/loopsim/scenario"
	"github.com/mixedtraffic/loopsim/utils/config"
)

var (
	configPath = flag.String("config", "", "experiment config file path")
	runs       = flag.Int("runs", 0, "override control.runs from the config")
	horizon    = flag.Int("horizon", 0, "override control.horizon from the config")
	seed       = flag.Uint64("seed", 0, "controller rand engine seed")

	logLevels = map[string]logrus.Level{
		"trace":    logrus.TraceLevel,
		"debug":    logrus.DebugLevel,
		"info":     logrus.InfoLevel,
		"warn":     logrus.WarnLevel,
		"error":    logrus.ErrorLevel,
		"critical": logrus.FatalLevel,
		"off":      logrus.PanicLevel,
	}
	logLevel = flag.String("log.level", "info", "log level (one of: trace debug info warn error critical off)")

	log = logrus.WithField("module", "main")
)

func main() {
	flag.Parse()
	logrus.SetFormatter(&easy.Formatter{
		TimestampFormat: "2006-01-02 15:04:05.0000",
		LogFormat:       "[%module%] [%time%] [%lvl%] %msg%\n",
	})
	if level, ok := logLevels[*logLevel]; ok {
		logrus.SetLevel(level)
	} else {
		log.Panicf("log.level must be one of %v", logLevels)
	}
	if *configPath == "" {
		log.Panic("config file must be specified")
	}
	file, err := os.ReadFile(*configPath)
	if err != nil {
		log.Panicf("config file load err: %v", err)
	}
	c, err := config.Parse(file)
	if err != nil {
		log.Panicf("config err: %v", err)
	}
	log.Infof("%+v", c)

	sc, err := scenario.Build(c.Name, c.Net, c.Initial, c.Types)
	if err != nil {
		log.Panicf("scenario err: %v", err)
	}
	b := bridge.New(sc, c.Simulator)
	e := env.New(
		sc, b,
		c.Simulator.TimeStep, c.Simulator.StartTime,
		c.Control.Horizon,
		env.TargetVelocity{Target: c.Env.TargetVelocity},
		*seed,
	)
	exp := experiment.New(c.Name, e, c.Control, c.Output)

	// runs are aborted between steps on SIGINT/SIGTERM; the deferred
	// teardown inside Run still kills the simulator process
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	summary, err := exp.Run(ctx, *runs, *horizon)
	if err != nil {
		log.Errorf("experiment aborted: %v", err)
	}
	log.Infof("experiment %s: %d completed, %d aborted, mean reward %.4f (σ %.4f)",
		summary.Name, summary.Completed, summary.Aborted, summary.MeanReward, summary.StdReward)
	if summary.Aborted > 0 {
		os.Exit(1)
	}
}
