// mpctracker is the per-vehicle MPC trajectory-tracking service: it
// hosts the tracker core behind the HTTP service surface and optionally
// relays peer predicted horizons for distributed collision avoidance.
// It runs no control-rate loop of its own: nothing in this program calls
// Core.Update, so no position commands are produced here.
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel"
	"golang.org/x/sync/errgroup"

	"github.com/PossumXI/Asgard/mpctracker/internal/avoidance"
	"github.com/PossumXI/Asgard/mpctracker/internal/core"
	"github.com/PossumXI/Asgard/mpctracker/internal/diagnostics"
	"github.com/PossumXI/Asgard/mpctracker/internal/mpcsolver"
	"github.com/PossumXI/Asgard/mpctracker/internal/obslog"
	"github.com/PossumXI/Asgard/mpctracker/internal/output/mavlink"
	"github.com/PossumXI/Asgard/mpctracker/internal/plant"
	"github.com/PossumXI/Asgard/mpctracker/internal/refpipeline"
	"github.com/PossumXI/Asgard/mpctracker/internal/trajectory"
	"github.com/PossumXI/Asgard/mpctracker/internal/transport/httpapi"
	"github.com/PossumXI/Asgard/mpctracker/internal/types"
)

var (
	httpPort    = flag.Int("http-port", 8100, "HTTP API port")
	logLevel    = flag.String("log-level", "info", "log level: debug, info, warn, error")
	uavName     = flag.String("uav", "uav-1", "this vehicle's name, used as the avoidance bus identity")
	priority    = flag.Int("priority", 0, "avoidance arbitration priority, lower number wins a contested encounter")
	peerList    = flag.String("peers", "", "comma-separated peer UAV names to subscribe to for avoidance")
	natsURL     = flag.String("nats-url", nats.DefaultURL, "NATS URL for the avoidance bus")
	avoidEnable = flag.Bool("avoidance", true, "enable distributed collision avoidance")

	controlPeriod = flag.Duration("control-period", 20*time.Millisecond, "MPC control tick period")
	sampleSpacing = flag.Duration("sample-spacing", 100*time.Millisecond, "inter-sample spacing within the MPC horizon")
	horizon       = flag.Int("horizon", 20, "MPC horizon length")

	maxHorizontalSpeed  = flag.Float64("max-horizontal-speed", 5, "default horizontal speed cap, m/s")
	maxAscendingSpeed   = flag.Float64("max-ascending-speed", 3, "default ascending speed cap, m/s")
	maxDescendingSpeed  = flag.Float64("max-descending-speed", 2, "default descending speed cap, m/s")
	safetyAreaMinHeight = flag.Float64("safety-area-min-height", 0.5, "minimum altitude floor, m")

	mavlinkEnable = flag.Bool("mavlink", false, "enable the MAVLink output adapter")
	mavlinkPort   = flag.String("mavlink-port", "/dev/ttyUSB0", "MAVLink serial port")
	mavlinkBaud   = flag.Int("mavlink-baud", 921600, "MAVLink serial baud rate")
	simMode       = flag.Bool("sim", false, "simulation mode: no serial port, no real hardware")
)

// service bundles every subsystem one running instance owns, mirroring
// the teacher's single top-level application struct plus explicit
// context/cancel for graceful shutdown.
type service struct {
	core       *core.Core
	streamer   *diagnostics.Streamer
	bus        *avoidance.Bus
	mavlinkOut *mavlink.Adapter
	httpServer *http.Server

	ctx    context.Context
	cancel context.CancelFunc
	group  *errgroup.Group

	mu      sync.Mutex
	running bool
}

func main() {
	flag.Parse()
	obslog.SetLevel(*logLevel)
	log := obslog.For("main")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	svc, err := newService(ctx, cancel)
	if err != nil {
		log.WithError(err).Fatal("failed to initialize mpctracker")
	}

	if err := svc.start(); err != nil {
		log.WithError(err).Fatal("failed to start mpctracker")
	}

	log.WithField("uav", *uavName).Info("mpctracker is running")

	<-sigChan
	log.Info("shutdown signal received")

	if err := svc.shutdown(); err != nil {
		log.WithError(err).Error("error during shutdown")
	}
	log.Info("mpctracker shutdown complete")
}

func newService(ctx context.Context, cancel context.CancelFunc) (*service, error) {
	weights := mpcsolver.QWeights{Position: 10, VelBraking: 5, VelNoBraking: 1, Acceleration: 0.5, Jerk: 0.1}

	cfg := core.Config{
		Plant: plant.Config{ControlPeriod: *controlPeriod, SampleSpacing: *sampleSpacing},
		Solver: mpcsolver.Config{
			Horizon: *horizon, Dt1: controlPeriod.Seconds(), Dt2: sampleSpacing.Seconds(),
			R: 0.01, MaxIterations: 15,
		},
		WeightsX: weights, WeightsY: weights, WeightsZ: weights, WeightsYaw: weights,
		RefPipeline: refpipeline.Config{
			Horizon: *horizon, Dt1: controlPeriod.Seconds(), Dt2: sampleSpacing.Seconds(),
			MaxAscendingSpeed: *maxAscendingSpeed, MaxDescendingSpeed: *maxDescendingSpeed,
			MaxHorizontalSpeed: *maxHorizontalSpeed, SafetyAreaMinHeight: *safetyAreaMinHeight,
		},
		Trajectory: trajectory.Config{ControlPeriod: *controlPeriod, SampleSpacing: *sampleSpacing, Horizon: *horizon},
		Avoidance: avoidance.Config{
			Enabled:              *avoidEnable,
			OwnUAVName:           *uavName,
			OwnPriority:          *priority,
			HorizontalRadius:     5,
			VerticalThreshold:    2,
			HeightCorrection:     1,
			SafetyAreaMinHeight:  *safetyAreaMinHeight,
			TrajectoryTimeout:    2 * time.Second,
			SlowDownFully:        3,
			SlowDownStart:        10,
			StartClimbingSamples: 5,
			HorizontalSpeedCoef:  0.5,
			PublishRate:          100 * time.Millisecond,
			FloorDecayPerTick:    0.02,
			SpeedScaleHoldTime:   2 * time.Second,
		},
	}

	promReg := prometheus.NewRegistry()
	metrics := diagnostics.NewMetrics(promReg, "mpctracker")

	reg := avoidance.NewRegistry()
	c := core.New(cfg, reg, metrics)

	svc := &service{core: c, streamer: diagnostics.NewStreamer(), ctx: ctx, cancel: cancel}

	if *mavlinkEnable {
		svc.mavlinkOut = mavlink.New(mavlink.Config{
			Port: *mavlinkPort, BaudRate: *mavlinkBaud, SimulationMode: *simMode,
		})
	}

	if *avoidEnable {
		nc, err := nats.Connect(*natsURL)
		if err != nil {
			return nil, fmt.Errorf("connect to nats: %w", err)
		}
		svc.bus = avoidance.NewBus(nc, reg, *uavName)
		if err := svc.bus.Subscribe(splitPeers(*peerList)); err != nil {
			return nil, fmt.Errorf("subscribe to peers: %w", err)
		}
	}

	tp, err := diagnostics.NewTracerProvider("mpctracker")
	if err != nil {
		return nil, fmt.Errorf("build tracer provider: %w", err)
	}
	otel.SetTracerProvider(tp)

	mux := http.NewServeMux()
	mux.Handle("/", httpapi.NewRouter(c, svc.streamer))
	svc.httpServer = &http.Server{Addr: fmt.Sprintf(":%d", *httpPort), Handler: mux}

	return svc, nil
}

// start launches every background loop under a shared errgroup so a
// panic or early return in one is caught and logged rather than
// silently vanishing, and so shutdown can wait for a clean exit
// instead of just firing-and-forgetting a bag of goroutines.
func (s *service) start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.group = new(errgroup.Group)

	s.group.Go(func() error { s.core.RunSampleTicker(s.ctx, *sampleSpacing); return nil })
	s.group.Go(func() error { s.core.RunHoverWatchdog(s.ctx); return nil })
	s.group.Go(func() error { s.streamer.Run(s.ctx); return nil })

	if s.mavlinkOut != nil {
		if err := s.mavlinkOut.Open(); err != nil {
			return fmt.Errorf("open mavlink adapter: %w", err)
		}
		s.group.Go(func() error { s.mavlinkOut.RunHeartbeat(s.ctx); return nil })
	}

	if s.bus != nil {
		s.group.Go(func() error { s.runAvoidancePublishLoop(); return nil })
	}

	s.group.Go(func() error {
		log := obslog.For("main")
		log.WithField("addr", s.httpServer.Addr).Info("http api listening")
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	s.running = true
	return nil
}

// runAvoidancePublishLoop publishes this vehicle's predicted horizon and
// liveness diagnostics at the configured rate, and streams a diagnostics
// report to any connected WebSocket clients on the same cadence.
func (s *service) runAvoidancePublishLoop() {
	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()
	log := obslog.For("main")

	for {
		select {
		case <-s.ctx.Done():
			return
		case now := <-ticker.C:
			predicted := s.core.PredictedHorizon()
			status := s.core.Status()

			if err := s.bus.PublishFuture(*priority, *avoidEnable, now, predicted); err != nil {
				log.WithError(err).Warn("failed to publish predicted horizon")
			}
			if err := s.bus.PublishDiagnostics(*avoidEnable, now); err != nil {
				log.WithError(err).Warn("failed to publish avoidance diagnostics")
			}

			s.streamer.BroadcastStatus(status)
			s.streamer.BroadcastReport(types.DiagnosticsReport{
				Stamp:           now,
				AvoidanceActive: *avoidEnable,
				Setpoint:        status.CurrentReference,
				TickDriftRatio:  s.core.DriftRatio(),
			})
		}
	}
}

func (s *service) shutdown() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		obslog.For("main").WithError(err).Warn("http server shutdown error")
	}

	if s.bus != nil {
		s.bus.Close()
	}
	if s.mavlinkOut != nil {
		_ = s.mavlinkOut.Close()
	}

	if s.group != nil {
		if err := s.group.Wait(); err != nil {
			obslog.For("main").WithError(err).Warn("background loop exited with error")
		}
	}

	s.running = false
	return nil
}

func splitPeers(list string) []string {
	if list == "" {
		return nil
	}
	var out []string
	start := 0
	for i := 0; i <= len(list); i++ {
		if i == len(list) || list[i] == ',' {
			if i > start {
				out = append(out, list[start:i])
			}
			start = i + 1
		}
	}
	return out
}
