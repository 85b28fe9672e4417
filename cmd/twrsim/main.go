// Command twrsim runs several simulated nodes against an in-process
// synthetic radio medium, driving their MAC state machines from a single
// virtual clock instead of real hardware. It exists to exercise the
// ranging and MAC packages end to end without a UWB radio attached, and
// to give a reviewer something runnable that prints range and topology
// events on the same reporting-channel format the embedded build would
// emit over a serial port.
package main

import (
	"flag"
	"log"
	"math/rand"
	"net/http"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/dstwr/twrcore/config"
	"github.com/dstwr/twrcore/driver/simradio"
	"github.com/dstwr/twrcore/mac"
	"github.com/dstwr/twrcore/metrics"
	"github.com/dstwr/twrcore/ranging"
	"github.com/dstwr/twrcore/report"
)

func main() {
	numDevices := flag.Int("num-devices", 6, "number of simulated nodes (4 anchors, 2 tags by default role split)")
	seed := flag.Int64("seed", 1, "random seed for node placement")
	duration := flag.Duration("duration", 5*time.Second, "how much simulated time to run")
	metricsAddr := flag.String("metrics-addr", "", "if set, serve Prometheus metrics on this address (e.g. :2112)")
	flag.Parse()

	if *numDevices < 2 {
		log.Fatalf("twrsim: num-devices must be at least 2, got %d", *numDevices)
	}

	logger := log.New(os.Stderr, "", log.LstdFlags|log.Lmicroseconds)
	reporter := report.New(os.Stdout)
	medium := simradio.NewMedium()
	registry := prometheus.NewRegistry()

	rng := rand.New(rand.NewSource(*seed))
	nodes := make([]*mac.Node, 0, *numDevices)

	for i := 0; i < *numDevices; i++ {
		ourID := uint8(i + 1)
		cfg := config.Defaults()
		cfg.OurID = ourID
		cfg.NumDevices = *numDevices
		if err := cfg.Validate(); err != nil {
			log.Fatalf("twrsim: node %d: %v", ourID, err)
		}

		pos := simradio.Position{X: rng.Float64() * 100, Y: rng.Float64() * 100}
		driver := medium.Join(ourID, pos)
		collector := metrics.New(registry, ourID)

		node := mac.NewNode(mac.Params{
			OurID:                 ourID,
			NumDevices:            *numDevices,
			EvictionThreshold:     cfg.EvictionThreshold,
			DelayTime:             cfg.DelayTime(),
			DelayUntilAssumedLost: cfg.DelayUntilAssumedLost(),
			SlotMarginPerDevice:   cfg.SlotMarginPerDevice(),
			Driver:                driver,
			Reporter:              reporter,
			Metrics:               collector,
			Logger:                logger,
		})

		nodes = append(nodes, node)
		logger.Printf("[twrsim] node %d placed at (%.1f, %.1f) as %s", ourID, pos.X, pos.Y, cfg.Role())
	}

	if *metricsAddr != "" {
		go serveMetrics(*metricsAddr, registry, logger)
	}

	run(nodes, medium, *duration, logger)
}

// tickStep is how many radio ticks the medium's virtual clock advances
// per simulation step.
const tickStep = 2_000_000

// run advances the simulation clock in fixed steps, giving every node a
// chance to Tick between each advance so deliveries from one step are
// visible to receivers on the next. The node's own wall-clock notion of
// time (used for the start-up delay and slot-timeout thresholds) is
// advanced in lockstep with the radio tick clock, so a run with a short
// --duration still lets those real-time-scaled thresholds fire correctly
// instead of requiring the process to sleep for the equivalent wall time.
func run(nodes []*mac.Node, medium *simradio.Medium, wall time.Duration, logger *log.Logger) {
	tickStepF := float64(tickStep)
	stepDuration := time.Duration(tickStepF * ranging.TickPeriod * float64(time.Second))
	if stepDuration <= 0 {
		stepDuration = time.Microsecond
	}

	start := time.Now()
	for _, n := range nodes {
		if err := n.Start(start); err != nil {
			logger.Fatalf("[twrsim] node start failed: %v", err)
		}
	}

	steps := int(wall / stepDuration)
	now := start
	for i := 0; i < steps; i++ {
		medium.Advance(tickStep)
		now = now.Add(stepDuration)
		for _, n := range nodes {
			n.Tick(now)
		}
	}

	logger.Printf("[twrsim] finished %d simulated steps covering %s", steps, wall)
}

func serveMetrics(addr string, reg prometheus.Gatherer, logger *log.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	logger.Printf("[twrsim] serving metrics on %s/metrics", addr)
	if err := http.ListenAndServe(addr, mux); err != nil {
		logger.Printf("[twrsim] metrics server stopped: %v", err)
	}
}
