package main

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"

	"github.com/golang/glog"
	"google.golang.org/protobuf/encoding/protojson"

	"github.com/user/blue-llcp/hostif"
	"github.com/user/blue-llcp/llcp"
	"github.com/user/blue-llcp/logger"
	"github.com/user/blue-llcp/sim"
)

func main() {
	configPath := flag.String("config", "", "Engine configuration YAML (defaults when empty)")
	scenarioPath := flag.String("scenario", "", "Scenario YAML file, or a directory of them")
	events := flag.Int("events", -1, "Override the number of connection events (0 runs until idle)")
	slip := flag.Float64("slip", -1, "Override the PDU slip rate")
	showPDUs := flag.Bool("pdus", false, "Print every control PDU")
	frames := flag.Bool("frames", false, "Print notifications as host frames (JSON)")
	level := flag.String("log-level", "WARN", "Engine log level: TRACE, DEBUG, INFO, WARN, ERROR")
	flag.Parse()
	defer glog.Flush()

	if *scenarioPath == "" {
		fmt.Println("Usage: llcp-sim -scenario <file.yaml|dir> [-config engine.yaml] [-events N]")
		fmt.Println("\nExample:")
		fmt.Println("  go run ./cmd/llcp-sim -scenario sim/testdata/phy_collision.yaml -pdus")
		os.Exit(1)
	}

	logger.SetLevel(logger.ParseLevel(*level))
	logger.SetSink(glogSink)

	engCfg := llcp.DefaultConfig()
	if *configPath != "" {
		var err error
		if engCfg, err = llcp.LoadConfig(*configPath); err != nil {
			glog.Exitf("Failed to load config: %v", err)
		}
	}

	logger.InfoJSON("llcp-sim", "engine config", engCfg)

	paths, err := scenarioFiles(*scenarioPath)
	if err != nil {
		glog.Exitf("Failed to find scenarios: %v", err)
	}

	failed := 0
	for _, path := range paths {
		r, err := run(path, engCfg, *events, *slip)
		if err != nil {
			glog.Errorf("%s: %v", path, err)
			failed++
			continue
		}
		r.Print(os.Stdout, *showPDUs)
		if *frames {
			printFrames(r)
		}
		if !r.Passed() {
			failed++
		}
		fmt.Println()
	}

	fmt.Printf("%d/%d scenarios passed\n", len(paths)-failed, len(paths))
	if failed > 0 {
		glog.Flush()
		os.Exit(1)
	}
}

func scenarioFiles(path string) ([]string, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, err
	}
	if !info.IsDir() {
		return []string{path}, nil
	}
	paths, err := filepath.Glob(filepath.Join(path, "*.yaml"))
	if err != nil {
		return nil, err
	}
	if len(paths) == 0 {
		return nil, fmt.Errorf("no *.yaml files in %s", path)
	}
	return paths, nil
}

func run(path string, engCfg llcp.Config, events int, slip float64) (*sim.Report, error) {
	s, err := sim.LoadScenario(path)
	if err != nil {
		return nil, err
	}
	if events >= 0 {
		s.Events = events
	}

	cfg := sim.DefaultConfig()
	if s.Link != nil {
		cfg = *s.Link
	}
	if slip >= 0 {
		cfg.SlipRate = slip
	}

	glog.Infof("running %s: %s", s.Name, s.Description)
	p, err := sim.NewPair(engCfg, cfg)
	if err != nil {
		return nil, err
	}
	for _, side := range []*sim.Side{p.Central, p.Peripheral} {
		if side.Tracer != nil {
			glog.Infof("%s trace in %s", side.Name, side.Tracer.Dir())
		}
	}
	return p.Play(s)
}

func printFrames(r *sim.Report) {
	fmt.Println("--- host frames ---")
	for _, n := range r.Notifications {
		s, err := hostif.Encode(n.Event.Handle, n.Event.Ntf)
		if err != nil {
			glog.Errorf("encode %s: %v", n.Event.Ntf.Kind(), err)
			continue
		}
		fmt.Printf("%s %s\n", n.Side, protojson.Format(s))
	}
}

// glogSink routes engine log lines into glog.
func glogSink(level logger.LogLevel, line string) {
	switch level {
	case logger.ERROR:
		glog.ErrorDepth(3, line)
	case logger.WARN:
		glog.WarningDepth(3, line)
	case logger.INFO:
		glog.InfoDepth(3, line)
	default:
		if glog.V(2) {
			glog.InfoDepth(3, line)
		}
	}
}
