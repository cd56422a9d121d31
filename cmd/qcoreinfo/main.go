// Command qcoreinfo opens the library, prints its load-balancing mode,
// retry memory percent and non-zero perf counters, then closes it - exercising the
// full ApiSurface open/close path end to end (spec.md §4.9).
package main

import (
	"encoding/binary"
	"flag"
	"fmt"
	"os"

	"github.com/elkjaer/qcore"
	"github.com/elkjaer/qcore/internal/dispatch"
	"github.com/elkjaer/qcore/internal/qlog"
)

func main() {
	var (
		verbose    = flag.Bool("v", false, "Verbose output")
		configPath = flag.String("config", "", "Path to a settings config file")
	)
	flag.Parse()

	logConfig := qlog.DefaultConfig()
	if *verbose {
		logConfig.Level = qlog.LevelDebug
	}
	qlog.SetDefault(qlog.NewLogger(logConfig))

	var opts []qcore.Option
	if *configPath != "" {
		opts = append(opts, qcore.WithConfigPath(*configPath))
	}

	table, err := qcore.Open(opts...)
	if err != nil {
		fmt.Fprintf(os.Stderr, "qcoreinfo: failed to open library: %v\n", err)
		os.Exit(1)
	}
	defer table.Close()

	reg, err := table.OpenRegistration("qcoreinfo")
	if err != nil {
		fmt.Fprintf(os.Stderr, "qcoreinfo: failed to open registration: %v\n", err)
		os.Exit(1)
	}
	defer reg.Close()

	mode := make([]byte, 2)
	if _, err := table.GetGlobalParam(dispatch.ParamLoadBalancingMode, mode); err != nil {
		fmt.Fprintf(os.Stderr, "qcoreinfo: failed to read load balancing mode: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Load balancing mode: %d\n", binary.BigEndian.Uint16(mode))

	pct := make([]byte, 2)
	if _, err := table.GetGlobalParam(dispatch.ParamRetryMemoryPercent, pct); err != nil {
		fmt.Fprintf(os.Stderr, "qcoreinfo: failed to read retry memory percent: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Retry memory percent (of UINT16_MAX): %d\n", binary.BigEndian.Uint16(pct))

	counters := make([]byte, qcore.PerfCounterMax*8)
	if _, err := table.GetGlobalParam(dispatch.ParamPerfCounters, counters); err != nil {
		fmt.Fprintf(os.Stderr, "qcoreinfo: failed to read perf counters: %v\n", err)
		os.Exit(1)
	}
	fmt.Println("Perf counters:")
	for i := 0; i < qcore.PerfCounterMax; i++ {
		v := binary.BigEndian.Uint64(counters[i*8:])
		if v != 0 {
			fmt.Printf("  [%d] = %d\n", i, v)
		}
	}
}
