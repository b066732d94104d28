//go:build linux

package main

import (
	"bytes"
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"sort"
	"strings"
	"sync"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sys/unix"
	"golang.org/x/term"

	"github.com/srodi/wattrace/pkg/battery"
	"github.com/srodi/wattrace/pkg/collector"
	"github.com/srodi/wattrace/pkg/collector/cpu"
	"github.com/srodi/wattrace/pkg/collector/display"
	"github.com/srodi/wattrace/pkg/collector/wifi"
	"github.com/srodi/wattrace/pkg/device"
	"github.com/srodi/wattrace/pkg/estimator"
	"github.com/srodi/wattrace/pkg/export"
	"github.com/srodi/wattrace/pkg/history"
	"github.com/srodi/wattrace/pkg/types"
	"github.com/srodi/wattrace/pkg/ui"
	"github.com/srodi/wattrace/pkg/uploader"
)

const plugPollInterval = 5 * time.Second

type runConfig struct {
	interval    time.Duration
	historySize int
	logPath     string
	compress    bool
	logMemInfo  bool
	profilePath string
	metricsAddr string
	spoolDir    string
	topK        int
}

// envOr reads an environment default for path-like flags.
func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func parseConfig() runConfig {
	interval := flag.Duration("interval", estimator.DefaultInterval, "estimation interval (e.g. 1s, 500ms)")
	historySize := flag.Int("history", estimator.DefaultHistorySize, "per-UID iterations retained for queries")
	logPath := flag.String("log", envOr("WATTRACE_LOG", "wattrace.log"), "power trace file; empty disables persistence")
	compress := flag.Bool("compress", true, "deflate the power trace with the shared dictionary")
	logMemInfo := flag.Bool("meminfo", false, "record memory statistics in the trace")
	profilePath := flag.String("profile", envOr("WATTRACE_PROFILE", ""), "device power profile (YAML); empty uses the generic profile")
	metricsAddr := flag.String("metrics-addr", envOr("WATTRACE_METRICS_ADDR", ""), "listen address for Prometheus metrics (e.g. :9090); empty disables")
	spoolDir := flag.String("spool", envOr("WATTRACE_SPOOL", ""), "directory rotated traces are moved into; empty drops them")
	topK := flag.Int("topk", 10, "number of UIDs to display")
	flag.Parse()

	cfg := runConfig{
		interval:    *interval,
		historySize: *historySize,
		logPath:     *logPath,
		compress:    *compress,
		logMemInfo:  *logMemInfo,
		profilePath: *profilePath,
		metricsAddr: *metricsAddr,
		spoolDir:    strings.TrimSpace(*spoolDir),
		topK:        *topK,
	}
	if cfg.interval <= 0 {
		cfg.interval = estimator.DefaultInterval
	}
	if cfg.topK <= 0 {
		cfg.topK = 1
	}
	return cfg
}

func main() {
	cfg := parseConfig()
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	profile, err := loadProfile(cfg.profilePath)
	if err != nil {
		log.Fatalf("loading power profile: %v", err)
	}

	components, powerFuncs := buildComponents(cfg.interval, profile)
	batt := battery.New()
	meter := &severityMeter{}

	opts := estimator.Options{
		Profile:     profile,
		Components:  components,
		PowerFuncs:  powerFuncs,
		Interval:    cfg.interval,
		HistorySize: cfg.historySize,
		LogPath:     cfg.logPath,
		Compress:    cfg.compress,
		LogMemInfo:  cfg.logMemInfo,
		Battery:     batt,
		Indicator:   meter,
	}
	if cfg.spoolDir != "" {
		opts.Upload = uploader.SpoolTo(cfg.spoolDir)
	}
	est, err := estimator.New(opts)
	if err != nil {
		log.Fatalf("initializing estimator: %v", err)
	}

	shutdownMetrics := startMetrics(cfg.metricsAddr, est)
	defer shutdownMetrics()

	cleanupTerminal := enableSingleView()
	defer cleanupTerminal()

	go watchPlug(ctx, batt, est)
	go renderLoop(ctx, est, meter, cfg)

	if err := est.Run(ctx); err != nil {
		log.Fatalf("estimator: %v", err)
	}
}

func loadProfile(path string) (*device.Profile, error) {
	if path != "" {
		return device.Load(path)
	}
	profile := device.Default()
	profile.Model = deviceModel()
	return profile, nil
}

// deviceModel labels profile-less runs with the kernel identity so traces
// from different machines stay distinguishable.
func deviceModel() string {
	var u unix.Utsname
	if err := unix.Uname(&u); err != nil {
		return "linux"
	}
	return unix.ByteSliceToString(u.Sysname[:]) + " " + unix.ByteSliceToString(u.Machine[:])
}

// buildComponents assembles every sampler this machine supports. CPU is
// mandatory; a missing panel or radio just narrows the estimate.
func buildComponents(interval time.Duration, profile *device.Profile) ([]estimator.Component, []types.PowerFunc) {
	var components []estimator.Component
	var powerFuncs []types.PowerFunc

	cpuSampler, err := cpu.New(interval)
	if err != nil {
		log.Fatalf("initializing CPU sampler: %v", err)
	}
	components = append(components, collector.New(cpuSampler))
	powerFuncs = append(powerFuncs, cpu.PowerFunc(profile.CPU))

	if lcdSampler, err := display.New(); err != nil {
		log.Printf("display sampler unavailable, skipping: %v", err)
	} else {
		components = append(components, collector.New(lcdSampler))
		powerFuncs = append(powerFuncs, display.PowerFunc(profile.LCD))
	}

	if wifiSampler, err := wifi.New(interval); err != nil {
		log.Printf("wifi sampler unavailable, skipping: %v", err)
	} else {
		components = append(components, collector.New(wifiSampler))
		powerFuncs = append(powerFuncs, wifi.PowerFunc(profile.Wifi))
	}
	return components, powerFuncs
}

func startMetrics(addr string, est *estimator.Estimator) func() {
	if addr == "" {
		return func() {}
	}
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		export.NewCollector(est),
		collectors.NewGoCollector(),
	)
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	srv := &http.Server{Addr: addr, Handler: mux}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Printf("metrics server: %v", err)
		}
	}()
	return func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}
}

// watchPlug polls the charger state and forwards transitions, which reset the
// since-charge accounting and nudge the uploader.
func watchPlug(ctx context.Context, batt *battery.Stats, est *estimator.Estimator) {
	last, ok := batt.Plugged()
	if !ok {
		return
	}
	ticker := time.NewTicker(plugPollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			cur, ok := batt.Plugged()
			if ok && cur != last {
				last = cur
				est.Plug(cur)
			}
		}
	}
}

// severityMeter keeps the newest smoothed severity for the live view.
type severityMeter struct {
	mu    sync.Mutex
	level int
	avgMW float64
}

func (m *severityMeter) Update(level int, avgPowerMW float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.level = level
	m.avgMW = avgPowerMW
}

func (m *severityMeter) Done() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.level = 0
	m.avgMW = 0
}

func (m *severityMeter) load() (int, float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.level, m.avgMW
}

func renderLoop(ctx context.Context, est *estimator.Estimator, meter *severityMeter, cfg runConfig) {
	ticker := time.NewTicker(cfg.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			render(est, meter, cfg)
		}
	}
}

func render(est *estimator.Estimator, meter *severityMeter, cfg runConfig) {
	var buf bytes.Buffer
	buf.WriteString(ui.Banner())
	buf.WriteString("\n")
	fmt.Fprintf(&buf, "wattrace (press Ctrl+C to exit)\n")
	fmt.Fprintf(&buf, "Updated: %s | Interval: %v | Iteration: %d\n\n",
		time.Now().Format(time.RFC3339), cfg.interval, est.LastIteration())

	level, avgMW := meter.load()
	fmt.Fprintf(&buf, "[Draw %s] %.0f mW smoothed\n\n", severityBar(level), avgMW)

	fmt.Fprintf(&buf, "[Components]\n")
	names := est.Components()
	means := est.Means(types.UIDAll, history.WindowTotal)
	totals := est.Totals(types.UIDAll, history.WindowTotal)
	tw := tabwriter.NewWriter(&buf, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "COMPONENT\tNOW(mW)\tAVG(mW)\tENERGY(J)")
	for i, name := range names {
		now := 0
		if vals := est.ComponentHistory(1, i, types.UIDAll, -1); len(vals) == 1 {
			now = vals[0]
		}
		fmt.Fprintf(tw, "%s\t%d\t%.1f\t%.1f\n", name, now, means[i], float64(totals[i])/1000)
	}
	tw.Flush()

	fmt.Fprintf(&buf, "\n[Top %d UIDs]\n", cfg.topK)
	infos := est.UIDInfos(history.WindowTotal, est.NoUIDMask())
	sort.Slice(infos, func(i, j int) bool {
		if infos[i].CurrentPower != infos[j].CurrentPower {
			return infos[i].CurrentPower > infos[j].CurrentPower
		}
		return infos[i].TotalEnergy > infos[j].TotalEnergy
	})
	if len(infos) > cfg.topK {
		infos = infos[:cfg.topK]
	}
	if len(infos) == 0 {
		fmt.Fprintln(&buf, "No per-UID samples yet")
	} else {
		tw = tabwriter.NewWriter(&buf, 0, 0, 2, ' ', 0)
		fmt.Fprintln(tw, "UID\tNAME\tNOW(mW)\tENERGY(J)\tRUNTIME(s)")
		for _, info := range infos {
			fmt.Fprintf(tw, "%d\t%s\t%d\t%.1f\t%d\n",
				info.UID, info.Name, info.CurrentPower, float64(info.TotalEnergy)/1000, info.Runtime)
		}
		tw.Flush()
	}

	clearScreen()
	fmt.Print(buf.String())
}

// severityBar draws the 0..8 severity level as a fixed-width gauge.
func severityBar(level int) string {
	if level < 0 {
		level = 0
	}
	if level > 8 {
		level = 8
	}
	return strings.Repeat("█", level) + strings.Repeat("░", 8-level)
}

func clearScreen() {
	fmt.Print("\033[H\033[2J")
}

func enableSingleView() func() {
	stdoutFD := int(os.Stdout.Fd())
	stdinFD := int(os.Stdin.Fd())
	if !term.IsTerminal(stdoutFD) {
		return func() {}
	}

	fmt.Print("\033[?1049h") // switch to alternate buffer
	fmt.Print("\033[?25l")   // hide cursor

	var restore []func()
	if term.IsTerminal(stdinFD) {
		if undoEcho, err := disableInputEcho(stdinFD); err != nil {
			log.Printf("unable to suppress stdin echo: %v", err)
		} else if undoEcho != nil {
			restore = append(restore, undoEcho)
		}
	}

	return func() {
		for i := len(restore) - 1; i >= 0; i-- {
			restore[i]()
		}
		fmt.Print("\033[?25h")   // show cursor
		fmt.Print("\033[?1049l") // restore main buffer
	}
}

// disableInputEcho turns off stdin echo so the alternate-screen view stays clean.
func disableInputEcho(fd int) (func(), error) {
	termState, err := unix.IoctlGetTermios(fd, unix.TCGETS)
	if err != nil {
		return nil, err
	}

	updated := *termState
	updated.Lflag &^= unix.ECHO

	if err := unix.IoctlSetTermios(fd, unix.TCSETS, &updated); err != nil {
		return nil, err
	}

	return func() {
		_ = unix.IoctlSetTermios(fd, unix.TCSETS, termState)
	}, nil
}
