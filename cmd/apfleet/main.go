// -----------------------------------------------------------------------
// APFleet - Access Point fleet automation CLI
// -----------------------------------------------------------------------

package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/apfleet/internal/browser"
	"github.com/ternarybob/apfleet/internal/common"
	"github.com/ternarybob/apfleet/internal/extract"
	"github.com/ternarybob/apfleet/internal/interfaces"
	"github.com/ternarybob/apfleet/internal/models"
	"github.com/ternarybob/apfleet/internal/orchestrator"
	"github.com/ternarybob/apfleet/internal/probe"
	"github.com/ternarybob/apfleet/internal/scheduler"
	"github.com/ternarybob/apfleet/internal/storage/badger"
	"github.com/ternarybob/apfleet/internal/workflow"
)

// configPaths is a custom flag type that allows multiple -config flags
type configPaths []string

func (c *configPaths) String() string {
	return fmt.Sprintf("%v", *c)
}

func (c *configPaths) Set(value string) error {
	*c = append(*c, value)
	return nil
}

// apList is a custom flag type allowing multiple -ap flags
type apList []string

func (a *apList) String() string {
	return strings.Join(*a, ",")
}

func (a *apList) Set(value string) error {
	*a = append(*a, value)
	return nil
}

var (
	configFiles  configPaths
	apIDs        apList
	headless     = flag.Bool("headless", false, "Run the browser headless (overrides config)")
	watch        = flag.Bool("watch", false, "probe: poll continuously; also starts the scheduled sweep when enabled in config")
	showVersion  = flag.Bool("version", false, "Print version information")
	showVersionV = flag.Bool("v", false, "Print version information (shorthand)")

	config *common.Config
	logger arbor.ILogger
)

func init() {
	flag.Var(&configFiles, "config", "Configuration file path (can be specified multiple times, later files override earlier ones)")
	flag.Var(&configFiles, "c", "Configuration file path (shorthand)")
	flag.Var(&apIDs, "ap", "AP ID to operate on (can be specified multiple times; default is every stored AP)")
}

func usage() {
	fmt.Fprintf(os.Stderr, `Usage: apfleet [flags] <command> [args]

Commands:
  connect               open a browser tab per AP, authenticate and verify
  reconnect             retry the given APs in fresh tabs
  ssh <report|enable|disable>            toggle SSH across the batch
  provisioning <report|enable|disable>   toggle provisioning across the batch
  probe <address>       ping a host once (-watch to poll continuously)
  collect               connect and print the collected status fields
  version               print version information

Flags:
`)
	flag.PrintDefaults()
}

func main() {
	common.InstallCrashHandler("./logs")
	defer common.RecoverWithCrashFile()

	flag.Usage = usage
	flag.Parse()

	if *showVersion || *showVersionV {
		fmt.Printf("APFleet version %s\n", common.GetFullVersion())
		os.Exit(0)
	}

	args := flag.Args()
	if len(args) == 0 {
		usage()
		os.Exit(1)
	}
	command := args[0]

	if command == "version" {
		fmt.Printf("APFleet version %s\n", common.GetFullVersion())
		os.Exit(0)
	}

	// Auto-discover config file if not specified
	if len(configFiles) == 0 {
		if _, err := os.Stat("apfleet.toml"); err == nil {
			configFiles = append(configFiles, "apfleet.toml")
		} else if _, err := os.Stat("deployments/local/apfleet.toml"); err == nil {
			configFiles = append(configFiles, "deployments/local/apfleet.toml")
		}
	}

	var err error
	config, err = common.LoadFromFiles(configFiles...)
	if err != nil {
		arbor.NewLogger().Fatal().Strs("paths", configFiles).Err(err).Msg("Failed to load configuration")
		os.Exit(1)
	}
	if *headless {
		config.Browser.Headless = true
	}

	logger = common.InitLogger(config)
	common.PrintBanner(common.GetVersion())

	os.Exit(run(command, args[1:]))
}

func run(command string, args []string) int {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := badger.NewBadgerDB(logger, &config.Storage.Badger)
	if err != nil {
		logger.Error().Err(err).Msg("Failed to open storage")
		return 1
	}
	defer db.Close()
	storage := badger.NewAPStorage(db, logger)

	switch command {
	case "probe":
		return runProbe(ctx, storage, args)
	case "connect":
		return runConnect(ctx, storage, false)
	case "reconnect":
		return runConnect(ctx, storage, true)
	case "collect":
		return runCollect(ctx, storage)
	case "ssh":
		return runToggle(ctx, storage, models.SettingSSH, args)
	case "provisioning":
		return runToggle(ctx, storage, models.SettingProvisioning, args)
	default:
		logger.Error().Str("command", command).Msg("Unknown command")
		usage()
		return 1
	}
}

// loadTargets resolves the -ap flags against the store; no flags means the
// whole fleet.
func loadTargets(ctx context.Context, storage *badger.APStorage) ([]models.Target, error) {
	if len(apIDs) == 0 {
		records, err := storage.ListRecords(ctx)
		if err != nil {
			return nil, err
		}
		targets := make([]models.Target, 0, len(records))
		for _, r := range records {
			targets = append(targets, r.Target())
		}
		return targets, nil
	}

	targets := make([]models.Target, 0, len(apIDs))
	for _, id := range apIDs {
		record, err := storage.GetRecord(ctx, id)
		if err != nil {
			return nil, err
		}
		if record == nil {
			return nil, fmt.Errorf("unknown ap: %s", id)
		}
		targets = append(targets, record.Target())
	}
	return targets, nil
}

// connectBatch wires the browser stack and runs the orchestration phases.
// The caller owns the returned driver and must Close it.
func connectBatch(ctx context.Context, storage *badger.APStorage, reconnect bool) (*browser.Driver, *orchestrator.Orchestrator, models.BatchResult, error) {
	targets, err := loadTargets(ctx, storage)
	if err != nil {
		return nil, nil, models.BatchResult{}, err
	}

	driver := browser.NewDriver(config.Browser, logger)
	interstitial := browser.NewInterstitial(driver, config.Browser, logger)
	reporter := newConsoleReporter()
	orch := orchestrator.New(driver, interstitial, extract.New(), storage, reporter, config.Browser, logger)

	result := orch.Connect(ctx, targets, func(message string, percent int) {
		logger.Info().Int("percent", percent).Msg(message)
	}, reconnect)
	return driver, orch, result, nil
}

func exitCode(status models.ResultStatus) int {
	switch status {
	case models.StatusSuccess:
		return 0
	case models.StatusWarning:
		return 2
	default:
		return 1
	}
}

func runConnect(ctx context.Context, storage *badger.APStorage, reconnect bool) int {
	driver, _, result, err := connectBatch(ctx, storage, reconnect)
	if err != nil {
		logger.Error().Err(err).Msg("Could not build connection batch")
		return 1
	}
	defer driver.Close()

	fmt.Printf("\n%s\n", result.Message)
	return exitCode(result.Status)
}

func runCollect(ctx context.Context, storage *badger.APStorage) int {
	driver, orch, result, err := connectBatch(ctx, storage, false)
	if err != nil {
		logger.Error().Err(err).Msg("Could not build connection batch")
		return 1
	}
	defer driver.Close()

	for _, ts := range orch.Sessions() {
		if ts.Status != models.TabConnected {
			continue
		}
		fields, err := storage.Get(ctx, ts.Target.APID)
		if err != nil {
			logger.Warn().Err(err).Str("ap_id", ts.Target.APID).Msg("Could not read stored fields")
			continue
		}
		fmt.Printf("\n%s:\n", ts.Target.APID)
		for name, value := range fields {
			if name == "password" {
				continue
			}
			fmt.Printf("  %-28s %s\n", name, value)
		}
	}

	fmt.Printf("\n%s\n", result.Message)
	return exitCode(result.Status)
}

func runToggle(ctx context.Context, storage *badger.APStorage, setting models.Setting, args []string) int {
	if len(args) == 0 {
		logger.Error().Str("setting", string(setting)).Msg("Missing action: report, enable or disable")
		return 1
	}
	var action models.ToggleAction
	switch args[0] {
	case "report":
		action = models.ActionReport
	case "enable":
		action = models.ActionEnable
	case "disable":
		action = models.ActionDisable
	default:
		logger.Error().Str("action", args[0]).Msg("Unknown action, want report, enable or disable")
		return 1
	}

	driver, orch, result, err := connectBatch(ctx, storage, false)
	if err != nil {
		logger.Error().Err(err).Msg("Could not build connection batch")
		return 1
	}
	defer driver.Close()

	if len(result.ConnectedAPIDs) == 0 {
		fmt.Printf("\n%s\n", result.Message)
		return 1
	}

	connected := make([]models.TabSession, 0, len(result.ConnectedAPIDs))
	for _, ts := range orch.Sessions() {
		if ts.Status == models.TabConnected {
			connected = append(connected, ts)
		}
	}

	w := workflow.New(driver, newConsoleReporter(), config.Workflow, logger)
	batch := w.RunBatch(ctx, connected, setting, action)

	for _, r := range batch.Results {
		line := r.Message
		if r.Enabled != nil {
			line = fmt.Sprintf("%s (enabled=%t)", r.Message, *r.Enabled)
		}
		fmt.Printf("  %-12s %-8s %s\n", r.APID, r.Status, line)
	}
	fmt.Printf("\n%s\n", batch.Message)
	return exitCode(batch.Status)
}

func runProbe(ctx context.Context, storage *badger.APStorage, args []string) int {
	if len(args) == 0 {
		logger.Error().Msg("Missing address to probe")
		return 1
	}
	address := args[0]
	// an AP ID resolves to its stored address
	if record, err := storage.GetRecord(ctx, address); err == nil && record != nil && record.IPAddress != "" {
		address = record.Target().Host()
	}
	prober := probe.NewProber(config.Probe.Timeout, logger)

	if !*watch {
		result := prober.Probe(ctx, address)
		if !result.Reachable {
			fmt.Printf("%s is unreachable\n", address)
			return 1
		}
		fmt.Printf("%s is reachable (rtt %s)\n", address, result.RTT)
		return 0
	}

	if sweeper := startScheduler(storage); sweeper != nil {
		defer sweeper.Stop()
	}

	poller := probe.NewPoller(prober, config.Probe.Interval, logger)
	defer poller.Stop()

	fmt.Printf("Polling %s every %s, Ctrl-C to stop\n", address, config.Probe.Interval)
	for result := range poller.Run(ctx, address) {
		state := "unreachable"
		if result.Reachable {
			state = fmt.Sprintf("reachable rtt=%s", result.RTT)
		}
		fmt.Printf("  #%-4d %s %s\n", result.Seq, result.Address, state)
	}
	return 0
}

// startScheduler runs the cron probe sweep for long-lived watch sessions.
func startScheduler(storage *badger.APStorage) *scheduler.Scheduler {
	if !config.Scheduler.Enabled {
		return nil
	}
	prober := probe.NewProber(config.Probe.Timeout, logger)
	s := scheduler.NewScheduler(storage, prober, logger)
	if err := s.Start(config.Scheduler.Schedule); err != nil {
		logger.Warn().Err(err).Msg("Could not start probe sweep scheduler")
		return nil
	}
	return s
}

// consoleReporter prints per-target state lines as orchestration progresses.
type consoleReporter struct{}

func newConsoleReporter() interfaces.StatusReporter {
	return consoleReporter{}
}

func (consoleReporter) UpdateStatus(targetID, state, message string) {
	fmt.Printf("  %-12s %-10s %s\n", targetID, state, message)
}

func (consoleReporter) UpdateSummary(message string) {
	fmt.Printf("  %s\n", message)
}

func (consoleReporter) EnableClose() {}
