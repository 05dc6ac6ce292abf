// Package main is the CLI entry point for kioskctl.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/eliteGoblin/focusd/kioskctl/internal/api"
	"github.com/eliteGoblin/focusd/kioskctl/internal/daemon"
	"github.com/eliteGoblin/focusd/kioskctl/internal/domain"
	"github.com/eliteGoblin/focusd/kioskctl/internal/infra"
)

var (
	// Version info (set via ldflags)
	Version   = "0.1.0"
	Commit    = "dev"
	BuildTime = "unknown"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "kioskctl",
	Short: "Kiosk policy controller for a managed Android device",
	Long: `kioskctl drives a device-owner kiosk application over adb.
It applies the lock-down policy, keeps the device in lock-task mode,
gates package installs and reacts to enrollment.

Run 'kioskctl serve' to supervise the device continuously.`,
	Version:       Version,
	SilenceUsage:  true,
	SilenceErrors: false,
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show device privileges, lock state and daemon health",
	RunE:  runStatus,
}

var directivesCmd = &cobra.Command{
	Use:   "directives",
	Short: "List lock-down directives in application order",
	RunE:  runDirectives,
}

var ownerCmd = &cobra.Command{
	Use:   "owner",
	Short: "Report whether the kiosk app holds device-owner authority",
	RunE:  runOwner,
}

var lockCmd = &cobra.Command{
	Use:   "lock",
	Short: "Enter lock-task mode",
	RunE:  runLock,
}

var unlockCmd = &cobra.Command{
	Use:   "unlock",
	Short: "Leave lock-task mode",
	RunE:  runUnlock,
}

var stateCmd = &cobra.Command{
	Use:   "state",
	Short: "Print the current lock state",
	RunE:  runState,
}

var installCmd = &cobra.Command{
	Use:   "install <path>",
	Short: "Install a package through the install gatekeeper",
	Args:  cobra.ExactArgs(1),
	RunE:  runInstall,
}

var lockdownCmd = &cobra.Command{
	Use:   "lockdown",
	Short: "Apply (or revoke) the lock-down directives once",
	RunE:  runLockdown,
}

var enrollCmd = &cobra.Command{
	Use:   "enroll",
	Short: "Run the enrollment bootstrap against the device",
	Long: `Runs the same bootstrap the daemon performs when the kiosk app becomes
device owner: lock-down, HOME takeover and launch.
With --set-owner the kiosk admin receiver is made device owner first,
which only works on a freshly reset device without accounts.`,
	RunE: runEnroll,
}

var journalCmd = &cobra.Command{
	Use:   "journal",
	Short: "Show recent controller activity",
	RunE:  runJournal,
}

var callCmd = &cobra.Command{
	Use:   "call <channel> <method> [key=value...]",
	Short: "Send a command to the running daemon",
	Args:  cobra.MinimumNArgs(2),
	RunE:  runCall,
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Supervise the device and serve the command API",
	RunE:  runServe,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Long:  `Prints version, commit, and build time. Use --json for machine-readable output.`,
	Run:   runVersion,
}

var (
	configPath   string
	serialFlag   string
	verbose      bool
	jsonOutput   bool
	revokeFlag   bool
	setOwner     bool
	detachFlag   bool
	journalLimit int
)

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Config file (default ~/.kioskctl/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&serialFlag, "serial", "", "Device serial, overrides config")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Log debug output")

	versionCmd.Flags().BoolVar(&jsonOutput, "json", false, "Output version info as JSON")
	lockdownCmd.Flags().BoolVar(&revokeFlag, "revoke", false, "Lift the directives in reverse order")
	enrollCmd.Flags().BoolVar(&setOwner, "set-owner", false, "Make the kiosk admin receiver device owner first")
	serveCmd.Flags().BoolVar(&detachFlag, "detach", false, "Start the daemon in the background")
	journalCmd.Flags().IntVarP(&journalLimit, "limit", "n", infra.DefaultJournalLimit, "Number of entries")

	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(directivesCmd)
	rootCmd.AddCommand(ownerCmd)
	rootCmd.AddCommand(lockCmd)
	rootCmd.AddCommand(unlockCmd)
	rootCmd.AddCommand(stateCmd)
	rootCmd.AddCommand(installCmd)
	rootCmd.AddCommand(lockdownCmd)
	rootCmd.AddCommand(enrollCmd)
	rootCmd.AddCommand(journalCmd)
	rootCmd.AddCommand(callCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(versionCmd)
}

func runStatus(cmd *cobra.Command, args []string) error {
	a, err := newApp(cmd.Context(), newCLILogger(), false)
	if err != nil {
		return err
	}
	defer a.Close()
	ctx := cmd.Context()

	fmt.Println("\n=== kioskctl Status ===")
	fmt.Printf("Device: %s\n", orDefault(a.cfg.Device.Serial, "(default)"))
	fmt.Printf("Kiosk app: %s\n", a.cfg.Identity.Package)

	if sdk, err := a.host.SDKLevel(); err == nil {
		fmt.Printf("API level: %d\n", sdk)
	} else {
		fmt.Printf("API level: %s\n", color.RedString("unreachable (%v)", err))
	}

	inspector := a.controller.Inspector()
	fmt.Printf("Device owner: %s\n", yesNo(inspector.HasManagementAuthority()))
	fmt.Printf("Lock task permitted: %s\n", yesNo(inspector.IsLockModePermitted()))
	fmt.Printf("Lock state: %s\n", stateLabel(a.controller.Supervisor().CurrentLockState(ctx)))

	record, running := newDaemonRegistry(a.cfg).Running()
	switch {
	case running && daemonHealthy(record.Listen):
		fmt.Printf("Daemon: %s (pid %d, %s)\n", color.GreenString("running"), record.PID, record.Listen)
		fmt.Printf("Last heartbeat: %s ago\n", time.Since(time.Unix(record.LastHeartbeat, 0)).Round(time.Second))
	case running:
		fmt.Printf("Daemon: %s (pid %d, API not answering)\n", color.YellowString("degraded"), record.PID)
	default:
		fmt.Printf("Daemon: %s\n", color.YellowString("not running"))
	}
	fmt.Println("=======================")
	return nil
}

func runDirectives(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	registry := newRegistry(cfg)

	selected := make(map[domain.DirectiveID]bool)
	for _, id := range cfg.DirectiveIDs() {
		selected[id] = true
	}

	fmt.Println("\n=== Lock-down Directives ===")
	for _, d := range registry.Sequence() {
		marker := " "
		if len(selected) == 0 || selected[d.ID()] {
			marker = color.GreenString("*")
		}
		fmt.Printf(" %s %-28s %s\n", marker, d.ID(), d.Description())
	}
	fmt.Println("\n* applied by this configuration")
	fmt.Println("============================")
	return nil
}

func runOwner(cmd *cobra.Command, args []string) error {
	a, err := newApp(cmd.Context(), newCLILogger(), false)
	if err != nil {
		return err
	}
	defer a.Close()

	fmt.Println(a.controller.Inspector().HasManagementAuthority())
	return nil
}

func runLock(cmd *cobra.Command, args []string) error {
	a, err := newApp(cmd.Context(), newCLILogger(), true)
	if err != nil {
		return err
	}
	defer a.Close()

	if !a.controller.Enter(cmd.Context()) {
		return fmt.Errorf("lock task declined (run with -v for the reason)")
	}
	fmt.Println(color.GreenString("locked"))
	return nil
}

func runUnlock(cmd *cobra.Command, args []string) error {
	a, err := newApp(cmd.Context(), newCLILogger(), true)
	if err != nil {
		return err
	}
	defer a.Close()

	if !a.controller.Exit(cmd.Context()) {
		return fmt.Errorf("failed to stop lock task")
	}
	fmt.Println(color.YellowString("unlocked"))
	return nil
}

func runState(cmd *cobra.Command, args []string) error {
	a, err := newApp(cmd.Context(), newCLILogger(), false)
	if err != nil {
		return err
	}
	defer a.Close()

	fmt.Println(a.controller.Supervisor().CurrentLockState(cmd.Context()))
	return nil
}

func runInstall(cmd *cobra.Command, args []string) error {
	a, err := newApp(cmd.Context(), newCLILogger(), true)
	if err != nil {
		return err
	}
	defer a.Close()

	result := a.controller.Install(cmd.Context(), args[0], "cli")
	fmt.Printf("Request: %s\n", result.RequestID)

	switch result.Outcome {
	case domain.InstallInstalled:
		fmt.Printf("Outcome: %s\n", color.GreenString(string(result.Outcome)))
		fmt.Println("Confirm the install prompt on the device.")
	case domain.InstallPermissionRequired:
		fmt.Printf("Outcome: %s\n", color.YellowString(string(result.Outcome)))
		fmt.Println("Grant install permission on the device, then retry.")
	default:
		fmt.Printf("Outcome: %s\n", color.RedString(string(result.Outcome)))
	}
	if result.Detail != "" {
		fmt.Printf("Detail: %s\n", result.Detail)
	}

	if result.Outcome != domain.InstallInstalled {
		return fmt.Errorf("install %s", result.Outcome)
	}
	return nil
}

func runLockdown(cmd *cobra.Command, args []string) error {
	a, err := newApp(cmd.Context(), newCLILogger(), true)
	if err != nil {
		return err
	}
	defer a.Close()
	ctx := cmd.Context()

	if !revokeFlag && !a.controller.Inspector().HasManagementAuthority() {
		return fmt.Errorf("%s is not device owner", a.cfg.Identity.Package)
	}

	var report domain.LockdownReport
	if revokeFlag {
		fmt.Println("\n=== Revoking Lock-down ===")
		report = a.controller.Revoke(ctx)
	} else {
		fmt.Println("\n=== Applying Lock-down ===")
		report = a.controller.Lockdown(ctx)
	}
	printReport(report)

	if report.Degraded() {
		return fmt.Errorf("%d of %d directives not applied", len(report.Failed()), len(report.Outcomes))
	}
	return nil
}

func runEnroll(cmd *cobra.Command, args []string) error {
	a, err := newApp(cmd.Context(), newCLILogger(), true)
	if err != nil {
		return err
	}
	defer a.Close()
	ctx := cmd.Context()

	if setOwner {
		receiver := a.cfg.DomainIdentity().Component(a.cfg.Identity.AdminReceiver)
		out, err := a.adb.Shell(ctx, "dpm", "set-device-owner", receiver)
		if err != nil {
			return fmt.Errorf("failed to set device owner: %w", err)
		}
		fmt.Println(strings.TrimSpace(out))
	}

	a.controller.HandleEvent(ctx, domain.HostEvent{
		ID:   uuid.New().String(),
		Kind: domain.EventEnrolled,
		At:   time.Now(),
	})

	if !a.controller.Inspector().HasManagementAuthority() {
		return fmt.Errorf("%s is not device owner, nothing applied", a.cfg.Identity.Package)
	}
	fmt.Printf("Lock state: %s\n", stateLabel(a.controller.Supervisor().CurrentLockState(ctx)))
	return nil
}

func runJournal(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if !cfg.Journal.Enabled {
		return fmt.Errorf("journal is disabled in config")
	}

	journal, err := infra.OpenJournal(expandPath(cfg.Journal.DataDir))
	if err != nil {
		return err
	}
	defer journal.Close()
	if moved := journal.SetAside(); moved != "" {
		color.Yellow("Journal key was missing; previous journal moved to %s", moved)
	}

	entries, err := journal.Recent(journalLimit)
	if err != nil {
		return err
	}
	if len(entries) == 0 {
		fmt.Println("No journal entries.")
		return nil
	}
	for _, e := range entries {
		line := fmt.Sprintf("%s  %-8s %-28s %s",
			e.CreatedAt.Local().Format("2006-01-02 15:04:05"), e.Kind, e.Subject, e.Outcome)
		if e.Detail != "" {
			line += "  (" + e.Detail + ")"
		}
		fmt.Println(line)
	}
	return nil
}

func runCall(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	cmdArgs := make(map[string]string)
	for _, kv := range args[2:] {
		k, v, ok := strings.Cut(kv, "=")
		if !ok {
			return fmt.Errorf("argument %q is not key=value", kv)
		}
		cmdArgs[k] = v
	}

	status, body, err := postCommand(cmd.Context(), cfg.API.Listen, args[0], args[1], cmdArgs)
	if err != nil {
		return err
	}
	fmt.Println(strings.TrimSpace(string(body)))
	if status != http.StatusOK {
		return fmt.Errorf("daemon returned %d", status)
	}
	return nil
}

func runServe(cmd *cobra.Command, args []string) error {
	if detachFlag {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		if record, running := newDaemonRegistry(cfg).Running(); running {
			fmt.Printf("kioskctl daemon already running (pid %d)\n", record.PID)
			return nil
		}
		pid, err := daemon.StartDetached(configPath)
		if err != nil {
			return err
		}
		fmt.Printf("kioskctl daemon started (pid %d)\n", pid)
		return nil
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger := createLogger(cfg.Log)
	defer func() { _ = logger.Sync() }()

	ctx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	a, err := newApp(ctx, logger, true)
	if err != nil {
		logger.Error("failed to start", zap.Error(err))
		return err
	}
	defer a.Close()

	registry := newDaemonRegistry(a.cfg)
	if record, running := registry.Running(); running && record.PID != os.Getpid() {
		return fmt.Errorf("kioskctl daemon already running (pid %d)", record.PID)
	}
	if err := registry.Register(domain.DaemonRecord{
		PID:     os.Getpid(),
		Listen:  a.cfg.API.Listen,
		Serial:  a.cfg.Device.Serial,
		Version: Version,
	}); err != nil {
		logger.Warn("failed to register daemon", zap.Error(err))
	}
	defer func() { _ = registry.Clear() }()

	events := infra.NewPollingEventSource(a.host, a.cfg.Identity.Package, a.cfg.Supervisor.PollInterval, logger)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return a.controller.Run(gctx, events.Events(gctx))
	})
	if a.inboxDir != "" {
		inbox := daemon.NewInboxWatcher(a.inboxDir, a.controller.EnqueueInstall, logger)
		g.Go(func() error { return inbox.Run(gctx) })
	}
	g.Go(func() error {
		var journal domain.Journal
		if a.journal != nil {
			journal = a.journal
		}
		return api.Serve(gctx, a.cfg.API.Listen, api.NewRouter(a.controller, journal, logger), logger)
	})

	g.Go(func() error {
		heartbeat(gctx, registry, logger)
		return nil
	})

	err = g.Wait()
	if ctx.Err() != nil {
		logger.Info("kioskctl stopped")
		return nil
	}
	return err
}

func runVersion(cmd *cobra.Command, args []string) {
	if jsonOutput {
		fmt.Printf(`{"version":"%s","commit":"%s","build_time":"%s"}`+"\n",
			Version, Commit, BuildTime)
	} else {
		fmt.Printf("kioskctl %s (commit: %s, built: %s)\n",
			Version, Commit, BuildTime)
	}
}

// heartbeatInterval is how often the daemon refreshes its registry record.
const heartbeatInterval = 30 * time.Second

func heartbeat(ctx context.Context, registry domain.DaemonRegistry, logger *zap.Logger) {
	ticker := time.NewTicker(heartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := registry.UpdateHeartbeat(); err != nil {
				logger.Warn("failed to update heartbeat", zap.Error(err))
			}
		}
	}
}

func printReport(report domain.LockdownReport) {
	for _, o := range report.Outcomes {
		switch o.Status {
		case domain.DirectiveApplied:
			fmt.Printf("  %s %s\n", color.GreenString("✓"), o.Directive)
		case domain.DirectiveUnsupported:
			fmt.Printf("  %s %s: %s\n", color.YellowString("-"), o.Directive, o.Reason)
		default:
			fmt.Printf("  %s %s: %s (%s)\n", color.RedString("✗"), o.Directive, o.Reason, o.Kind)
		}
	}
	fmt.Printf("\n%d directives in %dms\n", len(report.Outcomes), report.DurationMs)
}

func yesNo(b bool) string {
	if b {
		return color.GreenString("yes")
	}
	return color.RedString("no")
}

func stateLabel(s domain.LockState) string {
	if s == domain.Locked {
		return color.GreenString(string(s))
	}
	return color.YellowString(string(s))
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}

func daemonHealthy(addr string) bool {
	client := &http.Client{Timeout: time.Second}
	resp, err := client.Get("http://" + addr + "/healthz")
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	return resp.StatusCode == http.StatusOK
}

func postCommand(ctx context.Context, addr, channel, method string, args map[string]string) (int, []byte, error) {
	payload, err := json.Marshal(args)
	if err != nil {
		return 0, nil, err
	}

	url := fmt.Sprintf("http://%s/v1/%s/%s", addr, channel, method)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, strings.NewReader(string(payload)))
	if err != nil {
		return 0, nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := (&http.Client{Timeout: time.Minute}).Do(req)
	if err != nil {
		return 0, nil, fmt.Errorf("daemon not reachable at %s: %w", addr, err)
	}
	defer resp.Body.Close()

	var body json.RawMessage
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return resp.StatusCode, nil, fmt.Errorf("failed to decode reply: %w", err)
	}
	return resp.StatusCode, body, nil
}
