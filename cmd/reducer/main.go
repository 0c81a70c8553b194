package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"

	"github.com/goran-ethernal/ChainReducer/internal/common"
	"github.com/goran-ethernal/ChainReducer/internal/config"
	"github.com/goran-ethernal/ChainReducer/internal/db"
	"github.com/goran-ethernal/ChainReducer/internal/metrics"
	"github.com/goran-ethernal/ChainReducer/internal/migrations"
	"github.com/goran-ethernal/ChainReducer/internal/orchestrator"
	pkgconfig "github.com/goran-ethernal/ChainReducer/pkg/config"
	"github.com/goran-ethernal/ChainReducer/pkg/model"
	"github.com/invopop/jsonschema"
	"github.com/spf13/cobra"
)

const (
	version = "1.0.0"
	banner  = `
╔═══════════════════════════════════════════╗
║          ChainReducer v%s              ║
║   Blockchain Event Reduction Engine       ║
╚═══════════════════════════════════════════╝
`
)

var (
	configPath string
	inputPath  string
	family     string
	entityIDs  []string
	reduceAll  bool
	rollback   int

	afterID        string
	pageSize       int
	includeDeleted bool
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "reducer",
	Short: "ChainReducer - blockchain event reduction engine",
	Long: `ChainReducer folds decoded blockchain logs into item, ownership and token
entities. It handles pending, confirmed and reverted events, retries conflicting
writes and re-reduces entities whose dependencies arrive late.`,
	Version:      version,
	SilenceUsage: true,
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Reduce batches read from a JSON-lines input",
	Long: `Reduce record batches read from --input, one JSON batch per line, until the
input ends or the process is interrupted. "-" reads from standard input.`,
	RunE: runReducer,
}

var reduceCmd = &cobra.Command{
	Use:   "reduce",
	Short: "Recompute entities from their journaled events",
	Long: `Recompute the entities given with --id, or with --all every entity of the
family that has journaled events, from the template and the journal.`,
	RunE: runReduce,
}

var entitiesCmd = &cobra.Command{
	Use:   "entities",
	Short: "List stored entities of a family",
	RunE:  runEntities,
}

var sweepCmd = &cobra.Command{
	Use:   "sweep",
	Short: "Run one auto-reduce pass",
	RunE:  runSweep,
}

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List registered listeners",
	Long:  `List the listeners registered from the configuration, per blockchain and group.`,
	RunE:  runList,
}

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply or roll back database schema migrations",
	RunE:  runMigrate,
}

var schemaCmd = &cobra.Command{
	Use:   "schema",
	Short: "Print the JSON schema of the configuration file",
	RunE: func(cmd *cobra.Command, args []string) error {
		schema := jsonschema.Reflect(&pkgconfig.Config{})

		out, err := json.MarshalIndent(schema, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to encode schema: %w", err)
		}

		fmt.Fprintln(cmd.OutOrStdout(), string(out))
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "config.yaml", "path to configuration file")

	runCmd.Flags().StringVarP(&inputPath, "input", "i", "-", "JSON-lines file of record batches")

	reduceCmd.Flags().StringVarP(&family, "family", "f", "", "entity family: item, ownership or token")
	reduceCmd.Flags().StringSliceVar(&entityIDs, "id", nil, "entity id to reduce (repeatable)")
	reduceCmd.Flags().BoolVar(&reduceAll, "all", false, "reduce every journaled entity of the family")
	_ = reduceCmd.MarkFlagRequired("family")
	reduceCmd.MarkFlagsOneRequired("id", "all")
	reduceCmd.MarkFlagsMutuallyExclusive("id", "all")

	entitiesCmd.Flags().StringVarP(&family, "family", "f", "", "entity family: item, ownership or token")
	entitiesCmd.Flags().StringVar(&afterID, "after", "", "list ids greater than this one")
	entitiesCmd.Flags().IntVarP(&pageSize, "limit", "n", 50, "maximum number of entities to list")
	entitiesCmd.Flags().BoolVar(&includeDeleted, "deleted", false, "include deleted entities")
	_ = entitiesCmd.MarkFlagRequired("family")

	migrateCmd.Flags().IntVar(&rollback, "rollback", 0, "number of migrations to roll back instead of applying")

	rootCmd.AddCommand(runCmd, reduceCmd, entitiesCmd, sweepCmd, listCmd, migrateCmd, schemaCmd)
}

// signalContext returns a context cancelled on SIGINT or SIGTERM. Signals
// stay captured until the returned stop func is called, so repeated signals
// do not cut the graceful shutdown short.
func signalContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		defer signal.Stop(sigCh)
		for {
			select {
			case <-sigCh:
				if ctx.Err() != nil {
					fmt.Println("Shutdown already in progress...")
					continue
				}
				fmt.Println("\n\nShutting down gracefully...")
				cancel()
			case <-done:
				return
			}
		}
	}()

	var once sync.Once
	stop := func() {
		once.Do(func() {
			cancel()
			close(done)
		})
	}

	return ctx, stop
}

func loadApp(ctx context.Context) (*app, error) {
	cfg, err := config.LoadFromFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	return newApp(ctx, cfg)
}

func runReducer(cmd *cobra.Command, args []string) error {
	fmt.Printf(banner, version)

	ctx, cancel := signalContext()
	defer cancel()

	a, err := loadApp(ctx)
	if err != nil {
		return err
	}
	defer func() {
		if err := a.Close(); err != nil {
			a.log.Warnf("Failed to close resources: %v", err)
		}
	}()

	if a.cfg.Metrics != nil && a.cfg.Metrics.Enabled {
		metricsServer := metrics.NewServer(a.cfg.Metrics, a.log)
		if err := metricsServer.Start(ctx); err != nil {
			return fmt.Errorf("failed to start metrics server: %w", err)
		}
		defer func() {
			if err := metricsServer.Stop(context.WithoutCancel(ctx)); err != nil {
				a.log.Warnf("Failed to stop metrics server: %v", err)
			}
		}()
		a.log.Infof("Metrics server listening on %s%s", metricsServer.Addr(), a.cfg.Metrics.Path)
	}

	if err := a.maintenance.Start(ctx); err != nil {
		return fmt.Errorf("failed to start database maintenance: %w", err)
	}
	defer func() {
		if err := a.maintenance.Stop(); err != nil {
			a.log.Warnf("Failed to stop database maintenance: %v", err)
		}
	}()
	metrics.ComponentHealthSet(common.ComponentMaintenance, true)

	a.sweeper.Start(ctx)
	defer a.sweeper.Stop()
	metrics.ComponentHealthSet(common.ComponentAutoReduce, true)

	input, err := openInput(inputPath)
	if err != nil {
		return err
	}
	defer input.Close()

	a.log.Info("Starting ChainReducer...")
	metrics.ComponentHealthSet(common.ComponentOrchestrator, true)

	stats, err := ingest(ctx, input, a.cfg.Reducer.Blockchain, a.registry, a.log)
	metrics.ComponentHealthSet(common.ComponentOrchestrator, false)

	a.log.Infof("Input consumed: %d batches, %d records, %d malformed, %d failed, %d without listeners",
		stats.Batches, stats.Records, stats.Malformed, stats.Failed, stats.Unrouted)

	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}

	a.log.Info("ChainReducer stopped successfully")
	return nil
}

func runReduce(cmd *cobra.Command, args []string) error {
	ctx, cancel := signalContext()
	defer cancel()

	f, err := model.ParseFamily(strings.ToLower(family))
	if err != nil {
		return err
	}

	a, err := loadApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	ids := entityIDs
	if reduceAll {
		ids, err = a.journaledIDs(ctx, f)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Reducing %d journaled %s entities\n", len(ids), f)
	}

	var failed int
	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			return err
		}

		err := a.reduceID(ctx, f, id)
		switch {
		case err == nil:
			fmt.Fprintf(cmd.OutOrStdout(), "✓ %s %s reduced\n", f, id)
		case errors.Is(err, orchestrator.ErrNeedsReduce):
			fmt.Fprintf(cmd.OutOrStdout(), "… %s %s reduced, still waiting for dependencies\n", f, id)
		default:
			failed++
			fmt.Fprintf(cmd.OutOrStdout(), "✗ %s %s: %v\n", f, id, err)
		}
	}

	if failed > 0 {
		return fmt.Errorf("%d of %d entities failed to reduce", failed, len(ids))
	}
	return nil
}

func runEntities(cmd *cobra.Command, args []string) error {
	ctx, cancel := signalContext()
	defer cancel()

	f, err := model.ParseFamily(strings.ToLower(family))
	if err != nil {
		return err
	}

	a, err := loadApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	envelopes, err := a.listEntities(ctx, f, afterID, pageSize, includeDeleted)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if len(envelopes) == 0 {
		fmt.Fprintf(out, "No %s entities after %q\n", f, afterID)
		return nil
	}

	for _, e := range envelopes {
		state := "active"
		if e.Deleted {
			state = "deleted"
		}
		fmt.Fprintf(out, "  - %s  version=%d  %s  pending=%d\n", e.ID, e.Version, state, len(e.PendingEvents))
	}
	if len(envelopes) == pageSize {
		fmt.Fprintf(out, "More with --after %s\n", envelopes[len(envelopes)-1].ID)
	}

	return nil
}

func runSweep(cmd *cobra.Command, args []string) error {
	ctx, cancel := signalContext()
	defer cancel()

	a, err := loadApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	stats, err := a.sweeper.RunOnce(ctx)
	if err != nil {
		return fmt.Errorf("auto-reduce sweep failed: %w", err)
	}

	remaining, err := a.markers.Count(ctx)
	if err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Claimed %d, reduced %d, failed %d, %d markers remaining\n",
		stats.Claimed, stats.Reduced, stats.Failed, remaining)
	return nil
}

func runList(cmd *cobra.Command, args []string) error {
	ctx, cancel := signalContext()
	defer cancel()

	a, err := loadApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	out := cmd.OutOrStdout()
	fmt.Fprintln(out, "Registered listeners:")

	keys := a.registry.Keys()
	if len(keys) == 0 {
		fmt.Fprintln(out, "  (no listeners registered)")
		return nil
	}

	for _, key := range keys {
		var families []string
		for _, l := range a.registry.Listeners(key) {
			families = append(families, string(l.Family()))
		}
		fmt.Fprintf(out, "  - %s: %s\n", key, strings.Join(families, ", "))
	}

	return nil
}

func runMigrate(cmd *cobra.Command, args []string) error {
	cfg, err := config.LoadFromFile(configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	database, err := db.Open(cfg.DB)
	if err != nil {
		return err
	}
	defer database.Close()

	log := componentLogger(cfg, common.ComponentMaintenance)
	out := cmd.OutOrStdout()

	if rollback > 0 {
		n, err := db.Rollback(database, migrations.Source(), rollback, log)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "Rolled back %d migrations\n", n)
	} else {
		n, err := db.Migrate(database, migrations.Source(), log)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "Applied %d migrations\n", n)
	}

	applied, err := db.Applied(database)
	if err != nil {
		return err
	}
	fmt.Fprintln(out, "Schema version:")
	for _, id := range applied {
		fmt.Fprintf(out, "  - %s\n", id)
	}
	return nil
}
