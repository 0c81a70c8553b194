package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/goran-ethernal/ChainReducer/internal/autoreduce"
	"github.com/goran-ethernal/ChainReducer/internal/common"
	"github.com/goran-ethernal/ChainReducer/internal/compaction"
	"github.com/goran-ethernal/ChainReducer/internal/db"
	"github.com/goran-ethernal/ChainReducer/internal/logger"
	"github.com/goran-ethernal/ChainReducer/internal/migrations"
	"github.com/goran-ethernal/ChainReducer/internal/notifier"
	"github.com/goran-ethernal/ChainReducer/internal/orchestrator"
	"github.com/goran-ethernal/ChainReducer/internal/reducer"
	"github.com/goran-ethernal/ChainReducer/internal/rpc"
	"github.com/goran-ethernal/ChainReducer/internal/service"
	internalstore "github.com/goran-ethernal/ChainReducer/internal/store"
	"github.com/goran-ethernal/ChainReducer/pkg/config"
	"github.com/goran-ethernal/ChainReducer/pkg/listener"
	"github.com/goran-ethernal/ChainReducer/pkg/model"
	"github.com/goran-ethernal/ChainReducer/pkg/store"
)

// app holds the wired reduce pipeline.
type app struct {
	cfg *config.Config
	log *logger.Logger

	database    *sql.DB
	maintenance db.Maintenance
	markers     *autoreduce.Store
	sweeper     *autoreduce.Sweeper
	registry    *listener.Registry
	journal     store.EventJournal
	reducers    map[model.Family]orchestrator.IDReducer
	listers     map[model.Family]entityLister

	closers []func() error
}

// entityLister pages through the stored entities of one family.
type entityLister func(ctx context.Context, afterID string, limit int, includeDeleted bool) ([]model.Envelope, error)

func listerOf[T model.Entity[T]](svc *service.EntityService[T]) entityLister {
	return func(ctx context.Context, afterID string, limit int, includeDeleted bool) ([]model.Envelope, error) {
		entities, err := svc.List(ctx, afterID, limit, includeDeleted)
		if err != nil {
			return nil, err
		}

		envelopes := make([]model.Envelope, 0, len(entities))
		for _, e := range entities {
			envelopes = append(envelopes, e.Meta())
		}
		return envelopes, nil
	}
}

func componentLogger(cfg *config.Config, component string) *logger.Logger {
	return logger.NewComponentLoggerFromConfig(component, cfg.Logging)
}

// newApp migrates the database and wires stores, services, orchestrators,
// listeners and the auto-reduce sweeper from cfg.
func newApp(ctx context.Context, cfg *config.Config) (_ *app, err error) {
	a := &app{
		cfg:      cfg,
		log:      componentLogger(cfg, common.ComponentOrchestrator),
		reducers: make(map[model.Family]orchestrator.IDReducer),
		listers:  make(map[model.Family]entityLister),
	}
	defer func() {
		if err != nil {
			_ = a.Close()
		}
	}()
	logger.SetDefaultLogger(a.log)

	a.database, err = db.Open(cfg.DB)
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, a.database.Close)

	a.log.Info("Running database migrations...")
	if _, err = db.Migrate(a.database, migrations.Source(), a.log); err != nil {
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	a.maintenance = db.NewMaintenanceCoordinator(
		cfg.DB.Path,
		a.database,
		cfg.Maintenance,
		componentLogger(cfg, common.ComponentMaintenance),
	)

	n, closeNotifier, err := notifier.New(ctx, cfg.Notifier, componentLogger(cfg, common.ComponentNotifier))
	if err != nil {
		return nil, fmt.Errorf("failed to create notifier: %w", err)
	}
	a.closers = append(a.closers, closeNotifier)

	var standards reducer.StandardResolver
	if cfg.RPC != nil {
		resolver, err := a.standardResolver(ctx)
		if err != nil {
			return nil, err
		}
		standards = resolver
	} else {
		a.log.Warn("No RPC configured, token standards are only taken from events")
	}

	entities := internalstore.NewEntityStore(a.database, a.maintenance, componentLogger(cfg, common.ComponentEntityStore))
	journal := internalstore.NewEventJournal(a.database, a.maintenance, componentLogger(cfg, common.ComponentEventJournal))
	a.journal = journal
	a.markers = autoreduce.NewStore(a.database, a.maintenance, componentLogger(cfg, common.ComponentAutoReduce))

	serviceLog := componentLogger(cfg, common.ComponentEntityService)
	tokenSvc := service.New[model.Token](entities, model.NewToken, n, cfg.Retry, serviceLog)
	itemSvc := service.New[model.Item](entities, model.NewItem, n, cfg.Retry, serviceLog)
	ownershipSvc := service.New[model.Ownership](entities, model.NewOwnership, n, cfg.Retry, serviceLog)

	a.listers[model.FamilyToken] = listerOf(tokenSvc)
	a.listers[model.FamilyItem] = listerOf(itemSvc)
	a.listers[model.FamilyOwnership] = listerOf(ownershipSvc)

	compactor := compaction.Compactor{
		Threshold:          cfg.Reducer.CompactionThreshold,
		ConfirmationBlocks: cfg.Reducer.ConfirmationBlocks,
	}
	workers := cfg.Reducer.Workers

	routerLog := func() *logger.Logger { return componentLogger(cfg, common.ComponentReducer) }
	orchestratorLog := func() *logger.Logger { return componentLogger(cfg, common.ComponentOrchestrator) }

	tokens := orchestrator.New(
		reducer.NewRouter(reducer.TokenChains(standards), compactor, routerLog()),
		tokenSvc, journal, a.markers, workers, orchestratorLog(),
	)
	items := orchestrator.New(
		reducer.NewRouter(reducer.ItemChains(service.NewTokenCreators(tokenSvc)), compactor, routerLog()),
		itemSvc, journal, a.markers, workers, orchestratorLog(),
	)
	ownerships := orchestrator.New(
		reducer.NewRouter(reducer.OwnershipChains(), compactor, routerLog()),
		ownershipSvc, journal, a.markers, workers, orchestratorLog(),
	)

	byFamily := map[model.Family]listener.Listener{
		model.FamilyToken:     tokens,
		model.FamilyItem:      items,
		model.FamilyOwnership: ownerships,
	}
	a.reducers[model.FamilyToken] = tokens
	a.reducers[model.FamilyItem] = items
	a.reducers[model.FamilyOwnership] = ownerships

	a.registry = listener.NewRegistry(componentLogger(cfg, common.ComponentListener))
	for _, lc := range cfg.Listeners {
		key := listener.Key{GroupID: lc.GroupID, Blockchain: cfg.Reducer.Blockchain}
		for _, family := range lc.Families {
			a.registry.Register(key, byFamily[model.Family(family)])
		}
		a.log.Infof("✓ Registered listeners %s: %v", key, lc.Families)
	}

	a.sweeper = autoreduce.NewSweeper(
		a.markers,
		orchestrator.ReduceFunc(tokens, items, ownerships),
		cfg.AutoReduce,
		componentLogger(cfg, common.ComponentAutoReduce),
	)

	return a, nil
}

func (a *app) standardResolver(ctx context.Context) (*rpc.StandardResolver, error) {
	rpcLog := componentLogger(a.cfg, common.ComponentRPC)

	a.log.Info("Connecting to Ethereum node...")
	client, err := rpc.NewClient(ctx, a.cfg.RPC, rpcLog)
	if err != nil {
		return nil, fmt.Errorf("failed to create RPC client: %w", err)
	}
	a.closers = append(a.closers, func() error {
		client.Close()
		return nil
	})

	if chainID, err := client.ChainID(ctx); err != nil {
		a.log.Warnf("Connected to Ethereum node %s, chain id unknown: %v", a.cfg.RPC.URL, err)
	} else {
		a.log.Infof("Connected to Ethereum node %s (chain id %s)", a.cfg.RPC.URL, chainID)
	}

	resolver, err := rpc.NewStandardResolver(client, rpcLog)
	if err != nil {
		return nil, fmt.Errorf("failed to create token standard resolver: %w", err)
	}

	return resolver, nil
}

// reduceID runs the full reduce path of one entity.
func (a *app) reduceID(ctx context.Context, family model.Family, id string) error {
	r, ok := a.reducers[family]
	if !ok {
		return fmt.Errorf("unknown family %q", family)
	}
	return r.ReduceID(ctx, id)
}

// journaledIDs returns every entity of family with journaled events.
func (a *app) journaledIDs(ctx context.Context, family model.Family) ([]string, error) {
	return a.journal.EntityIDs(ctx, family)
}

// listEntities returns a page of stored entities of family.
func (a *app) listEntities(
	ctx context.Context,
	family model.Family,
	afterID string,
	limit int,
	includeDeleted bool,
) ([]model.Envelope, error) {
	list, ok := a.listers[family]
	if !ok {
		return nil, fmt.Errorf("unknown family %q", family)
	}
	return list(ctx, afterID, limit, includeDeleted)
}

// Close releases the resources in reverse order of acquisition.
func (a *app) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil

	return errors.Join(errs...)
}
