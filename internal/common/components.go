package common

const (
	ComponentOrchestrator  = "orchestrator"
	ComponentReducer       = "reducer"
	ComponentListener      = "listener"
	ComponentEntityService = "entity-service"
	ComponentEntityStore   = "entity-store"
	ComponentEventJournal  = "event-journal"
	ComponentAutoReduce    = "auto-reduce"
	ComponentNotifier      = "notifier"
	ComponentRPC           = "rpc"
	ComponentMaintenance   = "maintenance"
)

var AllComponents = map[string]struct{}{
	ComponentOrchestrator:  {},
	ComponentReducer:       {},
	ComponentListener:      {},
	ComponentEntityService: {},
	ComponentEntityStore:   {},
	ComponentEventJournal:  {},
	ComponentAutoReduce:    {},
	ComponentNotifier:      {},
	ComponentRPC:           {},
	ComponentMaintenance:   {},
}
