package config

import (
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/goran-ethernal/ChainReducer/internal/common"
	"github.com/goran-ethernal/ChainReducer/internal/logger"
)

// Notifier types.
const (
	NotifierLog  = "log"
	NotifierNATS = "nats"
	NotifierBoth = "both"
)

var validFamilies = []string{"item", "ownership", "token"}

// Config represents the complete configuration for the ChainReducer.
type Config struct {
	// DB contains the database holding entities, the event journal and auto-reduce markers
	DB DatabaseConfig `yaml:"db" json:"db" toml:"db"`

	// Maintenance contains optional database maintenance settings
	Maintenance *MaintenanceConfig `yaml:"maintenance,omitempty" json:"maintenance,omitempty" toml:"maintenance,omitempty"`

	// Reducer contains the reduce pipeline settings
	Reducer ReducerConfig `yaml:"reducer" json:"reducer" toml:"reducer"`

	// Retry configures the retry-with-reread of entity writes
	Retry *RetryConfig `yaml:"retry,omitempty" json:"retry,omitempty" toml:"retry,omitempty"`

	// AutoReduce configures the background re-reduce sweep
	AutoReduce *AutoReduceConfig `yaml:"auto_reduce,omitempty" json:"auto_reduce,omitempty" toml:"auto_reduce,omitempty"`

	// RPC configures the JSON-RPC endpoint used to detect token standards
	RPC *RPCConfig `yaml:"rpc,omitempty" json:"rpc,omitempty" toml:"rpc,omitempty"`

	// Notifier configures change notifications
	Notifier *NotifierConfig `yaml:"notifier,omitempty" json:"notifier,omitempty" toml:"notifier,omitempty"`

	// Listeners contains the log listeners to register
	Listeners []ListenerConfig `yaml:"listeners" json:"listeners" toml:"listeners"`

	// Logging contains logging configuration
	Logging *LoggingConfig `yaml:"logging,omitempty" json:"logging,omitempty" toml:"logging,omitempty"`

	// Metrics contains Prometheus metrics configuration
	Metrics *MetricsConfig `yaml:"metrics,omitempty" json:"metrics,omitempty" toml:"metrics,omitempty"`
}

// ReducerConfig represents the configuration of the reduce pipeline.
type ReducerConfig struct {
	// Blockchain is the name of the chain the reducer indexes
	Blockchain string `yaml:"blockchain" json:"blockchain" toml:"blockchain"`

	// Workers is the number of entity groups reduced in parallel
	Workers int `yaml:"workers" json:"workers" toml:"workers"`

	// CompactionThreshold is the history length above which entity history is compacted
	CompactionThreshold int `yaml:"compaction_threshold" json:"compaction_threshold" toml:"compaction_threshold"`

	// ConfirmationBlocks is the number of blocks after which history entries may be trimmed
	// 0 keeps all entries that compaction cannot merge
	ConfirmationBlocks uint64 `yaml:"confirmation_blocks" json:"confirmation_blocks" toml:"confirmation_blocks"`
}

// ApplyDefaults sets default values for optional reducer configuration fields.
func (r *ReducerConfig) ApplyDefaults() {
	if r.Workers == 0 {
		r.Workers = 8
	}
	if r.CompactionThreshold == 0 {
		r.CompactionThreshold = 100
	}
}

// RetryConfig represents retry configuration with exponential backoff.
type RetryConfig struct {
	// MaxAttempts is the maximum number of attempts (including initial request)
	MaxAttempts int `yaml:"max_attempts" json:"max_attempts" toml:"max_attempts"`

	// InitialBackoff is the initial backoff duration before first retry
	InitialBackoff common.Duration `yaml:"initial_backoff" json:"initial_backoff" toml:"initial_backoff"`

	// MaxBackoff is the maximum backoff duration
	MaxBackoff common.Duration `yaml:"max_backoff" json:"max_backoff" toml:"max_backoff"`

	// BackoffMultiplier is the multiplier for exponential backoff
	BackoffMultiplier float64 `yaml:"backoff_multiplier" json:"backoff_multiplier" toml:"backoff_multiplier"`
}

// ApplyDefaults sets default values for retry configuration.
func (r *RetryConfig) ApplyDefaults() {
	if r.MaxAttempts == 0 {
		r.MaxAttempts = 5
	}
	if r.InitialBackoff.Duration == 0 {
		r.InitialBackoff = common.NewDuration(50 * time.Millisecond) //nolint:mnd
	}
	if r.MaxBackoff.Duration == 0 {
		r.MaxBackoff = common.NewDuration(5 * time.Second) //nolint:mnd
	}
	if r.BackoffMultiplier == 0 {
		r.BackoffMultiplier = 2.0
	}
}

// Validate checks if the retry configuration is valid.
func (r *RetryConfig) Validate() error {
	if r.MaxAttempts < 1 {
		return fmt.Errorf("max_attempts must be at least 1")
	}
	if r.BackoffMultiplier < 1 {
		return fmt.Errorf("backoff_multiplier must be at least 1")
	}
	if r.MaxBackoff.Duration < r.InitialBackoff.Duration {
		return fmt.Errorf("max_backoff must not be lower than initial_backoff")
	}
	return nil
}

// AutoReduceConfig configures the background sweep over auto-reduce markers.
type AutoReduceConfig struct {
	// Enabled controls whether the sweeper runs in the background
	Enabled bool `yaml:"enabled" json:"enabled" toml:"enabled"`

	// Interval is how often markers are swept (e.g., "30s", "5m")
	Interval common.Duration `yaml:"interval" json:"interval" toml:"interval"`

	// BatchSize is the number of markers claimed per sweep
	BatchSize int `yaml:"batch_size" json:"batch_size" toml:"batch_size"`

	// MaxAttempts is the number of failed re-reduces after which a marker is left alone
	// 0 retries forever
	MaxAttempts int `yaml:"max_attempts" json:"max_attempts" toml:"max_attempts"`
}

// ApplyDefaults sets default values for optional auto-reduce configuration fields.
func (a *AutoReduceConfig) ApplyDefaults() {
	if a.Interval.Duration == 0 {
		a.Interval = common.NewDuration(time.Minute)
	}
	if a.BatchSize == 0 {
		a.BatchSize = 100
	}
}

// Validate checks if the auto-reduce configuration is valid.
func (a *AutoReduceConfig) Validate() error {
	if a.BatchSize < 0 {
		return fmt.Errorf("batch_size must not be negative")
	}
	if a.MaxAttempts < 0 {
		return fmt.Errorf("max_attempts must not be negative")
	}
	return nil
}

// RPCConfig configures the JSON-RPC endpoint.
type RPCConfig struct {
	// URL is the Ethereum RPC endpoint URL
	URL string `yaml:"url" json:"url" toml:"url"`

	// Timeout bounds a single call
	Timeout common.Duration `yaml:"timeout" json:"timeout" toml:"timeout"`

	// Retry contains RPC retry configuration with exponential backoff
	Retry *RetryConfig `yaml:"retry,omitempty" json:"retry,omitempty" toml:"retry,omitempty"`
}

// ApplyDefaults sets default values for optional RPC configuration fields.
func (r *RPCConfig) ApplyDefaults() {
	if r.Timeout.Duration == 0 {
		r.Timeout = common.NewDuration(10 * time.Second) //nolint:mnd
	}
	if r.Retry != nil {
		r.Retry.ApplyDefaults()
	}
}

// NotifierConfig configures where change notifications are sent.
type NotifierConfig struct {
	// Type is one of "log", "nats" or "both"
	Type string `yaml:"type" json:"type" toml:"type"`

	// NATSURL is the NATS server URL
	NATSURL string `yaml:"nats_url" json:"nats_url" toml:"nats_url"`

	// SubjectPrefix prefixes the subject of every notification: <prefix>.<family>
	SubjectPrefix string `yaml:"subject_prefix" json:"subject_prefix" toml:"subject_prefix"`

	// Stream is the JetStream stream capturing the subjects; created if missing
	Stream string `yaml:"stream" json:"stream" toml:"stream"`

	// ClientName identifies the connection on the NATS server
	ClientName string `yaml:"client_name" json:"client_name" toml:"client_name"`

	// MaxReconnects is the number of reconnect attempts (-1 = unlimited)
	MaxReconnects int `yaml:"max_reconnects" json:"max_reconnects" toml:"max_reconnects"`

	// ReconnectWait is the wait between reconnect attempts
	ReconnectWait common.Duration `yaml:"reconnect_wait" json:"reconnect_wait" toml:"reconnect_wait"`
}

// ApplyDefaults sets default values for optional notifier configuration fields.
func (n *NotifierConfig) ApplyDefaults() {
	if n.Type == "" {
		n.Type = NotifierLog
	}
	if n.SubjectPrefix == "" {
		n.SubjectPrefix = "chainreducer"
	}
	if n.ClientName == "" {
		n.ClientName = "chainreducer"
	}
	if n.MaxReconnects == 0 {
		n.MaxReconnects = -1
	}
	if n.ReconnectWait.Duration == 0 {
		n.ReconnectWait = common.NewDuration(2 * time.Second) //nolint:mnd
	}
}

// Validate checks if the notifier configuration is valid.
func (n *NotifierConfig) Validate() error {
	switch n.Type {
	case NotifierLog:
		return nil
	case NotifierNATS, NotifierBoth:
		if n.NATSURL == "" {
			return fmt.Errorf("nats_url is required for notifier type '%s'", n.Type)
		}
		return nil
	default:
		return fmt.Errorf("type must be one of: log, nats, both")
	}
}

// UsesNATS reports whether notifications are published to NATS.
func (n *NotifierConfig) UsesNATS() bool {
	return n != nil && (n.Type == NotifierNATS || n.Type == NotifierBoth)
}

// ListenerConfig represents a group of reduce listeners fed by one subscription.
type ListenerConfig struct {
	// GroupID is the logical subscription the listeners consume
	GroupID string `yaml:"group_id" json:"group_id" toml:"group_id"`

	// Families lists the entity families reduced for this group
	// Options: "item", "ownership", "token". Empty means all of them
	Families []string `yaml:"families" json:"families" toml:"families"`
}

// ApplyDefaults sets default values for optional listener configuration fields.
func (l *ListenerConfig) ApplyDefaults() {
	if len(l.Families) == 0 {
		l.Families = slices.Clone(validFamilies)
	}
	for i := range l.Families {
		l.Families[i] = common.ToLowerWithTrim(l.Families[i])
	}
}

// DatabaseConfig represents database configuration.
type DatabaseConfig struct {
	// Path is the file path to the SQLite database
	Path string `yaml:"path" json:"path" toml:"path"`

	// JournalMode sets the SQLite journal mode (e.g., "WAL", "DELETE")
	// WAL mode is recommended for better concurrency
	JournalMode string `yaml:"journal_mode" json:"journal_mode" toml:"journal_mode"`

	// Synchronous sets the synchronization level ("FULL", "NORMAL", "OFF")
	// NORMAL provides a good balance between safety and performance
	Synchronous string `yaml:"synchronous" json:"synchronous" toml:"synchronous"`

	// BusyTimeout is the time in milliseconds to wait when the database is locked
	BusyTimeout int `yaml:"busy_timeout" json:"busy_timeout" toml:"busy_timeout"`

	// CacheSize is the size of the page cache (negative = KB, positive = pages)
	CacheSize int `yaml:"cache_size" json:"cache_size" toml:"cache_size"`

	// MaxOpenConnections is the maximum number of open database connections
	MaxOpenConnections int `yaml:"max_open_connections" json:"max_open_connections" toml:"max_open_connections"`

	// MaxIdleConnections is the maximum number of idle connections in the pool
	MaxIdleConnections int `yaml:"max_idle_connections" json:"max_idle_connections" toml:"max_idle_connections"`

	// EnableForeignKeys enables foreign key constraint enforcement
	EnableForeignKeys bool `yaml:"enable_foreign_keys" json:"enable_foreign_keys" toml:"enable_foreign_keys"`
}

// ApplyDefaults sets default values for optional database configuration fields.
func (d *DatabaseConfig) ApplyDefaults() {
	if d.JournalMode == "" {
		d.JournalMode = "WAL"
	}
	if d.Synchronous == "" {
		d.Synchronous = "NORMAL"
	}
	if d.BusyTimeout == 0 {
		d.BusyTimeout = 5000
	}
	if d.CacheSize == 0 {
		d.CacheSize = 10000
	}
	if d.MaxOpenConnections == 0 {
		d.MaxOpenConnections = 25
	}
	if d.MaxIdleConnections == 0 {
		d.MaxIdleConnections = 5
	}
}

// Validate checks if the database configuration is valid.
func (d *DatabaseConfig) Validate() error {
	if d.Path == "" {
		return fmt.Errorf("db.path is required")
	}

	validJournalModes := []string{"WAL", "DELETE", "TRUNCATE", "PERSIST", "MEMORY"}
	if d.JournalMode != "" && !slices.Contains(validJournalModes, d.JournalMode) {
		return fmt.Errorf("db.journal_mode must be one of: WAL, DELETE, TRUNCATE, PERSIST, MEMORY")
	}

	validSynchronous := []string{"FULL", "NORMAL", "OFF"}
	if d.Synchronous != "" && !slices.Contains(validSynchronous, d.Synchronous) {
		return fmt.Errorf("db.synchronous must be one of: FULL, NORMAL, OFF")
	}

	return nil
}

// MaintenanceConfig configures database maintenance behavior.
type MaintenanceConfig struct {
	// Enabled controls whether background maintenance runs
	Enabled bool `yaml:"enabled" json:"enabled" toml:"enabled"`

	// CheckInterval is how often to run maintenance (e.g., "30m", "1h")
	CheckInterval common.Duration `yaml:"check_interval" json:"check_interval" toml:"check_interval"`

	// VacuumOnStartup runs maintenance immediately on startup
	VacuumOnStartup bool `yaml:"vacuum_on_startup" json:"vacuum_on_startup" toml:"vacuum_on_startup"`

	// WALCheckpointMode controls the WAL checkpoint aggressiveness
	// Options: PASSIVE, FULL, RESTART, TRUNCATE
	WALCheckpointMode string `yaml:"wal_checkpoint_mode" json:"wal_checkpoint_mode" toml:"wal_checkpoint_mode"`
}

// ApplyDefaults sets default values for optional maintenance configuration fields.
func (m *MaintenanceConfig) ApplyDefaults() {
	if m.CheckInterval.Duration == 0 {
		m.CheckInterval = common.NewDuration(30 * time.Minute) //nolint:mnd
	}
	if m.WALCheckpointMode == "" {
		m.WALCheckpointMode = "TRUNCATE"
	}
}

// Validate checks if the maintenance configuration is valid.
func (m *MaintenanceConfig) Validate() error {
	if m.WALCheckpointMode != "" {
		validModes := []string{"PASSIVE", "FULL", "RESTART", "TRUNCATE"}
		if !slices.Contains(validModes, m.WALCheckpointMode) {
			return fmt.Errorf("maintenance.wal_checkpoint_mode: must be one of: PASSIVE, FULL, RESTART, TRUNCATE")
		}
	}

	return nil
}

// LoggingConfig configures logging behavior with per-component log levels.
type LoggingConfig struct {
	// DefaultLevel is the default log level for all components
	// Options: "debug", "info", "warn", "error"
	DefaultLevel string `yaml:"default_level" json:"default_level" toml:"default_level"`

	// Development enables development mode (stack traces, console encoder)
	Development bool `yaml:"development" json:"development" toml:"development"`

	// ComponentLevels sets log levels for specific components
	// Available components:
	//   - orchestrator: Batch parsing, grouping and reduce scheduling
	//   - reducer: Status routing, field reducers and compaction
	//   - listener: Batch dispatch to registered listeners
	//   - entity-service: Entity reads and retried writes
	//   - entity-store: Entity persistence
	//   - event-journal: Journal of reduced events
	//   - auto-reduce: Auto-reduce markers and sweeper
	//   - notifier: Change notifications
	//   - rpc: Token standard detection
	//   - maintenance: Database maintenance
	ComponentLevels map[string]string `yaml:"component_levels,omitempty" json:"component_levels,omitempty" toml:"component_levels,omitempty"` //nolint:lll
}

// ApplyDefaults sets default values for optional logging configuration fields.
func (l *LoggingConfig) ApplyDefaults() {
	if l.DefaultLevel == "" {
		l.DefaultLevel = "info"
	}
	if l.ComponentLevels == nil {
		l.ComponentLevels = make(map[string]string)
	}
}

// Validate checks if the logging configuration is valid.
func (l *LoggingConfig) Validate() error {
	if l.DefaultLevel != "" {
		if _, valid := logger.ValidLogLevels[common.ToLowerWithTrim(l.DefaultLevel)]; !valid {
			return fmt.Errorf("logging.default_level: must be one of: debug, info, warn, error")
		}
	}

	for component, level := range l.ComponentLevels {
		if _, validComponent := common.AllComponents[common.ToLowerWithTrim(component)]; !validComponent {
			return fmt.Errorf("logging.component_levels: unknown component '%s'", component)
		}

		if _, valid := logger.ValidLogLevels[common.ToLowerWithTrim(level)]; !valid {
			return fmt.Errorf("logging.component_levels[%s]: must be one of: debug, info, warn, error", component)
		}
	}

	return nil
}

// GetComponentLevel returns the log level for a specific component.
// Falls back to DefaultLevel if no component-specific level is set.
func (l *LoggingConfig) GetComponentLevel(component string) string {
	if level, ok := l.ComponentLevels[component]; ok {
		return common.ToLowerWithTrim(level)
	}
	return common.ToLowerWithTrim(l.DefaultLevel)
}

// GetDefaultLevel returns the default log level.
func (l *LoggingConfig) GetDefaultLevel() string {
	return common.ToLowerWithTrim(l.DefaultLevel)
}

// IsDevelopment returns whether development mode is enabled.
func (l *LoggingConfig) IsDevelopment() bool {
	return l.Development
}

// MetricsConfig configures Prometheus metrics exposition.
type MetricsConfig struct {
	// Enabled controls whether metrics collection and HTTP endpoint are active
	Enabled bool `yaml:"enabled" json:"enabled" toml:"enabled"`

	// ListenAddress is the address to bind the metrics HTTP server to
	// Format: "host:port" or ":port"
	ListenAddress string `yaml:"listen_address" json:"listen_address" toml:"listen_address"`

	// Path is the HTTP path where metrics are exposed
	Path string `yaml:"path" json:"path" toml:"path"`
}

// ApplyDefaults sets default values for optional metrics configuration fields.
func (m *MetricsConfig) ApplyDefaults() {
	if m.ListenAddress == "" {
		m.ListenAddress = ":9090"
	}
	if m.Path == "" {
		m.Path = "/metrics"
	}
}

// Validate checks if the metrics configuration is valid.
func (m *MetricsConfig) Validate() error {
	if m.Enabled {
		if m.ListenAddress == "" {
			return fmt.Errorf("listen_address is required when metrics are enabled")
		}
		if m.Path == "" {
			return fmt.Errorf("path is required when metrics are enabled")
		}
		if m.Path[0] != '/' {
			return fmt.Errorf("path must start with '/'")
		}
	}
	return nil
}

// ApplyDefaults sets default values for optional configuration fields.
func (c *Config) ApplyDefaults() {
	c.DB.ApplyDefaults()
	c.Reducer.ApplyDefaults()

	if c.Maintenance != nil {
		c.Maintenance.ApplyDefaults()
	}

	if c.Retry == nil {
		c.Retry = &RetryConfig{}
	}
	c.Retry.ApplyDefaults()

	if c.AutoReduce != nil {
		c.AutoReduce.ApplyDefaults()
	}

	if c.RPC != nil {
		c.RPC.ApplyDefaults()
	}

	if c.Notifier == nil {
		c.Notifier = &NotifierConfig{}
	}
	c.Notifier.ApplyDefaults()

	for i := range c.Listeners {
		c.Listeners[i].ApplyDefaults()
	}

	if c.Logging == nil {
		c.Logging = &LoggingConfig{}
	}
	c.Logging.ApplyDefaults()

	if c.Metrics != nil {
		c.Metrics.ApplyDefaults()
	}
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if err := c.DB.Validate(); err != nil {
		return err
	}

	if c.Reducer.Blockchain == "" {
		return fmt.Errorf("reducer.blockchain is required")
	}

	if c.Reducer.Workers < 1 {
		return fmt.Errorf("reducer.workers must be at least 1")
	}

	if c.Reducer.CompactionThreshold < 1 {
		return fmt.Errorf("reducer.compaction_threshold must be at least 1")
	}

	if c.Maintenance != nil {
		if err := c.Maintenance.Validate(); err != nil {
			return err
		}
	}

	if c.Retry != nil {
		if err := c.Retry.Validate(); err != nil {
			return fmt.Errorf("retry: %w", err)
		}
	}

	if c.AutoReduce != nil {
		if err := c.AutoReduce.Validate(); err != nil {
			return fmt.Errorf("auto_reduce: %w", err)
		}
	}

	if c.RPC != nil {
		if c.RPC.URL == "" {
			return fmt.Errorf("rpc.url is required when rpc is configured")
		}
		if c.RPC.Retry != nil {
			if err := c.RPC.Retry.Validate(); err != nil {
				return fmt.Errorf("rpc.retry: %w", err)
			}
		}
	}

	if c.Notifier != nil {
		if err := c.Notifier.Validate(); err != nil {
			return fmt.Errorf("notifier: %w", err)
		}
	}

	if c.Logging != nil {
		if err := c.Logging.Validate(); err != nil {
			return err
		}
	}

	if c.Metrics != nil {
		if err := c.Metrics.Validate(); err != nil {
			return fmt.Errorf("metrics: %w", err)
		}
	}

	if len(c.Listeners) == 0 {
		return fmt.Errorf("at least one listener must be configured")
	}

	groups := make(map[string]bool)
	for i, listener := range c.Listeners {
		if listener.GroupID == "" {
			return fmt.Errorf("listener[%d]: group_id is required", i)
		}

		if groups[listener.GroupID] {
			return fmt.Errorf("listener[%d]: duplicate group_id '%s'", i, listener.GroupID)
		}
		groups[listener.GroupID] = true

		for _, family := range listener.Families {
			if !slices.Contains(validFamilies, family) {
				return fmt.Errorf("listener[%d] (%s): unknown family '%s', must be one of: %s",
					i, listener.GroupID, family, strings.Join(validFamilies, ", "))
			}
		}
	}

	return nil
}
