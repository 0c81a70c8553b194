package listener

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"

	"github.com/goran-ethernal/ChainReducer/internal/logger"
	"github.com/goran-ethernal/ChainReducer/pkg/model"
)

// ErrNoListeners is returned when a batch arrives for a key nothing listens on.
var ErrNoListeners = errors.New("no listeners registered")

// dispatchOrder reduces collections before the items whose creators are looked up from them.
var dispatchOrder = []model.Family{model.FamilyToken, model.FamilyItem, model.FamilyOwnership}

// Registry manages the listeners of every subscription and routes batches to them.
type Registry struct {
	mu sync.RWMutex

	// listeners maps a subscription to its listeners, one per family
	listeners map[Key]map[model.Family]Listener

	log *logger.Logger
}

// NewRegistry creates a new, empty Registry.
func NewRegistry(log *logger.Logger) *Registry {
	if log == nil {
		log = logger.NewNopLogger()
	}

	return &Registry{
		listeners: make(map[Key]map[model.Family]Listener),
		log:       log,
	}
}

// Register registers l for the subscription key. Only one listener per family
// is kept for a key; registering another one replaces it.
// The key is case-insensitive and will be stored in lowercase.
func (r *Registry) Register(key Key, l Listener) {
	r.mu.Lock()
	defer r.mu.Unlock()

	key = normalize(key)

	families, ok := r.listeners[key]
	if !ok {
		families = make(map[model.Family]Listener)
		r.listeners[key] = families
	}

	if _, exists := families[l.Family()]; exists {
		r.log.Infof("%s listener for %s already registered. It will be overwritten.", l.Family(), key)
	}

	families[l.Family()] = l
}

// Listeners returns the listeners of key in dispatch order.
// The lookup is case-insensitive.
func (r *Registry) Listeners(key Key) []Listener {
	r.mu.RLock()
	defer r.mu.RUnlock()

	families := r.listeners[normalize(key)]

	listeners := make([]Listener, 0, len(families))
	for _, family := range dispatchOrder {
		if l, ok := families[family]; ok {
			listeners = append(listeners, l)
		}
	}

	return listeners
}

// Keys returns the registered subscriptions in a stable order.
func (r *Registry) Keys() []Key {
	r.mu.RLock()
	defer r.mu.RUnlock()

	keys := make([]Key, 0, len(r.listeners))
	for k := range r.listeners {
		keys = append(keys, k)
	}

	slices.SortFunc(keys, func(a, b Key) int {
		return strings.Compare(a.String(), b.String())
	})

	return keys
}

// Dispatch hands the batch to every listener of its subscription. Each
// listener sees all records and picks the ones of its family. Listeners run
// one after the other; the errors of all of them are returned joined.
func (r *Registry) Dispatch(ctx context.Context, batch Batch) error {
	listeners := r.Listeners(batch.Key())
	if len(listeners) == 0 {
		return fmt.Errorf("%w for %s", ErrNoListeners, batch.Key())
	}

	var errs []error
	for _, l := range listeners {
		if err := l.HandleBatch(ctx, batch.Records); err != nil {
			errs = append(errs, fmt.Errorf("%s listener of %s: %w", l.Family(), batch.Key(), err))
		}
	}

	return errors.Join(errs...)
}

func normalize(key Key) Key {
	return Key{
		GroupID:    strings.ToLower(strings.TrimSpace(key.GroupID)),
		Blockchain: strings.ToLower(strings.TrimSpace(key.Blockchain)),
	}
}
