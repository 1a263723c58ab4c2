package llm

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/samsaffron/tutor/internal/config"
)

// gatewayCreditCardMessage is the upstream gateway error for accounts that
// have not activated billing.
const gatewayCreditCardMessage = "AI Gateway requires a valid credit card on file to service requests"

// IsGatewayActivationError reports whether err is the gateway's
// missing-credit-card failure.
func IsGatewayActivationError(err error) bool {
	return err != nil && strings.Contains(err.Error(), gatewayCreditCardMessage)
}

// ModelRegistry maps the chat model ids offered to users onto engines.
// Providers are built lazily on first use.
type ModelRegistry struct {
	mu      sync.Mutex
	specs   map[string]string
	engines map[string]*Engine
	cfg     *config.Config
	logger  *zap.Logger
}

// NewModelRegistry builds a registry from cfg.Models.Chat plus the title
// model, registered under TitleModelID.
func NewModelRegistry(cfg *config.Config, logger *zap.Logger) *ModelRegistry {
	if logger == nil {
		logger = zap.NewNop()
	}
	r := &ModelRegistry{
		specs:   make(map[string]string),
		engines: make(map[string]*Engine),
		cfg:     cfg,
		logger:  logger,
	}
	if cfg != nil {
		for id, spec := range cfg.Models.Chat {
			r.specs[id] = spec
		}
		if cfg.Models.Title != "" {
			r.specs[TitleModelID] = cfg.Models.Title
		}
	}
	return r
}

// TitleModelID is the registry id of the model that names new chats.
const TitleModelID = "title-model"

// Register binds id to an already constructed provider.
func (r *ModelRegistry) Register(id string, provider Provider) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.specs[id] = provider.Name()
	r.engines[id] = NewEngine(provider, r.logger)
}

// Has reports whether id is a selectable chat model.
func (r *ModelRegistry) Has(id string) bool {
	if id == TitleModelID {
		return false
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.specs[id]
	return ok
}

// IDs returns the selectable chat model ids in sorted order.
func (r *ModelRegistry) IDs() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	ids := make([]string, 0, len(r.specs))
	for id := range r.specs {
		if id != TitleModelID {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids
}

// Spec returns the provider:model spec behind id.
func (r *ModelRegistry) Spec(id string) (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	spec, ok := r.specs[id]
	return spec, ok
}

// Engine returns the engine for id, constructing its provider on first use.
func (r *ModelRegistry) Engine(id string) (*Engine, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if e, ok := r.engines[id]; ok {
		return e, nil
	}
	spec, ok := r.specs[id]
	if !ok {
		return nil, fmt.Errorf("unknown model: %s", id)
	}
	provider, err := NewProvider(spec, r.cfg)
	if err != nil {
		return nil, fmt.Errorf("model %s: %w", id, err)
	}
	e := NewEngine(provider, r.logger.With(zap.String("model_id", id)))
	r.engines[id] = e
	return e, nil
}
