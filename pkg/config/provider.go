package config

import (
	"fmt"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/ajharbinger/dealflow-engine/internal/logger"
	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// RulesProvider publishes immutable Rules snapshots. Snapshots come from the
// defaults overlaid with an optional YAML rules file and DEALFLOW_* env vars
// (offer.arv_multiplier is DEALFLOW_OFFER_ARV_MULTIPLIER).
//
// Settings merge key by key, so a file only lists what it changes. The
// markets table is the exception: a file that defines markets replaces the
// default markets, and markets have no env overlay.
type RulesProvider struct {
	v       *viper.Viper
	path    string
	current atomic.Pointer[Rules]
	logger  logger.Logger

	mu        sync.Mutex
	listeners []func(Rules)
}

// NewRulesProvider loads the rules file at path. An empty path serves the
// defaults. An invalid file is an error at startup.
func NewRulesProvider(path string, log logger.Logger) (*RulesProvider, error) {
	if log == nil {
		log = logger.NopLogger{}
	}
	v := viper.New()
	v.SetEnvPrefix("DEALFLOW")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	if err := registerDefaults(v); err != nil {
		return nil, err
	}

	p := &RulesProvider{v: v, path: path, logger: log}
	if path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("yaml")
	}

	rules, err := p.load()
	if err != nil {
		return nil, err
	}
	p.current.Store(&rules)
	return p, nil
}

// StaticRules serves a fixed snapshot; used by tests and the CLI
func StaticRules(r Rules) *RulesProvider {
	p := &RulesProvider{logger: logger.NopLogger{}}
	p.current.Store(&r)
	return p
}

// Current returns the active snapshot
func (p *RulesProvider) Current() Rules {
	return *p.current.Load()
}

// Path returns the rules file in use, or "" when serving defaults
func (p *RulesProvider) Path() string {
	return p.path
}

// OnChange registers fn to run after every accepted reload
func (p *RulesProvider) OnChange(fn func(Rules)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.listeners = append(p.listeners, fn)
}

// Watch hot-reloads the rules file whenever it changes on disk
func (p *RulesProvider) Watch() {
	if p.v == nil || p.path == "" {
		return
	}
	p.v.OnConfigChange(func(e fsnotify.Event) {
		p.logger.Info("🔄 Rules file changed", "file", e.Name, "op", e.Op.String())
		if err := p.Reload(); err != nil {
			p.logger.Error("Rejected rules reload, keeping previous snapshot", err)
		}
	})
	p.v.WatchConfig()
}

// Reload re-reads the rules file. On failure the previous snapshot stays active.
func (p *RulesProvider) Reload() error {
	if p.v == nil {
		return nil
	}
	rules, err := p.load()
	if err != nil {
		return err
	}
	p.current.Store(&rules)

	p.mu.Lock()
	listeners := append([]func(Rules){}, p.listeners...)
	p.mu.Unlock()
	for _, fn := range listeners {
		fn(rules)
	}
	p.logger.Info("✅ Rules reloaded", "markets", len(rules.Markets))
	return nil
}

func (p *RulesProvider) load() (Rules, error) {
	rules := DefaultRules()
	defaultMarkets := rules.Markets
	rules.Markets = nil
	if p.path != "" {
		if err := p.v.ReadInConfig(); err != nil {
			return Rules{}, fmt.Errorf("read rules file %s: %w", p.path, err)
		}
	}
	if err := p.v.Unmarshal(&rules); err != nil {
		return Rules{}, fmt.Errorf("decode rules: %w", err)
	}
	if len(rules.Markets) == 0 {
		rules.Markets = defaultMarkets
	}
	if err := rules.Validate().Err(); err != nil {
		return Rules{}, err
	}
	return rules, nil
}

// registerDefaults makes every default key known to viper; AutomaticEnv
// only consults keys viper already knows. Markets are left out.
func registerDefaults(v *viper.Viper) error {
	raw, err := DefaultRules().YAML()
	if err != nil {
		return err
	}
	var tree map[string]interface{}
	if err := yaml.Unmarshal(raw, &tree); err != nil {
		return fmt.Errorf("flatten default rules: %w", err)
	}
	delete(tree, "markets")
	setDefaults(v, "", tree)
	return nil
}

func setDefaults(v *viper.Viper, prefix string, node map[string]interface{}) {
	for k, val := range node {
		key := k
		if prefix != "" {
			key = prefix + "." + k
		}
		if child, ok := val.(map[string]interface{}); ok && len(child) > 0 {
			setDefaults(v, key, child)
			continue
		}
		v.SetDefault(key, val)
	}
}

// YAML renders the rules as a YAML document
func (r Rules) YAML() ([]byte, error) {
	out, err := yaml.Marshal(r)
	if err != nil {
		return nil, fmt.Errorf("marshal rules: %w", err)
	}
	return out, nil
}
