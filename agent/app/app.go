// Package app wires the bus, agents and transport into one running service.
package app

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/tanpawarit/chative-travel/agent/agents/coordinator"
	"github.com/tanpawarit/chative-travel/agent/agents/gateway"
	"github.com/tanpawarit/chative-travel/agent/agents/router"
	"github.com/tanpawarit/chative-travel/agent/agents/specialist"
	"github.com/tanpawarit/chative-travel/agent/bus"
	"github.com/tanpawarit/chative-travel/agent/classifier"
	contractx "github.com/tanpawarit/chative-travel/agent/contract"
	"github.com/tanpawarit/chative-travel/agent/ledger"
	llmx "github.com/tanpawarit/chative-travel/agent/llm"
	"github.com/tanpawarit/chative-travel/agent/metrics"
	promptx "github.com/tanpawarit/chative-travel/agent/prompt"
	statex "github.com/tanpawarit/chative-travel/agent/state"
	"github.com/tanpawarit/chative-travel/agent/tool"
	"github.com/tanpawarit/chative-travel/agent/transport"
	configx "github.com/tanpawarit/chative-travel/pkg/config"
	logx "github.com/tanpawarit/chative-travel/pkg/logger"
	openrouterx "github.com/tanpawarit/chative-travel/pkg/openrouter"
)

type ClassifierConfig struct {
	// KeywordTable is an optional YAML or JSON file replacing the built-in table.
	KeywordTable string `split_words:"true"`
}

// Config gathers every component's settings. Each field is read with its
// own env prefix.
type Config struct {
	HTTP        transport.Config
	Bus         bus.Config
	Session     statex.Config
	Router      router.Config
	Coordinator coordinator.Config
	Specialist  specialist.Config
	Classifier  ClassifierConfig
	LLM         llmx.Config
	Ledger      ledger.Config
}

func LoadConfig() (Config, error) {
	var cfg Config
	loaders := []func() error{
		load("HTTP", &cfg.HTTP),
		load("BUS", &cfg.Bus),
		load("SESSION", &cfg.Session),
		load("ROUTER", &cfg.Router),
		load("COORDINATOR", &cfg.Coordinator),
		load("SPECIALIST", &cfg.Specialist),
		load("CLASSIFIER", &cfg.Classifier),
		load("LLM", &cfg.LLM),
		load("LEDGER", &cfg.Ledger),
	}
	for _, fn := range loaders {
		if err := fn(); err != nil {
			return Config{}, err
		}
	}
	return cfg, nil
}

func load[T any](prefix string, dst *T) func() error {
	return func() error {
		v, err := configx.New[T](prefix)
		if err != nil {
			return fmt.Errorf("load %s config: %w", prefix, err)
		}
		*dst = *v
		return nil
	}
}

// Option overrides a collaborator, mostly for tests.
type Option func(*options)

type options struct {
	outbound   gateway.Outbound
	registerer prometheus.Registerer
	gatherer   prometheus.Gatherer
	simulator  *tool.Simulator
	ledger     ledger.Ledger
}

// WithOutbound replaces the WebSocket hub as the gateway's writer.
func WithOutbound(out gateway.Outbound) Option {
	return func(o *options) { o.outbound = out }
}

func WithRegistry(reg *prometheus.Registry) Option {
	return func(o *options) {
		o.registerer = reg
		o.gatherer = reg
	}
}

func WithSimulator(sim *tool.Simulator) Option {
	return func(o *options) { o.simulator = sim }
}

func WithLedger(l ledger.Ledger) Option {
	return func(o *options) { o.ledger = l }
}

type App struct {
	Bus    *bus.Runtime
	Store  *statex.MemoryStore
	Hub    *transport.Hub
	Server *transport.Server

	ledger ledger.Ledger
	logger zerolog.Logger
}

// New builds and starts the bus with every agent type registered.
func New(ctx context.Context, cfg Config, opts ...Option) (*App, error) {
	o := options{}
	for _, opt := range opts {
		opt(&o)
	}
	if o.registerer == nil {
		reg := prometheus.NewRegistry()
		o.registerer, o.gatherer = reg, reg
	}
	if o.simulator == nil {
		o.simulator = tool.NewSimulator()
	}

	logger := logx.Component("app")
	store := statex.NewMemoryStore(cfg.Session)

	m, err := metrics.New(o.registerer, store.Len)
	if err != nil {
		return nil, fmt.Errorf("register metrics: %w", err)
	}
	rt := bus.New(cfg.Bus, bus.WithObserver(m))

	if o.ledger == nil {
		o.ledger, err = ledger.New(ctx, cfg.Ledger)
		if err != nil {
			return nil, err
		}
	}

	a := &App{
		Bus:    rt,
		Store:  store,
		Hub:    transport.NewHub(cfg.HTTP.WriteTimeout),
		ledger: o.ledger,
		logger: logger,
	}
	if o.outbound == nil {
		o.outbound = a.Hub
	}

	if err := a.register(ctx, cfg, m, o); err != nil {
		_ = a.ledger.Close()
		return nil, err
	}
	if err := rt.Start(); err != nil {
		_ = a.ledger.Close()
		return nil, err
	}

	a.Server, err = transport.NewServer(rt, a.Hub, o.gatherer, cfg.HTTP)
	if err != nil {
		_ = a.Close()
		return nil, err
	}
	return a, nil
}

func (a *App) register(ctx context.Context, cfg Config, m *metrics.Metrics, o options) error {
	prompts := promptx.LoadPromptSet()

	cls, models, err := buildModels(ctx, cfg, prompts)
	if err != nil {
		return err
	}

	rtr, err := router.New(a.Bus, a.Store, cls, cfg.Router, router.WithObserver(m))
	if err != nil {
		return err
	}
	coord, err := coordinator.New(a.Bus, cfg.Coordinator, coordinator.WithObserver(m))
	if err != nil {
		return err
	}
	gw, err := gateway.New(a.Bus, o.outbound)
	if err != nil {
		return err
	}
	registry, err := specialist.Build(ctx, models, prompts, o.simulator)
	if err != nil {
		return err
	}

	// Agents here hold no per-session fields, so one value backs every instance.
	agents := map[contractx.AgentType]contractx.Agent{
		contractx.AgentTypeUserProxy:   gw,
		contractx.AgentTypeRouter:      rtr,
		contractx.AgentTypeCoordinator: coord,
	}
	for _, t := range registry.Types() {
		worker, _ := registry.Worker(t)
		agent, err := specialist.NewAgent(a.Bus, worker, cfg.Specialist, specialist.WithLedger(a.ledger))
		if err != nil {
			return err
		}
		agents[t] = agent
	}

	for agentType, agent := range agents {
		if err := a.Bus.Register(agentType, shared(agent), agentType); err != nil {
			return err
		}
	}
	a.logger.Info().Int("specialists", len(registry.Types())).Bool("llm", cfg.LLM.Enabled()).Msg("agents registered")
	return nil
}

func shared(agent contractx.Agent) bus.Factory {
	return func(contractx.AgentID) (contractx.Agent, error) { return agent, nil }
}

// buildModels picks the classifier and specialist models. Without an API key
// everything runs on the keyword table and the simulators.
func buildModels(ctx context.Context, cfg Config, prompts promptx.PromptSet) (contractx.Classifier, specialist.Models, error) {
	table := classifier.DefaultKeywordTable()
	if path := strings.TrimSpace(cfg.Classifier.KeywordTable); path != "" {
		var err error
		if table, err = classifier.LoadKeywordTable(path); err != nil {
			return nil, specialist.Models{}, err
		}
	}
	keyword, err := classifier.NewKeyword(table)
	if err != nil {
		return nil, specialist.Models{}, err
	}
	if !cfg.LLM.Enabled() {
		return keyword, specialist.Models{}, nil
	}

	routerCfg := cfg.LLM.OpenRouterFor(contractx.AgentTypeRouter)
	routerModel, err := routerCfg.New(ctx)
	if err != nil {
		return nil, specialist.Models{}, err
	}
	cls, err := classifier.NewLLM(ctx, routerModel, prompts.Router)
	if err != nil {
		return nil, specialist.Models{}, err
	}

	specCfg := cfg.LLM.OpenRouterFor(contractx.AgentTypeDefault)
	specModel, err := specCfg.New(ctx)
	if err != nil {
		return nil, specialist.Models{}, err
	}
	models := specialist.Models{Tools: specModel, ChatModel: specCfg.Model}
	if client := openrouterx.NewClient(specCfg); client != nil {
		models.Chat = &client.Chat.Completions
	}
	return cls, models, nil
}

// Run serves HTTP until ctx is done.
func (a *App) Run(ctx context.Context) error {
	err := a.Server.Run(ctx)
	return errors.Join(err, a.Close())
}

func (a *App) Close() error {
	return errors.Join(a.Bus.Close(), a.ledger.Close())
}
