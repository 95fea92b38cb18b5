package widget

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
)

// CommandInit is the only command the namespace understands.
const CommandInit = "init"

// Command is one queued call, e.g. ("init", {"portalId": "..."}).
type Command struct {
	Name   string
	Config map[string]any
}

// Factory builds a widget from a raw init config.
type Factory func(raw map[string]any) (*Widget, error)

// Namespace is the page-global entry point host snippets talk to. Before the
// widget code has loaded, pushed commands are queued; Load installs the
// factory and replays the queue in order. Every init after the first returns
// the same instance and ignores its config.
type Namespace struct {
	mu       sync.Mutex
	queue    []Command
	factory  Factory
	instance *Widget
	log      *slog.Logger
}

// NewNamespace returns an unloaded namespace.
func NewNamespace(log *slog.Logger) *Namespace {
	if log == nil {
		log = slog.Default()
	}
	return &Namespace{log: log.With("component", "namespace")}
}

// Push queues a command or, once loaded, runs it immediately. Unknown
// commands are dropped silently.
func (ns *Namespace) Push(name string, cfg map[string]any) (*Widget, error) {
	ns.mu.Lock()
	defer ns.mu.Unlock()
	if ns.factory == nil {
		ns.queue = append(ns.queue, Command{Name: name, Config: cfg})
		return nil, nil
	}
	return ns.dispatchLocked(Command{Name: name, Config: cfg})
}

// Load installs factory and drains the queue FIFO. The lock is held for the
// whole drain, so direct calls made meanwhile observe the queued inits first.
// Failures are collected and draining continues; a failed init leaves the
// namespace without an instance so a later init may succeed.
func (ns *Namespace) Load(factory Factory) error {
	if factory == nil {
		return errors.New("namespace: nil factory")
	}
	ns.mu.Lock()
	defer ns.mu.Unlock()
	if ns.factory != nil {
		return errors.New("namespace: already loaded")
	}
	ns.factory = factory

	queued := ns.queue
	ns.queue = nil
	ns.log.Debug("processing queued commands", "count", len(queued))

	var errs []error
	for i, cmd := range queued {
		if _, err := ns.dispatchLocked(cmd); err != nil {
			errs = append(errs, fmt.Errorf("queued command %d (%s): %w", i, cmd.Name, err))
		}
	}
	return errors.Join(errs...)
}

// Init returns the page's widget, creating it on the first call.
func (ns *Namespace) Init(cfg map[string]any) (*Widget, error) {
	return ns.Push(CommandInit, cfg)
}

func (ns *Namespace) dispatchLocked(cmd Command) (*Widget, error) {
	if cmd.Name != CommandInit {
		ns.log.Debug("ignoring unknown command", "command", cmd.Name)
		return nil, nil
	}
	if ns.instance != nil {
		return ns.instance, nil
	}
	w, err := ns.factory(cmd.Config)
	if err != nil {
		return nil, err
	}
	ns.instance = w
	return w, nil
}

// Instance returns the widget, or nil before the first successful init.
func (ns *Namespace) Instance() *Widget {
	ns.mu.Lock()
	defer ns.mu.Unlock()
	return ns.instance
}

// Loaded reports whether Load has run.
func (ns *Namespace) Loaded() bool {
	ns.mu.Lock()
	defer ns.mu.Unlock()
	return ns.factory != nil
}

// Pending returns the number of queued commands.
func (ns *Namespace) Pending() int {
	ns.mu.Lock()
	defer ns.mu.Unlock()
	return len(ns.queue)
}

// PageFactory builds widgets on page with the deployment defaults applied.
func PageFactory(page *Page, d Deployment, opts ...Option) Factory {
	return func(raw map[string]any) (*Widget, error) {
		return New(page, ParseConfig(raw, d), opts...)
	}
}
