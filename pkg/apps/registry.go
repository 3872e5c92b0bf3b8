package apps

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/gojango/gojango/pkg/core"
	"github.com/gojango/gojango/pkg/modules"
	"github.com/gojango/gojango/pkg/signals"
	"github.com/gojango/gojango/pkg/telemetry"
)

// Populate phases, used in logs, metrics and span names.
const (
	PhaseApps   = "apps"
	PhaseModels = "models"
	PhaseReady  = "ready"
)

type modelsKey struct {
	autoCreated bool
	swapped     bool
}

type pendingKey struct {
	label string
	model string
}

// Registry tracks the installed app units and their models. It is
// populated exactly once by Populate, in three phases: app configs, models,
// then ready hooks.
type Registry struct {
	modules *modules.Table
	metrics *telemetry.Metrics
	tracer  *telemetry.Tracer

	// mu guards loading, err and readyCh. It is never held while app code runs.
	mu      sync.Mutex
	loading bool
	err     error
	readyCh chan struct{}

	configsMu sync.RWMutex
	labels    []string
	configs   map[string]*AppConfig
	stored    [][]string

	modelsMu  sync.Mutex
	allModels map[string]*ModelTable
	pending   map[pendingKey][]func(*Model)

	appsReady   atomic.Bool
	modelsReady atomic.Bool
	ready       atomic.Bool

	cacheMu     sync.Mutex
	modelsCache map[modelsKey][]*Model
}

// Option configures a Registry.
type Option func(*Registry)

// WithModules resolves entries against table instead of modules.Default.
func WithModules(table *modules.Table) Option {
	return func(r *Registry) {
		r.modules = table
	}
}

// WithMetrics records populate metrics into m.
func WithMetrics(m *telemetry.Metrics) Option {
	return func(r *Registry) {
		r.metrics = m
	}
}

// WithTracer traces populate runs with t.
func WithTracer(t *telemetry.Tracer) Option {
	return func(r *Registry) {
		r.tracer = t
	}
}

// NewRegistry creates an empty, unpopulated registry.
func NewRegistry(opts ...Option) *Registry {
	r := &Registry{
		readyCh:     make(chan struct{}),
		configs:     make(map[string]*AppConfig),
		allModels:   make(map[string]*ModelTable),
		pending:     make(map[pendingKey][]func(*Model)),
		modelsCache: make(map[modelsKey][]*Model),
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.modules == nil {
		r.modules = modules.Default
	}
	if r.tracer == nil {
		r.tracer = telemetry.DefaultTracer()
	}
	return r
}

// Default is the process-wide registry.
var Default = NewRegistry(WithMetrics(telemetry.DefaultMetrics()))

// Populate loads the app configs and models of entries and runs their ready
// hooks. It is idempotent once the registry is ready but not reentrant: a
// call made while another is in flight, from a ready hook or another
// goroutine, fails with a reentrancy error. After a failed run the registry
// stays in the loading state and every later call reports the failure.
func (r *Registry) Populate(ctx context.Context, entries []Entry) error {
	if r.ready.Load() {
		return nil
	}

	r.mu.Lock()
	if r.ready.Load() {
		r.mu.Unlock()
		return nil
	}
	if r.loading {
		prior := r.err
		r.mu.Unlock()
		return core.NewReentrancyError("populate() isn't reentrant", prior)
	}
	r.loading = true
	r.mu.Unlock()

	runID := uuid.New().String()
	ctx, span := r.tracer.StartPopulateSpan(ctx, runID, len(entries))
	defer span.End()

	logCtx := telemetry.Component("apps").With().Str("run_id", runID)
	if traceID := telemetry.TraceID(ctx); traceID != "" {
		logCtx = logCtx.Str("trace_id", traceID).Str("span_id", telemetry.SpanID(ctx))
	}
	logger := logCtx.Logger()
	logger.Debug().Int("entries", len(entries)).Msg("Populating app registry")

	if err := r.populate(ctx, entries, logger); err != nil {
		r.mu.Lock()
		r.err = err
		r.mu.Unlock()

		r.metrics.RecordPopulate("failure")
		r.metrics.RecordError(errorKind(err))
		telemetry.RecordError(span, err)
		logger.Error().Err(err).Msg("App registry populate failed")
		return err
	}

	labels := r.labelsSnapshot()
	r.metrics.RecordPopulate("success")
	telemetry.SetAttributes(span, telemetry.AttrAppCount.Int(len(labels)))
	telemetry.RecordSuccess(span)
	logger.Info().Int("apps", len(labels)).Msg("App registry ready")

	if err := signals.RegistryReady.Send(ctx, "apps", map[string]any{
		"run_id": runID,
		"apps":   labels,
	}); err != nil {
		logger.Warn().Err(err).Msg("registry_ready receiver failed")
	}
	return nil
}

func (r *Registry) populate(ctx context.Context, entries []Entry, logger zerolog.Logger) error {
	// Phase 1: app configs.
	timer := telemetry.NewTimer()
	_, phaseSpan := r.tracer.StartPhaseSpan(ctx, PhaseApps)

	labels := make([]string, 0, len(entries))
	configs := make(map[string]*AppConfig, len(entries))
	var dupLabels []string
	for _, entry := range entries {
		cfg := entry.unit
		if cfg == nil {
			if entry.name == "" {
				phaseSpan.End()
				return core.NewConfigurationError("Empty entry in INSTALLED_APPS.")
			}
			var err error
			cfg, err = createFromEntry(r.modules, entry.name)
			if err != nil {
				phaseSpan.End()
				return err
			}
		}

		if _, dup := configs[cfg.Label]; dup {
			if !slices.Contains(dupLabels, cfg.Label) {
				dupLabels = append(dupLabels, cfg.Label)
			}
			continue
		}
		labels = append(labels, cfg.Label)
		configs[cfg.Label] = cfg
	}

	if len(dupLabels) > 0 {
		phaseSpan.End()
		return core.NewConfigurationError("Application labels aren't unique, duplicates: %s",
			strings.Join(dupLabels, ", ")).WithKey(dupLabels[0])
	}

	if dups := duplicateNames(labels, configs); len(dups) > 0 {
		phaseSpan.End()
		return core.NewConfigurationError("Application names aren't unique, duplicates: %s", strings.Join(dups, ", ")).WithKey(dups[0])
	}

	for _, label := range labels {
		configs[label].Apps = r
		logger.Debug().Str("app_label", label).Str("app_name", configs[label].Name).Msg("App config loaded")
	}

	r.configsMu.Lock()
	r.labels = labels
	r.configs = configs
	r.configsMu.Unlock()

	r.appsReady.Store(true)
	r.metrics.SetAppUnits(len(labels))
	r.metrics.RecordPhase(PhaseApps, timer.Duration())
	phaseSpan.End()

	// Phase 2: models.
	timer = telemetry.NewTimer()
	_, phaseSpan = r.tracer.StartPhaseSpan(ctx, PhaseModels)
	for _, label := range labels {
		if err := configs[label].ImportModels(); err != nil {
			phaseSpan.End()
			return err
		}
	}
	r.ClearCache()
	r.modelsReady.Store(true)
	r.metrics.RecordPhase(PhaseModels, timer.Duration())
	phaseSpan.End()

	// Phase 3: ready hooks.
	timer = telemetry.NewTimer()
	ctx, phaseSpan = r.tracer.StartPhaseSpan(ctx, PhaseReady)
	defer phaseSpan.End()

	for _, label := range labels {
		cfg := configs[label]
		if err := cfg.ready(ctx); err != nil {
			return fmt.Errorf("ready hook of app '%s' failed: %w", label, err)
		}
		telemetry.AddAppEvent(phaseSpan, label, "app.ready", cfg.VerboseName)
		if err := signals.AppReady.Send(ctx, "apps", map[string]any{"app_label": label}); err != nil {
			logger.Warn().Err(err).Str("app_label", label).Msg("app_ready receiver failed")
		}
	}

	r.mu.Lock()
	r.ready.Store(true)
	close(r.readyCh)
	r.mu.Unlock()

	r.metrics.RecordPhase(PhaseReady, timer.Duration())
	return nil
}

// duplicateNames returns every canonical name used by more than one app.
func duplicateNames(labels []string, configs map[string]*AppConfig) []string {
	counts := make(map[string]int, len(labels))
	var order []string
	for _, label := range labels {
		name := configs[label].Name
		if counts[name] == 0 {
			order = append(order, name)
		}
		counts[name]++
	}

	var dups []string
	for _, name := range order {
		if counts[name] > 1 {
			dups = append(dups, name)
		}
	}
	return dups
}

func errorKind(err error) string {
	switch {
	case core.IsReentrancy(err):
		return string(core.KindReentrancy)
	case core.IsConfiguration(err):
		return string(core.KindConfiguration)
	case core.IsImport(err):
		return string(core.KindImport)
	case core.IsNotReady(err):
		return string(core.KindNotReady)
	default:
		return "other"
	}
}

// AppsReady reports whether app configs are loaded.
func (r *Registry) AppsReady() bool { return r.appsReady.Load() }

// ModelsReady reports whether models are loaded.
func (r *Registry) ModelsReady() bool { return r.modelsReady.Load() }

// Ready reports whether populate completed.
func (r *Registry) Ready() bool { return r.ready.Load() }

// Err returns the error of the failed populate run, if any.
func (r *Registry) Err() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.err
}

// ReadyChan returns a channel closed once the registry is ready.
func (r *Registry) ReadyChan() <-chan struct{} {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.readyCh
}

// WaitReady blocks until the registry is ready or ctx is done.
func (r *Registry) WaitReady(ctx context.Context) error {
	select {
	case <-r.ReadyChan():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (r *Registry) checkAppsReady() error {
	if !r.appsReady.Load() {
		return core.NewNotReadyError("Apps aren't loaded yet.")
	}
	return nil
}

func (r *Registry) checkModelsReady() error {
	if !r.modelsReady.Load() {
		return core.NewNotReadyError("Models aren't loaded yet.")
	}
	return nil
}

func (r *Registry) labelsSnapshot() []string {
	r.configsMu.RLock()
	defer r.configsMu.RUnlock()
	out := make([]string, len(r.labels))
	copy(out, r.labels)
	return out
}

// GetAppConfigs returns the app configs in INSTALLED_APPS order.
func (r *Registry) GetAppConfigs() ([]*AppConfig, error) {
	if err := r.checkAppsReady(); err != nil {
		return nil, err
	}

	r.configsMu.RLock()
	defer r.configsMu.RUnlock()

	out := make([]*AppConfig, 0, len(r.labels))
	for _, label := range r.labels {
		out = append(out, r.configs[label])
	}
	return out, nil
}

// GetAppConfig returns the app config for label.
func (r *Registry) GetAppConfig(label string) (*AppConfig, error) {
	if err := r.checkAppsReady(); err != nil {
		return nil, err
	}

	r.configsMu.RLock()
	defer r.configsMu.RUnlock()

	if cfg, ok := r.configs[label]; ok {
		return cfg, nil
	}

	msg := fmt.Sprintf("No installed app with label '%s'.", label)
	for _, l := range r.labels {
		if r.configs[l].Name == label {
			msg += fmt.Sprintf(" Did you mean '%s'?", l)
			break
		}
	}
	return nil, core.NewLookupError(label, "%s", msg)
}

// IsInstalled reports whether an app with the given canonical name is
// installed.
func (r *Registry) IsInstalled(name string) (bool, error) {
	if err := r.checkAppsReady(); err != nil {
		return false, err
	}

	r.configsMu.RLock()
	defer r.configsMu.RUnlock()

	for _, label := range r.labels {
		if r.configs[label].Name == name {
			return true, nil
		}
	}
	return false, nil
}

// GetModels returns the models of every installed app. Results are memoized
// per argument pair until ClearCache.
func (r *Registry) GetModels(includeAutoCreated, includeSwapped bool) ([]*Model, error) {
	if err := r.checkModelsReady(); err != nil {
		return nil, err
	}

	key := modelsKey{autoCreated: includeAutoCreated, swapped: includeSwapped}

	r.cacheMu.Lock()
	defer r.cacheMu.Unlock()

	if cached, ok := r.modelsCache[key]; ok {
		r.metrics.RecordModelQuery(true)
		return append([]*Model(nil), cached...), nil
	}
	r.metrics.RecordModelQuery(false)

	configs, err := r.GetAppConfigs()
	if err != nil {
		return nil, err
	}

	var result []*Model
	for _, cfg := range configs {
		if cfg.models == nil {
			continue
		}
		result = append(result, filterModels(cfg.models.All(), includeAutoCreated, includeSwapped)...)
	}
	r.modelsCache[key] = result
	return append([]*Model(nil), result...), nil
}

// GetModel returns a model by app label and model name. A single
// "label.Model" argument is accepted with an empty modelName.
func (r *Registry) GetModel(appLabel, modelName string) (*Model, error) {
	if err := r.checkModelsReady(); err != nil {
		return nil, err
	}

	if modelName == "" {
		label, name, ok := strings.Cut(appLabel, ".")
		if !ok {
			return nil, core.NewLookupError(appLabel, "Model '%s' must be of the form 'app_label.ModelName'.", appLabel)
		}
		appLabel, modelName = label, name
	}

	cfg, err := r.GetAppConfig(appLabel)
	if err != nil {
		return nil, err
	}
	return cfg.GetModel(modelName)
}

// modelTable returns the append-only model table for label, creating it.
func (r *Registry) modelTable(label string) *ModelTable {
	r.modelsMu.Lock()
	defer r.modelsMu.Unlock()
	return r.modelTableLocked(label)
}

// modelTableLocked is modelTable for callers holding modelsMu.
func (r *Registry) modelTableLocked(label string) *ModelTable {
	t, ok := r.allModels[label]
	if !ok {
		t = newModelTable()
		r.allModels[label] = t
	}
	return t
}

// RegisterModel records a model of app label. It may be called at any time,
// before or after populate. Registering a different model under a taken
// name is an error; registering the same model again only warns.
func (r *Registry) RegisterModel(label string, model *Model) error {
	if model == nil || model.Name == "" {
		return core.NewConfigurationError("Model registered in application '%s' has no name.", label).WithKey(label)
	}
	if model.AppLabel == "" {
		model.AppLabel = label
	}

	// The add and the pending drain share modelsMu with OnModel.
	r.modelsMu.Lock()
	existing, added := r.modelTableLocked(label).add(model)
	var pending []func(*Model)
	if added {
		key := pendingKey{label: label, model: model.ModelName()}
		pending = r.pending[key]
		delete(r.pending, key)
	}
	r.modelsMu.Unlock()

	if !added {
		if existing.sameAs(model) {
			telemetry.Component("apps").Warn().
				Str("app_label", label).
				Str("model", model.Name).
				Msgf("Model '%s.%s' was already registered. Reloading models is not advised "+
					"as it can lead to inconsistencies, most notably with related models.", label, model.ModelName())
			return nil
		}
		return core.NewConfigurationError("Conflicting '%s' models in application '%s': %s and %s.",
			model.ModelName(), label, existing, model).WithKey(label)
	}

	r.metrics.RecordModelRegistered(label)
	for _, fn := range pending {
		fn(model)
	}
	r.ClearCache()

	if err := signals.ModelRegistered.Send(context.Background(), "apps", map[string]any{
		"app_label": label,
		"model":     model.Name,
	}); err != nil {
		telemetry.Component("apps").Warn().Err(err).Str("model", model.String()).Msg("model_registered receiver failed")
	}
	return nil
}

// OnModel runs fn with the model label.name once it is registered, right
// away if it already is.
func (r *Registry) OnModel(label, name string, fn func(*Model)) {
	r.modelsMu.Lock()
	if m, ok := r.modelTableLocked(label).Get(name); ok {
		r.modelsMu.Unlock()
		fn(m)
		return
	}
	key := pendingKey{label: label, model: strings.ToLower(name)}
	r.pending[key] = append(r.pending[key], fn)
	r.modelsMu.Unlock()
}

// PendingOperations returns the "label.model" keys still awaited by OnModel.
func (r *Registry) PendingOperations() []string {
	r.modelsMu.Lock()
	defer r.modelsMu.Unlock()

	out := make([]string, 0, len(r.pending))
	for k := range r.pending {
		out = append(out, k.label+"."+k.model)
	}
	return out
}

// ClearCache drops the memoized GetModels results. Call it after any
// change to installed apps or models.
func (r *Registry) ClearCache() {
	r.cacheMu.Lock()
	defer r.cacheMu.Unlock()
	clear(r.modelsCache)
}

// SetAvailableApps restricts the visible apps to the given canonical names.
// Calls stack; UnsetAvailableApps restores the previous set.
func (r *Registry) SetAvailableApps(names []string) error {
	if err := r.checkAppsReady(); err != nil {
		return err
	}

	want := make(map[string]bool, len(names))
	for _, n := range names {
		want[n] = true
	}

	r.configsMu.Lock()
	installed := make(map[string]bool, len(r.labels))
	var visible []string
	for _, label := range r.labels {
		name := r.configs[label].Name
		installed[name] = true
		if want[name] {
			visible = append(visible, label)
		}
	}

	var extra []string
	for _, n := range names {
		if !installed[n] {
			extra = append(extra, n)
		}
	}
	if len(extra) > 0 {
		r.configsMu.Unlock()
		return core.NewConfigurationError("Available apps isn't a subset of installed apps, extra apps: %s", strings.Join(extra, ", "))
	}

	r.stored = append(r.stored, r.labels)
	r.labels = visible
	r.configsMu.Unlock()

	r.ClearCache()
	return nil
}

// UnsetAvailableApps cancels the last SetAvailableApps call.
func (r *Registry) UnsetAvailableApps() {
	r.configsMu.Lock()
	if n := len(r.stored); n > 0 {
		r.labels = r.stored[n-1]
		r.stored = r.stored[:n-1]
	}
	r.configsMu.Unlock()

	r.ClearCache()
}

// TB is the subset of testing.TB used by ResetForTesting.
type TB interface {
	Helper()
	Name() string
}

// ResetForTesting returns the registry to its unpopulated state so a test
// can populate it again. Registered models are kept. It must not be called
// while Populate is running.
func (r *Registry) ResetForTesting(tb TB) {
	tb.Helper()

	r.mu.Lock()
	r.loading = false
	r.err = nil
	r.readyCh = make(chan struct{})
	r.appsReady.Store(false)
	r.modelsReady.Store(false)
	r.ready.Store(false)
	r.mu.Unlock()

	r.configsMu.Lock()
	r.labels = nil
	r.configs = make(map[string]*AppConfig)
	r.stored = nil
	r.configsMu.Unlock()

	r.ClearCache()
	telemetry.Component("apps").Debug().Str("test", tb.Name()).Msg("App registry reset for testing")
}
