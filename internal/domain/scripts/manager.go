package scripts

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/GriffinCanCode/scriptgate/internal/domain/integrity"
	"github.com/GriffinCanCode/scriptgate/internal/domain/metadata"
	"github.com/GriffinCanCode/scriptgate/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/scriptgate/internal/shared/id"
)

// ErrNotFound is returned for an unknown script id.
var ErrNotFound = errors.New("script not found")

// Store persists scripts and removes the data that belongs to them.
type Store interface {
	GetScript(id string) (*UserScript, bool)
	PutScript(script *UserScript) error
	DeleteScript(id string) error
	ListScripts() []*UserScript
	DeleteValues(scriptID string) error
	DeletePermissions(scriptID string) error
}

// DependencyFetcher refreshes the dependency cache of a script.
type DependencyFetcher interface {
	Fetch(ctx context.Context, meta *metadata.ScriptMetadata, existing DependencyCache) DependencyCache
}

// UpdateSource downloads the current version of a script.
type UpdateSource interface {
	FetchScript(ctx context.Context, url string) (string, error)
}

// Manager orchestrates the script lifecycle
type Manager struct {
	mu        sync.Mutex // serializes writes
	scopeMu   sync.RWMutex
	scopes    map[string]*Scope // Protected by scopeMu
	store     Store
	parser    *metadata.Parser
	deps      DependencyFetcher
	registrar Registrar
	metrics   *monitoring.Metrics
	logger    *zap.Logger
	now       func() time.Time
}

// NewManager creates a new script manager
func NewManager(store Store, parser *metadata.Parser, logger *zap.Logger) *Manager {
	if parser == nil {
		parser = metadata.NewParser(nil)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	m := &Manager{
		scopes: make(map[string]*Scope),
		store:  store,
		parser: parser,
		logger: logger,
		now:    time.Now,
	}
	for _, s := range store.ListScripts() {
		m.scopes[s.ID] = NewScope(&s.Metadata)
	}
	return m
}

// WithDependencies sets the fetcher used to fill dependency caches
func (m *Manager) WithDependencies(deps DependencyFetcher) *Manager {
	m.deps = deps
	return m
}

// WithRegistrar sets where registrations are pushed after each change
func (m *Manager) WithRegistrar(r Registrar) *Manager {
	m.registrar = r
	return m
}

// WithMetrics adds metrics tracking to the manager
func (m *Manager) WithMetrics(metrics *monitoring.Metrics) *Manager {
	m.metrics = metrics
	metrics.SetScriptsInstalled(len(m.store.ListScripts()))
	return m
}

// Install parses and stores a new script. A script with the same name and
// namespace as an installed one replaces it, as an update.
func (m *Manager) Install(ctx context.Context, code string) (*SaveResult, error) {
	parsed, err := m.parser.Parse(code)
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	return m.saveLocked(ctx, m.findByIdentity(&parsed.Metadata), code, parsed)
}

// Update replaces the code of an installed script. Saving code that parses
// to the same metadata and hashes the same is a no-op with Changed false.
func (m *Manager) Update(ctx context.Context, scriptID, code string) (*SaveResult, error) {
	if _, ok := m.store.GetScript(scriptID); !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, scriptID)
	}
	parsed, err := m.parser.Parse(code)
	if err != nil {
		return nil, err
	}
	return m.applyUpdate(ctx, scriptID, code, parsed)
}

func (m *Manager) saveLocked(ctx context.Context, existing *UserScript, code string, parsed *metadata.Result) (*SaveResult, error) {
	oldHash := ""
	if existing != nil {
		oldHash = existing.Hash
	}
	report := integrity.Check(code, oldHash, "")
	result := &SaveResult{Warnings: parsed.Warnings, Report: report}

	if existing != nil && existing.Hash == report.Hash && sameMetadata(&existing.Metadata, &parsed.Metadata) {
		result.Script = existing.Clone()
		return result, nil
	}

	now := m.now()
	var script *UserScript
	operation := "install"
	if existing != nil {
		operation = "update"
		script = existing.Clone()
	} else {
		script = &UserScript{
			ID:          id.NewScriptID().String(),
			Enabled:     true,
			InstalledAt: now,
		}
	}
	script.Code = code
	script.Metadata = parsed.Metadata
	script.Hash = report.Hash
	script.LastModified = now

	if m.deps != nil {
		script.DependencyCache = m.deps.Fetch(ctx, &script.Metadata, script.DependencyCache)
	}
	script.DependencyCache = pruneDependencies(&script.Metadata, script.DependencyCache)

	if err := m.store.PutScript(script); err != nil {
		return nil, fmt.Errorf("failed to store script: %w", err)
	}
	m.setScope(script)

	m.metrics.RecordScriptChange(operation)
	m.metrics.SetScriptsInstalled(len(m.store.ListScripts()))
	m.logger.Info("Script saved",
		zap.String("script_id", script.ID),
		zap.String("name", script.Metadata.Name),
		zap.String("version", script.Metadata.Version),
		zap.String("operation", operation),
		zap.Int("warnings", len(parsed.Warnings)),
		zap.Strings("security_warnings", report.SecurityWarnings),
	)

	m.syncLocked(ctx)

	result.Script = script.Clone()
	result.Changed = true
	return result, nil
}

// Delete removes a script together with its stored values and permissions
func (m *Manager) Delete(ctx context.Context, scriptID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.store.GetScript(scriptID); !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, scriptID)
	}
	if err := m.store.DeleteScript(scriptID); err != nil {
		return fmt.Errorf("failed to delete script: %w", err)
	}
	if err := m.store.DeleteValues(scriptID); err != nil {
		return fmt.Errorf("failed to delete script values: %w", err)
	}
	if err := m.store.DeletePermissions(scriptID); err != nil {
		return fmt.Errorf("failed to delete script permissions: %w", err)
	}

	m.scopeMu.Lock()
	delete(m.scopes, scriptID)
	m.scopeMu.Unlock()

	m.metrics.RecordScriptChange("delete")
	m.metrics.SetScriptsInstalled(len(m.store.ListScripts()))
	m.logger.Info("Script deleted", zap.String("script_id", scriptID))

	m.syncLocked(ctx)
	return nil
}

// SetEnabled enables or disables a script
func (m *Manager) SetEnabled(ctx context.Context, scriptID string, enabled bool) (*UserScript, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	existing, ok := m.store.GetScript(scriptID)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, scriptID)
	}
	if existing.Enabled == enabled {
		return existing.Clone(), nil
	}

	script := existing.Clone()
	script.Enabled = enabled
	if err := m.store.PutScript(script); err != nil {
		return nil, fmt.Errorf("failed to store script: %w", err)
	}

	m.syncLocked(ctx)
	return script.Clone(), nil
}

// Get retrieves a script by ID
func (m *Manager) Get(scriptID string) (*UserScript, bool) {
	s, ok := m.store.GetScript(scriptID)
	if !ok {
		return nil, false
	}
	return s.Clone(), true
}

// List returns every script, oldest install first
func (m *Manager) List() []*UserScript {
	list := m.store.ListScripts()
	out := make([]*UserScript, 0, len(list))
	for _, s := range list {
		out = append(out, s.Clone())
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].InstalledAt.Equal(out[j].InstalledAt) {
			return out[i].InstalledAt.Before(out[j].InstalledAt)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// ScriptsFor returns the enabled scripts that run on url
func (m *Manager) ScriptsFor(url string) []*UserScript {
	var out []*UserScript
	for _, s := range m.List() {
		if !s.Enabled {
			continue
		}
		m.scopeMu.RLock()
		scope := m.scopes[s.ID]
		m.scopeMu.RUnlock()
		if scope == nil {
			scope = NewScope(&s.Metadata)
		}
		if scope.Covers(url) {
			out = append(out, s)
		}
	}
	return out
}

// Sync pushes the registrations of every enabled script to the registrar
func (m *Manager) Sync(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sync(ctx)
}

// Registrations returns the registrations of every enabled script
func (m *Manager) Registrations() []Registration {
	var regs []Registration
	for _, s := range m.List() {
		if s.Enabled {
			regs = append(regs, NewRegistration(s))
		}
	}
	return regs
}

func (m *Manager) sync(ctx context.Context) error {
	if m.registrar == nil {
		return nil
	}
	regs := m.Registrations()
	if err := m.registrar.Register(ctx, regs); err != nil {
		return fmt.Errorf("failed to register scripts: %w", err)
	}
	m.logger.Debug("Scripts registered", zap.Int("count", len(regs)))
	return nil
}

// syncLocked syncs after a change. A registrar failure does not undo the
// change; it is logged and the next change retries.
func (m *Manager) syncLocked(ctx context.Context) {
	if err := m.sync(ctx); err != nil {
		m.logger.Warn("Script registration failed", zap.Error(err))
	}
}

// CheckForUpdates fetches the update URL of every script and installs
// versions newer than the installed one. Failures are logged per script.
func (m *Manager) CheckForUpdates(ctx context.Context, source UpdateSource) []*SaveResult {
	var updated []*SaveResult
	for _, s := range m.List() {
		url := s.Metadata.UpdateURL
		if url == "" {
			url = s.Metadata.DownloadURL
		}
		if url == "" {
			continue
		}

		log := m.logger.With(zap.String("script_id", s.ID), zap.String("url", url))
		code, err := source.FetchScript(ctx, url)
		if err != nil {
			log.Warn("Update check failed", zap.Error(err))
			continue
		}
		parsed, err := m.parser.Parse(code)
		if err != nil {
			log.Warn("Update has invalid metadata", zap.Error(err))
			continue
		}
		if CompareVersions(parsed.Metadata.Version, s.Metadata.Version) <= 0 {
			continue
		}

		result, err := m.applyUpdate(ctx, s.ID, code, parsed)
		if err != nil {
			log.Warn("Update failed", zap.Error(err))
			continue
		}
		log.Info("Script updated",
			zap.String("from", s.Metadata.Version),
			zap.String("to", parsed.Metadata.Version),
		)
		updated = append(updated, result)
	}
	return updated
}

func (m *Manager) applyUpdate(ctx context.Context, scriptID, code string, parsed *metadata.Result) (*SaveResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	existing, ok := m.store.GetScript(scriptID)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, scriptID)
	}
	return m.saveLocked(ctx, existing, code, parsed)
}

func (m *Manager) findByIdentity(meta *metadata.ScriptMetadata) *UserScript {
	for _, s := range m.store.ListScripts() {
		if s.Metadata.Name == meta.Name && s.Metadata.Namespace == meta.Namespace {
			return s
		}
	}
	return nil
}

func (m *Manager) setScope(s *UserScript) {
	scope := NewScope(&s.Metadata)
	m.scopeMu.Lock()
	m.scopes[s.ID] = scope
	m.scopeMu.Unlock()
}

func sameMetadata(a, b *metadata.ScriptMetadata) bool {
	h := integrity.DefaultHasher()
	ha, errA := h.HashJSON(a)
	hb, errB := h.HashJSON(b)
	return errA == nil && errB == nil && ha == hb
}

// pruneDependencies drops cache entries no longer referenced by meta.
func pruneDependencies(meta *metadata.ScriptMetadata, cache DependencyCache) DependencyCache {
	if len(cache) == 0 {
		return cache
	}
	wanted := make(map[string]bool, len(meta.Requires)+len(meta.Resources))
	for _, u := range meta.Requires {
		wanted[u] = true
	}
	for _, r := range meta.Resources {
		wanted[r.URL] = true
	}
	for u := range cache {
		if !wanted[u] {
			delete(cache, u)
		}
	}
	return cache
}
