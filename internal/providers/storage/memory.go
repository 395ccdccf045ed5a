package storage

import (
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/GriffinCanCode/scriptgate/internal/domain/scripts"
)

type permissionKey struct {
	scriptID string
	domain   string
}

// Memory stores scripts, values and permissions in memory.
type Memory struct {
	mu          sync.RWMutex
	scripts     map[string]*scripts.UserScript
	values      map[string]map[string]json.RawMessage // scriptID -> key -> value
	permissions map[permissionKey]scripts.UserPermission
	grants      *GrantFile
	now         func() time.Time
}

// NewMemory creates an empty store.
func NewMemory() *Memory {
	return &Memory{
		scripts:     make(map[string]*scripts.UserScript),
		values:      make(map[string]map[string]json.RawMessage),
		permissions: make(map[permissionKey]scripts.UserPermission),
		now:         time.Now,
	}
}

// WithGrantFile loads the permissions in f and writes every later change
// back to it.
func (m *Memory) WithGrantFile(f *GrantFile) (*Memory, error) {
	perms, err := f.Load()
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	for _, p := range perms {
		m.permissions[permissionKey{p.ScriptID, p.Domain}] = p
	}
	m.grants = f
	return m, nil
}

// GetScript returns a copy of the script.
func (m *Memory) GetScript(id string) (*scripts.UserScript, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.scripts[id]
	if !ok {
		return nil, false
	}
	return s.Clone(), true
}

// PutScript stores a copy of script.
func (m *Memory) PutScript(script *scripts.UserScript) error {
	if script == nil || script.ID == "" {
		return fmt.Errorf("script id required")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.scripts[script.ID] = script.Clone()
	return nil
}

// DeleteScript removes a script. Deleting an unknown id is not an error.
func (m *Memory) DeleteScript(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.scripts, id)
	return nil
}

// ListScripts returns copies of every script.
func (m *Memory) ListScripts() []*scripts.UserScript {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*scripts.UserScript, 0, len(m.scripts))
	for _, s := range m.scripts {
		out = append(out, s.Clone())
	}
	return out
}

// GetValue returns the stored JSON value of key.
func (m *Memory) GetValue(scriptID, key string) (json.RawMessage, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.values[scriptID][key]
	return v, ok
}

// SetValue stores a JSON value.
func (m *Memory) SetValue(scriptID, key string, value json.RawMessage) error {
	if !json.Valid(value) {
		return fmt.Errorf("value for %q is not valid JSON", key)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	vals, ok := m.values[scriptID]
	if !ok {
		vals = make(map[string]json.RawMessage)
		m.values[scriptID] = vals
	}
	vals[key] = append(json.RawMessage(nil), value...)
	return nil
}

// DeleteValue removes key. Removing a missing key is not an error.
func (m *Memory) DeleteValue(scriptID, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.values[scriptID], key)
	return nil
}

// ListValues returns the sorted keys stored for a script.
func (m *Memory) ListValues(scriptID string) []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	keys := make([]string, 0, len(m.values[scriptID]))
	for k := range m.values[scriptID] {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// DeleteValues removes every value of a script.
func (m *Memory) DeleteValues(scriptID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.values, scriptID)
	return nil
}

// GetPermission returns the user's decision for (scriptID, domain).
func (m *Memory) GetPermission(scriptID, domain string) (allow bool, found bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.permissions[permissionKey{scriptID, domain}]
	return p.Allow, ok
}

// PutPermission records a user decision.
func (m *Memory) PutPermission(scriptID, domain string, allow bool) (scripts.UserPermission, error) {
	if scriptID == "" || domain == "" {
		return scripts.UserPermission{}, fmt.Errorf("script id and domain required")
	}
	p := scripts.UserPermission{ScriptID: scriptID, Domain: domain, Allow: allow, GrantedAt: m.now()}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.permissions[permissionKey{scriptID, domain}] = p
	return p, m.persistLocked()
}

// DeletePermission revokes one decision.
func (m *Memory) DeletePermission(scriptID, domain string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.permissions, permissionKey{scriptID, domain})
	return m.persistLocked()
}

// DeletePermissions revokes every decision of a script.
func (m *Memory) DeletePermissions(scriptID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for k := range m.permissions {
		if k.scriptID == scriptID {
			delete(m.permissions, k)
		}
	}
	return m.persistLocked()
}

// ListPermissions returns a script's decisions sorted by domain.
func (m *Memory) ListPermissions(scriptID string) []scripts.UserPermission {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []scripts.UserPermission
	for k, p := range m.permissions {
		if k.scriptID == scriptID {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Domain < out[j].Domain })
	return out
}

func (m *Memory) persistLocked() error {
	if m.grants == nil {
		return nil
	}
	all := make([]scripts.UserPermission, 0, len(m.permissions))
	for _, p := range m.permissions {
		all = append(all, p)
	}
	return m.grants.Save(all)
}
