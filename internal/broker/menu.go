package broker

import (
	"errors"
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/GriffinCanCode/scriptgate/internal/domain/scripts"
	"github.com/GriffinCanCode/scriptgate/internal/shared/types"
)

var ErrMenuNotFound = errors.New("menu command not found")

// MenuCommand is a command a script registered for one channel session.
type MenuCommand struct {
	Key        string `json:"key"`
	ScriptID   string `json:"scriptId"`
	ScriptName string `json:"scriptName"`
	Caption    string `json:"caption"`

	seq     uint64
	channel Channel
}

// MenuResult is the completed payload of a menu registration change.
type MenuResult struct {
	Key     string `json:"key"`
	Removed bool   `json:"removed,omitempty"`
}

// menuRegistry holds menu commands per channel.
type menuRegistry struct {
	mu        sync.Mutex
	seq       uint64
	byChannel map[string]map[string]*MenuCommand
}

func newMenuRegistry() *menuRegistry {
	return &menuRegistry{byChannel: make(map[string]map[string]*MenuCommand)}
}

func (r *menuRegistry) add(ch Channel, script *scripts.UserScript, caption string) *MenuCommand {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.seq++
	cmd := &MenuCommand{
		Key:        uuid.NewString(),
		ScriptID:   script.ID,
		ScriptName: script.Metadata.Name,
		Caption:    caption,
		seq:        r.seq,
		channel:    ch,
	}
	cmds, ok := r.byChannel[ch.ID()]
	if !ok {
		cmds = make(map[string]*MenuCommand)
		r.byChannel[ch.ID()] = cmds
	}
	cmds[cmd.Key] = cmd
	return cmd
}

// remove deletes key if scriptID registered it on channel.
func (r *menuRegistry) remove(channel, scriptID, key string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	cmd, ok := r.byChannel[channel][key]
	if !ok || cmd.ScriptID != scriptID {
		return false
	}
	delete(r.byChannel[channel], key)
	if len(r.byChannel[channel]) == 0 {
		delete(r.byChannel, channel)
	}
	return true
}

func (r *menuRegistry) get(channel, key string) (*MenuCommand, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	cmd, ok := r.byChannel[channel][key]
	return cmd, ok
}

func (r *menuRegistry) list(channel string) []MenuCommand {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]MenuCommand, 0, len(r.byChannel[channel]))
	for _, cmd := range r.byChannel[channel] {
		out = append(out, *cmd)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].seq < out[j].seq })
	return out
}

func (r *menuRegistry) removeChannel(channel string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := len(r.byChannel[channel])
	delete(r.byChannel, channel)
	return n
}

func (b *Broker) registerMenu(ch Channel, script *scripts.UserScript, r *RegisterMenuRequest) *MenuResult {
	cmd := b.menus.add(ch, script, r.Caption)
	return &MenuResult{Key: cmd.Key}
}

func (b *Broker) unregisterMenu(ch Channel, script *scripts.UserScript, r *UnregisterMenuRequest) *MenuResult {
	return &MenuResult{Key: r.Key, Removed: b.menus.remove(ch.ID(), script.ID, r.Key)}
}

// Menus returns the menu commands registered on a channel in registration
// order.
func (b *Broker) Menus(channelID string) []MenuCommand {
	return b.menus.list(channelID)
}

// TriggerMenu tells the script that registered key that the user picked it.
func (b *Broker) TriggerMenu(channelID, key string) error {
	cmd, ok := b.menus.get(channelID, key)
	if !ok {
		return ErrMenuNotFound
	}
	return cmd.channel.Send(types.Event{
		Type:          types.EventMenuCommand,
		CorrelationID: cmd.Key,
		Data: types.MenuCommandData{
			ScriptID: cmd.ScriptID,
			Key:      cmd.Key,
			Caption:  cmd.Caption,
		},
	})
}
