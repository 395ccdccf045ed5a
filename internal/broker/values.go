package broker

import (
	"encoding/json"

	"github.com/GriffinCanCode/scriptgate/internal/domain/scripts"
)

// ValueResult is the completed payload of a value read or write.
type ValueResult struct {
	Key   string          `json:"key"`
	Value json.RawMessage `json:"value,omitempty"`
	Found bool            `json:"found"`
}

// KeysResult is the completed payload of a key listing.
type KeysResult struct {
	Keys []string `json:"keys"`
}

func (b *Broker) getValue(script *scripts.UserScript, r *GetValueRequest) (any, error) {
	if b.values == nil {
		return nil, errUnavailable
	}
	v, found := b.values.GetValue(script.ID, r.Key)
	if !found {
		v = r.Default
	}
	return &ValueResult{Key: r.Key, Value: v, Found: found}, nil
}

func (b *Broker) setValue(script *scripts.UserScript, r *SetValueRequest) (any, error) {
	if b.values == nil {
		return nil, errUnavailable
	}
	if err := b.values.SetValue(script.ID, r.Key, r.Value); err != nil {
		return nil, err
	}
	return &ValueResult{Key: r.Key, Found: true}, nil
}

func (b *Broker) deleteValue(script *scripts.UserScript, r *DeleteValueRequest) (any, error) {
	if b.values == nil {
		return nil, errUnavailable
	}
	if err := b.values.DeleteValue(script.ID, r.Key); err != nil {
		return nil, err
	}
	return &ValueResult{Key: r.Key}, nil
}

func (b *Broker) listValues(script *scripts.UserScript) (any, error) {
	if b.values == nil {
		return nil, errUnavailable
	}
	keys := b.values.ListValues(script.ID)
	if keys == nil {
		keys = []string{}
	}
	return &KeysResult{Keys: keys}, nil
}
