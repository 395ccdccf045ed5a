package broker

import (
	"github.com/GriffinCanCode/scriptgate/internal/domain/metadata"
	"github.com/GriffinCanCode/scriptgate/internal/domain/scripts"
)

// Handler identification reported by GM_info.
const (
	HandlerName    = "scriptgate"
	HandlerVersion = "1.0.0"
)

// InfoResult is the completed payload of GM_info.
type InfoResult struct {
	ScriptHandler string                  `json:"scriptHandler"`
	Version       string                  `json:"version"`
	ScriptID      string                  `json:"scriptId"`
	Script        metadata.ScriptMetadata `json:"script"`
	ScriptHash    string                  `json:"scriptHash"`
}

func info(script *scripts.UserScript) *InfoResult {
	return &InfoResult{
		ScriptHandler: HandlerName,
		Version:       HandlerVersion,
		ScriptID:      script.ID,
		Script:        script.Metadata,
		ScriptHash:    script.Hash,
	}
}
