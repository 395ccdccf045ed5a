// Package scripts manages installed userscripts.
//
// The Manager owns the script lifecycle: install, update, enable and
// delete. Every save re-parses the directive block, re-runs the integrity
// checks and refreshes the dependency cache. After each change the enabled
// scripts are pushed to a Registrar as Registration payloads.
//
// Scope answers where a script runs: excludes win, then @match and
// @include, and a script with neither runs everywhere.
//
// Example Usage:
//
//	manager := scripts.NewManager(store, parser, logger).
//	    WithDependencies(fetcher).
//	    WithRegistrar(registrar)
//	result, err := manager.Install(ctx, code)
//	enabled := manager.ScriptsFor("https://example.com/page")
package scripts
