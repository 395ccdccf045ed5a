// Package metadata parses the ==UserScript== directive block of a userscript
// into a ScriptMetadata capability declaration.
//
// Parsing is strict about the two things a script cannot run without (a
// directive block and a name) and lenient about everything else: unknown
// keys are ignored, and invalid @match patterns or dependency URLs are
// dropped and reported as warnings.
//
// Localized keys (@name:fr, @description:de-AT, @author:en) are resolved
// against the caller's preferred locales in this order:
//  1. exact locale match
//  2. same primary language
//  3. the unsuffixed variant
//  4. empty string
//
// Example Usage:
//
//	parser := metadata.NewParser(metadata.StaticLocales{"fr-CA", "en"})
//	result, err := parser.Parse(code)
//	if errors.Is(err, metadata.ErrMissingName) {
//	    // refuse the install
//	}
//	for _, w := range result.Warnings {
//	    log.Println(w)
//	}
package metadata
