// Package integrity verifies script content on install and update.
//
// It hashes script code, reads a declared @hash, flags risky constructs
// and checks that the code parses as JavaScript. Nothing here is fatal:
// every finding is a warning the caller shows before accepting the script.
package integrity
