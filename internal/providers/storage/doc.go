// Package storage is the in-process persistence collaborator: scripts,
// per-script key/value data and user permissions.
//
// Memory keeps everything in maps guarded by one RWMutex. User permissions
// can additionally be mirrored to a YAML GrantFile so they survive restarts.
package storage
