// Package policy decides what a script may do.
//
// Two judgments are exposed, both pure functions of the script's metadata,
// the user's recorded permissions and the request:
//
//   - CanUseCapability: is the named capability declared with @grant?
//   - CanConnect: may the script reach this URL?
//
// CanConnect enforces a hard deny-list for loopback, private and link-local
// networks that static metadata can never reach. Only an explicit
// per-(script, host) user permission overrides it. Hosts under suspicious
// top-level domains likewise need an explicit permission.
//
// Decisions carry a typed DenialReason. Surfacing a denial to the user is
// left to a DenialHandler owned by the caller.
package policy
