// Package auth implements the identity lifecycle and session authorization
// core for the application: credential storage, one-time passcode issuance
// and verification, cookie-based sessions signed with a server-side key,
// role gates, and a best-effort activity log.
//
// Accounts are created in a pending state, activated by verifying a
// short-lived numeric passcode delivered out of band, and may later be
// disabled and re-enabled by an administrator. Sessions snapshot the
// account's display name and role at login time and are carried in an
// HTTPOnly cookie.
package auth
