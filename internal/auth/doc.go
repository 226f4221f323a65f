// Package auth provides authentication and the role-based access control
// facade for the application.
//
// # Authorization Model
//
// Access is a two-level capability grant:
//   - Users hold zero or more roles; each role carries a set of permissions.
//   - Users may additionally hold permissions directly, independent of roles.
//
// Both grants are additive. A permission check passes if the permission is
// attached to any of the user's roles or granted to the user directly.
//
// # Mutation Outcomes
//
// Every relationship mutation (assign/remove role, grant/revoke permission)
// returns an Outcome instead of an error for the already-true case:
//   - OutcomeApplied: the relationship was created or removed.
//   - OutcomeAlreadyPresent: assign/grant was a no-op, the subject already
//     had the target.
//   - OutcomeAlreadyAbsent: remove/revoke was a no-op, the subject did not
//     have the target.
//
// The distinction is user-facing: handlers report "already has this role"
// rather than pretending a change happened or failing.
//
// # Protective Invariants
//
// DeleteRole refuses while any user still holds the role (ErrRoleInUse), and
// DeletePermission refuses while any role or user still carries the
// permission (ErrPermissionInUse). Multi-step writes (create role with
// permissions, sync a role's permission set) run in a single transaction.
//
// # Authentication
//
// Authenticate verifies email and password (Argon2id) and, when the user has
// a TOTP secret configured, a one-time code. Blocked accounts are refused
// before any credential check result is revealed.
//
// # Middleware
//
// RequirePermission protects routes behind a permission check against the
// session user. AddPermissionsToLocals exposes the user's permission set to
// templates for conditional rendering.
package auth
