package rbac

// Scope constants
const (
	ScopeBot   = "bot"
	ScopeAdmin = "admin"
)

// Permission constants
const (
	PermStartVerification = "start_verification"
	PermCheckVerification = "check_verification"
	PermReadWallets       = "read_wallets"
	PermRemoveWallet      = "remove_wallet"
	PermRefreshHoldings   = "refresh_holdings"
	PermViewStatus        = "view_status"
	PermResyncStorage     = "resync_storage"
	PermRunAudit          = "run_audit"
	PermStreamEvents      = "stream_events"
)

// ScopePermissions defines what each scope can do.
var ScopePermissions = map[string][]string{
	ScopeBot: {
		PermStartVerification, PermCheckVerification, PermReadWallets,
		PermRemoveWallet, PermRefreshHoldings, PermStreamEvents,
	},
	ScopeAdmin: {
		PermStartVerification, PermCheckVerification, PermReadWallets,
		PermRemoveWallet, PermRefreshHoldings, PermStreamEvents,
		PermViewStatus, PermResyncStorage, PermRunAudit,
	},
}

// HasPermission checks if a scope has a specific permission.
func HasPermission(scope, permission string) bool {
	perms, ok := ScopePermissions[scope]
	if !ok {
		return false
	}
	for _, p := range perms {
		if p == permission {
			return true
		}
	}
	return false
}

// Allowed reports whether any of the scopes grants permission.
func Allowed(scopes []string, permission string) bool {
	for _, s := range scopes {
		if HasPermission(s, permission) {
			return true
		}
	}
	return false
}

// IsAdminOperation checks if permission is admin-only.
func IsAdminOperation(permission string) bool {
	return !HasPermission(ScopeBot, permission) && HasPermission(ScopeAdmin, permission)
}
