// Package authz derives authorization decisions for the events platform.
//
// It contains the pure decision pieces of the authentication pipeline: the
// closed set of client platforms, the role ladder (student < admin <
// super_admin), the role resolver, and the capability catalog.
//
// # Role resolution
//
// Roles are decided from the declared client platform plus the email domain:
//
//	resolver := authz.NewRoleResolver(authz.RoleTables{
//		AdminDomains: []string{"@tecnm.mx", "@puebla.tecnm.mx"},
//	})
//	role, err := resolver.ResolveRole(authz.PlatformDesktopAdmin, "dean@tecnm.mx")
//
// Mobile student clients always resolve to student. Admin-class clients with
// an email outside the allow-list fail with ErrUnauthorizedDomain; they are
// never quietly downgraded.
//
// # Capabilities
//
// Capability flags are a total pure function of the role:
//
//	caps := authz.Capabilities(authz.RoleAdmin)
//	if caps.CanCreateEvents { ... }
//
// Nothing in this package performs I/O.
package authz
