package authz

import (
	"errors"
	"fmt"
	"strings"
)

// ErrUnauthorizedDomain is returned when an admin-class platform presents an
// email outside the admin domain allow-list. Callers must surface this as an
// authentication failure, never downgrade the request to a lesser role.
var ErrUnauthorizedDomain = errors.New("email domain is not authorized for admin access")

// RoleTables holds the static lookup tables the resolver decides with. They
// are injected at construction so tests can substitute them without
// process-wide mutation.
type RoleTables struct {
	// AdminDomains is the suffix allow-list for admin-class platforms,
	// e.g. "@tecnm.mx", "@admin.tecnm.mx", "@puebla.tecnm.mx".
	AdminDomains []string

	// StudentMarkers are substrings that mark an address as a student
	// account when the platform is unknown, e.g. "@alumnos.", "@estudiantes.".
	StudentMarkers []string
}

// RoleResolver decides the authorization tier for an identity. It performs
// no I/O.
type RoleResolver struct {
	tables RoleTables
}

// NewRoleResolver creates a resolver with the given tables.
func NewRoleResolver(tables RoleTables) *RoleResolver {
	return &RoleResolver{tables: tables}
}

// ResolveRole maps (platform, email) to a role.
//
// Platform-declared intent is authoritative for recognized platforms: a
// mobile student client is always a student, and admin-class clients must
// pass the allow-list or fail hard. Email-suffix inference is only the
// fallback for unknown platforms.
func (r *RoleResolver) ResolveRole(platform ClientPlatform, email string) (Role, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" || !strings.Contains(email, "@") {
		return "", fmt.Errorf("invalid email %q", email)
	}

	switch {
	case platform == PlatformAndroidStudent:
		return RoleStudent, nil

	case platform.IsAdminClass():
		if r.matchesAdminDomain(email) {
			return RoleAdmin, nil
		}
		return "", fmt.Errorf("%w: %s via %s", ErrUnauthorizedDomain, email, platform)

	default:
		return r.resolveFromEmail(email), nil
	}
}

// resolveFromEmail infers a role from the address alone. Used only when the
// platform is unknown; defaults to student.
func (r *RoleResolver) resolveFromEmail(email string) Role {
	if strings.Contains(email, "@admin.") || strings.Contains(email, "@director.") {
		return RoleSuperAdmin
	}
	for _, marker := range r.tables.StudentMarkers {
		if strings.Contains(email, strings.ToLower(marker)) {
			return RoleStudent
		}
	}
	if r.matchesAdminDomain(email) {
		return RoleAdmin
	}
	return RoleStudent
}

// matchesAdminDomain compares the email's domain against the allow-list
// on label boundaries. "eviltecnm.mx" must not satisfy "tecnm.mx";
// "puebla.tecnm.mx" does. Entries may be written with or without a
// leading "@".
func (r *RoleResolver) matchesAdminDomain(email string) bool {
	at := strings.LastIndex(email, "@")
	if at < 0 || at == len(email)-1 {
		return false
	}
	domain := email[at+1:]

	for _, entry := range r.tables.AdminDomains {
		suffix := strings.ToLower(strings.TrimPrefix(strings.TrimSpace(entry), "@"))
		if suffix == "" {
			continue
		}
		if domain == suffix || strings.HasSuffix(domain, "."+suffix) {
			return true
		}
	}
	return false
}
