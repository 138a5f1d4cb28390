// Package orgassign provisions organization membership after login. It
// infers the organization from the user's email domain and subscribes
// the user to the organization's channels according to their role.
package orgassign
