// Package directory stores platform users in PostgreSQL. Users are
// keyed by their identity-provider subject so repeat logins update the
// existing record instead of creating duplicates.
package directory
