package config

import (
	"fmt"
	"os"
	"sort"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"
)

// Tables holds the operator-editable lookup tables that drive role
// resolution and organization assignment. They live in a YAML file so
// onboarding a new campus never needs a redeploy.
type Tables struct {
	// AdminDomains is the allow-list of email domains permitted to log in
	// from admin-class clients.
	AdminDomains []string `yaml:"admin_domains"`

	// StudentMarkers are domain substrings that identify institutional
	// student accounts on unknown platforms.
	StudentMarkers []string `yaml:"student_markers"`

	// Organizations maps an email domain suffix to an organization
	// acronym, e.g. "itp.edu.mx" -> "ITP".
	Organizations map[string]string `yaml:"organizations"`

	// DefaultOrganization is used when no suffix matches.
	DefaultOrganization string `yaml:"default_organization"`
}

// DefaultTables returns the built-in tables used when no file is
// configured.
func DefaultTables() *Tables {
	return &Tables{
		AdminDomains:   []string{"tecnm.mx", "itp.edu.mx", "admin.eventostec.mx"},
		StudentMarkers: []string{".edu", "tecnm"},
		Organizations: map[string]string{
			"itp.edu.mx":      "ITP",
			"ittol.edu.mx":    "ITTOL",
			"itcelaya.edu.mx": "ITC",
		},
		DefaultOrganization: "TECNM",
	}
}

// LoadTables reads tables from a YAML file. Missing sections fall back
// to the built-in defaults so a partial file stays usable.
func LoadTables(path string) (*Tables, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read tables file: %w", err)
	}

	tables := &Tables{}
	if err := yaml.Unmarshal(data, tables); err != nil {
		return nil, fmt.Errorf("failed to parse tables file: %w", err)
	}

	defaults := DefaultTables()
	if len(tables.AdminDomains) == 0 {
		tables.AdminDomains = defaults.AdminDomains
	}
	if len(tables.StudentMarkers) == 0 {
		tables.StudentMarkers = defaults.StudentMarkers
	}
	if len(tables.Organizations) == 0 {
		tables.Organizations = defaults.Organizations
	}
	if tables.DefaultOrganization == "" {
		tables.DefaultOrganization = defaults.DefaultOrganization
	}

	tables.normalize()
	return tables, nil
}

// normalize lowercases every domain so lookups are case-insensitive.
func (t *Tables) normalize() {
	for i, d := range t.AdminDomains {
		t.AdminDomains[i] = strings.ToLower(strings.TrimSpace(d))
	}
	for i, m := range t.StudentMarkers {
		t.StudentMarkers[i] = strings.ToLower(strings.TrimSpace(m))
	}
	orgs := make(map[string]string, len(t.Organizations))
	for suffix, acronym := range t.Organizations {
		orgs[strings.ToLower(strings.TrimSpace(suffix))] = acronym
	}
	t.Organizations = orgs
}

// OrganizationFor maps an email domain to its organization acronym.
// Longer suffixes win so "cs.itp.edu.mx" prefers "itp.edu.mx" over a
// hypothetical "edu.mx" entry.
func (t *Tables) OrganizationFor(domain string) string {
	domain = strings.ToLower(domain)

	suffixes := make([]string, 0, len(t.Organizations))
	for suffix := range t.Organizations {
		suffixes = append(suffixes, suffix)
	}
	sort.Slice(suffixes, func(i, j int) bool { return len(suffixes[i]) > len(suffixes[j]) })

	for _, suffix := range suffixes {
		if domain == suffix || strings.HasSuffix(domain, "."+suffix) {
			return t.Organizations[suffix]
		}
	}
	return t.DefaultOrganization
}

// TableSource hands out the current tables and accepts replacements
// from the hot-reload watcher. Readers always get a consistent snapshot.
type TableSource struct {
	mu     sync.RWMutex
	tables *Tables
}

// NewTableSource wraps an initial set of tables.
func NewTableSource(tables *Tables) *TableSource {
	if tables == nil {
		tables = DefaultTables()
	}
	return &TableSource{tables: tables}
}

// Current returns the active tables snapshot.
func (s *TableSource) Current() *Tables {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.tables
}

// Replace swaps in a new snapshot.
func (s *TableSource) Replace(tables *Tables) {
	if tables == nil {
		return
	}
	s.mu.Lock()
	s.tables = tables
	s.mu.Unlock()
}
