package orgassign

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/eventostec/eventostec/pkg/authz"
	"github.com/eventostec/eventostec/pkg/config"
	"github.com/eventostec/eventostec/pkg/directory"
	"github.com/eventostec/eventostec/pkg/observability"
)

// ErrNoOrganizationsConfigured is returned when neither the mapped nor
// the default organization exists in the database.
var ErrNoOrganizationsConfigured = errors.New("no matching organization is configured")

// studentChannelLimit bounds how many administrative channels a student
// is auto-subscribed to.
const studentChannelLimit = 3

// channelCacheTTL bounds staleness of the cached channel lists.
const channelCacheTTL = 5 * time.Minute

// Organization is an active campus organization.
type Organization struct {
	ID      string `json:"id"`
	Acronym string `json:"acronym"`
	Name    string `json:"name"`
}

// Channel is a subscribable communication channel.
type Channel struct {
	ID   string
	Name string
}

// AssignmentResult reports what post-login provisioning did for a user.
type AssignmentResult struct {
	Success              bool          `json:"success"`
	Organization         *Organization `json:"organization,omitempty"`
	SubscriptionsCreated int           `json:"subscriptionsCreated"`
	Message              string        `json:"message,omitempty"`
}

// Assigner binds users to an organization inferred from their email
// domain and subscribes them to that organization's channels.
type Assigner struct {
	db      *sql.DB
	tables  *config.TableSource
	logger  *observability.Logger
	metrics *observability.Metrics

	channelCache *expirable.LRU[string, []Channel]
}

// NewAssigner creates the assigner and ensures its schema exists.
func NewAssigner(db *sql.DB, tables *config.TableSource, logger *observability.Logger, metrics *observability.Metrics) (*Assigner, error) {
	a := &Assigner{
		db:           db,
		tables:       tables,
		logger:       logger,
		metrics:      metrics,
		channelCache: expirable.NewLRU[string, []Channel](128, nil, channelCacheTTL),
	}
	if err := a.migrate(); err != nil {
		return nil, fmt.Errorf("failed to run assigner migrations: %w", err)
	}
	return a, nil
}

func (a *Assigner) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS organizations (
		id UUID PRIMARY KEY,
		acronym TEXT NOT NULL UNIQUE,
		name TEXT NOT NULL,
		active BOOLEAN NOT NULL DEFAULT TRUE,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	);
	CREATE TABLE IF NOT EXISTS channels (
		id UUID PRIMARY KEY,
		organization_id UUID NOT NULL REFERENCES organizations(id),
		name TEXT NOT NULL,
		channel_type TEXT NOT NULL,
		active BOOLEAN NOT NULL DEFAULT TRUE,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	);
	CREATE TABLE IF NOT EXISTS user_subscriptions (
		id UUID PRIMARY KEY,
		user_id UUID NOT NULL,
		channel_id UUID NOT NULL,
		is_active BOOLEAN NOT NULL DEFAULT TRUE,
		notifications_enabled BOOLEAN NOT NULL DEFAULT TRUE,
		subscribed_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		UNIQUE(user_id, channel_id)
	);
	CREATE INDEX IF NOT EXISTS idx_channels_org ON channels(organization_id);
	CREATE INDEX IF NOT EXISTS idx_subscriptions_user ON user_subscriptions(user_id);
	`
	_, err := a.db.Exec(schema)
	return err
}

// Assign provisions organization membership and channel subscriptions
// for a user. Super admins operate globally and are never bound to an
// organization. Individual subscription failures are logged and counted
// but do not fail the assignment.
func (a *Assigner) Assign(ctx context.Context, user *directory.UserRecord) (*AssignmentResult, error) {
	if user.Role == authz.RoleSuperAdmin {
		return &AssignmentResult{
			Success: true,
			Message: "super admins have global scope and no organization binding",
		}, nil
	}

	org, err := a.resolveOrganization(ctx, user.Email)
	if err != nil {
		return nil, err
	}

	if err := a.bindOrganization(ctx, user.ID, org.ID); err != nil {
		return nil, err
	}

	channels, err := a.channelsFor(ctx, org.ID, user.Role)
	if err != nil {
		return nil, err
	}

	created := 0
	for _, ch := range channels {
		if err := a.subscribe(ctx, user.ID, ch.ID); err != nil {
			if a.metrics != nil {
				a.metrics.SubscriptionErrorsTotal.Inc()
			}
			a.logger.WithError(err).
				WithField("user_id", user.ID).
				WithField("channel_id", ch.ID).
				Warn("failed to create channel subscription")
			continue
		}
		created++
	}
	if a.metrics != nil && created > 0 {
		a.metrics.SubscriptionsCreatedTotal.Add(float64(created))
	}

	return &AssignmentResult{
		Success:              true,
		Organization:         org,
		SubscriptionsCreated: created,
		Message:              fmt.Sprintf("assigned to %s with %d subscriptions", org.Acronym, created),
	}, nil
}

// resolveOrganization maps the email domain to an acronym via the
// lookup tables, then loads the matching active organization. A missing
// mapped organization falls back to the default one.
func (a *Assigner) resolveOrganization(ctx context.Context, email string) (*Organization, error) {
	domain := emailDomain(email)
	tables := a.tables.Current()
	acronym := tables.OrganizationFor(domain)

	org, err := a.lookupOrganization(ctx, acronym)
	if err == nil {
		return org, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("failed to look up organization %s: %w", acronym, err)
	}

	if acronym != tables.DefaultOrganization {
		org, err = a.lookupOrganization(ctx, tables.DefaultOrganization)
		if err == nil {
			return org, nil
		}
		if !errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("failed to look up default organization: %w", err)
		}
	}

	return nil, ErrNoOrganizationsConfigured
}

func (a *Assigner) lookupOrganization(ctx context.Context, acronym string) (*Organization, error) {
	var org Organization
	err := a.db.QueryRowContext(ctx,
		`SELECT id, acronym, name FROM organizations WHERE acronym = $1 AND active = TRUE`,
		acronym).Scan(&org.ID, &org.Acronym, &org.Name)
	if err != nil {
		return nil, err
	}
	return &org, nil
}

// bindOrganization writes the organization once. A user who already has
// one keeps it; logins never move users between organizations.
func (a *Assigner) bindOrganization(ctx context.Context, userID, orgID string) error {
	_, err := a.db.ExecContext(ctx,
		`UPDATE users SET organization_id = $1 WHERE id = $2 AND organization_id IS NULL`,
		orgID, userID)
	if err != nil {
		return fmt.Errorf("failed to bind organization: %w", err)
	}
	return nil
}

func (a *Assigner) channelsFor(ctx context.Context, orgID string, role authz.Role) ([]Channel, error) {
	cacheKey := orgID + "|" + string(role)
	if channels, ok := a.channelCache.Get(cacheKey); ok {
		return channels, nil
	}

	var rows *sql.Rows
	var err error
	switch role {
	case authz.RoleStudent:
		rows, err = a.db.QueryContext(ctx,
			`SELECT id, name FROM channels
			 WHERE organization_id = $1 AND channel_type = 'administrative' AND active = TRUE
			 ORDER BY created_at LIMIT $2`,
			orgID, studentChannelLimit)
	case authz.RoleAdmin:
		rows, err = a.db.QueryContext(ctx,
			`SELECT id, name FROM channels
			 WHERE organization_id = $1 AND active = TRUE
			 ORDER BY created_at`,
			orgID)
	default:
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to list channels: %w", err)
	}
	defer rows.Close()

	var channels []Channel
	for rows.Next() {
		var ch Channel
		if err := rows.Scan(&ch.ID, &ch.Name); err != nil {
			return nil, fmt.Errorf("failed to scan channel: %w", err)
		}
		channels = append(channels, ch)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate channels: %w", err)
	}

	a.channelCache.Add(cacheKey, channels)
	return channels, nil
}

// subscribe is idempotent; an existing subscription is left untouched,
// including one the user has deactivated. New rows start active with
// notifications on via the column defaults.
func (a *Assigner) subscribe(ctx context.Context, userID, channelID string) error {
	_, err := a.db.ExecContext(ctx,
		`INSERT INTO user_subscriptions (id, user_id, channel_id)
		 VALUES ($1, $2, $3)
		 ON CONFLICT (user_id, channel_id) DO NOTHING`,
		uuid.New().String(), userID, channelID)
	return err
}

func emailDomain(email string) string {
	at := strings.LastIndex(email, "@")
	if at < 0 || at == len(email)-1 {
		return ""
	}
	return strings.ToLower(email[at+1:])
}
