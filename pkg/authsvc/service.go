package authsvc

import (
	"context"
	"errors"
	"fmt"

	"github.com/eventostec/eventostec/pkg/authz"
	"github.com/eventostec/eventostec/pkg/config"
	"github.com/eventostec/eventostec/pkg/directory"
	"github.com/eventostec/eventostec/pkg/identity"
	"github.com/eventostec/eventostec/pkg/observability"
	"github.com/eventostec/eventostec/pkg/orgassign"
)

// ErrInvalidToken is returned when the identity token fails verification
// or decoding.
var ErrInvalidToken = errors.New("invalid identity token")

// UserStore is the slice of the directory the service needs.
type UserStore interface {
	Upsert(ctx context.Context, params directory.UpsertParams) (*directory.UserRecord, bool, error)
}

// OrganizationAssigner provisions organization membership after login.
type OrganizationAssigner interface {
	Assign(ctx context.Context, user *directory.UserRecord) (*orgassign.AssignmentResult, error)
}

// AuthResult is the full outcome of a login.
type AuthResult struct {
	Success      bool                    `json:"success"`
	Message      string                  `json:"message,omitempty"`
	User         *directory.UserRecord   `json:"user"`
	Capabilities authz.CapabilitySet     `json:"capabilities"`
	IsNewUser    bool                    `json:"isNewUser"`
	Organization *orgassign.Organization `json:"organization,omitempty"`

	// SubscriptionsCreated counts channel subscriptions provisioned
	// during this login.
	SubscriptionsCreated int `json:"subscriptionsCreated"`

	// RequiresOrganizationSetup flags an admin whose organization could
	// not be provisioned; the client should prompt for manual setup.
	RequiresOrganizationSetup bool `json:"requiresOrganizationSetup,omitempty"`
}

// Service runs the token-to-user pipeline: verify the token, resolve the
// role, upsert the user, derive capabilities, and provision the
// organization.
type Service struct {
	verifier identity.TokenVerifier
	tables   *config.TableSource
	users    UserStore
	assigner OrganizationAssigner
	logger   *observability.Logger
}

// NewService wires the pipeline stages together.
func NewService(verifier identity.TokenVerifier, tables *config.TableSource, users UserStore, assigner OrganizationAssigner, logger *observability.Logger) *Service {
	return &Service{
		verifier: verifier,
		tables:   tables,
		users:    users,
		assigner: assigner,
		logger:   logger,
	}
}

// Login authenticates a raw ID token sent by the given client platform.
//
// Role resolution uses the token email only for users seen for the
// first time; an existing user keeps the stored role no matter what
// platform or domain this login arrives from. ErrUnauthorizedDomain is
// a hard failure: an admin-class client with a foreign domain is
// rejected, never downgraded.
func (s *Service) Login(ctx context.Context, rawToken string, platform authz.ClientPlatform) (*AuthResult, error) {
	claims, err := s.verifier.Verify(ctx, rawToken)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	tables := s.tables.Current()
	resolver := authz.NewRoleResolver(authz.RoleTables{
		AdminDomains:   tables.AdminDomains,
		StudentMarkers: tables.StudentMarkers,
	})

	role, err := resolver.ResolveRole(platform, claims.Email)
	if err != nil {
		return nil, err
	}

	user, isNew, err := s.users.Upsert(ctx, directory.UpsertParams{
		ProviderID:     claims.Subject,
		Email:          claims.Email,
		DisplayName:    claims.Name,
		PictureURL:     claims.Picture,
		Role:           role,
		ClientPlatform: string(platform),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to persist user: %w", err)
	}

	// Capabilities derive from the stored role, which wins over the one
	// resolved above for returning users.
	capabilities := authz.Capabilities(user.Role)

	result := &AuthResult{
		Success:      true,
		Message:      "login successful",
		User:         user,
		Capabilities: capabilities,
		IsNewUser:    isNew,
	}

	// Provisioning runs for new users and for users whose organization
	// was never bound. A returning user with an organization keeps their
	// subscription choices; re-running the assigner would re-subscribe
	// channels they deliberately left.
	if !isNew && user.OrganizationID != nil {
		return result, nil
	}

	assignment, err := s.assigner.Assign(ctx, user)
	if err != nil {
		// Provisioning failures do not fail the login. An admin without
		// an organization is flagged so the client can prompt for setup.
		s.logger.WithError(err).
			WithField("user_id", user.ID).
			Warn("organization assignment failed")
		result.RequiresOrganizationSetup = capabilities.RequiresOrganization
		result.Message = "login successful, organization assignment pending"
		return result, nil
	}

	result.Organization = assignment.Organization
	result.SubscriptionsCreated = assignment.SubscriptionsCreated
	if assignment.Message != "" {
		result.Message = assignment.Message
	}
	if capabilities.RequiresOrganization && assignment.Organization == nil {
		result.RequiresOrganizationSetup = true
	}
	return result, nil
}
