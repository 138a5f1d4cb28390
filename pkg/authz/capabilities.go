package authz

// CapabilitySet holds the concrete permission flags derived from a role.
// The flags are a pure function of the role and are never mutated
// independently of it.
type CapabilitySet struct {
	CanCreateEvents        bool `json:"can_create_events"`
	CanManageChannels      bool `json:"can_manage_channels"`
	CanManageOrganizations bool `json:"can_manage_organizations"`
	RequiresOrganization   bool `json:"requires_organization"`
}

// Capabilities returns the capability flags for a role. The lookup is total:
// unknown roles receive the student (least privilege) set.
func Capabilities(role Role) CapabilitySet {
	switch role {
	case RoleAdmin:
		return CapabilitySet{
			CanCreateEvents:      true,
			CanManageChannels:    true,
			RequiresOrganization: true,
		}
	case RoleSuperAdmin:
		return CapabilitySet{
			CanCreateEvents:        true,
			CanManageChannels:      true,
			CanManageOrganizations: true,
		}
	default:
		return CapabilitySet{}
	}
}
