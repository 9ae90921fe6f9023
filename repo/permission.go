package repo

// SystemUser is the elevated identity used for operations that bypass
// permission checks, such as change-token maintenance.
const SystemUser = "System"

type AccessStatus int

const (
	Denied AccessStatus = iota
	Allowed
)

type Permission string

const (
	PermissionRead            Permission = "Read"
	PermissionReadChildren    Permission = "ReadChildren"
	PermissionWriteProperties Permission = "WriteProperties"
	PermissionDelete          Permission = "Delete"
	PermissionAddChildren     Permission = "AddChildren"
)

// PermissionChecker is the permission collaborator. Implementations must
// always allow SystemUser.
type PermissionChecker interface {
	HasPermission(user string, node NodeID, permission Permission) AccessStatus
}

// AllowAll grants every permission to every user.
type AllowAll struct{}

func (AllowAll) HasPermission(user string, node NodeID, permission Permission) AccessStatus {
	return Allowed
}

// DenyList denies the listed permissions on the listed nodes for every
// user except SystemUser. Used in tests and restricted deployments.
type DenyList struct {
	Nodes       map[NodeID][]Permission
	DenyForUser string
}

func (d DenyList) HasPermission(user string, node NodeID, permission Permission) AccessStatus {
	if user == SystemUser {
		return Allowed
	}
	if d.DenyForUser != "" && user != d.DenyForUser {
		return Allowed
	}
	for _, denied := range d.Nodes[node] {
		if denied == permission {
			return Denied
		}
	}
	return Allowed
}
