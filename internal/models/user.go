package models

// Role is carried in API tokens. Accounts themselves live in the dashboard's
// auth service; the alerting core only sees the user id and role.
type Role string

const (
	RoleAdmin  Role = "admin"
	RoleUser   Role = "user"
	RoleViewer Role = "viewer"
)

const (
	ActionViewAlerts     = "view_alerts"
	ActionManageAlerts   = "manage_alerts"
	ActionManageRules    = "manage_rules"
	ActionManageChannels = "manage_channels"
	ActionManageJobs     = "manage_jobs"
)

func (r Role) HasPermission(action string) bool {
	switch r {
	case RoleAdmin:
		return true
	case RoleUser:
		return action != ActionManageJobs
	case RoleViewer:
		return action == ActionViewAlerts
	default:
		return false
	}
}
