package authz

const (
	RoleTenantAdmin  = "tenant-admin"
	RoleTenantViewer = "tenant-viewer"
	RoleAnonymous    = "anonymous"
)

const (
	ActionRead  = "read"
	ActionAdmin = "admin"
)

const (
	ObjectIAMSession      = "iam.session"
	ObjectRosterContacts  = "roster.contacts"
	ObjectRosterOwners    = "roster.owners"
	ObjectRosterMeetings  = "roster.meetings"
	ObjectRosterDashboard = "roster.dashboard"
	ObjectRosterReconcile = "roster.reconcile"
)
