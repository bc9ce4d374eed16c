package auth

const (
	PermPoliciesRead       = "policies.read"
	PermPoliciesWrite      = "policies.write"
	PermPoliciesRemind     = "policies.remind"
	PermDocumentsRead      = "documents.read"
	PermDocumentsUpload    = "documents.upload"
	PermDocumentsReview    = "documents.review"
	PermCategoriesWrite    = "documents.categories.write"
	PermAnnouncementsRead  = "announcements.read"
	PermAnnouncementsWrite = "announcements.write"
	PermSupportUse         = "support.use"
	PermSupportManage      = "support.manage"
	PermReportsRead        = "reports.read"
	PermAuditRead          = "audit.read"
	PermUsersManage        = "users.manage"
	PermSettingsWrite      = "settings.write"
)

var DefaultPermissions = []string{
	PermPoliciesRead,
	PermPoliciesWrite,
	PermPoliciesRemind,
	PermDocumentsRead,
	PermDocumentsUpload,
	PermDocumentsReview,
	PermCategoriesWrite,
	PermAnnouncementsRead,
	PermAnnouncementsWrite,
	PermSupportUse,
	PermSupportManage,
	PermReportsRead,
	PermAuditRead,
	PermUsersManage,
	PermSettingsWrite,
}

var RolePermissions = map[Role][]string{
	RoleVLE: {
		PermDocumentsRead,
		PermDocumentsUpload,
		PermAnnouncementsRead,
		PermSupportUse,
	},
	RoleStaff: {
		PermPoliciesRead,
		PermPoliciesWrite,
		PermPoliciesRemind,
		PermDocumentsRead,
		PermDocumentsUpload,
		PermDocumentsReview,
		PermAnnouncementsRead,
		PermSupportUse,
		PermSupportManage,
		PermReportsRead,
	},
	RoleAdmin: DefaultPermissions,
}

// Allows answers from the static role table. The database copy seeded from the
// same table is what RequirePermission consults at runtime.
func (r Role) Allows(permission string) bool {
	for _, perm := range RolePermissions[r] {
		if perm == permission {
			return true
		}
	}
	return false
}
