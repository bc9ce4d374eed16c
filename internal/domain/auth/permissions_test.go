package auth

import "testing"

func TestRolePermissionsSubset(t *testing.T) {
	allowed := map[string]struct{}{}
	for _, perm := range DefaultPermissions {
		allowed[perm] = struct{}{}
	}

	for _, role := range Roles {
		perms := RolePermissions[role]
		if len(perms) == 0 {
			t.Fatalf("role %s has no permissions", role)
		}
		for _, perm := range perms {
			if _, ok := allowed[perm]; !ok {
				t.Fatalf("role %s has unknown permission %s", role, perm)
			}
		}
	}
}

func TestDefaultPermissionsUnique(t *testing.T) {
	seen := map[string]struct{}{}
	for _, perm := range DefaultPermissions {
		if _, ok := seen[perm]; ok {
			t.Fatalf("duplicate permission %s", perm)
		}
		seen[perm] = struct{}{}
	}
}

func TestVLECannotReviewOrManagePolicies(t *testing.T) {
	for _, perm := range []string{PermDocumentsReview, PermPoliciesRead, PermPoliciesRemind, PermSupportManage, PermAuditRead} {
		if RoleVLE.Allows(perm) {
			t.Fatalf("vle should not hold %s", perm)
		}
	}
	if !RoleVLE.Allows(PermDocumentsUpload) || !RoleVLE.Allows(PermSupportUse) {
		t.Fatal("vle should upload documents and raise tickets")
	}
	if !RoleStaff.IsStaff() || RoleVLE.IsStaff() {
		t.Fatal("unexpected staff classification")
	}
}

func TestParseRole(t *testing.T) {
	if role, ok := ParseRole(" VLE "); !ok || role != RoleVLE {
		t.Fatalf("expected vle, got %q %v", role, ok)
	}
	if _, ok := ParseRole("hr"); ok {
		t.Fatal("expected unknown role to be rejected")
	}
}
