package usecase

import (
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/docqa-platform/retrieval/internal/core/domain"
)

func testUser() domain.UserContext {
	return domain.UserContext{
		UserID:         "user-7",
		TenantID:       "tenant-acme",
		Groups:         []string{"engineering", "platform"},
		ClearanceLevel: domain.SensitivityConfidential,
	}
}

func TestBuildACLFilterAlwaysScopesTenantAndActive(t *testing.T) {
	filter, warnings, err := BuildACLFilter(testUser(), nil, 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(warnings) != 0 {
		t.Fatalf("unexpected warnings: %v", warnings)
	}
	if !strings.Contains(filter, `"tenant_id"`) || !strings.Contains(filter, "tenant-acme") {
		t.Fatalf("tenant clause missing: %s", filter)
	}
	if !strings.Contains(filter, `"is_active"`) {
		t.Fatalf("is_active clause missing: %s", filter)
	}
}

func TestBuildACLFilterEnforcesClearanceAndGroups(t *testing.T) {
	filter, _, err := BuildACLFilter(testUser(), nil, 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(filter, fmt.Sprintf(`"lte":%d`, domain.SensitivityConfidential)) {
		t.Fatalf("sensitivity ceiling missing: %s", filter)
	}
	if !strings.Contains(filter, "engineering") || !strings.Contains(filter, "user-7") {
		t.Fatalf("group principals missing: %s", filter)
	}
	if !strings.Contains(filter, "is_empty") {
		t.Fatalf("public-chunk clause missing: %s", filter)
	}
}

func TestBuildACLFilterTenantAdminSkipsGroupAndSensitivity(t *testing.T) {
	admin := testUser()
	admin.Roles = []string{RoleTenantAdmin}
	admin.ClearanceLevel = domain.SensitivityPublic

	filter, _, err := BuildACLFilter(admin, nil, 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if strings.Contains(filter, "sensitivity") || strings.Contains(filter, "acl_groups") {
		t.Fatalf("admin filter must not restrict by sensitivity or groups: %s", filter)
	}
	if !strings.Contains(filter, "tenant-acme") {
		t.Fatalf("admin filter still needs tenant scope: %s", filter)
	}
}

func TestBuildACLFilterTruncatesGroupListWithWarning(t *testing.T) {
	user := testUser()
	user.Groups = user.Groups[:0]
	for i := 0; i < 150; i++ {
		user.Groups = append(user.Groups, fmt.Sprintf("group-%03d", i))
	}

	filter, warnings, err := BuildACLFilter(user, nil, 100)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(warnings) != 1 || !strings.Contains(warnings[0], "truncated") {
		t.Fatalf("expected a single truncation warning, got %v", warnings)
	}
	// Principals sort lexicographically; the tail groups fall off.
	if strings.Contains(filter, "group-149") {
		t.Fatalf("truncated filter still contains tail group: %s", filter)
	}
	if !strings.Contains(filter, "group-000") {
		t.Fatalf("truncated filter lost head group: %s", filter)
	}
}

func TestBuildACLFilterDeterministicAcrossRuns(t *testing.T) {
	user := testUser()
	user.Groups = []string{"zeta", "alpha", "mid"}
	extra := map[string]string{"doc_type": "policy", "department": "finance"}

	first, _, err := BuildACLFilter(user, extra, 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for i := 0; i < 10; i++ {
		again, _, err := BuildACLFilter(user, extra, 0)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if again != first {
			t.Fatalf("filter drifted on run %d:\n%s\nvs\n%s", i, again, first)
		}
	}
}

func TestBuildACLFilterExtraFiltersOnlyNarrow(t *testing.T) {
	filter, _, err := BuildACLFilter(testUser(), map[string]string{"doc_type": "runbook"}, 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(filter, `"doc_type"`) || !strings.Contains(filter, "runbook") {
		t.Fatalf("extra filter clause missing: %s", filter)
	}
	if !strings.Contains(filter, "tenant-acme") || !strings.Contains(filter, "sensitivity") {
		t.Fatalf("extra filters must not replace the ACL clauses: %s", filter)
	}
}

func TestBuildACLFilterRejectsMissingTenant(t *testing.T) {
	user := testUser()
	user.TenantID = "  "
	_, _, err := BuildACLFilter(user, nil, 0)
	if !errors.Is(err, domain.ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
}
