package usecase

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/docqa-platform/retrieval/internal/core/domain"
)

// DefaultMaxACLGroups bounds how many groups are enumerated in the filter.
// Beyond it the group list is truncated with a warning instead of failing the
// request; tenant and sensitivity clauses still bound exposure.
const DefaultMaxACLGroups = 100

// RoleTenantAdmin widens the default filter to the whole tenant: no group or
// sensitivity restriction. It is evaluated on UserContext.Roles only, never
// on caller-supplied request fields.
const RoleTenantAdmin = "tenant_admin"

// BuildACLFilter builds the opaque boolean-expression string the index
// applies before ranking. The expression is conjunctive: tenant equality,
// is_active, sensitivity at or below clearance, and group membership (chunks
// with no ACL groups are implicitly public). Caller-supplied extra filters
// are ANDed in; they can only narrow access.
func BuildACLFilter(user domain.UserContext, extra map[string]string, maxGroups int) (string, []string, error) {
	if strings.TrimSpace(user.TenantID) == "" {
		return "", nil, domain.WrapError(domain.ErrInvalidInput, "build acl filter", fmt.Errorf("tenant_id is required"))
	}
	if maxGroups <= 0 {
		maxGroups = DefaultMaxACLGroups
	}

	var warnings []string
	must := []map[string]any{
		{"key": "tenant_id", "match": map[string]any{"value": user.TenantID}},
		{"key": "is_active", "match": map[string]any{"value": true}},
	}

	if !user.HasRole(RoleTenantAdmin) {
		must = append(must, map[string]any{
			"key":   "sensitivity",
			"range": map[string]any{"lte": user.ClearanceLevel},
		})

		principals := user.AccessPrincipals()
		sort.Strings(principals)
		if len(principals) > maxGroups {
			warnings = append(warnings, fmt.Sprintf(
				"acl group filter truncated from %d to %d principals", len(principals), maxGroups))
			principals = principals[:maxGroups]
		}
		// Chunks without ACL groups are public within the tenant.
		must = append(must, map[string]any{
			"should": []map[string]any{
				{"key": "acl_groups", "match": map[string]any{"any": principals}},
				{"is_empty": map[string]any{"key": "acl_groups"}},
			},
		})
	}

	keys := make([]string, 0, len(extra))
	for k := range extra {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		v := strings.TrimSpace(extra[k])
		if k = strings.TrimSpace(k); k == "" || v == "" {
			continue
		}
		must = append(must, map[string]any{"key": k, "match": map[string]any{"value": v}})
	}

	expr, err := json.Marshal(map[string]any{"must": must})
	if err != nil {
		return "", nil, fmt.Errorf("marshal acl filter: %w", err)
	}
	return string(expr), warnings, nil
}
