package access

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sqlzibar/internal/model"
)

// fakeStore computes the downward closure over an in-memory parent map so
// resolver orchestration (role lookup -> anchors -> closure -> target
// refinement) can be tested without a database.
type fakeStore struct {
	rolesForPermission map[string][]string // permissionID -> roleIDs
	grants             []model.Grant
	parent             map[string]string // resourceID -> parentID
	resourceType       map[string]string // resourceID -> resourceTypeID
}

func (f *fakeStore) RoleIDsForPermission(_ context.Context, permissionID string) ([]string, error) {
	return f.rolesForPermission[permissionID], nil
}

func (f *fakeStore) descendantsOf(anchor string) map[string]bool {
	out := map[string]bool{anchor: true}
	changed := true
	for changed {
		changed = false
		for child, parent := range f.parent {
			if out[parent] && !out[child] {
				out[child] = true
				changed = true
			}
		}
	}
	return out
}

func (f *fakeStore) AccessibleResourceIDs(_ context.Context, principalIDs, roleIDs []string, at time.Time, resourceTypeID *string) ([]string, error) {
	principalSet := toSet(principalIDs)
	roleSet := toSet(roleIDs)

	anchors := map[string]bool{}
	for _, g := range f.grants {
		if !principalSet[g.PrincipalID] || !roleSet[g.RoleID] || !g.ActiveAt(at) {
			continue
		}
		anchors[g.ResourceID] = true
	}

	closure := map[string]bool{}
	for a := range anchors {
		for d := range f.descendantsOf(a) {
			closure[d] = true
		}
	}

	var out []string
	for id := range closure {
		if resourceTypeID != nil && f.resourceType[id] != *resourceTypeID {
			continue
		}
		out = append(out, id)
	}
	return out, nil
}

func (f *fakeStore) ComposableAccessibleQuery(ctx context.Context, principalIDs, roleIDs []string, at time.Time, resourceTypeID *string) (ComposableQuery, error) {
	ids, _ := f.AccessibleResourceIDs(ctx, principalIDs, roleIDs, at, resourceTypeID)
	return ComposableQuery{CTE: "fake", Args: []any{ids}}, nil
}

func toSet(ss []string) map[string]bool {
	out := make(map[string]bool, len(ss))
	for _, s := range ss {
		out[s] = true
	}
	return out
}

func viewerPermission() model.Permission {
	return model.Permission{ID: "perm-view", Key: "TEST_VIEW"}
}

func TestCascade_GrantAtAncestorReachesDescendants(t *testing.T) {
	store := &fakeStore{
		rolesForPermission: map[string][]string{"perm-view": {"role-viewer"}},
		parent: map[string]string{
			"agency1": "root",
			"team1":   "agency1",
			"project1": "team1",
			"agency2": "root",
		},
		grants: []model.Grant{
			{PrincipalID: "alice", ResourceID: "agency1", RoleID: "role-viewer"},
		},
	}
	r := New(store)
	ctx := context.Background()
	now := time.Now()

	for _, target := range []string{"project1", "team1", "agency1"} {
		id := target
		ids, err := r.ResolveAccessibleResources(ctx, []string{"alice"}, viewerPermission(), &id, now)
		require.NoError(t, err)
		assert.Equal(t, []string{target}, ids, "expected access at %s", target)
	}

	sibling := "agency2"
	ids, err := r.ResolveAccessibleResources(ctx, []string{"alice"}, viewerPermission(), &sibling, now)
	require.NoError(t, err)
	assert.Empty(t, ids, "sibling branch must not be reachable")
}

func TestCrossBranchDenial(t *testing.T) {
	store := &fakeStore{
		rolesForPermission: map[string][]string{"perm-view": {"role-viewer", "role-admin"}},
		parent: map[string]string{
			"agency1":  "root",
			"agency2":  "root",
			"resource-in-2": "agency2",
		},
		grants: []model.Grant{
			{PrincipalID: "alice", ResourceID: "agency1", RoleID: "role-admin"},
		},
	}
	r := New(store)
	target := "resource-in-2"
	ids, err := r.ResolveAccessibleResources(context.Background(), []string{"alice"}, viewerPermission(), &target, time.Now())
	require.NoError(t, err)
	assert.Empty(t, ids)
}

func TestDenyByDefault_NoGrants(t *testing.T) {
	store := &fakeStore{rolesForPermission: map[string][]string{"perm-view": {"role-viewer"}}}
	r := New(store)

	has, err := r.HasAnyAccessibleResource(context.Background(), []string{"alice"}, viewerPermission(), time.Now())
	require.NoError(t, err)
	assert.False(t, has)
}

func TestUnregisteredPermission_NoRolesCarryIt(t *testing.T) {
	store := &fakeStore{rolesForPermission: map[string][]string{}}
	r := New(store)

	ids, err := r.ResolveAccessibleResources(context.Background(), []string{"alice"}, viewerPermission(), nil, time.Now())
	require.NoError(t, err)
	assert.Empty(t, ids)
}

func TestTimeWindow_FutureEffectiveFromIsAbsent(t *testing.T) {
	future := time.Now().Add(time.Hour)
	store := &fakeStore{
		rolesForPermission: map[string][]string{"perm-view": {"role-viewer"}},
		parent:             map[string]string{"project1": "agency1"},
		grants: []model.Grant{
			{PrincipalID: "alice", ResourceID: "agency1", RoleID: "role-viewer", EffectiveFrom: &future},
		},
	}
	r := New(store)
	has, err := r.HasAnyAccessibleResource(context.Background(), []string{"alice"}, viewerPermission(), time.Now())
	require.NoError(t, err)
	assert.False(t, has)
}

func TestResourceTypeScoping_FiltersFinalMembershipOnly(t *testing.T) {
	typeID := "project"
	perm := model.Permission{ID: "perm-view", Key: "TEST_VIEW", ResourceTypeID: &typeID}

	store := &fakeStore{
		rolesForPermission: map[string][]string{"perm-view": {"role-viewer"}},
		parent:             map[string]string{"team1": "agency1", "project1": "team1"},
		resourceType: map[string]string{
			"agency1":  "agency",
			"team1":    "team",
			"project1": "project",
		},
		grants: []model.Grant{
			{PrincipalID: "alice", ResourceID: "agency1", RoleID: "role-viewer"},
		},
	}
	r := New(store)
	ids, err := r.ResolveAccessibleResources(context.Background(), []string{"alice"}, perm, nil, time.Now())
	require.NoError(t, err)
	assert.Equal(t, []string{"project1"}, ids, "only the project-typed descendant should remain after scoping")
}
