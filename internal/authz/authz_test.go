package authz

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sqlzibar/internal/engineerr"
	"sqlzibar/internal/model"
)

type fakePrincipalLookup struct {
	principals map[string]model.Principal
}

func (f *fakePrincipalLookup) GetPrincipal(_ context.Context, id string) (*model.Principal, error) {
	p, ok := f.principals[id]
	if !ok {
		return nil, nil
	}
	return &p, nil
}

type fakePrincipalResolver struct {
	groups map[string][]string
}

func (f *fakePrincipalResolver) ResolvePrincipalIds(_ context.Context, principalID string) ([]string, error) {
	out := []string{principalID}
	out = append(out, f.groups[principalID]...)
	return out, nil
}

type fakePermissionLookup struct {
	permissions map[string]model.Permission
}

func (f *fakePermissionLookup) GetPermissionByKey(_ context.Context, key string) (*model.Permission, error) {
	p, ok := f.permissions[key]
	if !ok {
		return nil, nil
	}
	return &p, nil
}

type fakeAccessResolver struct {
	// accessible maps a permission key to the set of resource ids it grants.
	accessible map[string]map[string]bool
}

func (f *fakeAccessResolver) ResolveAccessibleResources(_ context.Context, _ []string, permission model.Permission, target *string, _ time.Time) ([]string, error) {
	set := f.accessible[permission.Key]
	if target == nil {
		var out []string
		for id := range set {
			out = append(out, id)
		}
		return out, nil
	}
	if set[*target] {
		return []string{*target}, nil
	}
	return nil, nil
}

func (f *fakeAccessResolver) HasAnyAccessibleResource(_ context.Context, principalIDs []string, permission model.Permission, at time.Time) (bool, error) {
	ids, err := f.ResolveAccessibleResources(context.Background(), principalIDs, permission, nil, at)
	return len(ids) > 0, err
}

type fakeTraceDependencies struct {
	resources map[string]model.Resource
	chain     map[string][]model.Resource
	grants    map[string][]model.Grant // resourceID -> grants
	roles     map[string]model.Role
	rolePerms map[string][]string
}

func (f *fakeTraceDependencies) GetResource(_ context.Context, id string) (*model.Resource, error) {
	r, ok := f.resources[id]
	if !ok {
		return nil, nil
	}
	return &r, nil
}

func (f *fakeTraceDependencies) AncestorChain(_ context.Context, resourceID string) ([]model.Resource, error) {
	return f.chain[resourceID], nil
}

func (f *fakeTraceDependencies) ActiveGrantsAtResources(_ context.Context, resourceIDs, _ []string, _ time.Time) ([]model.Grant, error) {
	var out []model.Grant
	for _, id := range resourceIDs {
		out = append(out, f.grants[id]...)
	}
	return out, nil
}

func (f *fakeTraceDependencies) RolesByIDs(_ context.Context, ids []string) ([]model.Role, error) {
	var out []model.Role
	for _, id := range ids {
		if r, ok := f.roles[id]; ok {
			out = append(out, r)
		}
	}
	return out, nil
}

func (f *fakeTraceDependencies) PermissionKeysForRole(_ context.Context, roleID string) ([]string, error) {
	return f.rolePerms[roleID], nil
}

func newTestService() (*Service, *fakeAccessResolver) {
	principalLookup := &fakePrincipalLookup{principals: map[string]model.Principal{
		"alice": {ID: "alice", DisplayName: "Alice"},
		"bob":   {ID: "bob", DisplayName: "Bob"},
		"eng":   {ID: "eng", DisplayName: "Engineering", PrincipalTypeID: model.PrincipalTypeGroup},
	}}
	permissionLookup := &fakePermissionLookup{permissions: map[string]model.Permission{
		"TEST_VIEW": {ID: "perm-view", Key: "TEST_VIEW", Name: "View"},
	}}
	access := &fakeAccessResolver{accessible: map[string]map[string]bool{
		"TEST_VIEW": {"project1": true, "team1": true, "agency1": true},
	}}
	resolver := &fakePrincipalResolver{groups: map[string][]string{"bob": {"eng"}}}
	tracer := &fakeTraceDependencies{
		resources: map[string]model.Resource{
			"project1": {ID: "project1", Name: "Project One", ResourceTypeID: "project"},
		},
		chain: map[string][]model.Resource{
			"project1": {
				{ID: "project1", Name: "Project One"},
				{ID: "team1", Name: "Team One"},
				{ID: "agency1", Name: "Agency One"},
				{ID: "root", Name: "Root"},
			},
		},
		grants: map[string][]model.Grant{
			"agency1": {{ID: "g1", PrincipalID: "alice", ResourceID: "agency1", RoleID: "role-viewer"}},
		},
		roles:     map[string]model.Role{"role-viewer": {ID: "role-viewer", Key: "viewer"}},
		rolePerms: map[string][]string{"role-viewer": {"TEST_VIEW"}},
	}
	return NewService(principalLookup, resolver, permissionLookup, access, tracer), access
}

func TestCheckAccess_Allowed(t *testing.T) {
	svc, _ := newTestService()
	allowed, err := svc.CheckAccess(context.Background(), "alice", "TEST_VIEW", "project1")
	require.NoError(t, err)
	assert.True(t, allowed)
}

func TestCheckAccess_DeniedCrossBranch(t *testing.T) {
	svc, _ := newTestService()
	allowed, err := svc.CheckAccess(context.Background(), "alice", "TEST_VIEW", "agency2")
	require.NoError(t, err)
	assert.False(t, allowed)
}

func TestCheckAccess_UnknownPermission(t *testing.T) {
	svc, _ := newTestService()
	_, err := svc.CheckAccess(context.Background(), "alice", "NOT_A_PERMISSION", "project1")
	require.Error(t, err)
	assert.True(t, engineerr.Is(err, engineerr.UnknownPermission))
}

func TestCheckAccess_UnknownPrincipal(t *testing.T) {
	svc, _ := newTestService()
	_, err := svc.CheckAccess(context.Background(), "ghost", "TEST_VIEW", "project1")
	require.Error(t, err)
	assert.True(t, engineerr.Is(err, engineerr.UnknownPrincipal))
}

func TestHasCapability(t *testing.T) {
	svc, _ := newTestService()
	has, err := svc.HasCapability(context.Background(), "bob", "TEST_VIEW")
	require.NoError(t, err)
	assert.True(t, has)
}

func TestTraceResourceAccess_GrantedMarksContribution(t *testing.T) {
	svc, _ := newTestService()
	trace, err := svc.TraceResourceAccess(context.Background(), "alice", "project1", "TEST_VIEW")
	require.NoError(t, err)

	assert.True(t, trace.AccessGranted)
	assert.NotEmpty(t, trace.Path)
	assert.Empty(t, trace.DenialReason)

	var sawContribution bool
	for _, g := range trace.GrantsUsed {
		if g.ContributedToDecision {
			sawContribution = true
		}
	}
	assert.True(t, sawContribution, "expected at least one grant marked as contributing")
}

func TestTraceResourceAccess_DeniedPopulatesReason(t *testing.T) {
	svc, access := newTestService()
	access.accessible["TEST_VIEW"] = map[string]bool{}

	trace, err := svc.TraceResourceAccess(context.Background(), "alice", "project1", "TEST_VIEW")
	require.NoError(t, err)

	assert.False(t, trace.AccessGranted)
	assert.NotEmpty(t, trace.DenialReason)
	assert.NotEmpty(t, trace.Suggestion)
	for _, g := range trace.GrantsUsed {
		assert.False(t, g.ContributedToDecision)
	}
}
