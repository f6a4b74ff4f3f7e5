package principals

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sqlzibar/internal/engineerr"
	"sqlzibar/internal/model"
)

// fakeStore is an in-memory Store used so resolver tests don't need Postgres.
type fakeStore struct {
	principals  map[string]model.Principal
	memberships map[string][]string // principalID -> group principal ids
	groups      map[string]model.UserGroup
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		principals:  map[string]model.Principal{},
		memberships: map[string][]string{},
		groups:      map[string]model.UserGroup{},
	}
}

func (f *fakeStore) GetPrincipal(_ context.Context, id string) (*model.Principal, error) {
	p, ok := f.principals[id]
	if !ok {
		return nil, nil
	}
	return &p, nil
}

func (f *fakeStore) GroupsForPrincipal(_ context.Context, principalID string) ([]string, error) {
	return f.memberships[principalID], nil
}

func (f *fakeStore) UserGroupsByPrincipalIDs(_ context.Context, groupPrincipalIDs []string) ([]model.UserGroup, error) {
	var out []model.UserGroup
	for _, id := range groupPrincipalIDs {
		if g, ok := f.groups[id]; ok {
			out = append(out, g)
		}
	}
	return out, nil
}

func (f *fakeStore) AddToGroup(_ context.Context, principalID, groupID string) error {
	for _, g := range f.memberships[principalID] {
		if g == groupID {
			return nil
		}
	}
	f.memberships[principalID] = append(f.memberships[principalID], groupID)
	return nil
}

func (f *fakeStore) RemoveFromGroup(_ context.Context, principalID, groupID string) error {
	ids := f.memberships[principalID]
	out := ids[:0]
	for _, g := range ids {
		if g != groupID {
			out = append(out, g)
		}
	}
	f.memberships[principalID] = out
	return nil
}

func TestResolvePrincipalIds_SelfOnly(t *testing.T) {
	store := newFakeStore()
	store.principals["alice"] = model.Principal{ID: "alice", PrincipalTypeID: model.PrincipalTypeUser}

	r := New(store)
	ids, err := r.ResolvePrincipalIds(context.Background(), "alice")
	require.NoError(t, err)
	assert.Equal(t, []string{"alice"}, ids)
}

func TestResolvePrincipalIds_UnknownPrincipal(t *testing.T) {
	r := New(newFakeStore())
	ids, err := r.ResolvePrincipalIds(context.Background(), "ghost")
	require.NoError(t, err)
	assert.Empty(t, ids)
}

func TestAddToGroup_MonotonicAndReversible(t *testing.T) {
	store := newFakeStore()
	store.principals["bob"] = model.Principal{ID: "bob", PrincipalTypeID: model.PrincipalTypeUser}
	store.groups["eng"] = model.UserGroup{ID: "g1", PrincipalID: "eng", Name: "Engineering"}

	r := New(store)
	ctx := context.Background()

	require.NoError(t, r.AddToGroup(ctx, "bob", "eng"))

	ids, err := r.ResolvePrincipalIds(ctx, "bob")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"bob", "eng"}, ids)

	require.NoError(t, r.RemoveFromGroup(ctx, "bob", "eng"))

	ids, err = r.ResolvePrincipalIds(ctx, "bob")
	require.NoError(t, err)
	assert.Equal(t, []string{"bob"}, ids)
}

func TestAddToGroup_RejectsGroupPrincipal(t *testing.T) {
	store := newFakeStore()
	store.principals["eng"] = model.Principal{ID: "eng", PrincipalTypeID: model.PrincipalTypeGroup}

	r := New(store)
	err := r.AddToGroup(context.Background(), "eng", "other-group")

	require.Error(t, err)
	assert.True(t, engineerr.Is(err, engineerr.InvalidMembership))
}

func TestGetGroupsForPrincipal_GroupHasNone(t *testing.T) {
	store := newFakeStore()
	store.principals["eng"] = model.Principal{ID: "eng", PrincipalTypeID: model.PrincipalTypeGroup}

	r := New(store)
	groups, err := r.GetGroupsForPrincipal(context.Background(), "eng")
	require.NoError(t, err)
	assert.Empty(t, groups)
}

func TestRemoveFromGroup_IdempotentWhenAbsent(t *testing.T) {
	r := New(newFakeStore())
	err := r.RemoveFromGroup(context.Background(), "bob", "eng")
	require.NoError(t, err)
}
