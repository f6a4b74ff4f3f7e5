package grants

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sqlzibar/internal/model"
	"sqlzibar/internal/principals"
)

type fakeGrantStore struct {
	created []model.Grant
	err     error
}

func (f *fakeGrantStore) CreateGrant(ctx context.Context, g model.Grant) error {
	if f.err != nil {
		return f.err
	}
	f.created = append(f.created, g)
	return nil
}

type fakePrincipalStore struct {
	groups map[string][]string
}

func (f *fakePrincipalStore) GetPrincipal(ctx context.Context, id string) (*model.Principal, error) {
	return &model.Principal{ID: id}, nil
}

func (f *fakePrincipalStore) GroupsForPrincipal(ctx context.Context, principalID string) ([]string, error) {
	return f.groups[principalID], nil
}

func (f *fakePrincipalStore) UserGroupsByPrincipalIDs(ctx context.Context, groupPrincipalIDs []string) ([]model.UserGroup, error) {
	return nil, nil
}

func (f *fakePrincipalStore) AddToGroup(ctx context.Context, principalID, groupID string) error {
	if f.groups == nil {
		f.groups = map[string][]string{}
	}
	f.groups[principalID] = append(f.groups[principalID], groupID)
	return nil
}

func (f *fakePrincipalStore) RemoveFromGroup(ctx context.Context, principalID, groupID string) error {
	kept := f.groups[principalID][:0]
	for _, g := range f.groups[principalID] {
		if g != groupID {
			kept = append(kept, g)
		}
	}
	f.groups[principalID] = kept
	return nil
}

type fakeInvalidator struct {
	calls int
	err   error
}

func (f *fakeInvalidator) Invalidate(ctx context.Context) error {
	f.calls++
	return f.err
}

func TestCreateGrant_InvalidatesCacheOnSuccess(t *testing.T) {
	store := &fakeGrantStore{}
	inv := &fakeInvalidator{}
	svc := NewService(store, principals.New(&fakePrincipalStore{}), inv)

	err := svc.CreateGrant(context.Background(), model.Grant{ID: "g1", PrincipalID: "alice", ResourceID: "res1", RoleID: "viewer"})

	require.NoError(t, err)
	assert.Len(t, store.created, 1)
	assert.Equal(t, 1, inv.calls)
}

func TestCreateGrant_SkipsInvalidateOnStoreFailure(t *testing.T) {
	store := &fakeGrantStore{err: assertErr}
	inv := &fakeInvalidator{}
	svc := NewService(store, principals.New(&fakePrincipalStore{}), inv)

	err := svc.CreateGrant(context.Background(), model.Grant{ID: "g1"})

	require.Error(t, err)
	assert.Equal(t, 0, inv.calls)
}

func TestAddToGroup_InvalidatesCache(t *testing.T) {
	pstore := &fakePrincipalStore{}
	inv := &fakeInvalidator{}
	svc := NewService(&fakeGrantStore{}, principals.New(pstore), inv)

	err := svc.AddToGroup(context.Background(), "bob", "eng")

	require.NoError(t, err)
	assert.Equal(t, []string{"eng"}, pstore.groups["bob"])
	assert.Equal(t, 1, inv.calls)
}

func TestRemoveFromGroup_InvalidatesCache(t *testing.T) {
	pstore := &fakePrincipalStore{groups: map[string][]string{"bob": {"eng"}}}
	inv := &fakeInvalidator{}
	svc := NewService(&fakeGrantStore{}, principals.New(pstore), inv)

	err := svc.RemoveFromGroup(context.Background(), "bob", "eng")

	require.NoError(t, err)
	assert.Empty(t, pstore.groups["bob"])
	assert.Equal(t, 1, inv.calls)
}

var assertErr = fakeErr("store failure")

type fakeErr string

func (e fakeErr) Error() string { return string(e) }
