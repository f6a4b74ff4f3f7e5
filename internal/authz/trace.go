package authz

import (
	"context"
	"fmt"
	"time"

	"sqlzibar/internal/engineerr"
	"sqlzibar/internal/model"
)

// TraceDependencies is the read-only storage surface trace generation needs
// beyond what CheckAccess/HasCapability already use: the target's ancestor
// chain, every active grant anywhere on it, and role/permission metadata to
// annotate which of those grants actually carry the permission being traced.
type TraceDependencies interface {
	GetResource(ctx context.Context, id string) (*model.Resource, error)
	AncestorChain(ctx context.Context, resourceID string) ([]model.Resource, error)
	ActiveGrantsAtResources(ctx context.Context, resourceIDs, principalIDs []string, at time.Time) ([]model.Grant, error)
	RolesByIDs(ctx context.Context, ids []string) ([]model.Role, error)
	PermissionKeysForRole(ctx context.Context, roleID string) ([]string, error)
}

// PathNode is one resource on the ancestor chain from the target up to the
// root, annotated with whatever grants were found there.
type PathNode struct {
	ResourceID          string
	ResourceName        string
	Depth               int
	Grants              []GrantTrace
	EffectivePermissions []string
}

// GrantTrace annotates a single active grant discovered during trace
// generation: which principal holds it, whether that principal entered via
// a group, and whether the grant actually contributed to the decision.
type GrantTrace struct {
	GrantID              string
	ResourceID           string
	PrincipalID          string
	PrincipalDisplayName string
	ViaGroup             bool
	ViaGroupPrincipalID  string
	RoleID               string
	RoleKey              string
	ContributedToDecision bool
}

// RoleTrace annotates a role that appeared on the chain: whether it is
// virtual, and whether any grant using it contributed to the decision.
type RoleTrace struct {
	RoleID      string
	Key         string
	IsVirtual   bool
	Contributed bool
}

// PrincipalTrace annotates a principal in the resolved principal set.
type PrincipalTrace struct {
	PrincipalID          string
	DisplayName          string
	ViaGroup             bool
	ViaGroupPrincipalID  string
}

// Trace is the diagnostic result of TraceResourceAccess (spec §4.3, §6).
type Trace struct {
	ResourceID       string
	ResourceName     string
	ResourceTypeID   string
	PrincipalID      string
	PermissionKey    string
	PermissionName   string
	AccessGranted    bool
	Path             []PathNode
	GrantsUsed       []GrantTrace
	RolesUsed        []RoleTrace
	PrincipalsChecked []PrincipalTrace
	DecisionSummary  string
	DenialReason     string
	Suggestion       string
}

// TraceResourceAccess runs the same decision CheckAccess would, additionally
// collecting the diagnostic facts described in spec §4.3/§6. It never
// mutates state and is safe to call for a nonexistent principal or resource
// (the former still fails with UNKNOWN_PRINCIPAL; the latter simply yields
// an empty ancestor chain and a denied trace).
func (s *Service) TraceResourceAccess(ctx context.Context, principalID, resourceID, permissionKey string) (Trace, error) {
	principal, permission, err := s.loadPrincipalAndPermission(ctx, principalID, permissionKey)
	if err != nil {
		return Trace{}, err
	}

	principalIDs, err := s.principalResolver.ResolvePrincipalIds(ctx, principal.ID)
	if err != nil {
		return Trace{}, engineerr.FromStoreError("trace resource access", err)
	}

	at := s.now()
	accessibleIDs, err := s.accessResolver.ResolveAccessibleResources(ctx, principalIDs, *permission, &resourceID, at)
	if err != nil {
		return Trace{}, engineerr.FromStoreError("trace resource access", err)
	}
	accessGranted := len(accessibleIDs) > 0

	trace := Trace{
		ResourceID:    resourceID,
		PrincipalID:   principalID,
		PermissionKey: permission.Key,
		PermissionName: permission.Name,
		AccessGranted: accessGranted,
	}

	if resource, err := s.tracer.GetResource(ctx, resourceID); err != nil {
		return Trace{}, engineerr.FromStoreError("trace resource access", err)
	} else if resource != nil {
		trace.ResourceName = resource.Name
		trace.ResourceTypeID = resource.ResourceTypeID
	}

	chain, err := s.tracer.AncestorChain(ctx, resourceID)
	if err != nil {
		return Trace{}, engineerr.FromStoreError("trace resource access", err)
	}

	ancestorIDs := make([]string, len(chain))
	for i, r := range chain {
		ancestorIDs[i] = r.ID
	}

	grants, err := s.tracer.ActiveGrantsAtResources(ctx, ancestorIDs, principalIDs, at)
	if err != nil {
		return Trace{}, engineerr.FromStoreError("trace resource access", err)
	}

	roleCarries, roleMeta, err := s.roleCarriesPermission(ctx, grants, permission.Key)
	if err != nil {
		return Trace{}, engineerr.FromStoreError("trace resource access", err)
	}

	principalNames := s.principalDisplayNames(ctx, principalIDs)
	viaGroup := map[string]bool{principal.ID: false}
	for _, id := range principalIDs {
		if id != principal.ID {
			viaGroup[id] = true
		}
	}

	grantTraces := make([]GrantTrace, 0, len(grants))
	for _, g := range grants {
		gt := GrantTrace{
			GrantID:                g.ID,
			ResourceID:             g.ResourceID,
			PrincipalID:            g.PrincipalID,
			PrincipalDisplayName:   principalNames[g.PrincipalID],
			ViaGroup:               viaGroup[g.PrincipalID],
			RoleID:                 g.RoleID,
			ContributedToDecision:  accessGranted && roleCarries[g.RoleID],
		}
		if gt.ViaGroup {
			gt.ViaGroupPrincipalID = g.PrincipalID
		}
		if meta, ok := roleMeta[g.RoleID]; ok {
			gt.RoleKey = meta.Key
		}
		grantTraces = append(grantTraces, gt)
	}
	trace.GrantsUsed = grantTraces

	for roleID, meta := range roleMeta {
		contributed := false
		for _, gt := range grantTraces {
			if gt.RoleID == roleID && gt.ContributedToDecision {
				contributed = true
				break
			}
		}
		trace.RolesUsed = append(trace.RolesUsed, RoleTrace{
			RoleID:      roleID,
			Key:         meta.Key,
			IsVirtual:   meta.IsVirtual,
			Contributed: contributed,
		})
	}

	for _, id := range principalIDs {
		trace.PrincipalsChecked = append(trace.PrincipalsChecked, PrincipalTrace{
			PrincipalID:         id,
			DisplayName:         principalNames[id],
			ViaGroup:            viaGroup[id],
			ViaGroupPrincipalID: firstOr(viaGroup[id], id),
		})
	}

	trace.Path = buildPath(chain, grantTraces, roleMeta)

	if accessGranted {
		trace.DecisionSummary = fmt.Sprintf("%s is granted %s at %s via a cascading grant on the ancestor chain.", principal.DisplayName, permission.Key, resourceID)
	} else {
		trace.DecisionSummary = fmt.Sprintf("%s is denied %s at %s.", principal.DisplayName, permission.Key, resourceID)
		trace.DenialReason = "no role carrying this permission is granted to this principal or its groups at this resource or any ancestor"
		trace.Suggestion = fmt.Sprintf("grant a role that carries %s to %s (or a group it belongs to) at %s or an ancestor of it", permission.Key, principal.DisplayName, resourceID)
	}

	return trace, nil
}

type roleMetadata struct {
	Key         string
	IsVirtual   bool
	Permissions []string
}

func (s *Service) roleCarriesPermission(ctx context.Context, grants []model.Grant, permissionKey string) (map[string]bool, map[string]roleMetadata, error) {
	roleIDSet := map[string]bool{}
	for _, g := range grants {
		roleIDSet[g.RoleID] = true
	}
	roleIDs := make([]string, 0, len(roleIDSet))
	for id := range roleIDSet {
		roleIDs = append(roleIDs, id)
	}

	roles, err := s.tracer.RolesByIDs(ctx, roleIDs)
	if err != nil {
		return nil, nil, err
	}

	carries := make(map[string]bool, len(roles))
	meta := make(map[string]roleMetadata, len(roles))
	for _, role := range roles {
		keys, err := s.tracer.PermissionKeysForRole(ctx, role.ID)
		if err != nil {
			return nil, nil, err
		}
		meta[role.ID] = roleMetadata{Key: role.Key, IsVirtual: role.IsVirtual, Permissions: keys}
		for _, k := range keys {
			if k == permissionKey {
				carries[role.ID] = true
				break
			}
		}
	}
	return carries, meta, nil
}

func (s *Service) principalDisplayNames(ctx context.Context, principalIDs []string) map[string]string {
	names := make(map[string]string, len(principalIDs))
	for _, id := range principalIDs {
		p, err := s.principalExistence.GetPrincipal(ctx, id)
		if err != nil || p == nil {
			continue
		}
		names[id] = p.DisplayName
	}
	return names
}

func buildPath(chain []model.Resource, grants []GrantTrace, roleMeta map[string]roleMetadata) []PathNode {
	path := make([]PathNode, 0, len(chain))
	for depth, r := range chain {
		node := PathNode{ResourceID: r.ID, ResourceName: r.Name, Depth: depth}
		seenPermissions := map[string]bool{}
		for _, g := range grants {
			if g.ResourceID != r.ID {
				continue
			}
			node.Grants = append(node.Grants, g)
			if meta, ok := roleMeta[g.RoleID]; ok && g.ContributedToDecision {
				for _, k := range meta.Permissions {
					seenPermissions[k] = true
				}
			}
		}
		for k := range seenPermissions {
			node.EffectivePermissions = append(node.EffectivePermissions, k)
		}
		path = append(path, node)
	}
	return path
}

func firstOr(cond bool, v string) string {
	if cond {
		return v
	}
	return ""
}
