// Package storage defines the repository contracts shared by every entity,
// plus the transaction-context plumbing (txcontext.go) repositories use to
// participate in a caller-managed transaction.
package storage

import (
	"context"

	"github.com/flowplane/controlplane/internal/app/domain/audit"
	"github.com/flowplane/controlplane/internal/app/domain/identity"
	"github.com/flowplane/controlplane/internal/app/domain/mcptool"
	"github.com/flowplane/controlplane/internal/app/domain/platformapi"
	"github.com/flowplane/controlplane/internal/app/domain/secret"
	"github.com/flowplane/controlplane/internal/app/domain/wasm"
	"github.com/flowplane/controlplane/internal/app/domain/xds"
	"github.com/flowplane/controlplane/internal/app/scopes"
)

// OrganizationStore covers Organization + OrgMembership.
type OrganizationStore interface {
	CreateOrganization(ctx context.Context, org identity.Organization) (identity.Organization, error)
	GetOrganization(ctx context.Context, id string) (identity.Organization, error)
	GetOrganizationByName(ctx context.Context, name string) (identity.Organization, error)
	UpdateOrganization(ctx context.Context, org identity.Organization) (identity.Organization, error)
	ListOrganizations(ctx context.Context, p Pagination) ([]identity.Organization, error)

	CreateMembership(ctx context.Context, m identity.OrgMembership) (identity.OrgMembership, error)
	// UpdateMembershipRole locks the membership row and, if it is the last
	// owner, refuses with Conflict.
	UpdateMembershipRole(ctx context.Context, membershipID string, role identity.OrgRole) (identity.OrgMembership, error)
	DeleteMembership(ctx context.Context, membershipID string) error
	ListMembershipsByOrg(ctx context.Context, orgID string) ([]identity.OrgMembership, error)
	CountOwners(ctx context.Context, orgID string) (int, error)
}

// TeamStore covers Team + TeamMembership.
type TeamStore interface {
	// CreateTeam allocates EnvoyAdminPort = max(existing)+1 (or basePort
	// for the first team) inside the same transaction as the insert.
	CreateTeam(ctx context.Context, team identity.Team, basePort int) (identity.Team, error)
	GetTeam(ctx context.Context, id string) (identity.Team, error)
	GetTeamByName(ctx context.Context, name string) (identity.Team, error)
	UpdateTeam(ctx context.Context, team identity.Team) (identity.Team, error)
	ListTeams(ctx context.Context, p Pagination) ([]identity.Team, error)

	CreateTeamMembership(ctx context.Context, m identity.TeamMembership) (identity.TeamMembership, error)
	ListTeamMembershipsByUser(ctx context.Context, userID string) ([]identity.TeamMembership, error)
}

// UserStore covers User.
type UserStore interface {
	CreateUser(ctx context.Context, u identity.User) (identity.User, error)
	GetUser(ctx context.Context, id string) (identity.User, error)
	GetUserByEmail(ctx context.Context, email string) (identity.User, error)
	UpdateUser(ctx context.Context, u identity.User) (identity.User, error)
	ListUsers(ctx context.Context, p Pagination) ([]identity.User, error)
}

// TokenStore covers PersonalAccessToken + TokenScope.
type TokenStore interface {
	CreateToken(ctx context.Context, t identity.PersonalAccessToken, scopeList []string) (identity.PersonalAccessToken, error)
	GetToken(ctx context.Context, id string) (identity.PersonalAccessToken, error)
	GetTokenScopes(ctx context.Context, tokenID string) ([]string, error)
	UpdateTokenStatus(ctx context.Context, id string, status identity.TokenStatus) error
	TouchLastUsed(ctx context.Context, id string) error
	IncrementUsage(ctx context.Context, id string) (int, error)
	ExpireStaleTokens(ctx context.Context) (int, error)
	CountActiveTokens(ctx context.Context) (int, error)
	ListTokens(ctx context.Context, p Pagination) ([]identity.PersonalAccessToken, error)
}

// InvitationStore covers Invitation.
type InvitationStore interface {
	CreateInvitation(ctx context.Context, inv identity.Invitation) (identity.Invitation, error)
	GetInvitation(ctx context.Context, id string) (identity.Invitation, error)
	UpdateInvitationStatus(ctx context.Context, id string, status identity.InvitationStatus) error
	ExpireStaleInvitations(ctx context.Context) (int, error)
}

// ScopeStore loads the scope vocabulary for the scope registry.
type ScopeStore interface {
	scopes.Loader
}

// ClusterStore covers Cluster + ClusterEndpoint.
type ClusterStore interface {
	CreateCluster(ctx context.Context, c xds.Cluster) (xds.Cluster, error)
	GetCluster(ctx context.Context, id string) (xds.Cluster, error)
	GetClusterByName(ctx context.Context, name string) (xds.Cluster, error)
	// UpdateCluster increments Version by 1 inside the same statement.
	UpdateCluster(ctx context.Context, c xds.Cluster) (xds.Cluster, error)
	DeleteCluster(ctx context.Context, id string) error
	ListClusters(ctx context.Context, p Pagination) ([]xds.Cluster, error)
	// ListClustersByTeams is admin-inclusive: empty teams[] returns every cluster.
	ListClustersByTeams(ctx context.Context, teams []string, p Pagination) ([]xds.Cluster, error)
	CountClusterReferences(ctx context.Context, clusterID string) (int, error)

	ListEndpoints(ctx context.Context, clusterID string) ([]xds.ClusterEndpoint, error)
	CreateEndpoint(ctx context.Context, e xds.ClusterEndpoint) (xds.ClusterEndpoint, error)
	UpdateEndpoint(ctx context.Context, e xds.ClusterEndpoint) (xds.ClusterEndpoint, error)
	DeleteEndpoint(ctx context.Context, id string) error
}

// RouteConfigStore covers RouteConfig + VirtualHost + RouteRule.
type RouteConfigStore interface {
	CreateRouteConfig(ctx context.Context, rc xds.RouteConfig) (xds.RouteConfig, error)
	GetRouteConfig(ctx context.Context, id string) (xds.RouteConfig, error)
	GetRouteConfigByName(ctx context.Context, name string) (xds.RouteConfig, error)
	UpdateRouteConfig(ctx context.Context, rc xds.RouteConfig) (xds.RouteConfig, error)
	// DeleteRouteConfig cascades to VirtualHosts and their filter
	// attachments.
	DeleteRouteConfig(ctx context.Context, id string) error
	ListRouteConfigsByTeams(ctx context.Context, teams []string, p Pagination) ([]xds.RouteConfig, error)

	CreateVirtualHost(ctx context.Context, vh xds.VirtualHost) (xds.VirtualHost, error)
	GetVirtualHost(ctx context.Context, id string) (xds.VirtualHost, error)
	UpdateVirtualHost(ctx context.Context, vh xds.VirtualHost) (xds.VirtualHost, error)
	DeleteVirtualHost(ctx context.Context, id string) error
	ListVirtualHostsByRouteConfig(ctx context.Context, routeConfigID string) ([]xds.VirtualHost, error)

	CreateRouteRule(ctx context.Context, r xds.RouteRule) (xds.RouteRule, error)
	ListRouteRulesByVirtualHost(ctx context.Context, virtualHostID string) ([]xds.RouteRule, error)
	DeleteRouteRule(ctx context.Context, id string) error
}

// ListenerStore covers Listener + ListenerRouteConfig.
type ListenerStore interface {
	CreateListener(ctx context.Context, l xds.Listener) (xds.Listener, error)
	GetListener(ctx context.Context, id string) (xds.Listener, error)
	UpdateListener(ctx context.Context, l xds.Listener) (xds.Listener, error)
	DeleteListener(ctx context.Context, id string) error
	ListListenersByTeams(ctx context.Context, teams []string, p Pagination) ([]xds.Listener, error)

	AttachRouteConfig(ctx context.Context, listenerID, routeConfigID string, order int) error
	DetachRouteConfig(ctx context.Context, listenerID, routeConfigID string) error
	ListRouteConfigsByListener(ctx context.Context, listenerID string) ([]xds.ListenerRouteConfig, error)
}

// FilterStore covers Filter.
type FilterStore interface {
	CreateFilter(ctx context.Context, f xds.Filter) (xds.Filter, error)
	GetFilter(ctx context.Context, id string) (xds.Filter, error)
	DeleteFilter(ctx context.Context, id string) error
	ListFiltersByTeams(ctx context.Context, teams []string, p Pagination) ([]xds.Filter, error)
}

// AttachmentStore is the shared contract for the three parallel
// attachment tables (VirtualHostFilter / RouteFilter / ListenerFilter).
type AttachmentStore interface {
	Attach(ctx context.Context, scopeID, filterID string, order int, settings map[string]interface{}) (xds.FilterAttachment, error)
	Detach(ctx context.Context, scopeID, filterID string) error
	ListByScope(ctx context.Context, scopeID string) ([]xds.FilterAttachment, error)
	Exists(ctx context.Context, scopeID, filterID string) (bool, error)
	GetNextOrder(ctx context.Context, scopeID string) (int, error)
	CountByFilter(ctx context.Context, filterID string) (int, error)
}

// SecretStore covers Secret.
type SecretStore interface {
	CreateSecret(ctx context.Context, s secret.Secret) (secret.Secret, error)
	GetSecret(ctx context.Context, id string) (secret.Secret, error)
	GetSecretByName(ctx context.Context, team, name string) (secret.Secret, error)
	// UpdateSecret increments Version by 1.
	UpdateSecret(ctx context.Context, s secret.Secret) (secret.Secret, error)
	DeleteSecret(ctx context.Context, id string) error
	// ListSecretsByTeams is secure: empty teams[] returns zero rows.
	ListSecretsByTeams(ctx context.Context, teams []string, p Pagination) ([]secret.Secret, error)
}

// WasmFilterStore covers CustomWasmFilter.
type WasmFilterStore interface {
	CreateWasmFilter(ctx context.Context, f wasm.CustomWasmFilter) (wasm.CustomWasmFilter, error)
	GetWasmFilter(ctx context.Context, id string) (wasm.CustomWasmFilter, error)
	GetWasmFilterBySHA256(ctx context.Context, sha256Hex string) (wasm.CustomWasmFilter, error)
	UpdateWasmFilter(ctx context.Context, f wasm.CustomWasmFilter) (wasm.CustomWasmFilter, error)
	DeleteWasmFilter(ctx context.Context, id string) error
	// ListWasmFiltersByTeams is secure: empty teams[] returns zero rows.
	ListWasmFiltersByTeams(ctx context.Context, teams []string, p Pagination) ([]wasm.CustomWasmFilter, error)
}

// PlatformAPIStore covers ApiDefinition + ApiRoute + ImportMetadata +
// ClusterReference.
type PlatformAPIStore interface {
	CreateApiDefinition(ctx context.Context, d platformapi.ApiDefinition) (platformapi.ApiDefinition, error)
	GetApiDefinition(ctx context.Context, id string) (platformapi.ApiDefinition, error)
	GetApiDefinitionByDomain(ctx context.Context, team, domain string) (platformapi.ApiDefinition, error)
	UpdateApiDefinition(ctx context.Context, d platformapi.ApiDefinition) (platformapi.ApiDefinition, error)
	ListApiDefinitionsByTeams(ctx context.Context, teams []string, p Pagination) ([]platformapi.ApiDefinition, error)

	CreateApiRoute(ctx context.Context, r platformapi.ApiRoute) (platformapi.ApiRoute, error)
	ListApiRoutesByDefinition(ctx context.Context, definitionID string) ([]platformapi.ApiRoute, error)
	DeleteApiRoute(ctx context.Context, id string) error

	CreateImportMetadata(ctx context.Context, m platformapi.ImportMetadata) (platformapi.ImportMetadata, error)
	GetImportMetadataByName(ctx context.Context, team, specName string) (platformapi.ImportMetadata, error)
	DeleteImportMetadata(ctx context.Context, id string) error

	// UpsertClusterReference increments RouteCount if (clusterID, importID)
	// exists, else inserts it with RouteCount=1.
	UpsertClusterReference(ctx context.Context, ref platformapi.ClusterReference) error
	RemoveClusterReference(ctx context.Context, clusterID, importID string) (remainingTotal int, err error)
	FindClusterByUpstreamHash(ctx context.Context, hash string) (xds.Cluster, bool, error)
}

// McpToolStore covers McpTool.
type McpToolStore interface {
	CreateTool(ctx context.Context, t mcptool.Tool) (mcptool.Tool, error)
	GetTool(ctx context.Context, id string) (mcptool.Tool, error)
	UpdateTool(ctx context.Context, t mcptool.Tool) (mcptool.Tool, error)
	DeleteTool(ctx context.Context, id string) error
	// ListToolsByTeams is secure: empty teams[] returns zero rows.
	ListToolsByTeams(ctx context.Context, teams []string, p Pagination) ([]mcptool.Tool, error)
}

// AuditStore covers AuditEvent.
type AuditStore interface {
	RecordEvent(ctx context.Context, e audit.Event) (audit.Event, error)
	ListEvents(ctx context.Context, f audit.Filter) ([]audit.Event, error)
}

// Store is the union of every repository contract, implemented by the
// postgres package's Store type.
type Store interface {
	OrganizationStore
	TeamStore
	UserStore
	TokenStore
	InvitationStore
	ScopeStore
	ClusterStore
	RouteConfigStore
	ListenerStore
	FilterStore
	SecretStore
	WasmFilterStore
	PlatformAPIStore
	McpToolStore
	AuditStore

	VirtualHostFilters() AttachmentStore
	RouteFilters() AttachmentStore
	ListenerFilters() AttachmentStore

	WithTx(ctx context.Context, fn func(ctx context.Context) error) error
}
