// Package xds holds the core resource-store entities that THE CORE compiles
// and serves: clusters, route configuration, virtual hosts, listeners, and
// the filter attachment tables.
package xds

import "time"

type ClusterSource string

const (
	ClusterSourceNative   ClusterSource = "native"
	ClusterSourceGateway  ClusterSource = "gateway"
	ClusterSourcePlatform ClusterSource = "platform"
)

type Cluster struct {
	ID            string
	Name          string
	ServiceName   string
	Configuration map[string]interface{}
	Version       int
	Source        ClusterSource
	Team          *string
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

type HealthStatus string

const (
	HealthUnknown   HealthStatus = "unknown"
	HealthHealthy   HealthStatus = "healthy"
	HealthDegraded  HealthStatus = "degraded"
	HealthUnhealthy HealthStatus = "unhealthy"
)

type ClusterEndpoint struct {
	ID           string
	ClusterID    string
	Address      string
	Port         int
	Weight       int
	Priority     int
	HealthStatus HealthStatus
	Metadata     map[string]interface{}
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

type RouteConfig struct {
	ID            string
	Name          string
	PathPrefix    string
	ClusterName   string
	Configuration map[string]interface{}
	Version       int
	Source        ClusterSource
	Team          *string
	ImportID      *string
	RouteOrder    *int
	Headers       map[string]interface{}
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

type VirtualHost struct {
	ID            string
	RouteConfigID string
	Name          string
	Domains       []string
	RuleOrder     int
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

type RouteMatchType string

const (
	MatchPrefix   RouteMatchType = "prefix"
	MatchExact    RouteMatchType = "exact"
	MatchRegex    RouteMatchType = "regex"
	MatchTemplate RouteMatchType = "template"
)

// RouteRule is a single match-and-action record, ordered within its
// VirtualHost.
type RouteRule struct {
	ID            string
	VirtualHostID string
	MatchType     RouteMatchType
	MatchValue    string
	CaseSensitive bool
	Headers       map[string]interface{}
	ClusterName   string
	RuleOrder     int
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

type Listener struct {
	ID            string
	Name          string
	Address       string
	Port          int
	Team          *string
	DataplaneID   *string
	Configuration map[string]interface{}
	Version       int
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

type ListenerRouteConfig struct {
	ListenerID    string
	RouteConfigID string
	RouteOrder    int
}

type Filter struct {
	ID        string
	Type      string
	Name      string
	Config    map[string]interface{}
	Team      *string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// AttachmentScope names which of the three parallel attachment tables a
// FilterAttachment row belongs to.
type AttachmentScope string

const (
	ScopeListener    AttachmentScope = "listener"
	ScopeVirtualHost AttachmentScope = "virtual_host"
	ScopeRoute       AttachmentScope = "route"
)

// FilterAttachment is the structurally shared shape of
// VirtualHostFilter / RouteFilter / ListenerFilter: within a single
// ScopeID both FilterID and FilterOrder are unique.
type FilterAttachment struct {
	ScopeID     string
	FilterID    string
	FilterOrder int
	Settings    map[string]interface{}
	CreatedAt   time.Time
	UpdatedAt   time.Time
}
