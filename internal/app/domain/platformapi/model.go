// Package platformapi holds the platform-API definition graph compiled
// into the low-level xDS resources in package xds, plus the import
// tracking entities used for cluster deduplication across imports.
package platformapi

import "time"

type ApiDefinition struct {
	ID                  string
	Team                string
	Domain              string
	ListenerIsolation   bool
	TargetListeners     []string
	TLSConfig           map[string]interface{}
	Metadata            map[string]interface{}
	BootstrapURI        *string
	BootstrapRevision   int
	GeneratedListenerID *string
	Version             int
	CreatedAt           time.Time
	UpdatedAt           time.Time
}

type MatchType string

const (
	MatchPrefix   MatchType = "prefix"
	MatchExact    MatchType = "exact"
	MatchRegex    MatchType = "regex"
	MatchTemplate MatchType = "template"
)

type UpstreamTarget struct {
	Host   string `json:"host"`
	Port   int    `json:"port"`
	Weight int    `json:"weight,omitempty"`
}

type ApiRoute struct {
	ID                 string
	ApiDefinitionID    string
	MatchType          MatchType
	MatchValue         string
	CaseSensitive      bool
	Headers            map[string]interface{}
	RewritePrefix      *string
	RewriteRegex       *string
	RewriteSubstitution *string
	UpstreamTargets    []UpstreamTarget
	TimeoutSeconds     *int
	OverrideConfig     map[string]interface{}
	DeploymentNote     *string
	RouteOrder         int
	GeneratedRouteID   *string
	GeneratedClusterID *string
	FilterConfig       map[string]interface{}
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

type ImportMetadata struct {
	ID            string
	SpecName      string
	Team          string
	SpecVersion   *string
	SpecChecksum  *string
	SourceContent *string
	ListenerName  *string
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// ClusterReference is the canonical reverse index used for cluster
// deduplication across imports and across Platform API compiles: a cluster
// is deleted only when its RouteCount drops to zero across all referencing
// imports.
type ClusterReference struct {
	ClusterID  string
	ImportID   string
	RouteCount int
}
