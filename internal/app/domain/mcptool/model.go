// Package mcptool holds the McpTool entity: a callable tool definition,
// optionally bound to a compiled platform API route, exposed to
// tool-calling clients. It has no bearing on the xDS snapshot itself.
package mcptool

import "time"

type Category string

const (
	CategoryQuery  Category = "query"
	CategoryAction Category = "action"
	CategoryAdmin  Category = "admin"
)

type SourceType string

const (
	SourceManual   SourceType = "manual"
	SourceLearned  SourceType = "learned"
	SourceImported SourceType = "imported"
)

type Tool struct {
	ID             string
	Team           string
	Name           string
	Description    string
	Category       Category
	SourceType     SourceType
	InputSchema    map[string]interface{}
	OutputSchema   map[string]interface{}
	RouteID        *string
	HTTPMethod     *string
	HTTPPath       *string
	ClusterName    *string
	ListenerPort   *int
	HostHeader     *string
	Enabled        bool
	Confidence     *float64
	CreatedAt      time.Time
	UpdatedAt      time.Time
}
