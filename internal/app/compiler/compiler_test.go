package compiler

import (
	"context"
	"fmt"
	"testing"

	auditdomain "github.com/flowplane/controlplane/internal/app/domain/audit"
	"github.com/flowplane/controlplane/internal/app/domain/platformapi"
	"github.com/flowplane/controlplane/internal/app/domain/xds"
	"github.com/flowplane/controlplane/internal/app/storage"

	"github.com/flowplane/controlplane/internal/app/audit"
)

type fakeStore struct {
	storage.Store

	definitions       map[string]platformapi.ApiDefinition
	definitionsByName map[string]string // team|domain -> id
	routeConfigs      map[string]xds.RouteConfig
	routeConfigByName map[string]string
	virtualHosts      map[string][]xds.VirtualHost // by routeConfigID
	routeRules        map[string][]xds.RouteRule   // by virtualHostID
	clusters          map[string]xds.Cluster
	clustersByHash    map[string]string
	clusterRefs       map[string]int
	listeners         map[string]xds.Listener
	listenerAttach    map[string][]xds.ListenerRouteConfig
	nextID            int
	auditEvents       []auditdomain.Event
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		definitions:       map[string]platformapi.ApiDefinition{},
		definitionsByName: map[string]string{},
		routeConfigs:      map[string]xds.RouteConfig{},
		routeConfigByName: map[string]string{},
		virtualHosts:      map[string][]xds.VirtualHost{},
		routeRules:        map[string][]xds.RouteRule{},
		clusters:          map[string]xds.Cluster{},
		clustersByHash:    map[string]string{},
		clusterRefs:       map[string]int{},
		listeners:         map[string]xds.Listener{},
		listenerAttach:    map[string][]xds.ListenerRouteConfig{},
	}
}

func (f *fakeStore) genID(prefix string) string {
	f.nextID++
	return fmt.Sprintf("%s-%d", prefix, f.nextID)
}

func (f *fakeStore) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

func (f *fakeStore) GetApiDefinitionByDomain(ctx context.Context, team, domain string) (platformapi.ApiDefinition, error) {
	id, ok := f.definitionsByName[team+"|"+domain]
	if !ok {
		return platformapi.ApiDefinition{}, fmt.Errorf("not found")
	}
	return f.definitions[id], nil
}

func (f *fakeStore) GetApiDefinition(ctx context.Context, id string) (platformapi.ApiDefinition, error) {
	d, ok := f.definitions[id]
	if !ok {
		return platformapi.ApiDefinition{}, fmt.Errorf("not found")
	}
	return d, nil
}

func (f *fakeStore) CreateApiDefinition(ctx context.Context, d platformapi.ApiDefinition) (platformapi.ApiDefinition, error) {
	d.ID = f.genID("def")
	f.definitions[d.ID] = d
	f.definitionsByName[d.Team+"|"+d.Domain] = d.ID
	return d, nil
}

func (f *fakeStore) UpdateApiDefinition(ctx context.Context, d platformapi.ApiDefinition) (platformapi.ApiDefinition, error) {
	f.definitions[d.ID] = d
	return d, nil
}

func (f *fakeStore) GetRouteConfigByName(ctx context.Context, name string) (xds.RouteConfig, error) {
	id, ok := f.routeConfigByName[name]
	if !ok {
		return xds.RouteConfig{}, fmt.Errorf("not found")
	}
	return f.routeConfigs[id], nil
}

func (f *fakeStore) CreateRouteConfig(ctx context.Context, rc xds.RouteConfig) (xds.RouteConfig, error) {
	rc.ID = f.genID("rc")
	rc.Version = 1
	f.routeConfigs[rc.ID] = rc
	f.routeConfigByName[rc.Name] = rc.ID
	return rc, nil
}

func (f *fakeStore) UpdateRouteConfig(ctx context.Context, rc xds.RouteConfig) (xds.RouteConfig, error) {
	f.routeConfigs[rc.ID] = rc
	return rc, nil
}

func (f *fakeStore) ListVirtualHostsByRouteConfig(ctx context.Context, routeConfigID string) ([]xds.VirtualHost, error) {
	return f.virtualHosts[routeConfigID], nil
}

func (f *fakeStore) CreateVirtualHost(ctx context.Context, vh xds.VirtualHost) (xds.VirtualHost, error) {
	vh.ID = f.genID("vh")
	f.virtualHosts[vh.RouteConfigID] = append(f.virtualHosts[vh.RouteConfigID], vh)
	return vh, nil
}

func (f *fakeStore) ListRouteRulesByVirtualHost(ctx context.Context, virtualHostID string) ([]xds.RouteRule, error) {
	return f.routeRules[virtualHostID], nil
}

func (f *fakeStore) DeleteRouteRule(ctx context.Context, id string) error {
	for vhID, rules := range f.routeRules {
		for i, r := range rules {
			if r.ID == id {
				f.routeRules[vhID] = append(rules[:i], rules[i+1:]...)
				return nil
			}
		}
	}
	return nil
}

func (f *fakeStore) CreateRouteRule(ctx context.Context, r xds.RouteRule) (xds.RouteRule, error) {
	r.ID = f.genID("rule")
	f.routeRules[r.VirtualHostID] = append(f.routeRules[r.VirtualHostID], r)
	return r, nil
}

func (f *fakeStore) FindClusterByUpstreamHash(ctx context.Context, hash string) (xds.Cluster, bool, error) {
	id, ok := f.clustersByHash[hash]
	if !ok {
		return xds.Cluster{}, false, nil
	}
	return f.clusters[id], true, nil
}

func (f *fakeStore) CreateCluster(ctx context.Context, c xds.Cluster) (xds.Cluster, error) {
	c.ID = f.genID("cluster")
	c.Version = 1
	f.clusters[c.ID] = c
	hash := upstreamHash(configToTargets(c.Configuration))
	f.clustersByHash[hash] = c.ID
	return c, nil
}

func configToTargets(cfg map[string]interface{}) []platformapi.UpstreamTarget {
	raw, _ := cfg["endpoints"].([]interface{})
	out := make([]platformapi.UpstreamTarget, 0, len(raw))
	for _, e := range raw {
		m := e.(map[string]interface{})
		out = append(out, platformapi.UpstreamTarget{
			Host:   m["host"].(string),
			Port:   m["port"].(int),
			Weight: m["weight"].(int),
		})
	}
	return out
}

func (f *fakeStore) UpsertClusterReference(ctx context.Context, ref platformapi.ClusterReference) error {
	key := ref.ClusterID + "|" + ref.ImportID
	f.clusterRefs[key]++
	return nil
}

func (f *fakeStore) GetListener(ctx context.Context, id string) (xds.Listener, error) {
	l, ok := f.listeners[id]
	if !ok {
		return xds.Listener{}, fmt.Errorf("not found")
	}
	return l, nil
}

func (f *fakeStore) CreateListener(ctx context.Context, l xds.Listener) (xds.Listener, error) {
	l.ID = f.genID("listener")
	f.listeners[l.ID] = l
	return l, nil
}

func (f *fakeStore) ListRouteConfigsByListener(ctx context.Context, listenerID string) ([]xds.ListenerRouteConfig, error) {
	return f.listenerAttach[listenerID], nil
}

func (f *fakeStore) AttachRouteConfig(ctx context.Context, listenerID, routeConfigID string, order int) error {
	f.listenerAttach[listenerID] = append(f.listenerAttach[listenerID], xds.ListenerRouteConfig{
		ListenerID: listenerID, RouteConfigID: routeConfigID, RouteOrder: order,
	})
	return nil
}

func (f *fakeStore) RecordEvent(ctx context.Context, e auditdomain.Event) (auditdomain.Event, error) {
	f.auditEvents = append(f.auditEvents, e)
	return e, nil
}

func targets(host string, port int) []platformapi.UpstreamTarget {
	return []platformapi.UpstreamTarget{{Host: host, Port: port, Weight: 1}}
}

func TestCompileCreatesRouteConfigVirtualHostAndClusterPerRoute(t *testing.T) {
	store := newFakeStore()
	svc := New(store, audit.New(store))

	def := platformapi.ApiDefinition{Team: "payments", Domain: "payments.example.com"}
	routes := []platformapi.ApiRoute{
		{MatchType: platformapi.MatchPrefix, MatchValue: "/v1", UpstreamTargets: targets("10.0.0.1", 8080), RouteOrder: 0},
		{MatchType: platformapi.MatchPrefix, MatchValue: "/v2", UpstreamTargets: targets("10.0.0.2", 8080), RouteOrder: 1},
	}

	result, err := svc.Compile(context.Background(), def, routes, audit.ActorContext{UserID: "user-1"})
	if err != nil {
		t.Fatalf("Compile() error = %v", err)
	}
	if result.RouteConfigID == "" || result.VirtualHostID == "" {
		t.Fatalf("expected a route config and virtual host to be created")
	}
	if len(result.RouteRuleIDs) != 2 || len(result.ClusterIDs) != 2 {
		t.Fatalf("expected 2 route rules and 2 clusters, got %+v", result)
	}
	if result.Definition.BootstrapRevision != 1 {
		t.Fatalf("expected bootstrap_revision 1 on first compile, got %d", result.Definition.BootstrapRevision)
	}
}

func TestCompileDedupesClustersWithIdenticalUpstreamSet(t *testing.T) {
	store := newFakeStore()
	svc := New(store, audit.New(store))

	def := platformapi.ApiDefinition{Team: "payments", Domain: "payments.example.com"}
	routes := []platformapi.ApiRoute{
		{MatchType: platformapi.MatchPrefix, MatchValue: "/v1", UpstreamTargets: targets("10.0.0.1", 8080), RouteOrder: 0},
		{MatchType: platformapi.MatchPrefix, MatchValue: "/v2", UpstreamTargets: targets("10.0.0.1", 8080), RouteOrder: 1},
	}

	result, err := svc.Compile(context.Background(), def, routes, audit.ActorContext{})
	if err != nil {
		t.Fatalf("Compile() error = %v", err)
	}
	if result.ClusterIDs[0] != result.ClusterIDs[1] {
		t.Fatalf("expected both routes to share one deduplicated cluster, got %v", result.ClusterIDs)
	}
	if len(store.clusters) != 1 {
		t.Fatalf("expected exactly one cluster row, got %d", len(store.clusters))
	}
}

func TestCompileRejectsDuplicateDomainForSameTeam(t *testing.T) {
	store := newFakeStore()
	svc := New(store, audit.New(store))

	first := platformapi.ApiDefinition{Team: "payments", Domain: "dup.example.com"}
	if _, err := svc.Compile(context.Background(), first, nil, audit.ActorContext{}); err != nil {
		t.Fatalf("first compile error = %v", err)
	}

	second := platformapi.ApiDefinition{Team: "payments", Domain: "dup.example.com"}
	if _, err := svc.Compile(context.Background(), second, nil, audit.ActorContext{}); err == nil {
		t.Fatalf("expected a duplicate-domain compile to fail")
	}
}

func TestCompileRejectsDisablingListenerIsolation(t *testing.T) {
	store := newFakeStore()
	svc := New(store, audit.New(store))

	def := platformapi.ApiDefinition{Team: "payments", Domain: "isolated.example.com", ListenerIsolation: true}
	created, err := svc.Compile(context.Background(), def, nil, audit.ActorContext{})
	if err != nil {
		t.Fatalf("first compile error = %v", err)
	}

	update := created.Definition
	update.ListenerIsolation = false
	if _, err := svc.Compile(context.Background(), update, nil, audit.ActorContext{}); err == nil {
		t.Fatalf("expected disabling listener isolation to be rejected")
	}
}

func TestCompileRejectsDuplicateRouteMatchWithSameHeaders(t *testing.T) {
	store := newFakeStore()
	svc := New(store, audit.New(store))

	def := platformapi.ApiDefinition{Team: "payments", Domain: "routes.example.com"}
	routes := []platformapi.ApiRoute{
		{MatchType: platformapi.MatchPrefix, MatchValue: "/v1", Headers: map[string]interface{}{"x-env": "prod"}, UpstreamTargets: targets("10.0.0.1", 80)},
		{MatchType: platformapi.MatchPrefix, MatchValue: "/v1", Headers: map[string]interface{}{"x-env": "prod"}, UpstreamTargets: targets("10.0.0.2", 80)},
	}
	if _, err := svc.Compile(context.Background(), def, routes, audit.ActorContext{}); err == nil {
		t.Fatalf("expected duplicate route match to be rejected")
	}
}

func TestCompileAllowsSameMatchWithDifferentHeaders(t *testing.T) {
	store := newFakeStore()
	svc := New(store, audit.New(store))

	def := platformapi.ApiDefinition{Team: "payments", Domain: "routes2.example.com"}
	routes := []platformapi.ApiRoute{
		{MatchType: platformapi.MatchPrefix, MatchValue: "/v1", Headers: map[string]interface{}{"x-env": "prod"}, UpstreamTargets: targets("10.0.0.1", 80)},
		{MatchType: platformapi.MatchPrefix, MatchValue: "/v1", Headers: map[string]interface{}{"x-env": "staging"}, UpstreamTargets: targets("10.0.0.2", 80)},
	}
	if _, err := svc.Compile(context.Background(), def, routes, audit.ActorContext{}); err != nil {
		t.Fatalf("expected different headers to be allowed, got %v", err)
	}
}

func TestCompileRejectsRewriteRegexWithoutCaptureReference(t *testing.T) {
	store := newFakeStore()
	svc := New(store, audit.New(store))

	regex := "^/api/(.*)$"
	sub := "/internal/no-capture"
	def := platformapi.ApiDefinition{Team: "payments", Domain: "rewrite.example.com"}
	routes := []platformapi.ApiRoute{
		{MatchType: platformapi.MatchPrefix, MatchValue: "/v1", RewriteRegex: &regex, RewriteSubstitution: &sub, UpstreamTargets: targets("10.0.0.1", 80)},
	}
	if _, err := svc.Compile(context.Background(), def, routes, audit.ActorContext{}); err == nil {
		t.Fatalf("expected a substitution without a capture reference to be rejected")
	}
}

func TestCompileEmitsAuditEvents(t *testing.T) {
	store := newFakeStore()
	svc := New(store, audit.New(store))

	def := platformapi.ApiDefinition{Team: "payments", Domain: "audit.example.com"}
	routes := []platformapi.ApiRoute{
		{MatchType: platformapi.MatchPrefix, MatchValue: "/v1", UpstreamTargets: targets("10.0.0.1", 80)},
	}
	if _, err := svc.Compile(context.Background(), def, routes, audit.ActorContext{}); err != nil {
		t.Fatalf("Compile() error = %v", err)
	}
	if len(store.auditEvents) != 2 {
		t.Fatalf("expected platform.api.created + platform.api.route_appended, got %d events", len(store.auditEvents))
	}
	if store.auditEvents[0].Action != "platform.api.created" {
		t.Fatalf("expected first event to be platform.api.created, got %s", store.auditEvents[0].Action)
	}
}
