package snapshot

import (
	"context"
	"testing"

	"github.com/flowplane/controlplane/internal/app/audit"
	auditdomain "github.com/flowplane/controlplane/internal/app/domain/audit"
	domainsecret "github.com/flowplane/controlplane/internal/app/domain/secret"
	"github.com/flowplane/controlplane/internal/app/domain/wasm"
	"github.com/flowplane/controlplane/internal/app/domain/xds"
	"github.com/flowplane/controlplane/internal/app/secretsrouter"
	"github.com/flowplane/controlplane/internal/app/storage"
)

type fakeAttachments struct {
	byScope map[string][]xds.FilterAttachment
}

func (f *fakeAttachments) Attach(ctx context.Context, scopeID, filterID string, order int, settings map[string]interface{}) (xds.FilterAttachment, error) {
	panic("not used in tests")
}
func (f *fakeAttachments) Detach(ctx context.Context, scopeID, filterID string) error { return nil }
func (f *fakeAttachments) ListByScope(ctx context.Context, scopeID string) ([]xds.FilterAttachment, error) {
	return f.byScope[scopeID], nil
}
func (f *fakeAttachments) Exists(ctx context.Context, scopeID, filterID string) (bool, error) {
	return false, nil
}
func (f *fakeAttachments) GetNextOrder(ctx context.Context, scopeID string) (int, error) {
	return len(f.byScope[scopeID]), nil
}
func (f *fakeAttachments) CountByFilter(ctx context.Context, filterID string) (int, error) {
	return 0, nil
}

type fakeStore struct {
	storage.Store

	listeners      []xds.Listener
	listenerAttach map[string][]xds.ListenerRouteConfig
	routeConfigs   map[string]xds.RouteConfig
	virtualHosts   map[string][]xds.VirtualHost
	routeRules     map[string][]xds.RouteRule
	clusters       map[string]xds.Cluster
	endpoints      map[string][]xds.ClusterEndpoint
	filters        map[string]xds.Filter
	wasmFilters    map[string]wasm.CustomWasmFilter

	listenerFilters    *fakeAttachments
	virtualHostFilters *fakeAttachments
	routeFilters       *fakeAttachments
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		listenerAttach:     map[string][]xds.ListenerRouteConfig{},
		routeConfigs:       map[string]xds.RouteConfig{},
		virtualHosts:       map[string][]xds.VirtualHost{},
		routeRules:         map[string][]xds.RouteRule{},
		clusters:           map[string]xds.Cluster{},
		endpoints:          map[string][]xds.ClusterEndpoint{},
		filters:            map[string]xds.Filter{},
		wasmFilters:        map[string]wasm.CustomWasmFilter{},
		listenerFilters:    &fakeAttachments{byScope: map[string][]xds.FilterAttachment{}},
		virtualHostFilters: &fakeAttachments{byScope: map[string][]xds.FilterAttachment{}},
		routeFilters:       &fakeAttachments{byScope: map[string][]xds.FilterAttachment{}},
	}
}

func (f *fakeStore) ListListenersByTeams(ctx context.Context, teams []string, p storage.Pagination) ([]xds.Listener, error) {
	return f.listeners, nil
}
func (f *fakeStore) ListRouteConfigsByListener(ctx context.Context, listenerID string) ([]xds.ListenerRouteConfig, error) {
	return f.listenerAttach[listenerID], nil
}
func (f *fakeStore) GetRouteConfig(ctx context.Context, id string) (xds.RouteConfig, error) {
	rc, ok := f.routeConfigs[id]
	if !ok {
		return xds.RouteConfig{}, errNotFound
	}
	return rc, nil
}
func (f *fakeStore) ListVirtualHostsByRouteConfig(ctx context.Context, routeConfigID string) ([]xds.VirtualHost, error) {
	return f.virtualHosts[routeConfigID], nil
}
func (f *fakeStore) ListRouteRulesByVirtualHost(ctx context.Context, virtualHostID string) ([]xds.RouteRule, error) {
	return f.routeRules[virtualHostID], nil
}
func (f *fakeStore) GetClusterByName(ctx context.Context, name string) (xds.Cluster, error) {
	c, ok := f.clusters[name]
	if !ok {
		return xds.Cluster{}, errNotFound
	}
	return c, nil
}
func (f *fakeStore) ListEndpoints(ctx context.Context, clusterID string) ([]xds.ClusterEndpoint, error) {
	return f.endpoints[clusterID], nil
}
func (f *fakeStore) GetFilter(ctx context.Context, id string) (xds.Filter, error) {
	filter, ok := f.filters[id]
	if !ok {
		return xds.Filter{}, errNotFound
	}
	return filter, nil
}
func (f *fakeStore) GetWasmFilterBySHA256(ctx context.Context, sha256Hex string) (wasm.CustomWasmFilter, error) {
	cwf, ok := f.wasmFilters[sha256Hex]
	if !ok {
		return wasm.CustomWasmFilter{}, errNotFound
	}
	return cwf, nil
}
func (f *fakeStore) ListenerFilters() storage.AttachmentStore    { return f.listenerFilters }
func (f *fakeStore) VirtualHostFilters() storage.AttachmentStore { return f.virtualHostFilters }
func (f *fakeStore) RouteFilters() storage.AttachmentStore       { return f.routeFilters }

type fakeErr string

func (e fakeErr) Error() string { return string(e) }

const errNotFound = fakeErr("not found")

// clusterByID stores clusters keyed by name, since GetClusterByName is the
// only cluster lookup the assembler uses; tests index by cluster name
// directly via f.clusters.

func buildGraph(store *fakeStore) {
	store.clusters["backend-cluster"] = xds.Cluster{ID: "cluster-1", Name: "backend-cluster"}
	store.endpoints["cluster-1"] = []xds.ClusterEndpoint{{ID: "ep-1", ClusterID: "cluster-1", Address: "10.0.0.1", Port: 8080}}

	store.routeRules["vh-1"] = []xds.RouteRule{
		{ID: "rule-1", VirtualHostID: "vh-1", MatchType: xds.MatchPrefix, MatchValue: "/v1", ClusterName: "backend-cluster"},
	}
	store.virtualHosts["rc-1"] = []xds.VirtualHost{
		{ID: "vh-1", RouteConfigID: "rc-1", Name: "api.example.com", Domains: []string{"api.example.com"}},
	}
	store.routeConfigs["rc-1"] = xds.RouteConfig{ID: "rc-1", Name: "platform-def-1"}
	store.listeners = []xds.Listener{{ID: "listener-1", Name: "platform-def-1", Address: "0.0.0.0", Port: 10001}}
	store.listenerAttach["listener-1"] = []xds.ListenerRouteConfig{{ListenerID: "listener-1", RouteConfigID: "rc-1", RouteOrder: 0}}
}

func TestAssembleWalksListenerToRouteRuleAndCluster(t *testing.T) {
	store := newFakeStore()
	buildGraph(store)

	router := secretsrouter.New(audit.New(&fakeAuditStore{}))
	assembler := New(store, router)

	snap, err := assembler.Assemble(context.Background(), nil, audit.ActorContext{})
	if err != nil {
		t.Fatalf("Assemble() error = %v", err)
	}
	if len(snap.Listeners) != 1 {
		t.Fatalf("expected 1 listener, got %d", len(snap.Listeners))
	}
	ls := snap.Listeners[0]
	if len(ls.RouteConfigs) != 1 || len(ls.RouteConfigs[0].VirtualHosts) != 1 {
		t.Fatalf("expected one route config with one virtual host, got %+v", ls)
	}
	vh := ls.RouteConfigs[0].VirtualHosts[0]
	if len(vh.Routes) != 1 {
		t.Fatalf("expected one route rule, got %d", len(vh.Routes))
	}
	if vh.Routes[0].Cluster.Cluster.ID != "cluster-1" || len(vh.Routes[0].Cluster.Endpoints) != 1 {
		t.Fatalf("unexpected cluster snapshot: %+v", vh.Routes[0].Cluster)
	}
}

func TestAssembleInlinesWasmFilterBySHA256(t *testing.T) {
	store := newFakeStore()
	buildGraph(store)
	store.filters["filter-1"] = xds.Filter{ID: "filter-1", Type: "wasm", Name: "custom", Config: map[string]interface{}{"wasm_sha256": "abc123"}}
	store.wasmFilters["abc123"] = wasm.CustomWasmFilter{ID: "wasm-1", WasmSHA256: "abc123", WasmBinary: []byte{0x00, 0x61, 0x73, 0x6d}}
	store.routeFilters.byScope["rule-1"] = []xds.FilterAttachment{{ScopeID: "rule-1", FilterID: "filter-1", FilterOrder: 0}}

	router := secretsrouter.New(audit.New(&fakeAuditStore{}))
	assembler := New(store, router)

	snap, err := assembler.Assemble(context.Background(), nil, audit.ActorContext{})
	if err != nil {
		t.Fatalf("Assemble() error = %v", err)
	}
	entries := snap.Listeners[0].RouteConfigs[0].VirtualHosts[0].Routes[0].Filters
	if len(entries) != 1 || len(entries[0].WasmBinary) == 0 {
		t.Fatalf("expected the wasm binary to be inlined, got %+v", entries)
	}
}

func TestAssembleFailsWhenClusterMissing(t *testing.T) {
	store := newFakeStore()
	buildGraph(store)
	delete(store.clusters, "backend-cluster")

	router := secretsrouter.New(audit.New(&fakeAuditStore{}))
	assembler := New(store, router)

	if _, err := assembler.Assemble(context.Background(), nil, audit.ActorContext{}); err == nil {
		t.Fatalf("expected assembly to fail when a referenced cluster cannot be loaded")
	}
}

type fakeAuditStore struct {
	storage.AuditStore
}

func (f *fakeAuditStore) RecordEvent(ctx context.Context, e auditdomain.Event) (auditdomain.Event, error) {
	return e, nil
}

func TestResolveSecretDispatchesThroughRouter(t *testing.T) {
	store := newFakeStore()
	router := secretsrouter.New(audit.New(&fakeAuditStore{}))
	router.Register(domainsecret.SourceDatabase, &fakeSecretBackend{spec: domainsecret.Spec{Type: domainsecret.TypeGeneric, GenericValue: "v"}})
	assembler := New(store, router)

	snap := Snapshot{Secrets: map[string]domainsecret.Spec{}}
	spec, err := assembler.ResolveSecret(context.Background(), snap, audit.ActorContext{}, domainsecret.Secret{
		ID: "sec-1", Source: domainsecret.SourceDatabase, SecretType: domainsecret.TypeGeneric,
	})
	if err != nil {
		t.Fatalf("ResolveSecret() error = %v", err)
	}
	if spec.GenericValue != "v" {
		t.Fatalf("unexpected spec: %+v", spec)
	}
}

type fakeSecretBackend struct {
	spec domainsecret.Spec
	err  error
}

func (f *fakeSecretBackend) Fetch(ctx context.Context, reference string, expectedType domainsecret.Type) (domainsecret.Spec, error) {
	return f.spec, f.err
}
func (f *fakeSecretBackend) ValidateReference(reference string) bool { return true }
func (f *fakeSecretBackend) HealthCheck(ctx context.Context) error   { return nil }
