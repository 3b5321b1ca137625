// Package snapshot assembles a consistent, immutable view of the xDS
// resource graph for a team (or the unscoped admin view): listeners down
// through route configs, virtual hosts, route rules, their filter chains,
// and the clusters/secrets those filters and routes reference.
package snapshot

import (
	"context"
	"fmt"

	"github.com/flowplane/controlplane/internal/app/audit"
	"github.com/flowplane/controlplane/internal/app/domain/secret"
	"github.com/flowplane/controlplane/internal/app/domain/wasm"
	"github.com/flowplane/controlplane/internal/app/domain/xds"
	"github.com/flowplane/controlplane/internal/app/secretsrouter"
	"github.com/flowplane/controlplane/internal/app/storage"
)

const wasmFilterType = "wasm"

// FilterChainEntry is one filter attached at a given scope, with its
// per-attachment settings and (for custom WASM filters) the inlined
// bytecode.
type FilterChainEntry struct {
	Filter     xds.Filter
	Order      int
	Settings   map[string]interface{}
	WasmBinary []byte
}

type ClusterSnapshot struct {
	Cluster   xds.Cluster
	Endpoints []xds.ClusterEndpoint
}

type RouteRuleSnapshot struct {
	RouteRule xds.RouteRule
	Filters   []FilterChainEntry
	Cluster   ClusterSnapshot
}

type VirtualHostSnapshot struct {
	VirtualHost xds.VirtualHost
	Filters     []FilterChainEntry
	Routes      []RouteRuleSnapshot
}

type RouteConfigSnapshot struct {
	RouteConfig  xds.RouteConfig
	VirtualHosts []VirtualHostSnapshot
}

type ListenerSnapshot struct {
	Listener     xds.Listener
	Filters      []FilterChainEntry
	RouteConfigs []RouteConfigSnapshot
}

// Snapshot is a value: once assembled it shares no mutable state with the
// store it was built from, and re-assembling against unchanged row
// versions produces an equal result.
type Snapshot struct {
	Listeners []ListenerSnapshot
	Secrets   map[string]secret.Spec // keyed by secret ID
}

// Assembler builds Snapshots from the storage layer, resolving referenced
// secrets through secretsrouter.
type Assembler struct {
	store   storage.Store
	secrets *secretsrouter.Router
}

func New(store storage.Store, secrets *secretsrouter.Router) *Assembler {
	return &Assembler{store: store, secrets: secrets}
}

// Assemble builds the snapshot visible to teams (empty teams[] means the
// unscoped admin view, per ListListenersByTeams' admin-inclusive policy).
func (a *Assembler) Assemble(ctx context.Context, teams []string, actor audit.ActorContext) (Snapshot, error) {
	full := storage.Pagination{Limit: storage.MaxLimit, Offset: 0}

	listeners, err := a.store.ListListenersByTeams(ctx, teams, full)
	if err != nil {
		return Snapshot{}, fmt.Errorf("snapshot: listing listeners: %w", err)
	}

	b := &builder{
		assembler:    a,
		ctx:          ctx,
		actor:        actor,
		wasmCache:    map[string]wasm.CustomWasmFilter{},
		clusterCache: map[string]ClusterSnapshot{},
		secretSpecs:  map[string]secret.Spec{},
	}

	out := Snapshot{Secrets: b.secretSpecs}
	for _, listener := range listeners {
		ls, err := b.buildListener(listener)
		if err != nil {
			return Snapshot{}, err
		}
		out.Listeners = append(out.Listeners, ls)
	}
	return out, nil
}

type builder struct {
	assembler    *Assembler
	ctx          context.Context
	actor        audit.ActorContext
	wasmCache    map[string]wasm.CustomWasmFilter
	clusterCache map[string]ClusterSnapshot
	secretSpecs  map[string]secret.Spec
}

func (b *builder) buildListener(listener xds.Listener) (ListenerSnapshot, error) {
	filters, err := b.buildFilterChain(listener.ID, b.assembler.store.ListenerFilters())
	if err != nil {
		return ListenerSnapshot{}, err
	}

	attachments, err := b.assembler.store.ListRouteConfigsByListener(b.ctx, listener.ID)
	if err != nil {
		return ListenerSnapshot{}, fmt.Errorf("snapshot: listing route configs for listener %s: %w", listener.ID, err)
	}

	ls := ListenerSnapshot{Listener: listener, Filters: filters}
	for _, a := range attachments {
		rc, err := b.assembler.store.GetRouteConfig(b.ctx, a.RouteConfigID)
		if err != nil {
			return ListenerSnapshot{}, fmt.Errorf("snapshot: loading route config %s: %w", a.RouteConfigID, err)
		}
		rcs, err := b.buildRouteConfig(rc)
		if err != nil {
			return ListenerSnapshot{}, err
		}
		ls.RouteConfigs = append(ls.RouteConfigs, rcs)
	}
	return ls, nil
}

func (b *builder) buildRouteConfig(rc xds.RouteConfig) (RouteConfigSnapshot, error) {
	vhosts, err := b.assembler.store.ListVirtualHostsByRouteConfig(b.ctx, rc.ID)
	if err != nil {
		return RouteConfigSnapshot{}, fmt.Errorf("snapshot: listing virtual hosts for %s: %w", rc.ID, err)
	}

	rcs := RouteConfigSnapshot{RouteConfig: rc}
	for _, vh := range vhosts {
		vhs, err := b.buildVirtualHost(vh)
		if err != nil {
			return RouteConfigSnapshot{}, err
		}
		rcs.VirtualHosts = append(rcs.VirtualHosts, vhs)
	}
	return rcs, nil
}

func (b *builder) buildVirtualHost(vh xds.VirtualHost) (VirtualHostSnapshot, error) {
	filters, err := b.buildFilterChain(vh.ID, b.assembler.store.VirtualHostFilters())
	if err != nil {
		return VirtualHostSnapshot{}, err
	}

	rules, err := b.assembler.store.ListRouteRulesByVirtualHost(b.ctx, vh.ID)
	if err != nil {
		return VirtualHostSnapshot{}, fmt.Errorf("snapshot: listing route rules for %s: %w", vh.ID, err)
	}

	vhs := VirtualHostSnapshot{VirtualHost: vh, Filters: filters}
	for _, rule := range rules {
		rrs, err := b.buildRouteRule(rule)
		if err != nil {
			return VirtualHostSnapshot{}, err
		}
		vhs.Routes = append(vhs.Routes, rrs)
	}
	return vhs, nil
}

func (b *builder) buildRouteRule(rule xds.RouteRule) (RouteRuleSnapshot, error) {
	filters, err := b.buildFilterChain(rule.ID, b.assembler.store.RouteFilters())
	if err != nil {
		return RouteRuleSnapshot{}, err
	}

	cluster, err := b.resolveCluster(rule.ClusterName)
	if err != nil {
		return RouteRuleSnapshot{}, err
	}

	return RouteRuleSnapshot{RouteRule: rule, Filters: filters, Cluster: cluster}, nil
}

func (b *builder) resolveCluster(name string) (ClusterSnapshot, error) {
	if cs, ok := b.clusterCache[name]; ok {
		return cs, nil
	}

	cluster, err := b.assembler.store.GetClusterByName(b.ctx, name)
	if err != nil {
		return ClusterSnapshot{}, fmt.Errorf("snapshot: loading cluster %s: %w", name, err)
	}
	endpoints, err := b.assembler.store.ListEndpoints(b.ctx, cluster.ID)
	if err != nil {
		return ClusterSnapshot{}, fmt.Errorf("snapshot: loading endpoints for cluster %s: %w", cluster.ID, err)
	}

	cs := ClusterSnapshot{Cluster: cluster, Endpoints: endpoints}
	b.clusterCache[name] = cs
	return cs, nil
}

// buildFilterChain materializes the filters attached to scopeID in
// filter_order, inlining custom WASM bytecode by SHA-256 once per
// snapshot.
func (b *builder) buildFilterChain(scopeID string, attachments storage.AttachmentStore) ([]FilterChainEntry, error) {
	rows, err := attachments.ListByScope(b.ctx, scopeID)
	if err != nil {
		return nil, fmt.Errorf("snapshot: listing filter attachments for %s: %w", scopeID, err)
	}

	entries := make([]FilterChainEntry, 0, len(rows))
	for _, row := range rows {
		f, err := b.assembler.store.GetFilter(b.ctx, row.FilterID)
		if err != nil {
			return nil, fmt.Errorf("snapshot: loading filter %s: %w", row.FilterID, err)
		}

		entry := FilterChainEntry{Filter: f, Order: row.FilterOrder, Settings: row.Settings}
		if f.Type == wasmFilterType {
			binary, err := b.loadWasmBinary(f)
			if err != nil {
				return nil, err
			}
			entry.WasmBinary = binary
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

func (b *builder) loadWasmBinary(f xds.Filter) ([]byte, error) {
	sha, _ := f.Config["wasm_sha256"].(string)
	if sha == "" {
		return nil, fmt.Errorf("snapshot: filter %s is type wasm but has no wasm_sha256", f.ID)
	}
	if cached, ok := b.wasmCache[sha]; ok {
		return cached.WasmBinary, nil
	}

	cwf, err := b.assembler.store.GetWasmFilterBySHA256(b.ctx, sha)
	if err != nil {
		return nil, fmt.Errorf("snapshot: loading wasm binary %s: %w", sha, err)
	}
	b.wasmCache[sha] = cwf
	return cwf.WasmBinary, nil
}

// ResolveSecret fetches and caches the Spec for a referenced secret,
// dispatching through the secret backend router. Call once per secret ID
// needed by the snapshot; results are memoized on the Snapshot itself.
func (a *Assembler) ResolveSecret(ctx context.Context, snap Snapshot, actor audit.ActorContext, s secret.Secret) (secret.Spec, error) {
	if spec, ok := snap.Secrets[s.ID]; ok {
		return spec, nil
	}
	spec, err := a.secrets.Resolve(ctx, actor, s)
	if err != nil {
		return secret.Spec{}, fmt.Errorf("snapshot: resolving secret %s: %w", s.ID, err)
	}
	snap.Secrets[s.ID] = spec
	return spec, nil
}
