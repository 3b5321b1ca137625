package endpointsync

import (
	"context"
	"testing"

	"github.com/flowplane/controlplane/internal/app/domain/xds"
	"github.com/flowplane/controlplane/internal/app/storage"
)

// fakeClusterStore implements storage.ClusterStore, delegating the
// endpoint-related methods to in-memory state and panicking on anything
// else — Sync only ever calls the four endpoint methods below.
type fakeClusterStore struct {
	storage.ClusterStore
	endpoints  map[string]xds.ClusterEndpoint
	nextID     int
	created    []xds.ClusterEndpoint
	updated    []xds.ClusterEndpoint
	deletedIDs []string
}

func newFakeClusterStore(existing ...xds.ClusterEndpoint) *fakeClusterStore {
	m := make(map[string]xds.ClusterEndpoint, len(existing))
	for _, e := range existing {
		m[e.ID] = e
	}
	return &fakeClusterStore{endpoints: m}
}

func (f *fakeClusterStore) ListEndpoints(ctx context.Context, clusterID string) ([]xds.ClusterEndpoint, error) {
	var out []xds.ClusterEndpoint
	for _, e := range f.endpoints {
		if e.ClusterID == clusterID {
			out = append(out, e)
		}
	}
	return out, nil
}

func (f *fakeClusterStore) CreateEndpoint(ctx context.Context, e xds.ClusterEndpoint) (xds.ClusterEndpoint, error) {
	f.nextID++
	e.ID = "ep-" + string(rune('a'+f.nextID))
	f.endpoints[e.ID] = e
	f.created = append(f.created, e)
	return e, nil
}

func (f *fakeClusterStore) UpdateEndpoint(ctx context.Context, e xds.ClusterEndpoint) (xds.ClusterEndpoint, error) {
	f.endpoints[e.ID] = e
	f.updated = append(f.updated, e)
	return e, nil
}

func (f *fakeClusterStore) DeleteEndpoint(ctx context.Context, id string) error {
	delete(f.endpoints, id)
	f.deletedIDs = append(f.deletedIDs, id)
	return nil
}

func TestSyncFlatStringEndpoints(t *testing.T) {
	store := newFakeClusterStore()
	svc := New(store)

	cluster := xds.Cluster{
		ID: "cluster-1",
		Configuration: map[string]interface{}{
			"endpoints": []interface{}{"10.0.0.1:8080", "10.0.0.2:8080"},
		},
	}

	if err := svc.Sync(context.Background(), cluster); err != nil {
		t.Fatalf("Sync() error = %v", err)
	}
	if len(store.created) != 2 {
		t.Fatalf("created = %d, want 2", len(store.created))
	}
}

func TestSyncIsConvergent(t *testing.T) {
	store := newFakeClusterStore(xds.ClusterEndpoint{
		ID: "ep-existing", ClusterID: "cluster-1", Address: "10.0.0.1", Port: 8080, Weight: 1, Priority: 0,
	})
	svc := New(store)

	cluster := xds.Cluster{
		ID: "cluster-1",
		Configuration: map[string]interface{}{
			"endpoints": []interface{}{"10.0.0.1:8080"},
		},
	}

	if err := svc.Sync(context.Background(), cluster); err != nil {
		t.Fatalf("Sync() error = %v", err)
	}
	if len(store.created) != 0 || len(store.updated) != 0 || len(store.deletedIDs) != 0 {
		t.Fatalf("expected no writes on second sync, got created=%d updated=%d deleted=%d",
			len(store.created), len(store.updated), len(store.deletedIDs))
	}
}

func TestSyncUpdatesChangedWeight(t *testing.T) {
	store := newFakeClusterStore(xds.ClusterEndpoint{
		ID: "ep-existing", ClusterID: "cluster-1", Address: "10.0.0.1", Port: 8080, Weight: 1, Priority: 0,
	})
	svc := New(store)

	cluster := xds.Cluster{
		ID: "cluster-1",
		Configuration: map[string]interface{}{
			"endpoints": []interface{}{
				map[string]interface{}{"host": "10.0.0.1", "port": float64(8080), "weight": float64(5)},
			},
		},
	}

	if err := svc.Sync(context.Background(), cluster); err != nil {
		t.Fatalf("Sync() error = %v", err)
	}
	if len(store.updated) != 1 || store.updated[0].Weight != 5 {
		t.Fatalf("expected weight update to 5, got %+v", store.updated)
	}
}

func TestSyncDeletesRemovedEndpoint(t *testing.T) {
	store := newFakeClusterStore(xds.ClusterEndpoint{
		ID: "ep-stale", ClusterID: "cluster-1", Address: "10.0.0.9", Port: 9999, Weight: 1, Priority: 0,
	})
	svc := New(store)

	cluster := xds.Cluster{
		ID:            "cluster-1",
		Configuration: map[string]interface{}{"endpoints": []interface{}{}},
	}

	if err := svc.Sync(context.Background(), cluster); err != nil {
		t.Fatalf("Sync() error = %v", err)
	}
	if len(store.deletedIDs) != 1 || store.deletedIDs[0] != "ep-stale" {
		t.Fatalf("expected ep-stale deleted, got %v", store.deletedIDs)
	}
}

func TestSyncLoadAssignmentShape(t *testing.T) {
	store := newFakeClusterStore()
	svc := New(store)

	cluster := xds.Cluster{
		ID: "cluster-1",
		Configuration: map[string]interface{}{
			"load_assignment": map[string]interface{}{
				"endpoints": []interface{}{
					map[string]interface{}{
						"priority": float64(0),
						"lb_endpoints": []interface{}{
							map[string]interface{}{
								"endpoint": map[string]interface{}{
									"address": map[string]interface{}{
										"socket_address": map[string]interface{}{
											"address":    "10.1.1.1",
											"port_value": float64(9000),
										},
									},
								},
							},
						},
					},
				},
			},
		},
	}

	if err := svc.Sync(context.Background(), cluster); err != nil {
		t.Fatalf("Sync() error = %v", err)
	}
	if len(store.created) != 1 || store.created[0].Address != "10.1.1.1" || store.created[0].Port != 9000 {
		t.Fatalf("unexpected created endpoints: %+v", store.created)
	}
}
