// Package endpointsync reconciles a cluster's endpoint rows against the
// endpoint list embedded in its configuration JSON.
package endpointsync

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/flowplane/controlplane/internal/app/domain/xds"
	"github.com/flowplane/controlplane/internal/app/storage"
	"github.com/tidwall/gjson"
)

// Service reconciles ClusterEndpoint rows with the endpoint set described
// by a cluster's configuration, whichever of the three supported JSON
// shapes it uses.
type Service struct {
	store storage.ClusterStore
}

func New(store storage.ClusterStore) *Service {
	return &Service{store: store}
}

type target struct {
	address  string
	port     int
	weight   int
	priority int
}

func key(address string, port int) string {
	return fmt.Sprintf("%s:%d", address, port)
}

// Sync reconciles the cluster's endpoint rows against its configuration.
// It is idempotent: re-running with unchanged configuration performs no
// writes.
func (s *Service) Sync(ctx context.Context, cluster xds.Cluster) error {
	targets, err := parseTargets(cluster.Configuration)
	if err != nil {
		return fmt.Errorf("parse endpoint targets: %w", err)
	}

	current, err := s.store.ListEndpoints(ctx, cluster.ID)
	if err != nil {
		return fmt.Errorf("list current endpoints: %w", err)
	}

	currentByKey := make(map[string]xds.ClusterEndpoint, len(current))
	for _, e := range current {
		currentByKey[key(e.Address, e.Port)] = e
	}

	seen := make(map[string]struct{}, len(targets))
	for _, t := range targets {
		k := key(t.address, t.port)
		seen[k] = struct{}{}

		existing, ok := currentByKey[k]
		if !ok {
			_, err := s.store.CreateEndpoint(ctx, xds.ClusterEndpoint{
				ClusterID:    cluster.ID,
				Address:      t.address,
				Port:         t.port,
				Weight:       t.weight,
				Priority:     t.priority,
				HealthStatus: xds.HealthUnknown,
			})
			if err != nil {
				return fmt.Errorf("create endpoint %s: %w", k, err)
			}
			continue
		}

		if existing.Weight == t.weight && existing.Priority == t.priority {
			continue
		}
		existing.Weight = t.weight
		existing.Priority = t.priority
		if _, err := s.store.UpdateEndpoint(ctx, existing); err != nil {
			return fmt.Errorf("update endpoint %s: %w", k, err)
		}
	}

	for k, e := range currentByKey {
		if _, ok := seen[k]; ok {
			continue
		}
		if err := s.store.DeleteEndpoint(ctx, e.ID); err != nil {
			return fmt.Errorf("delete endpoint %s: %w", k, err)
		}
	}

	return nil
}

// parseTargets supports three endpoint shapes seen across imported and
// hand-authored cluster configurations:
//
//  1. a flat "endpoints" array of "host:port" strings or {host,port} objects
//  2. the xDS-native load_assignment.endpoints[].lb_endpoints[].endpoint.address.socket_address
//  3. a legacy hosts[].socket_address shape
func parseTargets(configuration map[string]interface{}) ([]target, error) {
	raw, err := json.Marshal(configuration)
	if err != nil {
		return nil, err
	}
	doc := gjson.ParseBytes(raw)

	if flat := doc.Get("endpoints"); flat.IsArray() {
		return parseFlatEndpoints(flat), nil
	}

	if loadAssignment := doc.Get("load_assignment.endpoints"); loadAssignment.IsArray() {
		return parseLoadAssignment(loadAssignment), nil
	}

	if hosts := doc.Get("hosts"); hosts.IsArray() {
		return parseLegacyHosts(hosts), nil
	}

	return nil, nil
}

func parseFlatEndpoint(entry gjson.Result) (target, bool) {
	if entry.Type == gjson.String {
		addr := entry.String()
		idx := lastColon(addr)
		if idx < 0 {
			return target{}, false
		}
		port := int(parseInt(addr[idx+1:]))
		return target{address: addr[:idx], port: port, weight: 1, priority: 0}, true
	}

	host := entry.Get("host").String()
	port := int(entry.Get("port").Int())
	if host == "" || port == 0 {
		return target{}, false
	}
	weight := int(entry.Get("weight").Int())
	if weight == 0 {
		weight = 1
	}
	priority := int(entry.Get("priority").Int())
	return target{address: host, port: port, weight: weight, priority: priority}, true
}

func parseFlatEndpoints(arr gjson.Result) []target {
	var out []target
	for _, entry := range arr.Array() {
		if t, ok := parseFlatEndpoint(entry); ok {
			out = append(out, t)
		}
	}
	return out
}

func parseLoadAssignment(endpointsArr gjson.Result) []target {
	var out []target
	for _, localityEndpoint := range endpointsArr.Array() {
		priority := int(localityEndpoint.Get("priority").Int())
		for _, lbEndpoint := range localityEndpoint.Get("lb_endpoints").Array() {
			sockaddr := lbEndpoint.Get("endpoint.address.socket_address")
			host := sockaddr.Get("address").String()
			port := int(sockaddr.Get("port_value").Int())
			if host == "" || port == 0 {
				continue
			}
			weight := int(lbEndpoint.Get("load_balancing_weight.value").Int())
			if weight == 0 {
				weight = 1
			}
			out = append(out, target{address: host, port: port, weight: weight, priority: priority})
		}
	}
	return out
}

func parseLegacyHosts(hosts gjson.Result) []target {
	var out []target
	for _, h := range hosts.Array() {
		sockaddr := h.Get("socket_address")
		host := sockaddr.Get("address").String()
		port := int(sockaddr.Get("port_value").Int())
		if host == "" || port == 0 {
			continue
		}
		out = append(out, target{address: host, port: port, weight: 1, priority: 0})
	}
	return out
}

func lastColon(s string) int {
	for i := len(s) - 1; i >= 0; i-- {
		if s[i] == ':' {
			return i
		}
	}
	return -1
}

func parseInt(s string) int64 {
	var n int64
	for _, c := range s {
		if c < '0' || c > '9' {
			return n
		}
		n = n*10 + int64(c-'0')
	}
	return n
}
