package compiler

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"

	"github.com/flowplane/controlplane/internal/app/domain/platformapi"
	"github.com/flowplane/controlplane/internal/app/domain/xds"
)

// upstreamHash produces a stable hash of an upstream target set,
// independent of input ordering, used to detect two routes (in this
// definition or another) that point at the same backend set.
func upstreamHash(targets []platformapi.UpstreamTarget) string {
	sorted := make([]platformapi.UpstreamTarget, len(targets))
	copy(sorted, targets)
	sort.Slice(sorted, func(i, j int) bool {
		if sorted[i].Host != sorted[j].Host {
			return sorted[i].Host < sorted[j].Host
		}
		return sorted[i].Port < sorted[j].Port
	})

	h := sha256.New()
	for _, t := range sorted {
		fmt.Fprintf(h, "%s:%d:%d;", t.Host, t.Port, t.Weight)
	}
	return hex.EncodeToString(h.Sum(nil))
}

// resolveCluster finds or creates the Cluster backing targets, reusing an
// existing cluster with the same upstream hash and bumping its
// ClusterReference.route_count rather than creating a duplicate.
func (s *Service) resolveCluster(ctx context.Context, def platformapi.ApiDefinition, targets []platformapi.UpstreamTarget) (xds.Cluster, error) {
	hash := upstreamHash(targets)

	cluster, found, err := s.store.FindClusterByUpstreamHash(ctx, hash)
	if err != nil {
		return xds.Cluster{}, err
	}
	if found {
		if err := s.store.UpsertClusterReference(ctx, platformapi.ClusterReference{
			ClusterID: cluster.ID,
			ImportID:  def.ID,
		}); err != nil {
			return xds.Cluster{}, err
		}
		return cluster, nil
	}

	name := fmt.Sprintf("platform-%s-%s", def.ID, hash[:12])
	cluster, err = s.store.CreateCluster(ctx, xds.Cluster{
		Name:        name,
		ServiceName: def.Domain,
		Source:      xds.ClusterSourcePlatform,
		Team:        &def.Team,
		Configuration: map[string]interface{}{
			"endpoints": upstreamTargetsToConfig(targets),
		},
	})
	if err != nil {
		return xds.Cluster{}, err
	}

	if err := s.store.UpsertClusterReference(ctx, platformapi.ClusterReference{
		ClusterID: cluster.ID,
		ImportID:  def.ID,
	}); err != nil {
		return xds.Cluster{}, err
	}
	return cluster, nil
}

func upstreamTargetsToConfig(targets []platformapi.UpstreamTarget) []interface{} {
	out := make([]interface{}, 0, len(targets))
	for _, t := range targets {
		weight := t.Weight
		if weight == 0 {
			weight = 1
		}
		out = append(out, map[string]interface{}{
			"host":   t.Host,
			"port":   t.Port,
			"weight": weight,
		})
	}
	return out
}
