package compiler

import (
	"context"
	"fmt"

	"github.com/flowplane/controlplane/internal/app/domain/platformapi"
	"github.com/flowplane/controlplane/internal/app/domain/xds"
)

// compileRouteConfig creates or reuses the single RouteConfig + VirtualHost
// pair owned by def, keyed by a name derived from the definition ID so
// re-compiling the same definition is idempotent at the RouteConfig level.
func (s *Service) compileRouteConfig(ctx context.Context, def platformapi.ApiDefinition) (xds.RouteConfig, xds.VirtualHost, error) {
	name := fmt.Sprintf("platform-%s", def.ID)

	rc, err := s.store.GetRouteConfigByName(ctx, name)
	if err != nil {
		rc, err = s.store.CreateRouteConfig(ctx, xds.RouteConfig{
			Name:        name,
			PathPrefix:  "/",
			ClusterName: name,
			Source:      xds.ClusterSourcePlatform,
			Team:        &def.Team,
			ImportID:    &def.ID,
		})
		if err != nil {
			return xds.RouteConfig{}, xds.VirtualHost{}, err
		}
	} else {
		rc.Version++
		rc, err = s.store.UpdateRouteConfig(ctx, rc)
		if err != nil {
			return xds.RouteConfig{}, xds.VirtualHost{}, err
		}
	}

	vhosts, err := s.store.ListVirtualHostsByRouteConfig(ctx, rc.ID)
	if err != nil {
		return xds.RouteConfig{}, xds.VirtualHost{}, err
	}
	if len(vhosts) > 0 {
		return rc, vhosts[0], nil
	}

	vh, err := s.store.CreateVirtualHost(ctx, xds.VirtualHost{
		RouteConfigID: rc.ID,
		Name:          def.Domain,
		Domains:       []string{def.Domain},
	})
	if err != nil {
		return xds.RouteConfig{}, xds.VirtualHost{}, err
	}
	return rc, vh, nil
}

// compileRoutes resolves each route's cluster (deduplicated) and creates
// its RouteRule in declared order, discarding any RouteRules left over
// from a prior compile of the same VirtualHost.
func (s *Service) compileRoutes(ctx context.Context, def platformapi.ApiDefinition, vh xds.VirtualHost, routes []platformapi.ApiRoute) ([]string, []string, error) {
	existing, err := s.store.ListRouteRulesByVirtualHost(ctx, vh.ID)
	if err != nil {
		return nil, nil, err
	}
	for _, r := range existing {
		if err := s.store.DeleteRouteRule(ctx, r.ID); err != nil {
			return nil, nil, err
		}
	}

	clusterIDs := make([]string, 0, len(routes))
	ruleIDs := make([]string, 0, len(routes))

	for _, route := range routes {
		cluster, err := s.resolveCluster(ctx, def, route.UpstreamTargets)
		if err != nil {
			return nil, nil, err
		}
		clusterIDs = append(clusterIDs, cluster.ID)

		rule, err := s.store.CreateRouteRule(ctx, xds.RouteRule{
			VirtualHostID: vh.ID,
			MatchType:     xds.RouteMatchType(route.MatchType),
			MatchValue:    route.MatchValue,
			CaseSensitive: route.CaseSensitive,
			Headers:       route.Headers,
			ClusterName:   cluster.Name,
			RuleOrder:     route.RouteOrder,
		})
		if err != nil {
			return nil, nil, err
		}
		ruleIDs = append(ruleIDs, rule.ID)
	}

	return clusterIDs, ruleIDs, nil
}
