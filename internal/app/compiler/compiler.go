// Package compiler turns a platform-API ApiDefinition and its ordered
// ApiRoutes into the low-level xDS resource graph (RouteConfig,
// VirtualHost, RouteRules, Clusters, Listener attachments) that package
// xds stores and package snapshot serves.
package compiler

import (
	"context"
	"fmt"
	"sort"

	"github.com/flowplane/controlplane/internal/app/apperrors"
	"github.com/flowplane/controlplane/internal/app/audit"
	"github.com/flowplane/controlplane/internal/app/domain/platformapi"
	"github.com/flowplane/controlplane/internal/app/storage"
)

// Service compiles platform-API definitions into xDS resources.
type Service struct {
	store storage.Store
	audit *audit.Service
}

func New(store storage.Store, auditSvc *audit.Service) *Service {
	return &Service{store: store, audit: auditSvc}
}

// Result is the set of resource IDs a compile created or touched,
// returned so callers (HTTP handlers, importers) can report what changed.
type Result struct {
	Definition    platformapi.ApiDefinition
	RouteConfigID string
	VirtualHostID string
	RouteRuleIDs  []string
	ClusterIDs    []string
	ListenerID    string
}

// Compile validates def and routes, then creates or updates the xDS
// resources they describe, inside a single transaction. routes must
// already be sorted by RouteOrder; Compile preserves that order.
func (s *Service) Compile(ctx context.Context, def platformapi.ApiDefinition, routes []platformapi.ApiRoute, actor audit.ActorContext) (Result, error) {
	if err := validateRoutes(routes); err != nil {
		return Result{}, err
	}

	isUpdate := def.ID != ""
	var result Result

	err := s.store.WithTx(ctx, func(ctx context.Context) error {
		if err := s.checkDomainUniqueness(ctx, def); err != nil {
			return err
		}

		var priorRevision int
		if isUpdate {
			existing, err := s.store.GetApiDefinition(ctx, def.ID)
			if err != nil {
				return err
			}
			if existing.ListenerIsolation && !def.ListenerIsolation {
				return apperrors.NewValidationError("listener isolation cannot be disabled once enabled", "listener_isolation")
			}
			priorRevision = existing.BootstrapRevision
		}
		def.BootstrapRevision = priorRevision + 1

		savedDef, err := s.saveDefinition(ctx, def, isUpdate)
		if err != nil {
			return err
		}
		def = savedDef

		routeConfig, virtualHost, err := s.compileRouteConfig(ctx, def)
		if err != nil {
			return err
		}
		result.RouteConfigID = routeConfig.ID
		result.VirtualHostID = virtualHost.ID

		clusterIDs, ruleIDs, err := s.compileRoutes(ctx, def, virtualHost, routes)
		if err != nil {
			return err
		}
		result.ClusterIDs = clusterIDs
		result.RouteRuleIDs = ruleIDs

		listenerID, err := s.attachListener(ctx, def, routeConfig)
		if err != nil {
			return err
		}
		result.ListenerID = listenerID

		result.Definition = def
		return s.recordAudit(ctx, def, routes, isUpdate, actor)
	})
	if err != nil {
		return Result{}, err
	}
	return result, nil
}

func (s *Service) checkDomainUniqueness(ctx context.Context, def platformapi.ApiDefinition) error {
	existing, err := s.store.GetApiDefinitionByDomain(ctx, def.Team, def.Domain)
	if err != nil {
		return nil // not found: domain is free for this team
	}
	if existing.ID == def.ID {
		return nil // same record being updated
	}
	return apperrors.NewValidationError(
		fmt.Sprintf("domain %q is already registered for team %s", def.Domain, def.Team), "domain")
}

func (s *Service) saveDefinition(ctx context.Context, def platformapi.ApiDefinition, isUpdate bool) (platformapi.ApiDefinition, error) {
	if isUpdate {
		return s.store.UpdateApiDefinition(ctx, def)
	}
	return s.store.CreateApiDefinition(ctx, def)
}

func (s *Service) recordAudit(ctx context.Context, def platformapi.ApiDefinition, routes []platformapi.ApiRoute, isUpdate bool, actor audit.ActorContext) error {
	action := "platform.api.created"
	if isUpdate {
		action = "platform.api.updated"
	}
	if err := s.audit.RecordPlatformEvent(ctx, actor, "platform.api", def.ID, def.Domain, action, nil, map[string]interface{}{
		"bootstrap_revision": def.BootstrapRevision,
		"domain":             def.Domain,
	}); err != nil {
		return err
	}
	for _, r := range routes {
		if err := s.audit.RecordPlatformEvent(ctx, actor, "platform.api", def.ID, def.Domain, "platform.api.route_appended",
			nil, map[string]interface{}{"match_type": r.MatchType, "match_value": r.MatchValue}); err != nil {
			return err
		}
	}
	return nil
}

// validateRoutes checks route-level invariants that don't require a
// database round trip: rewrite compatibility and (match_type,
// match_value, headers) uniqueness within the set being compiled.
func validateRoutes(routes []platformapi.ApiRoute) error {
	seen := make(map[string]struct{}, len(routes))
	for _, r := range routes {
		if err := validateRewrite(r); err != nil {
			return err
		}
		key := routeUniquenessKey(r)
		if _, ok := seen[key]; ok {
			return apperrors.NewValidationError(
				fmt.Sprintf("duplicate route match (%s %s) with the same headers", r.MatchType, r.MatchValue), "match_value")
		}
		seen[key] = struct{}{}
	}
	return nil
}

func routeUniquenessKey(r platformapi.ApiRoute) string {
	keys := make([]string, 0, len(r.Headers))
	for k := range r.Headers {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	headerPart := ""
	for _, k := range keys {
		headerPart += fmt.Sprintf("%s=%v;", k, r.Headers[k])
	}
	return fmt.Sprintf("%s|%s|%s", r.MatchType, r.MatchValue, headerPart)
}

func validateRewrite(r platformapi.ApiRoute) error {
	hasPrefix := r.RewritePrefix != nil && *r.RewritePrefix != ""
	hasRegex := r.RewriteRegex != nil && *r.RewriteRegex != ""

	if hasPrefix && hasRegex {
		return apperrors.NewValidationError("exactly one of rewrite_prefix or rewrite_regex may be set", "rewrite_prefix")
	}
	if hasRegex {
		if r.RewriteSubstitution == nil || *r.RewriteSubstitution == "" {
			return apperrors.NewValidationError("rewrite_regex requires a non-empty rewrite_substitution", "rewrite_substitution")
		}
		if !hasCaptureReference(*r.RewriteSubstitution) {
			return apperrors.NewValidationError("rewrite_substitution must contain at least one capture reference", "rewrite_substitution")
		}
	}
	return nil
}

func hasCaptureReference(substitution string) bool {
	for i := 0; i < len(substitution)-1; i++ {
		if substitution[i] == '\\' && substitution[i+1] >= '0' && substitution[i+1] <= '9' {
			return true
		}
	}
	return false
}
