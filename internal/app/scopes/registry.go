// Package scopes implements the scope registry: the scope-string grammar,
// a database-backed cache behind a sync.RWMutex, and the team-filter
// resolver used by every list/mutate authorization decision.
//
// The registry is a package-level handle; readers fail closed before
// Init() completes rather than blocking on it, so an un-initialized
// registry denies by default instead of serving stale or empty scopes.
package scopes

import (
	"context"
	"regexp"
	"strings"
	"sync"
)

var (
	teamNameRegex    = regexp.MustCompile(`^[a-z0-9-]+$`)
	scopeFormatRegex = regexp.MustCompile(`^(team:[a-z0-9-]+:[a-z0-9-]+:[a-z]+|team:[a-z0-9-]+:\*:\*|[a-z0-9-]+:[a-z]+)$`)
)

// Definition is a row loaded from the scope_definitions table.
type Definition struct {
	Resource string
	Action   string
	UIVisible bool
}

// Loader fetches the enabled scope vocabulary from the persistence layer.
// Implemented by the postgres scope repository.
type Loader interface {
	LoadEnabledScopes(ctx context.Context) ([]Definition, error)
}

type cache struct {
	validScopes    map[string]struct{}
	validResources map[string]struct{}
	resourceActions map[string]map[string]struct{}
	definitions    []Definition
	ready          bool
}

// Registry is the process-wide scope cache. A single instance is created
// at startup and initialized with Init; callers made before Init
// completes fall back to format-only validation.
type Registry struct {
	loader Loader
	mu     sync.RWMutex
	cache  cache
}

func New(loader Loader) *Registry {
	return &Registry{loader: loader}
}

// Init loads the scope vocabulary from the database. Call once at startup;
// Refresh re-runs the same load for the async/admin-mutation path.
func (r *Registry) Init(ctx context.Context) error {
	return r.Refresh(ctx)
}

// Refresh reloads the cache from the database under an exclusive lock.
func (r *Registry) Refresh(ctx context.Context) error {
	defs, err := r.loader.LoadEnabledScopes(ctx)
	if err != nil {
		return err
	}

	next := cache{
		validScopes:     make(map[string]struct{}, len(defs)),
		validResources:  make(map[string]struct{}),
		resourceActions: make(map[string]map[string]struct{}),
		definitions:     defs,
		ready:           true,
	}
	for _, d := range defs {
		next.validScopes[d.Resource+":"+d.Action] = struct{}{}
		next.validResources[d.Resource] = struct{}{}
		actions, ok := next.resourceActions[d.Resource]
		if !ok {
			actions = make(map[string]struct{})
			next.resourceActions[d.Resource] = actions
		}
		actions[d.Action] = struct{}{}
	}

	r.mu.Lock()
	r.cache = next
	r.mu.Unlock()
	return nil
}

// IsValidScope performs format validation, then (if the cache is
// initialized) membership/team-grammar validation. Pre-initialization
// calls validate format only, so tests and bootstrap code can run without
// a database.
func (r *Registry) IsValidScope(scope string) bool {
	if !scopeFormatRegex.MatchString(scope) {
		return false
	}

	r.mu.RLock()
	defer r.mu.RUnlock()
	if !r.cache.ready {
		// Fail closed on cache access, but format-only validation is the
		// documented pre-initialization fallback.
		return true
	}

	if strings.HasPrefix(scope, "team:") {
		return r.isValidTeamScopeLocked(scope)
	}
	_, ok := r.cache.validScopes[scope]
	return ok
}

// isValidTeamScopeLocked assumes r.mu is held for reading.
func (r *Registry) isValidTeamScopeLocked(scope string) bool {
	parts := strings.SplitN(scope, ":", 4)
	if len(parts) != 4 {
		return false
	}
	teamName, resource, action := parts[1], parts[2], parts[3]
	if !teamNameRegex.MatchString(teamName) {
		return false
	}
	if resource == "*" && action == "*" {
		return true
	}
	actions, ok := r.cache.resourceActions[resource]
	if !ok {
		return false
	}
	if action == "*" {
		return true
	}
	_, ok = actions[action]
	return ok
}

// IsValidScopeAsync bypasses the cache entirely for freshness-critical
// paths such as admin mutation of the scope table.
func (r *Registry) IsValidScopeAsync(ctx context.Context, scope string) (bool, error) {
	if !scopeFormatRegex.MatchString(scope) {
		return false, nil
	}
	defs, err := r.loader.LoadEnabledScopes(ctx)
	if err != nil {
		return false, err
	}
	if strings.HasPrefix(scope, "team:") {
		parts := strings.SplitN(scope, ":", 4)
		if len(parts) != 4 || !teamNameRegex.MatchString(parts[1]) {
			return false, nil
		}
		resource, action := parts[2], parts[3]
		if resource == "*" && action == "*" {
			return true, nil
		}
		for _, d := range defs {
			if d.Resource == resource && (action == "*" || d.Action == action) {
				return true, nil
			}
		}
		return false, nil
	}
	for _, d := range defs {
		if d.Resource+":"+d.Action == scope {
			return true, nil
		}
	}
	return false, nil
}

// Definitions returns the cached scope vocabulary, UI-visible subset
// optional via the uiOnly flag.
func (r *Registry) Definitions(uiOnly bool) []Definition {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if !uiOnly {
		out := make([]Definition, len(r.cache.definitions))
		copy(out, r.cache.definitions)
		return out
	}
	out := make([]Definition, 0, len(r.cache.definitions))
	for _, d := range r.cache.definitions {
		if d.UIVisible {
			out = append(out, d)
		}
	}
	return out
}

// Ready reports whether Init/Refresh has completed at least once.
func (r *Registry) Ready() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.cache.ready
}

// Decision flags the outcome of resolving a caller's scopes into a team
// filter.
type Decision string

const (
	DecisionNone        Decision = ""
	DecisionAdminBypass Decision = "admin-bypass"
	DecisionNoAccess    Decision = "no-access"
)

// ResolveTeamFilter translates scopes into the teams[] parameter passed to
// a repository's ListByTeams, for an operation on (resource, action).
func ResolveTeamFilter(callerScopes []string, resource, action string) ([]string, Decision) {
	for _, s := range callerScopes {
		if s == "admin:all" || s == resource+":all" {
			return nil, DecisionAdminBypass
		}
	}

	teamSet := map[string]struct{}{}
	for _, s := range callerScopes {
		if !strings.HasPrefix(s, "team:") {
			continue
		}
		parts := strings.SplitN(s, ":", 4)
		if len(parts) != 4 {
			continue
		}
		team, res, act := parts[1], parts[2], parts[3]
		if res == "*" && act == "*" {
			teamSet[team] = struct{}{}
			continue
		}
		if res == resource && (act == "*" || act == action) {
			teamSet[team] = struct{}{}
		}
	}

	if len(teamSet) == 0 {
		return nil, DecisionNoAccess
	}
	teams := make([]string, 0, len(teamSet))
	for t := range teamSet {
		teams = append(teams, t)
	}
	return teams, DecisionNone
}

// Authorize decides a single-target operation (not a list): allow if the
// caller's scopes grant admin/resource-wide access, or the specific
// team-qualified scope for the target's team.
func Authorize(callerScopes []string, resource, action, targetTeam string) bool {
	for _, s := range callerScopes {
		if s == "admin:all" || s == resource+":all" {
			return true
		}
	}
	if targetTeam == "" {
		return false
	}
	want := []string{
		resource + ":" + action,
		"team:" + targetTeam + ":" + resource + ":" + action,
		"team:" + targetTeam + ":*:*",
		"team:" + targetTeam + ":" + resource + ":*",
	}
	for _, s := range callerScopes {
		for _, w := range want {
			if s == w {
				return true
			}
		}
	}
	return false
}
