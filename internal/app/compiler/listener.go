package compiler

import (
	"context"
	"fmt"

	"github.com/flowplane/controlplane/internal/app/domain/platformapi"
	"github.com/flowplane/controlplane/internal/app/domain/xds"
)

// attachListener wires the compiled RouteConfig to a listener: a fresh
// dedicated Listener when def.ListenerIsolation is set (reused on
// recompile via GeneratedListenerID), otherwise a ListenerRouteConfig
// attachment to every listener named in TargetListeners.
func (s *Service) attachListener(ctx context.Context, def platformapi.ApiDefinition, rc xds.RouteConfig) (string, error) {
	if def.ListenerIsolation {
		return s.attachIsolatedListener(ctx, def, rc)
	}
	for _, listenerID := range def.TargetListeners {
		if err := s.attachSharedListener(ctx, listenerID, rc.ID); err != nil {
			return "", err
		}
	}
	return "", nil
}

func (s *Service) attachIsolatedListener(ctx context.Context, def platformapi.ApiDefinition, rc xds.RouteConfig) (string, error) {
	if def.GeneratedListenerID != nil {
		listener, err := s.store.GetListener(ctx, *def.GeneratedListenerID)
		if err != nil {
			return "", err
		}
		if err := s.attachSharedListener(ctx, listener.ID, rc.ID); err != nil {
			return "", err
		}
		return listener.ID, nil
	}

	listener, err := s.store.CreateListener(ctx, xds.Listener{
		Name:    fmt.Sprintf("platform-%s", def.ID),
		Address: "0.0.0.0",
		Port:    0, // assigned by the listener allocator, not the compiler
		Team:    &def.Team,
	})
	if err != nil {
		return "", err
	}
	if err := s.attachSharedListener(ctx, listener.ID, rc.ID); err != nil {
		return "", err
	}

	def.GeneratedListenerID = &listener.ID
	if _, err := s.store.UpdateApiDefinition(ctx, def); err != nil {
		return "", err
	}
	return listener.ID, nil
}

func (s *Service) attachSharedListener(ctx context.Context, listenerID, routeConfigID string) error {
	attached, err := s.store.ListRouteConfigsByListener(ctx, listenerID)
	if err != nil {
		return err
	}
	for _, a := range attached {
		if a.RouteConfigID == routeConfigID {
			return nil // already attached, nothing to do
		}
	}
	return s.store.AttachRouteConfig(ctx, listenerID, routeConfigID, len(attached))
}
