package core

import (
	"context"

	"freshchain/pkg/domain"
)

// RegisterRole adds target to the membership set of role. Only the
// administrator may register roles, and the add is idempotent: re-granting
// an existing member succeeds without effect.
func (s *Service) RegisterRole(ctx context.Context, caller domain.Identity, role domain.Role, target domain.Identity) error {
	started := s.clock.Now()
	_, err := s.store.RunInTransaction(ctx, func(tx domain.Transaction) error {
		reg := tx.Registry()
		if err := pausedGuard(reg); err != nil {
			return err
		}
		if caller != reg.Admin {
			return domain.RegistryError(domain.KindNotAuthorized, "only the administrator can register roles")
		}
		switch role {
		case RoleProducer, RoleTransporter, RoleDistributor, RoleRetailer:
		default:
			return domain.RegistryError(domain.KindNotAuthorizedRole, "unknown role "+string(role))
		}
		if reg.HasRole(target, role) {
			return nil
		}
		reg.Grant(target, role)
		tx.PutRegistry(reg)
		return nil
	})
	s.finish(ctx, "register_role", domain.EntityRegistry, string(target), caller, started, err)
	return err
}

// RegisterProducer authorizes target as a producer.
func (s *Service) RegisterProducer(ctx context.Context, caller, target domain.Identity) error {
	return s.RegisterRole(ctx, caller, RoleProducer, target)
}

// RegisterTransporter authorizes target as a transporter.
func (s *Service) RegisterTransporter(ctx context.Context, caller, target domain.Identity) error {
	return s.RegisterRole(ctx, caller, RoleTransporter, target)
}

// RegisterDistributor authorizes target as a distributor.
func (s *Service) RegisterDistributor(ctx context.Context, caller, target domain.Identity) error {
	return s.RegisterRole(ctx, caller, RoleDistributor, target)
}

// RegisterRetailer authorizes target as a retailer.
func (s *Service) RegisterRetailer(ctx context.Context, caller, target domain.Identity) error {
	return s.RegisterRole(ctx, caller, RoleRetailer, target)
}

// TogglePause flips the emergency-pause switch and returns the new state.
// Only the administrator may toggle; the toggle itself is exempt from the
// pause gate so the system can always be resumed.
func (s *Service) TogglePause(ctx context.Context, caller domain.Identity) (bool, error) {
	started := s.clock.Now()
	var paused bool
	_, err := s.store.RunInTransaction(ctx, func(tx domain.Transaction) error {
		reg := tx.Registry()
		if caller != reg.Admin {
			return domain.RegistryError(domain.KindNotAuthorized, "only the administrator can toggle the pause switch")
		}
		reg.Paused = !reg.Paused
		paused = reg.Paused
		tx.PutRegistry(reg)
		return nil
	})
	s.finish(ctx, "toggle_pause", domain.EntityRegistry, "", caller, started, err)
	if err != nil {
		return false, err
	}
	return paused, nil
}

// IsAuthorized reports whether identity holds the given role.
func (s *Service) IsAuthorized(identity domain.Identity, role domain.Role) bool {
	return s.store.Registry().HasRole(identity, role)
}

// IsPaused reports the state of the emergency-pause switch.
func (s *Service) IsPaused() bool {
	return s.store.Registry().Paused
}

// Admin returns the administrator identity fixed at bootstrap.
func (s *Service) Admin() domain.Identity {
	return s.store.Registry().Admin
}
