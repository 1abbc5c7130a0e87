// ABOUTME: Company group, industry, and external agent operations
// ABOUTME: Group list rides the cache with a staleness timestamp; writes invalidate it
package store

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/harperreed/funnel/cache"
	"github.com/harperreed/funnel/models"
	"github.com/harperreed/funnel/normalize"
)

// groupsStaleness is how long a cached group list is trusted.
const groupsStaleness = 5 * time.Minute

// Groups returns the company groups, serving a fresh-enough cached list
// unless forceRefresh is set. A failed fetch falls back to whatever the
// cache still holds.
func (s *Store) Groups(ctx context.Context, forceRefresh bool) ([]models.Group, error) {
	var cached []models.Group
	haveCached := s.cache.GetJSON(cache.CollectionGroups, &cached)

	if !forceRefresh && haveCached {
		if age := time.Since(s.cache.Timestamp(cache.CollectionGroups)); age < groupsStaleness {
			return cached, nil
		}
	}

	groups, err := s.api.ListGroups(ctx)
	if err != nil {
		if haveCached {
			zap.L().Warn("group fetch failed, serving cached list", zap.Error(err))
			return cached, nil
		}
		return nil, fmt.Errorf("failed to fetch groups: %w", err)
	}

	s.cache.SetJSON(cache.CollectionGroups, groups)
	s.cache.Touch(cache.CollectionGroups)
	return groups, nil
}

// CreateGroup creates a company group and invalidates the cached list.
func (s *Store) CreateGroup(ctx context.Context, group models.Group) (models.Group, error) {
	if strings.TrimSpace(group.Name) == "" {
		return models.Group{}, ErrNameRequired
	}
	created, err := s.api.CreateGroup(ctx, group)
	if err != nil {
		return models.Group{}, fmt.Errorf("failed to create group: %w", err)
	}
	s.cache.Remove(cache.CollectionGroups)
	return created, nil
}

// UpdateGroup updates a company group and invalidates the cached list.
func (s *Store) UpdateGroup(ctx context.Context, group models.Group) (models.Group, error) {
	if strings.TrimSpace(group.Name) == "" {
		return models.Group{}, ErrNameRequired
	}
	updated, err := s.api.UpdateGroup(ctx, group)
	if err != nil {
		return models.Group{}, fmt.Errorf("failed to update group: %w", err)
	}
	s.cache.Remove(cache.CollectionGroups)
	return updated, nil
}

// DeleteGroup deletes a company group and invalidates the cached list.
func (s *Store) DeleteGroup(ctx context.Context, id string) error {
	if err := s.api.DeleteGroup(ctx, id); err != nil {
		return fmt.Errorf("failed to delete group: %w", err)
	}
	s.cache.Remove(cache.CollectionGroups)
	return nil
}

// GroupMembers returns a group's member records, normalized.
func (s *Store) GroupMembers(ctx context.Context, id string) ([]models.Entity, error) {
	raw, err := s.api.ListGroupMembers(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch group members: %w", err)
	}
	members := make([]models.Entity, 0, len(raw))
	for _, record := range raw {
		members = append(members, normalize.Entity(record))
	}
	return members, nil
}

// AssignGroup assigns an entity to a group, then reflects the new membership
// locally and into the restoration map so a subsequent omissive fetch cannot
// drop it.
func (s *Store) AssignGroup(ctx context.Context, t models.EntityType, entityID string, group models.GroupRef) error {
	t = canonicalType(t)

	if err := s.api.AssignGroup(ctx, entityID, group.ID); err != nil {
		return fmt.Errorf("failed to assign group: %w", err)
	}

	var updated []models.GroupMembership
	s.mu.Lock()
	s.patchLocked(t, entityID, func(e *models.Entity) {
		for _, m := range e.GroupMemberships {
			if m.Group.ID == group.ID {
				updated = e.GroupMemberships
				return
			}
		}
		e.GroupMemberships = append(cloneMemberships(e.GroupMemberships), models.GroupMembership{Group: group})
		updated = e.GroupMemberships
	})
	s.scheduleCacheWriteLocked()
	s.mu.Unlock()

	if len(updated) > 0 && s.restore != nil {
		if err := s.restore.Observe(entityID, updated); err != nil {
			zap.L().Warn("failed to record membership after assign", zap.Error(err))
		}
	}
	s.cache.Remove(cache.CollectionGroups)
	return nil
}

// Industries returns the selectable industries.
func (s *Store) Industries(ctx context.Context) ([]models.Industry, error) {
	industries, err := s.api.ListIndustries(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch industries: %w", err)
	}
	return industries, nil
}

// CreateIndustry adds an industry.
func (s *Store) CreateIndustry(ctx context.Context, name string) (models.Industry, error) {
	if strings.TrimSpace(name) == "" {
		return models.Industry{}, ErrNameRequired
	}
	industry, err := s.api.CreateIndustry(ctx, name)
	if err != nil {
		return models.Industry{}, fmt.Errorf("failed to create industry: %w", err)
	}
	return industry, nil
}

// DeleteIndustry removes an industry.
func (s *Store) DeleteIndustry(ctx context.Context, id string) error {
	if err := s.api.DeleteIndustry(ctx, id); err != nil {
		return fmt.Errorf("failed to delete industry: %w", err)
	}
	return nil
}

// ExternalAgents returns the external agents.
func (s *Store) ExternalAgents(ctx context.Context) ([]models.ExternalAgent, error) {
	agents, err := s.api.ListExternalAgents(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch external agents: %w", err)
	}
	return agents, nil
}

func cloneMemberships(memberships []models.GroupMembership) []models.GroupMembership {
	out := make([]models.GroupMembership, len(memberships))
	copy(out, memberships)
	return out
}
