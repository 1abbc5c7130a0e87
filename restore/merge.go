// ABOUTME: The single merge-priority rule for effective group memberships
// ABOUTME: Applied on every ingestion path so no refresh can clobber known assignments
package restore

import (
	"github.com/harperreed/funnel/models"
)

// MergeMemberships produces an entity's effective memberships from the three
// sources, highest priority first: the restoration map, the freshly-ingested
// value, then the previous in-memory value. An explicit-clear tombstone
// suppresses restoration and prior state; only a non-empty incoming value
// (the server re-asserting assignments) survives it.
//
// Every state-replacing operation (cache hydrate, REST refresh, live-sync
// apply, opportunity attach) must route through this function rather than
// trusting a previous merge result.
func MergeMemberships(restored []models.GroupMembership, cleared bool, incoming, previous []models.GroupMembership) []models.GroupMembership {
	if cleared {
		if len(incoming) > 0 {
			return incoming
		}
		return []models.GroupMembership{}
	}
	if len(restored) > 0 {
		return restored
	}
	if len(incoming) > 0 {
		return incoming
	}
	if len(previous) > 0 {
		return previous
	}
	return []models.GroupMembership{}
}
