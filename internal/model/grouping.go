// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package model

import (
	"sort"
	"time"
)

// =============================================================================
// SESSION GROUPING
// =============================================================================

// SessionGroup is one labeled bucket of the grouped session list.
type SessionGroup struct {
	Label    string
	Sessions []*Session
}

// Group labels in display order.
const (
	GroupFavorites = "Favorites"
	GroupToday     = "Today"
	GroupYesterday = "Yesterday"
	GroupEarlier   = "Earlier"
)

// GroupSessions buckets sessions for sidebar display: favorites first,
// then the rest by recency of UpdatedAt relative to now. Each bucket is
// sorted most-recent-first. Empty buckets are omitted.
func GroupSessions(sessions []*Session, now time.Time) []SessionGroup {
	startOfToday := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	startOfYesterday := startOfToday.AddDate(0, 0, -1)

	buckets := map[string][]*Session{}
	for _, s := range sessions {
		switch {
		case s.IsFavorite:
			buckets[GroupFavorites] = append(buckets[GroupFavorites], s)
		case !s.UpdatedAt.Before(startOfToday):
			buckets[GroupToday] = append(buckets[GroupToday], s)
		case !s.UpdatedAt.Before(startOfYesterday):
			buckets[GroupYesterday] = append(buckets[GroupYesterday], s)
		default:
			buckets[GroupEarlier] = append(buckets[GroupEarlier], s)
		}
	}

	var groups []SessionGroup
	for _, label := range []string{GroupFavorites, GroupToday, GroupYesterday, GroupEarlier} {
		bucket := buckets[label]
		if len(bucket) == 0 {
			continue
		}
		sort.SliceStable(bucket, func(i, j int) bool {
			return bucket[i].UpdatedAt.After(bucket[j].UpdatedAt)
		})
		groups = append(groups, SessionGroup{Label: label, Sessions: bucket})
	}
	return groups
}
