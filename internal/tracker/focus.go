package tracker

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/tabwatch/tabwatch/internal/store"
)

// TabQuerier answers "what URL is tab X currently showing". A failed lookup
// means the tab is gone; the pending dwell interval is dropped.
type TabQuerier interface {
	TabURL(tabID int64) (string, bool)
}

// FocusTracker turns tab focus transitions into dwell time. It is either
// idle or tracking exactly one tab since a point in time; the open interval
// is committed into the dwell map only at a transition boundary, so an
// interval still open at shutdown is lost.
type FocusTracker struct {
	store *store.Store
	tabs  TabQuerier
	clock func() time.Time

	tracking  bool
	activeTab int64
	startedAt int64 // unix ms
}

func NewFocusTracker(st *store.Store, tabs TabQuerier) *FocusTracker {
	return &FocusTracker{
		store: st,
		tabs:  tabs,
		clock: time.Now,
	}
}

// TabActivated commits the open interval of the previously focused tab and
// starts tracking the newly focused one.
func (f *FocusTracker) TabActivated(ctx context.Context, tabID int64, atMs int64) {
	now := f.at(atMs)
	f.commit(ctx, now)

	f.tracking = true
	f.activeTab = tabID
	f.startedAt = now
}

// NavigationCompleted re-anchors the interval when the focused tab finishes
// loading a navigation. Notifications for other tabs, or with an
// intermediate load status, are ignored.
func (f *FocusTracker) NavigationCompleted(ctx context.Context, tabID int64, status string, atMs int64) {
	if !f.tracking || tabID != f.activeTab {
		return
	}
	if status != "" && status != "complete" {
		return
	}

	now := f.at(atMs)
	f.commit(ctx, now)
	f.startedAt = now
}

func (f *FocusTracker) commit(ctx context.Context, nowMs int64) {
	if !f.tracking {
		return
	}

	duration := nowMs - f.startedAt
	if duration <= 0 {
		return
	}

	url, ok := f.tabs.TabURL(f.activeTab)
	if !ok {
		// Tab closed before the interval could be attributed.
		log.Debug().Int64("tab_id", f.activeTab).Msg("Dropping dwell interval for missing tab")
		return
	}

	f.store.AddDwell(ctx, url, duration)
}

func (f *FocusTracker) at(ms int64) int64 {
	if ms != 0 {
		return ms
	}
	return f.clock().UnixMilli()
}
