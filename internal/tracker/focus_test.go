package tracker

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tabwatch/tabwatch/internal/event"
)

type staticTabs map[int64]string

func (s staticTabs) TabURL(tabID int64) (string, bool) {
	url, ok := s[tabID]
	return url, ok
}

func TestDwellAccumulatesOnTabSwitch(t *testing.T) {
	st := newTestStore(t)
	tabs := staticTabs{1: "https://example.com/", 2: "https://other.net/"}
	f := NewFocusTracker(st, tabs)
	ctx := context.Background()

	f.TabActivated(ctx, 1, 1_000)
	f.TabActivated(ctx, 2, 6_000)
	f.TabActivated(ctx, 1, 8_500)

	activity, _ := st.Snapshot()
	assert.Equal(t, int64(5_000), activity["https://example.com/"])
	assert.Equal(t, int64(2_500), activity["https://other.net/"])
}

func TestDwellReturnVisitsSum(t *testing.T) {
	st := newTestStore(t)
	tabs := staticTabs{1: "https://example.com/", 2: "https://other.net/"}
	f := NewFocusTracker(st, tabs)
	ctx := context.Background()

	f.TabActivated(ctx, 1, 0)
	f.TabActivated(ctx, 2, 1_000)
	f.TabActivated(ctx, 1, 2_000)
	f.TabActivated(ctx, 2, 5_000)

	activity, _ := st.Snapshot()
	assert.Equal(t, int64(4_000), activity["https://example.com/"])
	assert.Equal(t, int64(1_000), activity["https://other.net/"])
}

func TestNavigationSplitsInterval(t *testing.T) {
	st := newTestStore(t)
	tabs := staticTabs{1: "https://example.com/page1"}
	f := NewFocusTracker(st, tabs)
	ctx := context.Background()

	f.TabActivated(ctx, 1, 1_000)
	// Page 1's time is committed, the interval re-anchors on the new page.
	f.NavigationCompleted(ctx, 1, "complete", 4_000)
	tabs[1] = "https://example.com/page2"
	f.TabActivated(ctx, 2, 9_000)

	activity, _ := st.Snapshot()
	assert.Equal(t, int64(3_000), activity["https://example.com/page1"])
	assert.Equal(t, int64(5_000), activity["https://example.com/page2"])
}

func TestNavigationIgnoredForUnfocusedTab(t *testing.T) {
	st := newTestStore(t)
	tabs := staticTabs{1: "https://example.com/", 2: "https://other.net/"}
	f := NewFocusTracker(st, tabs)
	ctx := context.Background()

	f.TabActivated(ctx, 1, 1_000)
	f.NavigationCompleted(ctx, 2, "complete", 3_000)
	f.TabActivated(ctx, 2, 5_000)

	activity, _ := st.Snapshot()
	assert.Equal(t, int64(4_000), activity["https://example.com/"])
	assert.NotContains(t, activity, "https://other.net/")
}

func TestNavigationIgnoredWhileLoading(t *testing.T) {
	st := newTestStore(t)
	tabs := staticTabs{1: "https://example.com/"}
	f := NewFocusTracker(st, tabs)
	ctx := context.Background()

	f.TabActivated(ctx, 1, 1_000)
	f.NavigationCompleted(ctx, 1, "loading", 2_000)
	f.TabActivated(ctx, 2, 4_000)

	activity, _ := st.Snapshot()
	// The loading notification did not re-anchor, so the whole 3s lands
	// on the original page.
	assert.Equal(t, int64(3_000), activity["https://example.com/"])
}

func TestIntervalDroppedWhenTabGone(t *testing.T) {
	st := newTestStore(t)
	f := NewFocusTracker(st, staticTabs{})
	ctx := context.Background()

	f.TabActivated(ctx, 42, 1_000)
	f.TabActivated(ctx, 43, 5_000)

	activity, _ := st.Snapshot()
	assert.Empty(t, activity)
}

func TestZeroDurationNotRecorded(t *testing.T) {
	st := newTestStore(t)
	tabs := staticTabs{1: "https://example.com/"}
	f := NewFocusTracker(st, tabs)
	ctx := context.Background()

	f.TabActivated(ctx, 1, 1_000)
	f.TabActivated(ctx, 2, 1_000)

	activity, _ := st.Snapshot()
	assert.Empty(t, activity)
}

func TestFocusThroughAggregator(t *testing.T) {
	st := newTestStore(t)
	agg := New(st, nil, nil)
	agg.Ingest(event.Event{Type: event.TypePageVisit, URL: "https://example.com/", Domain: "example.com", Timestamp: 900, TabID: 1})
	agg.Ingest(event.Event{Type: event.TypeTabActivated, TabID: 1, Timestamp: 1_000})
	agg.Ingest(event.Event{Type: event.TypeTabActivated, TabID: 2, Timestamp: 7_000})
	agg.Stop()

	activity, _ := st.Snapshot()
	require.Contains(t, activity, "https://example.com/")
	assert.Equal(t, int64(6_000), activity["https://example.com/"])
}
