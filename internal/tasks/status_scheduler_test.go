package tasks

import (
	"context"
	"testing"
	"time"

	"github.com/toller892/adcp-salesagent/internal/adcp"
	"github.com/toller892/adcp-salesagent/internal/models"
	"github.com/toller892/adcp-salesagent/internal/observability"
)

func statusFixture(t *testing.T) (*StatusScheduler, *models.InMemorySalesStore) {
	t.Helper()
	store := models.NewInMemorySalesStore()
	sched := NewStatusScheduler(store, observability.NewNoOpRegistry(), time.Minute)
	sched.now = func() time.Time { return taskClock }
	return sched, store
}

func insertBuy(t *testing.T, store models.Store, id, status string, start, end time.Time) {
	t.Helper()
	if err := store.InsertMediaBuy(context.Background(), &models.MediaBuy{
		TenantID:    "t1",
		MediaBuyID:  id,
		PrincipalID: "p1",
		BuyerRef:    "br-" + id,
		Status:      status,
		StartTime:   start,
		EndTime:     end,
		Packages:    []models.Package{{PackageID: "pkg_" + id, BuyerRef: "pkg-a"}},
	}); err != nil {
		t.Fatalf("InsertMediaBuy(%s): %v", id, err)
	}
}

func assignCreative(t *testing.T, store models.Store, buyID, creativeID, status string) {
	t.Helper()
	ctx := context.Background()
	if err := store.InsertCreative(ctx, &models.Creative{
		TenantID:    "t1",
		CreativeID:  creativeID,
		PrincipalID: "p1",
		Name:        creativeID,
		Status:      status,
	}); err != nil {
		t.Fatalf("InsertCreative(%s): %v", creativeID, err)
	}
	if err := store.AssignCreative(ctx, &models.CreativeAssignment{
		TenantID:     "t1",
		AssignmentID: "asg_" + creativeID,
		CreativeID:   creativeID,
		MediaBuyID:   buyID,
		PackageID:    "pkg_" + buyID,
	}); err != nil {
		t.Fatalf("AssignCreative(%s): %v", creativeID, err)
	}
}

func buyStatus(t *testing.T, store models.Store, id string) string {
	t.Helper()
	buy, err := store.GetMediaBuy(context.Background(), "t1", id)
	if err != nil {
		t.Fatalf("GetMediaBuy(%s): %v", id, err)
	}
	return buy.Status
}

func TestStatusSchedulerActivatesStartedBuys(t *testing.T) {
	sched, store := statusFixture(t)
	past := taskClock.Add(-time.Hour)
	future := taskClock.Add(72 * time.Hour)

	insertBuy(t, store, "ready", adcp.StatusPendingActivation, past, future)
	assignCreative(t, store, "ready", "cr_ok", adcp.CreativeStatusApproved)

	insertBuy(t, store, "unreviewed", adcp.StatusPendingActivation, past, future)
	assignCreative(t, store, "unreviewed", "cr_wait", adcp.CreativeStatusPendingReview)

	insertBuy(t, store, "empty", adcp.StatusScheduled, past, future)

	insertBuy(t, store, "early", adcp.StatusPendingActivation, taskClock.Add(time.Hour), future)
	assignCreative(t, store, "early", "cr_early", adcp.CreativeStatusApproved)

	sched.RunOnce(context.Background())

	if got := buyStatus(t, store, "ready"); got != adcp.StatusActive {
		t.Errorf("ready = %q, want active", got)
	}
	if got := buyStatus(t, store, "unreviewed"); got != adcp.StatusPendingActivation {
		t.Errorf("unreviewed = %q, want untouched", got)
	}
	if got := buyStatus(t, store, "empty"); got != adcp.StatusScheduled {
		t.Errorf("empty = %q, want untouched with no creatives", got)
	}
	if got := buyStatus(t, store, "early"); got != adcp.StatusPendingActivation {
		t.Errorf("early = %q, want untouched before start", got)
	}
}

func TestStatusSchedulerCompletesEndedBuys(t *testing.T) {
	sched, store := statusFixture(t)

	insertBuy(t, store, "over", adcp.StatusActive, taskClock.Add(-72*time.Hour), taskClock.Add(-time.Hour))
	insertBuy(t, store, "running", adcp.StatusActive, taskClock.Add(-72*time.Hour), taskClock.Add(time.Hour))

	sched.RunOnce(context.Background())

	if got := buyStatus(t, store, "over"); got != adcp.StatusCompleted {
		t.Errorf("over = %q, want completed", got)
	}
	if got := buyStatus(t, store, "running"); got != adcp.StatusActive {
		t.Errorf("running = %q, want still active", got)
	}
}
