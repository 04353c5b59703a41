package cache

import (
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/chainraise/chainraise/internal/types"
)

func testCampaigns() []types.Campaign {
	return []types.Campaign{
		{ID: 0, Name: "First", Goal: "1", AmountRaised: "0.25", IsActive: true, Progress: 25},
		{ID: 1, Name: "Second", Goal: "2", AmountRaised: "0", IsActive: true},
	}
}

func testDonations() []types.Donation {
	return []types.Donation{
		{Donor: "0xabc0000000000000000000000000000000000001", Amount: "0.1", Timestamp: 1700000000, Message: "hi"},
	}
}

func TestCampaignCacheHitAndMiss(t *testing.T) {
	sc := NewSnapshotCache(time.Minute, zerolog.Nop())

	if _, ok := sc.GetCampaigns(); ok {
		t.Error("empty cache reported a hit")
	}

	sc.SetCampaigns(testCampaigns())

	got, ok := sc.GetCampaigns()
	if !ok {
		t.Fatal("cache miss after set")
	}
	if len(got) != 2 || got[0].Name != "First" {
		t.Errorf("unexpected cached campaigns: %+v", got)
	}
}

func TestCampaignCacheExpiry(t *testing.T) {
	sc := NewSnapshotCache(10*time.Millisecond, zerolog.Nop())
	sc.SetCampaigns(testCampaigns())

	time.Sleep(20 * time.Millisecond)

	if _, ok := sc.GetCampaigns(); ok {
		t.Error("expired entry reported a hit")
	}
}

func TestDonationCachePerCampaign(t *testing.T) {
	sc := NewSnapshotCache(time.Minute, zerolog.Nop())

	sc.SetDonations(0, testDonations())

	if _, ok := sc.GetDonations(1); ok {
		t.Error("cache hit for a campaign that was never cached")
	}

	got, ok := sc.GetDonations(0)
	if !ok {
		t.Fatal("cache miss after set")
	}
	if len(got) != 1 || got[0].Amount != "0.1" {
		t.Errorf("unexpected cached donations: %+v", got)
	}
}

func TestInvalidateCampaign(t *testing.T) {
	sc := NewSnapshotCache(time.Minute, zerolog.Nop())
	sc.SetCampaigns(testCampaigns())
	sc.SetDonations(0, testDonations())
	sc.SetDonations(1, testDonations())

	sc.InvalidateCampaign(0)

	if _, ok := sc.GetCampaigns(); ok {
		t.Error("campaign listing survived invalidation")
	}
	if _, ok := sc.GetDonations(0); ok {
		t.Error("invalidated campaign's donations survived")
	}
	// Other campaigns' donation lists are untouched.
	if _, ok := sc.GetDonations(1); !ok {
		t.Error("unrelated donation entry was invalidated")
	}
}

func TestClear(t *testing.T) {
	sc := NewSnapshotCache(time.Minute, zerolog.Nop())
	sc.SetCampaigns(testCampaigns())
	sc.SetDonations(0, testDonations())

	sc.Clear()

	if _, ok := sc.GetCampaigns(); ok {
		t.Error("campaign listing survived clear")
	}
	if _, ok := sc.GetDonations(0); ok {
		t.Error("donation entry survived clear")
	}
}

func TestCleanExpired(t *testing.T) {
	sc := NewSnapshotCache(10*time.Millisecond, zerolog.Nop())
	sc.SetCampaigns(testCampaigns())
	sc.SetDonations(0, testDonations())

	time.Sleep(20 * time.Millisecond)
	sc.CleanExpired()

	stats := sc.GetStats()
	if entries := stats["total_entries"].(int); entries != 0 {
		t.Errorf("total_entries = %d after cleanup, want 0", entries)
	}
}

func TestGetStats(t *testing.T) {
	sc := NewSnapshotCache(30*time.Second, zerolog.Nop())
	sc.SetCampaigns(testCampaigns())
	sc.SetDonations(0, testDonations())

	sc.GetCampaigns()
	sc.GetCampaigns()
	sc.GetDonations(0)

	stats := sc.GetStats()
	if entries := stats["total_entries"].(int); entries != 2 {
		t.Errorf("total_entries = %d, want 2", entries)
	}
	if hits := stats["total_hits"].(int); hits != 3 {
		t.Errorf("total_hits = %d, want 3", hits)
	}
	if ttl := stats["ttl_seconds"].(float64); ttl != 30 {
		t.Errorf("ttl_seconds = %v, want 30", ttl)
	}
}
