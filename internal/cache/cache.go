package cache

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/chainraise/chainraise/internal/monitoring"
	"github.com/chainraise/chainraise/internal/types"
)

// cachedCampaigns holds a full campaign listing snapshot
type cachedCampaigns struct {
	Campaigns []types.Campaign
	CachedAt  time.Time
	ExpiresAt time.Time
	HitCount  int
}

// cachedDonations holds the donation list for one campaign
type cachedDonations struct {
	Donations []types.Donation
	CachedAt  time.Time
	ExpiresAt time.Time
	HitCount  int
}

// SnapshotCache provides TTL caching for campaign listings and per-campaign
// donation lists so repeated reads don't hammer the RPC endpoints
type SnapshotCache struct {
	campaigns *cachedCampaigns
	donations map[uint64]*cachedDonations
	mu        sync.RWMutex
	ttl       time.Duration
	logger    zerolog.Logger
}

// NewSnapshotCache creates a new snapshot cache
func NewSnapshotCache(ttl time.Duration, logger zerolog.Logger) *SnapshotCache {
	return &SnapshotCache{
		donations: make(map[uint64]*cachedDonations),
		ttl:       ttl,
		logger:    logger.With().Str("component", "snapshot-cache").Logger(),
	}
}

// GetCampaigns retrieves the cached campaign listing if it hasn't expired
func (sc *SnapshotCache) GetCampaigns() ([]types.Campaign, bool) {
	sc.mu.RLock()
	defer sc.mu.RUnlock()

	cached := sc.campaigns
	if cached == nil {
		monitoring.CacheMissesTotal.Inc()
		return nil, false
	}

	if time.Now().UTC().After(cached.ExpiresAt) {
		monitoring.CacheMissesTotal.Inc()
		return nil, false
	}

	cached.HitCount++

	sc.logger.Debug().
		Int("campaigns", len(cached.Campaigns)).
		Int("hit_count", cached.HitCount).
		Msg("Campaign cache hit")

	monitoring.CacheHitsTotal.Inc()

	return cached.Campaigns, true
}

// SetCampaigns stores a campaign listing snapshot
func (sc *SnapshotCache) SetCampaigns(campaigns []types.Campaign) {
	sc.mu.Lock()
	defer sc.mu.Unlock()

	now := time.Now().UTC()
	sc.campaigns = &cachedCampaigns{
		Campaigns: campaigns,
		CachedAt:  now,
		ExpiresAt: now.Add(sc.ttl),
	}

	sc.logger.Debug().
		Int("campaigns", len(campaigns)).
		Time("expires_at", sc.campaigns.ExpiresAt).
		Msg("Campaigns cached")
}

// GetDonations retrieves cached donations for a campaign if they haven't expired
func (sc *SnapshotCache) GetDonations(campaignID uint64) ([]types.Donation, bool) {
	sc.mu.RLock()
	defer sc.mu.RUnlock()

	cached, exists := sc.donations[campaignID]
	if !exists {
		monitoring.CacheMissesTotal.Inc()
		return nil, false
	}

	if time.Now().UTC().After(cached.ExpiresAt) {
		monitoring.CacheMissesTotal.Inc()
		return nil, false
	}

	cached.HitCount++

	sc.logger.Debug().
		Uint64("campaign_id", campaignID).
		Int("hit_count", cached.HitCount).
		Msg("Donation cache hit")

	monitoring.CacheHitsTotal.Inc()

	return cached.Donations, true
}

// SetDonations stores the donation list for a campaign
func (sc *SnapshotCache) SetDonations(campaignID uint64, donations []types.Donation) {
	sc.mu.Lock()
	defer sc.mu.Unlock()

	now := time.Now().UTC()
	sc.donations[campaignID] = &cachedDonations{
		Donations: donations,
		CachedAt:  now,
		ExpiresAt: now.Add(sc.ttl),
	}

	sc.logger.Debug().
		Uint64("campaign_id", campaignID).
		Int("donations", len(donations)).
		Msg("Donations cached")
}

// InvalidateCampaign removes the campaign listing snapshot along with the
// donation list for the given campaign. Used after a confirmed write.
func (sc *SnapshotCache) InvalidateCampaign(campaignID uint64) {
	sc.mu.Lock()
	defer sc.mu.Unlock()

	sc.campaigns = nil
	delete(sc.donations, campaignID)

	sc.logger.Debug().
		Uint64("campaign_id", campaignID).
		Msg("Cache entries invalidated")
}

// Clear removes all cache entries
func (sc *SnapshotCache) Clear() {
	sc.mu.Lock()
	defer sc.mu.Unlock()

	sc.campaigns = nil
	sc.donations = make(map[uint64]*cachedDonations)

	sc.logger.Info().Msg("Cache cleared")
}

// CleanExpired removes expired cache entries
func (sc *SnapshotCache) CleanExpired() {
	sc.mu.Lock()
	defer sc.mu.Unlock()

	now := time.Now().UTC()
	removed := 0

	if sc.campaigns != nil && now.After(sc.campaigns.ExpiresAt) {
		sc.campaigns = nil
		removed++
	}

	for id, cached := range sc.donations {
		if now.After(cached.ExpiresAt) {
			delete(sc.donations, id)
			removed++
		}
	}

	if removed > 0 {
		sc.logger.Debug().
			Int("removed", removed).
			Msg("Expired cache entries cleaned")
	}
}

// StartPeriodicCleanup starts periodic cleanup of expired entries
func (sc *SnapshotCache) StartPeriodicCleanup(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			sc.logger.Info().Msg("Stopping cache cleanup")
			return
		case <-ticker.C:
			sc.CleanExpired()
		}
	}
}

// GetStats returns cache statistics
func (sc *SnapshotCache) GetStats() map[string]interface{} {
	sc.mu.RLock()
	defer sc.mu.RUnlock()

	totalHits := 0
	entries := 0
	if sc.campaigns != nil {
		totalHits += sc.campaigns.HitCount
		entries++
	}
	for _, cached := range sc.donations {
		totalHits += cached.HitCount
		entries++
	}

	return map[string]interface{}{
		"total_entries": entries,
		"total_hits":    totalHits,
		"ttl_seconds":   sc.ttl.Seconds(),
	}
}
