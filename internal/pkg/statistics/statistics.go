package statistics

import (
	"fmt"
	"log"
	"strconv"
	"sync"
	"time"

	"github.com/FoxUshiha/ServerPremiumSub/app/models"
	"github.com/FoxUshiha/ServerPremiumSub/internal/pkg/cache"
	"github.com/FoxUshiha/ServerPremiumSub/internal/pkg/database"
)

const (
	CacheKeyGuildsTotal  = "statistics:guilds:total"
	CacheKeyGuildsActive = "statistics:guilds:active"
	CacheKeySubsTotal    = "statistics:subscriptions:total"
	CacheKeySubsActive   = "statistics:subscriptions:active"
	CacheKeyChargesDaily = "statistics:charges:daily:%s" // Format with date YYYY-MM-DD
	CacheKeyRevenueDaily = "statistics:revenue:daily:%s" // Format with date YYYY-MM-DD
	CacheExpiration      = 30 * time.Minute
)

// BillingStats holds the roll-up served by the admin statistics endpoint.
type BillingStats struct {
	TotalGuilds         int    `json:"total_guilds"`
	ActiveGuilds        int    `json:"active_guilds"`
	TotalSubscriptions  int    `json:"total_subscriptions"`
	ActiveSubscriptions int    `json:"active_subscriptions"`
	TodayCharges        int    `json:"today_charges"`
	TodayRevenue        string `json:"today_revenue"`
}

var (
	lastCacheUpdate     time.Time
	cacheUpdateMutex    sync.Mutex
	cacheUpdateInterval = 5 * time.Minute
)

// ShouldUpdateCache reports whether the cached roll-up is stale.
func ShouldUpdateCache() bool {
	cacheUpdateMutex.Lock()
	defer cacheUpdateMutex.Unlock()

	return time.Since(lastCacheUpdate) > cacheUpdateInterval
}

// UpdateCacheIfNeeded refreshes the cached roll-up when it is stale.
func UpdateCacheIfNeeded() {
	if ShouldUpdateCache() {
		cacheUpdateMutex.Lock()
		defer cacheUpdateMutex.Unlock()

		if err := UpdateStatisticsCache(); err != nil {
			log.Printf("Error refreshing statistics cache: %v", err)
		} else {
			lastCacheUpdate = time.Now()
		}
	}
}

// ResetCacheUpdateTimer forces the next read to refresh the cache.
func ResetCacheUpdateTimer() {
	cacheUpdateMutex.Lock()
	defer cacheUpdateMutex.Unlock()

	lastCacheUpdate = time.Time{}
}

// UpdateStatisticsCache recomputes every statistic from the database and
// stores the results in the cache.
func UpdateStatisticsCache() error {
	db := database.GetDB()

	var totalGuilds, activeGuilds int64
	if err := db.Model(&models.Guild{}).Count(&totalGuilds).Error; err != nil {
		log.Printf("Error counting guilds: %v", err)
		return err
	}
	if err := db.Model(&models.Guild{}).Where("active = ?", true).Count(&activeGuilds).Error; err != nil {
		log.Printf("Error counting active guilds: %v", err)
		return err
	}

	var totalSubs, activeSubs int64
	if err := db.Model(&models.Subscription{}).Count(&totalSubs).Error; err != nil {
		log.Printf("Error counting subscriptions: %v", err)
		return err
	}
	if err := db.Model(&models.Subscription{}).Where("active = ?", true).Count(&activeSubs).Error; err != nil {
		log.Printf("Error counting active subscriptions: %v", err)
		return err
	}

	today := time.Now().Format("2006-01-02")
	todayStart, _ := time.Parse("2006-01-02", today)
	todayEnd := todayStart.Add(24 * time.Hour)

	var todayCharges int64
	if err := db.Model(&models.PaymentLog{}).
		Where("created_at BETWEEN ? AND ?", todayStart, todayEnd).
		Count(&todayCharges).Error; err != nil {
		log.Printf("Error counting today's charges: %v", err)
		return err
	}

	// Verified revenue only: failed attempts carry an amount but no money
	// moved.
	var todayRevenue string
	if err := db.Model(&models.PaymentLog{}).
		Select("COALESCE(SUM(amount), 0)").
		Where("success = ? AND created_at BETWEEN ? AND ?", true, todayStart, todayEnd).
		Scan(&todayRevenue).Error; err != nil {
		log.Printf("Error summing today's revenue: %v", err)
		return err
	}

	entries := map[string]string{
		CacheKeyGuildsTotal:  strconv.FormatInt(totalGuilds, 10),
		CacheKeyGuildsActive: strconv.FormatInt(activeGuilds, 10),
		CacheKeySubsTotal:    strconv.FormatInt(totalSubs, 10),
		CacheKeySubsActive:   strconv.FormatInt(activeSubs, 10),
		fmt.Sprintf(CacheKeyChargesDaily, today): strconv.FormatInt(todayCharges, 10),
		fmt.Sprintf(CacheKeyRevenueDaily, today): todayRevenue,
	}
	for key, value := range entries {
		if err := cache.Set(key, value, CacheExpiration); err != nil {
			log.Printf("Error caching %s: %v", key, err)
			return err
		}
	}

	log.Printf("Statistics updated in cache: Guilds: %d/%d active, Subscriptions: %d/%d active, Today's Charges: %d",
		activeGuilds, totalGuilds, activeSubs, totalSubs, todayCharges)

	return nil
}

// cachedInt reads one integer statistic from the cache, recomputing the whole
// roll-up on a miss.
func cachedInt(key string) int {
	val, err := cache.Get(key)
	if err != nil {
		if err := UpdateStatisticsCache(); err != nil {
			return 0
		}
		if val, err = cache.Get(key); err != nil {
			return 0
		}
	}

	count, err := strconv.ParseInt(val, 10, 64)
	if err != nil {
		return 0
	}
	return int(count)
}

// GetBillingStats returns the full statistics roll-up, refreshing the cache
// when stale.
func GetBillingStats() BillingStats {
	UpdateCacheIfNeeded()

	today := time.Now().Format("2006-01-02")
	revenue, err := cache.Get(fmt.Sprintf(CacheKeyRevenueDaily, today))
	if err != nil {
		revenue = "0"
	}

	return BillingStats{
		TotalGuilds:         cachedInt(CacheKeyGuildsTotal),
		ActiveGuilds:        cachedInt(CacheKeyGuildsActive),
		TotalSubscriptions:  cachedInt(CacheKeySubsTotal),
		ActiveSubscriptions: cachedInt(CacheKeySubsActive),
		TodayCharges:        cachedInt(fmt.Sprintf(CacheKeyChargesDaily, today)),
		TodayRevenue:        revenue,
	}
}
