package statistics

import (
	"fmt"
	"log"
	"strconv"
	"sync"
	"time"

	"github.com/launchkit/launchkit/app/models"
	"github.com/launchkit/launchkit/internal/pkg/cache"
	"github.com/launchkit/launchkit/internal/pkg/database"
)

const (
	CacheKeyUsers         = "statistics:users:total"
	CacheKeySubscriptions = "statistics:subscriptions:active"
	CacheKeyUsageDaily    = "statistics:usage:daily:%s" // Format with date YYYY-MM-DD
	CacheExpiration       = 30 * time.Minute
)

// StatisticsData holds the aggregate figures shown on the landing page
type StatisticsData struct {
	TotalUsers          int
	ActiveSubscriptions int
	CreditsUsedToday    int
}

var (
	lastCacheUpdate     time.Time
	cacheUpdateMutex    sync.Mutex
	cacheUpdateInterval = 5 * time.Minute
)

// ShouldUpdateCache reports whether the cached figures are stale
func ShouldUpdateCache() bool {
	cacheUpdateMutex.Lock()
	defer cacheUpdateMutex.Unlock()

	return time.Since(lastCacheUpdate) > cacheUpdateInterval
}

// UpdateCacheIfNeeded refreshes the cache when the interval has passed
func UpdateCacheIfNeeded() {
	if ShouldUpdateCache() {
		cacheUpdateMutex.Lock()
		defer cacheUpdateMutex.Unlock()

		if err := UpdateStatisticsCache(); err != nil {
			log.Printf("Error updating statistics cache: %v", err)
		} else {
			lastCacheUpdate = time.Now()
		}
	}
}

// ResetCacheUpdateTimer forces the next check to refresh the cache
func ResetCacheUpdateTimer() {
	cacheUpdateMutex.Lock()
	defer cacheUpdateMutex.Unlock()

	lastCacheUpdate = time.Time{}
}

// UpdateStatisticsCache updates all statistics in the cache
func UpdateStatisticsCache() error {
	db := database.GetDB()

	var totalUsers int64
	if err := db.Model(&models.User{}).Count(&totalUsers).Error; err != nil {
		log.Printf("Error counting total users: %v", err)
		return err
	}

	var activeSubs int64
	if err := db.Model(&models.Subscription{}).Where("is_active = ?", true).Count(&activeSubs).Error; err != nil {
		log.Printf("Error counting active subscriptions: %v", err)
		return err
	}

	today := time.Now().Format("2006-01-02")
	todayStart, _ := time.Parse("2006-01-02", today)
	todayEnd := todayStart.Add(24 * time.Hour)

	var creditsToday int64
	if err := db.Model(&models.UsageLog{}).
		Select("COALESCE(SUM(credits_used), 0)").
		Where("created_at BETWEEN ? AND ?", todayStart, todayEnd).
		Scan(&creditsToday).Error; err != nil {
		log.Printf("Error summing today's usage: %v", err)
		return err
	}

	if err := cache.Set(CacheKeyUsers, strconv.FormatInt(totalUsers, 10), CacheExpiration); err != nil {
		log.Printf("Error caching total users: %v", err)
		return err
	}

	if err := cache.Set(CacheKeySubscriptions, strconv.FormatInt(activeSubs, 10), CacheExpiration); err != nil {
		log.Printf("Error caching active subscriptions: %v", err)
		return err
	}

	dailyKey := fmt.Sprintf(CacheKeyUsageDaily, today)
	if err := cache.Set(dailyKey, strconv.FormatInt(creditsToday, 10), CacheExpiration); err != nil {
		log.Printf("Error caching today's usage: %v", err)
		return err
	}

	log.Printf("Statistics updated in cache: Users: %d, Active Subscriptions: %d, Credits Today: %d",
		totalUsers, activeSubs, creditsToday)

	return nil
}

// GetTotalUsers returns the total number of users from cache or database
func GetTotalUsers() int {
	val, err := cache.Get(CacheKeyUsers)
	if err != nil {
		var count int64
		db := database.GetDB()
		if err := db.Model(&models.User{}).Count(&count).Error; err != nil {
			log.Printf("Error counting total users: %v", err)
			return 0
		}

		if err := cache.Set(CacheKeyUsers, strconv.FormatInt(count, 10), CacheExpiration); err != nil {
			log.Printf("Error caching total users: %v", err)
		}

		return int(count)
	}

	count, err := strconv.ParseInt(val, 10, 64)
	if err != nil {
		return 0
	}

	return int(count)
}

// GetActiveSubscriptions returns the active subscription count from cache or database
func GetActiveSubscriptions() int {
	val, err := cache.Get(CacheKeySubscriptions)
	if err != nil {
		var count int64
		db := database.GetDB()
		if err := db.Model(&models.Subscription{}).Where("is_active = ?", true).Count(&count).Error; err != nil {
			log.Printf("Error counting active subscriptions: %v", err)
			return 0
		}

		if err := cache.Set(CacheKeySubscriptions, strconv.FormatInt(count, 10), CacheExpiration); err != nil {
			log.Printf("Error caching active subscriptions: %v", err)
		}

		return int(count)
	}

	count, err := strconv.ParseInt(val, 10, 64)
	if err != nil {
		return 0
	}

	return int(count)
}

// GetCreditsUsedToday returns today's credit usage from cache or database
func GetCreditsUsedToday() int {
	today := time.Now().Format("2006-01-02")
	dailyKey := fmt.Sprintf(CacheKeyUsageDaily, today)

	val, err := cache.Get(dailyKey)
	if err != nil {
		db := database.GetDB()
		todayStart, _ := time.Parse("2006-01-02", today)
		todayEnd := todayStart.Add(24 * time.Hour)

		var total int64
		if err := db.Model(&models.UsageLog{}).
			Select("COALESCE(SUM(credits_used), 0)").
			Where("created_at BETWEEN ? AND ?", todayStart, todayEnd).
			Scan(&total).Error; err != nil {
			log.Printf("Error summing today's usage: %v", err)
			return 0
		}

		if err := cache.Set(dailyKey, strconv.FormatInt(total, 10), CacheExpiration); err != nil {
			log.Printf("Error caching today's usage: %v", err)
		}

		return int(total)
	}

	count, err := strconv.ParseInt(val, 10, 64)
	if err != nil {
		return 0
	}

	return int(count)
}

// GetStatisticsData returns all statistics data as StatisticsData structure
func GetStatisticsData() StatisticsData {
	UpdateCacheIfNeeded()

	return StatisticsData{
		TotalUsers:          GetTotalUsers(),
		ActiveSubscriptions: GetActiveSubscriptions(),
		CreditsUsedToday:    GetCreditsUsedToday(),
	}
}
