package counter

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/FoxUshiha/ServerPremiumSub/internal/pkg/database"
)

const (
	noticesSentKey   = "notify:counters:sent"
	noticesFailedKey = "notify:counters:failed"
)

// AddNoticeSent increments the pending delivered-notice counter for a guild
// log channel in Redis
func AddNoticeSent(rdb *redis.Client, channelID string) error {
	if channelID == "" {
		return nil
	}
	return rdb.HIncrBy(context.Background(), noticesSentKey, channelID, 1).Err()
}

// AddNoticeFailed increments the pending failed-notice counter for a guild
// log channel in Redis
func AddNoticeFailed(rdb *redis.Client, channelID string) error {
	if channelID == "" {
		return nil
	}
	return rdb.HIncrBy(context.Background(), noticesFailedKey, channelID, 1).Err()
}

// PendingTotals sums the not-yet-flushed counters, for the admin queue view.
func PendingTotals(rdb *redis.Client) (sent int64, failed int64, err error) {
	ctx := context.Background()
	if sent, err = sumHash(ctx, rdb, noticesSentKey); err != nil {
		return 0, 0, err
	}
	if failed, err = sumHash(ctx, rdb, noticesFailedKey); err != nil {
		return 0, 0, err
	}
	return sent, failed, nil
}

func sumHash(ctx context.Context, rdb *redis.Client, key string) (int64, error) {
	data, err := rdb.HGetAll(ctx, key).Result()
	if err != nil {
		return 0, err
	}
	var total int64
	for _, v := range data {
		n, perr := strconv.ParseInt(v, 10, 64)
		if perr != nil {
			continue
		}
		total += n
	}
	return total, nil
}

// FlushAll flushes both delivery counters to the guilds table
func FlushAll(rdb *redis.Client) error {
	if err := flushHashToColumn(rdb, noticesSentKey, "notices_sent"); err != nil {
		return err
	}
	if err := flushHashToColumn(rdb, noticesFailedKey, "notices_failed"); err != nil {
		return err
	}
	return nil
}

// flushHashToColumn drains a Redis hash atomically and applies batched increments
// to the guilds table, keyed by log channel.
// Uses RENAME to a temporary key for atomic drain without losing in-flight increments.
func flushHashToColumn(rdb *redis.Client, redisKey, column string) error {
	ctx := context.Background()

	// Atomically move the hash to a temp key for draining
	tmpKey := fmt.Sprintf("%s:tmp:%d", redisKey, time.Now().UnixNano())
	if err := rdb.Do(ctx, "RENAME", redisKey, tmpKey).Err(); err != nil {
		// If key does not exist, nothing to flush
		if strings.Contains(strings.ToLower(err.Error()), "no such key") {
			return nil
		}
		// Some Redis libs return redis.Nil; treat as empty
		if err.Error() == "redis: nil" {
			return nil
		}
		return err
	}

	// Ensure cleanup of tmpKey even if later steps fail
	defer rdb.Del(ctx, tmpKey)

	data, err := rdb.HGetAll(ctx, tmpKey).Result()
	if err != nil {
		return err
	}
	if len(data) == 0 {
		return nil
	}

	// Build batched UPDATE using CASE WHEN log_channel_id THEN inc
	// Collect channel ids and increments; sort for stable SQL
	type pair struct {
		channel string
		inc     int64
	}
	pairs := make([]pair, 0, len(data))
	for k, v := range data {
		if k == "" {
			continue
		}
		inc, ierr := strconv.ParseInt(v, 10, 64)
		if ierr != nil || inc == 0 {
			continue
		}
		pairs = append(pairs, pair{channel: k, inc: inc})
	}
	if len(pairs) == 0 {
		return nil
	}
	sort.Slice(pairs, func(i, j int) bool { return pairs[i].channel < pairs[j].channel })

	// Compose SQL
	// UPDATE guilds SET <column> = <column> + CASE log_channel_id WHEN ? THEN ? ... END WHERE log_channel_id IN ( ... )
	var builder strings.Builder
	args := make([]interface{}, 0, len(pairs)*3)
	builder.WriteString("UPDATE guilds SET ")
	builder.WriteString(column)
	builder.WriteString(" = ")
	builder.WriteString(column)
	builder.WriteString(" + CASE log_channel_id ")
	for _, p := range pairs {
		builder.WriteString(" WHEN ? THEN ?")
		args = append(args, p.channel, p.inc)
	}
	builder.WriteString(" END WHERE log_channel_id IN (")
	for i, p := range pairs {
		if i > 0 {
			builder.WriteString(",")
		}
		builder.WriteString("?")
		args = append(args, p.channel)
	}
	builder.WriteString(")")

	sql := builder.String()
	db := database.GetDB()
	if db == nil {
		return nil
	}
	if err := db.Exec(sql, args...).Error; err != nil {
		return err
	}
	return nil
}
