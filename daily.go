package imagegate

import (
	"context"
	"log/slog"
	"strconv"
	"time"

	"github.com/jonboulle/clockwork"
)

const dateLayout = "2006-01-02"

// DailyQuota caps completed generations per local calendar day.
//
// The reset is lazy: CheckAndReset compares today's date with the stored
// last-reset date at the start of every admission. The two keys are not
// updated atomically, so a rollover race can briefly leave them out of step.
type DailyQuota struct {
	store  Store
	keys   Keys
	limit  int64
	loc    *time.Location
	clock  clockwork.Clock
	logger *slog.Logger
}

// NewDailyQuota creates a DailyQuota with the given limit. A nil loc means
// time.Local, a nil clock the real clock.
func NewDailyQuota(store Store, keys Keys, limit int64, loc *time.Location, clock clockwork.Clock, logger *slog.Logger) *DailyQuota {
	if loc == nil {
		loc = time.Local
	}
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &DailyQuota{
		store:  store,
		keys:   keys,
		limit:  limit,
		loc:    loc,
		clock:  clock,
		logger: logger,
	}
}

// Today returns the current date key.
func (d *DailyQuota) Today() string {
	return d.clock.Now().In(d.loc).Format(dateLayout)
}

// Limit returns the configured daily limit.
func (d *DailyQuota) Limit() int64 { return d.limit }

// CheckAndReset zeroes the daily count if the stored date is not today.
// It reports whether a reset happened.
func (d *DailyQuota) CheckAndReset(ctx context.Context) bool {
	if d.store == nil {
		return false
	}

	today := d.Today()
	last, _, err := d.store.Get(ctx, d.keys.LastDate)
	if err != nil {
		d.logger.Warn("read last reset date", "key", d.keys.LastDate, "error", err)
		return false
	}
	if last == today {
		return false
	}

	if err := d.store.Set(ctx, d.keys.DailyCount, "0"); err != nil {
		d.logger.Warn("reset daily count", "key", d.keys.DailyCount, "error", err)
		return false
	}
	if err := d.store.Set(ctx, d.keys.LastDate, today); err != nil {
		d.logger.Warn("write last reset date", "key", d.keys.LastDate, "error", err)
	}
	d.logger.Info("daily limit reset", "date", today, "previous", last)
	return true
}

// Reached reports whether today's count is at or above the limit.
func (d *DailyQuota) Reached(ctx context.Context) bool {
	if d.store == nil {
		return false
	}
	return d.Used(ctx) >= d.limit
}

// Used returns today's count.
func (d *DailyQuota) Used(ctx context.Context) int64 {
	if d.store == nil {
		return 0
	}
	n, err := readInt(ctx, d.store, d.keys.DailyCount)
	if err != nil {
		d.logger.Warn("read daily count", "key", d.keys.DailyCount, "error", err)
		return 0
	}
	return n
}

// Remaining returns how many generations are left today.
func (d *DailyQuota) Remaining(ctx context.Context) int64 {
	return max(d.limit-d.Used(ctx), 0)
}

// LastReset returns the stored last-reset date, "" if unset.
func (d *DailyQuota) LastReset(ctx context.Context) string {
	if d.store == nil {
		return ""
	}
	v, _, err := d.store.Get(ctx, d.keys.LastDate)
	if err != nil {
		d.logger.Warn("read last reset date", "key", d.keys.LastDate, "error", err)
		return ""
	}
	return v
}

// Increment records one completed generation and returns the new count.
func (d *DailyQuota) Increment(ctx context.Context) int64 {
	if d.store == nil {
		return 0
	}

	var n int64
	if a, ok := d.store.(Adder); ok {
		var err error
		n, err = a.Add(ctx, d.keys.DailyCount, 1)
		if err != nil {
			d.logger.Warn("increment daily count", "key", d.keys.DailyCount, "error", err)
			return 0
		}
	} else {
		n = d.Used(ctx) + 1
		if err := d.store.Set(ctx, d.keys.DailyCount, strconv.FormatInt(n, 10)); err != nil {
			d.logger.Warn("write daily count", "key", d.keys.DailyCount, "error", err)
			return 0
		}
	}

	d.logger.Debug("daily count incremented", "count", n, "limit", d.limit)
	return n
}
