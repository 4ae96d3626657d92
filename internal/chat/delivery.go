package chat

import (
	"context"
	"log/slog"
	"time"
)

// DefaultDeliveryInterval is the period between two delivery ticks.
const DefaultDeliveryInterval = 100 * time.Millisecond

// Delivery periodically pushes the full message log of every occupied room
// to each of its sessions. There is no diffing: every tick carries the whole
// log.
type Delivery struct {
	svc      *Service
	interval time.Duration
	logger   *slog.Logger
}

// NewDelivery creates a delivery loop over svc's sessions. A non-positive
// interval selects DefaultDeliveryInterval.
func NewDelivery(svc *Service, interval time.Duration) *Delivery {
	if interval <= 0 {
		interval = DefaultDeliveryInterval
	}
	return &Delivery{
		svc:      svc,
		interval: interval,
		logger:   svc.logger,
	}
}

// Interval returns the tick period.
func (d *Delivery) Interval() time.Duration {
	return d.interval
}

// Run ticks until ctx is cancelled.
func (d *Delivery) Run(ctx context.Context) {
	ticker := time.NewTicker(d.interval)
	defer ticker.Stop()

	d.logger.Info("Delivery loop started", "interval", d.interval)
	for {
		select {
		case <-ctx.Done():
			d.logger.Info("Delivery loop stopped")
			return
		case <-ticker.C:
			d.Tick()
		}
	}
}

// Tick performs one delivery pass and returns how many logs were accepted by
// their pushers.
func (d *Delivery) Tick() int {
	delivered := 0
	for _, sess := range d.svc.sessionSnapshot() {
		if d.deliver(sess) {
			delivered++
		}
	}
	return delivered
}

func (d *Delivery) deliver(sess *Session) (ok bool) {
	defer func() {
		if r := recover(); r != nil {
			d.logger.Error("Delivery panicked", "session", sess.id, "panic", r)
			ok = false
		}
	}()

	snap := sess.Snapshot()
	if snap.State != StateInRoom || sess.pusher == nil {
		return false
	}

	messages, found := d.svc.rooms.Messages(snap.RoomID)
	if !found {
		d.logger.Debug("Room gone before delivery", "session", sess.id, "roomID", snap.RoomID)
		return false
	}
	return sess.pusher.Push(messages)
}
