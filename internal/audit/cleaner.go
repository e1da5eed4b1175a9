package audit

import (
	"context"
	"fmt"

	"github.com/gigflow/backend/pkg/logger"
	"github.com/robfig/cron/v3"
)

// Cleaner runs Service.Cleanup on a cron schedule.
type Cleaner struct {
	service       *Service
	retentionDays int
	scheduler     *cron.Cron
}

func NewCleaner(service *Service, retentionDays int) *Cleaner {
	return &Cleaner{service: service, retentionDays: retentionDays}
}

// Start schedules the cleanup with a standard five-field cron expression.
func (c *Cleaner) Start(spec string) error {
	if c.retentionDays <= 0 {
		logger.Info().Msg("[Audit] Log cleanup disabled (retention_days <= 0)")
		return nil
	}

	c.scheduler = cron.New()
	if _, err := c.scheduler.AddFunc(spec, c.RunOnce); err != nil {
		return fmt.Errorf("invalid audit cleanup schedule %q: %w", spec, err)
	}
	c.scheduler.Start()
	logger.Info().Str("cron", spec).Int("retention_days", c.retentionDays).Msg("[Audit] Cleanup scheduler started")
	return nil
}

func (c *Cleaner) Stop() {
	if c.scheduler != nil {
		<-c.scheduler.Stop().Done()
	}
}

func (c *Cleaner) RunOnce() {
	deleted, err := c.service.Cleanup(context.Background(), c.retentionDays)
	if err != nil {
		logger.Error().Err(err).Msg("[Audit] Failed to cleanup old entries")
		return
	}
	if deleted > 0 {
		logger.Info().Int64("deleted", deleted).Int("retention_days", c.retentionDays).Msg("[Audit] Cleaned up old entries")
	}
}
