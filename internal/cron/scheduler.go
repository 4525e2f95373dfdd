// Package cron runs the periodic maintenance jobs: state sweeps and
// temp-file reaping.
package cron

import (
	"time"

	"github.com/robfig/cron/v3"

	"github.com/pixelbot/pixelbot/internal/logger"
)

type Scheduler struct {
	c *cron.Cron
}

// NewScheduler builds a scheduler whose specs evaluate in loc; nil
// means local time.
func NewScheduler(loc *time.Location) *Scheduler {
	if loc == nil {
		loc = time.Local
	}
	return &Scheduler{c: cron.New(cron.WithLocation(loc))}
}

// Add registers a job under a cron spec ("@every 5m", "0 * * * *").
// Panics in a job are recovered and logged; a broken job must not take
// the scheduler down.
func (s *Scheduler) Add(spec, name string, fn func()) error {
	_, err := s.c.AddFunc(spec, func() {
		defer func() {
			if r := recover(); r != nil {
				logger.Error("scheduled job panicked", "job", name, "panic", r)
			}
		}()
		logger.Debug("scheduled job running", "job", name)
		fn()
	})
	if err != nil {
		return err
	}
	logger.Info("scheduled job registered", "job", name, "spec", spec)
	return nil
}

func (s *Scheduler) Start() {
	s.c.Start()
}

// Stop halts scheduling and waits for running jobs to finish.
func (s *Scheduler) Stop() {
	<-s.c.Stop().Done()
}
