package scheduler

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/puzpuzpuz/xsync/v3"
	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"

	"backup-master/modules/backup"
)

const (
	FrequencyDaily  = "daily"
	FrequencyWeekly = "weekly"
)

var weekdays = map[string]time.Weekday{
	"sunday":    time.Sunday,
	"monday":    time.Monday,
	"tuesday":   time.Tuesday,
	"wednesday": time.Wednesday,
	"thursday":  time.Thursday,
	"friday":    time.Friday,
	"saturday":  time.Saturday,
}

// Schedule is a daily or weekly trigger at a wall clock time
type Schedule struct {
	Frequency string
	// Time is "HH:MM"
	Time    string
	Weekday string
}

// Spec converts schedule into standard 5-field cron expression
func (s Schedule) Spec() (string, error) {

	hh, mm, ok := strings.Cut(s.Time, ":")
	if !ok {
		return "", fmt.Errorf("invalid time `%s`, expected HH:MM", s.Time)
	}
	h, err := strconv.Atoi(hh)
	if err != nil || h < 0 || h > 23 {
		return "", fmt.Errorf("invalid hour in `%s`", s.Time)
	}
	m, err := strconv.Atoi(mm)
	if err != nil || m < 0 || m > 59 {
		return "", fmt.Errorf("invalid minute in `%s`", s.Time)
	}

	switch strings.ToLower(s.Frequency) {
	case FrequencyDaily:
		return fmt.Sprintf("%d %d * * *", m, h), nil
	case FrequencyWeekly:
		wd, ok := weekdays[strings.ToLower(s.Weekday)]
		if !ok {
			return "", fmt.Errorf("invalid weekday `%s`", s.Weekday)
		}
		return fmt.Sprintf("%d %d * * %d", m, h, wd), nil
	}

	return "", fmt.Errorf("unknown frequency `%s`, available: %s, %s", s.Frequency, FrequencyDaily, FrequencyWeekly)
}

// Task starts a backup, it must not block until the backup is over
type Task func() error

type Scheduler struct {
	cron    *cron.Cron
	log     logrus.FieldLogger
	entries *xsync.MapOf[string, cron.EntryID]
}

func New(log logrus.FieldLogger, loc *time.Location) *Scheduler {

	if loc == nil {
		loc = time.Local
	}
	cl := cronLogger{log: log}

	return &Scheduler{
		cron: cron.New(
			cron.WithLocation(loc),
			cron.WithLogger(cl),
			cron.WithChain(cron.Recover(cl)),
		),
		log:     log,
		entries: xsync.NewMapOf[string, cron.EntryID](),
	}
}

// Add registers task of the server, replacing a previous one
func (s *Scheduler) Add(server string, sch Schedule, task Task) error {

	spec, err := sch.Spec()
	if err != nil {
		return fmt.Errorf("server `%s`: %w", server, err)
	}

	id, err := s.cron.AddFunc(spec, func() { s.trigger(server, task) })
	if err != nil {
		return fmt.Errorf("server `%s`: failed to add cron job: %w", server, err)
	}

	if prev, loaded := s.entries.LoadAndStore(server, id); loaded {
		s.cron.Remove(prev)
	}
	s.log.WithField("server", server).Debugf("Scheduled backup with `%s`", spec)

	return nil
}

func (s *Scheduler) Remove(server string) bool {
	id, ok := s.entries.LoadAndDelete(server)
	if ok {
		s.cron.Remove(id)
	}
	return ok
}

// Servers returns names of scheduled servers
func (s *Scheduler) Servers() []string {
	var out []string
	s.entries.Range(func(k string, _ cron.EntryID) bool {
		out = append(out, k)
		return true
	})
	return out
}

// Next returns next activation of the server's schedule. Zero before Start.
func (s *Scheduler) Next(server string) (time.Time, bool) {
	id, ok := s.entries.Load(server)
	if !ok {
		return time.Time{}, false
	}
	return s.cron.Entry(id).Next, true
}

func (s *Scheduler) Start() {
	s.cron.Start()
}

// Stop stops triggering and waits for running triggers to return or ctx to expire
func (s *Scheduler) Stop(ctx context.Context) error {
	select {
	case <-s.cron.Stop().Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Scheduler) trigger(server string, task Task) {
	l := s.log.WithField("server", server)

	err := task()
	switch {
	case err == nil:
		l.Info("Scheduled backup started")
	case errors.Is(err, backup.ErrAlreadyRunning):
		l.Warn("Scheduled backup skipped: another backup is still running")
	default:
		l.Errorf("Scheduled backup not started: %s", err)
	}
}

// cronLogger routes cron's own messages into logrus
type cronLogger struct {
	log logrus.FieldLogger
}

func (c cronLogger) Info(msg string, keysAndValues ...interface{}) {
	c.log.WithFields(fields(keysAndValues)).Debug(msg)
}

func (c cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	c.log.WithFields(fields(keysAndValues)).WithError(err).Error(msg)
}

func fields(kv []interface{}) logrus.Fields {
	f := logrus.Fields{}
	for i := 0; i+1 < len(kv); i += 2 {
		f[fmt.Sprint(kv[i])] = kv[i+1]
	}
	return f
}
