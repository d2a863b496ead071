package scheduler

import (
	"context"
	"errors"
	"sort"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"backup-master/modules/backup"
)

func TestSchedule_Spec(t *testing.T) {
	tests := []struct {
		sch  Schedule
		want string
	}{
		{Schedule{Frequency: "daily", Time: "02:00"}, "0 2 * * *"},
		{Schedule{Frequency: "Daily", Time: "23:59"}, "59 23 * * *"},
		{Schedule{Frequency: "weekly", Time: "04:30", Weekday: "Sunday"}, "30 4 * * 0"},
		{Schedule{Frequency: "weekly", Time: "4:05", Weekday: "friday"}, "5 4 * * 5"},
	}
	for _, tt := range tests {
		got, err := tt.sch.Spec()
		require.NoError(t, err)
		assert.Equal(t, tt.want, got)
	}
}

func TestSchedule_SpecInvalid(t *testing.T) {
	for _, sch := range []Schedule{
		{Frequency: "daily", Time: "2am"},
		{Frequency: "daily", Time: "24:00"},
		{Frequency: "daily", Time: "12:60"},
		{Frequency: "weekly", Time: "12:00", Weekday: "someday"},
		{Frequency: "monthly", Time: "12:00"},
	} {
		_, err := sch.Spec()
		assert.Error(t, err, "%+v", sch)
	}
}

func TestScheduler_Registry(t *testing.T) {
	log, _ := test.NewNullLogger()
	s := New(log, time.UTC)

	noop := func() error { return nil }
	require.NoError(t, s.Add("web-1", Schedule{Frequency: "daily", Time: "02:00"}, noop))
	require.NoError(t, s.Add("web-2", Schedule{Frequency: "weekly", Time: "03:00", Weekday: "monday"}, noop))
	// re-adding replaces the entry
	require.NoError(t, s.Add("web-1", Schedule{Frequency: "daily", Time: "05:00"}, noop))
	assert.Error(t, s.Add("web-3", Schedule{Frequency: "hourly", Time: "05:00"}, noop))

	servers := s.Servers()
	sort.Strings(servers)
	assert.Equal(t, []string{"web-1", "web-2"}, servers)
	assert.Len(t, s.cron.Entries(), 2)

	s.Start()
	next, ok := s.Next("web-1")
	require.True(t, ok)
	assert.Equal(t, 5, next.Hour())
	assert.Equal(t, 0, next.Minute())

	assert.True(t, s.Remove("web-2"))
	assert.False(t, s.Remove("web-2"))
	assert.Len(t, s.cron.Entries(), 1)

	require.NoError(t, s.Stop(context.Background()))
}

func TestScheduler_TriggerOutcomes(t *testing.T) {
	log, hook := test.NewNullLogger()
	s := New(log, time.UTC)

	s.trigger("web-1", func() error { return nil })
	s.trigger("web-1", func() error { return backup.ErrAlreadyRunning })
	s.trigger("web-1", func() error { return errors.New("boom") })

	entries := hook.AllEntries()
	require.Len(t, entries, 3)
	assert.Equal(t, logrus.InfoLevel, entries[0].Level)
	assert.Equal(t, logrus.WarnLevel, entries[1].Level)
	assert.Contains(t, entries[1].Message, "skipped")
	assert.Equal(t, logrus.ErrorLevel, entries[2].Level)
	assert.Equal(t, "web-1", entries[2].Data["server"])
}

func TestScheduler_RunsRegisteredTask(t *testing.T) {
	log, _ := test.NewNullLogger()
	s := New(log, time.UTC)

	called := make(chan struct{}, 1)
	require.NoError(t, s.Add("web-1", Schedule{Frequency: "daily", Time: "02:00"}, func() error {
		called <- struct{}{}
		return nil
	}))

	id, _ := s.entries.Load("web-1")
	s.cron.Entry(id).WrappedJob.Run()

	select {
	case <-called:
	case <-time.After(time.Second):
		t.Fatal("task was not called")
	}
}
