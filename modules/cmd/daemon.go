package cmd

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	appctx "github.com/nixys/nxs-go-appctx/v2"

	"backup-master/ctx"
	"backup-master/modules/backend/scheduler"
	"backup-master/modules/backup"
)

const stopTimeout = 10 * time.Minute

// Daemon runs scheduled backups until termination signal.
// Running backups are cancelled on shutdown.
func Daemon(appCtx *appctx.AppContext) error {

	cc := appCtx.CustomCtx().(*ctx.Ctx)

	unlock, err := processLock(cc.LockFile)
	if err != nil {
		return err
	}
	defer unlock()

	hs, err := openHistory(cc)
	if err != nil {
		return err
	}
	if hs != nil {
		defer hs.Close()
	}

	sch := scheduler.New(appCtx.Log(), time.Local)
	o := newOrchestrator(appCtx, cc, hs)

	tasks := scheduledTasks(o, cc.Servers)
	for _, s := range cc.Servers {
		task, ok := tasks[s.Name]
		if !ok {
			continue
		}
		if err = sch.Add(s.Name, *s.Schedule, task); err != nil {
			return err
		}
	}

	if len(sch.Servers()) == 0 {
		return fmt.Errorf("no servers with enabled schedule")
	}

	c, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	sch.Start()
	for _, name := range sch.Servers() {
		if next, ok := sch.Next(name); ok {
			appCtx.Log().WithField("server", name).Infof("Next backup at %s", next.Format(time.RFC1123))
		}
	}
	appCtx.Log().Info("Scheduler started.")

	<-c.Done()
	appCtx.Log().Info("Stopping scheduler.")

	sc, cancel := context.WithTimeout(context.Background(), stopTimeout)
	defer cancel()
	if err = sch.Stop(sc); err != nil {
		appCtx.Log().Warnf("Scheduler stop: %s", err)
	}

	if o.Running() {
		o.Cancel()
		out := o.Wait()
		appCtx.Log().WithField("server", out.Server).Info(out.Report)
	}

	appCtx.Log().Info("Finished.")
	return nil
}

// scheduledTasks binds servers with enabled schedule to the single orchestrator.
// A trigger firing while any backup runs is rejected with backup.ErrAlreadyRunning.
func scheduledTasks(o *backup.Orchestrator, servers []ctx.Server) map[string]scheduler.Task {

	tasks := make(map[string]scheduler.Task)

	for _, s := range servers {
		if s.Schedule == nil {
			continue
		}
		s := s
		tasks[s.Name] = func() error {
			_, err := o.RunNow(s.Descriptor, s.Backup)
			return err
		}
	}

	return tasks
}
