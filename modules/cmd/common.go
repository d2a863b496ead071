package cmd

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/nightlyone/lockfile"
	appctx "github.com/nixys/nxs-go-appctx/v2"
	"github.com/sirupsen/logrus"

	"backup-master/ctx"
	"backup-master/modules/backend/history"
	"backup-master/modules/backup"
)

// processLock prevents simultaneous runs of backup-master processes
func processLock(path string) (func(), error) {

	p, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}

	lock, err := lockfile.New(p)
	if err != nil {
		return nil, fmt.Errorf("unable to create lock file `%s`: %w", p, err)
	}
	if err = lock.TryLock(); err != nil {
		return nil, fmt.Errorf("another backup-master process is running (lock `%s`): %w", p, err)
	}

	return func() { _ = lock.Unlock() }, nil
}

// openHistory opens history store if it is configured
func openHistory(cc *ctx.Ctx) (*history.Store, error) {
	if cc.HistoryDB == "" {
		return nil, nil
	}
	return history.Open(context.Background(), cc.HistoryDB)
}

// newOrchestrator creates orchestrator with all configured observers
func newOrchestrator(appCtx *appctx.AppContext, cc *ctx.Ctx, hs *history.Store, extra ...backup.Handlers) *backup.Orchestrator {

	handlers := append([]backup.Handlers{}, extra...)
	if hs != nil {
		handlers = append(handlers, hs.Handlers(appCtx.Log()))
	}
	if cc.Mailer != nil {
		handlers = append(handlers, cc.Mailer.Handlers())
	}

	return backup.New(backup.Options{
		Log:      appCtx.Log(),
		Handlers: backup.Multi(handlers...),
	})
}

// consoleProgress reports progress of a foreground run every 10 percent
func consoleProgress(log logrus.FieldLogger, server string) backup.Handlers {

	last := -10
	l := log.WithField("server", server)

	return backup.Handlers{
		OnProgress: func(p int) {
			if p/10 == last/10 {
				return
			}
			last = p
			l.Infof("Progress: %d%%", p)
		},
		OnFileProgress: func(done, total int) {
			l.Debugf("Files transferred: %d of %d", done, total)
		},
		OnThroughput: func(bps float64) {
			l.Debugf("Transfer speed: %.1f KiB/s", bps/1024)
		},
	}
}
