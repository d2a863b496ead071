package cmd

import (
	"fmt"

	"github.com/hashicorp/go-multierror"
	appctx "github.com/nixys/nxs-go-appctx/v2"

	"backup-master/ctx"
	"backup-master/modules/backup"
)

// Start runs backups of selected servers one by one in foreground
func Start(appCtx *appctx.AppContext) error {
	var errs *multierror.Error

	cc := appCtx.CustomCtx().(*ctx.Ctx)

	servers, err := cc.SelectServers(cc.CmdParams.(*ctx.StartCmd).Server)
	if err != nil {
		return err
	}

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

	appCtx.Log().Info("Starting backup.")

	for _, s := range servers {
		o := newOrchestrator(appCtx, cc, hs, consoleProgress(appCtx.Log(), s.Name))

		if _, err = o.RunNow(s.Descriptor, s.Backup); err != nil {
			errs = multierror.Append(errs, fmt.Errorf("%s: %w", s.Name, err))
			continue
		}

		out := o.Wait()
		if out.State != backup.Completed {
			errs = multierror.Append(errs, fmt.Errorf("%s: %s", s.Name, out.Report))
		}
	}

	if errs.ErrorOrNil() != nil {
		return fmt.Errorf("Some of backups failed with next errors:\n%v", errs)
	}

	appCtx.Log().Info("Finished.")
	return nil
}
