package cmd

import (
	"context"
	"fmt"

	"github.com/hashicorp/go-multierror"
	appctx "github.com/nixys/nxs-go-appctx/v2"

	"backup-master/ctx"
	"backup-master/modules/backup/dump"
	"backup-master/modules/backup/probe"
	"backup-master/modules/endpoint"
)

// Check tests connections to servers and their databases
func Check(appCtx *appctx.AppContext) error {
	var errs *multierror.Error

	cc := appCtx.CustomCtx().(*ctx.Ctx)

	servers, err := cc.SelectServers(cc.CmdParams.(*ctx.CheckCmd).Server)
	if err != nil {
		return err
	}

	for _, s := range servers {
		l := appCtx.Log().WithField("server", s.Name)

		if s.Backup.Mode.HasFiles() {
			if err = checkEndpoint(s); err != nil {
				l.Error(err)
				errs = multierror.Append(errs, fmt.Errorf("%s: %w", s.Name, err))
			} else {
				l.Infof("Connection to %s via %s is fine", s.Descriptor.Address(), s.Descriptor.Protocol)
			}
		}

		if s.Backup.Mode.HasDatabases() {
			d := &dump.Dumper{Log: l}
			for _, t := range s.Backup.Databases {
				version, err := probe.Database(d, t)
				if err != nil {
					l.Error(err)
					errs = multierror.Append(errs, fmt.Errorf("%s: %w", s.Name, err))
					continue
				}
				l.Infof("Database `%s` is reachable, dump tool: %s", t, version)
			}
		}
	}

	if errs.ErrorOrNil() != nil {
		return fmt.Errorf("Some of checks failed with next errors:\n%v", errs)
	}

	return nil
}

func checkEndpoint(s ctx.Server) error {

	ep, err := endpoint.New(s.Descriptor)
	if err != nil {
		return err
	}

	timeout := s.Descriptor.ConnectTimeout
	if timeout <= 0 {
		timeout = endpoint.DefaultConnectTimeout
	}
	c, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	_, err = probe.Endpoint(c, ep, s.Descriptor.Address(), s.Descriptor.RootPath)
	return err
}
