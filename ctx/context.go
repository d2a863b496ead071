package ctx

import (
	"fmt"

	appctx "github.com/nixys/nxs-go-appctx/v2"

	"backup-master/modules/backend/mailer"
)

// Ctx defines application custom context
type Ctx struct {
	CmdParams  interface{}
	ServerName string
	Servers    []Server
	Mailer     *mailer.Mailer
	HistoryDB  string
	LockFile   string
}

// Init initiates application custom context
func (c *Ctx) Init(opts appctx.CustomContextFuncOpts) (appctx.CfgData, error) {

	// Read config file
	conf, err := confRead(opts.Config)
	if err != nil {
		return appctx.CfgData{}, err
	}

	// Set application context
	a := opts.Args.(*ArgsParams)
	c.CmdParams = a.CmdParams

	c.ServerName = conf.ServerName
	c.HistoryDB = conf.HistoryDB
	c.LockFile = conf.LockFile
	c.Servers = serversInit(conf)

	c.Mailer, err = mailerInit(conf, opts.Log)
	if err != nil {
		return appctx.CfgData{}, fmt.Errorf("failed to init mailer: %w", err)
	}

	return appctx.CfgData{
		LogFile:  conf.LogFile,
		LogLevel: conf.LogLevel,
		PidFile:  conf.PidFile,
	}, nil
}

// Reload reloads application custom context
func (c *Ctx) Reload(opts appctx.CustomContextFuncOpts) (appctx.CfgData, error) {

	opts.Log.Debug("reloading context")

	return c.Init(opts)
}

// Free frees application custom context
func (c *Ctx) Free(opts appctx.CustomContextFuncOpts) int {

	opts.Log.Debug("freeing context")

	return 0
}

// SelectServers returns all servers for "all" or the named one
func (c *Ctx) SelectServers(name string) ([]Server, error) {

	if name == "" || name == "all" {
		return c.Servers, nil
	}

	for _, s := range c.Servers {
		if s.Name == name {
			return []Server{s}, nil
		}
	}

	return nil, fmt.Errorf("unknown server `%s`", name)
}
