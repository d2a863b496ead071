package main

import (
	"fmt"
	"os"
	"syscall"

	appctx "github.com/nixys/nxs-go-appctx/v2"

	"backup-master/ctx"
	"backup-master/modules/backend/logformatter"
	"backup-master/modules/cmd"
)

func main() {

	subCmds := ctx.SubCmds{
		"start":   cmd.Start,
		"daemon":  cmd.Daemon,
		"check":   cmd.Check,
		"history": cmd.History,
		"testCfg": cmd.TestConfig,
	}

	// Read command line arguments
	a := ctx.ReadArgs(subCmds)

	// Init appctx
	appCtx, err := appctx.ContextInit(appctx.Settings{
		CustomContext:    &ctx.Ctx{},
		Args:             &a,
		CfgPath:          a.ConfigPath,
		TermSignals:      []os.Signal{syscall.SIGTERM, syscall.SIGINT},
		ReloadSignals:    []os.Signal{syscall.SIGHUP},
		LogrotateSignals: []os.Signal{syscall.SIGUSR1},
		LogFormatter:     &logformatter.BackupLogFormatter{},
	})
	if err != nil {
		fmt.Println(err)
		os.Exit(1)
	}

	// exec found command
	if err = a.CmdHandler(appCtx); err != nil {
		fmt.Println("exec error: ", err)
		os.Exit(1)
	}

	os.Exit(0)
}
