package ctx

import (
	"github.com/alexflint/go-arg"
	appctx "github.com/nixys/nxs-go-appctx/v2"

	"backup-master/misc"
)

type cmdHandler func(*appctx.AppContext) error

// SubCmds contains Command name and handler
type SubCmds map[string]cmdHandler

// ArgsParams contains parameters read from command line, command parameters and command handler
type ArgsParams struct {
	ConfigPath string
	CmdHandler cmdHandler
	CmdParams  interface{}
}

type StartCmd struct {
	Server string `arg:"positional" placeholder:"SERVER" default:"all" help:"Server name or 'all'"`
}

type DaemonCmd struct{}

type CheckCmd struct {
	Server string `arg:"positional" placeholder:"SERVER" default:"all" help:"Server name or 'all'"`
}

type HistoryCmd struct {
	Server string `arg:"-s,--server" help:"Show records of the server only" placeholder:"NAME"`
	Limit  int    `arg:"-n,--limit" help:"Number of records to show" default:"20"`
	Logs   int64  `arg:"-l,--logs" help:"Show logs of the record with given id" placeholder:"ID"`
}

type args struct {
	Start    *StartCmd   `arg:"subcommand:start" help:"Run backup now"`
	Daemon   *DaemonCmd  `arg:"subcommand:daemon" help:"Run scheduled backups"`
	Check    *CheckCmd   `arg:"subcommand:check" help:"Check connections to servers and databases"`
	History  *HistoryCmd `arg:"subcommand:history" help:"Show backup history"`
	ConfPath string      `arg:"-c,--config" help:"Path to config file" default:"/etc/backup-master/backup-master.conf" placeholder:"PATH"`
	TestConf bool        `arg:"-t,--test-config" help:"Check if configuration syntax correct"`
}

// ReadArgs reads arguments from command line
func ReadArgs(cmds SubCmds) (p ArgsParams) {

	var a args

	curArgs := arg.MustParse(&a)

	p.ConfigPath = a.ConfPath

	if a.TestConf {
		p.CmdHandler = cmds["testCfg"]
		return
	}

	names := curArgs.SubcommandNames()
	if len(names) == 0 {
		curArgs.Fail("command is required")
	}

	p.CmdParams = curArgs.Subcommand()
	p.CmdHandler = cmds[names[0]]

	return p
}

func (args) Version() string {
	return "backup-master " + misc.VERSION
}
