package dump

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/sirupsen/logrus"

	"backup-master/misc"
	"backup-master/modules/backend/exec_cmd"
	"backup-master/modules/backend/mysql_connect"
	"backup-master/modules/backend/psql_connect"
	"backup-master/modules/backup/faults"
)

type Kind string

const (
	KindMySQL      Kind = "mysql"
	KindPostgreSQL Kind = "postgresql"

	DefaultProbeTimeout = 10 * time.Second
)

// Target is a database to dump
type Target struct {
	Kind      Kind
	Host      string
	Port      int
	User      string
	Password  string
	Name      string
	ExtraKeys []string
}

func (t Target) String() string {
	return fmt.Sprintf("%s/%s", t.Kind, t.Name)
}

// Tool returns name of the dump utility for the engine
func Tool(k Kind) string {
	switch k {
	case KindMySQL:
		return "mysqldump"
	case KindPostgreSQL:
		return "pg_dump"
	}
	return ""
}

// engineName is used as dump file name prefix
func engineName(k Kind) string {
	if k == KindPostgreSQL {
		return "pgsql"
	}
	return string(k)
}

type Dumper struct {
	Log logrus.FieldLogger
	// Gzip compresses dumps on the fly
	Gzip bool
	// VerifyConnect pings the database before running the dump tool
	VerifyConnect bool
	ProbeTimeout  time.Duration
	Now           func() time.Time
}

func (d *Dumper) log() logrus.FieldLogger {
	if d.Log == nil {
		l := logrus.New()
		l.SetOutput(io.Discard)
		return l
	}
	return d.Log
}

func (d *Dumper) now() time.Time {
	if d.Now == nil {
		return time.Now()
	}
	return d.Now()
}

// Dump writes dump of the target under root and returns the file path
func (d *Dumper) Dump(t Target, root string) (string, error) {

	tool := Tool(t.Kind)
	if tool == "" {
		return "", &faults.DumpError{Database: t.String(), Err: fmt.Errorf("unsupported database kind `%s`", t.Kind)}
	}

	// check if dump tool available
	if _, err := exec_cmd.Lookup(tool); err != nil {
		return "", &faults.ToolingMissingError{Tool: tool, Err: err}
	}

	if d.VerifyConnect {
		if err := d.Probe(t); err != nil {
			return "", &faults.DumpError{Database: t.String(), Err: fmt.Errorf("database unreachable: %w", err)}
		}
	}

	dst, err := d.dumpPath(t, root)
	if err != nil {
		return "", &faults.DumpError{Database: t.String(), Err: err}
	}

	d.log().Infof("Starting a `%s` dump", t)

	w, err := misc.GetFileWriter(dst, d.Gzip)
	if err != nil {
		return "", &faults.DumpError{Database: t.String(), Err: fmt.Errorf("unable to create dump file: %w", err)}
	}

	var res exec_cmd.Result
	switch t.Kind {
	case KindMySQL:
		res, err = dumpMySQL(w, t)
	case KindPostgreSQL:
		res, err = dumpPSQL(w, t)
	}

	if cErr := w.Close(); cErr != nil && err == nil {
		err = cErr
	}
	if err != nil {
		_ = os.Remove(dst)
		return "", &faults.DumpError{Database: t.String(), Stderr: res.Stderr, Err: err}
	}
	if res.Stderr != "" {
		d.log().Warnf("Dump of `%s` reported: %s", t, res.Stderr)
	}

	d.log().Infof("Dump of `%s` created: %s", t, dst)

	return dst, nil
}

// Probe resolves dump tool and checks that database accepts connections
func (d *Dumper) Probe(t Target) error {

	timeout := d.ProbeTimeout
	if timeout <= 0 {
		timeout = DefaultProbeTimeout
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	switch t.Kind {
	case KindMySQL:
		db, err := mysql_connect.GetConnect(ctx, mysqlParams(t, timeout))
		if err != nil {
			return err
		}
		return db.Close()
	case KindPostgreSQL:
		db, err := psql_connect.GetConnect(ctx, psqlParams(t))
		if err != nil {
			return err
		}
		return db.Close()
	}

	return fmt.Errorf("unsupported database kind `%s`", t.Kind)
}

// dumpPath returns `<root>/<engine>_backup_<stamp>.sql`, adding a counter on name clash
func (d *Dumper) dumpPath(t Target, root string) (string, error) {

	base := fmt.Sprintf("%s_backup_%s", engineName(t.Kind), misc.GetDateTimeNow(d.now))
	ext := ".sql"
	if d.Gzip {
		ext += ".gz"
	}

	for i := 1; i < 1000; i++ {
		name := base
		if i > 1 {
			name += "_" + strconv.Itoa(i)
		}
		p := filepath.Join(root, name+ext)
		if _, err := os.Stat(p); os.IsNotExist(err) {
			return p, nil
		}
	}

	return "", fmt.Errorf("unable to find free dump file name for `%s`", base)
}

func mysqlParams(t Target, timeout time.Duration) mysql_connect.Params {
	return mysql_connect.Params{
		Host:     t.Host,
		Port:     t.Port,
		User:     t.User,
		Passwd:   t.Password,
		Database: t.Name,
		Timeout:  timeout,
	}
}

func psqlParams(t Target) psql_connect.Params {
	return psql_connect.Params{
		Host:     t.Host,
		Port:     t.Port,
		User:     t.User,
		Passwd:   t.Password,
		Database: t.Name,
	}
}

func dumpMySQL(w io.Writer, t Target) (exec_cmd.Result, error) {

	authFile, err := mysql_connect.CreateCnfFile(mysqlParams(t, 0), "mysqldump", "")
	if err != nil {
		return exec_cmd.Result{}, err
	}
	defer os.Remove(authFile)

	var args []string
	// define command args with auth options
	args = append(args, "--defaults-extra-file="+authFile)
	// add extra dump cmd options
	if len(t.ExtraKeys) > 0 {
		args = append(args, t.ExtraKeys...)
	}
	// add db name
	args = append(args, t.Name)

	return exec_cmd.ExecTo(w, nil, "mysqldump", args...)
}

func dumpPSQL(w io.Writer, t Target) (exec_cmd.Result, error) {

	p := psqlParams(t)
	port := p.Port
	if port == 0 {
		port = psql_connect.DefaultPort
	}

	args := []string{
		"--host=" + p.Host,
		"--port=" + strconv.Itoa(port),
		"--username=" + p.User,
		"--no-password",
	}
	if len(t.ExtraKeys) > 0 {
		args = append(args, t.ExtraKeys...)
	}
	args = append(args, "--dbname="+p.Database)

	return exec_cmd.ExecTo(w, []string{"PGPASSWORD=" + p.Passwd}, "pg_dump", args...)
}
