package ctx

import (
	"fmt"
	"net/mail"
	"path/filepath"
	"strings"
	"time"

	"github.com/hashicorp/go-multierror"
	conf "github.com/nixys/nxs-go-conf"

	"backup-master/misc"
	"backup-master/modules/backend/scheduler"
	"backup-master/modules/backup"
	"backup-master/modules/backup/dump"
	"backup-master/modules/backup/inventory"
	"backup-master/modules/endpoint"
)

type confOpts struct {
	ServerName  string      `conf:"server_name" conf_extraopts:"required"`
	TargetPath  string      `conf:"target_path" conf_extraopts:"required"`
	HistoryDB   string      `conf:"history_db"`
	LockFile    string      `conf:"lock_file" conf_extraopts:"default=/tmp/backup-master.lock"`
	Mail        mailConf    `conf:"mail"`
	Servers     []cfgServer `conf:"servers"`
	IncludeCfgs []string    `conf:"include_servers_configs"`

	LogFile  string `conf:"logfile" conf_extraopts:"default=stdout"`
	LogLevel string `conf:"loglevel" conf_extraopts:"default=info"`
	PidFile  string `conf:"pidfile"`
	ConfPath string
}

type mailConf struct {
	Enabled      bool     `conf:"enabled" conf_extraopts:"default=false"`
	SmtpServer   string   `conf:"smtp_server"`
	SmtpPort     int      `conf:"smtp_port" conf_extraopts:"default=465"`
	SmtpUser     string   `conf:"smtp_user"`
	SmtpPassword string   `conf:"smtp_password"`
	SmtpTimeout  string   `conf:"smtp_timeout" conf_extraopts:"default=10s"`
	Recipients   []string `conf:"recipients"`
	MessageLevel string   `conf:"message_level" conf_extraopts:"default=error"`
}

type cfgServer struct {
	Name           string        `conf:"name" conf_extraopts:"required"`
	Protocol       string        `conf:"protocol" conf_extraopts:"required"`
	Host           string        `conf:"host" conf_extraopts:"required"`
	Port           int           `conf:"port" conf_extraopts:"default=0"`
	Username       string        `conf:"username"`
	Password       string        `conf:"password"`
	KeyFile        string        `conf:"key_file"`
	KnownHosts     string        `conf:"known_hosts"`
	ExplicitTLS    bool          `conf:"explicit_tls" conf_extraopts:"default=false"`
	ConnectTimeout int           `conf:"connect_timeout" conf_extraopts:"default=30"`
	WebRoot        string        `conf:"web_root"`
	Backup         cfgBackup     `conf:"backup"`
	Schedule       cfgSchedule   `conf:"schedule"`
	Databases      []cfgDatabase `conf:"databases"`
}

type cfgBackup struct {
	Mode          string `conf:"mode" conf_extraopts:"default=full"`
	Filter        string `conf:"filter" conf_extraopts:"default=*.*"`
	CreateArchive bool   `conf:"create_archive" conf_extraopts:"default=true"`
	GzipDumps     bool   `conf:"gzip_dumps" conf_extraopts:"default=false"`
	VerifyConnect bool   `conf:"verify_connect" conf_extraopts:"default=false"`
}

type cfgSchedule struct {
	Enabled   bool   `conf:"enabled" conf_extraopts:"default=false"`
	Frequency string `conf:"frequency" conf_extraopts:"default=daily"`
	Time      string `conf:"time" conf_extraopts:"default=02:00"`
	Weekday   string `conf:"weekday" conf_extraopts:"default=sunday"`
}

type cfgDatabase struct {
	Kind      string   `conf:"kind" conf_extraopts:"required"`
	Host      string   `conf:"host" conf_extraopts:"default=localhost"`
	Port      int      `conf:"port" conf_extraopts:"default=0"`
	Username  string   `conf:"username"`
	Password  string   `conf:"password"`
	Name      string   `conf:"name" conf_extraopts:"required"`
	ExtraKeys []string `conf:"extra_keys"`
}

func confRead(confPath string) (confOpts, error) {

	var c confOpts

	p, err := misc.PathNormalize(confPath)
	if err != nil {
		return c, err
	}

	err = conf.Load(&c, conf.Settings{
		ConfPath:    p,
		ConfType:    conf.ConfigTypeYAML,
		UnknownDeny: true,
	})
	if err != nil {
		return c, err
	}

	c.ConfPath = p

	if len(c.IncludeCfgs) > 0 {
		if err = c.extraCfgsRead(); err != nil {
			return c, fmt.Errorf("configuration cannot be read: %w", err)
		}
	}

	if err = c.validate(); err != nil {
		return c, fmt.Errorf("the configuration is incorrect: %w", err)
	}

	return c, nil
}

// extraCfgsRead loads server definitions from included files. Relative
// patterns are resolved against the main config directory.
func (c *confOpts) extraCfgsRead() error {

	for _, pattern := range c.IncludeCfgs {

		if !filepath.IsAbs(pattern) {
			pattern = filepath.Join(filepath.Dir(c.ConfPath), pattern)
		}

		files, err := filepath.Glob(pattern)
		if err != nil {
			return err
		}

		for _, fp := range files {
			var s cfgServer

			err = conf.Load(&s, conf.Settings{
				ConfPath:    fp,
				ConfType:    conf.ConfigTypeYAML,
				UnknownDeny: true,
			})
			if err != nil {
				return fmt.Errorf("%s: %w", fp, err)
			}

			c.Servers = append(c.Servers, s)
		}
	}

	return nil
}

// validate checks if provided configuration valid
func (c *confOpts) validate() error {

	var errs *multierror.Error

	if c.Mail.Enabled {
		if len(c.Mail.Recipients) == 0 {
			errs = multierror.Append(errs, fmt.Errorf("mail is enabled but no recipients set"))
		}
		for _, m := range c.Mail.Recipients {
			if _, err := mail.ParseAddress(m); err != nil {
				errs = multierror.Append(errs, fmt.Errorf("failed to parse email \"%s\": %w", m, err))
			}
		}
		if _, err := time.ParseDuration(c.Mail.SmtpTimeout); err != nil {
			errs = multierror.Append(errs, fmt.Errorf("invalid smtp_timeout: %w", err))
		}
		if _, ok := messageLevels[strings.ToLower(c.Mail.MessageLevel)]; !ok {
			errs = multierror.Append(errs, fmt.Errorf("unknown mail message level `%s`, available levels: 'info', 'warning', 'error'", c.Mail.MessageLevel))
		}
	}

	if len(c.Servers) == 0 {
		errs = multierror.Append(errs, fmt.Errorf("no servers configured"))
	}

	names := map[string]bool{}
	for _, s := range c.Servers {
		if names[s.Name] {
			errs = multierror.Append(errs, fmt.Errorf("server `%s`: duplicate name", s.Name))
		}
		names[s.Name] = true

		if s.Name == "all" {
			errs = multierror.Append(errs, fmt.Errorf("server name `all` is reserved"))
		}

		if err := s.validate(); err != nil {
			errs = multierror.Append(errs, err)
		}
	}

	return errs.ErrorOrNil()
}

func (s cfgServer) validate() error {

	var errs *multierror.Error

	wrap := func(format string, a ...interface{}) {
		errs = multierror.Append(errs, fmt.Errorf("server `%s`: "+format, append([]interface{}{s.Name}, a...)...))
	}

	if s.Protocol != endpoint.ProtocolFTP && s.Protocol != endpoint.ProtocolSFTP {
		wrap("unknown protocol `%s`, available: %s, %s", s.Protocol, endpoint.ProtocolFTP, endpoint.ProtocolSFTP)
	}
	if s.Port < 0 || s.Port > 65535 {
		wrap("invalid port %d", s.Port)
	}
	if s.ConnectTimeout <= 0 {
		wrap("connect_timeout must be positive")
	}
	if s.Protocol == endpoint.ProtocolFTP && s.KeyFile != "" {
		wrap("key_file is supported by sftp only")
	}

	mode, err := backup.ParseMode(s.Backup.Mode)
	if err != nil {
		wrap("%s", err)
	}
	if err := inventory.ValidatePattern(s.Backup.Filter); err != nil {
		wrap("%s", err)
	}
	if err == nil && mode == backup.DatabaseOnly && len(s.Databases) == 0 {
		wrap("mode `%s` requires databases", mode)
	}

	if s.Schedule.Enabled {
		if _, err := s.scheduleSettings().Spec(); err != nil {
			wrap("schedule: %s", err)
		}
	}

	for _, d := range s.Databases {
		switch dump.Kind(d.Kind) {
		case dump.KindMySQL, dump.KindPostgreSQL:
		default:
			wrap("database `%s`: unknown kind `%s`, available: %s, %s", d.Name, d.Kind, dump.KindMySQL, dump.KindPostgreSQL)
		}
	}

	return errs.ErrorOrNil()
}

func (s cfgServer) scheduleSettings() scheduler.Schedule {
	return scheduler.Schedule{
		Frequency: s.Schedule.Frequency,
		Time:      s.Schedule.Time,
		Weekday:   s.Schedule.Weekday,
	}
}
