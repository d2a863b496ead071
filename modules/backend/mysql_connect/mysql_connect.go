package mysql_connect

import (
	"context"
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/jmoiron/sqlx"
	"gopkg.in/ini.v1"
)

const DefaultPort = 3306

type Params struct {
	Host     string
	Port     int
	Socket   string
	User     string
	Passwd   string
	Database string
	Timeout  time.Duration
}

func (p Params) dsn() string {
	cfg := mysql.NewConfig()
	cfg.User = p.User
	cfg.Passwd = p.Passwd
	cfg.DBName = p.Database
	cfg.Timeout = p.Timeout

	if p.Socket != "" {
		cfg.Net = "unix"
		cfg.Addr = p.Socket
	} else {
		port := p.Port
		if port == 0 {
			port = DefaultPort
		}
		cfg.Net = "tcp"
		cfg.Addr = net.JoinHostPort(p.Host, strconv.Itoa(port))
	}

	return cfg.FormatDSN()
}

// GetConnect opens connection and checks that server responds
func GetConnect(ctx context.Context, p Params) (*sqlx.DB, error) {
	db, err := sqlx.Open("mysql", p.dsn())
	if err != nil {
		return nil, err
	}
	if err = db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}

// CreateCnfFile writes credentials into temporary option file suitable for
// `--defaults-extra-file`. Caller must remove the file.
func CreateCnfFile(p Params, section, dir string) (string, error) {

	cfg := ini.Empty(ini.LoadOptions{IgnoreInlineComment: true})
	sec, err := cfg.NewSection(section)
	if err != nil {
		return "", err
	}

	keys := [][2]string{{"user", p.User}, {"password", quote(p.Passwd)}}
	if p.Socket != "" {
		keys = append(keys, [2]string{"socket", p.Socket})
	} else {
		port := p.Port
		if port == 0 {
			port = DefaultPort
		}
		keys = append(keys, [2]string{"host", p.Host}, [2]string{"port", strconv.Itoa(port)})
	}
	for _, kv := range keys {
		if kv[1] == "" {
			continue
		}
		if _, err = sec.NewKey(kv[0], kv[1]); err != nil {
			return "", err
		}
	}

	f, err := os.CreateTemp(dir, "mysql_auth_*.cnf")
	if err != nil {
		return "", fmt.Errorf("unable to create auth file: %w", err)
	}
	if _, err = cfg.WriteTo(f); err != nil {
		_ = f.Close()
		_ = os.Remove(f.Name())
		return "", fmt.Errorf("unable to write auth file: %w", err)
	}
	if err = f.Close(); err != nil {
		_ = os.Remove(f.Name())
		return "", err
	}

	return f.Name(), nil
}

// quote wraps value into double quotes understood by MySQL option files
func quote(v string) string {
	if v == "" {
		return ""
	}
	r := strings.NewReplacer(`\`, `\\`, `"`, `\"`)
	return `"` + r.Replace(v) + `"`
}
