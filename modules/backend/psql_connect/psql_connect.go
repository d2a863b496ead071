package psql_connect

import (
	"context"
	"net"
	"net/url"
	"strconv"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
)

const DefaultPort = 5432

type Params struct {
	Host     string
	Port     int
	User     string
	Passwd   string
	Database string
	SSLMode  string
}

// URL returns connection url, password is included only when withPassword is set
func (p Params) URL(withPassword bool) *url.URL {
	port := p.Port
	if port == 0 {
		port = DefaultPort
	}

	u := &url.URL{
		Scheme: "postgres",
		Host:   net.JoinHostPort(p.Host, strconv.Itoa(port)),
		Path:   p.Database,
	}
	if withPassword && p.Passwd != "" {
		u.User = url.UserPassword(p.User, p.Passwd)
	} else if p.User != "" {
		u.User = url.User(p.User)
	}

	q := url.Values{}
	sslMode := p.SSLMode
	if sslMode == "" {
		sslMode = "disable"
	}
	q.Set("sslmode", sslMode)
	u.RawQuery = q.Encode()

	return u
}

// GetConnect opens connection and checks that server responds
func GetConnect(ctx context.Context, p Params) (*sqlx.DB, error) {
	db, err := sqlx.Open("postgres", p.URL(true).String())
	if err != nil {
		return nil, err
	}
	if err = db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}
