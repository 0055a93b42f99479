package preflight

import (
	"context"
	"database/sql"
	"fmt"
	"net"
	"net/url"
	"strconv"
	"time"

	"github.com/go-sql-driver/mysql"
	_ "github.com/jackc/pgx/v5/stdlib"
	_ "modernc.org/sqlite"

	"github.com/3cpo-dev/iptvrun/internal/core"
)

const pingTimeout = 10 * time.Second

// DatabaseError reports that the configured database could not be reached.
type DatabaseError struct {
	Driver string
	Target string
	Cause  error
}

func (e *DatabaseError) Error() string {
	return fmt.Sprintf("database %s (%s) unreachable: %v", e.Target, e.Driver, e.Cause)
}

func (e *DatabaseError) Unwrap() error { return e.Cause }

// DataSource maps a DatabaseConfig to a database/sql driver name and DSN.
func DataSource(cfg core.DatabaseConfig) (driver, dsn string, err error) {
	switch cfg.Driver {
	case "", "mysql":
		mc := mysql.NewConfig()
		mc.User = cfg.User
		mc.Passwd = cfg.Password
		mc.Net = "tcp"
		mc.Addr = net.JoinHostPort(cfg.Host, strconv.Itoa(portOr(cfg.Port, 3306)))
		mc.DBName = cfg.Database
		mc.Timeout = pingTimeout
		return "mysql", mc.FormatDSN(), nil
	case "postgres", "pgx":
		u := url.URL{
			Scheme: "postgres",
			User:   url.UserPassword(cfg.User, cfg.Password),
			Host:   net.JoinHostPort(cfg.Host, strconv.Itoa(portOr(cfg.Port, 5432))),
			Path:   "/" + cfg.Database,
		}
		q := url.Values{}
		q.Set("connect_timeout", strconv.Itoa(int(pingTimeout.Seconds())))
		u.RawQuery = q.Encode()
		return "pgx", u.String(), nil
	case "sqlite":
		// mode=rw refuses to create the file, so a missing database is an error.
		return "sqlite", "file:" + cfg.Database + "?mode=rw", nil
	default:
		return "", "", fmt.Errorf("unsupported database driver %q", cfg.Driver)
	}
}

// CheckDatabase opens a connection with the configured credentials and closes it again.
func CheckDatabase(ctx context.Context, cfg core.DatabaseConfig) error {
	target := cfg.Database
	if cfg.Driver != "sqlite" {
		target = cfg.User + "@" + cfg.Host + "/" + cfg.Database
	}
	driver, dsn, err := DataSource(cfg)
	if err != nil {
		return &DatabaseError{Driver: cfg.Driver, Target: target, Cause: err}
	}
	db, err := sql.Open(driver, dsn)
	if err != nil {
		return &DatabaseError{Driver: driver, Target: target, Cause: err}
	}
	defer db.Close()
	db.SetMaxOpenConns(1)

	pingCtx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		return &DatabaseError{Driver: driver, Target: target, Cause: err}
	}
	return nil
}

func portOr(port, def int) int {
	if port > 0 {
		return port
	}
	return def
}
