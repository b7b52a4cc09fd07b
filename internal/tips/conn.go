package tips

import (
	"context"
	"net"
	"net/url"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// Conn is the subset of *pgx.Conn the store uses. Every store operation
// owns exactly one Conn and closes it before returning.
type Conn interface {
	Begin(ctx context.Context) (pgx.Tx, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Ping(ctx context.Context) error
	Close(ctx context.Context) error
}

// Connector opens a fresh connection for one store operation.
type Connector interface {
	Connect(ctx context.Context, cfg DBConfig) (Conn, error)
}

// ConnectorFunc adapts a function to the Connector interface.
type ConnectorFunc func(ctx context.Context, cfg DBConfig) (Conn, error)

func (f ConnectorFunc) Connect(ctx context.Context, cfg DBConfig) (Conn, error) {
	return f(ctx, cfg)
}

// DBConfig holds the connection parameters set through Store.Configure.
type DBConfig struct {
	Server   string
	Port     string
	Database string
	Username string
	Password string

	SSLMode        string
	ConnectTimeout time.Duration
}

// ConnectionString renders the config as a postgres URL. Credentials are
// escaped by net/url so passwords may contain any character.
func (c DBConfig) ConnectionString() string {
	host := c.Server
	if c.Port != "" {
		host = net.JoinHostPort(c.Server, c.Port)
	}

	u := url.URL{
		Scheme: "postgres",
		User:   url.UserPassword(c.Username, c.Password),
		Host:   host,
		Path:   "/" + c.Database,
	}

	q := url.Values{}
	if c.SSLMode != "" {
		q.Set("sslmode", c.SSLMode)
	}
	if c.ConnectTimeout > 0 {
		secs := int(c.ConnectTimeout.Round(time.Second) / time.Second)
		q.Set("connect_timeout", strconv.Itoa(max(secs, 1)))
	}
	u.RawQuery = q.Encode()

	return u.String()
}

// PgxConnector dials postgres with pgx, one connection per call.
type PgxConnector struct{}

func (PgxConnector) Connect(ctx context.Context, cfg DBConfig) (Conn, error) {
	conn, err := pgx.Connect(ctx, cfg.ConnectionString())
	if err != nil {
		return nil, err
	}
	return conn, nil
}
