package db

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"time"

	"driver-agent/internal/config"
	"driver-agent/internal/mylogger"

	"github.com/jackc/pgx/v5/pgxpool"
)

// DataBase owns the pgx pool used by the pending-update repository.
type DataBase struct {
	cfg   *config.DBconfig
	mylog mylogger.Logger
	pool  *pgxpool.Pool
}

// ConnectDB opens the pool, retrying with a linear backoff up to cfg.MaxRetries times.
func ConnectDB(ctx context.Context, cfg *config.DBconfig, mylog mylogger.Logger) (*DataBase, error) {
	d := &DataBase{cfg: cfg, mylog: mylog.Action("db_connect")}
	if err := d.connect(ctx); err != nil {
		return nil, err
	}
	return d, nil
}

func DSN(cfg *config.DBconfig) string {
	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(cfg.User, cfg.Password),
		Host:     cfg.Host + ":" + strconv.Itoa(cfg.Port),
		Path:     "/" + cfg.Database,
		RawQuery: "sslmode=disable",
	}
	return u.String()
}

func (d *DataBase) Pool() *pgxpool.Pool {
	return d.pool
}

func (d *DataBase) IsAlive(ctx context.Context) error {
	if d.pool == nil {
		return fmt.Errorf("DB is not initialized")
	}
	if err := d.pool.Ping(ctx); err != nil {
		return fmt.Errorf("ping failed: %w", err)
	}
	return nil
}

func (d *DataBase) Close() {
	if d.pool != nil {
		d.pool.Close()
	}
}

func (d *DataBase) connect(ctx context.Context) error {
	retries := d.cfg.MaxRetries
	if retries < 1 {
		retries = 1
	}

	var lastErr error
	for i := 0; i < retries; i++ {
		pool, err := pgxpool.New(ctx, DSN(d.cfg))
		if err == nil {
			err = pool.Ping(ctx)
			if err != nil {
				pool.Close()
			}
		}
		if err == nil {
			d.pool = pool
			d.mylog.Info("connected to the database", "host", d.cfg.Host, "database", d.cfg.Database)
			return nil
		}

		lastErr = err
		d.mylog.Error(fmt.Sprintf("DB connection attempt %d failed", i+1), err)

		// 1s, 2s, 3s...
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(time.Second * time.Duration(i+1)):
		}
	}
	return fmt.Errorf("failed to connect to the database after %d attempts: %w", retries, lastErr)
}
