package db

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/man137/Ryda/internal/config"
	"github.com/man137/Ryda/internal/mylogger"
)

const maxConnectRetries = 5

type DataBase struct {
	cfg   config.DBconfig
	mylog mylogger.Logger
	pool  *pgxpool.Pool
}

// ConnectDB initializes a connection pool with retry logic.
func ConnectDB(ctx context.Context, dbCfg config.DBconfig, mylog mylogger.Logger) (*DataBase, error) {
	d := &DataBase{
		cfg:   dbCfg,
		mylog: mylog,
	}

	connStr := fmt.Sprintf(
		"postgres://%v:%v@%v:%v/%v?sslmode=disable",
		dbCfg.User,
		dbCfg.Password,
		dbCfg.Host,
		dbCfg.Port,
		dbCfg.Database,
	)

	var lastErr error
	for i := 0; i < maxConnectRetries; i++ {
		pool, err := pgxpool.New(ctx, connStr)
		if err == nil {
			err = pool.Ping(ctx)
		}
		if err != nil {
			lastErr = fmt.Errorf("failed to connect to database: %w", err)
			mylog.Error(fmt.Sprintf("DB connection attempt %d failed", i+1), err)
			time.Sleep(time.Second * time.Duration(i+1))
			continue
		}

		d.pool = pool
		mylog.Info("Successfully connected to the database")
		return d, nil
	}

	return nil, fmt.Errorf("failed to connect to the database after %d attempts: %w", maxConnectRetries, lastErr)
}

func (d *DataBase) GetPool() *pgxpool.Pool {
	return d.pool
}

// IsAlive pings the DB to verify it's responsive
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
