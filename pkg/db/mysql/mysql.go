package mysql

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"AuroraGate/pkg/config"
	"AuroraGate/pkg/monitor"

	"github.com/qustavo/sqlhooks/v2"

	mysqldriver "github.com/go-sql-driver/mysql"
	"github.com/jmoiron/sqlx"
)

var DB *sqlx.DB

type ctxKey struct{}

// metricsHook times every query and feeds the store latency histogram.
type metricsHook struct{}

func (h *metricsHook) Before(ctx context.Context, query string, args ...interface{}) (context.Context, error) {
	return context.WithValue(ctx, ctxKey{}, time.Now()), nil
}

func (h *metricsHook) After(ctx context.Context, query string, args ...interface{}) (context.Context, error) {
	if start, ok := ctx.Value(ctxKey{}).(time.Time); ok {
		monitor.QueryDuration.WithLabelValues("ok").Observe(time.Since(start).Seconds())
	}
	return ctx, nil
}

func (h *metricsHook) OnError(ctx context.Context, err error, query string, args ...interface{}) error {
	if start, ok := ctx.Value(ctxKey{}).(time.Time); ok {
		monitor.QueryDuration.WithLabelValues("error").Observe(time.Since(start).Seconds())
	}
	return err
}

func Init(cfg *config.MySQLConfig) (err error) {
	sql.Register("mysql_with_metrics", sqlhooks.Wrap(&mysqldriver.MySQLDriver{}, &metricsHook{}))
	dsn := fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?charset=utf8mb4&parseTime=True&loc=Local",
		cfg.User, cfg.Password, cfg.Host, cfg.Port, cfg.DBName)
	DB, err = sqlx.Connect("mysql_with_metrics", dsn)
	if err != nil {
		return err
	}
	DB.SetMaxOpenConns(cfg.MaxOpenConns)
	DB.SetMaxIdleConns(cfg.MaxIdleConns)
	return nil
}

func Close() {
	_ = DB.Close()
}
