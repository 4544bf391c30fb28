package db

import (
	"time"

	"go.uber.org/zap"
	"gorm.io/driver/mysql"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

type options struct {
	logLevel     logger.LogLevel
	maxOpenConns int
	log          *zap.Logger
}

type Option func(*options)

// WithLogLevel sets the SQL log level.
func WithLogLevel(l logger.LogLevel) Option { return func(o *options) { o.logLevel = l } }

func WithMaxOpenConns(n int) Option { return func(o *options) { o.maxOpenConns = n } }

// WithLogger receives the connection log and, under the "gorm" name, the SQL log.
func WithLogger(l *zap.Logger) Option { return func(o *options) { o.log = l } }

// OpenGorm connects to MySQL.
func OpenGorm(dsn string, opts ...Option) (*gorm.DB, error) {
	return OpenGormWithDialector(mysql.Open(dsn), opts...)
}

// OpenSQLite opens a file (or ":memory:") database. sqlite allows a single
// writer, so the pool is pinned to one connection.
func OpenSQLite(path string, opts ...Option) (*gorm.DB, error) {
	return OpenGormWithDialector(sqlite.Open(path), append(opts, WithMaxOpenConns(1))...)
}

func OpenGormWithDialector(dial gorm.Dialector, opts ...Option) (*gorm.DB, error) {
	o := options{logLevel: logger.Warn, maxOpenConns: 30, log: zap.NewNop()}
	for _, fn := range opts {
		fn(&o)
	}

	// pinged explicitly below, once the pool is sized
	db, err := gorm.Open(dial, &gorm.Config{
		Logger:               newGormLogger(o.log, o.logLevel),
		DisableAutomaticPing: true,
	})
	if err != nil {
		return nil, err
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxOpenConns(o.maxOpenConns)
	sqlDB.SetMaxIdleConns(min(10, o.maxOpenConns))
	sqlDB.SetConnMaxLifetime(30 * time.Minute)
	sqlDB.SetConnMaxIdleTime(10 * time.Minute)

	if err := sqlDB.Ping(); err != nil {
		return nil, err
	}
	o.log.Info("gorm: connected", zap.String("dialect", dial.Name()), zap.Int("max_open_conns", o.maxOpenConns))
	return db, nil
}

// GormLogLevel maps the service log level onto gorm's SQL logger.
func GormLogLevel(level string) logger.LogLevel {
	switch level {
	case "debug":
		return logger.Info
	case "error", "dpanic", "panic", "fatal":
		return logger.Error
	}
	return logger.Warn
}
