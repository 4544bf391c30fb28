package config

import (
	"errors"
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
)

type Config struct {
	AppPort string

	DBDriver   string // mysql | sqlite
	SQLitePath string

	MySQLHost string
	MySQLPort string
	MySQLDB   string
	MySQLUser string
	MySQLPass string

	RedisAddr string
	RedisDB   int

	IdempTTLSecs int

	GatewayTimeout         time.Duration
	GatewayBreakerFailures int
	GatewayBreakerTimeout  time.Duration

	SandboxPollsUntilPaid int
	SandboxOTPCode        string

	PaymentMaxAmount  decimal.Decimal
	ReservationWindow time.Duration

	LogLevel  string
	LogFormat string
	LogDev    bool

	// malformed values seen while loading, reported by Validate
	problems []string
}

func getenv(k, d string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return d
}

// Load reads the environment, after merging a local .env when one exists.
// Variables already set in the environment win over the file.
func Load() *Config {
	_ = godotenv.Load()

	c := &Config{
		AppPort:    getenv("APP_PORT", "8080"),
		DBDriver:   strings.ToLower(getenv("DB_DRIVER", "mysql")),
		SQLitePath: getenv("SQLITE_PATH", "loanpay.db"),
		MySQLHost:  getenv("MYSQL_HOST", "mysql"),
		MySQLPort:  getenv("MYSQL_PORT", "3306"),
		MySQLDB:    getenv("MYSQL_DB", "loanpay"),
		MySQLUser:  getenv("MYSQL_USER", "loanpay"),
		MySQLPass:  getenv("MYSQL_PASS", "loanpay"),

		RedisAddr:    getenv("REDIS_ADDR", "redis:6379"),
		IdempTTLSecs: 300,

		GatewayTimeout:         10 * time.Second,
		GatewayBreakerFailures: 5,
		GatewayBreakerTimeout:  30 * time.Second,

		SandboxPollsUntilPaid: 2,
		SandboxOTPCode:        getenv("SANDBOX_OTP_CODE", "123456"),

		PaymentMaxAmount:  decimal.NewFromInt(10000),
		ReservationWindow: 24 * time.Hour,

		LogLevel:  getenv("LOG_LEVEL", "info"),
		LogFormat: getenv("LOG_FORMAT", "json"),
	}

	c.intVar("REDIS_DB", &c.RedisDB)
	c.intVar("IDEMPOTENCY_TTL_SECONDS", &c.IdempTTLSecs)
	c.intVar("GATEWAY_BREAKER_FAILURES", &c.GatewayBreakerFailures)
	c.intVar("SANDBOX_POLLS_UNTIL_PAID", &c.SandboxPollsUntilPaid)
	c.durationVar("GATEWAY_TIMEOUT", &c.GatewayTimeout)
	c.durationVar("GATEWAY_BREAKER_TIMEOUT", &c.GatewayBreakerTimeout)
	c.durationVar("RESERVATION_WINDOW", &c.ReservationWindow)
	if v := os.Getenv("PAYMENT_MAX_AMOUNT"); v != "" {
		if d, err := decimal.NewFromString(v); err == nil {
			c.PaymentMaxAmount = d
		} else {
			c.problems = append(c.problems, fmt.Sprintf("PAYMENT_MAX_AMOUNT %q is not a decimal", v))
		}
	}
	if v := os.Getenv("LOG_DEV"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			c.LogDev = b
		} else {
			c.problems = append(c.problems, fmt.Sprintf("LOG_DEV %q is not a boolean", v))
		}
	}
	return c
}

func (c *Config) intVar(key string, dst *int) {
	v := os.Getenv(key)
	if v == "" {
		return
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		c.problems = append(c.problems, fmt.Sprintf("%s %q is not an integer", key, v))
		return
	}
	*dst = n
}

// durationVar accepts Go durations ("30s", "24h") or plain seconds.
func (c *Config) durationVar(key string, dst *time.Duration) {
	v := os.Getenv(key)
	if v == "" {
		return
	}
	if n, err := strconv.Atoi(v); err == nil {
		*dst = time.Duration(n) * time.Second
		return
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		c.problems = append(c.problems, fmt.Sprintf("%s %q is not a duration", key, v))
		return
	}
	*dst = d
}

func (c *Config) Validate() error {
	if len(c.problems) > 0 {
		return errors.New("invalid config: " + strings.Join(c.problems, "; "))
	}
	if c.AppPort == "" {
		return errors.New("missing APP_PORT")
	}
	switch c.DBDriver {
	case "mysql":
		if c.MySQLHost == "" || c.MySQLPort == "" || c.MySQLDB == "" || c.MySQLUser == "" {
			return errors.New("missing MySQL config (MYSQL_HOST/PORT/DB/USER)")
		}
		// ensure port is valid
		if _, err := net.LookupPort("tcp", c.MySQLPort); err != nil {
			return fmt.Errorf("invalid MYSQL_PORT %q: %w", c.MySQLPort, err)
		}
	case "sqlite":
		if c.SQLitePath == "" {
			return errors.New("missing SQLITE_PATH")
		}
	default:
		return fmt.Errorf("unknown DB_DRIVER %q (want mysql or sqlite)", c.DBDriver)
	}
	if c.RedisAddr == "" {
		return errors.New("missing REDIS_ADDR")
	}
	if c.IdempTTLSecs <= 0 {
		return errors.New("IDEMPOTENCY_TTL_SECONDS must be positive")
	}
	if c.GatewayTimeout <= 0 || c.GatewayBreakerTimeout <= 0 || c.GatewayBreakerFailures <= 0 {
		return errors.New("gateway timeout and breaker settings must be positive")
	}
	if !c.PaymentMaxAmount.IsPositive() {
		return errors.New("PAYMENT_MAX_AMOUNT must be positive")
	}
	if c.ReservationWindow < 0 {
		return errors.New("RESERVATION_WINDOW must not be negative")
	}
	if len(c.SandboxOTPCode) != 6 {
		return errors.New("SANDBOX_OTP_CODE must be 6 digits")
	}
	return nil
}

func (c *Config) IdempotencyTTL() time.Duration { return time.Duration(c.IdempTTLSecs) * time.Second }

func (c *Config) mysqlAddr() string { return net.JoinHostPort(c.MySQLHost, c.MySQLPort) }

func (c *Config) MySQLDSN() string {
	// parseTime needed for DATETIME
	return fmt.Sprintf("%s:%s@tcp(%s)/%s?multiStatements=true&parseTime=true&loc=UTC&charset=utf8mb4,utf8",
		c.MySQLUser, c.MySQLPass, c.mysqlAddr(), c.MySQLDB)
}
