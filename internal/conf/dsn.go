package conf

import (
	"fmt"
	"net"
	"strconv"
	"time"

	"github.com/go-sql-driver/mysql"
)

// sqliteDSNParams matches the pragmas the datastore expects: WAL so readers do not
// block the single writer, a busy timeout instead of immediate SQLITE_BUSY errors
const sqliteDSNParams = "_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=ON"

// DSN returns the driver specific connection string
func (db *DatabaseSettings) DSN() string {
	if db.Type == DriverSQLite {
		return fmt.Sprintf("%s?%s", db.Path, sqliteDSNParams)
	}
	return db.mysqlConfig(db.Password).FormatDSN()
}

// SanitizedDSN returns the DSN with the password masked, safe for logs
func (db *DatabaseSettings) SanitizedDSN() string {
	if db.Type == DriverSQLite {
		return db.DSN()
	}
	masked := ""
	if db.Password != "" {
		masked = "****"
	}
	return db.mysqlConfig(masked).FormatDSN()
}

func (db *DatabaseSettings) mysqlConfig(password string) *mysql.Config {
	cfg := mysql.NewConfig()
	cfg.User = db.Username
	cfg.Passwd = password
	cfg.Net = "tcp"
	cfg.Addr = net.JoinHostPort(db.Host, strconv.Itoa(db.Port))
	cfg.DBName = db.Database
	cfg.ParseTime = true
	cfg.Loc = time.Local
	cfg.Params = map[string]string{"charset": "utf8mb4"}
	return cfg
}
