package factory

import (
	"fmt"

	"github.com/roostd/roostd/internal/history"
	ch "github.com/roostd/roostd/internal/history/clickhouse"
	sq "github.com/roostd/roostd/internal/history/sqlite"
)

// Config selects and configures a history sink.
type Config struct {
	Type string `mapstructure:"type"` // "sqlite" or "clickhouse"
	// sqlite
	Path string `mapstructure:"path"`
	// clickhouse
	Addr     string `mapstructure:"addr"`
	Database string `mapstructure:"database"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
	Table    string `mapstructure:"table"`
}

// New builds the sink described by cfg.
func New(cfg Config) (history.Sink, error) {
	switch cfg.Type {
	case "sqlite":
		return sq.New(cfg.Path)
	case "clickhouse":
		return ch.New(cfg.Addr, cfg.Database, cfg.Username, cfg.Password, cfg.Table)
	default:
		return nil, fmt.Errorf("unknown history sink type %q", cfg.Type)
	}
}
