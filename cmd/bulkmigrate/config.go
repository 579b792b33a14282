package main

import (
	"fmt"
	"os"

	"github.com/BurntSushi/toml"

	"github.com/leandro-jm/bulk-migration/internal/database"
	"github.com/leandro-jm/bulk-migration/internal/migration"
)

// jobConfig is the TOML job file the migrate subcommand reads: a
// self-contained description of one run, with connections inlined rather
// than resolved through a Job Store, since the CLI has no database of its
// own to resolve references against.
type jobConfig struct {
	Source     connConfig  `toml:"source"`
	Target     connConfig  `toml:"target"`
	GlobalRule string      `toml:"global_rule"`
	Tables     []tableSpec `toml:"tables"`
}

type connConfig struct {
	Host       string `toml:"host"`
	Port       int    `toml:"port"`
	Database   string `toml:"database"`
	Username   string `toml:"username"`
	Password   string `toml:"password"`
	SSLEnabled bool   `toml:"ssl_enabled"`
	SSLMode    string `toml:"ssl_mode"`
	VerifyPeer bool   `toml:"verify_peer"`
}

func (c connConfig) spec() database.ConnectionSpec {
	return database.ConnectionSpec{
		Host:     c.Host,
		Port:     c.Port,
		Database: c.Database,
		User:     c.Username,
		Password: c.Password,
		TLS: database.TLSSpec{
			Enabled:    c.SSLEnabled,
			Mode:       database.TLSMode(c.SSLMode),
			VerifyPeer: c.VerifyPeer,
		},
	}
}

type tableSpec struct {
	Name string `toml:"name"`
	Rule string `toml:"rule"`
}

func loadJobConfig(path string) (*jobConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	cfg := jobConfig{GlobalRule: string(migration.RuleOverwrite)}
	if _, err := toml.Decode(string(data), &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if len(cfg.Tables) == 0 {
		return nil, fmt.Errorf("config must name at least one table")
	}
	return &cfg, nil
}

func (c *jobConfig) tasks() []migration.TableTask {
	globalRule := migration.Rule(c.GlobalRule)
	tasks := make([]migration.TableTask, len(c.Tables))
	for i, t := range c.Tables {
		rule := globalRule
		if t.Rule != "" {
			rule = migration.Rule(t.Rule)
		}
		tasks[i] = migration.TableTask{TableName: t.Name, Rule: rule}
	}
	return tasks
}
