package jobstore

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/leandro-jm/bulk-migration/internal/migration"
)

// RulePreset is a named, reusable rule assignment, stored and served by the
// preset CRUD endpoints. Expand turns one into an ordered TableTask list;
// the migration submission endpoint takes explicit tasks and does not accept
// a preset, so no HTTP handler calls Expand. The engine never sees a
// RulePreset directly.
type RulePreset struct {
	ID         string                    `json:"id"`
	Name       string                    `json:"name"`
	GlobalRule migration.Rule            `json:"global_rule"`
	TableRules map[string]migration.Rule `json:"table_rules"`
	CreatedAt  time.Time                 `json:"created_at"`
}

// Expand turns a RulePreset plus the table list a caller names into an
// ordered TableTask slice: each table takes its override rule if present,
// otherwise the preset's global rule.
func (p RulePreset) Expand(tables []string) []migration.TableTask {
	tasks := make([]migration.TableTask, len(tables))
	for i, t := range tables {
		rule := p.GlobalRule
		if override, ok := p.TableRules[t]; ok {
			rule = override
		}
		tasks[i] = migration.TableTask{TableName: t, Rule: rule}
	}
	return tasks
}

// PresetStore is the CRUD contract the HTTP surface uses for RulePresets.
type PresetStore struct {
	pool *pgxpool.Pool
}

func NewPresetStore(pool *pgxpool.Pool) *PresetStore {
	return &PresetStore{pool: pool}
}

// Create inserts a new RulePreset, assigning it a fresh id.
func (s *PresetStore) Create(ctx context.Context, preset RulePreset) (RulePreset, error) {
	preset.ID = uuid.NewString()
	rules, err := json.Marshal(preset.TableRules)
	if err != nil {
		return RulePreset{}, fmt.Errorf("encoding table rules: %w", err)
	}
	err = s.pool.QueryRow(ctx, `
		INSERT INTO rule_presets (id, name, global_rule, table_rules)
		VALUES ($1, $2, $3, $4)
		RETURNING created_at`,
		preset.ID, preset.Name, string(preset.GlobalRule), string(rules)).
		Scan(&preset.CreatedAt)
	if err != nil {
		return RulePreset{}, fmt.Errorf("creating preset: %w", err)
	}
	return preset, nil
}

// List returns every stored RulePreset, newest first.
func (s *PresetStore) List(ctx context.Context) ([]RulePreset, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, name, global_rule, table_rules, created_at
		FROM rule_presets ORDER BY created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("listing presets: %w", err)
	}
	defer rows.Close()

	var out []RulePreset
	for rows.Next() {
		var p RulePreset
		var globalRule, rules string
		if err := rows.Scan(&p.ID, &p.Name, &globalRule, &rules, &p.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning preset: %w", err)
		}
		p.GlobalRule = migration.Rule(globalRule)
		if err := json.Unmarshal([]byte(rules), &p.TableRules); err != nil {
			return nil, fmt.Errorf("decoding table rules for preset %s: %w", p.ID, err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// Get returns one RulePreset by id.
func (s *PresetStore) Get(ctx context.Context, id string) (RulePreset, error) {
	var p RulePreset
	var globalRule, rules string
	err := s.pool.QueryRow(ctx, `
		SELECT id, name, global_rule, table_rules, created_at
		FROM rule_presets WHERE id = $1`, id).
		Scan(&p.ID, &p.Name, &globalRule, &rules, &p.CreatedAt)
	if err != nil {
		return RulePreset{}, fmt.Errorf("loading preset %s: %w", id, err)
	}
	p.GlobalRule = migration.Rule(globalRule)
	if err := json.Unmarshal([]byte(rules), &p.TableRules); err != nil {
		return RulePreset{}, fmt.Errorf("decoding table rules for preset %s: %w", id, err)
	}
	return p, nil
}

// Delete removes a RulePreset by id.
func (s *PresetStore) Delete(ctx context.Context, id string) error {
	if _, err := s.pool.Exec(ctx, `DELETE FROM rule_presets WHERE id = $1`, id); err != nil {
		return fmt.Errorf("deleting preset %s: %w", id, err)
	}
	return nil
}
