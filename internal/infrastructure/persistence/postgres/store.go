package postgres

import (
	"context"
	"fmt"
)

// Store bundles every repository over one connection pool.
type Store struct {
	*CurriculumRepository
	*AssessmentRepository
	*ResultRepository
	*RuleRepository

	conn *Connection
}

// NewStore creates a Store over an open connection.
func NewStore(conn *Connection) *Store {
	return &Store{
		CurriculumRepository: NewCurriculumRepository(conn),
		AssessmentRepository: NewAssessmentRepository(conn),
		ResultRepository:     NewResultRepository(conn),
		RuleRepository:       NewRuleRepository(conn),
		conn:                 conn,
	}
}

// OpenStore connects to databaseURL and returns a Store that owns the pool.
func OpenStore(ctx context.Context, databaseURL string, opts PoolOptions) (*Store, error) {
	conn, err := NewConnectionFromURL(ctx, databaseURL, opts)
	if err != nil {
		return nil, err
	}
	return NewStore(conn), nil
}

// Migrate applies pending schema migrations.
func (s *Store) Migrate(ctx context.Context) error {
	if err := NewMigrator(s.conn).Migrate(ctx); err != nil {
		return fmt.Errorf("postgres: migrate: %w", err)
	}
	return nil
}

// Rollback reverts the most recent migration.
func (s *Store) Rollback(ctx context.Context) error {
	if err := NewMigrator(s.conn).Rollback(ctx); err != nil {
		return fmt.Errorf("postgres: rollback: %w", err)
	}
	return nil
}

// Seeder returns a fixture loader writing through the same pool.
func (s *Store) Seeder() *SeedRepository {
	return NewSeedRepository(s.conn)
}

// Close closes the pool.
func (s *Store) Close() error {
	s.conn.Close()
	return nil
}

// Ping checks the pool.
func (s *Store) Ping(ctx context.Context) error {
	return s.conn.Ping(ctx)
}
