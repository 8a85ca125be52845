package postgres

import (
	"context"

	"github.com/alem-hub/engagement-hub/internal/domain/engagement"
)

// Store bundles the repositories over one connection and implements engagement.Store.
type Store struct {
	conn          *Connection
	students      *StudentRepository
	logs          *DailyLogRepository
	interventions *InterventionRepository
}

// NewStore wires every repository to conn.
func NewStore(conn *Connection) *Store {
	return &Store{
		conn:          conn,
		students:      NewStudentRepository(conn),
		logs:          NewDailyLogRepository(conn),
		interventions: NewInterventionRepository(conn),
	}
}

func (s *Store) Students() engagement.StudentRepository           { return s.students }
func (s *Store) DailyLogs() engagement.DailyLogRepository         { return s.logs }
func (s *Store) Interventions() engagement.InterventionRepository { return s.interventions }

// Ping checks the database.
func (s *Store) Ping(ctx context.Context) error {
	return s.conn.Ping(ctx)
}
