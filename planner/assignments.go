package planner

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	dbt "globetrotter/db/db"
	"globetrotter/libs/apperr"
	"globetrotter/mq/mq"
)

type NewAssignment struct {
	ActivityID  int64
	ScheduledAt *time.Time
	Notes       string
}

type AssignmentPatch struct {
	ScheduledAt   *time.Time
	ClearSchedule bool
	Notes         *string
}

// stopTrip locks the trip a stop belongs to and checks the caller owns it.
func (p *Planner) stopTrip(ctx context.Context, op string, tx dbt.Store, stopID, userID uuid.UUID) (*dbt.Trip, error) {
	stop, err := tx.GetStop(ctx, stopID)
	if err != nil {
		return nil, err
	}
	trip, err := tx.LockTrip(ctx, stop.TripID)
	if err != nil {
		return nil, err
	}
	return trip, p.authorizeMutate(op, trip, userID)
}

func (p *Planner) AssignActivity(ctx context.Context, stopID, userID uuid.UUID, in NewAssignment) (*dbt.ActivityAssignment, error) {
	const op = "assign_activity"

	var (
		assignment *dbt.ActivityAssignment
		tripID     uuid.UUID
		public     bool
	)
	err := p.run(ctx, op, false, func(ctx context.Context) error {
		if _, err := p.activity(ctx, op, in.ActivityID); err != nil {
			return err
		}
		return p.db.InTx(ctx, func(tx dbt.Store) error {
			trip, err := p.stopTrip(ctx, op, tx, stopID, userID)
			if err != nil {
				return err
			}
			a := &dbt.ActivityAssignment{
				StopID:      stopID,
				ActivityID:  in.ActivityID,
				ScheduledAt: in.ScheduledAt,
				Notes:       in.Notes,
			}
			if err := tx.CreateAssignment(ctx, a); err != nil {
				return err
			}
			assignment, tripID, public = a, trip.ID, trip.IsPublic
			return nil
		})
	})
	if err != nil {
		return nil, err
	}

	p.committed(ctx, op, tripID, "assignment_id", assignment.ID)
	p.emit(ctx, mq.TripEvent{TripID: tripID, Type: mq.EventActivityAssigned, ActorID: userID, StopID: stopID, AssignmentID: assignment.ID, Public: public})
	return assignment, nil
}

// UpdateAssignment reschedules an assignment or edits its notes. The activity
// it points at is fixed.
func (p *Planner) UpdateAssignment(ctx context.Context, assignmentID, userID uuid.UUID, patch AssignmentPatch) (*dbt.ActivityAssignment, error) {
	const op = "update_assignment"

	var (
		assignment *dbt.ActivityAssignment
		tripID     uuid.UUID
		public     bool
	)
	err := p.run(ctx, op, false, func(ctx context.Context) error {
		return p.db.InTx(ctx, func(tx dbt.Store) error {
			a, err := tx.GetAssignment(ctx, assignmentID)
			if err != nil {
				return err
			}
			trip, err := p.stopTrip(ctx, op, tx, a.StopID, userID)
			if err != nil {
				return err
			}
			switch {
			case patch.ClearSchedule:
				a.ScheduledAt = nil
			case patch.ScheduledAt != nil:
				a.ScheduledAt = patch.ScheduledAt
			}
			if patch.Notes != nil {
				a.Notes = *patch.Notes
			}
			if err := tx.UpdateAssignment(ctx, a); err != nil {
				return err
			}
			assignment, tripID, public = a, trip.ID, trip.IsPublic
			return nil
		})
	})
	if err != nil {
		return nil, err
	}

	p.committed(ctx, op, tripID, "assignment_id", assignmentID)
	p.emit(ctx, mq.TripEvent{TripID: tripID, Type: mq.EventAssignmentUpdated, ActorID: userID, StopID: assignment.StopID, AssignmentID: assignmentID, Public: public})
	return assignment, nil
}

func (p *Planner) DeleteAssignment(ctx context.Context, assignmentID, userID uuid.UUID) error {
	const op = "delete_assignment"

	var (
		tripID uuid.UUID
		stopID uuid.UUID
		public bool
	)
	err := p.run(ctx, op, false, func(ctx context.Context) error {
		return p.db.InTx(ctx, func(tx dbt.Store) error {
			a, err := tx.GetAssignment(ctx, assignmentID)
			if err != nil {
				return err
			}
			trip, err := p.stopTrip(ctx, op, tx, a.StopID, userID)
			if err != nil {
				return err
			}
			tripID, stopID, public = trip.ID, a.StopID, trip.IsPublic
			return tx.DeleteAssignment(ctx, assignmentID)
		})
	})
	if err != nil {
		return err
	}

	p.committed(ctx, op, tripID, "assignment_id", assignmentID)
	p.emit(ctx, mq.TripEvent{TripID: tripID, Type: mq.EventAssignmentDeleted, ActorID: userID, StopID: stopID, AssignmentID: assignmentID, Public: public})
	return nil
}

// maxExpenseAmount is the first value a numeric(10,2) column cannot hold.
var maxExpenseAmount = decimal.New(1, 8)

// AddExpense records a non-activity cost. The activities category is
// reserved for the catalog costs of assigned activities.
func (p *Planner) AddExpense(ctx context.Context, tripID, userID uuid.UUID, category string, amount decimal.Decimal) (*dbt.ExpenseRecord, error) {
	const op = "add_expense"
	category = strings.ToLower(strings.TrimSpace(category))
	switch {
	case category == "":
		return nil, apperr.Validation(op, "category is required")
	case category == dbt.ActivitiesCategory:
		return nil, apperr.Validation(op, "category %q is reserved", dbt.ActivitiesCategory)
	case amount.IsNegative():
		return nil, apperr.Validation(op, "amount must not be negative")
	case !amount.Equal(amount.Truncate(2)):
		return nil, apperr.Validation(op, "amount must have at most 2 decimal places")
	case amount.GreaterThanOrEqual(maxExpenseAmount):
		return nil, apperr.Validation(op, "amount must be below %s", maxExpenseAmount)
	}

	var (
		expense *dbt.ExpenseRecord
		public  bool
	)
	err := p.run(ctx, op, false, func(ctx context.Context) error {
		return p.db.InTx(ctx, func(tx dbt.Store) error {
			trip, err := tx.LockTrip(ctx, tripID)
			if err != nil {
				return err
			}
			if err := p.authorizeMutate(op, trip, userID); err != nil {
				return err
			}
			e := &dbt.ExpenseRecord{TripID: tripID, Category: category, Amount: amount}
			if err := tx.CreateExpense(ctx, e); err != nil {
				return err
			}
			expense, public = e, trip.IsPublic
			return nil
		})
	})
	if err != nil {
		return nil, err
	}

	p.committed(ctx, op, tripID, "expense_id", expense.ID)
	p.emit(ctx, mq.TripEvent{TripID: tripID, Type: mq.EventExpenseAdded, ActorID: userID, ExpenseID: expense.ID, Public: public})
	return expense, nil
}

func (p *Planner) DeleteExpense(ctx context.Context, tripID, expenseID, userID uuid.UUID) error {
	const op = "delete_expense"
	var public bool
	err := p.run(ctx, op, false, func(ctx context.Context) error {
		return p.db.InTx(ctx, func(tx dbt.Store) error {
			trip, err := tx.LockTrip(ctx, tripID)
			if err != nil {
				return err
			}
			if err := p.authorizeMutate(op, trip, userID); err != nil {
				return err
			}
			public = trip.IsPublic
			expenses, err := tx.ListExpenses(ctx, tripID)
			if err != nil {
				return err
			}
			for _, e := range expenses {
				if e.ID == expenseID {
					return tx.DeleteExpense(ctx, expenseID)
				}
			}
			return apperr.NotFound(op, "expense %s not found in trip %s", expenseID, tripID)
		})
	})
	if err != nil {
		return err
	}

	p.committed(ctx, op, tripID, "expense_id", expenseID)
	p.emit(ctx, mq.TripEvent{TripID: tripID, Type: mq.EventExpenseDeleted, ActorID: userID, ExpenseID: expenseID, Public: public})
	return nil
}

func (p *Planner) ListExpenses(ctx context.Context, tripID, userID uuid.UUID) ([]dbt.ExpenseRecord, error) {
	const op = "list_expenses"
	var expenses []dbt.ExpenseRecord
	err := p.run(ctx, op, true, func(ctx context.Context) error {
		trip, err := p.db.GetTrip(ctx, tripID)
		if err != nil {
			return err
		}
		if err := p.authorizeRead(op, trip, userID); err != nil {
			return err
		}
		expenses, err = p.db.ListExpenses(ctx, tripID)
		return err
	})
	return expenses, err
}
