package sqlxrepos

import (
	"context"
	"crypto/md5"
	"database/sql"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/eagleeye/core"
	"github.com/trezcool/eagleeye/core/tracker"
)

const (
	classColumns      = "id, name, color, is_archived"
	assignmentColumns = "id, class_id, title, due_at, estimated_duration_min, is_important, is_urgent, " +
		"status, notes, progress_pct, created_at, updated_at"
)

var (
	classOrdering      = core.DBOrdering{Field: "created_at", Ascending: true}
	assignmentOrdering = core.DBOrdering{Field: "due_at", Ascending: true}

	errUnknownTable = errors.New("unknown table")
)

type assignmentRow struct {
	ID                   string      `db:"id"`
	ClassID              string      `db:"class_id"`
	Title                string      `db:"title"`
	DueAt                time.Time   `db:"due_at"`
	EstimatedDurationMin int         `db:"estimated_duration_min"`
	IsImportant          bool        `db:"is_important"`
	IsUrgent             bool        `db:"is_urgent"`
	Status               string      `db:"status"`
	Notes                null.String `db:"notes"`
	ProgressPct          int         `db:"progress_pct"`
	CreatedAt            time.Time   `db:"created_at"`
	UpdatedAt            time.Time   `db:"updated_at"`
}

func (row assignmentRow) toAssignment() tracker.Assignment {
	return tracker.Assignment{
		ID:                   row.ID,
		Title:                row.Title,
		ClassID:              row.ClassID,
		DueAt:                row.DueAt.UTC(),
		EstimatedDurationMin: row.EstimatedDurationMin,
		IsImportant:          row.IsImportant,
		IsUrgent:             row.IsUrgent,
		Status:               tracker.Status(row.Status),
		Notes:                row.Notes.String, // NULL reads as ""
		ProgressPct:          row.ProgressPct,
		CreatedAt:            row.CreatedAt.UTC(),
		UpdatedAt:            row.UpdatedAt.UTC(),
	}
}

type remoteClient struct {
	db     core.DB
	dsn    string // for LISTEN connections
	logger core.Logger
}

var _ tracker.RemoteClient = (*remoteClient)(nil) // interface compliance check

func NewRemoteClient(db core.DB, dsn string, logger core.Logger) *remoteClient {
	return &remoteClient{db: db, dsn: dsn, logger: logger}
}

func (c remoteClient) SelectClasses(ctx context.Context, userID string) ([]tracker.Class, error) {
	classes := make([]tracker.Class, 0)
	q := "SELECT " + classColumns + " FROM classes WHERE user_id = $1 ORDER BY " + classOrdering.String()
	if err := c.db.SelectContext(ctx, &classes, q, userID); err != nil {
		return nil, errors.Wrap(err, "selecting classes")
	}
	return classes, nil
}

func (c remoteClient) SelectAssignments(ctx context.Context, userID string) ([]tracker.Assignment, error) {
	var rows []assignmentRow
	q := "SELECT " + assignmentColumns + " FROM assignments WHERE user_id = $1 ORDER BY " + assignmentOrdering.String()
	if err := c.db.SelectContext(ctx, &rows, q, userID); err != nil {
		return nil, errors.Wrap(err, "selecting assignments")
	}

	assignments := make([]tracker.Assignment, 0, len(rows))
	for _, row := range rows {
		assignments = append(assignments, row.toAssignment())
	}
	return assignments, nil
}

func (c remoteClient) Exists(ctx context.Context, table, userID string) (bool, error) {
	if err := checkTable(table); err != nil {
		return false, err
	}
	var found bool
	q := "SELECT EXISTS (SELECT 1 FROM " + table + " WHERE user_id = $1)"
	if err := c.db.GetContext(ctx, &found, q, userID); err != nil {
		return false, errors.Wrapf(err, "checking %s", table)
	}
	return found, nil
}

func (c remoteClient) InsertClass(ctx context.Context, userID string, cls tracker.Class) (tracker.Class, error) {
	var created tracker.Class
	err := c.db.GetContext(
		ctx, &created,
		`INSERT INTO classes (id, user_id, name, color, is_archived)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING `+classColumns,
		uuid.NewString(), userID, cls.Name, cls.Color, cls.IsArchived,
	)
	if err != nil {
		return tracker.Class{}, errors.Wrap(err, "inserting class")
	}
	return created, nil
}

func (c remoteClient) InsertAssignment(ctx context.Context, userID string, asg tracker.Assignment) (tracker.Assignment, error) {
	if err := c.checkClass(ctx, userID, asg.ClassID); err != nil {
		return tracker.Assignment{}, err
	}
	status := asg.Status
	if status == "" {
		status = tracker.StatusNotStarted
	}

	var row assignmentRow
	err := c.db.GetContext(
		ctx, &row,
		`INSERT INTO assignments (
			id, user_id, class_id, title, due_at, estimated_duration_min,
			is_important, is_urgent, status, notes, progress_pct
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		RETURNING `+assignmentColumns,
		uuid.NewString(), userID, asg.ClassID, asg.Title, asg.DueAt.UTC(), asg.EstimatedDurationMin,
		asg.IsImportant, asg.IsUrgent, string(status), null.NewString(asg.Notes, asg.Notes != ""), asg.ProgressPct,
	)
	if err != nil {
		return tracker.Assignment{}, errors.Wrap(err, "inserting assignment")
	}
	return row.toAssignment(), nil
}

func (c remoteClient) UpdateClass(ctx context.Context, userID, id string, uc tracker.UpdateClass) error {
	if !validID(id) {
		return tracker.ErrClassNotFound
	}

	var set setter
	if uc.Name != nil {
		set.add("name", *uc.Name)
	}
	if uc.Color != nil {
		set.add("color", *uc.Color)
	}
	if uc.IsArchived != nil {
		set.add("is_archived", *uc.IsArchived)
	}
	return c.update(ctx, tracker.TableClasses, userID, id, set, tracker.ErrClassNotFound)
}

func (c remoteClient) UpdateAssignment(ctx context.Context, userID, id string, ua tracker.UpdateAssignment) error {
	if !validID(id) {
		return tracker.ErrAssignmentNotFound
	}

	var set setter
	if ua.Title != nil {
		set.add("title", *ua.Title)
	}
	if ua.ClassID != nil {
		if err := c.checkClass(ctx, userID, *ua.ClassID); err != nil {
			return err
		}
		set.add("class_id", *ua.ClassID)
	}
	if ua.DueAt != nil {
		set.add("due_at", ua.DueAt.UTC())
	}
	if ua.EstimatedDurationMin != nil {
		set.add("estimated_duration_min", *ua.EstimatedDurationMin)
	}
	if ua.IsImportant != nil {
		set.add("is_important", *ua.IsImportant)
	}
	if ua.IsUrgent != nil {
		set.add("is_urgent", *ua.IsUrgent)
	}
	if ua.Status != nil {
		set.add("status", string(*ua.Status))
	}
	if ua.Notes != nil {
		set.add("notes", null.NewString(*ua.Notes, *ua.Notes != ""))
	}
	if ua.ProgressPct != nil {
		set.add("progress_pct", *ua.ProgressPct)
	}
	return c.update(ctx, tracker.TableAssignments, userID, id, set, tracker.ErrAssignmentNotFound)
}

func (c remoteClient) update(ctx context.Context, table, userID, id string, set setter, notFound error) error {
	set.raw("updated_at = now()")
	q, args := set.query(table, id, userID)
	res, err := c.db.ExecContext(ctx, q, args...)
	if err != nil {
		return errors.Wrapf(err, "updating %s", table)
	}
	return checkAffected(res, notFound)
}

// DeleteClass also deletes the class' assignments (ON DELETE CASCADE).
func (c remoteClient) DeleteClass(ctx context.Context, userID, id string) error {
	if !validID(id) {
		return tracker.ErrClassNotFound
	}
	res, err := c.db.ExecContext(ctx, `DELETE FROM classes WHERE id = $1 AND user_id = $2`, id, userID)
	if err != nil {
		return errors.Wrap(err, "deleting class")
	}
	return checkAffected(res, tracker.ErrClassNotFound)
}

func (c remoteClient) DeleteAssignment(ctx context.Context, userID, id string) error {
	if !validID(id) {
		return tracker.ErrAssignmentNotFound
	}
	res, err := c.db.ExecContext(ctx, `DELETE FROM assignments WHERE id = $1 AND user_id = $2`, id, userID)
	if err != nil {
		return errors.Wrap(err, "deleting assignment")
	}
	return checkAffected(res, tracker.ErrAssignmentNotFound)
}

func (c remoteClient) DeleteAll(ctx context.Context, table, userID string) error {
	if err := checkTable(table); err != nil {
		return err
	}
	_, err := c.db.ExecContext(ctx, "DELETE FROM "+table+" WHERE user_id = $1", userID)
	return errors.Wrapf(err, "deleting %s", table)
}

func (c remoteClient) MarkOverdue(ctx context.Context, userID string, now time.Time) (int, error) {
	res, err := c.db.ExecContext(
		ctx,
		`UPDATE assignments SET status = $1, updated_at = now()
		WHERE user_id = $2 AND due_at < $3 AND status <> $4`,
		string(tracker.StatusOverdue), userID, now.UTC(), string(tracker.StatusCompleted),
	)
	if err != nil {
		return 0, errors.Wrap(err, "marking overdue assignments")
	}
	n, err := res.RowsAffected()
	return int(n), errors.Wrap(err, "counting overdue assignments")
}

func (c remoteClient) checkClass(ctx context.Context, userID, classID string) error {
	if !validID(classID) {
		return tracker.ErrClassNotFound
	}
	var found bool
	err := c.db.GetContext(
		ctx, &found,
		`SELECT EXISTS (SELECT 1 FROM classes WHERE id = $1 AND user_id = $2)`,
		classID, userID,
	)
	if err != nil {
		return errors.Wrap(err, "checking class")
	}
	if !found {
		return tracker.ErrClassNotFound
	}
	return nil
}

// ChannelName is the notification channel of the user's rows; it matches the notify_row_change trigger.
func ChannelName(userID string) string {
	sum := md5.Sum([]byte(userID))
	return "changes_" + hex.EncodeToString(sum[:])
}

func checkTable(table string) error {
	switch table {
	case tracker.TableClasses, tracker.TableAssignments:
		return nil
	}
	return errors.Wrap(errUnknownTable, table)
}

func checkAffected(res sql.Result, notFound error) error {
	n, err := res.RowsAffected()
	if err != nil {
		return errors.Wrap(err, "counting affected rows")
	}
	if n == 0 {
		return notFound
	}
	return nil
}

func validID(id string) bool {
	_, err := uuid.Parse(id)
	return err == nil
}

// setter builds the SET clause of a partial UPDATE.
type setter struct {
	cols []string
	args []interface{}
}

func (s *setter) add(col string, val interface{}) {
	s.args = append(s.args, val)
	s.cols = append(s.cols, fmt.Sprintf("%s = $%d", col, len(s.args)))
}

func (s *setter) raw(expr string) {
	s.cols = append(s.cols, expr)
}

// query returns the UPDATE of the row id owned by userID.
func (s setter) query(table, id, userID string) (string, []interface{}) {
	args := append(append([]interface{}{}, s.args...), id, userID)
	q := fmt.Sprintf(
		"UPDATE %s SET %s WHERE id = $%d AND user_id = $%d",
		table, strings.Join(s.cols, ", "), len(args)-1, len(args),
	)
	return q, args
}
