package tracker

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/pkg/errors"

	"github.com/trezcool/eagleeye/core"
)

const (
	ExportVersion  = "1.0"
	ExportFilename = "eagleeye-data-export.json"
)

type (
	MigrationResult struct {
		Success             bool     `json:"success"`
		Message             string   `json:"message"`
		ClassesImported     int      `json:"classes_imported"`
		AssignmentsImported int      `json:"assignments_imported"`
		Errors              []string `json:"errors"`
	}

	Result struct {
		Success bool   `json:"success"`
		Message string `json:"message"`
	}

	ExportResult struct {
		Success bool   `json:"success"`
		Message string `json:"message"`
		Data    []byte `json:"-"`
	}

	// Export is the document written by Migrator.Export.
	Export struct {
		Timestamp   time.Time    `json:"timestamp"`
		Version     string       `json:"version"`
		Classes     []Class      `json:"classes"`
		Assignments []Assignment `json:"assignments"`
	}

	// Migrator copies the raw local records to the remote store and manages the remote copy.
	Migrator struct {
		kv     KVStore
		remote RemoteClient // nil when no remote store is configured
		logger core.Logger
	}
)

func NewMigrator(kv KVStore, remote RemoteClient, logger core.Logger) *Migrator {
	return &Migrator{kv: kv, remote: remote, logger: logger}
}

// Migrate uploads the local classes and assignments of the device to the user's empty remote store.
// Class ids are remapped to the ids assigned by the remote store; assignments whose class
// could not be migrated are skipped. Any imported row makes the migration a success.
// Local data is left untouched.
func (m *Migrator) Migrate(ctx context.Context, sess *Session) MigrationResult {
	res := MigrationResult{Errors: []string{}}

	if m.remote == nil {
		res.Errors = append(res.Errors, ErrRemoteUnavailable.Error())
		res.Message = "Cloud storage not available"
		return res
	}
	if sess == nil || sess.UserID == "" {
		res.Errors = append(res.Errors, ErrNotAuthenticated.Error())
		res.Message = "Please sign in to migrate your data"
		return res
	}

	classes, assignments, found, err := m.readLocal(ctx)
	if err != nil {
		if errors.Cause(err) == ErrCorruptedData {
			res.Errors = append(res.Errors, ErrCorruptedData.Error())
			res.Message = "Local data appears to be corrupted"
			return res
		}
		return m.unexpected(res, err, sess)
	}
	if !found || (len(classes) == 0 && len(assignments) == 0) {
		res.Success = true
		res.Message = "No local data found to migrate"
		return res
	}

	exists, err := m.cloudHasData(ctx, sess.UserID)
	if err != nil {
		return m.unexpected(res, err, sess)
	}
	if exists {
		res.Errors = append(res.Errors, ErrCloudDataExists.Error())
		res.Message = "Migration skipped - you already have data in the cloud. " +
			"To force migration, please clear your cloud data first."
		return res
	}

	classIDs := make(map[string]string, len(classes))
	for _, cls := range classes {
		created, err := m.remote.InsertClass(ctx, sess.UserID, cls)
		if err != nil {
			res.Errors = append(res.Errors, fmt.Sprintf("Failed to migrate class %q: %v", cls.Name, err))
			continue
		}
		classIDs[cls.ID] = created.ID
		res.ClassesImported++
	}

	for _, asg := range assignments {
		newClassID, ok := classIDs[asg.ClassID]
		if !ok {
			res.Errors = append(res.Errors, fmt.Sprintf("Skipped assignment %q - class not found", asg.Title))
			continue
		}
		asg.ClassID = newClassID
		if asg.Status == StatusCompleted {
			asg.ProgressPct = 100
		}
		if _, err := m.remote.InsertAssignment(ctx, sess.UserID, asg); err != nil {
			res.Errors = append(res.Errors, fmt.Sprintf("Failed to migrate assignment %q: %v", asg.Title, err))
			continue
		}
		res.AssignmentsImported++
	}

	if res.ClassesImported > 0 || res.AssignmentsImported > 0 {
		res.Success = true
		res.Message = fmt.Sprintf(
			"Successfully migrated %d classes and %d assignments to the cloud",
			res.ClassesImported, res.AssignmentsImported,
		)
		m.logger.Info(res.Message, *sess)
	} else {
		res.Message = "No data was migrated"
	}
	return res
}

func (m *Migrator) unexpected(res MigrationResult, err error, sess *Session) MigrationResult {
	m.logger.Error("migration failed", errors.Wrap(err, "migrating local data"), *sess)
	res.Errors = append(res.Errors, fmt.Sprintf("Migration failed: %v", err))
	res.Message = "Migration failed due to an unexpected error"
	return res
}

// cloudHasData reports whether the user already owns any class or assignment remotely.
func (m *Migrator) cloudHasData(ctx context.Context, userID string) (bool, error) {
	for _, table := range []string{TableClasses, TableAssignments} {
		exists, err := m.remote.Exists(ctx, table, userID)
		if err != nil {
			return false, errors.Wrapf(err, "checking existing %s", table)
		}
		if exists {
			return true, nil
		}
	}
	return false, nil
}

// readLocal parses the raw local records. found is false when neither record exists.
func (m *Migrator) readLocal(ctx context.Context) (classes []Class, assignments []Assignment, found bool, err error) {
	rawClasses, okClasses, err := m.kv.Get(ctx, ClassesKey)
	if err != nil {
		return nil, nil, false, errors.Wrapf(err, "reading %s", ClassesKey)
	}
	rawAssignments, okAssignments, err := m.kv.Get(ctx, AssignmentsKey)
	if err != nil {
		return nil, nil, false, errors.Wrapf(err, "reading %s", AssignmentsKey)
	}
	if !okClasses && !okAssignments {
		return nil, nil, false, nil
	}

	if okClasses {
		if err = json.Unmarshal(rawClasses, &classes); err != nil {
			return nil, nil, true, errors.Wrap(ErrCorruptedData, err.Error())
		}
	}
	if okAssignments {
		if err = json.Unmarshal(rawAssignments, &assignments); err != nil {
			return nil, nil, true, errors.Wrap(ErrCorruptedData, err.Error())
		}
	}
	return classes, assignments, true, nil
}

// ClearCloud deletes all of the user's remote assignments, then classes.
// Callers must have the user's explicit confirmation.
func (m *Migrator) ClearCloud(ctx context.Context, sess *Session) Result {
	if m.remote == nil {
		return Result{Message: ErrRemoteUnavailable.Error()}
	}
	if sess == nil || sess.UserID == "" {
		return Result{Message: "User not authenticated"}
	}

	for _, table := range []string{TableAssignments, TableClasses} {
		if err := m.remote.DeleteAll(ctx, table, sess.UserID); err != nil {
			m.logger.Error("clearing cloud data", errors.Wrapf(err, "deleting %s", table), *sess)
			return Result{Message: fmt.Sprintf("Failed to clear cloud data: %v", err)}
		}
	}
	m.logger.Info("cloud data cleared", *sess)
	return Result{Success: true, Message: "Cloud data cleared successfully"}
}

// Export renders the local records as an indented JSON document.
func (m *Migrator) Export(ctx context.Context) ExportResult {
	classes, assignments, found, err := m.readLocal(ctx)
	if err != nil {
		return ExportResult{Message: fmt.Sprintf("Export failed: %v", err)}
	}
	if !found {
		return ExportResult{Message: "No local data found to export"}
	}
	if classes == nil {
		classes = []Class{}
	}
	if assignments == nil {
		assignments = []Assignment{}
	}

	data, err := json.MarshalIndent(Export{
		Timestamp:   nowFunc().UTC(),
		Version:     ExportVersion,
		Classes:     classes,
		Assignments: assignments,
	}, "", "  ")
	if err != nil {
		return ExportResult{Message: fmt.Sprintf("Export failed: %v", err)}
	}
	return ExportResult{
		Success: true,
		Message: fmt.Sprintf("Exported %d classes and %d assignments", len(classes), len(assignments)),
		Data:    data,
	}
}
