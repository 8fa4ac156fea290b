package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/lib/pq"
	"go.uber.org/zap"

	"github.com/rmanoh01/neurobooth-analysis-tools/internal/frame"
)

// Default refresh-polling budget. The database is rebuilt hourly; during a
// rebuild tables are transiently absent.
const (
	DefaultMaxPolls     = 6
	DefaultPollInterval = 5 * time.Second
)

// RefreshTimeoutError is returned when tables are still missing after the
// poll budget is spent.
type RefreshTimeoutError struct {
	MaxPolls int
	Missing  []string
}

func (e *RefreshTimeoutError) Error() string {
	return fmt.Sprintf("exceeded maximum polls (N=%d) waiting for tables: %s",
		e.MaxPolls, strings.Join(e.Missing, ", "))
}

// TableRepository downloads whole tables from the Neurobooth database.
type TableRepository struct {
	db     *sql.DB
	logger *zap.Logger

	// Poll budget applied by DownloadTables and TestSubjects. Zero values
	// fall back to the defaults above.
	MaxPolls     int
	PollInterval time.Duration
}

// NewTableRepository creates a new table repository.
func NewTableRepository(db *sql.DB, logger *zap.Logger) *TableRepository {
	return &TableRepository{
		db:           db,
		logger:       logger,
		MaxPolls:     DefaultMaxPolls,
		PollInterval: DefaultPollInterval,
	}
}

// HasTable reports whether the named table currently exists.
func (r *TableRepository) HasTable(name string) (bool, error) {
	query := `
		SELECT EXISTS (
			SELECT 1 FROM information_schema.tables
			WHERE table_schema = 'public' AND table_name = $1
		)
	`
	var exists bool
	if err := r.db.QueryRow(query, name).Scan(&exists); err != nil {
		return false, fmt.Errorf("failed to check existence of table %s: %w", name, err)
	}
	return exists, nil
}

// WaitForRefresh blocks until every named table exists, polling up to
// maxPolls times with pollInterval between checks. If tables are still
// missing after the last check it returns a *RefreshTimeoutError naming them.
func (r *TableRepository) WaitForRefresh(tableNames []string, maxPolls int, pollInterval time.Duration) error {
	var missing []string
	for poll := 0; poll < maxPolls; poll++ {
		if poll > 0 {
			time.Sleep(pollInterval)
		}
		missing = missing[:0]
		for _, name := range tableNames {
			exists, err := r.HasTable(name)
			if err != nil {
				return err
			}
			if !exists {
				missing = append(missing, name)
			}
		}
		if len(missing) == 0 {
			return nil
		}
		r.logger.Debug("Tables not yet refreshed",
			zap.Strings("missing", missing),
			zap.Int("poll", poll+1),
			zap.Int("max_polls", maxPolls))
	}
	return &RefreshTimeoutError{MaxPolls: maxPolls, Missing: append([]string(nil), missing...)}
}

func (r *TableRepository) maxPolls() int {
	if r.MaxPolls > 0 {
		return r.MaxPolls
	}
	return DefaultMaxPolls
}

func (r *TableRepository) pollInterval() time.Duration {
	if r.PollInterval > 0 {
		return r.PollInterval
	}
	return DefaultPollInterval
}

// DownloadTables waits for the named tables to exist, then loads each one
// fully into memory. The whole batch is read on a single pooled connection,
// released on every exit path.
func (r *TableRepository) DownloadTables(tableNames ...string) (map[string]*frame.Frame, error) {
	if err := r.WaitForRefresh(tableNames, r.maxPolls(), r.pollInterval()); err != nil {
		return nil, err
	}

	conn, err := r.db.Conn(context.Background())
	if err != nil {
		return nil, fmt.Errorf("failed to acquire connection: %w", err)
	}
	defer conn.Close()

	tables := make(map[string]*frame.Frame, len(tableNames))
	for _, name := range tableNames {
		table, err := r.readTable(conn, name)
		if err != nil {
			return nil, err
		}
		tables[name] = table
	}
	return tables, nil
}

// readTable bulk-reads one table, normalizing values to the nullable
// frame representation.
func (r *TableRepository) readTable(conn *sql.Conn, name string) (*frame.Frame, error) {
	start := time.Now()

	query := fmt.Sprintf("SELECT * FROM %s", pq.QuoteIdentifier(name))
	rows, err := conn.QueryContext(context.Background(), query)
	if err != nil {
		return nil, fmt.Errorf("failed to read table %s: %w", name, err)
	}
	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("failed to read columns of table %s: %w", name, err)
	}
	table, err := frame.New(columns)
	if err != nil {
		return nil, fmt.Errorf("failed to build frame for table %s: %w", name, err)
	}

	for rows.Next() {
		values := make([]any, len(columns))
		dests := make([]any, len(columns))
		for i := range values {
			dests[i] = &values[i]
		}
		if err := rows.Scan(dests...); err != nil {
			return nil, fmt.Errorf("failed to scan row of table %s: %w", name, err)
		}
		row := make(frame.Row, len(columns))
		for i, v := range values {
			row[i] = frame.Normalize(v)
		}
		if err := table.AppendRow(row); err != nil {
			return nil, err
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read table %s: %w", name, err)
	}

	r.logger.Debug("Downloaded table",
		zap.String("table", name),
		zap.Int("rows", table.NumRows()),
		zap.Duration("elapsed", time.Since(start)))
	return table, nil
}

// Test subjects are either missing from the redcap-generated consent table
// (but present in the subject table), or flagged as a test subject there.
const testSubjectQuery = `
	SELECT DISTINCT subj.subject_id
	FROM subject subj
	LEFT JOIN rc_participant_and_consent_information pci
		ON subj.subject_id = pci.subject_id
	WHERE pci.test_subject_boolean OR pci.subject_id IS NULL
	ORDER BY subj.subject_id
`

// TestSubjects waits for the consent table, then returns the ordered list of
// subject ids classified as test subjects.
func (r *TableRepository) TestSubjects(consentTable string) ([]string, error) {
	if err := r.WaitForRefresh([]string{consentTable}, r.maxPolls(), r.pollInterval()); err != nil {
		return nil, err
	}

	rows, err := r.db.Query(testSubjectQuery)
	if err != nil {
		return nil, fmt.Errorf("failed to query test subjects: %w", err)
	}
	defer rows.Close()

	var subjects []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan test subject id: %w", err)
		}
		subjects = append(subjects, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read test subjects: %w", err)
	}
	return subjects, nil
}
