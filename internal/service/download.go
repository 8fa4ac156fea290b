package service

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/rmanoh01/neurobooth-analysis-tools/internal/frame"
	"github.com/rmanoh01/neurobooth-analysis-tools/internal/repository"
	"github.com/rmanoh01/neurobooth-analysis-tools/internal/store"
)

// Source tables in the Neurobooth database.
const (
	TableSubject     = "subject"
	TableVisitDates  = "rc_visit_dates"
	TableDemographic = "rc_demographic_clean"
	TableClinical    = "rc_clinical_clean"
	TableScales      = "rc_ataxia_pd_scales_clean"
	TableVAQ         = "rc_visual_activities_questionnaire"
	TablePromAtaxia  = "rc_prom_ataxia"
	TableConsent     = "rc_participant_and_consent_information"
)

// Session-table columns used for the fuzzy joins.
const (
	ColumnSubjectID = "subject_id"
	ColumnEventName = "redcap_event_name"
	ColumnVisitDate = "neurobooth_visit_dates"
)

// Result names under which downloaded tables are cached.
const (
	ResultSubject     = "subject"
	ResultSession     = "session"
	ResultDemographic = "demographic"
	ResultClinical    = "clinical"
	ResultScales      = "scales"
	ResultPromVAQ     = "prom_vaq"
	ResultPromAtaxia  = "prom_ataxia"
)

// ancillaryJoin describes how one ancillary table is matched to sessions:
// which date column approximates the visit date, and what the derived
// offset column and cached result are called.
type ancillaryJoin struct {
	table        string
	dateColumn   string
	offsetColumn string
	result       string
}

var ancillaryJoins = []ancillaryJoin{
	{TableDemographic, "end_time_demographic", "demographic_offset_days", ResultDemographic},
	{TableClinical, "end_time_clinical", "clinical_offset_days", ResultClinical},
	{TableScales, "visit_date", "scales_offset_days", ResultScales},
	{TableVAQ, "end_time_visual_activities_questionnaire", "vaq_offset_days", ResultPromVAQ},
	{TablePromAtaxia, "end_time_prom_ataxia", "prom_ataxia_offset_days", ResultPromAtaxia},
}

// DownloadService downloads the analysis tables and fuzzy-joins each
// ancillary table with sessions by visit date. Results are published to an
// injected table store; a failed download leaves earlier results untouched.
type DownloadService struct {
	repo    *repository.TableRepository
	results store.TableStore
	logger  *zap.Logger

	mu           sync.Mutex
	testSubjects []string
}

// NewDownloadService creates a new download service.
func NewDownloadService(repo *repository.TableRepository, results store.TableStore, logger *zap.Logger) *DownloadService {
	return &DownloadService{
		repo:    repo,
		results: results,
		logger:  logger,
	}
}

// Download fetches the tables likely to be useful for analysis and joins
// each ancillary table against the session view. All seven results are
// computed before any of them is published to the store.
func (s *DownloadService) Download() error {
	batchID := uuid.NewString()
	start := time.Now()
	s.logger.Info("Starting table download", zap.String("batch_id", batchID))

	tables, err := s.repo.DownloadTables(
		TableSubject,
		TableVisitDates,
		TableDemographic,
		TableClinical,
		TableScales,
		TableVAQ,
		TablePromAtaxia,
	)
	if err != nil {
		return fmt.Errorf("failed to download tables: %w", err)
	}

	subject := tables[TableSubject]
	session := tables[TableVisitDates]
	sessionView, err := session.Select(ColumnSubjectID, ColumnEventName, ColumnVisitDate)
	if err != nil {
		return fmt.Errorf("failed to build session view: %w", err)
	}

	// Each join reads the shared immutable session view; nothing mutates it.
	joined := make(map[string]*frame.Frame, len(ancillaryJoins))
	for _, aj := range ancillaryJoins {
		result, err := frame.FuzzyJoinDate(
			sessionView, tables[aj.table],
			[]string{ColumnSubjectID},
			ColumnVisitDate, aj.dateColumn,
			aj.offsetColumn,
			frame.JoinLeft,
		)
		if err != nil {
			return fmt.Errorf("failed to join %s with sessions: %w", aj.table, err)
		}
		joined[aj.result] = result
	}

	// Publish only after every result is computed.
	s.results.Set(ResultSubject, subject)
	s.results.Set(ResultSession, session)
	for _, aj := range ancillaryJoins {
		s.results.Set(aj.result, joined[aj.result])
	}

	s.logger.Info("Table download complete",
		zap.String("batch_id", batchID),
		zap.Int("sessions", session.NumRows()),
		zap.Duration("elapsed", time.Since(start)))
	return nil
}

// Table returns a cached result table by its result name.
func (s *DownloadService) Table(name string) (*frame.Frame, error) {
	return s.results.Get(name)
}

// TestSubjects returns the subject ids classified as test subjects.
// With useCache a previously fetched list is reused; without it the
// database is re-queried and the cache overwritten.
func (s *DownloadService) TestSubjects(useCache bool) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if useCache && s.testSubjects != nil {
		return s.testSubjects, nil
	}

	subjects, err := s.repo.TestSubjects(TableConsent)
	if err != nil {
		return nil, err
	}
	if subjects == nil {
		subjects = []string{}
	}
	s.testSubjects = subjects
	return subjects, nil
}
