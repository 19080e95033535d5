package services

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"foamcrm/internal/metrics"
	"foamcrm/internal/models"
	"foamcrm/pkg/cloudtools"

	"github.com/sirupsen/logrus"
)

// 云同步操作名，用于指标分桶和状态上报
const (
	OpBackupToDrive   = "backup_to_drive"
	OpExportToSheets  = "export_to_sheets"
	OpCreateDocReport = "create_doc_report"
	OpEmailReport     = "email_report"
)

// CloudSyncService runs the four one-shot Google Workspace operations:
// Drive backup, Sheets export, Docs report, emailed report. One
// operation at a time; concurrent starts are refused with
// ErrSyncInProgress rather than queued. Progress goes to the status
// board and the websocket feed.
type CloudSyncService struct {
	customers *CustomerService
	jobs      *JobService
	company   *CompanyService
	tools     cloudtools.WorkspaceTools
	board     *StatusBoard
	feed      *StatusFeed
	logger    *logrus.Logger
	now       func() time.Time

	mu     sync.Mutex
	active string
}

// NewCloudSyncService 创建云同步服务。feed 可为 nil（无订阅端场景）。
func NewCloudSyncService(
	customers *CustomerService,
	jobs *JobService,
	company *CompanyService,
	tools cloudtools.WorkspaceTools,
	board *StatusBoard,
	feed *StatusFeed,
	logger *logrus.Logger,
) *CloudSyncService {
	if logger == nil {
		logger = logrus.New()
	}
	if board == nil {
		board = NewStatusBoard(0)
	}
	return &CloudSyncService{
		customers: customers,
		jobs:      jobs,
		company:   company,
		tools:     tools,
		board:     board,
		feed:      feed,
		logger:    logger,
		now:       time.Now,
	}
}

// ActiveOp returns the running operation name, "" when idle.
func (s *CloudSyncService) ActiveOp() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active
}

// Board returns the status board the service reports through.
func (s *CloudSyncService) Board() *StatusBoard {
	return s.board
}

// tryStart claims the single active slot. The returned release func
// must run regardless of outcome so the user can retry after failures.
func (s *CloudSyncService) tryStart(op string) (func(), error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.active != "" {
		return nil, fmt.Errorf("%s is running: %w", s.active, ErrSyncInProgress)
	}
	s.active = op
	return func() {
		s.mu.Lock()
		s.active = ""
		s.mu.Unlock()
	}, nil
}

func (s *CloudSyncService) emitStarted(op string) {
	if s.feed != nil {
		s.feed.Broadcast(FeedEventSyncStarted, map[string]interface{}{"operation": op})
	}
}

func (s *CloudSyncService) emitFinished(op, outcome string) {
	if s.feed != nil {
		s.feed.Broadcast(FeedEventSyncFinished, map[string]interface{}{
			"operation": op,
			"outcome":   outcome,
		})
	}
}

// connect performs the lazy handshake behind the persistent
// "Connecting..." phase.
func (s *CloudSyncService) connect(ctx context.Context) error {
	s.board.Set("Connecting...", StatusLevelInfo, 0)
	if err := s.tools.Connect(ctx); err != nil {
		return fmt.Errorf("%w: %v", ErrNotConnected, err)
	}
	return nil
}

// skip ends an operation on a pre-flight short-circuit: transient info
// status, sentinel error back to the handler, nothing logged as a
// failure and no tool call made.
func (s *CloudSyncService) skip(op, text string, sentinel error) error {
	s.board.SetTransient(text, StatusLevelInfo)
	s.emitFinished(op, "skipped")
	s.logger.WithField("operation", op).Info(text)
	return sentinel
}

// fail ends an operation on an error: transient failure status, the
// error logged with operation context, wrapped error returned.
func (s *CloudSyncService) fail(op, display string, err error) error {
	s.board.SetTransient("❌ "+display+" failed. Check server logs.", StatusLevelError)
	metrics.IncSyncFailure(op)
	s.emitFinished(op, "failure")
	s.logger.WithFields(logrus.Fields{
		"operation": op,
		"error":     err.Error(),
	}).Error("Cloud sync operation failed")
	return fmt.Errorf("%s: %w", op, err)
}

// succeed ends an operation with a transient checkmark status.
func (s *CloudSyncService) succeed(op, text string) (string, error) {
	s.board.SetTransient(text, StatusLevelSuccess)
	metrics.IncSyncSuccess(op)
	s.emitFinished(op, "success")
	s.logger.WithField("operation", op).Info("Cloud sync operation completed")
	return text, nil
}

// BackupToDrive writes two date-stamped JSON files to Drive: the full
// customer list, then all jobs with the PDF blobs left out. There is no
// rollback: a failure on the second file reports full failure even
// though the first already exists.
func (s *CloudSyncService) BackupToDrive(ctx context.Context) (string, error) {
	release, err := s.tryStart(OpBackupToDrive)
	if err != nil {
		return "", err
	}
	defer release()

	metrics.IncSyncAttempt(OpBackupToDrive)
	s.emitStarted(OpBackupToDrive)

	if err := s.connect(ctx); err != nil {
		return "", s.fail(OpBackupToDrive, "Backup", err)
	}

	s.board.Set("Backing up customers...", StatusLevelInfo, 0)
	customers, err := s.customers.ListAllCustomers(ctx)
	if err != nil {
		return "", s.fail(OpBackupToDrive, "Backup", err)
	}
	customerJSON, err := json.MarshalIndent(customers, "", "  ")
	if err != nil {
		return "", s.fail(OpBackupToDrive, "Backup", err)
	}

	date := s.now().Format("2006-01-02")
	metrics.IncToolCall(cloudtools.ToolCreateDriveFile)
	if _, err := s.tools.CreateDriveFile(ctx, "customers-backup-"+date+".json", string(customerJSON)); err != nil {
		return "", s.fail(OpBackupToDrive, "Backup", fmt.Errorf("%w: %v", ErrToolCall, err))
	}

	s.board.Set("Backing up jobs...", StatusLevelInfo, 0)
	jobs, err := s.jobs.ListAllJobs(ctx)
	if err != nil {
		return "", s.fail(OpBackupToDrive, "Backup", err)
	}
	jobsJSON, err := json.MarshalIndent(jobs, "", "  ")
	if err != nil {
		return "", s.fail(OpBackupToDrive, "Backup", err)
	}

	metrics.IncToolCall(cloudtools.ToolCreateDriveFile)
	if _, err := s.tools.CreateDriveFile(ctx, "jobs-backup-"+date+".json", string(jobsJSON)); err != nil {
		return "", s.fail(OpBackupToDrive, "Backup", fmt.Errorf("%w: %v", ErrToolCall, err))
	}

	return s.succeed(OpBackupToDrive, "✅ Backup saved to Google Drive!")
}

// sheetRecord is one exported job row. Field order is the spreadsheet
// column order.
type sheetRecord struct {
	EstimateNumber  string  `json:"Estimate #"`
	CustomerName    string  `json:"Customer Name"`
	CustomerAddress string  `json:"Customer Address"`
	Status          string  `json:"Status"`
	Created         string  `json:"Created"`
	QuoteAmount     float64 `json:"Quote Amount"`
	BoardFeet       float64 `json:"Board Feet"`
	OpenCellSets    float64 `json:"Open Cell Sets"`
	ClosedCellSets  float64 `json:"Closed Cell Sets"`
}

// ExportToSheets flattens every job into a spreadsheet row and creates
// one date-titled Google Sheet. Zero jobs short-circuits before any
// tool call.
func (s *CloudSyncService) ExportToSheets(ctx context.Context) (string, error) {
	release, err := s.tryStart(OpExportToSheets)
	if err != nil {
		return "", err
	}
	defer release()

	metrics.IncSyncAttempt(OpExportToSheets)
	s.emitStarted(OpExportToSheets)

	if err := s.connect(ctx); err != nil {
		return "", s.fail(OpExportToSheets, "Export", err)
	}

	s.board.Set("Exporting jobs...", StatusLevelInfo, 0)
	jobs, err := s.jobs.ListAllJobs(ctx)
	if err != nil {
		return "", s.fail(OpExportToSheets, "Export", err)
	}
	if len(jobs) == 0 {
		return "", s.skip(OpExportToSheets, "No jobs to export yet.", ErrNoJobs)
	}
	customers, err := s.customers.ListAllCustomers(ctx)
	if err != nil {
		return "", s.fail(OpExportToSheets, "Export", err)
	}
	byID := customersByID(customers)

	records := make([]sheetRecord, 0, len(jobs))
	for _, job := range jobs {
		name, address := "N/A", "N/A"
		if c, ok := byID[job.CustomerID]; ok {
			name, address = c.Name, c.Address
		}
		records = append(records, sheetRecord{
			EstimateNumber:  job.EstimateNumber,
			CustomerName:    name,
			CustomerAddress: address,
			Status:          string(job.Status),
			Created:         job.CreatedAt.Format("2006-01-02"),
			QuoteAmount:     job.CostsData.FinalQuote,
			BoardFeet:       job.CalcData.TotalBoardFeetWithWaste,
			OpenCellSets:    round2(job.CalcData.OCSets),
			ClosedCellSets:  round2(job.CalcData.CCSets),
		})
	}
	payload, err := json.Marshal(records)
	if err != nil {
		return "", s.fail(OpExportToSheets, "Export", err)
	}

	title := "FoamCRM Jobs Export " + s.now().Format("2006-01-02")
	metrics.IncToolCall(cloudtools.ToolCreateSpreadsheet)
	if _, err := s.tools.CreateSpreadsheet(ctx, title, string(payload)); err != nil {
		return "", s.fail(OpExportToSheets, "Export", fmt.Errorf("%w: %v", ErrToolCall, err))
	}

	return s.succeed(OpExportToSheets, "✅ Jobs exported to Google Sheets!")
}

// CreateDocReport renders the business report into a new Google Doc.
func (s *CloudSyncService) CreateDocReport(ctx context.Context) (string, error) {
	release, err := s.tryStart(OpCreateDocReport)
	if err != nil {
		return "", err
	}
	defer release()

	metrics.IncSyncAttempt(OpCreateDocReport)
	s.emitStarted(OpCreateDocReport)

	if err := s.connect(ctx); err != nil {
		return "", s.fail(OpCreateDocReport, "Report", err)
	}

	s.board.Set("Generating report...", StatusLevelInfo, 0)
	report, err := s.businessReport(ctx)
	if err != nil {
		return "", s.fail(OpCreateDocReport, "Report", err)
	}

	title := "FoamCRM Business Report " + s.now().Format("2006-01-02")
	metrics.IncToolCall(cloudtools.ToolCreateDocument)
	if _, err := s.tools.CreateDocument(ctx, title, report); err != nil {
		return "", s.fail(OpCreateDocReport, "Report", fmt.Errorf("%w: %v", ErrToolCall, err))
	}

	return s.succeed(OpCreateDocReport, "✅ Report created in Google Docs!")
}

// EmailReport mails the business report to the configured company
// email. A missing email short-circuits before any tool call.
func (s *CloudSyncService) EmailReport(ctx context.Context) (string, error) {
	release, err := s.tryStart(OpEmailReport)
	if err != nil {
		return "", err
	}
	defer release()

	metrics.IncSyncAttempt(OpEmailReport)
	s.emitStarted(OpEmailReport)

	if err := s.connect(ctx); err != nil {
		return "", s.fail(OpEmailReport, "Email report", err)
	}

	s.board.Set("Sending report...", StatusLevelInfo, 0)
	settings, err := s.company.GetSettings(ctx)
	if err != nil {
		return "", s.fail(OpEmailReport, "Email report", err)
	}
	if !settings.HasEmail() {
		return "", s.skip(OpEmailReport, "⚠️ Company email not set. Add it in Settings first.", ErrNoCompanyEmail)
	}

	report, err := s.businessReport(ctx)
	if err != nil {
		return "", s.fail(OpEmailReport, "Email report", err)
	}

	to := strings.TrimSpace(settings.Email)
	subject := "FoamCRM Business Report " + s.now().Format("2006-01-02")
	metrics.IncToolCall(cloudtools.ToolSendEmail)
	if _, err := s.tools.SendEmail(ctx, to, subject, report); err != nil {
		return "", s.fail(OpEmailReport, "Email report", fmt.Errorf("%w: %v", ErrToolCall, err))
	}

	return s.succeed(OpEmailReport, "✅ Report sent to "+to+"!")
}

// businessReport loads the CRM totals and renders the shared text
// report used by the Docs and email operations.
func (s *CloudSyncService) businessReport(ctx context.Context) (string, error) {
	customers, err := s.customers.ListAllCustomers(ctx)
	if err != nil {
		return "", err
	}
	jobs, err := s.jobs.ListAllJobs(ctx)
	if err != nil {
		return "", err
	}
	return buildBusinessReport(customers, jobs, s.now()), nil
}

// buildBusinessReport renders the plain-text business summary: totals,
// money in and money owed, and the five most recent jobs.
func buildBusinessReport(customers []models.Customer, jobs []models.Job, generatedAt time.Time) string {
	var revenue, receivables float64
	for _, job := range jobs {
		switch job.Status {
		case models.JobStatusPaid:
			revenue += job.CostsData.FinalQuote
		case models.JobStatusInvoiced:
			receivables += job.CostsData.FinalQuote
		}
	}

	recent := make([]models.Job, len(jobs))
	copy(recent, jobs)
	sort.Slice(recent, func(i, j int) bool {
		return recent[i].CreatedAt.After(recent[j].CreatedAt)
	})
	if len(recent) > 5 {
		recent = recent[:5]
	}

	byID := customersByID(customers)

	b := &strings.Builder{}
	fmt.Fprintf(b, "FoamCRM Business Report\n")
	fmt.Fprintf(b, "Generated: %s\n\n", generatedAt.Format("2006-01-02 15:04"))
	fmt.Fprintf(b, "Customers: %d\n", len(customers))
	fmt.Fprintf(b, "Jobs: %d\n", len(jobs))
	fmt.Fprintf(b, "Total Revenue (paid): $%.2f\n", revenue)
	fmt.Fprintf(b, "Outstanding Receivables (invoiced): $%.2f\n\n", receivables)

	fmt.Fprintf(b, "Recent Jobs:\n")
	if len(recent) == 0 {
		fmt.Fprintf(b, "No jobs yet.\n")
		return b.String()
	}
	for _, job := range recent {
		name := "N/A"
		if c, ok := byID[job.CustomerID]; ok {
			name = c.Name
		}
		fmt.Fprintf(b, "- %s | %s | %s | $%.2f\n", job.EstimateNumber, name, job.Status, job.CostsData.FinalQuote)
	}
	return b.String()
}

func customersByID(customers []models.Customer) map[uint]*models.Customer {
	byID := make(map[uint]*models.Customer, len(customers))
	for i := range customers {
		byID[customers[i].ID] = &customers[i]
	}
	return byID
}

// round2 rounds to two decimals, half away from zero. Rounding runs on
// the value's shortest decimal form, so a stored 1.005 (binary
// ~1.00499...) still rounds up to 1.01 the way the printed number
// suggests.
func round2(v float64) float64 {
	s := strconv.FormatFloat(v, 'f', -1, 64)
	neg := strings.HasPrefix(s, "-")
	if neg {
		s = s[1:]
	}
	intPart, fracPart, _ := strings.Cut(s, ".")
	for len(fracPart) < 3 {
		fracPart += "0"
	}
	cents, err := strconv.ParseInt(intPart+fracPart[:2], 10, 64)
	if err != nil {
		// out of int64 range; two decimals are meaningless out there
		return v
	}
	if fracPart[2] >= '5' {
		cents++
	}
	out := float64(cents) / 100
	if neg {
		out = -out
	}
	return out
}
