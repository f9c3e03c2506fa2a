package history

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"gibster/internal/models"

	"github.com/xuri/excelize/v2"
)

const (
	sheetJobs = "Jobs"
	sheetLogs = "Logs"
)

var jobHeaders = []string{"Job ID", "Status", "Started", "Completed", "Bookings", "Manual", "Progress", "Error"}
var logHeaders = []string{"Job ID", "Time", "Level", "Message"}

// ExportXLSX writes the job list and, when given, their logs to a workbook at path.
func ExportXLSX(path string, jobs []models.SyncJob, logs map[string][]models.SyncJobLog) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("error creating export directory: %w", err)
		}
	}

	f := excelize.NewFile()
	defer f.Close()

	index, err := f.NewSheet(sheetJobs)
	if err != nil {
		return fmt.Errorf("error creating sheet: %w", err)
	}
	f.SetActiveSheet(index)

	headerStyle, _ := f.NewStyle(&excelize.Style{
		Fill:      excelize.Fill{Type: "pattern", Color: []string{"#DDEBF7"}, Pattern: 1},
		Font:      &excelize.Font{Bold: true},
		Alignment: &excelize.Alignment{Horizontal: "center"},
	})

	writeHeaders(f, sheetJobs, jobHeaders, headerStyle)
	for i, job := range jobs {
		row := i + 2
		values := []any{
			job.ID,
			string(job.Status),
			formatTime(job.StartedAt.Time),
			formatOptionalTime(job.CompletedAt),
			job.BookingsSynced,
			job.TriggeredManually,
			job.ProgressText(),
			job.ErrorText(),
		}
		for col, v := range values {
			cell, _ := excelize.CoordinatesToCellName(col+1, row)
			_ = f.SetCellValue(sheetJobs, cell, v)
		}
		if style, ok := statusStyle(f, job.Status); ok {
			cell, _ := excelize.CoordinatesToCellName(2, row)
			_ = f.SetCellStyle(sheetJobs, cell, cell, style)
		}
	}
	_ = f.SetColWidth(sheetJobs, "A", "A", 38)
	_ = f.SetColWidth(sheetJobs, "B", "F", 14)
	_ = f.SetColWidth(sheetJobs, "G", "H", 40)

	if len(logs) > 0 {
		if _, err := f.NewSheet(sheetLogs); err != nil {
			return fmt.Errorf("error creating sheet: %w", err)
		}
		writeHeaders(f, sheetLogs, logHeaders, headerStyle)

		jobIDs := make([]string, 0, len(logs))
		for id := range logs {
			jobIDs = append(jobIDs, id)
		}
		sort.Strings(jobIDs)

		row := 2
		for _, id := range jobIDs {
			for _, entry := range logs[id] {
				values := []any{id, formatTime(entry.Timestamp.Time), string(entry.Level), entry.Message}
				for col, v := range values {
					cell, _ := excelize.CoordinatesToCellName(col+1, row)
					_ = f.SetCellValue(sheetLogs, cell, v)
				}
				row++
			}
		}
		_ = f.SetColWidth(sheetLogs, "A", "A", 38)
		_ = f.SetColWidth(sheetLogs, "B", "C", 20)
		_ = f.SetColWidth(sheetLogs, "D", "D", 80)
	}

	// Удаляем стандартный лист
	_ = f.DeleteSheet("Sheet1")

	if err := f.SaveAs(path); err != nil {
		return fmt.Errorf("error saving file: %w", err)
	}
	return nil
}

func writeHeaders(f *excelize.File, sheet string, headers []string, style int) {
	for i, h := range headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		_ = f.SetCellValue(sheet, cell, h)
		_ = f.SetCellStyle(sheet, cell, cell, style)
	}
}

func statusStyle(f *excelize.File, status models.JobStatus) (int, bool) {
	var color string
	switch status {
	case models.JobCompleted:
		color = "#E2EFDA"
	case models.JobFailed:
		color = "#F8CBAD"
	case models.JobPending, models.JobRunning:
		color = "#FFF2CC"
	default:
		return 0, false
	}
	style, err := f.NewStyle(&excelize.Style{
		Fill: excelize.Fill{Type: "pattern", Color: []string{color}, Pattern: 1},
	})
	if err != nil {
		return 0, false
	}
	return style, true
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format("2006-01-02 15:04:05")
}

func formatOptionalTime(t *models.Timestamp) string {
	if t == nil {
		return ""
	}
	return formatTime(t.Time)
}
