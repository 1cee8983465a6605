package approval

import (
	"bytes"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/xuri/excelize/v2"
)

// InboxExporter renders an inbox listing as an xlsx workbook.
type InboxExporter struct{}

func NewInboxExporter() *InboxExporter {
	return &InboxExporter{}
}

var inboxColumns = []string{
	"Document Number", "Title", "Drafter", "Status",
	"My Step", "My Step Status", "Submitted At", "Approved At",
}

// Export renders the documents into a single-sheet workbook and returns the
// file bytes plus a timestamped filename.
func (e *InboxExporter) Export(docs []Document, filter FilterType, viewerID uuid.UUID) ([]byte, string, error) {
	f := excelize.NewFile()
	defer f.Close()

	sheet := "Documents"
	f.SetSheetName("Sheet1", sheet)

	headerStyle, err := f.NewStyle(&excelize.Style{
		Font:      &excelize.Font{Bold: true, Color: "FFFFFF"},
		Fill:      excelize.Fill{Type: "pattern", Pattern: 1, Color: []string{"4472C4"}},
		Alignment: &excelize.Alignment{Horizontal: "center"},
	})
	if err != nil {
		return nil, "", fmt.Errorf("failed to create header style: %w", err)
	}

	for i, col := range inboxColumns {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		if err := f.SetCellValue(sheet, cell, col); err != nil {
			return nil, "", fmt.Errorf("failed to write header: %w", err)
		}
	}
	lastCol, _ := excelize.CoordinatesToCellName(len(inboxColumns), 1)
	if err := f.SetCellStyle(sheet, "A1", lastCol, headerStyle); err != nil {
		return nil, "", fmt.Errorf("failed to style header: %w", err)
	}

	for row, doc := range docs {
		myStep, myStatus := viewerStepSummary(&doc, viewerID)
		values := []any{
			derefString(doc.DocumentNumber),
			doc.Title,
			doc.DrafterName,
			string(doc.Status),
			myStep,
			myStatus,
			formatTime(doc.SubmittedAt),
			formatTime(doc.ApprovedAt),
		}
		for i, v := range values {
			cell, _ := excelize.CoordinatesToCellName(i+1, row+2)
			if err := f.SetCellValue(sheet, cell, v); err != nil {
				return nil, "", fmt.Errorf("failed to write row %d: %w", row+2, err)
			}
		}
	}

	f.SetColWidth(sheet, "A", "A", 18)
	f.SetColWidth(sheet, "B", "B", 40)
	f.SetColWidth(sheet, "C", "H", 16)
	f.SetPanes(sheet, &excelize.Panes{Freeze: true, YSplit: 1, ActivePane: "bottomLeft"})

	var buf bytes.Buffer
	if err := f.Write(&buf); err != nil {
		return nil, "", fmt.Errorf("failed to write workbook: %w", err)
	}

	filename := fmt.Sprintf("documents_%s_%s.xlsx", filter, time.Now().Format("20060102_150405"))
	return buf.Bytes(), filename, nil
}

// viewerStepSummary describes the viewer's own step on a document, if any.
// With several steps the earliest non-approved one wins, matching how the
// chain evaluator picks the governing step.
func viewerStepSummary(doc *Document, viewerID uuid.UUID) (string, string) {
	var mine *ApprovalStep
	for _, s := range sortByStepOrder(doc.Steps) {
		if s.ApproverID != viewerID {
			continue
		}
		step := s
		if mine == nil || (mine.Status == StepApproved && s.Status != StepApproved) {
			mine = &step
		}
	}
	if mine == nil {
		return "", ""
	}
	return string(mine.StepType), string(mine.Status)
}

func derefString(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func formatTime(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.Format("2006-01-02 15:04")
}
