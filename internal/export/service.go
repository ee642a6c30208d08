// Package export renders stored recommendations as XLSX workbooks.
package export

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/xuri/excelize/v2"

	"github.com/joseph-ayodele/care-records/constants"
	"github.com/joseph-ayodele/care-records/internal/common"
	"github.com/joseph-ayodele/care-records/internal/entity"
	"github.com/joseph-ayodele/care-records/internal/repository"
)

const (
	SheetRecommendations = "Recommendations"
	SheetSummary         = "Summary"
)

type RecommendationLister interface {
	ListRecommendations(ctx context.Context, f repository.RecommendationFilter) ([]entity.Recommendation, error)
}

// Scope selects what to export. At least one of DocumentID or PatientID is required.
type Scope struct {
	FamilyID   uuid.UUID
	DocumentID uuid.UUID
	PatientID  uuid.UUID
	Status     string
}

type Service struct {
	recs   RecommendationLister
	logger *slog.Logger
}

func NewService(recs RecommendationLister, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{recs: recs, logger: logger}
}

var headers = []string{
	"Priority",
	"Type",
	"Title",
	"Description",
	"Status",
	"Case",
	"Confidence",
	"Source",
	"Document",
	"Medication",
}

var priorityRank = map[constants.Priority]int{
	constants.PriorityUrgent: 0,
	constants.PriorityHigh:   1,
	constants.PriorityMedium: 2,
	constants.PriorityLow:    3,
}

// ExportRecommendationsXLSX returns a workbook with one row per recommendation,
// most urgent first, plus a summary sheet of counts by priority and type.
func (s *Service) ExportRecommendationsXLSX(ctx context.Context, scope Scope) ([]byte, error) {
	start := time.Now()
	if scope.DocumentID == uuid.Nil && scope.PatientID == uuid.Nil {
		return nil, common.NewAppError("VALIDATION_ERROR", "document or patient id is required", common.ErrInvalidInput)
	}

	recs, err := s.recs.ListRecommendations(ctx, repository.RecommendationFilter{
		FamilyID:   scope.FamilyID,
		DocumentID: scope.DocumentID,
		PatientID:  scope.PatientID,
		Status:     scope.Status,
	})
	if err != nil {
		return nil, fmt.Errorf("query recommendations: %w", err)
	}
	sort.SliceStable(recs, func(i, j int) bool {
		return rank(recs[i].Priority) < rank(recs[j].Priority)
	})

	f := excelize.NewFile()
	defer func() { _ = f.Close() }()

	if err := f.SetSheetName("Sheet1", SheetRecommendations); err != nil {
		return nil, err
	}
	if err := writeRecommendations(f, recs); err != nil {
		return nil, fmt.Errorf("write recommendations sheet: %w", err)
	}
	if _, err := f.NewSheet(SheetSummary); err != nil {
		return nil, err
	}
	if err := writeSummary(f, recs); err != nil {
		return nil, fmt.Errorf("write summary sheet: %w", err)
	}
	idx, _ := f.GetSheetIndex(SheetRecommendations)
	f.SetActiveSheet(idx)

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("xlsx write: %w", err)
	}

	s.logger.Info("export.xlsx.ok",
		"document_id", scope.DocumentID,
		"patient_id", scope.PatientID,
		"rows", len(recs),
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return buf.Bytes(), nil
}

func writeRecommendations(f *excelize.File, recs []entity.Recommendation) error {
	const sheet = SheetRecommendations
	for i, h := range headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		if err := f.SetCellValue(sheet, cell, h); err != nil {
			return err
		}
	}

	for i, r := range recs {
		row := i + 2
		var kase, source, confidence string
		if m := r.Metadata; m != nil {
			kase, source = string(m.Case), m.Source
			if m.Confidence > 0 {
				confidence = fmt.Sprintf("%.2f", m.Confidence)
			}
		}
		medication := ""
		if r.MedicationID != nil {
			medication = r.MedicationID.String()
		}
		values := []any{
			string(r.Priority),
			string(r.Type),
			r.Title,
			r.Description,
			r.Status,
			kase,
			confidence,
			source,
			r.DocumentID.String(),
			medication,
		}
		cell, _ := excelize.CoordinatesToCellName(1, row)
		if err := f.SetSheetRow(sheet, cell, &values); err != nil {
			return err
		}
	}

	_ = f.SetColWidth(sheet, "A", "B", 14)
	_ = f.SetColWidth(sheet, "C", "C", 48)
	_ = f.SetColWidth(sheet, "D", "D", 60)
	_ = f.SetColWidth(sheet, "E", "H", 14)
	_ = f.SetColWidth(sheet, "I", "J", 38)
	return f.SetPanes(sheet, &excelize.Panes{Freeze: true, YSplit: 1, TopLeftCell: "A2", ActivePane: "bottomLeft"})
}

func writeSummary(f *excelize.File, recs []entity.Recommendation) error {
	const sheet = SheetSummary
	byPriority := map[constants.Priority]int{}
	byType := map[constants.RecommendationType]int{}
	for _, r := range recs {
		byPriority[r.Priority]++
		byType[r.Type]++
	}

	rows := [][]any{{"Total", len(recs)}, {}}
	rows = append(rows, []any{"Priority", "Count"})
	for _, p := range []constants.Priority{constants.PriorityUrgent, constants.PriorityHigh, constants.PriorityMedium, constants.PriorityLow} {
		rows = append(rows, []any{string(p), byPriority[p]})
	}
	rows = append(rows, []any{}, []any{"Type", "Count"})
	types := make([]string, 0, len(byType))
	for t := range byType {
		types = append(types, string(t))
	}
	sort.Strings(types)
	for _, t := range types {
		rows = append(rows, []any{t, byType[constants.RecommendationType(t)]})
	}

	for i, row := range rows {
		if len(row) == 0 {
			continue
		}
		cell, _ := excelize.CoordinatesToCellName(1, i+1)
		if err := f.SetSheetRow(sheet, cell, &row); err != nil {
			return err
		}
	}
	return f.SetColWidth(sheet, "A", "A", 18)
}

func rank(p constants.Priority) int {
	if r, ok := priorityRank[p]; ok {
		return r
	}
	return len(priorityRank)
}
