package api

import (
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/xuri/excelize/v2"
)

// handleScheduleExport renders the reservation schedule for a range as
// an xlsx workbook. With save=true a copy is also written under the
// configured export directory.
func (s *Server) handleScheduleExport(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	from, to, err := parseRange(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	list, err := s.reservations.ListInRange(r.Context(), from, to)
	if err != nil {
		writeError(w, statusForError(err), err.Error())
		return
	}

	f := excelize.NewFile()
	defer f.Close()

	const sheetName = "Schedule"
	index, err := f.NewSheet(sheetName)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "error creating sheet")
		return
	}
	f.SetActiveSheet(index)

	_ = f.SetCellValue(sheetName, "A1", fmt.Sprintf("Schedule: %s - %s",
		from.Format("2006-01-02"), to.Format("2006-01-02")))
	_ = f.MergeCell(sheetName, "A1", "H1")

	titleStyle, _ := f.NewStyle(&excelize.Style{
		Font:      &excelize.Font{Bold: true, Size: 14},
		Alignment: &excelize.Alignment{Horizontal: "center"},
	})
	_ = f.SetCellStyle(sheetName, "A1", "A1", titleStyle)

	headers := []string{"ID", "Room", "Guest", "Party", "Start", "End", "Status", "Amount"}
	headerStyle, _ := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	for i, h := range headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 2)
		_ = f.SetCellValue(sheetName, cell, h)
		_ = f.SetCellStyle(sheetName, cell, cell, headerStyle)
	}

	for row, res := range list {
		values := []any{
			res.ID,
			res.RoomName,
			res.GuestName,
			res.PartySize,
			res.StartTime.Format("2006-01-02 15:04"),
			res.EndTime.Format("15:04"),
			res.Status,
			float64(res.AmountCents) / 100,
		}
		for col, v := range values {
			cell, _ := excelize.CoordinatesToCellName(col+1, row+3)
			_ = f.SetCellValue(sheetName, cell, v)
		}
	}

	_ = f.SetColWidth(sheetName, "B", "C", 22)
	_ = f.SetColWidth(sheetName, "E", "F", 18)
	_ = f.DeleteSheet("Sheet1")

	if r.URL.Query().Get("save") == "true" && s.cfg.Exports.Path != "" {
		if err := s.saveExport(f, from, to); err != nil {
			s.logger.Warn().Err(err).Msg("export save failed")
		}
	}

	fileName := fmt.Sprintf("schedule_%s_to_%s.xlsx", from.Format("2006-01-02"), to.Format("2006-01-02"))
	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", fileName))
	if err := f.Write(w); err != nil {
		s.logger.Error().Err(err).Msg("error writing xlsx response")
	}
}

func (s *Server) saveExport(f *excelize.File, from, to time.Time) error {
	if err := os.MkdirAll(s.cfg.Exports.Path, 0o755); err != nil {
		return fmt.Errorf("error creating export directory: %v", err)
	}
	fileName := fmt.Sprintf("schedule_%s_to_%s.xlsx", from.Format("2006-01-02"), to.Format("2006-01-02"))
	return f.SaveAs(filepath.Join(s.cfg.Exports.Path, fileName))
}
