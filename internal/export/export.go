package export

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"
	"github.com/xuri/excelize/v2"

	"campusrides/internal/domain"
	"campusrides/internal/models"
)

const sheetName = "Bookings"

// Exporter writes the booking schedule for a date range to an xlsx file.
type Exporter struct {
	store  domain.Store
	path   string
	logger *zerolog.Logger
}

func New(store domain.Store, path string, logger *zerolog.Logger) *Exporter {
	return &Exporter{store: store, path: path, logger: logger}
}

// ExportSchedule creates an xlsx file covering [startDate, endDate] and
// returns its path.
func (e *Exporter) ExportSchedule(ctx context.Context, startDate, endDate time.Time) (string, error) {
	if err := os.MkdirAll(e.path, 0o755); err != nil {
		return "", fmt.Errorf("error creating export directory: %v", err)
	}

	entries, err := e.store.ListScheduleRange(ctx, startDate, endDate)
	if err != nil {
		return "", fmt.Errorf("error getting schedule: %v", err)
	}

	f := excelize.NewFile()
	defer f.Close()

	index, err := f.NewSheet(sheetName)
	if err != nil {
		return "", fmt.Errorf("error creating sheet: %v", err)
	}
	f.SetActiveSheet(index)

	_ = f.SetCellValue(sheetName, "A1", fmt.Sprintf("Bookings: %s - %s",
		startDate.Format("02.01.2006"), endDate.Format("02.01.2006")))

	headers := []string{
		"Reference", "Ride", "Pickup", "Destination", "Date", "Time",
		"Rider ID", "Seats", "Total", "Status", "Payment",
	}
	for i, header := range headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 2)
		_ = f.SetCellValue(sheetName, cell, header)
	}
	headerStyle, _ := f.NewStyle(&excelize.Style{
		Fill: excelize.Fill{Type: "pattern", Color: []string{"#DDEBF7"}, Pattern: 1},
		Font: &excelize.Font{Bold: true},
	})
	firstHeader, _ := excelize.CoordinatesToCellName(1, 2)
	lastHeader, _ := excelize.CoordinatesToCellName(len(headers), 2)
	_ = f.SetCellStyle(sheetName, firstHeader, lastHeader, headerStyle)

	for i, entry := range entries {
		row := i + 3
		booking := entry.Booking
		_ = f.SetCellValue(sheetName, fmt.Sprintf("A%d", row), booking.Reference())
		_ = f.SetCellValue(sheetName, fmt.Sprintf("B%d", row), booking.RideID)
		_ = f.SetCellValue(sheetName, fmt.Sprintf("C%d", row), entry.PickupLocation)
		_ = f.SetCellValue(sheetName, fmt.Sprintf("D%d", row), entry.Destination)
		_ = f.SetCellValue(sheetName, fmt.Sprintf("E%d", row), entry.RideDate.Format("02.01.2006"))
		_ = f.SetCellValue(sheetName, fmt.Sprintf("F%d", row), entry.RideTime)
		_ = f.SetCellValue(sheetName, fmt.Sprintf("G%d", row), booking.RiderID)
		_ = f.SetCellValue(sheetName, fmt.Sprintf("H%d", row), booking.SeatsBooked)
		_ = f.SetCellValue(sheetName, fmt.Sprintf("I%d", row), booking.TotalPrice)
		_ = f.SetCellValue(sheetName, fmt.Sprintf("J%d", row), booking.Status)
		_ = f.SetCellValue(sheetName, fmt.Sprintf("K%d", row), booking.PaymentStatus)

		if styleID, err := e.statusStyle(f, booking.Status); err == nil {
			first := fmt.Sprintf("A%d", row)
			last := fmt.Sprintf("K%d", row)
			_ = f.SetCellStyle(sheetName, first, last, styleID)
		}
	}

	_ = f.SetColWidth(sheetName, "A", "A", 14)
	_ = f.SetColWidth(sheetName, "C", "D", 22)
	_ = f.SetColWidth(sheetName, "E", "F", 12)

	_ = f.MergeCell(sheetName, "A1", "K1")
	titleStyle, _ := f.NewStyle(&excelize.Style{
		Font:      &excelize.Font{Bold: true, Size: 14},
		Alignment: &excelize.Alignment{Horizontal: "center"},
	})
	_ = f.SetCellStyle(sheetName, "A1", "A1", titleStyle)

	_ = f.DeleteSheet("Sheet1")

	fileName := fmt.Sprintf("bookings_%s_to_%s.xlsx",
		startDate.Format("2006-01-02"),
		endDate.Format("2006-01-02"))
	filePath := filepath.Join(e.path, fileName)

	if err := f.SaveAs(filePath); err != nil {
		return "", fmt.Errorf("error saving file: %v", err)
	}

	e.logger.Info().Str("file_path", filePath).Int("bookings", len(entries)).Msg("schedule export created")
	return filePath, nil
}

func (e *Exporter) statusStyle(f *excelize.File, status string) (int, error) {
	var color string
	switch status {
	case models.StatusConfirmed, models.StatusCompleted:
		color = "#C6EFCE"
	case models.StatusPending:
		color = "#FFEB9C"
	case models.StatusCancelled:
		color = "#FFC7CE"
	default:
		color = "#FFFFFF"
	}
	return f.NewStyle(&excelize.Style{
		Fill: excelize.Fill{Type: "pattern", Color: []string{color}, Pattern: 1},
	})
}
