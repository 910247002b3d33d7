// Package export builds the admin xlsx report of reservations and payments.
package export

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"courtbook/internal/models"

	"github.com/xuri/excelize/v2"
)

const (
	reservationsSheet = "Reservations"
	paymentsSheet     = "Payments"
	timeLayout        = "2006-01-02 15:04"
)

var (
	reservationHeaders = []string{"ID", "User ID", "User Email", "Court", "Start", "End", "Hours", "State", "Created At"}
	paymentHeaders     = []string{"ID", "Reservation ID", "User ID", "Court", "Slot Start", "Amount", "Currency", "State", "Gateway Ref", "Created At"}
)

// Source lists everything the report covers.
type Source interface {
	ListReservationsDetailed(ctx context.Context) ([]*models.ReservationDetail, error)
	ListPaymentsDetailed(ctx context.Context) ([]*models.PaymentDetail, error)
}

type Exporter struct {
	source Source
	dir    string
	loc    *time.Location
	now    func() time.Time
}

func NewExporter(source Source, dir string, loc *time.Location) *Exporter {
	if loc == nil {
		loc = time.UTC
	}
	return &Exporter{source: source, dir: dir, loc: loc, now: time.Now}
}

// WriteReport streams the workbook to w.
func (e *Exporter) WriteReport(ctx context.Context, w io.Writer) error {
	f, err := e.build(ctx)
	if err != nil {
		return err
	}
	defer f.Close()

	if _, err := f.WriteTo(w); err != nil {
		return fmt.Errorf("write workbook: %w", err)
	}
	return nil
}

// SaveReport writes the workbook under the export directory and returns its path.
func (e *Exporter) SaveReport(ctx context.Context) (string, error) {
	f, err := e.build(ctx)
	if err != nil {
		return "", err
	}
	defer f.Close()

	if err := os.MkdirAll(e.dir, 0o755); err != nil {
		return "", fmt.Errorf("create export dir: %w", err)
	}
	path := filepath.Join(e.dir, fmt.Sprintf("courtbook_report_%s.xlsx", e.now().In(e.loc).Format("20060102_150405")))
	if err := f.SaveAs(path); err != nil {
		return "", fmt.Errorf("save workbook: %w", err)
	}
	return path, nil
}

func (e *Exporter) build(ctx context.Context) (*excelize.File, error) {
	reservations, err := e.source.ListReservationsDetailed(ctx)
	if err != nil {
		return nil, fmt.Errorf("list reservations: %w", err)
	}
	payments, err := e.source.ListPaymentsDetailed(ctx)
	if err != nil {
		return nil, fmt.Errorf("list payments: %w", err)
	}

	f := excelize.NewFile()
	if err := f.SetSheetName("Sheet1", reservationsSheet); err != nil {
		f.Close()
		return nil, err
	}
	if _, err := f.NewSheet(paymentsSheet); err != nil {
		f.Close()
		return nil, err
	}

	headerStyle, _ := f.NewStyle(&excelize.Style{
		Fill:      excelize.Fill{Type: "pattern", Color: []string{"#DDEBF7"}, Pattern: 1},
		Font:      &excelize.Font{Bold: true},
		Alignment: &excelize.Alignment{Horizontal: "center"},
	})

	if err := writeRow(f, reservationsSheet, 1, toCells(reservationHeaders)); err != nil {
		f.Close()
		return nil, err
	}
	_ = f.SetCellStyle(reservationsSheet, "A1", lastCell(len(reservationHeaders), 1), headerStyle)
	for i, r := range reservations {
		row := []interface{}{
			r.ID,
			r.UserID,
			r.UserEmail,
			r.ResourceName,
			r.StartTime.In(e.loc).Format(timeLayout),
			r.EndTime.In(e.loc).Format(timeLayout),
			r.DurationHours(),
			r.State,
			r.CreatedAt.In(e.loc).Format(timeLayout),
		}
		if err := writeRow(f, reservationsSheet, i+2, row); err != nil {
			f.Close()
			return nil, err
		}
	}

	if err := writeRow(f, paymentsSheet, 1, toCells(paymentHeaders)); err != nil {
		f.Close()
		return nil, err
	}
	_ = f.SetCellStyle(paymentsSheet, "A1", lastCell(len(paymentHeaders), 1), headerStyle)
	for i, p := range payments {
		row := []interface{}{
			p.ID,
			p.ReservationID,
			p.UserID,
			p.ResourceName,
			p.StartTime.In(e.loc).Format(timeLayout),
			float64(p.Amount) / 100,
			p.Currency,
			p.State,
			p.GatewayRef,
			p.CreatedAt.In(e.loc).Format(timeLayout),
		}
		if err := writeRow(f, paymentsSheet, i+2, row); err != nil {
			f.Close()
			return nil, err
		}
	}

	_ = f.SetColWidth(reservationsSheet, "A", "I", 18)
	_ = f.SetColWidth(paymentsSheet, "A", "J", 18)
	f.SetActiveSheet(0)
	return f, nil
}

func writeRow(f *excelize.File, sheet string, row int, values []interface{}) error {
	cell, err := excelize.CoordinatesToCellName(1, row)
	if err != nil {
		return err
	}
	return f.SetSheetRow(sheet, cell, &values)
}

func lastCell(cols, row int) string {
	cell, _ := excelize.CoordinatesToCellName(cols, row)
	return cell
}

func toCells(headers []string) []interface{} {
	out := make([]interface{}, len(headers))
	for i, h := range headers {
		out[i] = h
	}
	return out
}
