package export

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"courtbook/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

type fakeSource struct {
	reservations []*models.ReservationDetail
	payments     []*models.PaymentDetail
	err          error
}

func (f *fakeSource) ListReservationsDetailed(ctx context.Context) ([]*models.ReservationDetail, error) {
	return f.reservations, f.err
}

func (f *fakeSource) ListPaymentsDetailed(ctx context.Context) ([]*models.PaymentDetail, error) {
	return f.payments, f.err
}

func sampleSource() *fakeSource {
	start := time.Date(2026, 5, 4, 10, 0, 0, 0, time.UTC)
	return &fakeSource{
		reservations: []*models.ReservationDetail{{
			Reservation: models.Reservation{
				ID: 1, UserID: 7, ResourceID: 2,
				StartTime: start, EndTime: start.Add(2 * time.Hour),
				State: models.ReservationPaid, CreatedAt: start.Add(-time.Hour),
			},
			ResourceName: "Court 2",
			UserEmail:    "player@example.com",
		}},
		payments: []*models.PaymentDetail{{
			Payment: models.Payment{
				ID: 3, UserID: 7, ReservationID: 1, Amount: 5100, Currency: "USD",
				State: models.PaymentConfirmed, CreatedAt: start.Add(-time.Hour),
			},
			GatewayRef:   "sandbox_abc",
			ResourceName: "Court 2",
			StartTime:    start,
		}},
	}
}

func TestWriteReport(t *testing.T) {
	e := NewExporter(sampleSource(), t.TempDir(), time.UTC)

	var buf bytes.Buffer
	require.NoError(t, e.WriteReport(context.Background(), &buf))

	f, err := excelize.OpenReader(&buf)
	require.NoError(t, err)
	defer f.Close()

	assert.Equal(t, []string{reservationsSheet, paymentsSheet}, f.GetSheetList())

	v, err := f.GetCellValue(reservationsSheet, "A1")
	require.NoError(t, err)
	assert.Equal(t, "ID", v)

	v, _ = f.GetCellValue(reservationsSheet, "D2")
	assert.Equal(t, "Court 2", v)
	v, _ = f.GetCellValue(reservationsSheet, "E2")
	assert.Equal(t, "2026-05-04 10:00", v)
	v, _ = f.GetCellValue(reservationsSheet, "G2")
	assert.Equal(t, "2", v)
	v, _ = f.GetCellValue(reservationsSheet, "H2")
	assert.Equal(t, models.ReservationPaid, v)

	v, _ = f.GetCellValue(paymentsSheet, "F2")
	assert.Equal(t, "51", v)
	v, _ = f.GetCellValue(paymentsSheet, "I2")
	assert.Equal(t, "sandbox_abc", v)
}

func TestWriteReportEmpty(t *testing.T) {
	e := NewExporter(&fakeSource{}, t.TempDir(), nil)

	var buf bytes.Buffer
	require.NoError(t, e.WriteReport(context.Background(), &buf))

	f, err := excelize.OpenReader(&buf)
	require.NoError(t, err)
	defer f.Close()

	rows, err := f.GetRows(paymentsSheet)
	require.NoError(t, err)
	assert.Len(t, rows, 1)
}

func TestWriteReportSourceError(t *testing.T) {
	e := NewExporter(&fakeSource{err: errors.New("db down")}, t.TempDir(), time.UTC)
	err := e.WriteReport(context.Background(), &bytes.Buffer{})
	assert.ErrorContains(t, err, "db down")
}

func TestSaveReport(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "exports")
	e := NewExporter(sampleSource(), dir, time.UTC)
	e.now = func() time.Time { return time.Date(2026, 5, 4, 12, 30, 0, 0, time.UTC) }

	path, err := e.SaveReport(context.Background())
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "courtbook_report_20260504_123000.xlsx"), path)

	_, err = os.Stat(path)
	assert.NoError(t, err)
}
