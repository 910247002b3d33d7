package google

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"regexp"
	"strconv"
	"sync"
	"time"

	"courtbook/internal/config"
	"courtbook/internal/domain"
	"courtbook/internal/models"
	"courtbook/internal/worker"

	"github.com/rs/zerolog"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/option"
	"google.golang.org/api/sheets/v4"
)

// TaskSheetUpsert mirrors one reservation row into the spreadsheet.
const TaskSheetUpsert = models.TaskSheetUpsert

const (
	sheetName       = "Reservations"
	lastColumn      = "K"
	cacheRefresh    = time.Hour
	dateLayout      = "2006-01-02"
	clockLayout     = "15:04"
	timestampLayout = "2006-01-02 15:04:05"
)

var headerRow = []interface{}{"ID", "User ID", "Court ID", "Court", "Date", "Start", "End", "Hours", "State", "Created At", "Updated At"}

var errRowNotFound = errors.New("reservation row not found")

var updatedRowRe = regexp.MustCompile(`![A-Z]+(\d+)`)

// ReservationReader loads the current reservation for a sync task.
type ReservationReader interface {
	GetReservation(ctx context.Context, id int64) (*models.Reservation, error)
}

// ReservationSheet keeps a spreadsheet tab in step with reservations. Row
// positions are cached by reservation id and rebuilt from column A.
type ReservationSheet struct {
	service       *sheets.Service
	spreadsheetID string
	reservations  ReservationReader
	catalog       domain.ResourceCatalog
	loc           *time.Location
	logger        *zerolog.Logger

	cacheMu  sync.RWMutex
	rowCache map[int64]int
}

// NewReservationSheet authenticates with the service account in
// cfg.CredentialsFile.
func NewReservationSheet(ctx context.Context, cfg config.GoogleConfig, reservations ReservationReader, catalog domain.ResourceCatalog, loc *time.Location, logger *zerolog.Logger) (*ReservationSheet, error) {
	credentialsJSON, err := os.ReadFile(cfg.CredentialsFile)
	if err != nil {
		return nil, fmt.Errorf("unable to read credentials file: %w", err)
	}

	jwtConfig, err := google.JWTConfigFromJSON(credentialsJSON, sheets.SpreadsheetsScope)
	if err != nil {
		return nil, fmt.Errorf("unable to parse credentials: %w", err)
	}

	srv, err := sheets.NewService(ctx, option.WithHTTPClient(jwtConfig.Client(ctx)))
	if err != nil {
		return nil, fmt.Errorf("unable to create Sheets service: %w", err)
	}

	return newReservationSheet(srv, cfg.ReservationsSpreadsheetID, reservations, catalog, loc, logger), nil
}

func newReservationSheet(srv *sheets.Service, spreadsheetID string, reservations ReservationReader, catalog domain.ResourceCatalog, loc *time.Location, logger *zerolog.Logger) *ReservationSheet {
	if loc == nil {
		loc = time.UTC
	}
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	l := logger.With().Str("component", "reservation_sheet").Logger()
	return &ReservationSheet{
		service:       srv,
		spreadsheetID: spreadsheetID,
		reservations:  reservations,
		catalog:       catalog,
		loc:           loc,
		logger:        &l,
		rowCache:      make(map[int64]int),
	}
}

// Start warms the row cache and refreshes it hourly until ctx is done.
func (s *ReservationSheet) Start(ctx context.Context) {
	refresh := func() {
		rctx, cancel := context.WithTimeout(ctx, 30*time.Second)
		defer cancel()
		if err := s.WarmUpCache(rctx); err != nil && ctx.Err() == nil {
			s.logger.Warn().Err(err).Msg("sheet cache warm-up failed")
		}
	}

	refresh()
	ticker := time.NewTicker(cacheRefresh)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			refresh()
		}
	}
}

// TestConnection reads the header cell.
func (s *ReservationSheet) TestConnection(ctx context.Context) error {
	_, err := s.service.Spreadsheets.Values.Get(s.spreadsheetID, sheetName+"!A1").Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("connection test failed: %w", err)
	}
	return nil
}

// WarmUpCache rebuilds the row index from the ID column.
func (s *ReservationSheet) WarmUpCache(ctx context.Context) error {
	resp, err := s.service.Spreadsheets.Values.Get(s.spreadsheetID, sheetName+"!A:A").Context(ctx).Do()
	if err != nil {
		return err
	}

	cache := make(map[int64]int, len(resp.Values))
	for i, row := range resp.Values {
		if id, ok := cellID(row); ok {
			cache[id] = i + 1
		}
	}

	s.cacheMu.Lock()
	s.rowCache = cache
	s.cacheMu.Unlock()
	return nil
}

// HandleTask is the worker handler for TaskSheetUpsert. It always writes
// the reservation's current state, so replays and reordering are harmless.
func (s *ReservationSheet) HandleTask(ctx context.Context, task models.SyncTask) error {
	r, err := s.reservations.GetReservation(ctx, task.EntityID)
	if err != nil {
		if errors.Is(err, domain.ErrReservationNotFound) {
			return worker.Permanent(err)
		}
		return err
	}

	courtName := ""
	if s.catalog != nil {
		res, err := s.catalog.GetResource(ctx, r.ResourceID)
		switch {
		case err == nil:
			courtName = res.Name
		case !errors.Is(err, domain.ErrResourceNotFound):
			return err
		}
	}

	return s.UpsertReservation(ctx, r, courtName)
}

// UpsertReservation rewrites the reservation's row, appending it when the
// sheet has none yet.
func (s *ReservationSheet) UpsertReservation(ctx context.Context, r *models.Reservation, courtName string) error {
	if r == nil {
		return fmt.Errorf("reservation is nil")
	}

	rowIdx, err := s.FindReservationRow(ctx, r.ID)
	if err != nil {
		if errors.Is(err, errRowNotFound) {
			return s.appendReservation(ctx, r, courtName)
		}
		return err
	}

	rangeData := fmt.Sprintf("%s!A%d:%s%d", sheetName, rowIdx, lastColumn, rowIdx)
	_, err = s.service.Spreadsheets.Values.Update(s.spreadsheetID, rangeData, &sheets.ValueRange{
		Values: [][]interface{}{s.rowValues(r, courtName)},
	}).ValueInputOption("RAW").Context(ctx).Do()
	return err
}

func (s *ReservationSheet) appendReservation(ctx context.Context, r *models.Reservation, courtName string) error {
	resp, err := s.service.Spreadsheets.Values.Append(s.spreadsheetID, sheetName+"!A:A", &sheets.ValueRange{
		Values: [][]interface{}{s.rowValues(r, courtName)},
	}).ValueInputOption("RAW").InsertDataOption("INSERT_ROWS").Context(ctx).Do()
	if err != nil {
		return err
	}

	if resp.Updates != nil {
		if row, ok := parseUpdatedRow(resp.Updates.UpdatedRange); ok {
			s.setCachedRow(r.ID, row)
		}
	}
	return nil
}

// FindReservationRow returns the 1-based row for reservationID.
func (s *ReservationSheet) FindReservationRow(ctx context.Context, reservationID int64) (int, error) {
	if reservationID == 0 {
		return 0, fmt.Errorf("reservation id is required")
	}

	if row, ok := s.getCachedRow(reservationID); ok {
		return row, nil
	}

	resp, err := s.service.Spreadsheets.Values.Get(s.spreadsheetID, sheetName+"!A:A").Context(ctx).Do()
	if err != nil {
		return 0, err
	}

	for i, row := range resp.Values {
		if id, ok := cellID(row); ok && id == reservationID {
			s.setCachedRow(reservationID, i+1)
			return i + 1, nil
		}
	}
	return 0, errRowNotFound
}

// WriteHeader overwrites row 1 with the column titles.
func (s *ReservationSheet) WriteHeader(ctx context.Context) error {
	rangeData := fmt.Sprintf("%s!A1:%s1", sheetName, lastColumn)
	_, err := s.service.Spreadsheets.Values.Update(s.spreadsheetID, rangeData, &sheets.ValueRange{
		Values: [][]interface{}{headerRow},
	}).ValueInputOption("RAW").Context(ctx).Do()
	return err
}

func (s *ReservationSheet) rowValues(r *models.Reservation, courtName string) []interface{} {
	start := r.StartTime.In(s.loc)
	return []interface{}{
		r.ID,
		r.UserID,
		r.ResourceID,
		courtName,
		start.Format(dateLayout),
		start.Format(clockLayout),
		r.EndTime.In(s.loc).Format(clockLayout),
		r.DurationHours(),
		r.State,
		r.CreatedAt.In(s.loc).Format(timestampLayout),
		r.UpdatedAt.In(s.loc).Format(timestampLayout),
	}
}

func cellID(row []interface{}) (int64, bool) {
	if len(row) == 0 {
		return 0, false
	}
	var id int64
	switch v := row[0].(type) {
	case float64:
		id = int64(v)
	case json.Number:
		id, _ = v.Int64()
	case string:
		id, _ = strconv.ParseInt(v, 10, 64)
	}
	return id, id > 0
}

func parseUpdatedRow(updatedRange string) (int, bool) {
	m := updatedRowRe.FindStringSubmatch(updatedRange)
	if m == nil {
		return 0, false
	}
	row, err := strconv.Atoi(m[1])
	return row, err == nil
}

func (s *ReservationSheet) getCachedRow(id int64) (int, bool) {
	s.cacheMu.RLock()
	defer s.cacheMu.RUnlock()
	row, ok := s.rowCache[id]
	return row, ok
}

func (s *ReservationSheet) setCachedRow(id int64, row int) {
	s.cacheMu.Lock()
	defer s.cacheMu.Unlock()
	s.rowCache[id] = row
}

// ClearCache drops every cached row position.
func (s *ReservationSheet) ClearCache() {
	s.cacheMu.Lock()
	defer s.cacheMu.Unlock()
	s.rowCache = make(map[int64]int)
}
