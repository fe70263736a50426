// Package export produces monthly Excel snapshots of the reservation tables
// for offline record keeping.
package export

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"labreserve/internal/store"
)

// Notifier delivers a finished report, typically to a Telegram channel.
type Notifier interface {
	SendDocument(ctx context.Context, filename string, data io.Reader, caption string) error
}

// Config holds export settings.
type Config struct {
	// OutputDir is where workbook files are written.
	OutputDir string

	// ExportOnStart runs one export immediately when the service starts.
	ExportOnStart bool
}

// Service writes all tables to one workbook, one sheet per table, on the 1st
// of every month and on demand.
type Service struct {
	config   Config
	store    store.TableStore
	notifier Notifier
	logger   zerolog.Logger

	stopCh  chan struct{}
	wg      sync.WaitGroup
	mu      sync.Mutex
	running bool
}

// NewService creates an export service. notifier may be nil.
func NewService(config Config, s store.TableStore, notifier Notifier, logger *zerolog.Logger) *Service {
	if config.OutputDir == "" {
		config.OutputDir = "reports"
	}
	return &Service{
		config:   config,
		store:    s,
		notifier: notifier,
		logger:   logger.With().Str("component", "export").Logger(),
		stopCh:   make(chan struct{}),
	}
}

// Filename names a report after the month it covers, e.g. "2026-02_tables.xlsx".
func Filename(t time.Time) string {
	return fmt.Sprintf("%s_tables.xlsx", t.Format("2006-01"))
}

// Start begins the monthly schedule.
func (s *Service) Start() {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return
	}
	s.running = true
	s.mu.Unlock()

	if s.config.ExportOnStart {
		go func() {
			if err := s.ExportNow(); err != nil {
				s.logger.Error().Err(err).Msg("startup export failed")
			}
		}()
	}

	s.wg.Add(1)
	go s.loop()
	s.logger.Info().Str("output_dir", s.config.OutputDir).Msg("export service started")
}

// Stop gracefully stops the service.
func (s *Service) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	s.mu.Unlock()

	close(s.stopCh)
	s.wg.Wait()
	s.logger.Info().Msg("export service stopped")
}

func (s *Service) loop() {
	defer s.wg.Done()

	nextRun := nextFirstOfMonth(time.Now())
	timer := time.NewTimer(time.Until(nextRun))
	defer timer.Stop()

	s.logger.Info().Time("next_run", nextRun).Msg("next export scheduled")

	for {
		select {
		case <-s.stopCh:
			return
		case <-timer.C:
			if err := s.ExportNow(); err != nil {
				s.logger.Error().Err(err).Msg("scheduled export failed")
			}
			nextRun = nextFirstOfMonth(time.Now())
			timer.Reset(time.Until(nextRun))
			s.logger.Info().Time("next_run", nextRun).Msg("next export scheduled")
		}
	}
}

// nextFirstOfMonth returns 00:01 on the first day of the month after t.
func nextFirstOfMonth(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month()+1, 1, 0, 1, 0, 0, t.Location())
}

// ExportNow snapshots every table into one workbook, saves it under
// OutputDir and, if a notifier is configured, sends it along.
func (s *Service) ExportNow() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
	defer cancel()

	wb := NewWorkbook()
	defer wb.Close()

	for _, table := range store.Tables {
		columns, err := store.Columns(table)
		if err != nil {
			return err
		}
		rows, err := s.store.Read(ctx, table)
		if err != nil {
			return fmt.Errorf("read %s: %w", table, err)
		}

		if err := wb.AddSheet(table); err != nil {
			return err
		}
		if err := wb.WriteHeader(columns); err != nil {
			return err
		}
		for _, row := range rows {
			if err := wb.WriteRow(row); err != nil {
				return err
			}
		}
		s.logger.Debug().Str("table", table).Int("rows", len(rows)).Msg("table exported")
	}

	if err := os.MkdirAll(s.config.OutputDir, 0o755); err != nil {
		return fmt.Errorf("create output dir: %w", err)
	}

	filename := Filename(time.Now().AddDate(0, -1, 0))
	path := filepath.Join(s.config.OutputDir, filename)
	if err := wb.SaveToFile(path); err != nil {
		return fmt.Errorf("save workbook: %w", err)
	}
	s.logger.Info().Str("path", path).Msg("report written")

	if s.notifier != nil {
		var buf bytes.Buffer
		if err := wb.Save(&buf); err != nil {
			return fmt.Errorf("buffer workbook: %w", err)
		}
		caption := fmt.Sprintf("Monthly reservation report %s", filename)
		if err := s.notifier.SendDocument(ctx, filename, &buf, caption); err != nil {
			return fmt.Errorf("send report: %w", err)
		}
		s.logger.Info().Str("filename", filename).Msg("report sent")
	}
	return nil
}
