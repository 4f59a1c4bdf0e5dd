package loop

import (
	"context"
	"encoding/csv"
	"errors"
	"io"
	"strings"

	"go.uber.org/zap"

	"github.com/rafaelssenna/LUNA-PAINEL-BACK/internal/domain/outreach"
)

var ErrNoPhoneColumn = errors.New("csv has no recognizable phone column")

// ImportResult summarizes one CSV import.
type ImportResult struct {
	Inserted int `json:"inserted"`
	Skipped  int `json:"skipped"`
	Errors   int `json:"errors"`
}

var (
	nameColumns  = []string{"nome", "name", "full_name", "contato"}
	phoneColumns = []string{"telefone", "phone", "numero", "número", "whatsapp"}
	nicheColumns = []string{"nicho", "niche", "segmento", "categoria"}
)

// Importer loads contact CSVs into the outreach queue. Column headers
// are sniffed case-insensitively in Portuguese and English.
type Importer struct {
	service *Service
	logger  *zap.Logger
}

func NewImporter(service *Service, logger *zap.Logger) *Importer {
	return &Importer{
		service: service,
		logger:  logger.Named("loop.importer"),
	}
}

// Import reads the CSV and queues one contact per row. Rows that are
// duplicates or already answered count as skipped; rows that fail
// validation or persistence count as errors.
func (i *Importer) Import(ctx context.Context, instanceID string, r io.Reader) (*ImportResult, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err != nil {
		return nil, err
	}

	nameIdx := findColumn(header, nameColumns)
	phoneIdx := findColumn(header, phoneColumns)
	nicheIdx := findColumn(header, nicheColumns)
	if phoneIdx < 0 {
		return nil, ErrNoPhoneColumn
	}

	result := &ImportResult{}
	for {
		row, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			result.Errors++
			continue
		}
		if phoneIdx >= len(row) {
			result.Errors++
			continue
		}

		name := cell(row, nameIdx)
		phone := cell(row, phoneIdx)
		niche := cell(row, nicheIdx)

		status, err := i.service.AddContact(ctx, instanceID, name, phone, niche, outreach.SourceCSV)
		if err != nil {
			result.Errors++
			continue
		}
		if status == AddOK {
			result.Inserted++
		} else {
			result.Skipped++
		}
	}

	i.logger.Info("csv_imported",
		zap.String("instance_id", instanceID),
		zap.Int("inserted", result.Inserted),
		zap.Int("skipped", result.Skipped),
		zap.Int("errors", result.Errors),
	)
	return result, nil
}

func findColumn(header []string, candidates []string) int {
	for idx, col := range header {
		normalized := strings.ToLower(strings.TrimSpace(col))
		for _, candidate := range candidates {
			if normalized == candidate {
				return idx
			}
		}
	}
	return -1
}

func cell(row []string, idx int) string {
	if idx < 0 || idx >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[idx])
}
