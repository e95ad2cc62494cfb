package refresh

import (
	"fmt"

	"pbirefresh/internal/common/logger"
	"pbirefresh/internal/powerbi"
)

var sheetColumns = []string{"RunID", "Workspace", "Dataset", "DatasetID", "Status", "Start", "End", "Detail"}

// SheetSink appends records to the results spreadsheet.
type SheetSink struct {
	sheet logger.Logger
}

// NewSheetSink writes the header row when the sheet is new.
func NewSheetSink(sheet logger.Logger) (*SheetSink, error) {
	shouldWrite, err := sheet.ShouldWriteHeader()
	if err != nil {
		return nil, err
	}
	if shouldWrite {
		if err := sheet.WriteHeader(sheetColumns); err != nil {
			return nil, fmt.Errorf("results sheet header: %w", err)
		}
	}
	return &SheetSink{sheet: sheet}, nil
}

func (s *SheetSink) WriteRecord(runID string, ws powerbi.Group, rec Record) error {
	return s.sheet.WriteRow([]string{
		runID, ws.Name, rec.Name, rec.DatasetID, string(rec.Status), rec.Start, rec.End, rec.Detail,
	})
}
