package lead

import (
	"context"
	"encoding/csv"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/lead-crm/internal/phone"
)

// Submitter stores one lead. *Intake implements it.
type Submitter interface {
	Submit(ctx context.Context, input Input) (*Result, error)
}

// headerAliases maps lower-cased column headers to Input fields.
var headerAliases = map[string]string{
	"name":          "name",
	"full name":     "name",
	"full_name":     "name",
	"customer":      "name",
	"phone":         "phone",
	"mobile":        "phone",
	"mobile no":     "phone",
	"phone number":  "phone",
	"phone_number":  "phone",
	"contact":       "phone",
	"email":         "email",
	"e-mail":        "email",
	"email address": "email",
	"source":        "source",
	"lead source":   "source",
	"channel":       "source",
}

// DefaultImportSource tags imported rows with no source column.
const DefaultImportSource = "import"

// RowError describes a row that could not be imported. Row is the
// 1-based row number in the file, header included.
type RowError struct {
	Row   int    `json:"row"`
	Phone string `json:"phone,omitempty"`
	Err   string `json:"error"`
}

// Summary reports the outcome of an import.
type Summary struct {
	Rows       int        `json:"rows"`
	Duplicates int        `json:"duplicates_in_file"`
	Created    int64      `json:"created"`
	Eligible   int64      `json:"eligible"`
	Ineligible int64      `json:"ineligible"`
	Failed     int64      `json:"failed"`
	Errors     []RowError `json:"errors,omitempty"`
}

// Importer bulk-submits leads from CSV or XLSX files.
type Importer struct {
	intake      Submitter
	concurrency int
}

// NewImporter returns an importer running at most concurrency submissions
// at once.
func NewImporter(intake Submitter, concurrency int) *Importer {
	if concurrency < 1 {
		concurrency = 1
	}
	return &Importer{intake: intake, concurrency: concurrency}
}

// ImportFile reads path (.csv or .xlsx, first sheet) and imports its rows.
func (im *Importer) ImportFile(ctx context.Context, path string) (*Summary, error) {
	var (
		rows [][]string
		err  error
	)
	switch strings.ToLower(filepath.Ext(path)) {
	case ".csv":
		rows, err = readCSV(path)
	case ".xlsx":
		rows, err = readXLSX(path)
	default:
		return nil, eris.Errorf("import: unsupported file type %q", filepath.Ext(path))
	}
	if err != nil {
		return nil, err
	}
	return im.Import(ctx, rows)
}

type indexedInput struct {
	row   int
	input Input
}

// Import treats rows[0] as the header. Rows repeating a phone already seen
// earlier in the file are counted as duplicates and skipped. A failing row
// does not abort the import.
func (im *Importer) Import(ctx context.Context, rows [][]string) (*Summary, error) {
	if len(rows) == 0 {
		return nil, eris.New("import: file is empty")
	}
	cols, err := mapHeader(rows[0])
	if err != nil {
		return nil, err
	}

	summary := &Summary{}
	seen := make(map[string]struct{})
	var work []indexedInput

	for i, row := range rows[1:] {
		if blank(row) {
			continue
		}
		summary.Rows++
		in := rowInput(row, cols)
		if in.Source == "" {
			in.Source = DefaultImportSource
		}

		key := phone.Local(in.Phone)
		if key == "" {
			key = phone.Clean(in.Phone)
		}
		if key != "" {
			if _, dup := seen[key]; dup {
				summary.Duplicates++
				continue
			}
			seen[key] = struct{}{}
		}
		work = append(work, indexedInput{row: i + 2, input: in})
	}

	var (
		mu     sync.Mutex
		failed atomic.Int64
		ok     atomic.Int64
		bad    atomic.Int64
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(im.concurrency)

	for _, w := range work {
		g.Go(func() error {
			if gctx.Err() != nil {
				return gctx.Err()
			}
			res, err := im.intake.Submit(gctx, w.input)
			if err != nil {
				failed.Add(1)
				mu.Lock()
				summary.Errors = append(summary.Errors, RowError{Row: w.row, Phone: w.input.Phone, Err: err.Error()})
				mu.Unlock()
				zap.L().Warn("import: row failed", zap.Int("row", w.row), zap.Error(err))
				return nil
			}
			if res.Eligibility.IsEligible {
				ok.Add(1)
			} else {
				bad.Add(1)
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, eris.Wrap(err, "import: cancelled")
	}

	summary.Eligible = ok.Load()
	summary.Ineligible = bad.Load()
	summary.Failed = failed.Load()
	summary.Created = summary.Eligible + summary.Ineligible

	zap.L().Info("import: complete",
		zap.Int("rows", summary.Rows),
		zap.Int("duplicates", summary.Duplicates),
		zap.Int64("created", summary.Created),
		zap.Int64("eligible", summary.Eligible),
		zap.Int64("failed", summary.Failed),
	)
	return summary, nil
}

func mapHeader(header []string) (map[string]int, error) {
	cols := make(map[string]int)
	for i, h := range header {
		key := strings.ToLower(strings.TrimSpace(strings.TrimPrefix(h, "\ufeff")))
		if field, ok := headerAliases[key]; ok {
			if _, dup := cols[field]; !dup {
				cols[field] = i
			}
		}
	}
	if _, ok := cols["phone"]; !ok {
		return nil, eris.Errorf("import: no phone column in header %v", header)
	}
	return cols, nil
}

func rowInput(row []string, cols map[string]int) Input {
	get := func(field string) string {
		i, ok := cols[field]
		if !ok || i >= len(row) {
			return ""
		}
		return strings.TrimSpace(row[i])
	}
	return Input{
		Name:   get("name"),
		Phone:  get("phone"),
		Email:  get("email"),
		Source: get("source"),
	}
}

func blank(row []string) bool {
	for _, c := range row {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}

func readCSV(path string) ([][]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, eris.Wrap(err, "import: open csv")
	}
	defer f.Close() //nolint:errcheck

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1
	r.TrimLeadingSpace = true

	var rows [][]string
	for {
		rec, err := r.Read()
		if errors.Is(err, io.EOF) {
			return rows, nil
		}
		if err != nil {
			return nil, eris.Wrap(err, "import: read csv row")
		}
		rows = append(rows, rec)
	}
}

func readXLSX(path string) ([][]string, error) {
	f, err := xlsx.OpenFile(path)
	if err != nil {
		return nil, eris.Wrap(err, "import: open xlsx")
	}
	if len(f.Sheets) == 0 {
		return nil, eris.New("import: xlsx has no sheets")
	}

	var rows [][]string
	for _, row := range f.Sheets[0].Rows {
		cells := make([]string, len(row.Cells))
		for j, cell := range row.Cells {
			cells[j] = cell.String()
		}
		rows = append(rows, cells)
	}
	return rows, nil
}

var _ Submitter = (*Intake)(nil)
