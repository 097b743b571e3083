// Package archive writes built curves as parquet files to a local
// directory and/or an S3 bucket.
package archive

import (
	"bytes"
	"fmt"
	"io"
	"time"

	"cloud.google.com/go/civil"
	"github.com/xitongsys/parquet-go/parquet"
	"github.com/xitongsys/parquet-go/reader"
	"github.com/xitongsys/parquet-go/source"
	"github.com/xitongsys/parquet-go/writer"

	"fairrate/internal/domain"
)

var epoch = civil.Date{Year: 1970, Month: time.January, Day: 1}

// curveRecord defines the schema for one grid day stored in parquet.
type curveRecord struct {
	Day              int32   `parquet:"name=day, type=INT32"`
	NominalRate      float64 `parquet:"name=nominal_rate, type=DOUBLE"`
	RealRate         float64 `parquet:"name=real_rate, type=DOUBLE"`
	ImpliedInflation float64 `parquet:"name=implied_inflation, type=DOUBLE"`
	ReferenceDate    int32   `parquet:"name=reference_date, type=INT32, convertedtype=DATE"`
}

// memFile collects parquet output in memory.
type memFile struct {
	buffer *bytes.Buffer
}

func newMemFile() *memFile {
	return &memFile{buffer: &bytes.Buffer{}}
}

func (m *memFile) Create(string) (source.ParquetFile, error) { return m, nil }
func (m *memFile) Open(string) (source.ParquetFile, error)   { return m, nil }
func (m *memFile) Seek(int64, int) (int64, error)            { return int64(m.buffer.Len()), nil }
func (m *memFile) Read([]byte) (int, error)                  { return 0, io.EOF }
func (m *memFile) Write(b []byte) (int, error)               { return m.buffer.Write(b) }
func (m *memFile) Close() error                              { return nil }

// readFile serves parquet bytes to the reader. Open hands out independent
// cursors because the reader opens one per column.
type readFile struct {
	data []byte
	*bytes.Reader
}

func newReadFile(data []byte) *readFile {
	return &readFile{data: data, Reader: bytes.NewReader(data)}
}

func (r *readFile) Create(string) (source.ParquetFile, error) {
	return nil, fmt.Errorf("parquet archive is read-only")
}
func (r *readFile) Open(string) (source.ParquetFile, error) { return newReadFile(r.data), nil }
func (r *readFile) Write([]byte) (int, error)               { return 0, fmt.Errorf("parquet archive is read-only") }
func (r *readFile) Close() error                            { return nil }

// EncodeParquet writes every grid day of c as a SNAPPY-compressed parquet file.
func EncodeParquet(c *domain.Curve) ([]byte, error) {
	mf := newMemFile()
	pw, err := writer.NewParquetWriter(mf, new(curveRecord), 1)
	if err != nil {
		return nil, fmt.Errorf("create parquet writer: %w", err)
	}
	pw.CompressionType = parquet.CompressionCodec_SNAPPY

	ref := int32(c.ReferenceDate.DaysSince(epoch))
	for day := 1; day <= c.MaxDay(); day++ {
		rec := curveRecord{
			Day:              int32(day),
			NominalRate:      c.NominalAt(day),
			RealRate:         c.RealAt(day),
			ImpliedInflation: c.ImpliedInflation(day),
			ReferenceDate:    ref,
		}
		if err := pw.Write(rec); err != nil {
			return nil, fmt.Errorf("write parquet row %d: %w", day, err)
		}
	}

	if err := pw.WriteStop(); err != nil {
		return nil, fmt.Errorf("finish parquet: %w", err)
	}
	return mf.buffer.Bytes(), nil
}

// DecodeParquet reads a file written by EncodeParquet back into a curve.
// Rows may appear in any order but must cover days 1..N exactly once.
func DecodeParquet(data []byte) (*domain.Curve, error) {
	pr, err := reader.NewParquetReader(newReadFile(data), new(curveRecord), 1)
	if err != nil {
		return nil, fmt.Errorf("open parquet: %w", err)
	}
	defer pr.ReadStop()

	n := int(pr.GetNumRows())
	if n == 0 {
		return nil, fmt.Errorf("parquet archive has no rows")
	}
	records := make([]curveRecord, n)
	if err := pr.Read(&records); err != nil {
		return nil, fmt.Errorf("read parquet rows: %w", err)
	}

	c := &domain.Curve{
		ReferenceDate: epoch.AddDays(int(records[0].ReferenceDate)),
		Nominal:       make([]float64, n),
		Real:          make([]float64, n),
	}
	seen := make([]bool, n)
	for _, rec := range records {
		day := int(rec.Day)
		if day < 1 || day > n || seen[day-1] {
			return nil, fmt.Errorf("parquet archive has invalid or repeated day %d", day)
		}
		seen[day-1] = true
		c.Nominal[day-1] = rec.NominalRate
		c.Real[day-1] = rec.RealRate
	}
	return c, nil
}
