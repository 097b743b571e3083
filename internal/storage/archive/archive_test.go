package archive

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"cloud.google.com/go/civil"
	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fairrate/internal/domain"
)

func testCurve(days int) *domain.Curve {
	c := &domain.Curve{
		ReferenceDate: civil.Date{Year: 2026, Month: time.February, Day: 2},
		Nominal:       make([]float64, days),
		Real:          make([]float64, days),
	}
	for i := 0; i < days; i++ {
		c.Nominal[i] = 13 - float64(i)/1000
		c.Real[i] = 6.5 - float64(i)/2000
	}
	return c
}

func TestKey(t *testing.T) {
	d := civil.Date{Year: 2026, Month: time.February, Day: 2}
	assert.Equal(t, "curves/2026/02/curve_2026-02-02.parquet", Key("curves", d))
	assert.Equal(t, "2026/02/curve_2026-02-02.parquet", Key("", d))
}

func TestParquetRoundTrip(t *testing.T) {
	original := testCurve(300)

	data, err := EncodeParquet(original)
	require.NoError(t, err)
	require.NotEmpty(t, data)
	assert.Equal(t, "PAR1", string(data[:4]))

	got, err := DecodeParquet(data)
	require.NoError(t, err)
	assert.Equal(t, original.ReferenceDate, got.ReferenceDate)
	assert.Equal(t, original.Nominal, got.Nominal)
	assert.Equal(t, original.Real, got.Real)
}

func TestLocalSink(t *testing.T) {
	dir := t.TempDir()
	loc, err := LocalSink{Dir: dir}.Put(context.Background(), "a/b/c.parquet", []byte("data"))
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "a", "b", "c.parquet"), loc)

	content, err := os.ReadFile(loc)
	require.NoError(t, err)
	assert.Equal(t, "data", string(content))

	_, err = os.Stat(loc + ".tmp")
	assert.True(t, os.IsNotExist(err))
}

type fakeS3 struct {
	bucket, key string
	body        []byte
	err         error
}

func (f *fakeS3) PutObject(_ context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.bucket = aws.ToString(in.Bucket)
	f.key = aws.ToString(in.Key)
	f.body, _ = io.ReadAll(in.Body)
	return &s3.PutObjectOutput{}, nil
}

func TestS3Sink_Put(t *testing.T) {
	fake := &fakeS3{}
	sink := &S3Sink{client: fake, bucket: "curves-bucket"}

	loc, err := sink.Put(context.Background(), "x/y.parquet", []byte("abc"))
	require.NoError(t, err)
	assert.Equal(t, "s3://curves-bucket/x/y.parquet", loc)
	assert.Equal(t, "curves-bucket", fake.bucket)
	assert.Equal(t, "x/y.parquet", fake.key)
	assert.Equal(t, []byte("abc"), fake.body)
}

func TestNewS3Sink_RequiresBucket(t *testing.T) {
	_, err := NewS3Sink(context.Background(), S3Config{Region: "us-east-1"})
	assert.Error(t, err)
}

func TestArchiver_Archive(t *testing.T) {
	dir := t.TempDir()
	fake := &fakeS3{}
	a := NewArchiver("curves", LocalSink{Dir: dir}, &S3Sink{client: fake, bucket: "b"})
	require.True(t, a.Enabled())

	c := testCurve(50)
	locations, err := a.Archive(context.Background(), c)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{
		filepath.Join(dir, "curves", "2026", "02", "curve_2026-02-02.parquet"),
		"s3://b/curves/2026/02/curve_2026-02-02.parquet",
	}, locations)

	decoded, err := DecodeParquet(fake.body)
	require.NoError(t, err)
	assert.Equal(t, c.Nominal, decoded.Nominal)
}

func TestArchiver_SinkError(t *testing.T) {
	boom := errors.New("access denied")
	a := NewArchiver("", &S3Sink{client: &fakeS3{err: boom}, bucket: "b"})

	_, err := a.Archive(context.Background(), testCurve(5))
	assert.ErrorIs(t, err, boom)
}

func TestArchiver_Disabled(t *testing.T) {
	var a *Archiver
	assert.False(t, a.Enabled())

	locations, err := NewArchiver("x").Archive(context.Background(), testCurve(5))
	require.NoError(t, err)
	assert.Nil(t, locations)
}
