package writer

import (
	"bytes"
	"context"
	"fmt"
	"path"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/xitongsys/parquet-go/parquet"
	"github.com/xitongsys/parquet-go/source"
	"github.com/xitongsys/parquet-go/writer"

	appconfig "priceflow/config"
	"priceflow/logger"
	"priceflow/models"
)

type priceParquetRecord struct {
	RunID         string   `parquet:"name=run_id, type=BYTE_ARRAY, convertedtype=UTF8"`
	Symbol        string   `parquet:"name=symbol, type=BYTE_ARRAY, convertedtype=UTF8"`
	Timestamp     int64    `parquet:"name=timestamp, type=INT64, convertedtype=TIMESTAMP_MILLIS"`
	Open          float64  `parquet:"name=open, type=DOUBLE"`
	High          float64  `parquet:"name=high, type=DOUBLE"`
	Low           float64  `parquet:"name=low, type=DOUBLE"`
	Close         float64  `parquet:"name=close, type=DOUBLE"`
	AdjustedClose *float64 `parquet:"name=adjusted_close, type=DOUBLE, repetitiontype=OPTIONAL"`
	Volume        int64    `parquet:"name=volume, type=INT64"`
}

// memFile is an in-memory parquet sink; the encoder only ever appends.
type memFile struct {
	buffer *bytes.Buffer
}

func newMemFile() *memFile {
	return &memFile{buffer: &bytes.Buffer{}}
}

func (m *memFile) Create(string) (source.ParquetFile, error) { return m, nil }
func (m *memFile) Open(string) (source.ParquetFile, error)   { return m, nil }
func (m *memFile) Seek(int64, int) (int64, error)            { return int64(m.buffer.Len()), nil }
func (m *memFile) Read([]byte) (int, error)                  { return 0, fmt.Errorf("read not supported") }
func (m *memFile) Write(b []byte) (int, error)               { return m.buffer.Write(b) }
func (m *memFile) Close() error                              { return nil }
func (m *memFile) Bytes() []byte                             { return m.buffer.Bytes() }

// ObjectPutter is the part of the S3 client the archive uses.
type ObjectPutter interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// S3Archive stores each symbol's normalized rows as one parquet object.
type S3Archive struct {
	client      ObjectPutter
	bucket      string
	prefix      string
	compression string
	version     string
	now         func() time.Time
	log         *logger.Log
}

// NewS3Archive builds an S3 client from cfg. Static credentials are used when
// both keys are set, otherwise the default AWS chain applies.
func NewS3Archive(ctx context.Context, cfg appconfig.Config) (*S3Archive, error) {
	s3cfg := cfg.Storage.S3
	if !s3cfg.Enabled {
		return nil, fmt.Errorf("s3 storage disabled")
	}

	loadOpts := []func(*config.LoadOptions) error{config.WithRegion(s3cfg.Region)}
	if s3cfg.AccessKeyID != "" && s3cfg.SecretAccessKey != "" {
		loadOpts = append(loadOpts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(s3cfg.AccessKeyID, s3cfg.SecretAccessKey, ""),
		))
	}
	awsCfg, err := config.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if s3cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(s3cfg.Endpoint)
		}
		o.UsePathStyle = s3cfg.PathStyle
	})
	return NewS3ArchiveWithClient(client, cfg), nil
}

func NewS3ArchiveWithClient(client ObjectPutter, cfg appconfig.Config) *S3Archive {
	return &S3Archive{
		client:      client,
		bucket:      cfg.Storage.S3.Bucket,
		prefix:      strings.Trim(cfg.Storage.S3.Prefix, "/"),
		compression: cfg.Storage.S3.Compression,
		version:     cfg.Priceflow.Version,
		now:         time.Now,
		log:         logger.GetLogger(),
	}
}

// Archive encodes rows as parquet and uploads them under a per-symbol,
// per-day partition.
func (a *S3Archive) Archive(ctx context.Context, runID, symbol string, rows []models.PricePoint) error {
	if len(rows) == 0 {
		return nil
	}
	log := a.log.WithComponent("archive").WithFields(logger.Fields{
		"run_id":       runID,
		"symbol":       symbol,
		"record_count": len(rows),
	})

	data, err := encodeParquet(runID, rows, a.compression)
	if err != nil {
		return err
	}

	key := a.objectKey(runID, symbol, a.now().UTC())
	input := &s3.PutObjectInput{
		Bucket:      aws.String(a.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String("application/octet-stream"),
		Metadata: map[string]string{
			"content-type":      "parquet",
			"compression":       a.compression,
			"priceflow-version": a.version,
			"run-id":            runID,
		},
	}

	ctx, cancel := context.WithTimeout(ctx, 2*time.Minute)
	defer cancel()
	if _, err := a.client.PutObject(ctx, input); err != nil {
		return fmt.Errorf("upload %s: %w", key, err)
	}

	log.WithFields(logger.Fields{"s3_key": key, "file_size": len(data)}).Info("archive uploaded")
	return nil
}

// objectKey returns <prefix>/symbol=<SYM>/date=<YYYY-MM-DD>/<ts>_<run>.parquet.
func (a *S3Archive) objectKey(runID, symbol string, at time.Time) string {
	parts := []string{
		fmt.Sprintf("symbol=%s", strings.ToUpper(symbol)),
		fmt.Sprintf("date=%s", at.Format("2006-01-02")),
		fmt.Sprintf("%s_%s.parquet", at.Format("20060102T150405Z"), runID),
	}
	if a.prefix != "" {
		parts = append([]string{a.prefix}, parts...)
	}
	return path.Join(parts...)
}

func encodeParquet(runID string, rows []models.PricePoint, compression string) ([]byte, error) {
	mem := newMemFile()
	pw, err := writer.NewParquetWriter(mem, new(priceParquetRecord), 1)
	if err != nil {
		return nil, fmt.Errorf("new parquet writer: %w", err)
	}

	switch strings.ToLower(compression) {
	case "snappy":
		pw.CompressionType = parquet.CompressionCodec_SNAPPY
	case "gzip":
		pw.CompressionType = parquet.CompressionCodec_GZIP
	default:
		pw.CompressionType = parquet.CompressionCodec_UNCOMPRESSED
	}

	for _, r := range rows {
		rec := priceParquetRecord{
			RunID:         runID,
			Symbol:        r.Symbol,
			Timestamp:     r.Timestamp.UnixMilli(),
			Open:          r.Open,
			High:          r.High,
			Low:           r.Low,
			Close:         r.Close,
			AdjustedClose: r.AdjustedClose,
			Volume:        r.Volume,
		}
		if err := pw.Write(rec); err != nil {
			pw.WriteStop()
			return nil, fmt.Errorf("write price record: %w", err)
		}
	}
	if err := pw.WriteStop(); err != nil {
		return nil, fmt.Errorf("finalize parquet: %w", err)
	}
	return mem.Bytes(), nil
}
