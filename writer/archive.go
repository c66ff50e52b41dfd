package writer

import (
	"bytes"
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/google/uuid"
	"github.com/xitongsys/parquet-go/parquet"
	pqsource "github.com/xitongsys/parquet-go/source"
	pqwriter "github.com/xitongsys/parquet-go/writer"

	appconfig "akashwatch/config"
	"akashwatch/logger"
	"akashwatch/models"
)

// EventRecord is the parquet row shape for archived chain events. Fields
// that a given event kind lacks are stored empty.
type EventRecord struct {
	Type        string `parquet:"name=type, type=BYTE_ARRAY, convertedtype=UTF8"`
	Height      int64  `parquet:"name=height, type=INT64"`
	Timestamp   int64  `parquet:"name=timestamp, type=INT64"`
	Owner       string `parquet:"name=owner, type=BYTE_ARRAY, convertedtype=UTF8"`
	DSeq        string `parquet:"name=dseq, type=BYTE_ARRAY, convertedtype=UTF8"`
	GSeq        int32  `parquet:"name=gseq, type=INT32"`
	OSeq        int32  `parquet:"name=oseq, type=INT32"`
	Provider    string `parquet:"name=provider, type=BYTE_ARRAY, convertedtype=UTF8"`
	PriceDenom  string `parquet:"name=price_denom, type=BYTE_ARRAY, convertedtype=UTF8"`
	PriceAmount string `parquet:"name=price_amount, type=BYTE_ARRAY, convertedtype=UTF8"`
	State       string `parquet:"name=state, type=BYTE_ARRAY, convertedtype=UTF8"`
	CloseReason string `parquet:"name=close_reason, type=BYTE_ARRAY, convertedtype=UTF8"`
}

// memoryFile implements the parquet source interface over a byte buffer so
// files can be built in memory and shipped straight to S3.
type memoryFile struct {
	buffer *bytes.Buffer
}

func newMemoryFile() *memoryFile {
	return &memoryFile{buffer: &bytes.Buffer{}}
}

func (m *memoryFile) Create(string) (pqsource.ParquetFile, error) { return m, nil }
func (m *memoryFile) Open(string) (pqsource.ParquetFile, error)   { return m, nil }

func (m *memoryFile) Seek(int64, int) (int64, error) {
	return int64(m.buffer.Len()), nil
}

func (m *memoryFile) Read(b []byte) (int, error)  { return m.buffer.Read(b) }
func (m *memoryFile) Write(b []byte) (int, error) { return m.buffer.Write(b) }
func (m *memoryFile) Close() error                { return nil }
func (m *memoryFile) Bytes() []byte               { return m.buffer.Bytes() }

// EventArchiver buffers decoded chain events per kind and periodically
// flushes them as parquet objects to S3. It consumes the stream client's
// callback interface like any other subscriber and never feeds back into the
// connection lifecycle.
type EventArchiver struct {
	config   appconfig.ArchiveConfig
	s3Client *s3.Client
	log      *logger.Log

	mu      sync.Mutex
	buffers map[string][]EventRecord
	running bool
	stopCh  chan struct{}

	ctx context.Context
	wg  sync.WaitGroup
}

// NewEventArchiver configures the AWS SDK and returns an archiver ready to
// Start.
func NewEventArchiver(cfg appconfig.ArchiveConfig) (*EventArchiver, error) {
	log := logger.GetLogger()
	ctx := context.Background()

	loadOpts := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(cfg.S3.Region)}
	if cfg.S3.AccessKeyID != "" && cfg.S3.SecretAccessKey != "" {
		loadOpts = append(loadOpts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.S3.AccessKeyID, cfg.S3.SecretAccessKey, ""),
		))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS configuration: %w", err)
	}

	a := &EventArchiver{
		config:   cfg,
		s3Client: s3.NewFromConfig(awsCfg),
		log:      log,
		buffers:  make(map[string][]EventRecord),
	}

	log.WithComponent("event_archiver").WithFields(logger.Fields{
		"bucket":         cfg.S3.Bucket,
		"region":         cfg.S3.Region,
		"flush_interval": cfg.FlushInterval.String(),
	}).Info("event archiver initialized")

	return a, nil
}

// Start launches the periodic flush loop.
func (a *EventArchiver) Start(ctx context.Context) error {
	a.mu.Lock()
	if a.running {
		a.mu.Unlock()
		return fmt.Errorf("archiver already running")
	}
	a.running = true
	a.ctx = ctx
	a.stopCh = make(chan struct{})
	a.mu.Unlock()

	a.wg.Add(1)
	go a.flushLoop()

	a.log.WithComponent("event_archiver").Info("event archiver started")
	return nil
}

// Stop flushes remaining buffers and waits for the flush loop to exit.
func (a *EventArchiver) Stop() {
	a.mu.Lock()
	if !a.running {
		a.mu.Unlock()
		return
	}
	a.running = false
	close(a.stopCh)
	a.mu.Unlock()

	a.wg.Wait()
	a.flushAll(context.Background())
	a.log.WithComponent("event_archiver").Info("event archiver stopped")
}

// Record is the stream callback: it converts the event to a row and buffers
// it, flushing the kind's buffer when it reaches the batch limit.
func (a *EventArchiver) Record(ev models.Event) {
	kind := models.Kind(ev.EventType())
	record := toRecord(ev)

	a.mu.Lock()
	a.buffers[kind] = append(a.buffers[kind], record)
	full := len(a.buffers[kind]) >= a.config.MaxBatchSize
	ctx := a.ctx
	a.mu.Unlock()

	if full {
		if ctx == nil {
			ctx = context.Background()
		}
		a.flushKind(ctx, kind)
	}
}

func (a *EventArchiver) flushLoop() {
	defer a.wg.Done()

	ticker := time.NewTicker(a.config.FlushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-a.ctx.Done():
			return
		case <-a.stopCh:
			return
		case <-ticker.C:
			a.flushAll(a.ctx)
		}
	}
}

func (a *EventArchiver) flushAll(ctx context.Context) {
	a.mu.Lock()
	kinds := make([]string, 0, len(a.buffers))
	for kind := range a.buffers {
		kinds = append(kinds, kind)
	}
	a.mu.Unlock()

	for _, kind := range kinds {
		a.flushKind(ctx, kind)
	}
}

func (a *EventArchiver) flushKind(ctx context.Context, kind string) {
	a.mu.Lock()
	records := a.buffers[kind]
	a.buffers[kind] = nil
	a.mu.Unlock()

	if len(records) == 0 {
		return
	}

	log := a.log.WithComponent("event_archiver").WithFields(logger.Fields{
		"kind":  kind,
		"count": len(records),
	})

	data, err := encodeParquet(records)
	if err != nil {
		log.WithError(err).Error("failed to encode parquet batch")
		return
	}

	key := objectKey(a.config.S3.Prefix, kind, time.Now().UTC())
	if _, err := a.s3Client.PutObject(ctx, &s3.PutObjectInput{
		Bucket: aws.String(a.config.S3.Bucket),
		Key:    aws.String(key),
		Body:   bytes.NewReader(data),
	}); err != nil {
		log.WithError(err).WithField("key", key).Error("failed to upload archive object")
		return
	}

	logger.IncrementArchiveUpload(int64(len(data)))
	log.WithFields(logger.Fields{"key": key, "bytes": len(data)}).Info("archive batch uploaded")
}

func encodeParquet(records []EventRecord) ([]byte, error) {
	file := newMemoryFile()
	pw, err := pqwriter.NewParquetWriter(file, new(EventRecord), 1)
	if err != nil {
		return nil, fmt.Errorf("create parquet writer: %w", err)
	}
	pw.CompressionType = parquet.CompressionCodec_SNAPPY

	for _, record := range records {
		if err := pw.Write(record); err != nil {
			return nil, fmt.Errorf("write parquet row: %w", err)
		}
	}
	if err := pw.WriteStop(); err != nil {
		return nil, fmt.Errorf("finalize parquet file: %w", err)
	}
	return file.Bytes(), nil
}

func objectKey(prefix, kind string, now time.Time) string {
	if prefix == "" {
		prefix = "akash/events"
	}
	return fmt.Sprintf("%s/%s/%s/%d-%s.parquet",
		prefix, kind, now.Format("2006-01-02"), now.UnixMilli(), uuid.NewString()[:8])
}

func toRecord(ev models.Event) EventRecord {
	record := EventRecord{
		Type:      ev.EventType(),
		Height:    ev.EventHeight(),
		Owner:     ev.EventOwner(),
		DSeq:      ev.EventDSeq(),
		Timestamp: time.Now().UnixMilli(),
	}

	switch e := ev.(type) {
	case models.DeploymentEvent:
		record.Timestamp = e.Timestamp.UnixMilli()
		record.State = e.State
	case models.OrderEvent:
		record.Timestamp = e.Timestamp.UnixMilli()
		record.GSeq = int32(e.GSeq)
		record.OSeq = int32(e.OSeq)
		record.State = e.State
	case models.BidEvent:
		record.Timestamp = e.Timestamp.UnixMilli()
		record.GSeq = int32(e.GSeq)
		record.OSeq = int32(e.OSeq)
		record.Provider = e.Provider
		record.State = e.State
		if e.Price != nil {
			record.PriceDenom = e.Price.Denom
			record.PriceAmount = e.Price.Amount
		}
	case models.LeaseEvent:
		record.Timestamp = e.Timestamp.UnixMilli()
		record.GSeq = int32(e.GSeq)
		record.OSeq = int32(e.OSeq)
		record.Provider = e.Provider
		record.State = e.State
		record.CloseReason = e.CloseReason
		if e.Price != nil {
			record.PriceDenom = e.Price.Denom
			record.PriceAmount = e.Price.Amount
		}
	}

	return record
}
