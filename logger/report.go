package logger

import (
	"context"
	"runtime"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/disk"
	"github.com/shirou/gopsutil/v3/mem"
	gnet "github.com/shirou/gopsutil/v3/net"

	"github.com/aws/aws-sdk-go-v2/aws"
	cwtypes "github.com/aws/aws-sdk-go-v2/service/cloudwatch/types"
)

type counterStat struct {
	count int64
	bytes int64
}

var (
	streamErrors   int64
	streamWarns    int64
	archiveErrors  int64
	archiveWarns   int64
	framesRead     int64
	eventsDecoded  int64
	eventsDropped  int64
	reconnects     int64
	archiveUploads int64
	counters       sync.Map // map[string]*counterStat
)

func recordWarn(component string) {
	if strings.Contains(component, "archive") {
		atomic.AddInt64(&archiveWarns, 1)
	} else if strings.Contains(component, "stream") {
		atomic.AddInt64(&streamWarns, 1)
	}
}

func recordError(component string) {
	if strings.Contains(component, "archive") {
		atomic.AddInt64(&archiveErrors, 1)
	} else if strings.Contains(component, "stream") {
		atomic.AddInt64(&streamErrors, 1)
	}
}

// IncrementFrameRead records an inbound websocket frame of the given size.
func IncrementFrameRead(size int) {
	atomic.AddInt64(&framesRead, 1)
	recordCounter("ws_frames", size)
}

// IncrementEventDecoded records a frame that decoded into a domain event.
func IncrementEventDecoded(kind string) {
	atomic.AddInt64(&eventsDecoded, 1)
	recordCounter("events_"+kind, 0)
}

// IncrementEventDropped records a frame that produced no domain event.
func IncrementEventDropped() {
	atomic.AddInt64(&eventsDropped, 1)
}

// IncrementReconnect records a reconnection attempt.
func IncrementReconnect() {
	atomic.AddInt64(&reconnects, 1)
}

// IncrementArchiveUpload records an archive object upload of the given size.
func IncrementArchiveUpload(size int64) {
	atomic.AddInt64(&archiveUploads, 1)
	recordCounter("archive_uploads", int(size))
}

func recordCounter(name string, size int) {
	v, _ := counters.LoadOrStore(name, &counterStat{})
	cs := v.(*counterStat)
	atomic.AddInt64(&cs.count, 1)
	atomic.AddInt64(&cs.bytes, int64(size))
}

// StartReport begins periodic logging of runtime and stream statistics.
func StartReport(ctx context.Context, log *Log, interval time.Duration) {
	ticker := time.NewTicker(interval)
	go func() {
		for {
			select {
			case <-ctx.Done():
				ticker.Stop()
				return
			case <-ticker.C:
				logReport(ctx, log)
			}
		}
	}()
}

func logReport(ctx context.Context, log *Log) {
	cpuPercent, _ := cpu.Percent(0, false)
	memStats, _ := mem.VirtualMemory()
	diskStats, _ := disk.Usage("/")
	netStats, _ := gnet.IOCounters(false)

	counterData := map[string]map[string]int64{}
	counters.Range(func(k, v any) bool {
		name := k.(string)
		cs := v.(*counterStat)
		counterData[name] = map[string]int64{
			"count": atomic.LoadInt64(&cs.count),
			"bytes": atomic.LoadInt64(&cs.bytes),
		}
		return true
	})

	cpuPct := 0.0
	if len(cpuPercent) > 0 {
		cpuPct = cpuPercent[0]
	}

	bytesSent := uint64(0)
	bytesRecv := uint64(0)
	if len(netStats) > 0 {
		bytesSent = netStats[0].BytesSent
		bytesRecv = netStats[0].BytesRecv
	}

	fields := Fields{
		"stream_errors":   atomic.LoadInt64(&streamErrors),
		"stream_warns":    atomic.LoadInt64(&streamWarns),
		"archive_errors":  atomic.LoadInt64(&archiveErrors),
		"archive_warns":   atomic.LoadInt64(&archiveWarns),
		"frames_read":     atomic.LoadInt64(&framesRead),
		"events_decoded":  atomic.LoadInt64(&eventsDecoded),
		"events_dropped":  atomic.LoadInt64(&eventsDropped),
		"reconnects":      atomic.LoadInt64(&reconnects),
		"archive_uploads": atomic.LoadInt64(&archiveUploads),
		"goroutines":      runtime.NumGoroutine(),
		"cpu_percent":     cpuPct,
		"memory_mb":       int64(memStats.Used) / 1024 / 1024,
		"disk_mb":         int64(diskStats.Used) / 1024 / 1024,
		"counters":        counterData,
		"net_bytes_sent":  int64(bytesSent),
		"net_bytes_recv":  int64(bytesRecv),
	}

	log.WithComponent("report").WithFields(fields).Info("runtime report")

	data := []cwtypes.MetricDatum{
		{MetricName: aws.String("CPUPercent"), Unit: cwtypes.StandardUnitPercent, Value: aws.Float64(cpuPct)},
		{MetricName: aws.String("MemoryMB"), Unit: cwtypes.StandardUnitMegabytes, Value: aws.Float64(float64(memStats.Used) / 1024 / 1024)},
		{MetricName: aws.String("FramesRead"), Unit: cwtypes.StandardUnitCount, Value: aws.Float64(float64(atomic.LoadInt64(&framesRead)))},
		{MetricName: aws.String("EventsDecoded"), Unit: cwtypes.StandardUnitCount, Value: aws.Float64(float64(atomic.LoadInt64(&eventsDecoded)))},
		{MetricName: aws.String("EventsDropped"), Unit: cwtypes.StandardUnitCount, Value: aws.Float64(float64(atomic.LoadInt64(&eventsDropped)))},
		{MetricName: aws.String("Reconnects"), Unit: cwtypes.StandardUnitCount, Value: aws.Float64(float64(atomic.LoadInt64(&reconnects)))},
		{MetricName: aws.String("ArchiveUploads"), Unit: cwtypes.StandardUnitCount, Value: aws.Float64(float64(atomic.LoadInt64(&archiveUploads)))},
		{MetricName: aws.String("StreamErrors"), Unit: cwtypes.StandardUnitCount, Value: aws.Float64(float64(atomic.LoadInt64(&streamErrors)))},
		{MetricName: aws.String("NetBytesSent"), Unit: cwtypes.StandardUnitBytes, Value: aws.Float64(float64(bytesSent))},
		{MetricName: aws.String("NetBytesRecv"), Unit: cwtypes.StandardUnitBytes, Value: aws.Float64(float64(bytesRecv))},
	}

	for name, stats := range counterData {
		data = append(data, cwtypes.MetricDatum{
			MetricName: aws.String("CounterBytes"),
			Unit:       cwtypes.StandardUnitBytes,
			Dimensions: []cwtypes.Dimension{{Name: aws.String("Counter"), Value: aws.String(name)}},
			Value:      aws.Float64(float64(stats["bytes"])),
		})
	}

	publishMetrics(ctx, data)
}
