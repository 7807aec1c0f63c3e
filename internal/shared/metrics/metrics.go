package metrics

import (
	"bytes"
	"fmt"
	"net/http"
	"strconv"
	"sync"
	"sync/atomic"

	"github.com/gin-gonic/gin"
)

var (
	analysisSubmittedTotal  atomic.Uint64
	analysisCompletedTotal  atomic.Uint64
	analysisFailedTotal     atomic.Uint64
	extractionPollErrors    atomic.Uint64
	paymentsCompletedTotal  atomic.Uint64
	reportDownloadsTotal    atomic.Uint64
	rateLimitedRequestTotal atomic.Uint64

	analysisDuration = newHistogram([]float64{1000, 5000, 15000, 30000, 60000, 120000, 300000})
)

// IncAnalysisSubmitted counts an accepted submission.
func IncAnalysisSubmitted() {
	analysisSubmittedTotal.Add(1)
}

// IncAnalysisCompleted counts a record that reached completed.
func IncAnalysisCompleted() {
	analysisCompletedTotal.Add(1)
}

// IncAnalysisFailed counts a record that reached failed.
func IncAnalysisFailed() {
	analysisFailedTotal.Add(1)
}

// IncExtractionPollError counts a swallowed upstream error during a status poll.
func IncExtractionPollError() {
	extractionPollErrors.Add(1)
}

// IncPaymentCompleted counts a newly settled payment.
func IncPaymentCompleted() {
	paymentsCompletedTotal.Add(1)
}

// IncReportDownload counts a registered download.
func IncReportDownload() {
	reportDownloadsTotal.Add(1)
}

// IncRateLimited counts a request rejected by the rate limiter.
func IncRateLimited() {
	rateLimitedRequestTotal.Add(1)
}

// ObserveAnalysisDurationMs records the time from submission to a terminal state.
func ObserveAnalysisDurationMs(value float64) {
	if value < 0 {
		value = 0
	}
	analysisDuration.Observe(value)
}

// Handler exposes metrics in Prometheus text format.
func Handler() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Content-Type", "text/plain; version=0.0.4")
		c.String(http.StatusOK, Render())
	}
}

// Render renders metrics in Prometheus text format.
func Render() string {
	var buf bytes.Buffer
	writeCounter(&buf, "analysis_submitted_total", "Total analyses accepted", analysisSubmittedTotal.Load())
	writeCounter(&buf, "analysis_completed_total", "Total analyses completed", analysisCompletedTotal.Load())
	writeCounter(&buf, "analysis_failed_total", "Total analyses failed", analysisFailedTotal.Load())
	writeCounter(&buf, "extraction_poll_errors_total", "Upstream errors swallowed during status polls", extractionPollErrors.Load())
	writeCounter(&buf, "payments_completed_total", "Total payments settled", paymentsCompletedTotal.Load())
	writeCounter(&buf, "report_downloads_total", "Total report downloads registered", reportDownloadsTotal.Load())
	writeCounter(&buf, "http_rate_limited_total", "Requests rejected by the rate limiter", rateLimitedRequestTotal.Load())
	writeHistogram(&buf, "analysis_duration_ms", "Time from submission to a terminal state in milliseconds", analysisDuration.Snapshot())
	return buf.String()
}

type histogram struct {
	mu      sync.Mutex
	buckets []float64
	counts  []uint64
	sum     float64
	count   uint64
}

type histogramSnapshot struct {
	buckets []float64
	counts  []uint64
	sum     float64
	count   uint64
}

func newHistogram(buckets []float64) *histogram {
	return &histogram{
		buckets: buckets,
		counts:  make([]uint64, len(buckets)),
	}
}

func (h *histogram) Observe(value float64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.count++
	h.sum += value
	for i, bound := range h.buckets {
		if value <= bound {
			h.counts[i]++
			return
		}
	}
}

func (h *histogram) Snapshot() histogramSnapshot {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := histogramSnapshot{
		buckets: append([]float64(nil), h.buckets...),
		counts:  append([]uint64(nil), h.counts...),
		sum:     h.sum,
		count:   h.count,
	}
	return out
}

func writeCounter(buf *bytes.Buffer, name, help string, value uint64) {
	fmt.Fprintf(buf, "# HELP %s %s\n", name, help)
	fmt.Fprintf(buf, "# TYPE %s counter\n", name)
	fmt.Fprintf(buf, "%s %d\n", name, value)
}

func writeHistogram(buf *bytes.Buffer, name, help string, snap histogramSnapshot) {
	fmt.Fprintf(buf, "# HELP %s %s\n", name, help)
	fmt.Fprintf(buf, "# TYPE %s histogram\n", name)
	var cumulative uint64
	for i, bound := range snap.buckets {
		cumulative += snap.counts[i]
		fmt.Fprintf(buf, "%s_bucket{le=\"%s\"} %d\n", name, formatFloat(bound), cumulative)
	}
	fmt.Fprintf(buf, "%s_bucket{le=\"+Inf\"} %d\n", name, snap.count)
	fmt.Fprintf(buf, "%s_sum %s\n", name, formatFloat(snap.sum))
	fmt.Fprintf(buf, "%s_count %d\n", name, snap.count)
}

func formatFloat(value float64) string {
	if value == float64(int64(value)) {
		return strconv.FormatInt(int64(value), 10)
	}
	return strconv.FormatFloat(value, 'f', -1, 64)
}
