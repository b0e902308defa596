package processor

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/semaphore"

	"github.com/oakenlabs/textgate/internal/metrics"
	"github.com/oakenlabs/textgate/internal/observability"
	"github.com/oakenlabs/textgate/pkg/errors"
)

// BatchExecutor fans a request list out over the single-request path
// under a bounded concurrency limit, isolating per-item failures.
type BatchExecutor struct {
	processor   *TextProcessor
	concurrency int64
	maxItems    int
	log         *observability.Logger
}

// NewBatchExecutor creates an executor. concurrency is clamped to
// [1, 50].
func NewBatchExecutor(p *TextProcessor, concurrency, maxItems int, log *observability.Logger) *BatchExecutor {
	if concurrency < 1 {
		concurrency = 1
	}
	if concurrency > 50 {
		concurrency = 50
	}
	if maxItems < 1 {
		maxItems = 200
	}
	return &BatchExecutor{
		processor:   p,
		concurrency: int64(concurrency),
		maxItems:    maxItems,
		log:         log,
	}
}

// ProcessBatch executes every item and aggregates the outcomes.
// Results are positionally matched to the input; one item's failure
// never cancels its siblings. Caller cancellation stops new items from
// starting while in-flight items run to completion under their own
// timeouts.
func (b *BatchExecutor) ProcessBatch(ctx context.Context, req *BatchRequest) (*BatchResponse, error) {
	if len(req.Items) == 0 {
		return nil, errors.NewValidation("batch contains no items")
	}
	if len(req.Items) > b.maxItems {
		return nil, errors.NewValidation(fmt.Sprintf("batch exceeds %d items", b.maxItems))
	}

	batchID := req.BatchID
	if batchID == "" {
		batchID = uuid.NewString()
	}

	start := time.Now()
	log := b.log.WithFields("batch_id", batchID, "items", len(req.Items))
	log.RedactedInfo("batch started")

	// The semaphore is local to this batch; global throughput is
	// governed by the resilience layer.
	sem := semaphore.NewWeighted(b.concurrency)
	results := make([]BatchItemResult, len(req.Items))

	var wg sync.WaitGroup
	for i := range req.Items {
		if err := sem.Acquire(ctx, 1); err != nil {
			// Caller canceled: remaining items are marked, not started.
			for j := i; j < len(req.Items); j++ {
				results[j] = BatchItemResult{
					Index:        j,
					ErrorCode:    string(errors.KindValidation),
					ErrorMessage: "batch canceled before item started",
				}
			}
			break
		}

		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			defer sem.Release(1)
			results[i] = b.runItem(ctx, batchID, i, req.Items[i])
		}(i)
	}
	wg.Wait()

	resp := &BatchResponse{
		BatchID: batchID,
		Total:   len(req.Items),
		Items:   results,
	}
	for _, item := range results {
		if item.Success {
			resp.Completed++
		} else {
			resp.Failed++
		}
	}

	metrics.BatchDuration.Observe(time.Since(start).Seconds())
	log.RedactedInfo("batch finished",
		"completed", resp.Completed, "failed", resp.Failed,
		"duration_ms", time.Since(start).Milliseconds())
	return resp, nil
}

// runItem executes one item, capturing panics and typed errors into
// the per-item result.
func (b *BatchExecutor) runItem(ctx context.Context, batchID string, index int, item ProcessingRequest) (result BatchItemResult) {
	metrics.BatchInFlight.Inc()
	defer metrics.BatchInFlight.Dec()

	defer func() {
		if r := recover(); r != nil {
			b.log.RedactedError("batch item panicked", "batch_id", batchID, "index", index)
			result = BatchItemResult{
				Index:        index,
				ErrorCode:    string(errors.KindInfrastructure),
				ErrorMessage: "internal error while processing item",
			}
			metrics.BatchItemsTotal.WithLabelValues("error").Inc()
		}
	}()

	// Items share the batch id for tracing.
	if item.TraceID == "" {
		item.TraceID = batchID
	}

	resp, err := b.processor.Process(ctx, &item)
	if err != nil {
		metrics.BatchItemsTotal.WithLabelValues("error").Inc()
		return BatchItemResult{
			Index:        index,
			ErrorCode:    string(errors.KindOf(err)),
			ErrorMessage: err.Error(),
		}
	}

	metrics.BatchItemsTotal.WithLabelValues("success").Inc()
	return BatchItemResult{
		Index:    index,
		Success:  true,
		Response: resp,
	}
}
