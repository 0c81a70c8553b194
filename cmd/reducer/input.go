package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/goran-ethernal/ChainReducer/internal/logger"
	"github.com/goran-ethernal/ChainReducer/internal/metrics"
	"github.com/goran-ethernal/ChainReducer/pkg/listener"
)

// maxLineSize bounds a single JSON-lines batch.
const maxLineSize = 64 * 1024 * 1024

// dispatcher delivers batches to their listeners.
type dispatcher interface {
	Dispatch(ctx context.Context, batch listener.Batch) error
}

// ingestStats summarizes one consumed input.
type ingestStats struct {
	Lines      int
	Batches    int
	Malformed  int
	Failed     int
	Unrouted   int
	Records    int
	LastBlocks map[listener.Key]uint64
}

func openInput(path string) (io.ReadCloser, error) {
	if path == "" || path == "-" {
		return io.NopCloser(os.Stdin), nil
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open input %s: %w", path, err)
	}
	return f, nil
}

// ingest reads one batch per line from r and dispatches it. Batches without a
// blockchain are attributed to blockchain. Malformed lines and failed
// batches are logged and skipped; only read errors and cancellation stop it.
// Cancellation returns at once, even while a read is blocked on r.
func ingest(
	ctx context.Context,
	r io.Reader,
	blockchain string,
	d dispatcher,
	log *logger.Logger,
) (ingestStats, error) {
	stats := ingestStats{LastBlocks: make(map[listener.Key]uint64)}

	lines, readErr := scanLines(ctx, r)

	for {
		var (
			text string
			ok   bool
		)

		select {
		case <-ctx.Done():
			return stats, ctx.Err()
		case text, ok = <-lines:
		}

		if !ok {
			break
		}
		if err := ctx.Err(); err != nil {
			return stats, err
		}

		stats.Lines++
		line := strings.TrimSpace(text)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		var batch listener.Batch
		if err := json.Unmarshal([]byte(line), &batch); err != nil {
			stats.Malformed++
			log.Warnf("Skipping malformed batch on line %d: %v", stats.Lines, err)
			continue
		}
		if batch.Blockchain == "" {
			batch.Blockchain = blockchain
		}

		key := batch.Key()
		stats.Batches++
		stats.Records += len(batch.Records)
		metrics.RecordsDispatchedInc(key.Blockchain, key.GroupID, len(batch.Records))

		err := d.Dispatch(ctx, batch)
		metrics.BatchDispatchedInc(key.Blockchain, key.GroupID, err == nil)

		switch {
		case errors.Is(err, listener.ErrNoListeners):
			stats.Unrouted++
			log.Warnf("No listeners for batch on line %d (%s), skipping", stats.Lines, key)
			continue
		case err != nil:
			stats.Failed++
			log.Errorf("Batch on line %d (%s) failed: %v", stats.Lines, key, err)
		}

		if block, ok := highestBlock(batch); ok && block >= stats.LastBlocks[key] {
			stats.LastBlocks[key] = block
			metrics.LastDispatchedBlockSet(key.Blockchain, key.GroupID, block)
		}
	}

	if err := readErr(); err != nil {
		return stats, fmt.Errorf("failed to read input: %w", err)
	}

	return stats, ctx.Err()
}

// scanLines reads r line by line in its own goroutine. The channel is closed
// at the end of input or once ctx is done; readErr is valid after that. A read
// blocked on r outlives ctx until the caller closes r.
func scanLines(ctx context.Context, r io.Reader) (<-chan string, func() error) {
	lines := make(chan string)

	var err error

	go func() {
		defer close(lines)

		scanner := bufio.NewScanner(r)
		scanner.Buffer(make([]byte, 0, 64*1024), maxLineSize)

		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
		err = scanner.Err()
	}()

	return lines, func() error { return err }
}

func highestBlock(batch listener.Batch) (uint64, bool) {
	if len(batch.Records) == 0 {
		return 0, false
	}

	var highest uint64
	for _, rec := range batch.Records {
		highest = max(highest, rec.BlockNumber)
	}
	return highest, true
}
