package main

import (
	"context"
	"errors"
	"io"
	"os"
	"strings"
	"syscall"
	"testing"
	"time"

	"github.com/goran-ethernal/ChainReducer/internal/logger"
	"github.com/goran-ethernal/ChainReducer/pkg/listener"
	"github.com/stretchr/testify/require"
)

type fakeDispatcher struct {
	batches []listener.Batch
	errs    map[string]error
}

func (f *fakeDispatcher) Dispatch(_ context.Context, batch listener.Batch) error {
	f.batches = append(f.batches, batch)
	return f.errs[batch.GroupID]
}

const logLine = `{"log":{"address":"0x1111111111111111111111111111111111111111",` +
	`"topics":["0xddf252ad1be2c89b69c2b068fc378daa952ba7f163c4a11628f55a4df523b3ef"],"data":"0x",` +
	`"blockNumber":"0x%s","transactionHash":"0x00000000000000000000000000000000000000000000000000000000000000aa",` +
	`"transactionIndex":"0x0","blockHash":"0x00000000000000000000000000000000000000000000000000000000000000bb",` +
	`"logIndex":"0x0","removed":false}}`

func batchLine(group, blockchain, blockHex string) string {
	rec := strings.Replace(logLine, "%s", blockHex, 1)
	line := `{"groupId":"` + group + `","records":[` + rec + `]`
	if blockchain != "" {
		line += `,"blockchain":"` + blockchain + `"`
	}
	return line + "}"
}

func TestIngest(t *testing.T) {
	input := strings.Join([]string{
		batchLine("nft", "", "10"),
		"",
		"# comment",
		"{not json",
		batchLine("nft", "polygon", "20"),
		batchLine("broken", "", "30"),
		batchLine("nobody", "", "40"),
		batchLine("nft", "", "5"),
	}, "\n")

	d := &fakeDispatcher{errs: map[string]error{
		"broken": errors.New("boom"),
		"nobody": listener.ErrNoListeners,
	}}

	stats, err := ingest(context.Background(), strings.NewReader(input), "ethereum", d, logger.NewNopLogger())
	require.NoError(t, err)

	require.Equal(t, 8, stats.Lines)
	require.Equal(t, 5, stats.Batches)
	require.Equal(t, 1, stats.Malformed)
	require.Equal(t, 1, stats.Failed)
	require.Equal(t, 1, stats.Unrouted)
	require.Equal(t, 5, stats.Records)

	require.Len(t, d.batches, 5)
	require.Equal(t, "ethereum", d.batches[0].Blockchain)
	require.Equal(t, "polygon", d.batches[1].Blockchain)

	// failed batches still advance the block, unrouted ones do not
	require.Equal(t, map[listener.Key]uint64{
		{GroupID: "nft", Blockchain: "ethereum"}:    0x10,
		{GroupID: "nft", Blockchain: "polygon"}:     0x20,
		{GroupID: "broken", Blockchain: "ethereum"}: 0x30,
	}, stats.LastBlocks)
}

func TestIngest_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	d := &fakeDispatcher{}
	_, err := ingest(ctx, strings.NewReader(batchLine("nft", "", "1")), "ethereum", d, logger.NewNopLogger())
	require.ErrorIs(t, err, context.Canceled)
	require.Empty(t, d.batches)
}

func TestIngest_CancelledWhileIdle(t *testing.T) {
	r, w := io.Pipe()
	defer w.Close()

	ctx, cancel := context.WithCancel(context.Background())

	d := &fakeDispatcher{}
	done := make(chan error, 1)
	go func() {
		_, err := ingest(ctx, r, "ethereum", d, logger.NewNopLogger())
		done <- err
	}()

	// nothing is ever written, the reader stays blocked
	cancel()

	select {
	case err := <-done:
		require.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("ingest still blocked after cancellation")
	}
	require.Empty(t, d.batches)
}

func TestIngest_ReadError(t *testing.T) {
	r, w := io.Pipe()
	go func() {
		_, _ = w.Write([]byte(batchLine("nft", "", "1") + "\n"))
		_ = w.CloseWithError(errors.New("disk gone"))
	}()

	d := &fakeDispatcher{}
	stats, err := ingest(context.Background(), r, "ethereum", d, logger.NewNopLogger())
	require.ErrorContains(t, err, "disk gone")
	require.Equal(t, 1, stats.Batches)
	require.Len(t, d.batches, 1)
}

func TestSignalContext(t *testing.T) {
	ctx, stop := signalContext()
	defer stop()

	require.NoError(t, syscall.Kill(os.Getpid(), syscall.SIGTERM))

	require.Eventually(t, func() bool { return ctx.Err() != nil }, 2*time.Second, 10*time.Millisecond)
	require.ErrorIs(t, ctx.Err(), context.Canceled)
}

func TestHighestBlock(t *testing.T) {
	_, ok := highestBlock(listener.Batch{})
	require.False(t, ok)

	var batch listener.Batch
	for _, b := range []uint64{7, 3, 9} {
		rec := listener.LogRecord{}
		rec.BlockNumber = b
		batch.Records = append(batch.Records, rec)
	}

	block, ok := highestBlock(batch)
	require.True(t, ok)
	require.Equal(t, uint64(9), block)
}
