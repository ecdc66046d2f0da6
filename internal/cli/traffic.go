// SPDX-License-Identifier: GPL-3.0-or-later

package cli

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"os"
	"time"

	"github.com/rbmk-project/common/errclass"
	"github.com/rbmk-project/pktbuf/internal/simconfig"
	"golang.org/x/sync/errgroup"
)

// flowResult contains the statistics of a flow of echo requests.
type flowResult struct {
	Flow     simconfig.TrafficConfig
	Sent     int
	Received int
	Total    time.Duration // sum of the RTTs of the received replies
	Err      error         // set when the flow could not start
}

// Lost returns the number of requests without a reply.
func (fr *flowResult) Lost() int {
	return fr.Sent - fr.Received
}

// AvgRTT returns the average round trip time.
func (fr *flowResult) AvgRTT() time.Duration {
	if fr.Received <= 0 {
		return 0
	}
	return fr.Total / time.Duration(fr.Received)
}

// seqSize is the size of the sequence number prefixing each request.
const seqSize = 8

// runTraffic runs the configured flows in parallel and returns
// their results in the configuration order.
func runTraffic(ctx context.Context, sim *simulation,
	flows []simconfig.TrafficConfig, logger *slog.Logger) ([]*flowResult, error) {
	results := make([]*flowResult, len(flows))
	group, ctx := errgroup.WithContext(ctx)
	for idx, flow := range flows {
		results[idx] = &flowResult{Flow: flow}
		stack, found := sim.stacks[flow.From]
		if !found {
			results[idx].Err = fmt.Errorf("unknown host %q", flow.From)
			continue
		}
		group.Go(func() error {
			return runFlow(ctx, stack, results[idx], logger)
		})
	}
	if err := group.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

// dialer abstracts the stack dialing a flow.
type dialer interface {
	DialContext(ctx context.Context, network, address string) (net.Conn, error)
}

// runFlow sends the echo requests of a flow one at a time. Failing to
// dial within the flow timeout is recorded into the result. Only the
// context being canceled interrupts the whole traffic.
func runFlow(ctx context.Context, d dialer, result *flowResult, logger *slog.Logger) error {
	flow := &result.Flow
	t0 := time.Now()
	dialCtx, cancel := context.WithTimeout(ctx, flow.Timeout)
	conn, err := d.DialContext(dialCtx, "udp", flow.To)
	cancel()
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		result.Err = err
		logger.Warn("flowDialFailed",
			slog.String("from", flow.From),
			slog.String("to", flow.To),
			slog.Any("err", err),
			slog.String("errClass", errclass.New(err)),
			slog.Time("t0", t0),
			slog.Time("t", time.Now()),
		)
		return nil
	}
	defer conn.Close()

	request := make([]byte, max(flow.Size, seqSize))
	response := make([]byte, len(request))
	for seq := range flow.Count {
		if seq > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(flow.Interval):
			}
		}
		binary.BigEndian.PutUint64(request, uint64(seq))
		t0 := time.Now()
		if _, err := conn.Write(request); err != nil {
			logger.Warn("flowWriteFailed", slog.String("to", flow.To), slog.Any("err", err))
			continue
		}
		result.Sent++
		rtt, err := awaitReply(conn, response, uint64(seq), t0, flow.Timeout)
		logger.Debug("flowEcho",
			slog.String("from", flow.From),
			slog.String("to", flow.To),
			slog.Int("seq", seq),
			slog.Any("err", err),
			slog.String("errClass", errclass.New(err)),
			slog.Duration("rtt", rtt),
		)
		if err == nil {
			result.Received++
			result.Total += rtt
		}
	}
	return nil
}

// awaitReply reads until the reply for the request sent at t0 arrives
// or the timeout expires, discarding late replies to previous requests.
func awaitReply(conn net.Conn, buffer []byte, seq uint64,
	t0 time.Time, timeout time.Duration) (time.Duration, error) {
	conn.SetReadDeadline(t0.Add(timeout))
	for {
		count, err := conn.Read(buffer)
		if err != nil {
			return 0, err
		}
		if count >= seqSize && binary.BigEndian.Uint64(buffer) == seq {
			return time.Since(t0), nil
		}
	}
}

// printReport writes a line per flow to w.
func printReport(w io.Writer, results []*flowResult) {
	for _, fr := range results {
		if fr.Err != nil {
			fmt.Fprintf(w, "%s -> %s: %s\n", fr.Flow.From, fr.Flow.To, describeError(fr.Err))
			continue
		}
		fmt.Fprintf(w, "%s -> %s: sent=%d received=%d lost=%d avg_rtt=%s\n",
			fr.Flow.From, fr.Flow.To, fr.Sent, fr.Received, fr.Lost(),
			fr.AvgRTT().Round(time.Microsecond))
	}
}

// describeError describes the error that prevented a flow from starting.
func describeError(err error) string {
	if errors.Is(err, os.ErrDeadlineExceeded) || errors.Is(err, context.DeadlineExceeded) {
		return "timeout"
	}
	return err.Error()
}
