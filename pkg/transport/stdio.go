package transport

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"os"
	"sync"

	"settings-bridge/pkg/channel"
)

// CallHandler dispatches one call and returns its response.
type CallHandler func(ctx context.Context, call *channel.Call) *channel.Response

// maxLineSize bounds a single newline-delimited call.
const maxLineSize = 1 << 20

// RunStdio serves calls over standard I/O until EOF or ctx is cancelled.
func RunStdio(ctx context.Context, handler CallHandler) {
	slog.Info("Starting stdio transport listener")
	if err := ServeStdio(ctx, os.Stdin, os.Stdout, handler); err != nil {
		slog.Error("Error reading from stdin", "error", err)
		return
	}
	slog.Info("Stdio listener stopped")
}

// stdinLine is one line read from the input, or the error that ended reading.
type stdinLine struct {
	data    []byte
	tooLong bool
	err     error
}

// ServeStdio reads newline-delimited JSON calls from r and writes one JSON
// response line to w for every non-empty line read. Calls are handled in order.
// It returns nil on EOF or when ctx is cancelled, even if r is still blocked.
func ServeStdio(ctx context.Context, r io.Reader, w io.Writer, handler CallHandler) error {
	out := &lineWriter{w: w}
	lines := make(chan stdinLine)

	// The reader may stay blocked in Read after ctx is done; it exits on its next line.
	go func() {
		defer close(lines)
		br := bufio.NewReaderSize(r, 64*1024)
		for {
			data, tooLong, err := readLine(br, maxLineSize)
			select {
			case lines <- stdinLine{data: data, tooLong: tooLong, err: err}:
			case <-ctx.Done():
				return
			}
			if err != nil {
				return
			}
		}
	}()

	for {
		var in stdinLine
		select {
		case <-ctx.Done():
			return nil
		case l, ok := <-lines:
			if !ok {
				return nil
			}
			in = l
		}
		if ctx.Err() != nil {
			return nil
		}
		if in.err != nil {
			if errors.Is(in.err, io.EOF) {
				return nil
			}
			return in.err
		}

		if in.tooLong {
			slog.Error("Call exceeds maximum line size", "max_bytes", maxLineSize)
			if err := out.send(&channel.Response{
				Error: channel.NewError(channel.CodeInvalidInput, "Call exceeds maximum line size", nil),
			}); err != nil {
				return err
			}
			continue
		}
		if len(in.data) == 0 {
			continue
		}

		var call channel.Call
		if err := json.Unmarshal(in.data, &call); err != nil {
			slog.Error("Failed to decode call", "error", err, "raw_call", string(in.data))
			resp := &channel.Response{
				Error: channel.NewError(channel.CodeInvalidInput, "Failed to parse JSON call", nil),
			}
			if err := out.send(resp); err != nil {
				return err
			}
			continue
		}

		slog.Debug("Received call", "channel", call.Channel, "method", call.Method, "id", string(call.ID))

		if err := out.send(handler(ctx, &call)); err != nil {
			slog.Error("Failed to write response", "error", err)
			return err
		}
	}
}

// readLine returns the next line without its terminator. A line longer than
// limit is consumed up to its newline and reported as tooLong with no data.
// A final line without a newline is returned before io.EOF.
func readLine(br *bufio.Reader, limit int) (line []byte, tooLong bool, err error) {
	for {
		chunk, rerr := br.ReadSlice('\n')
		if !tooLong {
			if len(line)+len(bytes.TrimRight(chunk, "\r\n")) > limit {
				tooLong, line = true, nil
			} else {
				line = append(line, chunk...)
			}
		}
		switch {
		case errors.Is(rerr, bufio.ErrBufferFull):
			continue
		case errors.Is(rerr, io.EOF) && (len(line) > 0 || tooLong):
			return bytes.TrimRight(line, "\r\n"), tooLong, nil
		case rerr != nil:
			return nil, false, rerr
		}
		return bytes.TrimRight(line, "\r\n"), tooLong, nil
	}
}

// lineWriter serializes newline-delimited responses.
type lineWriter struct {
	mu sync.Mutex
	w  io.Writer
}

func (lw *lineWriter) send(resp *channel.Response) error {
	slog.Debug("Sending response", "id", string(resp.ID), "kind", resp.Kind())
	respBytes, err := json.Marshal(resp)
	if err != nil {
		return err
	}
	respBytes = append(respBytes, '\n')

	lw.mu.Lock()
	defer lw.mu.Unlock()
	_, err = lw.w.Write(respBytes)
	return err
}
