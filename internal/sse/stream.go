// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package sse

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
)

// ReadBufferSize is the size of each read from the response body.
const ReadBufferSize = 4 * 1024

// DeltaFunc is called with each text fragment as it is decoded.
type DeltaFunc func(delta string)

// StreamError represents an error that occurred during streaming,
// preserving any partial content received before the error.
type StreamError struct {
	Partial string // Content received before error
	Err     error
}

// Error implements the error interface.
func (e *StreamError) Error() string {
	if e.Partial != "" {
		return fmt.Sprintf("stream error (partial content received: %d chars): %v", len(e.Partial), e.Err)
	}
	return fmt.Sprintf("stream error: %v", e.Err)
}

// Unwrap returns the underlying error.
func (e *StreamError) Unwrap() error {
	return e.Err
}

// Stream reads r until the done sentinel or EOF with a fresh Decoder.
func Stream(ctx context.Context, r io.Reader, onDelta DeltaFunc) (string, error) {
	return NewDecoder().Stream(ctx, r, onDelta)
}

// Stream reads r chunk by chunk, feeding the decoder and calling onDelta for
// every fragment. It returns the accumulated content. Reading stops at the
// done sentinel, at EOF, or when ctx is cancelled between reads.
func (d *Decoder) Stream(ctx context.Context, r io.Reader, onDelta DeltaFunc) (string, error) {
	var content strings.Builder
	emit := func(deltas []string) {
		for _, delta := range deltas {
			content.WriteString(delta)
			if onDelta != nil {
				onDelta(delta)
			}
		}
	}

	buf := make([]byte, ReadBufferSize)
	for {
		if err := ctx.Err(); err != nil {
			return content.String(), &StreamError{Partial: content.String(), Err: err}
		}

		n, err := r.Read(buf)
		if n > 0 {
			emit(d.Feed(buf[:n]))
			if d.Done() {
				return content.String(), nil
			}
		}

		if errors.Is(err, io.EOF) {
			emit(d.Close())
			return content.String(), nil
		}
		if err != nil {
			// A cancelled request surfaces as a read error; report the cause.
			if ctxErr := ctx.Err(); ctxErr != nil {
				err = ctxErr
			}
			return content.String(), &StreamError{Partial: content.String(), Err: err}
		}
	}
}
