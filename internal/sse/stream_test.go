// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package sse

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"
	"testing/iotest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStream_OneByteReader(t *testing.T) {
	body := record("Real-time ") + record("bidding") + "data: [DONE]\n"

	var deltas []string
	content, err := Stream(context.Background(), iotest.OneByteReader(strings.NewReader(body)), func(d string) {
		deltas = append(deltas, d)
	})

	require.NoError(t, err)
	assert.Equal(t, "Real-time bidding", content)
	assert.Equal(t, "Real-time bidding", strings.Join(deltas, ""))
}

func TestStream_StopsAtDone(t *testing.T) {
	body := record("done") + "data: [DONE]\n"
	// The reader never returns EOF after the sentinel, and must not be read again.
	r := io.MultiReader(strings.NewReader(body), iotest.ErrReader(errors.New("read past done")))

	content, err := Stream(context.Background(), r, nil)
	require.NoError(t, err)
	assert.Equal(t, "done", content)
}

func TestStream_UnterminatedRecordDoesNotHideDone(t *testing.T) {
	body := "data: {\"choices\":[{\"delta\":{\"content\":\"lost\n" + record("kept") + "data: [DONE]\n" + record("AFTER")
	r := io.MultiReader(strings.NewReader(body), iotest.ErrReader(errors.New("read past done")))

	content, err := Stream(context.Background(), r, nil)
	require.NoError(t, err)
	assert.Equal(t, "kept", content)
}

func TestStream_EOFWithoutDone(t *testing.T) {
	body := record("no ") + strings.TrimSuffix(record("sentinel"), "\n")

	content, err := Stream(context.Background(), iotest.DataErrReader(strings.NewReader(body)), nil)
	require.NoError(t, err)
	assert.Equal(t, "no sentinel", content)
}

func TestStream_ReadErrorKeepsPartial(t *testing.T) {
	boom := errors.New("connection reset")
	r := io.MultiReader(strings.NewReader(record("partial")), iotest.ErrReader(boom))

	content, err := Stream(context.Background(), r, nil)
	require.Error(t, err)
	assert.Equal(t, "partial", content)

	var streamErr *StreamError
	require.ErrorAs(t, err, &streamErr)
	assert.Equal(t, "partial", streamErr.Partial)
	assert.ErrorIs(t, err, boom)
	assert.Contains(t, err.Error(), "partial content received")
}

func TestStream_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := Stream(ctx, strings.NewReader(record("never")), nil)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestDecoderStream_ReportsStats(t *testing.T) {
	dec := NewDecoder()
	_, err := dec.Stream(context.Background(), strings.NewReader(": hi\n"+record("x")+"data: oops\n"), nil)

	require.NoError(t, err)
	stats := dec.Stats()
	assert.Equal(t, 1, stats.Comments)
	assert.Equal(t, 1, stats.Deltas)
	assert.Equal(t, 1, stats.Malformed)
}
