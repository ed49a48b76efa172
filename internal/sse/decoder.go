// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package sse

import (
	"bytes"

	"github.com/tidwall/gjson"
)

// =============================================================================
// DECODER CONSTANTS
// =============================================================================

// MaxRecordSize is the largest data payload the decoder will hold while it
// waits for a truncated record to complete (64KB).
const MaxRecordSize = 64 * 1024

// DataPrefix is the literal prefix of every data line.
const DataPrefix = "data: "

// DoneSentinel marks the end of a completion stream.
const DoneSentinel = "[DONE]"

// DeltaPath is the gjson path of the text fragment inside a stream record.
const DeltaPath = "choices.0.delta.content"

var (
	dataPrefix   = []byte(DataPrefix)
	doneSentinel = []byte(DoneSentinel)
)

// =============================================================================
// DECODER
// =============================================================================

// Stats holds counters collected while decoding.
type Stats struct {
	Lines     int // complete lines consumed
	Deltas    int // non-empty text fragments extracted
	Comments  int // ":" keepalive lines
	Skipped   int // blank lines and lines without the data prefix
	Truncated int // records held back waiting for more bytes
	Malformed int // records dropped because they could never parse
}

// Decoder turns a byte stream of SSE data lines into text deltas.
// A Decoder is not safe for concurrent use.
type Decoder struct {
	buf     []byte // bytes after the last complete line
	pending []byte // truncated payload waiting for its continuation
	done    bool
	stats   Stats

	// OnMalformed, if set, is called with each payload that is dropped.
	OnMalformed func(payload string)
}

// NewDecoder creates an empty decoder.
func NewDecoder() *Decoder {
	return &Decoder{}
}

// Feed appends chunk to the pending buffer and returns the deltas of every
// line completed by it, in arrival order. After the done sentinel has been
// seen Feed returns nil.
func (d *Decoder) Feed(chunk []byte) []string {
	if d.done {
		return nil
	}
	d.buf = append(d.buf, chunk...)

	var deltas []string
	for !d.done {
		idx := bytes.IndexByte(d.buf, '\n')
		if idx < 0 {
			break
		}
		line := d.buf[:idx]
		d.buf = d.buf[idx+1:]
		if delta, ok := d.consumeLine(line); ok {
			deltas = append(deltas, delta)
		}
	}

	// PERFORMANCE: drop the consumed prefix so the backing array does not grow
	// for the lifetime of the stream.
	if len(d.buf) == 0 {
		d.buf = nil
	} else if cap(d.buf) > 2*len(d.buf)+MaxRecordSize {
		d.buf = append([]byte(nil), d.buf...)
	}
	return deltas
}

// Close flushes a final line that was not newline-terminated. A record still
// waiting for its continuation at this point is dropped as malformed.
func (d *Decoder) Close() []string {
	var deltas []string
	if !d.done && len(d.buf) > 0 {
		line := d.buf
		d.buf = nil
		if delta, ok := d.consumeLine(line); ok {
			deltas = append(deltas, delta)
		}
	}
	if d.pending != nil {
		d.drop(d.pending)
		d.pending = nil
	}
	return deltas
}

// Done reports whether the done sentinel has been decoded.
func (d *Decoder) Done() bool {
	return d.done
}

// Stats returns a copy of the decoder counters.
func (d *Decoder) Stats() Stats {
	return d.stats
}

// Pending returns the number of bytes buffered but not yet decoded.
func (d *Decoder) Pending() int {
	return len(d.buf) + len(d.pending)
}

// consumeLine handles one complete line, without its newline.
func (d *Decoder) consumeLine(line []byte) (string, bool) {
	d.stats.Lines++
	line = bytes.TrimSuffix(line, []byte("\r"))

	// A held-back record continues on this line, with the newline that split
	// it restored. A blank line or a new data line ends the event instead, so
	// the held-back record can never complete.
	if d.pending != nil && startsEvent(line) {
		d.drop(d.pending)
		d.pending = nil
	}
	if d.pending != nil {
		record := make([]byte, 0, len(d.pending)+1+len(line))
		record = append(record, d.pending...)
		record = append(record, '\n')
		record = append(record, line...)
		d.pending = nil
		return d.consumePayload(record)
	}

	switch {
	case len(bytes.TrimSpace(line)) == 0:
		d.stats.Skipped++
		return "", false
	case line[0] == ':':
		d.stats.Comments++
		return "", false
	case !bytes.HasPrefix(line, dataPrefix):
		d.stats.Skipped++
		return "", false
	}

	payload := bytes.TrimSpace(line[len(dataPrefix):])
	if len(payload) == 0 {
		d.stats.Skipped++
		return "", false
	}
	return d.consumePayload(payload)
}

// startsEvent reports whether line cannot continue a held-back record.
func startsEvent(line []byte) bool {
	return len(bytes.TrimSpace(line)) == 0 || bytes.HasPrefix(line, dataPrefix)
}

// consumePayload decodes the JSON text that followed the data prefix.
func (d *Decoder) consumePayload(payload []byte) (string, bool) {
	// The sentinel ends the whole stream, not just the chunk it arrived in:
	// bytes fed after it are never decoded.
	if bytes.Equal(payload, doneSentinel) {
		d.done = true
		return "", false
	}

	if !gjson.ValidBytes(payload) {
		if truncated(payload) && len(payload) <= MaxRecordSize {
			d.stats.Truncated++
			d.pending = append([]byte(nil), payload...)
			return "", false
		}
		d.drop(payload)
		return "", false
	}

	content := gjson.GetBytes(payload, DeltaPath)
	if content.Type != gjson.String || content.Str == "" {
		return "", false
	}
	d.stats.Deltas++
	return content.Str, true
}

func (d *Decoder) drop(payload []byte) {
	d.stats.Malformed++
	if d.OnMalformed != nil {
		d.OnMalformed(string(payload))
	}
}

// truncated reports whether payload reads as the opening of a JSON value that
// has not been closed yet: an open string, or more opening brackets than
// closing ones. A payload that closes a bracket it never opened is not
// truncated, it is broken.
func truncated(payload []byte) bool {
	depth := 0
	inString := false
	escaped := false

	for _, c := range payload {
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{', '[':
			depth++
		case '}', ']':
			depth--
			if depth < 0 {
				return false
			}
		}
	}
	return inString || depth > 0
}
