// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package prompt

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCompose(t *testing.T) {
	assert.Equal(t, "base", Compose("base", ""))
	assert.Equal(t,
		"base\n\nCurrent context: The user is viewing the \"Header Bidding\" module in the AdTech Visual Explorer.",
		Compose("base", "Header Bidding"))
}

func TestDefault(t *testing.T) {
	assert.True(t, strings.HasPrefix(Default, "You are an expert AdTech educator and explainer."))
	assert.True(t, strings.HasSuffix(Default, "Make AdTech accessible to everyone."))
}

func TestNewSource_Default(t *testing.T) {
	src, err := NewSource("")
	require.NoError(t, err)
	assert.Equal(t, Default, src.Base())
	assert.NoError(t, src.Reload())
	assert.NoError(t, src.Watch(context.Background(), nil))
}

func TestNewSource_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "prompt.txt")
	require.NoError(t, os.WriteFile(path, []byte("  Explain like a pirate.\n"), 0644))

	src, err := NewSource(path)
	require.NoError(t, err)
	assert.Equal(t, "Explain like a pirate.", src.Base())
	assert.Equal(t, path, src.Path())
	assert.Contains(t, src.Compose("DSP"), `viewing the "DSP" module`)
}

func TestNewSource_Errors(t *testing.T) {
	dir := t.TempDir()

	_, err := NewSource(filepath.Join(dir, "missing.txt"))
	assert.Error(t, err)

	empty := filepath.Join(dir, "empty.txt")
	require.NoError(t, os.WriteFile(empty, []byte(" \n\t"), 0644))
	_, err = NewSource(empty)
	assert.ErrorIs(t, err, ErrEmptyPrompt)

	huge := filepath.Join(dir, "huge.txt")
	require.NoError(t, os.WriteFile(huge, []byte(strings.Repeat("x", MaxPromptSize+1)), 0644))
	_, err = NewSource(huge)
	assert.Error(t, err)
}

func TestSource_ReloadKeepsPreviousOnFailure(t *testing.T) {
	path := filepath.Join(t.TempDir(), "prompt.txt")
	require.NoError(t, os.WriteFile(path, []byte("first"), 0644))
	src, err := NewSource(path)
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(path, []byte(""), 0644))
	assert.ErrorIs(t, src.Reload(), ErrEmptyPrompt)
	assert.Equal(t, "first", src.Base())
}

func TestSource_Watch(t *testing.T) {
	path := filepath.Join(t.TempDir(), "prompt.txt")
	require.NoError(t, os.WriteFile(path, []byte("first"), 0644))
	src, err := NewSource(path)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, src.Watch(ctx, nil))

	require.NoError(t, os.WriteFile(path, []byte("second"), 0644))
	assert.Eventually(t, func() bool {
		return src.Base() == "second"
	}, 3*time.Second, 20*time.Millisecond)
}

func TestFixed(t *testing.T) {
	src := Fixed("custom")
	assert.Equal(t, "custom", src.Compose(""))
	assert.Empty(t, src.Path())
}
