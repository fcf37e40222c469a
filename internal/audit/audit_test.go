package audit

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEntryStringFormat(t *testing.T) {
	e := Entry{
		Time:    time.Date(2026, 8, 28, 15, 4, 5, 0, time.Local),
		Kind:    "PAY",
		Source:  "Alice",
		Target:  "Bob",
		Amount:  decimal.RequireFromString("12.5"),
		Details: "player payment",
	}
	assert.Equal(t, "[2026-08-28 15:04:05] [PAY] Alice -> Bob: $12.5 (player payment)", e.String())
}

func TestParseLineRoundTrip(t *testing.T) {
	e := Entry{
		Time:    time.Date(2026, 8, 28, 9, 30, 0, 0, time.Local),
		Kind:    "SHOP_BUY",
		Source:  "Steve",
		Target:  "Admin Shop",
		Amount:  decimal.RequireFromString("0.001"),
		Details: "Bought 5x diamond",
	}

	parsed, ok := ParseLine(e.String())
	require.True(t, ok)
	assert.True(t, parsed.Time.Equal(e.Time))
	assert.Equal(t, e.Kind, parsed.Kind)
	assert.Equal(t, e.Source, parsed.Source)
	assert.Equal(t, e.Target, parsed.Target)
	assert.True(t, parsed.Amount.Equal(e.Amount))
	assert.Equal(t, e.Details, parsed.Details)
}

func TestParseLineRejectsGarbage(t *testing.T) {
	for _, line := range []string{
		"",
		"not an audit line",
		"[2026-08-28 15:04:05] missing kind",
		"[bad time] [PAY] a -> b: $1 (x)",
	} {
		_, ok := ParseLine(line)
		assert.False(t, ok, "line %q", line)
	}
}

func TestAmountRendersPlainDecimal(t *testing.T) {
	// 极小金额不得落成指数记法
	e := Entry{Time: time.Now(), Kind: "GIVE", Source: "Server", Target: "Steve",
		Amount: decimal.New(1, -7), Details: ""}
	line := e.String()
	assert.Contains(t, line, "$0.0000001")
	assert.NotContains(t, line, "e-")
}

func TestRecordAndSearch(t *testing.T) {
	path := filepath.Join(t.TempDir(), "transactions.log")
	l, err := New(path, 16, nil)
	require.NoError(t, err)

	l.Record("GIVE", "Server", "Steve", decimal.NewFromInt(100), "Admin command")
	l.Record("PAY", "Steve", "Alex", decimal.NewFromInt(25), "player payment")
	l.Record("PAY", "Alex", "Steve", decimal.NewFromInt(5), "player payment")
	l.Close()

	// 目标子串过滤，大小写不敏感
	entries, err := l.Search("alex", time.Time{})
	require.NoError(t, err)
	require.Len(t, entries, 2)

	// 最新在前
	assert.Equal(t, "Alex", entries[0].Source)
	assert.Equal(t, "Steve", entries[1].Source)

	// 通配检索返回全部
	all, err := l.Search("*", time.Time{})
	require.NoError(t, err)
	assert.Len(t, all, 3)
}

func TestSearchSinceFilter(t *testing.T) {
	path := filepath.Join(t.TempDir(), "transactions.log")
	l, err := New(path, 16, nil)
	require.NoError(t, err)

	l.Record("GIVE", "Server", "Steve", decimal.NewFromInt(1), "")
	l.Close()

	entries, err := l.Search("*", time.Now().Add(time.Hour))
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestSearchMissingFileReturnsNothing(t *testing.T) {
	l, err := New(filepath.Join(t.TempDir(), "never-written.log"), 1, nil)
	require.NoError(t, err)
	defer l.Close()

	entries, err := l.Search("*", time.Time{})
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestCloseDrainsQueue(t *testing.T) {
	path := filepath.Join(t.TempDir(), "transactions.log")
	l, err := New(path, 64, nil)
	require.NoError(t, err)

	for i := 0; i < 50; i++ {
		l.Record("SET", "Server", "Steve", decimal.NewFromInt(int64(i)), "")
	}
	l.Close()

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	assert.Len(t, lines, 50)
}
