package ui

import (
	"errors"
	"log/slog"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/five82/shelf/internal/api"
	"github.com/five82/shelf/internal/library"
)

func TestTruncate(t *testing.T) {
	tests := []struct {
		in   string
		max  int
		want string
	}{
		{"hello", 10, "hello"},
		{"hello world", 8, "hello..."},
		{"hello", 3, "hel"},
		{"hello", 0, ""},
		{"Ünïcödé title", 6, "Ünï..."},
	}
	for _, tt := range tests {
		if got := truncate(tt.in, tt.max); got != tt.want {
			t.Errorf("truncate(%q, %d) = %q, want %q", tt.in, tt.max, got, tt.want)
		}
	}
}

func TestTruncateMiddle(t *testing.T) {
	if got := truncateMiddle("abcdefghijklmnop", 10); got != "abc...mnop" {
		t.Errorf("truncateMiddle = %q, want abc...mnop", got)
	}
	if got := truncateMiddle("short", 10); got != "short" {
		t.Errorf("truncateMiddle(short) = %q", got)
	}
}

func TestScrollStart(t *testing.T) {
	tests := []struct {
		selected, count, rows, want int
	}{
		{0, 5, 10, 0},
		{0, 50, 10, 0},
		{25, 50, 10, 20},
		{49, 50, 10, 40},
		{3, 50, 0, 0},
	}
	for _, tt := range tests {
		if got := scrollStart(tt.selected, tt.count, tt.rows); got != tt.want {
			t.Errorf("scrollStart(%d, %d, %d) = %d, want %d", tt.selected, tt.count, tt.rows, got, tt.want)
		}
	}
}

func TestMoveSelection(t *testing.T) {
	keys := DefaultKeyMap()
	down := tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("j")}
	up := tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("k")}
	bottom := tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("G")}
	pgdown := tea.KeyMsg{Type: tea.KeyPgDown}

	if got := moveSelection(down, keys, 0, 3, 10); got != 1 {
		t.Errorf("down = %d, want 1", got)
	}
	if got := moveSelection(up, keys, 0, 3, 10); got != 0 {
		t.Errorf("up at top = %d, want 0", got)
	}
	if got := moveSelection(bottom, keys, 0, 3, 10); got != 2 {
		t.Errorf("bottom = %d, want 2", got)
	}
	if got := moveSelection(pgdown, keys, 1, 30, 10); got != 11 {
		t.Errorf("page down = %d, want 11", got)
	}
	if got := moveSelection(down, keys, 4, 0, 10); got != 0 {
		t.Errorf("empty list = %d, want 0", got)
	}
}

func TestNextTheme(t *testing.T) {
	seen := map[string]bool{}
	name := "Nord"
	for range ThemeNames() {
		seen[name] = true
		name = NextTheme(name)
	}
	if name != "Nord" || len(seen) != len(ThemeNames()) {
		t.Fatalf("cycle ended at %q after visiting %v", name, seen)
	}
	if NextTheme("missing") != "Nord" {
		t.Fatalf("unknown theme should restart the cycle")
	}
	if GetTheme("missing").Name != "Nord" {
		t.Fatalf("unknown theme should fall back to Nord")
	}
}

func TestLoanStatus(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	returned := now.Add(-time.Hour)
	tests := []struct {
		name string
		loan library.Issue
		want string
	}{
		{"open", library.Issue{Status: library.StatusIssued, DueDate: now.Add(48 * time.Hour)}, badgeIssued},
		{"past due", library.Issue{Status: library.StatusIssued, DueDate: now.Add(-time.Hour)}, badgeOverdue},
		{"flagged overdue", library.Issue{Status: library.StatusOverdue, DueDate: now.Add(time.Hour)}, badgeOverdue},
		{"returned", library.Issue{Status: library.StatusReturned, ReturnDate: &returned}, badgeReturned},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := loanStatus(tt.loan, now); got != tt.want {
				t.Fatalf("loanStatus = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestClassifyConnectionError(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{nil, ""},
		{&api.Error{Kind: api.KindNetworkError}, "UNREACHABLE"},
		{&api.Error{Kind: api.KindTimeout}, "TIMEOUT"},
		{&api.Error{Kind: api.KindServerError}, "SERVICE ERROR"},
		{&api.Error{Kind: api.KindForbidden}, "FORBIDDEN"},
		{errors.New("boom"), "ERROR"},
	}
	for _, tt := range tests {
		if got := classifyConnectionError(tt.err); got != tt.want {
			t.Errorf("classifyConnectionError(%v) = %q, want %q", tt.err, got, tt.want)
		}
	}
}

func TestNextLevel(t *testing.T) {
	if got := nextLevel(slog.LevelDebug); got != slog.LevelInfo {
		t.Errorf("nextLevel(debug) = %v", got)
	}
	if got := nextLevel(slog.LevelError); got != slog.LevelDebug {
		t.Errorf("nextLevel(error) = %v, want wrap to debug", got)
	}
}

func TestFormatDays(t *testing.T) {
	if got := formatDays(12 * time.Hour); got != "1 day" {
		t.Errorf("formatDays(12h) = %q", got)
	}
	if got := formatDays(72 * time.Hour); got != "3 days" {
		t.Errorf("formatDays(72h) = %q", got)
	}
}
