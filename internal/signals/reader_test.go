package signals

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/jenbur242/pocket-option/internal/models"
)

const csvHeader = "timestamp,channel,message_id,message_text,is_signal,asset,direction,signal_time\n"

func writeCSV(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

func fixedNow() time.Time {
	// 00:37:30 local, so a 00:38:00 signal is 30 s out.
	return time.Date(2025, 6, 10, 0, 37, 30, 0, time.UTC)
}

func newTestReader(t *testing.T, path string, offset time.Duration) *Reader {
	t.Helper()
	return NewReader(Options{
		File:   path,
		Offset: offset,
		Now:    fixedNow,
	})
}

func TestPollParsesAndSchedules(t *testing.T) {
	content := csvHeader +
		"2025-06-10T00:30:00,vip,101,GBPJPY-OTC CALL 00:38:00,Yes,GBPJPY-OTC,call,00:38:00\n"
	path := writeCSV(t, t.TempDir(), "signals.csv", content)

	r := newTestReader(t, path, 10*time.Second)
	got, err := r.Poll()
	if err != nil {
		t.Fatalf("Poll() error: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("Poll() returned %d signals, want 1", len(got))
	}

	s := got[0]
	if s.Asset != "GBPJPY_otc" {
		t.Errorf("asset = %q, want GBPJPY_otc", s.Asset)
	}
	if s.Direction != models.DirectionCall {
		t.Errorf("direction = %q, want call", s.Direction)
	}
	if s.SignalTime != "00:38:00" {
		t.Errorf("signal_time = %q, want 00:38:00", s.SignalTime)
	}
	wantSignal := time.Date(2025, 6, 10, 0, 38, 0, 0, time.UTC)
	if !s.SignalAt.Equal(wantSignal) {
		t.Errorf("SignalAt = %v, want %v", s.SignalAt, wantSignal)
	}
	// Offset 10 s: trade at 00:37:50, close a minute later at 00:38:50.
	wantTrade := time.Date(2025, 6, 10, 0, 37, 50, 0, time.UTC)
	if !s.TradeAt.Equal(wantTrade) {
		t.Errorf("TradeAt = %v, want %v", s.TradeAt, wantTrade)
	}
	wantClose := time.Date(2025, 6, 10, 0, 38, 50, 0, time.UTC)
	if got := s.TradeAt.Add(TradeDuration); !got.Equal(wantClose) {
		t.Errorf("close instant = %v, want %v", got, wantClose)
	}
}

func TestPollRoundTrip(t *testing.T) {
	rows := []struct {
		asset, direction, signalTime string
		wantAsset                    string
	}{
		{"EURUSD", "call", "00:38:00", "EURUSD"},
		{"GBPJPY-OTC", "put", "00:38", "GBPJPY_otc"},
		{"audcad_otc", "CALL", "00.38", "AUDCAD_otc"},
	}
	content := csvHeader
	for i, row := range rows {
		content += "2025-06-10T00:30:00,vip,msg" + string(rune('a'+i)) + ",text,Yes," +
			row.asset + "," + row.direction + "," + row.signalTime + "\n"
	}
	path := writeCSV(t, t.TempDir(), "signals.csv", content)

	got, err := newTestReader(t, path, 3*time.Second).Poll()
	if err != nil {
		t.Fatalf("Poll() error: %v", err)
	}
	if len(got) != len(rows) {
		t.Fatalf("Poll() returned %d signals, want %d", len(got), len(rows))
	}
	for i, row := range rows {
		s := got[i]
		if s.Asset != row.wantAsset {
			t.Errorf("row %d: asset = %q, want %q", i, s.Asset, row.wantAsset)
		}
		if string(s.Direction) != "call" && string(s.Direction) != "put" {
			t.Errorf("row %d: direction = %q", i, s.Direction)
		}
		if s.SignalTime != row.signalTime {
			t.Errorf("row %d: signal_time = %q, want %q", i, s.SignalTime, row.signalTime)
		}
	}
}

func TestPollSkipsMalformedRows(t *testing.T) {
	content := csvHeader +
		"t,vip,1,text,Yes,GBPJPY-OTC,,00:38:00\n" + // missing direction
		"t,vip,2,text,Yes,,call,00:38:00\n" + // missing asset
		"t,vip,3,text,Yes,EURUSD,call,25:99\n" + // unparseable time
		"t,vip,4,text,Yes,EURUSD,hold,00:38:00\n" + // bad direction
		"t,vip,5,text,No,EURUSD,call,00:38:00\n" + // not a signal
		"t,vip,6,text,Yes,EURUSD,call,soon\n" + // no clock at all
		"t,vip,7,text,Yes,EURUSD,call,00:38:00\n" // the one good row
	path := writeCSV(t, t.TempDir(), "signals.csv", content)

	got, err := newTestReader(t, path, 3*time.Second).Poll()
	if err != nil {
		t.Fatalf("Poll() error: %v", err)
	}
	if len(got) != 1 || got[0].MessageID != "7" {
		t.Fatalf("Poll() = %v, want only message 7", got)
	}
}

func TestPollDispatchWindow(t *testing.T) {
	content := csvHeader +
		"t,vip,1,text,Yes,EURUSD,call,00:38:00\n" + // 20 s out: due
		"t,vip,2,text,Yes,EURUSD,call,00:45:00\n" + // 7.5 min out: too far ahead
		"t,vip,3,text,Yes,EURUSD,call,00:36:30\n" // in the past, rolls to tomorrow
	path := writeCSV(t, t.TempDir(), "signals.csv", content)

	got, err := newTestReader(t, path, 10*time.Second).Poll()
	if err != nil {
		t.Fatalf("Poll() error: %v", err)
	}
	if len(got) != 1 || got[0].MessageID != "1" {
		t.Fatalf("Poll() kept %d signals, want only message 1", len(got))
	}
}

func TestPollDeduplicatesAcrossPolls(t *testing.T) {
	content := csvHeader +
		"t,vip,1,text,Yes,EURUSD,call,00:38:00\n"
	path := writeCSV(t, t.TempDir(), "signals.csv", content)

	r := newTestReader(t, path, 3*time.Second)
	first, err := r.Poll()
	if err != nil {
		t.Fatalf("first Poll() error: %v", err)
	}
	if len(first) != 1 {
		t.Fatalf("first Poll() returned %d, want 1", len(first))
	}
	second, err := r.Poll()
	if err != nil {
		t.Fatalf("second Poll() error: %v", err)
	}
	if len(second) != 0 {
		t.Fatalf("second Poll() returned %d, want 0 (already seen)", len(second))
	}
}

func TestPollSortsByTradeInstant(t *testing.T) {
	content := csvHeader +
		"t,vip,1,text,Yes,EURUSD,call,00:38:10\n" +
		"t,vip,2,text,Yes,GBPUSD,put,00:37:45\n"
	path := writeCSV(t, t.TempDir(), "signals.csv", content)

	got, err := newTestReader(t, path, 3*time.Second).Poll()
	if err != nil {
		t.Fatalf("Poll() error: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("Poll() returned %d, want 2", len(got))
	}
	if got[0].MessageID != "2" || got[1].MessageID != "1" {
		t.Errorf("order = [%s %s], want [2 1]", got[0].MessageID, got[1].MessageID)
	}
}

func TestPollMissingFileIsNotAnError(t *testing.T) {
	r := NewReader(Options{Dir: t.TempDir(), Now: fixedNow})
	got, err := r.Poll()
	if err != nil {
		t.Fatalf("Poll() error: %v", err)
	}
	if got != nil {
		t.Fatalf("Poll() = %v, want nil", got)
	}
}

func TestFileForDate(t *testing.T) {
	day := time.Date(2025, 6, 10, 12, 0, 0, 0, time.UTC)
	want := filepath.Join("/data", "pocketoption_messages_20250610.csv")
	if got := FileForDate("/data", day); got != want {
		t.Errorf("FileForDate = %q, want %q", got, want)
	}
}

func TestResolveClockTimeRollsForward(t *testing.T) {
	now := fixedNow()

	past, err := resolveClockTime("00:10:00", now)
	if err != nil {
		t.Fatal(err)
	}
	if past.Day() != now.Day()+1 {
		t.Errorf("past clock time resolved to day %d, want tomorrow", past.Day())
	}

	future, err := resolveClockTime("00:38", now)
	if err != nil {
		t.Fatal(err)
	}
	if future.Day() != now.Day() {
		t.Errorf("future clock time resolved to day %d, want today", future.Day())
	}
	if future.Second() != 0 {
		t.Errorf("HH:MM seconds = %d, want 0", future.Second())
	}
}

func TestNormalizeAsset(t *testing.T) {
	tests := []struct {
		in            string
		want          string
		wantSupported bool
	}{
		{"EURUSD", "EURUSD", true},
		{"eurusd", "EURUSD", true},
		{"GBPJPY", "GBPJPY_otc", true},
		{"GBPJPY-OTC", "GBPJPY_otc", true},
		{"AUDCAD-OTCp", "AUDCAD_otc", true},
		{"gbpusd_otc", "GBPUSD_otc", true},
		{"XAUUSD", "XAUUSD", false},
		{"BTCUSD-OTC", "BTCUSD_otc", false},
		{"", "", false},
	}
	for _, tt := range tests {
		got, supported := NormalizeAsset(tt.in)
		if got != tt.want || supported != tt.wantSupported {
			t.Errorf("NormalizeAsset(%q) = (%q, %v), want (%q, %v)",
				tt.in, got, supported, tt.want, tt.wantSupported)
		}
	}
}
