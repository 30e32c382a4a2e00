// Package signals reads trade signals from the CSV files produced by the
// Telegram scraper and turns them into scheduled trades: parse the clock
// time, resolve it to today or tomorrow, subtract the entry offset, and drop
// anything outside the dispatch window.
package signals

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/jenbur242/pocket-option/internal/models"
)

// TradeDuration is how long every placed option runs. The broker settles
// binary options on whole-minute boundaries.
const TradeDuration = 60 * time.Second

// Options configures a Reader.
type Options struct {
	// File is an explicit CSV path. When empty the Reader polls the
	// date-based file pocketoption_messages_YYYYMMDD.csv under Dir.
	File string
	Dir  string
	// Offset is subtracted from the signal time to get the entry instant.
	Offset time.Duration
	// MaxLag drops signals whose entry instant is further in the past.
	MaxLag time.Duration
	// MaxLead drops signals whose entry instant is further in the future.
	MaxLead time.Duration
	Logger  *log.Logger
	// Now overrides the clock in tests.
	Now func() time.Time
}

// Reader polls a signal CSV and yields due, deduplicated signals.
type Reader struct {
	opts Options
	seen map[string]bool
	now  func() time.Time
	log  *log.Logger
}

// NewReader creates a Reader. Missing option values get the production
// defaults: 3 s offset, 2 m lag, 60 s lead.
func NewReader(opts Options) *Reader {
	if opts.Offset == 0 {
		opts.Offset = 3 * time.Second
	}
	if opts.MaxLag == 0 {
		opts.MaxLag = 2 * time.Minute
	}
	if opts.MaxLead == 0 {
		opts.MaxLead = 60 * time.Second
	}
	if opts.Dir == "" {
		opts.Dir = "."
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	logger := opts.Logger
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	return &Reader{opts: opts, seen: make(map[string]bool), now: now, log: logger}
}

// FileForDate returns the scraper's date-based CSV name for the given day.
func FileForDate(dir string, t time.Time) string {
	return filepath.Join(dir, fmt.Sprintf("pocketoption_messages_%s.csv", t.Format("20060102")))
}

// path resolves the CSV file the reader should poll right now.
func (r *Reader) path() string {
	if r.opts.File != "" {
		return r.opts.File
	}
	return FileForDate(r.opts.Dir, r.now())
}

// Poll reads the signal file and returns new signals inside the dispatch
// window, sorted by entry instant. Signals already returned by a previous
// poll are suppressed by (message_id, signal_time). A missing file is not an
// error; the scraper may simply not have produced today's file yet.
func (r *Reader) Poll() ([]models.Signal, error) {
	path := r.path()
	f, err := os.Open(path) // #nosec G304 -- path comes from validated config
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("opening signal file: %w", err)
	}
	defer f.Close()

	signals, err := r.parse(f)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}

	fresh := signals[:0]
	for _, s := range signals {
		if r.seen[s.Key()] {
			continue
		}
		r.seen[s.Key()] = true
		fresh = append(fresh, s)
	}
	sort.Slice(fresh, func(i, j int) bool { return fresh[i].TradeAt.Before(fresh[j].TradeAt) })
	return fresh, nil
}

// CSV column indices, resolved from the header row.
type columns struct {
	channel, messageID, messageText, isSignal, asset, direction, signalTime int
}

func resolveColumns(header []string) (columns, error) {
	idx := map[string]int{}
	for i, name := range header {
		idx[strings.TrimSpace(strings.ToLower(name))] = i
	}
	required := []string{"is_signal", "asset", "direction", "signal_time"}
	for _, name := range required {
		if _, ok := idx[name]; !ok {
			return columns{}, fmt.Errorf("signal file missing column %q", name)
		}
	}
	get := func(name string) int {
		if i, ok := idx[name]; ok {
			return i
		}
		return -1
	}
	return columns{
		channel:     get("channel"),
		messageID:   get("message_id"),
		messageText: get("message_text"),
		isSignal:    get("is_signal"),
		asset:       get("asset"),
		direction:   get("direction"),
		signalTime:  get("signal_time"),
	}, nil
}

func field(record []string, i int) string {
	if i < 0 || i >= len(record) {
		return ""
	}
	return strings.TrimSpace(record[i])
}

// parse reads every row, keeping well-formed signal rows inside the dispatch
// window. Malformed rows are skipped, never fatal.
func (r *Reader) parse(src io.Reader) ([]models.Signal, error) {
	cr := csv.NewReader(src)
	cr.FieldsPerRecord = -1

	header, err := cr.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading header: %w", err)
	}
	cols, err := resolveColumns(header)
	if err != nil {
		return nil, err
	}

	now := r.now()
	var signals []models.Signal
	for {
		record, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			// Bad quoting or similar; skip the row like the scraper's
			// consumers always have.
			continue
		}

		if field(record, cols.isSignal) != "Yes" {
			continue
		}
		rawAsset := field(record, cols.asset)
		direction := models.Direction(strings.ToLower(field(record, cols.direction)))
		timeStr := field(record, cols.signalTime)
		if rawAsset == "" || timeStr == "" || !direction.Valid() {
			continue
		}

		signalAt, err := resolveClockTime(timeStr, now)
		if err != nil {
			continue
		}
		tradeAt := signalAt.Add(-r.opts.Offset)
		until := tradeAt.Sub(now)
		if until < -r.opts.MaxLag || until > r.opts.MaxLead {
			continue
		}

		asset, supported := NormalizeAsset(rawAsset)
		if !supported {
			r.log.Printf("unknown asset %s; trade will run in paper mode", rawAsset)
		}

		signals = append(signals, models.Signal{
			MessageID:   field(record, cols.messageID),
			Channel:     field(record, cols.channel),
			Asset:       asset,
			Direction:   direction,
			SignalTime:  timeStr,
			SignalAt:    signalAt,
			TradeAt:     tradeAt,
			MessageText: field(record, cols.messageText),
			Unsupported: !supported,
		})
	}
	return signals, nil
}

// resolveClockTime parses HH:MM:SS, HH:MM, or HH.MM and anchors it to now's
// day, rolling to tomorrow when the moment has already passed.
func resolveClockTime(s string, now time.Time) (time.Time, error) {
	var hour, min, sec int
	var err error
	switch {
	case strings.Count(s, ":") == 2:
		hour, min, sec, err = splitClock(s, ":", true)
	case strings.Count(s, ":") == 1:
		hour, min, sec, err = splitClock(s, ":", false)
	case strings.Contains(s, "."):
		hour, min, sec, err = splitClock(s, ".", false)
	default:
		return time.Time{}, fmt.Errorf("unrecognized time %q", s)
	}
	if err != nil {
		return time.Time{}, err
	}
	if hour > 23 || min > 59 || sec > 59 {
		return time.Time{}, fmt.Errorf("clock values out of range in %q", s)
	}

	at := time.Date(now.Year(), now.Month(), now.Day(), hour, min, sec, 0, now.Location())
	if !at.After(now) {
		at = at.AddDate(0, 0, 1)
	}
	return at, nil
}

func splitClock(s, sep string, withSeconds bool) (hour, min, sec int, err error) {
	parts := strings.Split(s, sep)
	want := 2
	if withSeconds {
		want = 3
	}
	if len(parts) != want {
		return 0, 0, 0, fmt.Errorf("unrecognized time %q", s)
	}
	if hour, err = strconv.Atoi(parts[0]); err != nil || hour < 0 {
		return 0, 0, 0, fmt.Errorf("bad hour in %q", s)
	}
	if min, err = strconv.Atoi(parts[1]); err != nil || min < 0 {
		return 0, 0, 0, fmt.Errorf("bad minute in %q", s)
	}
	if withSeconds {
		if sec, err = strconv.Atoi(parts[2]); err != nil || sec < 0 {
			return 0, 0, 0, fmt.Errorf("bad second in %q", s)
		}
	}
	return hour, min, sec, nil
}
