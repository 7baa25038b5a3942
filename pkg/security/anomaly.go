package security

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/pactown/pactown/pkg/log"
	"github.com/pactown/pactown/pkg/types"
)

const (
	// DefaultMaxEvents caps the in-memory anomaly buffer. The on-disk
	// log is append-only and unbounded.
	DefaultMaxEvents = 10000

	// LogFileName is the anomaly log file under the sandbox root.
	LogFileName = ".pactown-anomalies.jsonl"
)

// AnomalyLogger records policy anomalies to an append-only JSON-lines
// file and keeps a bounded in-memory buffer for live queries.
type AnomalyLogger struct {
	mu        sync.Mutex
	path      string
	maxEvents int
	events    []types.AnomalyEvent
	hook      func(types.AnomalyEvent)
	logger    zerolog.Logger
}

// NewAnomalyLogger creates a logger appending to path. An empty path
// disables file output; events are still buffered in memory.
func NewAnomalyLogger(path string) *AnomalyLogger {
	return &AnomalyLogger{
		path:      path,
		maxEvents: DefaultMaxEvents,
		logger:    log.WithComponent("anomaly"),
	}
}

// OnAnomaly registers a hook called synchronously for every event.
// A panicking hook is contained and does not fail the admission path.
func (l *AnomalyLogger) OnAnomaly(hook func(types.AnomalyEvent)) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.hook = hook
}

// Log records one anomaly. The timestamp is filled in when zero.
func (l *AnomalyLogger) Log(event types.AnomalyEvent) {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}

	l.mu.Lock()
	l.events = append(l.events, event)
	if len(l.events) > l.maxEvents {
		l.events = l.events[len(l.events)-l.maxEvents:]
	}
	hook := l.hook
	l.mu.Unlock()

	l.appendFile(event)
	l.emit(event)

	if hook != nil {
		func() {
			defer func() {
				if r := recover(); r != nil {
					l.logger.Error().Interface("panic", r).Msg("Anomaly hook panicked")
				}
			}()
			hook(event)
		}()
	}
}

func (l *AnomalyLogger) appendFile(event types.AnomalyEvent) {
	if l.path == "" {
		return
	}
	data, err := json.Marshal(event)
	if err != nil {
		l.logger.Error().Err(err).Msg("Failed to marshal anomaly event")
		return
	}
	f, err := os.OpenFile(l.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		l.logger.Error().Err(err).Str("path", l.path).Msg("Failed to open anomaly log")
		return
	}
	defer f.Close()
	if _, err := f.Write(append(data, '\n')); err != nil {
		l.logger.Error().Err(err).Str("path", l.path).Msg("Failed to write anomaly log")
	}
}

// emit mirrors the event into the structured log at a level matching
// its severity.
func (l *AnomalyLogger) emit(event types.AnomalyEvent) {
	line := fmt.Sprintf("%s | user=%s service=%s | %s",
		event.Type, event.UserID, event.ServiceID, event.Details)

	switch event.Severity {
	case types.SeverityLow:
		l.logger.Debug().Msg(line)
	case types.SeverityHigh, types.SeverityCritical:
		l.logger.Error().Msg(line)
	default:
		l.logger.Warn().Msg(line)
	}
}

// Recent returns up to n most recent events, oldest first.
func (l *AnomalyLogger) Recent(n int) []types.AnomalyEvent {
	l.mu.Lock()
	defer l.mu.Unlock()

	if n <= 0 || n > len(l.events) {
		n = len(l.events)
	}
	out := make([]types.AnomalyEvent, n)
	copy(out, l.events[len(l.events)-n:])
	return out
}

// Summary aggregates the in-memory buffer for the trailing period.
func (l *AnomalyLogger) Summary(hours int, userID string) Summary {
	since := time.Now().UTC().Add(-time.Duration(hours) * time.Hour)
	return Summarize(l.Recent(0), since, userID, hours)
}

// Summary is an aggregate view of anomaly activity for admin review.
type Summary struct {
	PeriodHours    int                  `json:"period_hours"`
	Total          int                  `json:"total_anomalies"`
	ByType         map[string]int       `json:"by_type"`
	BySeverity     map[string]int       `json:"by_severity"`
	TopUsers       map[string]int       `json:"top_users"`
	RecentCritical []types.AnomalyEvent `json:"recent_critical"`
}

// Summarize aggregates events newer than since, optionally filtered to
// one user. RecentCritical keeps the last ten critical events.
func Summarize(events []types.AnomalyEvent, since time.Time, userID string, hours int) Summary {
	summary := Summary{
		PeriodHours: hours,
		ByType:      make(map[string]int),
		BySeverity:  make(map[string]int),
		TopUsers:    make(map[string]int),
	}

	byUser := make(map[string]int)
	var critical []types.AnomalyEvent
	for _, event := range events {
		if event.Timestamp.Before(since) {
			continue
		}
		if userID != "" && event.UserID != userID {
			continue
		}
		summary.Total++
		summary.ByType[string(event.Type)]++
		summary.BySeverity[string(event.Severity)]++
		if event.UserID != "" {
			byUser[event.UserID]++
		}
		if event.Severity == types.SeverityCritical {
			critical = append(critical, event)
		}
	}

	// Keep the ten busiest users.
	users := make([]string, 0, len(byUser))
	for user := range byUser {
		users = append(users, user)
	}
	sort.Slice(users, func(i, j int) bool {
		if byUser[users[i]] != byUser[users[j]] {
			return byUser[users[i]] > byUser[users[j]]
		}
		return users[i] < users[j]
	})
	if len(users) > 10 {
		users = users[:10]
	}
	for _, user := range users {
		summary.TopUsers[user] = byUser[user]
	}

	if len(critical) > 10 {
		critical = critical[len(critical)-10:]
	}
	summary.RecentCritical = critical
	return summary
}

// ReadLog parses an anomaly log file. Unparseable lines are skipped so
// a torn final write does not hide the rest of the log.
func ReadLog(path string) ([]types.AnomalyEvent, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	defer f.Close()

	var events []types.AnomalyEvent
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		var event types.AnomalyEvent
		if err := json.Unmarshal(scanner.Bytes(), &event); err != nil {
			continue
		}
		events = append(events, event)
	}
	return events, scanner.Err()
}
