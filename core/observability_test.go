package core

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

type capturedCounter struct {
	name  string
	value int64
	tags  map[string]string
}

type capturedHistogram struct {
	name  string
	value float64
	tags  map[string]string
}

type captureMetricsRecorder struct {
	mu         sync.Mutex
	counters   []capturedCounter
	histograms []capturedHistogram
}

func (m *captureMetricsRecorder) IncCounter(_ context.Context, name string, value int64, tags map[string]string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.counters = append(m.counters, capturedCounter{name: name, value: value, tags: cloneTags(tags)})
}

func (m *captureMetricsRecorder) ObserveHistogram(_ context.Context, name string, value float64, tags map[string]string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.histograms = append(m.histograms, capturedHistogram{name: name, value: value, tags: cloneTags(tags)})
}

type capturedLog struct {
	level  string
	msg    string
	fields map[string]any
}

type captureLogger struct {
	mu       *sync.Mutex
	records  *[]capturedLog
	defaults map[string]any
}

func newCaptureLogger() *captureLogger {
	records := []capturedLog{}
	return &captureLogger{mu: &sync.Mutex{}, records: &records, defaults: map[string]any{}}
}

func (l *captureLogger) WithFields(fields map[string]any) Logger {
	merged := cloneFields(l.defaults)
	for key, value := range fields {
		merged[key] = value
	}
	return &captureLogger{mu: l.mu, records: l.records, defaults: merged}
}

func (l *captureLogger) Trace(msg string, args ...any) { l.record("trace", msg, args...) }
func (l *captureLogger) Debug(msg string, args ...any) { l.record("debug", msg, args...) }
func (l *captureLogger) Info(msg string, args ...any)  { l.record("info", msg, args...) }
func (l *captureLogger) Warn(msg string, args ...any)  { l.record("warn", msg, args...) }
func (l *captureLogger) Error(msg string, args ...any) { l.record("error", msg, args...) }
func (l *captureLogger) Fatal(msg string, args ...any) { l.record("fatal", msg, args...) }

func (l *captureLogger) WithContext(context.Context) Logger {
	return &captureLogger{mu: l.mu, records: l.records, defaults: cloneFields(l.defaults)}
}

func (l *captureLogger) record(level string, msg string, args ...any) {
	fields := cloneFields(l.defaults)
	for index := 0; index+1 < len(args); index += 2 {
		key, ok := args[index].(string)
		if !ok {
			continue
		}
		fields[key] = args[index+1]
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	*l.records = append(*l.records, capturedLog{level: level, msg: msg, fields: fields})
}

func (l *captureLogger) snapshot() []capturedLog {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]capturedLog, len(*l.records))
	copy(out, *l.records)
	return out
}

func TestObserver_RecordsSuccess(t *testing.T) {
	logger := newCaptureLogger()
	metrics := &captureMetricsRecorder{}
	observer := NewObserver(logger, metrics)

	observer.Observe(context.Background(), time.Now(), "api call", nil, map[string]any{
		"method": "chat.postMessage",
		"token":  "xoxb-secret",
	})

	if len(metrics.counters) != 1 || metrics.counters[0].name != "slack.api_call.total" {
		t.Fatalf("unexpected counters %#v", metrics.counters)
	}
	if metrics.counters[0].tags["method"] != "chat.postMessage" || metrics.counters[0].tags["status"] != "success" {
		t.Fatalf("unexpected counter tags %#v", metrics.counters[0].tags)
	}
	if len(metrics.histograms) != 1 || metrics.histograms[0].name != "slack.api_call.duration_ms" {
		t.Fatalf("unexpected histograms %#v", metrics.histograms)
	}

	logs := logger.snapshot()
	if len(logs) != 1 || logs[0].level != "debug" {
		t.Fatalf("expected one debug log, got %#v", logs)
	}
	if logs[0].fields["token"] != RedactedValue {
		t.Fatalf("expected token to be redacted in logs, got %#v", logs[0].fields["token"])
	}
}

func TestObserver_RecordsFailure(t *testing.T) {
	logger := newCaptureLogger()
	metrics := &captureMetricsRecorder{}
	observer := NewObserver(logger, metrics)

	observer.Observe(context.Background(), time.Now(), "webhook", errors.New("consumer failed"), nil)

	if metrics.counters[0].tags["status"] != "failure" {
		t.Fatalf("expected failure status tag, got %#v", metrics.counters[0].tags)
	}
	logs := logger.snapshot()
	if len(logs) != 1 || logs[0].level != "error" || logs[0].fields["error"] != "consumer failed" {
		t.Fatalf("unexpected logs %#v", logs)
	}
}

func TestObserver_ZeroValueIsSilent(t *testing.T) {
	var observer Observer
	observer.Observe(context.Background(), time.Now(), "noop", nil, nil)
	observer.Warn(context.Background(), "nothing", nil)
}
