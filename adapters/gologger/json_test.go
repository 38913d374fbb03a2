package gologger

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"

	glog "github.com/goliatone/go-logger/glog"
)

func TestJSONLoggerWritesStructuredLines(t *testing.T) {
	var out bytes.Buffer
	logger := NewJSONLogger(&out, "debug")

	logger.WithContext(context.Background()).Info("webhook accepted", "delivery_id", "d-1")

	var line map[string]any
	if err := json.Unmarshal(out.Bytes(), &line); err != nil {
		t.Fatalf("decode log line: %v (%s)", err, out.String())
	}
	if line["msg"] != "webhook accepted" || line["delivery_id"] != "d-1" || line["level"] != "info" {
		t.Fatalf("unexpected log line %v", line)
	}
}

func TestJSONLoggerHonorsLevel(t *testing.T) {
	var out bytes.Buffer
	logger := NewJSONLogger(&out, " Warning ")
	logger.Info("dropped")
	logger.Trace("dropped")
	if out.Len() != 0 {
		t.Fatalf("expected info and trace to be filtered, got %s", out.String())
	}
	logger.Fatal("kept")
	if !strings.Contains(out.String(), `"level":"fatal"`) {
		t.Fatalf("expected fatal level label, got %s", out.String())
	}
}

func TestJSONLoggerNamesComponents(t *testing.T) {
	var out bytes.Buffer
	root := NewJSONLogger(&out, "info")

	logger := root.GetLogger("receiver")
	fields, ok := logger.(glog.FieldsLogger)
	if !ok {
		t.Fatalf("expected fields logger")
	}
	fields.WithFields(map[string]any{"topic": "products/update"}).Info("stored")

	got := out.String()
	if !strings.Contains(got, `"logger":"receiver"`) || !strings.Contains(got, `"topic":"products/update"`) {
		t.Fatalf("expected component and fields, got %s", got)
	}
}

func TestResolvePrefersJSONLoggerProvider(t *testing.T) {
	var out bytes.Buffer
	_, logger := Resolve("worker", NewJSONLogger(&out, "info"), nil)
	logger.Info("started")
	if !strings.Contains(out.String(), `"logger":"worker"`) {
		t.Fatalf("expected provider logger, got %s", out.String())
	}
}

func TestNormalizeLevel(t *testing.T) {
	cases := map[string]string{
		"":        glog.DefaultLogLevel,
		"warning": glog.Warn,
		" DEBUG ": "debug",
		"trace":   "trace",
	}
	for input, want := range cases {
		if got := normalizeLevel(input); got != want {
			t.Fatalf("normalize %q: expected %q, got %q", input, want, got)
		}
	}
}
