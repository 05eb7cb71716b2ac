package app

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"testing"
)

func TestMoltdHandler_Format(t *testing.T) {
	var buf bytes.Buffer
	handler := &moltdHandler{w: &buf, runID: "run-123"}
	logger := slog.New(handler)

	logger.Info("post confirmed", "submolt", "catgame", "post_id", "p1")

	line := strings.TrimSuffix(buf.String(), "\n")
	fields := strings.Split(line, "\t")
	if len(fields) != 6 {
		t.Fatalf("fields = %d, want 6: %q", len(fields), line)
	}
	if fields[1] != "INFO" {
		t.Errorf("level = %q", fields[1])
	}
	if fields[2] != "run-123" {
		t.Errorf("run id = %q", fields[2])
	}
	if fields[3] != "post confirmed" {
		t.Errorf("message = %q", fields[3])
	}
	if fields[4] != "submolt=catgame" || fields[5] != "post_id=p1" {
		t.Errorf("attrs = %q, %q", fields[4], fields[5])
	}
}

func TestMoltdHandler_WithAttrs(t *testing.T) {
	var buf bytes.Buffer
	base := &moltdHandler{w: &buf, runID: "run-123"}
	logger := slog.New(base.WithAttrs([]slog.Attr{slog.String("component", "detect")}))

	logger.Warn("scan slow")

	if !strings.Contains(buf.String(), "component=detect") {
		t.Errorf("persistent attr missing: %q", buf.String())
	}
}

func TestMoltdHandler_Enabled(t *testing.T) {
	h := &moltdHandler{}
	if !h.Enabled(context.Background(), slog.LevelDebug) {
		t.Error("handler should accept all levels")
	}
}
