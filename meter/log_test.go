package meter_test

import (
	"bytes"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/ineyio/imagegate"
	"github.com/ineyio/imagegate/meter"
)

func newBufferedMeter() (*meter.LogMeter, *bytes.Buffer) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	return meter.NewLogMeter(logger), &buf
}

func TestLogMeter_Admission(t *testing.T) {
	m, buf := newBufferedMeter()

	m.OnAdmission(imagegate.AdmissionEvent{RequestID: "r1", Outcome: imagegate.OutcomeAdmitted, Active: 2, Waited: 1500 * time.Millisecond})
	assert.Contains(t, buf.String(), "admission_admitted")
	assert.Contains(t, buf.String(), "waited_ms=1500")

	buf.Reset()
	m.OnAdmission(imagegate.AdmissionEvent{RequestID: "r1", Outcome: imagegate.OutcomeReleased, Error: errors.New("boom")})
	assert.Contains(t, buf.String(), "level=WARN")
	assert.Contains(t, buf.String(), "error=boom")

	buf.Reset()
	m.OnAdmission(imagegate.AdmissionEvent{RequestID: "r2", Outcome: imagegate.OutcomeRefused, DailyUsed: 250})
	assert.Contains(t, buf.String(), "admission_refused")
	assert.Contains(t, buf.String(), "daily_used=250")
}

func TestLogMeter_Result(t *testing.T) {
	m, buf := newBufferedMeter()

	m.OnResult(imagegate.ResultEvent{Generator: "openai", Model: "dall-e-3", Success: true, Images: 1})
	assert.Contains(t, buf.String(), "generator=openai")
	assert.Contains(t, buf.String(), "images=1")

	buf.Reset()
	m.OnResult(imagegate.ResultEvent{Generator: "gemini", Error: imagegate.ErrRateLimited})
	assert.Contains(t, buf.String(), "result_error")
}

func TestNewLogMeter_NilLogger(t *testing.T) {
	assert.NotNil(t, meter.NewLogMeter(nil).Logger)
}
