package meter

import (
	"log/slog"

	"github.com/ineyio/imagegate"
)

// LogMeter logs admission and generation events using slog.
type LogMeter struct {
	Logger *slog.Logger
}

var _ imagegate.Meter = (*LogMeter)(nil)

// NewLogMeter creates a LogMeter with the given logger.
// If logger is nil, slog.Default() is used.
func NewLogMeter(logger *slog.Logger) *LogMeter {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogMeter{Logger: logger}
}

func (m *LogMeter) OnAdmission(e imagegate.AdmissionEvent) {
	attrs := []any{
		"request_id", e.RequestID,
		"active", e.Active,
		"daily_used", e.DailyUsed,
	}

	switch e.Outcome {
	case imagegate.OutcomeRefused:
		m.Logger.Warn("admission_refused", attrs...)
	case imagegate.OutcomeWaiting:
		m.Logger.Debug("admission_waiting", attrs...)
	case imagegate.OutcomeAdmitted:
		m.Logger.Info("admission_admitted", append(attrs, "waited_ms", e.Waited.Milliseconds())...)
	case imagegate.OutcomeReleased:
		if e.Error != nil {
			m.Logger.Warn("admission_released", append(attrs, "error", e.Error)...)
			return
		}
		m.Logger.Info("admission_released", attrs...)
	}
}

func (m *LogMeter) OnResult(e imagegate.ResultEvent) {
	if e.Success {
		m.Logger.Info("result",
			"generator", e.Generator,
			"model", e.Model,
			"attempt", e.Attempt,
			"duration_ms", e.Duration.Milliseconds(),
			"images", e.Images,
		)
	} else {
		m.Logger.Warn("result_error",
			"generator", e.Generator,
			"model", e.Model,
			"attempt", e.Attempt,
			"duration_ms", e.Duration.Milliseconds(),
			"error", e.Error,
		)
	}
}
