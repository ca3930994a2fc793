package meter

import "github.com/ineyio/imagegate"

// NoopMeter is a meter that does nothing.
type NoopMeter struct{}

var _ imagegate.Meter = (*NoopMeter)(nil)

func (m *NoopMeter) OnAdmission(imagegate.AdmissionEvent) {}
func (m *NoopMeter) OnResult(imagegate.ResultEvent)       {}
