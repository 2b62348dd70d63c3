package recorder

// NoopRecorder is a no-op implementation used when no journal is configured.
type NoopRecorder struct{}

func NewNoopRecorder() *NoopRecorder { return &NoopRecorder{} }

func (n *NoopRecorder) RecordRun(_ *RunEvent) error     { return nil }
func (n *NoopRecorder) RecordSkip(_ *SkipEvent) error   { return nil }
func (n *NoopRecorder) RecordTrade(_ *TradeEvent) error { return nil }
func (n *NoopRecorder) Close() error                    { return nil }
