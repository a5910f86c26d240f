package registration

import "github.com/rs/zerolog"

// DiagnosticSink receives a structured diagnostic record when validation
// fails. Implementations must be non-blocking and best-effort: a failing
// sink never affects the validation result.
type DiagnosticSink interface {
	Warn(message, context string, data map[string]string)
}

// SinkFunc adapts a function to the DiagnosticSink interface.
type SinkFunc func(message, context string, data map[string]string)

func (f SinkFunc) Warn(message, context string, data map[string]string) {
	f(message, context, data)
}

type zerologSink struct {
	logger zerolog.Logger
}

// NewZerologSink returns a DiagnosticSink that writes warn-level events
// through the given logger. This is the production wiring; tests inject
// their own sink.
func NewZerologSink(logger zerolog.Logger) DiagnosticSink {
	return &zerologSink{logger: logger}
}

func (s *zerologSink) Warn(message, context string, data map[string]string) {
	evt := s.logger.Warn().Str("context", context)
	d := zerolog.Dict()
	for k, v := range data {
		d.Str(k, v)
	}
	evt.Dict("data", d).Msg(message)
}
