package events

import "go.uber.org/zap"

// CompositeSink fans out one event to multiple emitters. A panicking or
// otherwise misbehaving child is contained so it never blocks its
// siblings; Emit itself never returns an error since Emitter doesn't
// support one.
type CompositeSink struct {
	children []Emitter
	logger   *zap.Logger
}

// NewCompositeSink constructs a CompositeSink over the given children.
func NewCompositeSink(logger *zap.Logger, children ...Emitter) *CompositeSink {
	return &CompositeSink{children: children, logger: logger.With(zap.String("component", "event-composite-sink"))}
}

func (c *CompositeSink) Emit(e Event) {
	for _, child := range c.children {
		c.emitSafely(child, e)
	}
}

func (c *CompositeSink) emitSafely(child Emitter, e Event) {
	defer func() {
		if r := recover(); r != nil {
			c.logger.Error("event sink panicked", zap.Any("recover", r), zap.String("event_type", string(e.Type)))
		}
	}()
	child.Emit(e)
}
