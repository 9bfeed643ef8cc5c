package segment

// ChannelNotifier delivers finalized segments over a buffered channel to a
// downstream indexing consumer. When the buffer is full the send blocks
// rather than dropping: delivery is at-least-once, and rotation only
// notifies after the successor segment is already open, so capture itself
// is never held up.
type ChannelNotifier struct {
	ch chan Segment
}

// NewChannelNotifier returns a notifier with the given buffer size.
func NewChannelNotifier(buf int) *ChannelNotifier {
	if buf < 0 {
		buf = 0
	}
	return &ChannelNotifier{ch: make(chan Segment, buf)}
}

// SegmentFinalized implements Notifier.
func (n *ChannelNotifier) SegmentFinalized(seg Segment) {
	n.ch <- seg
}

// Segments is the consumer side of the boundary.
func (n *ChannelNotifier) Segments() <-chan Segment {
	return n.ch
}
