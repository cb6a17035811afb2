package protocol

// Pipeline connects a ByteRing, Parser, and Dispatcher, ported from
// packet_pipeline.hpp: feed bytes in from a driver/ISR context, drain
// and dispatch packets from any task context.
type Pipeline struct {
	ring       *ByteRing
	parser     *Parser
	dispatcher *Dispatcher
}

// NewPipeline wires ring, parser, and dispatcher together.
func NewPipeline(ring *ByteRing, parser *Parser, dispatcher *Dispatcher) *Pipeline {
	return &Pipeline{ring: ring, parser: parser, dispatcher: dispatcher}
}

// FeedByte stores one byte in the ring. Returns false if the ring is
// full (the byte was dropped).
func (p *Pipeline) FeedByte(b byte) bool { return p.ring.Push(b) }

// FeedBytes stores as many bytes of data as fit, returning the count
// stored.
func (p *Pipeline) FeedBytes(data []byte) int { return p.ring.PushN(data) }

// ProcessAvailable drains the ring through the parser, dispatching each
// completed packet, up to maxPackets (0 means unbounded). Returns the
// number of packets dispatched.
func (p *Pipeline) ProcessAvailable(maxPackets int) int {
	packets := 0
	for maxPackets <= 0 || packets < maxPackets {
		b, ok := p.ring.Pop()
		if !ok {
			break
		}
		if p.parser.Decode(b) && p.parser.HasPacket() {
			var pkt Packet
			if p.parser.GetPacket(&pkt) {
				p.dispatcher.Dispatch(&pkt)
				packets++
			}
		}
	}
	return packets
}

// ProcessBytes drains at most maxBytes from the ring, for time-sliced
// processing loops. Returns bytes processed and packets dispatched.
func (p *Pipeline) ProcessBytes(maxBytes int) (processed, packets int) {
	for processed < maxBytes {
		b, ok := p.ring.Pop()
		if !ok {
			break
		}
		processed++
		if p.parser.Decode(b) && p.parser.HasPacket() {
			var pkt Packet
			if p.parser.GetPacket(&pkt) {
				p.dispatcher.Dispatch(&pkt)
				packets++
			}
		}
	}
	return processed, packets
}
