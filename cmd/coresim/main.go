// Command coresim boots a runtime.Core and drives the parser
// happy-path and broker-ordering scenarios, proving the wiring
// compiles and runs end to end, analogous to the teacher's
// cmd/inos-node/main.go demo scenario.
package main

import (
	"context"
	"fmt"
	"time"

	"github.com/firmcore/runtime/internal/checksum"
	"github.com/firmcore/runtime/internal/config"
	"github.com/firmcore/runtime/internal/message"
	"github.com/firmcore/runtime/internal/platform"
	"github.com/firmcore/runtime/internal/protocol"
	"github.com/firmcore/runtime/internal/runtime"
)

func buildFrame(cfg protocol.ParserConfig, opcode uint8, data []byte) []byte {
	frame := append([]byte{}, cfg.Sync...)
	frame = append(frame, opcode)
	if cfg.Length16Bit {
		frame = append(frame, byte(len(data)>>8), byte(len(data)))
	} else {
		frame = append(frame, byte(len(data)))
	}
	frame = append(frame, data...)
	sum := checksum.Fletcher16(frame[len(cfg.Sync):])
	frame = append(frame, byte(sum>>8), byte(sum))
	return frame
}

func runParserScenario() {
	cfg := protocol.DefaultParserConfig()
	ring := protocol.NewByteRing(64)
	parser := protocol.NewParser(cfg)
	dispatcher := protocol.NewDispatcher(8)
	pipeline := protocol.NewPipeline(ring, parser, dispatcher)

	dispatcher.RegisterHandler(0x04, func(pkt *protocol.Packet) {
		fmt.Printf("parser scenario: opcode=0x%02X length=%d data=% X\n", pkt.Opcode, pkt.Length, pkt.Payload())
	})

	frame := buildFrame(cfg, 0x04, []byte{0xDE, 0xAD})
	pipeline.FeedBytes(frame)
	pipeline.ProcessAvailable(0)
}

func runBrokerScenario(c *runtime.Core, p platform.Platform) {
	const topic = 7
	s1, _ := p.Create("s1", 0, func() {})
	s2, _ := p.Create("s2", 0, func() {})
	must(c.Broker.RegisterTask(10, s1))
	must(c.Broker.RegisterTask(11, s2))
	must(c.Broker.Subscribe(topic, 10))
	must(c.Broker.Subscribe(topic, 11))

	send := func(seq uint16, priority message.Priority) {
		msg := message.NewEnvelope(message.SmallPayloadSize)
		msg.Header.SequenceNumber = seq
		msg.Header.Priority = priority
		must(c.Broker.Publish(topic, msg, 0))
	}
	send(1, message.PriorityNormal)
	send(2, message.PriorityHigh)
	send(3, message.PriorityNormal)

	for _, subscriber := range []uint16{10, 11} {
		fmt.Printf("broker scenario: subscriber %d order:", subscriber)
		for {
			msg, err := c.Broker.TryReceive(subscriber)
			if err != nil {
				break
			}
			fmt.Printf(" %d", msg.Header.SequenceNumber)
		}
		fmt.Println()
	}
}

func must(err error) {
	if err != nil {
		panic(err)
	}
}

func main() {
	p := platform.NewDefault(nil)
	c, err := runtime.New(config.DefaultBudget(), p)
	must(err)
	must(c.Start(context.Background()))

	runParserScenario()
	runBrokerScenario(c, p)

	snap, err := c.Snapshot()
	must(err)
	fmt.Printf("diagnostics snapshot: overall=%s sent=%d received=%d dropped=%d goroutines=%d\n",
		snap.Overall, snap.MessagesSent, snap.MessagesReceived, snap.MessagesDropped, snap.Profiler.Goroutines)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	must(c.Shutdown(ctx))
}
