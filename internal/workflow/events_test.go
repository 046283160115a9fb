package workflow

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("ChannelEmitter", func() {
	var emitter *ChannelEmitter

	BeforeEach(func() {
		emitter = NewChannelEmitter(8)
	})

	It("should deliver events to the subscriber in emission order", func() {
		emitter.Emit(Event{Type: EventStepStart, Step: StepExtract})
		emitter.Emit(Event{Type: EventStepSuccess, Step: StepExtract})
		emitter.Emit(Event{Type: EventFinished})
		emitter.Close()

		received := make([]Event, 0, 3)
		for ev := range emitter.Events() {
			received = append(received, ev)
		}
		Expect(stepTrace(received)).To(Equal([]string{
			"step-start/extract",
			"step-success/extract",
			"finished",
		}))
	})

	It("should end the subscriber loop on close", func() {
		emitter.Close()
		_, open := <-emitter.Events()
		Expect(open).To(BeFalse())
	})
})
