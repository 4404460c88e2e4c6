package comms

// Bus holds tokens between pipeline stages. Spoken tokens wait in the
// outbound queue until delivery; delivered ones wait in the inbound queue
// until assimilation. Each drain hands the queue over and empties it, so a
// token is consumed at most once.
type Bus struct {
	outbound []Envelope
	inbound  []Envelope
}

// Speak enqueues an envelope for delivery.
func (b *Bus) Speak(e Envelope) {
	b.outbound = append(b.outbound, e)
}

// Hear enqueues a delivered envelope for assimilation.
func (b *Bus) Hear(e Envelope) {
	b.inbound = append(b.inbound, e)
}

// DrainOutbound returns every spoken envelope and clears the queue.
func (b *Bus) DrainOutbound() []Envelope {
	out := b.outbound
	b.outbound = nil
	return out
}

// DrainInbound returns every delivered envelope and clears the queue.
func (b *Bus) DrainInbound() []Envelope {
	in := b.inbound
	b.inbound = nil
	return in
}

// Pending returns the queue lengths.
func (b *Bus) Pending() (outbound, inbound int) {
	return len(b.outbound), len(b.inbound)
}
