package dcpx

import "sync"

// StreamConversation ties a locally minted opaque back to the external
// opaque the host supplied and the vbucket the conversation is about.
type StreamConversation struct {
	ExternalOpaque uint32
	VbID           uint16
}

// OpaqueRegistry mints the monotonically increasing opaques the consumer
// uses to name its outbound conversations and maps those minted for
// stream requests back to (external opaque, vbucket) pairs.  An entry
// lives from stream creation until the stream is accepted or torn down.
type OpaqueRegistry struct {
	lock sync.Mutex

	counter uint32
	entries map[uint32]StreamConversation
}

func NewOpaqueRegistry() *OpaqueRegistry {
	return &OpaqueRegistry{
		entries: make(map[uint32]StreamConversation),
	}
}

// Mint returns the next opaque.  Opaques minted for control messages are
// not registered; responses to them carry no conversation state.
func (r *OpaqueRegistry) Mint() uint32 {
	r.lock.Lock()
	defer r.lock.Unlock()

	r.counter++
	return r.counter
}

// Register mints an opaque and records the conversation it names.
func (r *OpaqueRegistry) Register(externalOpaque uint32, vbID uint16) uint32 {
	r.lock.Lock()
	defer r.lock.Unlock()

	r.counter++
	opaque := r.counter

	r.entries[opaque] = StreamConversation{
		ExternalOpaque: externalOpaque,
		VbID:           vbID,
	}

	return opaque
}

// Lookup returns the conversation a minted opaque names, if one exists.
func (r *OpaqueRegistry) Lookup(opaque uint32) (StreamConversation, bool) {
	r.lock.Lock()
	defer r.lock.Unlock()

	conv, ok := r.entries[opaque]
	return conv, ok
}

// Remove erases the entry for a minted opaque, if one exists.
func (r *OpaqueRegistry) Remove(opaque uint32) {
	r.lock.Lock()
	defer r.lock.Unlock()

	delete(r.entries, opaque)
}

// NumEntries returns the number of live conversations.
func (r *OpaqueRegistry) NumEntries() int {
	r.lock.Lock()
	defer r.lock.Unlock()

	return len(r.entries)
}
