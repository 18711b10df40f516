package dcpx

// controlNegotiator holds the one-shot feature-enable control messages sent
// at the start of a connection.  Step drains them in a fixed order, one per
// call, each exactly once.
type controlNegotiator struct {
	pendingSetPriority       bool
	pendingEnableExtMetaData bool
	pendingValueCompression  bool
	pendingCursorDropping    bool
}

func newControlNegotiator(valueCompression bool) *controlNegotiator {
	return &controlNegotiator{
		pendingSetPriority:       true,
		pendingEnableExtMetaData: true,
		pendingValueCompression:  valueCompression,
		pendingCursorDropping:    true,
	}
}

func (n *controlNegotiator) handlePriority(c *Consumer, producers MessageProducers) EngineCode {
	if !n.pendingSetPriority {
		return EngineFailed
	}

	opaque := c.opaques.Mint()
	ret := c.sendToHost(func() EngineCode {
		return producers.Control(opaque, priorityCtrlMsg, "high")
	})
	n.pendingSetPriority = false
	return ret
}

func (n *controlNegotiator) handleExtMetaData(c *Consumer, producers MessageProducers) EngineCode {
	if !n.pendingEnableExtMetaData {
		return EngineFailed
	}

	opaque := c.opaques.Mint()
	ret := c.sendToHost(func() EngineCode {
		return producers.Control(opaque, extMetadataCtrlMsg, "true")
	})
	n.pendingEnableExtMetaData = false
	return ret
}

func (n *controlNegotiator) handleValueCompression(c *Consumer, producers MessageProducers) EngineCode {
	if !n.pendingValueCompression {
		return EngineFailed
	}

	opaque := c.opaques.Mint()
	ret := c.sendToHost(func() EngineCode {
		return producers.Control(opaque, valueCompressionCtrlMsg, "true")
	})
	n.pendingValueCompression = false
	return ret
}

func (n *controlNegotiator) handleCursorDropping(c *Consumer, producers MessageProducers) EngineCode {
	if !n.pendingCursorDropping {
		return EngineFailed
	}

	opaque := c.opaques.Mint()
	ret := c.sendToHost(func() EngineCode {
		return producers.Control(opaque, cursorDroppingCtrlMsg, "true")
	})
	n.pendingCursorDropping = false
	return ret
}
