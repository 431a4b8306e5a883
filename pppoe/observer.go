package pppoe

// DropReason classifies a received frame which the discovery engine
// discarded.
type DropReason string

// Reasons for discarding received frames.
const (
	DropMalformed      DropReason = "malformed"
	DropFiltered       DropReason = "filtered"
	DropUnexpectedCode DropReason = "unexpected_code"
	DropNonUnicast     DropReason = "non_unicast"
	DropMissingTags    DropReason = "missing_tags"
	DropFilterMismatch DropReason = "filter_mismatch"
)

// DiscoveryObserver is notified of discovery engine events.  It allows
// an application to instrument discovery, e.g. with metrics.
type DiscoveryObserver interface {
	FrameSent(code PPPoECode)
	FrameReceived(code PPPoECode)
	FrameDropped(reason DropReason)
	WaitTimeout(waiting PPPoECode)
	Rejected(code PPPoECode, tag PPPoETagType)
	OfferAccepted()
	SessionEstablished(advisory bool)
}

type nilObserver struct{}

var _ DiscoveryObserver = nilObserver{}

func (nilObserver) FrameSent(PPPoECode) {}
func (nilObserver) FrameReceived(PPPoECode) {}
func (nilObserver) FrameDropped(DropReason) {}
func (nilObserver) WaitTimeout(PPPoECode) {}
func (nilObserver) Rejected(PPPoECode, PPPoETagType) {}
func (nilObserver) OfferAccepted() {}
func (nilObserver) SessionEstablished(bool) {}
