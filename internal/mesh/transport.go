package mesh

import "time"

// Broadcast is the destination for channel-wide transmissions.
const Broadcast = "^all"

// Packet is one inbound text transmission from the radio.
type Packet struct {
	From   string    `json:"from"`
	Text   string    `json:"text"`
	Own    bool      `json:"own"`
	RxTime time.Time `json:"rx_time"`
}

// Sender transmits a text payload to one node, or to the whole channel when
// dest is Broadcast. Delivery is best effort; an error means the local radio
// refused or lost the frame, not that the remote end missed it.
type Sender interface {
	Send(dest, text string) error
}

// Directory resolves node metadata from the radio's node database. Lookups
// are served from a local cache and must not block the router.
type Directory interface {
	NameOf(id string) string
	GPSOf(id string) (lat, lon float64, ok bool)
	NodeCount() int
}
