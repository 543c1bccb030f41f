package mesh

import "sync"

// Sent records one transmitted payload.
type Sent struct {
	Dest string
	Text string
}

// MockTransport is an in-process Sender and Directory for tests and local
// development without a radio attached.
type MockTransport struct {
	mu    sync.Mutex
	sent  []Sent
	names map[string]string
	gps   map[string][2]float64
	fail  bool
}

func NewMockTransport() *MockTransport {
	return &MockTransport{
		names: make(map[string]string),
		gps:   make(map[string][2]float64),
	}
}

func (m *MockTransport) Send(dest, text string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fail {
		return errSendFailed
	}
	m.sent = append(m.sent, Sent{Dest: dest, Text: text})
	return nil
}

func (m *MockTransport) NameOf(id string) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	if name, ok := m.names[id]; ok {
		return name
	}
	return id
}

func (m *MockTransport) GPSOf(id string) (float64, float64, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	pos, ok := m.gps[id]
	return pos[0], pos[1], ok
}

func (m *MockTransport) NodeCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.names)
}

func (m *MockTransport) SetName(id, name string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.names[id] = name
}

func (m *MockTransport) SetGPS(id string, lat, lon float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.gps[id] = [2]float64{lat, lon}
}

func (m *MockTransport) SetFailing(fail bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.fail = fail
}

// SentMessages returns a copy of everything transmitted so far.
func (m *MockTransport) SentMessages() []Sent {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Sent, len(m.sent))
	copy(out, m.sent)
	return out
}

// SentTo filters transmissions by destination.
func (m *MockTransport) SentTo(dest string) []Sent {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Sent
	for _, s := range m.sent {
		if s.Dest == dest {
			out = append(out, s)
		}
	}
	return out
}

func (m *MockTransport) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = nil
}
