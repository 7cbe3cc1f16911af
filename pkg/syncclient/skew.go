package syncclient

import (
	"sync"
	"time"
)

const defaultSampleWindow = 8

type sample struct {
	rtt  time.Duration
	skew time.Duration
}

// SkewEstimator estimates the offset between the local clock and the
// coordinator clock from round-trip samples. The sample with the
// smallest RTT carries the least queueing noise, so its skew estimate
// wins.
type SkewEstimator struct {
	mu      sync.Mutex
	samples []sample
	window  int
}

func NewSkewEstimator() *SkewEstimator {
	return &SkewEstimator{window: defaultSampleWindow}
}

// AddSample records one exchange: sentAt and receivedAt are local
// times around the request, serverUnixMs is the coordinator time
// carried in the response.
func (e *SkewEstimator) AddSample(sentAt, receivedAt time.Time, serverUnixMs int64) {
	rtt := receivedAt.Sub(sentAt)
	if rtt < 0 {
		return
	}

	serverTime := time.UnixMilli(serverUnixMs)
	skew := serverTime.Sub(receivedAt.Add(-rtt / 2))

	e.mu.Lock()
	defer e.mu.Unlock()

	e.samples = append(e.samples, sample{rtt: rtt, skew: skew})
	if len(e.samples) > e.window {
		e.samples = e.samples[len(e.samples)-e.window:]
	}
}

// Skew returns the current estimate of coordinatorTime - localTime.
// Zero until the first sample arrives.
func (e *SkewEstimator) Skew() time.Duration {
	e.mu.Lock()
	defer e.mu.Unlock()

	if len(e.samples) == 0 {
		return 0
	}

	best := e.samples[0]
	for _, s := range e.samples[1:] {
		if s.rtt < best.rtt {
			best = s
		}
	}

	return best.skew
}
