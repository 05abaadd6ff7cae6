package hub

import "time"

// deleted notices are kept this long to shadow late replicated inserts
const noticeRetention = 8 * time.Hour

func (h *Hub) presenceLoop(interval time.Duration) {
	defer close(h.done)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-h.quit:
			return
		case <-ticker.C:
			h.broadcastPresence()
			h.notices.GC(h.scheduler.Now().Add(-noticeRetention).UnixNano())
		}
	}
}

func (h *Hub) broadcastPresence() {
	h.emitLocal("update", countUpdate{Type: "count", Value: h.Count(), PID: h.id}, connected)
}
