package errors

import (
	"sync"
	"time"
)

// Logger interface for failure logging
type Logger interface {
	Error(msg string, args ...interface{})
	Warn(msg string, args ...interface{})
	Debug(msg string, args ...interface{})
}

// Stats tracks failure statistics
type Stats struct {
	Total         int                 `json:"total"`
	ByType        map[FailureType]int `json:"by_type"`
	Last          *Failure            `json:"last,omitempty"`
	LastErrorTime time.Time           `json:"last_error_time"`
}

// Handler logs failures, counts them and forwards their type to an observer
type Handler struct {
	mu       sync.Mutex
	logger   Logger
	observer func(FailureType)
	stats    Stats
}

// NewHandler creates a handler. Both arguments may be nil.
func NewHandler(logger Logger, observer func(FailureType)) *Handler {
	return &Handler{
		logger:   logger,
		observer: observer,
		stats:    Stats{ByType: make(map[FailureType]int)},
	}
}

// Handle classifies err as a *Failure, records it and returns it
func (h *Handler) Handle(err error) *Failure {
	f := AsFailure(err)
	if f == nil {
		return nil
	}

	h.mu.Lock()
	h.stats.Total++
	h.stats.ByType[f.Type]++
	h.stats.Last = f
	h.stats.LastErrorTime = time.Now()
	h.mu.Unlock()

	if h.logger != nil {
		if f.Type == Cancelled {
			h.logger.Warn("Operation cancelled: %s", f.Error())
		} else {
			h.logger.Error("Failure occurred: %s [%s] %s", f.Type, f.Code, f.Error())
		}
		for key, value := range f.Context {
			h.logger.Debug("Failure context: %s = %s", key, value)
		}
	}
	if h.observer != nil {
		h.observer(f.Type)
	}
	return f
}

// Stats returns a copy of the statistics
func (h *Handler) Stats() Stats {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := h.stats
	out.ByType = make(map[FailureType]int, len(h.stats.ByType))
	for k, v := range h.stats.ByType {
		out.ByType[k] = v
	}
	return out
}

// Reset clears the statistics
func (h *Handler) Reset() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.stats = Stats{ByType: make(map[FailureType]int)}
}
