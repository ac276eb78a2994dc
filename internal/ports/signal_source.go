package ports

import (
	"time"

	"github.com/bnema/partybot/internal/domain"
)

// SignalSource hands out per-announcement membership signal streams.
//
// The returned channel delivers signals in arrival order and is closed when
// window elapses (zero means no window) or cancel is called.
type SignalSource interface {
	Subscribe(channel domain.ChannelID, message domain.MessageID, window time.Duration) (signals <-chan domain.Signal, cancel func())
}
