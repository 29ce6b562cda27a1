// Package acomms wires the pieces of the acoustic stack together.
package acomms

import (
	"github.com/tsaubergine/goby3/pkg/modem"
	"github.com/tsaubergine/goby3/pkg/queue"
)

// Bind connects a modem driver to a queue manager: transmission
// opportunities pull frames from the manager, and received frames and
// acknowledgments feed back into it. Call before Startup.
func Bind(driver modem.Driver, manager *queue.Manager) {
	driver.SetDataRequestHandler(manager.ProvideOutgoingData)
	driver.SetReceiveHandler(func(msg modem.Message) {
		// the manager logs its own drops
		_ = manager.ReceiveIncomingData(msg)
	})
	driver.SetAckHandler(manager.HandleAck)
}
