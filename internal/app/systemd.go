package app

import (
	"github.com/coreos/go-systemd/v22/daemon"

	logx "sigrelay/pkg/logx"
)

// sdNotify reports state to systemd. It is a no-op outside a
// Type=notify unit.
func sdNotify(log logx.Logger, state string) {
	sent, err := daemon.SdNotify(false, state)
	if err != nil {
		log.Warn("systemd notify failed", logx.String("state", state), logx.Err(err))
		return
	}
	if sent {
		log.Debug("systemd notified", logx.String("state", state))
	}
}
