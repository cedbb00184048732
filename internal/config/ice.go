package config

import (
	"os"
	"strings"

	"github.com/pion/webrtc/v4"
)

// Public STUN for candidate gathering, plus a TURN relay fallback for peers
// behind symmetric NAT. Interview calls must connect even when direct paths
// fail, so the relay credentials ship with the client.
var defaultICEServers = []webrtc.ICEServer{
	{
		URLs: []string{
			"stun:stun.l.google.com:19302",
			"stun:stun1.l.google.com:19302",
		},
	},
	{
		URLs:       []string{"turn:openrelay.metered.ca:443"},
		Username:   "openrelayproject",
		Credential: "openrelayproject",
	},
}

// ICEServers returns the ICE server list, honoring a CALLKIT_STUN_URLS
// override (comma-separated) for self-hosted deployments.
func ICEServers() []webrtc.ICEServer {
	if v := os.Getenv("CALLKIT_STUN_URLS"); v != "" {
		urls := strings.Split(v, ",")
		for i := range urls {
			urls[i] = strings.TrimSpace(urls[i])
		}
		return []webrtc.ICEServer{{URLs: urls}}
	}
	return defaultICEServers
}
