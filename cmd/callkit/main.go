// Callkit — CLI entry point.
//
// This tool joins a video-interview room as the answerer side of a P2P
// call: it connects to the signaling relay over WebSocket, joins the room,
// acquires the local camera and microphone, and negotiates a live WebRTC
// session with the remote offerer.
//
// It can be launched interactively (no flags) or non-interactively via CLI
// flags (-relay, -room, -interview, -token).
package main

import (
	"context"
	"flag"
	"fmt"
	"net/url"
	"os"
	"os/signal"
	"strings"

	"github.com/pterm/pterm"

	"github.com/lureka/callkit/internal/auth"
	"github.com/lureka/callkit/internal/config"
	"github.com/lureka/callkit/internal/device"
	"github.com/lureka/callkit/internal/session"
	signalpkg "github.com/lureka/callkit/internal/signal"
	"github.com/lureka/callkit/internal/util"
)

var version = "dev"

func main() {
	// Root context — cancelled on Ctrl+C.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	cfg := config.FromEnv()

	// CLI flags override env config.
	relayFlag := flag.String("relay", "", "WebSocket URL of the signaling relay")
	roomFlag := flag.String("room", "", "Room ID to join")
	interviewFlag := flag.String("interview", "", "Interview ID for the room join request")
	tokenFlag := flag.String("token", "", "Bearer token for the relay")
	debugMode := flag.Bool("debug", false, "Enable debug logging")
	flag.Parse()

	if *relayFlag != "" {
		cfg.RelayURL = *relayFlag
	}
	if *tokenFlag != "" {
		cfg.AuthToken = *tokenFlag
	}
	if *debugMode || cfg.Debug {
		util.EnableDebug()
	}

	pterm.Info.Println(fmt.Sprintf("Callkit — v%s", version))
	pterm.Println()

	relayURL, err := normalizeWSURL(cfg.RelayURL)
	if err != nil {
		relayURL = askURL()
	}
	roomID := *roomFlag
	if roomID == "" {
		roomID = askText("Room ID to join")
	}
	interviewID := *interviewFlag

	run(ctx, cfg, relayURL, roomID, interviewID)

	util.LogInfo("session closed")
}

// run executes one interview session from join to leave.
func run(ctx context.Context, cfg config.Config, relayURL, roomID, interviewID string) {
	settingsPath, err := cfg.DeviceSettingsPath()
	if err != nil {
		util.LogError("cannot resolve settings path: %v", err)
		os.Exit(1)
	}

	provider, err := device.NewMediaDevicesProvider()
	if err != nil {
		util.LogError("capture setup failed: %v", err)
		os.Exit(1)
	}
	devices := device.NewManager(provider, device.NewSettingsStore(settingsPath))

	transport := signalpkg.NewClient(signalpkg.Config{
		URL:                  relayURL,
		HandshakeTimeout:     cfg.HandshakeTimeout,
		MaxReconnectAttempts: cfg.MaxReconnectAttempts,
		ReconnectBaseDelay:   cfg.ReconnectBaseDelay,
		ReconnectMaxDelay:    cfg.ReconnectMaxDelay,
	}, &auth.JWT{Raw: cfg.AuthToken})

	controller := session.NewController(transport, devices, nil)

	controller.OnCallEstablished(func() {
		util.LogInfo("call established")
	})
	controller.OnCallClosed(func() {
		util.LogInfo("call closed by remote side")
	})
	controller.OnCallFailed(func(err error) {
		util.LogError("call failed: %v", err)
	})
	controller.OnPresence(func(env signalpkg.Envelope) {
		switch env.Type {
		case signalpkg.TypePeerJoin:
			util.LogInfo("peer %s joined the room", env.From)
		case signalpkg.TypePeerLeave:
			util.LogInfo("peer %s left the room", env.From)
		}
	})
	transport.OnReconnecting(func(attempt int) {
		util.LogWarning("relay connection lost, reconnecting (attempt %d)", attempt)
	})
	transport.OnReconnectFailed(func(err error) {
		util.LogError("could not reach the relay: %v", err)
	})

	spinner, _ := pterm.DefaultSpinner.Start("Joining room...")
	if err := controller.JoinRoom(ctx, roomID, interviewID); err != nil {
		spinner.Fail(fmt.Sprintf("failed to join room: %v", err))
		os.Exit(1)
	}
	spinner.Success(fmt.Sprintf("Joined room %s — waiting for the interviewer", roomID))

	util.StartStatsReporter(ctx)

	<-ctx.Done()
	controller.Leave()
}

// ---------------------------------------------------------------------------
// Helper Functions
// ---------------------------------------------------------------------------

// normalizeWSURL validates and normalizes a raw WebSocket URL string.
func normalizeWSURL(raw string) (string, error) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil || u.Host == "" {
		return "", fmt.Errorf("invalid WebSocket URL: %s", raw)
	}
	scheme := "wss"
	if u.Scheme == "ws" || u.Scheme == "wss" {
		scheme = u.Scheme
	}
	path := u.Path
	if path == "" || path == "/" {
		path = "/ws"
	}
	return fmt.Sprintf("%s://%s%s", scheme, u.Host, path), nil
}

// askURL prompts the user for a valid WebSocket URL until one is entered.
func askURL() string {
	for {
		raw, _ := pterm.DefaultInteractiveTextInput.
			WithDefaultText("Relay URL (e.g. wss://relay.example.com/ws)").
			Show()

		wsURL, err := normalizeWSURL(raw)
		if err == nil {
			pterm.Println()
			return wsURL
		}

		pterm.Println()
		util.LogWarning("invalid input: please enter a valid host or URL")
	}
}

// askText prompts until a non-empty value is entered.
func askText(prompt string) string {
	for {
		raw, _ := pterm.DefaultInteractiveTextInput.
			WithDefaultText(prompt).
			Show()

		if v := strings.TrimSpace(raw); v != "" {
			pterm.Println()
			return v
		}
		util.LogWarning("value must not be empty")
		pterm.Println()
	}
}
