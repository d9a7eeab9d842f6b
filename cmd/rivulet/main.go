package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/pion/webrtc/v4"
	"github.com/rivulet-chat/rivulet/pkg/call"
	"github.com/rivulet-chat/rivulet/pkg/channel"
	"github.com/rivulet-chat/rivulet/pkg/config"
	"github.com/rivulet-chat/rivulet/pkg/media"
	"github.com/rivulet-chat/rivulet/pkg/peer"
	"github.com/rivulet-chat/rivulet/pkg/profiling"
	"github.com/rivulet-chat/rivulet/pkg/signaling"
	"github.com/rivulet-chat/rivulet/pkg/telemetry"
	"github.com/rivulet-chat/rivulet/pkg/webrtcext"
	"github.com/sirupsen/logrus"
)

func main() {
	// Parse command line flags.
	var (
		configFilePath = flag.String("config", "config.yaml", "configuration file path")
		cpuProfile     = flag.String("cpuProfile", "", "write CPU profile to `file`")
		memProfile     = flag.String("memProfile", "", "write memory profile to `file`")
	)
	flag.Parse()

	// Initialize logging subsystem (formatting, global logging framework etc).
	logrus.SetFormatter(&logrus.TextFormatter{FullTimestamp: true, ForceColors: true})

	// Define functions that are called before exiting.
	// This is useful to stop the profiler if it's enabled.
	deferredFunctions := []func(){}
	if *cpuProfile != "" {
		deferredFunctions = append(deferredFunctions, profiling.InitCPUProfiling(*cpuProfile))
	}
	if *memProfile != "" {
		deferredFunctions = append(deferredFunctions, profiling.InitMemoryProfiling(*memProfile))
	}

	// Handle signal interruptions.
	interrupted := make(chan os.Signal, 2)
	signal.Notify(interrupted, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-interrupted
		for _, function := range deferredFunctions {
			function()
		}
		os.Exit(0)
	}()

	// Load the config file from the environment variable or path.
	cfg, err := config.LoadConfig(*configFilePath)
	if err != nil {
		logrus.WithError(err).Fatal("could not load config")
		return
	}

	switch cfg.LogLevel {
	case "debug":
		logrus.SetLevel(logrus.DebugLevel)
	case "info":
		logrus.SetLevel(logrus.InfoLevel)
	case "warn":
		logrus.SetLevel(logrus.WarnLevel)
	case "error":
		logrus.SetLevel(logrus.ErrorLevel)
	case "fatal":
		logrus.SetLevel(logrus.FatalLevel)
	case "panic":
		logrus.SetLevel(logrus.PanicLevel)
	default:
		logrus.SetLevel(logrus.InfoLevel)
	}

	if cfg.Telemetry.Enabled() {
		provider, err := telemetry.Setup(context.Background(), cfg.Telemetry)
		if err != nil {
			logrus.WithError(err).Fatal("could not set up telemetry")
			return
		}
		defer func() {
			_ = provider.Shutdown(context.Background())
		}()
	}

	// Connect to the signaling relay.
	relay, err := signaling.Connect(cfg.Relay)
	if err != nil {
		logrus.WithError(err).Fatal("could not connect to the relay")
		return
	}
	defer relay.Close()

	// Set up local capture and the shared WebRTC API.
	acquirer, err := media.NewAcquirer()
	if err != nil {
		logrus.WithError(err).Fatal("could not set up media capture")
		return
	}
	factory, err := webrtcext.NewPeerConnectionFactory(cfg.WebRTC, acquirer.EngineSetup())
	if err != nil {
		logrus.WithError(err).Fatal("could not create peer connection factory")
		return
	}

	negotiate := func(callID string, sink *channel.Sink[string, peer.MessageContent]) (call.Negotiator, error) {
		logger := logrus.WithFields(logrus.Fields{"component": "peer", "call": callID})
		negotiator, err := peer.NewPeer(factory, sink, logger)
		if err != nil {
			return nil, err
		}
		return negotiator, nil
	}

	engine := call.NewEngine(
		cfg.Call,
		relay,
		relay.Events(),
		acquirer,
		negotiate,
		call.PeerInfo{Name: relay.DisplayName(), AvatarURL: relay.AvatarURL()},
		consoleCallbacks(),
	)
	defer engine.Stop()

	logrus.Infof("registered as %s, waiting for commands", relay.EndpointID())
	runPrompt(engine)
}

// consoleCallbacks renders call activity on stdout. A real UI would subscribe
// the same way.
func consoleCallbacks() call.Callbacks {
	return call.Callbacks{
		OnIncomingCall: func(incoming call.IncomingCall) {
			kind := "audio"
			if incoming.IsVideo {
				kind = "video"
			}
			fmt.Printf("incoming %s call from %s (%s), `accept` or `reject`\n", kind, incoming.Caller.Name, incoming.From)
		},
		OnStateChange: func(status call.Status) {
			fmt.Printf("call is now %s\n", status)
		},
		OnRemoteTrack: func(track *webrtc.TrackRemote) {
			fmt.Printf("receiving remote %s\n", track.Kind())
		},
		OnCallEnded: func(reason string) {
			fmt.Printf("call ended: %s\n", reason)
		},
		OnError: func(message string) {
			fmt.Printf("error: %s\n", message)
		},
	}
}

// runPrompt reads commands from stdin until EOF.
func runPrompt(engine *call.Engine) {
	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		fields := strings.Fields(scanner.Text())
		if len(fields) == 0 {
			continue
		}

		var err error
		switch fields[0] {
		case "call":
			if len(fields) < 2 {
				fmt.Println("usage: call <endpoint> [video]")
				continue
			}
			video := len(fields) > 2 && fields[2] == "video"
			var callID string
			callID, err = engine.StartCall(fields[1], video)
			if err == nil {
				fmt.Printf("calling %s (%s)\n", fields[1], callID)
			}
		case "accept":
			err = engine.AcceptCall()
		case "reject":
			err = engine.RejectCall()
		case "end":
			err = engine.EndCall()
		case "mute":
			err = engine.ToggleAudio(false)
		case "unmute":
			err = engine.ToggleAudio(true)
		case "video":
			if len(fields) < 2 || (fields[1] != "on" && fields[1] != "off") {
				fmt.Println("usage: video on|off")
				continue
			}
			err = engine.ToggleVideo(fields[1] == "on")
		case "share":
			err = engine.StartScreenShare()
		case "unshare":
			err = engine.StopScreenShare()
		case "status":
			fmt.Printf("status: %s\n", engine.Status())
		case "quit", "exit":
			return
		default:
			fmt.Println("commands: call, accept, reject, end, mute, unmute, video, share, unshare, status, quit")
		}

		if err != nil {
			fmt.Printf("error: %s\n", err)
		}
	}
}
