package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/charmbracelet/fang"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/sync/errgroup"

	"github.com/startuphub/callhub/api"
	"github.com/startuphub/callhub/internal/config"
	"github.com/startuphub/callhub/internal/logging"
	"github.com/startuphub/callhub/pkg/call"
	"github.com/startuphub/callhub/pkg/signaling"
	"github.com/startuphub/callhub/pkg/webrtc"
)

func main() {
	var configPath string
	var logFilePtr *os.File

	root := &cobra.Command{
		Use:   "callhub",
		Short: "Polling-based call signaling for rooms",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if err := config.Load(configPath); err != nil {
				return err
			}
			f, err := logging.Configure(viper.GetString("loglevel"), viper.GetString("logfile"))
			if err != nil {
				return err
			}
			logFilePtr = f
			return nil
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if logFilePtr != nil {
				logFilePtr.Close()
			}
		},
	}
	root.PersistentFlags().StringVar(&configPath, "config", "", "Path to config file")

	root.AddCommand(serveCommand())
	root.AddCommand(joinCommand())

	if err := fang.Execute(context.Background(), root); err != nil {
		os.Exit(1)
	}
}

func serveCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the signaling service",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			server := &http.Server{
				Addr:    viper.GetString("listen_addr"),
				Handler: api.NewServer(signaling.NewHub()),
			}

			g, gctx := errgroup.WithContext(ctx)
			g.Go(func() error {
				fmt.Printf("signaling service listening on %s\n", server.Addr)
				if err := server.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
					return err
				}
				return nil
			})
			g.Go(func() error {
				<-gctx.Done()
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				return server.Shutdown(shutdownCtx)
			})
			return g.Wait()
		},
	}
}

func joinCommand() *cobra.Command {
	var (
		roomID   string
		roomName string
		userID   string
		username string
		video    bool
		callPeer string
	)

	cmd := &cobra.Command{
		Use:   "join",
		Short: "Join a room and coordinate call signaling",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			if userID == "" {
				userID = uuid.New().String()
			}
			kind := call.KindAudio
			if video {
				kind = call.KindVideo
			}

			coordinator, err := call.NewCoordinator(call.Options{
				RoomID:             roomID,
				RoomName:           roomName,
				UserID:             userID,
				Username:           username,
				Kind:               kind,
				Transport:          api.NewClient(viper.GetString("server_url"), userID),
				Connector:          webrtc.NewConnector(webrtc.Config{ICEServers: viper.GetStringSlice("ice_servers")}),
				PollInterval:       viper.GetDuration("poll_interval"),
				PollTimeout:        viper.GetDuration("poll_timeout"),
				FailureThreshold:   viper.GetInt("transport_failure_threshold"),
				CandidateBufferCap: viper.GetInt("candidate_buffer_cap"),
				CallTTL:            viper.GetDuration("call_ttl"),
			})
			if err != nil {
				return err
			}

			g, gctx := errgroup.WithContext(ctx)
			g.Go(func() error {
				return coordinator.Run(gctx)
			})
			g.Go(func() error {
				printEvents(gctx, coordinator.Events())
				return nil
			})

			if callPeer != "" {
				coordinator.HandleRoomAnnouncement(roomID, userID, username, string(kind), uuid.New().String(), roomName)
				if err := coordinator.StartCall(ctx, callPeer); err != nil {
					stop()
					_ = g.Wait()
					return err
				}
			}

			return g.Wait()
		},
	}

	cmd.Flags().StringVar(&roomID, "room", "", "Room id to join")
	cmd.Flags().StringVar(&roomName, "room-name", "", "Room display name")
	cmd.Flags().StringVar(&userID, "user", "", "User id (generated when empty)")
	cmd.Flags().StringVar(&username, "name", "User", "Display name")
	cmd.Flags().BoolVar(&video, "video", false, "Start with video enabled")
	cmd.Flags().StringVar(&callPeer, "call", "", "Peer id to call after joining")
	_ = cmd.MarkFlagRequired("room")

	return cmd
}

func printEvents(ctx context.Context, events <-chan call.Event) {
	for {
		select {
		case <-ctx.Done():
			return
		case e := <-events:
			switch ev := e.(type) {
			case call.IncomingCallEvent:
				fmt.Printf("incoming %s call from %s (%s)\n", ev.Kind, ev.CallerName, ev.CallerID)
			case call.SessionStateChangedEvent:
				fmt.Printf("session %s -> %s\n", ev.PeerID, ev.State)
			case call.CallAnnouncedEvent:
				fmt.Printf("call announced in %s by %s\n", ev.Record.RoomID, ev.Record.InitiatorName)
			case call.CallFailedEvent:
				fmt.Printf("call failed: %v\n", ev.Err)
			}
		}
	}
}
