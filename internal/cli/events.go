package cli

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"github.com/gorilla/websocket"
	"github.com/soyeahso/mercora/internal/auth"
	"github.com/soyeahso/mercora/internal/config"
	"github.com/soyeahso/mercora/internal/gateway"
	"github.com/spf13/cobra"
)

func newEventsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "events",
		Short: "Follow gateway lifecycle events",
	}

	cmd.AddCommand(newEventsWatchCmd())
	return cmd
}

func newEventsWatchCmd() *cobra.Command {
	var (
		url    string
		apiKey string
		raw    bool
	)

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Stream lifecycle events from a running gateway",
		Long: "Connects to the gateway event stream with an admin agent key and prints " +
			"each event until interrupted. The key defaults to $MERCORA_API_KEY.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if apiKey == "" {
				apiKey = os.Getenv("MERCORA_API_KEY")
			}
			if apiKey == "" {
				return fmt.Errorf("an admin API key is required (--api-key or MERCORA_API_KEY)")
			}
			if url == "" {
				cfg, err := config.Load(paths.Config)
				if err != nil {
					return err
				}
				url = eventsURL(cfg.Gateway)
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			header := http.Header{}
			header.Set(auth.HeaderAPIKey, apiKey)
			conn, resp, err := websocket.DefaultDialer.DialContext(ctx, url, header)
			if err != nil {
				if resp != nil {
					return fmt.Errorf("connecting to %s: %s", url, resp.Status)
				}
				return fmt.Errorf("connecting to %s: %w", url, err)
			}
			defer conn.Close()
			log.Debug().Str("url", url).Msg("event stream connected")

			go func() {
				<-ctx.Done()
				conn.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				conn.Close()
			}()

			out := cmd.OutOrStdout()
			for {
				_, data, err := conn.ReadMessage()
				if err != nil {
					if ctx.Err() != nil || websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
						return nil
					}
					if errors.Is(err, net.ErrClosed) {
						return nil
					}
					return fmt.Errorf("reading event stream: %w", err)
				}
				if raw {
					fmt.Fprintln(out, string(data))
					continue
				}
				fmt.Fprintln(out, formatFrame(data))
			}
		},
	}

	cmd.Flags().StringVar(&url, "url", "", "event stream URL (default from gateway config)")
	cmd.Flags().StringVar(&apiKey, "api-key", "", "admin agent API key")
	cmd.Flags().BoolVar(&raw, "raw", false, "print frames as received JSON")

	return cmd
}

// eventsURL points at the local gateway's event stream.
func eventsURL(gw config.GatewayConfig) string {
	host := "127.0.0.1"
	if gw.Bind == "custom" && gw.CustomBindHost != "" && gw.CustomBindHost != "0.0.0.0" {
		host = gw.CustomBindHost
	}
	scheme := "ws"
	if gw.TLS.Enabled {
		scheme = "wss"
	}
	base := strings.TrimRight(gw.BasePath, "/")
	return fmt.Sprintf("%s://%s%s/events", scheme, net.JoinHostPort(host, strconv.Itoa(gw.Port)), base)
}

func formatFrame(data []byte) string {
	var f gateway.Frame
	if err := json.Unmarshal(data, &f); err != nil || f.Event == "" {
		return string(data)
	}
	return fmt.Sprintf("#%d %-16s %s", f.Seq, f.Event, compact(f.Payload))
}

func compact(raw json.RawMessage) string {
	var b bytes.Buffer
	if err := json.Compact(&b, raw); err != nil {
		return string(raw)
	}
	return b.String()
}
