// Command echonode is a minimal node demonstrating the client library: it
// registers an "echo" API call and greets the hub once connected.
package main

import (
	"context"
	"flag"
	"log/slog"
	"os/signal"
	"syscall"

	"github.com/samcore-io/samcore/internal/packet"
	"github.com/samcore-io/samcore/public/client"
)

func main() {
	socketPath := flag.String("socket", "./samcore.sock", "path to the hub's Unix domain socket")
	hubName := flag.String("hub-name", "samcore", "the hub's registered name")
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	c := client.New(client.Config{
		NodeName:   "echonode",
		HubName:    *hubName,
		SocketPath: *socketPath,
		OnInit: func(c *client.Client) error {
			c.AddApiCall("echo", func(c *client.Client, pkt *packet.Packet) {
				if !packet.CheckArgs(pkt, "text") {
					_ = c.ReturnError(pkt, pkt.ErrorMessage)
					return
				}
				pkt.Result = pkt.Args["text"]
				_ = c.Return(pkt)
			})
			return nil
		},
		OnConnect: func(c *client.Client) error {
			reply, err := c.CallApi(context.Background(), *hubName, "helloWorld", map[string]any{"text": "echonode"}, 0)
			if err != nil {
				return err
			}
			slog.Info("greeted hub", "result", reply.Result)
			return nil
		},
	})

	if err := c.Run(ctx); err != nil && ctx.Err() == nil {
		slog.Error("echonode exited", "error", err)
	}
}
