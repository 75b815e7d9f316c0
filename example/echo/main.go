// Command echo connects to a WebSocket echo server, sends a rate limited
// stream of messages and prints what comes back.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"time"

	"golang.org/x/time/rate"

	"github.com/dsato80/starscream"
)

func main() {
	addr := flag.String("addr", "wss://echo.websocket.org", "echo server url")
	n := flag.Int("n", 10, "number of messages to send")
	flag.Parse()

	err := run(*addr, *n)
	if err != nil {
		log.Fatal(err)
	}
}

func run(addr string, n int) error {
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	ws, err := starscream.New(addr)
	if err != nil {
		return err
	}

	received := make(chan string)
	done := make(chan error, 1)

	ws.OnText = func(text string) {
		received <- text
	}
	ws.OnDisconnect = func(err error) {
		done <- err
	}
	ws.OnConnect = func() {
		go func() {
			// At most one message every 100ms so we do not hammer
			// public echo servers.
			l := rate.NewLimiter(rate.Every(100*time.Millisecond), 1)
			for i := 0; i < n; i++ {
				if err := l.Wait(ctx); err != nil {
					return
				}
				ws.WriteText(fmt.Sprintf("message %v", i))
			}
		}()
	}

	err = ws.Connect(ctx)
	if err != nil {
		return err
	}

	for i := 0; i < n; i++ {
		select {
		case text := <-received:
			fmt.Println("echoed:", text)
		case err := <-done:
			return fmt.Errorf("disconnected early: %w", err)
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	ws.Disconnect(5 * time.Second)
	select {
	case <-done:
	case <-ctx.Done():
	}
	return nil
}
