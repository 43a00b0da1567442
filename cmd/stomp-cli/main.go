package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/pior/stompclient"
	"github.com/pior/stompclient/frame"
)

func main() {
	addr := flag.String("addr", "127.0.0.1:61613", "broker address")
	login := flag.String("login", "", "login for CONNECT")
	passcode := flag.String("passcode", "", "passcode for CONNECT")
	flag.Parse()

	logrus.SetLevel(logrus.WarnLevel)

	fmt.Println("STOMP CLI Tool")
	fmt.Println("==============")
	fmt.Println("Commands: send <dest> <body>, subscribe <dest>, unsubscribe <dest>, receive,")
	fmt.Println("          ack <message-id>, begin <tx>, commit <tx>, abort <tx>, stats, quit")
	fmt.Println()

	client, err := stompclient.NewDuplexClient(stompclient.DuplexConfig{
		Address:   *addr,
		QueueSize: 64,
	})
	if err != nil {
		fmt.Printf("Failed to create client: %v\n", err)
		os.Exit(1)
	}

	ctx := context.Background()
	if err := client.Start(ctx); err != nil {
		fmt.Printf("Failed to connect to %s: %v\n", *addr, err)
		os.Exit(1)
	}

	connected, err := client.Connect(ctx, *login, *passcode)
	if err != nil {
		fmt.Printf("CONNECT failed: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Connected to %s (session %s)\n", *addr, connected.Header(frame.HdrSession))

	subs := make(map[string]*stompclient.Subscription)
	scanner := bufio.NewScanner(os.Stdin)
	for {
		fmt.Print("> ")
		if !scanner.Scan() {
			break
		}

		parts := strings.Fields(strings.TrimSpace(scanner.Text()))
		if len(parts) == 0 {
			continue
		}

		switch strings.ToLower(parts[0]) {
		case "send":
			if len(parts) < 3 {
				fmt.Println("Usage: send <destination> <body>")
				continue
			}
			body := strings.Join(parts[2:], " ")
			if err := client.Send(ctx, parts[1], []byte(body), ""); err != nil {
				fmt.Printf("SEND failed: %v\n", err)
			}

		case "subscribe":
			if len(parts) != 2 {
				fmt.Println("Usage: subscribe <destination>")
				continue
			}
			if _, ok := subs[parts[1]]; ok {
				fmt.Printf("Already subscribed to %s\n", parts[1])
				continue
			}
			sub, err := client.Subscribe(ctx, parts[1], stompclient.AckClient, nil)
			if err != nil {
				fmt.Printf("SUBSCRIBE failed: %v\n", err)
				continue
			}
			subs[parts[1]] = sub
			fmt.Printf("Subscribed to %s (id %s)\n", parts[1], sub.ID)

		case "unsubscribe":
			if len(parts) != 2 {
				fmt.Println("Usage: unsubscribe <destination>")
				continue
			}
			sub, ok := subs[parts[1]]
			if !ok {
				fmt.Printf("Not subscribed to %s\n", parts[1])
				continue
			}
			if err := client.Unsubscribe(ctx, sub); err != nil {
				fmt.Printf("UNSUBSCRIBE failed: %v\n", err)
				continue
			}
			delete(subs, parts[1])
			fmt.Printf("Unsubscribed from %s\n", parts[1])

		case "receive":
			recvCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
			msg, err := client.Receive(recvCtx)
			cancel()
			if err == context.DeadlineExceeded {
				fmt.Println("No message within 2s")
				continue
			}
			if err != nil {
				fmt.Printf("Receive failed: %v\n", err)
				continue
			}
			fmt.Printf("MESSAGE %s from %s: %s\n",
				msg.Header(frame.HdrMessageID),
				msg.Header(frame.HdrDestination),
				msg.Body)

		case "ack":
			if len(parts) != 2 {
				fmt.Println("Usage: ack <message-id>")
				continue
			}
			if err := client.Ack(ctx, parts[1], ""); err != nil {
				fmt.Printf("ACK failed: %v\n", err)
			}

		case "begin", "commit", "abort":
			if len(parts) != 2 {
				fmt.Printf("Usage: %s <transaction>\n", parts[0])
				continue
			}
			var err error
			switch strings.ToLower(parts[0]) {
			case "begin":
				err = client.Begin(ctx, parts[1])
			case "commit":
				err = client.Commit(ctx, parts[1])
			case "abort":
				err = client.Abort(ctx, parts[1])
			}
			if err != nil {
				fmt.Printf("%s failed: %v\n", strings.ToUpper(parts[0]), err)
			}

		case "stats":
			s := client.Stats()
			fmt.Printf("Frames sent:         %d\n", s.FramesSent)
			fmt.Printf("Frames received:     %d\n", s.FramesReceived)
			fmt.Printf("Messages dispatched: %d\n", s.MessagesDispatched)
			fmt.Printf("Errors:              %d\n", s.Errors)

		case "quit", "exit":
			if err := client.Disconnect(ctx); err != nil {
				fmt.Printf("Disconnect failed: %v\n", err)
			}
			fmt.Println("Bye")
			return

		default:
			fmt.Printf("Unknown command: %s\n", parts[0])
		}

		select {
		case <-client.Done():
			fmt.Printf("Connection lost: %v\n", client.Err())
			os.Exit(1)
		default:
		}
	}
}
