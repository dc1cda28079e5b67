package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gorilla/handlers"
	"github.com/joho/godotenv"
	"github.com/pawhaven/chatkit/internal/chat"
	"github.com/pawhaven/chatkit/internal/config"
	"github.com/pawhaven/chatkit/internal/rest"
	"github.com/pawhaven/chatkit/internal/session"
	"github.com/pawhaven/chatkit/internal/stats"
	"github.com/pawhaven/chatkit/internal/transport"
	"github.com/pawhaven/chatkit/internal/types"
)

var (
	serverURL    string
	socketURL    string
	token        string
	debugAddr    string
	maxReconnect int
)

func main() {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		fmt.Fprintln(os.Stderr, "load .env:", err)
	}

	flag.StringVar(&serverURL, "server", envOr("CHATKIT_SERVER", "http://localhost:8080/api"), "REST base URL")
	flag.StringVar(&socketURL, "ws", envOr("CHATKIT_WS", "ws://localhost:8080/ws"), "websocket URL")
	flag.StringVar(&token, "token", os.Getenv("CHATKIT_TOKEN"), "bearer token")
	flag.StringVar(&debugAddr, "debug-addr", "", "address for the expvar debug endpoint (disabled when empty)")
	flag.IntVar(&maxReconnect, "max-reconnect", 0, "max consecutive reconnect attempts, 0 for unlimited")
	flag.Parse()

	logger := log.New(os.Stderr, "[shelterchat] ", log.LstdFlags)

	cfg, err := config.NewConfig(serverURL, socketURL, token, maxReconnect)
	if err != nil {
		logger.Fatal("config: ", err)
	}

	sess, err := session.FromToken(cfg.Token)
	if err != nil {
		logger.Fatal("session: ", err)
	}
	logger.Printf("session for %s (%s)", sess.UserID, sess.Role)

	mux := http.NewServeMux()
	statsUpdater := stats.NewStatsUpdater(mux)
	statsUpdater.Run()
	defer statsUpdater.Stop()

	if debugAddr != "" {
		go func() {
			handler := handlers.RecoveryHandler()(handlers.LoggingHandler(os.Stderr, mux))
			if err := http.ListenAndServe(debugAddr, handler); err != nil {
				logger.Println("debug server:", err)
			}
		}()
	}

	apiClient := rest.NewClient(cfg.ServerURL, cfg.Token, logger)
	apiClient.OnAuthError = func(err *types.AuthError) {
		logger.Println("credential rejected, re-authentication required:", err)
	}

	conn := transport.NewConnectionManager(cfg.SocketURL, cfg.Token, cfg.MaxReconnectAttempts, logger, statsUpdater)
	client := chat.NewChatClient(sess, conn, apiClient, logger, statsUpdater)

	client.OnConnectionStateChange(func(s types.ConnectionState) {
		fmt.Println("* connection:", s)
	})
	client.SetMessageHandler(func(msg types.Message) {
		fmt.Printf("[%s] %s: %s\n", msg.RoomID, msg.SenderID, msg.Content)
	})

	if err := client.Start(); err != nil {
		logger.Fatal("start: ", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	if err := client.Sync(ctx); err != nil {
		logger.Println("initial sync:", err)
	}
	cancel()

	printRooms(client)

	lines := make(chan string)
	go func() {
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
		close(lines)
	}()

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)

	var focused string
	for {
		select {
		case sig := <-sigs:
			logger.Printf("received signal: %s", sig)
			client.Stop()
			return
		case line, ok := <-lines:
			if !ok {
				client.Stop()
				return
			}
			focused = handleLine(client, logger, focused, line)
		}
	}
}

func handleLine(client *chat.ChatClient, logger *log.Logger, focused, line string) string {
	line = strings.TrimSpace(line)
	if line == "" {
		return focused
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	cmd, arg, _ := strings.Cut(line, " ")
	switch cmd {
	case "/rooms":
		printRooms(client)
	case "/open":
		room, err := client.Directory.OpenForSubject(ctx, arg)
		if err != nil {
			fmt.Println("open:", err)
			return focused
		}
		fmt.Printf("room %s for subject %s\n", room.ID, room.SubjectRef)
	case "/focus":
		if focused != "" {
			client.BlurRoom(focused)
		}
		if _, err := client.FocusRoom(ctx, arg); err != nil {
			fmt.Println("focus:", err)
			return focused
		}
		if _, err := client.LoadOlder(ctx, arg); err != nil {
			fmt.Println("history:", err)
		}
		for _, msg := range client.Store.Messages(arg) {
			fmt.Printf("  %s: %s [%s]\n", msg.SenderID, msg.Content, msg.DeliveryState)
		}
		return arg
	case "/older":
		if focused == "" {
			fmt.Println("no focused room")
			return focused
		}
		more, err := client.LoadOlder(ctx, focused)
		if err != nil {
			fmt.Println("history:", err)
			return focused
		}
		fmt.Printf("%d messages, more=%v\n", client.Store.Size(focused), more)
	case "/hide":
		if err := client.HideRoom(ctx, arg); err != nil {
			fmt.Println("hide:", err)
		}
	case "/resend":
		if focused == "" {
			fmt.Println("no focused room")
			return focused
		}
		if _, err := client.ResendMessage(focused, arg); err != nil {
			fmt.Println("resend:", err)
		}
	case "/unread":
		fmt.Println("unread total:", client.Unread.DisplayedTotal())
	default:
		if focused == "" {
			fmt.Println("no focused room, use /focus <room-id>")
			return focused
		}
		msg, err := client.SendMessage(focused, line)
		if err != nil {
			logger.Println("send:", err)
		}
		fmt.Printf("  you: %s [%s]\n", msg.Content, msg.DeliveryState)
	}
	return focused
}

func printRooms(client *chat.ChatClient) {
	rooms := client.Directory.Rooms()
	if len(rooms) == 0 {
		fmt.Println("no rooms")
		return
	}
	for _, room := range rooms {
		fmt.Printf("%s  subject=%s  unread=%d\n", room.ID, room.SubjectRef, client.Unread.RoomCount(room.ID))
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
