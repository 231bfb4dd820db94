// Package main provides a terminal front end for the agent playground: it
// plays the role the landing page widget plays in the browser.
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"

	"github.com/gookit/color"
	"github.com/joho/godotenv"
	"github.com/samber/lo"

	"github.com/aaliyacoding/progrify/internal/agent"
	"github.com/aaliyacoding/progrify/internal/config"
	"github.com/aaliyacoding/progrify/internal/rtc"
	"github.com/aaliyacoding/progrify/internal/session"
	"github.com/aaliyacoding/progrify/internal/token"
)

// termUI renders session state to the terminal.
type termUI struct{}

func (termUI) SetStatus(s session.Status, message string) {
	switch s {
	case session.StatusConnected:
		color.Green.Printf("[%s] %s\n", s, message)
	case session.StatusConnecting:
		color.Yellow.Printf("[%s] %s\n", s, message)
	default:
		color.Red.Printf("[%s] %s\n", s, message)
	}
}

func (termUI) ShowPersona(p agent.Persona) {
	color.Cyan.Printf("-- %s (%s)\n", p.Name, p.Role)
}

func (termUI) ShowMessage(sender, text string) {
	if sender == session.UserLabel {
		color.Bold.Printf("%s: ", sender)
	} else {
		color.Magenta.Printf("%s: ", sender)
	}
	fmt.Println(text)
}

func (termUI) SetTyping(active bool) {
	if active {
		color.Gray.Println("...")
	}
}

func (termUI) AttachAudio(sid string) {
	log.Printf("Audio track attached: %s", sid)
}

func (termUI) DetachAudio(sid string) {
	log.Printf("Audio track detached: %s", sid)
}

func main() {
	// Optional .env for local development
	_ = godotenv.Load()
	cfg := config.Load()

	url := flag.String("url", cfg.ServerURL, "Real-time server URL")
	tokenEndpoint := flag.String("token-endpoint", cfg.TokenEndpoint, "Token service endpoint")
	rawToken := flag.String("token", "", "Join with this token instead of fetching one")
	name := flag.String("name", "", "Participant display name")
	dev := flag.Bool("dev", false, "Use the plain WebSocket dev transport")
	flag.Parse()

	log.SetFlags(log.Ltime)

	var room rtc.Room
	if *dev {
		room = rtc.NewDevRoom()
	} else {
		room = rtc.NewLiveKitRoom()
	}

	opts := session.Options{
		ServerURL:       *url,
		Token:           *rawToken,
		ParticipantName: *name,
		ConnectTimeout:  cfg.ConnectTimeout,
		TypingDelay:     cfg.TypingDelay,
	}
	if *rawToken == "" {
		opts.TokenClient = token.NewClient(*tokenEndpoint, cfg.TokenTimeout)
	}

	sess := session.New(room, termUI{}, opts)
	defer sess.Close()

	fmt.Println("\nCommands: /connect, /disconnect, /agents, /switch <key>, /quit")
	fmt.Println("Anything else is sent to the agent.")

	// Handle Ctrl+C
	interrupt := make(chan os.Signal, 1)
	signal.Notify(interrupt, os.Interrupt)
	go func() {
		<-interrupt
		fmt.Println("\nInterrupted")
		sess.Close()
		os.Exit(0)
	}()

	scanner := bufio.NewScanner(os.Stdin)
	for {
		fmt.Print("> ")
		if !scanner.Scan() {
			return
		}

		input := strings.TrimSpace(scanner.Text())
		if input == "" {
			continue
		}

		switch {
		case input == "/quit":
			fmt.Println("Bye!")
			return

		case input == "/connect":
			if err := sess.Connect(context.Background()); err != nil {
				log.Printf("Connect failed: %v", err)
			}

		case input == "/disconnect":
			sess.Disconnect()

		case input == "/agents":
			lines := lo.Map(agent.Keys(), func(key string, _ int) string {
				p, _ := agent.Lookup(key)
				marker := " "
				if key == sess.ActiveAgent() {
					marker = "*"
				}
				return fmt.Sprintf("%s %-8s %s - %s", marker, key, p.Name, p.Role)
			})
			fmt.Println(strings.Join(lines, "\n"))

		case strings.HasPrefix(input, "/switch "):
			sess.Switch(strings.TrimSpace(strings.TrimPrefix(input, "/switch ")))

		default:
			if err := sess.Send(input); err != nil {
				log.Printf("Send error: %v", err)
			}
		}
	}
}
