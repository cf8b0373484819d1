// cmd/teamwatch/main.go
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"friendsnav/hub"
	"friendsnav/watch"
)

func main() {
	server := flag.String("server", "http://localhost:3000", "base URL of the friendsnav server")
	team := flag.String("team", "", "team id to follow")
	insecure := flag.Bool("insecure", false, "accept self-signed certificates")
	flag.Parse()

	if *team == "" {
		fmt.Fprintln(os.Stderr, "usage: teamwatch -team TEAM_XXXXXXXX [-server URL] [-insecure]")
		os.Exit(2)
	}

	wsURL, err := watch.URL(*server, *team)
	if err != nil {
		log.Fatalf("Invalid server: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log.Printf("Following team %s on %s", *team, wsURL)
	err = watch.Follow(ctx, wsURL, watch.Options{Insecure: *insecure}, watch.Handler{
		OnView: func(p hub.ViewPayload) {
			if p.View == nil {
				return
			}
			fmt.Printf("--- %s (version %d)\n", p.View.TeamID, p.View.Version)
			if mp := p.View.MeetupPoint; mp != nil {
				fmt.Printf("meetup: %s (%.5f, %.5f)\n", mp.Name, mp.Lat, mp.Lng)
			}
			for _, line := range watch.Summarize(p.View) {
				fmt.Println(line)
			}
		},
		OnNotice: func(p hub.NoticePayload) {
			fmt.Printf("! %s: %s\n", p.Code, p.Message)
		},
	})
	if err != nil {
		log.Fatalf("Follow failed: %v", err)
	}
}
