package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/man137/Ryda/internal/config"
	driversession "github.com/man137/Ryda/internal/driver-session"
	"github.com/man137/Ryda/internal/driver-session/core/domain/model"
	"github.com/man137/Ryda/internal/driver-session/core/ports/driver"
	"github.com/man137/Ryda/internal/mylogger"
)

func main() {
	configPath := flag.String("config", "config.yml", "path to config file")
	token := flag.String("token", "", "driver session token (JWT)")
	auto := flag.Bool("auto", false, "autopilot: go online and accept every offer")
	lat := flag.Float64("lat", 43.238949, "starting latitude")
	lng := flag.Float64("lng", 76.889709, "starting longitude")
	flag.Parse()

	if *token == "" {
		log.Fatal("Driver token is required")
	}

	cfg, err := config.New(*configPath)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	appLogger, err := mylogger.New(cfg.Log.Level)
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}

	appLogger.Action("driverd_started").Info("Ryda driver client starting up")

	opts := driversession.Options{
		Token:    *token,
		SimStart: model.Coordinates{Lat: *lat, Lng: *lng},
	}

	ui := repl
	if *auto {
		ui = autopilot
	}

	if err := driversession.Run(context.Background(), appLogger, cfg, opts, ui); err != nil {
		appLogger.Error("driver session failed", err)
		os.Exit(1)
	}
}

// repl is the interactive driver console.
func repl(ctx context.Context, cmds driver.SessionCommands) error {
	fmt.Println("Ryda driver console. Type 'help' for commands.")
	scanner := bufio.NewScanner(os.Stdin)

	for {
		fmt.Print("> ")
		if !scanner.Scan() {
			return scanner.Err()
		}
		if ctx.Err() != nil {
			return nil
		}

		fields := strings.Fields(scanner.Text())
		if len(fields) == 0 {
			continue
		}

		switch fields[0] {
		case "help":
			fmt.Println("commands: status | offers | online | offline | accept <rideId> | reject <rideId> | complete | quit")

		case "status":
			snap, err := cmds.Snapshot(ctx)
			if err != nil {
				fmt.Println("error:", err)
				continue
			}
			printStatus(snap)

		case "offers":
			snap, err := cmds.Snapshot(ctx)
			if err != nil {
				fmt.Println("error:", err)
				continue
			}
			if len(snap.Offers) == 0 {
				fmt.Println("no pending offers")
			}
			for _, offer := range snap.Offers {
				fmt.Printf("  %s  %s -> %s  fare %.2f  passenger %s\n",
					offer.RideID, offer.PickupAddress, offer.DestinationAddress,
					offer.EstimatedFare, offer.PassengerName)
			}

		case "online":
			if err := cmds.GoOnline(ctx); err != nil {
				fmt.Println("cannot go online:", err)
			} else {
				fmt.Println("you are online and ready to accept rides")
			}

		case "offline":
			if err := cmds.GoOffline(ctx); err != nil {
				fmt.Println("cannot go offline:", err)
			} else {
				fmt.Println("you are offline")
			}

		case "accept":
			if len(fields) < 2 {
				fmt.Println("usage: accept <rideId>")
				continue
			}
			ride, err := cmds.AcceptOffer(ctx, fields[1])
			if err != nil {
				fmt.Println("cannot accept:", err)
				continue
			}
			fmt.Printf("ride %s accepted, pick up %s at %s\n",
				ride.Offer.RideID, ride.Offer.PassengerName, ride.Offer.PickupAddress)

		case "reject":
			if len(fields) < 2 {
				fmt.Println("usage: reject <rideId>")
				continue
			}
			if err := cmds.RejectOffer(ctx, fields[1]); err != nil {
				fmt.Println("cannot reject:", err)
			}

		case "complete":
			completion, err := cmds.CompleteRide(ctx)
			if err != nil {
				fmt.Println("cannot complete:", err)
				continue
			}
			fmt.Printf("ride %s completed successfully! fare %.2f\n",
				completion.RideID, completion.EstimatedFare)

		case "quit", "exit":
			return nil

		default:
			fmt.Println("unknown command, type 'help'")
		}
	}
}

func printStatus(snap driver.Snapshot) {
	fmt.Printf("status: %s  connection: %s  pending offers: %d\n",
		snap.Status, snap.ConnState, len(snap.Offers))
	if snap.LastLocation != nil {
		fmt.Printf("location: %.6f, %.6f (accuracy %.0fm)\n",
			snap.LastLocation.Latitude, snap.LastLocation.Longitude, snap.LastLocation.AccuracyMeters)
	}
	if snap.GeoErr != nil {
		fmt.Println("location error:", snap.GeoErr)
	}
	if snap.ActiveRide != nil {
		fmt.Printf("active ride: %s to %s\n",
			snap.ActiveRide.Offer.RideID, snap.ActiveRide.Offer.DestinationAddress)
		if snap.ActiveRide.RouteDistanceMeters != nil {
			fmt.Printf("route distance: %.1f km\n", *snap.ActiveRide.RouteDistanceMeters/1000)
		}
	}
}

// autopilot goes online and works every offer it gets, completing rides
// after a short simulated drive. Useful against a staging dispatcher.
func autopilot(ctx context.Context, cmds driver.SessionCommands) error {
	const rideDuration = 15 * time.Second

	ticker := time.NewTicker(2 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}

		snap, err := cmds.Snapshot(ctx)
		if err != nil {
			if errors.Is(err, model.ErrSessionClosed) {
				return nil
			}
			continue
		}

		switch snap.Status {
		case model.StatusOffline:
			// Keep retrying: the toggle is rejected until connected.
			if err := cmds.GoOnline(ctx); err != nil && !errors.Is(err, model.ErrNotConnected) {
				fmt.Println("autopilot: cannot go online:", err)
			}

		case model.StatusAvailable:
			if len(snap.Offers) == 0 {
				continue
			}
			offer := snap.Offers[0]
			if _, err := cmds.AcceptOffer(ctx, offer.RideID); err != nil {
				fmt.Println("autopilot: cannot accept:", err)
			} else {
				fmt.Println("autopilot: accepted ride", offer.RideID)
			}

		case model.StatusInRide:
			if snap.ActiveRide != nil && time.Since(snap.ActiveRide.AcceptedAt) >= rideDuration {
				if completion, err := cmds.CompleteRide(ctx); err == nil {
					fmt.Println("autopilot: completed ride", completion.RideID)
				}
			}
		}
	}
}
