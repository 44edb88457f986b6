// Package main provides the admin CLI entry point.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"time"

	"connectrpc.com/connect"
	"github.com/alecthomas/kingpin/v2"
	"github.com/joho/godotenv"

	apiconnect "github.com/osa030/onair/internal/api/connect"
)

var (
	app     = kingpin.New("onair-admincli", "onair admin client")
	relay   = app.Flag("relay", "Relay server address").Default("http://localhost:8787").Envar("RELAY_ADMIN_URL").String()
	gate    = app.Flag("gate", "Gate server address").Default("http://localhost:8788").Envar("GATE_ADMIN_URL").String()
	token   = app.Flag("token", "Admin token (or set ADMIN_TOKEN env)").Envar("ADMIN_TOKEN").String()
	timeout = app.Flag("timeout", "Request timeout").Default("10s").Duration()

	// status command
	statusCmd = app.Command("status", "Show the now-playing state")

	// load command
	loadCmd     = app.Command("load", "Load a track from the start")
	loadTrackID = loadCmd.Arg("track-id", "Catalog track ID").Required().Int64()

	// repeat command
	repeatCmd  = app.Command("repeat", "Set the repeat mode")
	repeatMode = repeatCmd.Arg("mode", "Repeat mode").Required().Enum("none", "one", "all")

	// play command
	playCmd = app.Command("play", "Resume playback")

	// pause command
	pauseCmd = app.Command("pause", "Pause playback")

	// tracks command
	tracksCmd = app.Command("tracks", "List the track catalog")

	// track-add command
	trackAddCmd      = app.Command("track-add", "Register a track in the catalog")
	trackAddTitle    = trackAddCmd.Arg("title", "Track title").Required().String()
	trackAddFile     = trackAddCmd.Arg("file", "Media file path served to the overlay").Required().String()
	trackAddDuration = trackAddCmd.Flag("duration", "Duration in seconds").Int()
	trackAddArtist   = trackAddCmd.Flag("artist", "Artist name").String()
	trackAddReady    = trackAddCmd.Flag("ready", "Mark the track ready to play").Bool()

	// track-status command
	trackStatusCmd      = app.Command("track-status", "Set the readiness of a track")
	trackStatusID       = trackStatusCmd.Arg("track-id", "Catalog track ID").Required().Int64()
	trackStatusValue    = trackStatusCmd.Arg("status", "Track status").Required().Enum("pending", "ready", "failed")
	trackStatusDuration = trackStatusCmd.Flag("duration", "Duration in seconds, once known").Int()

	// drain command
	drainCmd = app.Command("drain", "Redeliver the gate fallback queue").Alias("resend")

	// queue command
	queueCmd = app.Command("queue", "Show the gate fallback queue depth")
)

func main() {
	// Load .env file if it exists (errors are ignored)
	_ = godotenv.Load()

	command := kingpin.MustParse(app.Parse(os.Args[1:]))

	if *token == "" {
		fmt.Println("Error: admin token is required (use --token or ADMIN_TOKEN env)")
		os.Exit(1)
	}

	withToken := connect.WithInterceptors(apiconnect.NewTokenInterceptor(*token))
	playback := apiconnect.NewPlaybackAdminClient(http.DefaultClient, *relay, withToken)
	catalog := apiconnect.NewCatalogAdminClient(http.DefaultClient, *relay, withToken)
	gateClient := apiconnect.NewGateAdminClient(http.DefaultClient, *gate, withToken)

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	var err error
	switch command {
	case statusCmd.FullCommand():
		err = status(ctx, playback)
	case loadCmd.FullCommand():
		err = printState(playback.LoadTrack(ctx, *loadTrackID))
	case repeatCmd.FullCommand():
		err = printState(playback.SetRepeatMode(ctx, *repeatMode))
	case playCmd.FullCommand():
		err = printState(playback.SetPlaying(ctx, true))
	case pauseCmd.FullCommand():
		err = printState(playback.SetPlaying(ctx, false))
	case tracksCmd.FullCommand():
		err = listTracks(ctx, catalog)
	case trackAddCmd.FullCommand():
		err = addTrack(ctx, catalog)
	case trackStatusCmd.FullCommand():
		err = catalog.SetTrackStatus(ctx, *trackStatusID, *trackStatusValue, *trackStatusDuration)
		if err == nil {
			fmt.Printf("Track %d is %s\n", *trackStatusID, *trackStatusValue)
		}
	case drainCmd.FullCommand():
		err = drain(ctx, gateClient)
	case queueCmd.FullCommand():
		err = queue(ctx, gateClient)
	}
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		os.Exit(1)
	}
}

func status(ctx context.Context, client *apiconnect.PlaybackAdminClient) error {
	np, err := client.GetNowPlaying(ctx)
	if err != nil {
		return err
	}

	fmt.Println("\n=== NOW PLAYING ===")
	if !np.Loaded {
		fmt.Println("No track loaded")
		fmt.Println()
		return nil
	}
	fmt.Printf("Track ID: %d\n", np.TrackID)
	fmt.Printf("Title: %s\n", np.TrackTitle)
	fmt.Printf("File: %s\n", np.FilePath)
	fmt.Printf("Position: %s / %s (remaining %s)\n",
		clockTime(np.PositionSec), clockTime(np.DurationSec), clockTime(np.RemainingSec))
	fmt.Printf("Repeat: %s\n", np.RepeatMode)
	fmt.Printf("State: %s\n", formatStatus(np.Status))
	fmt.Println()
	return nil
}

func printState(np *apiconnect.NowPlayingResponse, err error) error {
	if err != nil {
		return err
	}
	fmt.Printf("%s: %s [%s/%s] repeat=%s\n",
		formatStatus(np.Status), np.TrackTitle, clockTime(np.PositionSec), clockTime(np.DurationSec), np.RepeatMode)
	return nil
}

func listTracks(ctx context.Context, client *apiconnect.CatalogAdminClient) error {
	tracks, err := client.ListTracks(ctx)
	if err != nil {
		return err
	}
	fmt.Printf("Tracks (%d):\n", len(tracks))
	for _, t := range tracks {
		fmt.Printf("  %3d. [%d] %s (%s) %s [%s]\n",
			t.TrackNo, t.ID, t.Title, clockTime(t.DurationSec), t.FilePath, t.Status)
	}
	return nil
}

func addTrack(ctx context.Context, client *apiconnect.CatalogAdminClient) error {
	req := &apiconnect.AddTrackRequest{
		Title:       *trackAddTitle,
		Artist:      *trackAddArtist,
		FilePath:    *trackAddFile,
		DurationSec: *trackAddDuration,
	}
	if *trackAddReady {
		req.Status = "ready"
	}
	t, err := client.AddTrack(ctx, req)
	if err != nil {
		return err
	}
	fmt.Printf("Track added: id=%d track_no=%d status=%s\n", t.ID, t.TrackNo, t.Status)
	return nil
}

func drain(ctx context.Context, client *apiconnect.GateAdminClient) error {
	report, err := client.Drain(ctx)
	if err != nil {
		return err
	}
	if report.TotalRetried == 0 && report.Untried == 0 {
		fmt.Println("Fallback queue is empty")
		return nil
	}
	fmt.Printf("Resent %d of %d messages (%d failed, %d not attempted)\n",
		report.Delivered, report.TotalRetried, report.FailedCount, report.Untried)
	return nil
}

func queue(ctx context.Context, client *apiconnect.GateAdminClient) error {
	stats, err := client.QueueStats(ctx)
	if err != nil {
		return err
	}
	fmt.Printf("Pending messages: %d\n", stats.Pending)
	return nil
}

func clockTime(sec int) string {
	d := time.Duration(sec) * time.Second
	return fmt.Sprintf("%d:%02d", int(d.Minutes()), sec%60)
}

func formatStatus(status string) string {
	switch status {
	case "playing":
		return "▶️  Playing"
	case "paused":
		return "⏸  Paused"
	case "ended":
		return "⏹  Ended"
	case "idle":
		return "Idle"
	default:
		return "❓ Unknown"
	}
}
