package main

import (
	"fmt"
	"io"
	"time"

	"github.com/yourorg/together/internal/models"
	"github.com/yourorg/together/internal/sharing"
)

func formatPosition(p *models.Position, now time.Time) string {
	if p == nil {
		return "unknown"
	}
	s := fmt.Sprintf("%.5f, %.5f", p.Latitude, p.Longitude)
	if !p.IsCoarse() {
		s += fmt.Sprintf(" (±%.0f m)", p.AccuracyMeters())
	}
	return s + " · " + sharing.FormatLastUpdated(p.CapturedAt, now)
}

func printEvent(w io.Writer, ev sharing.Event, now time.Time) {
	switch ev.Type {
	case sharing.EventStarted:
		fmt.Fprintf(w, "✅ Sharing your location for %s\n", sharing.FormatDuration(ev.Session.DurationMinutes))
	case sharing.EventStopped:
		fmt.Fprintln(w, "🛑 Sharing stopped")
	case sharing.EventExpired:
		fmt.Fprintln(w, "⏰ Time is up, sharing ended")
	case sharing.EventEndedRemotely:
		fmt.Fprintln(w, "📴 The session was ended on the server")
	case sharing.EventPosition:
		fmt.Fprintf(w, "📍 %s\n", formatPosition(ev.Position, now))
	case sharing.EventSynced:
		fmt.Fprintf(w, "🔄 Synced with server, %s left\n", sharing.FormatRemaining(ev.Session.RemainingSeconds))
	case sharing.EventPartner:
		if ev.Partner != nil {
			printPartner(w, *ev.Partner, now)
		}
	case sharing.EventError:
		fmt.Fprintf(w, "⚠️  %v\n", ev.Err)
	}
}

func printStatus(w io.Writer, status models.StatusResult, now time.Time) {
	if !status.Sharing.IsSharing {
		fmt.Fprintln(w, "Not sharing")
	} else {
		fmt.Fprintf(w, "Sharing: %s of %s left\n",
			sharing.FormatRemaining(status.Sharing.TimeRemaining), sharing.FormatDuration(status.Sharing.Duration))
		fmt.Fprintf(w, "You:     %s\n", formatPosition(status.UserPosition, now))
	}
	if status.PartnerPosition != nil {
		fmt.Fprintf(w, "Partner: %s\n", formatPosition(status.PartnerPosition, now))
	}
}

func printPartner(w io.Writer, p models.PartnerPresence, now time.Time) {
	presence := "offline"
	if p.Online {
		presence = "online"
	}
	fmt.Fprintf(w, "💞 %s is %s\n", p.Username, presence)
	if p.LastLocation != nil {
		fmt.Fprintf(w, "   📍 %s\n", formatPosition(p.LastLocation, now))
	}
}

func printLive(w io.Writer, name string, ev models.LiveEvent, now time.Time) {
	switch ev.Type {
	case models.LiveSharingStarted:
		fmt.Fprintf(w, "✅ %s started sharing\n", name)
	case models.LiveSharingStopped:
		fmt.Fprintf(w, "🛑 %s stopped sharing\n", name)
	case models.LiveLocation:
		fmt.Fprintf(w, "📍 %s: %s\n", name, formatPosition(ev.Position, now))
	}
}
