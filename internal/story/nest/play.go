package nest

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"familynest/internal/audio/playback"
	"familynest/internal/cli/scheme/colours"
	"familynest/internal/narration"
)

const (
	progressWidth    = 30
	progressInterval = 250 * time.Millisecond
)

func (sn *FamilyNest) PlayStory(cmd *cobra.Command, args []string) {
	voice, _ := cmd.Flags().GetString("voice")
	narrate, _ := cmd.Flags().GetBool("narrate")

	s, err := sn.story(args)
	if err != nil {
		sn.fail("%v", err)
		return
	}

	var track *playback.Track
	if s.HasMedia() && !narrate {
		track = playback.NewMediaTrack(s.ID, s.Media, s.MediaMIMEType)
	} else {
		if voice == "" {
			voice = sn.voiceFor(s)
		}
		track = playback.NewSpeechTrack(s.ID, s.Transcript, voice)
	}

	fmt.Fprintln(sn.out)
	colours.Title.Fprintf(sn.out, "📖 %s\n", s.Title)
	colours.Author.Fprintf(sn.out, "✍️  by %s\n", s.Author)
	sn.playTrack(track)
}

func (sn *FamilyNest) Memorial(cmd *cobra.Command, args []string) {
	kindName, _ := cmd.Flags().GetString("kind")
	custom, _ := cmd.Flags().GetString("custom")
	listen, _ := cmd.Flags().GetBool("play")

	m, err := sn.member(args)
	if err != nil {
		sn.fail("%v", err)
		return
	}
	kind, err := narration.ParseMemorialKind(kindName)
	if err != nil {
		sn.fail("%v", err)
		return
	}

	colours.Typing.Fprintf(sn.out, "✍️  Writing a %s from %s...\n", kind, m.Name)
	script, err := sn.orch.MemorialScript(sn.ctx, m, kind, custom)
	if err != nil {
		sn.fail("Failed to write memorial: %v", err)
		return
	}

	fmt.Fprintln(sn.out)
	colours.Title.Fprintf(sn.out, "💌 %s from %s\n", kind, m.Name)
	fmt.Fprintln(sn.out, script)
	if !listen {
		return
	}

	buf, err := sn.orch.MemorialNarration(sn.ctx, script, sn.Engine.VoiceFor(m))
	if err != nil {
		colours.Warning.Fprintf(sn.out, "⚠️ %v\n", err)
		return
	}
	sn.playTrack(playback.NewBufferTrack("memorial-"+m.ID, buf))
}

func (sn *FamilyNest) playTrack(track *playback.Track) {
	fmt.Fprintln(sn.out)
	colours.Success.Fprintln(sn.out, "🎵 Preparing playback... 🎵")
	if err := sn.Scheduler.Play(sn.ctx, track); err != nil {
		sn.fail("Playback failed: %v", err)
		return
	}
	fmt.Fprintln(sn.out, "💡 Press Ctrl+C to stop anytime")
	sn.waitForUserInput(track)
	track.Release()
}

// waitForUserInput runs the p/s transport until playback ends, the user
// stops it or the app shuts down.
func (sn *FamilyNest) waitForUserInput(track *playback.Track) {
	colours.Prompt.Fprint(sn.out, "\n⏸️  Press 'p' to pause/resume, 's' to stop, or Enter for progress\n")

	ticker := time.NewTicker(progressInterval)
	defer ticker.Stop()
	lines := sn.input()
	for {
		select {
		case <-sn.ctx.Done():
			sn.Scheduler.Stop()
			return

		case <-ticker.C:
			if sn.Scheduler.State() == playback.Ended {
				fmt.Fprintf(sn.out, "\r%s\n", progressBar(playback.Progress{Ratio: 1, Elapsed: track.Duration(), Duration: track.Duration()}))
				colours.Success.Fprintln(sn.out, "✅ Story finished! 🌟")
				return
			}

		case line, ok := <-lines:
			if !ok {
				// Input closed; keep playing until the end.
				lines = nil
				continue
			}
			switch strings.TrimSpace(strings.ToLower(line)) {
			case "p", "pause":
				if err := sn.Scheduler.Toggle(sn.ctx, track); err != nil {
					sn.fail("%v", err)
					continue
				}
				switch sn.Scheduler.State() {
				case playback.Paused:
					colours.Warning.Fprintln(sn.out, "⏸️  Paused")
				case playback.Playing:
					colours.Success.Fprintln(sn.out, "▶️  Resumed")
				}
			case "s", "stop":
				sn.Scheduler.Stop()
				colours.Warning.Fprintln(sn.out, "⏹️  Stopped")
				return
			case "":
				fmt.Fprintln(sn.out, progressBar(sn.Scheduler.Progress()))
			default:
				colours.Info.Fprintln(sn.out, "ℹ️  Use 'p' for pause/resume, 's' to stop")
			}
		}
	}
}

// progressBar renders e.g. "[#######.......] 0:12 / 0:40".
func progressBar(p playback.Progress) string {
	ratio := min(max(p.Ratio, 0), 1)
	filled := int(ratio * progressWidth)
	return fmt.Sprintf("[%s%s] %s / %s",
		strings.Repeat("#", filled),
		strings.Repeat(".", progressWidth-filled),
		clock(p.Elapsed), clock(p.Duration))
}

func clock(d time.Duration) string {
	d = d.Round(time.Second)
	return fmt.Sprintf("%d:%02d", int(d.Minutes()), int(d.Seconds())%60)
}
