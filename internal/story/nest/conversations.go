package nest

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"familynest/internal/ai"
	"familynest/internal/audio/playback"
	"familynest/internal/cli/scheme/colours"
	"familynest/internal/conversation"
	"familynest/internal/domain/family"
)

const quitHelp = "💡 Type /quote <story> to attach a story, /quit to leave"

// transcript prints a conversation log as it grows.
func (sn *FamilyNest) transcript() *conversation.Log {
	return conversation.NewLog(
		func(m conversation.Message) {
			switch {
			case m.Role == ai.RoleUser:
				if m.Quote != nil {
					colours.Info.Fprintf(sn.out, "  📎 %s by %s\n", m.Quote.Title, m.Quote.Author)
				}
			case m.System:
				colours.System.Fprintf(sn.out, "%s: %s\n", m.Speaker, m.Text)
			default:
				colours.Speaker(m.Speaker).Fprint(sn.out, m.Speaker)
				fmt.Fprintf(sn.out, ": %s\n", m.Text)
			}
		},
		func(speaker string, active bool) {
			if active {
				colours.Typing.Fprintf(sn.out, "  ✍️  %s is typing...\n", speaker)
			}
		},
	)
}

// converse reads user lines and hands them to send until the user quits.
func (sn *FamilyNest) converse(send func(ctx context.Context, text string, quote *conversation.Quote) error) {
	colours.Info.Fprintln(sn.out, quitHelp)

	var quote *conversation.Quote
	for {
		line, ok := sn.readLine("You: ")
		if !ok {
			return
		}
		switch {
		case line == "/quit" || line == "/q":
			return
		case strings.HasPrefix(line, "/quote "):
			s, err := sn.story([]string{strings.TrimPrefix(line, "/quote ")})
			if err != nil {
				sn.fail("%v", err)
				continue
			}
			quote = conversation.NewQuote(s)
			colours.Info.Fprintf(sn.out, "  📎 Attached \"%s\" to your next message\n", s.Title)
			continue
		}

		err := send(sn.ctx, line, quote)
		if errors.Is(err, context.Canceled) {
			return
		}
		if err != nil {
			sn.fail("%v", err)
			continue
		}
		quote = nil
	}
}

func (sn *FamilyNest) Chat(cmd *cobra.Command, args []string) {
	topic, _ := cmd.Flags().GetString("topic")

	m, err := sn.member(args)
	if err != nil {
		sn.fail("%v", err)
		return
	}

	fmt.Fprintln(sn.out)
	if m.Mode() == family.Deceased {
		colours.Deceased.Fprintf(sn.out, "🕯️ Remembering %s\n", m.Name)
	} else {
		colours.Title.Fprintf(sn.out, "💬 Chatting with %s\n", m.Name)
	}

	chat := conversation.NewChat(sn.deps(), m, topic, sn.transcript())
	if err := chat.Begin(sn.ctx); err != nil {
		sn.fail("%v", err)
		return
	}
	sn.converse(chat.Send)
}

func (sn *FamilyNest) Gathering(cmd *cobra.Command, args []string) {
	fmt.Fprintln(sn.out)
	colours.Title.Fprintln(sn.out, "🏡 The whole family is here")

	seq := conversation.NewSequencer(sn.cfg.Conversation.MinDelay, sn.cfg.Conversation.MaxDelay)
	gathering := conversation.NewGathering(sn.deps(), seq, sn.transcript())
	defer gathering.Close()
	sn.converse(gathering.Send)
}

func (sn *FamilyNest) Call(cmd *cobra.Command, args []string) {
	var invited []family.Member
	for _, name := range args {
		m, err := sn.member([]string{name})
		if err != nil {
			sn.fail("%v", err)
			return
		}
		invited = append(invited, m)
	}
	if len(invited) == 0 {
		for _, m := range sn.family.List() {
			if !m.Self {
				invited = append(invited, m)
			}
		}
	}

	call := conversation.NewCall(sn.deps(), sn.orch, sn.Engine.VoiceFor,
		conversation.WithConnectDelay(sn.cfg.Conversation.ConnectDelay),
		conversation.WithPlayback(append([]playback.Option{
			playback.WithFrameInterval(sn.cfg.Playback.FrameInterval),
		}, sn.playback...)...),
		conversation.WithParticipantsChanged(sn.showParticipants),
	)
	defer call.Hangup()

	fmt.Fprintln(sn.out)
	colours.Title.Fprintln(sn.out, "📹 Family call")
	for _, m := range invited {
		if err := call.Join(m); err != nil {
			sn.fail("%v", err)
		}
	}

	colours.Info.Fprintln(sn.out, "💡 Type what you want to say, /hangup to end the call")
	for {
		line, ok := sn.readLine("🎤 ")
		if !ok || line == "/hangup" || line == "/quit" {
			colours.Warning.Fprintln(sn.out, "📴 Call ended")
			return
		}
		if line == "" {
			continue
		}

		reply, err := call.Speak(sn.ctx, line)
		if errors.Is(err, conversation.ErrNoResponder) {
			colours.Warning.Fprintln(sn.out, "⚠️ Only living relatives are on the line; they will answer in person.")
			continue
		}
		if reply != "" {
			for _, p := range call.Participants() {
				if p.Kind == conversation.AIDeceased {
					colours.Speaker(p.Member.Name).Fprint(sn.out, p.Member.Name)
					fmt.Fprintf(sn.out, ": %s\n", reply)
					break
				}
			}
		}
		if err != nil {
			sn.fail("%v", err)
		}
	}
}

func (sn *FamilyNest) showParticipants(ps []conversation.Participant) {
	var b strings.Builder
	for i, p := range ps {
		if i > 0 {
			b.WriteString("  ")
		}
		icon := "📞"
		switch {
		case p.Speaking:
			icon = "🔊"
		case p.Kind == conversation.AIDeceased:
			icon = "🕯️"
		case p.Status == conversation.Connected:
			icon = "🟢"
		}
		fmt.Fprintf(&b, "%s %s", icon, p.Member.Name)
	}
	colours.Info.Fprintf(sn.out, "  [%s]\n", b.String())
}
