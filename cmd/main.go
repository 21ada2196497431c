package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"familynest/internal/cli/scheme/colours"
	"familynest/internal/config"
	"familynest/internal/story/nest"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		colours.Error.Printf("❌ Error: %v\n", err)
		os.Exit(1)
	}
	cfg.Log.ConfigureLogger(logrus.StandardLogger())

	app, err := nest.NewFamilyNest(cfg)
	if err != nil {
		logrus.WithError(err).Fatal("failed to start familynest")
	}
	defer app.Close()

	// Setup signal handling for graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-sigChan
		app.Cancel()
		app.Scheduler.Close()
		fmt.Println("\n" + colours.Warning.Sprint("👋 Goodbye! Keep the stories alive! 🏡"))
	}()

	rootCmd := &cobra.Command{
		Use:   "familynest",
		Short: "🏡 A home for your family's stories",
		Long: `
┌─────────────────────────────────────┐
│  🏡 Welcome to FamilyNest! 📚       │
│  A home for your family's stories   │
│  Record, listen and remember 🕯️     │
└─────────────────────────────────────┘

FamilyNest keeps recorded family memories with their historical context,
reads them aloud, and lets you talk with the people who told them.
		`,
		Run: func(cmd *cobra.Command, args []string) {
			app.ShowWelcome()
		},
	}

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "📋 List archived stories",
		Long:  "Display every story in the family archive",
		Run:   app.ListStories,
	}

	showCmd := &cobra.Command{
		Use:   "show <title-or-id>",
		Short: "📖 Show a story",
		Long:  "Show a story's transcript, historical context and comments",
		Args:  cobra.MinimumNArgs(1),
		Run:   app.ShowStory,
	}

	recordCmd := &cobra.Command{
		Use:   "record",
		Short: "🎙️ Record a new memory",
		Long:  "Transcribe a recording, archive it and gather its historical context",
		Run:   app.RecordStory,
	}

	playCmd := &cobra.Command{
		Use:   "play <title-or-id>",
		Short: "🎧 Listen to a story",
		Long:  "Play a story's recording, or narrate its transcript in the author's voice",
		Args:  cobra.MinimumNArgs(1),
		Run:   app.PlayStory,
	}

	chatCmd := &cobra.Command{
		Use:   "chat <member>",
		Short: "💬 Chat with a family member",
		Long:  "Talk one to one with a family member, drawing on the stories they told",
		Args:  cobra.MinimumNArgs(1),
		Run:   app.Chat,
	}

	gatheringCmd := &cobra.Command{
		Use:   "gathering",
		Short: "🏡 Chat with the whole family",
		Long:  "Ask a question and hear every family member answer in turn",
		Run:   app.Gathering,
	}

	callCmd := &cobra.Command{
		Use:   "call [member...]",
		Short: "📹 Start a family call",
		Long:  "Call family members. Loved ones who have passed answer out loud from their stories",
		Run:   app.Call,
	}

	commentCmd := &cobra.Command{
		Use:   "comment <title-or-id>",
		Short: "🕯️ Ask a loved one to comment",
		Long:  "Add a short comment to a story in the voice of a family member who has passed",
		Args:  cobra.MinimumNArgs(1),
		Run:   app.CommentOnStory,
	}

	memorialCmd := &cobra.Command{
		Use:   "memorial <member>",
		Short: "💌 Create a memorial message",
		Long:  "Write and narrate a short message in a member's voice, built from their stories",
		Args:  cobra.MinimumNArgs(1),
		Run:   app.Memorial,
	}

	settingsCmd := &cobra.Command{
		Use:   "settings",
		Short: "⚙️ Show service and voice settings",
		Long:  "Show the generative service, speech engine, family voices and speech cache",
		Run:   app.ConfigureSettings,
	}

	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "🌐 Serve the HTTP API",
		Long:  "Serve the archive, narration and conversations over HTTP",
		Run:   app.Serve,
	}

	// Add flags
	listCmd.Flags().StringP("author", "a", "", "Filter by author")
	listCmd.Flags().StringP("member", "m", "", "Only stories that mention this member")
	showCmd.Flags().BoolP("enrich", "e", false, "Generate missing context cards and illustration")
	recordCmd.Flags().StringP("file", "f", "", "Audio or video recording to transcribe")
	recordCmd.Flags().StringP("title", "t", "", "Story title (suggested from the recording when empty)")
	recordCmd.Flags().StringSlice("tag", nil, "Family member mentioned in the story (repeatable)")
	recordCmd.Flags().String("author", "", "Who is telling the story")
	recordCmd.Flags().String("mime", "", "MIME type of the recording (guessed from the extension when empty)")
	playCmd.Flags().StringP("voice", "v", "", "Voice to narrate with. See settings for options")
	playCmd.Flags().BoolP("narrate", "n", false, "Narrate the transcript even when a recording exists")
	chatCmd.Flags().String("topic", "", "Open the conversation on this topic")
	memorialCmd.Flags().StringP("kind", "k", "Love Letter", "Love Letter, Life Wisdom, Special Occasion or Custom")
	memorialCmd.Flags().String("custom", "", "Your own instruction for the message")
	memorialCmd.Flags().Bool("play", true, "Narrate the message after writing it")
	settingsCmd.Flags().Bool("clear-cache", false, "Delete cached speech clips")
	serveCmd.Flags().String("addr", "", "Listen address (defaults to server.addr)")

	rootCmd.AddCommand(listCmd, showCmd, recordCmd, playCmd, chatCmd, gatheringCmd,
		callCmd, commentCmd, memorialCmd, settingsCmd, serveCmd)

	if err := rootCmd.Execute(); err != nil {
		colours.Error.Printf("❌ Error: %v\n", err)
		app.Close()
		os.Exit(1)
	}
}

// Configuration management with Viper
func init() {
	config.Init()
}
