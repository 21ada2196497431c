package nest

import (
	"fmt"

	"github.com/spf13/cobra"

	"familynest/internal/api"
	"familynest/internal/cli/scheme/colours"
	"familynest/internal/conversation"
	"familynest/internal/story/tts"
)

func (sn *FamilyNest) ConfigureSettings(cmd *cobra.Command, args []string) {
	clearCache, _ := cmd.Flags().GetBool("clear-cache")

	fmt.Fprintln(sn.out)
	colours.Title.Fprintln(sn.out, "⚙️ Settings ⚙️")
	fmt.Fprintln(sn.out)

	colours.Prompt.Fprintln(sn.out, "🤖 Generative service:")
	fmt.Fprintf(sn.out, "  • Provider: %s\n", sn.cfg.AI.Provider)
	fmt.Fprintf(sn.out, "  • Model: %s\n", sn.cfg.AI.Model)
	fmt.Fprintf(sn.out, "  • Locale: %s\n", sn.cfg.Locale)
	fmt.Fprintln(sn.out)

	colours.Prompt.Fprintln(sn.out, "🎤 Voice Settings:")
	fmt.Fprintf(sn.out, "  • Engine: %s\n", sn.Engine.Type)
	for _, v := range sn.Engine.Voices.List() {
		fmt.Fprintf(sn.out, "  • %s voice: %s\n", v.Profile, v.Name)
	}
	fmt.Fprint(sn.out, "  • Available engines:")
	for _, e := range tts.GetAvailableEngines() {
		fmt.Fprintf(sn.out, " %s", e)
	}
	fmt.Fprintln(sn.out)

	fmt.Fprintln(sn.out)
	colours.Prompt.Fprintln(sn.out, "👪 Family voices:")
	for _, m := range sn.family.List() {
		colours.Speaker(m.Name).Fprintf(sn.out, "  • %s", m.Name)
		fmt.Fprintf(sn.out, " (%s): %s\n", m.Mode(), sn.Engine.VoiceFor(m))
	}

	cache, ok := sn.Engine.Synthesizer.(*tts.CachedSynthesizer)
	if !ok {
		return
	}
	fmt.Fprintln(sn.out)
	if clearCache {
		if err := cache.Clear(); err != nil {
			sn.fail("Failed to clear speech cache: %v", err)
			return
		}
		colours.Success.Fprintln(sn.out, "🧹 Speech cache cleared")
	}
	stats, err := cache.Stats()
	if err != nil {
		sn.fail("Failed to read speech cache: %v", err)
		return
	}
	colours.Info.Fprintf(sn.out, "📁 Speech cache: %v\n", stats["cache_directory"])
	colours.Info.Fprintf(sn.out, "📏 %v clips, %.2f MB\n", stats["cached_files"], stats["total_size_mb"])
}

func (sn *FamilyNest) Serve(cmd *cobra.Command, args []string) {
	addr, _ := cmd.Flags().GetString("addr")
	if addr == "" {
		addr = sn.cfg.Server.Addr
	}

	deps := sn.deps()
	srv := api.New(api.Config{
		Orchestrator: sn.orch,
		Conversation: deps,
		Commenter:    conversation.NewCommenter(deps, sn.cfg.Comments.Persona, sn.orch),
		Sequencer:    conversation.NewSequencer(sn.cfg.Conversation.MinDelay, sn.cfg.Conversation.MaxDelay),
		VoiceFor:     sn.Engine.VoiceFor,
		Logger:       sn.log,
	})

	colours.Success.Fprintf(sn.out, "🌐 Serving the family archive on %s\n", addr)
	if err := srv.Run(sn.ctx, addr); err != nil {
		sn.fail("Server stopped: %v", err)
	}
}
