// sauticore is the offline-tolerant generation backend behind the
// SautiSahihi civic-education app. It runs either as a gateway daemon
// (serve) or as one-shot CLI operations for testing the pipeline.
package main

import (
	"context"
	"encoding/base64"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/alecthomas/kong"

	"github.com/sautisahihi/sauticore/internal/chat"
	"github.com/sautisahihi/sauticore/internal/config"
	"github.com/sautisahihi/sauticore/internal/gateway"
	. "github.com/sautisahihi/sauticore/internal/logging"
	"github.com/sautisahihi/sauticore/internal/prefs"
	"github.com/sautisahihi/sauticore/internal/provider"
	"github.com/sautisahihi/sauticore/internal/scheduler"
)

const version = "0.1.0"

type cli struct {
	ConfigFile string `name:"config" help:"Config file path." type:"path"`

	Serve     serveCmd     `cmd:"" help:"Run the gateway daemon."`
	Verify    verifyCmd    `cmd:"" help:"Fact-check a claim."`
	Ask       askCmd       `cmd:"" help:"Ask the civic assistant one question."`
	News      newsCmd      `cmd:"" help:"Fetch the news briefing."`
	Image     imageCmd     `cmd:"" help:"Generate a topic illustration."`
	Speak     speakCmd     `cmd:"" help:"Synthesize speech to a WAV file."`
	Translate translateCmd `cmd:"" help:"Translate English text to Kiswahili."`
	Tone      toneCmd      `cmd:"" help:"Classify the tone of a message."`
	Prefs     prefsCmd     `cmd:"" help:"Show or change stored preferences."`
	Version   versionCmd   `cmd:"" help:"Print the version."`
}

type cmdContext struct {
	app *app
	ctx context.Context
}

func main() {
	var c cli
	k := kong.Parse(&c,
		kong.Name("sauticore"),
		kong.Description("SautiSahihi civic content pipeline."),
		kong.UsageOnError(),
	)

	if k.Command() == "version" {
		fmt.Printf("sauticore %s\n", version)
		return
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	a, err := buildApp(ctx, c.ConfigFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "sauticore: %v\n", err)
		os.Exit(1)
	}
	defer a.close()

	if err := k.Run(&cmdContext{app: a, ctx: ctx}); err != nil {
		L_error("command failed", "error", err)
		os.Exit(1)
	}
}

type versionCmd struct{}

func (versionCmd) Run(*cmdContext) error { return nil }

type serveCmd struct {
	Port int `help:"Override the gateway port."`
}

func (s *serveCmd) Run(cc *cmdContext) error {
	a := cc.app
	port := a.cfg.Gateway.Port
	if s.Port > 0 {
		port = s.Port
	}

	srv := gateway.NewServer(gateway.ServerConfig{
		Port:        port,
		ChatBackend: a.chatBackend,
		ChatStore:   a.chatStore,
		TokenBudget: a.cfg.Chat.TokenBudget,
	}, a.svc, a.orchestrator, a.gate, a.prefs)

	languages := make([]provider.Language, 0, len(a.cfg.News.Languages))
	for _, code := range a.cfg.News.Languages {
		languages = append(languages, provider.Language(code))
	}
	refresher := scheduler.NewRefresher(func(ctx context.Context, lang provider.Language) bool {
		return !a.svc.NewsBriefing(ctx, lang).Degraded
	}, a.gate, languages)
	if err := refresher.Start(a.cfg.News.RefreshCron); err != nil {
		return fmt.Errorf("scheduler: %w", err)
	}
	defer refresher.Stop()

	// Hot reload only adjusts the log level; chain changes need a restart.
	watcher, err := config.Watch(config.Path(), func(next *config.Config) {
		SetLevel(ParseLevel(next.Log.Level))
	})
	if err != nil {
		L_warn("config watcher unavailable", "error", err)
	} else {
		defer watcher.Close()
	}

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Start() }()

	select {
	case err := <-errCh:
		return err
	case <-cc.ctx.Done():
	}

	L_info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

type verifyCmd struct {
	Claim    string `arg:"" help:"Claim to fact-check."`
	Image    string `help:"Path to an attached image." type:"existingfile"`
	Language string `short:"l" help:"Response language (ENG, KIS, GIK, DHO, LUH)."`
}

func (v *verifyCmd) Run(cc *cmdContext) error {
	var image []byte
	if v.Image != "" {
		data, err := os.ReadFile(v.Image)
		if err != nil {
			return err
		}
		image = data
	}

	result := cc.app.svc.FactCheck(cc.ctx, v.Claim, image, cc.app.language(cc.ctx, v.Language))
	fmt.Printf("%s: %s\n\n%s\n", result.Verdict, result.Summary, result.Explanation)
	for _, src := range result.Sources {
		fmt.Printf("  - %s\n", src)
	}
	return nil
}

type askCmd struct {
	Question string `arg:"" help:"Question for the assistant."`
	Session  string `default:"cli" help:"Session key for conversation continuity."`
	Language string `short:"l" help:"Response language."`
}

func (q *askCmd) Run(cc *cmdContext) error {
	a := cc.app
	if a.chatBackend == nil {
		return fmt.Errorf("no text provider configured")
	}

	sess, err := chat.NewSession(cc.ctx, q.Session, a.language(cc.ctx, q.Language), a.chatBackend, a.gate, chat.Options{
		TokenBudget: a.cfg.Chat.TokenBudget,
		Store:       a.chatStore,
	})
	if err != nil {
		return err
	}

	turn, err := sess.Send(cc.ctx, q.Question)
	if turn == nil {
		return err
	}

	fmt.Println(turn.Text)
	for _, c := range turn.Citations {
		fmt.Printf("  - %s (%s)\n", c.Title, c.URI)
	}
	return nil
}

type newsCmd struct {
	Language string `short:"l" help:"Briefing language."`
}

func (n *newsCmd) Run(cc *cmdContext) error {
	res := cc.app.svc.NewsBriefing(cc.ctx, cc.app.language(cc.ctx, n.Language))
	fmt.Println(res.Payload)
	if res.Degraded {
		fmt.Fprintf(os.Stderr, "(degraded: %s)\n", res.Reason)
	}
	return nil
}

type imageCmd struct {
	Topic  string `arg:"" help:"Topic to illustrate."`
	Output string `short:"o" default:"topic.png" help:"Output file for generated images."`
}

func (i *imageCmd) Run(cc *cmdContext) error {
	res := cc.app.svc.TopicImage(cc.ctx, i.Topic)
	if res.Degraded {
		// Placeholder resolutions carry a URL, not image bytes.
		fmt.Println(res.Payload)
		return nil
	}

	data, err := base64.StdEncoding.DecodeString(res.Payload)
	if err != nil {
		return fmt.Errorf("decode image payload: %w", err)
	}
	if err := os.WriteFile(i.Output, data, 0644); err != nil {
		return err
	}
	fmt.Printf("wrote %s (%d bytes, via %s)\n", i.Output, len(data), res.Provider)
	return nil
}

type speakCmd struct {
	Text   string `arg:"" help:"Text to speak."`
	Voice  string `default:"Kore" help:"Synthesis voice."`
	Output string `short:"o" default:"speech.wav" help:"Output WAV file."`
}

func (s *speakCmd) Run(cc *cmdContext) error {
	result := cc.app.svc.Speak(cc.ctx, s.Text, s.Voice)
	if result == nil {
		return fmt.Errorf("speech synthesis unavailable")
	}
	if err := os.WriteFile(s.Output, result.WAV, 0644); err != nil {
		return err
	}
	fmt.Printf("wrote %s (%d samples at %d Hz)\n", s.Output, len(result.Samples), result.SampleRate)
	return nil
}

type translateCmd struct {
	Text string `arg:"" help:"English text to translate."`
}

func (t *translateCmd) Run(cc *cmdContext) error {
	fmt.Println(cc.app.svc.Translate(cc.ctx, t.Text))
	return nil
}

type toneCmd struct {
	Text string `arg:"" help:"Message to classify."`
}

func (t *toneCmd) Run(cc *cmdContext) error {
	scores := cc.app.svc.AnalyzeTone(cc.ctx, t.Text)
	if len(scores) == 0 {
		fmt.Println("tone analysis unavailable")
		return nil
	}
	for _, s := range scores {
		fmt.Printf("%-15s %.2f\n", s.Label, s.Score)
	}
	return nil
}

type prefsCmd struct {
	Show prefsShowCmd `cmd:"" default:"1" help:"Show stored preferences."`
	Set  prefsSetCmd  `cmd:"" help:"Update preferences."`
	Vote prefsVoteCmd `cmd:"" help:"Cast the one mock-poll vote."`
}

type prefsShowCmd struct{}

func (prefsShowCmd) Run(cc *cmdContext) error {
	ctx := cc.ctx
	tally := cc.app.prefs.Poll(ctx)
	fmt.Printf("language:  %s\n", cc.app.prefs.Language(ctx))
	fmt.Printf("dark mode: %v\n", cc.app.prefs.DarkMode(ctx))
	fmt.Printf("poll:      A=%d B=%d C=%d (voted: %v)\n",
		tally.CoalitionA, tally.MovementB, tally.AllianceC, tally.HasVoted)
	return nil
}

type prefsSetCmd struct {
	Language string `help:"Language code (ENG, KIS, GIK, DHO, LUH)."`
	DarkMode *bool  `help:"Dark mode on/off."`
}

func (p *prefsSetCmd) Run(cc *cmdContext) error {
	if p.Language != "" {
		if err := cc.app.prefs.SetLanguage(cc.ctx, provider.Language(p.Language)); err != nil {
			return err
		}
	}
	if p.DarkMode != nil {
		if err := cc.app.prefs.SetDarkMode(cc.ctx, *p.DarkMode); err != nil {
			return err
		}
	}
	return prefsShowCmd{}.Run(cc)
}

type prefsVoteCmd struct {
	Coalition string `arg:"" help:"coalitionA, movementB or allianceC."`
}

func (p *prefsVoteCmd) Run(cc *cmdContext) error {
	tally, err := cc.app.prefs.Vote(cc.ctx, prefs.Coalition(p.Coalition))
	if err != nil {
		return err
	}
	fmt.Printf("A=%d B=%d C=%d\n", tally.CoalitionA, tally.MovementB, tally.AllianceC)
	return nil
}
