// Cross-platform eSpeak implementation
package tts

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"os/exec"
	"strconv"

	"familynest/internal/ai"
)

// ESpeakSynthesizer renders speech offline with eSpeak/eSpeak-NG. The PCM
// keeps eSpeak's own sample rate.
type ESpeakSynthesizer struct {
	path  string
	speed float64
}

func newESpeakSynthesizer(config Config) (*ESpeakSynthesizer, error) {
	espeakPath, err := findESpeakExecutable()
	if err != nil {
		return nil, fmt.Errorf("eSpeak not found: %w", err)
	}
	if err := exec.Command(espeakPath, "--version").Run(); err != nil {
		return nil, fmt.Errorf("eSpeak test failed: %w", err)
	}
	return &ESpeakSynthesizer{path: espeakPath, speed: config.Speed}, nil
}

func findESpeakExecutable() (string, error) {
	for _, candidate := range []string{"espeak-ng", "espeak"} {
		if path, err := exec.LookPath(candidate); err == nil {
			return path, nil
		}
	}
	return "", fmt.Errorf("eSpeak executable not found in PATH")
}

func (e *ESpeakSynthesizer) Synthesize(ctx context.Context, text, voice string) (*ai.Speech, error) {
	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, e.path, e.args(text, voice)...)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("espeak failed: %w: %s", err, stderr.String())
	}

	wav, err := parseWAV(stdout.Bytes())
	if err != nil {
		return nil, fmt.Errorf("espeak output: %w", err)
	}
	return &ai.Speech{
		Audio:      base64.StdEncoding.EncodeToString(monoLE16(wav.Data, wav.Channels)),
		SampleRate: wav.SampleRate,
	}, nil
}

func (e *ESpeakSynthesizer) args(text, voice string) []string {
	args := []string{"--stdout"}
	if voice != "" && voice != "default" {
		args = append(args, "-v", voice)
	}
	// Words per minute, 175 is eSpeak's default.
	speed := e.speed
	if speed <= 0 {
		speed = 1
	}
	args = append(args, "-s", strconv.Itoa(int(175*speed)))
	return append(args, "--", text)
}
