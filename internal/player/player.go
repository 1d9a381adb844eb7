// Package player runs a user-configured playback command for rendered files.
package player

import (
	"context"
	"fmt"
	"log/slog"
	"os/exec"

	"github.com/mattn/go-shellwords"
)

type Player struct {
	cmd []string
	log *slog.Logger
}

// New parses the configured command line. The rendered WAV path is appended
// as the final argument when playing.
func New(command string, log *slog.Logger) (*Player, error) {
	parser := shellwords.NewParser()
	args, err := parser.Parse(command)
	if err != nil {
		return nil, fmt.Errorf("parse player command: %w", err)
	}
	if len(args) == 0 {
		return nil, fmt.Errorf("player command empty")
	}
	return &Player{
		cmd: args,
		log: log.With(slog.String("component", "player")),
	}, nil
}

func (p *Player) Play(ctx context.Context, wavPath string) error {
	base := p.cmd[0]
	args := append(append([]string{}, p.cmd[1:]...), wavPath)
	cmd := exec.CommandContext(ctx, base, args...)
	p.log.Debug("playing", slog.String("path", wavPath), slog.String("command", base))
	if out, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("player command failed: %w (%s)", err, out)
	}
	return nil
}
