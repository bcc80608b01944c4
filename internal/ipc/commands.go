// Package ipc is the file-based control channel between memoscribe-ctl (or
// any script) and the daemon: commands go into cmd.txt, state comes back in
// status.json.
package ipc

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Verb names a command.
type Verb string

const (
	CmdReset           Verb = "reset"       // drop everything except templates
	CmdSelectFile      Verb = "select-file" // <path> [language]
	CmdRetry           Verb = "retry"       // re-run transcription of the current file
	CmdLanguage        Verb = "language"    // <code>
	CmdURL             Verb = "url"         // [text]; empty text clears
	CmdProcessURL      Verb = "process-url"
	CmdPrompt          Verb = "prompt"   // <text>
	CmdTemplate        Verb = "template" // <slot>; copies a saved prompt
	CmdSummarize       Verb = "summarize"
	CmdSuggest         Verb = "suggest"
	CmdApplySuggestion Verb = "apply-suggestion" // <index>
	CmdPlay            Verb = "play"
	CmdPause           Verb = "pause"
	CmdToggle          Verb = "toggle"
	CmdSeek            Verb = "seek"    // <seconds>
	CmdSegment         Verb = "segment" // <index>
	CmdVolume          Verb = "volume"  // <0..1>
	CmdMute            Verb = "mute"
	CmdUnmute          Verb = "unmute"
	CmdExport          Verb = "export" // <dir> [txt,srt,vtt,json]
	CmdQuit            Verb = "quit"
)

var verbs = map[Verb]bool{
	CmdReset: true, CmdSelectFile: true, CmdRetry: true, CmdLanguage: true,
	CmdURL: true, CmdProcessURL: true, CmdPrompt: true, CmdTemplate: true,
	CmdSummarize: true, CmdSuggest: true, CmdApplySuggestion: true,
	CmdPlay: true, CmdPause: true, CmdToggle: true, CmdSeek: true,
	CmdSegment: true, CmdVolume: true, CmdMute: true, CmdUnmute: true,
	CmdExport: true, CmdQuit: true,
}

// ErrUnknownCommand is returned for verbs the daemon does not understand.
var ErrUnknownCommand = errors.New("unknown command")

// Command is one parsed line of cmd.txt. Arg is everything after the verb,
// trimmed, so prompts and paths may contain spaces.
type Command struct {
	Verb Verb
	Arg  string
}

func (c Command) String() string {
	if c.Arg == "" {
		return string(c.Verb)
	}
	return string(c.Verb) + " " + c.Arg
}

// Parse reads one command line. An empty line yields a zero Command.
func Parse(line string) (Command, error) {
	line = strings.TrimSpace(line)
	if line == "" {
		return Command{}, nil
	}
	verb, arg, _ := strings.Cut(line, " ")
	cmd := Command{Verb: Verb(strings.ToLower(verb)), Arg: strings.TrimSpace(arg)}
	if !verbs[cmd.Verb] {
		return Command{}, fmt.Errorf("%w: %q", ErrUnknownCommand, verb)
	}
	return cmd, nil
}

// DefaultDir returns ~/.cache/memoscribe.
func DefaultDir() string {
	return filepath.Join(os.Getenv("HOME"), ".cache", "memoscribe")
}

// CommandPath returns the command file inside dir.
func CommandPath(dir string) string { return filepath.Join(dir, "cmd.txt") }

// WriteCommand appends cmd to dir/cmd.txt. Appending lets several commands
// queue up between two reads.
func WriteCommand(dir string, cmd Command) error {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}
	f, err := os.OpenFile(CommandPath(dir), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return err
	}
	if _, err := f.WriteString(cmd.String() + "\n"); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// ReadCommands reads and clears dir/cmd.txt. A missing file yields no
// commands. Unknown lines are returned as errors alongside the valid ones so
// one typo does not drop the rest of the batch.
func ReadCommands(dir string) ([]Command, []error, error) {
	path := CommandPath(dir)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil, nil
		}
		return nil, nil, err
	}
	if len(data) == 0 {
		return nil, nil, nil
	}

	// Clear immediately to prevent re-execution
	if err := os.WriteFile(path, nil, 0644); err != nil {
		return nil, nil, err
	}

	var cmds []Command
	var bad []error
	for _, line := range strings.Split(string(data), "\n") {
		cmd, err := Parse(line)
		if err != nil {
			bad = append(bad, err)
			continue
		}
		if cmd.Verb != "" {
			cmds = append(cmds, cmd)
		}
	}
	return cmds, bad, nil
}
