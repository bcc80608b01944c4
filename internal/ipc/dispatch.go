package ipc

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/tiroq/memoscribe/internal/templates"
	"github.com/tiroq/memoscribe/internal/transcript"
)

// ErrQuit is returned by Dispatch for CmdQuit; the daemon shuts down.
var ErrQuit = errors.New("quit requested")

// ErrNothingToSeek is returned for a seek while no audio is loaded.
var ErrNothingToSeek = errors.New("nothing to seek")

// Controller is the session surface commands drive.
type Controller interface {
	Reset()
	SelectFile(path, language string) error
	RetryFile() error
	SetLanguage(language string) error
	SetURLText(text string)
	ProcessURL() error
	SetPrompt(prompt string)
	Summarize() error
	SuggestPrompts() error
	ApplySuggestion(i int) error
	Play() error
	Pause()
	TogglePlay() error
	Seek(pos time.Duration) bool
	SeekToSegment(i int) (bool, error)
	SetVolume(v float64)
	SetMuted(m bool)
	Export(dir string, formats []transcript.Format) ([]string, error)
}

// TemplateSource resolves a template slot to its prompt.
type TemplateSource interface {
	Get(slot int) (templates.Template, error)
}

// Dispatcher applies commands to a session.
type Dispatcher struct {
	ctl       Controller
	templates TemplateSource
	exportDir string
}

// NewDispatcher creates a dispatcher. templates may be nil, in which case
// CmdTemplate fails. exportDir is used when CmdExport has no directory.
func NewDispatcher(ctl Controller, tpl TemplateSource, exportDir string) *Dispatcher {
	return &Dispatcher{ctl: ctl, templates: tpl, exportDir: exportDir}
}

// Dispatch runs one command.
func (d *Dispatcher) Dispatch(cmd Command) error {
	switch cmd.Verb {
	case CmdReset:
		d.ctl.Reset()
	case CmdSelectFile:
		path, lang := splitLast(cmd.Arg)
		if path == "" {
			return fmt.Errorf("%s: missing path", cmd.Verb)
		}
		return d.ctl.SelectFile(path, lang)
	case CmdRetry:
		return d.ctl.RetryFile()
	case CmdLanguage:
		return d.ctl.SetLanguage(cmd.Arg)
	case CmdURL:
		d.ctl.SetURLText(cmd.Arg)
	case CmdProcessURL:
		return d.ctl.ProcessURL()
	case CmdPrompt:
		d.ctl.SetPrompt(cmd.Arg)
	case CmdTemplate:
		return d.applyTemplate(cmd.Arg)
	case CmdSummarize:
		return d.ctl.Summarize()
	case CmdSuggest:
		return d.ctl.SuggestPrompts()
	case CmdApplySuggestion:
		i, err := strconv.Atoi(cmd.Arg)
		if err != nil {
			return fmt.Errorf("%s: %w", cmd.Verb, err)
		}
		return d.ctl.ApplySuggestion(i)
	case CmdPlay:
		return d.ctl.Play()
	case CmdPause:
		d.ctl.Pause()
	case CmdToggle:
		return d.ctl.TogglePlay()
	case CmdSeek:
		sec, err := strconv.ParseFloat(cmd.Arg, 64)
		if err != nil || sec < 0 {
			return fmt.Errorf("%s: invalid position %q", cmd.Verb, cmd.Arg)
		}
		if !d.ctl.Seek(time.Duration(sec * float64(time.Second))) {
			return fmt.Errorf("%s: %w", cmd.Verb, ErrNothingToSeek)
		}
	case CmdSegment:
		i, err := strconv.Atoi(cmd.Arg)
		if err != nil {
			return fmt.Errorf("%s: %w", cmd.Verb, err)
		}
		_, err = d.ctl.SeekToSegment(i)
		return err
	case CmdVolume:
		v, err := strconv.ParseFloat(cmd.Arg, 64)
		if err != nil {
			return fmt.Errorf("%s: %w", cmd.Verb, err)
		}
		d.ctl.SetVolume(v)
	case CmdMute:
		d.ctl.SetMuted(true)
	case CmdUnmute:
		d.ctl.SetMuted(false)
	case CmdExport:
		return d.export(cmd.Arg)
	case CmdQuit:
		return ErrQuit
	default:
		return fmt.Errorf("%w: %q", ErrUnknownCommand, cmd.Verb)
	}
	return nil
}

func (d *Dispatcher) applyTemplate(arg string) error {
	if d.templates == nil {
		return errors.New("template store not available")
	}
	slot, err := strconv.Atoi(arg)
	if err != nil {
		return fmt.Errorf("template: %w", err)
	}
	tpl, err := d.templates.Get(slot)
	if err != nil {
		return err
	}
	d.ctl.SetPrompt(tpl.Prompt)
	return nil
}

func (d *Dispatcher) export(arg string) error {
	dir, list := d.exportDir, "txt"
	if fields := strings.Fields(arg); len(fields) > 0 {
		dir = fields[0]
		if len(fields) > 1 {
			list = fields[1]
		}
	}
	if dir == "" {
		return errors.New("export: no directory")
	}
	var formats []transcript.Format
	for _, name := range strings.Split(list, ",") {
		f, err := transcript.ParseFormat(name)
		if err != nil {
			return err
		}
		formats = append(formats, f)
	}
	_, err := d.ctl.Export(dir, formats)
	return err
}

// splitLast separates a trailing language code from a path that may contain
// spaces. A last word only counts as a language when it has no path
// separator or dot.
func splitLast(arg string) (path, lang string) {
	i := strings.LastIndex(arg, " ")
	if i < 0 {
		return arg, ""
	}
	last := arg[i+1:]
	if strings.ContainsAny(last, "/\\.") {
		return arg, ""
	}
	return strings.TrimSpace(arg[:i]), last
}
