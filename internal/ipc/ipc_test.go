package ipc

import (
	"errors"
	"os"
	"testing"
	"time"

	"github.com/tiroq/memoscribe/internal/session"
	"github.com/tiroq/memoscribe/testutil"
)

func TestParse(t *testing.T) {
	tests := []struct {
		line    string
		want    Command
		wantErr bool
	}{
		{"", Command{}, false},
		{"   ", Command{}, false},
		{"reset", Command{Verb: CmdReset}, false},
		{"PLAY", Command{Verb: CmdPlay}, false},
		{"prompt  List the action items ", Command{Verb: CmdPrompt, Arg: "List the action items"}, false},
		{"url https://example.com/a b", Command{Verb: CmdURL, Arg: "https://example.com/a b"}, false},
		{"record", Command{}, true},
	}
	for _, tt := range tests {
		t.Run(tt.line, func(t *testing.T) {
			got, err := Parse(tt.line)
			if tt.wantErr {
				if !errors.Is(err, ErrUnknownCommand) {
					t.Fatalf("expected ErrUnknownCommand, got %v", err)
				}
				return
			}
			testutil.AssertNoError(t, err, "Parse")
			testutil.AssertEqual(t, tt.want, got, "parsed command")
		})
	}
}

func TestWriteReadCommandsQueuesAndClears(t *testing.T) {
	dir := t.TempDir()
	testutil.AssertNoError(t, WriteCommand(dir, Command{Verb: CmdURL, Arg: "https://example.com/x"}), "write url")
	testutil.AssertNoError(t, WriteCommand(dir, Command{Verb: CmdProcessURL}), "write process-url")

	cmds, bad, err := ReadCommands(dir)
	testutil.AssertNoError(t, err, "ReadCommands")
	testutil.AssertEqual(t, 0, len(bad), "no bad lines")
	testutil.AssertEqual(t, 2, len(cmds), "two commands queued")
	testutil.AssertEqual(t, CmdURL, cmds[0].Verb, "first verb")
	testutil.AssertEqual(t, CmdProcessURL, cmds[1].Verb, "second verb")

	cmds, _, err = ReadCommands(dir)
	testutil.AssertNoError(t, err, "second read")
	testutil.AssertEqual(t, 0, len(cmds), "file cleared after read")
}

func TestReadCommandsKeepsValidLinesAroundBadOnes(t *testing.T) {
	dir := t.TempDir()
	os.WriteFile(CommandPath(dir), []byte("pause\nfly away\nplay\n"), 0644)

	cmds, bad, err := ReadCommands(dir)
	testutil.AssertNoError(t, err, "ReadCommands")
	testutil.AssertEqual(t, 2, len(cmds), "valid commands")
	testutil.AssertEqual(t, 1, len(bad), "bad lines")
	testutil.AssertErrorContains(t, bad[0], "fly", "bad line named")
}

func TestReadCommandsMissingFile(t *testing.T) {
	cmds, bad, err := ReadCommands(t.TempDir())
	testutil.AssertNoError(t, err, "missing file")
	testutil.AssertTrue(t, cmds == nil && bad == nil, "nothing returned")
}

func TestStatusRoundTrip(t *testing.T) {
	dir := t.TempDir()
	st := &Status{
		Session:     session.Snapshot{SessionID: "abc", Mode: session.ModeURL, URL: "https://example.com"},
		Backend:     "openai",
		LastCommand: "process-url",
		PID:         42,
		Timestamp:   time.Date(2026, 10, 15, 9, 0, 0, 0, time.UTC),
	}
	testutil.AssertNoError(t, WriteStatus(dir, st), "WriteStatus")

	got, err := ReadStatus(dir)
	testutil.AssertNoError(t, err, "ReadStatus")
	testutil.AssertEqual(t, "abc", got.Session.SessionID, "session id")
	testutil.AssertEqual(t, session.ModeURL, got.Session.Mode, "mode")
	testutil.AssertEqual(t, "process-url", got.LastCommand, "last command")
	testutil.AssertTrue(t, got.Timestamp.Equal(st.Timestamp), "timestamp")

	entries, _ := os.ReadDir(dir)
	testutil.AssertEqual(t, 1, len(entries), "no temp files left behind")
}
