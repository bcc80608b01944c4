package main

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/tiroq/memoscribe/internal/ipc"
	"github.com/tiroq/memoscribe/internal/pidfile"
	"github.com/tiroq/memoscribe/internal/session"
	"github.com/tiroq/memoscribe/testutil"
)

func isolate(t *testing.T) string {
	t.Helper()
	home := t.TempDir()
	t.Setenv("HOME", home)
	t.Setenv("MEMOSCRIBE_JWT_SECRET", "")
	os.Unsetenv("MEMOSCRIBE_JWT_SECRET")
	wd, _ := os.Getwd()
	testutil.AssertNoError(t, os.Chdir(home), "chdir")
	t.Cleanup(func() { _ = os.Chdir(wd) })
	dir := ipc.DefaultDir()
	testutil.AssertNoError(t, os.MkdirAll(dir, 0755), "mkdir")
	return dir
}

func TestRunRequiresDaemon(t *testing.T) {
	isolate(t)
	err := run([]string{"play"})
	testutil.AssertErrorContains(t, err, "not running", "no daemon")
}

func TestRunRejectsUnknownVerb(t *testing.T) {
	isolate(t)
	testutil.AssertError(t, run([]string{"rewind"}), "unknown verb")
}

func TestRunQueuesCommand(t *testing.T) {
	dir := isolate(t)
	pf, err := pidfile.Acquire(pidfile.Path(dir, "memoscribe-core"))
	testutil.AssertNoError(t, err, "acquire")
	defer pf.Remove()

	testutil.AssertNoError(t, run([]string{"select-file", "/tmp/talk.mp3", "de"}), "queue")
	cmds, bad, err := ipc.ReadCommands(dir)
	testutil.AssertNoError(t, err, "read")
	testutil.AssertEqual(t, 0, len(bad), "no bad lines")
	testutil.AssertEqual(t, 1, len(cmds), "one command")
	testutil.AssertEqual(t, ipc.CmdSelectFile, cmds[0].Verb, "verb")
	testutil.AssertEqual(t, "/tmp/talk.mp3 de", cmds[0].Arg, "arg")
}

func TestStatusWithoutPublishedFile(t *testing.T) {
	isolate(t)
	testutil.AssertErrorContains(t, run([]string{"status"}), "no status", "missing status")
}

func TestStatusPrintsPublished(t *testing.T) {
	dir := isolate(t)
	st := &ipc.Status{Session: session.Snapshot{Mode: session.ModeURL}, Backend: "registry:openai", PID: os.Getpid()}
	testutil.AssertNoError(t, ipc.WriteStatus(dir, st), "write status")

	out := testutil.NewStdoutCapture()
	testutil.AssertNoError(t, out.Start(), "capture stdout")
	err := run([]string{"status"})
	printed := out.Stop()
	testutil.AssertNoError(t, err, "status")
	testutil.AssertJSONContainsKey(t, printed, "session", "status JSON printed")
	testutil.AssertStringContains(t, printed, "registry:openai", "backend shown")
}

func TestTokenRequiresSecret(t *testing.T) {
	isolate(t)
	testutil.AssertErrorContains(t, run([]string{"token"}), "MEMOSCRIBE_JWT_SECRET", "secret missing")
}

func TestTokenFromDotEnv(t *testing.T) {
	isolate(t)
	home := os.Getenv("HOME")
	testutil.AssertNoError(t, os.WriteFile(filepath.Join(home, ".env"), []byte("MEMOSCRIBE_JWT_SECRET=dotenv-secret\n"), 0600), "write .env")

	out := testutil.NewStdoutCapture()
	testutil.AssertNoError(t, out.Start(), "capture stdout")
	err := printToken(time.Hour)
	tok := strings.TrimSpace(out.Stop())
	testutil.AssertNoError(t, err, "token")
	testutil.AssertEqual(t, 3, len(strings.Split(tok, ".")), "compact JWT printed")
	testutil.AssertEqual(t, "dotenv-secret", os.Getenv("MEMOSCRIBE_JWT_SECRET"), "secret read from .env")
}

func TestTokenInvalidTTL(t *testing.T) {
	isolate(t)
	testutil.AssertErrorContains(t, run([]string{"token", "forever"}), "invalid ttl", "bad ttl")
}
