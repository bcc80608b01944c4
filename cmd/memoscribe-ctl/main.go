// memoscribe-ctl drives a running memoscribe-core through its command file
// and prints the published status.
package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/tiroq/memoscribe/internal/config"
	"github.com/tiroq/memoscribe/internal/ipc"
	"github.com/tiroq/memoscribe/internal/pidfile"
	"github.com/tiroq/memoscribe/internal/server"
)

const usage = `usage: memoscribe-ctl <command> [args]

  status                 print the daemon status as JSON
  token [ttl]            issue an API token (default ttl 24h)
  <verb> [arg]           queue a session command, e.g.
                           select-file ~/talk.mp3 de
                           prompt Summarize as bullet points
                           seek 42.5
                           quit
`

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintln(os.Stderr, "memoscribe-ctl:", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	if len(args) == 0 || args[0] == "-h" || args[0] == "--help" {
		fmt.Print(usage)
		return nil
	}
	dir := ipc.DefaultDir()

	switch args[0] {
	case "status":
		return printStatus(dir)
	case "token":
		ttl := 24 * time.Hour
		if len(args) > 1 {
			d, err := time.ParseDuration(args[1])
			if err != nil {
				return fmt.Errorf("invalid ttl: %w", err)
			}
			ttl = d
		}
		return printToken(ttl)
	}

	cmd, err := ipc.Parse(strings.Join(args, " "))
	if err != nil {
		return err
	}
	if _, ok := pidfile.Running(pidfile.Path(dir, "memoscribe-core")); !ok {
		return errors.New("memoscribe-core is not running")
	}
	if err := ipc.WriteCommand(dir, cmd); err != nil {
		return fmt.Errorf("write command: %w", err)
	}
	fmt.Println("queued:", cmd)
	return nil
}

func printStatus(dir string) error {
	pid, running := pidfile.Running(pidfile.Path(dir, "memoscribe-core"))
	if !running {
		fmt.Fprintln(os.Stderr, "memoscribe-core is not running")
	}
	st, err := ipc.ReadStatus(dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return errors.New("no status published yet")
		}
		return err
	}
	if running && st.PID != 0 && st.PID != pid {
		fmt.Fprintf(os.Stderr, "warning: status was written by pid %d, daemon is pid %d\n", st.PID, pid)
	}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(st)
}

func printToken(ttl time.Duration) error {
	_ = godotenv.Load()
	secret := os.Getenv(config.EnvJWTSecret)
	if secret == "" {
		return fmt.Errorf("%s is not set", config.EnvJWTSecret)
	}
	tok, err := server.NewAuth(secret).Issue("memoscribe-ctl", ttl)
	if err != nil {
		return err
	}
	fmt.Println(tok)
	return nil
}
