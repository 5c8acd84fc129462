// Command ledgerauth signs in to the expense tracker from a terminal and
// keeps the session in a local SQLite file (or Redis) for other tools.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"time"

	ledgerAuth "github.com/MrEthical07/ledgerAuth"
)

const usage = `usage: ledgerauth [global flags] <command> [flags]

commands:
  login         sign in with email and password, then the emailed code
  verify CODE   finish a pending login
  resend        email a new login code
  signup        create an account
  verify-email  confirm an address with the emailed link or token
  reset         reset a forgotten password
  logout        end the session
  status        show the stored session

global flags:
`

type env struct {
	stdin  *os.File
	stdout io.Writer
	stderr io.Writer
	// build overrides client construction in tests.
	build func(ledgerAuth.Config) (*ledgerAuth.Client, error)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	os.Exit(run(ctx, os.Args[1:], env{stdin: os.Stdin, stdout: os.Stdout, stderr: os.Stderr}))
}

func run(ctx context.Context, args []string, e env) int {
	global := flag.NewFlagSet("ledgerauth", flag.ContinueOnError)
	global.SetOutput(e.stderr)
	var (
		configPath = global.String("config", "", "TOML or YAML config file")
		envFile    = global.String("env-file", ".env", "dotenv file applied before LEDGERAUTH_* variables")
		backendURL = global.String("backend", "", "backend base URL (overrides config)")
		storeFlag  = global.String("store", "", "session store: sqlite, redis or memory (overrides config)")
		timeout    = global.Duration("timeout", 0, "per-command timeout (0 = none)")
		metricsFmt = global.String("metrics", "", "after the command, write client metrics as prometheus or otel")
		metricsOut = global.String("metrics-out", "", "metrics file (default stderr)")
	)
	global.Usage = func() {
		fmt.Fprint(e.stderr, usage)
		global.PrintDefaults()
	}
	if err := global.Parse(args); err != nil {
		return 2
	}
	if global.NArg() == 0 {
		global.Usage()
		return 2
	}
	if !validMetricsFormat(*metricsFmt) {
		fmt.Fprintf(e.stderr, "unknown metrics format %q\n", *metricsFmt)
		return 2
	}

	cfg, err := loadConfig(*configPath, *envFile)
	if err != nil {
		fmt.Fprintf(e.stderr, "config: %v\n", err)
		return 1
	}
	if *backendURL != "" {
		cfg.Backend.BaseURL = *backendURL
	}
	if *storeFlag != "" {
		cfg.Store.Driver = *storeFlag
	}
	if *metricsFmt != "" {
		cfg.Metrics.Enabled = true
		cfg.Metrics.EnableLatencyHistograms = true
	}

	build := e.build
	if build == nil {
		build = func(cfg ledgerAuth.Config) (*ledgerAuth.Client, error) {
			logger := ledgerAuth.NewLogger(cfg.Log, e.stderr)
			return ledgerAuth.New().WithConfig(cfg).WithLogger(logger).Build()
		}
	}
	client, err := build(cfg)
	if err != nil {
		fmt.Fprintf(e.stderr, "ledgerauth: %v\n", err)
		return 1
	}
	defer client.Close()

	var dump *metricsDump
	if *metricsFmt != "" {
		if dump, err = newMetricsDump(*metricsFmt, *metricsOut, client, e.stderr); err != nil {
			fmt.Fprintf(e.stderr, "metrics: %v\n", err)
			return 1
		}
		defer dump.close(context.WithoutCancel(ctx))
	}

	if *timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, *timeout)
		defer cancel()
	}

	c := &cli{client: client, prompt: newPrompter(e.stdin, e.stdout), out: e.stdout, errOut: e.stderr}
	cmd, rest := global.Arg(0), global.Args()[1:]
	switch cmd {
	case "login":
		err = c.login(ctx, rest)
	case "verify":
		err = c.verify(ctx, rest)
	case "resend":
		err = c.resend(ctx)
	case "signup":
		err = c.signup(ctx, rest)
	case "verify-email":
		err = c.verifyEmail(ctx, rest)
	case "reset":
		err = c.reset(ctx, rest)
	case "logout":
		err = c.logout(ctx)
	case "status":
		err = c.status()
	default:
		fmt.Fprintf(e.stderr, "unknown command %q\n", cmd)
		global.Usage()
		return 2
	}

	if dump != nil {
		if werr := dump.write(context.WithoutCancel(ctx)); werr != nil {
			fmt.Fprintf(e.stderr, "metrics: %v\n", werr)
		}
	}

	var ue usageError
	switch {
	case err == nil:
		return 0
	case errors.As(err, &ue):
		fmt.Fprintln(e.stderr, ue.Error())
		return 2
	default:
		fmt.Fprintln(e.stderr, ledgerAuth.UserMessage(err))
		return 1
	}
}

// loadConfig layers defaults, an optional file, and the environment. Without
// a file the session is kept in SQLite under the user config directory.
func loadConfig(path, envFile string) (ledgerAuth.Config, error) {
	cfg := ledgerAuth.DefaultConfig()
	if path != "" {
		loaded, err := ledgerAuth.LoadConfig(path)
		if err != nil {
			return ledgerAuth.Config{}, err
		}
		cfg = loaded
	} else {
		cfg.Store.Driver = ledgerAuth.StoreSQLite
	}
	if err := ledgerAuth.ApplyEnv(&cfg, envFile); err != nil {
		return ledgerAuth.Config{}, err
	}
	if cfg.Store.Driver == ledgerAuth.StoreSQLite && !filepath.IsAbs(cfg.Store.SQLitePath) {
		if dir, err := os.UserConfigDir(); err == nil {
			cfg.Store.SQLitePath = filepath.Join(dir, cfg.Store.SQLitePath)
		}
	}
	return cfg, cfg.Validate()
}

type usageError string

func (e usageError) Error() string { return string(e) }

type cli struct {
	client *ledgerAuth.Client
	prompt *prompter
	out    io.Writer
	errOut io.Writer
}

func (c *cli) login(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("login", flag.ContinueOnError)
	fs.SetOutput(c.errOut)
	email := fs.String("email", "", "account email")
	noCode := fs.Bool("no-code", false, "stop after the password step; finish with 'verify'")
	if err := fs.Parse(args); err != nil {
		return usageError("login: " + err.Error())
	}

	if *email == "" {
		v, err := c.prompt.line("Email: ")
		if err != nil {
			return err
		}
		*email = v
	}
	password, err := c.prompt.secret("Password: ")
	if err != nil {
		return err
	}

	flow := c.client.Login()
	pending, err := flow.Submit(ctx, *email, password)
	if err != nil {
		return err
	}
	fmt.Fprintf(c.out, "A code was sent to %s.\n", pending.Email)
	if *noCode {
		return nil
	}

	for {
		code, err := c.prompt.line("Code (r to resend, empty to cancel): ")
		if err != nil {
			return err
		}
		switch strings.ToLower(code) {
		case "":
			if err := flow.Abandon(ctx); err != nil {
				return err
			}
			fmt.Fprintln(c.out, "Login cancelled.")
			return nil
		case "r":
			if err := flow.Resend(ctx); err != nil {
				fmt.Fprintln(c.errOut, ledgerAuth.UserMessage(err))
				continue
			}
			fmt.Fprintln(c.out, "A new code was sent.")
			continue
		}

		result, err := flow.Verify(ctx, code)
		if errors.Is(err, ledgerAuth.ErrOTPRejected) || errors.Is(err, ledgerAuth.ErrInvalidCode) {
			fmt.Fprintln(c.errOut, ledgerAuth.UserMessage(err))
			continue
		}
		if err != nil {
			return err
		}
		c.printLanding(result.Landing)
		return nil
	}
}

func (c *cli) verify(ctx context.Context, args []string) error {
	if len(args) != 1 {
		return usageError("usage: ledgerauth verify CODE")
	}
	result, err := c.client.Login().Verify(ctx, args[0])
	if err != nil {
		return err
	}
	c.printLanding(result.Landing)
	return nil
}

func (c *cli) resend(ctx context.Context) error {
	flow := c.client.Login()
	if err := flow.Resend(ctx); err != nil {
		return err
	}
	fmt.Fprintf(c.out, "A new code was sent to %s.\n", flow.PendingEmail())
	return nil
}

func (c *cli) signup(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("signup", flag.ContinueOnError)
	fs.SetOutput(c.errOut)
	name := fs.String("name", "", "display name")
	email := fs.String("email", "", "account email")
	if err := fs.Parse(args); err != nil {
		return usageError("signup: " + err.Error())
	}

	var err error
	if *name == "" {
		if *name, err = c.prompt.line("Name: "); err != nil {
			return err
		}
	}
	if *email == "" {
		if *email, err = c.prompt.line("Email: "); err != nil {
			return err
		}
	}
	password, err := c.prompt.secret("Password: ")
	if err != nil {
		return err
	}
	confirm, err := c.prompt.secret("Confirm password: ")
	if err != nil {
		return err
	}

	pending, err := c.client.Signup(ctx, ledgerAuth.SignupForm{
		Name:            *name,
		Email:           *email,
		Password:        password,
		ConfirmPassword: confirm,
	})
	if err != nil {
		return err
	}
	fmt.Fprintln(c.out, pending.Message)
	fmt.Fprintln(c.out, "Run 'ledgerauth verify-email <link>' with the link from the email.")
	return nil
}

func (c *cli) verifyEmail(ctx context.Context, args []string) error {
	if len(args) != 1 {
		return usageError("usage: ledgerauth verify-email LINK|TOKEN")
	}
	var (
		verified ledgerAuth.Verified
		err      error
	)
	if strings.Contains(args[0], "token=") {
		verified, err = c.client.VerifyEmailLink(ctx, args[0])
	} else {
		verified, err = c.client.VerifyEmail(ctx, args[0])
	}
	if err != nil {
		return err
	}
	fmt.Fprintln(c.out, verified.Message)
	return nil
}

func (c *cli) reset(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("reset", flag.ContinueOnError)
	fs.SetOutput(c.errOut)
	email := fs.String("email", "", "account email")
	if err := fs.Parse(args); err != nil {
		return usageError("reset: " + err.Error())
	}

	var err error
	if *email == "" {
		if *email, err = c.prompt.line("Email: "); err != nil {
			return err
		}
	}
	flow := c.client.PasswordReset()
	msg, err := flow.RequestCode(ctx, *email)
	if err != nil {
		return err
	}
	fmt.Fprintln(c.out, msg)

codeLoop:
	for {
		code, err := c.prompt.line("Code: ")
		if err != nil {
			return err
		}
		if err := flow.EnterCode(ctx, code); err != nil {
			fmt.Fprintln(c.errOut, ledgerAuth.UserMessage(err))
			continue
		}

		for {
			password, err := c.prompt.secret("New password: ")
			if err != nil {
				return err
			}
			confirm, err := c.prompt.secret("Confirm new password: ")
			if err != nil {
				return err
			}
			result, err := flow.Submit(ctx, password, confirm)
			switch {
			case err == nil:
				fmt.Fprintln(c.out, result.Message)
				return nil
			case errors.Is(err, ledgerAuth.ErrPasswordPolicy):
				fmt.Fprintln(c.errOut, ledgerAuth.UserMessage(err))
			case errors.Is(err, ledgerAuth.ErrResetFailed):
				// The server rejected the code; enter it again.
				fmt.Fprintln(c.errOut, ledgerAuth.UserMessage(err))
				if err := flow.Back(); err != nil {
					return err
				}
				continue codeLoop
			default:
				return err
			}
		}
	}
}

func (c *cli) logout(ctx context.Context) error {
	if err := c.client.Logout(ctx); err != nil {
		return err
	}
	fmt.Fprintln(c.out, "Logged out.")
	return nil
}

func (c *cli) status() error {
	if sess := c.client.Current(); sess != nil {
		fmt.Fprintf(c.out, "signed in as %s\n", orUnknown(sess.Subject))
		fmt.Fprintf(c.out, "roles: %s\n", strings.Join(sess.Roles, ", "))
		if !sess.ExpiresAt.IsZero() {
			fmt.Fprintf(c.out, "expires: %s\n", sess.ExpiresAt.Local().Format(time.RFC1123))
		}
		fmt.Fprintf(c.out, "landing: %s\n", c.client.LandingFor(sess.Roles))
		return nil
	}
	if p := c.client.Store().Pending(); p != nil {
		fmt.Fprintf(c.out, "waiting for the code sent to %s\n", p.Email)
		return nil
	}
	fmt.Fprintln(c.out, "not signed in")
	return nil
}

func (c *cli) printLanding(route string) {
	fmt.Fprintf(c.out, "Signed in. Landing: %s\n", route)
}

func orUnknown(s string) string {
	if s == "" {
		return "(unknown)"
	}
	return s
}
