package cli

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/dmitrijs2005/scrollkeeper/internal/attest"
	"github.com/dmitrijs2005/scrollkeeper/internal/backup"
	"github.com/dmitrijs2005/scrollkeeper/internal/models"
)

// Service is the reading surface the commands drive. *reading.Service
// satisfies it.
type Service interface {
	CanRead(ctx context.Context, scrollID int) (models.Verdict, error)
	RecordSecureReading(ctx context.Context, scrollID int, userTimestamp *time.Time) (models.RecordResult, error)
	GetIntegrityReport(ctx context.Context, scrollID int) (models.IntegrityReport, error)
	GetStats(ctx context.Context) (models.SecurityStats, error)
	ResetSecurityState(ctx context.Context) error
	Attest(ctx context.Context, scrollID int) (string, error)
	VerifyAttestation(token string) (*attest.Claims, error)
	Backups(ctx context.Context) ([]int64, error)
	RestoreBackup(ctx context.Context, seq int64) (*backup.Envelope, error)
}

// Opener returns the service, opening it on first use.
type Opener func(ctx context.Context) (Service, error)

var (
	// ErrRefused is returned by record when the attempt is not allowed.
	ErrRefused = errors.New("reading refused")
	// ErrNotRecorded is returned by record when the reading could not be stored.
	ErrNotRecorded = errors.New("reading not recorded")
)

type commands struct {
	open Opener
}

// NewRootCommand builds the command tree. Output goes to the command's out
// stream (cmd.SetOut); prompts read from its in stream.
func NewRootCommand(open Opener) *cobra.Command {
	c := &commands{open: open}
	root := c.root()
	root.AddCommand(c.replCmd())
	return root
}

func (c *commands) root() *cobra.Command {
	root := &cobra.Command{
		Use:           "scrollkeeper",
		Short:         "Tamper-evident reading log for a daily scroll practice",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(
		c.canReadCmd(),
		c.recordCmd(),
		c.reportCmd(),
		c.statsCmd(),
		c.attestCmd(),
		c.verifyTokenCmd(),
		c.backupCmd(),
		c.resetCmd(),
	)
	return root
}

func (c *commands) canReadCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "can-read <scroll>",
		Short: "Check whether a reading is allowed now",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			scrollID, err := parseScrollID(args[0])
			if err != nil {
				return err
			}
			svc, err := c.open(cmd.Context())
			if err != nil {
				return err
			}
			v, err := svc.CanRead(cmd.Context(), scrollID)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), v)
		},
	}
}

func (c *commands) recordCmd() *cobra.Command {
	var at string
	cmd := &cobra.Command{
		Use:   "record <scroll>",
		Short: "Confirm a reading of a scroll",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			scrollID, err := parseScrollID(args[0])
			if err != nil {
				return err
			}
			var userTimestamp *time.Time
			if at != "" {
				t, err := time.Parse(time.RFC3339, at)
				if err != nil {
					return fmt.Errorf("invalid --at: %w", err)
				}
				userTimestamp = &t
			}

			svc, err := c.open(cmd.Context())
			if err != nil {
				return err
			}
			v, err := svc.CanRead(cmd.Context(), scrollID)
			if err != nil {
				return err
			}
			if !v.CanRead {
				if err := printJSON(cmd.OutOrStdout(), v); err != nil {
					return err
				}
				return fmt.Errorf("%w: %s", ErrRefused, v.Reason)
			}

			res, err := svc.RecordSecureReading(cmd.Context(), scrollID, userTimestamp)
			if perr := printJSON(cmd.OutOrStdout(), res); perr != nil {
				return perr
			}
			if err != nil {
				return err
			}
			if !res.Success {
				return fmt.Errorf("%w: %s", ErrNotRecorded, res.Reason)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&at, "at", "", "count the reading towards the day and period of this RFC3339 time")
	return cmd
}

func (c *commands) reportCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "report <scroll>",
		Short: "Audit the records of a scroll",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			scrollID, err := parseScrollID(args[0])
			if err != nil {
				return err
			}
			svc, err := c.open(cmd.Context())
			if err != nil {
				return err
			}
			r, err := svc.GetIntegrityReport(cmd.Context(), scrollID)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), r)
		},
	}
}

func (c *commands) statsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show statistics over all records",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := c.open(cmd.Context())
			if err != nil {
				return err
			}
			s, err := svc.GetStats(cmd.Context())
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), s)
		},
	}
}

func (c *commands) attestCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "attest <scroll>",
		Short: "Issue a signed progress token for a scroll",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			scrollID, err := parseScrollID(args[0])
			if err != nil {
				return err
			}
			svc, err := c.open(cmd.Context())
			if err != nil {
				return err
			}
			token, err := svc.Attest(cmd.Context(), scrollID)
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), token)
			return err
		},
	}
}

func (c *commands) verifyTokenCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "verify-token <token>",
		Short: "Verify a progress token and print its claims",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := c.open(cmd.Context())
			if err != nil {
				return err
			}
			claims, err := svc.VerifyAttestation(args[0])
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), claims)
		},
	}
}

func (c *commands) backupCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "backup",
		Short: "Inspect encrypted reading backups",
	}

	list := &cobra.Command{
		Use:   "list",
		Short: "List retained backup sequences",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := c.open(cmd.Context())
			if err != nil {
				return err
			}
			seqs, err := svc.Backups(cmd.Context())
			if err != nil {
				return err
			}
			if seqs == nil {
				seqs = []int64{}
			}
			return printJSON(cmd.OutOrStdout(), seqs)
		},
	}

	show := &cobra.Command{
		Use:   "show <sequence>",
		Short: "Decrypt and print one backup",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			seq, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil || seq < 1 {
				return fmt.Errorf("invalid sequence %q", args[0])
			}
			svc, err := c.open(cmd.Context())
			if err != nil {
				return err
			}
			env, err := svc.RestoreBackup(cmd.Context(), seq)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), env)
		},
	}

	cmd.AddCommand(list, show)
	return cmd
}

func (c *commands) resetCmd() *cobra.Command {
	var yes bool
	cmd := &cobra.Command{
		Use:   "reset",
		Short: "Clear all security state and records (development only)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if !yes {
				ok, err := confirm(bufio.NewReader(cmd.InOrStdin()), "Delete all readings and security state?", cmd.OutOrStdout())
				if err != nil {
					return err
				}
				if !ok {
					_, err := fmt.Fprintln(cmd.OutOrStdout(), "aborted")
					return err
				}
			}
			svc, err := c.open(cmd.Context())
			if err != nil {
				return err
			}
			if err := svc.ResetSecurityState(cmd.Context()); err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), "security state reset")
			return err
		},
	}
	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "do not ask for confirmation")
	return cmd
}

func (c *commands) replCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "repl",
		Short: "Run commands interactively",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			sc := bufio.NewScanner(cmd.InOrStdin())
			runREPL(cmd.Context(), &treeExecutor{c: c, in: &scannerReader{sc: sc}, out: cmd.OutOrStdout()}, sc)
			return nil
		},
	}
}

// treeExecutor runs one REPL line through a fresh command tree so flag
// values never leak between lines.
type treeExecutor struct {
	c   *commands
	in  io.Reader
	out io.Writer
}

func (e *treeExecutor) Execute(ctx context.Context, args []string) error {
	root := e.c.root()
	root.SetArgs(args)
	root.SetIn(e.in)
	root.SetOut(e.out)
	root.SetErr(e.out)
	return root.ExecuteContext(ctx)
}

// scannerReader lets prompts inside a REPL command consume the lines the
// REPL scanner has already buffered.
type scannerReader struct {
	sc  *bufio.Scanner
	buf []byte
}

func (r *scannerReader) Read(p []byte) (int, error) {
	if len(r.buf) == 0 {
		if !r.sc.Scan() {
			if err := r.sc.Err(); err != nil {
				return 0, err
			}
			return 0, io.EOF
		}
		r.buf = append([]byte(r.sc.Text()), '\n')
	}
	n := copy(p, r.buf)
	r.buf = r.buf[n:]
	return n, nil
}

func parseScrollID(s string) (int, error) {
	id, err := strconv.Atoi(s)
	if err != nil || id < 1 {
		return 0, fmt.Errorf("invalid scroll id %q", s)
	}
	return id, nil
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
