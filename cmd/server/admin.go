package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/soaringjerry/valuesreport/internal/config"
	"github.com/soaringjerry/valuesreport/internal/db"
	"github.com/soaringjerry/valuesreport/internal/logging"
	"github.com/soaringjerry/valuesreport/internal/middleware"
	"github.com/soaringjerry/valuesreport/internal/services"
)

// openStore loads the config and opens the configured store for a one-shot
// admin command.
func (o *rootOptions) openStore(ctx context.Context) (db.Store, *zap.Logger, error) {
	cfg, logger, err := o.load()
	if err != nil {
		return nil, nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, nil, fmt.Errorf("invalid configuration: %w", err)
	}
	if cfg.Store.Driver == "memory" {
		logger.Warn("memory store selected; changes are lost when this command exits")
	}
	store, err := db.Open(ctx, cfg.Store, logger)
	if err != nil {
		return nil, nil, err
	}
	return store, logger, nil
}

func codesCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "codes",
		Short: "Manage access codes",
	}
	cmd.AddCommand(codesAddCmd(opts), codesListCmd(opts))
	return cmd
}

func codesAddCmd(opts *rootOptions) *cobra.Command {
	var bootstrap bool
	cmd := &cobra.Command{
		Use:   "add [CODE USES]",
		Short: "Create an access code or reset its remaining uses",
		Example: `  valuesreport codes add SPRING24 25
  valuesreport codes add --bootstrap`,
		Args: func(cmd *cobra.Command, args []string) error {
			if bootstrap {
				return cobra.NoArgs(cmd, args)
			}
			return cobra.ExactArgs(2)(cmd, args)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			seed := config.BootstrapCodes()
			if !bootstrap {
				uses, err := strconv.Atoi(args[1])
				if err != nil {
					return fmt.Errorf("uses must be a number: %w", err)
				}
				seed = map[string]int{args[0]: uses}
			}
			store, logger, err := opts.openStore(cmd.Context())
			if err != nil {
				return err
			}
			defer store.Close()

			codes := make([]string, 0, len(seed))
			for code := range seed {
				codes = append(codes, code)
			}
			sort.Strings(codes)
			for _, code := range codes {
				ac := &services.AccessCode{Code: code, RemainingUses: seed[code]}
				if err := store.PutAccessCode(cmd.Context(), ac); err != nil {
					return fmt.Errorf("save %s: %w", code, err)
				}
				logger.Info("access code saved", zap.String("code", logging.MaskCode(code)), zap.Int("remaining", ac.RemainingUses))
				fmt.Fprintf(cmd.OutOrStdout(), "%s\t%d\n", code, ac.RemainingUses)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&bootstrap, "bootstrap", false, "Seed the built-in test codes")
	return cmd
}

func codesListCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List access codes and their remaining uses",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			store, _, err := opts.openStore(cmd.Context())
			if err != nil {
				return err
			}
			defer store.Close()
			codes, err := store.ListAccessCodes(cmd.Context())
			if err != nil {
				return err
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "CODE\tREMAINING\tCREATED")
			for _, ac := range codes {
				created := ""
				if !ac.CreatedAt.IsZero() {
					created = ac.CreatedAt.Format("2006-01-02")
				}
				fmt.Fprintf(tw, "%s\t%d\t%s\n", ac.Code, ac.RemainingUses, created)
			}
			return tw.Flush()
		},
	}
}

func exportCmd(opts *rootOptions) *cobra.Command {
	var out string
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Write every submission as CSV",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			store, logger, err := opts.openStore(cmd.Context())
			if err != nil {
				return err
			}
			defer store.Close()
			subs, err := store.ListSubmissions(cmd.Context())
			if err != nil {
				return err
			}
			data, err := services.ExportSubmissionsCSV(subs)
			if err != nil {
				return err
			}
			if out == "" || out == "-" {
				_, err = cmd.OutOrStdout().Write(data)
				return err
			}
			if err := os.WriteFile(out, data, 0o600); err != nil {
				return fmt.Errorf("write %s: %w", out, err)
			}
			logger.Info("submissions exported", zap.String("path", out), zap.Int("rows", len(subs)))
			return nil
		},
	}
	cmd.Flags().StringVarP(&out, "output", "o", "", "Output file (default stdout)")
	return cmd
}

func hashPasswordCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "hash-password [PASSWORD]",
		Short: "Print a bcrypt hash for admin.password_hash",
		Long:  "Reads the password from the argument or, when omitted, from the first line of stdin.",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			password := ""
			if len(args) == 1 {
				password = args[0]
			} else {
				line, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
				if err != nil && !errors.Is(err, io.EOF) {
					return err
				}
				password = strings.TrimRight(line, "\r\n")
			}
			if password == "" {
				return errors.New("password must not be empty")
			}
			hash, err := middleware.HashAdminPassword(password)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), hash)
			return nil
		},
	}
}
