package main

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/DukeRupert/uplink/internal/authform"
)

// errAccessDenied is returned after a refused submission has printed its
// error code.
var errAccessDenied = errors.New("access denied")

// credentialsConfig holds the flags of the login and signup commands.
type credentialsConfig struct {
	email    string
	password string
	username string
}

func newLoginCmd(root *rootConfig) *cobra.Command {
	cfg := &credentialsConfig{}

	cmd := &cobra.Command{
		Use:   "login",
		Short: "Sign in with an operator email and access key",
		Long: `Sign in with an operator email and access key. When --password is
omitted the key is read from the first line of stdin.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runSubmit(cmd, root, authform.ModeLogin, cfg)
		},
	}

	cmd.Flags().StringVar(&cfg.email, "email", "", "operator email")
	cmd.Flags().StringVar(&cfg.password, "password", "", "access key (default: first line of stdin)")
	_ = cmd.MarkFlagRequired("email")

	return cmd
}

func newSignupCmd(root *rootConfig) *cobra.Command {
	cfg := &credentialsConfig{}

	cmd := &cobra.Command{
		Use:   "signup",
		Short: "Enroll a new operator and provision its profile",
		Long: `Enroll a new operator and provision its profile. The callsign defaults
to the part of the email before "@". When --password is omitted the key
is read from the first line of stdin.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runSubmit(cmd, root, authform.ModeSignup, cfg)
		},
	}

	cmd.Flags().StringVar(&cfg.email, "email", "", "operator email")
	cmd.Flags().StringVar(&cfg.username, "username", "", "callsign (default: email local part)")
	cmd.Flags().StringVar(&cfg.password, "password", "", "access key (default: first line of stdin)")
	_ = cmd.MarkFlagRequired("email")

	return cmd
}

// runSubmit submits one form in mode and reports the outcome.
func runSubmit(cmd *cobra.Command, root *rootConfig, mode authform.Mode, cfg *credentialsConfig) error {
	logger := root.logger(cmd)

	password := cfg.password
	if !cmd.Flags().Changed("password") {
		var err error
		if password, err = readLine(cmd.InOrStdin()); err != nil {
			return fmt.Errorf("read access key: %w", err)
		}
	}

	identity, closeIdentity, err := root.newIdentity(cmd.Context(), logger)
	if err != nil {
		return err
	}
	defer closeIdentity()

	form := authform.NewOrchestrator(identity, logger).NewFormInMode(mode, func() {
		fmt.Fprintln(cmd.OutOrStdout(), "ACCESS GRANTED")
	})
	out := form.Submit(cmd.Context(), authform.Fields{
		Email:    cfg.email,
		Password: password,
		Username: cfg.username,
	})
	if out.OK() {
		logger.Debug("submission succeeded", "mode", out.Mode.String(), "identity_id", out.IdentityID)
		return nil
	}

	fmt.Fprintln(cmd.ErrOrStderr(), out.Code)
	return errAccessDenied
}

// readLine returns the first line of r without its line ending. An empty
// input yields "".
func readLine(r io.Reader) (string, error) {
	line, err := bufio.NewReader(r).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", err
	}
	return strings.TrimRight(line, "\r\n"), nil
}
