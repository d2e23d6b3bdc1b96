// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/nshiell/ollama-chat/internal/config"
)

func newSettingsCmd(g *globalFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "settings",
		Short: "Show or change saved settings",
		Long: `Show or change the saved settings.

Keys: ` + strings.Join(config.Keys, ", ") + `
Styles: ` + strings.Join(config.Styles, ", ") + `

Examples:
  ollama-chat settings
  ollama-chat settings set url=http://gpu-box:11434 model_name=llama3.2:latest
  ollama-chat settings set "context=Answer in French."
  ollama-chat settings edit`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSettingsShow(cmd)
		},
	}

	cmd.AddCommand(
		&cobra.Command{
			Use:   "show",
			Short: "Print the current settings",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				return runSettingsShow(cmd)
			},
		},
		&cobra.Command{
			Use:   "set key=value...",
			Short: "Change one or more settings",
			Args:  cobra.MinimumNArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				return runSettingsSet(cmd, args)
			},
		},
		&cobra.Command{
			Use:   "edit",
			Short: "Open the settings file in $EDITOR",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				return runSettingsEdit(cmd)
			},
		},
		&cobra.Command{
			Use:   "path",
			Short: "Print the settings file location",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				paths, err := config.DefaultPaths()
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), paths.Settings)
				return nil
			},
		},
	)
	return cmd
}

// openSettings loads the settings file. Problems in the file are reported
// on stderr and leave defaults in place.
func openSettings(cmd *cobra.Command) (*config.Store, error) {
	paths, err := config.DefaultPaths()
	if err != nil {
		return nil, err
	}
	store, err := config.Open(paths.Settings)
	if err != nil {
		fmt.Fprintln(cmd.ErrOrStderr(), warningStyle.Render(err.Error()))
	}
	return store, nil
}

func runSettingsShow(cmd *cobra.Command) error {
	store, err := openSettings(cmd)
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	current := store.Get()
	for _, key := range config.Keys {
		value, _ := current.Get(key)
		fmt.Fprintf(out, "%s %v\n", labelStyle.Render(key), value)
	}
	fmt.Fprintln(out, dimStyle.Render("file: "+store.Path()))
	for _, env := range []string{config.EnvURL, config.EnvModel} {
		if v := os.Getenv(env); v != "" {
			fmt.Fprintln(out, dimStyle.Render(env+" overrides the file with "+v))
		}
	}
	return nil
}

// parseAssignments splits key=value arguments. Values may contain '='.
func parseAssignments(args []string) ([][2]string, error) {
	out := make([][2]string, 0, len(args))
	for _, arg := range args {
		key, value, ok := strings.Cut(arg, "=")
		key = strings.TrimSpace(key)
		if !ok || key == "" {
			return nil, fmt.Errorf("expected key=value, got %q", arg)
		}
		out = append(out, [2]string{key, value})
	}
	return out, nil
}

func runSettingsSet(cmd *cobra.Command, args []string) error {
	assignments, err := parseAssignments(args)
	if err != nil {
		return err
	}
	store, err := openSettings(cmd)
	if err != nil {
		return err
	}

	for _, kv := range assignments {
		if err := store.Set(kv[0], kv[1]); err != nil {
			return err
		}
	}
	if err := store.Get().Validate(); err != nil {
		return err
	}
	if err := store.Save(); err != nil {
		return err
	}

	for _, kv := range assignments {
		log.Info().Str("key", kv[0]).Msg("setting changed")
		value, _ := store.Get().Get(kv[0])
		fmt.Fprintf(cmd.OutOrStdout(), "%s %v\n", labelStyle.Render(kv[0]), value)
	}
	return nil
}

// editorCommand picks $VISUAL, then $EDITOR, then vi. The variable may
// carry arguments, as in "code --wait".
func editorCommand() []string {
	for _, env := range []string{"VISUAL", "EDITOR"} {
		if fields := strings.Fields(os.Getenv(env)); len(fields) > 0 {
			return fields
		}
	}
	return []string{"vi"}
}

func runSettingsEdit(cmd *cobra.Command) error {
	store, err := openSettings(cmd)
	if err != nil {
		return err
	}
	if _, err := os.Stat(store.Path()); errors.Is(err, os.ErrNotExist) {
		if err := store.Save(); err != nil {
			return err
		}
	}

	editor := editorCommand()
	c := exec.CommandContext(cmd.Context(), editor[0], append(editor[1:], store.Path())...)
	c.Stdin = os.Stdin
	c.Stdout = os.Stdout
	c.Stderr = os.Stderr
	if err := c.Run(); err != nil {
		return fmt.Errorf("editor %s failed: %w", editor[0], err)
	}

	changed, err := store.Reload()
	if err != nil {
		fmt.Fprintln(cmd.ErrOrStderr(), warningStyle.Render(err.Error()))
	}
	if changed {
		fmt.Fprintln(cmd.OutOrStdout(), successStyle.Render("Settings updated"))
	}
	return nil
}
