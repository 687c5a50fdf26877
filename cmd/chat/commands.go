package main

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/rhuss/chatwire/pkg/api"
	"github.com/rhuss/chatwire/pkg/provider"
	"github.com/rhuss/chatwire/pkg/stream"
)

func newChatCmd(f *flags) *cobra.Command {
	var images []string
	var system string

	cmd := &cobra.Command{
		Use:   "chat [message]",
		Short: "Send one user message and stream the reply",
		RunE: func(cmd *cobra.Command, args []string) error {
			text, err := input(cmd, args)
			if err != nil {
				return err
			}

			content, err := userContent(text, images)
			if err != nil {
				return err
			}

			var msgs []api.ChatMessage
			if system != "" {
				msgs = append(msgs, api.ChatMessage{Role: api.RoleSystem, Content: api.TextContent(system)})
			}
			msgs = append(msgs, api.ChatMessage{Role: api.RoleUser, Content: content})

			req := &api.ChatRequest{Model: f.model, Messages: msgs, CompletionOptions: f.options(cmd)}
			p, err := f.open(req)
			if err != nil {
				return err
			}
			defer p.Close()

			s, err := p.StreamChat(cmd.Context(), &provider.Request{
				Model:    req.Model,
				Messages: req.Messages,
				Options:  req.CompletionOptions,
			})
			if err != nil {
				return err
			}
			defer s.Close()
			return printText(cmd.OutOrStdout(), s)
		},
	}
	cmd.Flags().StringSliceVarP(&images, "image", "i", nil, "attach an image file, repeatable")
	cmd.Flags().StringVarP(&system, "system", "s", "", "system message")
	return cmd
}

func newCompleteCmd(f *flags) *cobra.Command {
	return &cobra.Command{
		Use:   "complete [prompt]",
		Short: "Stream a completion of a prompt",
		RunE: func(cmd *cobra.Command, args []string) error {
			prompt, err := input(cmd, args)
			if err != nil {
				return err
			}

			req := &api.ChatRequest{Model: f.model, Prompt: prompt, CompletionOptions: f.options(cmd)}
			p, err := f.open(req)
			if err != nil {
				return err
			}
			defer p.Close()

			s, err := p.StreamComplete(cmd.Context(), &provider.Request{
				Model:   req.Model,
				Prompt:  req.Prompt,
				Options: req.CompletionOptions,
			})
			if err != nil {
				return err
			}
			defer s.Close()
			return printText(cmd.OutOrStdout(), s)
		},
	}
}

func newModelsCmd(f *flags) *cobra.Command {
	return &cobra.Command{
		Use:   "models",
		Short: "List the models the provider accepts",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := f.build()
			if err != nil {
				return err
			}
			defer p.Close()

			caps := p.Capabilities()
			if len(caps.Models) == 0 {
				fmt.Fprintf(cmd.OutOrStdout(), "%s (any model accepted)\n", caps.DefaultModel)
				return nil
			}
			for _, m := range caps.Models {
				marker := " "
				if m == caps.DefaultModel {
					marker = "*"
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n", marker, m)
			}
			return nil
		},
	}
}

// input joins the arguments, or reads stdin when there are none.
func input(cmd *cobra.Command, args []string) (string, error) {
	if len(args) > 0 {
		return strings.Join(args, " "), nil
	}
	b, err := io.ReadAll(cmd.InOrStdin())
	if err != nil {
		return "", fmt.Errorf("reading stdin: %w", err)
	}
	text := strings.TrimSpace(string(b))
	if text == "" {
		return "", fmt.Errorf("no input: pass it as arguments or on stdin")
	}
	return text, nil
}

// printText writes deltas as they arrive and ends the output with a newline.
func printText(w io.Writer, s *stream.Stream) error {
	for text, err := range s.Text() {
		if err != nil {
			fmt.Fprintln(w)
			if stream.IsRemote(err) {
				return fmt.Errorf("provider reported an error: %w", err)
			}
			return err
		}
		if _, err := io.WriteString(w, text); err != nil {
			return err
		}
	}
	_, err := fmt.Fprintln(w)
	return err
}

func readFile(path string) ([]byte, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading image: %w", err)
	}
	return b, nil
}
