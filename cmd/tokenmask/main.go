// Command tokenmask is a developer tool for poking at grammars with the
// byte-level tokenizer: check whether an input satisfies a grammar, or
// inspect the token mask after a given prefix.
package main

import (
	"errors"
	"fmt"
	"os"
	"strconv"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/tokenmask/tokenmask/grammar"
	"github.com/tokenmask/tokenmask/matcher"
	"github.com/tokenmask/tokenmask/tokenizer"
)

type grammarFlags struct {
	regex  string
	lark   string
	schema string
}

func (f *grammarFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.regex, "regex", "", "grammar from a regular expression")
	cmd.Flags().StringVar(&f.lark, "lark", "", "grammar from Lark source (@file to read a file)")
	cmd.Flags().StringVar(&f.schema, "schema", "", "grammar from a JSON schema (@file to read a file)")
	cmd.MarkFlagsMutuallyExclusive("regex", "lark", "schema")
}

func (f *grammarFlags) spec() (*grammar.Spec, error) {
	switch {
	case f.regex != "":
		return grammar.FromRegex(f.regex)
	case f.lark != "":
		src, err := maybeFile(f.lark)
		if err != nil {
			return nil, err
		}
		return grammar.FromLark(src)
	case f.schema != "":
		src, err := maybeFile(f.schema)
		if err != nil {
			return nil, err
		}
		return grammar.FromSchema([]byte(src), nil)
	default:
		return nil, errors.New("one of --regex, --lark or --schema is required")
	}
}

func maybeFile(s string) (string, error) {
	if len(s) > 0 && s[0] == '@' {
		b, err := os.ReadFile(s[1:])
		if err != nil {
			return "", err
		}
		return string(b), nil
	}
	return s, nil
}

func newMatcher(f *grammarFlags, verbose int) (*matcher.Matcher, error) {
	spec, err := f.spec()
	if err != nil {
		return nil, err
	}
	return matcher.New(tokenizer.NewByteTokenizer(), spec, verbose)
}

func checkCmd() *cobra.Command {
	var flags grammarFlags
	var verbose int

	cmd := &cobra.Command{
		Use:   "check INPUT",
		Short: "Check whether an input string satisfies a grammar",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := newMatcher(&flags, verbose)
			if err != nil {
				return err
			}

			ids, err := tokenizer.NewByteTokenizer().Encode(args[0])
			if err != nil {
				return err
			}
			n, err := m.TryConsumeTokens(ids)
			if err != nil {
				return err
			}
			switch {
			case n < len(ids):
				fmt.Fprintf(cmd.OutOrStdout(), "rejected at byte %d (%q)\n", n, args[0][n:])
			case m.IsAccepting():
				fmt.Fprintln(cmd.OutOrStdout(), "accepted")
			default:
				fmt.Fprintln(cmd.OutOrStdout(), "incomplete: input is a valid prefix")
			}
			return nil
		},
	}
	flags.register(cmd)
	cmd.Flags().IntVarP(&verbose, "verbose", "v", 0, "matcher log level (0-3)")
	return cmd
}

func maskCmd() *cobra.Command {
	var flags grammarFlags
	var limit int

	cmd := &cobra.Command{
		Use:   "mask [PREFIX]",
		Short: "Show the allowed tokens after consuming a prefix",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := newMatcher(&flags, 0)
			if err != nil {
				return err
			}

			tp := tokenizer.NewByteTokenizer()
			if len(args) == 1 {
				ids, err := tp.Encode(args[0])
				if err != nil {
					return err
				}
				if err := m.ConsumeTokens(ids); err != nil {
					return err
				}
			}

			if ff := m.ComputeFFBytes(); len(ff) > 0 {
				fmt.Fprintf(cmd.OutOrStdout(), "forced: %q\n", ff)
			}

			mask := m.ComputeBitmask()
			vocab := tp.Vocabulary()

			table := tablewriter.NewWriter(cmd.OutOrStdout())
			table.SetHeader([]string{"Token", "Text"})
			shown, total := 0, 0
			for t := 0; t < vocab.Size(); t++ {
				if mask[t/8]&(1<<(t%8)) == 0 {
					continue
				}
				total++
				if shown < limit {
					table.Append([]string{strconv.Itoa(t), fmt.Sprintf("%q", vocab.Decode(int32(t)))})
					shown++
				}
			}
			table.Render()
			if total > shown {
				fmt.Fprintf(cmd.OutOrStdout(), "(%d of %d allowed tokens shown)\n", shown, total)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "stop: %s accepting: %v\n", m.StopReason(), m.IsAccepting())
			return nil
		},
	}
	flags.register(cmd)
	cmd.Flags().IntVar(&limit, "limit", 40, "maximum tokens to list")
	return cmd
}

func main() {
	root := &cobra.Command{
		Use:           "tokenmask",
		Short:         "Grammar-constrained token matching tools",
		SilenceUsage:  true,
		SilenceErrors: false,
		CompletionOptions: cobra.CompletionOptions{
			DisableDefaultCmd: true,
		},
	}
	root.AddCommand(checkCmd(), maskCmd())

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}
