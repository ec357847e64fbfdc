package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/lemonberrylabs/jitcalc/pkg/driver"
	"github.com/lemonberrylabs/jitcalc/pkg/expr"
	"github.com/lemonberrylabs/jitcalc/pkg/jit"
	"github.com/lemonberrylabs/jitcalc/pkg/source"
)

var tokensCmd = &cobra.Command{
	Use:   "tokens FILE",
	Short: "Print the tokens of a source file",
	Args:  cobra.ExactArgs(1),
	RunE:  printTokens,
}

var treeCmd = &cobra.Command{
	Use:   "tree FILE",
	Short: "Print the parse tree of each expression",
	Args:  cobra.ExactArgs(1),
	RunE:  printTrees,
}

var disasmCmd = &cobra.Command{
	Use:   "disasm FILE",
	Short: "Print the generated machine code of each expression",
	Args:  cobra.ExactArgs(1),
	RunE:  printDisasm,
}

func printTokens(cmd *cobra.Command, args []string) error {
	r, err := source.Open(args[0])
	if err != nil {
		return err
	}
	defer r.Close()

	toks, err := expr.Tokenize(r)
	out := cmd.OutOrStdout()
	for _, tok := range toks {
		fmt.Fprintf(out, "%-6s %-10s %s\n", tok.Pos, tok.Type, tok)
	}
	return err
}

func printTrees(cmd *cobra.Command, args []string) error {
	data, err := os.ReadFile(args[0])
	if err != nil {
		return err
	}
	toks, lexErr := expr.TokenizeString(string(data))
	if lexErr != nil && !isLexical(lexErr) {
		return lexErr
	}

	out := cmd.OutOrStdout()
	p := expr.NewParser(toks)
	for i := 0; !p.Finished(); i++ {
		tree, err := p.CreateParseTree()
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "expression %d: %s\n%s", i, tree, tree.Pretty())
	}
	return lexErr
}

func printDisasm(cmd *cobra.Command, args []string) error {
	data, err := os.ReadFile(args[0])
	if err != nil {
		return err
	}

	compiled, err := driver.Compile(string(data))
	out := cmd.OutOrStdout()
	for i, c := range compiled {
		fmt.Fprintf(out, "expression %d: %s\n", i, c.Tree)
		if c.Err != nil {
			fmt.Fprintf(out, "  %v\n", c.Err)
			continue
		}
		listing, lerr := jit.Listing(c.Program.Bytes())
		if lerr != nil {
			return lerr
		}
		fmt.Fprintf(out, "%s(%d bytes, max stack depth %d)\n", listing, c.Program.Len(), c.Program.MaxDepth())
	}
	return err
}

func isLexical(err error) bool {
	var le *expr.LexicalError
	return errors.As(err, &le)
}
