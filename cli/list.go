package cli

// This file contains the list command for printing the discovered suite
// tree.

import (
	"fmt"

	"github.com/fatih/color"
	"github.com/urfave/cli/v2"

	"github.com/ctestx/ctestx/model"
)

func (a *App) list(ctx *cli.Context) error {
	adp, _, err := a.newAdapter(ctx)
	if err != nil {
		return err
	}

	tree, err := adp.Load(ctx.Context)
	if err != nil {
		return err
	}

	tests := tree.Tests()
	fmt.Printf("%s (%d tests)\n", color.CyanString(tree.Label), len(tests))
	printChildren(tree, "  ")
	return nil
}

func printChildren(suite *model.SuiteNode, indent string) {
	for _, child := range suite.Children {
		switch node := child.(type) {
		case *model.SuiteNode:
			fmt.Printf("%s%s\n", indent, color.CyanString(node.Label))
			printChildren(node, indent+"  ")
		case *model.TestNode:
			location := ""
			if node.File != "" {
				location = color.HiBlackString("  %s:%d", node.File, node.Line)
			}
			fmt.Printf("%s%s%s\n", indent, node.Label, location)
		}
	}
}
