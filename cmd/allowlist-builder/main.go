package main

import (
	"fmt"
	"log"
	"os"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/urfave/cli/v2"

	"github.com/mintgate/mintgate-go/pkg/allowlist"
	"github.com/mintgate/mintgate-go/pkg/merkle"
)

func main() {
	app := &cli.App{
		Name:  "allowlist-builder",
		Usage: "Build a Merkle allowlist artifact from a CSV of identities",
		Description: `Reads identities (one 0x-prefixed address per line, first CSV column,
'#' comments allowed), builds the Merkle tree, and writes an artifact
containing the root, every identity's proof, and an integrity checksum.

The printed root is what goes into the campaign; the artifact is what the
relayer serves proofs from.`,
		Version: "1.0.0",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:     "input",
				Aliases:  []string{"i"},
				Usage:    "CSV file of identities",
				Required: true,
			},
			&cli.StringFlag{
				Name:     "output",
				Aliases:  []string{"o"},
				Usage:    "Artifact output path (JSON)",
				Required: true,
			},
			&cli.BoolFlag{
				Name:  "verify",
				Usage: "Re-read the written artifact and verify every proof",
			},
		},
		Action: runBuilder,
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatalf("Application error: %v", err)
	}
}

func runBuilder(c *cli.Context) error {
	f, err := os.Open(c.String("input"))
	if err != nil {
		return fmt.Errorf("failed to open input: %w", err)
	}
	defer f.Close()

	identities, err := allowlist.ReadIdentitiesCSV(f)
	if err != nil {
		return fmt.Errorf("failed to read identities: %w", err)
	}

	tree, err := merkle.Build(identities)
	if err != nil {
		return fmt.Errorf("failed to build tree: %w", err)
	}

	artifact, err := allowlist.BuildArtifact(tree)
	if err != nil {
		return fmt.Errorf("failed to build artifact: %w", err)
	}

	outPath := c.String("output")
	if err := artifact.WriteFile(outPath); err != nil {
		return fmt.Errorf("failed to write artifact: %w", err)
	}

	if c.Bool("verify") {
		reread, err := allowlist.ReadFile(outPath)
		if err != nil {
			return fmt.Errorf("verification re-read failed: %w", err)
		}
		if err := reread.Verify(); err != nil {
			return fmt.Errorf("artifact verification failed: %w", err)
		}
	}

	root := tree.Root()
	fmt.Printf("Identities: %d\n", tree.Len())
	fmt.Printf("Root:       %s\n", hexutil.Encode(root[:]))
	fmt.Printf("Artifact:   %s\n", outPath)
	return nil
}
