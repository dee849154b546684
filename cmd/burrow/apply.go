package main

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/cuemby/burrow/pkg/types"
)

var applyCmd = &cobra.Command{
	Use:   "apply",
	Short: "Define every subdomain listed in a YAML file",
	Long: `Apply defines the subdomains described in a YAML file.

The file may hold several documents separated by ---. Each document is one
Subdomain resource. Every subdomain is redefined, so applying the same file
twice converges to the same state.

Examples:
  # Apply a single subdomain
  burrow apply -f api.yaml

  # Apply a set of subdomains
  burrow apply -f subdomains.yaml`,
	RunE: runApply,
}

func init() {
	applyCmd.Flags().StringP("file", "f", "", "YAML file to apply (required)")
	applyCmd.Flags().Bool("keep-going", false, "Continue with the next subdomain after a failure")
	_ = applyCmd.MarkFlagRequired("file")

	rootCmd.AddCommand(applyCmd)
}

// SubdomainResource is one document of an apply file
type SubdomainResource struct {
	Kind     string             `yaml:"kind"`
	Metadata ResourceMetadata   `yaml:"metadata"`
	Spec     types.DefineConfig `yaml:"spec"`
}

type ResourceMetadata struct {
	Name string `yaml:"name"`
}

// parseResources decodes every document in data
func parseResources(data []byte) ([]*SubdomainResource, error) {
	dec := yaml.NewDecoder(bytes.NewReader(data))

	var resources []*SubdomainResource
	for {
		var res SubdomainResource
		err := dec.Decode(&res)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to parse YAML: %w", err)
		}
		if res.Kind == "" && res.Metadata.Name == "" {
			continue
		}
		if res.Kind != "Subdomain" {
			return nil, fmt.Errorf("unsupported resource kind: %q", res.Kind)
		}
		if res.Metadata.Name == "" {
			return nil, fmt.Errorf("subdomain name is required")
		}
		resources = append(resources, &res)
	}
	return resources, nil
}

func runApply(cmd *cobra.Command, args []string) error {
	filename, _ := cmd.Flags().GetString("file")
	keepGoing, _ := cmd.Flags().GetBool("keep-going")

	data, err := os.ReadFile(filename)
	if err != nil {
		return fmt.Errorf("failed to read file: %v", err)
	}

	resources, err := parseResources(data)
	if err != nil {
		return err
	}
	if len(resources) == 0 {
		fmt.Println("Nothing to apply")
		return nil
	}

	a, err := newApp(cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	ctx, cancel := signalContext()
	defer cancel()

	failed := 0
	for _, res := range resources {
		fmt.Printf("Applying subdomain: %s\n", res.Metadata.Name)
		info, err := a.rec.Define(ctx, res.Metadata.Name, res.Spec)
		if err != nil {
			failed++
			fmt.Printf("✗ %s: %v\n", res.Metadata.Name, err)
			if !keepGoing || ctx.Err() != nil {
				return err
			}
			continue
		}
		fmt.Printf("✓ Subdomain defined: https://%s\n", info.FullDomain)
	}

	if failed > 0 {
		return fmt.Errorf("%d of %d subdomain(s) failed", failed, len(resources))
	}
	return nil
}
