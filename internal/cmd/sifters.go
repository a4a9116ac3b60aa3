package cmd

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/siftworks/siftx/internal/config"
	"github.com/siftworks/siftx/pkg/sifter"
)

var siftersCmd = &cobra.Command{
	Use:   "sifters",
	Short: "List the sifters in the effective registry",
	Long: `List every sifter visible after merging the layered search
locations. When two layers provide the same name, the higher precedence
layer wins and only the winning entry is shown.`,
	RunE: runSifters,
}

var siftersOutputYAML bool

func init() {
	rootCmd.AddCommand(siftersCmd)
	siftersCmd.Flags().BoolVar(&siftersOutputYAML, "yaml", false, "Emit the registry as YAML")
}

func runSifters(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return exitError(1, err)
	}

	sifterDir := config.DefaultSifterDir
	if cfg != nil && cfg.SifterDir != "" {
		sifterDir = cfg.SifterDir
	}

	registry := sifter.NewRegistry(sifter.DefaultLayers(sifterDir))
	list := registry.List()

	names := make([]string, 0, len(list))
	for name := range list {
		names = append(names, name)
	}
	sort.Strings(names)

	if siftersOutputYAML {
		type entry struct {
			Name  string `yaml:"name"`
			Layer string `yaml:"layer"`
			Path  string `yaml:"path"`
		}
		doc := make([]entry, 0, len(names))
		for _, name := range names {
			s := list[name]
			doc = append(doc, entry{Name: s.Name, Layer: s.Layer, Path: s.Path})
		}
		out, err := yaml.Marshal(map[string][]entry{"sifters": doc})
		if err != nil {
			return exitError(1, err)
		}
		cmd.Print(string(out))
		return nil
	}

	if len(list) == 0 {
		fmt.Println("no sifters installed")
		return nil
	}
	for _, name := range names {
		s := list[name]
		fmt.Printf("%-30s %-10s %s\n", s.Name, s.Layer, s.Path)
	}
	return nil
}
