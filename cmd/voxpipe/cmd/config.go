package cmd

import (
	"fmt"
	"reflect"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Configuration management commands",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show the effective configuration",
	Long: `Show the effective configuration after merging defaults, the config
file, environment variables, and CLI flags. Secrets are redacted.

Redirect the output to a file to create a configuration template:

  voxpipe config show > config.yaml

Environment variables use the VOXPIPE_ prefix and underscores for
nesting. Example: paths.output_root -> VOXPIPE_PATHS_OUTPUT_ROOT`,
	RunE: runConfigShow,
}

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configShowCmd)
}

// toMap converts a config struct to a map keyed by mapstructure tags,
// rendering durations in their config-file form.
func toMap(v any) map[string]any {
	result := make(map[string]any)
	val := reflect.ValueOf(v)
	if val.Kind() == reflect.Ptr {
		val = val.Elem()
	}
	typ := val.Type()

	for i := 0; i < val.NumField(); i++ {
		field := val.Field(i)
		fieldType := typ.Field(i)

		key := fieldType.Tag.Get("mapstructure")
		if key == "" {
			key = fieldType.Name
		}

		switch fv := field.Interface().(type) {
		case time.Duration:
			result[key] = fv.String()
		default:
			if field.Kind() == reflect.Struct {
				result[key] = toMap(field.Interface())
			} else {
				result[key] = field.Interface()
			}
		}
	}
	return result
}

func runConfigShow(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	redacted := cfg.Redacted()
	yamlData, err := yaml.Marshal(toMap(&redacted))
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}

	fmt.Println("# voxpipe configuration")
	fmt.Println("# Duration format: 30s, 5m, 1h")
	fmt.Println("# Secrets are shown redacted.")
	fmt.Println("")
	fmt.Print(string(yamlData))
	return nil
}
