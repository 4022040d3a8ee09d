package dirplan

import (
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/AlanyTan/sweteam/pkg/models"
)

// Output formats accepted by Render.
const (
	FormatYAML = "yaml"
	FormatCSV  = "csv"
)

// Render serializes a merged tree. YAML carries the full node metadata; CSV
// flattens to file_path,file_description rows for compact prompts.
func Render(root *models.DirectoryNode, format string) (string, error) {
	switch strings.ToLower(strings.TrimSpace(format)) {
	case "", FormatYAML:
		data, err := yaml.Marshal(root)
		if err != nil {
			return "", fmt.Errorf("encode tree: %w", err)
		}
		return string(data), nil
	case FormatCSV:
		var b strings.Builder
		b.WriteString("file_path,file_description\n")
		writeCSV(&b, root, "")
		return b.String(), nil
	default:
		return "", fmt.Errorf("%w: unknown output format %q", models.ErrValidation, format)
	}
}

func writeCSV(b *strings.Builder, n *models.DirectoryNode, prefix string) {
	path := n.Name
	if prefix != "" {
		path = prefix + "/" + n.Name
	}
	if n.Name != "." {
		desc := n.Description
		if n.Discrepancy != "" {
			if desc != "" {
				desc += "; "
			}
			desc += n.Discrepancy
		}
		fmt.Fprintf(b, "%s,%s\n", csvEscape(path), csvEscape(desc))
	} else {
		path = ""
	}
	for _, c := range n.Children {
		writeCSV(b, c, path)
	}
}

func csvEscape(s string) string {
	if strings.ContainsAny(s, ",\"\n") {
		return `"` + strings.ReplaceAll(s, `"`, `""`) + `"`
	}
	return s
}
