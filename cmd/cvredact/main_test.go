package main

import (
	"bufio"
	"bytes"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/raaihank/cv-anonymizer/internal/export"
	"github.com/raaihank/cv-anonymizer/internal/sections"
)

const testConfig = `logging:
  level: error
stats:
  backend: memory
`

// execute runs the command tree in-process with fresh flag values.
func execute(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()

	resetFlags(rootCmd)

	cfgPath := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(cfgPath, []byte(testConfig), 0o600))

	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(io.Discard)
	rootCmd.SetIn(strings.NewReader(stdin))
	rootCmd.SetArgs(append(args, "--config", cfgPath))

	err := rootCmd.Execute()
	return out.String(), err
}

func resetFlags(cmd *cobra.Command) {
	reset := func(f *pflag.Flag) {
		_ = f.Value.Set(f.DefValue)
		f.Changed = false
	}
	cmd.Flags().VisitAll(reset)
	cmd.PersistentFlags().VisitAll(reset)
	for _, sub := range cmd.Commands() {
		resetFlags(sub)
	}
}

func TestRedactStdin(t *testing.T) {
	out, err := execute(t, "M. Jean DUPONT\nEmail: jean.dupont@mail.com", "redact")
	require.NoError(t, err)
	assert.Equal(t, "M. [PRÉNOM_MASQUÉ] [NOM_MASQUÉ]\nEmail: [EMAIL_MASQUÉ]", out)
}

func TestRedactFileWithOverrides(t *testing.T) {
	input := filepath.Join(t.TempDir(), "cv.txt")
	require.NoError(t, os.WriteFile(input, []byte("Contact : Zoé Lefèvre\nEXPERIENCE"), 0o600))

	out, err := execute(t, "", "redact", input, "--first-name", "Zoé", "--last-name", "Lefèvre", "--format", "json")
	require.NoError(t, err)

	var record export.Record
	require.NoError(t, json.Unmarshal([]byte(out), &record))
	assert.Equal(t, "Contact : [PRÉNOM_MASQUÉ] [NOM_MASQUÉ]\nEXPERIENCE", record.Text)
	assert.Equal(t, "cv.txt", record.Metadata.Source)
	assert.True(t, record.Sections[sections.Experience])
	assert.NotContains(t, out, "Lefèvre")
}

func TestRedactToFile(t *testing.T) {
	output := filepath.Join(t.TempDir(), "cv.pdf")

	out, err := execute(t, "Tel: 06 12 34 56 78", "redact", "--format", "pdf", "--output", output)
	require.NoError(t, err)
	assert.Empty(t, out)

	data, err := os.ReadFile(output)
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(data, []byte("%PDF-")))
}

func TestRedactRejectsUnknownFormat(t *testing.T) {
	_, err := execute(t, "texte", "redact", "--format", "xlsx")
	assert.ErrorIs(t, err, export.ErrUnknownFormat)
}

func TestRedactEmptyInput(t *testing.T) {
	_, err := execute(t, "", "redact")
	assert.Error(t, err)
}

func TestBatchCommand(t *testing.T) {
	dir := t.TempDir()
	input := filepath.Join(dir, "cvs.csv")
	output := filepath.Join(dir, "out.jsonl")
	require.NoError(t, os.WriteFile(input, []byte("id,text\n1,Email: a@b.fr\n2,Rien\n"), 0o600))

	out, err := execute(t, "", "batch", "--input", input, "--output", output, "--workers", "2")
	require.NoError(t, err)
	assert.Contains(t, out, "Records:   2")
	assert.Contains(t, out, "email")

	f, err := os.Open(output)
	require.NoError(t, err)
	defer f.Close()

	var lines []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		lines = append(lines, scanner.Text())
	}
	require.Len(t, lines, 2)
	assert.Contains(t, lines[0], `"redacted_text":"Email: [EMAIL_MASQUÉ]"`)
}

func TestBatchRequiresFlags(t *testing.T) {
	_, err := execute(t, "", "batch")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "required")
}

func TestRulesCommand(t *testing.T) {
	out, err := execute(t, "", "rules")
	require.NoError(t, err)

	assert.Contains(t, out, "honorific_name")
	assert.Contains(t, out, "[PERMIS_MASQUÉ]")
	assert.Less(t, strings.Index(out, "honorific_name"), strings.Index(out, "driver_license"))
}

func TestSectionsCommand(t *testing.T) {
	out, err := execute(t, "FORMATION\nCOMPÉTENCES", "sections")
	require.NoError(t, err)

	var presence sections.PresenceMap
	require.NoError(t, json.Unmarshal([]byte(out), &presence))
	assert.True(t, presence[sections.Education])
	assert.True(t, presence[sections.Skills])
	assert.False(t, presence[sections.Languages])
}

func TestNormalizeCommand(t *testing.T) {
	out, err := execute(t, "Ça va à l'été", "normalize")
	require.NoError(t, err)
	assert.Equal(t, "ca va a l'ete", out)
}

func TestStatsCommand(t *testing.T) {
	out, err := execute(t, "", "stats")
	require.NoError(t, err)
	assert.Contains(t, out, `"backend": "memory"`)
}

func TestVersionCommand(t *testing.T) {
	out, err := execute(t, "", "version")
	require.NoError(t, err)
	assert.Equal(t, "cvredact "+version+"\n", out)
}
