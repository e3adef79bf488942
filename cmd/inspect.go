package cmd

import (
	"fmt"
	"io"
	"strconv"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"github.com/Norgate-AV/pharpack/internal/failure"
	"github.com/Norgate-AV/pharpack/internal/phar"
	"github.com/Norgate-AV/pharpack/internal/ui"
)

var inspectCmd = &cobra.Command{
	Use:   "inspect ARCHIVE",
	Short: "Verify a phar archive and list its entries",
	Long: `Read a phar archive, check every entry checksum and the signature, and
print the manifest.`,
	Args:         cobra.ExactArgs(1),
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		quiet, _ := cmd.Flags().GetBool("quiet")

		return inspectArchive(afero.NewOsFs(), cmd.OutOrStdout(), args[0], !quiet)
	},
}

func init() {
	inspectCmd.Flags().BoolP("quiet", "q", false, "Only print the summary")
	rootCmd.AddCommand(inspectCmd)
}

func inspectArchive(fs afero.Fs, w io.Writer, path string, list bool) error {
	if ok, _ := afero.Exists(fs, path); !ok {
		return failure.New(failure.ErrNotFound, "inspect", "%s does not exist", path)
	}

	archive, err := phar.Open(fs, path)
	if err != nil {
		return failure.Wrap(failure.ErrVerify, "inspect", err)
	}

	var total int64
	for _, e := range archive.Entries {
		total += int64(e.Size)
	}

	fmt.Fprintln(w, ui.Summary("Archive verified", []ui.Row{
		{Label: "Path", Value: path},
		{Label: "Alias", Value: archive.Alias},
		{Label: "API", Value: archive.APIVersion},
		{Label: "Signature", Value: archive.Signature.String() + " " + archive.Digest},
		{Label: "Entries", Value: strconv.Itoa(len(archive.Entries))},
		{Label: "Content", Value: ui.HumanSize(total)},
	}))

	if !list {
		return nil
	}

	for _, e := range archive.Entries {
		fmt.Fprintf(w, "%10d  %s  %s\n", e.Size, e.ModTime.UTC().Format(ui.TimeFormat), e.Name)
	}

	return nil
}
