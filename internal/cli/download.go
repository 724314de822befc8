package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"whisper-transcribe/internal/bootstrap"
	"whisper-transcribe/internal/catalog"
	"whisper-transcribe/internal/domain"
)

func (a *cliApp) downloadCommand() *cobra.Command {
	var save bool

	cmd := &cobra.Command{
		Use:       "download <model-id>",
		Short:     "Download a whisper.cpp model into the models directory",
		Args:      cobra.ExactArgs(1),
		ValidArgs: catalog.IDs(),
		RunE: a.run(func(cmd *cobra.Command, args []string) error {
			svc, err := a.services()
			if err != nil {
				return err
			}
			if _, err := svc.StartDownload(args[0]); err != nil {
				return err
			}

			progress := cmd.ErrOrStderr()
			var last string
			for {
				status := svc.Controller.PollDownload()
				if text := bootstrap.DownloadText(status); text != last && status.Active() {
					fmt.Fprintln(progress, text)
					last = text
				}

				switch status.State {
				case domain.DownloadFailed:
					return fmt.Errorf("download %s: %s", args[0], status.Reason)
				case domain.DownloadDone:
					fmt.Fprintln(cmd.OutOrStdout(), status.LocalPath)
					if !save {
						return nil
					}
					a.settings.ModelPath = status.LocalPath
					if err := a.store.Save(a.settings); err != nil {
						return fmt.Errorf("save settings: %w", err)
					}
					return nil
				}

				select {
				case <-cmd.Context().Done():
					return cmd.Context().Err()
				case <-time.After(a.pollInterval):
				}
			}
		}),
	}

	cmd.Flags().BoolVar(&save, "select", false, "store the downloaded file as the default model")
	return cmd
}
