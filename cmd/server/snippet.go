package main

import (
	"fmt"
	"net/url"
	"time"

	"github.com/spf13/cobra"

	"github.com/bluefermion/reviews/internal/model"
	"github.com/bluefermion/reviews/internal/widget"
)

var snippetOpts struct {
	color  string
	delay  time.Duration
	iframe bool
	width  string
	height int
}

var snippetCmd = &cobra.Command{
	Use:   "snippet <portal-id>",
	Short: "Print the embed code for a portal",
	Long: `Print the script block a site pastes to show the review prompt, or with
--iframe the iframe code for the hosted form.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		portalID := args[0]
		out := cmd.OutOrStdout()

		if snippetOpts.iframe {
			formURL := cfg.Server.PublicURL + "/" + url.PathEscape(portalID)
			fmt.Fprintln(out, widget.IframeCode(formURL, snippetOpts.width, snippetOpts.height))
			return nil
		}

		if snippetOpts.color != "" && !widget.ValidColor(snippetOpts.color) {
			return fmt.Errorf("invalid color %q", snippetOpts.color)
		}
		s, err := widget.Snippet(widget.SnippetOptions{
			PortalID:     portalID,
			PrimaryColor: snippetOpts.color,
			Delay:        snippetOpts.delay,
			ScriptURL:    cfg.Server.PublicURL + "/embed.js",
		})
		if err != nil {
			return err
		}
		fmt.Fprintln(out, s)
		return nil
	},
}

func init() {
	f := snippetCmd.Flags()
	f.StringVar(&snippetOpts.color, "color", model.DefaultPrimaryColor, "primary color of the review prompt")
	f.DurationVar(&snippetOpts.delay, "delay", 2*time.Second, "delay before the prompt opens")
	f.BoolVar(&snippetOpts.iframe, "iframe", false, "print iframe code for the hosted form instead")
	f.StringVar(&snippetOpts.width, "width", "100%", "iframe width")
	f.IntVar(&snippetOpts.height, "height", 600, "iframe height in pixels")
	rootCmd.AddCommand(snippetCmd)
}
