package cmds

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/tcnksm/go-input"

	"github.com/go-go-golems/grillo/pkg/settings"
)

// clearAnswer clears a field back to its zero value; an empty answer keeps the
// current one.
const clearAnswer = "-"

var ConfigureCmd = &cobra.Command{
	Use:   "configure",
	Short: "Interactively configure grillo settings",
	RunE: func(cmd *cobra.Command, args []string) error {
		paths, err := DefaultPaths()
		if err != nil {
			return err
		}
		service := newSettingsService(paths)

		ui := &input.UI{
			Writer: os.Stdout,
			Reader: os.Stdin,
		}

		scopeAnswer, err := ui.Select("Which scope do you want to edit?",
			[]string{string(settings.ScopeGlobal), string(settings.ScopeProject)},
			&input.Options{
				Default:  string(settings.ScopeGlobal),
				Required: true,
				Loop:     true,
			})
		if err != nil {
			return err
		}
		scope := settings.Scope(scopeAnswer)
		current := service.Load(scope)

		update := settings.Update{}

		preprompt, err := ui.Ask(
			fmt.Sprintf("Preprompt [%s] (enter keeps, %q clears)", current.Preprompt, clearAnswer),
			&input.Options{HideOrder: true})
		if err != nil {
			return err
		}
		update.Preprompt = fieldFromAnswer(preprompt)

		apiKey, err := ui.Ask(
			fmt.Sprintf("API key (enter keeps, %q clears)", clearAnswer),
			&input.Options{HideOrder: true, Mask: true})
		if err != nil {
			return err
		}
		update.APIKey = fieldFromAnswer(apiKey)

		debug, err := ui.Ask(
			fmt.Sprintf("Enable debug logging? (y/n, currently %v)", current.DebugEnabled),
			&input.Options{HideOrder: true})
		if err != nil {
			return err
		}
		switch debug {
		case "y", "Y", "yes":
			update.DebugEnabled = settings.SetTo(true)
		case "n", "N", "no":
			update.DebugEnabled = settings.SetTo(false)
		}

		if scope == settings.ScopeProject {
			// the selected scope lives in the global file
			if err := service.Update(settings.ScopeGlobal, settings.Update{
				SelectedScope: settings.SetTo(settings.ScopeProject),
			}); err != nil {
				return err
			}
		}

		if err := service.Update(scope, update); err != nil {
			return err
		}

		fmt.Printf("saved %s settings\n", scope)
		return nil
	},
}

func fieldFromAnswer(answer string) settings.Field[string] {
	switch answer {
	case "":
		return settings.Keep[string]()
	case clearAnswer:
		return settings.Clear[string]()
	default:
		return settings.SetTo(answer)
	}
}
