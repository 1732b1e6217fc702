package cmd

import (
	"github.com/AlecAivazis/survey/v2"
	"github.com/spf13/cobra"

	"eavsctl/internal/config"
	"eavsctl/internal/ui"
)

var configureCmd = &cobra.Command{
	Use:   "configure",
	Short: "Set up the warehouse connection interactively",
	Long: `Prompt for the warehouse connection settings and save them to the
config file. The password goes into the OS keyring, not onto disk.`,
	RunE: runConfigure,
}

func init() {
	rootCmd.AddCommand(configureCmd)
}

func runConfigure(cmd *cobra.Command, args []string) error {
	existing, err := config.Load()
	if err != nil {
		return err
	}

	questions := []*survey.Question{
		{
			Name:     "account",
			Prompt:   &survey.Input{Message: "Account identifier:", Default: existing.Account},
			Validate: survey.Required,
		},
		{
			Name:     "username",
			Prompt:   &survey.Input{Message: "Username:", Default: existing.Username},
			Validate: survey.Required,
		},
		{
			Name:   "password",
			Prompt: &survey.Password{Message: "Password:"},
		},
		{
			Name:     "database",
			Prompt:   &survey.Input{Message: "Database (project):", Default: existing.Database},
			Validate: survey.Required,
		},
		{
			Name:   "warehouse",
			Prompt: &survey.Input{Message: "Warehouse:", Default: existing.Warehouse},
		},
		{
			Name:   "role",
			Prompt: &survey.Input{Message: "Role:", Default: existing.Role},
		},
		{
			Name:   "mappingfile",
			Prompt: &survey.Input{Message: "Mapping document path:", Default: existing.MappingFile},
		},
	}

	answers := struct {
		Account     string
		Username    string
		Password    string
		Database    string
		Warehouse   string
		Role        string
		MappingFile string `survey:"mappingfile"`
	}{}
	if err := survey.Ask(questions, &answers); err != nil {
		return err
	}

	cfg := &config.Config{
		Account:     answers.Account,
		Username:    answers.Username,
		Password:    answers.Password,
		Database:    answers.Database,
		Warehouse:   answers.Warehouse,
		Role:        answers.Role,
		MappingFile: answers.MappingFile,
		OutputDir:   existing.OutputDir,
	}
	if cfg.Password == "" {
		cfg.Password = existing.Password
	}

	if err := config.Save(cfg); err != nil {
		return err
	}
	ui.ShowSuccess("Configuration saved to " + config.File())
	return nil
}
