package ui

import (
	"github.com/AlecAivazis/survey/v2"
)

// Confirm asks the user for a yes/no confirmation
func Confirm(message string, defaultValue bool) bool {
	var result bool
	prompt := &survey.Confirm{
		Message: message,
		Default: defaultValue,
	}

	if err := survey.AskOne(prompt, &result); err != nil {
		return false
	}
	return result
}
