package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/manifoldco/promptui"

	"github.com/creamcroissant/sbnode/internal/service"
)

// promptConfirmer asks on the terminal; Ctrl+C counts as an error, "n" as a no.
type promptConfirmer struct{}

func (promptConfirmer) Confirm(label string) (bool, error) {
	p := promptui.Prompt{Label: label, IsConfirm: true}
	if _, err := p.Run(); err != nil {
		if errors.Is(err, promptui.ErrAbort) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// selectUser lets the operator pick a configured user when none was named.
func selectUser(ctx context.Context, a *app, label string) (string, error) {
	users, err := a.manager.Usernames(ctx)
	if err != nil {
		return "", err
	}
	if len(users) == 0 {
		return "", fmt.Errorf("%w: no users configured", service.ErrNotFound)
	}

	items := make([]string, len(users))
	for i, u := range users {
		items[i] = u.Username
		if u.Label != "" && u.Label != u.Username {
			items[i] += " (" + u.Label + ")"
		}
	}
	sel := promptui.Select{Label: label, Items: items}
	i, _, err := sel.Run()
	if err != nil {
		return "", fmt.Errorf("%w: %v", service.ErrAborted, err)
	}
	return users[i].Username, nil
}

// promptText reads a line with an optional default.
func promptText(label, def string) (string, error) {
	p := promptui.Prompt{Label: label, Default: def}
	s, err := p.Run()
	if err != nil {
		return "", fmt.Errorf("%w: %v", service.ErrAborted, err)
	}
	return s, nil
}
