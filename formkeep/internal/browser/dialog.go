package browser

import (
	"context"
	"fmt"
)

// DialogPrompter asks the person at the browser through window.confirm and
// window.alert. Calls block until the dialog is answered.
type DialogPrompter struct {
	tab *Tab
}

// NewDialogPrompter prompts inside t.
func NewDialogPrompter(t *Tab) *DialogPrompter {
	return &DialogPrompter{tab: t}
}

func (d *DialogPrompter) Confirm(ctx context.Context, message string) (bool, error) {
	res, err := d.tab.Page.Context(ctx).Eval(`m => window.confirm(m)`, message)
	if err != nil {
		return false, fmt.Errorf("browser: confirm: %w", err)
	}
	return res.Value.Bool(), nil
}

func (d *DialogPrompter) Notify(ctx context.Context, message string) error {
	if _, err := d.tab.Page.Context(ctx).Eval(`m => window.alert(m)`, message); err != nil {
		return fmt.Errorf("browser: alert: %w", err)
	}
	return nil
}
