package mail

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/sparklab-cy/sparklab.cy/internal/model"
	"github.com/sparklab-cy/sparklab.cy/internal/repository"
)

// Mailer renders confirmation emails and records them in the email log.
// Actual delivery is not wired to a provider: a send is a structured log line.
type Mailer struct {
	store   *repository.Store
	log     *zap.Logger
	siteURL string
}

func New(store *repository.Store, log *zap.Logger, siteURL string) *Mailer {
	return &Mailer{store: store, log: log, siteURL: siteURL}
}

const purchaseSubject = "Your {{kitName}} kit is ready!"

const purchaseBody = `Hi {{userName}},

Thanks for your purchase! You now have access to all courses for the
{{kitName}} kit (level {{kitLevel}}, {{kitTheme}}).

Amount: {{amount}}
Date: {{purchaseDate}}

Start learning: {{coursesUrl}}
`

const redemptionSubject = "Code redeemed: welcome to {{kitName}}!"

const redemptionBody = `Hi {{userName}},

Your code was redeemed successfully. You now have access to all courses for
the {{kitName}} kit (level {{kitLevel}}, {{kitTheme}}).

Start learning: {{coursesUrl}}
`

func (m *Mailer) SendPurchaseConfirmation(ctx context.Context, profile model.Profile, kit model.Kit, purchase model.Purchase) error {
	amount := "FREE"
	if purchase.Amount > 0 {
		amount = fmt.Sprintf("$%.2f", purchase.Amount)
	}
	vars := map[string]string{
		"userName":     displayName(profile),
		"kitName":      kit.Name,
		"kitTheme":     kit.Theme,
		"kitLevel":     fmt.Sprintf("%d", kit.Level),
		"amount":       amount,
		"purchaseDate": purchase.CreatedAt.Format("2006-01-02"),
		"coursesUrl":   m.siteURL + "/courses",
	}
	return m.send(ctx, profile, "purchase_confirmation", ReplaceVariables(purchaseSubject, vars), ReplaceVariables(purchaseBody, vars))
}

func (m *Mailer) SendCodeRedemptionConfirmation(ctx context.Context, profile model.Profile, kit model.Kit) error {
	vars := map[string]string{
		"userName":   displayName(profile),
		"kitName":    kit.Name,
		"kitTheme":   kit.Theme,
		"kitLevel":   fmt.Sprintf("%d", kit.Level),
		"coursesUrl": m.siteURL + "/courses",
	}
	return m.send(ctx, profile, "code_redemption", ReplaceVariables(redemptionSubject, vars), ReplaceVariables(redemptionBody, vars))
}

func (m *Mailer) send(ctx context.Context, profile model.Profile, template, subject, body string) error {
	m.log.Info("email send",
		zap.String("template", template),
		zap.String("to", profile.Email),
		zap.String("subject", subject),
		zap.Int("body_bytes", len(body)),
	)
	return m.store.InsertEmailLog(ctx, model.EmailLog{
		ID:        uuid.NewString(),
		UserID:    profile.ID,
		ToEmail:   profile.Email,
		Template:  template,
		Subject:   subject,
		Status:    "logged",
		CreatedAt: time.Now().UTC(),
	})
}

// ReplaceVariables substitutes {{name}} placeholders in a template.
func ReplaceVariables(template string, vars map[string]string) string {
	out := template
	for key, value := range vars {
		out = strings.ReplaceAll(out, "{{"+key+"}}", value)
	}
	return out
}

func displayName(profile model.Profile) string {
	if profile.FullName != "" {
		return profile.FullName
	}
	return profile.Email
}
