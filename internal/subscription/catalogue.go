package subscription

import (
	"fmt"
	"strings"
	"time"

	"opomelilla_bot/internal/domain"
)

// Currency is the only currency plans are sold in.
const Currency = "EUR"

// Period is how long one payment keeps a plan active.
const Period = 30 * 24 * time.Hour

var catalogue = []domain.Plan{
	{
		Name:                domain.PlanBasic,
		DisplayName:         "Básico",
		PriceCents:          499,
		Currency:            Currency,
		Description:         "100 preguntas/día, sistema de preguntas falladas, estadísticas básicas",
		DailyQuestionsLimit: 100,
	},
	{
		Name:          domain.PlanPremium,
		DisplayName:   "Premium",
		PriceCents:    999,
		Currency:      Currency,
		Description:   "Preguntas ilimitadas, integración Moodle, estadísticas avanzadas, simulacros personalizados, análisis IA",
		AdvancedStats: true,
		Simulations:   true,
		AIAnalysis:    true,
	},
}

// Plans lists the purchasable plans, cheapest first.
func Plans() []domain.Plan {
	out := make([]domain.Plan, len(catalogue))
	copy(out, catalogue)
	return out
}

// PlanByName looks a plan up by its payload name.
func PlanByName(name string) (domain.Plan, bool) {
	for _, plan := range catalogue {
		if plan.Name == name {
			return plan, true
		}
	}
	return domain.Plan{}, false
}

// FormatPrice renders cents as "€4.99".
func FormatPrice(cents int) string {
	return fmt.Sprintf("€%d.%02d", cents/100, cents%100)
}

func mark(enabled bool) string {
	if enabled {
		return "✅"
	}
	return "❌"
}

func benefits(plan domain.Plan) []string {
	daily := "Preguntas ILIMITADAS en privado"
	if plan.DailyQuestionsLimit > 0 {
		daily = fmt.Sprintf("%d preguntas diarias en privado", plan.DailyQuestionsLimit)
	}

	return []string{
		"✅ Sistema de preguntas falladas",
		"✅ " + daily,
		mark(plan.AdvancedStats) + " Estadísticas avanzadas",
		mark(plan.Simulations) + " Simulacros personalizados",
		mark(plan.AIAnalysis) + " Análisis con IA",
	}
}

// CatalogueText renders the /planes message.
func CatalogueText(supportContact string) string {
	var b strings.Builder

	b.WriteString("💰 <b>PLANES DE SUSCRIPCIÓN OPOMELILLA</b>\n\n")
	b.WriteString("📍 <b>Diseñado específicamente para oposiciones para la Permanencia en la FAS</b>\n\n")

	medals := map[string]string{domain.PlanBasic: "🥉", domain.PlanPremium: "🥈"}
	for _, plan := range catalogue {
		fmt.Fprintf(&b, "%s <b>PLAN %s</b>\n", medals[plan.Name], strings.ToUpper(plan.DisplayName))
		fmt.Fprintf(&b, "💶 <b>%s/mes</b> (IVA incluido)\n", FormatPrice(plan.PriceCents))
		fmt.Fprintf(&b, "📝 %s\n\n", plan.Description)
		b.WriteString("🎯 <b>Funcionalidades:</b>\n")
		for _, line := range benefits(plan) {
			b.WriteString(line + "\n")
		}
		b.WriteString("\n")
	}

	b.WriteString("🚀 <b>¡Empieza ahora!</b>\n")
	b.WriteString("• /basico - Suscribirse al plan Básico\n")
	b.WriteString("• /premium - Suscribirse al plan Premium\n\n")
	fmt.Fprintf(&b, "📞 <b>Soporte:</b> %s", supportContact)

	return b.String()
}

// StatusText renders the /mi_plan message for an active subscription.
func StatusText(sub domain.Subscription, now time.Time) string {
	plan, ok := PlanByName(sub.Plan)
	if !ok {
		plan = domain.Plan{Name: sub.Plan, DisplayName: sub.Plan, PriceCents: sub.AmountCents}
	}

	daysLeft := int(sub.ExpiresAt.Sub(now).Hours() / 24)
	if rem := sub.ExpiresAt.Sub(now) % (24 * time.Hour); rem > 0 {
		daysLeft++
	}
	if daysLeft < 0 {
		daysLeft = 0
	}

	var b strings.Builder
	b.WriteString("👤 <b>MI SUSCRIPCIÓN</b>\n\n")
	b.WriteString("✅ <b>Estado:</b> Suscripción activa\n")
	fmt.Fprintf(&b, "💎 <b>Plan actual:</b> %s\n", plan.DisplayName)
	fmt.Fprintf(&b, "💰 <b>Precio:</b> %s/mes\n", FormatPrice(plan.PriceCents))
	fmt.Fprintf(&b, "📅 <b>Válida hasta:</b> %s\n", sub.ExpiresAt.Format("02/01/2006"))
	fmt.Fprintf(&b, "⏰ <b>Tiempo restante:</b> %d días\n\n", daysLeft)
	b.WriteString("🎯 <b>Beneficios incluidos:</b>\n")
	for _, line := range benefits(plan) {
		if strings.HasPrefix(line, "✅") {
			b.WriteString(line + "\n")
		}
	}

	return strings.TrimRight(b.String(), "\n")
}
