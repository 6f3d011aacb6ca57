package command

import (
	"fmt"
	"html"
	"strings"

	"opomelilla_bot/internal/domain"
)

const welcomeText = `🎉 ¡Bienvenido a Permanencia OPOMELILLA!

📚 <b>SESIONES DE ESTUDIO PRIVADAS</b>
• /pdc2 - 2 preguntas de PDC
• /constitucion10 - 10 preguntas de Constitución
• /aleatorias5 - 5 preguntas aleatorias
• /falladas - Repasar preguntas falladas

💰 <b>SUSCRIPCIONES</b>
• /planes - Ver planes disponibles
• /premium - Suscribirse al plan premium
• /basico - Suscribirse al plan básico

📊 <b>ESTADÍSTICAS</b>
• /stats - Mis estadísticas
• /ranking - Ver ranking

❓ /help - Ver todos los comandos`

const helpText = `📋 <b>COMANDOS DISPONIBLES:</b>

🎓 <b>SESIONES DE ESTUDIO:</b>
/pdc[X] - Preguntas de PDC
/constitucion[X] - Constitución
/defensanacional[X] - Defensa Nacional
/rjsp[X] o /rio[X] - RJP
/et[X] - Ejército de Tierra
/armada[X] - Armada
/aire[X] - Ejército del Aire
/aleatorias[X] - Preguntas aleatorias
/falladas[X] - Preguntas falladas

💰 <b>SUSCRIPCIONES:</b>
/planes - Ver planes
/premium - Plan premium
/basico - Plan básico
/mi_plan - Ver mi suscripción

📊 <b>ESTADÍSTICAS:</b>
/stats - Mis estadísticas
/ranking - Ver ranking

🛠️ <b>GESTIÓN:</b>
/stop - Cancelar sesión
/progreso - Ver progreso

<i>Ejemplo: /pdc2 para 2 preguntas de PDC</i>`

// ErrorText is the reply for a command whose handler failed.
const ErrorText = "❌ Error procesando comando. Inténtalo de nuevo."

const noSubscriptionText = "❌ <b>No tienes suscripción activa</b>\n\n" +
	"💡 Usa /planes para ver los planes disponibles\n" +
	"🎯 Usa /premium o /basico para suscribirte"

const noStatsText = "❌ No se encontraron estadísticas. ¡Responde algunas preguntas primero!"

const missingUserText = "❌ No se pudo identificar el usuario."

// RankingSize is the number of entries shown by /ranking.
const RankingSize = 10

// UnknownText is the reply for an unrecognised command. original is echoed
// with its case preserved.
func UnknownText(original string) string {
	return fmt.Sprintf("❓ Comando no reconocido: %s\n\n💡 Usa /help para ver todos los comandos disponibles.",
		html.EscapeString(strings.TrimSpace(original)))
}

// RankingText renders the leaderboard.
func RankingText(top []domain.Profile) string {
	var b strings.Builder
	b.WriteString("🏆 <b>RANKING GENERAL</b>\n\n")

	if len(top) == 0 {
		b.WriteString("Aún no hay participantes. ¡Responde preguntas para aparecer aquí!")
		return b.String()
	}

	for i, p := range top {
		fmt.Fprintf(&b, "%s %s - %d pts\n", rankingMarker(i), html.EscapeString(displayName(p)), p.TotalPoints)
	}

	return b.String()
}

func rankingMarker(index int) string {
	switch index {
	case 0:
		return "🥇"
	case 1:
		return "🥈"
	case 2:
		return "🥉"
	default:
		return fmt.Sprintf("%d.", index+1)
	}
}

func displayName(p domain.Profile) string {
	if name := strings.TrimSpace(p.FirstName); name != "" {
		return name
	}
	if username := strings.TrimSpace(p.Username); username != "" {
		return "@" + username
	}
	return fmt.Sprintf("Usuario %d", p.UserID)
}
