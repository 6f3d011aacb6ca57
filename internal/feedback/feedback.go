// Package feedback renders the immediate, provisional response shown to a user
// right after answering a question. Everything here is pure: the authoritative
// score is owned by the gamification service and nothing computed here is
// persisted.
package feedback

import (
	"fmt"
	"strings"
	"time"

	"opomelilla_bot/internal/domain"
)

const (
	correctBase   = 10
	incorrectBase = -2
	fastBonus     = 5
	fastestBonus  = 5

	// FastThreshold and FastestThreshold are the speed tier limits in seconds.
	FastThreshold    = 30
	FastestThreshold = 10

	footerLayout = "15:04:05"
)

// EstimatePoints approximates the points earned for display only. A zero
// responseSeconds means the latency is unknown and earns no speed bonus.
func EstimatePoints(correct bool, responseSeconds int) int {
	points := incorrectBase
	if correct {
		points = correctBase
	}

	if responseSeconds > 0 && responseSeconds < FastThreshold {
		points += fastBonus
	}
	if responseSeconds > 0 && responseSeconds < FastestThreshold {
		points += fastestBonus
	}

	return points
}

// ResponseSeconds is the whole-second latency between asking (askedAt) and
// answering (answeredAt), both unix seconds. It never goes negative.
func ResponseSeconds(askedAt, answeredAt int64) int {
	if answeredAt <= askedAt {
		return 0
	}
	return int(answeredAt - askedAt)
}

// Render builds the multi-line HTML feedback message. Sections always appear
// in the same order: result banner, points, optional elapsed time, stats
// snapshot, timestamp footer.
func Render(stats domain.UserStats, correct bool, pointsEarned, responseSeconds int, now time.Time) string {
	var b strings.Builder

	icon, result := "❌", "Incorrecto"
	if correct {
		icon, result = "✅", "¡Correcto!"
	}
	fmt.Fprintf(&b, "%s <b>%s</b>\n", icon, result)

	if pointsEarned >= 0 {
		fmt.Fprintf(&b, "🎯 <b>+%d puntos</b> ganados\n", pointsEarned)
	} else {
		fmt.Fprintf(&b, "📉 <b>%d puntos</b> (puntos reales calculados con protecciones)\n", pointsEarned)
	}

	if responseSeconds > 0 {
		fmt.Fprintf(&b, "⏱️ Tiempo: %ds", responseSeconds)
		switch {
		case responseSeconds < FastestThreshold:
			b.WriteString(" ⚡ ¡Súper rápido!")
		case responseSeconds < FastThreshold:
			b.WriteString(" 🚀 ¡Rápido!")
		}
		b.WriteString("\n")
	}

	b.WriteString("\n📊 <b>Estado actual:</b>\n")
	fmt.Fprintf(&b, "• Total: <b>%d</b> puntos\n", stats.TotalPoints)
	fmt.Fprintf(&b, "• Nivel: <b>%d</b>\n", stats.Level)
	if stats.Rank > 0 {
		fmt.Fprintf(&b, "• Ranking: <b>#%d</b>\n", stats.Rank)
	}
	fmt.Fprintf(&b, "• Racha: <b>%d</b> días\n", stats.Streak)
	fmt.Fprintf(&b, "• Precisión: <b>%d%%</b>\n", stats.Accuracy)
	fmt.Fprintf(&b, "\n🕐 Actualizado: %s", now.Format(footerLayout))

	return b.String()
}

// LevelEmoji maps a level to its medal.
func LevelEmoji(level int) string {
	switch {
	case level <= 2:
		return "🥉"
	case level <= 5:
		return "🥈"
	case level <= 10:
		return "🥇"
	default:
		return "💎"
	}
}

// FormatStats renders the /stats summary for a user.
func FormatStats(stats domain.UserStats) string {
	var b strings.Builder

	b.WriteString("📊 <b>TUS ESTADÍSTICAS</b>\n\n")
	fmt.Fprintf(&b, "🎯 Preguntas respondidas: <b>%d</b>\n", stats.Answered)
	fmt.Fprintf(&b, "✅ Respuestas correctas: <b>%d</b>\n", stats.Correct)
	fmt.Fprintf(&b, "📈 Porcentaje de aciertos: <b>%d%%</b>\n", stats.Accuracy)
	fmt.Fprintf(&b, "🔥 Racha actual: <b>%d</b>\n", stats.Streak)
	fmt.Fprintf(&b, "🏆 Mejor racha: <b>%d</b>\n", stats.BestStreak)
	fmt.Fprintf(&b, "⭐ Puntos totales: <b>%d</b>\n", stats.TotalPoints)
	fmt.Fprintf(&b, "📊 Nivel: <b>%d</b> %s", stats.Level, LevelEmoji(stats.Level))

	return b.String()
}
